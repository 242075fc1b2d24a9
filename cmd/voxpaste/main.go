package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/alecthomas/kong"

	"github.com/roelfdiedericks/voxpaste/internal/config"
	"github.com/roelfdiedericks/voxpaste/internal/dictation"
	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/metrics"
	"github.com/roelfdiedericks/voxpaste/internal/paste"
	"github.com/roelfdiedericks/voxpaste/internal/paths"
	"github.com/roelfdiedericks/voxpaste/internal/stt"
	"github.com/roelfdiedericks/voxpaste/internal/stt/whispercpp"
)

const version = "0.1.0"

// Globals are flags shared by every command.
type Globals struct {
	Debug      bool   `help:"Enable debug logging." short:"d"`
	ConfigFile string `help:"Config file (default: ./voxpaste.json, then ~/.voxpaste/voxpaste.json)." name:"config-file" short:"c" type:"path"`
}

// CLI is the command tree.
type CLI struct {
	Globals

	Transcribe TranscribeCmd `cmd:"" help:"Transcribe audio files and print the text."`
	Dictate    DictateCmd    `cmd:"" help:"Transcribe audio and paste the text into the focused application."`
	Paste      PasteCmd      `cmd:"" help:"Paste text into the focused application."`
	Models     ModelsCmd     `cmd:"" help:"List whisper.cpp models and which are installed."`
	Stats      StatsCmd      `cmd:"" help:"Show transcription and paste metrics."`
	Config     ConfigCmd     `cmd:"" help:"Manage the config file."`
	Version    VersionCmd    `cmd:"" help:"Print the version."`
}

func main() {
	var cli CLI
	ctx := kong.Parse(&cli,
		kong.Name("voxpaste"),
		kong.Description("Push-to-talk dictation: speech in, text pasted where you type."),
		kong.UsageOnError(),
		kong.ConfigureHelp(kong.HelpOptions{Compact: true}),
	)
	err := ctx.Run(&cli.Globals)
	if err != nil {
		fmt.Fprintln(os.Stderr, errStyle.Render("error:"), err)
		os.Exit(1)
	}
}

// signalContext is cancelled on Ctrl-C or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

// TranscribeCmd prints transcripts without pasting.
type TranscribeCmd struct {
	Files []string `arg:"" type:"existingfile" help:"Audio files (WAV, OGG/Opus, or anything ffmpeg reads)."`
}

func (c *TranscribeCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var failed int
	for _, f := range c.Files {
		rep, err := a.pipeline.TranscribeFile(ctx, f)
		if err != nil {
			failed++
			fmt.Fprintln(os.Stderr, errStyle.Render("✗"), f, dimStyle.Render(err.Error()))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		fmt.Fprintln(os.Stderr, dimStyle.Render(fmt.Sprintf("%s · %s · %s audio · %s",
			f, rep.Backend, rep.Audio.Round(10*time.Millisecond), rep.Elapsed.Round(time.Millisecond))))
		fmt.Println(rep.Text)
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d files failed", failed, len(c.Files))
	}
	return nil
}

// DictateCmd transcribes and pastes. "-" reads raw 16 kHz mono PCM16 from stdin.
type DictateCmd struct {
	Inputs []string `arg:"" help:"Audio files, or - for raw 16 kHz mono little-endian PCM16 on stdin."`
}

func (c *DictateCmd) Run(g *Globals) error {
	a, err := newApp(g)
	if err != nil {
		return err
	}
	defer a.Close()
	a.watchVocabulary()

	ctx, cancel := signalContext()
	defer cancel()

	delivered, err := dictateInputs(ctx, a.pipeline, c.Inputs, os.Stdin)
	if delivered {
		waitForReconcile(ctx)
	}
	return err
}

// utteranceProcessor is satisfied by *dictation.Pipeline.
type utteranceProcessor interface {
	Process(ctx context.Context, pcm []byte) (*dictation.Report, error)
	ProcessFile(ctx context.Context, path string) (*dictation.Report, error)
}

// dictateInputs processes each input in turn. delivered reports whether any
// text reached the clipboard. The error is non-nil when any utterance failed
// or was only copied.
func dictateInputs(ctx context.Context, p utteranceProcessor, inputs []string, stdin io.Reader) (delivered bool, err error) {
	var tally deliveryTally
	for _, in := range inputs {
		var rep *dictation.Report
		var perr error
		if in == "-" {
			pcm, rerr := io.ReadAll(stdin)
			if rerr != nil {
				return delivered, fmt.Errorf("read stdin: %w", rerr)
			}
			rep, perr = p.Process(ctx, pcm)
		} else {
			rep, perr = p.ProcessFile(ctx, in)
		}
		if perr != nil {
			tally.fail(perr)
			fmt.Fprintln(os.Stderr, errStyle.Render("✗"), in, dimStyle.Render(perr.Error()))
			if ctx.Err() != nil {
				break
			}
			continue
		}
		delivered = true
		tally.add(rep.Outcome, rep.PasteErr)
		printOutcome(rep.Outcome, rep.Pasted, rep.PasteErr)
	}
	return delivered, tally.err()
}

// deliveryTally counts utterances that did not end up pasted.
type deliveryTally struct {
	total, failed, copied int
	first                 error
}

func (t *deliveryTally) fail(err error) {
	t.total++
	t.failed++
	if t.first == nil {
		t.first = err
	}
}

func (t *deliveryTally) add(o paste.Outcome, err error) {
	switch o {
	case paste.OutcomePasted:
		t.total++
	case paste.OutcomeCopiedOnly:
		t.total++
		t.copied++
		if err == nil {
			err = errors.New("text was not pasted")
		}
		if t.first == nil {
			t.first = err
		}
	default:
		if err == nil {
			err = errors.New("paste failed")
		}
		t.fail(err)
	}
}

func (t *deliveryTally) err() error {
	switch {
	case t.failed == 0 && t.copied == 0:
		return nil
	case t.failed == 0:
		return fmt.Errorf("%d of %d only copied to clipboard: %w", t.copied, t.total, t.first)
	default:
		return fmt.Errorf("%d of %d failed, %d only copied: %w", t.failed, t.total, t.copied, t.first)
	}
}

// PasteCmd pastes each argument in turn, as consecutive dictations.
type PasteCmd struct {
	Texts []string `arg:"" help:"Text to paste."`
}

func (c *PasteCmd) Run(g *Globals) error {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return err
	}
	m := metrics.OpenConfigured(cfg.Metrics)
	defer m.Close()

	ctx, cancel := signalContext()
	defer cancel()

	inj := paste.New(cfg.Paste, paste.NewSession())
	var tally deliveryTally
	for _, text := range c.Texts {
		res, err := inj.Paste(ctx, text)
		m.RecordOutcome("paste", res.Outcome.String())
		printOutcome(res.Outcome, res.Text, err)
		tally.add(res.Outcome, err)
	}
	waitForReconcile(ctx)
	return tally.err()
}

func printOutcome(o paste.Outcome, text string, err error) {
	switch o {
	case paste.OutcomePasted:
		fmt.Fprintln(os.Stderr, okStyle.Render("pasted"), dimStyle.Render(fmt.Sprintf("%q", text)))
	case paste.OutcomeCopiedOnly:
		fmt.Fprintln(os.Stderr, warnStyle.Render("copied to clipboard"), dimStyle.Render(fmt.Sprintf("%q", text)))
		if errors.Is(err, paste.ErrNoFocusedInput) {
			fmt.Fprintln(os.Stderr, dimStyle.Render("  click into a text field, then paste with the usual shortcut"))
		} else if err != nil {
			fmt.Fprintln(os.Stderr, dimStyle.Render("  "+err.Error()))
		}
	default:
		fmt.Fprintln(os.Stderr, errStyle.Render("paste failed"), dimStyle.Render(fmt.Sprint(err)))
	}
}

// waitForReconcile keeps the process alive until the deferred clipboard write
// has run, unless interrupted.
func waitForReconcile(ctx context.Context) {
	L_debug("paste: waiting for clipboard reconcile", "delay", paste.ReconcileDelay)
	t := time.NewTimer(paste.ReconcileDelay + 100*time.Millisecond)
	defer t.Stop()
	select {
	case <-t.C:
	case <-ctx.Done():
	}
}

// ModelsCmd lists the model catalog.
type ModelsCmd struct {
	Load bool `help:"Load the configured model to check that it works."`
}

func (c *ModelsCmd) Run(g *Globals) error {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return err
	}
	dir := cfg.STT.Local.ModelsDir
	if dir == "" {
		if dir, err = paths.DefaultModelsDir(); err != nil {
			return err
		}
	}

	fmt.Println(titleStyle.Render("whisper.cpp models"), dimStyle.Render(dir))
	for _, m := range stt.ListModels(dir) {
		mark := dimStyle.Render("·")
		if m.Present {
			mark = okStyle.Render("✓")
		}
		name := m.Name
		if m.Name == cfg.STT.Local.Model {
			name += " *"
		}
		fmt.Printf("  %s %s %s %s\n", mark, pathStyle.Render(name), dimStyle.Render(m.Size), m.Label)
	}
	if !stt.IsModelPresent(dir, cfg.STT.Local.Model) {
		if entry := stt.GetModel(cfg.STT.Local.Model); entry != nil {
			fmt.Println(warnStyle.Render("\nconfigured model missing, download it from:"))
			fmt.Println("  " + entry.URL)
		}
	}
	if c.Load {
		return loadModel(cfg.STT.Local)
	}
	return nil
}

// loadModel loads the configured model once and reports the resident handle.
func loadModel(lc stt.LocalConfig) error {
	path, err := lc.ModelPath()
	if err != nil {
		return err
	}
	cache := stt.NewModelCache(whispercpp.New(), lc.Threads)
	defer cache.Close()

	start := time.Now()
	if _, err := cache.Load(lc.Model, path, lc.UseGPU); err != nil {
		return err
	}
	info := cache.Resident().Info()
	state := errStyle.Render("not loaded")
	if info.Loaded {
		state = okStyle.Render("loaded")
	}
	fmt.Printf("\n%s %s %s %s\n", state, pathStyle.Render(info.ModelID),
		dimStyle.Render(info.Path), dimStyle.Render(time.Since(start).Round(time.Millisecond).String()))
	return nil
}

// StatsCmd prints persisted metrics.
type StatsCmd struct {
	JSON bool `help:"Print raw JSON."`
}

func (c *StatsCmd) Run(g *Globals) error {
	cfg, _, err := loadConfig(g)
	if err != nil {
		return err
	}
	m := metrics.OpenConfigured(cfg.Metrics)
	defer m.Close()

	if c.JSON {
		return m.WriteJSON(os.Stdout)
	}

	snaps := m.Snapshot()
	if len(snaps) == 0 {
		fmt.Println(dimStyle.Render("no metrics recorded yet"))
		return nil
	}
	fmt.Println(titleStyle.Render("metrics"))
	for _, s := range snaps {
		fmt.Printf("  %s %s %s\n", healthMark(s.Health), pathStyle.Render(s.Path), describe(s))
	}
	return nil
}

func healthMark(h metrics.HealthStatus) string {
	switch h {
	case metrics.HealthCritical:
		return errStyle.Render("●")
	case metrics.HealthWarning:
		return warnStyle.Render("●")
	default:
		return okStyle.Render("●")
	}
}

func describe(s *metrics.MetricSnapshot) string {
	switch d := s.Data.(type) {
	case metrics.TimingSnapshot:
		return fmt.Sprintf("n=%d avg=%.0fms p95=%.0fms max=%.0fms", d.Count, d.AvgMs, d.P95Ms, d.MaxMs)
	case metrics.CounterSnapshot:
		return fmt.Sprintf("%d", d.Value)
	case metrics.SuccessFailSnapshot:
		out := fmt.Sprintf("ok=%d fail=%d (%.0f%%)", d.Success, d.Failures, d.SuccessRate)
		if len(d.FailureReasons) > 0 {
			out += " " + dimStyle.Render(formatCounts(d.FailureReasons))
		}
		return out
	case metrics.OutcomeSnapshot:
		return fmt.Sprintf("%s last=%s", formatCounts(d.Outcomes), d.Last)
	default:
		return ""
	}
}

func formatCounts(m map[string]int64) string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s=%d", k, m[k])
	}
	return strings.Join(parts, " ")
}

// ConfigCmd groups config subcommands.
type ConfigCmd struct {
	Init ConfigInitCmd `cmd:"" help:"Write a default config file."`
	Path ConfigPathCmd `cmd:"" help:"Print the config file in use."`
}

// ConfigInitCmd writes defaults.
type ConfigInitCmd struct {
	Force bool `help:"Overwrite an existing file (a backup is kept)."`
}

func (c *ConfigInitCmd) Run(g *Globals) error {
	path := g.ConfigFile
	if path == "" {
		p, err := paths.DefaultConfigPath()
		if err != nil {
			return err
		}
		path = p
	}
	if _, err := os.Stat(path); err == nil && !c.Force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}
	if err := config.WriteDefaults(path); err != nil {
		return err
	}
	fmt.Println(okStyle.Render("wrote"), path)
	return nil
}

// ConfigPathCmd prints the active config path.
type ConfigPathCmd struct{}

func (c *ConfigPathCmd) Run(g *Globals) error {
	_, path, err := loadConfig(g)
	if err != nil {
		return err
	}
	if path == "" {
		fmt.Println(dimStyle.Render("no config file, using defaults"))
		return nil
	}
	fmt.Println(path)
	return nil
}

// VersionCmd prints the version.
type VersionCmd struct{}

func (c *VersionCmd) Run() error {
	fmt.Printf("voxpaste %s\n", version)
	return nil
}
