package paste

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strings"
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const (
	// CopyTimeout bounds the clipboard copy subprocess.
	CopyTimeout = 200 * time.Millisecond
	// PasteTimeout bounds the paste keystroke subprocess.
	PasteTimeout = 500 * time.Millisecond

	// how long Wait may block on I/O after the process is killed
	waitDelay = 50 * time.Millisecond
)

// ScriptConfig names the copy and paste commands as argv lists. The copy
// command receives the text on stdin.
type ScriptConfig struct {
	Copy  []string `json:"copy"`
	Paste []string `json:"paste"`
}

// DefaultScriptConfig returns the copy/paste commands for the current OS.
func DefaultScriptConfig() ScriptConfig {
	return defaultScriptConfig(runtime.GOOS, os.Getenv)
}

func defaultScriptConfig(goos string, getenv func(string) string) ScriptConfig {
	switch goos {
	case "darwin":
		return ScriptConfig{
			Copy:  []string{"pbcopy"},
			Paste: []string{"osascript", "-e", `tell application "System Events" to keystroke "v" using command down`},
		}
	case "windows":
		return ScriptConfig{
			Copy:  []string{"clip"},
			Paste: []string{"powershell", "-NoProfile", "-NonInteractive", "-Command", "(New-Object -ComObject WScript.Shell).SendKeys('^v')"},
		}
	default:
		if getenv("WAYLAND_DISPLAY") != "" {
			return ScriptConfig{
				Copy:  []string{"wl-copy"},
				Paste: []string{"wtype", "-M", "ctrl", "v", "-m", "ctrl"},
			}
		}
		return ScriptConfig{
			Copy:  []string{"xclip", "-selection", "clipboard"},
			Paste: []string{"xdotool", "key", "--clearmodifiers", "ctrl+v"},
		}
	}
}

// Script pastes by running a copy command and then a paste keystroke
// command, each under its own deadline. A command that overruns is killed.
type Script struct {
	copyCmd      []string
	pasteCmd     []string
	copyTimeout  time.Duration
	pasteTimeout time.Duration
}

// NewScript creates a scripted paster. Empty commands fall back to the OS
// defaults.
func NewScript(cfg ScriptConfig) *Script {
	def := DefaultScriptConfig()
	if len(cfg.Copy) == 0 {
		cfg.Copy = def.Copy
	}
	if len(cfg.Paste) == 0 {
		cfg.Paste = def.Paste
	}
	return &Script{
		copyCmd:      cfg.Copy,
		pasteCmd:     cfg.Paste,
		copyTimeout:  CopyTimeout,
		pasteTimeout: PasteTimeout,
	}
}

// Available reports whether both commands are on PATH.
func (s *Script) Available() bool {
	for _, argv := range [][]string{s.copyCmd, s.pasteCmd} {
		if _, err := exec.LookPath(argv[0]); err != nil {
			L_debug("paste: script command not found", "command", argv[0])
			return false
		}
	}
	return true
}

// Copy puts text on the clipboard with the copy command.
func (s *Script) Copy(ctx context.Context, text string) error {
	timedOut, err := run(ctx, s.copyCmd, text, s.copyTimeout)
	if timedOut {
		return &CopyTimeoutError{Command: s.copyCmd, Timeout: s.copyTimeout}
	}
	if err != nil {
		return withStep("copy", s.copyCmd, err)
	}
	return nil
}

// Paste sends the paste keystroke with the paste command.
func (s *Script) Paste(ctx context.Context) error {
	timedOut, err := run(ctx, s.pasteCmd, "", s.pasteTimeout)
	if timedOut {
		return &PasteTimeoutError{Command: s.pasteCmd, Timeout: s.pasteTimeout}
	}
	if err != nil {
		return withStep("paste", s.pasteCmd, err)
	}
	return nil
}

func withStep(step string, argv []string, err error) error {
	var cerr *CommandError
	if errors.As(err, &cerr) {
		cerr.Step = step
		cerr.Command = argv
		return cerr
	}
	return fmt.Errorf("%s command: %w", step, err)
}

// run executes argv with stdin under timeout. timedOut is true only when
// the command's own deadline fired, not when the parent context ended.
func run(ctx context.Context, argv []string, stdin string, timeout time.Duration) (timedOut bool, err error) {
	if len(argv) == 0 {
		return false, errors.New("empty command")
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(execCtx, argv[0], argv[1:]...) //nolint:gosec // G204: command from user config
	cmd.WaitDelay = waitDelay
	if stdin != "" {
		cmd.Stdin = strings.NewReader(stdin)
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			L_warn("paste: command timed out", "cmd", argv[0], "timeout", timeout)
			return true, nil
		}
		if ctx.Err() != nil {
			return false, ctx.Err()
		}
		return false, &CommandError{Err: err, Stderr: strings.TrimSpace(stderr.String())}
	}

	L_trace("paste: command completed", "cmd", argv[0], "elapsed", elapsed)
	return false, nil
}
