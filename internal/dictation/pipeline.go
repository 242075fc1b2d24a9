// Package dictation runs one utterance end to end: normalize the captured
// audio, transcribe it through the fallback chain, and paste the text into
// the focused application.
package dictation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/voxpaste/internal/audio"
	"github.com/roelfdiedericks/voxpaste/internal/bus"
	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/metrics"
	"github.com/roelfdiedericks/voxpaste/internal/paste"
	"github.com/roelfdiedericks/voxpaste/internal/stt"
)

// Failure stages reported in bus.Failed events.
const (
	StageAudio      = "audio"
	StageTranscribe = "transcribe"
	StagePaste      = "paste"
)

const eventSource = "pipeline"

// Transcriber is satisfied by *stt.Chain.
type Transcriber interface {
	Transcribe(ctx context.Context, req *stt.Request) (*stt.ChainResult, error)
}

// Paster is satisfied by *paste.Injector.
type Paster interface {
	Paste(ctx context.Context, text string) (*paste.Result, error)
}

// TermSource supplies recognition vocabulary, read once per utterance.
// Satisfied by *vocab.Store.
type TermSource interface {
	Terms() []string
}

// Deps wires a Pipeline. Chain is required; the rest are optional.
type Deps struct {
	Chain    Transcriber
	Paster   Paster
	Terms    TermSource
	Bus      *bus.Bus
	Metrics  *metrics.Manager
	Language string
}

// Report describes one processed utterance.
type Report struct {
	ID       string
	Text     string // transcript as pasted, before formatting
	Backend  string
	Attempts []stt.Attempt
	Audio    time.Duration // after padding
	Elapsed  time.Duration

	// Set by Process; zero for transcription-only runs.
	Outcome  paste.Outcome
	Method   string
	Pasted   string // text after formatting
	PasteErr error  // why a copied-only utterance was not pasted
}

// Pipeline processes utterances. Safe for concurrent use when its
// dependencies are.
type Pipeline struct {
	chain    Transcriber
	paster   Paster
	terms    TermSource
	bus      *bus.Bus
	metrics  *metrics.Manager
	language string
}

// New creates a pipeline.
func New(d Deps) (*Pipeline, error) {
	if d.Chain == nil {
		return nil, errors.New("dictation: no transcription chain")
	}
	m := d.Metrics
	if m == nil {
		m = metrics.New()
	}
	return &Pipeline{
		chain:    d.Chain,
		paster:   d.Paster,
		terms:    d.Terms,
		bus:      d.Bus,
		metrics:  m,
		language: d.Language,
	}, nil
}

// Process transcribes little-endian 16 kHz mono PCM16 and pastes the text.
// A copied-only outcome is not an error; it is reported in Report.Outcome
// and Report.PasteErr.
func (p *Pipeline) Process(ctx context.Context, pcm []byte) (*Report, error) {
	id := uuid.New().String()
	buf, err := audio.Normalize(pcm)
	if err != nil {
		return nil, p.fail(id, StageAudio, err)
	}
	return p.deliver(ctx, id, buf)
}

// ProcessFile is Process for an audio file in any format audio.LoadFile reads.
func (p *Pipeline) ProcessFile(ctx context.Context, path string) (*Report, error) {
	id := uuid.New().String()
	buf, err := loadFile(path)
	if err != nil {
		return nil, p.fail(id, StageAudio, err)
	}
	return p.deliver(ctx, id, buf)
}

// TranscribeFile transcribes an audio file without pasting.
func (p *Pipeline) TranscribeFile(ctx context.Context, path string) (*Report, error) {
	id := uuid.New().String()
	buf, err := loadFile(path)
	if err != nil {
		return nil, p.fail(id, StageAudio, err)
	}
	return p.transcribe(ctx, id, buf)
}

func loadFile(path string) (*audio.Buffer, error) {
	samples, err := audio.LoadFile(path)
	if err != nil {
		return nil, err
	}
	return audio.NormalizeSamples(samples)
}

func (p *Pipeline) deliver(ctx context.Context, id string, buf *audio.Buffer) (*Report, error) {
	if p.paster == nil {
		return nil, p.fail(id, StagePaste, errors.New("dictation: no paster configured"))
	}

	rep, err := p.transcribe(ctx, id, buf)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	res, err := p.paster.Paste(ctx, rep.Text)
	if res != nil {
		rep.Outcome = res.Outcome
		rep.Method = res.Method
		rep.Pasted = res.Text
	}
	p.metrics.RecordOutcome("paste", rep.Outcome.String())

	if rep.Outcome == paste.OutcomeFailed {
		p.metrics.RecordFailure(metrics.Path("paste", rep.Method), failureReason(err))
		if err == nil {
			err = errors.New("paste failed")
		}
		return rep, p.fail(id, StagePaste, err)
	}

	if rep.Outcome == paste.OutcomePasted {
		p.metrics.RecordSuccess(metrics.Path("paste", rep.Method))
		p.metrics.RecordDuration(metrics.Path("paste", rep.Method), time.Since(start))
	} else {
		rep.PasteErr = err
		p.metrics.RecordFailure(metrics.Path("paste", rep.Method), failureReason(err))
		L_warn("dictation: text left on clipboard", "id", id, "error", err)
	}

	p.publish(bus.TopicPasted, bus.Pasted{
		ID:      id,
		Outcome: rep.Outcome.String(),
		Method:  rep.Method,
		Text:    rep.Pasted,
	})
	L_info("dictation: delivered", "id", id, "outcome", rep.Outcome, "method", rep.Method, "backend", rep.Backend)
	return rep, nil
}

func (p *Pipeline) transcribe(ctx context.Context, id string, buf *audio.Buffer) (*Report, error) {
	start := time.Now()
	done := p.metrics.Start("dictation/transcribe")
	p.metrics.IncrementCounter("dictation/utterances")

	req := &stt.Request{
		Samples:  buf.Samples,
		WAV:      buf.WAV,
		Language: p.language,
	}
	if p.terms != nil {
		req.Hints = p.terms.Terms()
	}
	L_debug("dictation: transcribing", "id", id, "audio", buf.Duration(), "hints", len(req.Hints))

	res, err := p.chain.Transcribe(ctx, req)
	if err != nil {
		var all *stt.AllBackendsFailedError
		if errors.As(err, &all) {
			for _, f := range all.Failures {
				p.recordAttempt(stt.Attempt{Backend: f.Backend, Elapsed: f.Elapsed, Err: f})
			}
		}
		return nil, p.fail(id, StageTranscribe, err)
	}
	for _, a := range res.Attempts {
		p.recordAttempt(a)
	}
	done()

	rep := &Report{
		ID:       id,
		Text:     strings.TrimSpace(res.Text),
		Backend:  res.Backend,
		Attempts: res.Attempts,
		Audio:    buf.Duration(),
		Elapsed:  time.Since(start),
	}
	p.publish(bus.TopicTranscribed, bus.Transcribed{
		ID:       id,
		Backend:  rep.Backend,
		Text:     rep.Text,
		Attempts: len(rep.Attempts),
		Elapsed:  rep.Elapsed,
	})
	return rep, nil
}

func (p *Pipeline) recordAttempt(a stt.Attempt) {
	path := metrics.Path("stt", a.Backend)
	p.metrics.RecordDuration(path, a.Elapsed)
	if a.OK() {
		p.metrics.RecordSuccess(path)
		return
	}
	p.metrics.RecordFailure(path, failureReason(a.Err))
}

// failureReason maps an error to a short label for metrics.
func failureReason(err error) string {
	var copyTimeout *paste.CopyTimeoutError
	var pasteTimeout *paste.PasteTimeoutError
	switch {
	case err == nil:
		return "unknown"
	case errors.Is(err, stt.ErrBackendTimeout):
		return "timeout"
	case errors.Is(err, stt.ErrEmptyTranscript):
		return "empty"
	case errors.Is(err, paste.ErrNoFocusedInput):
		return "no focus"
	case errors.Is(err, paste.ErrNoPasteMethod):
		return "no method"
	case errors.As(err, &copyTimeout), errors.As(err, &pasteTimeout):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "cancelled"
	default:
		return "error"
	}
}

func (p *Pipeline) fail(id, stage string, err error) error {
	L_error("dictation: utterance failed", "id", id, "stage", stage, "error", err)
	p.metrics.RecordOutcome("dictation", "failed-"+stage)
	p.publish(bus.TopicFailed, bus.Failed{ID: id, Stage: stage, Err: err})
	return fmt.Errorf("dictation %s: %w", stage, err)
}

func (p *Pipeline) publish(topic string, data any) {
	if p.bus != nil {
		p.bus.PublishWithSource(topic, data, eventSource)
	}
}
