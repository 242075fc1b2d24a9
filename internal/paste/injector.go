package paste

import (
	"context"
	"fmt"
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

// ReconcileDelay is how long after a paste the final text is written to the
// clipboard. It is longer than MaxRestoreDelay so the dictated text is what
// clipboard history tools see last.
const ReconcileDelay = 2000 * time.Millisecond

// Outcome tells the caller what happened to the text.
type Outcome int

const (
	// OutcomeFailed: the text was neither pasted nor copied.
	OutcomeFailed Outcome = iota
	// OutcomePasted: the text was pasted into the focused application.
	OutcomePasted
	// OutcomeCopiedOnly: pasting failed; the text is on the clipboard.
	OutcomeCopiedOnly
)

func (o Outcome) String() string {
	switch o {
	case OutcomePasted:
		return "pasted"
	case OutcomeCopiedOnly:
		return "copied-only"
	default:
		return "failed"
	}
}

// Method names the path that completed a paste.
const (
	MethodNative = "native"
	MethodScript = "script"
	MethodNone   = "none"
)

// ScriptPaster is the scripted fallback: copy, then send the paste keystroke.
type ScriptPaster interface {
	Copy(ctx context.Context, text string) error
	Paste(ctx context.Context) error
}

// Result describes one PasteFast call.
type Result struct {
	Outcome Outcome
	Method  string // MethodNative, MethodScript or MethodNone
	Text    string // text after formatting
}

// Injector pastes text into the focused application.
type Injector struct {
	session   *Session
	formatter *Formatter
	native    NativePaster
	script    ScriptPaster
	clipboard Clipboard

	reconcileDelay time.Duration
	afterFunc      func(d time.Duration, f func())
	now            func() time.Time
}

// NewInjector wires an injector. native and script may be nil when that path
// is not available.
func NewInjector(session *Session, native NativePaster, script ScriptPaster, cb Clipboard) *Injector {
	return &Injector{
		session:        session,
		formatter:      NewFormatter(session),
		native:         native,
		script:         script,
		clipboard:      cb,
		reconcileDelay: ReconcileDelay,
		afterFunc:      func(d time.Duration, f func()) { time.AfterFunc(d, f) },
		now:            time.Now,
	}
}

// Session returns the paste session the injector updates.
func (i *Injector) Session() *Session {
	return i.session
}

// PasteFast formats text and pastes it. The returned error is the paste
// failure; the Outcome says whether the text at least reached the clipboard.
func (i *Injector) PasteFast(ctx context.Context, text string) (Outcome, error) {
	res, err := i.Paste(ctx, text)
	return res.Outcome, err
}

// Paste is PasteFast with the full result.
func (i *Injector) Paste(ctx context.Context, text string) (*Result, error) {
	final := i.formatter.Format(text)
	res := &Result{Method: MethodNone, Text: final}

	method, err := i.inject(ctx, final)

	// runs on every path, after any clipboard restore by the native paster
	i.afterFunc(i.reconcileDelay, func() {
		if err := i.clipboard.WriteAll(final); err != nil {
			L_warn("paste: deferred clipboard write failed", "error", err)
			return
		}
		L_trace("paste: clipboard reconciled", "length", len(final))
	})

	if err == nil {
		i.session.Record(final, i.now())
		res.Outcome = OutcomePasted
		res.Method = method
		L_debug("paste: pasted", "method", method, "length", len(final))
		return res, nil
	}

	L_warn("paste: paste failed, copying to clipboard", "error", err)
	if cerr := i.clipboard.WriteAll(final); cerr != nil {
		res.Outcome = OutcomeFailed
		return res, fmt.Errorf("%w (clipboard backup also failed: %v)", err, cerr)
	}
	res.Outcome = OutcomeCopiedOnly
	return res, err
}

// inject tries native paste, then the scripted fallback when native paste is
// unavailable.
func (i *Injector) inject(ctx context.Context, text string) (string, error) {
	if i.native != nil {
		r, err := i.native.Paste(ctx, text)
		if err != nil {
			return MethodNone, err
		}
		if r == NativePasted {
			return MethodNative, nil
		}
		L_debug("paste: native paste unavailable, using script fallback")
	}

	if i.script == nil {
		return MethodNone, ErrNoPasteMethod
	}
	if err := i.script.Copy(ctx, text); err != nil {
		return MethodNone, err
	}
	if err := i.script.Paste(ctx); err != nil {
		return MethodNone, err
	}
	return MethodScript, nil
}
