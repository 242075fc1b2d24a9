package stt

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

// DefaultBackendTimeout bounds a backend attempt when its descriptor sets none.
const DefaultBackendTimeout = 10 * time.Second

// Descriptor places a backend in the chain with its own deadline.
type Descriptor struct {
	Backend Backend
	Timeout time.Duration
}

// Name returns the backend name.
func (d Descriptor) Name() string { return d.Backend.Name() }

// Attempt is the typed outcome of one backend call.
type Attempt struct {
	Backend string
	Text    string
	Elapsed time.Duration
	Err     *BackendError // nil on success
}

// OK reports whether the attempt produced text.
func (a Attempt) OK() bool { return a.Err == nil }

// ChainResult is the successful outcome of a chain run.
type ChainResult struct {
	Text     string
	Backend  string
	Attempts []Attempt // every attempt made, the last one successful
}

// Chain tries backends strictly in order until one returns non-empty text.
type Chain struct {
	backends []Descriptor
}

// NewChain builds a chain. Backend names must be unique so a request can
// never reach the same backend twice.
func NewChain(descs ...Descriptor) (*Chain, error) {
	if len(descs) == 0 {
		return nil, errors.New("stt: chain needs at least one backend")
	}

	seen := make(map[string]bool, len(descs))
	out := make([]Descriptor, 0, len(descs))
	for i, d := range descs {
		if d.Backend == nil {
			return nil, fmt.Errorf("stt: chain backend %d is nil", i)
		}
		name := d.Backend.Name()
		if seen[name] {
			return nil, fmt.Errorf("stt: backend %q appears twice in chain", name)
		}
		seen[name] = true
		if d.Timeout <= 0 {
			d.Timeout = DefaultBackendTimeout
		}
		out = append(out, d)
	}
	return &Chain{backends: out}, nil
}

// Backends returns the backend names in chain order.
func (c *Chain) Backends() []string {
	names := make([]string, len(c.backends))
	for i, d := range c.backends {
		names[i] = d.Name()
	}
	return names
}

// Transcribe runs the chain. A backend failure is recorded and the next
// backend tried; only exhaustion is returned, as *AllBackendsFailedError.
// Cancelling ctx stops the chain with ctx's error.
func (c *Chain) Transcribe(ctx context.Context, req *Request) (*ChainResult, error) {
	attempts := make([]Attempt, 0, len(c.backends))

	for _, d := range c.backends {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("stt: chain cancelled before %s: %w", d.Name(), err)
		}

		a := c.attempt(ctx, d, req.clone())
		attempts = append(attempts, a)

		if a.OK() {
			L_info("stt: transcribed", "backend", a.Backend, "elapsed", a.Elapsed.Round(time.Millisecond), "length", len(a.Text))
			return &ChainResult{Text: a.Text, Backend: a.Backend, Attempts: attempts}, nil
		}

		if ctx.Err() != nil {
			return nil, fmt.Errorf("stt: chain cancelled during %s: %w", d.Name(), ctx.Err())
		}
		L_warn("stt: backend failed, trying next", "backend", a.Backend, "error", a.Err.Err, "elapsed", a.Elapsed.Round(time.Millisecond))
	}

	failures := make([]*BackendError, len(attempts))
	for i, a := range attempts {
		failures[i] = a.Err
	}
	return nil, &AllBackendsFailedError{Failures: failures}
}

type callResult struct {
	text string
	err  error
}

// attempt calls one backend under its deadline. When the deadline passes the
// call is abandoned: its goroutine finishes on its own into a buffered channel.
func (c *Chain) attempt(parent context.Context, d Descriptor, req *Request) Attempt {
	name := d.Name()
	ctx, cancel := context.WithTimeout(parent, d.Timeout)
	defer cancel()

	done := make(chan callResult, 1)
	start := time.Now()

	go func() {
		defer func() {
			if r := recover(); r != nil {
				L_error("stt: backend panicked", "backend", name, "panic", r)
				done <- callResult{err: fmt.Errorf("backend panic: %v", r)}
			}
		}()
		text, err := d.Backend.Transcribe(ctx, req)
		done <- callResult{text: text, err: err}
	}()

	fail := func(err error) Attempt {
		elapsed := time.Since(start)
		return Attempt{Backend: name, Elapsed: elapsed, Err: &BackendError{Backend: name, Elapsed: elapsed, Err: err}}
	}

	select {
	case res := <-done:
		if res.err != nil {
			if errors.Is(res.err, context.DeadlineExceeded) && parent.Err() == nil {
				return fail(fmt.Errorf("%w after %v: %v", ErrBackendTimeout, d.Timeout, res.err))
			}
			return fail(res.err)
		}
		text := strings.TrimSpace(res.text)
		if text == "" {
			return fail(ErrEmptyTranscript)
		}
		return Attempt{Backend: name, Text: text, Elapsed: time.Since(start)}

	case <-ctx.Done():
		if parent.Err() != nil {
			return fail(parent.Err())
		}
		L_debug("stt: abandoning backend call", "backend", name, "timeout", d.Timeout)
		return fail(fmt.Errorf("%w after %v", ErrBackendTimeout, d.Timeout))
	}
}
