package stt

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrHandleFreed is returned when transcribing with a handle that was freed.
	ErrHandleFreed = errors.New("model has been freed")

	// ErrEmptyTranscript marks a backend that answered but recognized nothing.
	ErrEmptyTranscript = errors.New("empty transcript")

	// ErrBackendTimeout marks an attempt abandoned at its deadline.
	ErrBackendTimeout = errors.New("backend timed out")
)

// ModelLoadError reports a model that could not be made resident.
type ModelLoadError struct {
	ModelID string
	Path    string
	Err     error
}

func (e *ModelLoadError) Error() string {
	return fmt.Sprintf("load model %s (%s): %v", e.ModelID, e.Path, e.Err)
}

func (e *ModelLoadError) Unwrap() error { return e.Err }

// TranscriptionError reports a local engine transcription failure.
type TranscriptionError struct {
	ModelID string
	Err     error
}

func (e *TranscriptionError) Error() string {
	return fmt.Sprintf("transcribe with %s: %v", e.ModelID, e.Err)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }

// BackendError is one failed attempt inside the fallback chain.
type BackendError struct {
	Backend string
	Elapsed time.Duration
	Err     error
}

func (e *BackendError) Error() string {
	return fmt.Sprintf("%s: %v", e.Backend, e.Err)
}

func (e *BackendError) Unwrap() error { return e.Err }

// Timeout reports whether the attempt was abandoned at its deadline.
func (e *BackendError) Timeout() bool {
	return errors.Is(e.Err, ErrBackendTimeout)
}

// AllBackendsFailedError is returned when every backend in the chain failed.
// Failures are in chain order.
type AllBackendsFailedError struct {
	Failures []*BackendError
}

func (e *AllBackendsFailedError) Error() string {
	parts := make([]string, len(e.Failures))
	for i, f := range e.Failures {
		parts[i] = f.Error()
	}
	return fmt.Sprintf("all %d transcription backends failed: %s", len(e.Failures), strings.Join(parts, "; "))
}

// Unwrap exposes the individual failures to errors.Is / errors.As.
func (e *AllBackendsFailedError) Unwrap() []error {
	errs := make([]error, len(e.Failures))
	for i, f := range e.Failures {
		errs[i] = f
	}
	return errs
}
