package paste

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	// ErrNoFocusedInput is returned when native paste is available but no
	// editable field has focus. The user has to click into a text field.
	ErrNoFocusedInput = errors.New("no focused input field")

	// ErrNoPasteMethod is returned when neither native nor scripted paste is
	// available on this system.
	ErrNoPasteMethod = errors.New("no paste method available")
)

// CopyTimeoutError is returned when the clipboard copy subprocess overran its
// deadline and was killed.
type CopyTimeoutError struct {
	Command []string
	Timeout time.Duration
}

func (e *CopyTimeoutError) Error() string {
	return fmt.Sprintf("copy command %q timed out after %v", strings.Join(e.Command, " "), e.Timeout)
}

// PasteTimeoutError is returned when the paste keystroke subprocess overran
// its deadline and was killed.
type PasteTimeoutError struct {
	Command []string
	Timeout time.Duration
}

func (e *PasteTimeoutError) Error() string {
	return fmt.Sprintf("paste command %q timed out after %v", strings.Join(e.Command, " "), e.Timeout)
}

// CommandError is a scripted step that failed for a reason other than timeout.
type CommandError struct {
	Step    string // "copy" or "paste"
	Command []string
	Stderr  string
	Err     error
}

func (e *CommandError) Error() string {
	msg := fmt.Sprintf("%s command %q failed: %v", e.Step, strings.Join(e.Command, " "), e.Err)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *CommandError) Unwrap() error { return e.Err }
