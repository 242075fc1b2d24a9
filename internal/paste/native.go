package paste

import (
	"context"
	"runtime"
	"sync"
	"time"

	"github.com/micmonay/keybd_event"
	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

// NativeResult is the outcome of a native paste attempt that did not error.
type NativeResult int

const (
	NativeUnavailable NativeResult = iota
	NativePasted
)

func (r NativeResult) String() string {
	if r == NativePasted {
		return "pasted"
	}
	return "unavailable"
}

// NativePaster pastes with OS-level synthetic key events. It returns
// NativeUnavailable when key injection cannot be used on this system, and
// ErrNoFocusedInput when it can but nothing editable has focus.
type NativePaster interface {
	Paste(ctx context.Context, text string) (NativeResult, error)
}

// FocusCheck reports whether an editable field currently has focus.
type FocusCheck func(ctx context.Context) (bool, error)

const (
	// MaxRestoreDelay bounds how long the native path holds the pasted text
	// on the clipboard before restoring the previous contents.
	MaxRestoreDelay = 1500 * time.Millisecond

	defaultSettleDelay  = 80 * time.Millisecond
	defaultRestoreDelay = 300 * time.Millisecond

	// uinput devices need time to register before the first event
	linuxDeviceDelay = 2 * time.Second
)

// keySender sends the platform paste shortcut to the focused window.
type keySender interface {
	// Ready reports whether key injection can be used on this system.
	Ready() error
	SendPaste() error
}

// keybdSender drives keybd_event. The device is created on first use.
type keybdSender struct {
	once    sync.Once
	mu      sync.Mutex
	kb      *keybd_event.KeyBonding
	initErr error
}

func (s *keybdSender) keyboard() (*keybd_event.KeyBonding, error) {
	s.once.Do(func() {
		kb, err := keybd_event.NewKeyBonding()
		if err != nil {
			s.initErr = err
			return
		}
		if runtime.GOOS == "linux" {
			time.Sleep(linuxDeviceDelay)
		}
		s.kb = &kb
	})
	return s.kb, s.initErr
}

func (s *keybdSender) Ready() error {
	_, err := s.keyboard()
	return err
}

func (s *keybdSender) SendPaste() error {
	kb, err := s.keyboard()
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kb.Clear()
	if runtime.GOOS == "darwin" {
		kb.HasSuper(true)
	} else {
		kb.HasCTRL(true)
	}
	kb.SetKeys(keybd_event.VK_V)
	return kb.Launching()
}

// KeyboardPaster puts text on the clipboard, sends Ctrl+V (Cmd+V on macOS)
// through keybd_event and restores the previous clipboard shortly after.
type KeyboardPaster struct {
	clipboard    Clipboard
	focus        FocusCheck
	keys         keySender
	settleDelay  time.Duration
	restoreDelay time.Duration
	afterFunc    func(d time.Duration, f func())
}

// NewKeyboardPaster creates a native paster. focus may be nil, in which case
// focus is not checked.
func NewKeyboardPaster(cb Clipboard, focus FocusCheck, restoreDelay time.Duration) *KeyboardPaster {
	return newKeyboardPaster(cb, focus, &keybdSender{}, restoreDelay)
}

func newKeyboardPaster(cb Clipboard, focus FocusCheck, keys keySender, restoreDelay time.Duration) *KeyboardPaster {
	if restoreDelay <= 0 {
		restoreDelay = defaultRestoreDelay
	}
	if restoreDelay > MaxRestoreDelay {
		restoreDelay = MaxRestoreDelay
	}
	return &KeyboardPaster{
		clipboard:    cb,
		focus:        focus,
		keys:         keys,
		settleDelay:  defaultSettleDelay,
		restoreDelay: restoreDelay,
		afterFunc:    func(d time.Duration, f func()) { time.AfterFunc(d, f) },
	}
}

// Paste implements NativePaster.
func (k *KeyboardPaster) Paste(ctx context.Context, text string) (NativeResult, error) {
	if err := k.keys.Ready(); err != nil {
		L_debug("paste: native key injection unavailable", "error", err)
		return NativeUnavailable, nil
	}

	if k.focus != nil {
		ok, err := k.focus(ctx)
		switch {
		case err != nil:
			L_debug("paste: focus check failed, assuming focused", "error", err)
		case !ok:
			return NativeUnavailable, ErrNoFocusedInput
		}
	}

	prev, prevErr := k.clipboard.ReadAll()
	if err := k.clipboard.WriteAll(text); err != nil {
		L_debug("paste: clipboard write failed, native path unavailable", "error", err)
		return NativeUnavailable, nil
	}

	select {
	case <-time.After(k.settleDelay):
	case <-ctx.Done():
		k.restore(prev, prevErr)
		return NativeUnavailable, ctx.Err()
	}

	if err := k.keys.SendPaste(); err != nil {
		L_debug("paste: key injection failed", "error", err)
		k.restore(prev, prevErr)
		return NativeUnavailable, nil
	}

	k.restore(prev, prevErr)
	return NativePasted, nil
}

// restore puts the previous clipboard contents back after restoreDelay.
func (k *KeyboardPaster) restore(prev string, prevErr error) {
	if prevErr != nil {
		return
	}
	k.afterFunc(k.restoreDelay, func() {
		if err := k.clipboard.WriteAll(prev); err != nil {
			L_debug("paste: clipboard restore failed", "error", err)
		}
	})
}
