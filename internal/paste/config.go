package paste

import (
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

// Config holds paste configuration.
type Config struct {
	Native         bool         `json:"native"`         // try keybd_event key injection first
	RestoreDelayMs int          `json:"restoreDelayMs"` // native clipboard restore delay, max 1500
	Script         ScriptConfig `json:"script"`         // fallback commands, OS defaults when empty
}

// DefaultConfig returns the default paste configuration.
func DefaultConfig() Config {
	return Config{
		Native:         true,
		RestoreDelayMs: int(defaultRestoreDelay / time.Millisecond),
	}
}

// New builds an injector from config using the system clipboard.
func New(cfg Config, session *Session) *Injector {
	cb := SystemClipboard{}
	if !cb.Supported() {
		L_warn("paste: no clipboard utility found, clipboard backup will fail")
	}

	var native NativePaster
	if cfg.Native {
		native = NewKeyboardPaster(cb, nil, time.Duration(cfg.RestoreDelayMs)*time.Millisecond)
	}

	script := NewScript(cfg.Script)
	if !script.Available() {
		L_debug("paste: script fallback commands not installed", "copy", script.copyCmd[0], "paste", script.pasteCmd[0])
	}

	return NewInjector(session, native, script, cb)
}
