package paste

import (
	"github.com/atotto/clipboard"
)

// Clipboard reads and writes the system clipboard.
type Clipboard interface {
	ReadAll() (string, error)
	WriteAll(text string) error
}

// SystemClipboard is the OS clipboard.
type SystemClipboard struct{}

func (SystemClipboard) ReadAll() (string, error) { return clipboard.ReadAll() }

func (SystemClipboard) WriteAll(text string) error { return clipboard.WriteAll(text) }

// Supported reports whether a clipboard utility was found for this OS.
func (SystemClipboard) Supported() bool { return !clipboard.Unsupported }
