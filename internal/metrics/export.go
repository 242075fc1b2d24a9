package metrics

import (
	"encoding/json"
	"io"
	"time"
)

// Start begins timing an operation. Call the returned func to record it.
func (m *Manager) Start(path string) func() {
	start := time.Now()
	return func() {
		m.RecordDuration(path, time.Since(start))
	}
}

// WriteJSON writes the current snapshot as indented JSON.
func (m *Manager) WriteJSON(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(m.Snapshot())
}
