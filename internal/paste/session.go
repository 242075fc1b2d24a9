// Package paste commits dictated text into the focused application: it
// formats text against the running paste session, injects it natively or via
// OS scripting, and leaves the final text on the clipboard.
package paste

import (
	"sync"
	"time"
)

// SessionWindow is how long after a paste the next one continues the same
// utterance.
const SessionWindow = 10 * time.Second

// Session records the last successful paste. One per process; it is written
// only after a confirmed paste and never rolled back.
type Session struct {
	mu        sync.Mutex
	lastPaste time.Time
	lastText  string
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{}
}

// Snapshot is a point-in-time copy of the session.
type Snapshot struct {
	LastPaste time.Time
	LastText  string
}

// Snapshot returns the current session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{LastPaste: s.lastPaste, LastText: s.lastText}
}

// Record stores a confirmed paste.
func (s *Session) Record(text string, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastPaste = at
	s.lastText = text
}

// Live reports whether now falls inside the session window. A clock that
// appears to run backwards is treated as a new session.
func (s Snapshot) Live(now time.Time) bool {
	if s.LastPaste.IsZero() {
		return false
	}
	elapsed := now.Sub(s.LastPaste)
	return elapsed >= 0 && elapsed < SessionWindow
}
