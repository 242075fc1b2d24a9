// Package stt provides speech-to-text transcription for captured utterances:
// a resident local model cache, cloud backends, and the ordered fallback chain
// that ties them together.
package stt

import (
	"context"
	"strings"
)

// DefaultLanguage is used when a request carries no language hint.
const DefaultLanguage = "en"

// Backend is the interface every transcription provider implements.
type Backend interface {
	// Transcribe returns the recognized text for req. Implementations must
	// honor ctx cancellation; the chain abandons calls whose deadline passes.
	Transcribe(ctx context.Context, req *Request) (string, error)

	// Name returns the backend name (e.g., "groq", "local")
	Name() string
}

// Request is one utterance to transcribe.
type Request struct {
	Samples  []float32 // 16 kHz mono in [-1, 1], for the local engine
	WAV      []byte    // same audio as a WAV container, for uploads
	Language string    // language hint, "" means DefaultLanguage
	Hints    []string  // recognition vocabulary; data, never instructions
}

// LanguageOrDefault returns the request language or DefaultLanguage.
func (r *Request) LanguageOrDefault() string {
	if l := strings.TrimSpace(r.Language); l != "" {
		return l
	}
	return DefaultLanguage
}

// HintPrompt returns the labeled hint string passed to backends that accept a
// free-text prompt. Empty when there are no usable hints.
func (r *Request) HintPrompt() string {
	return FormatHints(r.Hints)
}

// clone returns a copy whose slices cannot be mutated through the original.
// Audio buffers are shared read-only.
func (r *Request) clone() *Request {
	c := *r
	c.Hints = append([]string(nil), r.Hints...)
	return &c
}

// Segment is a time-aligned piece of a local transcription.
type Segment struct {
	Text    string `json:"text"`
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
}

// Result is the output of a local engine transcription.
type Result struct {
	Text     string    `json:"text"`
	Segments []Segment `json:"segments"`
}
