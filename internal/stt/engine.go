package stt

// Engine loads native inference contexts. The whispercpp package provides the
// production implementation; tests use fakes.
type Engine interface {
	Load(path string, useGPU bool) (EngineContext, error)
}

// EngineContext is one loaded model. It is not safe for concurrent use; the
// ModelCache serializes all calls.
type EngineContext interface {
	// Transcribe decodes 16 kHz mono samples. Silence yields no segments and no error.
	Transcribe(samples []float32, opts DecodeOptions) ([]Segment, error)
	// Free releases native memory. Called at most once by the cache.
	Free() error
}

// DecodeOptions are per-call engine parameters.
type DecodeOptions struct {
	Language string
	Prompt   string // labeled hint string, see FormatHints
	Threads  int
}
