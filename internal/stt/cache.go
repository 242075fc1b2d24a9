package stt

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
)

const defaultThreads = 4

// ModelState is the lifecycle state of a ModelHandle.
type ModelState int

const (
	StateLoaded ModelState = iota
	StateFreed
)

func (s ModelState) String() string {
	if s == StateLoaded {
		return "loaded"
	}
	return "freed"
}

// ModelHandle owns one loaded engine context. Only the ModelCache that
// created it may transcribe with it or free it.
type ModelHandle struct {
	modelID string
	path    string
	useGPU  bool

	mu    sync.Mutex // held for the duration of one transcribe or free
	ctx   EngineContext
	freed atomic.Bool
}

// ModelID returns the model identifier the handle was loaded with.
func (h *ModelHandle) ModelID() string { return h.modelID }

// Path returns the model file path.
func (h *ModelHandle) Path() string { return h.path }

// State returns whether the handle is still loaded.
func (h *ModelHandle) State() ModelState {
	if h.freed.Load() {
		return StateFreed
	}
	return StateLoaded
}

// HandleInfo describes a handle for status output.
type HandleInfo struct {
	Loaded  bool   `json:"loaded"`
	ModelID string `json:"model"`
	Path    string `json:"path"`
}

// Info reports the handle's model and whether it is loaded.
func (h *ModelHandle) Info() HandleInfo {
	return HandleInfo{Loaded: h.State() == StateLoaded, ModelID: h.modelID, Path: h.path}
}

// free releases the context once. Later calls are no-ops.
func (h *ModelHandle) free() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.freed.Load() {
		return nil
	}
	var err error
	if h.ctx != nil {
		err = h.ctx.Free()
		h.ctx = nil
	}
	h.freed.Store(true)
	return err
}

// ModelCache keeps a single local model resident across requests.
// Loading a different model frees the resident one first: local models are
// too large to keep several in memory.
type ModelCache struct {
	engine  Engine
	threads int

	mu       sync.Mutex // guards resident; never held across network I/O
	resident *ModelHandle
}

// NewModelCache creates an empty cache backed by engine.
// threads <= 0 selects the default of 4 decoder threads.
func NewModelCache(engine Engine, threads int) *ModelCache {
	if threads <= 0 {
		threads = defaultThreads
	}
	return &ModelCache{engine: engine, threads: threads}
}

// Load returns a loaded handle for the model, reusing the resident handle when
// it is the same model and freeing it first when it is not.
func (c *ModelCache) Load(modelID, path string, useGPU bool) (*ModelHandle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if r := c.resident; r != nil && r.State() == StateLoaded && r.modelID == modelID && r.path == path {
		return r, nil
	}

	if err := checkModelFile(path); err != nil {
		return nil, &ModelLoadError{ModelID: modelID, Path: path, Err: err}
	}

	if r := c.resident; r != nil {
		L_info("stt: evicting resident model", "model", r.modelID, "next", modelID)
		if err := r.free(); err != nil {
			L_warn("stt: failed to free resident model", "model", r.modelID, "error", err)
		}
		c.resident = nil
	}

	start := time.Now()
	L_info("stt: loading model", "model", modelID, "path", path, "gpu", useGPU)
	ctx, err := c.engine.Load(path, useGPU)
	if err != nil {
		return nil, &ModelLoadError{ModelID: modelID, Path: path, Err: err}
	}
	if ctx == nil {
		return nil, &ModelLoadError{ModelID: modelID, Path: path, Err: errors.New("engine returned no context")}
	}
	L_elapsed(start, "stt: model loaded", "model", modelID)

	h := &ModelHandle{modelID: modelID, path: path, useGPU: useGPU, ctx: ctx}
	c.resident = h
	return h, nil
}

// Resident returns the currently loaded handle, or nil.
func (c *ModelCache) Resident() *ModelHandle {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resident != nil && c.resident.State() == StateLoaded {
		return c.resident
	}
	return nil
}

// Transcribe runs the engine on req. Concurrent calls on one handle run one at
// a time in the order they acquire the handle lock.
func (c *ModelCache) Transcribe(h *ModelHandle, req *Request) (*Result, error) {
	if h == nil {
		return nil, &TranscriptionError{Err: errors.New("nil model handle")}
	}
	if h.freed.Load() {
		return nil, &TranscriptionError{ModelID: h.modelID, Err: ErrHandleFreed}
	}

	opts := DecodeOptions{
		Language: req.LanguageOrDefault(),
		Prompt:   req.HintPrompt(),
		Threads:  c.threads,
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	// freed while we waited for the lock
	if h.freed.Load() || h.ctx == nil {
		return nil, &TranscriptionError{ModelID: h.modelID, Err: ErrHandleFreed}
	}

	start := time.Now()
	segments, err := h.ctx.Transcribe(req.Samples, opts)
	if err != nil {
		return nil, &TranscriptionError{ModelID: h.modelID, Err: err}
	}

	result := &Result{Segments: make([]Segment, 0, len(segments))}
	var text strings.Builder
	for _, seg := range segments {
		if isNonSpeech(seg.Text) {
			continue
		}
		result.Segments = append(result.Segments, seg)
		text.WriteString(seg.Text)
	}
	result.Text = strings.TrimSpace(text.String())

	L_elapsed(start, "stt: local transcription complete",
		"model", h.modelID, "segments", len(result.Segments), "length", len(result.Text))
	return result, nil
}

// Free releases the handle. Freeing an already-freed handle is a no-op.
func (c *ModelCache) Free(h *ModelHandle) error {
	if h == nil {
		return nil
	}
	c.mu.Lock()
	if c.resident == h {
		c.resident = nil
	}
	c.mu.Unlock()

	if err := h.free(); err != nil {
		return fmt.Errorf("free model %s: %w", h.modelID, err)
	}
	return nil
}

// Close frees the resident model, if any.
func (c *ModelCache) Close() error {
	c.mu.Lock()
	h := c.resident
	c.resident = nil
	c.mu.Unlock()

	if h == nil {
		return nil
	}
	L_debug("stt: closing resident model", "model", h.modelID)
	return h.free()
}

func checkModelFile(path string) error {
	if path == "" {
		return errors.New("model path is empty")
	}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	return f.Close()
}

// isNonSpeech matches the bracketed annotations whisper emits for silence or
// noise, e.g. "[BLANK_AUDIO]" or " (wind blowing)".
func isNonSpeech(text string) bool {
	t := strings.TrimSpace(text)
	if t == "" {
		return true
	}
	if len(t) < 2 {
		return false
	}
	first, last := t[0], t[len(t)-1]
	return (first == '[' && last == ']') || (first == '(' && last == ')')
}
