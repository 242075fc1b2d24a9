package stt

import (
	"errors"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeContext struct {
	delay    time.Duration
	segments []Segment
	err      error

	frees     atomic.Int32
	calls     atomic.Int32
	active    atomic.Int32
	maxActive atomic.Int32

	mu       sync.Mutex
	lastOpts DecodeOptions
}

func (f *fakeContext) Transcribe(samples []float32, opts DecodeOptions) ([]Segment, error) {
	n := f.active.Add(1)
	defer f.active.Add(-1)
	for {
		m := f.maxActive.Load()
		if n <= m || f.maxActive.CompareAndSwap(m, n) {
			break
		}
	}
	f.calls.Add(1)

	f.mu.Lock()
	f.lastOpts = opts
	f.mu.Unlock()

	time.Sleep(f.delay)
	return f.segments, f.err
}

func (f *fakeContext) Free() error {
	f.frees.Add(1)
	return nil
}

type fakeEngine struct {
	mu       sync.Mutex
	err      error
	newCtx   func() *fakeContext
	contexts []*fakeContext
}

func (e *fakeEngine) Load(path string, useGPU bool) (EngineContext, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	ctx := &fakeContext{segments: []Segment{{Text: " hello", StartMs: 0, EndMs: 800}}}
	if e.newCtx != nil {
		ctx = e.newCtx()
	}
	e.contexts = append(e.contexts, ctx)
	return ctx, nil
}

func (e *fakeEngine) loads() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.contexts)
}

func writeModel(t *testing.T, name string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte("ggml"), 0600); err != nil {
		t.Fatalf("write model: %v", err)
	}
	return path
}

func TestCacheLoadReusesResident(t *testing.T) {
	engine := &fakeEngine{}
	cache := NewModelCache(engine, 0)
	path := writeModel(t, "ggml-base.en.bin")

	h1, err := cache.Load("base.en", path, false)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	h2, err := cache.Load("base.en", path, false)
	if err != nil {
		t.Fatalf("second Load failed: %v", err)
	}
	if h1 != h2 {
		t.Error("expected the resident handle to be reused")
	}
	if engine.loads() != 1 {
		t.Errorf("engine loads = %d, want 1", engine.loads())
	}
	if cache.Resident() != h1 {
		t.Error("Resident() should return the loaded handle")
	}
	info := h1.Info()
	if !info.Loaded || info.ModelID != "base.en" || info.Path != path {
		t.Errorf("unexpected info: %+v", info)
	}
}

func TestCacheSingleResident(t *testing.T) {
	engine := &fakeEngine{}
	cache := NewModelCache(engine, 0)

	a, err := cache.Load("tiny", writeModel(t, "tiny.bin"), false)
	if err != nil {
		t.Fatalf("Load tiny failed: %v", err)
	}
	b, err := cache.Load("base", writeModel(t, "base.bin"), true)
	if err != nil {
		t.Fatalf("Load base failed: %v", err)
	}

	if a.State() != StateFreed {
		t.Errorf("previous model state = %v, want freed", a.State())
	}
	if b.State() != StateLoaded {
		t.Errorf("new model state = %v, want loaded", b.State())
	}
	if got := engine.contexts[0].frees.Load(); got != 1 {
		t.Errorf("evicted context freed %d times, want 1", got)
	}
	if cache.Resident() != b {
		t.Error("Resident() should be the newest model")
	}

	_, err = cache.Transcribe(a, &Request{})
	var terr *TranscriptionError
	if !errors.As(err, &terr) || !errors.Is(err, ErrHandleFreed) {
		t.Fatalf("transcribe on evicted handle: got %v, want TranscriptionError wrapping ErrHandleFreed", err)
	}
	if engine.contexts[0].calls.Load() != 0 {
		t.Error("engine must not be called for a freed handle")
	}
}

func TestCacheLoadErrors(t *testing.T) {
	dir := t.TempDir()
	empty := filepath.Join(dir, "empty.bin")
	if err := os.WriteFile(empty, nil, 0600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name   string
		path   string
		engine *fakeEngine
	}{
		{"missing file", filepath.Join(dir, "nope.bin"), &fakeEngine{}},
		{"empty path", "", &fakeEngine{}},
		{"directory", dir, &fakeEngine{}},
		{"empty file", empty, &fakeEngine{}},
		{"engine rejects", writeModel(t, "bad.bin"), &fakeEngine{err: errors.New("invalid model data")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := NewModelCache(tt.engine, 0)
			h, err := cache.Load("m", tt.path, false)
			if h != nil {
				t.Error("expected nil handle")
			}
			var lerr *ModelLoadError
			if !errors.As(err, &lerr) {
				t.Fatalf("got %v, want *ModelLoadError", err)
			}
			if lerr.Path != tt.path {
				t.Errorf("error path = %q, want %q", lerr.Path, tt.path)
			}
			if cache.Resident() != nil {
				t.Error("failed load must not leave a resident model")
			}
		})
	}
}

func TestCacheFailedLoadKeepsResidentWhenFileMissing(t *testing.T) {
	cache := NewModelCache(&fakeEngine{}, 0)
	h, err := cache.Load("tiny", writeModel(t, "tiny.bin"), false)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := cache.Load("base", filepath.Join(t.TempDir(), "missing.bin"), false); err == nil {
		t.Fatal("expected load error")
	}
	if h.State() != StateLoaded || cache.Resident() != h {
		t.Error("a missing file must not evict the resident model")
	}
}

func TestCacheTranscribe(t *testing.T) {
	engine := &fakeEngine{newCtx: func() *fakeContext {
		return &fakeContext{segments: []Segment{
			{Text: " Hello", StartMs: 0, EndMs: 500},
			{Text: " [BLANK_AUDIO]", StartMs: 500, EndMs: 900},
			{Text: " world.", StartMs: 900, EndMs: 1400},
		}}
	}}
	cache := NewModelCache(engine, 6)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}

	res, err := cache.Transcribe(h, &Request{Samples: make([]float32, 100), Hints: []string{"Kubernetes"}})
	if err != nil {
		t.Fatalf("Transcribe failed: %v", err)
	}
	if res.Text != "Hello world." {
		t.Errorf("text = %q, want %q", res.Text, "Hello world.")
	}
	if len(res.Segments) != 2 {
		t.Fatalf("segments = %d, want 2", len(res.Segments))
	}
	if res.Segments[1].StartMs != 900 || res.Segments[1].EndMs != 1400 {
		t.Errorf("unexpected segment timing: %+v", res.Segments[1])
	}

	opts := engine.contexts[0].lastOpts
	if opts.Language != "en" {
		t.Errorf("language = %q, want default en", opts.Language)
	}
	if opts.Threads != 6 {
		t.Errorf("threads = %d, want 6", opts.Threads)
	}
	if opts.Prompt != "This audio may contain these terms: Kubernetes." {
		t.Errorf("prompt = %q", opts.Prompt)
	}
}

func TestCacheTranscribeSilence(t *testing.T) {
	engine := &fakeEngine{newCtx: func() *fakeContext { return &fakeContext{} }}
	cache := NewModelCache(engine, 0)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}
	res, err := cache.Transcribe(h, &Request{Samples: make([]float32, 17600)})
	if err != nil {
		t.Fatalf("silence must not be an error: %v", err)
	}
	if res.Text != "" || len(res.Segments) != 0 {
		t.Errorf("expected empty result, got %+v", res)
	}
}

func TestCacheTranscribeEngineFailure(t *testing.T) {
	engine := &fakeEngine{newCtx: func() *fakeContext { return &fakeContext{err: errors.New("whisper_full failed")} }}
	cache := NewModelCache(engine, 0)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}
	_, err = cache.Transcribe(h, &Request{})
	var terr *TranscriptionError
	if !errors.As(err, &terr) {
		t.Fatalf("got %v, want *TranscriptionError", err)
	}
	if terr.ModelID != "base" {
		t.Errorf("model id = %q, want base", terr.ModelID)
	}
}

func TestCacheSerializesTranscriptions(t *testing.T) {
	const (
		n     = 4
		delay = 40 * time.Millisecond
	)
	engine := &fakeEngine{newCtx: func() *fakeContext {
		return &fakeContext{delay: delay, segments: []Segment{{Text: "x"}}}
	}}
	cache := NewModelCache(engine, 0)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	start := time.Now()
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := cache.Transcribe(h, &Request{}); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	elapsed := time.Since(start)
	close(errs)

	for err := range errs {
		t.Errorf("Transcribe failed: %v", err)
	}
	ctx := engine.contexts[0]
	if got := ctx.maxActive.Load(); got != 1 {
		t.Errorf("max concurrent engine calls = %d, want 1", got)
	}
	if got := ctx.calls.Load(); got != n {
		t.Errorf("engine calls = %d, want %d", got, n)
	}
	if elapsed < n*delay {
		t.Errorf("elapsed %v < %v, calls overlapped", elapsed, n*delay)
	}
}

func TestCacheFreeIdempotent(t *testing.T) {
	engine := &fakeEngine{}
	cache := NewModelCache(engine, 0)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}

	if err := cache.Free(h); err != nil {
		t.Fatalf("first Free failed: %v", err)
	}
	if err := cache.Free(h); err != nil {
		t.Fatalf("second Free failed: %v", err)
	}
	if got := engine.contexts[0].frees.Load(); got != 1 {
		t.Errorf("native context freed %d times, want 1", got)
	}
	if h.State() != StateFreed {
		t.Errorf("state = %v, want freed", h.State())
	}
	if cache.Resident() != nil {
		t.Error("freed handle must not stay resident")
	}
	if err := cache.Free(nil); err != nil {
		t.Errorf("Free(nil) = %v, want nil", err)
	}
}

func TestCacheFreeWaitsForInFlightTranscription(t *testing.T) {
	engine := &fakeEngine{newCtx: func() *fakeContext {
		return &fakeContext{delay: 50 * time.Millisecond, segments: []Segment{{Text: "ok"}}}
	}}
	cache := NewModelCache(engine, 0)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := cache.Transcribe(h, &Request{})
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)

	if err := cache.Free(h); err != nil {
		t.Fatalf("Free failed: %v", err)
	}
	if err := <-done; err != nil {
		t.Errorf("in-flight transcription failed: %v", err)
	}
	if got := engine.contexts[0].frees.Load(); got != 1 {
		t.Errorf("frees = %d, want 1", got)
	}
}

func TestCacheClose(t *testing.T) {
	engine := &fakeEngine{}
	cache := NewModelCache(engine, 0)
	h, err := cache.Load("base", writeModel(t, "base.bin"), false)
	if err != nil {
		t.Fatal(err)
	}
	if err := cache.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if h.State() != StateFreed {
		t.Error("Close must free the resident model")
	}
	if err := cache.Close(); err != nil {
		t.Errorf("second Close failed: %v", err)
	}
}
