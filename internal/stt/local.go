package stt

import (
	"context"
)

// LocalBackend transcribes with the model kept resident by a ModelCache.
// It is the offline-capable last resort in the chain.
type LocalBackend struct {
	cache   *ModelCache
	modelID string
	path    string
	useGPU  bool
}

// NewLocalBackend creates a backend for one model file.
func NewLocalBackend(cache *ModelCache, modelID, path string, useGPU bool) *LocalBackend {
	return &LocalBackend{cache: cache, modelID: modelID, path: path, useGPU: useGPU}
}

// Warm loads the model ahead of the first request.
func (l *LocalBackend) Warm() error {
	_, err := l.cache.Load(l.modelID, l.path, l.useGPU)
	return err
}

// Transcribe runs the resident model. The engine call itself cannot be
// interrupted; when ctx expires the chain abandons the call and the handle
// lock is released when the engine returns.
func (l *LocalBackend) Transcribe(ctx context.Context, req *Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	h, err := l.cache.Load(l.modelID, l.path, l.useGPU)
	if err != nil {
		return "", err
	}
	res, err := l.cache.Transcribe(h, req)
	if err != nil {
		return "", err
	}
	return res.Text, nil
}

// Name returns the backend name.
func (l *LocalBackend) Name() string {
	return "local"
}
