package stt

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/roelfdiedericks/voxpaste/internal/paths"
)

// WhisperModel describes a known whisper.cpp model file. Fetching models is
// left to the user; the catalog only names files and where to get them.
type WhisperModel struct {
	Name      string // Filename: "ggml-tiny.en.bin"
	Label     string // Display name: "Tiny English"
	Size      string // Human readable: "39 MB"
	SizeBytes int64  // Approximate file size
	URL       string // Where to fetch it
}

// WhisperModels is the catalog of available whisper.cpp models.
// Models from: https://huggingface.co/ggerganov/whisper.cpp
var WhisperModels = []WhisperModel{
	{
		Name:      "ggml-tiny.en.bin",
		Label:     "Tiny English",
		Size:      "39 MB",
		SizeBytes: 39_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.en.bin",
	},
	{
		Name:      "ggml-tiny.bin",
		Label:     "Tiny Multilingual",
		Size:      "39 MB",
		SizeBytes: 39_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-tiny.bin",
	},
	{
		Name:      "ggml-base.en.bin",
		Label:     "Base English",
		Size:      "142 MB",
		SizeBytes: 142_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.en.bin",
	},
	{
		Name:      "ggml-base.bin",
		Label:     "Base Multilingual",
		Size:      "142 MB",
		SizeBytes: 142_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-base.bin",
	},
	{
		Name:      "ggml-small.en.bin",
		Label:     "Small English",
		Size:      "466 MB",
		SizeBytes: 466_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.en.bin",
	},
	{
		Name:      "ggml-small.bin",
		Label:     "Small Multilingual",
		Size:      "466 MB",
		SizeBytes: 466_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-small.bin",
	},
	{
		Name:      "ggml-medium.bin",
		Label:     "Medium Multilingual",
		Size:      "1.5 GB",
		SizeBytes: 1_500_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-medium.bin",
	},
	{
		Name:      "ggml-large-v3.bin",
		Label:     "Large V3 Multilingual",
		Size:      "3.0 GB",
		SizeBytes: 3_000_000_000,
		URL:       "https://huggingface.co/ggerganov/whisper.cpp/resolve/main/ggml-large-v3.bin",
	},
}

// GetModel returns the catalog entry with the given file name, or nil.
func GetModel(name string) *WhisperModel {
	for i := range WhisperModels {
		if WhisperModels[i].Name == name {
			return &WhisperModels[i]
		}
	}
	return nil
}

// ModelPath joins a model file name onto the models directory, expanding ~.
// The name must be a bare file name.
func ModelPath(modelsDir, name string) (string, error) {
	if name == "" || name != filepath.Base(name) || strings.ContainsAny(name, `/\`) {
		return "", fmt.Errorf("invalid model name %q", name)
	}
	dir, err := paths.ExpandTilde(modelsDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

// IsModelPresent checks if a non-empty model file exists in the given directory.
func IsModelPresent(modelsDir, name string) bool {
	path, err := ModelPath(modelsDir, name)
	if err != nil {
		return false
	}
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return !info.IsDir() && info.Size() > 0
}

// ModelStatus pairs a catalog entry with its presence on disk.
type ModelStatus struct {
	WhisperModel
	Present bool
}

// ListModels returns the catalog annotated with which files are present.
func ListModels(modelsDir string) []ModelStatus {
	out := make([]ModelStatus, len(WhisperModels))
	for i, m := range WhisperModels {
		out[i] = ModelStatus{WhisperModel: m, Present: IsModelPresent(modelsDir, m.Name)}
	}
	return out
}
