package stt

import (
	"fmt"
	"strings"
	"time"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/paths"
)

// Config holds STT configuration.
type Config struct {
	Order    []string     `json:"order"`    // backend priority, e.g. ["groq", "openai", "local"]
	Language string       `json:"language"` // language hint passed to every backend
	OpenAI   OpenAIConfig `json:"openai"`   // OpenAI (or compatible) audio API
	Groq     GroqConfig   `json:"groq"`     // Groq Whisper API
	Google   GoogleConfig `json:"google"`   // Google Cloud STT
	Local    LocalConfig  `json:"local"`    // resident whisper.cpp model
}

// OpenAIConfig holds OpenAI transcription configuration.
type OpenAIConfig struct {
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"`   // "whisper-1", "gpt-4o-mini-transcribe"
	BaseURL   string `json:"baseURL"` // optional, for compatible endpoints
	TimeoutMs int    `json:"timeoutMs"`
}

// GroqConfig holds Groq Whisper configuration.
type GroqConfig struct {
	APIKey    string `json:"apiKey"`
	Model     string `json:"model"` // "whisper-large-v3", "whisper-large-v3-turbo", "distil-whisper-large-v3-en"
	BaseURL   string `json:"baseURL"`
	TimeoutMs int    `json:"timeoutMs"`
}

// GoogleConfig holds Google Cloud STT configuration.
type GoogleConfig struct {
	APIKey       string `json:"apiKey"`
	LanguageCode string `json:"languageCode"` // e.g., "en-US", "en-ZA"
	BaseURL      string `json:"baseURL"`
	TimeoutMs    int    `json:"timeoutMs"`
}

// LocalConfig holds the resident whisper.cpp model configuration.
type LocalConfig struct {
	ModelsDir string `json:"modelsDir"` // directory containing ggml-*.bin files
	Model     string `json:"model"`     // file name from the catalog, e.g. "ggml-base.en.bin"
	UseGPU    bool   `json:"useGpu"`
	Threads   int    `json:"threads"`
	Preload   bool   `json:"preload"` // load at startup instead of on first use
	TimeoutMs int    `json:"timeoutMs"`
}

// ModelPath resolves the configured model file.
func (c LocalConfig) ModelPath() (string, error) {
	if c.Model == "" {
		return "", fmt.Errorf("local model not configured")
	}
	dir := c.ModelsDir
	if dir == "" {
		d, err := paths.DefaultModelsDir()
		if err != nil {
			return "", err
		}
		dir = d
	}
	return ModelPath(dir, c.Model)
}

func timeout(ms int) time.Duration {
	if ms <= 0 {
		return DefaultBackendTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// BuildChain creates the configured backends in priority order. Backends that
// are named in Order but not configured are skipped with a warning. The local
// backend is returned separately so callers can warm it; it is nil when the
// chain has no local backend.
func BuildChain(cfg Config, cache *ModelCache) (*Chain, *LocalBackend, error) {
	var descs []Descriptor
	var local *LocalBackend

	for _, name := range cfg.Order {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "openai":
			if cfg.OpenAI.APIKey == "" {
				L_warn("stt: openai in chain but API key not configured, skipping")
				continue
			}
			b, err := NewOpenAIBackend(cfg.OpenAI)
			if err != nil {
				return nil, nil, fmt.Errorf("stt: openai: %w", err)
			}
			descs = append(descs, Descriptor{Backend: b, Timeout: timeout(cfg.OpenAI.TimeoutMs)})

		case "groq":
			if cfg.Groq.APIKey == "" {
				L_warn("stt: groq in chain but API key not configured, skipping")
				continue
			}
			b, err := NewGroqBackend(cfg.Groq)
			if err != nil {
				return nil, nil, fmt.Errorf("stt: groq: %w", err)
			}
			descs = append(descs, Descriptor{Backend: b, Timeout: timeout(cfg.Groq.TimeoutMs)})

		case "google":
			if cfg.Google.APIKey == "" {
				L_warn("stt: google in chain but API key not configured, skipping")
				continue
			}
			b, err := NewGoogleBackend(cfg.Google)
			if err != nil {
				return nil, nil, fmt.Errorf("stt: google: %w", err)
			}
			descs = append(descs, Descriptor{Backend: b, Timeout: timeout(cfg.Google.TimeoutMs)})

		case "local":
			if cache == nil {
				L_warn("stt: local in chain but no model cache available, skipping")
				continue
			}
			path, err := cfg.Local.ModelPath()
			if err != nil {
				L_warn("stt: local in chain but model not usable, skipping", "error", err)
				continue
			}
			local = NewLocalBackend(cache, cfg.Local.Model, path, cfg.Local.UseGPU)
			descs = append(descs, Descriptor{Backend: local, Timeout: timeout(cfg.Local.TimeoutMs)})

		default:
			return nil, nil, fmt.Errorf("stt: unknown backend %q", name)
		}
	}

	chain, err := NewChain(descs...)
	if err != nil {
		return nil, nil, err
	}
	L_info("stt: fallback chain ready", "backends", strings.Join(chain.Backends(), " -> "))
	return chain, local, nil
}
