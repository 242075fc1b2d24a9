// Package config loads voxpaste.json.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"dario.cat/mergo"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/metrics"
	"github.com/roelfdiedericks/voxpaste/internal/paste"
	"github.com/roelfdiedericks/voxpaste/internal/paths"
	"github.com/roelfdiedericks/voxpaste/internal/stt"
	"github.com/roelfdiedericks/voxpaste/internal/vocab"
)

// Config represents the voxpaste configuration
type Config struct {
	Logging    LoggingConfig  `json:"logging"`
	STT        stt.Config     `json:"stt"`
	Paste      paste.Config   `json:"paste"`
	Vocabulary vocab.Config   `json:"vocabulary"`
	Metrics    metrics.Config `json:"metrics"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"` // trace, debug, info, warn, error
	ShowCaller bool   `json:"showCaller"`
}

// Defaults returns the built-in configuration.
func Defaults() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		STT: stt.Config{
			Order:    []string{"groq", "openai", "local"},
			Language: stt.DefaultLanguage,
			Groq:     stt.GroqConfig{Model: "whisper-large-v3-turbo", TimeoutMs: 5000},
			OpenAI:   stt.OpenAIConfig{Model: "whisper-1", TimeoutMs: 8000},
			Google:   stt.GoogleConfig{LanguageCode: "en-US", TimeoutMs: 8000},
			Local:    stt.LocalConfig{Model: "ggml-base.en.bin", Threads: 4, TimeoutMs: 30000},
		},
		Paste:      paste.DefaultConfig(),
		Vocabulary: vocab.Config{Watch: true, DebounceMs: 500},
		Metrics:    metrics.Config{Enabled: true},
	}
}

// Load reads the active config file. With no config file the defaults are
// returned and path is "".
func Load() (cfg *Config, path string, err error) {
	path, err = paths.ConfigPath()
	if err != nil {
		return nil, "", err
	}
	if path == "" {
		L_debug("config: no config file, using defaults")
		cfg = Defaults()
		applyEnv(cfg)
		return cfg, "", nil
	}
	cfg, err = LoadFile(path)
	return cfg, path, err
}

// LoadFile reads a config file over the defaults. API keys missing from the
// file are taken from the environment.
func LoadFile(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
		L_debug("config: loaded", "path", path)
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv fills empty API keys from the environment. Keys in the file win.
func applyEnv(cfg *Config) {
	env := stt.Config{
		OpenAI: stt.OpenAIConfig{APIKey: os.Getenv("OPENAI_API_KEY")},
		Groq:   stt.GroqConfig{APIKey: os.Getenv("GROQ_API_KEY")},
		Google: stt.GoogleConfig{APIKey: os.Getenv("GOOGLE_API_KEY")},
	}
	if err := mergo.Merge(&cfg.STT, env); err != nil {
		L_warn("config: failed to apply environment", "error", err)
	}
}

// WriteDefaults writes the default configuration to path, backing up any
// existing file first.
func WriteDefaults(path string) error {
	return BackupAndWriteJSON(path, Defaults(), DefaultBackupCount)
}
