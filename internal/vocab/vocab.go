// Package vocab manages the recognition vocabulary: domain terms passed to
// every transcription backend to bias recognition.
package vocab

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	"gopkg.in/yaml.v3"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/paths"
)

// Config holds vocabulary configuration.
type Config struct {
	Path       string   `json:"path"`       // YAML file, default ~/.voxpaste/vocabulary.yaml
	Terms      []string `json:"terms"`      // inline terms, always included
	Watch      bool     `json:"watch"`      // reload the file when it changes
	DebounceMs int      `json:"debounceMs"` // reload debounce (default 500)
}

// File is the on-disk vocabulary format:
//
//	terms:
//	  - Kubernetes
//	  - Nguyen
type File struct {
	Terms []string `yaml:"terms"`
}

// LoadFile reads terms from a vocabulary file. A missing file is an empty
// vocabulary, not an error.
func LoadFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}
	return f.Terms, nil
}

// Store holds the current vocabulary. Readers always see a complete list.
type Store struct {
	path   string
	inline []string

	mu    sync.RWMutex
	terms []string
}

// NewStore creates a store from config and loads the file once.
func NewStore(cfg Config) (*Store, error) {
	path := cfg.Path
	if path == "" {
		p, err := paths.DefaultVocabularyPath()
		if err != nil {
			return nil, err
		}
		path = p
	}
	path, err := paths.ExpandTilde(path)
	if err != nil {
		return nil, err
	}

	s := &Store{path: path, inline: append([]string(nil), cfg.Terms...)}
	if err := s.Reload(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the vocabulary file path.
func (s *Store) Path() string {
	return s.path
}

// Reload re-reads the file. On error the previous list is kept.
func (s *Store) Reload() error {
	fileTerms, err := LoadFile(s.path)
	if err != nil {
		return err
	}

	terms := make([]string, 0, len(s.inline)+len(fileTerms))
	terms = append(terms, s.inline...)
	terms = append(terms, fileTerms...)

	s.mu.Lock()
	s.terms = terms
	s.mu.Unlock()

	L_debug("vocab: loaded", "path", s.path, "inline", len(s.inline), "file", len(fileTerms))
	return nil
}

// Terms returns a copy of the current term list.
func (s *Store) Terms() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]string(nil), s.terms...)
}
