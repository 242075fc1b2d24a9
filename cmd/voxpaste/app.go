package main

import (
	"fmt"
	"time"

	"github.com/roelfdiedericks/voxpaste/internal/bus"
	"github.com/roelfdiedericks/voxpaste/internal/config"
	"github.com/roelfdiedericks/voxpaste/internal/dictation"
	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/metrics"
	"github.com/roelfdiedericks/voxpaste/internal/paste"
	"github.com/roelfdiedericks/voxpaste/internal/stt"
	"github.com/roelfdiedericks/voxpaste/internal/stt/whispercpp"
	"github.com/roelfdiedericks/voxpaste/internal/vocab"
)

// app holds the long-lived components for one command invocation.
type app struct {
	cfg      *config.Config
	cfgPath  string
	bus      *bus.Bus
	metrics  *metrics.Manager
	cache    *stt.ModelCache
	chain    *stt.Chain
	vocab    *vocab.Store
	watcher  *vocab.Watcher
	injector *paste.Injector
	pipeline *dictation.Pipeline
}

// loadConfig reads the --config file, or the usual locations, and applies the
// configured log level. --debug overrides the config.
func loadConfig(g *Globals) (*config.Config, string, error) {
	var (
		cfg  *config.Config
		path string
		err  error
	)
	if g.ConfigFile != "" {
		path = g.ConfigFile
		cfg, err = config.LoadFile(path)
	} else {
		cfg, path, err = config.Load()
	}
	if err != nil {
		return nil, "", err
	}

	logCfg := DefaultOptions()
	logCfg.Level = ParseLevel(cfg.Logging.Level)
	logCfg.ShowCaller = cfg.Logging.ShowCaller
	if g.Debug {
		logCfg.Level = LevelDebug
	}
	Init(logCfg)
	return cfg, path, nil
}

// newApp wires config, metrics, events, vocabulary, the transcription chain
// and the paste injector.
func newApp(g *Globals) (*app, error) {
	cfg, path, err := loadConfig(g)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if path != "" {
		L_debug("config: using", "path", path)
	}

	a := &app{
		cfg:     cfg,
		cfgPath: path,
		bus:     bus.New(),
		metrics: metrics.OpenConfigured(cfg.Metrics),
	}
	a.subscribe()

	a.vocab, err = vocab.NewStore(cfg.Vocabulary)
	if err != nil {
		a.Close()
		return nil, err
	}

	a.cache = stt.NewModelCache(whispercpp.New(), cfg.STT.Local.Threads)
	chain, local, err := stt.BuildChain(cfg.STT, a.cache)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.chain = chain
	L_debug("stt: chain ready", "backends", chain.Backends())

	if local != nil && cfg.STT.Local.Preload {
		a.warm(local)
	}

	a.injector = paste.New(cfg.Paste, paste.NewSession())

	a.pipeline, err = dictation.New(dictation.Deps{
		Chain:    chain,
		Paster:   a.injector,
		Terms:    a.vocab,
		Bus:      a.bus,
		Metrics:  a.metrics,
		Language: cfg.STT.Language,
	})
	if err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

func (a *app) subscribe() {
	a.bus.Subscribe(bus.TopicModelLoaded, func(e bus.Event) {
		m := e.Data.(bus.ModelLoaded)
		L_info("stt: model resident", "model", m.ModelID, "elapsed", m.Elapsed.Round(time.Millisecond))
	})
	a.bus.Subscribe(bus.TopicVocabulary, func(e bus.Event) {
		L_info("vocab: reloaded", "terms", len(e.Data.([]string)))
	})
}

func (a *app) warm(local *stt.LocalBackend) {
	start := time.Now()
	if err := local.Warm(); err != nil {
		L_warn("stt: local model preload failed", "error", err)
		return
	}
	path, _ := a.cfg.STT.Local.ModelPath()
	a.bus.Publish(bus.TopicModelLoaded, bus.ModelLoaded{
		ModelID: a.cfg.STT.Local.Model,
		Path:    path,
		Elapsed: time.Since(start),
	})
}

// watchVocabulary hot-reloads the vocabulary file while a long-running
// command works through its inputs.
func (a *app) watchVocabulary() {
	if !a.cfg.Vocabulary.Watch {
		return
	}
	w, err := vocab.NewWatcher(a.vocab, a.cfg.Vocabulary.DebounceMs, func(terms []string) {
		a.bus.Publish(bus.TopicVocabulary, terms)
	})
	if err != nil {
		L_warn("vocab: cannot watch vocabulary file", "path", a.vocab.Path(), "error", err)
		return
	}
	w.Start()
	a.watcher = w
}

// Close releases the model, stops the watcher and saves metrics.
func (a *app) Close() {
	if a.watcher != nil {
		if err := a.watcher.Stop(); err != nil {
			L_debug("vocab: watcher stop", "error", err)
		}
	}
	if a.cache != nil {
		if err := a.cache.Close(); err != nil {
			L_warn("stt: failed to free model", "error", err)
		}
	}
	a.bus.Wait()
	if err := a.metrics.Close(); err != nil {
		L_warn("metrics: failed to save", "error", err)
	}
}
