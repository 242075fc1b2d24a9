package metrics

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	. "github.com/roelfdiedericks/voxpaste/internal/logging"
	"github.com/roelfdiedericks/voxpaste/internal/paths"
)

const (
	pruneMaxAge   = 30 * 24 * time.Hour
	dbFileName    = "metrics.db"
	dbOpenOptions = "?_busy_timeout=5000"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS metrics (
	path       TEXT NOT NULL,
	type       TEXT NOT NULL,
	data       BLOB NOT NULL,
	updated_at INTEGER NOT NULL,
	PRIMARY KEY (path, type)
)`

// Config holds metrics configuration.
type Config struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"` // sqlite file, default ~/.voxpaste/metrics.db
}

// DefaultDBPath returns ~/.voxpaste/metrics.db.
func DefaultDBPath() (string, error) {
	return paths.DataPath(dbFileName)
}

// Open returns a manager backed by the sqlite file at dbPath, with
// previously saved metrics loaded. Metrics older than 30 days are pruned.
func Open(dbPath string) (*Manager, error) {
	if err := paths.EnsureParentDir(dbPath); err != nil {
		return nil, fmt.Errorf("metrics directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+dbOpenOptions)
	if err != nil {
		return nil, fmt.Errorf("open metrics database: %w", err)
	}
	if _, err := db.Exec(schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("create metrics schema: %w", err)
	}

	m := New()
	m.db = db

	pruned, err := m.prune()
	if err != nil {
		L_warn("metrics: failed to prune stale data", "error", err)
	} else if pruned > 0 {
		L_debug("metrics: pruned stale metrics", "count", pruned)
	}

	loaded, err := m.load()
	if err != nil {
		L_warn("metrics: failed to load persisted data", "error", err)
	} else if loaded > 0 {
		L_debug("metrics: loaded persisted data", "count", loaded)
	}

	return m, nil
}

// OpenConfigured opens the configured store, or returns an in-memory manager
// when persistence is disabled or cannot be opened.
func OpenConfigured(cfg Config) *Manager {
	if !cfg.Enabled {
		return New()
	}
	path := cfg.Path
	if path == "" {
		p, err := DefaultDBPath()
		if err != nil {
			L_warn("metrics: persistence disabled, cannot resolve data path", "error", err)
			return New()
		}
		path = p
	}
	path, err := paths.ExpandTilde(path)
	if err != nil {
		L_warn("metrics: persistence disabled", "error", err)
		return New()
	}
	m, err := Open(path)
	if err != nil {
		L_warn("metrics: persistence disabled", "error", err)
		return New()
	}
	return m
}

// Persistent reports whether the manager is backed by a database.
func (m *Manager) Persistent() bool {
	return m.db != nil
}

// Close saves all metrics and closes the database. Safe to call on an
// in-memory manager.
func (m *Manager) Close() error {
	if m.db == nil {
		return nil
	}
	if err := m.Save(); err != nil {
		L_warn("metrics: final save failed", "error", err)
	}
	err := m.db.Close()
	m.db = nil
	return err
}

// Save writes all metrics to the database in a single transaction.
func (m *Manager) Save() error {
	if m.db == nil {
		return nil
	}

	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.Prepare(`INSERT INTO metrics (path, type, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(path, type) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().Unix()

	m.mu.RLock()
	defer m.mu.RUnlock()

	if err := saveMapEntries(stmt, now, m.timings, TypeTiming, marshalTiming); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.counters, TypeCounter, marshalCounter); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.successFail, TypeSuccessFail, marshalSuccessFail); err != nil {
		return err
	}
	if err := saveMapEntries(stmt, now, m.outcomes, TypeOutcome, marshalOutcome); err != nil {
		return err
	}

	return tx.Commit()
}

// saveMapEntries serializes all entries in a metric map and upserts them.
func saveMapEntries[T any](stmt *sql.Stmt, now int64, metrics map[string]*T, metricType MetricType, marshal func(*T) ([]byte, error)) error {
	for path, metric := range metrics {
		data, err := marshal(metric)
		if err != nil {
			L_warn("metrics: failed to marshal metric", "path", path, "type", metricType, "error", err)
			continue
		}
		if _, err := stmt.Exec(path, string(metricType), data, now); err != nil {
			return err
		}
	}
	return nil
}

// load reads all persisted metrics from the database and restores them in memory.
func (m *Manager) load() (int, error) {
	rows, err := m.db.Query("SELECT path, type, data FROM metrics")
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for rows.Next() {
		var path, metricType string
		var data []byte
		if err := rows.Scan(&path, &metricType, &data); err != nil {
			L_warn("metrics: failed to scan row", "error", err)
			continue
		}

		if err := m.restoreMetric(path, MetricType(metricType), data); err != nil {
			L_warn("metrics: failed to restore metric", "path", path, "type", metricType, "error", err)
			continue
		}
		count++
	}

	return count, rows.Err()
}

// prune deletes metrics not updated within the retention period.
func (m *Manager) prune() (int, error) {
	cutoff := time.Now().Add(-pruneMaxAge).Unix()
	result, err := m.db.Exec("DELETE FROM metrics WHERE updated_at < ?", cutoff)
	if err != nil {
		return 0, err
	}
	n, _ := result.RowsAffected()
	return int(n), nil
}

// restoreMetric deserializes a metric into the matching map.
// Must be called with m.mu held.
func (m *Manager) restoreMetric(path string, metricType MetricType, data []byte) error {
	switch metricType {
	case TypeTiming:
		metric, err := unmarshalTiming(data)
		if err != nil {
			return err
		}
		m.timings[path] = metric

	case TypeCounter:
		var p persistCounter
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		m.counters[path] = &CounterMetric{Value: p.Value, Last: p.Last}

	case TypeSuccessFail:
		var p persistSuccessFail
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.FailureReasons == nil {
			p.FailureReasons = make(map[string]int64)
		}
		m.successFail[path] = &SuccessFailMetric{
			Success:        p.Success,
			Failures:       p.Failures,
			LastSuccess:    p.LastSuccess,
			LastFailure:    p.LastFailure,
			FailureReasons: p.FailureReasons,
		}

	case TypeOutcome:
		var p persistOutcome
		if err := json.Unmarshal(data, &p); err != nil {
			return err
		}
		if p.Outcomes == nil {
			p.Outcomes = make(map[string]int64)
		}
		m.outcomes[path] = &OutcomeMetric{
			Outcomes:    p.Outcomes,
			LastOutcome: p.LastOutcome,
			LastTime:    p.LastTime,
			Total:       p.Total,
		}

	default:
		return fmt.Errorf("unknown metric type %q", metricType)
	}

	return nil
}

// ---- Intermediary structs for serialization ----
// These mirror metric fields but are JSON-safe (no mutex, no unexported ring buffers).

type persistTiming struct {
	Count   int64           `json:"count"`
	Total   time.Duration   `json:"total"`
	Min     time.Duration   `json:"min"`
	Max     time.Duration   `json:"max"`
	Last    time.Duration   `json:"last"`
	Samples []time.Duration `json:"samples,omitempty"`
}

type persistCounter struct {
	Value int64     `json:"value"`
	Last  time.Time `json:"last"`
}

type persistSuccessFail struct {
	Success        int64            `json:"success"`
	Failures       int64            `json:"failures"`
	LastSuccess    time.Time        `json:"last_success"`
	LastFailure    time.Time        `json:"last_failure"`
	FailureReasons map[string]int64 `json:"failure_reasons,omitempty"`
}

type persistOutcome struct {
	Outcomes    map[string]int64 `json:"outcomes"`
	LastOutcome string           `json:"last_outcome"`
	LastTime    time.Time        `json:"last_time"`
	Total       int64            `json:"total"`
}

func marshalTiming(m *TimingMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistTiming{
		Count: m.Count, Total: m.Total, Min: m.Min, Max: m.Max, Last: m.Last, Samples: m.samples,
	})
}

func marshalCounter(m *CounterMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistCounter{Value: m.Value, Last: m.Last})
}

func marshalSuccessFail(m *SuccessFailMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistSuccessFail{
		Success: m.Success, Failures: m.Failures,
		LastSuccess: m.LastSuccess, LastFailure: m.LastFailure, FailureReasons: m.FailureReasons,
	})
}

func marshalOutcome(m *OutcomeMetric) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return json.Marshal(persistOutcome{
		Outcomes: m.Outcomes, LastOutcome: m.LastOutcome, LastTime: m.LastTime, Total: m.Total,
	})
}

func unmarshalTiming(data []byte) (*TimingMetric, error) {
	var p persistTiming
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	m := &TimingMetric{
		Count:   p.Count,
		Total:   p.Total,
		Min:     p.Min,
		Max:     p.Max,
		Last:    p.Last,
		samples: p.Samples,
	}
	if m.samples == nil {
		m.samples = make([]time.Duration, 0, maxSamples)
	}
	if len(m.samples) >= maxSamples {
		m.samples = m.samples[len(m.samples)-maxSamples:]
		m.sampleIdx = 0
	} else {
		m.sampleIdx = len(m.samples)
	}
	return m, nil
}
