// Package metrics records per-backend and per-path dictation statistics and
// persists them to sqlite between runs.
package metrics

import (
	"database/sql"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	maxSamples = 1000 // Keep last 1000 samples for percentile calculations
)

// Manager holds all metrics, keyed by slash-separated path
// (e.g. "stt/groq", "paste/native").
type Manager struct {
	mu          sync.RWMutex
	timings     map[string]*TimingMetric
	counters    map[string]*CounterMetric
	successFail map[string]*SuccessFailMetric
	outcomes    map[string]*OutcomeMetric

	db *sql.DB // nil when persistence is off
}

// New returns an in-memory manager.
func New() *Manager {
	return &Manager{
		timings:     make(map[string]*TimingMetric),
		counters:    make(map[string]*CounterMetric),
		successFail: make(map[string]*SuccessFailMetric),
		outcomes:    make(map[string]*OutcomeMetric),
	}
}

// Path joins metric path segments, e.g. Path("stt", "groq") == "stt/groq".
func Path(parts ...string) string {
	clean := parts[:0:0]
	for _, p := range parts {
		if p = strings.Trim(p, "/"); p != "" {
			clean = append(clean, p)
		}
	}
	return strings.Join(clean, "/")
}

// RecordDuration records a duration
func (m *Manager) RecordDuration(path string, duration time.Duration) {
	m.mu.Lock()
	metric, exists := m.timings[path]
	if !exists {
		metric = &TimingMetric{
			samples: make([]time.Duration, 0, maxSamples),
			Min:     duration,
			Max:     duration,
		}
		m.timings[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Count++
	metric.Total += duration
	metric.Last = duration

	if duration < metric.Min {
		metric.Min = duration
	}
	if duration > metric.Max {
		metric.Max = duration
	}

	// Add to samples ring buffer
	if len(metric.samples) < maxSamples {
		metric.samples = append(metric.samples, duration)
	} else {
		metric.samples[metric.sampleIdx] = duration
		metric.sampleIdx = (metric.sampleIdx + 1) % maxSamples
	}
}

// IncrementCounter increments a counter
func (m *Manager) IncrementCounter(path string) {
	m.AddCounter(path, 1)
}

// AddCounter adds to a counter
func (m *Manager) AddCounter(path string, delta int64) {
	m.mu.Lock()
	metric, exists := m.counters[path]
	if !exists {
		metric = &CounterMetric{}
		m.counters[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Value += delta
	metric.Last = time.Now()
}

func (m *Manager) successFailMetric(path string) *SuccessFailMetric {
	m.mu.Lock()
	defer m.mu.Unlock()

	metric, exists := m.successFail[path]
	if !exists {
		metric = &SuccessFailMetric{FailureReasons: make(map[string]int64)}
		m.successFail[path] = metric
	}
	return metric
}

// RecordSuccess records a successful operation
func (m *Manager) RecordSuccess(path string) {
	metric := m.successFailMetric(path)

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Success++
	metric.LastSuccess = time.Now()
	metric.push(true)
}

// RecordFailure records a failed operation
func (m *Manager) RecordFailure(path, reason string) {
	metric := m.successFailMetric(path)

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Failures++
	metric.LastFailure = time.Now()
	if reason != "" {
		metric.FailureReasons[reason]++
	}
	metric.push(false)
}

// push updates the sliding window. Caller holds metric.mu.
func (metric *SuccessFailMetric) push(ok bool) {
	metric.recentWindow[metric.windowIndex] = ok
	metric.windowIndex = (metric.windowIndex + 1) % len(metric.recentWindow)
	if metric.windowSize < len(metric.recentWindow) {
		metric.windowSize++
	}
}

// RecordOutcome records a specific outcome
func (m *Manager) RecordOutcome(path, outcome string) {
	m.mu.Lock()
	metric, exists := m.outcomes[path]
	if !exists {
		metric = &OutcomeMetric{Outcomes: make(map[string]int64)}
		m.outcomes[path] = metric
	}
	m.mu.Unlock()

	metric.mu.Lock()
	defer metric.mu.Unlock()

	metric.Outcomes[outcome]++
	metric.Total++
	metric.LastOutcome = outcome
	metric.LastTime = time.Now()
}

// Snapshot returns a point-in-time view of every metric, sorted by path
// and type.
func (m *Manager) Snapshot() []*MetricSnapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []*MetricSnapshot

	for path, metric := range m.timings {
		metric.mu.RLock()
		avg := float64(0)
		if metric.Count > 0 {
			avg = float64(metric.Total) / float64(metric.Count) / float64(time.Millisecond)
		}
		out = append(out, &MetricSnapshot{
			Path:   path,
			Type:   TypeTiming,
			Health: getTimingHealth(avg),
			Data: TimingSnapshot{
				Count:  metric.Count,
				AvgMs:  avg,
				MinMs:  float64(metric.Min) / float64(time.Millisecond),
				MaxMs:  float64(metric.Max) / float64(time.Millisecond),
				LastMs: float64(metric.Last) / float64(time.Millisecond),
				P95Ms:  calculatePercentile(metric.samples, 95),
			},
		})
		metric.mu.RUnlock()
	}

	for path, metric := range m.counters {
		metric.mu.RLock()
		out = append(out, &MetricSnapshot{
			Path:   path,
			Type:   TypeCounter,
			Health: HealthGood,
			Data:   CounterSnapshot{Value: metric.Value},
		})
		metric.mu.RUnlock()
	}

	for path, metric := range m.successFail {
		metric.mu.RLock()
		total := metric.Success + metric.Failures
		successRate := float64(0)
		if total > 0 {
			successRate = float64(metric.Success) / float64(total) * 100
		}
		recentRate := successRate
		if metric.windowSize > 0 {
			ok := 0
			for i := 0; i < metric.windowSize; i++ {
				if metric.recentWindow[i] {
					ok++
				}
			}
			recentRate = float64(ok) / float64(metric.windowSize) * 100
		}
		reasons := make(map[string]int64, len(metric.FailureReasons))
		for k, v := range metric.FailureReasons {
			reasons[k] = v
		}
		out = append(out, &MetricSnapshot{
			Path:   path,
			Type:   TypeSuccessFail,
			Health: getSuccessRateHealth(recentRate, total),
			Data: SuccessFailSnapshot{
				Success:        metric.Success,
				Failures:       metric.Failures,
				SuccessRate:    successRate,
				RecentRate:     recentRate,
				FailureReasons: reasons,
			},
		})
		metric.mu.RUnlock()
	}

	for path, metric := range m.outcomes {
		metric.mu.RLock()
		outcomes := make(map[string]int64, len(metric.Outcomes))
		for k, v := range metric.Outcomes {
			outcomes[k] = v
		}
		out = append(out, &MetricSnapshot{
			Path:   path,
			Type:   TypeOutcome,
			Health: HealthGood,
			Data:   OutcomeSnapshot{Outcomes: outcomes, Total: metric.Total, Last: metric.LastOutcome},
		})
		metric.mu.RUnlock()
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Path != out[j].Path {
			return out[i].Path < out[j].Path
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// calculatePercentile calculates the Nth percentile from samples
func calculatePercentile(samples []time.Duration, percentile int) float64 {
	if len(samples) == 0 {
		return 0
	}

	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	idx := (len(sorted) * percentile) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}

	return float64(sorted[idx]) / float64(time.Millisecond)
}

// getTimingHealth grades an average latency. An utterance round trip over
// a few seconds is noticeable while dictating.
func getTimingHealth(avgMs float64) HealthStatus {
	if avgMs > 5000 {
		return HealthCritical
	}
	if avgMs > 2000 {
		return HealthWarning
	}
	return HealthGood
}

func getSuccessRateHealth(rate float64, total int64) HealthStatus {
	if total == 0 {
		return HealthGood
	}
	if rate < 75 {
		return HealthCritical
	}
	if rate < 95 {
		return HealthWarning
	}
	return HealthGood
}
