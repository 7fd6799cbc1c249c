// Package health tracks camera stream health two ways: Service,
// Scheduler, RTSPProber, HistoryManager and AlertManager run an active
// polling loop that dials each camera's RTSP endpoint on a schedule and
// persists status/history/alerts through data.HealthRepository; Monitor
// is the passive counterpart a running pipeline feeds directly from its
// decode loop, computing an EWMA frame rate and consecutive-error count
// without waiting for the next scheduled probe.
package health

import (
	"sync"
	"time"
)

// Monitor tracks one camera pipeline's in-process stream health from
// frame arrival statistics: an EWMA frame rate and a consecutive-error
// counter, combined into a stability predicate. It is the passive,
// per-tick counterpart to Scheduler/RTSPProber's active polling: where
// the scheduler periodically dials a camera's RTSP endpoint and writes
// the result through Service/HistoryManager/AlertManager, Monitor is
// fed directly by the decode loop on every frame and every detect
// error, giving sub-second stability signal without an extra network
// round trip. It reuses HistoryManager's bounded-retention constant so
// both retention policies stay in lockstep (spec §4.10 defaults).
type Monitor struct {
	opts MonitorOptions

	mu                sync.Mutex
	lastFrameAt       time.Time
	frameRateEWMA     float64
	consecutiveErrors int
	history           []MonitorEntry
	lastStable        bool
	initialized       bool
}

// MonitorOptions configures stability thresholds (spec §4.10 defaults).
type MonitorOptions struct {
	ConfiguredFPS     float64
	EWMAAlpha         float64 // default 0.2
	StabilityFPSRatio float64 // default 0.5: frame_rate_ewma >= ratio*configured_fps
	ErrorThreshold    int     // default 5 consecutive errors, matching AlertManager's offline threshold
}

func (o MonitorOptions) withDefaults() MonitorOptions {
	if o.EWMAAlpha <= 0 {
		o.EWMAAlpha = 0.2
	}
	if o.StabilityFPSRatio <= 0 {
		o.StabilityFPSRatio = 0.5
	}
	if o.ErrorThreshold <= 0 {
		o.ErrorThreshold = 5
	}
	return o
}

// MonitorEntry is one bounded stability-transition record.
type MonitorEntry struct {
	OccurredAt time.Time
	Stable     bool
	FrameRate  float64
	Reason     string
}

// NewMonitor constructs a Monitor, initially considered stable.
func NewMonitor(opts MonitorOptions) *Monitor {
	return &Monitor{opts: opts.withDefaults(), lastStable: true}
}

// RecordFrame registers a successfully decoded frame at time t and
// updates the EWMA instantaneous rate from the inter-arrival gap.
func (m *Monitor) RecordFrame(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.consecutiveErrors = 0
	if !m.initialized {
		m.initialized = true
		m.lastFrameAt = t
		return
	}

	gap := t.Sub(m.lastFrameAt).Seconds()
	m.lastFrameAt = t
	if gap <= 0 {
		return
	}
	instRate := 1 / gap
	m.frameRateEWMA = m.opts.EWMAAlpha*instRate + (1-m.opts.EWMAAlpha)*m.frameRateEWMA
	m.appendHistoryLocked(t, "frame")
}

// RecordError registers a frame-read or detect failure.
func (m *Monitor) RecordError(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.consecutiveErrors++
	m.appendHistoryLocked(t, "error")
}

func (m *Monitor) appendHistoryLocked(t time.Time, reason string) {
	stable := m.stableLocked()
	if stable != m.lastStable {
		m.lastStable = stable
		m.history = append(m.history, MonitorEntry{OccurredAt: t, Stable: stable, FrameRate: m.frameRateEWMA, Reason: reason})
		if len(m.history) > MaxHistoryPerCamera {
			m.history = m.history[len(m.history)-MaxHistoryPerCamera:]
		}
	}
}

func (m *Monitor) stableLocked() bool {
	if m.consecutiveErrors >= m.opts.ErrorThreshold {
		return false
	}
	if m.opts.ConfiguredFPS <= 0 {
		return true
	}
	return m.frameRateEWMA >= m.opts.StabilityFPSRatio*m.opts.ConfiguredFPS
}

// Stable reports whether the stream is currently considered healthy:
// frame_rate_ewma >= ratio*configured_fps AND consecutive_errors below
// threshold.
func (m *Monitor) Stable() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stableLocked()
}

// FrameRateEWMA returns the current smoothed frame rate estimate.
func (m *Monitor) FrameRateEWMA() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.frameRateEWMA
}

// ConsecutiveErrors returns the current consecutive-error count.
func (m *Monitor) ConsecutiveErrors() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.consecutiveErrors
}

// History returns a copy of the bounded stability-transition history.
func (m *Monitor) History() []MonitorEntry {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MonitorEntry, len(m.history))
	copy(out, m.history)
	return out
}
