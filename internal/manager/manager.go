// Package manager implements the process-wide pipeline registry: adding
// and removing VideoPipelines under a resource quota, allocating each
// one an MJPEG port from a managed range, and running the precise 1s
// monitoring loop that collects health snapshots and process metrics
// for the API surface.
//
// The add path follows internal/nvr/monitor.go's queue/worker split in
// spirit (bounded resources, no blocking on the hot path) and
// internal/cameras/service.go's quota-check-before-mutate pattern,
// reused here as the max_pipelines check. Unlike both of those, the
// monitoring loop is deadline-scheduled rather than driven by a
// cumulative time.NewTicker, which drifts under load when a tick's own
// work runs long.
package manager

import (
	"context"
	"errors"
	"fmt"
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
	"github.com/tingzhh2025/aisecurityvision/internal/pipeline"
)

var (
	ErrMaxPipelinesExceeded = errors.New("manager: max concurrent pipelines exceeded")
	ErrAlreadyExists        = errors.New("manager: pipeline already registered for this camera")
	ErrNotFound             = errors.New("manager: pipeline not found")
	ErrPortRangeExhausted   = errors.New("manager: mjpeg port range exhausted")
)

// LicenseLimiter is optionally consulted for a tenant-specific pipeline
// cap; when nil the manager enforces only MaxPipelines.
type LicenseLimiter interface {
	MaxPipelines() int
}

// Options configures the manager (spec defaults: 32 concurrent
// pipelines, monitoring period 1s).
type Options struct {
	MaxPipelines  int
	PortRangeLow  int
	PortRangeHigh int
	TickInterval  time.Duration
	Licensing     LicenseLimiter
}

func (o Options) withDefaults() Options {
	if o.MaxPipelines <= 0 {
		o.MaxPipelines = 32
	}
	if o.PortRangeLow <= 0 {
		o.PortRangeLow = 18000
	}
	if o.PortRangeHigh <= o.PortRangeLow {
		o.PortRangeHigh = o.PortRangeLow + 999
	}
	if o.TickInterval <= 0 {
		o.TickInterval = time.Second
	}
	return o
}

// SystemMetrics is the process-level resource snapshot published
// alongside per-pipeline health every monitoring tick.
type SystemMetrics struct {
	CPUGoroutines  int
	MemoryAllocMB  float64
	MemorySystemMB float64
	GPUMemoryMB    float64 // left at 0: no GPU accounting library in this stack
}

// TelemetrySnapshot is the manager's 1s egress payload (spec.md §6).
type TelemetrySnapshot struct {
	Pipelines         []model.PipelineHealth
	System            SystemMetrics
	MonitoringHealthy bool
}

type entry struct {
	p    *pipeline.Pipeline
	port int
}

// Manager owns the process-wide pipeline registry.
type Manager struct {
	opts Options

	mu        sync.RWMutex
	pipelines map[string]*entry
	usedPorts map[int]bool

	snapshotMu sync.RWMutex
	snapshot   TelemetrySnapshot

	onSnapshot func(TelemetrySnapshot)

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Manager. onSnapshot, if non-nil, is invoked from the
// monitoring goroutine with each new snapshot (e.g. to push it to the
// API layer); it must not block.
func New(opts Options, onSnapshot func(TelemetrySnapshot)) *Manager {
	opts = opts.withDefaults()
	return &Manager{
		opts:       opts,
		pipelines:  make(map[string]*entry),
		usedPorts:  make(map[int]bool),
		onSnapshot: onSnapshot,
	}
}

// Start launches the monitoring loop.
func (m *Manager) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	m.wg.Add(1)
	go m.monitorLoop(runCtx)
}

// Stop halts the monitoring loop and tears down every registered
// pipeline.
func (m *Manager) Stop(ctx context.Context) {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()

	m.mu.Lock()
	ids := make([]string, 0, len(m.pipelines))
	for id := range m.pipelines {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.RemovePipeline(ctx, id)
	}
}

// AddPipeline reserves a slot and MJPEG port under lock, initializes
// the pipeline's stage graph without holding the lock (Initialize opens
// network connections and may block for seconds), then commits the
// result or rolls back the reservation on failure. This keeps
// long-running I/O off the registry's critical section, per the
// manager's REDESIGN FLAG.
func (m *Manager) AddPipeline(ctx context.Context, cfg pipeline.Config) (pipeline.Result, error) {
	cameraID := cfg.Source.ID

	port, err := m.reserve(cameraID)
	if err != nil {
		return pipeline.Result{}, err
	}

	if cfg.Source.MJPEGPort == 0 {
		cfg.Source.MJPEGPort = port
	}

	p := pipeline.New(cfg)
	res, err := p.Initialize(ctx)
	if err != nil {
		m.rollback(cameraID, port)
		return pipeline.Result{}, fmt.Errorf("manager: initialize pipeline %s: %w", cameraID, err)
	}

	m.mu.Lock()
	m.pipelines[cameraID] = &entry{p: p, port: port}
	m.mu.Unlock()

	p.Start(ctx)
	log.Printf("[Manager] pipeline %s started, mjpeg port %d", cameraID, cfg.Source.MJPEGPort)
	return res, nil
}

// reserve checks the quota and allocates a port for cameraID, or
// returns an error leaving registry state unchanged.
func (m *Manager) reserve(cameraID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.pipelines[cameraID]; exists {
		return 0, ErrAlreadyExists
	}

	limit := m.opts.MaxPipelines
	if m.opts.Licensing != nil {
		if l := m.opts.Licensing.MaxPipelines(); l > 0 && l < limit {
			limit = l
		}
	}
	if len(m.pipelines) >= limit {
		return 0, ErrMaxPipelinesExceeded
	}

	for port := m.opts.PortRangeLow; port <= m.opts.PortRangeHigh; port++ {
		if !m.usedPorts[port] {
			m.usedPorts[port] = true
			return port, nil
		}
	}
	return 0, ErrPortRangeExhausted
}

func (m *Manager) rollback(cameraID string, port int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.usedPorts, port)
	delete(m.pipelines, cameraID)
}

// RemovePipeline stops and unregisters the pipeline for cameraID,
// releasing its MJPEG port. A pipeline exists in the registry iff its
// port is reserved, so removal always frees the port.
func (m *Manager) RemovePipeline(ctx context.Context, cameraID string) error {
	m.mu.Lock()
	e, ok := m.pipelines[cameraID]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	delete(m.pipelines, cameraID)
	delete(m.usedPorts, e.port)
	m.mu.Unlock()

	e.p.Stop(ctx)
	log.Printf("[Manager] pipeline %s stopped, mjpeg port %d released", cameraID, e.port)
	return nil
}

// Get returns the pipeline registered for cameraID, if any.
func (m *Manager) Get(cameraID string) (*pipeline.Pipeline, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.pipelines[cameraID]
	if !ok {
		return nil, false
	}
	return e.p, true
}

// Count returns the number of registered pipelines.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pipelines)
}

// Snapshot returns the most recently published telemetry snapshot.
func (m *Manager) Snapshot() TelemetrySnapshot {
	m.snapshotMu.RLock()
	defer m.snapshotMu.RUnlock()
	return m.snapshot
}

// monitorLoop runs the precise 1s (by default) monitoring tick, sleeping
// to an absolute deadline each iteration instead of a cumulative
// ticker so a slow tick never compounds drift into the next one.
func (m *Manager) monitorLoop(ctx context.Context) {
	defer m.wg.Done()

	next := time.Now().Add(m.opts.TickInterval)
	for {
		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Until(next)):
		}

		m.tick()
		next = next.Add(m.opts.TickInterval)
		if time.Now().After(next) {
			// A tick ran long; resync instead of firing a burst of
			// already-due ticks back to back.
			next = time.Now().Add(m.opts.TickInterval)
		}
	}
}

func (m *Manager) tick() {
	m.mu.RLock()
	entries := make([]*entry, 0, len(m.pipelines))
	for _, e := range m.pipelines {
		entries = append(entries, e)
	}
	m.mu.RUnlock()

	healths := make([]model.PipelineHealth, 0, len(entries))
	var failedIDs []string
	for _, e := range entries {
		h := e.p.Health()
		healths = append(healths, h)
		if h.State == model.PipelineFailed {
			failedIDs = append(failedIDs, h.CameraID)
		}
	}
	sort.Slice(healths, func(i, j int) bool { return healths[i].CameraID < healths[j].CameraID })

	snap := TelemetrySnapshot{
		Pipelines:         healths,
		System:            collectSystemMetrics(),
		MonitoringHealthy: true,
	}

	m.snapshotMu.Lock()
	m.snapshot = snap
	m.snapshotMu.Unlock()

	if m.onSnapshot != nil {
		m.onSnapshot(snap)
	}

	// Failed pipelines are logged and removed, never auto-restarted;
	// the API surface decides whether to re-add them.
	for _, id := range failedIDs {
		log.Printf("[Manager] pipeline %s reported Failed, removing", id)
		go m.RemovePipeline(context.Background(), id)
	}
}

// collectSystemMetrics reports process-level resource usage. No GPU or
// OS-level CPU accounting library is present in this stack, so CPU load
// is approximated by goroutine count and memory comes from runtime's
// own allocator stats; this is the one metric this package cannot
// ground on a pack dependency (see DESIGN.md).
func collectSystemMetrics() SystemMetrics {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	return SystemMetrics{
		CPUGoroutines:  runtime.NumGoroutine(),
		MemoryAllocMB:  float64(ms.Alloc) / (1024 * 1024),
		MemorySystemMB: float64(ms.Sys) / (1024 * 1024),
	}
}
