// Package pipeline composes the per-camera decode/detect/track/
// behavior/output stage graph (C1-C7) into one long-running worker,
// following the orchestration style of internal/nvr/service.go and
// internal/cameras/media_service.go: validate inputs, construct the
// dependent stages, expose a small set of thread-safe control methods,
// and run the frame loop on a dedicated goroutine.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/tingzhh2025/aisecurityvision/internal/attributes"
	"github.com/tingzhh2025/aisecurityvision/internal/behavior"
	"github.com/tingzhh2025/aisecurityvision/internal/frame"
	"github.com/tingzhh2025/aisecurityvision/internal/health"
	"github.com/tingzhh2025/aisecurityvision/internal/inference"
	"github.com/tingzhh2025/aisecurityvision/internal/metrics"
	"github.com/tingzhh2025/aisecurityvision/internal/model"
	"github.com/tingzhh2025/aisecurityvision/internal/reid"
	"github.com/tingzhh2025/aisecurityvision/internal/streamout"
	"github.com/tingzhh2025/aisecurityvision/internal/tracker"
)

// StreamingConfig is the hot-reloadable output configuration; changes
// take effect at the next frame boundary.
type StreamingConfig struct {
	Protocol    string
	Width       int
	Height      int
	FPS         int
	BitrateKbps int
	Quality     int // JPEG quality for MJPEG/recorder encode, 1-100
}

func (c StreamingConfig) withDefaults() StreamingConfig {
	if c.Quality <= 0 {
		c.Quality = 80
	}
	if c.FPS <= 0 {
		c.FPS = 15
	}
	return c
}

// Config bundles everything Initialize needs to construct one
// pipeline's stage graph. Fields left nil/zero disable the
// corresponding optional stage (ReID, attribute analysis).
type Config struct {
	Source          model.VideoSource
	Decoder         frame.Decoder
	ModelPath       string
	BackendPriority []string

	TrackerOpts tracker.Options

	ReIDExtractor reid.Extractor
	ReIDMatcher   *reid.Matcher
	ReIDGateOpts  reid.GateOptions

	AttributeAnalyzer attributes.Analyzer
	AttributeOpts     attributes.Options

	Dispatcher      *streamout.Dispatcher
	StreamerOptions streamout.StreamerOptions
	RecorderOptions streamout.RecorderOptions

	StreamHealthOptions health.MonitorOptions

	ROIs    []*model.ROI
	Rules   []*model.BehaviorRule
	Channel []streamout.ChannelEntry // alarm channels to attach to the shared dispatcher

	Streaming StreamingConfig
}

// Result is returned by Initialize.
type Result struct {
	MJPEGPort int
	State     model.PipelineState
}

// Pipeline owns one camera's full stage graph.
type Pipeline struct {
	cfg Config

	source  *frame.Source
	backend inference.Backend
	backendName string
	trk     *tracker.Tracker

	reidGate    *reid.Gate
	reidMatcher *reid.Matcher

	attrBatcher *attributes.Batcher
	attrMu      sync.Mutex
	attrResults map[uint32]model.Attributes

	behaviorMu     sync.Mutex
	behaviorEngine *behavior.Engine

	streamer   *streamout.Streamer
	recorder   *streamout.Recorder
	dispatcher *streamout.Dispatcher

	health *health.Monitor

	streamingCfg atomic.Pointer[StreamingConfig]

	mu    sync.RWMutex
	state model.PipelineState

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Pipeline in the Init state. Call Initialize before
// Start.
func New(cfg Config) *Pipeline {
	p := &Pipeline{cfg: cfg, state: model.PipelineInit, attrResults: make(map[uint32]model.Attributes)}
	sc := cfg.Streaming.withDefaults()
	p.streamingCfg.Store(&sc)
	return p
}

// Initialize opens the frame source, selects an inference backend,
// constructs the tracker/ReID/attribute/behavior stages, and prepares
// the output fan-out. It returns once these are ready; the source may
// still be reconnecting asynchronously (frame.Source's own contract).
func (p *Pipeline) Initialize(ctx context.Context) (Result, error) {
	if p.cfg.Decoder == nil {
		return Result{}, fmt.Errorf("pipeline: decoder is required")
	}

	p.source = frame.New(p.cfg.Source, p.cfg.Decoder, frame.Options{})
	if err := p.source.Open(ctx); err != nil {
		p.setState(model.PipelineReconnecting)
	} else {
		p.setState(model.PipelineRunning)
	}

	backend, name, err := inference.AutoSelect(ctx, p.cfg.ModelPath, p.cfg.BackendPriority)
	if err != nil {
		p.setState(model.PipelineFailed)
		return Result{}, fmt.Errorf("pipeline: no inference backend available: %w", err)
	}
	p.backend = backend
	p.backendName = name
	metrics.SetServiceUp(true)

	p.trk = tracker.New(p.cfg.TrackerOpts)

	if p.cfg.ReIDExtractor != nil {
		p.reidGate = reid.NewGate(p.cfg.ReIDExtractor, p.cfg.ReIDGateOpts)
		p.reidMatcher = p.cfg.ReIDMatcher
	}

	if p.cfg.AttributeAnalyzer != nil {
		p.attrBatcher = attributes.NewBatcher(ctx, p.cfg.AttributeAnalyzer, p.cfg.AttributeOpts, p.onAttributeResult)
	}

	p.behaviorEngine = behavior.New(p.cfg.Source.ID)
	p.behaviorEngine.SetROIs(p.cfg.ROIs)
	p.behaviorEngine.SetRules(p.cfg.Rules)

	p.streamer = streamout.NewStreamer(p.cfg.StreamerOptions)
	p.recorder = streamout.NewRecorder(p.cfg.RecorderOptions)
	p.dispatcher = p.cfg.Dispatcher
	for _, ch := range p.cfg.Channel {
		if p.dispatcher != nil {
			p.dispatcher.AddChannel(ch)
		}
	}

	p.health = health.NewMonitor(p.cfg.StreamHealthOptions)

	return Result{MJPEGPort: p.cfg.Source.MJPEGPort, State: p.State()}, nil
}

func (p *Pipeline) onAttributeResult(localID uint32, attrs model.Attributes) {
	p.attrMu.Lock()
	defer p.attrMu.Unlock()
	p.attrResults[localID] = attrs
}

// Start launches the dedicated worker goroutine driving Tick in a
// loop until Stop is called or ctx is cancelled.
func (p *Pipeline) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.wg.Add(1)
	go p.run(runCtx)
}

func (p *Pipeline) run(ctx context.Context) {
	defer p.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		if err := p.Tick(ctx); err != nil {
			p.health.RecordError(time.Now())
			if p.source.State() == frame.StateFailed {
				p.setState(model.PipelineFailed)
				return
			}
		}
	}
}

// Stop halts the worker goroutine and releases source/streamer
// resources.
func (p *Pipeline) Stop(ctx context.Context) {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	if p.source != nil {
		p.source.Close()
	}
	if p.streamer != nil {
		p.streamer.Close(ctx)
	}
	p.setState(model.PipelineInit)
}

// Tick pulls one frame and runs the full decode->detect->track->
// behavior->output stage chain for it. Exported so tests (and a
// single-step manager health check) can drive the pipeline without
// starting the background worker.
func (p *Pipeline) Tick(ctx context.Context) error {
	f, ok := p.source.NextFrame()
	if !ok {
		return fmt.Errorf("pipeline: source %s closed", p.cfg.Source.ID)
	}
	p.health.RecordFrame(f.Timestamp)

	dets, err := p.detectWithFallback(ctx, f)
	if err != nil {
		return fmt.Errorf("pipeline: detect: %w", err)
	}

	tracks := p.trk.Update(dets)

	if p.reidGate != nil {
		for _, tr := range tracks {
			if tr.State != model.TrackConfirmed || !p.reidGate.Eligible(tr) {
				continue
			}
			emb, err := p.reidGate.ExtractFor(ctx, f, tr)
			if err != nil || emb == nil {
				continue
			}
			tr.ReIDEmbedding = emb
			if p.reidMatcher != nil {
				tr.GlobalID = p.reidMatcher.Match(emb)
			}
		}
	}

	if p.attrBatcher != nil {
		p.attrBatcher.Submit(f, tracks)
		p.attrMu.Lock()
		for _, tr := range tracks {
			if a, ok := p.attrResults[tr.LocalID]; ok {
				tr.Attributes = &a
			}
		}
		p.attrMu.Unlock()
	}

	now := f.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	p.behaviorMu.Lock()
	events := p.behaviorEngine.Evaluate(now, tracks)
	p.behaviorMu.Unlock()

	p.render(f, tracks, events)

	return nil
}

// detectWithFallback runs Detect on the currently selected backend. On
// failure it marks the service degraded, reinitializes the next
// backend in Config.BackendPriority after the one that failed, and
// retries the same frame once against it (spec §4.2: degrade, fall
// back, retry once — never more).
func (p *Pipeline) detectWithFallback(ctx context.Context, f model.Frame) ([]model.Detection, error) {
	detectStart := time.Now()
	dets, err := p.backend.Detect(ctx, f)
	metrics.RecordInferenceLatency(p.backendName, float64(time.Since(detectStart).Milliseconds()))
	if err == nil {
		metrics.RecordInference(p.backendName, "ok")
		return dets, nil
	}
	metrics.RecordInference(p.backendName, "error")
	metrics.SetServiceUp(false)
	failedName := p.backendName

	remaining := p.remainingPriority(failedName)
	if len(remaining) == 0 {
		return nil, fmt.Errorf("backend %s failed and no fallback backend remains in priority order: %w", failedName, err)
	}
	next, nextName, selErr := inference.AutoSelect(ctx, p.cfg.ModelPath, remaining)
	if selErr != nil {
		return nil, fmt.Errorf("backend %s failed and fallback reinitialization also failed: %w", failedName, err)
	}
	p.backend = next
	p.backendName = nextName
	metrics.SetServiceUp(true)

	retryStart := time.Now()
	retryDets, retryErr := p.backend.Detect(ctx, f)
	metrics.RecordInferenceLatency(p.backendName, float64(time.Since(retryStart).Milliseconds()))
	if retryErr != nil {
		metrics.RecordInference(p.backendName, "error")
		return nil, fmt.Errorf("backend %s failed (%v), fallback %s also failed on retry: %w", failedName, err, nextName, retryErr)
	}
	metrics.RecordInference(p.backendName, "ok")
	return retryDets, nil
}

// remainingPriority returns Config.BackendPriority (or the package
// default) truncated to the entries after failedName, so the fallback
// search never re-selects the backend that just failed.
func (p *Pipeline) remainingPriority(failedName string) []string {
	priority := p.cfg.BackendPriority
	if len(priority) == 0 {
		priority = inference.DefaultPriority
	}
	for i, name := range priority {
		if strings.EqualFold(name, failedName) {
			return priority[i+1:]
		}
	}
	return nil
}

func (p *Pipeline) render(f model.Frame, tracks []*model.Track, events []model.BehaviorEvent) {
	p.behaviorMu.Lock()
	rois := p.behaviorEngine.ListROIs()
	p.behaviorMu.Unlock()
	img := streamout.RenderOverlay(streamout.OverlayInput{
		Frame:       f,
		Tracks:      tracks,
		ROIs:        rois,
		Events:      events,
		AlarmActive: len(events) > 0,
	})

	sc := p.streamingCfg.Load()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: sc.Quality}); err == nil {
		p.streamer.Publish(img)
		p.recorder.Push(f.Timestamp, buf.Bytes())
		metrics.RecordOverlayUpdate(p.backendName)

		if p.dispatcher != nil {
			for _, ev := range events {
				payload := streamout.BuildAlarmPayload(ev, buf.Bytes())
				if payload.EventID == "" {
					payload.EventID = uuid.New().String()
				}
				p.dispatcher.Dispatch(payload)
			}
		}
	}
}

// AddROI / RemoveROI / UpdateRule / ListRules provide thread-safe,
// atomic-replacement rule/ROI management (delegated to the behavior
// engine, which owns its own locking).

func (p *Pipeline) AddROI(roi *model.ROI) {
	p.behaviorMu.Lock()
	defer p.behaviorMu.Unlock()
	rois := append(append([]*model.ROI{}, p.behaviorEngine.ListROIs()...), roi)
	p.behaviorEngine.SetROIs(rois)
}

func (p *Pipeline) RemoveROI(roiID string) {
	p.behaviorMu.Lock()
	defer p.behaviorMu.Unlock()
	var kept []*model.ROI
	for _, r := range p.behaviorEngine.ListROIs() {
		if r.ID != roiID {
			kept = append(kept, r)
		}
	}
	p.behaviorEngine.SetROIs(kept)
}

func (p *Pipeline) UpdateRule(rule *model.BehaviorRule) {
	p.behaviorMu.Lock()
	defer p.behaviorMu.Unlock()
	rules := p.behaviorEngine.ListRules()
	replaced := false
	out := make([]*model.BehaviorRule, 0, len(rules)+1)
	for _, r := range rules {
		if r.ID == rule.ID {
			out = append(out, rule)
			replaced = true
		} else {
			out = append(out, r)
		}
	}
	if !replaced {
		out = append(out, rule)
	}
	p.behaviorEngine.SetRules(out)
}

func (p *Pipeline) ListRules() []*model.BehaviorRule {
	p.behaviorMu.Lock()
	defer p.behaviorMu.Unlock()
	return p.behaviorEngine.ListRules()
}

// RemoveRule detaches a rule by id; a no-op if the id is unknown.
func (p *Pipeline) RemoveRule(ruleID string) {
	p.behaviorMu.Lock()
	defer p.behaviorMu.Unlock()
	var kept []*model.BehaviorRule
	for _, r := range p.behaviorEngine.ListRules() {
		if r.ID != ruleID {
			kept = append(kept, r)
		}
	}
	p.behaviorEngine.SetRules(kept)
}

// SetStreamingConfig hot-swaps the output configuration; the new
// config is picked up at the next frame boundary (render reads it via
// an atomic pointer, never mid-frame).
func (p *Pipeline) SetStreamingConfig(cfg StreamingConfig) {
	cfg = cfg.withDefaults()
	p.streamingCfg.Store(&cfg)
}

// StreamingConfig returns the currently active streaming config.
func (p *Pipeline) StreamingConfig() StreamingConfig {
	return *p.streamingCfg.Load()
}

// Streamer exposes the MJPEG HTTP handler for wiring into the API
// router.
func (p *Pipeline) Streamer() *streamout.Streamer { return p.streamer }

// Recorder exposes the annotated-frame ring buffer for snapshot and
// clip-assembly callers.
func (p *Pipeline) Recorder() *streamout.Recorder { return p.recorder }

func (p *Pipeline) setState(s model.PipelineState) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
}

// State returns the pipeline's current lifecycle state.
func (p *Pipeline) State() model.PipelineState {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

// Health returns a snapshot of the pipeline's health for the manager's
// monitoring loop and the API surface.
func (p *Pipeline) Health() model.PipelineHealth {
	return model.PipelineHealth{
		CameraID:          p.cfg.Source.ID,
		FrameRateEWMA:     p.health.FrameRateEWMA(),
		ConsecutiveErrors: p.health.ConsecutiveErrors(),
		ReconnectCount:    p.source.ReconnectCount(),
		State:             p.State(),
		SelectedBackend:   p.backendName,
		DroppedFrames:     p.source.DroppedFrames(),
	}
}
