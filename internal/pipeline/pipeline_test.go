package pipeline

import (
	"context"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
	"github.com/tingzhh2025/aisecurityvision/internal/streamout"
)

// failingBackend is a Backend stand-in that always fails Detect, used
// to drive the degrade/fallback/retry-once path in Tick.
type failingBackend struct {
	name string
	err  error
}

func (f *failingBackend) Name() string                                      { return f.name }
func (f *failingBackend) Initialize(ctx context.Context, modelPath string) error { return nil }
func (f *failingBackend) Warmup(ctx context.Context) error                  { return nil }
func (f *failingBackend) LastLatency() time.Duration                        { return 0 }
func (f *failingBackend) Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error) {
	return nil, f.err
}

type fakeDecoder struct {
	seq int32
}

func (d *fakeDecoder) Open(ctx context.Context, src model.VideoSource) error { return nil }

func (d *fakeDecoder) NextFrame(ctx context.Context) (model.Frame, error) {
	n := atomic.AddInt32(&d.seq, 1)
	pix := make([]byte, 16*16*4)
	return model.Frame{CameraID: "cam1", Seq: uint64(n), Timestamp: time.Now(), Width: 16, Height: 16, Pix: pix}, nil
}

func (d *fakeDecoder) Close() error { return nil }

func TestPipelineInitializeSelectsBackendAndStartsRunning(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		Source:    model.VideoSource{ID: "cam1"},
		Decoder:   &fakeDecoder{},
		ModelPath: "model.onnx",
		ROIs:      nil,
		Rules:     nil,
	}
	p := New(cfg)
	res, err := p.Initialize(ctx)
	if err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if res.State != model.PipelineRunning {
		t.Errorf("expected Running state, got %v", res.State)
	}
}

func TestPipelineTickProducesHealthAndOverlay(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		Source:    model.VideoSource{ID: "cam1"},
		Decoder:   &fakeDecoder{},
		ModelPath: "model.onnx",
	}
	p := New(cfg)
	if _, err := p.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	if err := p.Tick(ctx); err != nil {
		t.Fatalf("Tick error: %v", err)
	}

	h := p.Health()
	if h.CameraID != "cam1" {
		t.Errorf("expected camera id cam1, got %s", h.CameraID)
	}
	if h.SelectedBackend == "" {
		t.Error("expected a selected backend name")
	}
}

func TestPipelineAddRemoveROIThreadSafe(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{Source: model.VideoSource{ID: "cam1"}, Decoder: &fakeDecoder{}, ModelPath: "model.onnx"}
	p := New(cfg)
	if _, err := p.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}

	roi := &model.ROI{ID: "roi1", Name: "zone", Polygon: []model.Point{{X: 0, Y: 0}, {X: 10, Y: 0}, {X: 10, Y: 10}}, Priority: 1, Enabled: true}
	p.AddROI(roi)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 50; i++ {
			_ = p.Tick(ctx)
		}
		close(done)
	}()
	p.RemoveROI("roi1")
	<-done
}

func TestPipelineStartStop(t *testing.T) {
	ctx := context.Background()
	cfg := Config{Source: model.VideoSource{ID: "cam1"}, Decoder: &fakeDecoder{}, ModelPath: "model.onnx"}
	p := New(cfg)
	if _, err := p.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	p.Start(ctx)
	time.Sleep(20 * time.Millisecond)
	p.Stop(ctx)
	if p.State() != model.PipelineInit {
		t.Errorf("expected Init state after Stop, got %v", p.State())
	}
}

func TestTickFallsBackToNextBackendOnDetectFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		Source:          model.VideoSource{ID: "cam1"},
		Decoder:         &fakeDecoder{},
		ModelPath:       "model.onnx",
		BackendPriority: []string{"gpu", "npu", "cpu"},
	}
	p := New(cfg)
	if _, err := p.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	if p.backendName != "gpu" {
		t.Fatalf("expected gpu selected first, got %s", p.backendName)
	}

	// Simulate a runtime detect failure on the active backend.
	p.backend = &failingBackend{name: "gpu", err: fmt.Errorf("device lost")}

	if err := p.Tick(ctx); err != nil {
		t.Fatalf("expected Tick to recover via fallback, got error: %v", err)
	}
	if p.backendName != "npu" {
		t.Errorf("expected fallback to reinitialize npu, got %s", p.backendName)
	}
}

func TestTickFailsWhenFallbackExhausted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cfg := Config{
		Source:          model.VideoSource{ID: "cam1"},
		Decoder:         &fakeDecoder{},
		ModelPath:       "model.onnx",
		BackendPriority: []string{"gpu"},
	}
	p := New(cfg)
	if _, err := p.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	p.backend = &failingBackend{name: "gpu", err: fmt.Errorf("device lost")}

	if err := p.Tick(ctx); err == nil {
		t.Fatal("expected Tick to fail when the priority order has no backend left to fall back to")
	}
}

func TestPipelineStreamingConfigHotReload(t *testing.T) {
	cfg := Config{Source: model.VideoSource{ID: "cam1"}, Decoder: &fakeDecoder{}, ModelPath: "model.onnx"}
	p := New(cfg)
	p.SetStreamingConfig(StreamingConfig{Quality: 50, FPS: 10})
	got := p.StreamingConfig()
	if got.Quality != 50 || got.FPS != 10 {
		t.Errorf("expected updated streaming config, got %+v", got)
	}
}

func TestPipelineDispatchesAlarmOnEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := streamout.NewDispatcher(ctx, 1, 8)
	rule := &model.BehaviorRule{ID: "r1", Kind: model.RuleIntrusion, Enabled: true, ROIID: "roi1", MinDuration: 0}
	roi := &model.ROI{ID: "roi1", Polygon: []model.Point{{X: 0, Y: 0}, {X: 20, Y: 0}, {X: 20, Y: 20}, {X: 0, Y: 20}}, Priority: 1, Enabled: true}

	cfg := Config{
		Source:     model.VideoSource{ID: "cam1"},
		Decoder:    &fakeDecoder{},
		ModelPath:  "model.onnx",
		Dispatcher: d,
		ROIs:       []*model.ROI{roi},
		Rules:      []*model.BehaviorRule{rule},
	}
	p := New(cfg)
	if _, err := p.Initialize(ctx); err != nil {
		t.Fatalf("Initialize error: %v", err)
	}
	// Drive enough ticks for the detector's stub blob detections (if any)
	// to confirm a track and potentially fire the intrusion rule; this
	// test only asserts Tick runs cleanly through the dispatch path.
	for i := 0; i < 5; i++ {
		if err := p.Tick(ctx); err != nil {
			t.Fatalf("Tick error: %v", err)
		}
	}
}
