package manager

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
	"github.com/tingzhh2025/aisecurityvision/internal/pipeline"
)

type fakeDecoder struct{ seq int32 }

func (d *fakeDecoder) Open(ctx context.Context, src model.VideoSource) error { return nil }

func (d *fakeDecoder) NextFrame(ctx context.Context) (model.Frame, error) {
	n := atomic.AddInt32(&d.seq, 1)
	return model.Frame{CameraID: "cam", Seq: uint64(n), Timestamp: time.Now(), Width: 16, Height: 16, Pix: make([]byte, 16*16*4)}, nil
}

func (d *fakeDecoder) Close() error { return nil }

func cfgFor(id string) pipeline.Config {
	return pipeline.Config{
		Source:    model.VideoSource{ID: id},
		Decoder:   &fakeDecoder{},
		ModelPath: "model.onnx",
	}
}

func TestAddPipelineAllocatesPortAndRegisters(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{PortRangeLow: 20000, PortRangeHigh: 20010}, nil)
	res, err := m.AddPipeline(ctx, cfgFor("cam1"))
	if err != nil {
		t.Fatalf("AddPipeline error: %v", err)
	}
	if res.MJPEGPort < 20000 || res.MJPEGPort > 20010 {
		t.Errorf("expected port in managed range, got %d", res.MJPEGPort)
	}
	if m.Count() != 1 {
		t.Errorf("expected 1 registered pipeline, got %d", m.Count())
	}

	if err := m.RemovePipeline(ctx, "cam1"); err != nil {
		t.Fatalf("RemovePipeline error: %v", err)
	}
	if m.Count() != 0 {
		t.Errorf("expected 0 registered pipelines after remove, got %d", m.Count())
	}
}

func TestAddPipelineRejectsDuplicateCamera(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{PortRangeLow: 20100, PortRangeHigh: 20110}, nil)
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != nil {
		t.Fatalf("AddPipeline error: %v", err)
	}
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != ErrAlreadyExists {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestAddPipelineEnforcesMaxPipelines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{MaxPipelines: 2, PortRangeLow: 20200, PortRangeHigh: 20210}, nil)
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != nil {
		t.Fatalf("AddPipeline cam1: %v", err)
	}
	if _, err := m.AddPipeline(ctx, cfgFor("cam2")); err != nil {
		t.Fatalf("AddPipeline cam2: %v", err)
	}
	if _, err := m.AddPipeline(ctx, cfgFor("cam3")); err != ErrMaxPipelinesExceeded {
		t.Errorf("expected ErrMaxPipelinesExceeded, got %v", err)
	}
}

func TestAddPipelinePortRangeExhausted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{MaxPipelines: 10, PortRangeLow: 21000, PortRangeHigh: 21001}, nil)
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != nil {
		t.Fatalf("AddPipeline cam1: %v", err)
	}
	if _, err := m.AddPipeline(ctx, cfgFor("cam2")); err != nil {
		t.Fatalf("AddPipeline cam2: %v", err)
	}
	if _, err := m.AddPipeline(ctx, cfgFor("cam3")); err != ErrPortRangeExhausted {
		t.Errorf("expected ErrPortRangeExhausted, got %v", err)
	}
}

func TestRemovePipelineReleasesPortForReuse(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{PortRangeLow: 22000, PortRangeHigh: 22000}, nil)
	res1, err := m.AddPipeline(ctx, cfgFor("cam1"))
	if err != nil {
		t.Fatalf("AddPipeline cam1: %v", err)
	}
	if err := m.RemovePipeline(ctx, "cam1"); err != nil {
		t.Fatalf("RemovePipeline cam1: %v", err)
	}
	res2, err := m.AddPipeline(ctx, cfgFor("cam2"))
	if err != nil {
		t.Fatalf("AddPipeline cam2 after release: %v", err)
	}
	if res2.MJPEGPort != res1.MJPEGPort {
		t.Errorf("expected released port %d to be reused, got %d", res1.MJPEGPort, res2.MJPEGPort)
	}
}

type fakeLimiter struct{ max int }

func (f fakeLimiter) MaxPipelines() int { return f.max }

func TestLicenseLimiterTightensQuota(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{MaxPipelines: 32, PortRangeLow: 23000, PortRangeHigh: 23010, Licensing: fakeLimiter{max: 1}}, nil)
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != nil {
		t.Fatalf("AddPipeline cam1: %v", err)
	}
	if _, err := m.AddPipeline(ctx, cfgFor("cam2")); err != ErrMaxPipelinesExceeded {
		t.Errorf("expected license quota to cap at 1, got %v", err)
	}
}

func TestMonitorLoopPublishesSnapshotAndRemovesFailedPipelines(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var snapshots int32
	m := New(Options{PortRangeLow: 24000, PortRangeHigh: 24010, TickInterval: 20 * time.Millisecond}, func(s TelemetrySnapshot) {
		atomic.AddInt32(&snapshots, 1)
	})
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != nil {
		t.Fatalf("AddPipeline cam1: %v", err)
	}

	m.Start(ctx)
	defer m.Stop(ctx)

	deadline := time.Now().Add(500 * time.Millisecond)
	for atomic.LoadInt32(&snapshots) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if atomic.LoadInt32(&snapshots) == 0 {
		t.Fatal("expected at least one telemetry snapshot to be published")
	}

	snap := m.Snapshot()
	if !snap.MonitoringHealthy {
		t.Error("expected MonitoringHealthy true")
	}
	if len(snap.Pipelines) != 1 {
		t.Errorf("expected 1 pipeline health entry, got %d", len(snap.Pipelines))
	}
}

func TestGetReturnsRegisteredPipeline(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m := New(Options{PortRangeLow: 25000, PortRangeHigh: 25010}, nil)
	if _, err := m.AddPipeline(ctx, cfgFor("cam1")); err != nil {
		t.Fatalf("AddPipeline cam1: %v", err)
	}
	p, ok := m.Get("cam1")
	if !ok || p == nil {
		t.Fatal("expected to find registered pipeline cam1")
	}
	if _, ok := m.Get("missing"); ok {
		t.Error("expected missing camera to not be found")
	}
}

func TestRemovePipelineNotFound(t *testing.T) {
	m := New(Options{}, nil)
	if err := m.RemovePipeline(context.Background(), "nope"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}
