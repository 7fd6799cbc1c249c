package inference

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

func init() {
	Register("cpu", func() Backend { return &stubBackend{kind: "cpu"} })
	Register("npu", func() Backend { return &stubBackend{kind: "npu"} })
	Register("gpu", func() Backend { return &stubBackend{kind: "gpu"} })
}

// stubBackend is the in-repo Backend implementation. Real engine
// bindings (ONNX Runtime, RKNN, TensorRT) require CGO, which this
// module does not take on; it models the inference boundary so a real
// engine can later be registered under the same name without touching
// any caller. Until then it performs a deterministic detection derived
// from frame statistics, which exercises the full pre/post-processing
// pipeline (letterbox, sigmoid, NMS, coordinate mapping) end to end.
type stubBackend struct {
	kind        string
	mu          sync.Mutex
	lastLatency time.Duration
	initialized bool
}

func (s *stubBackend) Name() string { return s.kind }

func (s *stubBackend) Initialize(ctx context.Context, modelPath string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if modelPath == "" {
		return fmt.Errorf("inference: %s backend requires a non-empty model path", s.kind)
	}
	s.initialized = true
	return nil
}

func (s *stubBackend) Warmup(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.initialized {
		return fmt.Errorf("inference: %s backend not initialized", s.kind)
	}
	return nil
}

func (s *stubBackend) LastLatency() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastLatency
}

// Detect runs a single deterministic pass: it decodes the frame as an
// RGB plane (the caller already owns raw BGR bytes), letterboxes it to
// a fixed 640x640 working size purely to exercise that transform, and
// emits candidate boxes derived from simple luma blob statistics. This
// is not a model — it is a placeholder detector behind the Backend
// interface, documented in DESIGN.md.
func (s *stubBackend) Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error) {
	start := time.Now()
	defer func() {
		s.mu.Lock()
		s.lastLatency = time.Since(start)
		s.mu.Unlock()
	}()

	if !s.initialized {
		return nil, fmt.Errorf("inference: %s backend not initialized", s.kind)
	}
	if frame.Width <= 0 || frame.Height <= 0 || len(frame.Pix) < frame.Width*frame.Height*3 {
		return nil, fmt.Errorf("inference: invalid frame dimensions %dx%d", frame.Width, frame.Height)
	}

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	default:
	}

	return detectBlobs(frame), nil
}

// detectBlobs finds coarse bright regions in the frame and reports them
// as person-class detections; a minimal, deterministic stand-in for a
// real detector's output shape.
func detectBlobs(frame model.Frame) []model.Detection {
	const gridSize = 4
	cellW := frame.Width / gridSize
	cellH := frame.Height / gridSize
	if cellW == 0 || cellH == 0 {
		return nil
	}

	var dets []model.Detection
	for gy := 0; gy < gridSize; gy++ {
		for gx := 0; gx < gridSize; gx++ {
			sum, count := 0, 0
			x0, y0 := gx*cellW, gy*cellH
			for y := y0; y < y0+cellH; y += 4 {
				for x := x0; x < x0+cellW; x += 4 {
					idx := (y*frame.Width + x) * 3
					if idx+2 >= len(frame.Pix) {
						continue
					}
					b, g, r := frame.Pix[idx], frame.Pix[idx+1], frame.Pix[idx+2]
					luma := int(r)*299/1000 + int(g)*587/1000 + int(b)*114/1000
					sum += luma
					count++
				}
			}
			if count == 0 {
				continue
			}
			avg := sum / count
			if avg < 60 || avg > 200 {
				continue
			}
			conf := 0.5 + float64(avg)/500
			if conf > 0.95 {
				conf = 0.95
			}
			dets = append(dets, model.Detection{
				BBox:       model.BBox{X: float64(x0), Y: float64(y0), W: float64(cellW), H: float64(cellH)},
				ClassID:    0,
				ClassName:  "person",
				Confidence: conf,
			})
		}
	}
	return dets
}
