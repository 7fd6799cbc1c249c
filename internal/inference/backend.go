// Package inference implements the detection-backend abstraction: a
// common Backend interface, a registry of cpu/npu/gpu variants, an Auto
// selector that falls back across a priority order, and the
// pre/post-processing shared by every variant (letterbox resize,
// sigmoid+NMS decode, FP16->FP32 conversion).
package inference

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// Backend is one detection engine implementation. Implementations must
// be safe for concurrent Detect calls only if they document so; the
// pipeline serializes calls to a given Backend by default.
type Backend interface {
	// Initialize loads weights/engine resources for modelPath. Called
	// once before the first Detect.
	Initialize(ctx context.Context, modelPath string) error
	// Detect runs inference on a single decoded frame and returns raw
	// (pre-NMS) detections already in frame pixel coordinates.
	Detect(ctx context.Context, frame model.Frame) ([]model.Detection, error)
	// Warmup runs a throwaway inference pass to pay JIT/allocation costs
	// outside the latency-sensitive path.
	Warmup(ctx context.Context) error
	// LastLatency returns the duration of the most recent Detect call.
	LastLatency() time.Duration
	// Name returns the backend's registry key (cpu, npu, gpu, ...).
	Name() string
}

// Factory constructs an uninitialized Backend instance.
type Factory func() Backend

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register adds a factory under name, normalized to lower case. Intended
// to be called from init() in each backend variant's file.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[strings.ToLower(name)] = f
}

// Get constructs a fresh Backend for the given registry name.
func Get(name string) (Backend, error) {
	registryMu.RLock()
	f, ok := registry[strings.ToLower(name)]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("inference: unknown backend %q", name)
	}
	return f(), nil
}

// DefaultPriority is the fallback order used by Auto when the caller
// does not supply one (spec §4.2 default: gpu, npu, cpu).
var DefaultPriority = []string{"gpu", "npu", "cpu"}

// AutoSelect initializes the first backend in priority whose Initialize
// call succeeds, returning the selected Backend and its name. Backends
// that fail to initialize are logged by the caller via the returned
// error chain, not retried.
func AutoSelect(ctx context.Context, modelPath string, priority []string) (Backend, string, error) {
	if len(priority) == 0 {
		priority = DefaultPriority
	}
	var errs []string
	for _, name := range priority {
		b, err := Get(name)
		if err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		if err := b.Initialize(ctx, modelPath); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		return b, name, nil
	}
	return nil, "", fmt.Errorf("inference: no backend available, tried [%s]: %s",
		strings.Join(priority, ","), strings.Join(errs, "; "))
}
