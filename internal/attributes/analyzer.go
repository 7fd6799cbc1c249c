// Package attributes batches age/gender analysis over eligible tracks,
// using a bounded worker pool with pending-job dedup modeled on
// internal/media's RTSP validator, and an IoU-based suppression cache
// so a stationary track is not re-analyzed every frame.
package attributes

import (
	"context"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

const (
	defaultWorkerPoolSize = 4
	defaultQueueSize      = 64
	defaultBatchSize      = 4
	defaultSuppressIoU    = 0.9
)

// Analyzer is the interface a concrete age/gender model implements.
type Analyzer interface {
	Analyze(ctx context.Context, frame model.Frame, crops []model.BBox) ([]model.Attributes, error)
}

// Options configures the batch worker pool (spec §4.5 defaults).
type Options struct {
	BatchSize         int // default 4
	GenderConfidence  float64 // default 0.7
	AgeConfidence     float64 // default 0.6
	WorkerPoolSize    int
	QueueSize         int
	SuppressIoU       float64 // default 0.9, reuse last result above this IoU
	SuppressCacheSize int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.GenderConfidence <= 0 {
		o.GenderConfidence = 0.7
	}
	if o.AgeConfidence <= 0 {
		o.AgeConfidence = 0.6
	}
	if o.WorkerPoolSize <= 0 {
		o.WorkerPoolSize = defaultWorkerPoolSize
	}
	if o.QueueSize <= 0 {
		o.QueueSize = defaultQueueSize
	}
	if o.SuppressIoU <= 0 {
		o.SuppressIoU = defaultSuppressIoU
	}
	return o
}

type job struct {
	frame  model.Frame
	tracks []*model.Track
}

// Batcher accumulates eligible tracks per frame into batches of
// BatchSize and dispatches them to a bounded worker pool, skipping
// tracks whose box is within SuppressIoU of its last-analyzed box.
type Batcher struct {
	opts     Options
	analyzer Analyzer

	jobs chan job

	mu      sync.Mutex
	pending map[uint32]bool
	lastBox map[uint32]model.BBox

	suppressCache *lru.Cache[uint32, model.BBox]

	onResult func(trackID uint32, attrs model.Attributes)
}

// NewBatcher starts the worker pool immediately; callers must ensure
// ctx passed to Submit is cancelled to stop feeding new work, and should
// not reuse a Batcher after its context is done.
func NewBatcher(ctx context.Context, analyzer Analyzer, opts Options, onResult func(uint32, model.Attributes)) *Batcher {
	opts = opts.withDefaults()
	cache, _ := lru.New[uint32, model.BBox](4096)
	b := &Batcher{
		opts:          opts,
		analyzer:      analyzer,
		jobs:          make(chan job, opts.QueueSize),
		pending:       make(map[uint32]bool),
		lastBox:       make(map[uint32]model.BBox),
		suppressCache: cache,
		onResult:      onResult,
	}
	for i := 0; i < opts.WorkerPoolSize; i++ {
		go b.worker(ctx)
	}
	return b
}

// Submit gates tracks by class/size eligibility and IoU-suppression,
// batches the survivors, and enqueues them. Returns the number of
// tracks actually enqueued for analysis this call.
func (b *Batcher) Submit(frame model.Frame, tracks []*model.Track) int {
	var eligible []*model.Track

	b.mu.Lock()
	for _, tr := range tracks {
		if !b.eligible(tr) {
			continue
		}
		if b.pending[tr.LocalID] {
			continue
		}
		if last, ok := b.suppressCache.Get(tr.LocalID); ok {
			if last.IoU(tr.BBox) >= b.opts.SuppressIoU {
				continue
			}
		}
		eligible = append(eligible, tr)
	}
	for _, tr := range eligible {
		b.pending[tr.LocalID] = true
	}
	b.mu.Unlock()

	enqueued := 0
	for start := 0; start < len(eligible); start += b.opts.BatchSize {
		end := start + b.opts.BatchSize
		if end > len(eligible) {
			end = len(eligible)
		}
		batch := eligible[start:end]

		select {
		case b.jobs <- job{frame: frame, tracks: batch}:
			enqueued += len(batch)
		default:
			// Queue full: drop this batch, clear its pending marks so a
			// later frame can retry.
			b.mu.Lock()
			for _, tr := range batch {
				delete(b.pending, tr.LocalID)
			}
			b.mu.Unlock()
		}
	}
	return enqueued
}

func (b *Batcher) eligible(tr *model.Track) bool {
	if tr.ClassName != "person" {
		return false
	}
	if tr.State == model.TrackRemoved {
		return false
	}
	return tr.BBox.W >= 20 && tr.BBox.H >= 40
}

func (b *Batcher) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-b.jobs:
			if !ok {
				return
			}
			b.process(ctx, j)
		}
	}
}

func (b *Batcher) process(ctx context.Context, j job) {
	boxes := make([]model.BBox, len(j.tracks))
	for i, tr := range j.tracks {
		boxes[i] = tr.BBox
	}

	results, err := b.analyzer.Analyze(ctx, j.frame, boxes)

	b.mu.Lock()
	for _, tr := range j.tracks {
		delete(b.pending, tr.LocalID)
		b.suppressCache.Add(tr.LocalID, tr.BBox)
	}
	b.mu.Unlock()

	if err != nil {
		return
	}
	if len(results) != len(j.tracks) {
		return
	}

	for i, tr := range j.tracks {
		attrs := results[i]
		if attrs.GenderConfidence < b.opts.GenderConfidence {
			attrs.Gender = ""
		}
		if attrs.AgeConfidence < b.opts.AgeConfidence {
			attrs.AgeBucket = ""
		}
		if b.onResult != nil {
			b.onResult(tr.LocalID, attrs)
		}
	}
}
