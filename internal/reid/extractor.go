package reid

import (
	"context"
	"math"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// Extractor produces a fixed-dimension appearance embedding for a
// cropped detection. Implementations wrap a real ReID model; this
// package only defines the gate and caching around the interface.
type Extractor interface {
	Extract(ctx context.Context, frame model.Frame, box model.BBox) ([]float32, error)
}

// GateOptions controls which tracks are eligible for embedding
// extraction (spec §4.4: person-class only, minimum crop size).
type GateOptions struct {
	MinCropWidth  int // default 32
	MinCropHeight int // default 64
	CacheSize     int
	CacheTTL      time.Duration // default 2s
}

func (o GateOptions) withDefaults() GateOptions {
	if o.MinCropWidth <= 0 {
		o.MinCropWidth = 32
	}
	if o.MinCropHeight <= 0 {
		o.MinCropHeight = 64
	}
	if o.CacheTTL <= 0 {
		o.CacheTTL = 2 * time.Second
	}
	return o
}

// Gate wraps an Extractor with the person-class/min-size eligibility
// check and the stable-bbox cache.
type Gate struct {
	extractor Extractor
	opts      GateOptions
	cache     *embeddingCache
}

func NewGate(extractor Extractor, opts GateOptions) *Gate {
	opts = opts.withDefaults()
	return &Gate{
		extractor: extractor,
		opts:      opts,
		cache:     newEmbeddingCache(opts.CacheSize, opts.CacheTTL),
	}
}

// Eligible reports whether track qualifies for ReID extraction: must be
// class "person" and its box must meet the minimum crop dimensions.
func (g *Gate) Eligible(track *model.Track) bool {
	if track.ClassName != "person" {
		return false
	}
	return int(track.BBox.W) >= g.opts.MinCropWidth && int(track.BBox.H) >= g.opts.MinCropHeight
}

// ExtractFor returns an embedding for track in frame, using the cache
// when the track's box has not moved meaningfully since the last
// extraction within CacheTTL.
func (g *Gate) ExtractFor(ctx context.Context, frame model.Frame, track *model.Track) (*model.ReIDEmbedding, error) {
	if !g.Eligible(track) {
		return nil, nil
	}

	key := Key(frame.CameraID, track.LocalID, track.BBox.X, track.BBox.Y, track.BBox.W, track.BBox.H)
	if v, ok := g.cache.Get(key); ok {
		return &model.ReIDEmbedding{
			Vector:       v,
			L2Normalized: true,
			LocalTrackID: track.LocalID,
			CameraID:     frame.CameraID,
			Timestamp:    frame.Timestamp,
		}, nil
	}

	vec, err := g.extractor.Extract(ctx, frame, track.BBox)
	if err != nil {
		return nil, err
	}
	vec = l2Normalize(vec)
	g.cache.Put(key, vec)

	return &model.ReIDEmbedding{
		Vector:       vec,
		L2Normalized: true,
		LocalTrackID: track.LocalID,
		CameraID:     frame.CameraID,
		Timestamp:    frame.Timestamp,
	}, nil
}

func l2Normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	if sumSq == 0 {
		return v
	}
	norm := math.Sqrt(sumSq)
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
