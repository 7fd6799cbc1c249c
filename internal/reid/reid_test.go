package reid

import (
	"context"
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

type fakeExtractor struct {
	vec []float32
	err error
}

func (f *fakeExtractor) Extract(ctx context.Context, frame model.Frame, box model.BBox) ([]float32, error) {
	return f.vec, f.err
}

func TestGateRejectsNonPerson(t *testing.T) {
	g := NewGate(&fakeExtractor{vec: []float32{1, 0, 0}}, GateOptions{})
	track := &model.Track{ClassName: "car", BBox: model.BBox{W: 100, H: 200}}
	if g.Eligible(track) {
		t.Error("expected non-person track to be ineligible")
	}
}

func TestGateRejectsSmallCrop(t *testing.T) {
	g := NewGate(&fakeExtractor{vec: []float32{1, 0, 0}}, GateOptions{MinCropWidth: 32, MinCropHeight: 64})
	track := &model.Track{ClassName: "person", BBox: model.BBox{W: 10, H: 10}}
	if g.Eligible(track) {
		t.Error("expected undersized crop to be ineligible")
	}
}

func TestExtractForCachesStableBox(t *testing.T) {
	ext := &fakeExtractor{vec: []float32{3, 4, 0}}
	g := NewGate(ext, GateOptions{MinCropWidth: 10, MinCropHeight: 10, CacheTTL: time.Minute})
	track := &model.Track{LocalID: 1, ClassName: "person", BBox: model.BBox{X: 0, Y: 0, W: 50, H: 100}}
	frame := model.Frame{CameraID: "cam1", Timestamp: time.Now()}

	first, err := g.ExtractFor(context.Background(), frame, track)
	if err != nil {
		t.Fatalf("ExtractFor error: %v", err)
	}
	if first == nil {
		t.Fatal("expected non-nil embedding")
	}

	ext.vec = []float32{9, 9, 9} // changed, but should not be re-read due to cache
	second, err := g.ExtractFor(context.Background(), frame, track)
	if err != nil {
		t.Fatalf("ExtractFor error: %v", err)
	}
	if second.Vector[0] != first.Vector[0] {
		t.Error("expected cached embedding to be reused for unchanged box")
	}
}

func TestMatcherMatchesSimilarEmbedding(t *testing.T) {
	m := NewMatcher(MatcherOptions{SimilarityThreshold: 0.9})
	now := time.Now()

	id1 := m.Match(&model.ReIDEmbedding{Vector: []float32{1, 0, 0}, CameraID: "cam1", LocalTrackID: 1, Timestamp: now})
	id2 := m.Match(&model.ReIDEmbedding{Vector: []float32{0.99, 0.01, 0}, CameraID: "cam2", LocalTrackID: 7, Timestamp: now})

	if id1 != id2 {
		t.Errorf("expected near-identical embeddings from different cameras to match to the same global id, got %q vs %q", id1, id2)
	}
}

func TestMatcherSeparatesDissimilarEmbedding(t *testing.T) {
	m := NewMatcher(MatcherOptions{SimilarityThreshold: 0.9})
	now := time.Now()

	id1 := m.Match(&model.ReIDEmbedding{Vector: []float32{1, 0, 0}, CameraID: "cam1", LocalTrackID: 1, Timestamp: now})
	id2 := m.Match(&model.ReIDEmbedding{Vector: []float32{0, 1, 0}, CameraID: "cam2", LocalTrackID: 2, Timestamp: now})

	if id1 == id2 {
		t.Error("expected orthogonal embeddings to form distinct global tracks")
	}
}

func TestMatcherEvictsAfterTimeout(t *testing.T) {
	m := NewMatcher(MatcherOptions{SimilarityThreshold: 0.9, MatchTimeout: time.Second})
	base := time.Now()
	m.Match(&model.ReIDEmbedding{Vector: []float32{1, 0, 0}, CameraID: "cam1", LocalTrackID: 1, Timestamp: base})

	if m.Count() != 1 {
		t.Fatalf("expected 1 global track, got %d", m.Count())
	}

	// Matching far in the future triggers eviction of the stale track
	// before the fresh one is recorded in its place.
	m.Match(&model.ReIDEmbedding{Vector: []float32{0, 1, 0}, CameraID: "cam2", LocalTrackID: 2, Timestamp: base.Add(time.Hour)})
	if m.Count() != 1 {
		t.Fatalf("expected stale global track to be evicted, got %d tracks", m.Count())
	}
}

func TestCosineSimilarityIdentical(t *testing.T) {
	sim := cosineSimilarity([]float32{1, 2, 3}, []float32{1, 2, 3})
	if sim < 0.999 {
		t.Errorf("expected identical vectors to have similarity ~1, got %v", sim)
	}
}
