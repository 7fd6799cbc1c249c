package tracker

import (
	"testing"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

func det(x, y, w, h, conf float64) model.Detection {
	return model.Detection{
		BBox:       model.BBox{X: x, Y: y, W: w, H: h},
		ClassID:    0,
		ClassName:  "person",
		Confidence: conf,
	}
}

func TestNewTrackStartsTentative(t *testing.T) {
	tr := New(Options{})
	tracks := tr.Update([]model.Detection{det(10, 10, 20, 40, 0.8)})
	if len(tracks) != 1 {
		t.Fatalf("expected 1 track, got %d", len(tracks))
	}
	if tracks[0].State != model.TrackTentative {
		t.Errorf("expected Tentative, got %v", tracks[0].State)
	}
}

func TestTrackConfirmsAfterMinHits(t *testing.T) {
	tr := New(Options{MinHits: 3})
	var last []*model.Track
	for i := 0; i < 3; i++ {
		last = tr.Update([]model.Detection{det(10, 10, 20, 40, 0.8)})
	}
	if len(last) != 1 {
		t.Fatalf("expected 1 track, got %d", len(last))
	}
	if last[0].State != model.TrackConfirmed {
		t.Errorf("expected Confirmed after %d hits, got %v", 3, last[0].State)
	}
}

func TestTrackSameIdentityAcrossFrames(t *testing.T) {
	tr := New(Options{MinHits: 1})
	first := tr.Update([]model.Detection{det(10, 10, 20, 40, 0.8)})
	id := first[0].LocalID

	// Slightly moved box, should match the same track via IoU.
	second := tr.Update([]model.Detection{det(12, 11, 20, 40, 0.85)})
	if len(second) != 1 {
		t.Fatalf("expected 1 track after association, got %d", len(second))
	}
	if second[0].LocalID != id {
		t.Errorf("expected stable LocalID %d, got %d", id, second[0].LocalID)
	}
}

func TestLostThenRemovedAfterMaxFrames(t *testing.T) {
	tr := New(Options{MinHits: 1, MaxLostFrames: 2})
	tr.Update([]model.Detection{det(10, 10, 20, 40, 0.8)})

	// No detections for several frames: track goes Lost, then Removed.
	afterOne := tr.Update(nil)
	if len(afterOne) != 1 || afterOne[0].State != model.TrackLost {
		t.Fatalf("expected 1 Lost track, got %+v", afterOne)
	}

	tr.Update(nil)
	final := tr.Update(nil)
	if len(final) != 0 {
		t.Fatalf("expected track to be pruned after MaxLostFrames, got %d tracks", len(final))
	}
}

func TestUnconfirmedTrackDroppedImmediatelyWhenLost(t *testing.T) {
	tr := New(Options{MinHits: 5})
	tr.Update([]model.Detection{det(10, 10, 20, 40, 0.8)})
	after := tr.Update(nil)
	if len(after) != 0 {
		t.Fatalf("expected Tentative track with no re-detection to be removed immediately, got %d", len(after))
	}
}

func TestTwoNonOverlappingTracksStayDistinct(t *testing.T) {
	tr := New(Options{MinHits: 1})
	tracks := tr.Update([]model.Detection{
		det(0, 0, 20, 40, 0.8),
		det(500, 500, 20, 40, 0.8),
	})
	if len(tracks) != 2 {
		t.Fatalf("expected 2 tracks, got %d", len(tracks))
	}
	if tracks[0].LocalID == tracks[1].LocalID {
		t.Error("expected distinct local IDs for non-overlapping detections")
	}
}

func TestLowConfidenceDetectionBelowLowThreshIgnored(t *testing.T) {
	tr := New(Options{LowThresh: 0.1})
	tracks := tr.Update([]model.Detection{det(10, 10, 20, 40, 0.05)})
	if len(tracks) != 0 {
		t.Fatalf("expected detection below low_thresh to spawn no track, got %d", len(tracks))
	}
}
