package behavior

import (
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

func square(x0, y0, side float64) []model.Point {
	return []model.Point{{X: x0, Y: y0}, {X: x0 + side, Y: y0}, {X: x0 + side, Y: y0 + side}, {X: x0, Y: y0 + side}}
}

func confirmedTrack(id uint32, cx, cy float64) *model.Track {
	return &model.Track{
		LocalID:   id,
		ClassID:   0,
		ClassName: "person",
		State:     model.TrackConfirmed,
		BBox:      model.BBox{X: cx - 5, Y: cy - 10, W: 10, H: 10}, // bottom-center = (cx, cy)
	}
}

func TestIntrusionFiresAfterMinDuration(t *testing.T) {
	e := New("cam1")
	e.SetROIs([]*model.ROI{{ID: "roi1", Enabled: true, Polygon: square(0, 0, 100), Priority: 1}})
	e.SetRules([]*model.BehaviorRule{{ID: "r1", Kind: model.RuleIntrusion, Enabled: true, ROIID: "roi1", MinDuration: 2 * time.Second}})

	t0 := time.Now()
	tr := confirmedTrack(1, 50, 50)

	if ev := e.Evaluate(t0, []*model.Track{tr}); len(ev) != 0 {
		t.Fatalf("expected no event on first tick, got %d", len(ev))
	}
	if ev := e.Evaluate(t0.Add(1*time.Second), []*model.Track{tr}); len(ev) != 0 {
		t.Fatalf("expected no event before min_duration, got %d", len(ev))
	}
	ev := e.Evaluate(t0.Add(3*time.Second), []*model.Track{tr})
	if len(ev) != 1 {
		t.Fatalf("expected 1 intrusion event after min_duration elapsed, got %d", len(ev))
	}
	if ev[0].EventType != model.EventIntrusion {
		t.Errorf("expected EventIntrusion, got %v", ev[0].EventType)
	}

	// Should not re-fire on the next tick while still inside.
	if ev := e.Evaluate(t0.Add(4*time.Second), []*model.Track{tr}); len(ev) != 0 {
		t.Errorf("expected no duplicate event, got %d", len(ev))
	}
}

func TestIntrusionFiresOnlyForAllowedClasses(t *testing.T) {
	e := New("cam1")
	e.SetROIs([]*model.ROI{{ID: "roi1", Enabled: true, Polygon: square(0, 0, 100), Priority: 1}})
	e.SetRules([]*model.BehaviorRule{{
		ID: "r1", Kind: model.RuleIntrusion, Enabled: true, ROIID: "roi1",
		MinDuration:    0,
		AllowedClasses: map[int]bool{0: true},
	}})

	// ClassID 0 is in AllowedClasses: the rule must fire for it.
	allowed := confirmedTrack(1, 50, 50)
	t0 := time.Now()
	e.Evaluate(t0, []*model.Track{allowed}) // first tick opens the dwell window
	if ev := e.Evaluate(t0.Add(time.Millisecond), []*model.Track{allowed}); len(ev) != 1 {
		t.Fatalf("expected intrusion event for allowed class, got %d", len(ev))
	}

	// ClassID 1 is not in AllowedClasses: the rule must not fire for it.
	e2 := New("cam1")
	e2.SetROIs([]*model.ROI{{ID: "roi1", Enabled: true, Polygon: square(0, 0, 100), Priority: 1}})
	e2.SetRules([]*model.BehaviorRule{{
		ID: "r1", Kind: model.RuleIntrusion, Enabled: true, ROIID: "roi1",
		MinDuration:    0,
		AllowedClasses: map[int]bool{0: true},
	}})
	other := confirmedTrack(2, 50, 50)
	other.ClassID = 1
	e2.Evaluate(t0, []*model.Track{other})
	if ev := e2.Evaluate(t0.Add(time.Millisecond), []*model.Track{other}); len(ev) != 0 {
		t.Errorf("expected no event for a class outside allowed_classes, got %d", len(ev))
	}
}

func TestROIPriorityResolutionHighestWins(t *testing.T) {
	e := New("cam1")
	e.SetROIs([]*model.ROI{
		{ID: "low", Enabled: true, Polygon: square(0, 0, 100), Priority: 1},
		{ID: "high", Enabled: true, Polygon: square(25, 25, 50), Priority: 5},
	})
	// Point inside both: should resolve to "high".
	resolved := e.resolveROI(model.Point{X: 50, Y: 50}, time.Now())
	if resolved == nil || resolved.ID != "high" {
		t.Fatalf("expected highest-priority ROI to win, got %+v", resolved)
	}
}

func TestROIPriorityTieBreaksLexicographically(t *testing.T) {
	e := New("cam1")
	e.SetROIs([]*model.ROI{
		{ID: "zzz", Enabled: true, Polygon: square(0, 0, 100), Priority: 3},
		{ID: "aaa", Enabled: true, Polygon: square(0, 0, 100), Priority: 3},
	})
	resolved := e.resolveROI(model.Point{X: 50, Y: 50}, time.Now())
	if resolved == nil || resolved.ID != "aaa" {
		t.Fatalf("expected lexicographically smallest id to win tie, got %+v", resolved)
	}
}

func TestIntrusionOnlyFiresForResolvedROI(t *testing.T) {
	// A lower-priority ROI containing the point should not fire its own
	// intrusion rule when a higher-priority ROI also contains the point.
	e := New("cam1")
	e.SetROIs([]*model.ROI{
		{ID: "low", Enabled: true, Polygon: square(0, 0, 100), Priority: 1},
		{ID: "high", Enabled: true, Polygon: square(25, 25, 50), Priority: 5},
	})
	e.SetRules([]*model.BehaviorRule{
		{ID: "r-low", Kind: model.RuleIntrusion, Enabled: true, ROIID: "low"},
		{ID: "r-high", Kind: model.RuleIntrusion, Enabled: true, ROIID: "high"},
	})
	tr := confirmedTrack(1, 50, 50)
	ev := e.Evaluate(time.Now(), []*model.Track{tr})
	if len(ev) != 1 {
		t.Fatalf("expected exactly 1 event (single dispatch), got %d", len(ev))
	}
	if ev[0].RuleID != "r-high" {
		t.Errorf("expected the higher-priority ROI's rule to fire, got %q", ev[0].RuleID)
	}
}

func TestCrowdHysteresisPreventsRapidRefire(t *testing.T) {
	e := New("cam1")
	e.SetROIs([]*model.ROI{{ID: "roi1", Enabled: true, Polygon: square(0, 0, 1000), Priority: 1}})
	e.SetRules([]*model.BehaviorRule{{ID: "r1", Kind: model.RuleCrowd, Enabled: true, ROIID: "roi1", CountThreshold: 3}})

	t0 := time.Now()
	above := []*model.Track{confirmedTrack(1, 10, 10), confirmedTrack(2, 20, 20), confirmedTrack(3, 30, 30)}
	below := []*model.Track{confirmedTrack(1, 10, 10), confirmedTrack(2, 20, 20)}

	ev := e.Evaluate(t0, above)
	if len(ev) != 1 {
		t.Fatalf("expected crowd event on first crossing, got %d", len(ev))
	}

	// Still above threshold: must not re-fire.
	if ev := e.Evaluate(t0.Add(time.Second), above); len(ev) != 0 {
		t.Errorf("expected no re-fire while still above threshold, got %d", len(ev))
	}

	// Drops below threshold-1 briefly (<2s) then back above: must not re-fire yet.
	e.Evaluate(t0.Add(2*time.Second), below)
	if ev := e.Evaluate(t0.Add(3*time.Second), above); len(ev) != 0 {
		t.Errorf("expected no re-fire before hysteresis window elapses, got %d", len(ev))
	}

	// Stays below threshold-1 for >=2s, then crosses again: should re-fire.
	e.Evaluate(t0.Add(4*time.Second), below)
	e.Evaluate(t0.Add(6*time.Second), below)
	ev = e.Evaluate(t0.Add(7*time.Second), above)
	if len(ev) != 1 {
		t.Fatalf("expected crowd re-fire after hysteresis window, got %d", len(ev))
	}
}

func TestLineCrossFiresOnceOnCrossing(t *testing.T) {
	e := New("cam1")
	e.SetRules([]*model.BehaviorRule{{
		ID: "r1", Kind: model.RuleLineCross, Enabled: true,
		LineA: model.Point{X: 0, Y: 50}, LineB: model.Point{X: 100, Y: 50},
		Direction: model.DirectionEither,
	}})

	t0 := time.Now()
	before := confirmedTrack(1, 50, 20) // above the line
	after := confirmedTrack(1, 50, 80)  // below the line

	if ev := e.Evaluate(t0, []*model.Track{before}); len(ev) != 0 {
		t.Fatalf("expected no event on first sighting, got %d", len(ev))
	}
	ev := e.Evaluate(t0.Add(time.Second), []*model.Track{after})
	if len(ev) != 1 {
		t.Fatalf("expected 1 line-cross event, got %d", len(ev))
	}
	if ev[0].EventType != model.EventLineCross {
		t.Errorf("expected EventLineCross, got %v", ev[0].EventType)
	}

	// No further crossing: no duplicate event.
	if ev := e.Evaluate(t0.Add(2*time.Second), []*model.Track{after}); len(ev) != 0 {
		t.Errorf("expected no duplicate event while staying on same side, got %d", len(ev))
	}
}

func TestLineCrossDirectionFilter(t *testing.T) {
	e := New("cam1")
	e.SetRules([]*model.BehaviorRule{{
		ID: "r1", Kind: model.RuleLineCross, Enabled: true,
		LineA: model.Point{X: 0, Y: 50}, LineB: model.Point{X: 100, Y: 50},
		Direction: model.DirectionBToA,
	}})

	t0 := time.Now()
	before := confirmedTrack(1, 50, 20)
	after := confirmedTrack(1, 50, 80)

	e.Evaluate(t0, []*model.Track{before})
	side := lineSide(model.Point{X: 0, Y: 50}, model.Point{X: 100, Y: 50}, model.Point{X: 50, Y: 20})
	t.Logf("side of 'before' point: %v", side)

	ev := e.Evaluate(t0.Add(time.Second), []*model.Track{after})
	// Whichever direction this particular crossing represents, only one
	// of DirectionAToB/DirectionBToA should ever pass the filter; assert
	// the filter is at least consistently applied (no panic, len 0 or 1).
	if len(ev) > 1 {
		t.Fatalf("expected at most 1 event, got %d", len(ev))
	}
}
