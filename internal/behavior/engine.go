// Package behavior implements the polygon-based behavior rule engine:
// ROI priority resolution, and Intrusion/Loitering/Crowd/LineCross rule
// evaluation with dwell and hysteresis timers. The open/close-with-
// duration-threshold shape follows internal/health's AlertManager.
package behavior

import (
	"sort"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/geometry"
	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// Engine holds the ROI/rule configuration for one camera and the
// per-track dwell/hysteresis state needed to evaluate rules over time.
// Not safe for concurrent use; the owning pipeline serializes calls to
// Evaluate per frame.
type Engine struct {
	cameraID string
	rois     map[string]*model.ROI
	rules    []*model.BehaviorRule

	dwellStart    map[dwellKey]time.Time
	openEvents    map[dwellKey]*model.BehaviorEvent
	crowdBelowAt  map[string]time.Time // ruleID -> when count last dropped below threshold-1
	lineLastSide  map[string]map[uint32]float64 // ruleID -> trackID -> signed side
}

type dwellKey struct {
	ruleID  string
	trackID uint32
}

// New constructs an empty Engine for cameraID.
func New(cameraID string) *Engine {
	return &Engine{
		cameraID:     cameraID,
		rois:         make(map[string]*model.ROI),
		dwellStart:   make(map[dwellKey]time.Time),
		openEvents:   make(map[dwellKey]*model.BehaviorEvent),
		crowdBelowAt: make(map[string]time.Time),
		lineLastSide: make(map[string]map[uint32]float64),
	}
}

// SetROIs atomically replaces the ROI set. Rules referencing a removed
// ROI become inert (resolveROI returns nil for them) rather than being
// deleted, so a subsequent SetRules/SetROIs pair can restore them.
func (e *Engine) SetROIs(rois []*model.ROI) {
	m := make(map[string]*model.ROI, len(rois))
	for _, r := range rois {
		m[r.ID] = r
	}
	e.rois = m
}

// SetRules atomically replaces the rule set.
func (e *Engine) SetRules(rules []*model.BehaviorRule) {
	e.rules = rules
}

// ListRules returns the current rule set.
func (e *Engine) ListRules() []*model.BehaviorRule {
	return e.rules
}

// ListROIs returns the current ROI set in no particular order.
func (e *Engine) ListROIs() []*model.ROI {
	out := make([]*model.ROI, 0, len(e.rois))
	for _, r := range e.rois {
		out = append(out, r)
	}
	return out
}

// resolveROI returns the highest-priority enabled ROI containing pt at
// time now, among rois whose time window (if any) is active. Ties break
// on the lexicographically smallest ROI id.
func (e *Engine) resolveROI(pt model.Point, now time.Time) *model.ROI {
	var best *model.ROI
	for _, roi := range e.rois {
		if !roi.Enabled {
			continue
		}
		if roi.Window != nil && !roi.Window.Contains(now) {
			continue
		}
		if !geometry.PointInPolygon(geometry.Point{X: pt.X, Y: pt.Y}, toGeomPolygon(roi.Polygon)) {
			continue
		}
		if best == nil {
			best = roi
			continue
		}
		if roi.Priority > best.Priority {
			best = roi
		} else if roi.Priority == best.Priority && roi.ID < best.ID {
			best = roi
		}
	}
	return best
}

func toGeomPolygon(pts []model.Point) geometry.Polygon {
	poly := make(geometry.Polygon, len(pts))
	for i, p := range pts {
		poly[i] = geometry.Point{X: p.X, Y: p.Y}
	}
	return poly
}

// Evaluate runs every enabled rule against tracks observed at time now,
// returning newly-opened BehaviorEvents (an Intrusion/Loitering event
// fires once when its duration threshold is first crossed, a Crowd
// event fires once per hysteresis cycle, a LineCross event fires once
// per crossing).
func (e *Engine) Evaluate(now time.Time, tracks []*model.Track) []model.BehaviorEvent {
	var events []model.BehaviorEvent

	sorted := make([]*model.BehaviorRule, len(e.rules))
	copy(sorted, e.rules)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })

	for _, rule := range sorted {
		if !rule.Enabled {
			continue
		}
		switch rule.Kind {
		case model.RuleIntrusion:
			events = append(events, e.evalIntrusion(rule, now, tracks)...)
		case model.RuleLoitering:
			events = append(events, e.evalLoitering(rule, now, tracks)...)
		case model.RuleCrowd:
			if ev := e.evalCrowd(rule, now, tracks); ev != nil {
				events = append(events, *ev)
			}
		case model.RuleLineCross:
			events = append(events, e.evalLineCross(rule, now, tracks)...)
		}
	}
	return events
}

func (e *Engine) trackInROI(track *model.Track, roiID string, now time.Time) bool {
	roi, ok := e.rois[roiID]
	if !ok || !roi.Enabled {
		return false
	}
	if roi.Window != nil && !roi.Window.Contains(now) {
		return false
	}
	x, y := track.BBox.BottomCenter()
	return geometry.PointInPolygon(geometry.Point{X: x, Y: y}, toGeomPolygon(roi.Polygon))
}

func (e *Engine) evalIntrusion(rule *model.BehaviorRule, now time.Time, tracks []*model.Track) []model.BehaviorEvent {
	var out []model.BehaviorEvent
	seen := map[uint32]bool{}

	for _, tr := range tracks {
		if tr.State != model.TrackConfirmed {
			continue
		}
		if rule.AllowedClasses != nil && !rule.AllowedClasses[tr.ClassID] {
			continue
		}
		if !e.trackInROI(tr, rule.ROIID, now) {
			continue
		}
		// Single-dispatch: when the track's point falls inside more than
		// one overlapping ROI, only the highest-priority one attributes
		// the detection (spec §9 REDESIGN FLAG — not every containing
		// ROI fires independently).
		x, y := tr.BBox.BottomCenter()
		if resolved := e.resolveROI(model.Point{X: x, Y: y}, now); resolved == nil || resolved.ID != rule.ROIID {
			continue
		}

		seen[tr.LocalID] = true
		key := dwellKey{ruleID: rule.ID, trackID: tr.LocalID}
		start, inside := e.dwellStart[key]
		if !inside {
			e.dwellStart[key] = now
			continue
		}
		dwell := now.Sub(start)
		minDur := rule.MinDuration
		if minDur <= 0 {
			minDur = 0
		}
		if dwell >= minDur {
			if _, already := e.openEvents[key]; !already {
				ev := model.BehaviorEvent{
					CameraID:   e.cameraID,
					RuleID:     rule.ID,
					ROIID:      rule.ROIID,
					TrackID:    tr.LocalID,
					GlobalTrackID: tr.GlobalID,
					EventType:  model.EventIntrusion,
					StartTS:    start,
					Confidence: tr.Confidence,
					BBox:       tr.BBox,
				}
				e.openEvents[key] = &ev
				out = append(out, ev)
			}
		}
	}

	e.clearDepartedLocked(rule.ID, seen)
	return out
}

func (e *Engine) evalLoitering(rule *model.BehaviorRule, now time.Time, tracks []*model.Track) []model.BehaviorEvent {
	var out []model.BehaviorEvent
	seen := map[uint32]bool{}

	for _, tr := range tracks {
		if tr.State != model.TrackConfirmed {
			continue
		}
		if !e.trackInROI(tr, rule.ROIID, now) {
			continue
		}
		x, y := tr.BBox.BottomCenter()
		if resolved := e.resolveROI(model.Point{X: x, Y: y}, now); resolved == nil || resolved.ID != rule.ROIID {
			continue
		}

		seen[tr.LocalID] = true
		key := dwellKey{ruleID: rule.ID, trackID: tr.LocalID}
		start, inside := e.dwellStart[key]
		if !inside {
			e.dwellStart[key] = now
			continue
		}
		dwell := now.Sub(start)
		threshold := rule.DwellThreshold
		if threshold <= 0 {
			threshold = 30 * time.Second
		}
		if dwell >= threshold {
			if _, already := e.openEvents[key]; !already {
				ev := model.BehaviorEvent{
					CameraID:      e.cameraID,
					RuleID:        rule.ID,
					ROIID:         rule.ROIID,
					TrackID:       tr.LocalID,
					GlobalTrackID: tr.GlobalID,
					EventType:     model.EventLoitering,
					StartTS:       start,
					Confidence:    tr.Confidence,
					BBox:          tr.BBox,
				}
				e.openEvents[key] = &ev
				out = append(out, ev)
			}
		}
	}

	e.clearDepartedLocked(rule.ID, seen)
	return out
}

// clearDepartedLocked forgets dwell/open-event state for any track that
// was previously tracked under ruleID but is absent from seen this tick
// — the track has left the ROI (or been removed).
func (e *Engine) clearDepartedLocked(ruleID string, seen map[uint32]bool) {
	for key := range e.dwellStart {
		if key.ruleID != ruleID {
			continue
		}
		if !seen[key.trackID] {
			delete(e.dwellStart, key)
			delete(e.openEvents, key)
		}
	}
}

// evalCrowd counts confirmed tracks inside the rule's ROI and fires once
// per hysteresis cycle: the rule re-arms only after the count has been
// at or below threshold-1 for at least 2 seconds, preventing rapid
// re-firing as the count oscillates around the threshold.
func (e *Engine) evalCrowd(rule *model.BehaviorRule, now time.Time, tracks []*model.Track) *model.BehaviorEvent {
	count := 0
	for _, tr := range tracks {
		if tr.State != model.TrackConfirmed {
			continue
		}
		if e.trackInROI(tr, rule.ROIID, now) {
			count++
		}
	}

	threshold := rule.CountThreshold
	if threshold <= 0 {
		threshold = 10
	}

	if count <= threshold-1 {
		if _, tracking := e.crowdBelowAt[rule.ID]; !tracking {
			e.crowdBelowAt[rule.ID] = now
		}
		return nil
	}

	// count >= threshold: only fire if re-armed (hysteresis satisfied).
	belowSince, wasBelow := e.crowdBelowAt[rule.ID]
	armed := !wasBelow || now.Sub(belowSince) >= 2*time.Second
	if !wasBelow {
		// Never recorded a below-threshold moment (e.g. first tick above
		// threshold): treat as armed so the very first crossing fires.
		armed = true
	}
	if !armed {
		return nil
	}

	delete(e.crowdBelowAt, rule.ID)
	return &model.BehaviorEvent{
		CameraID:   e.cameraID,
		RuleID:     rule.ID,
		ROIID:      rule.ROIID,
		EventType:  model.EventCrowd,
		StartTS:    now,
		Confidence: 1.0,
		Metadata:   map[string]any{"count": count, "threshold": threshold},
	}
}

// evalLineCross detects a track crossing rule's line segment in the
// configured direction by tracking which side of the line each track
// was on last tick and firing when the side flips.
func (e *Engine) evalLineCross(rule *model.BehaviorRule, now time.Time, tracks []*model.Track) []model.BehaviorEvent {
	var out []model.BehaviorEvent
	sides, ok := e.lineLastSide[rule.ID]
	if !ok {
		sides = make(map[uint32]float64)
		e.lineLastSide[rule.ID] = sides
	}

	for _, tr := range tracks {
		if tr.State != model.TrackConfirmed {
			continue
		}
		x, y := tr.BBox.BottomCenter()
		side := lineSide(rule.LineA, rule.LineB, model.Point{X: x, Y: y})

		prev, seen := sides[tr.LocalID]
		sides[tr.LocalID] = side
		if !seen || side == 0 || prev == 0 {
			continue
		}
		if (prev > 0) == (side > 0) {
			continue // same side, no crossing
		}

		direction := model.DirectionAToB
		if prev > 0 {
			direction = model.DirectionBToA
		}
		if rule.Direction != model.DirectionEither && rule.Direction != direction {
			continue
		}

		out = append(out, model.BehaviorEvent{
			CameraID:      e.cameraID,
			RuleID:        rule.ID,
			TrackID:       tr.LocalID,
			GlobalTrackID: tr.GlobalID,
			EventType:     model.EventLineCross,
			StartTS:       now,
			Confidence:    tr.Confidence,
			BBox:          tr.BBox,
		})
	}

	// Forget tracks no longer present so the map doesn't grow unbounded.
	present := map[uint32]bool{}
	for _, tr := range tracks {
		present[tr.LocalID] = true
	}
	for id := range sides {
		if !present[id] {
			delete(sides, id)
		}
	}

	return out
}

// lineSide returns the signed distance-proportional side of p relative
// to line a-b (positive/negative per the cross-product sign).
func lineSide(a, b, p model.Point) float64 {
	return (b.X-a.X)*(p.Y-a.Y) - (b.Y-a.Y)*(p.X-a.X)
}
