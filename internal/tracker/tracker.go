// Package tracker implements ByteTrack-style multi-object tracking:
// two-stage IoU association (high-confidence then low-confidence
// detections) via the Hungarian algorithm, Kalman-filtered box
// prediction, and a Tentative/Confirmed/Lost/Removed track lifecycle.
package tracker

import (
	"sort"

	hg "github.com/charles-haynes/munkres"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// Options configures one Tracker instance (spec §4.3 defaults).
type Options struct {
	HighThresh    float64 // default 0.5, first-stage detection confidence cutoff
	LowThresh     float64 // default 0.1, second-stage detection confidence cutoff
	IoUThreshold  float64 // default 0.3, minimum IoU to accept a match
	MinHits       int     // default 3, consecutive hits before Tentative->Confirmed
	MaxLostFrames int     // default 30, frames in Lost before Removed
}

func (o Options) withDefaults() Options {
	if o.HighThresh <= 0 {
		o.HighThresh = 0.5
	}
	if o.LowThresh <= 0 {
		o.LowThresh = 0.1
	}
	if o.IoUThreshold <= 0 {
		o.IoUThreshold = 0.3
	}
	if o.MinHits <= 0 {
		o.MinHits = 3
	}
	if o.MaxLostFrames <= 0 {
		o.MaxLostFrames = 30
	}
	return o
}

// Tracker holds per-camera track state. It is not safe for concurrent
// use; callers serialize calls to Update per pipeline, matching how the
// teacher's per-entity state caches in nvr/monitor.go are only ever
// touched from one worker at a time per entity.
type Tracker struct {
	opts    Options
	tracks  map[uint32]*trackEntry
	nextID  uint32
}

type trackEntry struct {
	track *model.Track
	kf    *kalmanState
}

// New constructs a Tracker with opts, applying defaults for zero fields.
func New(opts Options) *Tracker {
	return &Tracker{
		opts:   opts.withDefaults(),
		tracks: make(map[uint32]*trackEntry),
		nextID: 1,
	}
}

// Update associates dets against the current track set for one frame
// and returns the full, current track list (including Lost tracks not
// yet Removed). Detections must be for a single class-compatible group;
// callers track each object class (or class superset) independently if
// cross-class association is undesired.
func (t *Tracker) Update(dets []model.Detection) []*model.Track {
	var high, low []model.Detection
	for _, d := range dets {
		if d.Confidence >= t.opts.HighThresh {
			high = append(high, d)
		} else if d.Confidence >= t.opts.LowThresh {
			low = append(low, d)
		}
	}

	activeIDs := t.activeTrackIDs()

	matchedHigh, unmatchedTracks, unmatchedHigh := t.associate(activeIDs, high)
	t.applyMatches(matchedHigh, high)

	matchedLow, stillUnmatchedTracks, _ := t.associate(unmatchedTracks, low)
	t.applyMatches(matchedLow, low)

	for _, id := range stillUnmatchedTracks {
		e := t.tracks[id]
		e.track.TimeSinceUpdate++
		e.track.AgeFrames++
		e.track.ConsecutiveHits = 0
	}

	t.markUnmatchedLost(stillUnmatchedTracks)
	t.spawnNewTracks(unmatchedHigh)
	t.pruneRemoved()

	return t.snapshot()
}

func (t *Tracker) activeTrackIDs() []uint32 {
	ids := make([]uint32, 0, len(t.tracks))
	for id, e := range t.tracks {
		if e.track.State != model.TrackRemoved {
			ids = append(ids, id)
		}
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// associate runs IoU-cost Hungarian assignment between the given track
// ids (using their Kalman-predicted box) and detections, filtering
// matches below IoUThreshold. It returns matched pairs, the unmatched
// track ids, and the unmatched detection indices.
func (t *Tracker) associate(trackIDs []uint32, dets []model.Detection) (matches map[uint32]int, unmatchedTracks []uint32, unmatchedDets []int) {
	matches = make(map[uint32]int)

	if len(trackIDs) == 0 || len(dets) == 0 {
		unmatchedTracks = append(unmatchedTracks, trackIDs...)
		for i := range dets {
			unmatchedDets = append(unmatchedDets, i)
		}
		return matches, unmatchedTracks, unmatchedDets
	}

	predicted := make([]model.BBox, len(trackIDs))
	for i, id := range trackIDs {
		e := t.tracks[id]
		x, y, w, h := e.kf.predict()
		predicted[i] = model.BBox{X: x - w/2, Y: y - h/2, W: w, H: h}
	}

	n := len(trackIDs)
	m := len(dets)
	size := n
	if m > size {
		size = m
	}
	cost := make([][]float64, size)
	for i := range cost {
		cost[i] = make([]float64, size)
		for j := range cost[i] {
			cost[i][j] = 1 // max cost (no overlap) pads non-square regions
		}
	}
	for i := 0; i < n; i++ {
		for j := 0; j < m; j++ {
			iou := predicted[i].IoU(dets[j].BBox)
			cost[i][j] = 1 - iou
		}
	}

	ha, err := hg.NewHungarianAlgorithm(cost)
	if err != nil {
		unmatchedTracks = append(unmatchedTracks, trackIDs...)
		for i := range dets {
			unmatchedDets = append(unmatchedDets, i)
		}
		return matches, unmatchedTracks, unmatchedDets
	}
	assignment := ha.Execute()

	matchedDetIdx := make(map[int]bool)
	for i := 0; i < n; i++ {
		j := assignment[i]
		if j < 0 || j >= m {
			unmatchedTracks = append(unmatchedTracks, trackIDs[i])
			continue
		}
		iou := predicted[i].IoU(dets[j].BBox)
		if iou < t.opts.IoUThreshold {
			unmatchedTracks = append(unmatchedTracks, trackIDs[i])
			continue
		}
		matches[trackIDs[i]] = j
		matchedDetIdx[j] = true
	}
	for j := range dets {
		if !matchedDetIdx[j] {
			unmatchedDets = append(unmatchedDets, j)
		}
	}

	sort.Slice(unmatchedTracks, func(i, j int) bool { return unmatchedTracks[i] < unmatchedTracks[j] })
	sort.Ints(unmatchedDets)
	return matches, unmatchedTracks, unmatchedDets
}

func (t *Tracker) applyMatches(matches map[uint32]int, dets []model.Detection) {
	for id, detIdx := range matches {
		e := t.tracks[id]
		d := dets[detIdx]
		cx, cy := d.BBox.X+d.BBox.W/2, d.BBox.Y+d.BBox.H/2
		aspect := 1.0
		if d.BBox.H > 0 {
			aspect = d.BBox.W / d.BBox.H
		}
		e.kf.update(cx, cy, aspect, d.BBox.H)
		x, y, w, h := e.kf.box()
		e.track.BBox = model.BBox{X: x, Y: y, W: w, H: h}
		e.track.Confidence = d.Confidence
		e.track.TimeSinceUpdate = 0
		e.track.ConsecutiveHits++
		e.track.AgeFrames++
		if e.track.State == model.TrackTentative && e.track.ConsecutiveHits >= t.opts.MinHits {
			e.track.State = model.TrackConfirmed
		}
		if e.track.State == model.TrackLost {
			e.track.State = model.TrackConfirmed
		}
	}
}

func (t *Tracker) markUnmatchedLost(ids []uint32) {
	for _, id := range ids {
		e := t.tracks[id]
		switch e.track.State {
		case model.TrackTentative:
			e.track.State = model.TrackRemoved
		case model.TrackConfirmed:
			e.track.State = model.TrackLost
		case model.TrackLost:
			if e.track.TimeSinceUpdate >= t.opts.MaxLostFrames {
				e.track.State = model.TrackRemoved
			}
		}
	}
}

func (t *Tracker) spawnNewTracks(dets []model.Detection) {
	// Stable tie-breaking: iterate detections in the order given (caller
	// controls det ordering), assigning monotonically increasing local
	// IDs so identical input always yields identical assignment.
	for _, d := range dets {
		cx, cy := d.BBox.X+d.BBox.W/2, d.BBox.Y+d.BBox.H/2
		aspect := 1.0
		if d.BBox.H > 0 {
			aspect = d.BBox.W / d.BBox.H
		}
		id := t.nextID
		t.nextID++
		tr := &model.Track{
			LocalID:         id,
			ClassID:         d.ClassID,
			ClassName:       d.ClassName,
			BBox:            d.BBox,
			Confidence:      d.Confidence,
			AgeFrames:       1,
			ConsecutiveHits: 1,
			State:           model.TrackTentative,
		}
		if t.opts.MinHits <= 1 {
			tr.State = model.TrackConfirmed
		}
		kf := newKalmanState(cx, cy, aspect, d.BBox.H)
		t.tracks[id] = &trackEntry{track: tr, kf: kf}
	}
}

func (t *Tracker) pruneRemoved() {
	for id, e := range t.tracks {
		if e.track.State == model.TrackRemoved {
			delete(t.tracks, id)
		}
	}
}

func (t *Tracker) snapshot() []*model.Track {
	ids := make([]uint32, 0, len(t.tracks))
	for id := range t.tracks {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	out := make([]*model.Track, 0, len(ids))
	for _, id := range ids {
		out = append(out, t.tracks[id].track)
	}
	return out
}
