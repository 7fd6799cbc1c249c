// Package model holds the data types shared across the video analytics
// runtime's components (spec.md §3 DATA MODEL): Frame, VideoSource,
// Detection, Track, ReIDEmbedding, GlobalTrack, ROI, BehaviorRule,
// BehaviorEvent and PipelineHealth. It has no dependencies on any other
// internal package so every stage (frame source, inference, tracker,
// ReID, attributes, behavior engine, output fan-out, pipeline, manager)
// can import it without creating cycles.
package model

import "time"

// Frame is an owned image buffer plus its provenance. Once produced it
// is immutable; ownership moves through the pipeline until an output
// stage consumes it.
type Frame struct {
	CameraID  string
	Seq       uint64 // strictly increasing per source (spec §8 invariant)
	Timestamp time.Time
	Width     int
	Height    int
	// Pix holds H*W*3 bytes, 8-bit BGR by convention, row-major.
	Pix []byte
}

// Protocol enumerates the supported VideoSource transports.
type Protocol string

const (
	ProtocolRTSP    Protocol = "rtsp"
	ProtocolONVIF   Protocol = "onvif"
	ProtocolGB28181 Protocol = "gb28181"
	ProtocolFile    Protocol = "file"
)

// Credentials for a VideoSource, held in memory only.
type Credentials struct {
	Username string
	Password string
}

// VideoSource is the configuration entity for one camera. It is
// immutable once a pipeline has been constructed from it; changing it
// requires removing and re-adding the source.
type VideoSource struct {
	ID          string
	URL         string
	Protocol    Protocol
	Credentials *Credentials
	Width       int
	Height      int
	FPS         int
	MJPEGPort   int
	Enabled     bool
}

// BBox is an axis-aligned bounding box in frame pixel coordinates.
type BBox struct {
	X, Y, W, H float64
}

// IoU computes the intersection-over-union of two boxes.
func (b BBox) IoU(o BBox) float64 {
	ax1, ay1, ax2, ay2 := b.X, b.Y, b.X+b.W, b.Y+b.H
	bx1, by1, bx2, by2 := o.X, o.Y, o.X+o.W, o.Y+o.H

	ix1, iy1 := max(ax1, bx1), max(ay1, by1)
	ix2, iy2 := min(ax2, bx2), min(ay2, by2)

	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := b.W*b.H + o.W*o.H - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// BottomCenter returns the representative point used by the behavior
// rule engine (spec §4.6 default): the bbox's bottom-center.
func (b BBox) BottomCenter() (x, y float64) {
	return b.X + b.W/2, b.Y + b.H
}

func max(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func min(a, b float64) float64 {
	if a < b {
		return a
	}
	return b
}

// Detection is a single model-emitted box for one frame.
type Detection struct {
	BBox       BBox
	ClassID    int
	ClassName  string
	Confidence float64
}

// TrackState is the lifecycle state of a Track.
type TrackState int

const (
	TrackTentative TrackState = iota
	TrackConfirmed
	TrackLost
	TrackRemoved
)

func (s TrackState) String() string {
	switch s {
	case TrackTentative:
		return "Tentative"
	case TrackConfirmed:
		return "Confirmed"
	case TrackLost:
		return "Lost"
	case TrackRemoved:
		return "Removed"
	default:
		return "Unknown"
	}
}

// Attributes holds the optional age/gender analysis result for a track.
type Attributes struct {
	Gender           string
	GenderConfidence float64
	AgeBucket        string
	AgeConfidence    float64
}

// Track is a detection associated across frames with a stable local
// identity, owned and mutated by the tracker for one pipeline.
type Track struct {
	LocalID         uint32
	ClassID         int
	ClassName       string
	BBox            BBox
	Confidence      float64
	AgeFrames       int
	TimeSinceUpdate int
	State           TrackState
	ConsecutiveHits int

	ReIDEmbedding *ReIDEmbedding
	GlobalID      string // empty if ReID disabled or not yet matched
	Attributes    *Attributes

	// Kalman filter state, opaque to everything but the tracker.
	kalmanState any
}

// SetKalmanState / KalmanState let the tracker package stash its filter
// state on the track without model depending on tracker's types.
func (t *Track) SetKalmanState(s any) { t.kalmanState = s }
func (t *Track) KalmanState() any     { return t.kalmanState }

// ReIDEmbedding is a fixed-dimension appearance descriptor.
type ReIDEmbedding struct {
	Vector        []float32
	L2Normalized  bool
	LocalTrackID  uint32
	CameraID      string
	Timestamp     time.Time
}

// GlobalTrack aggregates local tracks across cameras whose embeddings
// are sufficiently similar.
type GlobalTrack struct {
	GlobalID           string
	Members            map[CameraLocalID]struct{}
	CanonicalEmbedding []float32
	LastSeenTS         time.Time
}

// CameraLocalID identifies a local track within one camera's pipeline.
type CameraLocalID struct {
	CameraID string
	LocalID  uint32
}

// ROI is a closed polygon region used by the behavior rule engine.
type ROI struct {
	ID       string
	Name     string
	Polygon  []Point
	Priority int // 1..5
	Enabled  bool
	Window   *TimeWindow
}

// Point is a 2D vertex, duplicated here (rather than imported from
// internal/geometry) to keep model dependency-free; internal/geometry's
// Point has an identical layout and the behavior engine converts between
// them at its boundary.
type Point struct {
	X, Y float64
}

// TimeWindow is a wall-clock daily activity window, e.g. 22:00-06:00.
type TimeWindow struct {
	Start time.Duration // offset since midnight
	End   time.Duration
}

// Contains reports whether wall-clock time t falls within the window,
// handling windows that wrap past midnight (Start > End).
func (w TimeWindow) Contains(t time.Time) bool {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	offset := t.Sub(midnight)
	if w.Start <= w.End {
		return offset >= w.Start && offset < w.End
	}
	return offset >= w.Start || offset < w.End
}

// RuleKind discriminates the BehaviorRule tagged sum type.
type RuleKind string

const (
	RuleIntrusion RuleKind = "intrusion"
	RuleLoitering RuleKind = "loitering"
	RuleCrowd     RuleKind = "crowd"
	RuleLineCross RuleKind = "line_cross"
)

// BehaviorRule is a tagged sum type over the four rule variants. Only the
// field(s) relevant to Kind are populated.
type BehaviorRule struct {
	ID         string
	Kind       RuleKind
	Enabled    bool
	Confidence float64

	// Intrusion / Loitering
	ROIID          string
	MinDuration    time.Duration // Intrusion
	DwellThreshold time.Duration // Loitering
	AllowedClasses map[int]bool  // Intrusion

	// Crowd
	CountThreshold int
	Window         time.Duration

	// LineCross
	LineA, LineB Point
	Direction    LineDirection
}

// LineDirection constrains which crossing direction triggers LineCross.
type LineDirection int

const (
	DirectionEither LineDirection = iota
	DirectionAToB
	DirectionBToA
)

// EventType enumerates the alarm payload's event_type field (spec §6).
type EventType string

const (
	EventIntrusion   EventType = "intrusion"
	EventLoitering   EventType = "loitering"
	EventCrowd       EventType = "crowd"
	EventLineCross   EventType = "line_cross"
	EventRecognition EventType = "recognition"
	EventTest        EventType = "test"
)

// BehaviorEvent is an immutable record of a rule firing.
type BehaviorEvent struct {
	ID             string
	CameraID       string
	RuleID         string
	ROIID          string
	TrackID        uint32
	GlobalTrackID  string
	EventType      EventType
	StartTS        time.Time
	Confidence     float64
	Metadata       map[string]any
	SnapshotRef    string
	BBox           BBox
	TestMode       bool
}

// PipelineState is the health lifecycle of a VideoPipeline.
type PipelineState string

const (
	PipelineInit         PipelineState = "Init"
	PipelineRunning      PipelineState = "Running"
	PipelineDegraded     PipelineState = "Degraded"
	PipelineReconnecting PipelineState = "Reconnecting"
	PipelineFailed       PipelineState = "Failed"
)

// PipelineHealth is the externally-visible health snapshot for one
// pipeline, published every monitoring tick.
type PipelineHealth struct {
	CameraID         string
	FrameRateEWMA    float64
	ConsecutiveErrors int
	LastFrameTS      time.Time
	ReconnectCount   int
	State            PipelineState
	SelectedBackend  string
	DroppedFrames    uint64
}
