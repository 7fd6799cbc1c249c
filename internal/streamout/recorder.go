package streamout

import (
	"fmt"
	"sync"
	"time"
)

// RecorderOptions configures the circular annotated-frame buffer.
type RecorderOptions struct {
	BufferSeconds int // default 30, clamped to [10,300]
	FPS           int // default 15, used to size the ring from BufferSeconds
}

func (o RecorderOptions) withDefaults() RecorderOptions {
	if o.BufferSeconds <= 0 {
		o.BufferSeconds = 30
	}
	if o.BufferSeconds < 10 {
		o.BufferSeconds = 10
	}
	if o.BufferSeconds > 300 {
		o.BufferSeconds = 300
	}
	if o.FPS <= 0 {
		o.FPS = 15
	}
	return o
}

// recordedFrame is a copy-on-push snapshot; callers' image buffers may
// be reused/mutated after Push returns.
type recordedFrame struct {
	ts   time.Time
	data []byte // encoded JPEG, owned by the ring
}

// Recorder maintains a circular in-memory buffer of the last N
// seconds of annotated frames and assembles pre/post-event clips on
// trigger.
type Recorder struct {
	opts RecorderOptions

	mu    sync.Mutex
	ring  []recordedFrame
	head  int
	count int
}

// NewRecorder constructs a Recorder sized for opts.BufferSeconds at
// opts.FPS.
func NewRecorder(opts RecorderOptions) *Recorder {
	opts = opts.withDefaults()
	cap := opts.BufferSeconds * opts.FPS
	if cap < 1 {
		cap = 1
	}
	return &Recorder{
		opts: opts,
		ring: make([]recordedFrame, cap),
	}
}

// Push copies jpegData into the ring, overwriting the oldest entry
// once full.
func (r *Recorder) Push(ts time.Time, jpegData []byte) {
	cp := make([]byte, len(jpegData))
	copy(cp, jpegData)

	r.mu.Lock()
	defer r.mu.Unlock()
	idx := (r.head + r.count) % len(r.ring)
	if r.count < len(r.ring) {
		r.count++
	} else {
		idx = r.head
		r.head = (r.head + 1) % len(r.ring)
	}
	r.ring[idx] = recordedFrame{ts: ts, data: cp}
}

// Clip is an assembled pre/post-event sequence of frames, ready for
// MP4 muxing (muxing itself is delegated to an external encoder; this
// type carries the ordered frame set and trigger metadata).
type Clip struct {
	EventID   string
	TriggerTS time.Time
	Frames    [][]byte
}

// AssembleClip returns the frames within [trigger-pre, trigger+post].
// Frames after the trigger that have not yet been pushed (because the
// trigger just happened) are naturally absent; callers needing the
// post window should call AssembleClip again once post has elapsed.
func (r *Recorder) AssembleClip(eventID string, trigger time.Time, pre, post time.Duration) Clip {
	r.mu.Lock()
	defer r.mu.Unlock()

	lo := trigger.Add(-pre)
	hi := trigger.Add(post)

	var frames [][]byte
	for i := 0; i < r.count; i++ {
		idx := (r.head + i) % len(r.ring)
		f := r.ring[idx]
		if (f.ts.Equal(lo) || f.ts.After(lo)) && (f.ts.Equal(hi) || f.ts.Before(hi)) {
			frames = append(frames, f.data)
		}
	}
	return Clip{EventID: eventID, TriggerTS: trigger, Frames: frames}
}

// Latest returns the most recently pushed frame, if any.
func (r *Recorder) Latest() (data []byte, ts time.Time, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.count == 0 {
		return nil, time.Time{}, false
	}
	idx := (r.head + r.count - 1) % len(r.ring)
	f := r.ring[idx]
	return f.data, f.ts, true
}

// Len reports how many frames are currently retained.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}

// Capacity reports the ring's fixed frame capacity.
func (r *Recorder) Capacity() int {
	return len(r.ring)
}

func (r *Recorder) String() string {
	return fmt.Sprintf("recorder(buffer=%ds@%dfps)", r.opts.BufferSeconds, r.opts.FPS)
}
