package reid

import (
	"sync"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// MatcherOptions controls cross-camera global-track matching (spec
// §4.4 defaults).
type MatcherOptions struct {
	SimilarityThreshold float64       // default 0.7, range 0.5-0.95
	MatchTimeout        time.Duration // default 30s, eviction of idle global tracks
	EWMAAlpha           float64       // default 0.1, canonical embedding blend rate
}

func (o MatcherOptions) withDefaults() MatcherOptions {
	if o.SimilarityThreshold <= 0 {
		o.SimilarityThreshold = 0.7
	}
	if o.MatchTimeout <= 0 {
		o.MatchTimeout = 30 * time.Second
	}
	if o.EWMAAlpha <= 0 {
		o.EWMAAlpha = 0.1
	}
	return o
}

// Matcher maintains the global-track registry and matches incoming
// per-camera embeddings against it. All mutation happens on a single
// goroutine (via the request channel), mirroring the teacher's
// single-writer worker pattern in nvr/monitor.go, so no locking is
// needed around the registry itself.
type Matcher struct {
	opts MatcherOptions

	mu      sync.Mutex
	tracks  map[string]*model.GlobalTrack
	nextSeq uint64
}

func NewMatcher(opts MatcherOptions) *Matcher {
	return &Matcher{
		opts:   opts.withDefaults(),
		tracks: make(map[string]*model.GlobalTrack),
	}
}

// Match finds or creates a GlobalTrack for emb, blends the canonical
// embedding via EWMA, and returns the assigned global id.
func (m *Matcher) Match(emb *model.ReIDEmbedding) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.evictLocked(emb.Timestamp)

	bestID := ""
	bestSim := -1.0
	for id, gt := range m.tracks {
		sim := cosineSimilarity(gt.CanonicalEmbedding, emb.Vector)
		if sim > bestSim {
			bestSim = sim
			bestID = id
		}
	}

	if bestID != "" && bestSim >= m.opts.SimilarityThreshold {
		gt := m.tracks[bestID]
		gt.CanonicalEmbedding = ewmaBlend(gt.CanonicalEmbedding, emb.Vector, m.opts.EWMAAlpha)
		gt.Members[model.CameraLocalID{CameraID: emb.CameraID, LocalID: emb.LocalTrackID}] = struct{}{}
		gt.LastSeenTS = emb.Timestamp
		return bestID
	}

	m.nextSeq++
	id := newGlobalID(m.nextSeq)
	m.tracks[id] = &model.GlobalTrack{
		GlobalID:           id,
		Members:            map[model.CameraLocalID]struct{}{{CameraID: emb.CameraID, LocalID: emb.LocalTrackID}: {}},
		CanonicalEmbedding: append([]float32(nil), emb.Vector...),
		LastSeenTS:         emb.Timestamp,
	}
	return id
}

// evictLocked removes global tracks idle for longer than MatchTimeout,
// measured relative to now. Caller holds m.mu.
func (m *Matcher) evictLocked(now time.Time) {
	for id, gt := range m.tracks {
		if now.Sub(gt.LastSeenTS) > m.opts.MatchTimeout {
			delete(m.tracks, id)
		}
	}
}

// Count returns the number of live global tracks, for metrics/tests.
func (m *Matcher) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tracks)
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	if n == 0 {
		return 0
	}
	af := make([]float64, n)
	bf := make([]float64, n)
	for i := 0; i < n; i++ {
		af[i] = float64(a[i])
		bf[i] = float64(b[i])
	}
	dot := floats.Dot(af, bf)
	na := floats.Norm(af, 2)
	nb := floats.Norm(bf, 2)
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (na * nb)
}

func ewmaBlend(canonical, fresh []float32, alpha float64) []float32 {
	n := len(canonical)
	if n == 0 {
		return append([]float32(nil), fresh...)
	}
	if len(fresh) < n {
		n = len(fresh)
	}
	out := make([]float32, len(canonical))
	copy(out, canonical)
	for i := 0; i < n; i++ {
		out[i] = float32((1-alpha)*float64(canonical[i]) + alpha*float64(fresh[i]))
	}
	return out
}

func newGlobalID(seq uint64) string {
	const alphabet = "0123456789abcdefghijklmnopqrstuvwxyz"
	if seq == 0 {
		return "g0"
	}
	buf := make([]byte, 0, 12)
	for seq > 0 {
		buf = append(buf, alphabet[seq%uint64(len(alphabet))])
		seq /= uint64(len(alphabet))
	}
	for i, j := 0, len(buf)-1; i < j; i, j = i+1, j-1 {
		buf[i], buf[j] = buf[j], buf[i]
	}
	return "g" + string(buf)
}
