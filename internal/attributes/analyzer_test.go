package attributes

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

type fakeAnalyzer struct {
	mu    sync.Mutex
	calls int
	attrs model.Attributes
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, frame model.Frame, crops []model.BBox) ([]model.Attributes, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	out := make([]model.Attributes, len(crops))
	for i := range out {
		out[i] = f.attrs
	}
	return out, nil
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestSubmitSkipsNonPerson(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fa := &fakeAnalyzer{}
	b := NewBatcher(ctx, fa, Options{}, nil)

	n := b.Submit(model.Frame{}, []*model.Track{
		{LocalID: 1, ClassName: "car", BBox: model.BBox{W: 100, H: 100}},
	})
	if n != 0 {
		t.Errorf("expected 0 enqueued for non-person track, got %d", n)
	}
}

func TestSubmitDeliversResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fa := &fakeAnalyzer{attrs: model.Attributes{Gender: "female", GenderConfidence: 0.9, AgeBucket: "adult", AgeConfidence: 0.8}}

	var gotMu sync.Mutex
	var got *model.Attributes
	b := NewBatcher(ctx, fa, Options{}, func(id uint32, attrs model.Attributes) {
		gotMu.Lock()
		defer gotMu.Unlock()
		a := attrs
		got = &a
	})

	n := b.Submit(model.Frame{}, []*model.Track{
		{LocalID: 1, ClassName: "person", BBox: model.BBox{W: 40, H: 80}},
	})
	if n != 1 {
		t.Fatalf("expected 1 enqueued, got %d", n)
	}

	waitFor(t, func() bool {
		gotMu.Lock()
		defer gotMu.Unlock()
		return got != nil
	})

	gotMu.Lock()
	defer gotMu.Unlock()
	if got.Gender != "female" {
		t.Errorf("expected gender female, got %q", got.Gender)
	}
}

func TestLowConfidenceAttributeSuppressed(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fa := &fakeAnalyzer{attrs: model.Attributes{Gender: "male", GenderConfidence: 0.3, AgeBucket: "child", AgeConfidence: 0.9}}

	var gotMu sync.Mutex
	var got *model.Attributes
	b := NewBatcher(ctx, fa, Options{GenderConfidence: 0.7, AgeConfidence: 0.6}, func(id uint32, attrs model.Attributes) {
		gotMu.Lock()
		defer gotMu.Unlock()
		a := attrs
		got = &a
	})

	b.Submit(model.Frame{}, []*model.Track{
		{LocalID: 1, ClassName: "person", BBox: model.BBox{W: 40, H: 80}},
	})

	waitFor(t, func() bool {
		gotMu.Lock()
		defer gotMu.Unlock()
		return got != nil
	})

	gotMu.Lock()
	defer gotMu.Unlock()
	if got.Gender != "" {
		t.Errorf("expected low-confidence gender to be suppressed, got %q", got.Gender)
	}
	if got.AgeBucket != "child" {
		t.Errorf("expected high-confidence age to survive, got %q", got.AgeBucket)
	}
}

func TestStableBoxSuppressedAfterFirstAnalysis(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fa := &fakeAnalyzer{attrs: model.Attributes{Gender: "male", GenderConfidence: 0.9}}
	b := NewBatcher(ctx, fa, Options{SuppressIoU: 0.9}, func(uint32, model.Attributes) {})

	track := &model.Track{LocalID: 1, ClassName: "person", BBox: model.BBox{X: 0, Y: 0, W: 40, H: 80}}
	b.Submit(model.Frame{}, []*model.Track{track})

	waitFor(t, func() bool { return fa.callCount() >= 1 })
	time.Sleep(20 * time.Millisecond) // let the worker finish populating the suppression cache

	// Same box again: IoU=1.0, should be suppressed, no second Analyze call.
	b.Submit(model.Frame{}, []*model.Track{track})
	time.Sleep(50 * time.Millisecond)
	if fa.callCount() != 1 {
		t.Errorf("expected stable box to be suppressed, got %d Analyze calls", fa.callCount())
	}
}
