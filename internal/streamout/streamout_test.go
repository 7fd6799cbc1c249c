package streamout

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

func sampleFrame(w, h int) model.Frame {
	pix := make([]byte, w*h*4)
	for i := range pix {
		pix[i] = 128
	}
	return model.Frame{CameraID: "cam1", Width: w, Height: h, Pix: pix, Timestamp: time.Now()}
}

func TestRenderOverlayDrawsExactlyOneRectPerTrack(t *testing.T) {
	f := sampleFrame(64, 64)
	tr := &model.Track{LocalID: 1, ClassID: 0, ClassName: "person", BBox: model.BBox{X: 10, Y: 10, W: 20, H: 20}, State: model.TrackConfirmed}
	img := RenderOverlay(OverlayInput{Frame: f, Tracks: []*model.Track{tr}})
	if img.Bounds().Dx() != 64 || img.Bounds().Dy() != 64 {
		t.Fatalf("unexpected image size: %v", img.Bounds())
	}
	// top edge of the box should now differ from the flat background fill.
	c := img.RGBAAt(15, 10)
	if c.R == 128 && c.G == 128 && c.B == 128 {
		t.Error("expected box edge to be drawn over the background")
	}
}

func TestRenderOverlaySkipsRemovedTracks(t *testing.T) {
	f := sampleFrame(32, 32)
	tr := &model.Track{LocalID: 1, BBox: model.BBox{X: 5, Y: 5, W: 10, H: 10}, State: model.TrackRemoved}
	img := RenderOverlay(OverlayInput{Frame: f, Tracks: []*model.Track{tr}})
	c := img.RGBAAt(5, 5)
	if c.R != 128 || c.G != 128 || c.B != 128 {
		t.Error("expected removed track to leave background untouched")
	}
}

func TestStreamerPublishAndServeHTTP(t *testing.T) {
	s := NewStreamer(StreamerOptions{})
	srv := httptest.NewServer(http.HandlerFunc(s.ServeHTTP))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	defer resp.Body.Close()

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) && s.ViewerCount() == 0 {
		time.Sleep(5 * time.Millisecond)
	}
	if s.ViewerCount() != 1 {
		t.Fatalf("expected 1 viewer, got %d", s.ViewerCount())
	}

	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	if err := s.Publish(img); err != nil {
		t.Fatalf("Publish error: %v", err)
	}

	buf := make([]byte, 4096)
	n, err := resp.Body.Read(buf)
	if err != nil && n == 0 {
		t.Fatalf("read part failed: %v", err)
	}
	if !bytes.Contains(buf[:n], []byte("image/jpeg")) {
		t.Errorf("expected multipart header with image/jpeg, got %q", buf[:n])
	}
}

func TestRecorderRingDropsOldest(t *testing.T) {
	r := NewRecorder(RecorderOptions{BufferSeconds: 10, FPS: 2}) // capacity 20
	base := time.Now()
	for i := 0; i < 25; i++ {
		buf := &bytes.Buffer{}
		jpeg.Encode(buf, image.NewRGBA(image.Rect(0, 0, 2, 2)), nil)
		r.Push(base.Add(time.Duration(i)*500*time.Millisecond), buf.Bytes())
	}
	if r.Len() != r.Capacity() {
		t.Fatalf("expected ring full at capacity %d, got %d", r.Capacity(), r.Len())
	}
}

func TestRecorderAssembleClipWindow(t *testing.T) {
	r := NewRecorder(RecorderOptions{BufferSeconds: 30, FPS: 10})
	base := time.Now()
	for i := 0; i < 50; i++ {
		r.Push(base.Add(time.Duration(i)*100*time.Millisecond), []byte{byte(i)})
	}
	trigger := base.Add(3 * time.Second)
	clip := r.AssembleClip("ev1", trigger, 2*time.Second, time.Second)
	if len(clip.Frames) == 0 {
		t.Fatal("expected non-empty clip")
	}
	if clip.EventID != "ev1" {
		t.Errorf("expected event id preserved, got %s", clip.EventID)
	}
}

type fakeChannel struct {
	name    string
	mu      sync.Mutex
	sent    []AlarmPayload
	fail    bool
	calls   int32
	delayMs int
}

func (f *fakeChannel) Name() string { return f.name }

func (f *fakeChannel) Send(ctx context.Context, payload AlarmPayload) error {
	atomic.AddInt32(&f.calls, 1)
	if f.delayMs > 0 {
		select {
		case <-time.After(time.Duration(f.delayMs) * time.Millisecond):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if f.fail {
		return errFakeChannel
	}
	f.mu.Lock()
	f.sent = append(f.sent, payload)
	f.mu.Unlock()
	return nil
}

var errFakeChannel = &fakeChannelError{"fake channel failure"}

type fakeChannelError struct{ msg string }

func (e *fakeChannelError) Error() string { return e.msg }

func TestDispatcherDeliversToAllChannelsIndependently(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(ctx, 2, 16)
	okCh := &fakeChannel{name: "ok"}
	failCh := &fakeChannel{name: "fail", fail: true}
	d.AddChannel(ChannelEntry{Channel: okCh, Priority: 1})
	d.AddChannel(ChannelEntry{Channel: failCh, Priority: 2})

	d.Dispatch(AlarmPayload{EventID: "e1"})

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		okCh.mu.Lock()
		n := len(okCh.sent)
		okCh.mu.Unlock()
		if n == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	okCh.mu.Lock()
	defer okCh.mu.Unlock()
	if len(okCh.sent) != 1 {
		t.Fatalf("expected ok channel to receive the event despite fail channel erroring, got %d", len(okCh.sent))
	}
	if atomic.LoadInt32(&failCh.calls) != 1 {
		t.Errorf("expected fail channel to be attempted once, got %d", failCh.calls)
	}
}

func TestDispatcherQueueFullDropsWithoutBlocking(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(ctx, 1, 1)
	slow := &fakeChannel{name: "slow", delayMs: 200}
	d.AddChannel(ChannelEntry{Channel: slow, Priority: 1})

	for i := 0; i < 10; i++ {
		d.Dispatch(AlarmPayload{EventID: "e"})
	}
	// Dispatch must not block regardless of queue pressure.
}

func TestBuildAlarmPayloadEncodesSnapshot(t *testing.T) {
	ev := model.BehaviorEvent{ID: "e1", CameraID: "cam1", RuleID: "r1", EventType: model.EventIntrusion, StartTS: time.Now(), Confidence: 0.9}
	p := BuildAlarmPayload(ev, []byte{0xFF, 0xD8, 0xFF})
	if p.Snapshot == "" {
		t.Error("expected non-empty snapshot data URL")
	}
	if p.EventType != "intrusion" {
		t.Errorf("expected intrusion event type, got %s", p.EventType)
	}
}
