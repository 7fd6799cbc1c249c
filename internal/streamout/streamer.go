package streamout

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"net/http"
	"sync"
	"time"
)

// StreamerOptions configures the MJPEG multipart endpoint.
type StreamerOptions struct {
	JPEGQuality int           // default 80
	QueueDepth  int           // default 2, per-viewer bounded latest-wins queue
	WriteTimeout time.Duration // default 2s per frame write
}

func (o StreamerOptions) withDefaults() StreamerOptions {
	if o.JPEGQuality <= 0 {
		o.JPEGQuality = 80
	}
	if o.QueueDepth <= 0 {
		o.QueueDepth = 2
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = 2 * time.Second
	}
	return o
}

// Streamer owns one camera's MJPEG multipart endpoint: it fans the
// latest annotated frame out to any number of concurrent HTTP viewers,
// each holding its own bounded latest-wins queue so a slow viewer
// cannot stall frame delivery to the others.
type Streamer struct {
	opts StreamerOptions

	mu      sync.Mutex
	viewers map[int]chan []byte
	nextID  int
}

// NewStreamer constructs a Streamer with the given options.
func NewStreamer(opts StreamerOptions) *Streamer {
	return &Streamer{
		opts:    opts.withDefaults(),
		viewers: make(map[int]chan []byte),
	}
}

// Publish encodes img as JPEG and fans it out to all connected
// viewers, dropping frames for any viewer whose channel is full rather
// than blocking the publisher (the camera's critical path must never
// wait on a slow HTTP client).
func (s *Streamer) Publish(img image.Image) error {
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: s.opts.JPEGQuality}); err != nil {
		return fmt.Errorf("streamout: encode jpeg: %w", err)
	}
	data := buf.Bytes()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.viewers {
		select {
		case ch <- data:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- data:
			default:
			}
		}
	}
	return nil
}

// ViewerCount returns the number of currently connected viewers.
func (s *Streamer) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.viewers)
}

// ServeHTTP implements the bounded-capacity multipart/x-mixed-replace
// MJPEG endpoint: each connection registers its own frame channel and
// streams frames until the client disconnects or the request context
// is cancelled.
func (s *Streamer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	ch := make(chan []byte, s.opts.QueueDepth)
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.viewers[id] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.viewers, id)
		s.mu.Unlock()
	}()

	const boundary = "aisecurityvisionframe"
	w.Header().Set("Content-Type", fmt.Sprintf("multipart/x-mixed-replace; boundary=%s", boundary))
	w.WriteHeader(http.StatusOK)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-ch:
			if !ok {
				return
			}
			if err := writeMJPEGPart(w, boundary, frame); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeMJPEGPart(w http.ResponseWriter, boundary string, frame []byte) error {
	_, err := fmt.Fprintf(w, "--%s\r\nContent-Type: image/jpeg\r\nContent-Length: %d\r\n\r\n", boundary, len(frame))
	if err != nil {
		return err
	}
	if _, err := w.Write(frame); err != nil {
		return err
	}
	_, err = fmt.Fprint(w, "\r\n")
	return err
}

// Close disconnects all viewers. Used on pipeline shutdown.
func (s *Streamer) Close(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.viewers {
		close(ch)
		delete(s.viewers, id)
	}
}
