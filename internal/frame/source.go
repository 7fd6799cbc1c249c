// Package frame implements the camera frame source: RTSP reachability
// probing (reusing the teacher's raw-socket OPTIONS handshake), a
// Decoder abstraction so this module carries no ffmpeg/gocv CGO
// dependency, a bounded latest-wins frame queue, and the
// Init/Running/Reconnecting/Failed connection state machine with
// auth-backoff.
package frame

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tingzhh2025/aisecurityvision/internal/model"
)

// State is the frame source's connection lifecycle.
type State string

const (
	StateInit          State = "Init"
	StateRunning        State = "Running"
	StateReconnecting   State = "Reconnecting"
	StateFailed         State = "Failed"
)

// Decoder decodes one media frame from a VideoSource connection. Real
// implementations wrap an RTSP/ONVIF media stack; this package only
// defines the seam so no CGO binding is required here.
type Decoder interface {
	// Open establishes the underlying connection/session.
	Open(ctx context.Context, src model.VideoSource) error
	// NextFrame blocks until the next frame is decoded or an error
	// occurs. Errors must be classifiable via IsTransient.
	NextFrame(ctx context.Context) (model.Frame, error)
	// Close releases the connection.
	Close() error
}

// IsTransient reports whether err represents a recoverable condition
// (timeout, connection reset) that warrants a reconnect attempt, versus
// a fatal misconfiguration (unsupported codec, malformed URL) that
// should move the source straight to Failed.
func IsTransient(err error) bool {
	var te transientError
	return errors.As(err, &te) || IsAuthFailure(err)
}

type transientError struct{ error }

func (t transientError) Unwrap() error { return t.error }

// Transient wraps err to mark it as a transient/recoverable failure.
func Transient(err error) error { return transientError{err} }

// IsAuthFailure reports whether err represents a 401-Unauthorized-style
// rejection: the endpoint is reachable but credentials were refused.
// Such errors are retried, but on the long AuthBackoff interval rather
// than the normal exponential schedule, to avoid hammering a camera
// that will keep rejecting the same credentials.
func IsAuthFailure(err error) bool {
	var ae authError
	return errors.As(err, &ae)
}

type authError struct{ error }

func (a authError) Unwrap() error { return a.error }

// AuthFailure wraps err to mark it as a credential rejection.
func AuthFailure(err error) error { return authError{err} }

// Options configures reconnect behavior (spec §4.1 defaults).
type Options struct {
	QueueCapacity        int // default 3
	ReconnectBackoff     []time.Duration // default 1s,2s,4s,8s,16s,30s(cap)
	MaxBackoff           time.Duration
	AuthBackoff          time.Duration // default 60s, skip reconnect attempts after repeated auth failures
	MaxReconnectAttempts int             // default 5, 0 means "use default" (never negative/unbounded)
}

func (o Options) withDefaults() Options {
	if o.QueueCapacity <= 0 {
		o.QueueCapacity = 3
	}
	if len(o.ReconnectBackoff) == 0 {
		o.ReconnectBackoff = []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second}
	}
	if o.MaxBackoff <= 0 {
		o.MaxBackoff = 30 * time.Second
	}
	if o.AuthBackoff <= 0 {
		o.AuthBackoff = 60 * time.Second
	}
	if o.MaxReconnectAttempts <= 0 {
		o.MaxReconnectAttempts = 5
	}
	return o
}

// Source owns one camera's connection and frame queue.
type Source struct {
	src     model.VideoSource
	decoder Decoder
	opts    Options
	queue   *LatestQueue[model.Frame]

	mu              sync.Mutex
	state           State
	reconnectCount  int
	authBackoffUntil time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Source for src using decoder, not yet started.
func New(src model.VideoSource, decoder Decoder, opts Options) *Source {
	opts = opts.withDefaults()
	return &Source{
		src:     src,
		decoder: decoder,
		opts:    opts,
		queue:   NewLatestQueue[model.Frame](opts.QueueCapacity),
		state:   StateInit,
	}
}

// Open starts the background read loop. It returns once the initial
// connection attempt has been made (success or failure); reconnection
// thereafter happens asynchronously.
func (s *Source) Open(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	err := s.decoder.Open(runCtx, s.src)
	s.mu.Lock()
	if err != nil {
		s.state = StateReconnecting
	} else {
		s.state = StateRunning
	}
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(runCtx)

	if err != nil {
		return fmt.Errorf("frame: initial connect to %s failed, reconnecting: %w", s.src.ID, err)
	}
	return nil
}

// NextFrame returns the next queued frame, blocking until one is
// available or the source is closed.
func (s *Source) NextFrame() (model.Frame, bool) {
	return s.queue.Pop()
}

// Close stops the read loop and releases the decoder.
func (s *Source) Close() error {
	if s.cancel != nil {
		s.cancel()
	}
	s.queue.Close()
	s.wg.Wait()
	return s.decoder.Close()
}

// State returns the current connection state.
func (s *Source) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ReconnectCount returns how many reconnect attempts have occurred.
func (s *Source) ReconnectCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reconnectCount
}

// DroppedFrames returns how many queued frames were dropped because
// the consumer fell behind.
func (s *Source) DroppedFrames() uint64 {
	return s.queue.Dropped()
}

func (s *Source) run(ctx context.Context) {
	defer s.wg.Done()

	if s.State() != StateRunning {
		if !s.reconnect(ctx) {
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return
		}
		s.mu.Lock()
		s.state = StateRunning
		s.mu.Unlock()
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		f, err := s.decoder.NextFrame(ctx)
		if err == nil {
			s.mu.Lock()
			s.state = StateRunning
			s.mu.Unlock()
			s.queue.Push(f)
			continue
		}

		if ctx.Err() != nil {
			return
		}

		if !IsTransient(err) {
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return
		}

		if !s.reconnect(ctx) {
			s.mu.Lock()
			s.state = StateFailed
			s.mu.Unlock()
			return
		}
	}
}

// reconnect retries decoder.Open with exponential backoff, honoring an
// auth-failure backoff window to avoid hammering a camera rejecting
// credentials (grounded on the teacher's NVR monitor backoff cache).
func (s *Source) reconnect(ctx context.Context) bool {
	s.mu.Lock()
	s.state = StateReconnecting
	if time.Now().Before(s.authBackoffUntil) {
		s.mu.Unlock()
		select {
		case <-ctx.Done():
			return false
		case <-time.After(time.Until(s.authBackoffUntil)):
		}
	} else {
		s.mu.Unlock()
	}

	attempt := 0
	attempts := 0
	for {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		if attempts >= s.opts.MaxReconnectAttempts {
			return false // max_reconnect_attempts exhausted: caller marks Failed
		}
		attempts++

		err := s.decoder.Open(ctx, s.src)
		s.mu.Lock()
		s.reconnectCount++
		s.mu.Unlock()
		if err == nil {
			return true
		}

		if !IsTransient(err) {
			return false // fatal misconfiguration: give up, caller marks Failed
		}

		var delay time.Duration
		if IsAuthFailure(err) {
			delay = s.opts.AuthBackoff
			s.mu.Lock()
			s.authBackoffUntil = time.Now().Add(delay)
			s.mu.Unlock()
		} else {
			delay = s.opts.MaxBackoff
			if attempt < len(s.opts.ReconnectBackoff) {
				delay = s.opts.ReconnectBackoff[attempt]
			}
			attempt++
		}

		select {
		case <-ctx.Done():
			return false
		case <-time.After(delay):
		}
	}
}
