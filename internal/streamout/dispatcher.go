package streamout

import (
	"context"
	"log"
	"sort"
	"sync"
	"time"
)

// HighPriorityDeadline is the window within which all configured
// channels must be attempted for a high-priority event.
const HighPriorityDeadline = time.Second

// ChannelEntry binds a channel to a priority; lower number dispatches
// first (HTTP before MQTT before NATS, say), matching the teacher's
// adapter registry ordering by declared priority.
type ChannelEntry struct {
	Channel  DeliveryChannel
	Priority int
	High     bool // whether events routed here are treated as high-priority
}

// Dispatcher owns a bounded worker pool that delivers alarm events to
// every configured DeliveryChannel, fire-and-forget: a failure on one
// channel never blocks or fails the others.
type Dispatcher struct {
	mu       sync.RWMutex
	channels []ChannelEntry

	jobs chan AlarmPayload
	wg   sync.WaitGroup
}

// NewDispatcher starts workers workers draining a bounded job queue of
// depth queueSize (grounded on internal/media/validator.go's worker
// pool shape).
func NewDispatcher(ctx context.Context, workers, queueSize int) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	d := &Dispatcher{jobs: make(chan AlarmPayload, queueSize)}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker(ctx)
	}
	return d
}

// AddChannel registers a delivery channel with its priority ordering.
func (d *Dispatcher) AddChannel(entry ChannelEntry) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.channels = append(d.channels, entry)
	sort.SliceStable(d.channels, func(i, j int) bool {
		return d.channels[i].Priority < d.channels[j].Priority
	})
}

// Dispatch enqueues payload for delivery; it returns immediately
// (alarm delivery is always off the pipeline's critical path). If the
// queue is full the payload is dropped and logged.
func (d *Dispatcher) Dispatch(payload AlarmPayload) {
	select {
	case d.jobs <- payload:
	default:
		log.Printf("streamout: alarm dispatch queue full, dropping event %s", payload.EventID)
	}
}

func (d *Dispatcher) worker(ctx context.Context) {
	defer d.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case payload, ok := <-d.jobs:
			if !ok {
				return
			}
			d.deliver(ctx, payload)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, payload AlarmPayload) {
	d.mu.RLock()
	entries := make([]ChannelEntry, len(d.channels))
	copy(entries, d.channels)
	d.mu.RUnlock()

	deadline := HighPriorityDeadline
	sendCtx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	var wg sync.WaitGroup
	for _, entry := range entries {
		wg.Add(1)
		go func(e ChannelEntry) {
			defer wg.Done()
			if err := e.Channel.Send(sendCtx, payload); err != nil {
				log.Printf("streamout: alarm channel %s delivery failed for event %s: %v", e.Channel.Name(), payload.EventID, err)
			}
		}(entry)
	}
	wg.Wait()
}

// Close stops accepting new deliveries and waits for in-flight ones to
// finish or time out.
func (d *Dispatcher) Close() {
	close(d.jobs)
	d.wg.Wait()
}
