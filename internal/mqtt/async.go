package mqtt

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/sweeney/energy-monitor/internal/pzem"
)

// DefaultQueueSize is the capacity of the Async publish queue.
const DefaultQueueSize = 64

// ErrQueueFull is returned when the Async queue has no room. The message is dropped.
var ErrQueueFull = errors.New("mqtt: publish queue full")

// ErrStopped is returned for publishes after Stop.
var ErrStopped = errors.New("mqtt: publisher stopped")

type job struct {
	telemetry *pzem.Telemetry
	system    *SystemEvent
}

// Async moves publishing off the caller's goroutine. Publish and
// PublishSystem enqueue and return immediately; Run delivers to the inner
// publisher in order.
type Async struct {
	inner Publisher
	log   zerolog.Logger
	queue chan job

	mu      sync.RWMutex
	stopped bool

	dropped atomic.Int64

	// OnResult, if set, is called from the Run goroutine after every
	// delivery of a telemetry reading.
	OnResult func(t pzem.Telemetry, err error)
}

// NewAsync wraps inner with a queue of the given size.
func NewAsync(inner Publisher, size int, log zerolog.Logger) *Async {
	if size < 1 {
		size = DefaultQueueSize
	}
	return &Async{
		inner: inner,
		log:   log,
		queue: make(chan job, size),
	}
}

// Publish enqueues a reading.
func (a *Async) Publish(t pzem.Telemetry) error {
	return a.enqueue(job{telemetry: &t})
}

// PublishSystem enqueues a system event.
func (a *Async) PublishSystem(event SystemEvent) error {
	return a.enqueue(job{system: &event})
}

func (a *Async) enqueue(j job) error {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.stopped {
		return ErrStopped
	}
	select {
	case a.queue <- j:
		return nil
	default:
		a.dropped.Add(1)
		return ErrQueueFull
	}
}

// Run delivers queued messages until Stop is called and the queue is empty.
func (a *Async) Run() {
	for j := range a.queue {
		a.deliver(j)
	}
}

func (a *Async) deliver(j job) {
	switch {
	case j.telemetry != nil:
		err := a.inner.Publish(*j.telemetry)
		if err != nil {
			a.log.Error().Err(err).Msg("publish failed")
		}
		if a.OnResult != nil {
			a.OnResult(*j.telemetry, err)
		}
	case j.system != nil:
		if err := a.inner.PublishSystem(*j.system); err != nil {
			a.log.Error().Err(err).Str("event", j.system.Event).Msg("system publish failed")
		}
	}
}

// Stop closes the queue. Run returns once the remaining messages are
// delivered. Safe to call more than once.
func (a *Async) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.stopped {
		return
	}
	a.stopped = true
	close(a.queue)
}

// Dropped returns the number of messages rejected because the queue was full.
func (a *Async) Dropped() int64 {
	return a.dropped.Load()
}

// IsConnected forwards to the inner publisher when it reports status.
func (a *Async) IsConnected() bool {
	if cs, ok := a.inner.(ConnectionStatus); ok {
		return cs.IsConnected()
	}
	return false
}

// Close closes the inner publisher. Call after Run has returned.
func (a *Async) Close() error {
	return a.inner.Close()
}
