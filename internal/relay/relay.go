// Package relay forwards hub events to external systems.
package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/metrics"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

const (
	defaultQueueSize      = 256
	defaultPublishTimeout = 10 * time.Second
)

var ErrQueueFull = errors.New("relay queue is full")

// Sink publishes a single event to an external system.
type Sink interface {
	Name() string
	Publish(ctx context.Context, event models.Event) error
}

// Async adapts a Sink into a non-blocking hub subscriber. Events are queued
// and published by a single worker, so ordering is preserved per sink.
type Async struct {
	sink    Sink
	queue   chan models.Event
	timeout time.Duration
	logger  logger.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

func NewAsync(sink Sink, queueSize int, log logger.Logger) *Async {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	a := &Async{
		sink:    sink,
		queue:   make(chan models.Event, queueSize),
		timeout: defaultPublishTimeout,
		logger:  log,
	}

	a.wg.Add(1)
	go a.worker()
	return a
}

func (a *Async) ID() string {
	return "relay:" + a.sink.Name()
}

func (a *Async) Deliver(event models.Event) error {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.closed {
		return io.ErrClosedPipe
	}

	select {
	case a.queue <- event:
		return nil
	default:
		metrics.IncRelayPublish(a.sink.Name(), "dropped")
		return ErrQueueFull
	}
}

func (a *Async) worker() {
	defer a.wg.Done()

	for event := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		err := a.sink.Publish(ctx, event)
		cancel()

		if err != nil {
			metrics.IncRelayPublish(a.sink.Name(), "error")
			a.logger.Warnw("Failed to relay event",
				"relay", a.sink.Name(),
				"event", event.Kind,
				"error", err,
			)
			continue
		}
		metrics.IncRelayPublish(a.sink.Name(), "success")
	}
}

// Close drains queued events and closes the sink if it is an io.Closer.
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	a.wg.Wait()

	if c, ok := a.sink.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
