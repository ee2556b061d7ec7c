package broadcast

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fbik/avito-monitor-app/internal/logger"
	"github.com/fbik/avito-monitor-app/pkg/errors"
	"github.com/fbik/avito-monitor-app/pkg/metrics"
	"github.com/fbik/avito-monitor-app/pkg/models"
)

const StatusOnline = "online"

// Subscriber receives every published event. Deliver must not block for long;
// transports are expected to queue and drop rather than stall the publisher.
type Subscriber interface {
	ID() string
	Deliver(event models.Event) error
}

// Hub fans events out to connected clients and to relay sinks. Clients are
// counted in status reports, sinks are not.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]Subscriber
	sinks   map[string]Subscriber
	closed  bool

	logger            logger.Logger
	heartbeatInterval time.Duration

	hbMu     sync.Mutex
	hbCancel context.CancelFunc
	hbDone   chan struct{}
}

func NewHub(log logger.Logger, heartbeatInterval time.Duration) *Hub {
	return &Hub{
		clients:           make(map[string]Subscriber),
		sinks:             make(map[string]Subscriber),
		logger:            log,
		heartbeatInterval: heartbeatInterval,
	}
}

func (h *Hub) Subscribe(sub Subscriber) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return fmt.Errorf("hub is closed")
	}
	h.clients[sub.ID()] = sub
	metrics.SetSubscribers(len(h.clients))
	return nil
}

func (h *Hub) Unsubscribe(id string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	_, ok := h.clients[id]
	delete(h.clients, id)
	metrics.SetSubscribers(len(h.clients))
	return ok
}

// AddSink attaches a relay that receives every event but is not a client.
func (h *Hub) AddSink(sink Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sinks[sink.ID()] = sink
}

func (h *Hub) RemoveSink(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.sinks, id)
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish delivers event to every client and sink. Per-subscriber failures
// are logged and counted only.
func (h *Hub) Publish(event models.Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	h.mu.RLock()
	if h.closed {
		h.mu.RUnlock()
		return
	}
	targets := make([]Subscriber, 0, len(h.clients)+len(h.sinks))
	for _, s := range h.clients {
		targets = append(targets, s)
	}
	for _, s := range h.sinks {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	metrics.IncEventPublished(string(event.Kind))

	for _, s := range targets {
		h.deliver(s, event)
	}
}

// Send delivers event to a single client.
func (h *Hub) Send(id string, event models.Event) error {
	h.mu.RLock()
	s, ok := h.clients[id]
	h.mu.RUnlock()

	if !ok {
		return fmt.Errorf("subscriber %s not found", id)
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return h.deliver(s, event)
}

func (h *Hub) deliver(s Subscriber, event models.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.RecoverPanic(r)
			metrics.IncDeliveryFailure("panic")
			h.logger.Errorw("Subscriber panicked during delivery",
				"subscriber_id", s.ID(),
				"event", event.Kind,
				"error", err,
			)
		}
	}()

	if err = s.Deliver(event); err != nil {
		metrics.IncDeliveryFailure("error")
		h.logger.Warnw("Event delivery failed",
			"subscriber_id", s.ID(),
			"event", event.Kind,
			"error", err,
		)
	}
	return err
}

// StatusEvent builds the transport-level status report.
func (h *Hub) StatusEvent() models.Event {
	return models.NewEvent(models.EventStatus, models.StatusPayload{
		ConnectedClients: h.Count(),
		Status:           StatusOnline,
	})
}

// StartHeartbeat publishes a status event every heartbeat interval until ctx
// is done or Close is called. It is a no-op when the interval is zero or a
// heartbeat is already running.
func (h *Hub) StartHeartbeat(ctx context.Context) {
	if h.heartbeatInterval <= 0 {
		return
	}

	h.hbMu.Lock()
	defer h.hbMu.Unlock()
	if h.hbCancel != nil {
		return
	}

	hbCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	h.hbCancel = cancel
	h.hbDone = done

	go func() {
		defer close(done)
		ticker := time.NewTicker(h.heartbeatInterval)
		defer ticker.Stop()

		for {
			select {
			case <-hbCtx.Done():
				return
			case <-ticker.C:
				h.Publish(h.StatusEvent())
			}
		}
	}()
}

func (h *Hub) stopHeartbeat() {
	h.hbMu.Lock()
	cancel, done := h.hbCancel, h.hbDone
	h.hbCancel, h.hbDone = nil, nil
	h.hbMu.Unlock()

	if cancel != nil {
		cancel()
		<-done
	}
}

// Close stops the heartbeat, detaches everyone and closes subscribers that
// implement io.Closer. Further publishes are dropped.
func (h *Hub) Close() error {
	h.stopHeartbeat()

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil
	}
	h.closed = true
	all := make([]Subscriber, 0, len(h.clients)+len(h.sinks))
	for _, s := range h.clients {
		all = append(all, s)
	}
	for _, s := range h.sinks {
		all = append(all, s)
	}
	h.clients = make(map[string]Subscriber)
	h.sinks = make(map[string]Subscriber)
	metrics.SetSubscribers(0)
	h.mu.Unlock()

	for _, s := range all {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				h.logger.Warnw("Failed to close subscriber", "subscriber_id", s.ID(), "error", err)
			}
		}
	}
	return nil
}
