package main

import (
	"context"
	"net/http"
	"sync"
	"time"

	"whatsdata/internal/constants"
	"whatsdata/internal/metrics"
	"whatsdata/internal/store"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const watchWriteTimeout = 5 * time.Second

// watchMessage is one frame on the change feed
type watchMessage struct {
	Type         string       `json:"type"`
	SubscriberID string       `json:"subscriber_id,omitempty"`
	Event        *store.Event `json:"event,omitempty"`
}

// WatchHub fans store mutation events out to websocket subscribers.
// Slow subscribers lose events rather than stall the store.
type WatchHub struct {
	logger *logrus.Logger
	buffer int
	events chan store.Event

	mu      sync.RWMutex
	clients map[string]chan store.Event
	closed  bool
}

func NewWatchHub(buffer int, logger *logrus.Logger) *WatchHub {
	if buffer <= 0 {
		buffer = constants.DefaultWatchBufferSize
	}
	return &WatchHub{
		logger:  logger,
		buffer:  buffer,
		events:  make(chan store.Event, buffer),
		clients: make(map[string]chan store.Event),
	}
}

// Publish is a store.Observer; it never blocks
func (h *WatchHub) Publish(ev store.Event) {
	select {
	case h.events <- ev:
	default:
		metrics.IncrementCounter("watch_events_dropped_total", map[string]string{"stage": "hub"},
			"Change events dropped before delivery")
	}
}

// Serve broadcasts queued events until ctx is cancelled, then disconnects every subscriber
func (h *WatchHub) Serve(ctx context.Context) error {
	h.mu.Lock()
	h.closed = false
	h.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return ctx.Err()
		case ev := <-h.events:
			h.broadcast(ev)
		}
	}
}

func (h *WatchHub) String() string {
	return "watch-hub"
}

func (h *WatchHub) broadcast(ev store.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for id, ch := range h.clients {
		select {
		case ch <- ev:
		default:
			h.logger.WithField("subscriber_id", id).Debug("Watch subscriber is behind, dropping event")
			metrics.IncrementCounter("watch_events_dropped_total", map[string]string{"stage": "subscriber"},
				"Change events dropped before delivery")
		}
	}
}

func (h *WatchHub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, ch := range h.clients {
		close(ch)
		delete(h.clients, id)
	}
	h.closed = true
	metrics.SetWatchSubscribers(0)
}

func (h *WatchHub) subscribe() (string, chan store.Event, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return "", nil, false
	}
	id := uuid.NewString()
	ch := make(chan store.Event, h.buffer)
	h.clients[id] = ch
	metrics.SetWatchSubscribers(len(h.clients))
	return id, ch, true
}

func (h *WatchHub) unsubscribe(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.clients[id]; ok {
		close(ch)
		delete(h.clients, id)
	}
	metrics.SetWatchSubscribers(len(h.clients))
}

// Subscribers returns the number of connected clients
func (h *WatchHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and streams events until either side goes away
func (h *WatchHub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	id, events, ok := h.subscribe()
	if !ok {
		http.Error(w, "change feed is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer h.unsubscribe(id)

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		h.logger.WithError(err).Warn("Failed to accept websocket connection")
		return
	}
	defer conn.CloseNow()

	log := h.logger.WithField("subscriber_id", id)
	log.Info("Watch subscriber connected")

	// the feed is one way; CloseRead handles pings and notices the client leaving
	ctx := conn.CloseRead(r.Context())

	if err := h.write(ctx, conn, watchMessage{Type: "subscribed", SubscriberID: id}); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			log.Info("Watch subscriber disconnected")
			return
		case ev, open := <-events:
			if !open {
				conn.Close(websocket.StatusGoingAway, "server shutting down")
				return
			}
			if err := h.write(ctx, conn, watchMessage{Type: "change", Event: &ev}); err != nil {
				log.WithError(err).Debug("Failed to write watch event")
				return
			}
		}
	}
}

func (h *WatchHub) write(ctx context.Context, conn *websocket.Conn, msg watchMessage) error {
	ctx, cancel := context.WithTimeout(ctx, watchWriteTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, msg)
}
