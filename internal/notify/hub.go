package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
)

// Subscriber is one connected observer.
type Subscriber struct {
	ID       uuid.UUID
	Outbound chan Message
	done     chan struct{}
	once     sync.Once
}

// Hub fans events out to in-process subscribers. Delivery is at most once:
// a subscriber with a full buffer misses the event.
type Hub struct {
	mu        sync.RWMutex
	log       *zap.Logger
	subs      map[*Subscriber]struct{}
	bufSize   int
	heartbeat time.Duration
	now       func() time.Time
}

// NewHub constructs a hub with per-subscriber buffer size.
func NewHub(log *zap.Logger, bufSize int) *Hub {
	if log == nil {
		log = zap.NewNop()
	}
	if bufSize <= 0 {
		bufSize = 16
	}
	return &Hub{
		log:       log.With(zap.String("component", "notify.hub")),
		subs:      make(map[*Subscriber]struct{}),
		bufSize:   bufSize,
		heartbeat: 15 * time.Second,
		now:       time.Now,
	}
}

// Subscribe registers a new subscriber.
func (h *Hub) Subscribe() *Subscriber {
	s := &Subscriber{
		ID:       uuid.Must(uuid.NewV4()),
		Outbound: make(chan Message, h.bufSize),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	h.subs[s] = struct{}{}
	h.mu.Unlock()
	h.log.Debug("subscriber added", zap.String("id", s.ID.String()))
	return s
}

// Unsubscribe removes s and closes its channel. Safe to call twice.
func (h *Hub) Unsubscribe(s *Subscriber) {
	s.once.Do(func() {
		h.mu.Lock()
		delete(h.subs, s)
		close(s.done)
		close(s.Outbound)
		h.mu.Unlock()
		h.log.Debug("subscriber removed", zap.String("id", s.ID.String()))
	})
}

// Close disconnects every subscriber, ending their streams.
func (h *Hub) Close() {
	h.mu.RLock()
	subs := make([]*Subscriber, 0, len(h.subs))
	for s := range h.subs {
		subs = append(subs, s)
	}
	h.mu.RUnlock()
	for _, s := range subs {
		h.Unsubscribe(s)
	}
}

// Len returns the number of connected subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Publish implements Notifier.
func (h *Hub) Publish(_ context.Context, event string, payload any) error {
	h.Broadcast(Message{Event: event, Payload: payload, At: h.now().UTC()})
	return nil
}

// Broadcast delivers msg to every subscriber without blocking.
func (h *Hub) Broadcast(msg Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs {
		select {
		case s.Outbound <- msg:
		default:
			h.log.Warn("dropping event; subscriber buffer full",
				zap.String("id", s.ID.String()),
				zap.String("event", msg.Event),
			)
		}
	}
}

// ServeHTTP streams events to the client as Server-Sent Events until the
// request context ends.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	sub := h.Subscribe()
	defer h.Unsubscribe(sub)

	ticker := time.NewTicker(h.heartbeat)
	defer ticker.Stop()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			_, _ = fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case msg, ok := <-sub.Outbound:
			if !ok {
				return
			}
			b, err := json.Marshal(msg.Payload)
			if err != nil {
				h.log.Warn("marshal event", zap.String("event", msg.Event), zap.Error(err))
				continue
			}
			_, _ = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, b)
			flusher.Flush()
		}
	}
}
