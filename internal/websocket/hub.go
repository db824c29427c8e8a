package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"SmartWater.influxDB/internal/metrics"
	"SmartWater.influxDB/internal/models"
	"github.com/gorilla/websocket"
)

// Subscriber is one live push-channel endpoint.
type Subscriber interface {
	// Ready reports whether the subscriber is open for frames.
	Ready() bool
	// Send queues a frame without blocking.
	Send(frame []byte) error
}

// Snapshotter supplies records a new subscriber receives before live frames.
type Snapshotter interface {
	Latest(ctx context.Context) ([]models.EnrichedRecord, error)
}

// Hub maintains the set of active subscribers and broadcasts records to them.
type Hub struct {
	mu          sync.RWMutex
	subscribers map[Subscriber]struct{}
	upgrader    websocket.Upgrader
	snapshot    Snapshotter
	metrics     *metrics.Metrics
}

// NewHub creates an empty hub. snapshot may be nil.
func NewHub(snapshot Snapshotter, m *metrics.Metrics) *Hub {
	return &Hub{
		subscribers: make(map[Subscriber]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// UI clients connect from arbitrary origins; CORS is handled upstream.
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		snapshot: snapshot,
		metrics:  m,
	}
}

// Register adds a subscriber.
func (h *Hub) Register(s Subscriber) {
	h.mu.Lock()
	h.subscribers[s] = struct{}{}
	n := len(h.subscribers)
	h.mu.Unlock()
	h.metrics.Subscribers(n)
}

// Unregister removes a subscriber. Unknown subscribers are ignored.
func (h *Hub) Unregister(s Subscriber) {
	h.mu.Lock()
	delete(h.subscribers, s)
	n := len(h.subscribers)
	h.mu.Unlock()
	h.metrics.Subscribers(n)
}

// Len returns the number of registered subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// Broadcast sends record to every ready subscriber and returns how many
// accepted it. Failures are logged per subscriber and never abort delivery
// to the rest.
func (h *Hub) Broadcast(record models.EnrichedRecord) int {
	frame, err := json.Marshal(record)
	if err != nil {
		log.Printf("Error marshalling record for broadcast: %v", err)
		return 0
	}
	return h.broadcastFrame(frame)
}

// broadcastFrame sends an already encoded frame.
func (h *Hub) broadcastFrame(frame []byte) int {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	delivered := 0
	for _, s := range targets {
		if !s.Ready() {
			continue
		}
		if err := s.Send(frame); err != nil {
			h.metrics.SendFailed()
			log.Printf("WebSocket send failed, skipping subscriber: %v", err)
			continue
		}
		h.metrics.FrameSent()
		delivered++
	}
	return delivered
}

// ServeWS upgrades the request and runs the connection until it closes.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: %v", err)
		return
	}
	log.Printf("WebSocket client connected: %s", conn.RemoteAddr())

	// Register before loading the snapshot so no broadcast falls between the two.
	client := newClient(h, conn)
	h.Register(client)
	client.run(h.replayFrames(r.Context()))
}

// CloseAll disconnects every subscriber.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	targets := make([]Subscriber, 0, len(h.subscribers))
	for s := range h.subscribers {
		targets = append(targets, s)
	}
	h.mu.RUnlock()

	for _, s := range targets {
		if c, ok := s.(interface{ Close() }); ok {
			c.Close()
		}
	}
}

func (h *Hub) replayFrames(ctx context.Context) [][]byte {
	if h.snapshot == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	records, err := h.snapshot.Latest(ctx)
	if err != nil {
		log.Printf("Error loading latest records for replay: %v", err)
		return nil
	}
	frames := make([][]byte, 0, len(records))
	for _, rec := range records {
		frame, err := json.Marshal(rec)
		if err != nil {
			continue
		}
		frames = append(frames, frame)
	}
	return frames
}
