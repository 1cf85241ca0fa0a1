package live

import (
	"sync"
	"time"
)

// Event is pushed to teachers watching a session when attendance lands.
type Event struct {
	SessionID string    `json:"session_id"`
	StudentID string    `json:"student_id"`
	Student   string    `json:"student"`
	ScannedAt time.Time `json:"scanned_at"`
}

// Hub fans out attendance events to per-session subscribers. Slow
// subscribers drop events instead of blocking the marking path.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan Event]struct{}
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan Event]struct{})}
}

// Subscribe registers a watcher for the session and returns its channel
// plus an unsubscribe func.
func (h *Hub) Subscribe(sessionID string) (<-chan Event, func()) {
	ch := make(chan Event, 16)

	h.mu.Lock()
	if h.subs[sessionID] == nil {
		h.subs[sessionID] = make(map[chan Event]struct{})
	}
	h.subs[sessionID][ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		if set, ok := h.subs[sessionID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, sessionID)
			}
		}
	}
	return ch, cancel
}

// Publish delivers the event to every watcher of its session.
func (h *Hub) Publish(evt Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[evt.SessionID] {
		select {
		case ch <- evt:
		default:
		}
	}
}
