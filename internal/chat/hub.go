package chat

import (
	"sync"

	"github.com/opsbridge/opsbridge/internal/domain"
)

// Hub fans newly appended messages out to a user's connected stream clients.
// Subscribers that cannot keep up have events dropped rather than blocking
// the chat turn; the client recovers by re-fetching state with its last seen
// message id.
type Hub struct {
	mu     sync.RWMutex
	subs   map[string]map[int64]chan domain.Message // login -> subID -> channel
	nextID int64
}

// NewHub creates a Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[int64]chan domain.Message)}
}

// Subscribe registers a stream client for a user. The returned id is passed
// to Unsubscribe when the client disconnects.
func (h *Hub) Subscribe(login string) (int64, <-chan domain.Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan domain.Message, 16)
	if _, ok := h.subs[login]; !ok {
		h.subs[login] = make(map[int64]chan domain.Message)
	}
	h.subs[login][id] = ch
	return id, ch
}

// Unsubscribe removes a stream client and closes its channel.
func (h *Hub) Unsubscribe(login string, id int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	conns, ok := h.subs[login]
	if !ok {
		return
	}
	if ch, ok := conns[id]; ok {
		close(ch)
		delete(conns, id)
	}
	if len(conns) == 0 {
		delete(h.subs, login)
	}
}

// Publish delivers a message to every subscriber of the user. Non-blocking.
func (h *Hub) Publish(login string, msg domain.Message) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, ch := range h.subs[login] {
		select {
		case ch <- msg:
		default:
		}
	}
}
