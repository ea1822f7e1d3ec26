package app

import (
	"sync"

	"forum-quiz-service/internal/domain"
)

// ProgressPublisher receives import events as records are processed.
type ProgressPublisher interface {
	Publish(event domain.ImportEvent)
}

// ProgressHub fans import events out to subscribers. Slow subscribers lose
// stale events instead of blocking the import loop.
type ProgressHub struct {
	mu          sync.Mutex
	subscribers map[chan domain.ImportEvent]string
}

func NewProgressHub() *ProgressHub {
	return &ProgressHub{subscribers: make(map[chan domain.ImportEvent]string)}
}

// Subscribe returns a channel of events for importID ("" follows every import).
// The caller must invoke the returned cancel function to avoid leaks.
func (h *ProgressHub) Subscribe(importID string) (<-chan domain.ImportEvent, func()) {
	ch := make(chan domain.ImportEvent, 16)

	h.mu.Lock()
	h.subscribers[ch] = importID
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish delivers event to every matching subscriber.
func (h *ProgressHub) Publish(event domain.ImportEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch, filter := range h.subscribers {
		if filter != "" && filter != event.ImportID {
			continue
		}
		select {
		case ch <- event:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- event
		}
	}
}

// Subscribers reports how many subscribers are attached.
func (h *ProgressHub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subscribers)
}
