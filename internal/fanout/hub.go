// -----------------------------------------------------------------------
// Subscriber Fan-out - broadcast job updates and notifications to any
// number of attached subscribers, evicting the dead ones
// -----------------------------------------------------------------------

package fanout

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/ternarybob/arbor"
	"golang.org/x/time/rate"

	"github.com/molotovsingh/personal-backup-tool/internal/models"
)

// Subscriber receives encoded fan-out messages. A returned error evicts
// the subscriber on the next broadcast pass.
type Subscriber interface {
	Send(data []byte) error
}

// Hub fans messages out to subscribers. Sends are synchronous per
// subscriber; the broadcaster iterates a snapshot of the subscriber set
// so a slow peer slows only its own branch.
type Hub struct {
	logger arbor.ILogger

	mu          sync.RWMutex
	subscribers map[Subscriber]bool

	// limiter throttles notification broadcasts; job updates are never
	// throttled. Nil disables throttling.
	limiter *rate.Limiter
}

// NewHub builds a hub. notifyInterval throttles notification messages;
// zero disables the throttle.
func NewHub(logger arbor.ILogger, notifyInterval time.Duration) *Hub {
	h := &Hub{
		logger:      logger,
		subscribers: make(map[Subscriber]bool),
	}
	if notifyInterval > 0 {
		h.limiter = rate.NewLimiter(rate.Every(notifyInterval), 1)
	}
	return h
}

// Attach registers a subscriber.
func (h *Hub) Attach(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.subscribers[sub] = true
	h.logger.Debug().Int("subscribers", len(h.subscribers)).Msg("Subscriber attached")
}

// Detach removes a subscriber.
func (h *Hub) Detach(sub Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.subscribers, sub)
	h.logger.Debug().Int("subscribers", len(h.subscribers)).Msg("Subscriber detached")
}

// Count returns the number of attached subscribers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}

// BroadcastUpdate sends a job update or final update to every
// subscriber. Per-job ordering holds because the monitor is the single
// producer.
func (h *Hub) BroadcastUpdate(msg *models.JobUpdateMessage) {
	h.broadcast(msg)
}

// Notify fans out a notification, subject to the throttle.
func (h *Hub) Notify(level, message, details string) {
	if h.limiter != nil && !h.limiter.Allow() {
		return
	}
	h.broadcast(models.NewNotification(level, message, details))
}

func (h *Hub) broadcast(msg interface{}) {
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Warn().Err(err).Msg("Failed to encode fan-out message")
		return
	}

	h.mu.RLock()
	snapshot := make([]Subscriber, 0, len(h.subscribers))
	for sub := range h.subscribers {
		snapshot = append(snapshot, sub)
	}
	h.mu.RUnlock()

	var dead []Subscriber
	for _, sub := range snapshot {
		if err := sub.Send(data); err != nil {
			dead = append(dead, sub)
		}
	}

	if len(dead) > 0 {
		h.mu.Lock()
		for _, sub := range dead {
			delete(h.subscribers, sub)
		}
		remaining := len(h.subscribers)
		h.mu.Unlock()
		h.logger.Debug().
			Int("evicted", len(dead)).
			Int("subscribers", remaining).
			Msg("Evicted dead subscribers")
	}
}
