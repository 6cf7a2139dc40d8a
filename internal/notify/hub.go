// Package notify fans domain events out to connected clients.
package notify

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"goodscommunity/internal/domain"
)

// TopicBroadcast is the topic every client may listen on.
const TopicBroadcast = "broadcast"

// MemberTopic is the private topic of one member.
func MemberTopic(email string) string {
	return "member:" + strings.ToLower(strings.TrimSpace(email))
}

const defaultBuffer = 100

// ErrTooManySubscribers is returned by Join when the hub is at its cap.
var ErrTooManySubscribers = errors.New("notify: too many subscribers")

// Subscription receives events on C until Close or Hub.Stop.
type Subscription struct {
	ID     string
	C      <-chan domain.NotificationEvent
	ch     chan domain.NotificationEvent
	topics []string
	hub    *Hub
	once   sync.Once
}

// Close unsubscribes and closes C. Safe to call more than once.
func (s *Subscription) Close() {
	s.hub.remove(s)
}

// Hub is an in-process topic fan-out. Sends never block: a subscriber whose
// buffer is full misses the event.
type Hub struct {
	mu      sync.RWMutex
	topics  map[string]map[*Subscription]struct{}
	count   int
	stopped bool
	buffer  int
	max     int
	logger  *zap.Logger
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option { return func(h *Hub) { h.logger = l } }

// WithBuffer sets the per-subscriber channel capacity.
func WithBuffer(n int) Option { return func(h *Hub) { h.buffer = n } }

// WithMaxSubscribers caps the subscriptions Join hands out. Zero means no cap.
func WithMaxSubscribers(n int) Option { return func(h *Hub) { h.max = n } }

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		topics: map[string]map[*Subscription]struct{}{},
		buffer: defaultBuffer,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Subscribe always succeeds, ignoring the subscriber cap.
func (h *Hub) Subscribe(topics ...string) *Subscription {
	sub, _ := h.subscribe(false, topics)
	return sub
}

// Join is Subscribe for outside clients: it fails with ErrTooManySubscribers
// once the cap is reached. The check and the registration share one lock.
func (h *Hub) Join(topics ...string) (*Subscription, error) {
	return h.subscribe(true, topics)
}

func (h *Hub) subscribe(capped bool, topics []string) (*Subscription, error) {
	ch := make(chan domain.NotificationEvent, h.buffer)
	sub := &Subscription{ID: uuid.NewString(), C: ch, ch: ch, topics: topics, hub: h}

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		sub.once.Do(func() { close(ch) })
		return sub, nil
	}
	if capped && h.max > 0 && h.count >= h.max {
		return nil, ErrTooManySubscribers
	}
	for _, t := range topics {
		set, ok := h.topics[t]
		if !ok {
			set = map[*Subscription]struct{}{}
			h.topics[t] = set
		}
		set[sub] = struct{}{}
	}
	h.count++
	return sub, nil
}

func (h *Hub) remove(s *Subscription) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s.once.Do(func() {
		for _, t := range s.topics {
			if set, ok := h.topics[t]; ok {
				delete(set, s)
				if len(set) == 0 {
					delete(h.topics, t)
				}
			}
		}
		if !h.stopped {
			h.count--
		}
		close(s.ch)
	})
}

// Broadcast delivers ev to every subscriber of TopicBroadcast.
func (h *Hub) Broadcast(ev domain.NotificationEvent) {
	h.publish(TopicBroadcast, ev)
}

// SendToMember delivers ev to the private topic of email. Without a
// listener the event is dropped.
func (h *Hub) SendToMember(email string, ev domain.NotificationEvent) {
	h.publish(MemberTopic(email), ev)
}

func (h *Hub) publish(topic string, ev domain.NotificationEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for sub := range h.topics[topic] {
		select {
		case sub.ch <- ev:
		default:
			h.logger.Warn("notify.drop",
				zap.String("subscriber", sub.ID),
				zap.String("topic", topic),
				zap.String("kind", string(ev.Kind)))
		}
	}
}

// Count is the number of live subscriptions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.count
}

// Stop closes every subscription. Later subscriptions come back closed.
func (h *Hub) Stop() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.stopped {
		return
	}
	h.stopped = true
	for _, set := range h.topics {
		for sub := range set {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	h.topics = map[string]map[*Subscription]struct{}{}
	h.count = 0
	h.logger.Info("notify.stopped")
}
