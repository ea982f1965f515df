package realtime

import (
	"context"
	"log/slog"
	"sort"
	"sync"
)

// Bridge delivers change notifications for named topics. Handlers carry no
// payload: observers re-read the store when they fire.
type Bridge interface {
	Subscribe(topic string, handler func()) (unsubscribe func())
	Publish(ctx context.Context, topic string) error
}

// QueueTopic is the topic written on any change to a game mode's queue.
func QueueTopic(gameMode string) string { return "queue:" + gameMode }

// TeamTopic is the topic written on any roster change of a team.
func TeamTopic(teamID string) string { return "team:" + teamID }

// Hub is the in-process Bridge: a set of rooms keyed by topic.
// Handlers run on the publisher's goroutine and must not block.
type Hub struct {
	mu     sync.RWMutex
	rooms  map[string]map[uint64]func()
	nextID uint64
	logger *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		rooms:  make(map[string]map[uint64]func()),
		logger: logger,
	}
}

func (h *Hub) Subscribe(topic string, handler func()) func() {
	h.mu.Lock()
	h.nextID++
	id := h.nextID
	if _, ok := h.rooms[topic]; !ok {
		h.rooms[topic] = make(map[uint64]func())
	}
	h.rooms[topic][id] = handler
	h.logger.Debug("subscriber registered", slog.String("topic", topic), slog.Int("subscribers", len(h.rooms[topic])))
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			room, ok := h.rooms[topic]
			if !ok {
				return
			}
			delete(room, id)
			if len(room) == 0 {
				delete(h.rooms, topic)
			}
		})
	}
}

// Publish notifies local subscribers of topic. It never fails.
func (h *Hub) Publish(_ context.Context, topic string) error {
	h.Broadcast(topic)
	return nil
}

// Broadcast fires every handler registered for topic.
func (h *Hub) Broadcast(topic string) {
	h.mu.RLock()
	handlers := make([]func(), 0, len(h.rooms[topic]))
	for _, fn := range h.rooms[topic] {
		handlers = append(handlers, fn)
	}
	h.mu.RUnlock()

	for _, fn := range handlers {
		fn()
	}
}

// BroadcastAll fires every topic once, used after a lost upstream connection
// so observers re-derive whatever they may have missed.
func (h *Hub) BroadcastAll() {
	for _, topic := range h.Topics() {
		h.Broadcast(topic)
	}
}

// Topics returns the topics with at least one subscriber, sorted.
func (h *Hub) Topics() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	topics := make([]string, 0, len(h.rooms))
	for topic := range h.rooms {
		topics = append(topics, topic)
	}
	sort.Strings(topics)
	return topics
}

// SubscriberCount returns the number of handlers registered for topic.
func (h *Hub) SubscriberCount(topic string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[topic])
}
