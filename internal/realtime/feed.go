// Package realtime carries message change events between the store writers and the
// websocket fan-out.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/saeid-a/FinCoachBack/internal/models"
)

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
)

// Event mirrors a committed row change on the messages table.
type Event struct {
	Type           string         `json:"type"`
	Table          string         `json:"table"`
	ConversationID int64          `json:"conversation_id"`
	Message        models.Message `json:"message"`
}

func InsertEvent(message models.Message) Event {
	return Event{Type: EventInsert, Table: "messages", ConversationID: message.ConversationID, Message: message}
}

func UpdateEvent(message models.Message) Event {
	return Event{Type: EventUpdate, Table: "messages", ConversationID: message.ConversationID, Message: message}
}

type Handler func(Event)

type Subscription interface {
	Unsubscribe() error
}

// Feed publishes and subscribes to change events. A zero conversationID subscribes to
// every conversation.
type Feed interface {
	Publish(ctx context.Context, event Event) error
	Subscribe(conversationID int64, handler Handler) (Subscription, error)
	Close() error
}

func Subject(conversationID int64) string {
	if conversationID == 0 {
		return "chat.conversation.*"
	}
	return fmt.Sprintf("chat.conversation.%d", conversationID)
}

func encode(event Event) ([]byte, error) {
	return json.Marshal(event)
}

func decode(data []byte) (Event, error) {
	var event Event
	err := json.Unmarshal(data, &event)
	return event, err
}

// MemoryFeed is an in-process feed for single-instance deployments and tests.
type MemoryFeed struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]memorySub
}

type memorySub struct {
	conversationID int64
	handler        Handler
}

func NewMemoryFeed() *MemoryFeed {
	return &MemoryFeed{subs: make(map[int]memorySub)}
}

func (f *MemoryFeed) Publish(_ context.Context, event Event) error {
	f.mu.RLock()
	handlers := make([]Handler, 0, len(f.subs))
	for _, sub := range f.subs {
		if sub.conversationID == 0 || sub.conversationID == event.ConversationID {
			handlers = append(handlers, sub.handler)
		}
	}
	f.mu.RUnlock()

	for _, handler := range handlers {
		handler(event)
	}
	return nil
}

func (f *MemoryFeed) Subscribe(conversationID int64, handler Handler) (Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	f.subs[id] = memorySub{conversationID: conversationID, handler: handler}
	return memorySubscription{feed: f, id: id}, nil
}

func (f *MemoryFeed) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.subs = make(map[int]memorySub)
	return nil
}

type memorySubscription struct {
	feed *MemoryFeed
	id   int
}

func (s memorySubscription) Unsubscribe() error {
	s.feed.mu.Lock()
	defer s.feed.mu.Unlock()
	delete(s.feed.subs, s.id)
	return nil
}
