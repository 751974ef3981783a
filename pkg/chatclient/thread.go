package chatclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	DefaultReadDelay   = 1500 * time.Millisecond
	markReadTimeout    = 15 * time.Second
	resyncTimeout      = 15 * time.Second
	defaultMessageKind = "text"
)

var ErrEmptyBody = errors.New("message body is empty")

// Backend is the request/response side of the server.
type Backend interface {
	LoadMessages(ctx context.Context, conversationID int64) ([]Message, error)
	SendMessage(ctx context.Context, conversationID int64, body, clientKey string) (Message, error)
	MarkRead(ctx context.Context, conversationID int64, messageIDs []int64) error
}

// Feed delivers change events for one conversation until the returned stop func is called.
type Feed interface {
	Subscribe(ctx context.Context, conversationID int64, handler func(Event)) (stop func(), err error)
}

// SendError reports a send that did not reach the store. The optimistic entry has already been
// removed; calling Send again with the same body is safe.
type SendError struct {
	ClientKey string
	Err       error
}

func (e *SendError) Error() string {
	return fmt.Sprintf("send message: %v", e.Err)
}

func (e *SendError) Unwrap() error {
	return e.Err
}

func (e *SendError) Retryable() bool {
	return true
}

type Option func(*Thread)

func WithReadDelay(d time.Duration) Option {
	return func(t *Thread) { t.readDelay = d }
}

func WithClock(now func() time.Time) Option {
	return func(t *Thread) { t.now = now }
}

func WithKeyGenerator(next func() string) Option {
	return func(t *Thread) { t.newKey = next }
}

func WithLogger(log zerolog.Logger) Option {
	return func(t *Thread) { t.log = log }
}

// WithOnChange registers a callback invoked with a snapshot after every local change.
// It runs without the thread lock held.
func WithOnChange(fn func([]Entry)) Option {
	return func(t *Thread) { t.onChange = fn }
}

// Thread is the local view of one conversation.
type Thread struct {
	backend        Backend
	feed           Feed
	conversationID int64
	selfID         int64

	readDelay time.Duration
	now       func() time.Time
	newKey    func() string
	onChange  func([]Entry)
	log       zerolog.Logger

	mu        sync.Mutex
	entries   []Entry
	known     map[int64]struct{}
	readQueue []int64
	readTimer *time.Timer
	stop      func()
	closed    bool
}

func NewThread(backend Backend, feed Feed, conversationID, selfID int64, opts ...Option) *Thread {
	t := &Thread{
		backend:        backend,
		feed:           feed,
		conversationID: conversationID,
		selfID:         selfID,
		readDelay:      DefaultReadDelay,
		now:            time.Now,
		newKey:         func() string { return uuid.NewString() },
		log:            zerolog.Nop(),
		known:          make(map[int64]struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Thread) ConversationID() int64 {
	return t.conversationID
}

// Entries returns a snapshot in display order.
func (t *Thread) Entries() []Entry {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.snapshotLocked()
}

// Load replaces confirmed entries with the server's list. The server marks unread messages as
// read while loading. Entries still being sent stay at the tail unless the list already holds
// their record.
func (t *Thread) Load(ctx context.Context) error {
	messages, err := t.backend.LoadMessages(ctx, t.conversationID)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}

	t.mu.Lock()
	stored := make(map[string]struct{})
	entries := make([]Entry, 0, len(messages)+len(t.entries))
	known := make(map[int64]struct{}, len(messages))
	for _, message := range messages {
		if _, dup := known[message.ID]; dup {
			continue
		}
		known[message.ID] = struct{}{}
		if message.ClientKey != nil {
			stored[*message.ClientKey] = struct{}{}
		}
		entries = append(entries, Entry{Identity: Confirmed(message.ID), State: StateConfirmed, Message: message})
	}
	for _, entry := range t.entries {
		if !entry.Identity.IsPending() {
			continue
		}
		if _, ok := stored[entry.Identity.ClientKey]; ok {
			continue
		}
		entries = append(entries, entry)
	}
	t.entries = entries
	t.known = known
	snapshot := t.snapshotLocked()
	t.mu.Unlock()

	t.notify(snapshot)
	return nil
}

// Send renders body immediately as a pending entry, then stores it. On success the entry is
// confirmed in place; on failure it is removed and a *SendError is returned. Send never retries.
func (t *Thread) Send(ctx context.Context, body string) (Message, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return Message{}, ErrEmptyBody
	}

	key := t.newKey()
	t.mu.Lock()
	t.entries = append(t.entries, Entry{
		Identity: Pending(key),
		State:    StateSending,
		Message: Message{
			ConversationID: t.conversationID,
			SenderID:       t.selfID,
			Body:           body,
			Kind:           defaultMessageKind,
			ClientKey:      &key,
			CreatedAt:      t.now(),
			ReadBy:         []int64{},
		},
	})
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)

	stored, err := t.backend.SendMessage(ctx, t.conversationID, body, key)

	t.mu.Lock()
	if err != nil {
		// The feed may already have confirmed the row before the response was lost.
		if confirmed, ok := t.confirmedByKeyLocked(key); ok {
			t.mu.Unlock()
			return confirmed, nil
		}
		t.removePendingLocked(key)
		snapshot = t.snapshotLocked()
		t.mu.Unlock()
		t.notify(snapshot)
		return Message{}, &SendError{ClientKey: key, Err: err}
	}
	if !t.confirmLocked(key, stored) {
		if _, ok := t.known[stored.ID]; !ok {
			t.known[stored.ID] = struct{}{}
			t.entries = append(t.entries, Entry{Identity: Confirmed(stored.ID), State: StateConfirmed, Message: stored})
		}
	}
	snapshot = t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)
	return stored, nil
}

// Subscribe attaches the thread to the change feed. Close detaches it.
func (t *Thread) Subscribe(ctx context.Context) error {
	if t.feed == nil {
		return errors.New("no feed configured")
	}
	stop, err := t.feed.Subscribe(ctx, t.conversationID, t.HandleEvent)
	if err != nil {
		return fmt.Errorf("subscribe conversation %d: %w", t.conversationID, err)
	}
	t.mu.Lock()
	if t.stop != nil {
		t.stop()
	}
	t.stop = stop
	t.mu.Unlock()
	return nil
}

// HandleEvent applies one change event. Inserts whose id is already known are ignored; an insert
// carrying the client key of a pending entry confirms that entry in place. A resync reloads the
// thread before the feed delivers anything else.
func (t *Thread) HandleEvent(event Event) {
	if event.ConversationID != t.conversationID {
		return
	}
	if event.Type == EventResync {
		t.resync()
		return
	}

	t.mu.Lock()
	changed := false
	switch event.Type {
	case EventInsert:
		changed = t.applyInsertLocked(event.Message)
	case EventUpdate:
		changed = t.applyUpdateLocked(event.Message)
	default:
		t.log.Debug().Str("type", event.Type).Msg("ignoring unknown event type")
	}
	if !changed {
		t.mu.Unlock()
		return
	}
	snapshot := t.snapshotLocked()
	t.mu.Unlock()
	t.notify(snapshot)
}

// Close stops the feed subscription and flushes queued read markers.
func (t *Thread) Close() {
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	stop := t.stop
	t.stop = nil
	if t.readTimer != nil {
		t.readTimer.Stop()
		t.readTimer = nil
	}
	t.mu.Unlock()

	if stop != nil {
		stop()
	}
	t.flushReads()
}

func (t *Thread) resync() {
	t.mu.Lock()
	closed := t.closed
	t.mu.Unlock()
	if closed {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), resyncTimeout)
	defer cancel()
	if err := t.Load(ctx); err != nil {
		t.log.Warn().Err(err).Int64("conversation_id", t.conversationID).Msg("reload after reconnect failed")
	}
}

func (t *Thread) applyInsertLocked(message Message) bool {
	if _, ok := t.known[message.ID]; ok {
		return false
	}
	if message.ClientKey != nil && t.confirmLocked(*message.ClientKey, message) {
		return true
	}

	t.known[message.ID] = struct{}{}
	t.entries = append(t.entries, Entry{Identity: Confirmed(message.ID), State: StateConfirmed, Message: message})
	if message.SenderID != t.selfID && !message.isReadBy(t.selfID) {
		t.queueReadLocked(message.ID)
	}
	return true
}

func (t *Thread) applyUpdateLocked(message Message) bool {
	if _, ok := t.known[message.ID]; !ok {
		return false
	}
	for i := range t.entries {
		if !t.entries[i].Identity.IsPending() && t.entries[i].Identity.ID == message.ID {
			t.entries[i].Message = message
			return true
		}
	}
	return false
}

// confirmLocked swaps the pending entry for key to the stored record. It reports false when no
// pending entry carries key.
func (t *Thread) confirmLocked(key string, stored Message) bool {
	for i := range t.entries {
		entry := &t.entries[i]
		if !entry.Identity.IsPending() || entry.Identity.ClientKey != key {
			continue
		}
		if _, dup := t.known[stored.ID]; dup {
			// Already appended from the feed under its store id; drop the placeholder.
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return true
		}
		entry.Identity = Confirmed(stored.ID)
		entry.State = StateConfirmed
		entry.Message = stored
		t.known[stored.ID] = struct{}{}
		return true
	}
	return false
}

func (t *Thread) confirmedByKeyLocked(key string) (Message, bool) {
	for _, entry := range t.entries {
		if entry.Identity.IsPending() {
			continue
		}
		if entry.Message.ClientKey != nil && *entry.Message.ClientKey == key {
			return entry.Message, true
		}
	}
	return Message{}, false
}

func (t *Thread) removePendingLocked(key string) {
	for i, entry := range t.entries {
		if entry.Identity.IsPending() && entry.Identity.ClientKey == key {
			t.entries = append(t.entries[:i], t.entries[i+1:]...)
			return
		}
	}
}

// queueReadLocked batches ids that arrive within one read delay into a single MarkRead call.
func (t *Thread) queueReadLocked(id int64) {
	if t.closed {
		return
	}
	t.readQueue = append(t.readQueue, id)
	if t.readTimer == nil {
		t.readTimer = time.AfterFunc(t.readDelay, t.flushReads)
	}
}

func (t *Thread) flushReads() {
	t.mu.Lock()
	ids := t.readQueue
	t.readQueue = nil
	t.readTimer = nil
	t.mu.Unlock()
	if len(ids) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), markReadTimeout)
	defer cancel()
	if err := t.backend.MarkRead(ctx, t.conversationID, ids); err != nil {
		t.log.Warn().Err(err).Int64("conversation_id", t.conversationID).Ints64("message_ids", ids).Msg("mark read failed")
	}
}

func (t *Thread) snapshotLocked() []Entry {
	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

func (t *Thread) notify(snapshot []Entry) {
	if t.onChange != nil {
		t.onChange(snapshot)
	}
}

func (m Message) isReadBy(userID int64) bool {
	for _, id := range m.ReadBy {
		if id == userID {
			return true
		}
	}
	return false
}
