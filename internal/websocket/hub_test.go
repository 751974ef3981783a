package chatws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/realtime"
	"github.com/saeid-a/FinCoachBack/internal/services"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	in   chan []byte
	out  chan []byte
	once sync.Once
	done chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{in: make(chan []byte, 8), out: make(chan []byte, 32), done: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case payload := <-c.in:
		return 1, payload, nil
	case <-c.done:
		return 0, nil, errors.New("closed")
	}
}

func (c *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case c.out <- data:
		return nil
	case <-c.done:
		return errors.New("closed")
	}
}

func (c *fakeConn) Close() error {
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) next(t *testing.T) Outgoing {
	t.Helper()
	select {
	case payload := <-c.out:
		var frame Outgoing
		require.NoError(t, json.Unmarshal(payload, &frame))
		return frame
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for frame")
		return Outgoing{}
	}
}

func (c *fakeConn) sendFrame(t *testing.T, frame Incoming) {
	t.Helper()
	payload, err := json.Marshal(frame)
	require.NoError(t, err)
	c.in <- payload
}

type stubChat struct {
	conversations map[int64]*models.Conversation
	sent          []services.SendMessageInput
	reads         [][]int64
	mu            sync.Mutex
}

func (s *stubChat) Conversation(_ context.Context, caller auth.Caller, id int64) (*models.Conversation, error) {
	conversation, ok := s.conversations[id]
	if !ok {
		return nil, services.ErrNotFound
	}
	if !caller.IsStaff() && conversation.UserID != caller.UserID {
		return nil, services.ErrForbidden
	}
	return conversation, nil
}

func (s *stubChat) SendMessage(_ context.Context, caller auth.Caller, input services.SendMessageInput) (*services.SendResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, input)
	return &services.SendResult{
		Message: &models.Message{ID: 99, ConversationID: input.ConversationID, SenderID: caller.UserID, Body: input.Body, ClientKey: input.ClientKey},
		Created: true,
	}, nil
}

func (s *stubChat) MarkRead(_ context.Context, _ auth.Caller, _ int64, ids []int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads = append(s.reads, ids)
	return nil, nil
}

func int64Ptr(v int64) *int64 { return &v }

func startClient(t *testing.T, caller auth.Caller, chat *stubChat) (*Hub, *fakeConn) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := NewHub(zerolog.Nop())
	go func() { _ = hub.Run(ctx) }()

	conn := newFakeConn()
	client := NewClient(hub, conn, caller)
	hub.Register(client)
	go client.WritePump()
	go client.ReadPump(ctx, chat)
	t.Cleanup(func() { _ = conn.Close() })
	return hub, conn
}

func TestHubDeliversEventsForSubscribedConversation(t *testing.T) {
	chat := &stubChat{conversations: map[int64]*models.Conversation{
		7: {ID: 7, UserID: 10},
		8: {ID: 8, UserID: 11},
	}}
	hub, conn := startClient(t, auth.Caller{UserID: 20, Role: models.RoleCoach}, chat)

	conn.sendFrame(t, Incoming{Type: FrameSubscribe, ConversationID: 7})
	assert.Equal(t, FrameSubscribed, conn.next(t).Type)

	hub.Publish(realtime.InsertEvent(models.Message{ID: 1, ConversationID: 8, Body: "elsewhere"}))
	hub.Publish(realtime.InsertEvent(models.Message{ID: 2, ConversationID: 7, Body: "hello"}))

	frame := conn.next(t)
	require.Equal(t, FrameEvent, frame.Type)
	require.NotNil(t, frame.Event)
	assert.Equal(t, int64(2), frame.Event.Message.ID)
	assert.Equal(t, realtime.EventInsert, frame.Event.Type)
}

func TestHubAppliesCourseFilterForClients(t *testing.T) {
	chat := &stubChat{conversations: map[int64]*models.Conversation{
		7: {ID: 7, UserID: 10, ItemID: int64Ptr(5)},
	}}
	hub, conn := startClient(t, auth.Caller{UserID: 10, Role: models.RoleClient}, chat)

	conn.sendFrame(t, Incoming{Type: FrameSubscribe, ConversationID: 7})
	assert.Equal(t, FrameSubscribed, conn.next(t).Type)

	hub.Publish(realtime.InsertEvent(models.Message{ID: 1, ConversationID: 7, SenderRole: models.RoleCoach, CourseItemID: int64Ptr(6)}))
	hub.Publish(realtime.InsertEvent(models.Message{ID: 2, ConversationID: 7, SenderRole: models.RoleCoach, CourseItemID: int64Ptr(5)}))

	frame := conn.next(t)
	require.NotNil(t, frame.Event)
	assert.Equal(t, int64(2), frame.Event.Message.ID)
}

func TestHubRejectsForeignConversation(t *testing.T) {
	chat := &stubChat{conversations: map[int64]*models.Conversation{
		7: {ID: 7, UserID: 10},
	}}
	_, conn := startClient(t, auth.Caller{UserID: 11, Role: models.RoleClient}, chat)

	conn.sendFrame(t, Incoming{Type: FrameSubscribe, ConversationID: 7})
	frame := conn.next(t)
	assert.Equal(t, FrameError, frame.Type)
	assert.Equal(t, "forbidden", frame.Error)
}

func TestHubAcknowledgesSendsAndForwardsReads(t *testing.T) {
	chat := &stubChat{conversations: map[int64]*models.Conversation{7: {ID: 7, UserID: 10}}}
	_, conn := startClient(t, auth.Caller{UserID: 10, Role: models.RoleClient}, chat)

	key := "4f9c2a9e-8a51-4d8a-9d4f-3a0d8f9e6b21"
	conn.sendFrame(t, Incoming{Type: FrameMessage, ConversationID: 7, Body: "hi", ClientKey: &key})

	ack := conn.next(t)
	require.Equal(t, FrameAck, ack.Type)
	require.NotNil(t, ack.Message)
	assert.Equal(t, int64(99), ack.Message.ID)
	require.NotNil(t, ack.ClientKey)
	assert.Equal(t, key, *ack.ClientKey)

	conn.sendFrame(t, Incoming{Type: FrameRead, ConversationID: 7, MessageIDs: []int64{3, 4}})
	conn.sendFrame(t, Incoming{Type: "shout", ConversationID: 7})
	assert.Equal(t, "unsupported message type", conn.next(t).Error)

	chat.mu.Lock()
	defer chat.mu.Unlock()
	require.Len(t, chat.reads, 1)
	assert.Equal(t, []int64{3, 4}, chat.reads[0])
}

func TestHubRejectsMalformedFrames(t *testing.T) {
	chat := &stubChat{}
	_, conn := startClient(t, auth.Caller{UserID: 10, Role: models.RoleClient}, chat)

	conn.in <- []byte("{not json")
	assert.Equal(t, "invalid message payload", conn.next(t).Error)

	conn.sendFrame(t, Incoming{Type: FrameSubscribe})
	assert.Equal(t, "invalid conversation id", conn.next(t).Error)
}
