// Package chatws fans change-feed events out to websocket clients subscribed to
// conversations, and accepts sends and read receipts over the same socket.
package chatws

import (
	"context"
	"encoding/json"
	"errors"

	websocket "github.com/gofiber/contrib/websocket"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/realtime"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type Hub struct {
	// subscribers is only touched by the Run goroutine.
	subscribers map[int64]map[*Client]struct{}
	clients     map[*Client]struct{}
	register    chan *Client
	unregister  chan *Client
	subscribe   chan subscription
	unsubscribe chan subscription
	broadcast   chan realtime.Event
	replies     chan directFrame
	quit        chan struct{}
	log         zerolog.Logger
}

type subscription struct {
	client         *Client
	conversationID int64
	scope          *int64
}

type directFrame struct {
	client  *Client
	payload []byte
}

// Conn is the part of *websocket.Conn the hub needs.
type Conn interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type chatService interface {
	Conversation(ctx context.Context, caller auth.Caller, conversationID int64) (*models.Conversation, error)
	SendMessage(ctx context.Context, caller auth.Caller, input services.SendMessageInput) (*services.SendResult, error)
	MarkRead(ctx context.Context, caller auth.Caller, conversationID int64, messageIDs []int64) ([]models.Message, error)
}

type Client struct {
	hub    *Hub
	conn   Conn
	caller auth.Caller
	send   chan []byte
	// scopes holds the course context of each subscribed conversation; owned by Run.
	scopes map[int64]*int64
}

// Incoming is a frame sent by the browser.
type Incoming struct {
	Type           string  `json:"type"`
	ConversationID int64   `json:"conversation_id"`
	Body           string  `json:"body,omitempty"`
	Kind           string  `json:"kind,omitempty"`
	ClientKey      *string `json:"client_key,omitempty"`
	MessageIDs     []int64 `json:"message_ids,omitempty"`
}

// Outgoing is a frame pushed to the browser.
type Outgoing struct {
	Type           string          `json:"type"`
	ConversationID int64           `json:"conversation_id,omitempty"`
	Event          *realtime.Event `json:"event,omitempty"`
	Message        *models.Message `json:"message,omitempty"`
	ClientKey      *string         `json:"client_key,omitempty"`
	Error          string          `json:"error,omitempty"`
}

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameMessage     = "message"
	FrameRead        = "read"
	FrameEvent       = "event"
	FrameAck         = "ack"
	FrameSubscribed  = "subscribed"
	FrameError       = "error"
)

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		subscribers: make(map[int64]map[*Client]struct{}),
		clients:     make(map[*Client]struct{}),
		register:    make(chan *Client),
		unregister:  make(chan *Client),
		subscribe:   make(chan subscription),
		unsubscribe: make(chan subscription),
		broadcast:   make(chan realtime.Event, 256),
		replies:     make(chan directFrame, 64),
		quit:        make(chan struct{}),
		log:         log.With().Str("component", "chat_hub").Logger(),
	}
}

func NewClient(hub *Hub, conn Conn, caller auth.Caller) *Client {
	return &Client{
		hub:    hub,
		conn:   conn,
		caller: caller,
		send:   make(chan []byte, 32),
		scopes: make(map[int64]*int64),
	}
}

// Run owns all hub state until ctx is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.quit)
	for {
		select {
		case <-ctx.Done():
			for client := range h.clients {
				h.drop(client)
			}
			return nil
		case client := <-h.register:
			h.clients[client] = struct{}{}
		case client := <-h.unregister:
			h.drop(client)
		case sub := <-h.subscribe:
			if _, ok := h.clients[sub.client]; !ok {
				continue
			}
			set, ok := h.subscribers[sub.conversationID]
			if !ok {
				set = make(map[*Client]struct{})
				h.subscribers[sub.conversationID] = set
			}
			set[sub.client] = struct{}{}
			sub.client.scopes[sub.conversationID] = sub.scope
		case sub := <-h.unsubscribe:
			h.removeSubscription(sub.client, sub.conversationID)
		case event := <-h.broadcast:
			h.deliver(event)
		case frame := <-h.replies:
			if _, ok := h.clients[frame.client]; !ok {
				continue
			}
			select {
			case frame.client.send <- frame.payload:
			default:
				h.drop(frame.client)
			}
		}
	}
}

func (h *Hub) Register(client *Client) {
	select {
	case h.register <- client:
	case <-h.quit:
		close(client.send)
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.quit:
	}
}

// Publish queues an event for delivery. It never blocks the feed; when the queue is full
// the event is dropped and clients recover on their next load.
func (h *Hub) Publish(event realtime.Event) {
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn().Int64("conversation_id", event.ConversationID).Msg("hub queue full, event dropped")
	}
}

func (h *Hub) drop(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	for conversationID := range client.scopes {
		h.removeSubscription(client, conversationID)
	}
	delete(h.clients, client)
	close(client.send)
}

func (h *Hub) removeSubscription(client *Client, conversationID int64) {
	delete(client.scopes, conversationID)
	set, ok := h.subscribers[conversationID]
	if !ok {
		return
	}
	delete(set, client)
	if len(set) == 0 {
		delete(h.subscribers, conversationID)
	}
}

func (h *Hub) deliver(event realtime.Event) {
	set, ok := h.subscribers[event.ConversationID]
	if !ok {
		return
	}

	payload, err := json.Marshal(Outgoing{Type: FrameEvent, ConversationID: event.ConversationID, Event: &event})
	if err != nil {
		h.log.Error().Err(err).Msg("encode event")
		return
	}

	for client := range set {
		if !client.canSee(event) {
			continue
		}
		select {
		case client.send <- payload:
		default:
			h.log.Warn().Int64("user_id", client.caller.UserID).Msg("slow websocket client dropped")
			h.drop(client)
		}
	}
}

// canSee applies the client-role course filter to live events the same way
// LoadMessages does to history.
func (c *Client) canSee(event realtime.Event) bool {
	if c.caller.Role != models.RoleClient {
		return true
	}
	itemID := c.scopes[event.ConversationID]
	return len(services.FilterCourseContext([]models.Message{event.Message}, itemID)) == 1
}

// ReadPump handles frames from the socket until it closes.
func (c *Client) ReadPump(ctx context.Context, service chatService) {
	defer func() {
		c.hub.Unregister(c)
		_ = c.conn.Close()
	}()

	for {
		_, payload, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var incoming Incoming
		if err := json.Unmarshal(payload, &incoming); err != nil {
			c.writeError("invalid message payload")
			continue
		}
		if incoming.ConversationID <= 0 {
			c.writeError("invalid conversation id")
			continue
		}

		switch incoming.Type {
		case FrameSubscribe:
			conversation, err := service.Conversation(ctx, c.caller, incoming.ConversationID)
			if err != nil {
				c.writeError(errorText(err))
				continue
			}
			c.hub.subscribeClient(c, conversation)
			c.write(Outgoing{Type: FrameSubscribed, ConversationID: conversation.ID})
		case FrameUnsubscribe:
			c.hub.enqueueSubscription(c.hub.unsubscribe, subscription{client: c, conversationID: incoming.ConversationID})
		case FrameMessage:
			result, err := service.SendMessage(ctx, c.caller, services.SendMessageInput{
				ConversationID: incoming.ConversationID,
				Body:           incoming.Body,
				Kind:           incoming.Kind,
				ClientKey:      incoming.ClientKey,
			})
			if err != nil {
				c.writeError(errorText(err))
				continue
			}
			c.write(Outgoing{Type: FrameAck, ConversationID: incoming.ConversationID, Message: result.Message, ClientKey: incoming.ClientKey})
		case FrameRead:
			if _, err := service.MarkRead(ctx, c.caller, incoming.ConversationID, incoming.MessageIDs); err != nil {
				c.writeError(errorText(err))
			}
		default:
			c.writeError("unsupported message type")
		}
	}
}

func (h *Hub) subscribeClient(c *Client, conversation *models.Conversation) {
	h.enqueueSubscription(h.subscribe, subscription{client: c, conversationID: conversation.ID, scope: conversation.ItemID})
}

func (h *Hub) enqueueSubscription(ch chan subscription, sub subscription) {
	select {
	case ch <- sub:
	case <-h.quit:
	}
}

func (h *Hub) reply(c *Client, payload []byte) {
	select {
	case h.replies <- directFrame{client: c, payload: payload}:
	case <-h.quit:
	}
}

func (c *Client) WritePump() {
	defer func() {
		_ = c.conn.Close()
	}()

	for payload := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			return
		}
	}
}

func (c *Client) write(frame Outgoing) {
	payload, err := json.Marshal(frame)
	if err != nil {
		return
	}
	c.hub.reply(c, payload)
}

func (c *Client) writeError(message string) {
	c.write(Outgoing{Type: FrameError, Error: message})
}

func errorText(err error) string {
	switch {
	case errors.Is(err, services.ErrForbidden):
		return "forbidden"
	case errors.Is(err, services.ErrNotFound):
		return "conversation not found"
	case errors.Is(err, services.ErrInvalidInput):
		return err.Error()
	case errors.Is(err, services.ErrRateLimited):
		return "slow down"
	default:
		return "failed to process chat request"
	}
}
