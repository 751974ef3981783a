package chatclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
)

const (
	frameSubscribe  = "subscribe"
	frameSubscribed = "subscribed"
	frameEvent      = "event"
	frameError      = "error"

	handshakeTimeout = 10 * time.Second
)

type subscribeFrame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
}

type serverFrame struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id,omitempty"`
	Event          *Event `json:"event,omitempty"`
	Error          string `json:"error,omitempty"`
}

// WebSocketFeed subscribes over /api/v1/ws and reconnects with capped exponential backoff
// until the subscription is stopped. Each successful reconnect is reported to the handler as
// an EventResync event.
type WebSocketFeed struct {
	url         string
	dialer      *websocket.Dialer
	log         zerolog.Logger
	minInterval time.Duration
	maxInterval time.Duration
}

// NewWebSocketFeed derives the ws:// or wss:// endpoint from an http(s) base URL.
func NewWebSocketFeed(baseURL, token string, log zerolog.Logger) (*WebSocketFeed, error) {
	parsed, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	switch parsed.Scheme {
	case "http", "ws":
		parsed.Scheme = "ws"
	case "https", "wss":
		parsed.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported scheme %q", parsed.Scheme)
	}
	parsed.Path += "/api/v1/ws"
	query := parsed.Query()
	query.Set("token", token)
	parsed.RawQuery = query.Encode()

	return &WebSocketFeed{
		url:         parsed.String(),
		dialer:      &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		log:         log,
		minInterval: 500 * time.Millisecond,
		maxInterval: 30 * time.Second,
	}, nil
}

// Subscribe connects once synchronously so bad credentials surface to the caller. Later drops
// are retried in the background.
func (f *WebSocketFeed) Subscribe(ctx context.Context, conversationID int64, handler func(Event)) (func(), error) {
	conn, err := f.connect(ctx, conversationID)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &wsSubscription{feed: f, conversationID: conversationID, handler: handler, conn: conn}
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.run(ctx)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			cancel()
			s.closeConn()
			<-done
		})
	}, nil
}

func (f *WebSocketFeed) connect(ctx context.Context, conversationID int64) (*websocket.Conn, error) {
	conn, _, err := f.dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return nil, fmt.Errorf("dial chat feed: %w", err)
	}
	if err := conn.WriteJSON(subscribeFrame{Type: frameSubscribe, ConversationID: conversationID}); err != nil {
		conn.Close()
		return nil, fmt.Errorf("send subscribe: %w", err)
	}
	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			conn.Close()
			return nil, fmt.Errorf("await subscribe: %w", err)
		}
		switch frame.Type {
		case frameSubscribed:
			return conn, nil
		case frameError:
			conn.Close()
			return nil, &SubscribeError{Reason: frame.Error}
		}
	}
}

// SubscribeError is a refusal from the server, e.g. a forbidden conversation. It is not retried.
type SubscribeError struct {
	Reason string
}

func (e *SubscribeError) Error() string {
	return "subscribe rejected: " + e.Reason
}

type wsSubscription struct {
	feed           *WebSocketFeed
	conversationID int64
	handler        func(Event)

	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSubscription) run(ctx context.Context) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = s.feed.minInterval
	policy.MaxInterval = s.feed.maxInterval

	for {
		s.readLoop()
		if ctx.Err() != nil {
			return
		}

		for {
			wait := policy.NextBackOff()
			s.feed.log.Warn().Int64("conversation_id", s.conversationID).Dur("retry_in", wait).Msg("chat feed disconnected")
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}

			conn, err := s.feed.connect(ctx, s.conversationID)
			if err == nil {
				policy.Reset()
				if !s.setConn(ctx, conn) {
					return
				}
				s.feed.log.Info().Int64("conversation_id", s.conversationID).Msg("chat feed resubscribed")
				s.handler(Event{Type: EventResync, ConversationID: s.conversationID})
				break
			}
			var rejected *SubscribeError
			if errors.As(err, &rejected) {
				s.feed.log.Error().Err(err).Int64("conversation_id", s.conversationID).Msg("chat feed resubscribe rejected")
				return
			}
			s.feed.log.Debug().Err(err).Msg("chat feed reconnect failed")
		}
	}
}

func (s *wsSubscription) readLoop() {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return
	}

	for {
		var frame serverFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Type == frameEvent && frame.Event != nil {
			s.handler(*frame.Event)
		}
	}
}

// setConn installs conn unless the subscription was stopped in the meantime.
func (s *wsSubscription) setConn(ctx context.Context, conn *websocket.Conn) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ctx.Err() != nil {
		conn.Close()
		return false
	}
	s.conn = conn
	return true
}

func (s *wsSubscription) closeConn() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn != nil {
		s.conn.Close()
	}
}
