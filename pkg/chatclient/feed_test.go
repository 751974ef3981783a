package chatclient

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fasthttp/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// feedServer accepts a subscribe frame, confirms it, pushes one event and hangs up.
func feedServer(t *testing.T, connections *atomic.Int32) *httptest.Server {
	upgrader := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/ws", r.URL.Path)
		assert.Equal(t, "tok", r.URL.Query().Get("token"))
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)

		var frame subscribeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.ConversationID != testConversation {
			_ = conn.WriteJSON(serverFrame{Type: frameError, Error: "Forbidden"})
			return
		}
		_ = conn.WriteJSON(serverFrame{Type: frameSubscribed, ConversationID: frame.ConversationID})
		event := Event{Type: EventInsert, ConversationID: testConversation, Message: stored(int64(n), adminID, "ping", "")}
		_ = conn.WriteJSON(serverFrame{Type: frameEvent, ConversationID: testConversation, Event: &event})
	}))
}

func TestWebSocketFeedReconnectsAfterDrop(t *testing.T) {
	var connections atomic.Int32
	server := feedServer(t, &connections)
	defer server.Close()

	feed, err := NewWebSocketFeed(server.URL, "tok", zerolog.Nop())
	require.NoError(t, err)
	feed.minInterval = 5 * time.Millisecond
	feed.maxInterval = 20 * time.Millisecond

	events := make(chan Event, 8)
	stop, err := feed.Subscribe(context.Background(), testConversation, func(e Event) { events <- e })
	require.NoError(t, err)
	defer stop()

	seen := map[int64]bool{}
	resyncs := 0
	deadline := time.After(3 * time.Second)
	for len(seen) < 2 || resyncs == 0 {
		select {
		case e := <-events:
			if e.Type == EventResync {
				assert.Equal(t, testConversation, e.ConversationID)
				resyncs++
				continue
			}
			seen[e.Message.ID] = true
		case <-deadline:
			t.Fatalf("saw %d events and %d resyncs, want events from two connections", len(seen), resyncs)
		}
	}
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestThreadReloadsMessagesMissedWhileDisconnected(t *testing.T) {
	backend := &stubBackend{}
	var connections atomic.Int32
	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := connections.Add(1)

		var frame subscribeFrame
		if err := conn.ReadJSON(&frame); err != nil {
			return
		}
		_ = conn.WriteJSON(serverFrame{Type: frameSubscribed, ConversationID: frame.ConversationID})
		if n == 1 {
			event := Event{Type: EventInsert, ConversationID: testConversation, Message: stored(1, adminID, "before drop", "")}
			_ = conn.WriteJSON(serverFrame{Type: frameEvent, ConversationID: testConversation, Event: &event})
			// Committed after the socket went away; never pushed.
			backend.mu.Lock()
			backend.loaded = []Message{stored(1, adminID, "before drop", ""), stored(2, adminID, "sent while offline", "")}
			backend.mu.Unlock()
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	feed, err := NewWebSocketFeed(server.URL, "tok", zerolog.Nop())
	require.NoError(t, err)
	feed.minInterval = 5 * time.Millisecond
	feed.maxInterval = 20 * time.Millisecond

	thread := NewThread(backend, feed, testConversation, selfID, WithReadDelay(time.Hour))
	require.NoError(t, thread.Subscribe(context.Background()))
	defer thread.Close()
	require.NoError(t, thread.Load(context.Background()))

	require.Eventually(t, func() bool {
		entries := thread.Entries()
		return len(entries) == 2 && entries[1].Message.Body == "sent while offline"
	}, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"before drop", "sent while offline"}, bodies(thread.Entries()))
	assert.GreaterOrEqual(t, connections.Load(), int32(2))
}

func TestWebSocketFeedSurfacesRejection(t *testing.T) {
	var connections atomic.Int32
	server := feedServer(t, &connections)
	defer server.Close()

	feed, err := NewWebSocketFeed(server.URL, "tok", zerolog.Nop())
	require.NoError(t, err)

	_, err = feed.Subscribe(context.Background(), 99, func(Event) {})

	var rejected *SubscribeError
	require.ErrorAs(t, err, &rejected)
	assert.Equal(t, "Forbidden", rejected.Reason)
}

func TestNewWebSocketFeedBuildsURL(t *testing.T) {
	feed, err := NewWebSocketFeed("https://api.example.com/", "a b", zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, "wss://api.example.com/api/v1/ws?token=a+b", feed.url)

	_, err = NewWebSocketFeed("ftp://example.com", "tok", zerolog.Nop())
	assert.Error(t, err)
}
