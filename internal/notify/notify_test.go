package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingMailer struct {
	mu     sync.Mutex
	emails []Email
	err    error
}

func (m *recordingMailer) Send(_ context.Context, email Email) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.emails = append(m.emails, email)
	return m.err
}

func TestDispatcherFillsSenderAndSwallowsErrors(t *testing.T) {
	mailer := &recordingMailer{err: errors.New("provider down")}
	dispatcher := NewDispatcher(mailer, "noreply@fincoach.test", zerolog.Nop())

	var wg sync.WaitGroup
	wg.Add(1)
	dispatcher.done = wg.Done

	dispatcher.Dispatch(Email{To: []string{"a@example.com"}, Subject: "hi", HTML: "<p>hi</p>"})
	wg.Wait()

	require.Len(t, mailer.emails, 1)
	assert.Equal(t, "noreply@fincoach.test", mailer.emails[0].From)
}

func TestDispatcherSkipsEmptyRecipients(t *testing.T) {
	mailer := &recordingMailer{}
	NewDispatcher(mailer, "noreply@fincoach.test", zerolog.Nop()).Dispatch(Email{Subject: "nobody"})

	time.Sleep(10 * time.Millisecond)
	mailer.mu.Lock()
	defer mailer.mu.Unlock()
	assert.Empty(t, mailer.emails)
}

func TestResendMailerSend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_key", r.Header.Get("Authorization"))

		var payload map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "Subject", payload["subject"])
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"id":"em_1"}`))
	}))
	defer server.Close()

	mailer := NewResendMailer(server.URL, "re_key", time.Second)
	err := mailer.Send(context.Background(), Email{From: "a@x.test", To: []string{"b@x.test"}, Subject: "Subject", HTML: "<p/>"})
	assert.NoError(t, err)
}

func TestRenderEscapesInput(t *testing.T) {
	html, err := Render("inquiry", map[string]any{
		"Name":    "<script>",
		"Email":   "a@example.com",
		"Message": "hello",
	})
	require.NoError(t, err)
	assert.Contains(t, html, "&lt;script&gt;")
	assert.NotContains(t, html, "Phone:")
}
