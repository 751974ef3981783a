package chatclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultHTTPTimeout = 15 * time.Second

// HTTPBackend talks to the /api/v1 conversation endpoints with a bearer token.
type HTTPBackend struct {
	baseURL    string
	token      string
	httpClient *http.Client
	retryDelay time.Duration
}

func NewHTTPBackend(baseURL, token string, timeout time.Duration) *HTTPBackend {
	if timeout <= 0 {
		timeout = defaultHTTPTimeout
	}
	return &HTTPBackend{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		retryDelay: 250 * time.Millisecond,
	}
}

type Conversation struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	ItemID        *int64     `json:"item_id,omitempty"`
	ItemType      *string    `json:"item_type,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	LastMessage   *Message   `json:"last_message,omitempty"`
	UnreadCount   int        `json:"unread_count"`
}

func (b *HTTPBackend) ListConversations(ctx context.Context) ([]Conversation, error) {
	var out struct {
		Conversations []Conversation `json:"conversations"`
	}
	if err := b.get(ctx, "/api/v1/conversations", &out); err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	return out.Conversations, nil
}

// OpenConversation returns the caller's conversation for the item, or the general one when
// itemID is zero.
func (b *HTTPBackend) OpenConversation(ctx context.Context, itemID int64, itemType string) (Conversation, error) {
	payload := map[string]any{}
	if itemID > 0 {
		payload["item_id"] = itemID
		payload["item_type"] = itemType
	}
	var out struct {
		Conversation Conversation `json:"conversation"`
	}
	if err := b.send(ctx, http.MethodPost, "/api/v1/conversations", payload, &out); err != nil {
		return Conversation{}, fmt.Errorf("open conversation: %w", err)
	}
	return out.Conversation, nil
}

func (b *HTTPBackend) LoadMessages(ctx context.Context, conversationID int64) ([]Message, error) {
	var out struct {
		Messages []Message `json:"messages"`
	}
	if err := b.get(ctx, fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID), &out); err != nil {
		return nil, err
	}
	return out.Messages, nil
}

func (b *HTTPBackend) SendMessage(ctx context.Context, conversationID int64, body, clientKey string) (Message, error) {
	payload := map[string]any{"body": body, "kind": defaultMessageKind, "client_key": clientKey}
	var out struct {
		Message Message `json:"message"`
	}
	if err := b.send(ctx, http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/messages", conversationID), payload, &out); err != nil {
		return Message{}, err
	}
	return out.Message, nil
}

func (b *HTTPBackend) MarkRead(ctx context.Context, conversationID int64, messageIDs []int64) error {
	payload := map[string]any{"message_ids": messageIDs}
	return b.send(ctx, http.MethodPost, fmt.Sprintf("/api/v1/conversations/%d/read", conversationID), payload, nil)
}

// get retries once on transport errors and 5xx responses. Writes are never retried.
func (b *HTTPBackend) get(ctx context.Context, path string, out any) error {
	err := b.do(ctx, http.MethodGet, path, nil, out)
	if err == nil || !retryable(err) {
		return err
	}

	select {
	case <-ctx.Done():
		return err
	case <-time.After(b.retryDelay):
	}
	return b.do(ctx, http.MethodGet, path, nil, out)
}

func (b *HTTPBackend) send(ctx context.Context, method, path string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	return b.do(ctx, method, path, body, out)
}

func (b *HTTPBackend) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, b.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if b.token != "" {
		req.Header.Set("Authorization", "Bearer "+b.token)
	}

	resp, err := b.httpClient.Do(req)
	if err != nil {
		return &transportError{err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeStatusError(resp)
	}
	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// StatusError is a non-2xx response from the server.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("server status %d", e.StatusCode)
	}
	return fmt.Sprintf("server status %d: %s", e.StatusCode, e.Message)
}

func decodeStatusError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error string `json:"error"`
	}
	statusErr := &StatusError{StatusCode: resp.StatusCode}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error != "" {
		statusErr.Message = envelope.Error
	} else {
		statusErr.Message = strings.TrimSpace(string(raw))
	}
	return statusErr
}

type transportError struct {
	err error
}

func (e *transportError) Error() string { return e.err.Error() }
func (e *transportError) Unwrap() error { return e.err }

func retryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	var transport *transportError
	if errors.As(err, &transport) {
		return true
	}
	var status *StatusError
	return errors.As(err, &status) && status.StatusCode >= http.StatusInternalServerError
}
