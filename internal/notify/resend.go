package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const defaultResendURL = "https://api.resend.com"

type ResendMailer struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewResendMailer(baseURL, apiKey string, timeout time.Duration) *ResendMailer {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultResendURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &ResendMailer{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (m *ResendMailer) Send(ctx context.Context, email Email) error {
	body, err := json.Marshal(map[string]any{
		"from":    email.From,
		"to":      email.To,
		"subject": email.Subject,
		"html":    email.HTML,
	})
	if err != nil {
		return fmt.Errorf("encode email: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build email request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send email: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("send email: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return nil
}
