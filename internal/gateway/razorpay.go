package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultRazorpayURL = "https://api.razorpay.com/v1"

type RazorpayClient struct {
	baseURL    string
	keyID      string
	keySecret  string
	httpClient *http.Client
}

func NewRazorpayClient(baseURL, keyID, keySecret string, timeout time.Duration) *RazorpayClient {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = defaultRazorpayURL
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &RazorpayClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		keyID:      keyID,
		keySecret:  keySecret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

func (c *RazorpayClient) KeyID() string {
	return c.keyID
}

func (c *RazorpayClient) CreateOrder(ctx context.Context, req OrderRequest) (*Order, error) {
	payload := map[string]any{
		"amount":   req.AmountSubunits,
		"currency": req.Currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}

	var order Order
	if err := c.post(ctx, "/orders", payload, &order); err != nil {
		return nil, fmt.Errorf("create order: %w", err)
	}
	return &order, nil
}

func (c *RazorpayClient) Refund(ctx context.Context, req RefundRequest) (*Refund, error) {
	payload := map[string]any{"amount": req.AmountSubunits}
	if len(req.Notes) > 0 {
		payload["notes"] = req.Notes
	}

	var refund Refund
	endpoint := "/payments/" + url.PathEscape(req.TransactionID) + "/refund"
	if err := c.post(ctx, endpoint, payload, &refund); err != nil {
		return nil, fmt.Errorf("refund payment: %w", err)
	}
	return &refund, nil
}

// post is never retried: every call here moves money.
func (c *RazorpayClient) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth(c.keyID, c.keySecret)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return decodeAPIError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

type APIError struct {
	StatusCode  int
	Code        string
	Description string
}

func (e *APIError) Error() string {
	if e.Description == "" {
		return fmt.Sprintf("gateway status %d", e.StatusCode)
	}
	return fmt.Sprintf("gateway status %d: %s", e.StatusCode, e.Description)
}

func decodeAPIError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	var envelope struct {
		Error struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	}
	apiErr := &APIError{StatusCode: resp.StatusCode}
	if json.Unmarshal(raw, &envelope) == nil && envelope.Error.Description != "" {
		apiErr.Code = envelope.Error.Code
		apiErr.Description = envelope.Error.Description
	} else {
		apiErr.Description = strings.TrimSpace(string(raw))
	}
	return apiErr
}
