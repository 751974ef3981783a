// Package gateway talks to the payment provider.
package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// Amounts crossing this boundary are in currency subunits.
type OrderRequest struct {
	AmountSubunits int64
	Currency       string
	Receipt        string
	Notes          map[string]string
}

type Order struct {
	ID             string `json:"id"`
	AmountSubunits int64  `json:"amount"`
	Currency       string `json:"currency"`
	Receipt        string `json:"receipt"`
	Status         string `json:"status"`
}

type RefundRequest struct {
	TransactionID  string
	AmountSubunits int64
	Notes          map[string]string
}

type Refund struct {
	ID             string `json:"id"`
	PaymentID      string `json:"payment_id"`
	AmountSubunits int64  `json:"amount"`
	Status         string `json:"status"`
}

type Gateway interface {
	CreateOrder(ctx context.Context, req OrderRequest) (*Order, error)
	Refund(ctx context.Context, req RefundRequest) (*Refund, error)
	KeyID() string
}

var ErrSignatureMismatch = errors.New("payment signature mismatch")

// ToSubunits converts whole currency units to the gateway's minor units.
func ToSubunits(amount int64) int64 {
	return amount * 100
}

// Sign returns the hex HMAC-SHA256 the provider attaches to a completed checkout.
func Sign(secret, orderID, paymentID string) string {
	return hexHMAC(secret, []byte(orderID+"|"+paymentID))
}

// VerifySignature checks a checkout signature in constant time.
func VerifySignature(secret, orderID, paymentID, signature string) error {
	if secret == "" || signature == "" {
		return ErrSignatureMismatch
	}
	if !hmac.Equal([]byte(Sign(secret, orderID, paymentID)), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

// SignWebhook returns the signature header value the provider sends with body.
func SignWebhook(secret string, body []byte) string {
	return hexHMAC(secret, body)
}

// VerifyWebhook checks the signature header of a webhook delivery against the raw body.
func VerifyWebhook(secret string, body []byte, signature string) error {
	if secret == "" || signature == "" {
		return ErrSignatureMismatch
	}
	if !hmac.Equal([]byte(SignWebhook(secret, body)), []byte(signature)) {
		return ErrSignatureMismatch
	}
	return nil
}

func hexHMAC(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}
