package gateway

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// MockGateway records calls and fabricates provider ids. It is used in development when no
// provider credentials are configured, and in tests.
type MockGateway struct {
	mu         sync.Mutex
	FailCreate bool
	FailRefund bool
	Orders     []OrderRequest
	Refunds    []RefundRequest
	keyID      string
}

func NewMockGateway(keyID string) *MockGateway {
	if keyID == "" {
		keyID = "rzp_test_mock"
	}
	return &MockGateway{keyID: keyID}
}

var ErrMockFailure = errors.New("mock gateway failure")

func (m *MockGateway) KeyID() string {
	return m.keyID
}

func (m *MockGateway) CreateOrder(_ context.Context, req OrderRequest) (*Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailCreate {
		return nil, ErrMockFailure
	}
	m.Orders = append(m.Orders, req)
	return &Order{
		ID:             "order_" + uuid.NewString(),
		AmountSubunits: req.AmountSubunits,
		Currency:       req.Currency,
		Receipt:        req.Receipt,
		Status:         "created",
	}, nil
}

func (m *MockGateway) Refund(_ context.Context, req RefundRequest) (*Refund, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailRefund {
		return nil, ErrMockFailure
	}
	m.Refunds = append(m.Refunds, req)
	return &Refund{
		ID:             "rfnd_" + uuid.NewString(),
		PaymentID:      req.TransactionID,
		AmountSubunits: req.AmountSubunits,
		Status:         "processed",
	}, nil
}

func (m *MockGateway) RefundCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.Refunds)
}
