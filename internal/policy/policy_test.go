package policy

import (
	"testing"
	"time"

	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBookingCancellationTiers(t *testing.T) {
	tests := []struct {
		name       string
		elapsed    time.Duration
		amount     int64
		percentage int64
		refund     int64
	}{
		{name: "thirty minutes", elapsed: 30 * time.Minute, amount: 2000, percentage: 100, refund: 2000},
		{name: "exactly one hour", elapsed: time.Hour, amount: 2000, percentage: 100, refund: 2000},
		{name: "three hours", elapsed: 3 * time.Hour, amount: 2000, percentage: 90, refund: 1800},
		{name: "floored", elapsed: 2 * time.Hour, amount: 999, percentage: 90, refund: 899},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := BookingCancellation.Quote(tt.elapsed.Hours(), tt.amount)
			assert.Equal(t, tt.percentage, quote.Percentage)
			assert.Equal(t, tt.refund, quote.Amount)
		})
	}
}

func TestSessionCancellationTiers(t *testing.T) {
	tests := []struct {
		name       string
		before     time.Duration
		amount     int64
		percentage int64
		refund     int64
	}{
		{name: "two days out", before: 48 * time.Hour, amount: 1500, percentage: 100, refund: 1500},
		{name: "exactly a day", before: 24 * time.Hour, amount: 1500, percentage: 90, refund: 1350},
		{name: "five hours", before: 5 * time.Hour, amount: 1001, percentage: 90, refund: 900},
		{name: "exactly an hour", before: time.Hour, amount: 1500, percentage: 90, refund: 1350},
		{name: "twenty minutes", before: 20 * time.Minute, amount: 1501, percentage: 50, refund: 750},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			quote := SessionCancellation.Quote(tt.before.Hours(), tt.amount)
			assert.Equal(t, tt.percentage, quote.Percentage)
			assert.Equal(t, tt.refund, quote.Amount)
		})
	}
}

func TestParseTablesOverridesSession(t *testing.T) {
	tables, err := ParseTables([]byte(`
session_cancellation:
  - threshold_hours: 48
    percentage: 100
  - percentage: 0
`))
	require.NoError(t, err)

	assert.Equal(t, BookingCancellation, tables.Booking)
	assert.Equal(t, int64(100), tables.Session.Quote(72, 100).Percentage)
	assert.Equal(t, int64(0), tables.Session.Quote(12, 100).Amount)
}

func TestParseTablesRejectsMissingCatchAll(t *testing.T) {
	_, err := ParseTables([]byte(`
booking_cancellation:
  - threshold_hours: 1
    percentage: 90
`))
	assert.ErrorIs(t, err, ErrNoCatchAll)
}

func TestCreditDelta(t *testing.T) {
	pending := models.CreditRequest{Amount: 5, Status: models.CreditStatusPending}

	delta, err := CreditDelta(pending, DecisionApprove)
	require.NoError(t, err)
	assert.Equal(t, int64(5), delta)

	delta, err = CreditDelta(pending, DecisionReject)
	require.NoError(t, err)
	assert.Zero(t, delta)

	_, err = CreditDelta(models.CreditRequest{Amount: 5, Status: models.CreditStatusApproved}, DecisionApprove)
	assert.ErrorIs(t, err, ErrAlreadyDecided)

	_, err = CreditDelta(pending, Decision("maybe"))
	assert.ErrorIs(t, err, ErrUnknownDecision)
}
