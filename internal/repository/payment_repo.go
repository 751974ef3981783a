package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type CreatePaymentInput struct {
	UserID         int64
	BookingID      int64
	Amount         int64
	Currency       string
	GatewayOrderID string
	ServiceType    string
}

type PaymentRepository struct {
	db DBTX
}

func NewPaymentRepository(db DBTX) *PaymentRepository {
	return &PaymentRepository{db: db}
}

const paymentColumns = `id, user_id, booking_id, amount, currency, status, gateway_order_id, transaction_id, refund_id, service_type, created_at, updated_at`

func scanPayment(row pgx.Row) (*models.Payment, error) {
	var payment models.Payment
	err := row.Scan(
		&payment.ID,
		&payment.UserID,
		&payment.BookingID,
		&payment.Amount,
		&payment.Currency,
		&payment.Status,
		&payment.GatewayOrderID,
		&payment.TransactionID,
		&payment.RefundID,
		&payment.ServiceType,
		&payment.CreatedAt,
		&payment.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

func (r *PaymentRepository) Create(ctx context.Context, input CreatePaymentInput) (*models.Payment, error) {
	query := `
		INSERT INTO payments (user_id, booking_id, amount, currency, status, gateway_order_id, service_type)
		VALUES ($1, $2, $3, $4, 'pending', $5, $6)
		RETURNING ` + paymentColumns

	return scanPayment(r.db.QueryRow(
		ctx,
		query,
		input.UserID,
		input.BookingID,
		input.Amount,
		input.Currency,
		input.GatewayOrderID,
		input.ServiceType,
	))
}

func (r *PaymentRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE gateway_order_id = $1
		ORDER BY id DESC
		LIMIT 1
	`, orderID))
}

// GetLatestByBookingAndStatus returns the newest payment of the booking in the given status.
func (r *PaymentRepository) GetLatestByBookingAndStatus(ctx context.Context, bookingID int64, status string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`, bookingID, status))
}

func (r *PaymentRepository) GetLatestByBookingAndStatusForUpdate(ctx context.Context, bookingID int64, status string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		SELECT `+paymentColumns+`
		FROM payments
		WHERE booking_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
		FOR UPDATE
	`, bookingID, status))
}

func (r *PaymentRepository) ListByBookingIDs(ctx context.Context, bookingIDs []int64) (map[int64]models.Payment, error) {
	payments := make(map[int64]models.Payment, len(bookingIDs))
	if len(bookingIDs) == 0 {
		return payments, nil
	}

	rows, err := r.db.Query(ctx, `
		SELECT DISTINCT ON (booking_id) `+paymentColumns+`
		FROM payments
		WHERE booking_id = ANY($1)
		ORDER BY booking_id, id DESC
	`, bookingIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		payment, err := scanPayment(rows)
		if err != nil {
			return nil, err
		}
		payments[payment.BookingID] = *payment
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return payments, nil
}

func (r *PaymentRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	paymentID int64,
	currentStatus string,
	nextStatus string,
) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = $3, updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING `+paymentColumns, paymentID, currentStatus, nextStatus))
}

// MarkCompleted records the captured gateway payment. A failed payment can still be
// captured late by the gateway, so both pending and failed rows are accepted.
// uq_payments_completed_booking rejects a second completed payment for the same booking.
func (r *PaymentRepository) MarkCompleted(ctx context.Context, paymentID int64, transactionID string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'completed', transaction_id = $2, updated_at = NOW()
		WHERE id = $1 AND status IN ('pending', 'failed')
		RETURNING `+paymentColumns, paymentID, transactionID))
}

// FailPendingForBooking moves every pending payment of a booking to failed and
// returns how many rows changed.
func (r *PaymentRepository) FailPendingForBooking(ctx context.Context, bookingID int64) (int64, error) {
	tag, err := r.db.Exec(ctx, `
		UPDATE payments
		SET status = 'failed', updated_at = NOW()
		WHERE booking_id = $1 AND status = 'pending'`, bookingID)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// MarkRefunded moves a completed payment to refunded and annotates the transaction id
// with the refund reference.
func (r *PaymentRepository) MarkRefunded(ctx context.Context, paymentID int64, refundID string) (*models.Payment, error) {
	return scanPayment(r.db.QueryRow(ctx, `
		UPDATE payments
		SET status = 'refunded',
			refund_id = $2,
			transaction_id = COALESCE(transaction_id, '') || '|refund:' || $2,
			updated_at = NOW()
		WHERE id = $1 AND status = 'completed'
		RETURNING `+paymentColumns, paymentID, refundID))
}
