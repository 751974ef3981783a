package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type CreatePurchaseInput struct {
	UserID           int64
	BookingID        int64
	ItemID           int64
	ItemType         string
	Amount           int64
	GatewayOrderID   string
	GatewayPaymentID string
}

type PurchaseRepository struct {
	db DBTX
}

func NewPurchaseRepository(db DBTX) *PurchaseRepository {
	return &PurchaseRepository{db: db}
}

const purchaseColumns = `id, user_id, booking_id, item_id, item_type, amount, gateway_order_id, gateway_payment_id, status, created_at`

func scanPurchase(row pgx.Row) (*models.Purchase, error) {
	var purchase models.Purchase
	err := row.Scan(
		&purchase.ID,
		&purchase.UserID,
		&purchase.BookingID,
		&purchase.ItemID,
		&purchase.ItemType,
		&purchase.Amount,
		&purchase.GatewayOrderID,
		&purchase.GatewayPaymentID,
		&purchase.Status,
		&purchase.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}

// CreateIfAbsent inserts the completed purchase for a booking at most once. When one
// already exists it is returned with created=false.
func (r *PurchaseRepository) CreateIfAbsent(ctx context.Context, input CreatePurchaseInput) (*models.Purchase, bool, error) {
	query := `
		INSERT INTO purchases (user_id, booking_id, item_id, item_type, amount, gateway_order_id, gateway_payment_id, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'completed')
		ON CONFLICT (booking_id) DO NOTHING
		RETURNING ` + purchaseColumns

	purchase, err := scanPurchase(r.db.QueryRow(
		ctx,
		query,
		input.UserID,
		input.BookingID,
		input.ItemID,
		input.ItemType,
		input.Amount,
		input.GatewayOrderID,
		input.GatewayPaymentID,
	))
	if err == nil {
		return purchase, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, false, err
	}

	existing, err := r.GetByBookingID(ctx, input.BookingID)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *PurchaseRepository) GetByBookingID(ctx context.Context, bookingID int64) (*models.Purchase, error) {
	return scanPurchase(r.db.QueryRow(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE booking_id = $1`, bookingID))
}
