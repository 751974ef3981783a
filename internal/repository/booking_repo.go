package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type CreateBookingInput struct {
	UserID          int64
	ItemID          int64
	ItemType        string
	Amount          int64
	ScheduledAt     *time.Time
	DurationMinutes *int
}

type BookingListFilter struct {
	UserID int64
	Status string
}

type BookingRepository struct {
	db DBTX
}

func NewBookingRepository(db DBTX) *BookingRepository {
	return &BookingRepository{db: db}
}

const bookingColumns = `id, user_id, item_id, item_type, status, amount, scheduled_at, duration_minutes, rebook_allowed, cancelled_at, created_at, updated_at`

func scanBooking(row pgx.Row) (*models.Booking, error) {
	var booking models.Booking
	err := row.Scan(
		&booking.ID,
		&booking.UserID,
		&booking.ItemID,
		&booking.ItemType,
		&booking.Status,
		&booking.Amount,
		&booking.ScheduledAt,
		&booking.DurationMinutes,
		&booking.RebookAllowed,
		&booking.CancelledAt,
		&booking.CreatedAt,
		&booking.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &booking, nil
}

func (r *BookingRepository) Create(ctx context.Context, input CreateBookingInput) (*models.Booking, error) {
	query := `
		INSERT INTO bookings (user_id, item_id, item_type, status, amount, scheduled_at, duration_minutes)
		VALUES ($1, $2, $3, 'pending', $4, $5, $6)
		RETURNING ` + bookingColumns

	return scanBooking(r.db.QueryRow(
		ctx,
		query,
		input.UserID,
		input.ItemID,
		input.ItemType,
		input.Amount,
		input.ScheduledAt,
		input.DurationMinutes,
	))
}

func (r *BookingRepository) GetByID(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `SELECT `+bookingColumns+` FROM bookings WHERE id = $1`, bookingID))
}

func (r *BookingRepository) GetByIDForUpdate(ctx context.Context, bookingID int64) (*models.Booking, error) {
	return scanBooking(r.db.QueryRow(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE id = $1
		FOR UPDATE
	`, bookingID))
}

func (r *BookingRepository) List(ctx context.Context, filter BookingListFilter) ([]models.Booking, error) {
	args := []any{filter.UserID}
	whereParts := []string{"user_id = $1"}

	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM bookings
		WHERE %s
		ORDER BY created_at DESC, id DESC
	`, bookingColumns, strings.Join(whereParts, " AND "))

	return r.list(ctx, query, args...)
}

// ListBookedWithSchedule returns scheduled bookings that carry their own date and time.
func (r *BookingRepository) ListBookedWithSchedule(ctx context.Context) ([]models.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'booked' AND scheduled_at IS NOT NULL
		ORDER BY scheduled_at ASC, id ASC
	`)
}

// ListBookedSessionLinked returns scheduled session bookings whose timing lives on the item.
func (r *BookingRepository) ListBookedSessionLinked(ctx context.Context) ([]models.Booking, error) {
	return r.list(ctx, `
		SELECT `+bookingColumns+`
		FROM bookings
		WHERE status = 'booked' AND scheduled_at IS NULL AND item_type = 'session'
		ORDER BY id ASC
	`)
}

// UpdateStatusIfCurrent moves the booking only when it is still in currentStatus.
// pgx.ErrNoRows means another writer got there first.
func (r *BookingRepository) UpdateStatusIfCurrent(
	ctx context.Context,
	bookingID int64,
	currentStatus string,
	nextStatus string,
) (*models.Booking, error) {
	query := `
		UPDATE bookings
		SET status = $3,
			cancelled_at = CASE WHEN $3 = 'cancelled' THEN NOW() ELSE cancelled_at END,
			updated_at = NOW()
		WHERE id = $1 AND status = $2
		RETURNING ` + bookingColumns
	return scanBooking(r.db.QueryRow(ctx, query, bookingID, currentStatus, nextStatus))
}

func (r *BookingRepository) list(ctx context.Context, query string, args ...any) ([]models.Booking, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bookings := make([]models.Booking, 0)
	for rows.Next() {
		booking, err := scanBooking(rows)
		if err != nil {
			return nil, err
		}
		bookings = append(bookings, *booking)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return bookings, nil
}
