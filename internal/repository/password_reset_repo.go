package repository

import (
	"context"
	"time"

	"github.com/saeid-a/FinCoachBack/internal/models"
)

type PasswordResetRepository struct {
	db DBTX
}

func NewPasswordResetRepository(db DBTX) *PasswordResetRepository {
	return &PasswordResetRepository{db: db}
}

func (r *PasswordResetRepository) Create(
	ctx context.Context,
	userID int64,
	otpHash string,
	expiresAt time.Time,
) (*models.PasswordReset, error) {
	query := `
		INSERT INTO password_resets (user_id, otp_hash, expires_at)
		VALUES ($1, $2, $3)
		RETURNING id, user_id, otp_hash, expires_at, used_at, created_at
	`
	var reset models.PasswordReset
	err := r.db.QueryRow(ctx, query, userID, otpHash, expiresAt).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.OTPHash,
		&reset.ExpiresAt,
		&reset.UsedAt,
		&reset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reset, nil
}

// GetLatestActive returns the newest unused, unexpired reset for the user.
func (r *PasswordResetRepository) GetLatestActive(ctx context.Context, userID int64, now time.Time) (*models.PasswordReset, error) {
	query := `
		SELECT id, user_id, otp_hash, expires_at, used_at, created_at
		FROM password_resets
		WHERE user_id = $1 AND used_at IS NULL AND expires_at > $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	var reset models.PasswordReset
	err := r.db.QueryRow(ctx, query, userID, now).Scan(
		&reset.ID,
		&reset.UserID,
		&reset.OTPHash,
		&reset.ExpiresAt,
		&reset.UsedAt,
		&reset.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &reset, nil
}

// MarkUsed consumes the reset once; a second call returns pgx.ErrNoRows.
func (r *PasswordResetRepository) MarkUsed(ctx context.Context, id int64) error {
	var usedID int64
	return r.db.QueryRow(ctx, `
		UPDATE password_resets
		SET used_at = NOW()
		WHERE id = $1 AND used_at IS NULL
		RETURNING id
	`, id).Scan(&usedID)
}
