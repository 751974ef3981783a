package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type CreateCreditRequestInput struct {
	UserID      int64
	Amount      int64
	ServiceType string
	Reason      string
}

type CreditRequestFilter struct {
	UserID *int64
	Status string
}

type CreditRepository struct {
	db DBTX
}

func NewCreditRepository(db DBTX) *CreditRepository {
	return &CreditRepository{db: db}
}

const creditRequestColumns = `id, user_id, amount, service_type, reason, status, reviewer_id, reviewer_notes, created_at, reviewed_at`

func scanCreditRequest(row pgx.Row) (*models.CreditRequest, error) {
	var request models.CreditRequest
	err := row.Scan(
		&request.ID,
		&request.UserID,
		&request.Amount,
		&request.ServiceType,
		&request.Reason,
		&request.Status,
		&request.ReviewerID,
		&request.ReviewerNotes,
		&request.CreatedAt,
		&request.ReviewedAt,
	)
	if err != nil {
		return nil, err
	}
	return &request, nil
}

func (r *CreditRepository) CreateRequest(ctx context.Context, input CreateCreditRequestInput) (*models.CreditRequest, error) {
	return scanCreditRequest(r.db.QueryRow(ctx, `
		INSERT INTO credit_requests (user_id, amount, service_type, reason, status)
		VALUES ($1, $2, $3, $4, 'pending')
		RETURNING `+creditRequestColumns,
		input.UserID, input.Amount, input.ServiceType, input.Reason))
}

func (r *CreditRepository) GetRequest(ctx context.Context, requestID int64) (*models.CreditRequest, error) {
	return scanCreditRequest(r.db.QueryRow(ctx, `SELECT `+creditRequestColumns+` FROM credit_requests WHERE id = $1`, requestID))
}

func (r *CreditRepository) ListRequests(ctx context.Context, filter CreditRequestFilter) ([]models.CreditRequest, error) {
	args := make([]any, 0, 2)
	whereParts := []string{"TRUE"}
	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		whereParts = append(whereParts, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if status := strings.TrimSpace(filter.Status); status != "" {
		args = append(args, status)
		whereParts = append(whereParts, fmt.Sprintf("status = $%d", len(args)))
	}

	rows, err := r.db.Query(ctx, fmt.Sprintf(`
		SELECT %s
		FROM credit_requests
		WHERE %s
		ORDER BY created_at DESC, id DESC
	`, creditRequestColumns, strings.Join(whereParts, " AND ")), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	requests := make([]models.CreditRequest, 0)
	for rows.Next() {
		request, err := scanCreditRequest(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, *request)
	}
	return requests, rows.Err()
}

// Decide records the reviewer's decision on a pending request. pgx.ErrNoRows means the
// request was already decided.
func (r *CreditRepository) Decide(
	ctx context.Context,
	requestID int64,
	status string,
	reviewerID int64,
	notes *string,
) (*models.CreditRequest, error) {
	return scanCreditRequest(r.db.QueryRow(ctx, `
		UPDATE credit_requests
		SET status = $2, reviewer_id = $3, reviewer_notes = $4, reviewed_at = NOW()
		WHERE id = $1 AND status = 'pending'
		RETURNING `+creditRequestColumns, requestID, status, reviewerID, notes))
}

// AddToBalance creates the (user, service type) balance with delta or adds delta to it.
func (r *CreditRepository) AddToBalance(
	ctx context.Context,
	userID int64,
	serviceType string,
	delta int64,
) (*models.CreditBalance, error) {
	var balance models.CreditBalance
	err := r.db.QueryRow(ctx, `
		INSERT INTO credit_balances (user_id, service_type, balance)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, service_type)
		DO UPDATE SET balance = credit_balances.balance + EXCLUDED.balance, updated_at = NOW()
		RETURNING user_id, service_type, balance, updated_at
	`, userID, serviceType, delta).Scan(
		&balance.UserID,
		&balance.ServiceType,
		&balance.Balance,
		&balance.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

func (r *CreditRepository) ListBalances(ctx context.Context, userID int64) ([]models.CreditBalance, error) {
	rows, err := r.db.Query(ctx, `
		SELECT user_id, service_type, balance, updated_at
		FROM credit_balances
		WHERE user_id = $1
		ORDER BY service_type ASC
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	balances := make([]models.CreditBalance, 0)
	for rows.Next() {
		var balance models.CreditBalance
		if err := rows.Scan(&balance.UserID, &balance.ServiceType, &balance.Balance, &balance.UpdatedAt); err != nil {
			return nil, err
		}
		balances = append(balances, balance)
	}
	return balances, rows.Err()
}
