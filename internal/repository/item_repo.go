package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type CreateItemInput struct {
	ItemType     string
	Title        string
	Description  *string
	Price        int64
	Currency     string
	DurationText *string
	SessionAt    *time.Time
}

type ItemListFilter struct {
	ItemType   string
	ActiveOnly bool
}

type ItemRepository struct {
	db DBTX
}

func NewItemRepository(db DBTX) *ItemRepository {
	return &ItemRepository{db: db}
}

const itemColumns = `id, item_type, title, description, price, currency, duration_text, session_at, is_active, created_at, updated_at`

func scanItem(row pgx.Row) (*models.Item, error) {
	var item models.Item
	err := row.Scan(
		&item.ID,
		&item.ItemType,
		&item.Title,
		&item.Description,
		&item.Price,
		&item.Currency,
		&item.DurationText,
		&item.SessionAt,
		&item.IsActive,
		&item.CreatedAt,
		&item.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (r *ItemRepository) Create(ctx context.Context, input CreateItemInput) (*models.Item, error) {
	query := `
		INSERT INTO items (item_type, title, description, price, currency, duration_text, session_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + itemColumns
	return scanItem(r.db.QueryRow(
		ctx,
		query,
		input.ItemType,
		input.Title,
		input.Description,
		input.Price,
		input.Currency,
		input.DurationText,
		input.SessionAt,
	))
}

func (r *ItemRepository) GetByID(ctx context.Context, id int64) (*models.Item, error) {
	return scanItem(r.db.QueryRow(ctx, `SELECT `+itemColumns+` FROM items WHERE id = $1`, id))
}

func (r *ItemRepository) List(ctx context.Context, filter ItemListFilter) ([]models.Item, error) {
	args := make([]any, 0, 1)
	whereParts := []string{"TRUE"}
	if itemType := strings.TrimSpace(filter.ItemType); itemType != "" {
		args = append(args, itemType)
		whereParts = append(whereParts, fmt.Sprintf("item_type = $%d", len(args)))
	}
	if filter.ActiveOnly {
		whereParts = append(whereParts, "is_active = TRUE")
	}

	query := fmt.Sprintf(`
		SELECT %s
		FROM items
		WHERE %s
		ORDER BY created_at DESC, id DESC
	`, itemColumns, strings.Join(whereParts, " AND "))

	return r.list(ctx, query, args...)
}

// ListByIDs returns the items keyed by id; missing ids are absent from the map.
func (r *ItemRepository) ListByIDs(ctx context.Context, ids []int64) (map[int64]models.Item, error) {
	items := make(map[int64]models.Item, len(ids))
	if len(ids) == 0 {
		return items, nil
	}
	list, err := r.list(ctx, `SELECT `+itemColumns+` FROM items WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	for _, item := range list {
		items[item.ID] = item
	}
	return items, nil
}

func (r *ItemRepository) list(ctx context.Context, query string, args ...any) ([]models.Item, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	items := make([]models.Item, 0)
	for rows.Next() {
		item, err := scanItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
