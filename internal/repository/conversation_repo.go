package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type ConversationRepository struct {
	db DBTX
}

func NewConversationRepository(db DBTX) *ConversationRepository {
	return &ConversationRepository{db: db}
}

const conversationColumns = `id, user_id, item_id, item_type, last_message_at, created_at`

func scanConversation(row pgx.Row) (*models.Conversation, error) {
	var conversation models.Conversation
	err := row.Scan(
		&conversation.ID,
		&conversation.UserID,
		&conversation.ItemID,
		&conversation.ItemType,
		&conversation.LastMessageAt,
		&conversation.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &conversation, nil
}

// CreateOrGet returns the user's conversation for the item, or the general-support
// conversation when itemID is nil. Partial unique indexes keep both unique.
func (r *ConversationRepository) CreateOrGet(
	ctx context.Context,
	userID int64,
	itemID *int64,
	itemType *string,
) (*models.Conversation, error) {
	if itemID == nil {
		return scanConversation(r.db.QueryRow(ctx, `
			INSERT INTO conversations (user_id)
			VALUES ($1)
			ON CONFLICT (user_id) WHERE item_id IS NULL
			DO UPDATE SET user_id = EXCLUDED.user_id
			RETURNING `+conversationColumns, userID))
	}

	return scanConversation(r.db.QueryRow(ctx, `
		INSERT INTO conversations (user_id, item_id, item_type)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, item_id, item_type) WHERE item_id IS NOT NULL
		DO UPDATE SET user_id = EXCLUDED.user_id
		RETURNING `+conversationColumns, userID, *itemID, itemType))
}

func (r *ConversationRepository) GetByID(ctx context.Context, conversationID int64) (*models.Conversation, error) {
	return scanConversation(r.db.QueryRow(ctx, `
		SELECT `+conversationColumns+`
		FROM conversations
		WHERE id = $1
	`, conversationID))
}

// ListForParticipant lists the viewer's conversations, or every conversation when
// includeAll is set (staff inbox). Unread counts are from the viewer's perspective.
func (r *ConversationRepository) ListForParticipant(
	ctx context.Context,
	viewerID int64,
	includeAll bool,
) ([]models.ConversationSummary, error) {
	query := `
		SELECT
			c.id,
			c.user_id,
			c.item_id,
			c.item_type,
			c.last_message_at,
			c.created_at,
			lm.id,
			lm.sender_id,
			lm.sender_role,
			lm.body,
			lm.kind,
			lm.created_at,
			lm.read_at,
			COALESCE(uc.unread_count, 0)
		FROM conversations c
		LEFT JOIN LATERAL (
			SELECT id, sender_id, sender_role, body, kind, created_at, read_at
			FROM messages
			WHERE conversation_id = c.id
			ORDER BY created_at DESC, id DESC
			LIMIT 1
		) lm ON TRUE
		LEFT JOIN LATERAL (
			SELECT COUNT(*) AS unread_count
			FROM messages
			WHERE conversation_id = c.id
			  AND sender_id <> $1
			  AND read_at IS NULL
		) uc ON TRUE
		WHERE $2 OR c.user_id = $1
		ORDER BY COALESCE(c.last_message_at, c.created_at) DESC, c.id DESC
	`

	rows, err := r.db.Query(ctx, query, viewerID, includeAll)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	summaries := make([]models.ConversationSummary, 0)
	for rows.Next() {
		var summary models.ConversationSummary
		var messageID sql.NullInt64
		var messageSenderID sql.NullInt64
		var messageSenderRole sql.NullString
		var messageBody sql.NullString
		var messageKind sql.NullString
		var messageCreatedAt sql.NullTime
		var messageReadAt *time.Time

		if err := rows.Scan(
			&summary.ID,
			&summary.UserID,
			&summary.ItemID,
			&summary.ItemType,
			&summary.LastMessageAt,
			&summary.CreatedAt,
			&messageID,
			&messageSenderID,
			&messageSenderRole,
			&messageBody,
			&messageKind,
			&messageCreatedAt,
			&messageReadAt,
			&summary.UnreadCount,
		); err != nil {
			return nil, err
		}

		if messageID.Valid {
			summary.LastMessage = &models.Message{
				ID:             messageID.Int64,
				ConversationID: summary.ID,
				SenderID:       messageSenderID.Int64,
				SenderRole:     messageSenderRole.String,
				Body:           messageBody.String,
				Kind:           messageKind.String,
				CreatedAt:      messageCreatedAt.Time,
				ReadAt:         messageReadAt,
			}
		}

		summaries = append(summaries, summary)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return summaries, nil
}

func (r *ConversationRepository) Touch(ctx context.Context, conversationID int64, at time.Time) error {
	_, err := r.db.Exec(ctx, `
		UPDATE conversations
		SET last_message_at = GREATEST(COALESCE(last_message_at, $2), $2)
		WHERE id = $1
	`, conversationID, at)
	return err
}
