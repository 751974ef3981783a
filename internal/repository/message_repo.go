package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/models"
)

type CreateMessageInput struct {
	ConversationID int64
	SenderID       int64
	SenderRole     string
	Body           string
	Kind           string
	CourseItemID   *int64
	ClientKey      *string
}

type MessageRepository struct {
	db DBTX
}

func NewMessageRepository(db DBTX) *MessageRepository {
	return &MessageRepository{db: db}
}

const messageColumns = `id, conversation_id, sender_id, sender_role, body, kind, course_item_id, client_key, created_at, read_at, read_by`

func scanMessage(row pgx.Row) (*models.Message, error) {
	var message models.Message
	err := row.Scan(
		&message.ID,
		&message.ConversationID,
		&message.SenderID,
		&message.SenderRole,
		&message.Body,
		&message.Kind,
		&message.CourseItemID,
		&message.ClientKey,
		&message.CreatedAt,
		&message.ReadAt,
		&message.ReadBy,
	)
	if err != nil {
		return nil, err
	}
	if message.ReadBy == nil {
		message.ReadBy = []int64{}
	}
	return &message, nil
}

// Create inserts the message. When a message with the same client key already exists
// in the conversation the stored row is returned with created=false.
func (r *MessageRepository) Create(
	ctx context.Context,
	input CreateMessageInput,
) (*models.Message, bool, error) {
	query := `
		INSERT INTO messages (conversation_id, sender_id, sender_role, body, kind, course_item_id, client_key)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (conversation_id, client_key) WHERE client_key IS NOT NULL
		DO NOTHING
		RETURNING ` + messageColumns

	message, err := scanMessage(r.db.QueryRow(
		ctx,
		query,
		input.ConversationID,
		input.SenderID,
		input.SenderRole,
		input.Body,
		input.Kind,
		input.CourseItemID,
		input.ClientKey,
	))
	if err == nil {
		return message, true, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) || input.ClientKey == nil {
		return nil, false, err
	}

	existing, err := r.GetByClientKey(ctx, input.ConversationID, *input.ClientKey)
	if err != nil {
		return nil, false, err
	}
	return existing, false, nil
}

func (r *MessageRepository) GetByClientKey(ctx context.Context, conversationID int64, clientKey string) (*models.Message, error) {
	return scanMessage(r.db.QueryRow(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1 AND client_key = $2
	`, conversationID, clientKey))
}

// ListByConversation returns every message of the conversation, oldest first.
func (r *MessageRepository) ListByConversation(ctx context.Context, conversationID int64) ([]models.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE conversation_id = $1
		ORDER BY created_at ASC, id ASC
	`, conversationID)
}

// MarkRead flags unread messages not sent by the reader. A nil messageIDs marks the whole
// conversation. Only rows that changed are returned.
func (r *MessageRepository) MarkRead(
	ctx context.Context,
	conversationID int64,
	readerID int64,
	messageIDs []int64,
) ([]models.Message, error) {
	if messageIDs == nil {
		return r.list(ctx, `
			UPDATE messages
			SET read_at = NOW(), read_by = array_append(read_by, $2)
			WHERE conversation_id = $1
			  AND sender_id <> $2
			  AND read_at IS NULL
			RETURNING `+messageColumns, conversationID, readerID)
	}
	if len(messageIDs) == 0 {
		return []models.Message{}, nil
	}
	return r.list(ctx, `
		UPDATE messages
		SET read_at = NOW(), read_by = array_append(read_by, $2)
		WHERE conversation_id = $1
		  AND sender_id <> $2
		  AND read_at IS NULL
		  AND id = ANY($3)
		RETURNING `+messageColumns, conversationID, readerID, messageIDs)
}

// ListLegacyTagged returns messages still carrying course context inside the body.
func (r *MessageRepository) ListLegacyTagged(ctx context.Context, afterID int64, limit int) ([]models.Message, error) {
	return r.list(ctx, `
		SELECT `+messageColumns+`
		FROM messages
		WHERE course_item_id IS NULL
		  AND body LIKE '[course:%'
		  AND id > $1
		ORDER BY id ASC
		LIMIT $2
	`, afterID, limit)
}

func (r *MessageRepository) SetCourseContext(ctx context.Context, messageID int64, courseItemID int64, body string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE messages
		SET course_item_id = $2, body = $3
		WHERE id = $1 AND course_item_id IS NULL
	`, messageID, courseItemID, body)
	return err
}

func (r *MessageRepository) list(ctx context.Context, query string, args ...any) ([]models.Message, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		message, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		messages = append(messages, *message)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return messages, nil
}
