package services

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/realtime"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

const maxMessageLength = 4000

type sendLimiter interface {
	Allow(key string) bool
}

type ChatService struct {
	store   store
	feed    realtime.Feed
	limiter sendLimiter
	log     zerolog.Logger
}

func NewChatService(db DB, feed realtime.Feed, limiter sendLimiter, log zerolog.Logger) *ChatService {
	return &ChatService{
		store:   newStore(db),
		feed:    feed,
		limiter: limiter,
		log:     log.With().Str("service", "chat").Logger(),
	}
}

type OpenConversationInput struct {
	// UserID lets staff open a conversation on a user's behalf.
	UserID   *int64
	ItemID   *int64
	ItemType *string
}

func (s *ChatService) OpenConversation(
	ctx context.Context,
	caller auth.Caller,
	input OpenConversationInput,
) (*models.Conversation, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	ownerID := caller.UserID
	if input.UserID != nil && *input.UserID != caller.UserID {
		if !caller.IsStaff() {
			return nil, ErrForbidden
		}
		if *input.UserID <= 0 {
			return nil, invalidInput("user_id must be positive")
		}
		ownerID = *input.UserID
	}

	if (input.ItemID == nil) != (input.ItemType == nil) {
		return nil, invalidInput("item_id and item_type go together")
	}

	r := s.store.read()
	if input.ItemID != nil {
		if !models.IsValidItemType(*input.ItemType) {
			return nil, invalidInput("unknown item_type")
		}
		item, err := r.items.GetByID(ctx, *input.ItemID)
		if err != nil {
			return nil, notFoundOr(err, "item")
		}
		if item.ItemType != *input.ItemType {
			return nil, invalidInput("item_type does not match item")
		}
	}

	return r.conversations.CreateOrGet(ctx, ownerID, input.ItemID, input.ItemType)
}

func (s *ChatService) ListConversations(ctx context.Context, caller auth.Caller) ([]models.ConversationSummary, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	return s.store.read().conversations.ListForParticipant(ctx, caller.UserID, caller.IsStaff())
}

// authorize loads the conversation and checks the caller may read and write it.
func (s *ChatService) authorize(ctx context.Context, r repos, caller auth.Caller, conversationID int64) (*models.Conversation, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if conversationID <= 0 {
		return nil, invalidInput("conversation_id must be positive")
	}

	conversation, err := r.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, notFoundOr(err, "conversation")
	}
	if !caller.IsStaff() && conversation.UserID != caller.UserID {
		return nil, ErrForbidden
	}
	return conversation, nil
}

// Conversation returns the conversation when the caller may access it.
func (s *ChatService) Conversation(ctx context.Context, caller auth.Caller, conversationID int64) (*models.Conversation, error) {
	return s.authorize(ctx, s.store.read(), caller, conversationID)
}

// LoadMessages returns the conversation oldest first. Visible messages the caller did not
// send are marked read in the same transaction and the new read state is returned.
func (s *ChatService) LoadMessages(
	ctx context.Context,
	caller auth.Caller,
	conversationID int64,
) ([]models.Message, error) {
	conversation, err := s.authorize(ctx, s.store.read(), caller, conversationID)
	if err != nil {
		return nil, err
	}

	var messages, marked []models.Message
	err = s.store.tx(ctx, func(r repos) error {
		var err error
		messages, err = r.messages.ListByConversation(ctx, conversation.ID)
		if err != nil {
			return err
		}
		if caller.Role == models.RoleClient {
			messages = FilterCourseContext(messages, conversation.ItemID)
		}

		unread := make([]int64, 0)
		for _, message := range messages {
			if message.SenderID != caller.UserID && !message.IsRead() {
				unread = append(unread, message.ID)
			}
		}
		marked, err = r.messages.MarkRead(ctx, conversation.ID, caller.UserID, unread)
		return err
	})
	if err != nil {
		return nil, err
	}

	if len(marked) > 0 {
		byID := make(map[int64]models.Message, len(marked))
		for _, message := range marked {
			byID[message.ID] = message
		}
		for i, message := range messages {
			if updated, ok := byID[message.ID]; ok {
				messages[i] = updated
			}
		}
	}

	s.publishUpdates(ctx, marked)
	return messages, nil
}

type SendMessageInput struct {
	ConversationID int64
	Body           string
	Kind           string
	ClientKey      *string
}

type SendResult struct {
	Message *models.Message
	// Created is false when the client key matched an already stored message.
	Created bool
}

func (s *ChatService) SendMessage(
	ctx context.Context,
	caller auth.Caller,
	input SendMessageInput,
) (*SendResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}

	body := strings.TrimSpace(input.Body)
	if body == "" {
		return nil, invalidInput("body is required")
	}
	if len(body) > maxMessageLength {
		return nil, invalidInput("body is too long")
	}

	kind := strings.TrimSpace(input.Kind)
	if kind == "" {
		kind = models.MessageKindText
	}
	if kind != models.MessageKindText && kind != models.MessageKindAttachment {
		return nil, invalidInput("unknown message kind")
	}

	var clientKey *string
	if input.ClientKey != nil && strings.TrimSpace(*input.ClientKey) != "" {
		parsed, err := uuid.Parse(strings.TrimSpace(*input.ClientKey))
		if err != nil {
			return nil, invalidInput("client_key must be a uuid")
		}
		key := parsed.String()
		clientKey = &key
	}

	if s.limiter != nil && !s.limiter.Allow("user:"+strconv.FormatInt(caller.UserID, 10)) {
		return nil, ErrRateLimited
	}

	conversation, err := s.authorize(ctx, s.store.read(), caller, input.ConversationID)
	if err != nil {
		return nil, err
	}

	// New messages take their course context from the conversation. A legacy tag naming
	// the same item is stripped; any other tag stays part of the body.
	courseItemID := conversation.ItemID
	if tag, ok := ParseLegacyCourseTag(body); ok && courseItemID != nil && tag.ItemID == *courseItemID {
		body = tag.Rest
		if body == "" {
			return nil, invalidInput("body is required")
		}
	}

	var result SendResult
	err = s.store.tx(ctx, func(r repos) error {
		message, created, err := r.messages.Create(ctx, repository.CreateMessageInput{
			ConversationID: conversation.ID,
			SenderID:       caller.UserID,
			SenderRole:     caller.Role,
			Body:           body,
			Kind:           kind,
			CourseItemID:   courseItemID,
			ClientKey:      clientKey,
		})
		if err != nil {
			return err
		}
		result = SendResult{Message: message, Created: created}
		if !created {
			return nil
		}
		return r.conversations.Touch(ctx, conversation.ID, message.CreatedAt)
	})
	if err != nil {
		return nil, err
	}

	if result.Created {
		messagesSent.WithLabelValues(kind).Inc()
		s.publish(ctx, realtime.InsertEvent(*result.Message))
	}
	return &result, nil
}

// MarkRead flags specific messages read for the caller; used by clients after their
// delayed read timer fires.
func (s *ChatService) MarkRead(
	ctx context.Context,
	caller auth.Caller,
	conversationID int64,
	messageIDs []int64,
) ([]models.Message, error) {
	r := s.store.read()
	conversation, err := s.authorize(ctx, r, caller, conversationID)
	if err != nil {
		return nil, err
	}
	if messageIDs == nil {
		messageIDs = []int64{}
	}

	marked, err := r.messages.MarkRead(ctx, conversation.ID, caller.UserID, messageIDs)
	if err != nil {
		return nil, err
	}
	s.publishUpdates(ctx, marked)
	return marked, nil
}

func (s *ChatService) publishUpdates(ctx context.Context, marked []models.Message) {
	if len(marked) == 0 {
		return
	}
	messagesRead.Add(float64(len(marked)))
	for _, message := range marked {
		s.publish(ctx, realtime.UpdateEvent(message))
	}
}

// publish never fails the caller: the row is already committed and clients recover on
// their next load.
func (s *ChatService) publish(ctx context.Context, event realtime.Event) {
	if s.feed == nil {
		return
	}
	if err := s.feed.Publish(ctx, event); err != nil {
		feedPublishErrors.Inc()
		s.log.Warn().Err(err).
			Int64("conversation_id", event.ConversationID).
			Int64("message_id", event.Message.ID).
			Str("type", event.Type).
			Msg("change event not published")
	}
}

// FilterCourseContext applies the client-side visibility rule. With an item context only
// that item's messages and admin messages are shown; the general view shows messages
// without course context and admin messages.
func FilterCourseContext(messages []models.Message, itemID *int64) []models.Message {
	visible := make([]models.Message, 0, len(messages))
	for _, message := range messages {
		if message.SenderRole == models.RoleAdmin {
			visible = append(visible, message)
			continue
		}
		if itemID == nil {
			if message.CourseItemID == nil {
				visible = append(visible, message)
			}
			continue
		}
		if message.CourseItemID != nil && *message.CourseItemID == *itemID {
			visible = append(visible, message)
		}
	}
	return visible
}

var legacyCourseTag = regexp.MustCompile(`^\s*\[course:(session|program|tool):(\d+)\]\s*`)

type LegacyCourseTag struct {
	ItemType string
	ItemID   int64
	Rest     string
}

// ParseLegacyCourseTag reads the "[course:<type>:<id>]" prefix older clients embedded in
// message bodies.
func ParseLegacyCourseTag(body string) (LegacyCourseTag, bool) {
	match := legacyCourseTag.FindStringSubmatch(body)
	if match == nil {
		return LegacyCourseTag{}, false
	}
	id, err := strconv.ParseInt(match[2], 10, 64)
	if err != nil || id <= 0 {
		return LegacyCourseTag{}, false
	}
	return LegacyCourseTag{
		ItemType: match[1],
		ItemID:   id,
		Rest:     strings.TrimSpace(body[len(match[0]):]),
	}, true
}

// BackfillCourseTags moves legacy course tags out of message bodies into course_item_id.
// It is safe to re-run; rows already carrying course context are skipped.
func (s *ChatService) BackfillCourseTags(ctx context.Context, batchSize int) (int, error) {
	if batchSize <= 0 {
		batchSize = 500
	}

	r := s.store.read()
	updated := 0
	var afterID int64
	for {
		batch, err := r.messages.ListLegacyTagged(ctx, afterID, batchSize)
		if err != nil {
			return updated, fmt.Errorf("list tagged messages: %w", err)
		}
		if len(batch) == 0 {
			return updated, nil
		}

		for _, message := range batch {
			afterID = message.ID
			tag, ok := ParseLegacyCourseTag(message.Body)
			if !ok {
				continue
			}
			if err := r.messages.SetCourseContext(ctx, message.ID, tag.ItemID, tag.Rest); err != nil {
				return updated, fmt.Errorf("backfill message %d: %w", message.ID, err)
			}
			updated++
		}
		s.log.Info().Int("updated", updated).Int64("after_id", afterID).Msg("course tag backfill progress")
	}
}
