package models

import "time"

const (
	MessageKindText       = "text"
	MessageKindAttachment = "attachment"
)

// Conversation is a thread between one user and staff, optionally scoped to an item.
// A nil ItemID marks the user's general-support conversation.
type Conversation struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	ItemID        *int64     `json:"item_id,omitempty"`
	ItemType      *string    `json:"item_type,omitempty"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func (c Conversation) HasCourseContext() bool {
	return c.ItemID != nil
}

type Message struct {
	ID             int64      `json:"id"`
	ConversationID int64      `json:"conversation_id"`
	SenderID       int64      `json:"sender_id"`
	SenderRole     string     `json:"sender_role"`
	Body           string     `json:"body"`
	Kind           string     `json:"kind"`
	CourseItemID   *int64     `json:"course_item_id,omitempty"`
	ClientKey      *string    `json:"client_key,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	ReadAt         *time.Time `json:"read_at,omitempty"`
	ReadBy         []int64    `json:"read_by"`
}

func (m Message) IsRead() bool {
	return m.ReadAt != nil
}

type ConversationSummary struct {
	Conversation
	LastMessage *Message `json:"last_message,omitempty"`
	UnreadCount int      `json:"unread_count"`
}
