// Package chatclient is the client half of the messaging engine: it keeps a local copy of one
// conversation, renders sends optimistically and reconciles them against the server's records
// and change feed.
package chatclient

import "time"

const (
	EventInsert = "INSERT"
	EventUpdate = "UPDATE"
	// EventResync is raised by the feed itself after a reconnect. Rows committed while the
	// connection was down were never pushed, so the receiver should reload.
	EventResync = "RESYNC"
)

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

// Event is a committed row change pushed by the server.
type Event struct {
	Type           string  `json:"type"`
	Table          string  `json:"table"`
	ConversationID int64   `json:"conversation_id"`
	Message        Message `json:"message"`
}

// Identity is either Pending (only the client key is known) or Confirmed (the store id is known).
type Identity struct {
	ClientKey string
	ID        int64
}

func Pending(clientKey string) Identity {
	return Identity{ClientKey: clientKey}
}

func Confirmed(id int64) Identity {
	return Identity{ID: id}
}

func (i Identity) IsPending() bool {
	return i.ID == 0
}

type State int

const (
	StateSending State = iota
	StateConfirmed
)

func (s State) String() string {
	switch s {
	case StateSending:
		return "sending"
	case StateConfirmed:
		return "confirmed"
	default:
		return "unknown"
	}
}

// Entry is one line of the local thread.
type Entry struct {
	Identity Identity
	State    State
	Message  Message
}
