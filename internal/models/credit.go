package models

import "time"

const (
	CreditStatusPending  = "pending"
	CreditStatusApproved = "approved"
	CreditStatusRejected = "rejected"
)

type CreditRequest struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Amount        int64      `json:"amount"`
	ServiceType   string     `json:"service_type"`
	Reason        string     `json:"reason"`
	Status        string     `json:"status"`
	ReviewerID    *int64     `json:"reviewer_id,omitempty"`
	ReviewerNotes *string    `json:"reviewer_notes,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ReviewedAt    *time.Time `json:"reviewed_at,omitempty"`
}

type CreditBalance struct {
	UserID      int64     `json:"user_id"`
	ServiceType string    `json:"service_type"`
	Balance     int64     `json:"balance"`
	UpdatedAt   time.Time `json:"updated_at"`
}
