package models

import "time"

const (
	ItemTypeSession = "session"
	ItemTypeProgram = "program"
	ItemTypeTool    = "tool"
)

// Item is anything purchasable from the catalog. Price is in whole currency units.
type Item struct {
	ID           int64      `json:"id"`
	ItemType     string     `json:"item_type"`
	Title        string     `json:"title"`
	Description  *string    `json:"description,omitempty"`
	Price        int64      `json:"price"`
	Currency     string     `json:"currency"`
	DurationText *string    `json:"duration_text,omitempty"`
	SessionAt    *time.Time `json:"session_at,omitempty"`
	IsActive     bool       `json:"is_active"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func IsValidItemType(itemType string) bool {
	switch itemType {
	case ItemTypeSession, ItemTypeProgram, ItemTypeTool:
		return true
	}
	return false
}
