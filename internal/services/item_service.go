package services

import (
	"context"
	"strings"
	"time"

	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

type ItemService struct {
	store    store
	currency string
}

func NewItemService(db DB, currency string) *ItemService {
	if currency == "" {
		currency = "INR"
	}
	return &ItemService{store: newStore(db), currency: currency}
}

func (s *ItemService) List(ctx context.Context, itemType string) ([]models.Item, error) {
	itemType = strings.TrimSpace(itemType)
	if itemType != "" && !models.IsValidItemType(itemType) {
		return nil, invalidInput("unknown item_type")
	}
	return s.store.read().items.List(ctx, repository.ItemListFilter{ItemType: itemType, ActiveOnly: true})
}

func (s *ItemService) Get(ctx context.Context, itemID int64) (*models.Item, error) {
	if itemID <= 0 {
		return nil, invalidInput("item id must be positive")
	}
	item, err := s.store.read().items.GetByID(ctx, itemID)
	if err != nil {
		return nil, notFoundOr(err, "item")
	}
	return item, nil
}

type CreateItemInput struct {
	ItemType     string
	Title        string
	Description  *string
	Price        int64
	Currency     string
	DurationText *string
	SessionAt    *time.Time
}

func (s *ItemService) Create(ctx context.Context, caller auth.Caller, input CreateItemInput) (*models.Item, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if !models.IsValidItemType(input.ItemType) {
		return nil, invalidInput("unknown item_type")
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return nil, invalidInput("title is required")
	}
	if input.Price < 0 {
		return nil, invalidInput("price must not be negative")
	}
	if input.SessionAt != nil && input.ItemType != models.ItemTypeSession {
		return nil, invalidInput("session_at only applies to sessions")
	}
	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = s.currency
	}

	return s.store.read().items.Create(ctx, repository.CreateItemInput{
		ItemType:     input.ItemType,
		Title:        title,
		Description:  input.Description,
		Price:        input.Price,
		Currency:     currency,
		DurationText: input.DurationText,
		SessionAt:    input.SessionAt,
	})
}
