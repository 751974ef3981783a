package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type itemApplicationService interface {
	List(ctx context.Context, itemType string) ([]models.Item, error)
	Get(ctx context.Context, itemID int64) (*models.Item, error)
	Create(ctx context.Context, caller auth.Caller, input services.CreateItemInput) (*models.Item, error)
}

type inquiryApplicationService interface {
	Submit(ctx context.Context, input services.InquiryInput) error
}

type ItemHandler struct {
	items     itemApplicationService
	inquiries inquiryApplicationService
}

func NewItemHandler(items itemApplicationService, inquiries inquiryApplicationService) *ItemHandler {
	return &ItemHandler{items: items, inquiries: inquiries}
}

type createItemRequest struct {
	ItemType     string     `json:"item_type" validate:"required,oneof=session program tool"`
	Title        string     `json:"title" validate:"required,max=200"`
	Description  *string    `json:"description"`
	Price        int64      `json:"price" validate:"gte=0"`
	Currency     string     `json:"currency" validate:"omitempty,len=3"`
	DurationText *string    `json:"duration_text"`
	SessionAt    *time.Time `json:"session_at"`
}

type inquiryRequest struct {
	Name    string `json:"name" validate:"required,max=200"`
	Email   string `json:"email" validate:"required,email"`
	Phone   string `json:"phone" validate:"max=40"`
	Message string `json:"message" validate:"required,max=5000"`
}

func (h *ItemHandler) List(c *fiber.Ctx) error {
	items, err := h.items.List(c.Context(), c.Query("type"))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"items": items})
}

func (h *ItemHandler) Get(c *fiber.Ctx) error {
	itemID, err := parseIDParam(c, "id")
	if err != nil {
		return writeError(c, err)
	}
	item, err := h.items.Get(c.Context(), itemID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"item": item})
}

func (h *ItemHandler) Create(c *fiber.Ctx) error {
	var req createItemRequest
	if err := bindJSON(c, &req); err != nil {
		return writeError(c, err)
	}

	item, err := h.items.Create(c.Context(), callerFrom(c), services.CreateItemInput{
		ItemType:     req.ItemType,
		Title:        req.Title,
		Description:  req.Description,
		Price:        req.Price,
		Currency:     req.Currency,
		DurationText: req.DurationText,
		SessionAt:    req.SessionAt,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(fiber.Map{"item": item})
}

// SubmitInquiry is a public function endpoint used by the marketing site contact form.
func (h *ItemHandler) SubmitInquiry(c *fiber.Ctx) error {
	var req inquiryRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	err := h.inquiries.Submit(c.Context(), services.InquiryInput{
		Name:    req.Name,
		Email:   req.Email,
		Phone:   req.Phone,
		Message: req.Message,
	})
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, nil)
}
