package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/policy"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type creditApplicationService interface {
	RequestCredits(ctx context.Context, caller auth.Caller, input services.CreditRequestInput) (*models.CreditRequest, error)
	ListCreditRequests(ctx context.Context, caller auth.Caller, status string) ([]models.CreditRequest, error)
	ListMyRequests(ctx context.Context, caller auth.Caller) ([]models.CreditRequest, error)
	Balances(ctx context.Context, caller auth.Caller) (map[string]int64, error)
	Review(ctx context.Context, caller auth.Caller, input services.ReviewInput) (*services.ReviewResult, error)
}

type CreditHandler struct {
	service creditApplicationService
}

func NewCreditHandler(service creditApplicationService) *CreditHandler {
	return &CreditHandler{service: service}
}

type creditRequestRequest struct {
	Amount      int64  `json:"amount" validate:"required,gt=0"`
	ServiceType string `json:"service_type" validate:"required"`
	Reason      string `json:"reason" validate:"max=2000"`
}

type reviewCreditRequest struct {
	RequestID int64  `json:"request_id" validate:"required,gt=0"`
	Decision  string `json:"decision" validate:"required,oneof=approve reject"`
	Notes     string `json:"notes" validate:"max=2000"`
}

func (h *CreditHandler) RequestCredits(c *fiber.Ctx) error {
	var req creditRequestRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	request, err := h.service.RequestCredits(c.Context(), callerFrom(c), services.CreditRequestInput{
		Amount:      req.Amount,
		ServiceType: req.ServiceType,
		Reason:      req.Reason,
	})
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{"request": request})
}

func (h *CreditHandler) Review(c *fiber.Ctx) error {
	var req reviewCreditRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	result, err := h.service.Review(c.Context(), callerFrom(c), services.ReviewInput{
		RequestID: req.RequestID,
		Decision:  policy.Decision(req.Decision),
		Notes:     req.Notes,
	})
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{"request": result.Request, "balance": result.Balance})
}

func (h *CreditHandler) ListRequests(c *fiber.Ctx) error {
	requests, err := h.service.ListCreditRequests(c.Context(), callerFrom(c), c.Query("status"))
	if err != nil {
		return writeError(c, err)
	}

	page, limit := pageParams(c)
	pageItems, meta := paginate(requests, page, limit)
	return c.JSON(fiber.Map{"requests": pageItems, "pagination": meta})
}

func (h *CreditHandler) ListMine(c *fiber.Ctx) error {
	requests, err := h.service.ListMyRequests(c.Context(), callerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"requests": requests})
}

func (h *CreditHandler) Balances(c *fiber.Ctx) error {
	balances, err := h.service.Balances(c.Context(), callerFrom(c))
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(fiber.Map{"balances": balances})
}
