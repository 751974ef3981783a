package handlers

import (
	"context"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type paymentApplicationService interface {
	CreateOrder(ctx context.Context, caller auth.Caller, input services.CreateOrderInput) (*services.OrderHandle, error)
	VerifyPayment(ctx context.Context, caller auth.Caller, input services.VerifyPaymentInput) (*services.VerifyResult, error)
	CancelBooking(ctx context.Context, caller auth.Caller, bookingID int64) (*services.CancelResult, error)
	CancelSession(ctx context.Context, caller auth.Caller, bookingID int64) (*services.CancelResult, error)
	AbandonCheckout(ctx context.Context, caller auth.Caller, bookingID int64) (*models.Booking, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*services.WebhookResult, error)
	ListBookings(ctx context.Context, caller auth.Caller, status string) ([]models.BookingDetail, error)
}

type PaymentHandler struct {
	service paymentApplicationService
}

func NewPaymentHandler(service paymentApplicationService) *PaymentHandler {
	return &PaymentHandler{service: service}
}

const webhookSignatureHeader = "X-Razorpay-Signature"

type createOrderRequest struct {
	ItemID          int64      `json:"item_id" validate:"required,gt=0"`
	ItemType        string     `json:"item_type" validate:"required,oneof=session program tool"`
	BookingID       *int64     `json:"booking_id" validate:"omitempty,gt=0"`
	ScheduledAt     *time.Time `json:"scheduled_at"`
	DurationMinutes *int       `json:"duration_minutes" validate:"omitempty,gt=0"`
	PayerName       string     `json:"payer_name"`
	PayerEmail      string     `json:"payer_email" validate:"omitempty,email"`
	PayerPhone      string     `json:"payer_phone"`
}

type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id" validate:"required"`
	PaymentID string `json:"razorpay_payment_id" validate:"required"`
	Signature string `json:"razorpay_signature" validate:"required"`
	BookingID int64  `json:"booking_id" validate:"required,gt=0"`
	ItemID    int64  `json:"item_id" validate:"omitempty,gt=0"`
}

type bookingRequest struct {
	BookingID int64 `json:"booking_id" validate:"required,gt=0"`
}

func (h *PaymentHandler) CreateOrder(c *fiber.Ctx) error {
	var req createOrderRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	handle, err := h.service.CreateOrder(c.Context(), callerFrom(c), services.CreateOrderInput{
		ItemID:          req.ItemID,
		ItemType:        req.ItemType,
		BookingID:       req.BookingID,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		PayerName:       req.PayerName,
		PayerEmail:      req.PayerEmail,
		PayerPhone:      req.PayerPhone,
	})
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{
		"orderId":   handle.OrderID,
		"amount":    handle.AmountSubunits,
		"currency":  handle.Currency,
		"keyId":     handle.KeyID,
		"receipt":   handle.Receipt,
		"bookingId": handle.BookingID,
		"paymentId": handle.PaymentID,
	})
}

func (h *PaymentHandler) VerifyPayment(c *fiber.Ctx) error {
	var req verifyPaymentRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	result, err := h.service.VerifyPayment(c.Context(), callerFrom(c), services.VerifyPaymentInput{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
		BookingID: req.BookingID,
		ItemID:    req.ItemID,
	})
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{
		"purchase":         result.Purchase,
		"alreadyProcessed": result.AlreadyProcessed,
	})
}

func (h *PaymentHandler) CancelBooking(c *fiber.Ctx) error {
	return h.cancel(c, h.service.CancelBooking)
}

func (h *PaymentHandler) CancelSession(c *fiber.Ctx) error {
	return h.cancel(c, h.service.CancelSession)
}

func (h *PaymentHandler) cancel(
	c *fiber.Ctx,
	fn func(context.Context, auth.Caller, int64) (*services.CancelResult, error),
) error {
	var req bookingRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	result, err := fn(c.Context(), callerFrom(c), req.BookingID)
	if err != nil {
		return writeFunctionError(c, err)
	}
	if result.AlreadyCancelled {
		return functionOK(c, fiber.Map{"alreadyCancelled": true, "booking": result.Booking})
	}
	return functionOK(c, fiber.Map{
		"alreadyCancelled": false,
		"booking":          result.Booking,
		"refundPercentage": result.Percentage,
		"refundAmount":     result.RefundAmount,
		"refundId":         result.RefundID,
	})
}

func (h *PaymentHandler) AbandonCheckout(c *fiber.Ctx) error {
	var req bookingRequest
	if err := bindJSON(c, &req); err != nil {
		return writeFunctionError(c, err)
	}

	booking, err := h.service.AbandonCheckout(c.Context(), callerFrom(c), req.BookingID)
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{"booking": booking})
}

// Webhook reads the raw body; the signature covers the exact bytes sent by the gateway.
func (h *PaymentHandler) Webhook(c *fiber.Ctx) error {
	result, err := h.service.HandleWebhook(c.Context(), c.Body(), c.Get(webhookSignatureHeader))
	if err != nil {
		return writeFunctionError(c, err)
	}
	return functionOK(c, fiber.Map{
		"event":            result.Event,
		"handled":          result.Handled,
		"alreadyProcessed": result.AlreadyProcessed,
		"duplicateCharge":  result.DuplicateCharge,
	})
}

func (h *PaymentHandler) ListBookings(c *fiber.Ctx) error {
	bookings, err := h.service.ListBookings(c.Context(), callerFrom(c), c.Query("status"))
	if err != nil {
		return writeError(c, err)
	}

	page, limit := pageParams(c)
	pageItems, meta := paginate(bookings, page, limit)
	return c.JSON(fiber.Map{
		"bookings":   pageItems,
		"pagination": meta,
	})
}
