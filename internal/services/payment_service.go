package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/gateway"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/notify"
	"github.com/saeid-a/FinCoachBack/internal/policy"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

type PaymentConfig struct {
	Currency      string
	KeySecret     string
	WebhookSecret string
}

type PaymentService struct {
	store    store
	gateway  gateway.Gateway
	notifier *notify.Dispatcher
	tables   policy.Tables
	cfg      PaymentConfig
	log      zerolog.Logger
	now      func() time.Time
}

func NewPaymentService(
	db DB,
	gw gateway.Gateway,
	notifier *notify.Dispatcher,
	tables policy.Tables,
	cfg PaymentConfig,
	log zerolog.Logger,
) *PaymentService {
	if cfg.Currency == "" {
		cfg.Currency = "INR"
	}
	return &PaymentService{
		store:    newStore(db),
		gateway:  gw,
		notifier: notifier,
		tables:   tables,
		cfg:      cfg,
		log:      log.With().Str("service", "payment").Logger(),
		now:      time.Now,
	}
}

type CreateOrderInput struct {
	ItemID   int64
	ItemType string
	// BookingID reuses a pending draft booking, e.g. after the checkout widget was dismissed.
	BookingID       *int64
	ScheduledAt     *time.Time
	DurationMinutes *int
	PayerName       string
	PayerEmail      string
	PayerPhone      string
}

// OrderHandle is what the client needs to open the checkout widget.
type OrderHandle struct {
	OrderID        string `json:"orderId"`
	AmountSubunits int64  `json:"amount"`
	Currency       string `json:"currency"`
	KeyID          string `json:"keyId"`
	Receipt        string `json:"receipt"`
	BookingID      int64  `json:"bookingId"`
	PaymentID      int64  `json:"paymentId"`
}

func (s *PaymentService) CreateOrder(ctx context.Context, caller auth.Caller, input CreateOrderInput) (*OrderHandle, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if input.ItemID <= 0 {
		return nil, invalidInput("item_id is required")
	}
	if input.DurationMinutes != nil && *input.DurationMinutes <= 0 {
		return nil, invalidInput("duration_minutes must be positive")
	}

	r := s.store.read()
	item, err := r.items.GetByID(ctx, input.ItemID)
	if err != nil {
		return nil, notFoundOr(err, "item")
	}
	if !item.IsActive {
		return nil, invalidInput("item is not available")
	}
	if input.ItemType != "" && input.ItemType != item.ItemType {
		return nil, invalidInput("item_type does not match item")
	}
	if item.Price <= 0 {
		return nil, invalidInput("item has no price")
	}

	if input.BookingID != nil {
		draft, err := r.bookings.GetByID(ctx, *input.BookingID)
		if err != nil {
			return nil, notFoundOr(err, "booking")
		}
		if !caller.Owns(draft.UserID) {
			return nil, ErrForbidden
		}
		if draft.Status != models.BookingStatusPending {
			return nil, fmt.Errorf("%w: booking is %s", ErrInvalidStateTransition, draft.Status)
		}
		if draft.ItemID != item.ID {
			return nil, invalidInput("booking is for a different item")
		}
	}

	currency := item.Currency
	if currency == "" {
		currency = s.cfg.Currency
	}

	var handle OrderHandle
	err = s.store.tx(ctx, func(r repos) error {
		var booking *models.Booking
		if input.BookingID != nil {
			booking, err = r.bookings.GetByIDForUpdate(ctx, *input.BookingID)
			if err != nil {
				return notFoundOr(err, "booking")
			}
			if booking.Status != models.BookingStatusPending {
				return fmt.Errorf("%w: booking is %s", ErrInvalidStateTransition, booking.Status)
			}
			// The new order supersedes any order still awaiting payment on this draft.
			superseded, err := r.payments.FailPendingForBooking(ctx, booking.ID)
			if err != nil {
				return err
			}
			if superseded > 0 {
				s.log.Info().Int64("booking_id", booking.ID).Int64("superseded", superseded).Msg("superseded pending payments")
			}
		} else {
			booking, err = r.bookings.Create(ctx, repository.CreateBookingInput{
				UserID:          caller.UserID,
				ItemID:          item.ID,
				ItemType:        item.ItemType,
				Amount:          item.Price,
				ScheduledAt:     input.ScheduledAt,
				DurationMinutes: input.DurationMinutes,
			})
			if err != nil {
				return err
			}
		}

		receipt := "booking_" + strconv.FormatInt(booking.ID, 10)
		order, err := s.gateway.CreateOrder(ctx, gateway.OrderRequest{
			AmountSubunits: gateway.ToSubunits(item.Price),
			Currency:       currency,
			Receipt:        receipt,
			Notes: map[string]string{
				"booking_id": strconv.FormatInt(booking.ID, 10),
				"item_id":    strconv.FormatInt(item.ID, 10),
				"item_type":  item.ItemType,
				"user_id":    strconv.FormatInt(caller.UserID, 10),
				"name":       input.PayerName,
				"email":      input.PayerEmail,
				"phone":      input.PayerPhone,
			},
		})
		if err != nil {
			return externalFailure(err)
		}

		payment, err := r.payments.Create(ctx, repository.CreatePaymentInput{
			UserID:         caller.UserID,
			BookingID:      booking.ID,
			Amount:         item.Price,
			Currency:       currency,
			GatewayOrderID: order.ID,
			ServiceType:    item.ItemType,
		})
		if err != nil {
			return err
		}

		handle = OrderHandle{
			OrderID:        order.ID,
			AmountSubunits: order.AmountSubunits,
			Currency:       currency,
			KeyID:          s.gateway.KeyID(),
			Receipt:        receipt,
			BookingID:      booking.ID,
			PaymentID:      payment.ID,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	ordersCreated.WithLabelValues(item.ItemType).Inc()
	return &handle, nil
}

type VerifyPaymentInput struct {
	OrderID   string
	PaymentID string
	Signature string
	BookingID int64
	ItemID    int64
}

type VerifyResult struct {
	Purchase         *models.Purchase `json:"purchase"`
	AlreadyProcessed bool             `json:"alreadyProcessed"`
}

func (s *PaymentService) VerifyPayment(ctx context.Context, caller auth.Caller, input VerifyPaymentInput) (*VerifyResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	input.OrderID = strings.TrimSpace(input.OrderID)
	input.PaymentID = strings.TrimSpace(input.PaymentID)
	if input.OrderID == "" || input.PaymentID == "" || input.Signature == "" || input.BookingID <= 0 {
		return nil, invalidInput("order_id, payment_id, signature and booking_id are required")
	}

	if err := gateway.VerifySignature(s.cfg.KeySecret, input.OrderID, input.PaymentID, input.Signature); err != nil {
		paymentVerifications.WithLabelValues("signature_mismatch").Inc()
		s.log.Warn().Int64("user_id", caller.UserID).Str("order_id", input.OrderID).Msg("payment signature mismatch")
		return nil, ErrSignatureMismatch
	}

	r := s.store.read()
	booking, err := r.bookings.GetByID(ctx, input.BookingID)
	if err != nil {
		return nil, notFoundOr(err, "booking")
	}
	if !caller.Owns(booking.UserID) {
		return nil, ErrForbidden
	}
	if input.ItemID > 0 && input.ItemID != booking.ItemID {
		return nil, invalidInput("item does not match booking")
	}

	payment, err := r.payments.GetByOrderID(ctx, input.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "payment")
	}
	if payment.BookingID != booking.ID {
		return nil, invalidInput("order does not belong to booking")
	}

	var result VerifyResult
	err = s.store.tx(ctx, func(r repos) error {
		purchase, created, err := r.purchases.CreateIfAbsent(ctx, repository.CreatePurchaseInput{
			UserID:           booking.UserID,
			BookingID:        booking.ID,
			ItemID:           booking.ItemID,
			ItemType:         booking.ItemType,
			Amount:           payment.Amount,
			GatewayOrderID:   input.OrderID,
			GatewayPaymentID: input.PaymentID,
		})
		if err != nil {
			return err
		}
		result.Purchase = purchase
		if !created {
			result.AlreadyProcessed = true
			return nil
		}

		// TODO: confirm whether payments.status should move to completed here; today only
		// the payment.captured webhook completes the payment row.
		_, err = r.bookings.UpdateStatusIfCurrent(ctx, booking.ID, models.BookingStatusPending, models.BookingStatusBooked)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("%w: booking is no longer pending", ErrInvalidStateTransition)
		}
		return err
	})
	if err != nil {
		return nil, err
	}

	if result.AlreadyProcessed {
		paymentVerifications.WithLabelValues("already_processed").Inc()
		return &result, nil
	}
	paymentVerifications.WithLabelValues("verified").Inc()
	s.sendBookingConfirmation(ctx, caller, booking, payment)
	return &result, nil
}

func (s *PaymentService) sendBookingConfirmation(ctx context.Context, caller auth.Caller, booking *models.Booking, payment *models.Payment) {
	if s.notifier == nil || caller.Email == "" {
		return
	}
	title := booking.ItemType
	if item, err := s.store.read().items.GetByID(ctx, booking.ItemID); err == nil {
		title = item.Title
	}
	html, err := notify.Render("booking_confirmed", map[string]any{
		"Name":      caller.Email,
		"Title":     title,
		"Currency":  payment.Currency,
		"Amount":    payment.Amount,
		"BookingID": booking.ID,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("booking_id", booking.ID).Msg("render booking confirmation")
		return
	}
	s.notifier.Dispatch(notify.Email{
		To:      []string{caller.Email},
		Subject: "Your booking is confirmed",
		HTML:    html,
	})
}

type CancelResult struct {
	AlreadyCancelled bool           `json:"alreadyCancelled"`
	Booking          models.Booking `json:"booking"`
	Percentage       int64          `json:"refundPercentage"`
	RefundAmount     int64          `json:"refundAmount"`
	RefundID         string         `json:"refundId,omitempty"`
	// Reconciled is set when the refund already existed and only the booking was updated.
	Reconciled bool `json:"reconciled,omitempty"`
}

const (
	flowBooking = "booking"
	flowSession = "session"
)

// CancelBooking refunds on the hours elapsed since the booking was made.
func (s *PaymentService) CancelBooking(ctx context.Context, caller auth.Caller, bookingID int64) (*CancelResult, error) {
	return s.cancel(ctx, caller, bookingID, flowBooking)
}

// CancelSession refunds on the hours remaining before the session starts.
func (s *PaymentService) CancelSession(ctx context.Context, caller auth.Caller, bookingID int64) (*CancelResult, error) {
	return s.cancel(ctx, caller, bookingID, flowSession)
}

func (s *PaymentService) cancel(ctx context.Context, caller auth.Caller, bookingID int64, flow string) (*CancelResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if bookingID <= 0 {
		return nil, invalidInput("booking_id is required")
	}

	r := s.store.read()
	booking, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "booking")
	}
	if !caller.Owns(booking.UserID) {
		return nil, ErrForbidden
	}
	if booking.Status == models.BookingStatusCancelled {
		return &CancelResult{AlreadyCancelled: true, Booking: *booking}, nil
	}

	now := s.now()
	table := s.tables.Booking
	hours := now.Sub(booking.CreatedAt).Hours()
	if flow == flowSession {
		start, err := s.sessionStart(ctx, r, booking)
		if err != nil {
			return nil, err
		}
		if !now.Before(start) {
			return nil, fmt.Errorf("%w: session has already started", ErrInvalidStateTransition)
		}
		table = s.tables.Session
		hours = start.Sub(now).Hours()
	}

	var (
		result   CancelResult
		refunded *gateway.Refund
		payment  *models.Payment
	)
	err = s.store.tx(ctx, func(r repos) error {
		locked, err := r.bookings.GetByIDForUpdate(ctx, bookingID)
		if err != nil {
			return notFoundOr(err, "booking")
		}
		if locked.Status == models.BookingStatusCancelled {
			result = CancelResult{AlreadyCancelled: true, Booking: *locked}
			return nil
		}
		if locked.Status != models.BookingStatusBooked {
			return fmt.Errorf("%w: booking is %s", ErrInvalidStateTransition, locked.Status)
		}

		payment, err = r.payments.GetLatestByBookingAndStatusForUpdate(ctx, bookingID, models.PaymentStatusCompleted)
		if errors.Is(err, pgx.ErrNoRows) {
			return s.reconcileRefunded(ctx, r, locked, &result)
		}
		if err != nil {
			return err
		}
		if payment.TransactionID == nil || *payment.TransactionID == "" {
			return fmt.Errorf("%w: payment has no gateway transaction", ErrInvalidStateTransition)
		}

		quote := table.Quote(hours, payment.Amount)
		result.Percentage = quote.Percentage
		result.RefundAmount = quote.Amount

		if quote.Amount > 0 {
			refunded, err = s.gateway.Refund(ctx, gateway.RefundRequest{
				TransactionID:  *payment.TransactionID,
				AmountSubunits: gateway.ToSubunits(quote.Amount),
				Notes: map[string]string{
					"booking_id": strconv.FormatInt(bookingID, 10),
					"reason":     flow + "_cancellation",
					"percentage": strconv.FormatInt(quote.Percentage, 10),
				},
			})
			if err != nil {
				refundsIssued.WithLabelValues(flow, "gateway_error").Inc()
				return externalFailure(err)
			}
			result.RefundID = refunded.ID
		}

		cancelled, err := r.bookings.UpdateStatusIfCurrent(ctx, bookingID, models.BookingStatusBooked, models.BookingStatusCancelled)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}
		result.Booking = *cancelled

		if refunded == nil {
			return nil
		}
		if _, err := r.payments.MarkRefunded(ctx, payment.ID, refunded.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrAlreadyProcessed
			}
			return err
		}
		return nil
	})

	switch {
	case err == nil:
	case refunded != nil:
		// The gateway already moved the money, so the user sees the refund and the local
		// rows are left for reconciliation.
		s.log.Error().Err(err).
			Int64("booking_id", bookingID).
			Int64("payment_id", payment.ID).
			Str("refund_id", refunded.ID).
			Str("flow", flow).
			Msg("refund issued but local cancellation not recorded")
		refundsIssued.WithLabelValues(flow, "reconciliation_debt").Inc()
		result.Booking = *booking
		return &result, nil
	case errors.Is(err, ErrAlreadyProcessed):
		return &CancelResult{AlreadyCancelled: true, Booking: *booking}, nil
	default:
		return nil, err
	}

	switch {
	case result.AlreadyCancelled:
	case result.Reconciled:
		refundsIssued.WithLabelValues(flow, "reconciled").Inc()
	default:
		refundsIssued.WithLabelValues(flow, "refunded").Inc()
		refundedAmount.WithLabelValues(flow).Add(float64(result.RefundAmount))
	}
	return &result, nil
}

// reconcileRefunded handles a booking whose payment was refunded earlier without the
// booking being cancelled: the booking is closed and no second refund is issued.
func (s *PaymentService) reconcileRefunded(ctx context.Context, r repos, booking *models.Booking, result *CancelResult) error {
	payment, err := r.payments.GetLatestByBookingAndStatusForUpdate(ctx, booking.ID, models.PaymentStatusRefunded)
	if err != nil {
		return notFoundOr(err, "completed payment")
	}

	cancelled, err := r.bookings.UpdateStatusIfCurrent(ctx, booking.ID, models.BookingStatusBooked, models.BookingStatusCancelled)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrAlreadyProcessed
	}
	if err != nil {
		return err
	}

	result.Booking = *cancelled
	result.Reconciled = true
	if payment.RefundID != nil {
		result.RefundID = *payment.RefundID
	}
	s.log.Warn().Int64("booking_id", booking.ID).Int64("payment_id", payment.ID).Msg("booking cancelled against existing refund")
	return nil
}

func (s *PaymentService) sessionStart(ctx context.Context, r repos, booking *models.Booking) (time.Time, error) {
	if booking.ScheduledAt != nil {
		return *booking.ScheduledAt, nil
	}
	if booking.ItemType != models.ItemTypeSession {
		return time.Time{}, invalidInput("booking is not a scheduled session")
	}
	item, err := r.items.GetByID(ctx, booking.ItemID)
	if err != nil {
		return time.Time{}, notFoundOr(err, "item")
	}
	if item.SessionAt == nil {
		return time.Time{}, invalidInput("session has no start time")
	}
	return *item.SessionAt, nil
}

// AbandonCheckout records that the user closed the checkout widget. The pending payment is
// failed and the booking stays a pending draft that CreateOrder can reuse.
func (s *PaymentService) AbandonCheckout(ctx context.Context, caller auth.Caller, bookingID int64) (*models.Booking, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if bookingID <= 0 {
		return nil, invalidInput("booking_id is required")
	}

	r := s.store.read()
	booking, err := r.bookings.GetByID(ctx, bookingID)
	if err != nil {
		return nil, notFoundOr(err, "booking")
	}
	if !caller.Owns(booking.UserID) {
		return nil, ErrForbidden
	}
	if booking.Status != models.BookingStatusPending {
		return booking, nil
	}

	err = s.store.tx(ctx, func(r repos) error {
		payment, err := r.payments.GetLatestByBookingAndStatusForUpdate(ctx, bookingID, models.PaymentStatusPending)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		if err != nil {
			return err
		}
		_, err = r.payments.UpdateStatusIfCurrent(ctx, payment.ID, models.PaymentStatusPending, models.PaymentStatusFailed)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return booking, nil
}

type webhookEvent struct {
	Event   string `json:"event"`
	Payload struct {
		Payment struct {
			Entity struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
			} `json:"entity"`
		} `json:"payment"`
	} `json:"payload"`
}

type WebhookResult struct {
	Event            string `json:"event"`
	Handled          bool   `json:"handled"`
	AlreadyProcessed bool   `json:"alreadyProcessed"`
	DuplicateCharge  bool   `json:"duplicateCharge"`
}

// HandleWebhook applies gateway payment events. Unknown events are acknowledged and ignored.
func (s *PaymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookResult, error) {
	if s.cfg.WebhookSecret == "" {
		return nil, fmt.Errorf("%w: webhook secret not configured", ErrExternalService)
	}
	if err := gateway.VerifyWebhook(s.cfg.WebhookSecret, body, signature); err != nil {
		return nil, ErrSignatureMismatch
	}

	var event webhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, invalidInput("malformed webhook payload")
	}
	result := &WebhookResult{Event: event.Event}
	entity := event.Payload.Payment.Entity

	var next string
	switch event.Event {
	case "payment.captured":
		next = models.PaymentStatusCompleted
	case "payment.failed":
		next = models.PaymentStatusFailed
	default:
		return result, nil
	}
	if entity.OrderID == "" || entity.ID == "" {
		return nil, invalidInput("payment entity is missing ids")
	}

	r := s.store.read()
	payment, err := r.payments.GetByOrderID(ctx, entity.OrderID)
	if err != nil {
		return nil, notFoundOr(err, "payment")
	}

	if next == models.PaymentStatusCompleted {
		_, err = r.payments.MarkCompleted(ctx, payment.ID, entity.ID)
	} else {
		_, err = r.payments.UpdateStatusIfCurrent(ctx, payment.ID, models.PaymentStatusPending, next)
	}
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		result.AlreadyProcessed = true
	case repository.IsUniqueViolation(err):
		// The booking is already paid through another order. The charge stays on the
		// gateway and needs a manual refund.
		result.DuplicateCharge = true
		duplicateCharges.Inc()
		s.log.Error().
			Int64("booking_id", payment.BookingID).
			Int64("payment_id", payment.ID).
			Str("order_id", entity.OrderID).
			Str("gateway_payment_id", entity.ID).
			Msg("duplicate charge captured for an already paid booking")
	case err != nil:
		return nil, err
	}

	result.Handled = true
	s.log.Info().Str("event", event.Event).Int64("payment_id", payment.ID).Bool("already_processed", result.AlreadyProcessed).Msg("payment webhook applied")
	return result, nil
}

func (s *PaymentService) ListBookings(ctx context.Context, caller auth.Caller, status string) ([]models.BookingDetail, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	r := s.store.read()
	bookings, err := r.bookings.List(ctx, repository.BookingListFilter{UserID: caller.UserID, Status: status})
	if err != nil {
		return nil, err
	}

	ids := make([]int64, 0, len(bookings))
	for _, booking := range bookings {
		ids = append(ids, booking.ID)
	}
	payments, err := r.payments.ListByBookingIDs(ctx, ids)
	if err != nil {
		return nil, err
	}

	details := make([]models.BookingDetail, 0, len(bookings))
	for _, booking := range bookings {
		detail := models.BookingDetail{Booking: booking}
		if payment, ok := payments[booking.ID]; ok {
			p := payment
			detail.Payment = &p
		}
		details = append(details, detail)
	}
	return details, nil
}
