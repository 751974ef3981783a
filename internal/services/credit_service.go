package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/notify"
	"github.com/saeid-a/FinCoachBack/internal/policy"
	"github.com/saeid-a/FinCoachBack/internal/repository"
)

type CreditService struct {
	store      store
	notifier   *notify.Dispatcher
	adminEmail string
	log        zerolog.Logger
}

func NewCreditService(db DB, notifier *notify.Dispatcher, adminEmail string, log zerolog.Logger) *CreditService {
	return &CreditService{
		store:      newStore(db),
		notifier:   notifier,
		adminEmail: adminEmail,
		log:        log.With().Str("service", "credit").Logger(),
	}
}

type CreditRequestInput struct {
	Amount      int64
	ServiceType string
	Reason      string
}

func (s *CreditService) RequestCredits(ctx context.Context, caller auth.Caller, input CreditRequestInput) (*models.CreditRequest, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	serviceType := strings.TrimSpace(input.ServiceType)
	if input.Amount <= 0 {
		return nil, invalidInput("amount must be positive")
	}
	if serviceType == "" {
		return nil, invalidInput("service_type is required")
	}

	request, err := s.store.read().credits.CreateRequest(ctx, repository.CreateCreditRequestInput{
		UserID:      caller.UserID,
		Amount:      input.Amount,
		ServiceType: serviceType,
		Reason:      strings.TrimSpace(input.Reason),
	})
	if err != nil {
		return nil, err
	}

	s.alertAdmins(ctx, caller, request)
	return request, nil
}

func (s *CreditService) alertAdmins(ctx context.Context, caller auth.Caller, request *models.CreditRequest) {
	if s.notifier == nil {
		return
	}

	recipients := make([]string, 0, 4)
	seen := make(map[string]bool)
	add := func(email string) {
		email = strings.ToLower(strings.TrimSpace(email))
		if email != "" && !seen[email] {
			seen[email] = true
			recipients = append(recipients, email)
		}
	}
	add(s.adminEmail)

	admins, err := s.store.read().users.ListByRole(ctx, models.RoleAdmin)
	if err != nil {
		s.log.Warn().Err(err).Msg("list admins for credit alert")
	}
	for _, admin := range admins {
		add(admin.Email)
	}
	if len(recipients) == 0 {
		return
	}

	html, err := notify.Render("credit_requested", map[string]any{
		"Email":       caller.Email,
		"ServiceType": request.ServiceType,
		"Amount":      request.Amount,
		"Reason":      request.Reason,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("request_id", request.ID).Msg("render credit alert")
		return
	}
	s.notifier.Dispatch(notify.Email{
		To:      recipients,
		Subject: "New credit request",
		HTML:    html,
	})
}

func (s *CreditService) ListCreditRequests(ctx context.Context, caller auth.Caller, status string) ([]models.CreditRequest, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	return s.store.read().credits.ListRequests(ctx, repository.CreditRequestFilter{Status: status})
}

func (s *CreditService) ListMyRequests(ctx context.Context, caller auth.Caller) ([]models.CreditRequest, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	userID := caller.UserID
	return s.store.read().credits.ListRequests(ctx, repository.CreditRequestFilter{UserID: &userID})
}

// Balances returns the caller's credits keyed by service type.
func (s *CreditService) Balances(ctx context.Context, caller auth.Caller) (map[string]int64, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	rows, err := s.store.read().credits.ListBalances(ctx, caller.UserID)
	if err != nil {
		return nil, err
	}
	balances := make(map[string]int64, len(rows))
	for _, row := range rows {
		balances[row.ServiceType] = row.Balance
	}
	return balances, nil
}

type ReviewInput struct {
	RequestID int64
	Decision  policy.Decision
	Notes     string
}

type ReviewResult struct {
	Request *models.CreditRequest `json:"request"`
	Balance *models.CreditBalance `json:"balance,omitempty"`
}

// Review decides a pending request. Approval adds exactly the requested amount to the
// user's balance for that service type in the same transaction; decisions are final.
func (s *CreditService) Review(ctx context.Context, caller auth.Caller, input ReviewInput) (*ReviewResult, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	if !caller.IsAdmin() {
		return nil, ErrForbidden
	}
	if input.RequestID <= 0 {
		return nil, invalidInput("request_id is required")
	}
	status, err := input.Decision.Status()
	if err != nil {
		return nil, invalidInput("decision must be approve or reject")
	}

	var notes *string
	if trimmed := strings.TrimSpace(input.Notes); trimmed != "" {
		notes = &trimmed
	}

	var result ReviewResult
	err = s.store.tx(ctx, func(r repos) error {
		request, err := r.credits.GetRequest(ctx, input.RequestID)
		if err != nil {
			return notFoundOr(err, "credit request")
		}

		delta, err := policy.CreditDelta(*request, input.Decision)
		if errors.Is(err, policy.ErrAlreadyDecided) {
			return fmt.Errorf("%w: request is %s", ErrInvalidStateTransition, request.Status)
		}
		if err != nil {
			return err
		}

		decided, err := r.credits.Decide(ctx, request.ID, status, caller.UserID, notes)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrAlreadyProcessed
		}
		if err != nil {
			return err
		}
		result.Request = decided

		if delta > 0 {
			result.Balance, err = r.credits.AddToBalance(ctx, decided.UserID, decided.ServiceType, delta)
			return err
		}
		return nil
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		return nil, fmt.Errorf("%w: request was decided concurrently", ErrInvalidStateTransition)
	}
	if err != nil {
		return nil, err
	}

	creditDecisions.WithLabelValues(string(input.Decision)).Inc()
	s.notifyRequester(ctx, result.Request)
	return &result, nil
}

func (s *CreditService) notifyRequester(ctx context.Context, request *models.CreditRequest) {
	if s.notifier == nil {
		return
	}
	user, err := s.store.read().users.GetByID(ctx, request.UserID)
	if err != nil {
		s.log.Warn().Err(err).Int64("user_id", request.UserID).Msg("load requester for credit decision email")
		return
	}

	notes := ""
	if request.ReviewerNotes != nil {
		notes = *request.ReviewerNotes
	}
	html, err := notify.Render("credit_decided", map[string]any{
		"Amount":      request.Amount,
		"ServiceType": request.ServiceType,
		"Status":      request.Status,
		"Notes":       notes,
	})
	if err != nil {
		s.log.Error().Err(err).Int64("request_id", request.ID).Msg("render credit decision")
		return
	}
	s.notifier.Dispatch(notify.Email{
		To:      []string{user.Email},
		Subject: "Your credit request was " + request.Status,
		HTML:    html,
	})
}
