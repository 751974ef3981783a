package services

import (
	"context"
	"strings"

	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/notify"
)

// InquiryService forwards contact-form submissions to the admin inbox.
type InquiryService struct {
	notifier   *notify.Dispatcher
	adminEmail string
	log        zerolog.Logger
}

func NewInquiryService(notifier *notify.Dispatcher, adminEmail string, log zerolog.Logger) *InquiryService {
	return &InquiryService{notifier: notifier, adminEmail: adminEmail, log: log.With().Str("service", "inquiry").Logger()}
}

type InquiryInput struct {
	Name    string
	Email   string
	Phone   string
	Message string
}

func (s *InquiryService) Submit(_ context.Context, input InquiryInput) error {
	name := strings.TrimSpace(input.Name)
	message := strings.TrimSpace(input.Message)
	if name == "" || message == "" {
		return invalidInput("name and message are required")
	}
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return err
	}
	if s.adminEmail == "" {
		s.log.Warn().Str("email", email).Msg("inquiry received but no admin inbox configured")
		return nil
	}

	html, err := notify.Render("inquiry", map[string]any{
		"Name":    name,
		"Email":   email,
		"Phone":   strings.TrimSpace(input.Phone),
		"Message": message,
	})
	if err != nil {
		return err
	}
	s.notifier.Dispatch(notify.Email{
		To:      []string{s.adminEmail},
		Subject: "New inquiry from " + name,
		HTML:    html,
	})
	return nil
}
