package services

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"net/mail"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/rs/zerolog"
	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/notify"
	"github.com/saeid-a/FinCoachBack/internal/repository"
	"github.com/saeid-a/FinCoachBack/pkg/utils"
)

const (
	minPasswordLength = 8
	resetCodeTTL      = 15 * time.Minute
)

var (
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidResetCode   = errors.New("invalid or expired reset code")
	ErrTokenRevoked       = errors.New("token has been revoked")
)

type AuthService struct {
	store    store
	notifier *notify.Dispatcher
	secret   string
	ttl      time.Duration
	log      zerolog.Logger
	now      func() time.Time
	code     func() (string, error)
}

func NewAuthService(db DB, notifier *notify.Dispatcher, secret string, ttl time.Duration, log zerolog.Logger) *AuthService {
	return &AuthService{
		store:    newStore(db),
		notifier: notifier,
		secret:   secret,
		ttl:      ttl,
		log:      log.With().Str("service", "auth").Logger(),
		now:      time.Now,
		code:     randomCode,
	}
}

type RegisterInput struct {
	Email    string
	Password string
	Role     string
	FullName string
}

type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func normalizeEmail(raw string) (string, error) {
	parsed, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return "", invalidInput("invalid email format")
	}
	return strings.ToLower(parsed.Address), nil
}

func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*Session, error) {
	email, err := normalizeEmail(input.Email)
	if err != nil {
		return nil, err
	}
	if len(input.Password) < minPasswordLength {
		return nil, invalidInput("password must be at least 8 characters")
	}
	role := strings.TrimSpace(input.Role)
	if role == "" {
		role = models.RoleIndividual
	}
	// Staff accounts are provisioned out of band.
	if role != models.RoleIndividual && role != models.RoleClient {
		return nil, invalidInput("invalid role")
	}

	hashed, err := utils.HashPassword(input.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &models.User{
		Email:        email,
		PasswordHash: hashed,
		Role:         role,
		FullName:     strings.TrimSpace(input.FullName),
	}
	if err := s.store.read().users.CreateUser(ctx, user); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, fmt.Errorf("%w: email already exists", ErrConflict)
		}
		return nil, err
	}

	return s.issue(user)
}

func (s *AuthService) SignInWithPassword(ctx context.Context, email, password string) (*Session, error) {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return nil, err
	}

	user, err := s.store.read().users.GetByEmail(ctx, normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.CheckPassword(password, user.PasswordHash) {
		return nil, ErrInvalidCredentials
	}
	return s.issue(user)
}

func (s *AuthService) issue(user *models.User) (*Session, error) {
	token, err := utils.IssueToken(utils.TokenInput{
		UserID:  strconv.FormatInt(user.ID, 10),
		Role:    user.Role,
		Email:   user.Email,
		Version: user.TokenVersion,
	}, s.secret, s.ttl)
	if err != nil {
		return nil, fmt.Errorf("issue token: %w", err)
	}
	return &Session{Token: token, User: *user}, nil
}

// Authenticate validates a bearer token and resolves the caller. Tokens minted before the
// user's last global sign-out or password change are rejected.
func (s *AuthService) Authenticate(ctx context.Context, token string) (auth.Caller, error) {
	claims, err := utils.ValidateToken(token, s.secret)
	if err != nil {
		return auth.Caller{}, ErrAuthenticationRequired
	}
	userID, err := strconv.ParseInt(claims.UserID, 10, 64)
	if err != nil || userID <= 0 {
		return auth.Caller{}, ErrAuthenticationRequired
	}

	version, err := s.store.read().users.GetTokenVersion(ctx, userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return auth.Caller{}, ErrAuthenticationRequired
	}
	if err != nil {
		return auth.Caller{}, err
	}
	if version != claims.Version {
		return auth.Caller{}, ErrTokenRevoked
	}
	return auth.Caller{UserID: userID, Role: claims.Role, Email: claims.Email}, nil
}

func (s *AuthService) GetUser(ctx context.Context, caller auth.Caller) (*models.User, error) {
	if err := requireCaller(caller); err != nil {
		return nil, err
	}
	user, err := s.store.read().users.GetByID(ctx, caller.UserID)
	if err != nil {
		return nil, notFoundOr(err, "user")
	}
	return user, nil
}

// Refresh issues a fresh token for a caller whose current token is still valid.
func (s *AuthService) Refresh(ctx context.Context, caller auth.Caller) (*Session, error) {
	user, err := s.GetUser(ctx, caller)
	if err != nil {
		return nil, err
	}
	return s.issue(user)
}

const (
	SignOutLocal  = "local"
	SignOutGlobal = "global"
)

// SignOut with the global scope revokes every token issued to the user. Local sign-out is
// the client dropping its token; the server has nothing to record.
func (s *AuthService) SignOut(ctx context.Context, caller auth.Caller, scope string) error {
	if err := requireCaller(caller); err != nil {
		return err
	}
	switch scope {
	case "", SignOutLocal:
		return nil
	case SignOutGlobal:
		_, err := s.store.read().users.BumpTokenVersion(ctx, caller.UserID)
		return notFoundOr(err, "user")
	}
	return invalidInput("scope must be local or global")
}

// RequestPasswordReset emails a one-time code. Unknown emails succeed silently so the
// endpoint cannot be used to probe for accounts.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}

	r := s.store.read()
	user, err := r.users.GetByEmail(ctx, normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		s.log.Info().Str("email", normalized).Msg("password reset for unknown email")
		return nil
	}
	if err != nil {
		return err
	}

	code, err := s.code()
	if err != nil {
		return fmt.Errorf("generate reset code: %w", err)
	}
	hashed, err := utils.HashPassword(code)
	if err != nil {
		return fmt.Errorf("hash reset code: %w", err)
	}
	if _, err := r.resets.Create(ctx, user.ID, hashed, s.now().Add(resetCodeTTL)); err != nil {
		return err
	}

	html, err := notify.Render("password_reset", map[string]any{
		"Code":    code,
		"Minutes": int(resetCodeTTL.Minutes()),
	})
	if err != nil {
		return err
	}
	s.notifier.Dispatch(notify.Email{
		To:      []string{user.Email},
		Subject: "Your password reset code",
		HTML:    html,
	})
	return nil
}

func (s *AuthService) ResetPassword(ctx context.Context, email, code, newPassword string) error {
	normalized, err := normalizeEmail(email)
	if err != nil {
		return err
	}
	if len(newPassword) < minPasswordLength {
		return invalidInput("password must be at least 8 characters")
	}

	hashed, err := utils.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	return s.store.tx(ctx, func(r repos) error {
		user, err := r.users.GetByEmail(ctx, normalized)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidResetCode
		}
		if err != nil {
			return err
		}

		reset, err := r.resets.GetLatestActive(ctx, user.ID, s.now())
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrInvalidResetCode
		}
		if err != nil {
			return err
		}
		if !utils.CheckPassword(strings.TrimSpace(code), reset.OTPHash) {
			return ErrInvalidResetCode
		}

		if err := r.resets.MarkUsed(ctx, reset.ID); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return ErrInvalidResetCode
			}
			return err
		}
		return r.users.UpdatePassword(ctx, user.ID, hashed)
	})
}

func randomCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
