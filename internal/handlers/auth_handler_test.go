package handlers

import (
	"context"
	"net/http"
	"testing"

	"github.com/saeid-a/FinCoachBack/internal/auth"
	"github.com/saeid-a/FinCoachBack/internal/models"
	"github.com/saeid-a/FinCoachBack/internal/services"
)

type stubAuthService struct {
	session      *services.Session
	err          error
	user         *models.User
	lastRegister services.RegisterInput
	lastEmail    string
	lastScope    string
	lastCode     string
}

func (s *stubAuthService) Register(_ context.Context, input services.RegisterInput) (*services.Session, error) {
	s.lastRegister = input
	return s.session, s.err
}

func (s *stubAuthService) SignInWithPassword(_ context.Context, email, _ string) (*services.Session, error) {
	s.lastEmail = email
	return s.session, s.err
}

func (s *stubAuthService) GetUser(_ context.Context, _ auth.Caller) (*models.User, error) {
	return s.user, s.err
}

func (s *stubAuthService) Refresh(_ context.Context, _ auth.Caller) (*services.Session, error) {
	return s.session, s.err
}

func (s *stubAuthService) SignOut(_ context.Context, _ auth.Caller, scope string) error {
	s.lastScope = scope
	return s.err
}

func (s *stubAuthService) RequestPasswordReset(_ context.Context, email string) error {
	s.lastEmail = email
	return s.err
}

func (s *stubAuthService) ResetPassword(_ context.Context, email, code, _ string) error {
	s.lastEmail = email
	s.lastCode = code
	return s.err
}

func TestRegisterReturnsSession(t *testing.T) {
	service := &stubAuthService{session: &services.Session{
		Token: "jwt",
		User:  models.User{ID: 1, Email: "asha@example.com", Role: models.RoleIndividual},
	}}
	app := newTestApp(auth.Caller{})
	app.Post("/api/v1/auth/register", NewAuthHandler(service).Register)

	resp, body := doJSON(t, app, http.MethodPost, "/api/v1/auth/register",
		`{"email": "asha@example.com", "password": "longenough", "full_name": "Asha"}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}
	if body["token"] != "jwt" {
		t.Fatalf("unexpected body %v", body)
	}
	if service.lastRegister.FullName != "Asha" {
		t.Fatalf("unexpected input %+v", service.lastRegister)
	}
}

func TestRegisterErrors(t *testing.T) {
	cases := map[string]struct {
		payload string
		err     error
		want    int
	}{
		"short password": {payload: `{"email":"a@b.co","password":"short"}`, want: http.StatusBadRequest},
		"duplicate":      {payload: `{"email":"a@b.co","password":"longenough"}`, err: services.ErrConflict, want: http.StatusConflict},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			app := newTestApp(auth.Caller{})
			app.Post("/r", NewAuthHandler(&stubAuthService{err: tc.err}).Register)

			resp, _ := doJSON(t, app, http.MethodPost, "/r", tc.payload)
			if resp.StatusCode != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, resp.StatusCode)
			}
		})
	}
}

func TestLoginInvalidCredentials(t *testing.T) {
	app := newTestApp(auth.Caller{})
	app.Post("/login", NewAuthHandler(&stubAuthService{err: services.ErrInvalidCredentials}).Login)

	resp, body := doJSON(t, app, http.MethodPost, "/login", `{"email":"a@b.co","password":"whatever1"}`)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.StatusCode)
	}
	if body["error"] != "Invalid email or password" {
		t.Fatalf("unexpected error %v", body["error"])
	}
}

func TestSignOutScopes(t *testing.T) {
	service := &stubAuthService{}
	app := newTestApp(clientCaller)
	app.Post("/logout", NewAuthHandler(service).SignOut)

	resp, _ := doJSON(t, app, http.MethodPost, "/logout", `{"scope": "global"}`)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	if service.lastScope != services.SignOutGlobal {
		t.Fatalf("expected global scope, got %q", service.lastScope)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/logout", "")
	if resp.StatusCode != http.StatusNoContent || service.lastScope != "" {
		t.Fatalf("expected default scope, got %d %q", resp.StatusCode, service.lastScope)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/logout", `{"scope": "everywhere"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
}

func TestPasswordResetEndpoints(t *testing.T) {
	service := &stubAuthService{}
	app := newTestApp(auth.Caller{})
	handler := NewAuthHandler(service)
	app.Post("/forgot", handler.RequestPasswordReset)
	app.Post("/reset", handler.ResetPassword)

	resp, _ := doJSON(t, app, http.MethodPost, "/forgot", `{"email":"a@b.co"}`)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	resp, _ = doJSON(t, app, http.MethodPost, "/reset", `{"email":"a@b.co","code":"12ab56","password":"newpassword"}`)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for non-numeric code, got %d", resp.StatusCode)
	}

	service.err = services.ErrInvalidResetCode
	resp, body := doJSON(t, app, http.MethodPost, "/reset", `{"email":"a@b.co","code":"123456","password":"newpassword"}`)
	if resp.StatusCode != http.StatusBadRequest || body["error"] != "Invalid or expired reset code" {
		t.Fatalf("unexpected response %d %v", resp.StatusCode, body)
	}
	if service.lastCode != "123456" {
		t.Fatalf("expected code to reach service, got %q", service.lastCode)
	}
}
