package services

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/saeid-a/FinCoachBack/internal/auth"
)

var (
	ErrAuthenticationRequired = errors.New("authentication required")
	ErrForbidden              = errors.New("forbidden")
	ErrInvalidInput           = errors.New("invalid input")
	ErrNotFound               = errors.New("not found")
	ErrExternalService        = errors.New("external service failure")
	ErrSignatureMismatch      = errors.New("payment signature mismatch")
	ErrAlreadyProcessed       = errors.New("already processed")
	ErrInvalidStateTransition = errors.New("invalid state transition")
	ErrConflict               = errors.New("conflict")
	ErrRateLimited            = errors.New("rate limited")
	ErrStorageUnavailable     = errors.New("storage service is not configured")
)

func invalidInput(reason string) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, reason)
}

// notFoundOr maps pgx.ErrNoRows to ErrNotFound and passes other errors through.
func notFoundOr(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %s", ErrNotFound, what)
	}
	return err
}

func externalFailure(err error) error {
	return fmt.Errorf("%w: %v", ErrExternalService, err)
}

func requireCaller(caller auth.Caller) error {
	if !caller.Authenticated() {
		return ErrAuthenticationRequired
	}
	return nil
}
