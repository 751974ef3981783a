package policy

import (
	"errors"

	"github.com/saeid-a/FinCoachBack/internal/models"
)

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

var (
	ErrAlreadyDecided  = errors.New("credit request already decided")
	ErrUnknownDecision = errors.New("unknown credit decision")
)

// Status maps the decision to the request's final status.
func (d Decision) Status() (string, error) {
	switch d {
	case DecisionApprove:
		return models.CreditStatusApproved, nil
	case DecisionReject:
		return models.CreditStatusRejected, nil
	}
	return "", ErrUnknownDecision
}

// CreditDelta is the balance change a decision produces: the full requested amount on
// approval, nothing on rejection. Only pending requests can be decided.
func CreditDelta(request models.CreditRequest, decision Decision) (int64, error) {
	if request.Status != models.CreditStatusPending {
		return 0, ErrAlreadyDecided
	}
	switch decision {
	case DecisionApprove:
		return request.Amount, nil
	case DecisionReject:
		return 0, nil
	}
	return 0, ErrUnknownDecision
}
