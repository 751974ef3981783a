// Package auth carries the authenticated caller through service calls.
package auth

import "github.com/saeid-a/FinCoachBack/internal/models"

// LocalsKey is the fiber locals key the auth middleware stores the Caller under.
const LocalsKey = "caller"

// Caller is resolved once per request by the auth middleware and passed explicitly to
// every service method that acts on behalf of a user.
type Caller struct {
	UserID int64
	Role   string
	Email  string
}

func (c Caller) Authenticated() bool {
	return c.UserID > 0 && c.Role != ""
}

func (c Caller) IsAdmin() bool {
	return c.Role == models.RoleAdmin
}

func (c Caller) IsStaff() bool {
	return models.IsStaffRole(c.Role)
}

// Owns reports whether the caller may act on a resource owned by userID.
func (c Caller) Owns(userID int64) bool {
	return c.Authenticated() && c.UserID == userID
}
