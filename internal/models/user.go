package models

import "time"

const (
	RoleAdmin      = "admin"
	RoleClient     = "client"
	RoleIndividual = "individual"
	RoleCoach      = "coach"
)

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	Role         string    `json:"role"`
	FullName     string    `json:"full_name"`
	TokenVersion int       `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

type PasswordReset struct {
	ID        int64      `json:"id"`
	UserID    int64      `json:"user_id"`
	OTPHash   string     `json:"-"`
	ExpiresAt time.Time  `json:"expires_at"`
	UsedAt    *time.Time `json:"used_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// IsStaffRole reports whether the role may act on conversations it does not own.
func IsStaffRole(role string) bool {
	return role == RoleAdmin || role == RoleCoach
}

func IsValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleClient, RoleIndividual, RoleCoach:
		return true
	}
	return false
}
