package models

import (
	"strings"
	"time"

	id "eseva/pkg/domain"
	dErrors "eseva/pkg/domain-errors"
)

// Role is the authorization level carried in session tokens.
type Role string

const (
	RoleUser  Role = "USER"
	RoleAgent Role = "AGENT"
	RoleAdmin Role = "ADMIN"
)

func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToUpper(strings.TrimSpace(s))); r {
	case RoleUser, RoleAgent, RoleAdmin:
		return r, nil
	default:
		return "", dErrors.New(dErrors.CodeInvalidInput, "unknown role")
	}
}

func (r Role) String() string { return string(r) }

// IsStaff reports whether the role may see every application.
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// User is an account keyed by mobile number.
type User struct {
	ID        id.UserID `json:"id"`
	Mobile    string    `json:"mobile"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
}

// LoginSession records one issued OTP. Sessions are never deleted.
type LoginSession struct {
	ID          id.LoginSessionID
	Mobile      string
	OTP         string
	GeneratedAt time.Time
	ExpiresAt   time.Time
	Verified    bool
	VerifiedAt  *time.Time
}

// IsExpired reports whether the OTP can no longer be used at now.
func (s *LoginSession) IsExpired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}

// MarkVerified transitions the session to its terminal state.
func (s *LoginSession) MarkVerified(now time.Time) {
	s.Verified = true
	s.VerifiedAt = &now
}

// VerifyResult is returned by a successful OTP verification.
type VerifyResult struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
	User      *User     `json:"user"`
}
