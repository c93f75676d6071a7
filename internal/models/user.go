package models

import "time"

type UserRole string

const (
	UserRoleUser    UserRole = "user"
	UserRoleManager UserRole = "manager"
	UserRoleAdmin   UserRole = "admin"
)

// Elevated roles may act on any user's profile.
func (r UserRole) Elevated() bool {
	return r == UserRoleAdmin || r == UserRoleManager
}

type User struct {
	ID                 string
	Email              string
	PasswordHash       []byte
	Nickname           string
	Role               UserRole
	EmailVerified      bool
	VerificationSecret *string
	ProfilePictureURL  *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type Session struct {
	ID               string
	UserID           string
	RefreshTokenHash []byte
	IPAddress        string
	UserAgent        string
	CreatedAt        time.Time
	ExpiresAt        time.Time
}
