package models

// Identity is the authenticated caller as resolved by the auth middleware.
// The middleware normalizes the token subject (user id or email) to exactly
// one canonical user id, so downstream authorization compares a single field.
type Identity struct {
	UserID string
	Email  string
	Role   UserRole
}

func (i Identity) Elevated() bool {
	return i.Role.Elevated()
}
