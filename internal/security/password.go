package security

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultBcryptCost matches the cost the rest of the platform provisions
// stored hashes with.
const DefaultBcryptCost = 12

// HashPassword hashes a password with bcrypt at the given cost factor.
// A cost of 0 falls back to DefaultBcryptCost.
func HashPassword(password string, cost int) ([]byte, error) {
	if cost == 0 {
		cost = DefaultBcryptCost
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	return hash, nil
}

// VerifyPassword compares a plain password against a stored bcrypt hash.
// A wrong password returns (false, nil); a malformed stored hash returns a
// non-nil error so callers can tell the two apart.
func VerifyPassword(password string, hash []byte) (bool, error) {
	err := bcrypt.CompareHashAndPassword(hash, []byte(password))
	if err == nil {
		return true, nil
	}
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	return false, fmt.Errorf("verify password: %w", err)
}
