package security

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"time"
)

const verificationSecretBytes = 16

// verificationPayload is the structured body of an opaque verification
// token. Expiry travels inside the token itself; no server-side token row is
// created.
type verificationPayload struct {
	Token   string `json:"token"`
	Expires string `json:"expires"`
}

// GenerateVerificationToken produces a URL-safe opaque token embedding a
// random secret and an absolute expiry timestamp.
func GenerateVerificationToken(ttl time.Duration) (string, error) {
	buf := make([]byte, verificationSecretBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("generate verification secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(buf)

	payload := verificationPayload{
		Token:   secret,
		Expires: time.Now().UTC().Add(ttl).Format(time.RFC3339Nano),
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode verification token: %w", err)
	}

	return base64.URLEncoding.EncodeToString(data), nil
}

// VerifyTokenExpiration decodes an opaque verification token. It never
// fails hard: any decode or parse problem degrades to (false, ""). A
// well-formed but expired token returns (false, secret) so callers can still
// correlate it against the stored secret.
func VerifyTokenExpiration(token string) (bool, string) {
	data, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return false, ""
	}

	var payload verificationPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return false, ""
	}
	if payload.Token == "" || payload.Expires == "" {
		return false, ""
	}

	expires, err := time.Parse(time.RFC3339Nano, payload.Expires)
	if err != nil {
		return false, ""
	}

	if time.Now().UTC().After(expires) {
		return false, payload.Token
	}
	return true, payload.Token
}
