package service

import (
	"context"

	"profilehub/api/internal/models"
)

// Collaborator contracts. Production wiring passes the pgx repositories, the
// minio-backed object store and the redis rate limiter; tests substitute
// deterministic fakes.

type UserStore interface {
	Create(ctx context.Context, user models.User) error
	GetByID(ctx context.Context, id string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	SetProfilePictureURL(ctx context.Context, id string, url *string) (models.User, error)
	SetVerificationSecret(ctx context.Context, id string, secret string) error
	MarkEmailVerified(ctx context.Context, id string) error
}

type SessionStore interface {
	Create(ctx context.Context, session models.Session) error
	FindByRefreshHash(ctx context.Context, userID string, hash []byte) (models.Session, error)
	DeleteByID(ctx context.Context, id string) error
	CountByUser(ctx context.Context, userID string) (int, error)
	DeleteOldestSessions(ctx context.Context, userID string, keep int) error
}

type BlobStore interface {
	Upload(ctx context.Context, objectName string, data []byte, contentType string) error
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, objectName string) bool
	PublicURL(objectName string) string
	PresignedURL(ctx context.Context, objectName string) (string, error)
}

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}
