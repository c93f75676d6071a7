package repository

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"profilehub/api/internal/models"
)

var ErrUserNotFound = errors.New("user not found")

const userColumns = `id, email, password_hash, nickname, role, email_verified, verification_secret, profile_picture_url, created_at, updated_at`

type UserRepository struct {
	pool *pgxpool.Pool
}

func NewUserRepository(pool *pgxpool.Pool) *UserRepository {
	return &UserRepository{pool: pool}
}

func (r *UserRepository) Create(ctx context.Context, user models.User) error {
	const query = `
		INSERT INTO users (
			id, email, password_hash, nickname, role, email_verified, verification_secret, profile_picture_url, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW()
		)
	`

	_, err := r.pool.Exec(ctx, query,
		user.ID,
		user.Email,
		user.PasswordHash,
		user.Nickname,
		user.Role,
		user.EmailVerified,
		user.VerificationSecret,
		user.ProfilePictureURL,
	)
	return err
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, email))
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return r.scanUser(r.pool.QueryRow(ctx, query, id))
}

// SetProfilePictureURL persists the profile picture URL and returns the
// updated row. A nil url clears the field.
func (r *UserRepository) SetProfilePictureURL(ctx context.Context, id string, url *string) (models.User, error) {
	const query = `
		UPDATE users SET profile_picture_url = $2, updated_at = NOW()
		WHERE id = $1
		RETURNING ` + userColumns + `
	`
	return r.scanUser(r.pool.QueryRow(ctx, query, id, url))
}

func (r *UserRepository) SetVerificationSecret(ctx context.Context, id string, secret string) error {
	const query = `
		UPDATE users SET verification_secret = $2, email_verified = FALSE, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id, secret)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) MarkEmailVerified(ctx context.Context, id string) error {
	const query = `
		UPDATE users SET email_verified = TRUE, verification_secret = NULL, updated_at = NOW()
		WHERE id = $1
	`
	cmd, err := r.pool.Exec(ctx, query, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrUserNotFound
	}
	return nil
}

func (r *UserRepository) scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	if err := row.Scan(
		&user.ID,
		&user.Email,
		&user.PasswordHash,
		&user.Nickname,
		&user.Role,
		&user.EmailVerified,
		&user.VerificationSecret,
		&user.ProfilePictureURL,
		&user.CreatedAt,
		&user.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}
