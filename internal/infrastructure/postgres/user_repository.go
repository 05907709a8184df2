package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"nivesh/internal/domain/user"
	"nivesh/internal/infrastructure/crypto"
)

// UserRepository persists users. Phone numbers are the Account Aggregator
// customer identifier and are encrypted at rest; callers always see
// plaintext.
type UserRepository struct {
	db        *DB
	encryptor *crypto.Encryptor
}

func NewUserRepository(db *DB, encryptor *crypto.Encryptor) *UserRepository {
	return &UserRepository{db: db, encryptor: encryptor}
}

func (r *UserRepository) Create(ctx context.Context, params user.CreateParams) (*user.User, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	encPhone, err := r.encryptor.Encrypt(params.Phone)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt phone: %w", err)
	}

	query := `
		INSERT INTO users (email, name, password_hash, phone)
		VALUES ($1, $2, $3, $4)
		RETURNING id, email, name, password_hash, phone, COALESCE(fcm_token, ''), created_at, updated_at
	`

	u, err := r.scanUser(r.db.QueryRowContext(ctx, query, params.Email, params.Name, params.PasswordHash, encPhone))
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByID(ctx context.Context, id int64) (*user.User, error) {
	query := `
		SELECT id, email, name, password_hash, phone, COALESCE(fcm_token, ''), created_at, updated_at
		FROM users
		WHERE id = $1
	`
	u, err := r.scanUser(r.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return u, nil
}

func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*user.User, error) {
	query := `
		SELECT id, email, name, password_hash, phone, COALESCE(fcm_token, ''), created_at, updated_at
		FROM users
		WHERE email = $1
	`
	u, err := r.scanUser(r.db.QueryRowContext(ctx, query, email))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user by email: %w", err)
	}
	return u, nil
}

func (r *UserRepository) Update(ctx context.Context, userID int64, params user.UpdateParams) (*user.User, error) {
	var encPhone *string
	if params.Phone != nil {
		enc, err := r.encryptor.Encrypt(*params.Phone)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt phone: %w", err)
		}
		encPhone = &enc
	}

	query := `
		UPDATE users
		SET name       = COALESCE($2, name),
		    phone      = COALESCE($3, phone),
		    fcm_token  = COALESCE($4, fcm_token),
		    updated_at = NOW()
		WHERE id = $1
		RETURNING id, email, name, password_hash, phone, COALESCE(fcm_token, ''), created_at, updated_at
	`
	u, err := r.scanUser(r.db.QueryRowContext(ctx, query, userID, params.Name, encPhone, params.FCMToken))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, user.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	return u, nil
}

// ClearFCMToken drops a stale device token wherever it appears. Called by the
// FCM client when the provider reports the token unregistered.
func (r *UserRepository) ClearFCMToken(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	_, err := r.db.ExecContext(ctx, `UPDATE users SET fcm_token = NULL, updated_at = NOW() WHERE fcm_token = $1`, token)
	if err != nil {
		return fmt.Errorf("failed to clear FCM token: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func (r *UserRepository) scanUser(row rowScanner) (*user.User, error) {
	var u user.User
	var encPhone string
	err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash, &encPhone, &u.FCMToken, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	phone, err := r.encryptor.Decrypt(encPhone)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt phone: %w", err)
	}
	u.Phone = phone
	return &u, nil
}
