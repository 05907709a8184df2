package user

import (
	"errors"
	"time"
)

var ErrUserNotFound = errors.New("user not found")

type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	// Phone is the AA customer identifier root (decrypted by the
	// repository; stored encrypted at rest).
	Phone     string    `json:"-"`
	FCMToken  string    `json:"-"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type CreateParams struct {
	Email        string
	Name         string
	PasswordHash string
	Phone        string
}

func (p CreateParams) Validate() error {
	if p.Email == "" {
		return errors.New("email is required")
	}
	if p.PasswordHash == "" {
		return errors.New("password hash is required")
	}
	if p.Phone == "" {
		return errors.New("phone number is required")
	}
	return nil
}

type UpdateParams struct {
	Name     *string
	Phone    *string
	FCMToken *string
}
