package notification

import (
	"errors"
	"time"
)

// Notification categories
const (
	CategoryConsents  = "consents"
	CategoryPortfolio = "portfolio"
	CategoryGeneral   = "general"
)

var validCategories = map[string]struct{}{
	CategoryConsents:  {},
	CategoryPortfolio: {},
	CategoryGeneral:   {},
}

// IsValidCategory checks if the category is a known notification category.
func IsValidCategory(category string) bool {
	_, ok := validCategories[category]
	return ok
}

// Domain errors
var (
	ErrNotificationNotFound = errors.New("notification not found")
	ErrInvalidCategory      = errors.New("invalid notification category")
)

// Notification represents a stored in-app notification record. The push
// delivery is fire-and-forget; this record is the durable copy.
type Notification struct {
	ID        string            `json:"id"`
	UserID    int64             `json:"-"`
	Title     string            `json:"title"`
	Message   string            `json:"message"`
	Category  string            `json:"category"`
	Data      map[string]string `json:"data"`
	OpenedAt  *time.Time        `json:"openedAt"`
	CreatedAt time.Time         `json:"createdAt"`
}

// CreateParams contains parameters for storing a notification.
type CreateParams struct {
	UserID   int64
	Title    string
	Message  string
	Category string
	Data     map[string]string
}

func (p CreateParams) Validate() error {
	if p.UserID <= 0 {
		return errors.New("valid user ID is required")
	}
	if p.Title == "" {
		return errors.New("title is required")
	}
	if !IsValidCategory(p.Category) {
		return ErrInvalidCategory
	}
	return nil
}
