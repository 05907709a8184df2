package notification

import (
	"context"
	"errors"
	"log"

	"nivesh/internal/domain/user"
)

// Service contains the business logic for notification operations.
type Service struct {
	repo      Repository
	users     user.Repository
	messenger Messenger
}

// NewService creates a new notification service. messenger may be nil, in
// which case notifications are stored but never pushed.
func NewService(repo Repository, users user.Repository, messenger Messenger) *Service {
	return &Service{repo: repo, users: users, messenger: messenger}
}

// Notify stores a notification record and pushes it to the user's device.
// The stored record is the source of truth; a push failure (stale token,
// FCM outage) is logged and swallowed.
func (s *Service) Notify(ctx context.Context, userID int64, category, title, body string, data map[string]string) error {
	n, err := s.repo.Create(ctx, CreateParams{
		UserID:   userID,
		Title:    title,
		Message:  body,
		Category: category,
		Data:     data,
	})
	if err != nil {
		return err
	}

	if s.messenger == nil {
		return nil
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil || u.FCMToken == "" {
		return nil
	}
	if data == nil {
		data = map[string]string{}
	}
	data["notificationId"] = n.ID
	data["category"] = category
	if err := s.messenger.Send(ctx, u.FCMToken, title, body, data); err != nil {
		log.Printf("Failed to push notification %s to user %d: %v", n.ID, userID, err)
	}
	return nil
}

// List returns paginated notifications for a user.
func (s *Service) List(ctx context.Context, userID int64, page, perPage int) ([]*Notification, int, error) {
	if userID <= 0 {
		return nil, 0, errors.New("valid user ID is required")
	}
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > 100 {
		perPage = 20
	}
	return s.repo.ListByUserID(ctx, userID, page, perPage)
}

// MarkOpened marks a notification as opened by the authenticated user.
func (s *Service) MarkOpened(ctx context.Context, notificationID string, userID int64) error {
	if notificationID == "" {
		return errors.New("notification ID is required")
	}
	if userID <= 0 {
		return errors.New("valid user ID is required")
	}
	return s.repo.MarkOpened(ctx, notificationID, userID)
}
