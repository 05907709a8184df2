package notification

import "context"

// Messenger delivers push notifications to user devices. The Firebase FCM
// client in the infrastructure layer implements it; a nil Messenger on the
// service disables push entirely (stored notifications still work).
type Messenger interface {
	Send(ctx context.Context, token string, title, body string, data map[string]string) error
	SendMulticast(ctx context.Context, tokens []string, title, body string, data map[string]string) error
}
