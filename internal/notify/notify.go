// Package notify delivers out-of-band alerts for messages arriving outside
// the active conversation.
package notify

import "context"

// Notification describes one alert.
type Notification struct {
	// Title is the alert title.
	Title string
	// Body is the alert body, typically the message text.
	Body string
	// AlertKey de-duplicates alerts within a notifier's cooldown window,
	// typically one key per conversation.
	AlertKey string
}

// Notifier delivers notifications. Implementations must be safe for
// concurrent use and should treat delivery as best effort.
type Notifier interface {
	Notify(ctx context.Context, n Notification) error
}
