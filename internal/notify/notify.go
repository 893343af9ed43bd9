// Package notify publishes ride and payment events for downstream delivery
// (push, SMS, email). Delivery itself happens elsewhere.
package notify

import (
	"context"
	"time"
)

// Channel is a delivery medium requested for an event.
type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelSMS   Channel = "sms"
	ChannelEmail Channel = "email"
)

// Event is a notification addressed to one user.
type Event struct {
	ID        string         `json:"id"`
	UserID    string         `json:"user_id"`
	Type      string         `json:"type"`
	Title     string         `json:"title"`
	Body      string         `json:"body"`
	Channels  []Channel      `json:"channels"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Publisher hands events to a transport.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
	Close() error
}
