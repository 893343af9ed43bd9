// Package gateway declares the card payment gateway contract shared by the
// provider adapters.
package gateway

import (
	"context"
	"errors"
)

// EventChargeSucceeded is the normalised type of a successful charge event.
const EventChargeSucceeded = "charge.success"

// ErrInvalidSignature is returned when a webhook payload fails verification.
var ErrInvalidSignature = errors.New("gateway: invalid webhook signature")

// InitializeRequest describes a hosted transaction to open.
type InitializeRequest struct {
	Email       string
	AmountMinor int64
	Currency    string
	Metadata    map[string]string
}

// Initialization is the gateway's answer to InitializeRequest.
type Initialization struct {
	Reference        string
	AuthorizationURL string
}

// Verification is the gateway's view of a transaction.
type Verification struct {
	Reference   string
	Success     bool
	Status      string
	AmountMinor int64
}

// WebhookEvent is a verified, provider-neutral webhook notification.
type WebhookEvent struct {
	Type        string
	Reference   string
	Succeeded   bool
	AmountMinor int64
}

// Client is a card payment gateway.
type Client interface {
	// Initialize opens a hosted transaction for the payer.
	Initialize(ctx context.Context, req InitializeRequest) (*Initialization, error)

	// Verify fetches the status of a transaction by reference.
	Verify(ctx context.Context, reference string) (*Verification, error)

	// ParseWebhook verifies the signature over the raw body before decoding
	// it. A mismatch returns ErrInvalidSignature.
	ParseWebhook(payload []byte, signature string) (*WebhookEvent, error)

	// SignatureHeader names the HTTP header carrying the webhook signature.
	SignatureHeader() string
}
