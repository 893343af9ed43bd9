// Package stripe is a gateway.Client backed by Stripe Checkout.
package stripe

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
	stripe "github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"
	"github.com/stripe/stripe-go/v84/webhook"

	"swiftdrop/internal/gateway"
)

// SignatureHeader carries the Stripe webhook signature.
const SignatureHeader = "Stripe-Signature"

const eventCheckoutCompleted = "checkout.session.completed"

var _ gateway.Client = (*Client)(nil)

// Client opens Checkout Sessions; the session ID is the payment reference.
type Client struct {
	webhookSecret string
	successURL    string
	cancelURL     string
}

// New configures stripe-go with the secret key.
func New(secretKey, webhookSecret, successURL, cancelURL string) *Client {
	stripe.Key = secretKey
	return &Client{
		webhookSecret: webhookSecret,
		successURL:    successURL,
		cancelURL:     cancelURL,
	}
}

// Initialize creates a one-line-item Checkout Session for the fare.
func (c *Client) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Initialization, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(req.Email),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency:   stripe.String(strings.ToLower(req.Currency)),
					UnitAmount: stripe.Int64(req.AmountMinor),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name: stripe.String("Ride fare"),
					},
				},
				Quantity: stripe.Int64(1),
			},
		},
	}
	if c.successURL != "" {
		params.SuccessURL = stripe.String(c.successURL)
	}
	if c.cancelURL != "" {
		params.CancelURL = stripe.String(c.cancelURL)
	}
	if rideID := req.Metadata["ride_id"]; rideID != "" {
		params.ClientReferenceID = stripe.String(rideID)
	}
	for k, v := range req.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	s, err := session.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe create checkout session: %w", err)
	}
	return &gateway.Initialization{Reference: s.ID, AuthorizationURL: s.URL}, nil
}

// Verify fetches the Checkout Session and reports whether it is paid.
func (c *Client) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	s, err := session.Get(reference, params)
	if err != nil {
		return nil, fmt.Errorf("stripe get checkout session: %w", err)
	}
	return &gateway.Verification{
		Reference:   s.ID,
		Success:     s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		Status:      string(s.PaymentStatus),
		AmountMinor: s.AmountTotal,
	}, nil
}

// ParseWebhook verifies the Stripe-Signature header and maps completed
// Checkout Sessions to charge events.
func (c *Client) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	event, err := webhook.ConstructEventWithOptions(payload, signature, c.webhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}

	if string(event.Type) != eventCheckoutCompleted {
		return &gateway.WebhookEvent{Type: string(event.Type)}, nil
	}

	var s stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &s); err != nil {
		return nil, fmt.Errorf("decode checkout session: %w", err)
	}
	return &gateway.WebhookEvent{
		Type:        gateway.EventChargeSucceeded,
		Reference:   s.ID,
		Succeeded:   s.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid,
		AmountMinor: s.AmountTotal,
	}, nil
}

// SignatureHeader returns the webhook signature header name.
func (c *Client) SignatureHeader() string { return SignatureHeader }
