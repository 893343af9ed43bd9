// Package paystack is a gateway.Client for the Paystack transactions API.
package paystack

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"

	"swiftdrop/internal/gateway"
)

// SignatureHeader carries the hex HMAC-SHA512 of the webhook body.
const SignatureHeader = "x-paystack-signature"

const defaultBaseURL = "https://api.paystack.co"

var _ gateway.Client = (*Client)(nil)

// Client talks to the Paystack REST API.
type Client struct {
	baseURL     string
	secretKey   string
	callbackURL string
	httpClient  *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL overrides the API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithCallbackURL sets where Paystack redirects the payer afterwards.
func WithCallbackURL(u string) Option {
	return func(c *Client) { c.callbackURL = u }
}

// WithHTTPClient replaces the HTTP client, e.g. to add tracing.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// New creates a Paystack client. timeout bounds every API call.
func New(secretKey string, timeout time.Duration, opts ...Option) *Client {
	c := &Client{
		baseURL:    defaultBaseURL,
		secretKey:  secretKey,
		httpClient: &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type envelope[T any] struct {
	Status  bool   `json:"status"`
	Message string `json:"message"`
	Data    T      `json:"data"`
}

type initializeBody struct {
	Email       string            `json:"email"`
	Amount      int64             `json:"amount"`
	Currency    string            `json:"currency,omitempty"`
	CallbackURL string            `json:"callback_url,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

type initializeData struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

type transactionData struct {
	Status    string `json:"status"`
	Reference string `json:"reference"`
	Amount    int64  `json:"amount"`
}

// Initialize opens a hosted checkout for the payer.
func (c *Client) Initialize(ctx context.Context, req gateway.InitializeRequest) (*gateway.Initialization, error) {
	body, err := json.Marshal(initializeBody{
		Email:       req.Email,
		Amount:      req.AmountMinor,
		Currency:    req.Currency,
		CallbackURL: c.callbackURL,
		Metadata:    req.Metadata,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal initialize request: %w", err)
	}

	var resp envelope[initializeData]
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", body, &resp); err != nil {
		return nil, err
	}
	if !resp.Status || resp.Data.Reference == "" || resp.Data.AuthorizationURL == "" {
		return nil, fmt.Errorf("paystack initialize rejected: %s", resp.Message)
	}

	return &gateway.Initialization{
		Reference:        resp.Data.Reference,
		AuthorizationURL: resp.Data.AuthorizationURL,
	}, nil
}

// Verify fetches a transaction by reference.
func (c *Client) Verify(ctx context.Context, reference string) (*gateway.Verification, error) {
	var resp envelope[transactionData]
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &resp); err != nil {
		return nil, err
	}
	if !resp.Status {
		return nil, fmt.Errorf("paystack verify rejected: %s", resp.Message)
	}

	ref := resp.Data.Reference
	if ref == "" {
		ref = reference
	}
	return &gateway.Verification{
		Reference:   ref,
		Success:     resp.Data.Status == "success",
		Status:      resp.Data.Status,
		AmountMinor: resp.Data.Amount,
	}, nil
}

// ParseWebhook checks the signature and decodes the event.
func (c *Client) ParseWebhook(payload []byte, signature string) (*gateway.WebhookEvent, error) {
	if !VerifySignature(payload, signature, c.secretKey) {
		return nil, gateway.ErrInvalidSignature
	}

	var event struct {
		Event string          `json:"event"`
		Data  transactionData `json:"data"`
	}
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, fmt.Errorf("decode webhook: %w", err)
	}

	return &gateway.WebhookEvent{
		Type:        event.Event,
		Reference:   event.Data.Reference,
		Succeeded:   event.Event == gateway.EventChargeSucceeded && event.Data.Status == "success",
		AmountMinor: event.Data.Amount,
	}, nil
}

// SignatureHeader returns the webhook signature header name.
func (c *Client) SignatureHeader() string { return SignatureHeader }

// VerifySignature reports whether signature is the hex HMAC-SHA512 of body
// keyed with secret. Comparison is constant time.
func VerifySignature(body []byte, signature, secret string) bool {
	if signature == "" || secret == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	return hmac.Equal(got, Sign(body, secret))
}

// Sign computes the HMAC-SHA512 of body keyed with secret.
func Sign(body []byte, secret string) []byte {
	mac := hmac.New(sha512.New, []byte(secret))
	mac.Write(body)
	return mac.Sum(nil)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, out any) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.secretKey)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("paystack %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusInternalServerError {
		return fmt.Errorf("paystack %s %s: status %d", method, path, resp.StatusCode)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode paystack response (status %d): %w", resp.StatusCode, err)
	}
	return nil
}
