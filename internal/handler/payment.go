package handler

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"swiftdrop/internal/service"
)

const maxWebhookBody = 1 << 20

// PaymentHandler handles HTTP requests for ride settlement.
type PaymentHandler struct {
	settlement      *service.SettlementService
	signatureHeader string
}

// NewPaymentHandler creates a new PaymentHandler. signatureHeader names the
// header the configured gateway signs webhooks with.
func NewPaymentHandler(settlement *service.SettlementService, signatureHeader string) *PaymentHandler {
	return &PaymentHandler{settlement: settlement, signatureHeader: signatureHeader}
}

// PayRequest is the HTTP request body for paying a ride.
type PayRequest struct {
	PaymentMethod string `json:"payment_method"`
}

// VerifyRequest is the HTTP request body for verifying a card payment.
type VerifyRequest struct {
	Reference string `json:"reference"`
}

// DistributionResponse is how a fare was split.
type DistributionResponse struct {
	FareTotal     int64 `json:"fare_total"`
	PlatformCut   int64 `json:"platform_cut"`
	DriverEarning int64 `json:"driver_earning"`
}

// PaymentResponse is the HTTP response for settlement operations.
type PaymentResponse struct {
	Ride             RideResponse          `json:"ride"`
	Distribution     *DistributionResponse `json:"distribution,omitempty"`
	Reference        string                `json:"reference,omitempty"`
	AuthorizationURL string                `json:"authorization_url,omitempty"`
}

func toPaymentResponse(r *service.PaymentResult) PaymentResponse {
	resp := PaymentResponse{
		Ride:             toRideResponse(r.Ride),
		Reference:        r.Reference,
		AuthorizationURL: r.AuthorizationURL,
	}
	if r.Distribution != nil {
		resp.Distribution = &DistributionResponse{
			FareTotal:     r.Distribution.FareTotal,
			PlatformCut:   r.Distribution.PlatformCut,
			DriverEarning: r.Distribution.DriverEarning,
		}
	}
	return resp
}

// PayForRide handles POST /v1/rides/:id/payment
func (h *PaymentHandler) PayForRide(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req PayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.settlement.PayForRide(c.Request.Context(), actor, c.Param("id"), req.PaymentMethod)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentResponse(result))
}

// ConfirmCash handles PUT /v1/rides/:id/confirm-cash
func (h *PaymentHandler) ConfirmCash(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	result, err := h.settlement.ConfirmCashPayment(c.Request.Context(), actor, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentResponse(result))
}

// Verify handles POST /v1/payments/verify
func (h *PaymentHandler) Verify(c *gin.Context) {
	var req VerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	result, err := h.settlement.VerifyPayment(c.Request.Context(), req.Reference)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toPaymentResponse(result))
}

// Webhook handles POST /v1/payments/webhook. The body is read raw because
// the signature covers the exact bytes sent.
func (h *PaymentHandler) Webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "unreadable body"})
		return
	}

	ack, err := h.settlement.HandleWebhook(c.Request.Context(), payload, c.GetHeader(h.signatureHeader))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, gin.H{
		"status":    ack.Status,
		"reference": ack.Reference,
	})
}
