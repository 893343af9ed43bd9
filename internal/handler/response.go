package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/middleware"
	"swiftdrop/internal/repository"
	"swiftdrop/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
		c.JSON(code, ErrorResponse{Error: "internal server error"})
		return
	}
	c.JSON(code, ErrorResponse{Error: err.Error()})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository error kinds to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	case errors.Is(err, service.ErrValidation),
		errors.Is(err, service.ErrInvalidAmount):
		return http.StatusBadRequest

	case errors.Is(err, service.ErrSignature):
		return http.StatusUnauthorized

	case errors.Is(err, service.ErrAuthorization):
		return http.StatusForbidden

	case errors.Is(err, service.ErrInsufficientFunds),
		errors.Is(err, service.ErrDriverWalletLow):
		return http.StatusPaymentRequired

	case errors.Is(err, service.ErrInvalidTransition),
		errors.Is(err, service.ErrRideUnavailable),
		errors.Is(err, service.ErrDriverBusy),
		errors.Is(err, service.ErrAlreadyPaid),
		errors.Is(err, service.ErrReconcileRunning),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	case errors.Is(err, service.ErrGateway):
		return http.StatusBadGateway

	default:
		return http.StatusInternalServerError
	}
}

// callerOrAbort returns the authenticated caller, answering 401 if absent.
func callerOrAbort(c *gin.Context) (domain.Actor, bool) {
	actor, ok := middleware.CallerActor(c)
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, ErrorResponse{Error: "unauthenticated"})
	}
	return actor, ok
}

func isAdmin(actor domain.Actor) bool {
	return actor.Role == domain.RoleAdmin
}

// RideResponse is the HTTP representation of a ride.
type RideResponse struct {
	ID               string       `json:"id"`
	RequesterID      string       `json:"requester_id"`
	DriverID         string       `json:"driver_id,omitempty"`
	ServiceType      string       `json:"service_type"`
	Pickup           domain.Point `json:"pickup"`
	Dropoff          domain.Point `json:"dropoff"`
	DistanceKm       float64      `json:"distance_km"`
	SurgeMultiplier  float64      `json:"surge_multiplier"`
	Status           string       `json:"status"`
	Fare             int64        `json:"fare"`
	PaymentMethod    string       `json:"payment_method,omitempty"`
	PaymentStatus    string       `json:"payment_status"`
	PaymentReference string       `json:"payment_reference,omitempty"`
	CreatedAt        string       `json:"created_at"`
	UpdatedAt        string       `json:"updated_at"`
}

func toRideResponse(r *domain.Ride) RideResponse {
	return RideResponse{
		ID:               r.ID,
		RequesterID:      r.RequesterID,
		DriverID:         r.DriverID,
		ServiceType:      string(r.ServiceType),
		Pickup:           r.Pickup,
		Dropoff:          r.Dropoff,
		DistanceKm:       r.DistanceKm,
		SurgeMultiplier:  r.SurgeMultiplier,
		Status:           string(r.Status),
		Fare:             r.Fare,
		PaymentMethod:    string(r.PaymentMethod),
		PaymentStatus:    string(r.PaymentStatus),
		PaymentReference: r.PaymentReference,
		CreatedAt:        r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:        r.UpdatedAt.Format(time.RFC3339),
	}
}
