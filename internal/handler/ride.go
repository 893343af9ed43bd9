package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/service"
)

// RideHandler handles HTTP requests for rides.
type RideHandler struct {
	rideService *service.RideService
}

// NewRideHandler creates a new RideHandler.
func NewRideHandler(rideService *service.RideService) *RideHandler {
	return &RideHandler{rideService: rideService}
}

// CreateRideRequest is the HTTP request body for requesting a ride.
type CreateRideRequest struct {
	Pickup          *domain.Point `json:"pickup"`
	Dropoff         *domain.Point `json:"dropoff"`
	ServiceType     string        `json:"service_type"`
	SurgeMultiplier float64       `json:"surge_multiplier,omitempty"`
}

// UpdateStatusRequest is the HTTP request body for a status change.
type UpdateStatusRequest struct {
	Status string `json:"status"`
}

// ListRidesResponse is the HTTP response for a ride listing.
type ListRidesResponse struct {
	Rides      []RideResponse `json:"rides"`
	Total      int            `json:"total"`
	Page       int            `json:"page"`
	TotalPages int            `json:"total_pages"`
}

// CreateRide handles POST /v1/rides
func (h *RideHandler) CreateRide(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req CreateRideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.RequestRide(c.Request.Context(), service.RequestRideRequest{
		RequesterID:     actor.UserID,
		Pickup:          req.Pickup,
		Dropoff:         req.Dropoff,
		ServiceType:     req.ServiceType,
		SurgeMultiplier: req.SurgeMultiplier,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toRideResponse(ride))
}

// GetAll handles GET /v1/rides
//
// Admins may filter freely. Drivers see the open pool when asking for
// requested rides and their own rides otherwise; everyone else sees the
// rides they requested.
func (h *RideHandler) GetAll(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))
	req := service.ListRidesRequest{
		Status:      c.Query("status"),
		ServiceType: c.Query("service_type"),
		Page:        page,
		Limit:       limit,
	}

	switch {
	case isAdmin(actor):
		req.RequesterID = c.Query("requester_id")
		req.DriverID = c.Query("driver_id")
	case actor.Role == domain.RoleDriver:
		if req.Status != string(domain.RideStatusRequested) {
			req.DriverID = actor.UserID
		}
	default:
		req.RequesterID = actor.UserID
	}

	result, err := h.rideService.ListRides(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	rides := make([]RideResponse, 0, len(result.Rides))
	for _, r := range result.Rides {
		rides = append(rides, toRideResponse(r))
	}
	respondJSON(c, http.StatusOK, ListRidesResponse{
		Rides:      rides,
		Total:      result.Total,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	})
}

// GetRide handles GET /v1/rides/:id
func (h *RideHandler) GetRide(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	ride, err := h.rideService.GetRide(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	openToDrivers := actor.Role == domain.RoleDriver && ride.Status == domain.RideStatusRequested
	if !isAdmin(actor) && !openToDrivers && service.RoleFor(ride, actor.UserID) == service.RideRoleNone {
		respondError(c, service.ErrNotRideParty)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// AcceptRide handles PUT /v1/rides/:id/accept
func (h *RideHandler) AcceptRide(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	ride, err := h.rideService.ClaimRide(c.Request.Context(), c.Param("id"), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// UpdateStatus handles PUT /v1/rides/:id/status
func (h *RideHandler) UpdateStatus(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	ride, err := h.rideService.UpdateStatus(c.Request.Context(), c.Param("id"), actor, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}

// CancelRide handles DELETE /v1/rides/:id/cancel
func (h *RideHandler) CancelRide(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	ride, err := h.rideService.CancelRide(c.Request.Context(), c.Param("id"), actor)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toRideResponse(ride))
}
