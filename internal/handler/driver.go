package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"swiftdrop/internal/domain"
	"swiftdrop/internal/service"
)

// DriverHandler handles HTTP requests for driver profiles.
type DriverHandler struct {
	driverService *service.DriverService
}

// NewDriverHandler creates a new DriverHandler.
func NewDriverHandler(driverService *service.DriverService) *DriverHandler {
	return &DriverHandler{driverService: driverService}
}

// CreateProfileRequest is the HTTP request body for driver registration.
type CreateProfileRequest struct {
	VehicleType string `json:"vehicle_type"`
}

// AvailabilityRequest is the HTTP request body for going online or offline.
type AvailabilityRequest struct {
	Status string `json:"status"`
}

// DriverResponse is the HTTP response for driver data.
type DriverResponse struct {
	UserID      string `json:"user_id"`
	VehicleType string `json:"vehicle_type"`
	Status      string `json:"status"`
	CurrentRide string `json:"current_ride,omitempty"`
	UpdatedAt   string `json:"updated_at"`
}

// ListDriversResponse is one page of drivers.
type ListDriversResponse struct {
	Drivers    []DriverResponse `json:"drivers"`
	Total      int              `json:"total"`
	Page       int              `json:"page"`
	TotalPages int              `json:"total_pages"`
}

func toDriverResponse(p *domain.DriverProfile) DriverResponse {
	return DriverResponse{
		UserID:      p.UserID,
		VehicleType: string(p.VehicleType),
		Status:      string(p.Status),
		CurrentRide: p.CurrentRide,
		UpdatedAt:   p.UpdatedAt.Format(time.RFC3339),
	}
}

// CreateProfile handles POST /v1/drivers/profile
func (h *DriverHandler) CreateProfile(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req CreateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	profile, err := h.driverService.CreateProfile(c.Request.Context(), actor.UserID, req.VehicleType)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusCreated, toDriverResponse(profile))
}

// GetProfile handles GET /v1/drivers/profile
func (h *DriverHandler) GetProfile(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	profile, err := h.driverService.GetProfile(c.Request.Context(), actor.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDriverResponse(profile))
}

// SetAvailability handles PUT /v1/drivers/availability
func (h *DriverHandler) SetAvailability(c *gin.Context) {
	actor, ok := callerOrAbort(c)
	if !ok {
		return
	}

	var req AvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	profile, err := h.driverService.SetAvailability(c.Request.Context(), actor.UserID, req.Status)
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDriverResponse(profile))
}

// ListDrivers handles GET /v1/drivers
func (h *DriverHandler) ListDrivers(c *gin.Context) {
	page, _ := strconv.Atoi(c.Query("page"))
	limit, _ := strconv.Atoi(c.Query("limit"))

	result, err := h.driverService.ListDrivers(c.Request.Context(), c.Query("status"), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}

	drivers := make([]DriverResponse, 0, len(result.Drivers))
	for _, p := range result.Drivers {
		drivers = append(drivers, toDriverResponse(p))
	}
	respondJSON(c, http.StatusOK, ListDriversResponse{
		Drivers:    drivers,
		Total:      result.Total,
		Page:       result.Page,
		TotalPages: result.TotalPages,
	})
}

// GetDriver handles GET /v1/drivers/:id
func (h *DriverHandler) GetDriver(c *gin.Context) {
	profile, err := h.driverService.GetProfile(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	respondJSON(c, http.StatusOK, toDriverResponse(profile))
}
