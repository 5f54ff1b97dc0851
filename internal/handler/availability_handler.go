package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medicore/hms-api/internal/service"
	appErrors "github.com/medicore/hms-api/pkg/errors"
	"github.com/medicore/hms-api/pkg/response"
)

// CheckAvailabilityRequest asks for a doctor's slot availability on a date.
type CheckAvailabilityRequest struct {
	DoctorID string `json:"doctor_id" binding:"required"`
	Date     string `json:"appointment_date" binding:"required"`
}

// AvailabilityHandler serves slot availability queries.
type AvailabilityHandler struct {
	service *service.AvailabilityService
	slots   *service.SlotService
}

// NewAvailabilityHandler constructs handler.
func NewAvailabilityHandler(svc *service.AvailabilityService, slots *service.SlotService) *AvailabilityHandler {
	return &AvailabilityHandler{service: svc, slots: slots}
}

// Check godoc
// @Summary Check doctor availability for a date
// @Tags Availability
// @Accept json
// @Produce json
// @Param payload body CheckAvailabilityRequest true "Availability query"
// @Success 200 {object} response.Envelope
// @Router /check-doctor-availability [post]
func (h *AvailabilityHandler) Check(c *gin.Context) {
	var req CheckAvailabilityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}

	availability, err := h.service.Check(c.Request.Context(), req.DoctorID, date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, availability, nil)
}

// Slots godoc
// @Summary List generated slots for a doctor and date
// @Tags Availability
// @Produce json
// @Param id path string true "Doctor ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Success 200 {object} response.Envelope
// @Router /doctors/{id}/slots [get]
func (h *AvailabilityHandler) Slots(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}

	slots, err := h.slots.GenerateSlots(c.Request.Context(), c.Param("id"), date)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, slots, nil)
}
