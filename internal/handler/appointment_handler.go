package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/medicore/hms-api/internal/dto"
	"github.com/medicore/hms-api/internal/middleware"
	"github.com/medicore/hms-api/internal/service"
	appErrors "github.com/medicore/hms-api/pkg/errors"
	"github.com/medicore/hms-api/pkg/response"
)

// AppointmentHandler manages appointment booking and lifecycle endpoints.
type AppointmentHandler struct {
	service *service.BookingService
}

// NewAppointmentHandler constructs handler.
func NewAppointmentHandler(svc *service.BookingService) *AppointmentHandler {
	return &AppointmentHandler{service: svc}
}

// Book godoc
// @Summary Book an appointment slot
// @Tags Appointments
// @Accept json
// @Produce json
// @Param payload body service.BookAppointmentRequest true "Booking payload"
// @Success 201 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments [post]
func (h *AppointmentHandler) Book(c *gin.Context) {
	var req service.BookAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}

	bookedBy := req.PatientID
	if actor, ok := middleware.ActorFrom(c); ok {
		bookedBy = actor.UserID
	}

	appointment, err := h.service.Book(c.Request.Context(), req, bookedBy)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, appointment)
}

// List godoc
// @Summary List appointments
// @Tags Appointments
// @Produce json
// @Param doctorId query string false "Filter by doctor (requires date)"
// @Param date query string false "Filter by date (requires doctorId)"
// @Param status query string false "Filter by status"
// @Param payment query string false "Filter by payment status"
// @Param page query int false "Page"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /appointments [get]
func (h *AppointmentHandler) List(c *gin.Context) {
	params := dto.ListParams{
		DoctorID: c.Query("doctorId"),
		Date:     c.Query("date"),
		Status:   c.Query("status"),
		Payment:  c.Query("payment"),
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		params.Page = page
	}
	if limit, err := strconv.Atoi(c.DefaultQuery("limit", "20")); err == nil {
		params.PageSize = limit
	}

	query, err := dto.ResolveListQuery(params)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, err.Error()))
		return
	}

	appointments, pagination, err := h.service.List(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointments, pagination)
}

// Get godoc
// @Summary Get an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id} [get]
func (h *AppointmentHandler) Get(c *gin.Context) {
	appointment, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Update godoc
// @Summary Reschedule or amend an appointment
// @Tags Appointments
// @Accept json
// @Produce json
// @Param id path string true "Appointment ID"
// @Param payload body service.UpdateAppointmentRequest true "Appointment payload"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /appointments/{id} [patch]
func (h *AppointmentHandler) Update(c *gin.Context) {
	var req service.UpdateAppointmentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	appointment, err := h.service.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Cancel godoc
// @Summary Cancel an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/cancel [post]
func (h *AppointmentHandler) Cancel(c *gin.Context) {
	actorID := ""
	if actor, ok := middleware.ActorFrom(c); ok {
		actorID = actor.UserID
	}
	appointment, err := h.service.Cancel(c.Request.Context(), c.Param("id"), actorID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// CheckIn godoc
// @Summary Check in a patient
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/check-in [post]
func (h *AppointmentHandler) CheckIn(c *gin.Context) {
	appointment, err := h.service.CheckIn(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// StartSession godoc
// @Summary Start the consultation
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/start [post]
func (h *AppointmentHandler) StartSession(c *gin.Context) {
	appointment, err := h.service.StartSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// Complete godoc
// @Summary Complete an appointment
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/complete [post]
func (h *AppointmentHandler) Complete(c *gin.Context) {
	appointment, err := h.service.Complete(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}

// MarkNoShow godoc
// @Summary Flag an appointment as a no-show
// @Tags Appointments
// @Produce json
// @Param id path string true "Appointment ID"
// @Success 200 {object} response.Envelope
// @Router /appointments/{id}/no-show [post]
func (h *AppointmentHandler) MarkNoShow(c *gin.Context) {
	appointment, err := h.service.MarkNoShow(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, appointment, nil)
}
