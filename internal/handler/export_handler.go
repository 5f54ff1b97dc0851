package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/medicore/hms-api/internal/service"
	appErrors "github.com/medicore/hms-api/pkg/errors"
	"github.com/medicore/hms-api/pkg/response"
)

// ExportHandler serves day-sheet downloads.
type ExportHandler struct {
	service *service.ExportService
}

// NewExportHandler constructs handler.
func NewExportHandler(svc *service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// DaySheet godoc
// @Summary Download a doctor's day sheet
// @Tags Exports
// @Produce text/csv
// @Produce application/pdf
// @Param id path string true "Doctor ID"
// @Param date query string true "Date (YYYY-MM-DD)"
// @Param format query string false "csv or pdf" default(csv)
// @Success 200 {file} file
// @Router /doctors/{id}/day-sheet [get]
func (h *ExportHandler) DaySheet(c *gin.Context) {
	date, err := time.Parse("2006-01-02", c.Query("date"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid date, expected YYYY-MM-DD"))
		return
	}
	format := service.ExportFormat(c.DefaultQuery("format", "csv"))

	result, err := h.service.DaySheet(c.Request.Context(), c.Param("id"), date, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	c.Header("Content-Disposition", "attachment; filename="+result.Filename)
	c.Data(http.StatusOK, result.ContentType, result.Content)
}
