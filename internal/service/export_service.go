package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	appErrors "github.com/medicore/hms-api/pkg/errors"
	"github.com/medicore/hms-api/pkg/export"
)

// ExportFormat enumerates supported day-sheet formats.
type ExportFormat string

const (
	FormatCSV ExportFormat = "csv"
	FormatPDF ExportFormat = "pdf"
)

// ExportResult carries the rendered document with its HTTP metadata.
type ExportResult struct {
	Content     []byte
	ContentType string
	Filename    string
}

// ExportService renders a doctor's day sheet, the ordered list of
// appointments occupying slots on a date.
type ExportService struct {
	appointments occupancyReader
	doctors      doctorReader
	csv          *export.CSVExporter
	pdf          *export.PDFExporter
	logger       *zap.Logger
}

// NewExportService instantiates ExportService.
func NewExportService(appointments occupancyReader, doctors doctorReader, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportService{
		appointments: appointments,
		doctors:      doctors,
		csv:          export.NewCSVExporter(),
		pdf:          export.NewPDFExporter(),
		logger:       logger,
	}
}

// DaySheet renders the day sheet for a doctor and date in the requested
// format.
func (s *ExportService) DaySheet(ctx context.Context, doctorID string, date time.Time, format ExportFormat) (*ExportResult, error) {
	if format != FormatCSV && format != FormatPDF {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	doctor, err := s.doctors.FindByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "doctor not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load doctor")
	}

	appointments, err := s.appointments.ListOccupyingByDoctorDate(ctx, doctorID, date)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load appointments")
	}

	day := date.Format("2006-01-02")
	dataset := export.Dataset{
		Title:   fmt.Sprintf("Day Sheet %s %s", doctor.FullName, day),
		Headers: []string{"Time", "Slot", "Patient ID", "Type", "Status", "Payment", "Reason"},
	}
	for _, appt := range appointments {
		reason := ""
		if appt.Reason != nil {
			reason = *appt.Reason
		}
		dataset.Rows = append(dataset.Rows, []string{
			appt.AppointmentTime,
			fmt.Sprintf("%d", appt.SlotIndex),
			appt.PatientID,
			string(appt.Type),
			string(appt.Status),
			string(appt.PaymentStatus),
			reason,
		})
	}

	switch format {
	case FormatPDF:
		content, err := s.pdf.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render day sheet")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "application/pdf",
			Filename:    fmt.Sprintf("day-sheet-%s-%s.pdf", doctorID, day),
		}, nil
	default:
		content, err := s.csv.Render(dataset)
		if err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render day sheet")
		}
		return &ExportResult{
			Content:     content,
			ContentType: "text/csv",
			Filename:    fmt.Sprintf("day-sheet-%s-%s.csv", doctorID, day),
		}, nil
	}
}
