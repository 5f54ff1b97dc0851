package dto

import (
	"fmt"
	"time"

	"github.com/medicore/hms-api/internal/models"
)

// ListQueryKind tags the resolved appointment list query variant.
type ListQueryKind string

const (
	QueryAll             ListQueryKind = "ALL"
	QueryByStatus        ListQueryKind = "BY_STATUS"
	QueryByDoctorAndDate ListQueryKind = "BY_DOCTOR_AND_DATE"
	QueryPendingPayment  ListQueryKind = "PENDING_PAYMENT"
)

// ListAppointmentsQuery is the tagged query variant for listing
// appointments. It is resolved once at the HTTP boundary so services never
// branch on the presence of optional fields.
type ListAppointmentsQuery struct {
	Kind     ListQueryKind
	Status   models.AppointmentStatus
	DoctorID string
	Date     time.Time
	Page     int
	PageSize int
}

// ListParams carries the raw query string values before resolution.
type ListParams struct {
	DoctorID string
	Date     string
	Status   string
	Payment  string
	Page     int
	PageSize int
}

var knownStatuses = map[models.AppointmentStatus]bool{
	models.StatusBooked:      true,
	models.StatusCheckedIn:   true,
	models.StatusInSession:   true,
	models.StatusCompleted:   true,
	models.StatusCanceled:    true,
	models.StatusNoShow:      true,
	models.StatusRescheduled: true,
}

// ResolveListQuery picks exactly one query variant from the raw parameters.
// Doctor+date wins over status, status over pending-payment; supplying a
// doctor without a date (or vice versa) is rejected.
func ResolveListQuery(p ListParams) (ListAppointmentsQuery, error) {
	q := ListAppointmentsQuery{Kind: QueryAll, Page: p.Page, PageSize: p.PageSize}

	switch {
	case p.DoctorID != "" && p.Date != "":
		date, err := time.Parse("2006-01-02", p.Date)
		if err != nil {
			return q, fmt.Errorf("invalid date %q, expected YYYY-MM-DD", p.Date)
		}
		q.Kind = QueryByDoctorAndDate
		q.DoctorID = p.DoctorID
		q.Date = date
	case p.DoctorID != "" || p.Date != "":
		return q, fmt.Errorf("doctor_id and date must be supplied together")
	case p.Status != "":
		status := models.AppointmentStatus(p.Status)
		if !knownStatuses[status] {
			return q, fmt.Errorf("unknown status %q", p.Status)
		}
		q.Kind = QueryByStatus
		q.Status = status
	case p.Payment == string(models.PaymentPending):
		q.Kind = QueryPendingPayment
	case p.Payment != "":
		return q, fmt.Errorf("unsupported payment filter %q", p.Payment)
	}

	return q, nil
}
