/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the leave domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Request bodies carry validator/v10 struct tags and are checked by
  decodeJSON before a handler sees them. Dates are ISO (YYYY-MM-DD);
  day counts are decimal strings or numbers.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/holidays"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/notify"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// CreateFacultyRequest registers a faculty member.
type CreateFacultyRequest struct {
	ID         string `json:"id" validate:"required,max=64"`
	Name       string `json:"name" validate:"required,max=200"`
	Email      string `json:"email" validate:"omitempty,email"`
	Department string `json:"department" validate:"max=200"`
	Role       string `json:"role" validate:"required,oneof=faculty hod dean vc hr"`
}

// SubmitApplicationRequest files a leave application.
type SubmitApplicationRequest struct {
	LeaveType          string                   `json:"leave_type" validate:"required"`
	FromDate           string                   `json:"from_date" validate:"required,datetime=2006-01-02"`
	ToDate             string                   `json:"to_date" validate:"required,datetime=2006-01-02"`
	Days               *json.Number             `json:"days,omitempty"`
	Reason             string                   `json:"reason" validate:"required,max=2000"`
	ContactDuringLeave string                   `json:"contact_during_leave" validate:"max=200"`
	AddressDuringLeave string                   `json:"address_during_leave" validate:"max=500"`
	ForwardTo          string                   `json:"forward_to" validate:"max=200"`
	Adjustments        []ClassAdjustmentRequest `json:"adjustments" validate:"dive"`
}

// ClassAdjustmentRequest is one class handed over while the applicant is away.
type ClassAdjustmentRequest struct {
	Course           string `json:"course" validate:"required,max=100"`
	Branch           string `json:"branch" validate:"max=100"`
	Semester         string `json:"semester" validate:"max=20"`
	Subject          string `json:"subject" validate:"required,max=200"`
	ClassTiming      string `json:"class_timing" validate:"max=100"`
	ConcernedTeacher string `json:"concerned_teacher" validate:"required,max=200"`
}

// ReplaceAdjustmentsRequest swaps an application's class adjustments.
type ReplaceAdjustmentsRequest struct {
	Adjustments []ClassAdjustmentRequest `json:"adjustments" validate:"dive"`
}

// ActionRequest is an approver's (or the filer's) decision. The role is
// resolved from the directory unless given explicitly.
type ActionRequest struct {
	Action  string `json:"action" validate:"required,oneof=approve reject recommend_dean recommend_vc cancel"`
	Role    string `json:"role,omitempty" validate:"omitempty,oneof=faculty hod dean vc hr"`
	Remarks string `json:"remarks" validate:"max=2000"`
}

// CreateHolidayRequest adds a holiday.
type CreateHolidayRequest struct {
	Date      string `json:"date" validate:"required,datetime=2006-01-02"`
	Name      string `json:"name" validate:"required,max=200"`
	Recurring bool   `json:"recurring"`
}

// LapseRequest triggers the lapse policy by hand.
type LapseRequest struct {
	AsOf   string `json:"as_of,omitempty" validate:"omitempty,datetime=2006-01-02"`
	Force  bool   `json:"force"`
	DryRun bool   `json:"dry_run"`
}

// OpenCycleRequest starts a new casual leave cycle for every balance.
type OpenCycleRequest struct {
	Year  int      `json:"year" validate:"required,min=2000,max=2100"`
	Slot1 *float64 `json:"slot1,omitempty" validate:"omitempty,min=0"`
	Slot2 *float64 `json:"slot2,omitempty" validate:"omitempty,min=0"`
	Reset bool     `json:"reset"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// FacultyDTO is a directory entry.
type FacultyDTO struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Email      string `json:"email,omitempty"`
	Department string `json:"department,omitempty"`
	Role       string `json:"role"`
	CreatedAt  string `json:"created_at,omitempty"`
}

// BalanceDTO is a faculty member's balance.
type BalanceDTO struct {
	FacultyID   string             `json:"faculty_id"`
	CycleYear   int                `json:"cycle_year"`
	CasualTotal string             `json:"casual_remaining"`
	Buckets     []BucketDTO        `json:"buckets"`
	Slots       map[string]SlotDTO `json:"slots"`
	Version     int64              `json:"version"`
	UpdatedAt   string             `json:"updated_at,omitempty"`
}

// BucketDTO is one line of a balance.
type BucketDTO struct {
	LeaveType string `json:"leave_type"`
	Slot      string `json:"slot,omitempty"`
	Allocated string `json:"allocated"`
	Used      string `json:"used"`
	Remaining string `json:"remaining"`
	Lapsed    bool   `json:"lapsed,omitempty"`
}

// SlotDTO describes one casual slot's coverage.
type SlotDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Lapsed bool   `json:"lapsed"`
}

// ApplicationDTO is a leave application.
type ApplicationDTO struct {
	ID                 string               `json:"id"`
	FacultyID          string               `json:"faculty_id"`
	LeaveType          string               `json:"leave_type"`
	FromDate           string               `json:"from_date"`
	ToDate             string               `json:"to_date"`
	Days               string               `json:"days"`
	Slot               string               `json:"slot,omitempty"`
	Reason             string               `json:"reason"`
	ContactDuringLeave string               `json:"contact_during_leave,omitempty"`
	AddressDuringLeave string               `json:"address_during_leave,omitempty"`
	ForwardTo          string               `json:"forward_to,omitempty"`
	Route              string               `json:"route"`
	Target             string               `json:"target"`
	CycleYear          int                  `json:"cycle_year,omitempty"`
	Status             string               `json:"status"`
	StatusLabel        string               `json:"status_label"`
	Remarks            string               `json:"remarks,omitempty"`
	ActedBy            string               `json:"acted_by,omitempty"`
	BalanceRestored    bool                 `json:"balance_restored"`
	AppliedAt          string               `json:"applied_at"`
	UpdatedAt          string               `json:"updated_at"`
	Adjustments        []ClassAdjustmentDTO `json:"adjustments"`
	Actions            []string             `json:"actions,omitempty"`
}

// ClassAdjustmentDTO is a stored class adjustment.
type ClassAdjustmentDTO struct {
	ID               string `json:"id"`
	Course           string `json:"course"`
	Branch           string `json:"branch,omitempty"`
	Semester         string `json:"semester,omitempty"`
	Subject          string `json:"subject"`
	ClassTiming      string `json:"class_timing,omitempty"`
	ConcernedTeacher string `json:"concerned_teacher"`
}

// TransactionDTO is one balance journal entry.
type TransactionDTO struct {
	ID          string `json:"id"`
	Bucket      string `json:"bucket"`
	LeaveType   string `json:"leave_type"`
	EffectiveAt string `json:"effective_at"`
	Delta       string `json:"delta"`
	Unit        string `json:"unit"`
	Type        string `json:"type"`
	ReferenceID string `json:"reference_id,omitempty"`
	Reason      string `json:"reason,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// HolidayDTO is a calendar entry.
type HolidayDTO struct {
	ID        string `json:"id"`
	Date      string `json:"date"`
	Name      string `json:"name"`
	Recurring bool   `json:"recurring"`
}

// NotificationDTO is an inbox message.
type NotificationDTO struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Body      string `json:"body"`
	Read      bool   `json:"read"`
	CreatedAt string `json:"created_at"`
}

// LapseReportDTO summarises a lapse run.
type LapseReportDTO struct {
	DryRun  bool            `json:"dry_run"`
	Checked int             `json:"checked"`
	Failed  int             `json:"failed"`
	Lapsed  []LapseEntryDTO `json:"lapsed"`
}

// LapseEntryDTO is one lapsed (or due) slot.
type LapseEntryDTO struct {
	FacultyID string `json:"faculty_id"`
	CycleYear int    `json:"cycle_year"`
	Slot      string `json:"slot"`
	Forfeited string `json:"forfeited"`
	Forced    bool   `json:"forced,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// VALIDATION
// =============================================================================

var validate = validator.New(validator.WithRequiredStructEnabled())

func init() {
	// Report json names in validation messages.
	validate.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
}

// validationError carries per-field messages back to the client.
type validationError struct {
	fields map[string]string
}

func (e *validationError) Error() string {
	parts := make([]string, 0, len(e.fields))
	for field, msg := range e.fields {
		parts = append(parts, fmt.Sprintf("%s: %s", field, msg))
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// decodeJSON reads r's body into dst and validates it.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	// An empty body decodes as {} and is left to the validation tags.
	if err := dec.Decode(dst); err != nil && !errors.Is(err, io.EOF) {
		return &validationError{fields: map[string]string{"body": err.Error()}}
	}
	if err := validate.Struct(dst); err != nil {
		var ve validator.ValidationErrors
		if !errors.As(err, &ve) {
			return err
		}
		fields := make(map[string]string, len(ve))
		for _, fe := range ve {
			field := fe.Namespace()
			if i := strings.IndexByte(field, '.'); i >= 0 {
				field = field[i+1:]
			}
			fields[field] = formatValidationError(fe)
		}
		return &validationError{fields: fields}
	}
	return nil
}

func formatValidationError(e validator.FieldError) string {
	switch e.Tag() {
	case "required":
		return e.Field() + " is required"
	case "min":
		return e.Field() + " must be at least " + e.Param()
	case "max":
		return e.Field() + " must be at most " + e.Param()
	case "email":
		return e.Field() + " must be a valid email address"
	case "oneof":
		return e.Field() + " must be one of: " + e.Param()
	case "datetime":
		return e.Field() + " must be a date (YYYY-MM-DD)"
	default:
		return e.Field() + " validation failed: " + e.Tag()
	}
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func (req SubmitApplicationRequest) toInput(facultyID string) (leave.SubmitInput, error) {
	t, err := leave.ParseType(req.LeaveType)
	if err != nil {
		return leave.SubmitInput{}, err
	}
	from, err := generic.ParseDate(req.FromDate)
	if err != nil {
		return leave.SubmitInput{}, fmt.Errorf("%w: from_date: %v", leave.ErrInvalidRange, err)
	}
	to, err := generic.ParseDate(req.ToDate)
	if err != nil {
		return leave.SubmitInput{}, fmt.Errorf("%w: to_date: %v", leave.ErrInvalidRange, err)
	}
	in := leave.SubmitInput{
		FacultyID:          facultyID,
		Type:               t,
		FromDate:           from,
		ToDate:             to,
		Reason:             req.Reason,
		ContactDuringLeave: req.ContactDuringLeave,
		AddressDuringLeave: req.AddressDuringLeave,
		ForwardTo:          req.ForwardTo,
		Adjustments:        toAdjustments(req.Adjustments),
	}
	if req.Days != nil {
		days, err := decimalFromNumber(*req.Days)
		if err != nil {
			return leave.SubmitInput{}, fmt.Errorf("%w: days: %v", leave.ErrInvalidRange, err)
		}
		in.Days = days
	}
	return in, nil
}

func decimalFromNumber(n json.Number) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(n.String())
	if err != nil {
		return decimal.Zero, err
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func toAdjustments(reqs []ClassAdjustmentRequest) []leave.ClassAdjustment {
	out := make([]leave.ClassAdjustment, len(reqs))
	for i, r := range reqs {
		out[i] = leave.ClassAdjustment{
			Course:           r.Course,
			Branch:           r.Branch,
			Semester:         r.Semester,
			Subject:          r.Subject,
			ClassTiming:      r.ClassTiming,
			ConcernedTeacher: r.ConcernedTeacher,
		}
	}
	return out
}

func toFacultyDTO(f leave.Faculty) FacultyDTO {
	dto := FacultyDTO{
		ID:         f.ID,
		Name:       f.Name,
		Email:      f.Email,
		Department: f.Department,
		Role:       string(f.Role),
	}
	if !f.CreatedAt.IsZero() {
		dto.CreatedAt = f.CreatedAt.Format(time.RFC3339)
	}
	return dto
}

func toBalanceDTO(b *leave.Balance) BalanceDTO {
	casual, _ := b.Remaining(leave.Casual, nil)
	dto := BalanceDTO{
		FacultyID:   b.FacultyID,
		CycleYear:   b.CycleYear,
		CasualTotal: casual.String(),
		Slots:       make(map[string]SlotDTO, len(leave.Slots)),
		Version:     b.Version,
	}
	if !b.UpdatedAt.IsZero() {
		dto.UpdatedAt = b.UpdatedAt.Format(time.RFC3339)
	}
	for _, line := range b.Summary() {
		dto.Buckets = append(dto.Buckets, BucketDTO{
			LeaveType: string(line.Type),
			Slot:      string(line.Slot),
			Allocated: line.Allocated.String(),
			Used:      line.Used.String(),
			Remaining: line.Remaining.String(),
			Lapsed:    line.Lapsed,
		})
	}
	for _, s := range leave.Slots {
		period := b.SlotPeriod(s)
		dto.Slots[string(s)] = SlotDTO{
			From:   period.Start.String(),
			To:     period.End.String(),
			Lapsed: b.Slot(s).Lapsed,
		}
	}
	return dto
}

func toApplicationDTO(app *leave.Application, role leave.Role) ApplicationDTO {
	dto := ApplicationDTO{
		ID:                 app.ID,
		FacultyID:          app.FacultyID,
		LeaveType:          string(app.Type),
		FromDate:           app.FromDate.String(),
		ToDate:             app.ToDate.String(),
		Days:               app.Days.String(),
		Slot:               string(app.Slot),
		Reason:             app.Reason,
		ContactDuringLeave: app.ContactDuringLeave,
		AddressDuringLeave: app.AddressDuringLeave,
		ForwardTo:          app.ForwardTo,
		Route:              string(app.Route),
		Target:             string(app.Target),
		CycleYear:          app.CycleYear,
		Status:             string(app.Status),
		StatusLabel:        app.Status.Label(),
		Remarks:            app.Remarks,
		ActedBy:            app.ActedBy,
		BalanceRestored:    app.BalanceRestored,
		AppliedAt:          app.AppliedAt.Format(time.RFC3339),
		UpdatedAt:          app.UpdatedAt.Format(time.RFC3339),
		Adjustments:        make([]ClassAdjustmentDTO, len(app.Adjustments)),
	}
	for i, adj := range app.Adjustments {
		dto.Adjustments[i] = ClassAdjustmentDTO{
			ID:               adj.ID,
			Course:           adj.Course,
			Branch:           adj.Branch,
			Semester:         adj.Semester,
			Subject:          adj.Subject,
			ClassTiming:      adj.ClassTiming,
			ConcernedTeacher: adj.ConcernedTeacher,
		}
	}
	if role != "" {
		for _, a := range leave.Actions(app, role) {
			dto.Actions = append(dto.Actions, string(a))
		}
	}
	return dto
}

func toApplicationDTOs(apps []*leave.Application, role leave.Role) []ApplicationDTO {
	dtos := make([]ApplicationDTO, len(apps))
	for i, app := range apps {
		dtos[i] = toApplicationDTO(app, role)
	}
	return dtos
}

func toTransactionDTOs(txs []generic.Transaction) []TransactionDTO {
	dtos := make([]TransactionDTO, len(txs))
	for i, tx := range txs {
		dtos[i] = TransactionDTO{
			ID:          string(tx.ID),
			Bucket:      string(tx.BucketID),
			EffectiveAt: tx.EffectiveAt.String(),
			Delta:       tx.Delta.Value.String(),
			Unit:        string(tx.Delta.Unit),
			Type:        string(tx.Type),
			ReferenceID: tx.ReferenceID,
			Reason:      tx.Reason,
			CreatedBy:   tx.CreatedBy,
		}
		if tx.ResourceType != nil {
			dtos[i].LeaveType = tx.ResourceType.ResourceID()
		}
	}
	return dtos
}

func toHolidayDTOs(hs []holidays.Holiday) []HolidayDTO {
	dtos := make([]HolidayDTO, len(hs))
	for i, h := range hs {
		dtos[i] = HolidayDTO{ID: h.ID, Date: h.Date.String(), Name: h.Name, Recurring: h.Recurring}
	}
	return dtos
}

func toNotificationDTOs(ns []notify.Notification) []NotificationDTO {
	dtos := make([]NotificationDTO, len(ns))
	for i, n := range ns {
		dtos[i] = NotificationDTO{
			ID:        n.ID,
			Title:     n.Title,
			Body:      n.Body,
			Read:      n.Read,
			CreatedAt: n.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}

func toLapseReportDTO(r *leave.LapseReport) LapseReportDTO {
	dto := LapseReportDTO{
		DryRun:  r.DryRun,
		Checked: r.Checked,
		Failed:  r.Failed,
		Lapsed:  make([]LapseEntryDTO, len(r.Lapsed)),
	}
	for i, e := range r.Lapsed {
		dto.Lapsed[i] = LapseEntryDTO{
			FacultyID: e.FacultyID,
			CycleYear: e.CycleYear,
			Slot:      string(e.Slot),
			Forfeited: e.Forfeited.String(),
		}
	}
	return dto
}

func toLapseRunDTOs(runs []leave.LapseRun) []LapseEntryDTO {
	dtos := make([]LapseEntryDTO, len(runs))
	for i, run := range runs {
		dtos[i] = LapseEntryDTO{
			FacultyID: run.FacultyID,
			CycleYear: run.CycleYear,
			Slot:      string(run.Slot),
			Forfeited: run.Forfeited.String(),
			Forced:    run.Forced,
			CreatedAt: run.CreatedAt.Format(time.RFC3339),
		}
	}
	return dtos
}
