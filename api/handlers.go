/*
handlers.go - HTTP API handlers for the faculty leave workflow

PURPOSE:
  Exposes the leave service via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to the leave package.

ENDPOINTS:
  Faculty:
    POST   /api/faculty                          Register (seeds the balance)
    GET    /api/faculty/{id}                     Directory entry
    GET    /api/faculty/{id}/balance             Balance summary
    GET    /api/faculty/{id}/journal             Balance journal (?bucket= for one bucket and its net)
    GET    /api/faculty/{id}/applications        Applications, newest first
    POST   /api/faculty/{id}/applications        Submit an application
    GET    /api/faculty/{id}/notifications       Inbox (?unread=true)

  Applications:
    GET    /api/applications?role=hod            Approver inbox
    GET    /api/applications/{id}                One application (?role= adds actions)
    POST   /api/applications/{id}/actions        Approve, reject, forward, cancel
    PUT    /api/applications/{id}/adjustments    Replace class adjustments

  Holidays:
    GET    /api/holidays                         List
    POST   /api/holidays                         Create
    POST   /api/holidays/import                  Import a YAML calendar
    DELETE /api/holidays/{id}                    Delete

  Admin:
    POST   /api/admin/lapse                      Run the slot lapse policy
    GET    /api/admin/lapse/runs                 Lapse history
    POST   /api/admin/cycles                     Open a casual leave cycle
    GET    /api/reports/balances.xlsx            Balance workbook

ACTOR:
  Mutating application endpoints read the acting user from the X-User-ID
  header. The header is trusted; authentication is not done here.

ERROR HANDLING:
  Errors are returned as JSON with a status chosen by statusFor:
  - 400: Validation errors, bad dates, unknown type/role
  - 403: Acting on someone else's application
  - 404: Unknown faculty, application, holiday, notification
  - 409: Combined leave, lapsed slot, wrong application state
  - 422: Insufficient balance
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/holidays"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/notify"
	"github.com/prabandh/leave-engine/report"
)

// UserHeader names the acting user.
const UserHeader = "X-User-ID"

// maxImportBytes caps a holiday calendar upload.
const maxImportBytes = 1 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers read and write besides the leave service.
type Store interface {
	SaveFaculty(ctx context.Context, f leave.Faculty) error
	GetFaculty(ctx context.Context, id string) (*leave.Faculty, error)
	ListFaculty(ctx context.Context) ([]leave.Faculty, error)

	SaveHoliday(ctx context.Context, h holidays.Holiday) error
	DeleteHoliday(ctx context.Context, id string) error
	ListHolidays(ctx context.Context) ([]holidays.Holiday, error)

	ListNotifications(ctx context.Context, userID string, unreadOnly bool) ([]notify.Notification, error)
	MarkNotificationRead(ctx context.Context, id string) error

	Ping(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service  *leave.Service
	Store    Store
	Calendar *holidays.Calendar
	Logger   *zap.Logger
}

// NewHandler creates a handler. The calendar is reloaded from store after
// every holiday change.
func NewHandler(svc *leave.Service, store Store, cal *holidays.Calendar, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		Service:  svc,
		Store:    store,
		Calendar: cal,
		Logger:   logger.Named("api"),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := h.Store.Ping(ctx); err != nil {
		http.Error(w, "store not ready", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// =============================================================================
// FACULTY HANDLERS
// =============================================================================

// CreateFaculty registers a faculty member and opens their balance.
// POST /api/faculty
func (h *Handler) CreateFaculty(w http.ResponseWriter, r *http.Request) {
	var req CreateFacultyRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	role, err := leave.ParseRole(req.Role)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	f := leave.Faculty{
		ID:         req.ID,
		Name:       req.Name,
		Email:      req.Email,
		Department: req.Department,
		Role:       role,
		CreatedAt:  time.Now(),
	}
	if err := h.Store.SaveFaculty(r.Context(), f); err != nil {
		h.fail(w, r, err)
		return
	}
	if _, err := h.Service.EnsureBalance(r.Context(), f.ID); err != nil {
		h.fail(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toFacultyDTO(f))
}

// GetFaculty returns a directory entry.
// GET /api/faculty/{id}
func (h *Handler) GetFaculty(w http.ResponseWriter, r *http.Request) {
	f, err := h.Store.GetFaculty(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toFacultyDTO(*f))
}

// GetBalance returns a balance summary.
// GET /api/faculty/{id}/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	b, err := h.Service.Balance(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceDTO(b))
}

// GetJournal returns every balance event of a faculty member.
// GET /api/faculty/{id}/journal
func (h *Handler) GetJournal(w http.ResponseWriter, r *http.Request) {
	if bucket := r.URL.Query().Get("bucket"); bucket != "" {
		txs, net, err := h.Service.BucketJournal(r.Context(), chi.URLParam(r, "id"), generic.BucketID(bucket))
		if err != nil {
			h.fail(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"bucket":  bucket,
			"entries": toTransactionDTOs(txs),
			"net":     net.String(),
		})
		return
	}

	txs, err := h.Service.Journal(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": toTransactionDTOs(txs)})
}

// ListFacultyApplications returns a faculty member's applications.
// GET /api/faculty/{id}/applications
func (h *Handler) ListFacultyApplications(w http.ResponseWriter, r *http.Request) {
	apps, err := h.Service.Applications(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": toApplicationDTOs(apps, leave.RoleFaculty)})
}

// SubmitApplication files a leave application.
// POST /api/faculty/{id}/applications
func (h *Handler) SubmitApplication(w http.ResponseWriter, r *http.Request) {
	facultyID := chi.URLParam(r, "id")
	if actor := r.Header.Get(UserHeader); actor != "" && actor != facultyID {
		h.fail(w, r, fmt.Errorf("%w: %s cannot file leave for %s", leave.ErrNotOwner, actor, facultyID))
		return
	}

	var req SubmitApplicationRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	in, err := req.toInput(facultyID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	app, err := h.Service.Submit(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toApplicationDTO(app, leave.RoleFaculty))
}

// ListNotifications returns a user's inbox.
// GET /api/faculty/{id}/notifications?unread=true
func (h *Handler) ListNotifications(w http.ResponseWriter, r *http.Request) {
	unread, _ := strconv.ParseBool(r.URL.Query().Get("unread"))
	ns, err := h.Store.ListNotifications(r.Context(), chi.URLParam(r, "id"), unread)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"notifications": toNotificationDTOs(ns)})
}

// MarkNotificationRead flags one notification as read.
// POST /api/notifications/{id}/read
func (h *Handler) MarkNotificationRead(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.MarkNotificationRead(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// APPLICATION HANDLERS
// =============================================================================

// ListInbox returns the applications waiting on a role.
// GET /api/applications?role=hod
func (h *Handler) ListInbox(w http.ResponseWriter, r *http.Request) {
	role, err := leave.ParseRole(r.URL.Query().Get("role"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	apps, err := h.Service.Inbox(r.Context(), role)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"applications": toApplicationDTOs(apps, role)})
}

// GetApplication returns one application.
// GET /api/applications/{id}?role=dean
func (h *Handler) GetApplication(w http.ResponseWriter, r *http.Request) {
	var role leave.Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := leave.ParseRole(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		role = parsed
	}
	app, err := h.Service.Application(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app, role))
}

// ActOnApplication applies an approver decision or a cancellation.
// POST /api/applications/{id}/actions
//
// Cancel always acts as the filer. Other actions use the role in the body
// when present, otherwise the actor's directory role.
func (h *Handler) ActOnApplication(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ActionRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	action, err := leave.ParseAction(req.Action)
	if err != nil {
		h.fail(w, r, &validationError{fields: map[string]string{"action": err.Error()}})
		return
	}

	id := chi.URLParam(r, "id")
	var app *leave.Application
	switch {
	case action == leave.ActionCancel:
		req.Role = string(leave.RoleFaculty)
		fallthrough
	case req.Role != "":
		role, perr := leave.ParseRole(req.Role)
		if perr != nil {
			h.fail(w, r, perr)
			return
		}
		app, err = h.Service.Act(r.Context(), leave.ActInput{
			ApplicationID: id,
			ActorID:       actor,
			Role:          role,
			Action:        action,
			Remarks:       req.Remarks,
		})
	default:
		app, err = h.Service.ActAs(r.Context(), id, actor, action, req.Remarks)
	}
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app, ""))
}

// ReplaceAdjustments swaps the class adjustments of an open application.
// PUT /api/applications/{id}/adjustments
func (h *Handler) ReplaceAdjustments(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req ReplaceAdjustmentsRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	app, err := h.Service.ReplaceAdjustments(r.Context(), chi.URLParam(r, "id"), actor, toAdjustments(req.Adjustments))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toApplicationDTO(app, leave.RoleFaculty))
}

// =============================================================================
// HOLIDAY HANDLERS
// =============================================================================

// ListHolidays returns the holiday calendar.
// GET /api/holidays
func (h *Handler) ListHolidays(w http.ResponseWriter, r *http.Request) {
	hs, err := h.Store.ListHolidays(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"holidays": toHolidayDTOs(hs)})
}

// CreateHoliday adds a holiday.
// POST /api/holidays
func (h *Handler) CreateHoliday(w http.ResponseWriter, r *http.Request) {
	var req CreateHolidayRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	date, err := generic.ParseDate(req.Date)
	if err != nil {
		h.fail(w, r, fmt.Errorf("%w: %v", holidays.ErrInvalidHoliday, err))
		return
	}
	holiday := holidays.Holiday{ID: uuid.NewString(), Date: date, Name: req.Name, Recurring: req.Recurring}
	if err := holiday.Validate(); err != nil {
		h.fail(w, r, err)
		return
	}
	if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reloadCalendar(r.Context())
	writeJSON(w, http.StatusCreated, toHolidayDTOs([]holidays.Holiday{holiday})[0])
}

// DeleteHoliday removes a holiday.
// DELETE /api/holidays/{id}
func (h *Handler) DeleteHoliday(w http.ResponseWriter, r *http.Request) {
	if err := h.Store.DeleteHoliday(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	h.reloadCalendar(r.Context())
	w.WriteHeader(http.StatusNoContent)
}

// ImportHolidays loads a YAML calendar from the request body.
// POST /api/holidays/import
func (h *Handler) ImportHolidays(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxImportBytes))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	hs, err := holidays.Parse(bytes.NewReader(body))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	for _, holiday := range hs {
		if err := h.Store.SaveHoliday(r.Context(), holiday); err != nil {
			h.fail(w, r, err)
			return
		}
	}
	h.reloadCalendar(r.Context())
	writeJSON(w, http.StatusOK, map[string]any{"imported": len(hs)})
}

func (h *Handler) reloadCalendar(ctx context.Context) {
	if h.Calendar == nil {
		return
	}
	if err := h.Calendar.Reload(ctx, h.Store); err != nil {
		h.Logger.Error("failed to reload holiday calendar", zap.Error(err))
	}
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// RunLapse applies the slot lapse policy now.
// POST /api/admin/lapse
func (h *Handler) RunLapse(w http.ResponseWriter, r *http.Request) {
	var req LapseRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	opts := leave.LapseOptions{Force: req.Force, DryRun: req.DryRun}
	if req.AsOf != "" {
		asOf, err := generic.ParseDate(req.AsOf)
		if err != nil {
			h.fail(w, r, fmt.Errorf("%w: as_of: %v", leave.ErrInvalidRange, err))
			return
		}
		opts.Now = asOf
	}

	rep, err := h.Service.LapseSlots(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toLapseReportDTO(rep))
}

// ListLapseRuns returns lapse history.
// GET /api/admin/lapse/runs?limit=50
func (h *Handler) ListLapseRuns(w http.ResponseWriter, r *http.Request) {
	limit := 100
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			h.fail(w, r, &validationError{fields: map[string]string{"limit": "limit must be a non-negative integer"}})
			return
		}
		limit = n
	}
	runs, err := h.Service.LapseRuns(r.Context(), limit)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": toLapseRunDTOs(runs)})
}

// OpenCycle starts a casual leave cycle on every balance.
// POST /api/admin/cycles
func (h *Handler) OpenCycle(w http.ResponseWriter, r *http.Request) {
	var req OpenCycleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	opts := leave.CycleOptions{Year: req.Year, Reset: req.Reset, Actor: r.Header.Get(UserHeader)}
	if req.Slot1 != nil {
		d := decimal.NewFromFloat(*req.Slot1)
		opts.Slot1 = &d
	}
	if req.Slot2 != nil {
		d := decimal.NewFromFloat(*req.Slot2)
		opts.Slot2 = &d
	}

	opened, err := h.Service.OpenCycle(r.Context(), opts)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"year": req.Year, "opened": opened})
}

// ExportBalances streams the balance workbook.
// GET /api/reports/balances.xlsx
func (h *Handler) ExportBalances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.Service.Store.ListBalances(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	members, err := h.Store.ListFaculty(r.Context())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	byID := make(map[string]leave.Faculty, len(members))
	for _, m := range members {
		byID[m.ID] = m
	}

	now := time.Now()
	buf, err := report.WriteBalances(balances, byID, now)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="%s"`, report.Filename(now)))
	w.WriteHeader(http.StatusOK)
	_, _ = buf.WriteTo(w)
}

// =============================================================================
// HELPERS
// =============================================================================

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (string, bool) {
	actor := r.Header.Get(UserHeader)
	if actor == "" {
		h.fail(w, r, &validationError{fields: map[string]string{UserHeader: "header is required"}})
		return "", false
	}
	return actor, true
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code string, err error, details any) {
	writeJSON(w, status, ErrorResponse{Error: err.Error(), Code: code, Details: details})
}

// fail maps err onto a status and writes it. Server errors are logged and
// their text withheld.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusFor(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		writeJSON(w, status, ErrorResponse{Error: "internal server error", Code: code})
		return
	}

	var details any
	var ve *validationError
	var insufficient *leave.InsufficientBalanceError
	var invalidState *leave.InvalidStateError
	switch {
	case errors.As(err, &ve):
		details = ve.fields
	case errors.As(err, &insufficient):
		details = map[string]string{
			"leave_type": string(insufficient.Type),
			"slot":       string(insufficient.Slot),
			"available":  insufficient.Available.String(),
			"requested":  insufficient.Requested.String(),
		}
	case errors.As(err, &invalidState):
		allowed := make([]string, len(invalidState.Allowed))
		for i, s := range invalidState.Allowed {
			allowed[i] = string(s)
		}
		details = map[string]any{"status": string(invalidState.Status), "allowed": allowed}
	}
	writeError(w, status, code, err, details)
}

// statusFor maps domain errors to HTTP statuses and stable error codes.
func statusFor(err error) (int, string) {
	var ve *validationError
	var maxBytes *http.MaxBytesError
	switch {
	case errors.As(err, &ve):
		return http.StatusBadRequest, "validation_failed"
	case errors.As(err, &maxBytes):
		return http.StatusRequestEntityTooLarge, "too_large"
	case errors.Is(err, leave.ErrInvalidRange):
		return http.StatusBadRequest, "invalid_range"
	case errors.Is(err, leave.ErrInvalidLeaveType):
		return http.StatusBadRequest, "invalid_leave_type"
	case errors.Is(err, leave.ErrInvalidRole):
		return http.StatusBadRequest, "invalid_role"
	case errors.Is(err, leave.ErrOutsideCycle):
		return http.StatusBadRequest, "outside_cycle"
	case errors.Is(err, holidays.ErrInvalidHoliday):
		return http.StatusBadRequest, "invalid_holiday"
	case errors.Is(err, leave.ErrNotOwner):
		return http.StatusForbidden, "not_owner"
	case errors.Is(err, leave.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, leave.ErrCombinedLeaveNotAllowed):
		return http.StatusConflict, "combined_leave_not_allowed"
	case errors.Is(err, leave.ErrSlotLapsed):
		return http.StatusConflict, "slot_lapsed"
	case errors.Is(err, leave.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, generic.ErrConcurrentModification):
		return http.StatusConflict, "concurrent_modification"
	case errors.Is(err, leave.ErrInsufficientBalance):
		return http.StatusUnprocessableEntity, "insufficient_balance"
	}
	return http.StatusInternalServerError, "internal"
}
