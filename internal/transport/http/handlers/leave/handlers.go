package leavehandler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"leavedesk/internal/domain/audit"
	"leavedesk/internal/domain/auth"
	"leavedesk/internal/domain/leave"
	"leavedesk/internal/transport/http/api"
	"leavedesk/internal/transport/http/middleware"
	"leavedesk/internal/transport/http/shared"
	"leavedesk/internal/upstream/leaveapi"
)

const (
	maxLeaveRequestDocuments     = 5
	maxLeaveRequestDocumentBytes = 2 * 1024 * 1024
)

type Handler struct {
	Service     *leave.Service
	Idempotency middleware.IdempotencyStore
	// Audit is optional. Without it mutations are only logged.
	Audit audit.Recorder
	Now   func() time.Time
}

func NewHandler(service *leave.Service, idempotency middleware.IdempotencyStore) *Handler {
	return &Handler{Service: service, Idempotency: idempotency, Now: time.Now}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/leave", func(r chi.Router) {
		r.Use(middleware.RequireSession)
		r.Get("/dashboard", h.handleDashboard)
		r.Get("/types", h.handleListTypes)
		r.Get("/balances", h.handleListBalances)
		r.Get("/requests", h.handleListRequests)
		r.With(middleware.Idempotency(h.Idempotency)).Post("/requests", h.handleCreateRequest)
		r.Post("/requests/{requestID}/cancel", h.handleCancelRequest)
		r.Get("/holidays", h.handleListHolidays)
		r.Post("/preview", h.handlePreview)
		r.Post("/validate", h.handleValidate)
		r.Get("/calendar", h.handleCalendar)
		r.Get("/calendar/export", h.handleCalendarExport)
		r.Get("/activity", h.handleActivity)
	})
}

func (h *Handler) now() time.Time {
	if h.Now == nil {
		return time.Now()
	}
	return h.Now()
}

func session(w http.ResponseWriter, r *http.Request) (auth.Session, bool) {
	sess, ok := middleware.GetSession(r.Context())
	if !ok {
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", middleware.GetRequestID(r.Context()))
		return auth.Session{}, false
	}
	return sess, true
}

func (h *Handler) parseYear(r *http.Request, v *shared.Validator) int {
	raw := strings.TrimSpace(r.URL.Query().Get("year"))
	if raw == "" {
		return h.now().Year()
	}
	year, err := strconv.Atoi(raw)
	if err != nil || year < 1900 || year > 9999 {
		v.Add("year", "must be a four digit year")
		return 0
	}
	return year
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	year := h.parseYear(r, v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	dashboard, err := h.Service.Dashboard(r.Context(), sess, year)
	if err != nil {
		writeServiceError(w, r, err, "dashboard_failed", "Failed to load leave data. Please try again.")
		return
	}
	api.Success(w, dashboard, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListTypes(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	dashboard, err := h.Service.Dashboard(r.Context(), sess, h.now().Year())
	if err != nil {
		writeServiceError(w, r, err, "leave_types_failed", "Failed to load leave types. Please try again.")
		return
	}
	api.Success(w, dashboard.LeaveTypes, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListBalances(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	year := h.parseYear(r, v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	dashboard, err := h.Service.Dashboard(r.Context(), sess, year)
	if err != nil {
		writeServiceError(w, r, err, "leave_balances_failed", "Failed to load leave balances. Please try again.")
		return
	}
	api.Success(w, dashboard.Balances, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListRequests(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	query := r.URL.Query()
	v := shared.NewValidator()
	v.Enum("status", query.Get("status"), []string{
		string(leave.StatusPending), string(leave.StatusApproved), string(leave.StatusRejected),
		string(leave.StatusCancelled), string(leave.StatusEscalated),
	}, "must be one of pending, approved, rejected, cancelled, escalated")
	v.Enum("sort", query.Get("sort"), []string{leave.SortByCreatedAt, leave.SortByStartDate}, "must be created_at or start_date")
	v.Enum("order", query.Get("order"), []string{"asc", "desc"}, "must be asc or desc")
	page := shared.ParsePagination(r, v, 50, 200)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	q := leave.RequestQuery{
		Status:      leave.Status(strings.ToLower(strings.TrimSpace(query.Get("status")))),
		LeaveTypeID: strings.TrimSpace(query.Get("leave_type_id")),
		SortBy:      strings.ToLower(strings.TrimSpace(query.Get("sort"))),
		Descending:  !strings.EqualFold(query.Get("order"), "asc"),
		Limit:       page.Limit,
		Offset:      page.Offset,
	}
	result, err := h.Service.Requests(r.Context(), sess, q)
	if err != nil {
		writeServiceError(w, r, err, "leave_requests_failed", "Failed to load leave requests. Please try again.")
		return
	}
	api.Success(w, result, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleListHolidays(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	api.Success(w, h.Service.Holidays(r.Context(), sess), middleware.GetRequestID(r.Context()))
}

type previewPayload struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

func (h *Handler) handlePreview(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	var payload previewPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", middleware.GetRequestID(r.Context()))
		return
	}
	v := shared.NewValidator()
	start, startOK := v.Date("start_date", payload.StartDate)
	end, endOK := v.Date("end_date", payload.EndDate)
	if startOK && endOK {
		v.DateOrder("start_date", start, "end_date", end)
	}
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	preview, err := h.Service.Preview(r.Context(), sess, start, end)
	if err != nil {
		writeServiceError(w, r, err, "preview_failed", "Failed to calculate working days.")
		return
	}
	api.Success(w, preview, middleware.GetRequestID(r.Context()))
}

type draftPayload struct {
	LeaveTypeID   string           `json:"leave_type_id"`
	StartDate     string           `json:"start_date"`
	EndDate       string           `json:"end_date"`
	Reason        string           `json:"reason"`
	ContactNumber string           `json:"contact_number"`
	Documents     []leave.Document `json:"documents"`
}

// decodeDraft reports malformed input as field issues. Missing values are
// left for the leave validator so its ordered checks decide the message.
func decodeDraft(w http.ResponseWriter, r *http.Request) (leave.DraftRequest, bool) {
	requestID := middleware.GetRequestID(r.Context())
	var payload draftPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return leave.DraftRequest{}, false
	}

	v := shared.NewValidator()
	var start, end leave.Date
	if strings.TrimSpace(payload.StartDate) != "" {
		start, _ = v.Date("start_date", payload.StartDate)
	}
	if strings.TrimSpace(payload.EndDate) != "" {
		end, _ = v.Date("end_date", payload.EndDate)
	}
	if len(payload.Documents) > maxLeaveRequestDocuments {
		v.Add("documents", "at most "+strconv.Itoa(maxLeaveRequestDocuments)+" documents are allowed")
	}
	for i, doc := range payload.Documents {
		field := "documents[" + strconv.Itoa(i) + "]"
		v.Required(field+".name", doc.Name, "is required")
		if len(doc.Data) > maxLeaveRequestDocumentBytes*4/3+4 {
			v.Add(field+".data", "must be at most 2 MB")
		}
	}
	if v.Reject(w, requestID) {
		return leave.DraftRequest{}, false
	}

	return leave.DraftRequest{
		LeaveTypeID:   strings.TrimSpace(payload.LeaveTypeID),
		StartDate:     start,
		EndDate:       end,
		Reason:        payload.Reason,
		ContactNumber: payload.ContactNumber,
		Documents:     payload.Documents,
	}, true
}

func (h *Handler) handleValidate(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	draft, ok := decodeDraft(w, r)
	if !ok {
		return
	}
	days, err := h.Service.Validate(r.Context(), sess, draft)
	if err != nil {
		writeServiceError(w, r, err, "validation_failed", "Failed to validate leave request. Please try again.")
		return
	}
	api.Success(w, map[string]any{"valid": true, "days_requested": days}, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCreateRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	draft, ok := decodeDraft(w, r)
	if !ok {
		return
	}

	outcome, err := h.Service.Submit(r.Context(), sess, draft)
	h.record(r, sess, audit.Event{
		Action:   audit.ActionSubmit,
		EntityID: submittedID(outcome),
		Outcome:  string(outcome.State),
		Details: audit.MarshalDetails(map[string]any{
			"leave_type_id": draft.LeaveTypeID,
			"start_date":    draft.StartDate,
			"end_date":      draft.EndDate,
			"days":          outcome.DaysRequested,
		}),
	})
	if err != nil {
		var submitErr *leave.SubmitError
		if errors.As(err, &submitErr) {
			status := http.StatusBadGateway
			if upstreamRejected(err) {
				status = http.StatusUnprocessableEntity
			}
			if errors.Is(err, leave.ErrUnauthorized) {
				status = http.StatusUnauthorized
			}
			api.FailWithDetails(w, status, "submission_failed", outcome.Message, map[string]any{"state": outcome.State}, middleware.GetRequestID(r.Context()))
			return
		}
		writeServiceError(w, r, err, "submission_failed", "Failed to submit leave request. Please try again.")
		return
	}
	slog.Info("leave request submitted", "requestId", middleware.GetRequestID(r.Context()), "leaveTypeId", draft.LeaveTypeID, "days", outcome.DaysRequested)
	api.Created(w, outcome, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCancelRequest(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	requestID := chi.URLParam(r, "requestID")
	outcome, err := h.Service.Cancel(r.Context(), sess, requestID)
	h.record(r, sess, audit.Event{Action: audit.ActionCancel, EntityID: requestID, Outcome: string(outcome.State)})
	if err != nil {
		if errors.Is(err, leave.ErrNotCancellable) {
			api.FailWithDetails(w, http.StatusConflict, "not_cancellable", outcome.Message, map[string]any{"state": outcome.State}, middleware.GetRequestID(r.Context()))
			return
		}
		writeServiceError(w, r, err, "cancel_failed", "Failed to cancel leave request. Please try again.")
		return
	}
	api.Success(w, outcome, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalendar(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	year, month := shared.ParseYearMonth(r, h.now(), v)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}
	grid, err := h.Service.Calendar(r.Context(), sess, year, month)
	if err != nil {
		writeServiceError(w, r, err, "calendar_failed", "Failed to load calendar.")
		return
	}
	api.Success(w, grid, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalendarExport(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	v := shared.NewValidator()
	year, month := shared.ParseYearMonth(r, h.now(), v)
	format := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("format")))
	if format == "" {
		format = "csv"
	}
	v.Enum("format", format, []string{"csv", "pdf", "ics"}, "must be csv, pdf or ics")
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return
	}

	grid, err := h.Service.Calendar(r.Context(), sess, year, month)
	if err != nil {
		writeServiceError(w, r, err, "calendar_failed", "Failed to load calendar.")
		return
	}
	writeCalendarExport(w, format, grid)
}

// writeServiceError maps service errors onto the response envelope. Upstream
// failures without a more specific mapping get the fallback code and message.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, code, message string) {
	requestID := middleware.GetRequestID(r.Context())

	var verr *leave.ValidationError
	if errors.As(err, &verr) {
		api.FailWithDetails(w, http.StatusUnprocessableEntity, verr.Code, verr.Message, validationDetails(verr), requestID)
		return
	}
	switch {
	case errors.Is(err, leave.ErrUnauthorized):
		api.Fail(w, http.StatusUnauthorized, "session_expired", "Your session has expired. Please sign in again.", requestID)
		return
	case errors.Is(err, leave.ErrRequestNotFound):
		api.Fail(w, http.StatusNotFound, "not_found", "leave request not found", requestID)
		return
	case r.Context().Err() != nil && errors.Is(err, r.Context().Err()):
		slog.Info("request cancelled by client", "requestId", requestID)
		return
	}

	slog.Warn("leave gateway call failed", "code", code, "requestId", requestID, "err", err)
	api.Fail(w, http.StatusBadGateway, code, message, requestID)
}

func validationDetails(verr *leave.ValidationError) any {
	var notice *leave.NoticeError
	if errors.As(verr, &notice) {
		return map[string]any{
			"required_days":    notice.Required,
			"given_days":       notice.Given,
			"earliest_allowed": notice.EarliestAllowed,
		}
	}
	var balance *leave.BalanceError
	if errors.As(verr, &balance) {
		return map[string]any{
			"available_days": balance.Available,
			"requested_days": balance.Requested,
			"shortfall_days": balance.Shortfall,
		}
	}
	return nil
}

func upstreamRejected(err error) bool {
	var apiErr *leaveapi.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode >= 400 && apiErr.StatusCode < 500 && apiErr.StatusCode != http.StatusUnauthorized
}

func submittedID(outcome leave.SubmitOutcome) string {
	if outcome.Request == nil {
		return ""
	}
	return outcome.Request.ID
}

func (h *Handler) record(r *http.Request, sess auth.Session, evt audit.Event) {
	if h.Audit == nil {
		return
	}
	evt.ActorKey = sess.CacheKey()
	evt.ActorID = sess.UserID
	evt.TenantID = sess.TenantID
	evt.RequestID = middleware.GetRequestID(r.Context())
	evt.IP = shared.ClientIP(r)
	if evt.Outcome == "" {
		evt.Outcome = string(leave.StateDraft)
	}
	if err := h.Audit.Record(context.WithoutCancel(r.Context()), evt); err != nil {
		slog.Warn("audit record failed", "requestId", evt.RequestID, "action", evt.Action, "err", err)
	}
}

func (h *Handler) handleActivity(w http.ResponseWriter, r *http.Request) {
	sess, ok := session(w, r)
	if !ok {
		return
	}
	requestID := middleware.GetRequestID(r.Context())
	v := shared.NewValidator()
	page := shared.ParsePagination(r, v, 50, 200)
	if v.Reject(w, requestID) {
		return
	}
	if h.Audit == nil {
		api.Success(w, []audit.Event{}, requestID)
		return
	}
	events, err := h.Audit.List(r.Context(), sess.CacheKey(), page.Limit, page.Offset)
	if err != nil {
		slog.Error("audit list failed", "requestId", requestID, "err", err)
		api.Fail(w, http.StatusInternalServerError, "activity_failed", "Failed to load activity.", requestID)
		return
	}
	api.Success(w, events, requestID)
}
