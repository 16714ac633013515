package leave

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/platform/cache"
)

// Upstream is the remote leave API. Every call carries the caller's session.
type Upstream interface {
	LeaveTypes(ctx context.Context, sess auth.Session) ([]LeaveType, error)
	Balances(ctx context.Context, sess auth.Session, year int) ([]LeaveBalance, error)
	Requests(ctx context.Context, sess auth.Session) ([]LeaveRequest, error)
	Holidays(ctx context.Context, sess auth.Session) ([]Holiday, error)
	TeamCalendar(ctx context.Context, sess auth.Session, from, to Date) ([]CalendarEntry, error)
	SubmitRequest(ctx context.Context, sess auth.Session, payload SubmitPayload) (LeaveRequest, error)
	CancelRequest(ctx context.Context, sess auth.Session, requestID string) error
}

type Dashboard struct {
	Year       int              `json:"year"`
	LeaveTypes []LeaveType      `json:"leave_types"`
	Balances   []BalanceSummary `json:"balances"`
	Requests   []LeaveRequest   `json:"requests"`
	Warnings   []string         `json:"warnings,omitempty"`
	FetchedAt  time.Time        `json:"fetched_at"`
	Stale      bool             `json:"stale"`
}

func (d Dashboard) RawBalances() []LeaveBalance {
	out := make([]LeaveBalance, 0, len(d.Balances))
	for _, b := range d.Balances {
		out = append(out, b.LeaveBalance)
	}
	return out
}

type partialDashboardError struct {
	dashboard Dashboard
}

func (e *partialDashboardError) Error() string {
	return "dashboard partially loaded: " + strings.Join(e.dashboard.Warnings, "; ")
}

type Service struct {
	API        Upstream
	Validator  *Validator
	Dashboards *cache.Cache[Dashboard]
	Catalog    *cache.Cache[[]Holiday]
	Now        func() time.Time
}

func NewService(api Upstream, validator *Validator, dashboards *cache.Cache[Dashboard], holidays *cache.Cache[[]Holiday]) *Service {
	return &Service{API: api, Validator: validator, Dashboards: dashboards, Catalog: holidays, Now: time.Now}
}

// StaleFallbackAllowed tells the caches whether a refresh error may be
// answered with an expired entry. An expired session never is.
func StaleFallbackAllowed(err error) bool {
	return !errors.Is(err, ErrUnauthorized)
}

func (s *Service) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

func dashboardPrefix(sess auth.Session) string {
	return "dashboard:" + sess.CacheKey() + ":"
}

func holidayKey(sess auth.Session) string {
	if sess.TenantID != "" {
		return "holidays:" + sess.TenantID
	}
	return "holidays"
}

// Dashboard returns leave types, balances and requests for the caller. The
// three are fetched in parallel; a failing fetch leaves its own slice empty
// and adds a warning. Only a complete result is cached.
func (s *Service) Dashboard(ctx context.Context, sess auth.Session, year int) (Dashboard, error) {
	if year <= 0 {
		year = s.now().Year()
	}
	key := fmt.Sprintf("%s%d", dashboardPrefix(sess), year)
	res, err := s.Dashboards.GetOrRefresh(ctx, key, func(ctx context.Context) (Dashboard, error) {
		return s.fetchDashboard(ctx, sess, year)
	})
	if err != nil {
		var partial *partialDashboardError
		if errors.As(err, &partial) {
			d := partial.dashboard
			d.FetchedAt = s.now()
			return d, nil
		}
		return Dashboard{}, err
	}
	d := res.Value
	d.FetchedAt = res.StoredAt
	d.Stale = res.Stale
	return d, nil
}

func (s *Service) fetchDashboard(ctx context.Context, sess auth.Session, year int) (Dashboard, error) {
	var (
		types       []LeaveType
		balances    []LeaveBalance
		requests    []LeaveRequest
		typesErr    error
		balancesErr error
		requestsErr error
	)

	var g errgroup.Group
	g.Go(func() error {
		types, typesErr = s.API.LeaveTypes(ctx, sess)
		return nil
	})
	g.Go(func() error {
		balances, balancesErr = s.API.Balances(ctx, sess, year)
		return nil
	})
	g.Go(func() error {
		requests, requestsErr = s.API.Requests(ctx, sess)
		return nil
	})
	_ = g.Wait()

	for _, err := range []error{typesErr, balancesErr, requestsErr} {
		if errors.Is(err, ErrUnauthorized) {
			return Dashboard{}, err
		}
	}
	if typesErr != nil && balancesErr != nil && requestsErr != nil {
		return Dashboard{}, errors.Join(typesErr, balancesErr, requestsErr)
	}

	d := Dashboard{
		Year:       year,
		LeaveTypes: []LeaveType{},
		Balances:   []BalanceSummary{},
		Requests:   []LeaveRequest{},
	}
	if typesErr != nil {
		slog.Warn("leave types fetch failed", "err", typesErr)
		d.Warnings = append(d.Warnings, "leave types unavailable")
	} else if types != nil {
		d.LeaveTypes = types
	}
	if balancesErr != nil {
		slog.Warn("leave balances fetch failed", "year", year, "err", balancesErr)
		d.Warnings = append(d.Warnings, "leave balances unavailable")
	} else {
		for _, b := range balances {
			d.Balances = append(d.Balances, b.Summary())
		}
	}
	if requestsErr != nil {
		slog.Warn("leave requests fetch failed", "err", requestsErr)
		d.Warnings = append(d.Warnings, "leave requests unavailable")
	} else if requests != nil {
		d.Requests = requests
	}

	if len(d.Warnings) > 0 {
		return d, &partialDashboardError{dashboard: d}
	}
	return d, nil
}

// Holidays never fails: a missing or broken holiday endpoint means no holidays.
func (s *Service) Holidays(ctx context.Context, sess auth.Session) []Holiday {
	res, err := s.Catalog.GetOrRefresh(ctx, holidayKey(sess), func(ctx context.Context) ([]Holiday, error) {
		return s.API.Holidays(ctx, sess)
	})
	if err != nil {
		slog.Warn("holiday fetch failed, continuing without holidays", "err", err)
		return []Holiday{}
	}
	if res.Value == nil {
		return []Holiday{}
	}
	return res.Value
}

// RefreshHolidays reloads the holiday list regardless of its age.
func (s *Service) RefreshHolidays(ctx context.Context, sess auth.Session) (int, error) {
	res, err := s.Catalog.Refresh(ctx, holidayKey(sess), func(ctx context.Context) ([]Holiday, error) {
		return s.API.Holidays(ctx, sess)
	})
	if err != nil {
		return 0, err
	}
	return len(res.Value), nil
}

type RequestQuery struct {
	Status      Status
	LeaveTypeID string
	SortBy      string
	Descending  bool
	Limit       int
	Offset      int
}

type RequestPage struct {
	Items []LeaveRequest `json:"items"`
	Total int            `json:"total"`
	Stale bool           `json:"stale"`
}

const (
	SortByStartDate = "start_date"
	SortByCreatedAt = "created_at"
)

// Requests filters, sorts and pages the caller's requests in memory.
func (s *Service) Requests(ctx context.Context, sess auth.Session, q RequestQuery) (RequestPage, error) {
	d, err := s.Dashboard(ctx, sess, s.now().Year())
	if err != nil {
		return RequestPage{}, err
	}
	return PageRequests(d.Requests, q, d.Stale), nil
}

func PageRequests(requests []LeaveRequest, q RequestQuery, stale bool) RequestPage {
	filtered := make([]LeaveRequest, 0, len(requests))
	for _, r := range requests {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.LeaveTypeID != "" && r.LeaveTypeID != q.LeaveTypeID {
			continue
		}
		filtered = append(filtered, r)
	}

	less := func(a, b LeaveRequest) bool { return a.CreatedAt.Before(b.CreatedAt) }
	if q.SortBy == SortByStartDate {
		less = func(a, b LeaveRequest) bool { return a.StartDate.Before(b.StartDate) }
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		if q.Descending {
			return less(filtered[j], filtered[i])
		}
		return less(filtered[i], filtered[j])
	})

	page := RequestPage{Total: len(filtered), Stale: stale, Items: []LeaveRequest{}}
	if q.Offset >= len(filtered) {
		return page
	}
	end := len(filtered)
	if q.Limit > 0 && q.Offset+q.Limit < end {
		end = q.Offset + q.Limit
	}
	page.Items = filtered[q.Offset:end]
	return page
}

type Preview struct {
	StartDate   Date         `json:"start_date"`
	EndDate     Date         `json:"end_date"`
	WorkingDays int          `json:"working_days"`
	Excluded    ExcludedDays `json:"excluded"`
}

func (s *Service) Preview(ctx context.Context, sess auth.Session, start, end Date) (Preview, error) {
	if start.IsZero() || end.IsZero() || end.Before(start) {
		return Preview{}, &ValidationError{Code: CodeInvalidDates, Message: "End date must be on or after the start date."}
	}
	holidays := NewHolidaySet(s.Holidays(ctx, sess))
	return Preview{
		StartDate:   start,
		EndDate:     end,
		WorkingDays: CountWorkingDays(start, end, holidays),
		Excluded:    ListExcludedDays(start, end, holidays),
	}, nil
}

// Validate resolves the draft's leave type, balance and holidays and runs the
// local rules. A pass is advisory; the remote API stays authoritative.
func (s *Service) Validate(ctx context.Context, sess auth.Session, form DraftRequest) (int, error) {
	year := s.now().Year()
	if !form.StartDate.IsZero() {
		year = form.StartDate.Year()
	}
	d, err := s.Dashboard(ctx, sess, year)
	if err != nil {
		return 0, err
	}
	var leaveType *LeaveType
	if form.LeaveTypeID != "" {
		leaveType = FindLeaveType(d.LeaveTypes, form.LeaveTypeID)
	}
	balance := FindBalance(d.RawBalances(), form.LeaveTypeID, year)
	holidays := NewHolidaySet(s.Holidays(ctx, sess))
	return s.Validator.Validate(form, leaveType, balance, holidays)
}

type SubmitOutcome struct {
	State         RequestState  `json:"state"`
	DaysRequested int           `json:"days_requested"`
	Request       *LeaveRequest `json:"request,omitempty"`
	Message       string        `json:"message,omitempty"`
}

// Submit validates the draft and, only if it passes, sends it with the
// freshly computed day count.
func (s *Service) Submit(ctx context.Context, sess auth.Session, form DraftRequest) (SubmitOutcome, error) {
	state := StateDraft
	days, err := s.Validate(ctx, sess, form)
	if err != nil {
		return SubmitOutcome{State: state, Message: DescribeSubmitError(err)}, err
	}

	state, _ = state.Next(EventSubmit)
	created, err := s.API.SubmitRequest(ctx, sess, NewSubmitPayload(form, days))
	if err != nil {
		state, _ = state.Next(EventFailed)
		serr := &SubmitError{Friendly: DescribeSubmitError(err), Err: err}
		slog.Warn("leave request submission failed", "leaveTypeId", form.LeaveTypeID, "err", err)
		return SubmitOutcome{State: state, DaysRequested: days, Message: serr.Friendly}, serr
	}
	state, _ = state.Next(EventSucceeded)
	s.invalidate(ctx, sess)

	out := SubmitOutcome{State: state, DaysRequested: days}
	if created.ID != "" {
		out.Request = &created
	}
	return out, nil
}

type CancelOutcome struct {
	RequestID string       `json:"request_id"`
	State     RequestState `json:"state"`
	Message   string       `json:"message,omitempty"`
}

// Cancel withdraws a pending request. A failed cancel leaves the request
// pending; nothing is assumed cancelled until the API confirms it.
func (s *Service) Cancel(ctx context.Context, sess auth.Session, requestID string) (CancelOutcome, error) {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return CancelOutcome{}, ErrRequestNotFound
	}

	state := StatePending
	if d, err := s.Dashboard(ctx, sess, s.now().Year()); err == nil {
		for _, r := range d.Requests {
			if r.ID == requestID {
				state = Observe(r.Status)
				break
			}
		}
	}
	if !state.CanCancel() {
		return CancelOutcome{RequestID: requestID, State: state, Message: "Only pending requests can be cancelled."}, ErrNotCancellable
	}

	state, _ = state.Next(EventCancel)
	if err := s.API.CancelRequest(ctx, sess, requestID); err != nil {
		state, _ = state.Next(EventFailed)
		slog.Warn("leave request cancel failed", "requestId", requestID, "err", err)
		return CancelOutcome{RequestID: requestID, State: state, Message: "Failed to cancel leave request. Please try again."}, err
	}
	state, _ = state.Next(EventSucceeded)
	s.invalidate(ctx, sess)
	return CancelOutcome{RequestID: requestID, State: state}, nil
}

func (s *Service) Calendar(ctx context.Context, sess auth.Session, year int, month time.Month) (MonthGrid, error) {
	if month < time.January || month > time.December {
		return MonthGrid{}, fmt.Errorf("invalid month %d", month)
	}
	from, to := GridRange(year, month)
	entries, err := s.API.TeamCalendar(ctx, sess, from, to)
	if err != nil {
		return MonthGrid{}, err
	}
	holidays := NewHolidaySet(s.Holidays(ctx, sess))
	return BuildMonthGrid(year, month, entries, holidays), nil
}

func (s *Service) invalidate(ctx context.Context, sess auth.Session) {
	if err := s.Dashboards.InvalidatePrefix(ctx, dashboardPrefix(sess)); err != nil {
		slog.Warn("dashboard cache invalidation failed", "err", err)
	}
}
