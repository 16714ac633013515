package leave

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"leavedesk/internal/domain/auth"
	"leavedesk/internal/platform/cache"
)

type fakeUpstream struct {
	mu sync.Mutex

	types       []LeaveType
	balances    []LeaveBalance
	requests    []LeaveRequest
	holidays    []Holiday
	calendar    []CalendarEntry
	typesErr    error
	balancesErr error
	requestsErr error
	holidaysErr error
	submitErr   error
	cancelErr   error

	// holidaysStarted is closed when a holiday fetch begins; the fetch then
	// waits for holidaysGate.
	holidaysStarted chan struct{}
	holidaysGate    chan struct{}

	calls     map[string]int
	submitted []SubmitPayload
}

func (f *fakeUpstream) count(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[name]++
}

func (f *fakeUpstream) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeUpstream) LeaveTypes(context.Context, auth.Session) ([]LeaveType, error) {
	f.count("types")
	return f.types, f.typesErr
}

func (f *fakeUpstream) Balances(context.Context, auth.Session, int) ([]LeaveBalance, error) {
	f.count("balances")
	return f.balances, f.balancesErr
}

func (f *fakeUpstream) Requests(context.Context, auth.Session) ([]LeaveRequest, error) {
	f.count("requests")
	return f.requests, f.requestsErr
}

func (f *fakeUpstream) Holidays(ctx context.Context, _ auth.Session) ([]Holiday, error) {
	f.count("holidays")
	if f.holidaysGate != nil {
		close(f.holidaysStarted)
		<-f.holidaysGate
		if err := ctx.Err(); err != nil {
			return nil, err
		}
	}
	return f.holidays, f.holidaysErr
}

func (f *fakeUpstream) TeamCalendar(context.Context, auth.Session, Date, Date) ([]CalendarEntry, error) {
	f.count("calendar")
	return f.calendar, nil
}

func (f *fakeUpstream) SubmitRequest(_ context.Context, _ auth.Session, payload SubmitPayload) (LeaveRequest, error) {
	f.count("submit")
	if f.submitErr != nil {
		return LeaveRequest{}, f.submitErr
	}
	f.mu.Lock()
	f.submitted = append(f.submitted, payload)
	f.mu.Unlock()
	return LeaveRequest{
		ID:            "new-1",
		LeaveTypeID:   payload.LeaveTypeID,
		StartDate:     payload.StartDate,
		EndDate:       payload.EndDate,
		DaysRequested: payload.DaysRequested,
		Status:        StatusPending,
	}, nil
}

func (f *fakeUpstream) CancelRequest(context.Context, auth.Session, string) error {
	f.count("cancel")
	return f.cancelErr
}

type serviceFixture struct {
	svc   *Service
	api   *fakeUpstream
	clock *time.Time
}

func newServiceFixture(t *testing.T, api *fakeUpstream) serviceFixture {
	t.Helper()
	now := time.Date(2024, time.January, 1, 9, 0, 0, 0, time.UTC)
	clock := &now
	nowFn := func() time.Time { return *clock }

	mem := cache.NewMemory()
	mem.Now = nowFn
	dashboards := cache.New[Dashboard](mem, cache.Options{Name: "dashboard", TTL: 5 * time.Minute, Retention: time.Hour, Now: nowFn, Fallback: StaleFallbackAllowed})
	holidays := cache.New[[]Holiday](mem, cache.Options{Name: "holidays", TTL: time.Hour, Retention: 24 * time.Hour, Now: nowFn})

	validator, err := NewValidator("")
	require.NoError(t, err)
	validator.Now = nowFn

	svc := NewService(api, validator, dashboards, holidays)
	svc.Now = nowFn
	return serviceFixture{svc: svc, api: api, clock: clock}
}

func defaultUpstream() *fakeUpstream {
	return &fakeUpstream{
		types: []LeaveType{
			{ID: "annual", Name: "Annual Leave", MaxConsecutiveDays: 10, NoticePeriodDays: 2},
			{ID: "sick", Name: "Sick Leave", RequiresDocumentation: true},
		},
		balances: []LeaveBalance{
			{LeaveTypeID: "annual", Year: 2024, TotalDays: 12, CarryForwardDays: 3, UsedDays: 10, PendingDays: 2},
		},
		requests: []LeaveRequest{
			{ID: "r1", LeaveTypeID: "annual", Status: StatusPending, StartDate: NewDate(2024, time.February, 5), CreatedAt: time.Date(2023, 12, 1, 0, 0, 0, 0, time.UTC)},
			{ID: "r2", LeaveTypeID: "sick", Status: StatusApproved, StartDate: NewDate(2023, time.November, 6), CreatedAt: time.Date(2023, 11, 1, 0, 0, 0, 0, time.UTC)},
		},
	}
}

var testSession = auth.Session{Token: "tok", UserID: "u1"}

func TestDashboardCachesWithinTTL(t *testing.T) {
	fx := newServiceFixture(t, defaultUpstream())
	ctx := context.Background()

	d, err := fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	require.Len(t, d.Balances, 1)
	assert.Equal(t, 3.0, d.Balances[0].AvailableDays)

	*fx.clock = fx.clock.Add(2 * time.Minute)
	_, err = fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	assert.Equal(t, 1, fx.api.callCount("types"))

	*fx.clock = fx.clock.Add(4 * time.Minute)
	_, err = fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2, fx.api.callCount("types"))
}

func TestDashboardPartialFailureIsIsolatedAndNotCached(t *testing.T) {
	api := defaultUpstream()
	api.balancesErr = errors.New("balance service down")
	fx := newServiceFixture(t, api)
	ctx := context.Background()

	d, err := fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	assert.Len(t, d.LeaveTypes, 2)
	assert.Empty(t, d.Balances)
	assert.NotNil(t, d.Balances)
	assert.Contains(t, d.Warnings, "leave balances unavailable")

	api.balancesErr = nil
	d, err = fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	assert.Len(t, d.Balances, 1)
	assert.Equal(t, 2, api.callCount("types"))
}

func TestDashboardFallsBackToStaleCache(t *testing.T) {
	api := defaultUpstream()
	fx := newServiceFixture(t, api)
	ctx := context.Background()

	_, err := fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)

	*fx.clock = fx.clock.Add(10 * time.Minute)
	api.typesErr = errors.New("offline")
	api.balancesErr = errors.New("offline")
	api.requestsErr = errors.New("offline")

	d, err := fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	assert.True(t, d.Stale)
	assert.Len(t, d.Requests, 2)
}

func TestDashboardUnauthorizedIsNeverMasked(t *testing.T) {
	api := defaultUpstream()
	fx := newServiceFixture(t, api)
	ctx := context.Background()

	_, err := fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)

	*fx.clock = fx.clock.Add(10 * time.Minute)
	api.requestsErr = ErrUnauthorized

	_, err = fx.svc.Dashboard(ctx, testSession, 2024)
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestHolidaysDegradeToEmpty(t *testing.T) {
	api := defaultUpstream()
	api.holidaysErr = errors.New("404 not found")
	fx := newServiceFixture(t, api)

	holidays := fx.svc.Holidays(context.Background(), testSession)
	assert.NotNil(t, holidays)
	assert.Empty(t, holidays)
}

func TestSubmitKeepsHolidaysWhenAnotherCallerCancels(t *testing.T) {
	api := defaultUpstream()
	api.holidays = []Holiday{{Date: NewDate(2024, time.January, 15), Name: "Founders Day"}}
	api.holidaysStarted = make(chan struct{})
	api.holidaysGate = make(chan struct{})
	fx := newServiceFixture(t, api)

	ctxA, cancelA := context.WithCancel(context.Background())
	doneA := make(chan []Holiday, 1)
	go func() {
		doneA <- fx.svc.Holidays(ctxA, auth.Session{Token: "other", UserID: "u2"})
	}()
	<-api.holidaysStarted
	cancelA()
	assert.Empty(t, <-doneA)

	go func() {
		time.Sleep(20 * time.Millisecond)
		close(api.holidaysGate)
	}()
	out, err := fx.svc.Submit(context.Background(), testSession, DraftRequest{
		LeaveTypeID:   "annual",
		StartDate:     NewDate(2024, time.January, 15),
		EndDate:       NewDate(2024, time.January, 16),
		Reason:        "Long weekend",
		ContactNumber: "+911234567890",
	})
	require.NoError(t, err)
	assert.Equal(t, 1, out.DaysRequested)
	require.Len(t, api.submitted, 1)
	assert.Equal(t, 1, api.submitted[0].DaysRequested)
	assert.Equal(t, 1, api.callCount("holidays"))
}

func TestSubmitSendsComputedDaysAndInvalidates(t *testing.T) {
	api := defaultUpstream()
	api.holidays = []Holiday{{Date: NewDate(2024, time.January, 16), Name: "Harvest Day"}}
	fx := newServiceFixture(t, api)
	ctx := context.Background()

	out, err := fx.svc.Submit(ctx, testSession, DraftRequest{
		LeaveTypeID:   "annual",
		StartDate:     NewDate(2024, time.January, 15),
		EndDate:       NewDate(2024, time.January, 17),
		Reason:        "Trip",
		ContactNumber: "+911234567890",
	})
	require.NoError(t, err)
	assert.Equal(t, StatePending, out.State)
	assert.Equal(t, 2, out.DaysRequested)
	require.Len(t, api.submitted, 1)
	assert.Equal(t, 2, api.submitted[0].DaysRequested)
	assert.Equal(t, 2, out.Request.DaysRequested)

	_, err = fx.svc.Dashboard(ctx, testSession, 2024)
	require.NoError(t, err)
	assert.Equal(t, 2, api.callCount("types"), "submit must invalidate the cached dashboard")
}

func TestSubmitBlockedLocallyNeverReachesServer(t *testing.T) {
	api := defaultUpstream()
	fx := newServiceFixture(t, api)

	out, err := fx.svc.Submit(context.Background(), testSession, DraftRequest{
		LeaveTypeID:   "annual",
		StartDate:     NewDate(2024, time.January, 15),
		EndDate:       NewDate(2024, time.January, 19),
		Reason:        "Trip",
		ContactNumber: "+911234567890",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, CodeInsufficientBalance, verr.Code)
	assert.Equal(t, StateDraft, out.State)
	assert.Equal(t, 0, api.callCount("submit"))
}

func TestSubmitServerRejection(t *testing.T) {
	api := defaultUpstream()
	api.submitErr = fakeServerError{msg: "Request overlaps with existing leave"}
	fx := newServiceFixture(t, api)

	out, err := fx.svc.Submit(context.Background(), testSession, DraftRequest{
		LeaveTypeID:   "annual",
		StartDate:     NewDate(2024, time.January, 15),
		EndDate:       NewDate(2024, time.January, 15),
		Reason:        "Trip",
		ContactNumber: "+911234567890",
	})
	var serr *SubmitError
	require.ErrorAs(t, err, &serr)
	assert.Equal(t, StateSubmissionFailed, out.State)
	assert.Equal(t, "You already have a leave request covering some of these dates.", out.Message)
}

func TestCancelOnlyPending(t *testing.T) {
	api := defaultUpstream()
	fx := newServiceFixture(t, api)
	ctx := context.Background()

	_, err := fx.svc.Cancel(ctx, testSession, "r2")
	require.ErrorIs(t, err, ErrNotCancellable)
	assert.Equal(t, 0, api.callCount("cancel"))

	out, err := fx.svc.Cancel(ctx, testSession, "r1")
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, out.State)
}

func TestCancelFailureRevertsToPending(t *testing.T) {
	api := defaultUpstream()
	api.cancelErr = errors.New("gateway timeout")
	fx := newServiceFixture(t, api)

	out, err := fx.svc.Cancel(context.Background(), testSession, "r1")
	require.Error(t, err)
	assert.Equal(t, StatePending, out.State)
}

func TestRequestsFilterSortPage(t *testing.T) {
	fx := newServiceFixture(t, defaultUpstream())

	page, err := fx.svc.Requests(context.Background(), testSession, RequestQuery{SortBy: SortByStartDate, Descending: true, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 2, page.Total)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r1", page.Items[0].ID)

	page, err = fx.svc.Requests(context.Background(), testSession, RequestQuery{Status: StatusApproved})
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, "r2", page.Items[0].ID)

	page, err = fx.svc.Requests(context.Background(), testSession, RequestQuery{Offset: 5})
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}

func TestPreviewAndCalendar(t *testing.T) {
	api := defaultUpstream()
	api.holidays = []Holiday{{Date: NewDate(2024, time.January, 16), Name: "Harvest Day"}}
	api.calendar = []CalendarEntry{{RequestID: "r1", StartDate: NewDate(2024, time.January, 15), EndDate: NewDate(2024, time.January, 15)}}
	fx := newServiceFixture(t, api)
	ctx := context.Background()

	preview, err := fx.svc.Preview(ctx, testSession, NewDate(2024, time.January, 12), NewDate(2024, time.January, 16))
	require.NoError(t, err)
	assert.Equal(t, 2, preview.WorkingDays)
	assert.Len(t, preview.Excluded.Weekends, 2)
	assert.Len(t, preview.Excluded.Holidays, 1)

	_, err = fx.svc.Preview(ctx, testSession, NewDate(2024, time.January, 16), NewDate(2024, time.January, 12))
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	grid, err := fx.svc.Calendar(ctx, testSession, 2024, time.January)
	require.NoError(t, err)
	assert.Len(t, grid.Cells, 42)
}
