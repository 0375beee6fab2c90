package checkin

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/domain/employee"
	"github.com/attendly/attendly-backend-go/internal/domain/leave"
	"github.com/attendly/attendly-backend-go/internal/domain/notification"
	"github.com/attendly/attendly-backend-go/internal/domain/shift"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
	"github.com/attendly/attendly-backend-go/internal/service/period"
)

var jakarta = mustLoadLocation("Asia/Jakarta")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(err)
	}
	return loc
}

// monday is a workday for the fixture shift, saturday is not.
func monday(hour, min int) time.Time {
	return time.Date(2025, time.March, 3, hour, min, 0, 0, jakarta)
}

func saturday(hour, min int) time.Time {
	return time.Date(2025, time.March, 1, hour, min, 0, 0, jakarta)
}

type fakeTxm struct {
	// fail holds errors returned before fn runs, consumed in order.
	mu    sync.Mutex
	fail  []error
	calls int
}

func (f *fakeTxm) WithinTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	f.mu.Lock()
	f.calls++
	if len(f.fail) > 0 {
		err := f.fail[0]
		f.fail = f.fail[1:]
		f.mu.Unlock()
		return err
	}
	f.mu.Unlock()
	return fn(ctx)
}

type fakeEmployees struct {
	byID map[string]employee.Employee
}

func (f *fakeEmployees) GetByID(ctx context.Context, id string) (employee.Employee, error) {
	emp, ok := f.byID[id]
	if !ok {
		return employee.Employee{}, employee.ErrEmployeeNotFound
	}
	return emp, nil
}

func (f *fakeEmployees) GetByCode(ctx context.Context, code string) (employee.Employee, error) {
	for _, emp := range f.byID {
		if emp.Code == code {
			return emp, nil
		}
	}
	return employee.Employee{}, employee.ErrEmployeeNotFound
}

func (f *fakeEmployees) GetByExternalID(ctx context.Context, externalID string) (employee.Employee, error) {
	for _, emp := range f.byID {
		if emp.ExternalID != nil && *emp.ExternalID == externalID {
			return emp, nil
		}
	}
	return employee.Employee{}, employee.ErrEmployeeNotFound
}

func (f *fakeEmployees) ListApproverIDs(ctx context.Context) ([]string, error) {
	var ids []string
	for _, emp := range f.byID {
		if emp.IsApprover {
			ids = append(ids, emp.ID)
		}
	}
	return ids, nil
}

type fakeShifts struct {
	byID map[string]shift.Shift
}

func (f *fakeShifts) GetByID(ctx context.Context, id string) (shift.Shift, error) {
	s, ok := f.byID[id]
	if !ok {
		return shift.Shift{}, shift.ErrShiftNotFound
	}
	return s, nil
}

type fakeHolidays struct {
	byDate map[string]shift.Holiday
}

func (f *fakeHolidays) Create(ctx context.Context, h shift.Holiday) (shift.Holiday, error) {
	key := h.Date.Format("2006-01-02")
	if _, ok := f.byDate[key]; ok {
		return shift.Holiday{}, shift.ErrHolidayExists
	}
	f.byDate[key] = h
	return h, nil
}

func (f *fakeHolidays) GetByDate(ctx context.Context, date time.Time) (*shift.Holiday, error) {
	h, ok := f.byDate[date.Format("2006-01-02")]
	if !ok {
		return nil, nil
	}
	return &h, nil
}

func (f *fakeHolidays) List(ctx context.Context, from, to time.Time) ([]shift.Holiday, error) {
	var list []shift.Holiday
	for _, h := range f.byDate {
		if !h.Date.Before(from) && !h.Date.After(to) {
			list = append(list, h)
		}
	}
	return list, nil
}

type fakeOvertime struct {
	windows []shift.OvertimeWindow
}

func (f *fakeOvertime) Create(ctx context.Context, w shift.OvertimeWindow) (shift.OvertimeWindow, error) {
	w.ID = fmt.Sprintf("ot-%d", len(f.windows)+1)
	f.windows = append(f.windows, w)
	return w, nil
}

func (f *fakeOvertime) ListForDay(ctx context.Context, employeeID string, dayStart, dayEnd time.Time) ([]shift.OvertimeWindow, error) {
	var list []shift.OvertimeWindow
	for _, w := range f.windows {
		if w.EmployeeID == employeeID && w.StartAt.Before(dayEnd) && !w.EndAt.Before(dayStart) {
			list = append(list, w)
		}
	}
	return list, nil
}

// fakeAttendance mirrors the real upsert semantics: natural key, state
// never regresses, check-in and checkout fields merge.
type fakeAttendance struct {
	mu      sync.Mutex
	rows    map[string]attendance.Attendance
	entries map[string]attendance.TimeEntry
	nextID  int

	// failUpserts counts down transient failures injected into Upsert.
	failUpserts int
}

func newFakeAttendance() *fakeAttendance {
	return &fakeAttendance{
		rows:    make(map[string]attendance.Attendance),
		entries: make(map[string]attendance.TimeEntry),
	}
}

func keyOf(k attendance.Key) string {
	return fmt.Sprintf("%s|%s|%s|%d", k.EmployeeID, k.Date.Format("2006-01-02"), k.PeriodType, k.PeriodSeq)
}

func (f *fakeAttendance) GetByKey(ctx context.Context, key attendance.Key) (*attendance.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row, ok := f.rows[keyOf(key)]
	if !ok {
		return nil, nil
	}
	return &row, nil
}

func (f *fakeAttendance) Upsert(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.failUpserts > 0 {
		f.failUpserts--
		return attendance.Attendance{}, database.MarkRetryable(fmt.Errorf("connection reset"))
	}

	k := keyOf(att.Key())
	existing, ok := f.rows[k]
	if !ok {
		f.nextID++
		att.ID = fmt.Sprintf("att-%d", f.nextID)
		f.rows[k] = att
		return att, nil
	}

	if !existing.State.CanAdvanceTo(att.State) ||
		(att.State == attendance.StateOff && existing.CheckInAt != nil) {
		return existing, nil
	}

	existing.State = att.State
	if existing.CheckInAt == nil {
		existing.CheckInAt = att.CheckInAt
		existing.CheckInAddress = att.CheckInAddress
	}
	if att.CheckOutAt != nil {
		existing.CheckOutAt = att.CheckOutAt
		existing.CheckOutAddress = att.CheckOutAddress
	}
	existing.ManualEntry = existing.ManualEntry || att.ManualEntry
	existing.Holiday = existing.Holiday || att.Holiday
	f.rows[k] = existing
	return existing, nil
}

func (f *fakeAttendance) UpsertTimeEntry(ctx context.Context, entry attendance.TimeEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries[entry.AttendanceID] = entry
	return nil
}

func (f *fakeAttendance) GetLatestForDay(ctx context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest *attendance.Attendance
	for _, row := range f.rows {
		if row.EmployeeID == employeeID && row.Date.Format("2006-01-02") == date.Format("2006-01-02") {
			r := row
			latest = &r
		}
	}
	return latest, nil
}

func (f *fakeAttendance) ListForEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]attendance.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []attendance.Attendance
	for _, row := range f.rows {
		if row.EmployeeID == employeeID && !row.Date.Before(from) && !row.Date.After(to) {
			list = append(list, row)
		}
	}
	return list, nil
}

func (f *fakeAttendance) ListStaleInProgress(ctx context.Context, before time.Time) ([]attendance.Attendance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var list []attendance.Attendance
	for _, row := range f.rows {
		if row.State == attendance.StateInProgress && row.Date.Before(before) {
			list = append(list, row)
		}
	}
	return list, nil
}

func (f *fakeAttendance) DeleteSynthesized(ctx context.Context, employeeID string, from, to time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	removed := 0
	for k, row := range f.rows {
		if row.EmployeeID != employeeID || row.Date.Before(from) || row.Date.After(to) {
			continue
		}
		untouched := row.CheckInAt == nil &&
			(row.State == attendance.StateOff || row.State == attendance.StateIncomplete)
		if row.PeriodType == attendance.PeriodRegular && untouched {
			delete(f.rows, k)
			removed++
		}
	}
	return removed, nil
}

type fakeLeaves struct {
	covered map[string]bool
}

func (f *fakeLeaves) Create(ctx context.Context, req leave.Request) (leave.Request, error) {
	req.ID = "lr-1"
	return req, nil
}

func (f *fakeLeaves) GetByID(ctx context.Context, id string) (leave.Request, error) {
	return leave.Request{}, leave.ErrRequestNotFound
}

func (f *fakeLeaves) UpdateStatus(ctx context.Context, update leave.StatusUpdate, expect leave.Status) error {
	return nil
}

func (f *fakeLeaves) ListForEmployee(ctx context.Context, employeeID string) ([]leave.Request, error) {
	return nil, nil
}

func (f *fakeLeaves) SumApprovedDays(ctx context.Context, employeeID string, category leave.Category) (float64, error) {
	return 0, nil
}

func (f *fakeLeaves) HasApprovedCovering(ctx context.Context, employeeID string, date time.Time) (bool, error) {
	return f.covered[date.Format("2006-01-02")], nil
}

type fakeFiler struct {
	mu    sync.Mutex
	filed []string
}

func (f *fakeFiler) FileEmergencySickLeave(ctx context.Context, employeeID string, date time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filed = append(f.filed, employeeID+"|"+date.Format("2006-01-02"))
	return nil
}

type fakeSender struct {
	mu    sync.Mutex
	kinds []notification.Kind
}

func (f *fakeSender) SendRequestNotification(ctx context.Context, recipientID, requestID string, kind notification.Kind, subject string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.kinds = append(f.kinds, kind)
}

type fakeCache struct {
	mu       sync.Mutex
	values   map[string]interface{}
	patterns []string
}

func newFakeCache() *fakeCache {
	return &fakeCache{values: make(map[string]interface{})}
}

func (f *fakeCache) Get(ctx context.Context, key string) (interface{}, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.values[key]
	return v, ok
}

func (f *fakeCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
}

func (f *fakeCache) InvalidatePattern(ctx context.Context, pattern string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patterns = append(f.patterns, pattern)
	for key := range f.values {
		delete(f.values, key)
	}
	return true
}

type fixture struct {
	svc         *Service
	txm         *fakeTxm
	attendances *fakeAttendance
	overtime    *fakeOvertime
	holidays    *fakeHolidays
	leaves      *fakeLeaves
	filer       *fakeFiler
	sender      *fakeSender
	cache       *fakeCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	officeShift := shift.Shift{
		ID:           "shift-1",
		Name:         "office",
		StartMinutes: 8 * 60,
		EndMinutes:   17 * 60,
		Workdays: shift.NewWorkdays(
			time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday,
		),
	}

	external := "wa-4411"
	employees := &fakeEmployees{byID: map[string]employee.Employee{
		"emp-1": {ID: "emp-1", Name: "Ana", Code: "1000-0001", ShiftID: "shift-1", ExternalID: &external},
	}}

	f := &fixture{
		txm:         &fakeTxm{},
		attendances: newFakeAttendance(),
		overtime:    &fakeOvertime{},
		holidays:    &fakeHolidays{byDate: map[string]shift.Holiday{}},
		leaves:      &fakeLeaves{covered: map[string]bool{}},
		filer:       &fakeFiler{},
		sender:      &fakeSender{},
		cache:       newFakeCache(),
	}

	f.svc = NewService(
		f.txm,
		employees,
		&fakeShifts{byID: map[string]shift.Shift{"shift-1": officeShift}},
		f.holidays,
		f.overtime,
		f.attendances,
		f.leaves,
		f.filer,
		period.NewResolver(period.Options{}),
		f.sender,
		f.cache,
		jakarta,
		5*time.Minute,
		slog.New(slog.DiscardHandler),
	)
	return f
}

func TestProcess_CheckInOpensSession(t *testing.T) {
	f := newFixture(t)

	proj, err := f.svc.Process(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 2),
		Address:    "HQ lobby",
	})
	require.NoError(t, err)

	require.NotNil(t, proj.LatestAttendance)
	assert.Equal(t, attendance.StateInProgress, proj.LatestAttendance.State)
	assert.Equal(t, attendance.PeriodRegular, proj.LatestAttendance.PeriodType)
	require.NotNil(t, proj.LatestAttendance.CheckInAt)
	assert.Nil(t, proj.LatestAttendance.CheckOutAt)

	entry := f.attendances.entries[proj.LatestAttendance.ID]
	assert.Equal(t, 0, entry.LateMinutes)

	assert.Equal(t, []notification.Kind{notification.KindCheckedIn}, f.sender.kinds)
	assert.NotEmpty(t, f.cache.patterns)
}

func TestProcess_LateCheckInRecordsMinutes(t *testing.T) {
	f := newFixture(t)

	proj, err := f.svc.Process(context.Background(), SubmitRequest{
		EmployeeID: "emp-1",
		At:         monday(8, 20),
	})
	require.NoError(t, err)

	entry := f.attendances.entries[proj.LatestAttendance.ID]
	assert.Equal(t, 20, entry.LateMinutes)
}

func TestProcess_CheckOutCompletesAndCreditsHours(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)

	proj, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(17, 0)})
	require.NoError(t, err)

	assert.Equal(t, attendance.StateComplete, proj.LatestAttendance.State)
	require.NotNil(t, proj.LatestAttendance.CheckOutAt)

	entry := f.attendances.entries[proj.LatestAttendance.ID]
	assert.InDelta(t, 9.0, entry.RegularHours, 0.01)
	assert.Zero(t, entry.OvertimeHours)
}

func TestProcess_LateCheckOutCapsRegularHours(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)

	// Checkout two hours past the window end, inside the slack.
	proj, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(19, 0)})
	require.NoError(t, err)

	entry := f.attendances.entries[proj.LatestAttendance.ID]
	assert.InDelta(t, 9.0, entry.RegularHours, 0.01)
	assert.Zero(t, entry.OvertimeHours)
}

func TestProcess_EarlyCheckoutNeedsJustification(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(14, 0)})
	assert.ErrorIs(t, err, attendance.ErrEarlyCheckoutNeedsReason)

	// Planned leave justification is accepted.
	proj, err := f.svc.Process(context.Background(), SubmitRequest{
		EmployeeID:    "emp-1",
		At:            monday(14, 0),
		Justification: attendance.ReasonPlannedLeave,
	})
	require.NoError(t, err)
	assert.Equal(t, attendance.StateComplete, proj.LatestAttendance.State)
}

func TestProcess_EmergencyCheckoutFilesSickLeave(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), SubmitRequest{
		EmployeeID:    "emp-1",
		At:            monday(11, 0),
		Justification: attendance.ReasonEmergencyLeave,
	})
	require.NoError(t, err)

	require.Len(t, f.filer.filed, 1)
	assert.Equal(t, "emp-1|2025-03-03", f.filer.filed[0])
}

func TestProcess_EmergencyCheckoutSkipsFilingWhenCovered(t *testing.T) {
	f := newFixture(t)
	f.leaves.covered["2025-03-03"] = true

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)

	_, err = f.svc.Process(context.Background(), SubmitRequest{
		EmployeeID:    "emp-1",
		At:            monday(11, 0),
		Justification: attendance.ReasonEmergencyLeave,
	})
	require.NoError(t, err)

	assert.Empty(t, f.filer.filed)
}

func TestProcess_ReplayAfterCompleteIsIdempotent(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)
	first, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(17, 0)})
	require.NoError(t, err)

	replay, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(17, 5)})
	assert.ErrorIs(t, err, attendance.ErrAlreadyProcessed)
	require.NotNil(t, replay.LatestAttendance)
	assert.Equal(t, first.LatestAttendance.ID, replay.LatestAttendance.ID)
	assert.Equal(t, first.LatestAttendance.CheckOutAt, replay.LatestAttendance.CheckOutAt)
}

func TestProcess_DayOffWithoutWindowIsRejected(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: saturday(9, 0)})
	assert.ErrorIs(t, err, attendance.ErrPeriodNotFound)
}

func TestProcess_DayOffOvertimeSession(t *testing.T) {
	f := newFixture(t)
	f.overtime.windows = []shift.OvertimeWindow{{
		ID:             "ot-1",
		EmployeeID:     "emp-1",
		StartAt:        saturday(9, 0),
		EndAt:          saturday(13, 0),
		DayOffOvertime: true,
	}}

	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: saturday(9, 0)})
	require.NoError(t, err)

	// Leaving before the window end on day-off overtime needs no
	// justification.
	proj, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: saturday(12, 0)})
	require.NoError(t, err)

	assert.Equal(t, attendance.PeriodOvertime, proj.LatestAttendance.PeriodType)
	assert.Equal(t, attendance.StateComplete, proj.LatestAttendance.State)

	entry := f.attendances.entries[proj.LatestAttendance.ID]
	assert.Zero(t, entry.RegularHours)
	assert.InDelta(t, 3.0, entry.OvertimeHours, 0.01)
}

func TestProcess_ExternalIdentityResolution(t *testing.T) {
	f := newFixture(t)

	proj, err := f.svc.Process(context.Background(), SubmitRequest{
		ExternalID: "wa-4411",
		At:         monday(8, 0),
	})
	require.NoError(t, err)
	require.NotNil(t, proj.LatestAttendance)

	row, err := f.attendances.GetByKey(context.Background(), attendance.Key{
		EmployeeID: "emp-1",
		Date:       monday(0, 0),
		PeriodType: attendance.PeriodRegular,
		PeriodSeq:  0,
	})
	require.NoError(t, err)
	require.NotNil(t, row)

	_, err = f.svc.Process(context.Background(), SubmitRequest{
		ExternalID: "unknown",
		At:         monday(8, 0),
	})
	assert.ErrorIs(t, err, employee.ErrEmployeeNotFound)
}

func TestProcess_ValidationFailures(t *testing.T) {
	f := newFixture(t)

	_, err := f.svc.Process(context.Background(), SubmitRequest{At: monday(8, 0)})
	require.Error(t, err)

	_, err = f.svc.Process(context.Background(), SubmitRequest{
		EmployeeID:    "emp-1",
		At:            monday(8, 0),
		Justification: "vacation",
	})
	require.Error(t, err)
}

func TestProcess_CheckInAfterWindowEndRejected(t *testing.T) {
	f := newFixture(t)

	// 18:00 still resolves to the regular window via checkout slack, but
	// there is no session to close and none can be opened this late.
	_, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(18, 0)})
	assert.ErrorIs(t, err, attendance.ErrOutsideWindow)
}

func TestProcess_SynthesizedRowConvertsToLiveSession(t *testing.T) {
	f := newFixture(t)

	// A paid-leave day already holds an INCOMPLETE row.
	_, err := f.attendances.Upsert(context.Background(), attendance.Attendance{
		EmployeeID: "emp-1",
		Date:       monday(0, 0),
		PeriodType: attendance.PeriodRegular,
		PeriodSeq:  0,
		State:      attendance.StateIncomplete,
	})
	require.NoError(t, err)

	proj, err := f.svc.Process(context.Background(), SubmitRequest{EmployeeID: "emp-1", At: monday(8, 0)})
	require.NoError(t, err)
	assert.Equal(t, attendance.StateInProgress, proj.LatestAttendance.State)
}

func TestStatus_ReturnsProjectionWithoutWriting(t *testing.T) {
	f := newFixture(t)

	proj, err := f.svc.Status(context.Background(), "emp-1", "", monday(9, 0))
	require.NoError(t, err)
	require.NotNil(t, proj.CurrentPeriod)
	assert.Equal(t, attendance.PeriodRegular, proj.CurrentPeriod.Type)
	assert.Nil(t, proj.LatestAttendance)
	assert.Empty(t, f.attendances.rows)
}

func TestStatus_DayOffProjection(t *testing.T) {
	f := newFixture(t)

	proj, err := f.svc.Status(context.Background(), "emp-1", "", saturday(9, 0))
	require.NoError(t, err)
	assert.Nil(t, proj.CurrentPeriod)
	assert.True(t, proj.IsDayOff)
}
