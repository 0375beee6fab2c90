package checkin

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/domain/employee"
	"github.com/attendly/attendly-backend-go/internal/domain/leave"
	"github.com/attendly/attendly-backend-go/internal/domain/notification"
	"github.com/attendly/attendly-backend-go/internal/domain/shift"
	"github.com/attendly/attendly-backend-go/internal/pkg/cache"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
	"github.com/attendly/attendly-backend-go/internal/pkg/validator"
	"github.com/attendly/attendly-backend-go/internal/service/period"
)

// EmergencyLeaveFiler files the automatic sick-leave request an
// emergency checkout requires. The leave ledger implements it.
type EmergencyLeaveFiler interface {
	FileEmergencySickLeave(ctx context.Context, employeeID string, date time.Time) error
}

// SubmitRequest is one check-in/out event. Direction is never supplied:
// the processor infers it from the resolved period's current state.
type SubmitRequest struct {
	EmployeeID    string
	ExternalID    string
	At            time.Time
	Address       string
	ManualEntry   bool
	Justification attendance.CheckoutReason
}

// Validate checks the request shape before any storage work.
func (r SubmitRequest) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(r.EmployeeID) && validator.IsEmpty(r.ExternalID) {
		errs = append(errs, validator.ValidationError{
			Field:   "employee_id",
			Message: "employee id or external identity is required",
		})
	}
	if r.At.IsZero() {
		errs = append(errs, validator.ValidationError{
			Field:   "at",
			Message: "event timestamp is required",
		})
	}
	switch r.Justification {
	case attendance.ReasonNone, attendance.ReasonPlannedLeave, attendance.ReasonEmergencyLeave:
	default:
		errs = append(errs, validator.ValidationError{
			Field:   "justification",
			Message: "must be empty, planned_leave or emergency_leave",
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// PeriodInfo is the projection of a resolved period.
type PeriodInfo struct {
	Type             attendance.PeriodType `json:"type"`
	Seq              int                   `json:"sequence"`
	WindowStart      time.Time             `json:"window_start"`
	WindowEnd        time.Time             `json:"window_end"`
	IsDayOffOvertime bool                  `json:"is_day_off_overtime"`
}

// AttendanceView mirrors one attendance row for the presentation layer.
type AttendanceView struct {
	ID          string                `json:"id"`
	Date        string                `json:"date"`
	PeriodType  attendance.PeriodType `json:"period_type"`
	PeriodSeq   int                   `json:"period_sequence"`
	State       attendance.State      `json:"state"`
	CheckInAt   *time.Time            `json:"check_in_at"`
	CheckOutAt  *time.Time            `json:"check_out_at"`
	ManualEntry bool                  `json:"manual_entry"`
}

// StatusProjection is the read model consumed by the presentation layer
// and returned from every successful submission.
type StatusProjection struct {
	CurrentPeriod    *PeriodInfo     `json:"current_period"`
	LatestAttendance *AttendanceView `json:"latest_attendance"`
	IsHoliday        bool            `json:"is_holiday"`
	IsDayOff         bool            `json:"is_day_off"`
}

type Service struct {
	txm         database.TxManager
	employees   employee.Repository
	shifts      shift.ShiftRepository
	holidays    shift.HolidayRepository
	overtime    shift.OvertimeRepository
	attendances attendance.Repository
	leaves      leave.RequestRepository
	ledger      EmergencyLeaveFiler
	resolver    *period.Resolver
	sender      notification.Sender
	cache       cache.Store
	location    *time.Location
	grace       time.Duration
	log         *slog.Logger
}

func NewService(
	txm database.TxManager,
	employees employee.Repository,
	shifts shift.ShiftRepository,
	holidays shift.HolidayRepository,
	overtime shift.OvertimeRepository,
	attendances attendance.Repository,
	leaves leave.RequestRepository,
	ledger EmergencyLeaveFiler,
	resolver *period.Resolver,
	sender notification.Sender,
	store cache.Store,
	location *time.Location,
	grace time.Duration,
	log *slog.Logger,
) *Service {
	return &Service{
		txm:         txm,
		employees:   employees,
		shifts:      shifts,
		holidays:    holidays,
		overtime:    overtime,
		attendances: attendances,
		leaves:      leaves,
		ledger:      ledger,
		resolver:    resolver,
		sender:      sender,
		cache:       store,
		location:    location,
		grace:       grace,
		log:         log,
	}
}

// Process validates and commits one check-in/out event. A repeat
// submission against an already-settled period returns the current
// projection together with attendance.ErrAlreadyProcessed, which
// callers treat as an idempotent success.
func (s *Service) Process(ctx context.Context, req SubmitRequest) (StatusProjection, error) {
	if err := req.Validate(); err != nil {
		return StatusProjection{}, err
	}

	emp, err := s.resolveEmployee(ctx, req)
	if err != nil {
		return StatusProjection{}, err
	}

	at := req.At.In(s.location)
	day := dateOnly(at)

	in, regular, err := s.loadDay(ctx, emp, day)
	if err != nil {
		return StatusProjection{}, err
	}

	res, err := s.resolver.Resolve(in, at)
	if err != nil {
		return StatusProjection{}, err
	}

	key := attendance.Key{
		EmployeeID: emp.ID,
		Date:       day,
		PeriodType: res.Type,
		PeriodSeq:  res.Seq,
	}

	existing := regular
	if res.Type == attendance.PeriodOvertime {
		existing, err = s.attendances.GetByKey(ctx, key)
		if err != nil {
			return StatusProjection{}, fmt.Errorf("failed to load attendance row: %w", err)
		}
	}

	switch {
	case existing == nil || (existing.State == attendance.StateIncomplete && existing.CheckInAt == nil):
		return s.checkIn(ctx, emp, key, res, req, at)
	case existing.State == attendance.StateInProgress:
		return s.checkOut(ctx, emp, *existing, res, req, at)
	default:
		// COMPLETE or OFF: nothing left to do for this period.
		proj := s.buildProjection(&res, existing, in.Holiday != nil, res.IsDayOff)
		return proj, attendance.ErrAlreadyProcessed
	}
}

// Status is the idempotent read returning the same projection shape the
// submission path produces.
func (s *Service) Status(ctx context.Context, employeeID, externalID string, at time.Time) (StatusProjection, error) {
	emp, err := s.resolveEmployee(ctx, SubmitRequest{EmployeeID: employeeID, ExternalID: externalID})
	if err != nil {
		return StatusProjection{}, err
	}

	local := at.In(s.location)
	day := dateOnly(local)

	cacheKey := statusCacheKey(emp.ID, day)
	if cached, ok := s.cache.Get(ctx, cacheKey); ok {
		if proj, ok := cached.(StatusProjection); ok {
			return proj, nil
		}
	}

	in, _, err := s.loadDay(ctx, emp, day)
	if err != nil {
		return StatusProjection{}, err
	}

	latest, err := s.attendances.GetLatestForDay(ctx, emp.ID, day)
	if err != nil {
		return StatusProjection{}, fmt.Errorf("failed to load latest attendance: %w", err)
	}

	dayOff := in.Holiday != nil || !in.Shift.Workdays.WorksOn(local.Weekday())

	var proj StatusProjection
	res, err := s.resolver.Resolve(in, local)
	switch {
	case err == nil:
		proj = s.buildProjection(&res, latest, in.Holiday != nil, res.IsDayOff || dayOff)
	case errors.Is(err, attendance.ErrPeriodNotFound):
		proj = s.buildProjection(nil, latest, in.Holiday != nil, dayOff)
	default:
		return StatusProjection{}, err
	}

	s.cache.Set(ctx, cacheKey, proj, statusCacheTTL)
	return proj, nil
}

// List returns the employee's attendance rows in [from, to].
func (s *Service) List(ctx context.Context, employeeID string, from, to time.Time) ([]AttendanceView, error) {
	rows, err := s.attendances.ListForEmployee(ctx, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}

	views := make([]AttendanceView, 0, len(rows))
	for _, row := range rows {
		views = append(views, toView(row))
	}
	return views, nil
}

func (s *Service) resolveEmployee(ctx context.Context, req SubmitRequest) (employee.Employee, error) {
	if req.EmployeeID != "" {
		return s.employees.GetByID(ctx, req.EmployeeID)
	}
	return s.employees.GetByExternalID(ctx, req.ExternalID)
}

// loadDay gathers the resolver's inputs and the day's regular row.
func (s *Service) loadDay(ctx context.Context, emp employee.Employee, day time.Time) (period.Input, *attendance.Attendance, error) {
	empShift, err := s.shifts.GetByID(ctx, emp.ShiftID)
	if err != nil {
		return period.Input{}, nil, fmt.Errorf("failed to load shift: %w", err)
	}

	holiday, err := s.holidays.GetByDate(ctx, day)
	if err != nil {
		return period.Input{}, nil, fmt.Errorf("failed to load holiday: %w", err)
	}

	windows, err := s.overtime.ListForDay(ctx, emp.ID, day, day.AddDate(0, 0, 1))
	if err != nil {
		return period.Input{}, nil, fmt.Errorf("failed to load overtime windows: %w", err)
	}

	regular, err := s.attendances.GetByKey(ctx, attendance.Key{
		EmployeeID: emp.ID,
		Date:       day,
		PeriodType: attendance.PeriodRegular,
		PeriodSeq:  0,
	})
	if err != nil {
		return period.Input{}, nil, fmt.Errorf("failed to load regular attendance: %w", err)
	}

	in := period.Input{
		Shift:   empShift,
		Holiday: holiday,
		Windows: windows,
	}
	if regular != nil {
		in.RegularState = regular.State
	}
	return in, regular, nil
}

func (s *Service) checkIn(
	ctx context.Context,
	emp employee.Employee,
	key attendance.Key,
	res period.Resolution,
	req SubmitRequest,
	at time.Time,
) (StatusProjection, error) {
	// A check-in after the window end can only be a missed checkout on
	// a row that was never opened; there is nothing valid to record.
	if at.After(res.WindowEnd) {
		return StatusProjection{}, attendance.ErrOutsideWindow
	}

	lateMinutes := 0
	if res.IsLate {
		lateMinutes = int(at.Sub(res.WindowStart).Minutes())
	}

	address := req.Address
	row := attendance.Attendance{
		EmployeeID:     key.EmployeeID,
		Date:           key.Date,
		PeriodType:     key.PeriodType,
		PeriodSeq:      key.PeriodSeq,
		State:          attendance.StateInProgress,
		CheckInAt:      &at,
		CheckInAddress: &address,
		ManualEntry:    req.ManualEntry,
		Holiday:        res.IsHoliday,
	}

	var saved attendance.Attendance
	err := s.txm.WithinTransaction(ctx, func(txCtx context.Context) error {
		var txErr error
		saved, txErr = s.attendances.Upsert(txCtx, row)
		if txErr != nil {
			return txErr
		}

		entry := attendance.TimeEntry{
			AttendanceID: saved.ID,
			EmployeeID:   saved.EmployeeID,
			Date:         saved.Date,
			LateMinutes:  lateMinutes,
		}
		return s.attendances.UpsertTimeEntry(txCtx, entry)
	})
	if err != nil {
		return StatusProjection{}, err
	}

	s.afterCommit(ctx, emp, notification.KindCheckedIn, "Checked in")

	return s.buildProjection(&res, &saved, res.IsHoliday, res.IsDayOff), nil
}

func (s *Service) checkOut(
	ctx context.Context,
	emp employee.Employee,
	row attendance.Attendance,
	res period.Resolution,
	req SubmitRequest,
	at time.Time,
) (StatusProjection, error) {
	if at.Before(*row.CheckInAt) {
		return StatusProjection{}, attendance.ErrOutsideWindow
	}

	early := at.Before(res.WindowEnd)
	dayOffWindow := res.Window != nil && (res.Window.DayOffOvertime || res.IsHoliday)

	if early && !dayOffWindow {
		switch req.Justification {
		case attendance.ReasonNone:
			return StatusProjection{}, attendance.ErrEarlyCheckoutNeedsReason
		case attendance.ReasonEmergencyLeave:
			covered, err := s.leaves.HasApprovedCovering(ctx, emp.ID, row.Date)
			if err != nil {
				return StatusProjection{}, fmt.Errorf("failed to check leave coverage: %w", err)
			}
			if !covered {
				if err := s.ledger.FileEmergencySickLeave(ctx, emp.ID, row.Date); err != nil {
					return StatusProjection{}, fmt.Errorf("failed to file emergency sick leave: %w", err)
				}
			}
		case attendance.ReasonPlannedLeave:
			// The planned leave may cover only part of the day; the
			// justification itself is enough here.
		}
	}

	regularHours, overtimeHours := hourCredit(res, *row.CheckInAt, at)

	lateMinutes := 0
	if row.CheckInAt.After(res.WindowStart.Add(s.grace)) {
		lateMinutes = int(row.CheckInAt.Sub(res.WindowStart).Minutes())
	}

	address := req.Address
	row.CheckOutAt = &at
	row.CheckOutAddress = &address
	row.State = attendance.StateComplete

	var saved attendance.Attendance
	err := s.txm.WithinTransaction(ctx, func(txCtx context.Context) error {
		var txErr error
		saved, txErr = s.attendances.Upsert(txCtx, row)
		if txErr != nil {
			return txErr
		}

		entry := attendance.TimeEntry{
			AttendanceID:  saved.ID,
			EmployeeID:    saved.EmployeeID,
			Date:          saved.Date,
			RegularHours:  regularHours,
			OvertimeHours: overtimeHours,
			LateMinutes:   lateMinutes,
		}
		return s.attendances.UpsertTimeEntry(txCtx, entry)
	})
	if err != nil {
		return StatusProjection{}, err
	}

	s.afterCommit(ctx, emp, notification.KindCheckedOut, "Checked out")

	return s.buildProjection(&res, &saved, res.IsHoliday, res.IsDayOff), nil
}

// afterCommit runs the best-effort collaborators. Failures are logged
// and never unwind the committed transaction.
func (s *Service) afterCommit(ctx context.Context, emp employee.Employee, kind notification.Kind, subject string) {
	s.sender.SendRequestNotification(ctx, emp.ID, "", kind, subject)

	if !s.cache.InvalidatePattern(ctx, "attendance:"+emp.ID+":*") {
		s.log.Warn("attendance cache invalidation skipped", "employee_id", emp.ID)
	}
}

// hourCredit computes the time entry's credit. Regular periods credit
// regular hours capped at the window length; overtime credit only ever
// comes from an approved window.
func hourCredit(res period.Resolution, checkIn, checkOut time.Time) (float64, float64) {
	worked := checkOut.Sub(checkIn).Hours()
	if worked < 0 {
		worked = 0
	}
	windowLen := res.WindowEnd.Sub(res.WindowStart).Hours()
	if worked > windowLen {
		worked = windowLen
	}

	if res.Type == attendance.PeriodOvertime {
		return 0, worked
	}
	return worked, 0
}

func (s *Service) buildProjection(res *period.Resolution, att *attendance.Attendance, holiday, dayOff bool) StatusProjection {
	proj := StatusProjection{
		IsHoliday: holiday,
		IsDayOff:  dayOff,
	}

	if res != nil {
		proj.CurrentPeriod = &PeriodInfo{
			Type:             res.Type,
			Seq:              res.Seq,
			WindowStart:      res.WindowStart,
			WindowEnd:        res.WindowEnd,
			IsDayOffOvertime: res.Window != nil && res.Window.DayOffOvertime,
		}
	}

	if att != nil {
		view := toView(*att)
		proj.LatestAttendance = &view
	}
	return proj
}

func toView(att attendance.Attendance) AttendanceView {
	return AttendanceView{
		ID:          att.ID,
		Date:        att.Date.Format("2006-01-02"),
		PeriodType:  att.PeriodType,
		PeriodSeq:   att.PeriodSeq,
		State:       att.State,
		CheckInAt:   att.CheckInAt,
		CheckOutAt:  att.CheckOutAt,
		ManualEntry: att.ManualEntry,
	}
}

// statusCacheTTL keeps the projection fresh enough that the current
// period never lags a window boundary by much.
const statusCacheTTL = 30 * time.Second

func statusCacheKey(employeeID string, day time.Time) string {
	return "attendance:" + employeeID + ":" + day.Format("2006-01-02")
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
