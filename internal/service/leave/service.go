package leave

import (
	"context"
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
)

// CreateInput is one leave request submission.
type CreateInput struct {
	EmployeeID string
	Category   leave.Category
	Format     leave.DayFormat
	StartDate  time.Time
	EndDate    time.Time
	Reason     string
}

func (in CreateInput) Validate() error {
	var errs validator.ValidationErrors

	if validator.IsEmpty(in.EmployeeID) {
		errs = append(errs, validator.ValidationError{Field: "employee_id", Message: "employee id is required"})
	}
	if !in.Category.Valid() {
		errs = append(errs, validator.ValidationError{Field: "category", Message: "must be sick, business, annual or unpaid"})
	}
	if !in.Format.Valid() {
		errs = append(errs, validator.ValidationError{Field: "format", Message: "must be full_day or half_day"})
	}
	if in.StartDate.IsZero() || in.EndDate.IsZero() {
		errs = append(errs, validator.ValidationError{Field: "start_date", Message: "start and end dates are required"})
	} else if in.EndDate.Before(in.StartDate) {
		errs = append(errs, validator.ValidationError{Field: "end_date", Message: "must not be before start date"})
	}
	if in.Format == leave.FormatHalfDay && !in.StartDate.Equal(in.EndDate) {
		errs = append(errs, validator.ValidationError{Field: "format", Message: "half-day leave must cover a single date"})
	}
	if validator.IsEmpty(in.Reason) {
		errs = append(errs, validator.ValidationError{Field: "reason", Message: "reason is required"})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// OvertimeInput grants one approved overtime window.
type OvertimeInput struct {
	EmployeeID string
	StartAt    time.Time
	EndAt      time.Time
	ApprovedBy string
}

// BalanceView pairs running balance with its entitlement.
type BalanceView struct {
	Category        leave.Category `json:"category"`
	EntitlementDays float64        `json:"entitlement_days"`
	BalanceDays     float64        `json:"balance_days"`
}

type Service struct {
	txm         database.TxManager
	requests    leave.RequestRepository
	balances    leave.BalanceRepository
	attendances attendance.Repository
	employees   employee.Repository
	shifts      shift.ShiftRepository
	holidays    shift.HolidayRepository
	overtime    shift.OvertimeRepository
	sender      notification.Sender
	cache       cache.Invalidator
	location    *time.Location
	log         *slog.Logger
}

func NewService(
	txm database.TxManager,
	requests leave.RequestRepository,
	balances leave.BalanceRepository,
	attendances attendance.Repository,
	employees employee.Repository,
	shifts shift.ShiftRepository,
	holidays shift.HolidayRepository,
	overtime shift.OvertimeRepository,
	sender notification.Sender,
	invalidator cache.Invalidator,
	location *time.Location,
	log *slog.Logger,
) *Service {
	return &Service{
		txm:         txm,
		requests:    requests,
		balances:    balances,
		attendances: attendances,
		employees:   employees,
		shifts:      shifts,
		holidays:    holidays,
		overtime:    overtime,
		sender:      sender,
		cache:       invalidator,
		location:    location,
		log:         log,
	}
}

// CreateRequest validates and files a new pending leave request. Paid
// categories are checked against entitlement minus already-approved
// days, so stacked pending requests cannot overdraw once approved
// one by one.
func (s *Service) CreateRequest(ctx context.Context, in CreateInput) (leave.Request, error) {
	if err := in.Validate(); err != nil {
		return leave.Request{}, err
	}

	emp, err := s.employees.GetByID(ctx, in.EmployeeID)
	if err != nil {
		return leave.Request{}, err
	}

	dayCount, err := s.dayCount(ctx, emp, in.StartDate, in.EndDate, in.Format)
	if err != nil {
		return leave.Request{}, err
	}
	if dayCount == 0 {
		return leave.Request{}, validator.ValidationErrors{{
			Field:   "start_date",
			Message: "range contains no working days",
		}}
	}

	if in.Category.Paid() {
		if err := s.checkEntitlement(ctx, emp.ID, in.Category, dayCount); err != nil {
			return leave.Request{}, err
		}
	}

	req := leave.Request{
		EmployeeID:  emp.ID,
		Category:    in.Category,
		Format:      in.Format,
		StartDate:   dateOnly(in.StartDate.In(s.location)),
		EndDate:     dateOnly(in.EndDate.In(s.location)),
		DayCount:    dayCount,
		Reason:      in.Reason,
		Status:      leave.StatusPending,
		SubmittedAt: time.Now().In(s.location),
	}

	created, err := s.requests.Create(ctx, req)
	if err != nil {
		return leave.Request{}, fmt.Errorf("failed to create leave request: %w", err)
	}

	s.notifyApprovers(ctx, created.ID, notification.KindRequestCreated,
		fmt.Sprintf("%s filed a %s leave request", emp.Name, created.Category))

	return created, nil
}

// Approve moves a pending request to approved, deducts the balance and
// synthesizes the attendance rows, all in one transaction. A request
// already decided fails with ErrAlreadyProcessed and changes nothing.
func (s *Service) Approve(ctx context.Context, requestID, approverID string) (leave.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.Request{}, err
	}

	now := time.Now().In(s.location)
	err = s.txm.WithinTransaction(ctx, func(txCtx context.Context) error {
		update := leave.StatusUpdate{
			ID:        req.ID,
			Status:    leave.StatusApproved,
			DecidedBy: &approverID,
			DecidedAt: &now,
		}
		if err := s.requests.UpdateStatus(txCtx, update, leave.StatusPending); err != nil {
			return err
		}

		if req.Category.Paid() {
			if err := s.balances.Deduct(txCtx, req.EmployeeID, req.Category, req.DayCount); err != nil {
				return err
			}
		}

		return s.synthesizeAttendance(txCtx, req)
	})
	if err != nil {
		return leave.Request{}, err
	}

	req.Status = leave.StatusApproved
	req.DecidedBy = &approverID
	req.DecidedAt = &now

	s.afterDecision(ctx, req, notification.KindRequestApproved, "Leave request approved")
	return req, nil
}

// Deny moves a pending request to denied. An empty reason parks it in
// denial_pending until FinalizeDenial supplies one; the employee is
// only notified once the denial carries its reason.
func (s *Service) Deny(ctx context.Context, requestID, approverID, reason string) (leave.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.Request{}, err
	}

	now := time.Now().In(s.location)

	if reason == "" {
		update := leave.StatusUpdate{
			ID:        req.ID,
			Status:    leave.StatusDenialPending,
			DecidedBy: &approverID,
			DecidedAt: &now,
		}
		if err := s.requests.UpdateStatus(ctx, update, leave.StatusPending); err != nil {
			return leave.Request{}, err
		}
		req.Status = leave.StatusDenialPending
		req.DecidedBy = &approverID
		req.DecidedAt = &now
		return req, nil
	}

	update := leave.StatusUpdate{
		ID:           req.ID,
		Status:       leave.StatusDenied,
		DenialReason: &reason,
		DecidedBy:    &approverID,
		DecidedAt:    &now,
	}
	if err := s.requests.UpdateStatus(ctx, update, leave.StatusPending); err != nil {
		return leave.Request{}, err
	}
	req.Status = leave.StatusDenied
	req.DenialReason = &reason
	req.DecidedBy = &approverID
	req.DecidedAt = &now

	s.afterDecision(ctx, req, notification.KindRequestDenied, "Leave request denied")
	return req, nil
}

// FinalizeDenial attaches the reason to a denial_pending request and
// completes the denial.
func (s *Service) FinalizeDenial(ctx context.Context, requestID, reason string) (leave.Request, error) {
	if validator.IsEmpty(reason) {
		return leave.Request{}, validator.ValidationErrors{{
			Field:   "reason",
			Message: "denial reason is required",
		}}
	}

	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.Request{}, err
	}

	update := leave.StatusUpdate{
		ID:           req.ID,
		Status:       leave.StatusDenied,
		DenialReason: &reason,
		DecidedBy:    req.DecidedBy,
		DecidedAt:    req.DecidedAt,
	}
	if err := s.requests.UpdateStatus(ctx, update, leave.StatusDenialPending); err != nil {
		return leave.Request{}, err
	}
	req.Status = leave.StatusDenied
	req.DenialReason = &reason

	s.afterDecision(ctx, req, notification.KindRequestDenied, "Leave request denied")
	return req, nil
}

// Resubmit clones a denied request into a fresh pending one, keeping
// the audit link back to the denial.
func (s *Service) Resubmit(ctx context.Context, requestID, reason string) (leave.Request, error) {
	prev, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.Request{}, err
	}
	if prev.Status != leave.StatusDenied {
		return leave.Request{}, leave.ErrNotDenied
	}
	if reason == "" {
		reason = prev.Reason
	}

	if prev.Category.Paid() {
		if err := s.checkEntitlement(ctx, prev.EmployeeID, prev.Category, prev.DayCount); err != nil {
			return leave.Request{}, err
		}
	}

	clone := leave.Request{
		EmployeeID:      prev.EmployeeID,
		Category:        prev.Category,
		Format:          prev.Format,
		StartDate:       prev.StartDate,
		EndDate:         prev.EndDate,
		DayCount:        prev.DayCount,
		Reason:          reason,
		Status:          leave.StatusPending,
		ResubmittedFrom: &prev.ID,
		SubmittedAt:     time.Now().In(s.location),
	}

	created, err := s.requests.Create(ctx, clone)
	if err != nil {
		return leave.Request{}, fmt.Errorf("failed to resubmit leave request: %w", err)
	}

	s.notifyApprovers(ctx, created.ID, notification.KindRequestResubmitted, "Leave request resubmitted")
	return created, nil
}

// Cancel withdraws the employee's own request. Cancelling an approved
// request refunds the balance and removes the synthesized rows that
// were never touched by a real check-in.
func (s *Service) Cancel(ctx context.Context, requestID, employeeID string) (leave.Request, error) {
	req, err := s.requests.GetByID(ctx, requestID)
	if err != nil {
		return leave.Request{}, err
	}
	if req.EmployeeID != employeeID {
		return leave.Request{}, leave.ErrRequestNotFound
	}

	switch req.Status {
	case leave.StatusPending:
		update := leave.StatusUpdate{ID: req.ID, Status: leave.StatusCancelled}
		if err := s.requests.UpdateStatus(ctx, update, leave.StatusPending); err != nil {
			return leave.Request{}, err
		}

	case leave.StatusApproved:
		err = s.txm.WithinTransaction(ctx, func(txCtx context.Context) error {
			update := leave.StatusUpdate{ID: req.ID, Status: leave.StatusCancelled}
			if err := s.requests.UpdateStatus(txCtx, update, leave.StatusApproved); err != nil {
				return err
			}

			if req.Category.Paid() {
				if err := s.balances.Refund(txCtx, req.EmployeeID, req.Category, req.DayCount); err != nil {
					return err
				}
			}

			removed, err := s.attendances.DeleteSynthesized(txCtx, req.EmployeeID, req.StartDate, req.EndDate)
			if err != nil {
				return err
			}
			s.log.Info("removed synthesized attendance rows",
				"request_id", req.ID,
				"count", removed,
			)
			return nil
		})
		if err != nil {
			return leave.Request{}, err
		}

	default:
		return leave.Request{}, leave.ErrNotCancellable
	}

	req.Status = leave.StatusCancelled
	if !s.cache.InvalidatePattern(ctx, "attendance:"+req.EmployeeID+":*") {
		s.log.Warn("attendance cache invalidation skipped", "employee_id", req.EmployeeID)
	}
	return req, nil
}

// FileEmergencySickLeave records a same-day sick leave during an
// emergency checkout, auto-approved with no approver in the loop. When
// the sick balance cannot cover the day it degrades to unpaid leave
// rather than failing the checkout.
func (s *Service) FileEmergencySickLeave(ctx context.Context, employeeID string, date time.Time) error {
	day := dateOnly(date.In(s.location))
	category := leave.CategorySick

	bal, err := s.balances.Get(ctx, employeeID, leave.CategorySick)
	if err == nil && bal.BalanceDays < 1 {
		category = leave.CategoryUnpaid
	} else if err != nil {
		category = leave.CategoryUnpaid
	}

	now := time.Now().In(s.location)
	req := leave.Request{
		EmployeeID:  employeeID,
		Category:    category,
		Format:      leave.FormatFullDay,
		StartDate:   day,
		EndDate:     day,
		DayCount:    1,
		Reason:      "emergency checkout",
		Status:      leave.StatusApproved,
		DecidedAt:   &now,
		SubmittedAt: now,
	}

	return s.txm.WithinTransaction(ctx, func(txCtx context.Context) error {
		created, err := s.requests.Create(txCtx, req)
		if err != nil {
			return fmt.Errorf("failed to file emergency leave: %w", err)
		}
		if category.Paid() {
			if err := s.balances.Deduct(txCtx, employeeID, category, 1); err != nil {
				return err
			}
		}
		s.log.Info("emergency sick leave filed",
			"request_id", created.ID,
			"employee_id", employeeID,
			"category", category,
		)
		return nil
	})
}

// CreateOvertimeWindow grants an approved overtime span and classifies
// it against the employee's shift for the resolver.
func (s *Service) CreateOvertimeWindow(ctx context.Context, in OvertimeInput) (shift.OvertimeWindow, error) {
	if !in.EndAt.After(in.StartAt) {
		return shift.OvertimeWindow{}, shift.ErrInvalidWindow
	}

	emp, err := s.employees.GetByID(ctx, in.EmployeeID)
	if err != nil {
		return shift.OvertimeWindow{}, err
	}
	empShift, err := s.shifts.GetByID(ctx, emp.ShiftID)
	if err != nil {
		return shift.OvertimeWindow{}, fmt.Errorf("failed to load shift: %w", err)
	}

	startLocal := in.StartAt.In(s.location)
	day := dateOnly(startLocal)

	holiday, err := s.holidays.GetByDate(ctx, day)
	if err != nil {
		return shift.OvertimeWindow{}, fmt.Errorf("failed to load holiday: %w", err)
	}

	shiftStart, shiftEnd := empShift.WindowOn(day)
	dayOff := holiday != nil || !empShift.Workdays.WorksOn(day.Weekday())

	window := shift.OvertimeWindow{
		EmployeeID:       emp.ID,
		StartAt:          in.StartAt,
		EndAt:            in.EndAt,
		InsideShiftHours: !dayOff && in.StartAt.Before(shiftEnd) && in.EndAt.After(shiftStart),
		DayOffOvertime:   dayOff,
		ApprovedBy:       in.ApprovedBy,
	}

	created, err := s.overtime.Create(ctx, window)
	if err != nil {
		return shift.OvertimeWindow{}, fmt.Errorf("failed to create overtime window: %w", err)
	}

	s.sender.SendRequestNotification(ctx, emp.ID, created.ID,
		notification.KindRequestApproved, "Overtime window granted")
	return created, nil
}

// Get returns one request.
func (s *Service) Get(ctx context.Context, requestID string) (leave.Request, error) {
	return s.requests.GetByID(ctx, requestID)
}

// List returns the employee's requests, newest first.
func (s *Service) List(ctx context.Context, employeeID string) ([]leave.Request, error) {
	return s.requests.ListForEmployee(ctx, employeeID)
}

// Balances returns the employee's running balances for every paid
// category.
func (s *Service) Balances(ctx context.Context, employeeID string) ([]BalanceView, error) {
	categories := []leave.Category{leave.CategorySick, leave.CategoryBusiness, leave.CategoryAnnual}

	views := make([]BalanceView, 0, len(categories))
	for _, c := range categories {
		bal, err := s.balances.Get(ctx, employeeID, c)
		if err != nil {
			return nil, err
		}
		views = append(views, BalanceView{
			Category:        c,
			EntitlementDays: bal.EntitlementDays,
			BalanceDays:     bal.BalanceDays,
		})
	}
	return views, nil
}

// checkEntitlement enforces the creation-time rule: entitlement minus
// already-approved days must cover the request.
func (s *Service) checkEntitlement(ctx context.Context, employeeID string, category leave.Category, dayCount float64) error {
	bal, err := s.balances.Get(ctx, employeeID, category)
	if err != nil {
		return err
	}
	approved, err := s.requests.SumApprovedDays(ctx, employeeID, category)
	if err != nil {
		return fmt.Errorf("failed to sum approved days: %w", err)
	}

	available := bal.EntitlementDays - approved
	if available < dayCount {
		return &leave.BalanceInsufficientError{
			Category:  category,
			Available: available,
			Requested: dayCount,
		}
	}
	return nil
}

// synthesizeAttendance writes one attendance row per working day of
// the request. Paid days land as INCOMPLETE with their hour credit;
// unpaid days land as OFF with none. A day the employee already checked
// in on is skipped entirely, keeping its live row and hours untouched.
func (s *Service) synthesizeAttendance(ctx context.Context, req leave.Request) error {
	emp, err := s.employees.GetByID(ctx, req.EmployeeID)
	if err != nil {
		return err
	}
	empShift, err := s.shifts.GetByID(ctx, emp.ShiftID)
	if err != nil {
		return fmt.Errorf("failed to load shift: %w", err)
	}

	state := attendance.StateIncomplete
	credit := req.Format.HourCredit()
	if !req.Category.Paid() {
		state = attendance.StateOff
		credit = 0
	}

	for day := req.StartDate; !day.After(req.EndDate); day = day.AddDate(0, 0, 1) {
		if !empShift.Workdays.WorksOn(day.Weekday()) {
			continue
		}
		holiday, err := s.holidays.GetByDate(ctx, day)
		if err != nil {
			return fmt.Errorf("failed to load holiday: %w", err)
		}
		if holiday != nil {
			continue
		}

		row := attendance.Attendance{
			EmployeeID: req.EmployeeID,
			Date:       day,
			PeriodType: attendance.PeriodRegular,
			PeriodSeq:  0,
			State:      state,
		}
		existing, err := s.attendances.GetByKey(ctx, row.Key())
		if err != nil {
			return err
		}
		if existing != nil && existing.CheckInAt != nil {
			continue
		}
		saved, err := s.attendances.Upsert(ctx, row)
		if err != nil {
			return err
		}

		entry := attendance.TimeEntry{
			AttendanceID: saved.ID,
			EmployeeID:   req.EmployeeID,
			Date:         day,
			RegularHours: credit,
		}
		if err := s.attendances.UpsertTimeEntry(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

// dayCount totals the working days in [start, end], weighted by format.
func (s *Service) dayCount(ctx context.Context, emp employee.Employee, start, end time.Time, format leave.DayFormat) (float64, error) {
	empShift, err := s.shifts.GetByID(ctx, emp.ShiftID)
	if err != nil {
		return 0, fmt.Errorf("failed to load shift: %w", err)
	}

	from := dateOnly(start.In(s.location))
	to := dateOnly(end.In(s.location))

	var days float64
	for day := from; !day.After(to); day = day.AddDate(0, 0, 1) {
		if !empShift.Workdays.WorksOn(day.Weekday()) {
			continue
		}
		holiday, err := s.holidays.GetByDate(ctx, day)
		if err != nil {
			return 0, fmt.Errorf("failed to load holiday: %w", err)
		}
		if holiday != nil {
			continue
		}
		days++
	}

	if format == leave.FormatHalfDay {
		days *= 0.5
	}
	return days, nil
}

func (s *Service) notifyApprovers(ctx context.Context, requestID string, kind notification.Kind, subject string) {
	approvers, err := s.employees.ListApproverIDs(ctx)
	if err != nil {
		s.log.Error("failed to list approvers for notification", "error", err)
		return
	}
	for _, id := range approvers {
		s.sender.SendRequestNotification(ctx, id, requestID, kind, subject)
	}
}

func (s *Service) afterDecision(ctx context.Context, req leave.Request, kind notification.Kind, subject string) {
	s.sender.SendRequestNotification(ctx, req.EmployeeID, req.ID, kind, subject)
	if !s.cache.InvalidatePattern(ctx, "attendance:"+req.EmployeeID+":*") {
		s.log.Warn("attendance cache invalidation skipped", "employee_id", req.EmployeeID)
	}
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
