package cron

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/domain/employee"
	"github.com/attendly/attendly-backend-go/internal/domain/shift"
)

// AttendanceJobs closes sessions employees forgot to check out of.
type AttendanceJobs struct {
	attendanceRepo attendance.Repository
	employeeRepo   employee.Repository
	shiftRepo      shift.ShiftRepository
	location       *time.Location
	grace          time.Duration
	log            *slog.Logger
}

func NewAttendanceJobs(
	attendanceRepo attendance.Repository,
	employeeRepo employee.Repository,
	shiftRepo shift.ShiftRepository,
	location *time.Location,
	grace time.Duration,
	log *slog.Logger,
) *AttendanceJobs {
	return &AttendanceJobs{
		attendanceRepo: attendanceRepo,
		employeeRepo:   employeeRepo,
		shiftRepo:      shiftRepo,
		location:       location,
		grace:          grace,
		log:            log,
	}
}

func (j *AttendanceJobs) RegisterJobs(scheduler *Scheduler) {
	scheduler.AddJob("auto_close_stale_attendances", 1*time.Hour, j.AutoCloseStaleAttendances)
}

// AutoCloseStaleAttendances completes regular sessions from previous days
// that are still IN_PROGRESS, using the shift's scheduled end as the
// checkout time. Overtime sessions are left alone: their window bounds
// came from an approval, not the shift, and deserve a human look.
func (j *AttendanceJobs) AutoCloseStaleAttendances(ctx context.Context) error {
	// Only run at midnight (00:00-00:59 local)
	if time.Now().In(j.location).Hour() != 0 {
		return nil
	}

	j.log.Info("auto-close sweep starting")

	today := dateOnly(time.Now().In(j.location))
	staleSessions, err := j.attendanceRepo.ListStaleInProgress(ctx, today)
	if err != nil {
		return fmt.Errorf("failed to get stale sessions: %w", err)
	}

	if len(staleSessions) == 0 {
		j.log.Info("auto-close sweep found nothing stale")
		return nil
	}

	closedCount := 0
	for _, session := range staleSessions {
		if session.PeriodType != attendance.PeriodRegular || session.CheckInAt == nil {
			continue
		}

		emp, err := j.employeeRepo.GetByID(ctx, session.EmployeeID)
		if err != nil {
			j.log.Error("stale session has no employee", "attendance_id", session.ID, "error", err)
			continue
		}

		empShift, err := j.shiftRepo.GetByID(ctx, emp.ShiftID)
		if err != nil {
			j.log.Error("stale session has no shift", "attendance_id", session.ID, "error", err)
			continue
		}

		windowStart, windowEnd := empShift.WindowOn(session.Date.In(j.location))

		checkOut := windowEnd
		session.CheckOutAt = &checkOut
		session.State = attendance.StateComplete

		updated, err := j.attendanceRepo.Upsert(ctx, session)
		if err != nil {
			j.log.Error("failed to close stale session", "attendance_id", session.ID, "error", err)
			continue
		}

		lateMinutes := 0
		if lateBy := session.CheckInAt.Sub(windowStart.Add(j.grace)); lateBy > 0 {
			lateMinutes = int(session.CheckInAt.Sub(windowStart).Minutes())
		}

		worked := checkOut.Sub(*session.CheckInAt).Hours()
		if worked < 0 {
			worked = 0
		}

		entry := attendance.TimeEntry{
			AttendanceID: updated.ID,
			EmployeeID:   updated.EmployeeID,
			Date:         updated.Date,
			RegularHours: worked,
			LateMinutes:  lateMinutes,
		}
		if err := j.attendanceRepo.UpsertTimeEntry(ctx, entry); err != nil {
			j.log.Error("failed to refresh time entry", "attendance_id", updated.ID, "error", err)
			continue
		}

		closedCount++
	}

	j.log.Info("auto-close sweep finished", "closed", closedCount, "examined", len(staleSessions))
	return nil
}

func dateOnly(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
