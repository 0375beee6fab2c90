package shift

import (
	"context"
	"time"
)

// Shift is the single daily work window plus the weekdays it applies to.
// Start and end are minutes from local midnight.
type Shift struct {
	ID           string
	Name         string
	StartMinutes int
	EndMinutes   int
	Workdays     Workdays

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Workdays is a bitmask over time.Weekday (bit 0 = Sunday).
type Workdays uint8

func (w Workdays) WorksOn(day time.Weekday) bool {
	return w&(1<<uint(day)) != 0
}

// NewWorkdays builds a mask from the given weekdays.
func NewWorkdays(days ...time.Weekday) Workdays {
	var w Workdays
	for _, d := range days {
		w |= 1 << uint(d)
	}
	return w
}

// WindowOn returns the shift's absolute start and end on the given date.
// The date's own location is kept, so callers pass a day already anchored
// in the employee's timezone.
func (s Shift) WindowOn(date time.Time) (time.Time, time.Time) {
	start := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).
		Add(time.Duration(s.StartMinutes) * time.Minute)
	end := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, date.Location()).
		Add(time.Duration(s.EndMinutes) * time.Minute)
	return start, end
}

// Holiday is calendar-wide and independent of individual shifts.
type Holiday struct {
	Date time.Time
	Name string
}

// OvertimeWindow is an approved overtime span for one employee.
// InsideShiftHours marks windows that overlap the regular shift;
// DayOffOvertime marks windows granted on a non-working day.
type OvertimeWindow struct {
	ID               string
	EmployeeID       string
	StartAt          time.Time
	EndAt            time.Time
	InsideShiftHours bool
	DayOffOvertime   bool
	ApprovedBy       string
	SourceRequestID  *string

	CreatedAt time.Time
}

// Overlaps reports whether t falls inside the window (closed bounds).
func (w OvertimeWindow) Overlaps(t time.Time) bool {
	return !t.Before(w.StartAt) && !t.After(w.EndAt)
}

type ShiftRepository interface {
	GetByID(ctx context.Context, id string) (Shift, error)
}

type HolidayRepository interface {
	Create(ctx context.Context, holiday Holiday) (Holiday, error)
	GetByDate(ctx context.Context, date time.Time) (*Holiday, error)
	List(ctx context.Context, from, to time.Time) ([]Holiday, error)
}

type OvertimeRepository interface {
	Create(ctx context.Context, window OvertimeWindow) (OvertimeWindow, error)
	// ListForDay returns the employee's approved windows overlapping
	// [dayStart, dayEnd), ordered by start time.
	ListForDay(ctx context.Context, employeeID string, dayStart, dayEnd time.Time) ([]OvertimeWindow, error)
}
