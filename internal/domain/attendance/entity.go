package attendance

import (
	"context"
	"time"
)

// PeriodType classifies the work window an attendance row belongs to.
type PeriodType string

const (
	PeriodRegular  PeriodType = "REGULAR"
	PeriodOvertime PeriodType = "OVERTIME"
)

// State is the attendance lifecycle. It only ever advances:
// INCOMPLETE -> IN_PROGRESS -> COMPLETE, or straight to OFF for
// unpaid-leave days. It never regresses.
type State string

const (
	StateIncomplete State = "INCOMPLETE"
	StateInProgress State = "IN_PROGRESS"
	StateComplete   State = "COMPLETE"
	StateOff        State = "OFF"
)

// rank orders states for the no-regression guard. OFF is terminal like
// COMPLETE.
func (s State) rank() int {
	switch s {
	case StateIncomplete:
		return 0
	case StateInProgress:
		return 1
	case StateComplete, StateOff:
		return 2
	default:
		return -1
	}
}

// CanAdvanceTo reports whether moving from s to next respects the
// forward-only lifecycle.
func (s State) CanAdvanceTo(next State) bool {
	return next.rank() >= s.rank()
}

// CheckoutReason justifies a checkout before the window end.
type CheckoutReason string

const (
	ReasonNone           CheckoutReason = ""
	ReasonPlannedLeave   CheckoutReason = "planned_leave"
	ReasonEmergencyLeave CheckoutReason = "emergency_leave"
)

// Key is the natural upsert key shared by the live check-in/out path and
// the leave-day synthesis path. Date is truncated to the calendar day.
type Key struct {
	EmployeeID string
	Date       time.Time
	PeriodType PeriodType
	PeriodSeq  int
}

// Attendance entity. At most one non-cancelled row exists per Key; the
// unique index on the key is the sole arbiter, not application locks.
type Attendance struct {
	ID         string
	EmployeeID string
	Date       time.Time
	PeriodType PeriodType
	PeriodSeq  int
	State      State

	CheckInAt       *time.Time
	CheckOutAt      *time.Time
	CheckInAddress  *string
	CheckOutAddress *string
	ManualEntry     bool
	Holiday         bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Key returns the row's natural key.
func (a Attendance) Key() Key {
	return Key{
		EmployeeID: a.EmployeeID,
		Date:       a.Date,
		PeriodType: a.PeriodType,
		PeriodSeq:  a.PeriodSeq,
	}
}

// TimeEntry carries the computed hour credit for one attendance row.
type TimeEntry struct {
	ID            string
	AttendanceID  string
	EmployeeID    string
	Date          time.Time
	RegularHours  float64
	OvertimeHours float64
	LateMinutes   int

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Repository interface {
	// GetByKey returns nil when no row exists for the key.
	GetByKey(ctx context.Context, key Key) (*Attendance, error)
	// Upsert inserts or updates on the natural key. The update half
	// refuses state regression, so a COMPLETE row is never demoted.
	Upsert(ctx context.Context, att Attendance) (Attendance, error)
	// UpsertTimeEntry inserts or refreshes the row's paired time entry.
	UpsertTimeEntry(ctx context.Context, entry TimeEntry) error
	// GetLatestForDay returns the most recent row for the employee on
	// the given day, nil when none.
	GetLatestForDay(ctx context.Context, employeeID string, date time.Time) (*Attendance, error)
	ListForEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]Attendance, error)
	// ListStaleInProgress returns rows still IN_PROGRESS dated strictly
	// before the given day.
	ListStaleInProgress(ctx context.Context, before time.Time) ([]Attendance, error)
	// DeleteSynthesized removes leave-synthesized rows in the range that
	// were never touched: state OFF, or INCOMPLETE with no check-in.
	// Returns the number of rows removed.
	DeleteSynthesized(ctx context.Context, employeeID string, from, to time.Time) (int, error)
}
