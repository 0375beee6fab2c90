package leave

import (
	"context"
	"time"
)

// Category of leave. Unpaid has no balance accounting.
type Category string

const (
	CategorySick     Category = "sick"
	CategoryBusiness Category = "business"
	CategoryAnnual   Category = "annual"
	CategoryUnpaid   Category = "unpaid"
)

// Paid reports whether the category is balance-accounted.
func (c Category) Paid() bool {
	return c != CategoryUnpaid
}

// Valid reports whether the category is one of the closed set.
func (c Category) Valid() bool {
	switch c {
	case CategorySick, CategoryBusiness, CategoryAnnual, CategoryUnpaid:
		return true
	}
	return false
}

// DayFormat distinguishes full-day from half-day leave.
type DayFormat string

const (
	FormatFullDay DayFormat = "full_day"
	FormatHalfDay DayFormat = "half_day"
)

func (f DayFormat) Valid() bool {
	return f == FormatFullDay || f == FormatHalfDay
}

// HourCredit returns the regular hours a paid leave day credits.
func (f DayFormat) HourCredit() float64 {
	if f == FormatHalfDay {
		return 4
	}
	return 8
}

// Status is the request lifecycle.
type Status string

const (
	StatusPending       Status = "pending"
	StatusApproved      Status = "approved"
	StatusDenied        Status = "denied"
	StatusDenialPending Status = "denial_pending"
	StatusCancelled     Status = "cancelled"
)

// Request entity. ResubmittedFrom links a resubmission to the denied
// request it clones, for audit lineage.
type Request struct {
	ID         string
	EmployeeID string
	Category   Category
	Format     DayFormat
	StartDate  time.Time
	EndDate    time.Time
	DayCount   float64
	Reason     string

	Status          Status
	ResubmittedFrom *string
	DenialReason    *string
	DecidedBy       *string
	DecidedAt       *time.Time

	SubmittedAt time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Balance is the per-employee running entitlement for one category.
type Balance struct {
	EmployeeID      string
	Category        Category
	EntitlementDays float64
	BalanceDays     float64

	UpdatedAt time.Time
}

// StatusUpdate carries a status transition to the repository.
type StatusUpdate struct {
	ID           string
	Status       Status
	DenialReason *string
	DecidedBy    *string
	DecidedAt    *time.Time
}

type RequestRepository interface {
	Create(ctx context.Context, req Request) (Request, error)
	GetByID(ctx context.Context, id string) (Request, error)
	// UpdateStatus applies the transition only when the row is still in
	// the expected status; ErrAlreadyProcessed otherwise.
	UpdateStatus(ctx context.Context, update StatusUpdate, expect Status) error
	ListForEmployee(ctx context.Context, employeeID string) ([]Request, error)
	// SumApprovedDays totals the day counts of approved requests for
	// the employee and category.
	SumApprovedDays(ctx context.Context, employeeID string, category Category) (float64, error)
	// HasApprovedCovering reports whether an approved request spans the
	// given date.
	HasApprovedCovering(ctx context.Context, employeeID string, date time.Time) (bool, error)
}

type BalanceRepository interface {
	Get(ctx context.Context, employeeID string, category Category) (Balance, error)
	// Deduct subtracts days from the stored balance, failing with a
	// BalanceInsufficientError instead of ever going negative.
	Deduct(ctx context.Context, employeeID string, category Category, days float64) error
	// Refund adds days back, capped at the entitlement.
	Refund(ctx context.Context, employeeID string, category Category, days float64) error
}
