package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/attendly/attendly-backend-go/internal/domain/leave"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
)

type leaveRequestRepository struct {
	db *database.DB
}

func NewLeaveRequestRepository(db *database.DB) leave.RequestRepository {
	return &leaveRequestRepository{db: db}
}

const leaveRequestColumns = `
	id, employee_id, category, day_format, start_date, end_date, day_count,
	reason, status, resubmitted_from, denial_reason, decided_by, decided_at,
	submitted_at, created_at, updated_at
`

func (r *leaveRequestRepository) Create(ctx context.Context, req leave.Request) (leave.Request, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO leave_requests (
			employee_id, category, day_format, start_date, end_date, day_count,
			reason, status, resubmitted_from, decided_by, decided_at, submitted_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		RETURNING id, created_at, updated_at
	`

	err := q.QueryRow(ctx, query,
		req.EmployeeID, req.Category, req.Format, req.StartDate, req.EndDate, req.DayCount,
		req.Reason, req.Status, req.ResubmittedFrom, req.DecidedBy, req.DecidedAt, req.SubmittedAt,
	).Scan(&req.ID, &req.CreatedAt, &req.UpdatedAt)
	if err != nil {
		return leave.Request{}, database.MarkRetryable(fmt.Errorf("failed to create leave request: %w", err))
	}

	return req, nil
}

func (r *leaveRequestRepository) GetByID(ctx context.Context, id string) (leave.Request, error) {
	q := GetQuerier(ctx, r.db)

	query := `SELECT ` + leaveRequestColumns + ` FROM leave_requests WHERE id = $1`

	req, err := scanLeaveRequest(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.Request{}, leave.ErrRequestNotFound
		}
		return leave.Request{}, fmt.Errorf("failed to get leave request: %w", err)
	}

	return req, nil
}

// UpdateStatus applies the transition only when the stored status still
// matches expect. The guard in the WHERE clause is what makes every
// decision idempotent under races: the second decider simply matches
// zero rows.
func (r *leaveRequestRepository) UpdateStatus(ctx context.Context, update leave.StatusUpdate, expect leave.Status) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE leave_requests
		SET status = $2,
			denial_reason = COALESCE($3, denial_reason),
			decided_by = COALESCE($4, decided_by),
			decided_at = COALESCE($5, decided_at),
			updated_at = NOW()
		WHERE id = $1 AND status = $6
	`

	tag, err := q.Exec(ctx, query,
		update.ID, update.Status, update.DenialReason, update.DecidedBy, update.DecidedAt, expect,
	)
	if err != nil {
		return database.MarkRetryable(fmt.Errorf("failed to update leave request status: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return leave.ErrAlreadyProcessed
	}

	return nil
}

func (r *leaveRequestRepository) ListForEmployee(ctx context.Context, employeeID string) ([]leave.Request, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + leaveRequestColumns + `
		FROM leave_requests
		WHERE employee_id = $1
		ORDER BY submitted_at DESC
	`

	rows, err := q.Query(ctx, query, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to list leave requests: %w", err)
	}
	defer rows.Close()

	var list []leave.Request
	for rows.Next() {
		req, err := scanLeaveRequest(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leave request: %w", err)
		}
		list = append(list, req)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate leave requests: %w", err)
	}

	return list, nil
}

func (r *leaveRequestRepository) SumApprovedDays(ctx context.Context, employeeID string, category leave.Category) (float64, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT COALESCE(SUM(day_count), 0)
		FROM leave_requests
		WHERE employee_id = $1 AND category = $2 AND status = 'approved'
	`

	var total float64
	if err := q.QueryRow(ctx, query, employeeID, category).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum approved days: %w", err)
	}

	return total, nil
}

func (r *leaveRequestRepository) HasApprovedCovering(ctx context.Context, employeeID string, date time.Time) (bool, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT EXISTS (
			SELECT 1 FROM leave_requests
			WHERE employee_id = $1 AND status = 'approved'
			  AND start_date <= $2 AND end_date >= $2
		)
	`

	var covered bool
	if err := q.QueryRow(ctx, query, employeeID, date).Scan(&covered); err != nil {
		return false, fmt.Errorf("failed to check leave coverage: %w", err)
	}

	return covered, nil
}

func scanLeaveRequest(row pgx.Row) (leave.Request, error) {
	var req leave.Request
	err := row.Scan(
		&req.ID, &req.EmployeeID, &req.Category, &req.Format,
		&req.StartDate, &req.EndDate, &req.DayCount,
		&req.Reason, &req.Status, &req.ResubmittedFrom,
		&req.DenialReason, &req.DecidedBy, &req.DecidedAt,
		&req.SubmittedAt, &req.CreatedAt, &req.UpdatedAt,
	)
	return req, err
}

type leaveBalanceRepository struct {
	db *database.DB
}

func NewLeaveBalanceRepository(db *database.DB) leave.BalanceRepository {
	return &leaveBalanceRepository{db: db}
}

func (r *leaveBalanceRepository) Get(ctx context.Context, employeeID string, category leave.Category) (leave.Balance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT employee_id, category, entitlement_days, balance_days, updated_at
		FROM leave_balances
		WHERE employee_id = $1 AND category = $2
	`

	var bal leave.Balance
	err := q.QueryRow(ctx, query, employeeID, category).Scan(
		&bal.EmployeeID, &bal.Category, &bal.EntitlementDays, &bal.BalanceDays, &bal.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return leave.Balance{}, leave.ErrBalanceNotFound
		}
		return leave.Balance{}, fmt.Errorf("failed to get leave balance: %w", err)
	}

	return bal, nil
}

// Deduct subtracts inside the database with a guard in the WHERE clause,
// so two concurrent approvals can never drive the balance negative.
func (r *leaveBalanceRepository) Deduct(ctx context.Context, employeeID string, category leave.Category, days float64) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE leave_balances
		SET balance_days = balance_days - $3, updated_at = NOW()
		WHERE employee_id = $1 AND category = $2 AND balance_days >= $3
	`

	tag, err := q.Exec(ctx, query, employeeID, category, days)
	if err != nil {
		return database.MarkRetryable(fmt.Errorf("failed to deduct leave balance: %w", err))
	}
	if tag.RowsAffected() == 0 {
		bal, getErr := r.Get(ctx, employeeID, category)
		if getErr != nil {
			return getErr
		}
		return &leave.BalanceInsufficientError{
			Category:  category,
			Available: bal.BalanceDays,
			Requested: days,
		}
	}

	return nil
}

// Refund adds days back, capped at the entitlement.
func (r *leaveBalanceRepository) Refund(ctx context.Context, employeeID string, category leave.Category, days float64) error {
	q := GetQuerier(ctx, r.db)

	query := `
		UPDATE leave_balances
		SET balance_days = LEAST(entitlement_days, balance_days + $3), updated_at = NOW()
		WHERE employee_id = $1 AND category = $2
	`

	tag, err := q.Exec(ctx, query, employeeID, category, days)
	if err != nil {
		return database.MarkRetryable(fmt.Errorf("failed to refund leave balance: %w", err))
	}
	if tag.RowsAffected() == 0 {
		return leave.ErrBalanceNotFound
	}

	return nil
}
