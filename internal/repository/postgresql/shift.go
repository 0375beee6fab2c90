package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/attendly/attendly-backend-go/internal/domain/shift"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
)

type shiftRepository struct {
	db *database.DB
}

func NewShiftRepository(db *database.DB) shift.ShiftRepository {
	return &shiftRepository{db: db}
}

func (r *shiftRepository) GetByID(ctx context.Context, id string) (shift.Shift, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, name, start_minutes, end_minutes, workdays, created_at, updated_at
		FROM shifts
		WHERE id = $1
	`

	var s shift.Shift
	err := q.QueryRow(ctx, query, id).Scan(
		&s.ID, &s.Name, &s.StartMinutes, &s.EndMinutes, &s.Workdays,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shift.Shift{}, shift.ErrShiftNotFound
		}
		return shift.Shift{}, fmt.Errorf("failed to get shift: %w", err)
	}

	return s, nil
}

type holidayRepository struct {
	db *database.DB
}

func NewHolidayRepository(db *database.DB) shift.HolidayRepository {
	return &holidayRepository{db: db}
}

func (r *holidayRepository) Create(ctx context.Context, holiday shift.Holiday) (shift.Holiday, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO holidays (date, name)
		VALUES ($1, $2)
		RETURNING date, name
	`

	err := q.QueryRow(ctx, query, holiday.Date, holiday.Name).
		Scan(&holiday.Date, &holiday.Name)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return shift.Holiday{}, shift.ErrHolidayExists
		}
		return shift.Holiday{}, database.MarkRetryable(fmt.Errorf("failed to create holiday: %w", err))
	}

	return holiday, nil
}

func (r *holidayRepository) GetByDate(ctx context.Context, date time.Time) (*shift.Holiday, error) {
	q := GetQuerier(ctx, r.db)

	var h shift.Holiday
	err := q.QueryRow(ctx, `SELECT date, name FROM holidays WHERE date = $1`, date).
		Scan(&h.Date, &h.Name)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get holiday: %w", err)
	}

	return &h, nil
}

func (r *holidayRepository) List(ctx context.Context, from, to time.Time) ([]shift.Holiday, error) {
	q := GetQuerier(ctx, r.db)

	rows, err := q.Query(ctx,
		`SELECT date, name FROM holidays WHERE date >= $1 AND date <= $2 ORDER BY date`,
		from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list holidays: %w", err)
	}
	defer rows.Close()

	var holidays []shift.Holiday
	for rows.Next() {
		var h shift.Holiday
		if err := rows.Scan(&h.Date, &h.Name); err != nil {
			return nil, fmt.Errorf("failed to scan holiday: %w", err)
		}
		holidays = append(holidays, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate holidays: %w", err)
	}

	return holidays, nil
}

type overtimeRepository struct {
	db *database.DB
}

func NewOvertimeRepository(db *database.DB) shift.OvertimeRepository {
	return &overtimeRepository{db: db}
}

func (r *overtimeRepository) Create(ctx context.Context, window shift.OvertimeWindow) (shift.OvertimeWindow, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO overtime_windows (
			employee_id, start_at, end_at, inside_shift_hours,
			day_off_overtime, approved_by, source_request_id
		) VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`

	err := q.QueryRow(ctx, query,
		window.EmployeeID,
		window.StartAt,
		window.EndAt,
		window.InsideShiftHours,
		window.DayOffOvertime,
		window.ApprovedBy,
		window.SourceRequestID,
	).Scan(&window.ID, &window.CreatedAt)
	if err != nil {
		return shift.OvertimeWindow{}, database.MarkRetryable(fmt.Errorf("failed to create overtime window: %w", err))
	}

	return window, nil
}

func (r *overtimeRepository) ListForDay(ctx context.Context, employeeID string, dayStart, dayEnd time.Time) ([]shift.OvertimeWindow, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT id, employee_id, start_at, end_at, inside_shift_hours,
			   day_off_overtime, approved_by, source_request_id, created_at
		FROM overtime_windows
		WHERE employee_id = $1
		  AND start_at < $3
		  AND end_at >= $2
		ORDER BY start_at
	`

	rows, err := q.Query(ctx, query, employeeID, dayStart, dayEnd)
	if err != nil {
		return nil, fmt.Errorf("failed to list overtime windows: %w", err)
	}
	defer rows.Close()

	var windows []shift.OvertimeWindow
	for rows.Next() {
		var w shift.OvertimeWindow
		err := rows.Scan(
			&w.ID, &w.EmployeeID, &w.StartAt, &w.EndAt, &w.InsideShiftHours,
			&w.DayOffOvertime, &w.ApprovedBy, &w.SourceRequestID, &w.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan overtime window: %w", err)
		}
		windows = append(windows, w)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate overtime windows: %w", err)
	}

	return windows, nil
}
