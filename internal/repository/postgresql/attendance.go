package postgresql

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/pkg/database"
)

type attendanceRepository struct {
	db *database.DB
}

func NewAttendanceRepository(db *database.DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

const attendanceColumns = `
	id, employee_id, date, period_type, period_seq, state,
	check_in_at, check_out_at, check_in_address, check_out_address,
	manual_entry, holiday, created_at, updated_at
`

// stateRank mirrors the forward-only lifecycle in SQL so the upsert's
// guard can compare states. OFF and COMPLETE are both terminal.
const stateRank = `CASE %s WHEN 'INCOMPLETE' THEN 0 WHEN 'IN_PROGRESS' THEN 1 ELSE 2 END`

func (r *attendanceRepository) GetByKey(ctx context.Context, key attendance.Key) (*attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE employee_id = $1 AND date = $2 AND period_type = $3 AND period_seq = $4
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, key.EmployeeID, key.Date, key.PeriodType, key.PeriodSeq))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get attendance: %w", err)
	}

	return &att, nil
}

// Upsert inserts or updates on the natural key. The update half carries
// the state-rank guard, so a concurrent or replayed write can never
// demote a row, and an OFF write never lands on a row that holds a real
// check-in; when the guard blocks the update the existing row is
// returned unchanged.
func (r *attendanceRepository) Upsert(ctx context.Context, att attendance.Attendance) (attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO attendances (
			employee_id, date, period_type, period_seq, state,
			check_in_at, check_out_at, check_in_address, check_out_address,
			manual_entry, holiday
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (employee_id, date, period_type, period_seq) DO UPDATE SET
			state = EXCLUDED.state,
			check_in_at = COALESCE(attendances.check_in_at, EXCLUDED.check_in_at),
			check_out_at = COALESCE(EXCLUDED.check_out_at, attendances.check_out_at),
			check_in_address = COALESCE(attendances.check_in_address, EXCLUDED.check_in_address),
			check_out_address = COALESCE(EXCLUDED.check_out_address, attendances.check_out_address),
			manual_entry = attendances.manual_entry OR EXCLUDED.manual_entry,
			holiday = attendances.holiday OR EXCLUDED.holiday,
			updated_at = NOW()
		WHERE ` + fmt.Sprintf(stateRank, "attendances.state") + ` <= ` + fmt.Sprintf(stateRank, "EXCLUDED.state") + `
		  AND (EXCLUDED.state <> 'OFF' OR attendances.check_in_at IS NULL)
		RETURNING ` + attendanceColumns + `
	`

	saved, err := scanAttendance(q.QueryRow(ctx, query,
		att.EmployeeID, att.Date, att.PeriodType, att.PeriodSeq, att.State,
		att.CheckInAt, att.CheckOutAt, att.CheckInAddress, att.CheckOutAddress,
		att.ManualEntry, att.Holiday,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Guard refused the regression; the stored row wins.
			existing, getErr := r.GetByKey(ctx, att.Key())
			if getErr != nil {
				return attendance.Attendance{}, getErr
			}
			if existing == nil {
				return attendance.Attendance{}, database.MarkRetryable(fmt.Errorf("attendance row vanished during upsert"))
			}
			return *existing, nil
		}
		return attendance.Attendance{}, database.MarkRetryable(fmt.Errorf("failed to upsert attendance: %w", err))
	}

	return saved, nil
}

func (r *attendanceRepository) UpsertTimeEntry(ctx context.Context, entry attendance.TimeEntry) error {
	q := GetQuerier(ctx, r.db)

	query := `
		INSERT INTO time_entries (
			attendance_id, employee_id, date, regular_hours, overtime_hours, late_minutes
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (attendance_id) DO UPDATE SET
			regular_hours = EXCLUDED.regular_hours,
			overtime_hours = EXCLUDED.overtime_hours,
			late_minutes = EXCLUDED.late_minutes,
			updated_at = NOW()
	`

	_, err := q.Exec(ctx, query,
		entry.AttendanceID, entry.EmployeeID, entry.Date,
		entry.RegularHours, entry.OvertimeHours, entry.LateMinutes,
	)
	if err != nil {
		return database.MarkRetryable(fmt.Errorf("failed to upsert time entry: %w", err))
	}

	return nil
}

func (r *attendanceRepository) GetLatestForDay(ctx context.Context, employeeID string, date time.Time) (*attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE employee_id = $1 AND date = $2
		ORDER BY updated_at DESC
		LIMIT 1
	`

	att, err := scanAttendance(q.QueryRow(ctx, query, employeeID, date))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest attendance: %w", err)
	}

	return &att, nil
}

func (r *attendanceRepository) ListForEmployee(ctx context.Context, employeeID string, from, to time.Time) ([]attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE employee_id = $1 AND date >= $2 AND date <= $3
		ORDER BY date DESC, period_type, period_seq
	`

	rows, err := q.Query(ctx, query, employeeID, from, to)
	if err != nil {
		return nil, fmt.Errorf("failed to list attendance: %w", err)
	}
	defer rows.Close()

	return collectAttendances(rows)
}

func (r *attendanceRepository) ListStaleInProgress(ctx context.Context, before time.Time) ([]attendance.Attendance, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		SELECT ` + attendanceColumns + `
		FROM attendances
		WHERE state = 'IN_PROGRESS' AND date < $1
		ORDER BY date
	`

	rows, err := q.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("failed to list stale attendance: %w", err)
	}
	defer rows.Close()

	return collectAttendances(rows)
}

// DeleteSynthesized removes leave-synthesized rows in the range. A row
// holding a check-in was worked and is never deleted, whatever its state.
func (r *attendanceRepository) DeleteSynthesized(ctx context.Context, employeeID string, from, to time.Time) (int, error) {
	q := GetQuerier(ctx, r.db)

	query := `
		DELETE FROM attendances
		WHERE employee_id = $1
		  AND date >= $2 AND date <= $3
		  AND period_type = 'REGULAR'
		  AND (state = 'OFF' OR state = 'INCOMPLETE')
		  AND check_in_at IS NULL
	`

	tag, err := q.Exec(ctx, query, employeeID, from, to)
	if err != nil {
		return 0, database.MarkRetryable(fmt.Errorf("failed to delete synthesized attendance: %w", err))
	}

	return int(tag.RowsAffected()), nil
}

func scanAttendance(row pgx.Row) (attendance.Attendance, error) {
	var att attendance.Attendance
	err := row.Scan(
		&att.ID, &att.EmployeeID, &att.Date, &att.PeriodType, &att.PeriodSeq, &att.State,
		&att.CheckInAt, &att.CheckOutAt, &att.CheckInAddress, &att.CheckOutAddress,
		&att.ManualEntry, &att.Holiday, &att.CreatedAt, &att.UpdatedAt,
	)
	return att, err
}

func collectAttendances(rows pgx.Rows) ([]attendance.Attendance, error) {
	var list []attendance.Attendance
	for rows.Next() {
		att, err := scanAttendance(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan attendance: %w", err)
		}
		list = append(list, att)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate attendance: %w", err)
	}
	return list, nil
}
