package shift

import "errors"

var (
	ErrShiftNotFound = errors.New("shift not found")
	ErrHolidayExists = errors.New("holiday already registered for that date")
	ErrInvalidWindow = errors.New("overtime window end must be after start")
)
