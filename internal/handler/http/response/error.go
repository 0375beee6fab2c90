package response

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/domain/auth"
	"github.com/attendly/attendly-backend-go/internal/domain/employee"
	"github.com/attendly/attendly-backend-go/internal/domain/leave"
	"github.com/attendly/attendly-backend-go/internal/domain/shift"
	"github.com/attendly/attendly-backend-go/internal/pkg/validator"
)

// HandleError maps domain errors to HTTP responses
func HandleError(w http.ResponseWriter, err error) {
	var validationErrs validator.ValidationErrors
	if errors.As(err, &validationErrs) {
		ValidationError(w, validationErrs.ToMap())
		return
	}

	var insufficient *leave.BalanceInsufficientError
	if errors.As(err, &insufficient) {
		BadRequest(w, "Insufficient leave balance", map[string]string{
			"category":  string(insufficient.Category),
			"available": fmt.Sprintf("%.1f", insufficient.Available),
			"requested": fmt.Sprintf("%.1f", insufficient.Requested),
		})
		return
	}

	switch {
	// Auth domain errors
	case errors.Is(err, auth.ErrInvalidCredentials):
		Unauthorized(w, "Invalid employee code or PIN")
	case errors.Is(err, auth.ErrInvalidToken):
		Unauthorized(w, "Invalid token")

	// Employee domain errors
	case errors.Is(err, employee.ErrEmployeeNotFound):
		NotFound(w, "Employee not found")

	// Attendance domain errors
	case errors.Is(err, attendance.ErrPeriodNotFound):
		NotFound(w, "No work period applies right now")
	case errors.Is(err, attendance.ErrAttendanceNotFound):
		NotFound(w, "Attendance record not found")
	case errors.Is(err, attendance.ErrOutsideWindow):
		BadRequest(w, "Event time falls outside the work window", nil)
	case errors.Is(err, attendance.ErrEarlyCheckoutNeedsReason):
		BadRequest(w, "Checking out before the window end requires a justification", nil)
	case errors.Is(err, attendance.ErrAlreadyProcessed):
		Conflict(w, "Attendance for this period is already settled")

	// Shift domain errors
	case errors.Is(err, shift.ErrShiftNotFound):
		NotFound(w, "Shift not found")
	case errors.Is(err, shift.ErrHolidayExists):
		Conflict(w, "Holiday already registered for that date")
	case errors.Is(err, shift.ErrInvalidWindow):
		BadRequest(w, "Overtime window end must be after its start", nil)

	// Leave domain errors
	case errors.Is(err, leave.ErrRequestNotFound):
		NotFound(w, "Leave request not found")
	case errors.Is(err, leave.ErrBalanceNotFound):
		NotFound(w, "Leave balance not found")
	case errors.Is(err, leave.ErrAlreadyProcessed):
		Conflict(w, "Leave request already processed")
	case errors.Is(err, leave.ErrNotDenied):
		Conflict(w, "Only a denied request can be resubmitted")
	case errors.Is(err, leave.ErrNotCancellable):
		Conflict(w, "Leave request can no longer be cancelled")

	// Default
	default:
		InternalServerError(w, "An unexpected error occurred")
	}
}
