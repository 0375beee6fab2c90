package attendance

import "errors"

var (
	// ErrPeriodNotFound means "now" resolves to no regular shift window
	// and no approved overtime window.
	ErrPeriodNotFound = errors.New("no attendance period applies at this time")

	// ErrAlreadyProcessed is the idempotent outcome: the submission was
	// already applied and the current status is returned unchanged.
	ErrAlreadyProcessed = errors.New("attendance already processed for this period")

	ErrOutsideWindow            = errors.New("event time falls outside the attendance window")
	ErrEarlyCheckoutNeedsReason = errors.New("checkout before window end requires a leave justification")
	ErrAttendanceNotFound       = errors.New("attendance not found")
)
