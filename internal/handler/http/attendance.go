package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/attendly/attendly-backend-go/internal/domain/attendance"
	"github.com/attendly/attendly-backend-go/internal/handler/http/middleware"
	"github.com/attendly/attendly-backend-go/internal/handler/http/response"
	"github.com/attendly/attendly-backend-go/internal/service/checkin"
)

type AttendanceHandler interface {
	Submit(w http.ResponseWriter, r *http.Request)
	Status(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type attendanceHandlerImpl struct {
	gate           *checkin.Gate
	checkinService *checkin.Service
}

func NewAttendanceHandler(gate *checkin.Gate, checkinService *checkin.Service) AttendanceHandler {
	return &attendanceHandlerImpl{
		gate:           gate,
		checkinService: checkinService,
	}
}

type submitRequest struct {
	At            *time.Time `json:"at"`
	Address       string     `json:"address"`
	ManualEntry   bool       `json:"manual_entry"`
	Justification string     `json:"justification"`
}

// Submit accepts one check-in/out event. The direction is inferred
// server-side from the resolved period's current state.
func (h *attendanceHandlerImpl) Submit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	at := time.Now()
	if req.At != nil {
		at = *req.At
	}

	proj, err := h.gate.Submit(r.Context(), checkin.SubmitRequest{
		EmployeeID:    middleware.EmployeeID(r.Context()),
		At:            at,
		Address:       req.Address,
		ManualEntry:   req.ManualEntry,
		Justification: attendance.CheckoutReason(req.Justification),
	})
	if err != nil {
		if errors.Is(err, checkin.ErrSubmitTimeout) {
			response.Accepted(w, "Submission accepted but not yet confirmed, check your status")
			return
		}
		if errors.Is(err, checkin.ErrQueueFull) || errors.Is(err, checkin.ErrGateClosed) {
			response.ServiceUnavailable(w, "Submissions are temporarily unavailable, retry shortly")
			return
		}
		response.HandleError(w, err)
		return
	}

	response.Success(w, proj)
}

// Status returns the same projection a submission would, without
// writing anything.
func (h *attendanceHandlerImpl) Status(w http.ResponseWriter, r *http.Request) {
	proj, err := h.checkinService.Status(r.Context(), middleware.EmployeeID(r.Context()), "", time.Now())
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, proj)
}

// List returns the employee's attendance rows for a date range,
// defaulting to the last 31 days.
func (h *attendanceHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := now.AddDate(0, 0, -31)
	to := now

	if v := r.URL.Query().Get("from"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.BadRequest(w, "Invalid 'from' date, expected YYYY-MM-DD", nil)
			return
		}
		from = parsed
	}
	if v := r.URL.Query().Get("to"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			response.BadRequest(w, "Invalid 'to' date, expected YYYY-MM-DD", nil)
			return
		}
		to = parsed
	}

	views, err := h.checkinService.List(r.Context(), middleware.EmployeeID(r.Context()), from, to)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, views)
}
