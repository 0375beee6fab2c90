package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	domainleave "github.com/attendly/attendly-backend-go/internal/domain/leave"
	"github.com/attendly/attendly-backend-go/internal/handler/http/middleware"
	"github.com/attendly/attendly-backend-go/internal/handler/http/response"
	leaveservice "github.com/attendly/attendly-backend-go/internal/service/leave"
)

type LeaveHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
	Get(w http.ResponseWriter, r *http.Request)
	Approve(w http.ResponseWriter, r *http.Request)
	Deny(w http.ResponseWriter, r *http.Request)
	Resubmit(w http.ResponseWriter, r *http.Request)
	Cancel(w http.ResponseWriter, r *http.Request)
	Balances(w http.ResponseWriter, r *http.Request)
	CreateOvertime(w http.ResponseWriter, r *http.Request)
}

type leaveHandlerImpl struct {
	leaveService *leaveservice.Service
}

func NewLeaveHandler(leaveService *leaveservice.Service) LeaveHandler {
	return &leaveHandlerImpl{leaveService: leaveService}
}

type createLeaveRequest struct {
	Category  string `json:"category"`
	Format    string `json:"format"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Reason    string `json:"reason"`
}

func (h *leaveHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	var req createLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	start, err := time.Parse("2006-01-02", req.StartDate)
	if err != nil {
		response.BadRequest(w, "Invalid start_date, expected YYYY-MM-DD", nil)
		return
	}
	end, err := time.Parse("2006-01-02", req.EndDate)
	if err != nil {
		response.BadRequest(w, "Invalid end_date, expected YYYY-MM-DD", nil)
		return
	}

	created, err := h.leaveService.CreateRequest(r.Context(), leaveservice.CreateInput{
		EmployeeID: middleware.EmployeeID(r.Context()),
		Category:   domainleave.Category(req.Category),
		Format:     domainleave.DayFormat(req.Format),
		StartDate:  start,
		EndDate:    end,
		Reason:     req.Reason,
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Leave request filed", created)
}

func (h *leaveHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	requests, err := h.leaveService.List(r.Context(), middleware.EmployeeID(r.Context()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, requests)
}

func (h *leaveHandlerImpl) Get(w http.ResponseWriter, r *http.Request) {
	req, err := h.leaveService.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	// Employees only see their own requests; approvers see all.
	if req.EmployeeID != middleware.EmployeeID(r.Context()) && !middleware.IsApprover(r.Context()) {
		response.HandleError(w, domainleave.ErrRequestNotFound)
		return
	}

	response.Success(w, req)
}

func (h *leaveHandlerImpl) Approve(w http.ResponseWriter, r *http.Request) {
	req, err := h.leaveService.Approve(r.Context(), chi.URLParam(r, "id"), middleware.EmployeeID(r.Context()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request approved", req)
}

type denyRequest struct {
	Reason string `json:"reason"`
}

// Deny records the denial. Without a reason the request parks in an
// intermediate state until this endpoint is called again with one.
func (h *leaveHandlerImpl) Deny(w http.ResponseWriter, r *http.Request) {
	var body denyRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	id := chi.URLParam(r, "id")

	current, err := h.leaveService.Get(r.Context(), id)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	var req domainleave.Request
	if current.Status == domainleave.StatusDenialPending {
		req, err = h.leaveService.FinalizeDenial(r.Context(), id, body.Reason)
	} else {
		req, err = h.leaveService.Deny(r.Context(), id, middleware.EmployeeID(r.Context()), body.Reason)
	}
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request denied", req)
}

type resubmitRequest struct {
	Reason string `json:"reason"`
}

func (h *leaveHandlerImpl) Resubmit(w http.ResponseWriter, r *http.Request) {
	var body resubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	req, err := h.leaveService.Resubmit(r.Context(), chi.URLParam(r, "id"), body.Reason)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Leave request resubmitted", req)
}

func (h *leaveHandlerImpl) Cancel(w http.ResponseWriter, r *http.Request) {
	req, err := h.leaveService.Cancel(r.Context(), chi.URLParam(r, "id"), middleware.EmployeeID(r.Context()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.SuccessWithMessage(w, "Leave request cancelled", req)
}

func (h *leaveHandlerImpl) Balances(w http.ResponseWriter, r *http.Request) {
	balances, err := h.leaveService.Balances(r.Context(), middleware.EmployeeID(r.Context()))
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, balances)
}

type createOvertimeRequest struct {
	EmployeeID string    `json:"employee_id"`
	StartAt    time.Time `json:"start_at"`
	EndAt      time.Time `json:"end_at"`
}

func (h *leaveHandlerImpl) CreateOvertime(w http.ResponseWriter, r *http.Request) {
	var body createOvertimeRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	window, err := h.leaveService.CreateOvertimeWindow(r.Context(), leaveservice.OvertimeInput{
		EmployeeID: body.EmployeeID,
		StartAt:    body.StartAt,
		EndAt:      body.EndAt,
		ApprovedBy: middleware.EmployeeID(r.Context()),
	})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Overtime window granted", window)
}
