package http

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/attendly/attendly-backend-go/internal/domain/shift"
	"github.com/attendly/attendly-backend-go/internal/handler/http/response"
)

type HolidayHandler interface {
	Create(w http.ResponseWriter, r *http.Request)
	List(w http.ResponseWriter, r *http.Request)
}

type holidayHandlerImpl struct {
	holidays shift.HolidayRepository
}

func NewHolidayHandler(holidays shift.HolidayRepository) HolidayHandler {
	return &holidayHandlerImpl{holidays: holidays}
}

type createHolidayRequest struct {
	Date string `json:"date"`
	Name string `json:"name"`
}

func (h *holidayHandlerImpl) Create(w http.ResponseWriter, r *http.Request) {
	var body createHolidayRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	date, err := time.Parse("2006-01-02", body.Date)
	if err != nil {
		response.BadRequest(w, "Invalid date, expected YYYY-MM-DD", nil)
		return
	}
	if body.Name == "" {
		response.BadRequest(w, "Holiday name is required", nil)
		return
	}

	created, err := h.holidays.Create(r.Context(), shift.Holiday{Date: date, Name: body.Name})
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Created(w, "Holiday registered", created)
}

// List returns holidays in a range, defaulting to the current year.
func (h *holidayHandlerImpl) List(w http.ResponseWriter, r *http.Request) {
	now := time.Now()
	from := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, now.Location())
	to := time.Date(now.Year(), time.December, 31, 0, 0, 0, 0, now.Location())

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

	holidays, err := h.holidays.List(r.Context(), from, to)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, holidays)
}
