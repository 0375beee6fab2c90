package http

import (
	"encoding/json"
	"net/http"

	authservice "github.com/attendly/attendly-backend-go/internal/service/auth"

	"github.com/attendly/attendly-backend-go/internal/handler/http/response"
)

type AuthHandler interface {
	Login(w http.ResponseWriter, r *http.Request)
}

type authHandlerImpl struct {
	authService *authservice.Service
}

func NewAuthHandler(authService *authservice.Service) AuthHandler {
	return &authHandlerImpl{authService: authService}
}

type loginRequest struct {
	EmployeeCode string `json:"employee_code"`
	PIN          string `json:"pin"`
}

// Login authenticates with employee code and PIN.
func (h *authHandlerImpl) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid request format", nil)
		return
	}

	result, err := h.authService.Login(r.Context(), req.EmployeeCode, req.PIN)
	if err != nil {
		response.HandleError(w, err)
		return
	}

	response.Success(w, result)
}
