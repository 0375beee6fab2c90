package auth

import (
	"context"
	"errors"
	"log/slog"

	"golang.org/x/crypto/bcrypt"

	"github.com/attendly/attendly-backend-go/internal/domain/auth"
	"github.com/attendly/attendly-backend-go/internal/domain/employee"
	"github.com/attendly/attendly-backend-go/internal/pkg/jwt"
	"github.com/attendly/attendly-backend-go/internal/pkg/validator"
)

// LoginResult carries the issued token and its expiry.
type LoginResult struct {
	AccessToken string `json:"access_token"`
	ExpiresAt   int64  `json:"expires_at"`
	EmployeeID  string `json:"employee_id"`
	Name        string `json:"name"`
	IsApprover  bool   `json:"is_approver"`
}

type Service struct {
	employees employee.Repository
	jwt       jwt.Service
	log       *slog.Logger
}

func NewService(employees employee.Repository, jwtService jwt.Service, log *slog.Logger) *Service {
	return &Service{
		employees: employees,
		jwt:       jwtService,
		log:       log,
	}
}

// Login verifies the employee code and PIN and issues an access token.
// A missing employee and a wrong PIN produce the same error.
func (s *Service) Login(ctx context.Context, code, pin string) (LoginResult, error) {
	if !validator.IsValidEmployeeCode(code) || validator.IsEmpty(pin) {
		return LoginResult{}, auth.ErrInvalidCredentials
	}

	emp, err := s.employees.GetByCode(ctx, code)
	if err != nil {
		if errors.Is(err, employee.ErrEmployeeNotFound) {
			return LoginResult{}, auth.ErrInvalidCredentials
		}
		return LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(emp.PINHash), []byte(pin)); err != nil {
		return LoginResult{}, auth.ErrInvalidCredentials
	}

	token, expiresAt, err := s.jwt.GenerateAccessToken(emp.ID, emp.IsApprover)
	if err != nil {
		s.log.Error("failed to issue access token", "employee_id", emp.ID, "error", err)
		return LoginResult{}, err
	}

	return LoginResult{
		AccessToken: token,
		ExpiresAt:   expiresAt,
		EmployeeID:  emp.ID,
		Name:        emp.Name,
		IsApprover:  emp.IsApprover,
	}, nil
}

// SSEToken issues the short-lived token the event stream endpoint
// accepts as a query parameter, since EventSource cannot set headers.
func (s *Service) SSEToken(ctx context.Context, employeeID string) (string, int, error) {
	return s.jwt.GenerateSSEToken(employeeID)
}
