package middleware

import (
	"context"
	"net/http"

	"github.com/go-chi/jwtauth/v5"

	"github.com/attendly/attendly-backend-go/internal/domain/auth"
	"github.com/attendly/attendly-backend-go/internal/handler/http/response"
)

type contextKey string

const (
	employeeIDKey contextKey = "employee_id"
	isApproverKey contextKey = "is_approver"
)

func AuthRequired(ja *jwtauth.JWTAuth) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		hfn := func(w http.ResponseWriter, r *http.Request) {
			token, _, err := jwtauth.FromContext(r.Context())

			if err != nil {
				response.Unauthorized(w, err.Error())
				return
			}

			if token == nil {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}

			claims, err := token.AsMap(r.Context())
			if err != nil {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}
			tokenType, ok := claims["type"].(string)
			if tokenType != "access" || !ok {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}
			employeeID, ok := claims["employee_id"].(string)
			if !ok || employeeID == "" {
				response.HandleError(w, auth.ErrInvalidToken)
				return
			}
			isApprover, _ := claims["is_approver"].(bool)

			ctx := context.WithValue(r.Context(), employeeIDKey, employeeID)
			ctx = context.WithValue(ctx, isApproverKey, isApprover)
			next.ServeHTTP(w, r.WithContext(ctx))
		}
		return http.HandlerFunc(hfn)
	}
}

// ApproverRequired gates decision endpoints behind the approver claim.
func ApproverRequired(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsApprover(r.Context()) {
			response.Forbidden(w, "Approver access required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// EmployeeID returns the authenticated employee id, empty when absent.
func EmployeeID(ctx context.Context) string {
	id, _ := ctx.Value(employeeIDKey).(string)
	return id
}

// IsApprover reports the authenticated token's approver claim.
func IsApprover(ctx context.Context) bool {
	ok, _ := ctx.Value(isApproverKey).(bool)
	return ok
}
