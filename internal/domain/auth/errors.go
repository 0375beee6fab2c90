package auth

import "errors"

var (
	ErrInvalidCredentials = errors.New("invalid employee code or PIN")
	ErrInvalidToken       = errors.New("invalid or expired token")
)
