package auth

import "errors"

var (
	ErrExpired            = errors.New("auth: token expired")
	ErrMalformed          = errors.New("auth: malformed token")
	ErrInvalidRole        = errors.New("auth: invalid role")
	ErrUnauthenticated    = errors.New("auth: unauthenticated")
	ErrUnauthorized       = errors.New("auth: unauthorized")
	ErrInvalidInput       = errors.New("auth: invalid input")
	ErrInvalidCredentials = errors.New("auth: invalid credentials")
)
