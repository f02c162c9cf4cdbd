package apperrors

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrInvalid       = errors.New("invalid input")
	ErrUnauthorized  = errors.New("unauthorized")
	ErrMultipleRows  = errors.New("multiple rows returned for singleton")
	ErrClosed        = errors.New("closed")
	ErrNotConfigured = errors.New("not configured")
)
