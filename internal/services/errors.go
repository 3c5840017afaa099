package services

import "errors"

// Service-level error taxonomy. Handlers map these to HTTP status codes
// with errors.Is; services wrap them with detail via fmt.Errorf("%w: ...").
// Guard errors are always raised before any mutation is attempted.
var (
	ErrValidation    = errors.New("invalid input")
	ErrConflict      = errors.New("conflict")
	ErrProtectedRole = errors.New("the admin role is protected")
	ErrNotFound      = errors.New("not found")
	ErrSelfDemotion  = errors.New("you cannot demote yourself")
	ErrSelfDeletion  = errors.New("you cannot delete yourself")
	ErrLastAdmin     = errors.New("at least one admin must remain")
	ErrUpload        = errors.New("attachment upload failed")
	ErrPermission    = errors.New("permission denied")
)
