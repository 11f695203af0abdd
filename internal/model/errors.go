package model

import "errors"

var (
	// User related errors
	ErrUserNotFound       = errors.New("user not found")
	ErrUserAlreadyExists  = errors.New("user already exists")
	ErrInvalidPassword    = errors.New("invalid password")
	ErrInvalidCredentials = errors.New("invalid credentials")

	// Token related errors
	ErrTokenNotFound = errors.New("token not found")
	ErrTokenExpired  = errors.New("token expired")

	// Permission/Access related errors
	ErrUnauthorized = errors.New("unauthorized")
	ErrForbidden    = errors.New("forbidden")

	// CRM records
	ErrLeadNotFound        = errors.New("lead not found")
	ErrLeadEmailTaken      = errors.New("lead email already in use")
	ErrLeadEmailPending    = errors.New("lead email held by a pending deletion")
	ErrOpportunityNotFound = errors.New("opportunity not found")

	// Generic errors
	ErrInvalidInput = errors.New("invalid input")
)
