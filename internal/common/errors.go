// Package common defines shared constants, sentinel errors, and identifier
// helpers used across gatekeeper components. Callers should use errors.Is to
// match these values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Bootstrap errors. They are recoverable at the request level by
	// redirecting to setup, but stay distinct so operators can tell
	// "unconfigured" from "misconfigured" from "unmigrated".
	ErrConfigurationMissing = errors.New("configuration missing")
	ErrConnectivityFailure  = errors.New("connectivity failure")
	ErrSchemaMissing        = errors.New("schema missing")

	// Vault errors.
	ErrDecode = errors.New("decode error")
	ErrWrite  = errors.New("write error")

	// Input errors.
	ErrValidation      = errors.New("validation error")
	ErrInvalidArgument = errors.New("invalid argument")

	// Auth and session errors.
	ErrAuthentication = errors.New("invalid username or password")
	ErrSecurity       = errors.New("security violation")
	ErrNoSession      = errors.New("no active session")
	ErrAlreadyExists  = errors.New("already exists")
)
