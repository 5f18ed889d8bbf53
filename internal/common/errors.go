// Package common defines sentinel errors shared by the neighborwatch client
// layers. Callers should match them with errors.Is.
package common

import "errors"

var (
	// repository errors
	ErrNotFound = errors.New("not found")

	// transport errors
	ErrUnavailable  = errors.New("backend unavailable")
	ErrUnauthorized = errors.New("unauthorized")

	// session errors
	ErrNotSignedIn  = errors.New("not signed in")
	ErrInvalidToken = errors.New("invalid token")
	ErrWrongRole    = errors.New("operation not permitted for this role")

	// validation errors
	ErrEmptyContent      = errors.New("content must not be empty")
	ErrUnknownCheckpoint = errors.New("checkpoint not recognized")
	ErrInvalidArgument   = errors.New("invalid argument")
)
