package settings

import "errors"

var (
	// ErrNotFound is returned when a rule or import definition does not exist.
	ErrNotFound = errors.New("settings: not found")

	// ErrInvalidLogin is returned when store login information fails validation.
	ErrInvalidLogin = errors.New("settings: invalid login")
)
