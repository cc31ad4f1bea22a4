package settings

import (
	"errors"
)

var (
	// ErrInvalidStorageArea is returned by New when the configured
	// storage area is not served by the backend.
	ErrInvalidStorageArea = errors.New("backend does not serve the configured storage area")
	// ErrNoDefault is returned by Reset for a key that has no
	// declared default.
	ErrNoDefault = errors.New("setting has no declared default")
	// ErrInvalidArgument is returned when an operation is called
	// with a malformed argument: a nil backend in New, a nil
	// listener callback, or an empty key for a key-scoped listener.
	// The operation has no effect in that case.
	ErrInvalidArgument = errors.New("invalid argument")
)
