package errors

import "errors"

// Caller errors.
var (
	ErrValidation   = errors.New("invalid argument")
	ErrDuplicateKey = errors.New("duplicate key")
	ErrNotSupported = errors.New("operation not supported")
)

// Configuration errors.
var (
	ErrIncompatibleType = errors.New("incompatible entity type")
)
