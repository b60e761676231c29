package persistence

import "errors"

// Common persistence errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrCorrupt           = errors.New("corrupt record")
	ErrUnsupportedDriver = errors.New("unsupported database driver")
)
