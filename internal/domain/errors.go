package domain

import "errors"

// Error classes shared by all packages. Package-level sentinels wrap one of
// these so callers can classify failures with errors.Is.
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
)

// Error carries a specific message while belonging to one of the error classes above.
type Error struct {
	class error
	msg   string
}

// NewError creates an error of the given class.
func NewError(class error, msg string) *Error {
	return &Error{class: class, msg: msg}
}

func (e *Error) Error() string {
	return e.msg
}

// Unwrap returns the error class.
func (e *Error) Unwrap() error {
	return e.class
}
