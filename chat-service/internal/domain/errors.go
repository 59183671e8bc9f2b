package domain

import "errors"

// Relay error taxonomy. Callers wrap these with fmt.Errorf("%w: ...") and
// classify with errors.Is.
var (
	ErrInvalidContext = errors.New("invalid chat context")
	ErrMissingField   = errors.New("missing required fields")
	ErrPersistence    = errors.New("persistence failure")
	ErrUnauthorized   = errors.New("sender does not match authenticated user")
)

// ErrorCode maps a relay error onto its wire code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidContext):
		return ErrCodeInvalidContext
	case errors.Is(err, ErrMissingField):
		return ErrCodeMissingField
	case errors.Is(err, ErrPersistence):
		return ErrCodePersistence
	case errors.Is(err, ErrUnauthorized):
		return ErrCodeUnauthorized
	default:
		return ErrCodeInternalError
	}
}
