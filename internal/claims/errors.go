package claims

import (
	"errors"
	"net/http"
)

var (
	ErrNotFound          = errors.New("claim not found")
	ErrDuplicate         = errors.New("claim already exists")
	ErrCitationNotFound  = errors.New("citation not found")
	ErrInvalidTransition = errors.New("invalid claim status transition")
	ErrInvalidClaim      = errors.New("invalid claim")
	ErrDuplicateText     = errors.New("claim text matches an active claim")
)

// MapHTTPStatus converts domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, ErrCitationNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicate), errors.Is(err, ErrInvalidTransition), errors.Is(err, ErrDuplicateText):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidClaim):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
