package extractions

import (
	"errors"
	"net/http"

	"github.com/JaimeStill/evidence-lab/internal/evidence"
)

// Domain errors for extraction operations.
var (
	ErrNotFound  = errors.New("extraction not found")
	ErrDuplicate = errors.New("extraction already exists")
)

// MapHTTPStatus converts domain errors to appropriate HTTP status codes.
func MapHTTPStatus(err error) int {
	if errors.Is(err, ErrNotFound) || errors.Is(err, evidence.ErrNotFound) {
		return http.StatusNotFound
	}
	if errors.Is(err, ErrDuplicate) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
