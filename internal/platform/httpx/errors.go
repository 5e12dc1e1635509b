package httpx

import (
	"errors"
	"net/http"

	"github.com/ledgergate/ledgergate/internal/authz"
)

// Sentinel errors for the domain layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrDuplicate    = errors.New("duplicate entry")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
)

// IsInternal reports whether err maps to a 500-class response: a
// programmer or data-integrity fault that should be logged, unlike expected
// validation and authorization outcomes.
func IsInternal(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, ErrDuplicate),
		errors.Is(err, ErrValidation),
		errors.Is(err, ErrForbidden),
		errors.Is(err, ErrUnauthorized),
		errors.Is(err, authz.ErrCycleDetected),
		errors.Is(err, authz.ErrInsufficientRole):
		return false
	default:
		return true
	}
}

// RespondError maps domain and engine errors to HTTP responses using
// RFC7807. Denials and cycle rejections are expected outcomes; unknown
// role/capability/company indicate data-integrity faults and surface as 500
// so they are never silently treated as permissive.
func RespondError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrDuplicate):
		Problem(w, http.StatusConflict, "Duplicate", err.Error())
	case errors.Is(err, authz.ErrCycleDetected):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, authz.ErrInsufficientRole), errors.Is(err, ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", "insufficient permissions")
	case errors.Is(err, ErrUnauthorized):
		Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
	default:
		// Includes authz.ErrUnknownRole / ErrUnknownCapability / ErrUnknownCompany.
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
