package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for domain layers.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// Error maps domain errors to failure envelopes.
func (re Responder) Error(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrValidation):
		re.Fail(w, http.StatusBadRequest, err.Error(), nil)
	case errors.Is(err, ErrNotFound):
		re.Fail(w, http.StatusNotFound, err.Error(), nil)
	case errors.Is(err, ErrDuplicate):
		re.Fail(w, http.StatusConflict, err.Error(), nil)
	default:
		re.Fail(w, http.StatusInternalServerError, "internal error", err)
	}
}
