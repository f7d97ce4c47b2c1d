// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound      = errors.New("resource not found")
	ErrConflict      = errors.New("conflict")
	ErrValidation    = errors.New("validation failed")
	ErrUnprocessable = errors.New("unprocessable entity")
)

// Mapper translates domain errors the generic sentinels do not know about.
// ok=false passes the error to the next mapper.
type Mapper func(err error) (status int, title string, ok bool)

// RespondError maps errors to HTTP responses using RFC7807. Mappers run
// before the generic sentinels.
func RespondError(w http.ResponseWriter, err error, mappers ...Mapper) {
	for _, m := range mappers {
		if status, title, ok := m(err); ok {
			detail := err.Error()
			if status >= http.StatusInternalServerError {
				detail = ""
			}
			Problem(w, status, title, detail)
			return
		}
	}
	switch {
	case errors.Is(err, ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrUnprocessable):
		Problem(w, http.StatusUnprocessableEntity, "Unprocessable Entity", err.Error())
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
