package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/sirupsen/logrus"

	"github.com/erazemk/inventar/internal/model"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			logrus.WithError(err).Warn("encoding response")
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// jsonErrors writes a JSON error response with a list of messages.
func jsonErrors(w http.ResponseWriter, status int, message string, details []string) {
	jsonResponse(w, status, map[string]any{"error": message, "details": details})
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// writeError maps domain errors to HTTP responses. Anything unrecognised is
// logged and reported as a 500 with fallback as the message.
func writeError(w http.ResponseWriter, r *http.Request, err error, fallback string) {
	var verr *model.ValidationError
	var serr *model.StockError
	switch {
	case errors.As(err, &verr):
		jsonErrors(w, http.StatusUnprocessableEntity, "validation failed", verr.Messages)
	case errors.As(err, &serr):
		jsonError(w, http.StatusConflict, serr.Error())
	case errors.Is(err, model.ErrForbidden):
		jsonError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, model.ErrTokenNotFound):
		jsonError(w, http.StatusNotFound, "signing link not found")
	case errors.Is(err, model.ErrTokenExpired):
		jsonError(w, http.StatusGone, "signing link expired")
	case errors.Is(err, model.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, model.ErrNothingToSave):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, model.ErrAlreadySigned):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		requestLogger(r).WithError(err).Error(fallback)
		jsonError(w, http.StatusInternalServerError, fallback)
	}
}

// isDomainError reports whether writeError has a specific mapping for err.
func isDomainError(err error) bool {
	var verr *model.ValidationError
	var serr *model.StockError
	return errors.As(err, &verr) || errors.As(err, &serr) ||
		errors.Is(err, model.ErrForbidden) ||
		errors.Is(err, model.ErrNotFound) ||
		errors.Is(err, model.ErrTokenNotFound) ||
		errors.Is(err, model.ErrTokenExpired) ||
		errors.Is(err, model.ErrNothingToSave) ||
		errors.Is(err, model.ErrAlreadySigned)
}
