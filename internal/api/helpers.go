package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "review-workers/internal/common/errors"
	"review-workers/internal/common/logger"
)

// ---------------------------------------------------------------------------
// Request helpers
// ---------------------------------------------------------------------------

// readJSON decodes a JSON request body with a size limit.
func readJSON[T any](w http.ResponseWriter, r *http.Request, bodyLimit int64) (T, bool) {
	var v T
	r.Body = http.MaxBytesReader(w, r.Body, bodyLimit)
	if err := json.NewDecoder(r.Body).Decode(&v); err != nil {
		if err.Error() == "http: request body too large" {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		} else {
			writeError(w, http.StatusBadRequest, "invalid request body")
		}
		return v, false
	}
	return v, true
}

func urlParam(r *http.Request, name string) string {
	return chi.URLParam(r, name)
}

// requireField writes a 400 error and returns false when value is empty.
func requireField(w http.ResponseWriter, value, fieldName string) bool {
	if value == "" {
		writeError(w, http.StatusBadRequest, fieldName+" is required")
		return false
	}
	return true
}

// ---------------------------------------------------------------------------
// Response helpers
// ---------------------------------------------------------------------------

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// writeAppError maps a pipeline error onto its HTTP status. Server-side
// failures are logged and answered with a generic message.
func writeAppError(w http.ResponseWriter, err error, log logger.Logger) {
	status := apperrors.HTTPStatus(err)
	stdErr := apperrors.Normalize(err)

	if status >= http.StatusInternalServerError {
		log.Error("request failed", map[string]interface{}{"error": err, "code": string(stdErr.Code)})
		if status == http.StatusInternalServerError {
			writeJSON(w, status, errorResponse{Error: "internal server error", Code: string(stdErr.Code)})
			return
		}
	}

	msg := stdErr.Message
	if stdErr.Details != "" {
		msg += ": " + stdErr.Details
	}
	writeJSON(w, status, errorResponse{Error: msg, Code: string(stdErr.Code)})
}
