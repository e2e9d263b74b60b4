package api

import (
	"encoding/json"
	"net/http"

	apperrors "github.com/whale-tracker/internal/errors"
	"github.com/whale-tracker/internal/types"
)

// ErrorResponse represents an API error response.
type ErrorResponse struct {
	Error types.ServiceError `json:"error"`
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, statusCode int, code, message string, details map[string]interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Error: types.ServiceError{
			Code:    code,
			Message: message,
			Details: details,
		},
	}

	json.NewEncoder(w).Encode(response)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// Common error codes
const (
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"
)

// respondServiceError maps a categorized error to its status and body.
// Internal details are logged, never returned.
func (s *Server) respondServiceError(w http.ResponseWriter, err error) {
	catErr := apperrors.Categorize(err)
	status := catErr.StatusCode

	if status >= http.StatusInternalServerError {
		s.logger.WithError(err).Error("Request failed")
		respondError(w, status, catErr.Code, "An internal error occurred", nil)
		return
	}
	respondError(w, status, catErr.Code, catErr.Message, catErr.Details)
}
