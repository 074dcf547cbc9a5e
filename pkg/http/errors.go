package http

import (
	"encoding/json"
	"net/http"
	"strconv"
)

// ErrorResponse represents a standard API error response
type ErrorResponse struct {
	Error       string `json:"error"`                  // Machine-readable error code
	Message     string `json:"message"`                // Human-readable message
	RetryAfter  int    `json:"retry_after,omitempty"`  // Seconds until retry is worthwhile
	LockedUntil string `json:"locked_until,omitempty"` // RFC3339 lockout expiry
}

// WriteError writes a JSON error response with the given status code
func WriteError(w http.ResponseWriter, statusCode int, errorCode, message string) {
	writeJSON(w, statusCode, ErrorResponse{Error: errorCode, Message: message})
}

func writeJSON(w http.ResponseWriter, statusCode int, resp ErrorResponse) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	// Log encoding errors but don't expose them to client
	_ = json.NewEncoder(w).Encode(resp)
}

// Common error writers for consistency
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, "bad_request", message)
}

func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, "unauthorized", message)
}

func WriteForbidden(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusForbidden, "forbidden", message)
}

func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, "not_found", message)
}

func WriteConflict(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, "conflict", message)
}

func WriteGone(w http.ResponseWriter, errorCode, message string) {
	WriteError(w, http.StatusGone, errorCode, message)
}

// WriteAccountLocked writes a 423 Locked response with the lockout expiry
func WriteAccountLocked(w http.ResponseWriter, lockedUntil string) {
	writeJSON(w, http.StatusLocked, ErrorResponse{
		Error:       "account_locked",
		Message:     "Account is temporarily locked",
		LockedUntil: lockedUntil,
	})
}

// WriteRateLimited writes a 429 response with a Retry-After header
func WriteRateLimited(w http.ResponseWriter, retryAfterSeconds int) {
	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSeconds))
	writeJSON(w, http.StatusTooManyRequests, ErrorResponse{
		Error:      "rate_limited",
		Message:    "Too many requests. Please try again later.",
		RetryAfter: retryAfterSeconds,
	})
}

func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, "internal_error", message)
}
