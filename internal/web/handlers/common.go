package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/kozaktomas/face-queue/internal/constants"
	"github.com/kozaktomas/face-queue/internal/queue"
)

// errInvalidRequestBody is a shared error message for invalid JSON request bodies.
const errInvalidRequestBody = "invalid request body"

// errInternal is the message sent for unexpected failures; details go to the log.
const errInternal = "internal server error"

// errWriteFailed is the message sent when a store write fails.
const errWriteFailed = "write failed"

// StoreErrorResponse names the store and key of a failed write so the caller
// can retry. The underlying error is only logged.
type StoreErrorResponse struct {
	Error string `json:"error"`
	Store string `json:"store"`
	ID    string `json:"id"`
}

// sanitizeForLog removes newlines and carriage returns to prevent log injection.
func sanitizeForLog(s string) string {
	return strings.NewReplacer("\n", "", "\r", "").Replace(s)
}

// respondJSON sends a JSON response.
func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// respondError sends an error response.
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}

// respondSessionError maps a session error to its HTTP status. Unexpected
// errors are logged and answered with a generic message.
func respondSessionError(w http.ResponseWriter, r *http.Request, logger *zap.Logger, err error) {
	var (
		notFound *queue.NotFoundError
		merge    *queue.InvalidMergeError
		store    *queue.StoreError
	)
	switch {
	case errors.As(err, &store):
		logger.Error("store write failed",
			zap.String("method", r.Method),
			zap.String("path", sanitizeForLog(r.URL.Path)),
			zap.String("store", string(store.Store)),
			zap.String("id", sanitizeForLog(store.Key)),
			zap.Error(err))
		respondJSON(w, http.StatusInternalServerError, StoreErrorResponse{
			Error: errWriteFailed,
			Store: string(store.Store),
			ID:    store.Key,
		})
	case errors.As(err, &notFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.As(err, &merge):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, queue.ErrInvalidInput):
		respondError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Error("request failed",
			zap.String("method", r.Method),
			zap.String("path", sanitizeForLog(r.URL.Path)),
			zap.Error(err))
		respondError(w, http.StatusInternalServerError, errInternal)
	}
}

// decodeJSON reads a size-limited JSON body into dst. It answers the request
// itself and returns false when the body is unusable.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, constants.MaxRequestBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, errInvalidRequestBody)
		return false
	}
	return true
}

// queryFloat parses an optional float query parameter.
func queryFloat(r *http.Request, name string, def float64) (float64, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return f, nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string, def int) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %q", name, v)
	}
	return n, nil
}

// HealthCheck handles the health check endpoint.
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{
		"status": "ok",
	})
}
