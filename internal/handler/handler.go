// Package handler provides HTTP request handlers.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/requestping/requestping/internal/handler/dto"
)

// Version is reported by the index endpoint.
const Version = "1.0.0"

// Handler serves the unauthenticated fallback routes.
type Handler struct{}

// New creates a new Handler instance.
func New() *Handler {
	return &Handler{}
}

// Index identifies the service.
// GET /
func (h *Handler) Index(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "requestping",
		"version": Version,
	})
}

// NotFound handles 404 responses.
func (h *Handler) NotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotFound, "NOT_FOUND", "Resource not found")
}

// MethodNotAllowed handles 405 responses.
func (h *Handler) MethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusMethodNotAllowed, "METHOD_NOT_ALLOWED", "Method not allowed")
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, dto.ErrorResponse{Error: message, Code: code})
}
