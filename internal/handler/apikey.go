package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/handler/dto"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/service"
)

// KeyAPI manages service-account keys.
type KeyAPI interface {
	CreateAPIKey(ctx context.Context, in service.CreateAPIKeyInput) (*model.APIKeyCreateResponse, error)
	ListAPIKeys(ctx context.Context, userID string) ([]model.APIKeyResponse, error)
	RevokeAPIKey(ctx context.Context, userID, keyID string) error
}

// APIKeyHandler handles API key management endpoints.
type APIKeyHandler struct {
	svc    KeyAPI
	logger *slog.Logger
}

// NewAPIKeyHandler creates a new APIKeyHandler.
func NewAPIKeyHandler(svc KeyAPI, logger *slog.Logger) *APIKeyHandler {
	return &APIKeyHandler{
		svc:    svc,
		logger: logger.With("component", "apikey_handler"),
	}
}

// Create handles POST /api/v1/api-keys. The plaintext key appears in this
// response only.
func (h *APIKeyHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var body dto.CreateAPIKeyBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	created, err := h.svc.CreateAPIKey(r.Context(), service.CreateAPIKeyInput{
		UserID: userID,
		Name:   body.Name,
		Scopes: body.Scopes,
		Tier:   body.Tier,
		Env:    body.Env,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, created)
}

// List handles GET /api/v1/api-keys.
func (h *APIKeyHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	keys, err := h.svc.ListAPIKeys(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.APIKeyListResponse{Keys: keys})
}

// Revoke handles DELETE /api/v1/api-keys/{id}. Keys owned by someone else
// answer 404 like missing ones.
func (h *APIKeyHandler) Revoke(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	if err := h.svc.RevokeAPIKey(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
