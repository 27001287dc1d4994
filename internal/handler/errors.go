package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/requestping/requestping/internal/handler/dto"
	"github.com/requestping/requestping/internal/service"
)

// writeServiceError maps service sentinels to API error responses.
// Anything unrecognised is logged and reported as 500 without detail.
func writeServiceError(w http.ResponseWriter, logger *slog.Logger, err error) {
	var verr *service.ValidationError
	switch {
	case errors.As(err, &verr):
		fields := make([]dto.FieldDetail, 0, len(verr.Fields))
		for _, f := range verr.Fields {
			fields = append(fields, dto.FieldDetail{Field: f.Field, Message: f.Message})
		}
		writeJSON(w, http.StatusBadRequest, dto.ErrorResponse{
			Error:  verr.Error(),
			Code:   "VALIDATION_FAILED",
			Fields: fields,
		})
	case errors.Is(err, service.ErrValidation), errors.Is(err, service.ErrInvalidScope):
		writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", err.Error())
	case errors.Is(err, service.ErrInvalidCursor):
		writeError(w, http.StatusBadRequest, "INVALID_CURSOR", "Invalid pagination cursor")
	case errors.Is(err, service.ErrQuotaExceeded):
		writeError(w, http.StatusForbidden, "QUOTA_EXCEEDED", "Monthly request limit reached")
	case errors.Is(err, service.ErrRequestNotFound):
		writeError(w, http.StatusNotFound, "REQUEST_NOT_FOUND", "Request not found")
	case errors.Is(err, service.ErrAPIKeyNotFound):
		writeError(w, http.StatusNotFound, "KEY_NOT_FOUND", "API key not found or already revoked")
	case errors.Is(err, service.ErrUserNotFound):
		writeError(w, http.StatusNotFound, "USER_NOT_FOUND", "User not found")
	case errors.Is(err, service.ErrAlreadySubmitted):
		writeError(w, http.StatusConflict, "ALREADY_SUBMITTED", "Request has already been submitted")
	case errors.Is(err, service.ErrSubmitInProgress):
		writeError(w, http.StatusConflict, "SUBMIT_IN_PROGRESS", "A submission for this request is already running")
	default:
		logger.Error("unhandled service error", "error", err)
		writeError(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Internal server error")
	}
}
