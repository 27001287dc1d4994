package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/requestping/requestping/internal/auth"
	"github.com/requestping/requestping/internal/handler/dto"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/quota"
	"github.com/requestping/requestping/internal/service"
	"github.com/requestping/requestping/internal/submission"
)

// RequestAPI is the request workflow the handlers drive.
type RequestAPI interface {
	CreateRequest(ctx context.Context, in service.CreateRequestInput) (*service.CreateRequestResult, error)
	Resubmit(ctx context.Context, userID, requestID string) (*model.Request, submission.Result, error)
	GetRequest(ctx context.Context, userID, requestID string) (*service.RequestDetail, error)
	ListRequests(ctx context.Context, userID, cursor string, limit int) ([]*model.Request, string, error)
	ListRecordTypes(ctx context.Context) []model.RecordTypeOption
	Offices(ctx context.Context) []model.Office
	Quota(ctx context.Context, userID string) (quota.Decision, error)
}

// RequestHandler handles HTTP requests for FOIA request operations.
type RequestHandler struct {
	svc    RequestAPI
	logger *slog.Logger
}

// NewRequestHandler creates a new RequestHandler.
func NewRequestHandler(svc RequestAPI, logger *slog.Logger) *RequestHandler {
	return &RequestHandler{
		svc:    svc,
		logger: logger.With("component", "request_handler"),
	}
}

// Create handles POST /api/v1/requests.
//
// A request that was stored but could not be delivered still answers 201;
// the warning field carries the delivery problem.
func (h *RequestHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	var body dto.CreateRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_JSON", "Invalid request body")
		return
	}

	result, err := h.svc.CreateRequest(r.Context(), service.CreateRequestInput{
		UserID:          userID,
		RecordType:      body.RecordType,
		Agency:          body.Agency,
		Subject:         body.Subject,
		Description:     body.Description,
		RecordTitle:     body.RecordTitle,
		RecordAuthor:    body.RecordAuthor,
		RecordRecipient: body.RecordRecipient,
		DateRangeStart:  body.DateRangeStart,
		DateRangeEnd:    body.DateRangeEnd,
		DeliveryFormat:  body.DeliveryFormat,
		FeeWaiver:       body.FeeWaiver,
		WaiverReason:    body.WaiverReason,
		RequesterPhone:  body.RequesterPhone,
		RequesterEmail:  body.RequesterEmail,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, submissionResponse(result.Request, result.Submission, "Request created"))
}

// List handles GET /api/v1/requests.
func (h *RequestHandler) List(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "VALIDATION_FAILED", "limit must be a positive integer")
			return
		}
		limit = n
	}

	requests, next, err := h.svc.ListRequests(r.Context(), userID, r.URL.Query().Get("cursor"), limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.RequestListResponse{Requests: requests, NextCursor: next})
}

// Get handles GET /api/v1/requests/{id}.
func (h *RequestHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	detail, err := h.svc.GetRequest(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, detail)
}

// Submit handles POST /api/v1/requests/{id}/submit.
func (h *RequestHandler) Submit(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	req, result, err := h.svc.Resubmit(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, submissionResponse(req, result, "Submission attempted"))
}

// Quota handles GET /api/v1/quota.
func (h *RequestHandler) Quota(w http.ResponseWriter, r *http.Request) {
	userID := auth.UserIDFromContext(r.Context())
	if userID == "" {
		writeError(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authentication required")
		return
	}

	d, err := h.svc.Quota(r.Context(), userID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, dto.QuotaResponse{
		Limit:     d.Limit,
		Used:      d.Used,
		Remaining: d.Remaining(),
		Allowed:   d.Allowed,
	})
}

// RecordTypes handles GET /api/v1/record-types.
func (h *RequestHandler) RecordTypes(w http.ResponseWriter, r *http.Request) {
	options := h.svc.ListRecordTypes(r.Context())
	if options == nil {
		options = []model.RecordTypeOption{}
	}
	writeJSON(w, http.StatusOK, dto.RecordTypesResponse{RecordTypes: options})
}

// Offices handles GET /api/v1/offices.
func (h *RequestHandler) Offices(w http.ResponseWriter, r *http.Request) {
	offices := h.svc.Offices(r.Context())
	out := make([]dto.OfficeResponse, 0, len(offices))
	for _, o := range offices {
		out = append(out, dto.ToOfficeResponse(o))
	}
	writeJSON(w, http.StatusOK, dto.OfficeListResponse{Offices: out})
}

func submissionResponse(req *model.Request, result submission.Result, action string) dto.SubmissionResponse {
	resp := dto.SubmissionResponse{
		ID:     req.ID,
		Status: req.Status,
		Office: dto.OfficeRef{Code: req.OfficeCode, Name: req.OfficeName},
	}
	if result.OK() {
		resp.Message = action + " and submitted to " + req.OfficeName
		return resp
	}
	resp.Message = action + "; delivery did not complete"
	if result.Warning != submission.WarningNone {
		resp.Warning = &dto.Warning{Code: string(result.Warning), Detail: result.Detail}
	}
	return resp
}
