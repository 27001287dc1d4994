package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"

	"github.com/oklog/ulid/v2"

	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/quota"
	"github.com/requestping/requestping/internal/registry"
	"github.com/requestping/requestping/internal/repository"
	"github.com/requestping/requestping/internal/submission"
)

// Input limits.
const (
	MaxSubjectLength     = 200
	MaxDescriptionLength = 20000
	MaxFieldLength       = 500

	defaultPageSize = 20
	maxPageSize     = 100
)

// Store is the persistence the request workflow needs.
type Store interface {
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	CountRequestsThisMonth(ctx context.Context, userID string) (int, error)
	CreateRequestWithQuota(ctx context.Context, req *model.Request, activity *model.Activity, check repository.QuotaCheck) error
	GetRequestForOwner(ctx context.Context, id, ownerID string) (*model.Request, error)
	ListRequestsByOwner(ctx context.Context, ownerID, cursor string, limit int) ([]*model.Request, string, error)
	ListActivity(ctx context.Context, requestID string) ([]*model.Activity, error)
	ListDocuments(ctx context.Context, requestID string) ([]*model.Document, error)
}

// Submitter makes one delivery attempt.
type Submitter interface {
	Submit(ctx context.Context, req *model.Request) (submission.Result, error)
}

// CreateRequestInput is a new FOIA request as entered by the requester.
type CreateRequestInput struct {
	UserID string

	RecordType string
	// Agency is the directory agency code sent by older clients in place of
	// RecordType.
	Agency string

	Subject         string
	Description     string
	RecordTitle     string
	RecordAuthor    string
	RecordRecipient string
	DateRangeStart  string
	DateRangeEnd    string
	DeliveryFormat  string
	FeeWaiver       bool
	WaiverReason    string
	RequesterPhone  string
	RequesterEmail  string
}

// CreateRequestResult is a persisted request and what happened when the
// letter was sent.
type CreateRequestResult struct {
	Request    *model.Request
	Submission submission.Result
}

// RequestDetail is a request with its attachments and history.
type RequestDetail struct {
	Request   *model.Request     `json:"request"`
	Documents []*model.Document `json:"documents"`
	Activity  []*model.Activity `json:"activity"`
}

// RequestService runs the request workflow.
type RequestService struct {
	store     Store
	registry  registry.Registry
	submitter Submitter
	quota     *quota.Gate
	logger    *slog.Logger
	metrics   metrics.Recorder
}

// NewRequestService creates a RequestService.
func NewRequestService(store Store, reg registry.Registry, submitter Submitter, logger *slog.Logger, recorder metrics.Recorder) *RequestService {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &RequestService{
		store:     store,
		registry:  reg,
		submitter: submitter,
		quota:     quota.NewGate(store),
		logger:    logger.With("component", "requests"),
		metrics:   recorder,
	}
}

// CreateRequest validates input, enforces the monthly quota, routes the
// request to an office, stores it as pending with a request_created entry,
// and then attempts delivery once.
//
// Only validation, quota, and storage failures are returned as errors. A
// delivery problem is reported in the result's Submission; the request
// exists regardless.
func (s *RequestService) CreateRequest(ctx context.Context, in CreateRequestInput) (*CreateRequestResult, error) {
	in = normalizeInput(in)
	if err := validateCreate(in); err != nil {
		return nil, err
	}

	user, err := s.store.GetUserByID(ctx, in.UserID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("lookup user: %w", err)
	}

	recordType := in.RecordType
	if recordType == "" {
		recordType = strings.ToLower(in.Agency)
	}
	office := s.registry.Classify(ctx, recordType)

	req := &model.Request{
		ID:              ulid.Make().String(),
		UserID:          user.ID,
		RecordType:      recordType,
		OfficeCode:      office.Code,
		OfficeName:      office.Name,
		Subject:         in.Subject,
		Description:     in.Description,
		RecordTitle:     in.RecordTitle,
		RecordAuthor:    in.RecordAuthor,
		RecordRecipient: in.RecordRecipient,
		DateRangeStart:  in.DateRangeStart,
		DateRangeEnd:    in.DateRangeEnd,
		DeliveryFormat:  model.ParseDeliveryFormat(in.DeliveryFormat),
		FeeWaiver:       in.FeeWaiver,
		WaiverReason:    in.WaiverReason,
		RequesterPhone:  in.RequesterPhone,
		RequesterEmail:  in.RequesterEmail,
		Status:          model.RequestStatusPending,
	}
	if req.RequesterEmail == "" {
		req.RequesterEmail = user.Email
	}
	if !req.FeeWaiver {
		req.WaiverReason = ""
	}

	created := &model.Activity{
		ID:          ulid.Make().String(),
		RequestID:   req.ID,
		Type:        model.ActivityRequestCreated,
		Description: "FOIA request created",
	}

	var decision quota.Decision
	err = s.store.CreateRequestWithQuota(ctx, req, created, func(used int) error {
		decision = quota.Evaluate(user, used)
		return decision.Err()
	})
	if err != nil {
		if errors.Is(err, quota.ErrQuotaExceeded) {
			s.metrics.IncQuotaDenied()
			s.logger.Info("quota exceeded",
				"user_id", user.ID,
				"used", decision.Used,
				"limit", decision.Limit,
			)
			return nil, err
		}
		return nil, fmt.Errorf("create request: %w", err)
	}

	s.metrics.IncRequestCreated(office.Code)
	s.logger.Info("request created",
		"request_id", req.ID,
		"user_id", user.ID,
		"record_type", recordType,
		"office", office.Code,
		"remaining", decision.Remaining()-1,
	)

	result := &CreateRequestResult{Request: req}
	result.Submission = s.submit(ctx, req)
	return result, nil
}

// Resubmit attempts delivery again for a request that is not yet submitted.
func (s *RequestService) Resubmit(ctx context.Context, userID, requestID string) (*model.Request, submission.Result, error) {
	req, err := s.store.GetRequestForOwner(ctx, requestID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, submission.Result{}, ErrRequestNotFound
		}
		return nil, submission.Result{}, fmt.Errorf("get request: %w", err)
	}
	if req.IsSubmitted() {
		return req, submission.Result{}, ErrAlreadySubmitted
	}

	result, err := s.submitter.Submit(context.WithoutCancel(ctx), req)
	if err != nil && (errors.Is(err, submission.ErrAlreadySubmitted) || errors.Is(err, submission.ErrSubmitInProgress)) {
		return req, result, err
	}
	if err != nil {
		s.logger.Error("record resubmission outcome failed", "request_id", req.ID, "error", err)
	}
	applyResult(req, result)
	return req, result, nil
}

// submit runs the attached delivery attempt. The caller's cancellation does
// not abort a send that has started; the transport applies its own timeout.
func (s *RequestService) submit(ctx context.Context, req *model.Request) submission.Result {
	result, err := s.submitter.Submit(context.WithoutCancel(ctx), req)
	if err != nil {
		s.logger.Error("record submission outcome failed",
			"request_id", req.ID,
			"error", err,
		)
	}
	applyResult(req, result)
	return result
}

// applyResult mirrors the persisted outcome onto the in-memory request so
// the response matches the stored row.
func applyResult(req *model.Request, result submission.Result) {
	if result.RequestStatus != "" {
		req.Status = result.RequestStatus
	}
	if req.Status == model.RequestStatusSubmitted && result.SubmittedAt != nil {
		at := result.SubmittedAt.UTC()
		req.SubmittedAt = &at
		req.LastError = ""
	} else if result.Detail != "" {
		req.LastError = result.Detail
	}
}

// GetRequest returns a caller-owned request with documents and activity,
// newest activity first.
func (s *RequestService) GetRequest(ctx context.Context, userID, requestID string) (*RequestDetail, error) {
	req, err := s.store.GetRequestForOwner(ctx, requestID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrRequestNotFound) {
			return nil, ErrRequestNotFound
		}
		return nil, fmt.Errorf("get request: %w", err)
	}

	docs, err := s.store.ListDocuments(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	activity, err := s.store.ListActivity(ctx, req.ID)
	if err != nil {
		return nil, fmt.Errorf("list activity: %w", err)
	}
	req.DocumentsCount = len(docs)

	if docs == nil {
		docs = []*model.Document{}
	}
	if activity == nil {
		activity = []*model.Activity{}
	}
	return &RequestDetail{Request: req, Documents: docs, Activity: activity}, nil
}

// ListRequests returns a page of the caller's requests, newest first.
func (s *RequestService) ListRequests(ctx context.Context, userID, cursor string, limit int) ([]*model.Request, string, error) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	requests, next, err := s.store.ListRequestsByOwner(ctx, userID, cursor, limit)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidCursor) {
			return nil, "", ErrInvalidCursor
		}
		return nil, "", fmt.Errorf("list requests: %w", err)
	}
	if requests == nil {
		requests = []*model.Request{}
	}
	return requests, next, nil
}

// Quota reports the caller's usage against their monthly limit. The figure
// is advisory; CreateRequest re-evaluates it under the store's lock.
func (s *RequestService) Quota(ctx context.Context, userID string) (quota.Decision, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return quota.Decision{}, ErrUserNotFound
		}
		return quota.Decision{}, fmt.Errorf("lookup user: %w", err)
	}
	return s.quota.Check(ctx, user)
}

// ListRecordTypes returns the client-facing record type choices.
func (s *RequestService) ListRecordTypes(ctx context.Context) []model.RecordTypeOption {
	return s.registry.ListRecordTypes(ctx)
}

// Offices returns the offices requests can be routed to.
func (s *RequestService) Offices(ctx context.Context) []model.Office {
	return s.registry.Offices(ctx)
}

func normalizeInput(in CreateRequestInput) CreateRequestInput {
	trim := strings.TrimSpace
	in.RecordType = trim(in.RecordType)
	in.Agency = trim(in.Agency)
	in.Subject = trim(in.Subject)
	in.Description = trim(in.Description)
	in.RecordTitle = trim(in.RecordTitle)
	in.RecordAuthor = trim(in.RecordAuthor)
	in.RecordRecipient = trim(in.RecordRecipient)
	in.DateRangeStart = trim(in.DateRangeStart)
	in.DateRangeEnd = trim(in.DateRangeEnd)
	in.WaiverReason = trim(in.WaiverReason)
	in.RequesterPhone = trim(in.RequesterPhone)
	in.RequesterEmail = trim(in.RequesterEmail)
	return in
}

// validateCreate checks required fields and sizes. Nothing is persisted
// when it fails.
func validateCreate(in CreateRequestInput) error {
	v := &ValidationError{}

	if in.UserID == "" {
		v.add("user_id", "is required")
	}
	if in.Subject == "" {
		v.add("subject", "is required")
	} else if len(in.Subject) > MaxSubjectLength {
		v.add("subject", fmt.Sprintf("must be at most %d characters", MaxSubjectLength))
	}
	if in.Description == "" {
		v.add("description", "is required")
	} else if len(in.Description) > MaxDescriptionLength {
		v.add("description", fmt.Sprintf("must be at most %d characters", MaxDescriptionLength))
	}
	if in.RecordType == "" && in.Agency == "" {
		v.add("record_type", "is required")
	}

	bounded := []struct{ field, value string }{
		{"record_type", in.RecordType},
		{"agency", in.Agency},
		{"record_title", in.RecordTitle},
		{"record_author", in.RecordAuthor},
		{"record_recipient", in.RecordRecipient},
		{"date_range_start", in.DateRangeStart},
		{"date_range_end", in.DateRangeEnd},
		{"requester_phone", in.RequesterPhone},
	}
	for _, b := range bounded {
		if len(b.value) > MaxFieldLength {
			v.add(b.field, fmt.Sprintf("must be at most %d characters", MaxFieldLength))
		}
	}

	if in.RequesterEmail != "" {
		if _, err := mail.ParseAddress(in.RequesterEmail); err != nil {
			v.add("requester_email", "is not a valid email address")
		}
	}
	return v.orNil()
}
