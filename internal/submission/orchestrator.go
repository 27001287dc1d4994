// Package submission delivers FOIA request letters and reconciles request
// status and activity with the delivery outcome.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/requestping/requestping/internal/letter"
	"github.com/requestping/requestping/internal/mail"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/registry"
)

var (
	// ErrAlreadySubmitted is returned when Submit is called on a submitted request.
	ErrAlreadySubmitted = errors.New("request already submitted")
	// ErrSubmitInProgress is returned when another attempt holds the send lock.
	ErrSubmitInProgress = errors.New("submission already in progress")
)

// DefaultLockTTL bounds the send lock when no send timeout is configured.
const DefaultLockTTL = 2 * time.Minute

// lockSlack is added to the send timeout so the lock outlives the send.
const lockSlack = 30 * time.Second

// Status is the coarse result of a submission attempt.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Warning classifies a failed attempt for the caller.
type Warning string

const (
	WarningNone                Warning = ""
	WarningDeliveryUnavailable Warning = "delivery_unavailable"
	WarningTransportFailure    Warning = "transport_failure"
)

// Result describes one submission attempt.
type Result struct {
	Status        Status
	Detail        string
	Warning       Warning
	Office        model.Office
	MessageID     string
	RequestStatus model.RequestStatus
	// SubmittedAt is the stored submission time, set once the request is
	// recorded as submitted.
	SubmittedAt *time.Time
}

// OK reports whether the letter was delivered.
func (r Result) OK() bool {
	return r.Status == StatusSuccess
}

// Store is the persistence the orchestrator needs.
type Store interface {
	// GetRequestStatus reads the current stored status.
	GetRequestStatus(ctx context.Context, requestID string) (model.RequestStatus, error)
	// UpdateRequestStatus applies a forward transition and its activity entry
	// atomically, counting it as one submission attempt.
	UpdateRequestStatus(ctx context.Context, change model.StatusChange) error
	// RecordSubmitAttempt counts an attempt that did not change status.
	RecordSubmitAttempt(ctx context.Context, requestID, lastError string, nextAttemptAt *time.Time) error
}

// Locker serializes attempts on one request across processes. Acquire
// returns a token that Release must present, so an expired holder cannot
// drop a lock taken after it.
type Locker interface {
	AcquireSubmitLock(ctx context.Context, requestID string, ttl time.Duration) (token string, ok bool, err error)
	ReleaseSubmitLock(ctx context.Context, requestID, token string) error
}

// Orchestrator runs a single submission attempt. It never retries; the
// resubmission Worker re-invokes it on a schedule.
type Orchestrator struct {
	registry    registry.Registry
	composer    *letter.Composer
	transport   mail.Transport
	store       Store
	locker      Locker
	lockTTL     time.Duration
	logger      *slog.Logger
	metrics     metrics.Recorder
	maxAttempts int
	now         func() time.Time
}

// NewOrchestrator creates an orchestrator.
func NewOrchestrator(reg registry.Registry, composer *letter.Composer, transport mail.Transport, store Store, logger *slog.Logger, recorder metrics.Recorder) *Orchestrator {
	if recorder == nil {
		recorder = metrics.NewNoop()
	}
	return &Orchestrator{
		registry:    reg,
		composer:    composer,
		transport:   transport,
		store:       store,
		logger:      logger.With("component", "submission"),
		metrics:     recorder,
		maxAttempts: DefaultMaxAttempts,
		lockTTL:     DefaultLockTTL,
		now:         time.Now,
	}
}

// SetMaxAttempts overrides how many attempts are scheduled before a request
// is left for manual resubmission.
func (o *Orchestrator) SetMaxAttempts(n int) {
	if n > 0 {
		o.maxAttempts = n
	}
}

// SetLocker enables the cross-process send lock. The lock is held for
// sendTimeout plus a margin, and never less than DefaultLockTTL.
func (o *Orchestrator) SetLocker(l Locker, sendTimeout time.Duration) {
	o.locker = l
	o.lockTTL = LockTTL(sendTimeout)
}

// LockTTL returns how long the send lock is held for a given send timeout.
func LockTTL(sendTimeout time.Duration) time.Duration {
	if ttl := sendTimeout + lockSlack; ttl > DefaultLockTTL {
		return ttl
	}
	return DefaultLockTTL
}

// Submit composes the letter for req and attempts delivery once.
//
// Delivery problems are reported in the Result, not as errors: an office
// without an address leaves the request pending, a transport error moves it
// to failed. The returned error is non-nil only when the outcome could not
// be persisted or the request is already submitted.
func (o *Orchestrator) Submit(ctx context.Context, req *model.Request) (Result, error) {
	if req.IsSubmitted() {
		return Result{Status: StatusFailure, RequestStatus: req.Status}, ErrAlreadySubmitted
	}

	if o.locker != nil {
		token, ok, err := o.locker.AcquireSubmitLock(ctx, req.ID, o.lockTTL)
		if err != nil {
			// Redis down: the DB status guard still blocks regressions.
			o.logger.Warn("submit lock unavailable", "request_id", req.ID, "error", err)
		} else if !ok {
			return Result{Status: StatusFailure, RequestStatus: req.Status}, ErrSubmitInProgress
		} else {
			defer func() {
				if err := o.locker.ReleaseSubmitLock(context.WithoutCancel(ctx), req.ID, token); err != nil {
					o.logger.Warn("release submit lock", "request_id", req.ID, "error", err)
				}
			}()
		}
	}

	// The caller's copy may predate another attempt that finished while
	// we waited for the lock.
	current, err := o.store.GetRequestStatus(ctx, req.ID)
	if err != nil {
		return Result{Status: StatusFailure, RequestStatus: req.Status}, fmt.Errorf("reload status: %w", err)
	}
	req.Status = current
	if req.IsSubmitted() {
		return Result{Status: StatusFailure, RequestStatus: req.Status}, ErrAlreadySubmitted
	}

	office := o.resolveOffice(ctx, req)
	nextAttempt := o.nextAttemptAt(req.SubmitAttempts)

	if !office.Deliverable() {
		detail := fmt.Sprintf("no deliverable address for office %s", office.Code)
		o.logger.Warn("request not deliverable",
			"request_id", req.ID,
			"office", office.Code,
		)
		o.metrics.IncSubmission(metrics.OutcomeUndeliverable)

		result := Result{
			Status:        StatusFailure,
			Detail:        detail,
			Warning:       WarningDeliveryUnavailable,
			Office:        office,
			RequestStatus: req.Status,
		}
		if err := o.store.RecordSubmitAttempt(ctx, req.ID, detail, nextAttempt); err != nil {
			return result, fmt.Errorf("record attempt: %w", err)
		}
		return result, nil
	}

	msg := mail.Message{
		From:    o.composer.Sender(),
		To:      office.Email,
		Subject: letter.Subject(req.Subject),
		Body:    o.composer.Compose(letter.FieldsFromRequest(req), office),
	}

	start := time.Now()
	messageID, sendErr := o.transport.Send(ctx, msg)
	duration := time.Since(start)
	o.metrics.ObserveSendDuration(duration)

	if sendErr != nil {
		return o.recordFailure(ctx, req, office, sendErr, nextAttempt)
	}

	now := o.now()
	change := model.StatusChange{
		RequestID: req.ID,
		Status:    model.RequestStatusSubmitted,
		At:        now,
		Activity: model.Activity{
			ID:          ulid.Make().String(),
			RequestID:   req.ID,
			Type:        model.ActivityRequestSubmitted,
			Description: "Request submitted to " + office.Name,
			CreatedAt:   now,
		},
	}

	o.logger.Info("request submitted",
		"request_id", req.ID,
		"office", office.Code,
		"message_id", messageID,
		"duration_ms", duration.Milliseconds(),
	)
	o.metrics.IncSubmission(metrics.OutcomeSubmitted)

	result := Result{
		Status:        StatusSuccess,
		Detail:        change.Activity.Description,
		Office:        office,
		MessageID:     messageID,
		RequestStatus: model.RequestStatusSubmitted,
		SubmittedAt:   &now,
	}
	if err := o.store.UpdateRequestStatus(ctx, change); err != nil {
		return o.recordUnconfirmed(ctx, req, result, err)
	}
	return result, nil
}

// recordUnconfirmed handles a letter that went out but whose submitted
// status could not be stored. The request keeps its stored status and is
// not rescheduled, since another attempt would send a duplicate; last_error
// tells an operator what happened.
func (o *Orchestrator) recordUnconfirmed(ctx context.Context, req *model.Request, result Result, updateErr error) (Result, error) {
	result.RequestStatus = req.Status
	result.SubmittedAt = nil
	result.Detail = fmt.Sprintf("Letter sent to %s (message %s) but the submitted status was not recorded: %v",
		result.Office.Name, result.MessageID, updateErr)

	o.logger.Error("submitted status not recorded",
		"request_id", req.ID,
		"message_id", result.MessageID,
		"error", updateErr,
	)
	if err := o.store.RecordSubmitAttempt(ctx, req.ID, result.Detail, nil); err != nil {
		o.logger.Error("record unconfirmed attempt", "request_id", req.ID, "error", err)
	}
	return result, fmt.Errorf("mark submitted: %w", updateErr)
}

func (o *Orchestrator) recordFailure(ctx context.Context, req *model.Request, office model.Office, sendErr error, nextAttempt *time.Time) (Result, error) {
	detail := fmt.Sprintf("Delivery to %s failed: %v", office.Name, sendErr)
	now := o.now()

	o.logger.Warn("request delivery failed",
		"request_id", req.ID,
		"office", office.Code,
		"attempt", req.SubmitAttempts+1,
		"error", sendErr,
	)
	o.metrics.IncSubmission(metrics.OutcomeFailed)

	change := model.StatusChange{
		RequestID: req.ID,
		Status:    model.RequestStatusFailed,
		At:        now,
		Activity: model.Activity{
			ID:          ulid.Make().String(),
			RequestID:   req.ID,
			Type:        model.ActivityRequestFailed,
			Description: detail,
			CreatedAt:   now,
		},
		LastError:     detail,
		NextAttemptAt: nextAttempt,
	}

	result := Result{
		Status:        StatusFailure,
		Detail:        detail,
		Warning:       WarningTransportFailure,
		Office:        office,
		RequestStatus: model.RequestStatusFailed,
	}
	if err := o.store.UpdateRequestStatus(ctx, change); err != nil {
		result.RequestStatus = req.Status
		return result, fmt.Errorf("mark failed: %w", err)
	}
	return result, nil
}

// resolveOffice returns the office fixed at creation. Requests stored
// without one are classified now.
func (o *Orchestrator) resolveOffice(ctx context.Context, req *model.Request) model.Office {
	if req.OfficeCode == "" {
		return o.registry.Classify(ctx, req.RecordType)
	}
	if stored, ok := o.registry.Lookup(ctx, req.OfficeCode); ok {
		return stored
	}
	return model.Office{Code: req.OfficeCode, Name: req.OfficeName}
}

// nextAttemptAt schedules the sweeper, or returns nil once attempts are used up.
func (o *Orchestrator) nextAttemptAt(previousAttempts int) *time.Time {
	if IsExhausted(previousAttempts+1, o.maxAttempts) {
		return nil
	}
	t := o.now().Add(NextRetryDelay(previousAttempts))
	return &t
}
