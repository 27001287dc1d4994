package submission

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestping/requestping/internal/letter"
	"github.com/requestping/requestping/internal/mail"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/registry"
)

type attempt struct {
	requestID     string
	lastError     string
	nextAttemptAt *time.Time
}

type fakeStore struct {
	mu        sync.Mutex
	statuses  map[string]model.RequestStatus
	changes   []model.StatusChange
	attempts  []attempt
	err       error
	updateErr error
}

func (f *fakeStore) GetRequestStatus(ctx context.Context, requestID string) (model.RequestStatus, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.statuses[requestID]; ok {
		return s, nil
	}
	return model.RequestStatusPending, nil
}

func (f *fakeStore) UpdateRequestStatus(ctx context.Context, change model.StatusChange) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	if f.updateErr != nil {
		return f.updateErr
	}
	if f.statuses == nil {
		f.statuses = map[string]model.RequestStatus{}
	}
	if s, ok := f.statuses[change.RequestID]; ok && !s.CanAdvanceTo(change.Status) {
		return errors.New("request status cannot move backwards")
	}
	f.statuses[change.RequestID] = change.Status
	f.changes = append(f.changes, change)
	return nil
}

func (f *fakeStore) RecordSubmitAttempt(ctx context.Context, requestID, lastError string, nextAttemptAt *time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.attempts = append(f.attempts, attempt{requestID, lastError, nextAttemptAt})
	return nil
}

type fakeTransport struct {
	mu   sync.Mutex
	sent []mail.Message
	err  error
}

func (f *fakeTransport) Send(ctx context.Context, msg mail.Message) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.sent = append(f.sent, msg)
	return "msg_123", nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

var mailless = model.Office{
	Code:        "ARCHIVE",
	Name:        "Records Archive",
	RecordTypes: []string{"microfilm"},
}

func newTestOrchestrator(transport mail.Transport, store Store) *Orchestrator {
	offices := append([]model.Office{mailless}, registry.VAOffices...)
	reg := registry.NewStatic(offices, registry.GeneralOffice, discardLogger(), nil)
	return NewOrchestrator(reg, letter.NewComposer("requests@requestping.example"), transport, store, discardLogger(), nil)
}

func pendingRequest(recordType string) *model.Request {
	return &model.Request{
		ID:             "01HREQ",
		UserID:         "u1",
		RecordType:     recordType,
		Subject:        "Grandfather's interment record",
		Description:    "Interment record for John Doe.",
		DeliveryFormat: model.DeliveryPaper,
		Status:         model.RequestStatusPending,
	}
}

func TestSubmit_Success(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeStore{}
	o := newTestOrchestrator(transport, store)

	result, err := o.Submit(context.Background(), pendingRequest("burial_records"))
	require.NoError(t, err)

	assert.True(t, result.OK())
	assert.Equal(t, WarningNone, result.Warning)
	assert.Equal(t, registry.CodeNCA, result.Office.Code)
	assert.Equal(t, "msg_123", result.MessageID)
	assert.Equal(t, model.RequestStatusSubmitted, result.RequestStatus)

	require.Len(t, transport.sent, 1)
	msg := transport.sent[0]
	assert.Equal(t, "requests@requestping.example", msg.From)
	assert.Equal(t, "cemncafoia@va.gov", msg.To)
	assert.Equal(t, "FOIA Request: Grandfather's interment record", msg.Subject)
	assert.Contains(t, msg.Body, "provided in paper format.")

	require.Len(t, store.changes, 1)
	change := store.changes[0]
	assert.Equal(t, model.RequestStatusSubmitted, change.Status)
	require.NotNil(t, result.SubmittedAt)
	assert.True(t, result.SubmittedAt.Equal(change.At))
	assert.Equal(t, model.ActivityRequestSubmitted, change.Activity.Type)
	assert.Equal(t, "Request submitted to National Cemetery Administration", change.Activity.Description)
	assert.Nil(t, change.NextAttemptAt)
	assert.Empty(t, store.attempts)
}

func TestSubmit_DeliveryUnavailable(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeStore{}
	rec := metrics.NewInMemory()
	o := newTestOrchestrator(transport, store)
	o.metrics = rec

	req := pendingRequest("microfilm")
	result, err := o.Submit(context.Background(), req)
	require.NoError(t, err)

	assert.False(t, result.OK())
	assert.Equal(t, WarningDeliveryUnavailable, result.Warning)
	assert.Equal(t, "no deliverable address for office ARCHIVE", result.Detail)
	assert.Equal(t, model.RequestStatusPending, result.RequestStatus)

	assert.Empty(t, transport.sent, "transport must not be called")
	assert.Empty(t, store.changes, "no status change or activity entry")
	require.Len(t, store.attempts, 1)
	assert.Equal(t, result.Detail, store.attempts[0].lastError)
	assert.EqualValues(t, 1, rec.Snapshot().Submissions[metrics.OutcomeUndeliverable])
}

func TestSubmit_TransportFailure(t *testing.T) {
	transport := &fakeTransport{err: errors.New("provider returned 503")}
	store := &fakeStore{}
	o := newTestOrchestrator(transport, store)

	result, err := o.Submit(context.Background(), pendingRequest("pension"))
	require.NoError(t, err)

	assert.False(t, result.OK())
	assert.Equal(t, WarningTransportFailure, result.Warning)
	assert.Equal(t, model.RequestStatusFailed, result.RequestStatus)
	assert.Contains(t, result.Detail, "provider returned 503")

	require.Len(t, store.changes, 1)
	change := store.changes[0]
	assert.Equal(t, model.RequestStatusFailed, change.Status)
	assert.Equal(t, model.ActivityRequestFailed, change.Activity.Type)
	assert.Equal(t, result.Detail, change.LastError)
	require.NotNil(t, change.NextAttemptAt)
	assert.True(t, change.NextAttemptAt.After(time.Now()))
}

func TestSubmit_TimeoutIsTransportFailure(t *testing.T) {
	slow := mail.WithTimeout(blockingTransport{}, 10*time.Millisecond)
	store := &fakeStore{}
	o := newTestOrchestrator(slow, store)

	result, err := o.Submit(context.Background(), pendingRequest("pension"))
	require.NoError(t, err)
	assert.Equal(t, WarningTransportFailure, result.Warning)
	assert.Contains(t, result.Detail, "timed out")
}

type blockingTransport struct{}

func (blockingTransport) Send(ctx context.Context, msg mail.Message) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

func TestSubmit_AlreadySubmitted(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(transport, &fakeStore{})

	req := pendingRequest("burial_records")
	req.Status = model.RequestStatusSubmitted

	_, err := o.Submit(context.Background(), req)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Empty(t, transport.sent)
}

func TestSubmit_KeepsOfficeFromCreation(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(transport, &fakeStore{})

	req := pendingRequest("burial_records")
	req.OfficeCode = registry.CodeVHA
	req.OfficeName = "Veterans Health Administration"

	result, err := o.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, registry.CodeVHA, result.Office.Code)
	require.Len(t, transport.sent, 1)
	assert.Equal(t, "vhafoiahelp@va.gov", transport.sent[0].To)
}

func TestSubmit_StoredOfficeNoLongerKnown(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeStore{}
	o := newTestOrchestrator(transport, store)

	req := pendingRequest("burial_records")
	req.OfficeCode = "RETIRED"
	req.OfficeName = "Retired Office"

	result, err := o.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, WarningDeliveryUnavailable, result.Warning)
	assert.Empty(t, transport.sent)
}

func TestSubmit_LastAttemptNotRescheduled(t *testing.T) {
	store := &fakeStore{}
	o := newTestOrchestrator(&fakeTransport{err: errors.New("down")}, store)
	o.SetMaxAttempts(3)

	req := pendingRequest("pension")
	req.Status = model.RequestStatusFailed
	req.SubmitAttempts = 2

	_, err := o.Submit(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, store.changes, 1)
	assert.Nil(t, store.changes[0].NextAttemptAt)
}

func TestSubmit_StoreErrorSurfaces(t *testing.T) {
	storeErr := errors.New("tx aborted")
	o := newTestOrchestrator(&fakeTransport{}, &fakeStore{err: storeErr})

	result, err := o.Submit(context.Background(), pendingRequest("burial_records"))
	assert.ErrorIs(t, err, storeErr)
	assert.True(t, result.OK(), "letter was delivered even though the update failed")
	assert.Equal(t, model.RequestStatusPending, result.RequestStatus)
	assert.Nil(t, result.SubmittedAt)
}

func TestSubmit_SentButStatusNotRecorded(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeStore{updateErr: errors.New("db down")}
	o := newTestOrchestrator(transport, store)

	result, err := o.Submit(context.Background(), pendingRequest("burial_records"))
	require.Error(t, err)
	require.Len(t, transport.sent, 1)

	assert.Equal(t, model.RequestStatusPending, result.RequestStatus, "response must match the stored row")
	assert.Nil(t, result.SubmittedAt)
	assert.Contains(t, result.Detail, "msg_123")

	require.Len(t, store.attempts, 1, "the attempt is recorded for operators")
	assert.Contains(t, store.attempts[0].lastError, "not recorded")
	assert.Nil(t, store.attempts[0].nextAttemptAt, "a sent letter is not rescheduled")
}

func TestSubmit_StaleCopyAfterLockIsNotResent(t *testing.T) {
	transport := &fakeTransport{}
	store := &fakeStore{}
	locker := &fakeLocker{}
	o := newTestOrchestrator(transport, store)
	o.SetLocker(locker, time.Second)

	first := pendingRequest("burial_records")
	second := pendingRequest("burial_records")

	_, err := o.Submit(context.Background(), first)
	require.NoError(t, err)

	_, err = o.Submit(context.Background(), second)
	assert.ErrorIs(t, err, ErrAlreadySubmitted)
	assert.Len(t, transport.sent, 1)
	assert.Equal(t, model.RequestStatusSubmitted, second.Status)
}

func TestLockTTL(t *testing.T) {
	assert.Equal(t, DefaultLockTTL, LockTTL(0))
	assert.Equal(t, DefaultLockTTL, LockTTL(15*time.Second))
	assert.Equal(t, 5*time.Minute+lockSlack, LockTTL(5*time.Minute))
}

type fakeLocker struct {
	mu       sync.Mutex
	held     map[string]string
	err      error
	released int
	lastTTL  time.Duration
}

func (f *fakeLocker) AcquireSubmitLock(ctx context.Context, requestID string, ttl time.Duration) (string, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", false, f.err
	}
	if f.held == nil {
		f.held = map[string]string{}
	}
	if _, ok := f.held[requestID]; ok {
		return "", false, nil
	}
	token := fmt.Sprintf("tok-%d", f.released+1)
	f.held[requestID] = token
	f.lastTTL = ttl
	return token, true, nil
}

func (f *fakeLocker) ReleaseSubmitLock(ctx context.Context, requestID, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[requestID] == token {
		delete(f.held, requestID)
	}
	f.released++
	return nil
}

func TestSubmit_LockHeldElsewhere(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(transport, &fakeStore{})
	locker := &fakeLocker{held: map[string]string{"01HREQ": "other"}}
	o.SetLocker(locker, time.Second)

	_, err := o.Submit(context.Background(), pendingRequest("burial_records"))
	assert.ErrorIs(t, err, ErrSubmitInProgress)
	assert.Empty(t, transport.sent)
}

func TestSubmit_LockReleasedAfterAttempt(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(transport, &fakeStore{})
	locker := &fakeLocker{}
	o.SetLocker(locker, 5*time.Minute)

	_, err := o.Submit(context.Background(), pendingRequest("burial_records"))
	require.NoError(t, err)
	assert.Equal(t, 1, locker.released)
	assert.Empty(t, locker.held)
	assert.Equal(t, LockTTL(5*time.Minute), locker.lastTTL)
}

func TestSubmit_LockErrorDoesNotBlock(t *testing.T) {
	transport := &fakeTransport{}
	o := newTestOrchestrator(transport, &fakeStore{})
	o.SetLocker(&fakeLocker{err: errors.New("redis down")}, time.Second)

	result, err := o.Submit(context.Background(), pendingRequest("burial_records"))
	require.NoError(t, err)
	assert.True(t, result.OK())
	assert.Len(t, transport.sent, 1)
}
