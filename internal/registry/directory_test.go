package registry

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
)

type fakeDirectory struct {
	entries []DirectoryEntry
	err     error
	calls   atomic.Int32
}

func (f *fakeDirectory) FetchDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	f.calls.Add(1)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

type memorySnapshots struct {
	mu   sync.Mutex
	snap *model.DirectorySnapshot
}

func (m *memorySnapshots) GetDirectorySnapshot(ctx context.Context) (*model.DirectorySnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.snap == nil {
		return nil, ErrSnapshotMiss
	}
	return m.snap, nil
}

func (m *memorySnapshots) SetDirectorySnapshot(ctx context.Context, snap *model.DirectorySnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snap = snap
	return nil
}

func entry(abbr, name, email string) DirectoryEntry {
	e := DirectoryEntry{Abbreviation: abbr, Name: name}
	if email != "" {
		e.Emails = []string{email}
	}
	return e
}

var directoryFallback = model.Office{
	Code:        "GENERAL",
	Name:        "General FOIA",
	Email:       "foia@example.gov",
	RecordTypes: []string{"other"},
}

func TestNormalizeEntry(t *testing.T) {
	withForm := entry("FBI", "Federal Bureau of Investigation", "contact@fbi.example")
	withForm.RequestForm = &struct {
		Email string `json:"email"`
	}{Email: "foia@fbi.example"}

	tests := []struct {
		name      string
		in        DirectoryEntry
		wantOK    bool
		wantEmail string
	}{
		{"request form preferred", withForm, true, "foia@fbi.example"},
		{"first contact email", entry("DOE", "Department of Energy", "foia@doe.example"), true, "foia@doe.example"},
		{"missing name", entry("X", "", "x@example.gov"), false, ""},
		{"missing abbreviation", entry("", "Nameless", "x@example.gov"), false, ""},
		{"no email", entry("NOPE", "No Mail Agency", ""), false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := NormalizeEntry(tt.in)
			assert.Equal(t, tt.wantOK, ok)
			if ok {
				assert.Equal(t, tt.wantEmail, got.Email)
				assert.Equal(t, []string{lowerASCII(tt.in.Abbreviation)}, got.RecordTypes)
			}
		})
	}
}

func lowerASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + 32
		}
	}
	return string(b)
}

func TestNormalizeDirectory_DropsAndSorts(t *testing.T) {
	offices := NormalizeDirectory([]DirectoryEntry{
		entry("DOE", "Department of Energy", "foia@doe.example"),
		entry("BAD", "", "bad@example.gov"),
		entry("ARC", "archives", "foia@arc.example"),
		entry("DOE", "Duplicate Energy", "dup@doe.example"),
	})

	require.Len(t, offices, 2)
	assert.Equal(t, "ARC", offices[0].Code)
	assert.Equal(t, "DOE", offices[1].Code)
	assert.Equal(t, "Department of Energy", offices[1].Name)
}

func TestDirectory_ClassifiesFromFetch(t *testing.T) {
	ctx := context.Background()
	client := &fakeDirectory{entries: []DirectoryEntry{
		entry("DOE", "Department of Energy", "foia@doe.example"),
		entry("NARA", "National Archives", "foia@nara.example"),
	}}
	store := &memorySnapshots{}
	reg := NewDirectory(client, store, directoryFallback, time.Hour, testLogger(), nil)

	office := reg.Classify(ctx, "NARA")
	assert.Equal(t, "NARA", office.Code)
	assert.Equal(t, "foia@nara.example", office.Email)

	assert.Equal(t, "GENERAL", reg.Classify(ctx, "unknown_agency").Code)

	// Fresh snapshot is served from memory.
	reg.ListRecordTypes(ctx)
	assert.EqualValues(t, 1, client.calls.Load())

	require.NotNil(t, store.snap)
	assert.Len(t, store.snap.Offices, 2)
}

func TestDirectory_UnavailableWithoutSnapshotUsesFallback(t *testing.T) {
	ctx := context.Background()
	client := &fakeDirectory{err: ErrDirectoryUnavailable}
	rec := metrics.NewInMemory()
	reg := NewDirectory(client, nil, directoryFallback, time.Hour, testLogger(), rec)

	office := reg.Classify(ctx, "doe")
	assert.Equal(t, "GENERAL", office.Code)

	opts := reg.ListRecordTypes(ctx)
	require.Len(t, opts, 1)
	assert.Equal(t, "other", opts[0].Value)

	// Failed fetches are not retried before RetryInterval.
	assert.EqualValues(t, 1, client.calls.Load())
	assert.EqualValues(t, 1, rec.Snapshot().DirectoryFetches[metrics.FetchError])
}

func TestDirectory_ServesStaleSnapshotOnFailure(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	client := &fakeDirectory{entries: []DirectoryEntry{entry("DOE", "Department of Energy", "foia@doe.example")}}
	reg := NewDirectory(client, nil, directoryFallback, time.Hour, testLogger(), nil)
	reg.now = func() time.Time { return now }

	require.Equal(t, "DOE", reg.Classify(ctx, "doe").Code)

	now = now.Add(2 * time.Hour)
	client.err = errors.New("connection refused")

	assert.Equal(t, "DOE", reg.Classify(ctx, "doe").Code)
	assert.EqualValues(t, 2, client.calls.Load())
}

func TestDirectory_LoadsStoredSnapshot(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &memorySnapshots{snap: &model.DirectorySnapshot{
		Offices:   []model.Office{{Code: "DOE", Name: "Department of Energy", Email: "foia@doe.example", RecordTypes: []string{"doe"}}},
		FetchedAt: now.Add(-10 * time.Minute),
	}}
	client := &fakeDirectory{}
	rec := metrics.NewInMemory()
	reg := NewDirectory(client, store, directoryFallback, time.Hour, testLogger(), rec)
	reg.now = func() time.Time { return now }

	assert.Equal(t, "DOE", reg.Classify(ctx, "doe").Code)
	assert.Zero(t, client.calls.Load())
	assert.EqualValues(t, 1, rec.Snapshot().DirectoryFetches[metrics.FetchCacheHit])
}

func TestDirectory_ConcurrentRefreshCollapses(t *testing.T) {
	ctx := context.Background()
	release := make(chan struct{})
	client := &blockingDirectory{release: release, entries: []DirectoryEntry{entry("DOE", "Department of Energy", "foia@doe.example")}}
	reg := NewDirectory(client, nil, directoryFallback, time.Hour, testLogger(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			reg.Classify(ctx, "doe")
		}()
	}
	time.Sleep(20 * time.Millisecond)
	close(release)
	wg.Wait()

	assert.EqualValues(t, 1, client.calls.Load())
}

type blockingDirectory struct {
	release chan struct{}
	entries []DirectoryEntry
	calls   atomic.Int32
}

func (b *blockingDirectory) FetchDirectory(ctx context.Context) ([]DirectoryEntry, error) {
	b.calls.Add(1)
	<-b.release
	return b.entries, nil
}

func TestFOIAGovClient_FetchDirectory(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/agency_components", r.URL.Path)
		assert.Equal(t, "secret", r.URL.Query().Get("api_key"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"abbreviation":"DOE","name":"Department of Energy","emails":["foia@doe.example"],"request_form":{"email":"form@doe.example"}}]`))
	}))
	defer srv.Close()

	entries, err := NewFOIAGovClient(srv.URL, "secret").FetchDirectory(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 1)

	office, ok := NormalizeEntry(entries[0])
	require.True(t, ok)
	assert.Equal(t, "form@doe.example", office.Email)
}

func TestFOIAGovClient_Envelope(t *testing.T) {
	entries, err := decodeDirectory([]byte(`{"data":[{"abbreviation":"ARC","name":"Archives","emails":["a@arc.example"]}]}`))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "ARC", entries[0].Abbreviation)
}

func TestFOIAGovClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewFOIAGovClient(srv.URL, "k").FetchDirectory(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDirectoryUnavailable)
}

func TestDirectory_CancelledCallerDoesNotFailSharedRefresh(t *testing.T) {
	client := &fakeDirectory{entries: []DirectoryEntry{entry("FBI", "Federal Bureau of Investigation", "foia@fbi.example")}}
	d := NewDirectory(client, nil, directoryFallback, time.Hour, testLogger(), nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	office := d.Classify(ctx, "fbi")
	assert.Equal(t, "FBI", office.Code)
	assert.Equal(t, int32(1), client.calls.Load())

	require.NoError(t, d.Refresh(ctx))
	assert.Equal(t, int32(2), client.calls.Load())
}
