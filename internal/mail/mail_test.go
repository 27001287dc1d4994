package mail

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type slowTransport struct {
	delay time.Duration
}

func (s slowTransport) Send(ctx context.Context, msg Message) (string, error) {
	select {
	case <-time.After(s.delay):
		return "late", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

type stubTransport struct {
	id  string
	err error
}

func (s stubTransport) Send(ctx context.Context, msg Message) (string, error) {
	return s.id, s.err
}

func TestWithTimeout_Expires(t *testing.T) {
	tr := WithTimeout(slowTransport{delay: time.Second}, 20*time.Millisecond)

	_, err := tr.Send(context.Background(), Message{To: "x@example.gov"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrTimeout)
}

func TestWithTimeout_PassesThrough(t *testing.T) {
	tr := WithTimeout(stubTransport{id: "msg_1"}, time.Second)

	id, err := tr.Send(context.Background(), Message{})
	require.NoError(t, err)
	assert.Equal(t, "msg_1", id)

	failing := WithTimeout(stubTransport{err: ErrSendFailed}, time.Second)
	_, err = failing.Send(context.Background(), Message{})
	assert.ErrorIs(t, err, ErrSendFailed)
	assert.False(t, errors.Is(err, ErrTimeout))
}

func TestResendTransport_Send(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/emails", r.URL.Path)
		assert.Equal(t, "Bearer re_test", r.Header.Get("Authorization"))
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"4ef9a417-02e9-4d39-ad75-9611e0fcc33c"}`))
	}))
	defer srv.Close()

	tr, err := NewResendTransport("re_test", srv.URL, srv.Client())
	require.NoError(t, err)

	id, err := tr.Send(context.Background(), Message{
		From:    "requests@requestping.example",
		To:      "cemncafoia@va.gov",
		Subject: "FOIA Request: Interment",
		Body:    "To Whom It May Concern:",
	})
	require.NoError(t, err)
	assert.Equal(t, "4ef9a417-02e9-4d39-ad75-9611e0fcc33c", id)
	assert.Equal(t, "FOIA Request: Interment", got["subject"])
	assert.Equal(t, []any{"cemncafoia@va.gov"}, got["to"])
}

func TestResendTransport_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"statusCode":422,"name":"validation_error","message":"Invalid to field"}`))
	}))
	defer srv.Close()

	tr, err := NewResendTransport("re_test", srv.URL, srv.Client())
	require.NoError(t, err)

	_, err = tr.Send(context.Background(), Message{To: "bad"})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSendFailed)
}

func TestLogTransport(t *testing.T) {
	tr := NewLogTransport(slog.New(slog.NewTextHandler(io.Discard, nil)))

	id, err := tr.Send(context.Background(), Message{To: "x@example.gov", Subject: "s"})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}
