//go:build integration

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/requestping/requestping/internal/app"
	"github.com/requestping/requestping/internal/config"
	"github.com/requestping/requestping/internal/metrics"
	"github.com/requestping/requestping/internal/model"
	"github.com/requestping/requestping/internal/service"
	"github.com/requestping/requestping/internal/testutil"
)

// newTestServer runs the full router against real Postgres and Redis with
// mail logged instead of sent.
func newTestServer(t *testing.T) (*httptest.Server, *app.App) {
	t.Helper()
	testutil.NewPool(t)
	testutil.NewRedis(t)

	cfg := &config.Config{
		AppEnv:                     "development",
		DatabaseURL:                testutil.RequireEnv(t, "DATABASE_URL"),
		RedisURL:                   testutil.RequireEnv(t, "REDIS_URL"),
		RegistrySource:             config.RegistryStatic,
		FromEmail:                  "RequestPing <requests@requestping.test>",
		MailSendTimeout:            5 * time.Second,
		DefaultMonthlyRequestLimit: 5,
		ResubmitMaxAttempts:        5,
		ResubmitBatchSize:          10,
		ResubmitInterval:           time.Minute,
		MaxRequestBodySize:         1 << 20,
		RateLimitAPIEnabled:        true,
		RateLimitIPEnabled:         true,
		RateLimitIPRPS:             100,
		RateLimitIPBurst:           100,
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	reg := prometheus.NewRegistry()
	a, err := app.New(context.Background(), cfg, logger, metrics.NewPrometheus(reg))
	if err != nil {
		t.Fatalf("build app: %v", err)
	}
	t.Cleanup(a.Close)

	srv := httptest.NewServer(setupRouter(a, reg))
	t.Cleanup(srv.Close)
	return srv, a
}

func bootstrapKey(t *testing.T, a *app.App, scopes ...string) string {
	t.Helper()
	ctx := context.Background()
	user := testutil.NewTestUser(t, 5)
	if _, err := a.Repo.EnsureUser(ctx, user); err != nil {
		t.Fatalf("ensure user: %v", err)
	}
	created, err := a.APIKeys.CreateAPIKey(ctx, service.CreateAPIKeyInput{
		UserID: user.ID,
		Name:   "integration",
		Scopes: scopes,
		Tier:   model.TierUnlimited,
	})
	if err != nil {
		t.Fatalf("create api key: %v", err)
	}
	return created.Key
}

func doJSON(t *testing.T, method, url, key string, payload, out any) int {
	t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, url, err)
	}
	defer resp.Body.Close()

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			t.Fatalf("decode %s %s: %v", method, url, err)
		}
	}
	return resp.StatusCode
}

func TestRouter_RequestLifecycle(t *testing.T) {
	srv, a := newTestServer(t)
	key := bootstrapKey(t, a, model.ScopeRead, model.ScopeWrite)

	var created struct {
		ID      string
		Status  string
		Office  struct{ Code string }
		Warning *struct{ Code string }
	}
	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/requests", key, map[string]any{
		"record_type":     "burial_records",
		"subject":         "Interment record",
		"description":     "Interment record for John Doe, 1968.",
		"delivery_format": "paper",
	}, &created)
	if status != http.StatusCreated {
		t.Fatalf("expected 201, got %d", status)
	}
	if created.Status != string(model.RequestStatusSubmitted) || created.Office.Code != "NCA" || created.Warning != nil {
		t.Fatalf("unexpected create response: %+v", created)
	}

	var detail struct {
		Request  model.Request    `json:"request"`
		Activity []model.Activity `json:"activity"`
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/requests/"+created.ID, key, nil, &detail); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(detail.Activity) != 2 || detail.Activity[0].Type != model.ActivityRequestSubmitted {
		t.Fatalf("expected submitted then created activity, got %+v", detail.Activity)
	}

	if status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/requests/"+created.ID+"/submit", key, nil, nil); status != http.StatusConflict {
		t.Errorf("expected 409 on resubmitting a submitted request, got %d", status)
	}

	var list struct {
		Requests []model.Request `json:"requests"`
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/requests", key, nil, &list); status != http.StatusOK {
		t.Fatalf("expected 200, got %d", status)
	}
	if len(list.Requests) != 1 {
		t.Errorf("expected 1 request, got %d", len(list.Requests))
	}
}

func TestRouter_AuthAndScopes(t *testing.T) {
	srv, a := newTestServer(t)
	readOnly := bootstrapKey(t, a, model.ScopeRead)

	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/requests", "", nil, nil); status != http.StatusUnauthorized {
		t.Errorf("expected 401 without credentials, got %d", status)
	}

	status := doJSON(t, http.MethodPost, srv.URL+"/api/v1/requests", readOnly, map[string]any{
		"record_type": "burial_records",
		"subject":     "s",
		"description": "d",
	}, nil)
	if status != http.StatusForbidden {
		t.Errorf("expected 403 for a read-only key, got %d", status)
	}

	var types struct {
		RecordTypes []model.RecordTypeOption `json:"record_types"`
	}
	if status := doJSON(t, http.MethodGet, srv.URL+"/api/v1/record-types", "", nil, &types); status != http.StatusOK {
		t.Fatalf("record types should be public, got %d", status)
	}
	if len(types.RecordTypes) == 0 {
		t.Error("expected record types")
	}
}

func TestRouter_Probes(t *testing.T) {
	srv, _ := newTestServer(t)

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		resp, err := http.Get(srv.URL + path)
		if err != nil {
			t.Fatalf("GET %s: %v", path, err)
		}
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			t.Errorf("GET %s: expected 200, got %d", path, resp.StatusCode)
		}
	}
}
