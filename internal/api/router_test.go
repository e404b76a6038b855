package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/Priya8975/minutes-live-sync/internal/auth"
	"github.com/Priya8975/minutes-live-sync/internal/domain"
	"github.com/Priya8975/minutes-live-sync/internal/drafts"
	"github.com/Priya8975/minutes-live-sync/internal/livebus"
	"github.com/Priya8975/minutes-live-sync/internal/metrics"
	ws "github.com/Priya8975/minutes-live-sync/internal/websocket"
)

type denyAll struct{}

func (denyAll) Allow(ctx context.Context, actor string) bool { return false }

type testServer struct {
	handler http.Handler
	bus     *livebus.Bus
	drafts  *drafts.Store
}

func setupTestServer(t *testing.T, jwtManager *auth.JWTManager, limiter ws.Limiter) *testServer {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
	m := metrics.New()
	bus := livebus.New(nil, logger, m)
	store := drafts.NewStore(drafts.NewMemoryKV(), logger, m)

	handler := NewRouter(Deps{
		Drafts:  store,
		Bus:     bus,
		Hub:     ws.NewHub(bus, limiter, logger, m),
		Auth:    jwtManager,
		Limiter: limiter,
		Metrics: m,
	})
	return &testServer{handler: handler, bus: bus, drafts: store}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range header {
		req.Header[k] = v
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var resp HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decoding health: %v", err)
	}
	if resp.Status != "healthy" {
		t.Errorf("status = %q", resp.Status)
	}
}

func TestDrafts_CreateGetListDelete(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	rec := srv.do(t, http.MethodPost, "/api/v1/drafts", `{"issues":[{"issue":"pothole"}],"title":"Ward 4"}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("create: expected 200, got %d: %s", rec.Code, rec.Body)
	}
	var created domain.Draft
	if err := json.NewDecoder(rec.Body).Decode(&created); err != nil {
		t.Fatalf("decoding draft: %v", err)
	}
	if created.ID == "" {
		t.Fatal("expected generated id")
	}
	if created.UpdatedAt.IsZero() || created.CreatedAt.IsZero() {
		t.Errorf("timestamps not set: %+v", created)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/drafts/"+created.ID, "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get: expected 200, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/drafts", "", nil)
	var list []domain.Draft
	if err := json.NewDecoder(rec.Body).Decode(&list); err != nil {
		t.Fatalf("decoding list: %v", err)
	}
	if len(list) != 1 || list[0].Title != "Ward 4" {
		t.Errorf("list = %+v", list)
	}

	rec = srv.do(t, http.MethodDelete, "/api/v1/drafts/"+created.ID, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("delete: expected 204, got %d", rec.Code)
	}
	rec = srv.do(t, http.MethodDelete, "/api/v1/drafts/"+created.ID, "", nil)
	if rec.Code != http.StatusNoContent {
		t.Errorf("second delete: expected 204, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/drafts/"+created.ID, "", nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("get after delete: expected 404, got %d", rec.Code)
	}
}

func TestDrafts_EmptyListIsArray(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/drafts", "", nil)
	if body := strings.TrimSpace(rec.Body.String()); body != "[]" {
		t.Errorf("expected [], got %s", body)
	}
}

func TestDrafts_PutUsesPathID(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	rec := srv.do(t, http.MethodPut, "/api/v1/drafts/d1", `{"id":"ignored","issues":[]}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d", rec.Code)
	}
	if srv.drafts.Get(context.Background(), "d1") == nil {
		t.Error("draft should be stored under the path id")
	}
	if srv.drafts.Get(context.Background(), "ignored") != nil {
		t.Error("body id should not be used")
	}
}

func TestDrafts_InvalidBody(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	for _, body := range []string{`[1,2]`, `{broken`} {
		rec := srv.do(t, http.MethodPost, "/api/v1/drafts", body, nil)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("body %s: expected 400, got %d", body, rec.Code)
		}
	}
}

func TestLive_EmitReachesSubscribers(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	var got []livebus.Event
	srv.bus.Subscribe(domain.TopicIssuesUpdated, func(ctx context.Context, ev livebus.Event) {
		got = append(got, ev)
	})

	rec := srv.do(t, http.MethodPost, "/api/v1/live/issues-updated", `{"source":"department-response"}`, nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", rec.Code, rec.Body)
	}
	if len(got) != 1 || got[0].Payload["source"] != "department-response" {
		t.Errorf("subscriber saw %+v", got)
	}
}

func TestLive_EmptyBodyIsEmptyPayload(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	var got map[string]any
	srv.bus.Subscribe(domain.TopicNotificationsUpdated, func(ctx context.Context, ev livebus.Event) {
		got = ev.Payload
	})

	rec := srv.do(t, http.MethodPost, "/api/v1/live/minutes-tracker:notifications-updated", "", nil)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", rec.Code)
	}
	if got == nil || len(got) != 0 {
		t.Errorf("expected empty payload, got %v", got)
	}
}

func TestLive_RejectsBadRequests(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	tests := []struct {
		name string
		path string
		body string
	}{
		{"unknown topic", "/api/v1/live/reports-generated", `{}`},
		{"array payload", "/api/v1/live/issues-updated", `[1]`},
		{"string payload", "/api/v1/live/issues-updated", `"hi"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, http.MethodPost, tt.path, tt.body, nil)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("expected 400, got %d", rec.Code)
			}
		})
	}
}

func TestLive_RejectsOversizedPayload(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	called := false
	srv.bus.Subscribe(domain.TopicIssuesUpdated, func(ctx context.Context, ev livebus.Event) {
		called = true
	})

	body := `{"note":"` + strings.Repeat("x", ws.MaxFrameBytes) + `"}`
	rec := srv.do(t, http.MethodPost, "/api/v1/live/issues-updated", body, nil)
	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Errorf("expected 413, got %d", rec.Code)
	}
	if called {
		t.Error("oversized emit should not reach subscribers")
	}

	small := `{"note":"` + strings.Repeat("x", 100) + `"}`
	if rec := srv.do(t, http.MethodPost, "/api/v1/live/issues-updated", small, nil); rec.Code != http.StatusAccepted {
		t.Errorf("small payload: expected 202, got %d", rec.Code)
	}
}

func TestLive_RateLimited(t *testing.T) {
	srv := setupTestServer(t, nil, denyAll{})

	called := false
	srv.bus.Subscribe(domain.TopicIssuesUpdated, func(ctx context.Context, ev livebus.Event) {
		called = true
	})

	rec := srv.do(t, http.MethodPost, "/api/v1/live/issues-updated", `{}`, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("expected 429, got %d", rec.Code)
	}
	if called {
		t.Error("throttled emit should not reach subscribers")
	}
}

func TestAuth_RequiresToken(t *testing.T) {
	jwtManager := auth.NewJWTManager("test-secret", time.Hour)
	srv := setupTestServer(t, jwtManager, nil)

	rec := srv.do(t, http.MethodGet, "/api/v1/drafts", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("no token: expected 401, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/drafts", "", http.Header{"Authorization": {"Bearer nonsense"}})
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("bad token: expected 401, got %d", rec.Code)
	}

	token, err := jwtManager.GenerateAccessToken("asha", auth.RoleDPO, "")
	if err != nil {
		t.Fatalf("generating token: %v", err)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/drafts", "", http.Header{"Authorization": {"Bearer " + token}})
	if rec.Code != http.StatusOK {
		t.Errorf("bearer token: expected 200, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/api/v1/drafts?token="+token, "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("query token: expected 200, got %d", rec.Code)
	}

	// Health stays open for probes.
	rec = srv.do(t, http.MethodGet, "/api/v1/health", "", nil)
	if rec.Code != http.StatusOK {
		t.Errorf("health: expected 200, got %d", rec.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := setupTestServer(t, nil, nil)

	srv.do(t, http.MethodPost, "/api/v1/live/issues-updated", `{}`, nil)

	rec := srv.do(t, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "live_emits_total") {
		t.Errorf("expected emit counter in metrics output")
	}
}
