package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/cam3ron2/timetrack/internal/config"
	"github.com/cam3ron2/timetrack/internal/health"
	"github.com/cam3ron2/timetrack/internal/permission"
	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/cam3ron2/timetrack/internal/store"
	"go.uber.org/zap"
)

type fakeGitHub struct {
	server         *httptest.Server
	rateLimitDown  atomic.Bool
	memberRequests atomic.Int32
	createdBodies  chan string
}

func newFakeGitHub(t *testing.T) *fakeGitHub {
	t.Helper()

	fake := &fakeGitHub{createdBodies: make(chan string, 1)}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /repos/acme/api", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"name":"api","full_name":"acme/api","permissions":{"admin":false,"push":true,"pull":true}}`)
	})
	mux.HandleFunc("GET /repos/acme/docs", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"name":"docs","full_name":"acme/docs","permissions":{"admin":false,"push":false,"pull":true}}`)
	})
	mux.HandleFunc("GET /search/issues", func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("q"), "commenter:alice") {
			_, _ = io.WriteString(w, `{"total_count":0,"incomplete_results":false,"items":[]}`)
			return
		}
		_, _ = fmt.Fprintf(w, `{"total_count":1,"incomplete_results":false,"items":[{"number":1,"title":"Bug","html_url":"https://github.com/acme/api/issues/1","comments_url":"%s/repos/acme/api/issues/1/comments","repository_url":"%s/repos/acme/api","updated_at":"2026-03-02T10:00:00Z"}]}`, fake.server.URL, fake.server.URL)
	})
	mux.HandleFunc("GET /repos/acme/api/issues/1/comments", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `[
			{"id":1,"body":"⏱️ **Time Tracked:** 1.5 Hours","html_url":"https://github.com/acme/api/issues/1#issuecomment-1","created_at":"2026-03-02T10:00:00Z","user":{"login":"alice"}},
			{"id":2,"body":"⏱️ **Time Tracked:** 2 Hours","html_url":"https://github.com/acme/api/issues/1#issuecomment-2","created_at":"2026-03-02T11:00:00Z","user":{"login":"bob"}},
			{"id":3,"body":"looks good","html_url":"https://github.com/acme/api/issues/1#issuecomment-3","created_at":"2026-03-03T09:00:00Z","user":{"login":"alice"}}
		]`)
	})
	mux.HandleFunc("POST /repos/acme/api/issues/1/comments", func(w http.ResponseWriter, r *http.Request) {
		var payload struct {
			Body string `json:"body"`
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		fake.createdBodies <- payload.Body
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":99,"html_url":"https://github.com/acme/api/issues/1#issuecomment-99","body":"created"}`)
	})
	mux.HandleFunc("GET /orgs/acme/members", func(w http.ResponseWriter, _ *http.Request) {
		fake.memberRequests.Add(1)
		_, _ = io.WriteString(w, `[{"login":"alice","avatar_url":"https://avatars/alice"},{"login":"bob"}]`)
	})
	mux.HandleFunc("GET /rate_limit", func(w http.ResponseWriter, _ *http.Request) {
		if fake.rateLimitDown.Load() {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_, _ = io.WriteString(w, `{"resources":{"core":{"limit":5000,"remaining":4999,"reset":1772000000}}}`)
	})

	fake.server = httptest.NewServer(mux)
	t.Cleanup(fake.server.Close)
	return fake
}

func newTestRuntime(t *testing.T, fake *fakeGitHub) *Runtime {
	t.Helper()

	cfg, err := config.Load(strings.NewReader(fmt.Sprintf(`
github:
  api_base_url: %s
reports:
  timezone: UTC
retry:
  max_attempts: 1
`, fake.server.URL)))
	if err != nil {
		t.Fatalf("config.Load() unexpected error: %v", err)
	}

	runtime, err := newRuntimeWithBackends(cfg, zap.NewNop(), store.NewMemoryStore(0), fake.server.Client())
	if err != nil {
		t.Fatalf("newRuntimeWithBackends() unexpected error: %v", err)
	}
	runtime.Now = func() time.Time {
		return time.Date(2026, time.March, 4, 12, 0, 0, 0, time.UTC)
	}
	t.Cleanup(func() {
		_ = runtime.Close()
	})
	return runtime
}

func serve(t *testing.T, handler http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer caller-token")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestNewRuntimeRequiresConfig(t *testing.T) {
	t.Parallel()

	if _, err := NewRuntime(nil, zap.NewNop()); err == nil {
		t.Fatalf("NewRuntime() expected error")
	}
}

func TestRuntimeServesReports(t *testing.T) {
	t.Parallel()

	fake := newFakeGitHub(t)
	runtime := newTestRuntime(t, fake)
	handler, err := runtime.Handler()
	if err != nil {
		t.Fatalf("Handler() unexpected error: %v", err)
	}

	t.Run("single_user", func(t *testing.T) {
		rec := serve(t, handler, http.MethodGet, "/api/v1/reports?org=acme&user=alice&start=2026-03-01&end=2026-03-05", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		var result report.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("json.Unmarshal() unexpected error: %v", err)
		}
		if result.Single == nil {
			t.Fatalf("expected single report, got %s", rec.Body.String())
		}
		if result.Single.Total != 1.5 {
			t.Fatalf("total = %v, want 1.5", result.Single.Total)
		}
		if got := len(result.Single.ByDate["2026-03-02"]); got != 1 {
			t.Fatalf("entries on 2026-03-02 = %d, want 1", got)
		}
	})

	t.Run("all_members_default_range", func(t *testing.T) {
		rec := serve(t, handler, http.MethodGet, "/api/v1/reports?org=acme", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200: %s", rec.Code, rec.Body.String())
		}
		var result report.Result
		if err := json.Unmarshal(rec.Body.Bytes(), &result); err != nil {
			t.Fatalf("json.Unmarshal() unexpected error: %v", err)
		}
		if result.Multi == nil || len(result.Multi.Users) != 2 {
			t.Fatalf("expected two-user report, got %s", rec.Body.String())
		}
		if result.Multi.GrandTotal != 1.5 {
			t.Fatalf("grand total = %v, want 1.5", result.Multi.GrandTotal)
		}
	})

	t.Run("members_are_cached", func(t *testing.T) {
		before := fake.memberRequests.Load()
		for range 2 {
			rec := serve(t, handler, http.MethodGet, "/api/v1/orgs/acme/members", "")
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, want 200", rec.Code)
			}
		}
		if got := fake.memberRequests.Load() - before; got > 1 {
			t.Fatalf("member requests = %d, want at most 1", got)
		}
	})

	t.Run("metrics", func(t *testing.T) {
		rec := serve(t, handler, http.MethodGet, "/metrics", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("status = %d, want 200", rec.Code)
		}
		for _, want := range []string{"timetrack_reports_total", "timetrack_github_requests_total"} {
			if !strings.Contains(rec.Body.String(), want) {
				t.Fatalf("metrics output missing %q", want)
			}
		}
	})
}

func TestRuntimeAccessAndLogTime(t *testing.T) {
	t.Parallel()

	fake := newFakeGitHub(t)
	runtime := newTestRuntime(t, fake)
	handler, err := runtime.Handler()
	if err != nil {
		t.Fatalf("Handler() unexpected error: %v", err)
	}

	rec := serve(t, handler, http.MethodGet, "/api/v1/repos/acme/docs/access", "")
	var access permission.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &access); err != nil {
		t.Fatalf("json.Unmarshal() unexpected error: %v", err)
	}
	if access.HasAccess || access.Reason != permission.ReasonReadOnly {
		t.Fatalf("access = %+v, want read_only", access)
	}

	rec = serve(t, handler, http.MethodPost, "/api/v1/repos/acme/docs/issues/1/time", `{"hours":1}`)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("status = %d, want 403: %s", rec.Code, rec.Body.String())
	}

	rec = serve(t, handler, http.MethodPost, "/api/v1/repos/acme/api/issues/1/time", `{"hours":1.5,"description":"triage"}`)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, want 201: %s", rec.Code, rec.Body.String())
	}
	select {
	case body := <-fake.createdBodies:
		if !strings.Contains(body, "⏱️ **Time Tracked:** 1.5 Hours") || !strings.Contains(body, "triage") {
			t.Fatalf("comment body = %q", body)
		}
	default:
		t.Fatalf("expected a created comment")
	}
}

func TestRuntimeProbeOnceTracksGitHubHealth(t *testing.T) {
	t.Parallel()

	fake := newFakeGitHub(t)
	runtime := newTestRuntime(t, fake)
	ctx := context.Background()

	runtime.ProbeOnce(ctx)
	if status := runtime.CurrentStatus(ctx); status.Mode != health.ModeHealthy || !status.Ready {
		t.Fatalf("status = %+v, want healthy and ready", status)
	}

	fake.rateLimitDown.Store(true)
	for i := 0; i < githubUnhealthyThreshold-1; i++ {
		runtime.ProbeOnce(ctx)
	}
	if status := runtime.CurrentStatus(ctx); status.Mode != health.ModeHealthy {
		t.Fatalf("mode = %s before threshold, want healthy", status.Mode)
	}
	runtime.ProbeOnce(ctx)
	if status := runtime.CurrentStatus(ctx); status.Mode != health.ModeDegraded || !status.Ready {
		t.Fatalf("status = %+v, want degraded and still ready", status)
	}

	fake.rateLimitDown.Store(false)
	runtime.ProbeOnce(ctx)
	if status := runtime.CurrentStatus(ctx); status.Mode != health.ModeHealthy {
		t.Fatalf("mode = %s after recovery, want healthy", status.Mode)
	}
}

func TestRuntimeStartStopsWithContext(t *testing.T) {
	t.Parallel()

	fake := newFakeGitHub(t)
	runtime := newTestRuntime(t, fake)
	ctx, cancel := context.WithCancel(context.Background())
	runtime.Start(ctx)
	cancel()
}
