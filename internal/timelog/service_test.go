package timelog

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/cam3ron2/timetrack/internal/githubapi"
	"github.com/cam3ron2/timetrack/internal/permission"
	"github.com/google/go-github/v75/github"
)

type fakeAccessChecker struct {
	result    permission.Result
	callCount int
}

func (f *fakeAccessChecker) Check(_ context.Context, _, _, _ string) permission.Result {
	f.callCount++
	return f.result
}

type fakeRecorder struct {
	hours []float64
}

func (r *fakeRecorder) ObserveTimeLogged(hours float64) {
	r.hours = append(r.hours, hours)
}

type githubFixture struct {
	server *httptest.Server

	mu            sync.Mutex
	commentBodies []string
	commentPaths  []string
	authHeaders   []string
}

func newGitHubFixture(t *testing.T) *githubFixture {
	t.Helper()

	fixture := &githubFixture{}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /repos/{owner}/{repo}/issues/{number}/comments", func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		var payload struct {
			Body string `json:"body"`
		}
		_ = json.Unmarshal(raw, &payload)

		fixture.mu.Lock()
		fixture.commentBodies = append(fixture.commentBodies, payload.Body)
		fixture.commentPaths = append(fixture.commentPaths, r.URL.Path)
		fixture.authHeaders = append(fixture.authHeaders, r.Header.Get("Authorization"))
		fixture.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":       int64(4242),
			"html_url": "https://github.com/acme/api/issues/7#issuecomment-4242",
			"body":     payload.Body,
		})
	})
	mux.HandleFunc("GET /user", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer ghp_example" {
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = w.Write([]byte(`{"message":"Bad credentials"}`))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"login":"octocat","name":"The Octocat","avatar_url":"https://avatars/octocat","html_url":"https://github.com/octocat"}`))
	})

	fixture.server = httptest.NewServer(mux)
	t.Cleanup(fixture.server.Close)
	return fixture
}

func (f *githubFixture) clientFactory() ClientFactory {
	return func(ctx context.Context, token string) (*github.Client, error) {
		rest, err := githubapi.NewTokenRESTClient(ctx, githubapi.TokenAuthConfig{
			Token:         token,
			BaseTransport: f.server.Client().Transport,
		}, f.server.URL)
		if err != nil {
			return nil, err
		}
		return rest.Client, nil
	}
}

func TestNewService(t *testing.T) {
	t.Parallel()

	factory := TokenClientFactory("https://api.github.com")
	if _, err := NewService(nil, factory, nil, nil); err == nil {
		t.Fatalf("NewService() expected error for nil access checker, got nil")
	}
	if _, err := NewService(&fakeAccessChecker{}, nil, nil, nil); err == nil {
		t.Fatalf("NewService() expected error for nil client factory, got nil")
	}
	if _, err := NewService(&fakeAccessChecker{}, factory, nil, nil); err != nil {
		t.Fatalf("NewService() unexpected error: %v", err)
	}
}

func TestServiceLogTime(t *testing.T) {
	t.Parallel()

	granted := permission.Result{HasAccess: true, Reason: permission.ReasonGranted}
	readOnly := permission.Result{
		Error:  "Your token has read-only access. Write permission is required to log time.",
		Reason: permission.ReasonReadOnly,
	}

	testCases := []struct {
		name           string
		request        LogRequest
		access         permission.Result
		wantInputErr   bool
		wantAccessErr  bool
		wantAccessCall int
		wantComments   int
	}{
		{
			name: "posts_comment_when_granted",
			request: LogRequest{
				Owner:       "acme",
				Repo:        "api",
				Number:      7,
				Hours:       2.5,
				Description: "Pairing on the importer",
				Token:       "ghp_example",
			},
			access:         granted,
			wantAccessCall: 1,
			wantComments:   1,
		},
		{
			name: "read_only_never_posts",
			request: LogRequest{
				Owner:  "acme",
				Repo:   "api",
				Number: 7,
				Hours:  1,
				Token:  "ghp_example",
			},
			access:         readOnly,
			wantAccessErr:  true,
			wantAccessCall: 1,
		},
		{
			name: "invalid_hours_skip_permission_check",
			request: LogRequest{
				Owner:  "acme",
				Repo:   "api",
				Number: 7,
				Hours:  30,
				Token:  "ghp_example",
			},
			access:       granted,
			wantInputErr: true,
		},
		{
			name: "missing_issue_number",
			request: LogRequest{
				Owner: "acme",
				Repo:  "api",
				Hours: 1,
				Token: "ghp_example",
			},
			access:       granted,
			wantInputErr: true,
		},
	}

	for _, tc := range testCases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			fixture := newGitHubFixture(t)
			checker := &fakeAccessChecker{result: tc.access}
			recorder := &fakeRecorder{}
			service, err := NewService(checker, fixture.clientFactory(), nil, recorder)
			if err != nil {
				t.Fatalf("NewService() unexpected error: %v", err)
			}

			got, err := service.LogTime(context.Background(), tc.request)
			if checker.callCount != tc.wantAccessCall {
				t.Fatalf("access checks = %d, want %d", checker.callCount, tc.wantAccessCall)
			}
			if len(fixture.commentBodies) != tc.wantComments {
				t.Fatalf("comments posted = %d, want %d", len(fixture.commentBodies), tc.wantComments)
			}

			switch {
			case tc.wantInputErr:
				var inputErr *InputError
				if !errors.As(err, &inputErr) {
					t.Fatalf("LogTime() error = %v, want *InputError", err)
				}
				return
			case tc.wantAccessErr:
				var accessErr *AccessError
				if !errors.As(err, &accessErr) {
					t.Fatalf("LogTime() error = %v, want *AccessError", err)
				}
				if accessErr.Result != tc.access {
					t.Fatalf("AccessError.Result = %+v, want %+v", accessErr.Result, tc.access)
				}
				if len(recorder.hours) != 0 {
					t.Fatalf("recorded hours = %v, want none", recorder.hours)
				}
				return
			}
			if err != nil {
				t.Fatalf("LogTime() unexpected error: %v", err)
			}

			wantBody := FormatComment(tc.request.Hours, tc.request.Description)
			if fixture.commentBodies[0] != wantBody {
				t.Fatalf("posted body = %q, want %q", fixture.commentBodies[0], wantBody)
			}
			if fixture.commentPaths[0] != "/repos/acme/api/issues/7/comments" {
				t.Fatalf("posted path = %q", fixture.commentPaths[0])
			}
			if fixture.authHeaders[0] != "Bearer ghp_example" {
				t.Fatalf("Authorization = %q, want bearer token", fixture.authHeaders[0])
			}
			if got.ID != 4242 || !strings.Contains(got.HTMLURL, "issuecomment-4242") {
				t.Fatalf("LogTime() = %+v, want comment 4242", got)
			}
			if len(recorder.hours) != 1 || recorder.hours[0] != tc.request.Hours {
				t.Fatalf("recorded hours = %v, want [%v]", recorder.hours, tc.request.Hours)
			}
		})
	}
}

func TestServiceWhoAmI(t *testing.T) {
	t.Parallel()

	fixture := newGitHubFixture(t)
	service, err := NewService(&fakeAccessChecker{}, fixture.clientFactory(), nil, nil)
	if err != nil {
		t.Fatalf("NewService() unexpected error: %v", err)
	}

	got, err := service.WhoAmI(context.Background(), "ghp_example")
	if err != nil {
		t.Fatalf("WhoAmI() unexpected error: %v", err)
	}
	want := Identity{
		Login:     "octocat",
		Name:      "The Octocat",
		AvatarURL: "https://avatars/octocat",
		HTMLURL:   "https://github.com/octocat",
	}
	if got != want {
		t.Fatalf("WhoAmI() = %+v, want %+v", got, want)
	}

	if _, err := service.WhoAmI(context.Background(), "wrong"); err == nil {
		t.Fatalf("WhoAmI() expected error for bad credentials, got nil")
	}
	if _, err := service.WhoAmI(context.Background(), ""); err == nil {
		t.Fatalf("WhoAmI() expected error for empty token, got nil")
	}
}

func TestParseIssueRef(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		ref        string
		wantOwner  string
		wantRepo   string
		wantNumber int
		wantErr    bool
	}{
		{ref: "acme/api#7", wantOwner: "acme", wantRepo: "api", wantNumber: 7},
		{ref: " acme/api#12 ", wantOwner: "acme", wantRepo: "api", wantNumber: 12},
		{ref: "acme/api", wantErr: true},
		{ref: "acme#7", wantErr: true},
		{ref: "acme/api#zero", wantErr: true},
		{ref: "acme/api#0", wantErr: true},
		{ref: "acme/api/extra#1", wantErr: true},
	}

	for _, tc := range testCases {
		owner, repo, number, err := ParseIssueRef(tc.ref)
		if tc.wantErr {
			if err == nil {
				t.Fatalf("ParseIssueRef(%q) expected error, got nil", tc.ref)
			}
			continue
		}
		if err != nil {
			t.Fatalf("ParseIssueRef(%q) unexpected error: %v", tc.ref, err)
		}
		if owner != tc.wantOwner || repo != tc.wantRepo || number != tc.wantNumber {
			t.Fatalf("ParseIssueRef(%q) = %s/%s#%d", tc.ref, owner, repo, number)
		}
	}
}
