package report

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/timetrack/internal/githubapi"
)

type fakeSearcher struct {
	mu      sync.Mutex
	results map[string]githubapi.SearchIssuesResult
	errors  map[string]error
	queries []string
	tokens  []string
}

func (f *fakeSearcher) SearchIssues(ctx context.Context, query string) (githubapi.SearchIssuesResult, error) {
	f.mu.Lock()
	f.queries = append(f.queries, query)
	f.tokens = append(f.tokens, githubapi.TokenFromContext(ctx))
	f.mu.Unlock()

	user := commenterFromQuery(query)
	if err, ok := f.errors[user]; ok {
		return githubapi.SearchIssuesResult{}, err
	}
	if result, ok := f.results[user]; ok {
		return result, nil
	}
	return githubapi.SearchIssuesResult{Status: githubapi.EndpointStatusOK, StatusCode: 200}, nil
}

func (f *fakeSearcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func commenterFromQuery(query string) string {
	for _, term := range strings.Fields(query) {
		if user, ok := strings.CutPrefix(term, "commenter:"); ok {
			return user
		}
	}
	return ""
}

type fakeCommentLister struct {
	mu       sync.Mutex
	results  map[string]githubapi.IssueCommentsResult
	errors   map[string]error
	sinces   []time.Time
	maxPages []int
}

func (f *fakeCommentLister) ListIssueComments(_ context.Context, commentsURL string, since time.Time, maxPages int) (githubapi.IssueCommentsResult, error) {
	f.mu.Lock()
	f.sinces = append(f.sinces, since)
	f.maxPages = append(f.maxPages, maxPages)
	f.mu.Unlock()

	if err, ok := f.errors[commentsURL]; ok {
		return githubapi.IssueCommentsResult{}, err
	}
	if result, ok := f.results[commentsURL]; ok {
		return result, nil
	}
	return githubapi.IssueCommentsResult{Status: githubapi.EndpointStatusOK, StatusCode: 200}, nil
}

type fakeMemberLister struct {
	mu        sync.Mutex
	result    githubapi.OrgMembersResult
	err       error
	callCount int
	tokens    []string
}

func (f *fakeMemberLister) ListOrgMembers(ctx context.Context, _ string, _ int) (githubapi.OrgMembersResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callCount++
	f.tokens = append(f.tokens, githubapi.TokenFromContext(ctx))
	return f.result, f.err
}

type fakeCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	ttls    map[string]time.Duration
	getErr  error
}

func newFakeCache() *fakeCache {
	return &fakeCache{
		entries: make(map[string][]byte),
		ttls:    make(map[string]time.Duration),
	}
}

func (c *fakeCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.getErr != nil {
		return nil, false, c.getErr
	}
	value, ok := c.entries[key]
	return value, ok, nil
}

func (c *fakeCache) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = value
	c.ttls[key] = ttl
	return nil
}

type fakeRecorder struct {
	mu       sync.Mutex
	requests map[string]int
	reports  []string
	failures []string
}

func (r *fakeRecorder) ObserveGitHubRequest(endpoint, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.requests == nil {
		r.requests = make(map[string]int)
	}
	r.requests[endpoint+"/"+status]++
}

func (r *fakeRecorder) ObserveReport(outcome string, _ int, _ time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reports = append(r.reports, outcome)
}

func (r *fakeRecorder) ObserveUserFailure(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, reason)
}

func trackedComment(id int64, user string, hours float64, createdAt string) githubapi.IssueComment {
	created, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		panic(err)
	}
	return githubapi.IssueComment{
		ID:        id,
		User:      user,
		Body:      fmt.Sprintf("⏱️ **Time Tracked:** %v Hours\n\nwork", hours),
		HTMLURL:   fmt.Sprintf("https://github.com/acme/api/issues/1#issuecomment-%d", id),
		CreatedAt: created.UTC(),
	}
}
