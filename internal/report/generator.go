// Package report builds per-user time reports from tracked time comments on GitHub issues.
package report

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cam3ron2/timetrack/internal/calendar"
	"github.com/cam3ron2/timetrack/internal/githubapi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	defaultUserConcurrency  = 4
	defaultIssueConcurrency = 8
)

// Searcher runs issue searches as the token carried in ctx.
type Searcher interface {
	SearchIssues(ctx context.Context, query string) (githubapi.SearchIssuesResult, error)
}

// Recorder observes report generation. Implementations must be safe for concurrent use.
type Recorder interface {
	ObserveGitHubRequest(endpoint, status string)
	ObserveReport(outcome string, users int, duration time.Duration)
	ObserveUserFailure(reason string)
}

// GeneratorConfig tunes report fan-out.
type GeneratorConfig struct {
	Keyword          string
	UserConcurrency  int
	IssueConcurrency int
}

// Request describes one report.
type Request struct {
	Users    []string
	Org      string
	Repo     string
	Start    string
	End      string
	Token    string
	Location *time.Location
}

// Generator composes search, comment fetch and aggregation per user.
type Generator struct {
	search   Searcher
	fetcher  *CommentFetcher
	members  *MemberResolver
	cfg      GeneratorConfig
	logger   *zap.Logger
	recorder Recorder
}

type userOutcome struct {
	entries   []TimeEntry
	truncated bool
	err       error
}

// NewGenerator creates a report generator.
func NewGenerator(search Searcher, fetcher *CommentFetcher, members *MemberResolver, cfg GeneratorConfig, logger *zap.Logger, recorder Recorder) (*Generator, error) {
	if search == nil {
		return nil, fmt.Errorf("issue searcher is required")
	}
	if fetcher == nil {
		return nil, fmt.Errorf("comment fetcher is required")
	}
	if members == nil {
		return nil, fmt.Errorf("member resolver is required")
	}
	if cfg.UserConcurrency <= 0 {
		cfg.UserConcurrency = defaultUserConcurrency
	}
	if cfg.IssueConcurrency <= 0 {
		cfg.IssueConcurrency = defaultIssueConcurrency
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		search:   search,
		fetcher:  fetcher,
		members:  members,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// Generate validates the request, resolves users and builds their reports.
// A request naming exactly one user yields Result.Single and that user's error, if any.
// Any other request yields Result.Multi with failures isolated per user; an error is only
// returned when every user failed.
func (g *Generator) Generate(ctx context.Context, req Request) (Result, error) {
	startedAt := time.Now()

	org := strings.TrimSpace(req.Org)
	if org == "" {
		g.observeReport("invalid", 0, startedAt)
		return Result{}, &calendar.ValidationError{Message: "Organization is required"}
	}
	if err := calendar.ValidateRange(req.Start, req.End).Err(); err != nil {
		g.observeReport("invalid", 0, startedAt)
		return Result{}, err
	}
	window, err := calendar.NewNormalizer(req.Location).Window(req.Start, req.End)
	if err != nil {
		g.observeReport("invalid", 0, startedAt)
		return Result{}, &calendar.ValidationError{Message: err.Error()}
	}

	requested := dedupeUsers(req.Users)
	var collaborators []Collaborator
	if len(requested) == 0 {
		collaborators, err = g.members.ListMembers(ctx, org, req.Token)
		if err != nil {
			g.observeReport("error", 0, startedAt)
			return Result{}, err
		}
	} else {
		for _, username := range requested {
			collaborators = append(collaborators, Collaborator{Login: username})
		}
	}

	ctx = githubapi.ContextWithToken(ctx, req.Token)
	outcomes := g.runUsers(ctx, collaborators, org, strings.TrimSpace(req.Repo), window)
	if err := ctx.Err(); err != nil {
		g.observeReport("canceled", len(collaborators), startedAt)
		return Result{}, err
	}

	if len(requested) == 1 {
		outcome := outcomes[0]
		if outcome.err != nil {
			g.observeReport("error", 1, startedAt)
			return Result{}, outcome.err
		}
		single := NewAggregatedReport(collaborators[0].Login, collaborators[0].AvatarURL, outcome.entries)
		single.Truncated = outcome.truncated
		g.observeReport("single", 1, startedAt)
		return Result{Single: single}, nil
	}

	users := make([]UserReport, 0, len(collaborators))
	var failures []error
	for i, collaborator := range collaborators {
		outcome := outcomes[i]
		userReport := UserReport{
			Username:  collaborator.Login,
			AvatarURL: collaborator.AvatarURL,
			Comments:  []TimeEntry{},
		}
		if outcome.err != nil {
			userReport.Error = outcome.err.Error()
			failures = append(failures, fmt.Errorf("%s: %w", collaborator.Login, outcome.err))
		} else {
			aggregated := NewAggregatedReport(collaborator.Login, collaborator.AvatarURL, outcome.entries)
			aggregated.Truncated = outcome.truncated
			userReport.Report = aggregated
			if outcome.entries != nil {
				userReport.Comments = outcome.entries
			}
		}
		users = append(users, userReport)
	}

	if len(collaborators) > 0 && len(failures) == len(collaborators) {
		g.observeReport("error", len(collaborators), startedAt)
		return Result{}, errors.Join(failures...)
	}

	g.observeReport("multi", len(collaborators), startedAt)
	return Result{Multi: NewMultiUserReport(users)}, nil
}

func (g *Generator) runUsers(ctx context.Context, collaborators []Collaborator, org, repo string, window calendar.Window) []userOutcome {
	outcomes := make([]userOutcome, len(collaborators))
	if len(collaborators) == 0 {
		return outcomes
	}

	workerCount := min(g.cfg.UserConcurrency, len(collaborators))
	jobs := make(chan int, len(collaborators))

	var wg sync.WaitGroup
	for range workerCount {
		wg.Go(func() {
			for idx := range jobs {
				outcomes[idx] = g.fetchUser(ctx, collaborators[idx].Login, org, repo, window)
			}
		})
	}

	for idx := range collaborators {
		jobs <- idx
	}
	close(jobs)
	wg.Wait()

	return outcomes
}

func (g *Generator) fetchUser(ctx context.Context, username, org, repo string, window calendar.Window) userOutcome {
	if err := ctx.Err(); err != nil {
		return userOutcome{err: err}
	}

	query := BuildSearchQuery(QueryParams{
		Username: username,
		Org:      org,
		Repo:     repo,
		Keyword:  g.cfg.Keyword,
		Start:    window.StartDate,
		End:      window.EndDate,
	})

	searchResult, err := g.search.SearchIssues(ctx, query)
	if err != nil {
		observeRequest(g.recorder, "search_issues", "error")
		g.observeUserFailure(username, "transport", err)
		return userOutcome{err: fmt.Errorf("search issues: %w", err)}
	}
	observeRequest(g.recorder, "search_issues", string(searchResult.Status))
	if searchResult.Status != githubapi.EndpointStatusOK {
		failure := classifyFailure(searchResult.StatusCode, searchResult.Status, searchResult.Message, "API access error", "Error searching comments")
		reason := "api_error"
		if errors.Is(failure, ErrRateLimited) {
			reason = "rate_limited"
		}
		g.observeUserFailure(username, reason, failure)
		return userOutcome{err: failure}
	}

	truncated := searchResult.TotalCount > len(searchResult.Issues) || searchResult.IncompleteResults
	if truncated {
		g.logger.Warn(
			"issue search truncated to first page",
			zap.String("user", username),
			zap.String("org", org),
			zap.Int("total_count", searchResult.TotalCount),
			zap.Int("returned", len(searchResult.Issues)),
		)
	}

	perIssue := make([][]TimeEntry, len(searchResult.Issues))
	var group errgroup.Group
	group.SetLimit(g.cfg.IssueConcurrency)
	for idx, issue := range searchResult.Issues {
		group.Go(func() error {
			perIssue[idx] = g.fetcher.FetchMatching(ctx, issue.CommentsURL, username, window)
			return nil
		})
	}
	_ = group.Wait()

	var entries []TimeEntry
	for _, issueEntries := range perIssue {
		entries = append(entries, issueEntries...)
	}
	return userOutcome{
		entries:   entries,
		truncated: truncated,
	}
}

func (g *Generator) observeUserFailure(username, reason string, err error) {
	g.logger.Warn(
		"user report failed",
		zap.String("user", username),
		zap.String("reason", reason),
		zap.Error(err),
	)
	if g.recorder != nil {
		g.recorder.ObserveUserFailure(reason)
	}
}

func (g *Generator) observeReport(outcome string, users int, startedAt time.Time) {
	if g.recorder != nil {
		g.recorder.ObserveReport(outcome, users, time.Since(startedAt))
	}
}

func observeRequest(recorder Recorder, endpoint, status string) {
	if recorder != nil {
		recorder.ObserveGitHubRequest(endpoint, status)
	}
}

func dedupeUsers(users []string) []string {
	seen := make(map[string]struct{}, len(users))
	deduped := make([]string, 0, len(users))
	for _, user := range users {
		trimmed := strings.TrimSpace(user)
		if trimmed == "" {
			continue
		}
		key := strings.ToLower(trimmed)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, trimmed)
	}
	return deduped
}
