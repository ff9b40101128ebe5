package report

import (
	"context"
	"strings"
	"time"

	"github.com/cam3ron2/timetrack/internal/calendar"
	"github.com/cam3ron2/timetrack/internal/githubapi"
	"github.com/cam3ron2/timetrack/internal/timelog"
	"go.uber.org/zap"
)

// CommentLister lists one issue's comments through its API comments URL.
type CommentLister interface {
	ListIssueComments(ctx context.Context, commentsURL string, since time.Time, maxPages int) (githubapi.IssueCommentsResult, error)
}

// CommentFetcher turns an issue's comments into one user's time entries.
type CommentFetcher struct {
	comments CommentLister
	maxPages int
	logger   *zap.Logger
	recorder Recorder
}

// NewCommentFetcher creates a fetcher. maxPages caps comment pagination per issue; zero follows every page.
func NewCommentFetcher(comments CommentLister, maxPages int, logger *zap.Logger, recorder Recorder) *CommentFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CommentFetcher{
		comments: comments,
		maxPages: maxPages,
		logger:   logger,
		recorder: recorder,
	}
}

// FetchMatching returns username's tracked time comments on one issue that were created inside window.
// Failures are logged and yield no entries, so one bad issue never fails a report.
func (f *CommentFetcher) FetchMatching(ctx context.Context, commentsURL, username string, window calendar.Window) []TimeEntry {
	result, err := f.comments.ListIssueComments(ctx, commentsURL, window.From, f.maxPages)
	if err != nil {
		observeRequest(f.recorder, "list_issue_comments", "error")
		f.logger.Warn(
			"fetch issue comments failed",
			zap.String("comments_url", commentsURL),
			zap.Error(err),
		)
		return nil
	}
	observeRequest(f.recorder, "list_issue_comments", string(result.Status))
	if result.Status != githubapi.EndpointStatusOK {
		f.logger.Warn(
			"fetch issue comments returned non-success status",
			zap.String("comments_url", commentsURL),
			zap.Int("status_code", result.StatusCode),
			zap.String("status", string(result.Status)),
		)
		return nil
	}
	if result.Truncated {
		f.logger.Warn(
			"issue comments truncated at page cap",
			zap.String("comments_url", commentsURL),
			zap.Int("max_pages", f.maxPages),
		)
	}

	return filterEntries(result.Comments, username, window)
}

func filterEntries(comments []githubapi.IssueComment, username string, window calendar.Window) []TimeEntry {
	var entries []TimeEntry
	for _, comment := range comments {
		// GitHub logins are case-insensitive.
		if !strings.EqualFold(comment.User, username) {
			continue
		}
		if !window.Contains(comment.CreatedAt) {
			continue
		}
		hours := timelog.DecodeHours(comment.Body)
		if hours <= 0 || hours > timelog.MaxHours {
			continue
		}
		entries = append(entries, TimeEntry{
			Date:       window.LocalDate(comment.CreatedAt),
			Hours:      hours,
			RawComment: comment.Body,
			URL:        comment.HTMLURL,
			CreatedAt:  comment.CreatedAt,
		})
	}
	return entries
}
