// Package permission decides whether a token may log time on a repository.
package permission

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/cam3ron2/timetrack/internal/githubapi"
	"go.uber.org/zap"
)

// Reason classifies a permission check outcome.
type Reason string

const (
	// ReasonGranted means the token has push access.
	ReasonGranted Reason = "granted"
	// ReasonNetworkError means no usable response was received.
	ReasonNetworkError Reason = "network_error"
	// ReasonNotFound means the repository is missing or hidden from the token.
	ReasonNotFound Reason = "not_found"
	// ReasonForbidden means the API refused the request, including rate limits.
	ReasonForbidden Reason = "forbidden"
	// ReasonHTTPError means any other non-success status.
	ReasonHTTPError Reason = "http_error"
	// ReasonReadOnly means the repository is readable but not writable.
	ReasonReadOnly Reason = "read_only"
)

const (
	msgNotFound         = "Repository not found or you don't have read access to it."
	msgForbiddenDefault = "Your token doesn't have access to this repository."
	msgReadOnly         = "Your token has read-only access. Write permission is required to log time."
)

// Result is an access decision. Error is empty when HasAccess is true.
type Result struct {
	HasAccess bool   `json:"hasAccess"`
	Error     string `json:"error,omitempty"`
	Reason    Reason `json:"reason"`
}

// RepositoryReader reads repository metadata as seen by the token carried in ctx.
type RepositoryReader interface {
	GetRepository(ctx context.Context, owner, repo string) (githubapi.RepositoryResult, error)
}

// Recorder observes permission check outcomes.
type Recorder interface {
	ObservePermissionCheck(reason string)
}

// Validator classifies repository metadata into an access decision.
type Validator struct {
	repos    RepositoryReader
	logger   *zap.Logger
	recorder Recorder
}

// NewValidator creates a permission validator.
func NewValidator(repos RepositoryReader, logger *zap.Logger, recorder Recorder) *Validator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Validator{
		repos:    repos,
		logger:   logger,
		recorder: recorder,
	}
}

// Check never returns an error: every failure class maps onto a Result.
func (v *Validator) Check(ctx context.Context, owner, repo, token string) Result {
	result := v.check(ctx, owner, repo, token)
	if v.recorder != nil {
		v.recorder.ObservePermissionCheck(string(result.Reason))
	}
	if !result.HasAccess {
		v.logger.Debug(
			"repository access denied",
			zap.String("owner", owner),
			zap.String("repo", repo),
			zap.String("reason", string(result.Reason)),
		)
	}
	return result
}

func (v *Validator) check(ctx context.Context, owner, repo, token string) Result {
	if v.repos == nil {
		return networkError(fmt.Errorf("repository reader is not configured"))
	}

	resp, err := v.repos.GetRepository(githubapi.ContextWithToken(ctx, token), owner, repo)
	if err != nil {
		var transportErr *githubapi.TransportError
		if errors.As(err, &transportErr) {
			return networkError(transportErr.Err)
		}
		return networkError(err)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Result{Error: msgNotFound, Reason: ReasonNotFound}
	case resp.StatusCode == http.StatusForbidden:
		message := resp.Message
		if message == "" {
			message = msgForbiddenDefault
		}
		return Result{Error: "Access forbidden: " + message, Reason: ReasonForbidden}
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return Result{
			Error:  fmt.Sprintf("Error checking permissions: %d", resp.StatusCode),
			Reason: ReasonHTTPError,
		}
	}

	perms := resp.Repository.Permissions
	if perms == nil || !perms.Push {
		return Result{Error: msgReadOnly, Reason: ReasonReadOnly}
	}
	return Result{HasAccess: true, Reason: ReasonGranted}
}

func networkError(err error) Result {
	return Result{
		Error:  "Network error: " + err.Error(),
		Reason: ReasonNetworkError,
	}
}
