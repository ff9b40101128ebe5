package timelog

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/cam3ron2/timetrack/internal/githubapi"
	"github.com/cam3ron2/timetrack/internal/permission"
	"github.com/google/go-github/v75/github"
	"go.uber.org/zap"
)

// AccessChecker decides whether a token may write to a repository.
type AccessChecker interface {
	Check(ctx context.Context, owner, repo, token string) permission.Result
}

// ClientFactory builds a go-github client acting as the token's user.
type ClientFactory func(ctx context.Context, token string) (*github.Client, error)

// Recorder observes logged time.
type Recorder interface {
	ObserveTimeLogged(hours float64)
}

// LogRequest is one time entry to record on an issue.
type LogRequest struct {
	Owner       string
	Repo        string
	Number      int
	Hours       float64
	Description string
	Token       string
}

// LoggedComment describes the comment created for a time entry.
type LoggedComment struct {
	ID      int64   `json:"id"`
	HTMLURL string  `json:"url"`
	Body    string  `json:"body"`
	Hours   float64 `json:"hours"`
}

// Identity is the user a token authenticates as.
type Identity struct {
	Login     string `json:"login"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatarUrl,omitempty"`
	HTMLURL   string `json:"url,omitempty"`
}

// InputError reports a log request that was rejected before any API call.
type InputError struct {
	Message string
}

func (e *InputError) Error() string {
	return e.Message
}

// AccessError reports a permission check that did not grant write access.
type AccessError struct {
	Result permission.Result
}

func (e *AccessError) Error() string {
	return e.Result.Error
}

// Service writes tracked time to issues.
type Service struct {
	access   AccessChecker
	clients  ClientFactory
	logger   *zap.Logger
	recorder Recorder
}

// NewService creates a time logging service.
func NewService(access AccessChecker, clients ClientFactory, logger *zap.Logger, recorder Recorder) (*Service, error) {
	if access == nil {
		return nil, fmt.Errorf("access checker is required")
	}
	if clients == nil {
		return nil, fmt.Errorf("client factory is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		access:   access,
		clients:  clients,
		logger:   logger,
		recorder: recorder,
	}, nil
}

// TokenClientFactory returns a ClientFactory that authenticates with the caller's token against apiBaseURL.
func TokenClientFactory(apiBaseURL string) ClientFactory {
	return func(ctx context.Context, token string) (*github.Client, error) {
		rest, err := githubapi.NewTokenRESTClient(ctx, githubapi.TokenAuthConfig{Token: token}, apiBaseURL)
		if err != nil {
			return nil, err
		}
		return rest.Client, nil
	}
}

// LogTime checks write access and then posts the tracked time comment.
func (s *Service) LogTime(ctx context.Context, req LogRequest) (LoggedComment, error) {
	owner := strings.TrimSpace(req.Owner)
	repo := strings.TrimSpace(req.Repo)
	if owner == "" || repo == "" {
		return LoggedComment{}, &InputError{Message: "owner and repo are required"}
	}
	if req.Number <= 0 {
		return LoggedComment{}, &InputError{Message: "issue number must be > 0"}
	}
	if err := ValidateHours(req.Hours); err != nil {
		return LoggedComment{}, &InputError{Message: err.Error()}
	}

	access := s.access.Check(ctx, owner, repo, req.Token)
	if !access.HasAccess {
		return LoggedComment{}, &AccessError{Result: access}
	}

	client, err := s.clients(ctx, req.Token)
	if err != nil {
		return LoggedComment{}, fmt.Errorf("create github client: %w", err)
	}

	body := FormatComment(req.Hours, req.Description)
	comment, _, err := client.Issues.CreateComment(ctx, owner, repo, req.Number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return LoggedComment{}, fmt.Errorf("create issue comment: %w", err)
	}

	if s.recorder != nil {
		s.recorder.ObserveTimeLogged(req.Hours)
	}
	s.logger.Info(
		"time logged",
		zap.String("owner", owner),
		zap.String("repo", repo),
		zap.Int("issue", req.Number),
		zap.Float64("hours", req.Hours),
	)

	return LoggedComment{
		ID:      comment.GetID(),
		HTMLURL: comment.GetHTMLURL(),
		Body:    comment.GetBody(),
		Hours:   req.Hours,
	}, nil
}

// WhoAmI resolves the user behind token.
func (s *Service) WhoAmI(ctx context.Context, token string) (Identity, error) {
	client, err := s.clients(ctx, token)
	if err != nil {
		return Identity{}, fmt.Errorf("create github client: %w", err)
	}
	user, _, err := client.Users.Get(ctx, "")
	if err != nil {
		return Identity{}, fmt.Errorf("get authenticated user: %w", err)
	}
	return Identity{
		Login:     user.GetLogin(),
		Name:      user.GetName(),
		AvatarURL: user.GetAvatarURL(),
		HTMLURL:   user.GetHTMLURL(),
	}, nil
}

// ParseIssueRef splits "owner/repo#number".
func ParseIssueRef(ref string) (owner, repo string, number int, err error) {
	repoPart, numberPart, ok := strings.Cut(strings.TrimSpace(ref), "#")
	if !ok {
		return "", "", 0, fmt.Errorf("issue reference %q must look like owner/repo#number", ref)
	}
	owner, repo, err = ParseRepoRef(repoPart)
	if err != nil {
		return "", "", 0, err
	}
	number, err = strconv.Atoi(numberPart)
	if err != nil || number <= 0 {
		return "", "", 0, fmt.Errorf("issue reference %q has an invalid issue number", ref)
	}
	return owner, repo, number, nil
}

// ParseRepoRef splits "owner/repo".
func ParseRepoRef(ref string) (owner, repo string, err error) {
	owner, repo, ok := strings.Cut(strings.TrimSpace(ref), "/")
	if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
		return "", "", fmt.Errorf("repository reference %q must look like owner/repo", ref)
	}
	return owner, repo, nil
}
