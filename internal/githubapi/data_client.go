package githubapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	defaultGitHubAPIBaseURL = "https://api.github.com/"
	maxErrorBodyBytes       = 64 << 10
)

// EndpointStatus represents a normalized GitHub API endpoint outcome.
type EndpointStatus string

const (
	// EndpointStatusOK indicates a successful response.
	EndpointStatusOK EndpointStatus = "ok"
	// EndpointStatusForbidden indicates authorization failure, restricted access or a rate limit.
	EndpointStatusForbidden EndpointStatus = "forbidden"
	// EndpointStatusNotFound indicates the resource does not exist or is hidden.
	EndpointStatusNotFound EndpointStatus = "not_found"
	// EndpointStatusUnprocessable indicates request validation/processing failure, like a malformed search query.
	EndpointStatusUnprocessable EndpointStatus = "unprocessable"
	// EndpointStatusRateLimited indicates the response was rejected by a primary or secondary rate limit.
	EndpointStatusRateLimited EndpointStatus = "rate_limited"
	// EndpointStatusUnavailable indicates a temporary service-side failure.
	EndpointStatusUnavailable EndpointStatus = "unavailable"
	// EndpointStatusUnknown indicates an unclassified non-success status.
	EndpointStatusUnknown EndpointStatus = "unknown"
)

// TransportError reports a request that never produced an HTTP response.
type TransportError struct {
	Op  string
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("%s request failed: %v", e.Op, e.Err)
}

func (e *TransportError) Unwrap() error {
	return e.Err
}

// ErrForeignHost is returned when a GitHub-provided URL points outside the configured API host.
var ErrForeignHost = errors.New("url does not match the configured github api host")

// Issue is one issue search hit.
type Issue struct {
	Number        int
	Title         string
	HTMLURL       string
	CommentsURL   string
	RepositoryURL string
	UpdatedAt     time.Time
}

// SearchIssuesResult is the typed result for `/search/issues`.
type SearchIssuesResult struct {
	Status            EndpointStatus
	StatusCode        int
	Message           string
	TotalCount        int
	IncompleteResults bool
	Issues            []Issue
	Metadata          CallMetadata
}

// IssueComment is one issue comment.
type IssueComment struct {
	ID        int64
	User      string
	Body      string
	HTMLURL   string
	CreatedAt time.Time
}

// IssueCommentsResult is the typed result for listing one issue's comments.
type IssueCommentsResult struct {
	Status     EndpointStatus
	StatusCode int
	Message    string
	Comments   []IssueComment
	Truncated  bool
	Metadata   CallMetadata
}

// RepositoryPermissions are the caller's permissions on a repository.
type RepositoryPermissions struct {
	Admin    bool
	Maintain bool
	Push     bool
	Triage   bool
	Pull     bool
}

// Repository is one GitHub repository as seen by the calling token.
type Repository struct {
	Name        string
	FullName    string
	Private     bool
	Permissions *RepositoryPermissions
}

// RepositoryResult is the typed result for `/repos/{owner}/{repo}`.
type RepositoryResult struct {
	Status     EndpointStatus
	StatusCode int
	Message    string
	Repository Repository
	Metadata   CallMetadata
}

// Member is one organization member.
type Member struct {
	Login     string
	AvatarURL string
}

// OrgMembersResult is the typed result for `/orgs/{org}/members`.
type OrgMembersResult struct {
	Status     EndpointStatus
	StatusCode int
	Message    string
	Members    []Member
	Truncated  bool
	Metadata   CallMetadata
}

// DataClient is a typed GitHub REST data client for the time report endpoints.
type DataClient struct {
	baseURL       *url.URL
	requestClient *Client
}

// NewDataClient creates a typed data client over the generic retry/rate-limit request client.
func NewDataClient(baseURL string, requestClient *Client) (*DataClient, error) {
	if requestClient == nil {
		return nil, fmt.Errorf("request client is required")
	}

	parsed, err := parseAPIBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	return &DataClient{
		baseURL:       parsed,
		requestClient: requestClient,
	}, nil
}

// SearchIssues runs one issue search and returns the first page of up to 100 hits,
// most recently updated first.
func (c *DataClient) SearchIssues(ctx context.Context, query string) (SearchIssuesResult, error) {
	trimmedQuery := strings.TrimSpace(query)
	if trimmedQuery == "" {
		return SearchIssuesResult{}, fmt.Errorf("search query is required")
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "search", "issues")
	params := reqURL.Query()
	params.Set("q", trimmedQuery)
	params.Set("per_page", "100")
	params.Set("sort", "updated")
	params.Set("order", "desc")
	reqURL.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return SearchIssuesResult{}, fmt.Errorf("build search issues request: %w", err)
	}

	resp, metadata, err := c.requestClient.Do(req)
	result := SearchIssuesResult{
		Status:   EndpointStatusOK,
		Metadata: metadata,
	}
	if err != nil {
		return result, &TransportError{Op: "search issues", Err: err}
	}
	if resp == nil {
		return result, &TransportError{Op: "search issues", Err: fmt.Errorf("nil response")}
	}

	result.StatusCode = resp.StatusCode
	status := classifyResponse(resp.StatusCode, metadata)
	if status != EndpointStatusOK {
		result.Status = status
		result.Message = readErrorMessage(resp)
		return result, nil
	}

	var payload searchIssuesPayload
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return result, fmt.Errorf("decode search issues response: %w", err)
	}

	result.TotalCount = payload.TotalCount
	result.IncompleteResults = payload.IncompleteResults
	for _, item := range payload.Items {
		result.Issues = append(result.Issues, Issue{
			Number:        item.Number,
			Title:         item.Title,
			HTMLURL:       item.HTMLURL,
			CommentsURL:   item.CommentsURL,
			RepositoryURL: item.RepositoryURL,
			UpdatedAt:     parseRFC3339(item.UpdatedAt),
		})
	}
	return result, nil
}

// ListIssueComments lists the comments behind a search hit's comments URL, starting at since.
// maxPages caps pagination; zero or less follows every page.
func (c *DataClient) ListIssueComments(ctx context.Context, commentsURL string, since time.Time, maxPages int) (IssueCommentsResult, error) {
	baseCommentsURL, err := c.resolveAPIURL(commentsURL)
	if err != nil {
		return IssueCommentsResult{}, err
	}

	result := IssueCommentsResult{
		Status: EndpointStatusOK,
	}
	page := 1
	for {
		reqURL := *baseCommentsURL
		query := reqURL.Query()
		query.Set("per_page", "100")
		query.Set("page", strconv.Itoa(page))
		if !since.IsZero() {
			query.Set("since", since.UTC().Format(time.RFC3339))
		}
		reqURL.RawQuery = query.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return IssueCommentsResult{}, fmt.Errorf("build list issue comments request: %w", err)
		}

		resp, metadata, err := c.requestClient.Do(req)
		result.Metadata = mergeMetadata(result.Metadata, metadata)
		if err != nil {
			return result, &TransportError{Op: "list issue comments", Err: err}
		}
		if resp == nil {
			return result, &TransportError{Op: "list issue comments", Err: fmt.Errorf("nil response")}
		}

		result.StatusCode = resp.StatusCode
		status := classifyResponse(resp.StatusCode, metadata)
		if status != EndpointStatusOK {
			result.Status = status
			result.Message = readErrorMessage(resp)
			return result, nil
		}

		var payload []issueCommentPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return result, fmt.Errorf("decode list issue comments response: %w", err)
		}

		for _, comment := range payload {
			typed := IssueComment{
				ID:        comment.ID,
				Body:      comment.Body,
				HTMLURL:   comment.HTMLURL,
				CreatedAt: parseRFC3339(comment.CreatedAt),
			}
			if comment.User != nil {
				typed.User = comment.User.Login
			}
			result.Comments = append(result.Comments, typed)
		}

		if len(payload) == 0 || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		if maxPages > 0 && page >= maxPages {
			result.Truncated = true
			break
		}
		page++
	}

	return result, nil
}

// GetRepository reads repository metadata, including the caller's permissions block.
func (c *DataClient) GetRepository(ctx context.Context, owner, repo string) (RepositoryResult, error) {
	trimmedOwner := strings.TrimSpace(owner)
	trimmedRepo := strings.TrimSpace(repo)
	if trimmedOwner == "" {
		return RepositoryResult{}, fmt.Errorf("owner is required")
	}
	if trimmedRepo == "" {
		return RepositoryResult{}, fmt.Errorf("repo is required")
	}

	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "repos", url.PathEscape(trimmedOwner), url.PathEscape(trimmedRepo))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return RepositoryResult{}, fmt.Errorf("build get repository request: %w", err)
	}

	resp, metadata, err := c.requestClient.Do(req)
	result := RepositoryResult{
		Status:   EndpointStatusOK,
		Metadata: metadata,
	}
	if err != nil {
		return result, &TransportError{Op: "get repository", Err: err}
	}
	if resp == nil {
		return result, &TransportError{Op: "get repository", Err: fmt.Errorf("nil response")}
	}

	result.StatusCode = resp.StatusCode
	status := classifyResponse(resp.StatusCode, metadata)
	if status != EndpointStatusOK {
		result.Status = status
		result.Message = readErrorMessage(resp)
		return result, nil
	}

	var payload repositoryPayload
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return result, fmt.Errorf("decode get repository response: %w", err)
	}

	result.Repository = Repository{
		Name:     payload.Name,
		FullName: payload.FullName,
		Private:  payload.Private,
	}
	if payload.Permissions != nil {
		perms := RepositoryPermissions(*payload.Permissions)
		result.Repository.Permissions = &perms
	}
	return result, nil
}

// RateLimitResult is the typed result for `/rate_limit`.
type RateLimitResult struct {
	Status     EndpointStatus
	StatusCode int
	Remaining  int
	Limit      int
	ResetUnix  int64
	Metadata   CallMetadata
}

type rateLimitPayload struct {
	Resources struct {
		Core struct {
			Limit     int   `json:"limit"`
			Remaining int   `json:"remaining"`
			Reset     int64 `json:"reset"`
		} `json:"core"`
	} `json:"resources"`
}

// GetRateLimit reads the core rate-limit bucket. GitHub does not count this call against the limit,
// so it doubles as a reachability probe.
func (c *DataClient) GetRateLimit(ctx context.Context) (RateLimitResult, error) {
	reqURL := c.cloneBaseURL()
	reqURL.Path = joinURLPath(reqURL.Path, "rate_limit")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
	if err != nil {
		return RateLimitResult{}, fmt.Errorf("build rate limit request: %w", err)
	}

	resp, metadata, err := c.requestClient.Do(req)
	result := RateLimitResult{
		Status:   EndpointStatusOK,
		Metadata: metadata,
	}
	if err != nil {
		return result, &TransportError{Op: "get rate limit", Err: err}
	}
	if resp == nil {
		return result, &TransportError{Op: "get rate limit", Err: fmt.Errorf("nil response")}
	}

	result.StatusCode = resp.StatusCode
	status := classifyResponse(resp.StatusCode, metadata)
	if status != EndpointStatusOK {
		result.Status = status
		_ = readErrorMessage(resp)
		return result, nil
	}

	var payload rateLimitPayload
	if err := decodeJSONAndClose(resp, &payload); err != nil {
		return result, fmt.Errorf("decode rate limit response: %w", err)
	}
	result.Limit = payload.Resources.Core.Limit
	result.Remaining = payload.Resources.Core.Remaining
	result.ResetUnix = payload.Resources.Core.Reset
	return result, nil
}

// ListOrgMembers lists members of one organization visible to the caller.
// maxPages caps pagination; zero or less follows every page.
func (c *DataClient) ListOrgMembers(ctx context.Context, org string, maxPages int) (OrgMembersResult, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return OrgMembersResult{}, fmt.Errorf("organization is required")
	}

	result := OrgMembersResult{
		Status: EndpointStatusOK,
	}
	page := 1
	for {
		reqURL := c.cloneBaseURL()
		reqURL.Path = joinURLPath(reqURL.Path, "orgs", url.PathEscape(trimmedOrg), "members")
		query := reqURL.Query()
		query.Set("per_page", "100")
		query.Set("page", strconv.Itoa(page))
		reqURL.RawQuery = query.Encode()

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL.String(), nil)
		if err != nil {
			return OrgMembersResult{}, fmt.Errorf("build list org members request: %w", err)
		}

		resp, metadata, err := c.requestClient.Do(req)
		result.Metadata = mergeMetadata(result.Metadata, metadata)
		if err != nil {
			return result, &TransportError{Op: "list org members", Err: err}
		}
		if resp == nil {
			return result, &TransportError{Op: "list org members", Err: fmt.Errorf("nil response")}
		}

		result.StatusCode = resp.StatusCode
		status := classifyResponse(resp.StatusCode, metadata)
		if status != EndpointStatusOK {
			result.Status = status
			result.Message = readErrorMessage(resp)
			return result, nil
		}

		var payload []userPayload
		if err := decodeJSONAndClose(resp, &payload); err != nil {
			return result, fmt.Errorf("decode list org members response: %w", err)
		}

		for _, member := range payload {
			result.Members = append(result.Members, Member(member))
		}

		if len(payload) == 0 || !hasNextPage(resp.Header.Get("Link")) {
			break
		}
		if maxPages > 0 && page >= maxPages {
			result.Truncated = true
			break
		}
		page++
	}

	return result, nil
}

func parseAPIBaseURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		trimmed = defaultGitHubAPIBaseURL
	}

	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse github api base url: %w", err)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("parse github api base url: missing scheme or host")
	}
	if !strings.HasSuffix(parsed.Path, "/") {
		parsed.Path += "/"
	}
	return parsed, nil
}

func (c *DataClient) cloneBaseURL() *url.URL {
	cloned := *c.baseURL
	return &cloned
}

// resolveAPIURL parses an absolute URL handed out by the API and rejects any other host,
// so the caller's token never leaves the configured API.
func (c *DataClient) resolveAPIURL(raw string) (*url.URL, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, fmt.Errorf("url is required")
	}
	parsed, err := url.Parse(trimmed)
	if err != nil {
		return nil, fmt.Errorf("parse api url: %w", err)
	}
	if !strings.EqualFold(parsed.Scheme, c.baseURL.Scheme) || !strings.EqualFold(parsed.Host, c.baseURL.Host) {
		return nil, fmt.Errorf("%w: %s", ErrForeignHost, parsed.Host)
	}
	return parsed, nil
}

func joinURLPath(base string, segments ...string) string {
	trimmedBase := strings.TrimSuffix(base, "/")
	builder := strings.Builder{}
	builder.WriteString(trimmedBase)
	for _, segment := range segments {
		builder.WriteString("/")
		builder.WriteString(strings.TrimPrefix(segment, "/"))
	}
	return builder.String()
}

func classifyResponse(statusCode int, metadata CallMetadata) EndpointStatus {
	if metadata.LastRateHeaders.Limited() {
		return EndpointStatusRateLimited
	}
	return endpointStatusFromHTTP(statusCode)
}

func endpointStatusFromHTTP(statusCode int) EndpointStatus {
	switch statusCode {
	case http.StatusForbidden:
		return EndpointStatusForbidden
	case http.StatusNotFound:
		return EndpointStatusNotFound
	case http.StatusUnprocessableEntity:
		return EndpointStatusUnprocessable
	case http.StatusTooManyRequests:
		return EndpointStatusRateLimited
	}
	if statusCode >= 200 && statusCode <= 299 {
		return EndpointStatusOK
	}
	if statusCode >= 500 {
		return EndpointStatusUnavailable
	}
	return EndpointStatusUnknown
}

// readErrorMessage drains and closes the body, returning the API's "message" field if present.
func readErrorMessage(resp *http.Response) string {
	if resp == nil || resp.Body == nil {
		return ""
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	var payload errorPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return ""
	}
	return strings.TrimSpace(payload.Message)
}

func decodeJSONAndClose(resp *http.Response, target any) error {
	defer resp.Body.Close()
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(target); err != nil {
		return err
	}
	return nil
}

func hasNextPage(linkHeader string) bool {
	if strings.TrimSpace(linkHeader) == "" {
		return false
	}
	parts := strings.Split(linkHeader, ",")
	for _, part := range parts {
		if strings.Contains(part, `rel="next"`) {
			return true
		}
	}
	return false
}

func parseRFC3339(raw string) time.Time {
	parsed, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}
	}
	return parsed.UTC()
}

func mergeMetadata(current CallMetadata, incoming CallMetadata) CallMetadata {
	current.Attempts += incoming.Attempts
	current.LastDecision = incoming.LastDecision
	current.LastRateHeaders = incoming.LastRateHeaders
	return current
}

type errorPayload struct {
	Message string `json:"message"`
}

type searchIssuesPayload struct {
	TotalCount        int                `json:"total_count"`
	IncompleteResults bool               `json:"incomplete_results"`
	Items             []issueItemPayload `json:"items"`
}

type issueItemPayload struct {
	Number        int    `json:"number"`
	Title         string `json:"title"`
	HTMLURL       string `json:"html_url"`
	CommentsURL   string `json:"comments_url"`
	RepositoryURL string `json:"repository_url"`
	UpdatedAt     string `json:"updated_at"`
}

type issueCommentPayload struct {
	ID        int64        `json:"id"`
	User      *userPayload `json:"user"`
	Body      string       `json:"body"`
	HTMLURL   string       `json:"html_url"`
	CreatedAt string       `json:"created_at"`
}

type repositoryPayload struct {
	Name        string              `json:"name"`
	FullName    string              `json:"full_name"`
	Private     bool                `json:"private"`
	Permissions *permissionsPayload `json:"permissions"`
}

type permissionsPayload struct {
	Admin    bool `json:"admin"`
	Maintain bool `json:"maintain"`
	Push     bool `json:"push"`
	Triage   bool `json:"triage"`
	Pull     bool `json:"pull"`
}

type userPayload struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatar_url"`
}
