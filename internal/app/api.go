package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/cam3ron2/timetrack/internal/calendar"
	"github.com/cam3ron2/timetrack/internal/permission"
	"github.com/cam3ron2/timetrack/internal/report"
	"github.com/cam3ron2/timetrack/internal/timelog"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

const maxRequestBodyBytes = 64 << 10

// ReportGenerator builds time reports.
type ReportGenerator interface {
	Generate(ctx context.Context, req report.Request) (report.Result, error)
}

// MemberLister lists organization members.
type MemberLister interface {
	ListMembers(ctx context.Context, org, token string) ([]report.Collaborator, error)
}

// AccessChecker classifies a token's access to a repository.
type AccessChecker interface {
	Check(ctx context.Context, owner, repo, token string) permission.Result
}

// TimeLogger records tracked time on an issue.
type TimeLogger interface {
	LogTime(ctx context.Context, req timelog.LogRequest) (timelog.LoggedComment, error)
}

// APIDependencies are the domain services behind the HTTP API.
type APIDependencies struct {
	Reports  ReportGenerator
	Members  MemberLister
	Access   AccessChecker
	TimeLog  TimeLogger
	Location *time.Location
	Logger   *zap.Logger
	// Now is injected for deterministic default date ranges.
	Now func() time.Time
}

type api struct {
	deps     APIDependencies
	validate *validator.Validate
}

type reportQuery struct {
	Org      string   `validate:"required,max=100"`
	Repo     string   `validate:"omitempty,max=100"`
	Users    []string `validate:"max=100,dive,required,max=39"`
	Start    string
	End      string
	Timezone string   `validate:"omitempty,timezone"`
}

type logTimeBody struct {
	Hours       *float64 `json:"hours" validate:"required"`
	Description string   `json:"description" validate:"max=1000"`
}

type errorBody struct {
	Error string `json:"error"`
}

type tokenContextKey struct{}

// NewAPIHandler returns the /api/v1 router.
func NewAPIHandler(deps APIDependencies) (http.Handler, error) {
	if deps.Reports == nil {
		return nil, fmt.Errorf("report generator is required")
	}
	if deps.Members == nil {
		return nil, fmt.Errorf("member lister is required")
	}
	if deps.Access == nil {
		return nil, fmt.Errorf("access checker is required")
	}
	if deps.TimeLog == nil {
		return nil, fmt.Errorf("time logger is required")
	}
	if deps.Location == nil {
		deps.Location = time.Local
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	a := &api{
		deps:     deps,
		validate: validator.New(validator.WithRequiredStructEnabled()),
	}

	router := chi.NewRouter()
	router.Use(requireToken)
	router.Get("/reports", a.getReport)
	router.Get("/orgs/{org}/members", a.listMembers)
	router.Get("/repos/{owner}/{repo}/access", a.checkAccess)
	router.Post("/repos/{owner}/{repo}/issues/{number}/time", a.logTime)
	return router, nil
}

// requireToken rejects requests without a bearer token and stores the token for handlers.
func requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			writeJSON(w, http.StatusUnauthorized, errorBody{Error: "GitHub token is required"})
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), tokenContextKey{}, token)))
	})
}

func bearerToken(header string) string {
	scheme, value, ok := strings.Cut(strings.TrimSpace(header), " ")
	if !ok {
		return ""
	}
	if !strings.EqualFold(scheme, "bearer") && !strings.EqualFold(scheme, "token") {
		return ""
	}
	return strings.TrimSpace(value)
}

func tokenFrom(ctx context.Context) string {
	token, _ := ctx.Value(tokenContextKey{}).(string)
	return token
}

func (a *api) getReport(w http.ResponseWriter, r *http.Request) {
	values := r.URL.Query()
	query := reportQuery{
		Org:      strings.TrimSpace(values.Get("org")),
		Repo:     strings.TrimSpace(values.Get("repo")),
		Users:    splitUsers(values["user"]),
		Start:    strings.TrimSpace(values.Get("start")),
		End:      strings.TrimSpace(values.Get("end")),
		Timezone: strings.TrimSpace(values.Get("tz")),
	}
	if query.Org == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "Organization is required"})
		return
	}
	if err := a.validate.Struct(query); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validationMessage(err)})
		return
	}

	loc := a.deps.Location
	if query.Timezone != "" {
		resolved, err := calendar.ResolveLocation(query.Timezone)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: err.Error()})
			return
		}
		loc = resolved
	}
	if query.Start == "" && query.End == "" {
		defaults := calendar.DefaultRange(a.deps.Now(), loc)
		query.Start, query.End = defaults.Start, defaults.End
	}

	result, err := a.deps.Reports.Generate(r.Context(), report.Request{
		Users:    query.Users,
		Org:      query.Org,
		Repo:     query.Repo,
		Start:    query.Start,
		End:      query.End,
		Token:    tokenFrom(r.Context()),
		Location: loc,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (a *api) listMembers(w http.ResponseWriter, r *http.Request) {
	org := chi.URLParam(r, "org")
	members, err := a.deps.Members.ListMembers(r.Context(), org, tokenFrom(r.Context()))
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"members": members})
}

// checkAccess always answers 200; the decision lives in the body.
func (a *api) checkAccess(w http.ResponseWriter, r *http.Request) {
	result := a.deps.Access.Check(r.Context(), chi.URLParam(r, "owner"), chi.URLParam(r, "repo"), tokenFrom(r.Context()))
	writeJSON(w, http.StatusOK, result)
}

func (a *api) logTime(w http.ResponseWriter, r *http.Request) {
	number, err := strconv.Atoi(chi.URLParam(r, "number"))
	if err != nil || number <= 0 {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "issue number must be a positive integer"})
		return
	}

	var body logTimeBody
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := a.validate.Struct(body); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: validationMessage(err)})
		return
	}

	comment, err := a.deps.TimeLog.LogTime(r.Context(), timelog.LogRequest{
		Owner:       chi.URLParam(r, "owner"),
		Repo:        chi.URLParam(r, "repo"),
		Number:      number,
		Hours:       *body.Hours,
		Description: body.Description,
		Token:       tokenFrom(r.Context()),
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, comment)
}

func (a *api) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status >= http.StatusInternalServerError {
		a.deps.Logger.Warn(
			"api request failed",
			zap.String("path", r.URL.Path),
			zap.Int("status", status),
			zap.Error(err),
		)
	}
	writeJSON(w, status, errorBody{Error: errorMessage(err)})
}

// errorMessage flattens joined errors onto one line.
func errorMessage(err error) string {
	joined, ok := err.(interface{ Unwrap() []error })
	if !ok {
		return err.Error()
	}
	var messages []string
	for _, inner := range joined.Unwrap() {
		if inner != nil {
			messages = append(messages, errorMessage(inner))
		}
	}
	return strings.Join(messages, "; ")
}

func statusForError(err error) int {
	var validationErr *calendar.ValidationError
	var inputErr *timelog.InputError
	var accessErr *timelog.AccessError
	switch {
	case errors.As(err, &validationErr), errors.As(err, &inputErr):
		return http.StatusBadRequest
	case errors.As(err, &accessErr):
		return http.StatusForbidden
	case errors.Is(err, report.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

func validationMessage(err error) string {
	var validationErrs validator.ValidationErrors
	if !errors.As(err, &validationErrs) {
		return err.Error()
	}
	messages := make([]string, 0, len(validationErrs))
	for _, fieldErr := range validationErrs {
		messages = append(messages, fmt.Sprintf("%s failed %s validation", strings.ToLower(fieldErr.Field()), fieldErr.Tag()))
	}
	return strings.Join(messages, "; ")
}

// splitUsers accepts repeated and comma-separated user parameters.
func splitUsers(raw []string) []string {
	var users []string
	for _, value := range raw {
		for _, user := range strings.Split(value, ",") {
			if trimmed := strings.TrimSpace(user); trimmed != "" {
				users = append(users, trimmed)
			}
		}
	}
	return users
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		return
	}
}
