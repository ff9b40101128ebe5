package report

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cam3ron2/timetrack/internal/githubapi"
	"go.uber.org/zap"
)

// Collaborator is one candidate user for a multi-user report.
type Collaborator struct {
	Login     string `json:"login"`
	AvatarURL string `json:"avatarUrl,omitempty"`
}

// MemberLister lists organization members as seen by the token carried in ctx.
type MemberLister interface {
	ListOrgMembers(ctx context.Context, org string, maxPages int) (githubapi.OrgMembersResult, error)
}

// Cache is a TTL key/value store shared across requests.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

// MemberResolverConfig configures member listing.
type MemberResolverConfig struct {
	MaxPages int
	CacheTTL time.Duration
}

// MemberResolver lists organization members with a short-lived cache.
type MemberResolver struct {
	members  MemberLister
	cache    Cache
	cfg      MemberResolverConfig
	logger   *zap.Logger
	recorder Recorder
}

// NewMemberResolver creates a member resolver. A nil cache or zero TTL disables caching.
func NewMemberResolver(members MemberLister, cache Cache, cfg MemberResolverConfig, logger *zap.Logger, recorder Recorder) *MemberResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemberResolver{
		members:  members,
		cache:    cache,
		cfg:      cfg,
		logger:   logger,
		recorder: recorder,
	}
}

// ListMembers returns the members of org visible to token.
func (r *MemberResolver) ListMembers(ctx context.Context, org, token string) ([]Collaborator, error) {
	trimmedOrg := strings.TrimSpace(org)
	if trimmedOrg == "" {
		return nil, fmt.Errorf("organization is required")
	}

	key := memberCacheKey(trimmedOrg, token)
	if cached, ok := r.readCache(ctx, key); ok {
		return cached, nil
	}

	result, err := r.members.ListOrgMembers(githubapi.ContextWithToken(ctx, token), trimmedOrg, r.cfg.MaxPages)
	if err != nil {
		observeRequest(r.recorder, "list_org_members", "error")
		return nil, fmt.Errorf("list members of %q: %w", trimmedOrg, err)
	}
	observeRequest(r.recorder, "list_org_members", string(result.Status))

	if result.Status != githubapi.EndpointStatusOK {
		return nil, classifyFailure(result.StatusCode, result.Status, result.Message, "Access denied to organization members", "Error fetching organization members")
	}
	if result.Truncated {
		r.logger.Warn(
			"organization members truncated at page cap",
			zap.String("org", trimmedOrg),
			zap.Int("max_pages", r.cfg.MaxPages),
		)
	}

	collaborators := make([]Collaborator, 0, len(result.Members))
	for _, member := range result.Members {
		collaborators = append(collaborators, Collaborator{
			Login:     member.Login,
			AvatarURL: member.AvatarURL,
		})
	}
	r.writeCache(ctx, key, collaborators)
	return collaborators, nil
}

func (r *MemberResolver) readCache(ctx context.Context, key string) ([]Collaborator, bool) {
	if r.cache == nil || r.cfg.CacheTTL <= 0 {
		return nil, false
	}
	raw, ok, err := r.cache.Get(ctx, key)
	if err != nil {
		r.logger.Warn("member cache read failed", zap.Error(err))
		return nil, false
	}
	if !ok {
		return nil, false
	}
	var collaborators []Collaborator
	if err := json.Unmarshal(raw, &collaborators); err != nil {
		r.logger.Warn("member cache entry is corrupt", zap.Error(err))
		return nil, false
	}
	return collaborators, true
}

func (r *MemberResolver) writeCache(ctx context.Context, key string, collaborators []Collaborator) {
	if r.cache == nil || r.cfg.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(collaborators)
	if err != nil {
		r.logger.Warn("encode member cache entry failed", zap.Error(err))
		return
	}
	if err := r.cache.Set(ctx, key, raw, r.cfg.CacheTTL); err != nil {
		r.logger.Warn("member cache write failed", zap.Error(err))
	}
}

// memberCacheKey scopes entries by token so one caller never sees another caller's membership view.
func memberCacheKey(org, token string) string {
	sum := sha256.Sum256([]byte(token))
	return "members:" + strings.ToLower(org) + ":" + hex.EncodeToString(sum[:8])
}

// classifyFailure maps a non-success response onto ErrRateLimited or an *APIError.
func classifyFailure(statusCode int, status githubapi.EndpointStatus, message, forbiddenFallback, fallback string) error {
	if status == githubapi.EndpointStatusRateLimited || statusCode == http.StatusTooManyRequests {
		return ErrRateLimited
	}
	if statusCode == http.StatusForbidden {
		if strings.Contains(strings.ToLower(message), "rate limit") {
			return ErrRateLimited
		}
		if message == "" {
			message = forbiddenFallback
		}
		return &APIError{StatusCode: statusCode, Message: message}
	}
	if message == "" {
		message = fallback
	}
	return &APIError{StatusCode: statusCode, Message: message}
}
