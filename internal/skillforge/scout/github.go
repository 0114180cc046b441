package scout

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

	"github.com/cenkalti/backoff/v5"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
)

const (
	githubCacheSize    = 256
	githubUserAgent    = "skillforge-scout"
	githubAcceptHeader = "application/vnd.github+json"
)

// GitHubOptions configures a GitHubScout.
type GitHubOptions struct {
	Token   string
	BaseURL string
	Queries []string
	PerPage int

	// HTTPClient defaults to a client with a 20s timeout.
	HTTPClient *http.Client
	// MaxTries bounds attempts per query, including the first one.
	MaxTries uint
	// InitialBackoff is the first retry delay.
	InitialBackoff time.Duration
	Logger         *zap.Logger
}

// GitHubScout searches GitHub repositories for skill candidates.
type GitHubScout struct {
	token          string
	baseURL        string
	queries        []string
	perPage        int
	client         *http.Client
	maxTries       uint
	initialBackoff time.Duration
	logger         *zap.Logger
	cache          *lru.Cache[string, cachedSearch]
}

// cachedSearch is a previous response kept for conditional requests.
type cachedSearch struct {
	etag  string
	items []githubRepository
}

type githubSearchResponse struct {
	TotalCount int                `json:"total_count"`
	Items      []githubRepository `json:"items"`
}

type githubRepository struct {
	Name          string    `json:"name"`
	FullName      string    `json:"full_name"`
	HTMLURL       string    `json:"html_url"`
	Description   string    `json:"description"`
	Stars         int       `json:"stargazers_count"`
	Forks         int       `json:"forks_count"`
	Language      string    `json:"language"`
	UpdatedAt     time.Time `json:"updated_at"`
	PushedAt      time.Time `json:"pushed_at"`
	Archived      bool      `json:"archived"`
	Topics        []string  `json:"topics"`
	DefaultBranch string    `json:"default_branch"`
	License       *struct {
		SPDXID string `json:"spdx_id"`
	} `json:"license"`
	Owner struct {
		Login string `json:"login"`
	} `json:"owner"`
}

// NewGitHubScout creates a GitHub scout. Missing options fall back to defaults.
func NewGitHubScout(opts GitHubOptions) *GitHubScout {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.github.com"
	}
	if opts.PerPage <= 0 {
		opts.PerPage = 30
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 20 * time.Second}
	}
	if opts.MaxTries == 0 {
		opts.MaxTries = 3
	}
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = 500 * time.Millisecond
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}

	// lru.New only fails for a non-positive size.
	cache, _ := lru.New[string, cachedSearch](githubCacheSize)

	return &GitHubScout{
		token:          opts.Token,
		baseURL:        strings.TrimRight(opts.BaseURL, "/"),
		queries:        opts.Queries,
		perPage:        opts.PerPage,
		client:         opts.HTTPClient,
		maxTries:       opts.MaxTries,
		initialBackoff: opts.InitialBackoff,
		logger:         opts.Logger,
		cache:          cache,
	}
}

// Discover runs every configured query. A query failure is tolerated as long
// as at least one query succeeds.
func (g *GitHubScout) Discover(ctx context.Context) ([]Candidate, error) {
	if len(g.queries) == 0 {
		return nil, errors.New("github scout: no queries configured")
	}

	var candidates []Candidate
	var errs []error

	for _, q := range g.queries {
		repos, err := g.search(ctx, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			g.logger.Debug("GitHub query failed", zap.String("query", q), zap.Error(err))
			errs = append(errs, fmt.Errorf("query %q: %w", q, err))
			continue
		}
		for _, repo := range repos {
			candidates = append(candidates, repo.toCandidate())
		}
	}

	if len(errs) == len(g.queries) {
		return nil, errors.Join(errs...)
	}

	return Dedup(candidates), nil
}

func (g *GitHubScout) searchURL(query string) string {
	params := url.Values{}
	params.Set("q", query)
	params.Set("sort", "stars")
	params.Set("order", "desc")
	params.Set("per_page", strconv.Itoa(g.perPage))
	return g.baseURL + "/search/repositories?" + params.Encode()
}

func (g *GitHubScout) search(ctx context.Context, query string) ([]githubRepository, error) {
	endpoint := g.searchURL(query)

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = g.initialBackoff
	bo.MaxInterval = 10 * g.initialBackoff

	return backoff.Retry(ctx, func() ([]githubRepository, error) {
		return g.fetch(ctx, endpoint)
	},
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(g.maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			g.logger.Debug("Retrying GitHub search",
				zap.String("query", query),
				zap.Duration("backoff", next),
				zap.Error(err))
		}),
	)
}

// fetch performs one request. Errors that retrying cannot fix are marked permanent.
func (g *GitHubScout) fetch(ctx context.Context, endpoint string) ([]githubRepository, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Accept", githubAcceptHeader)
	req.Header.Set("User-Agent", githubUserAgent)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}

	cached, hasCached := g.cache.Get(endpoint)
	if hasCached && cached.etag != "" {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, backoff.Permanent(ctx.Err())
		}
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && hasCached:
		return cached.items, nil
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("github api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, backoff.Permanent(fmt.Errorf("github api returned status %d: %s", resp.StatusCode, strings.TrimSpace(string(body))))
	}

	var parsed githubSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("failed to decode search response: %w", err))
	}

	if etag := resp.Header.Get("ETag"); etag != "" {
		g.cache.Add(endpoint, cachedSearch{etag: etag, items: parsed.Items})
	}
	return parsed.Items, nil
}

func (r githubRepository) toCandidate() Candidate {
	updated := r.UpdatedAt
	if r.PushedAt.After(updated) {
		updated = r.PushedAt
	}

	meta := Metadata{
		MetaStars:    r.Stars,
		MetaForks:    r.Forks,
		MetaArchived: strconv.FormatBool(r.Archived),
	}
	setIfNotEmpty(meta, MetaDescription, strings.TrimSpace(r.Description))
	setIfNotEmpty(meta, MetaLanguage, r.Language)
	setIfNotEmpty(meta, MetaOwner, r.Owner.Login)
	setIfNotEmpty(meta, MetaFullName, r.FullName)
	setIfNotEmpty(meta, MetaDefaultBranch, r.DefaultBranch)
	setIfNotEmpty(meta, MetaTopics, strings.Join(r.Topics, ","))
	if !updated.IsZero() {
		meta[MetaUpdatedAt] = updated.UTC().Format(time.RFC3339)
	}
	// GitHub reports NOASSERTION for licenses it could not classify.
	if r.License != nil && r.License.SPDXID != "" && r.License.SPDXID != "NOASSERTION" {
		meta[MetaLicense] = r.License.SPDXID
	}

	return Candidate{
		Name:      r.Name,
		SourceURL: r.HTMLURL,
		Source:    SourceGitHub.String(),
		Metadata:  meta,
	}
}

func setIfNotEmpty(m Metadata, key, value string) {
	if value != "" {
		m[key] = value
	}
}
