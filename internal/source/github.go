package source

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/oauth2"
)

const (
	defaultGitHubURL = "https://api.github.com"
	rawMediaType     = "application/vnd.github.v3.raw"
	etagCacheSize    = 256
)

// GitHub reads files through the GitHub contents API.
//
// Responses are cached by ETag, so refetching an unchanged file costs a
// conditional request answered with 304 Not Modified.
type GitHub struct {
	owner   string
	repo    string
	baseURL string
	client  *http.Client
	cache   *lru.Cache[string, cachedFile]
	logger  *log.Logger
}

type cachedFile struct {
	etag    string
	content string
}

// GitHubOption configures a GitHub source.
type GitHubOption func(*githubOptions)

type githubOptions struct {
	baseURL string
	timeout time.Duration
	client  *http.Client
	logger  *log.Logger
}

// WithGitHubURL overrides the API base URL (GitHub Enterprise, tests).
func WithGitHubURL(u string) GitHubOption {
	return func(o *githubOptions) { o.baseURL = strings.TrimRight(u, "/") }
}

// WithGitHubTimeout sets the per-request timeout. The default is 30s.
func WithGitHubTimeout(d time.Duration) GitHubOption {
	return func(o *githubOptions) { o.timeout = d }
}

// WithGitHubHTTPClient sets the base HTTP client. Token authentication is
// layered on top of its transport.
func WithGitHubHTTPClient(c *http.Client) GitHubOption {
	return func(o *githubOptions) { o.client = c }
}

// WithGitHubLogger sets the logger.
func WithGitHubLogger(l *log.Logger) GitHubOption {
	return func(o *githubOptions) { o.logger = l }
}

// NewGitHub creates a source for owner/repo. An empty token makes
// unauthenticated requests, which only works for public repositories.
func NewGitHub(owner, repo, token string, opts ...GitHubOption) (*GitHub, error) {
	if owner == "" || repo == "" {
		return nil, fmt.Errorf("github repository owner and name are required")
	}

	o := githubOptions{
		baseURL: defaultGitHubURL,
		timeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.New(os.Stderr, "[source] ", log.LstdFlags)
	}

	base := &http.Client{}
	if o.client != nil {
		c := *o.client
		base = &c
	}
	client := base
	if token != "" {
		ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)
		client = oauth2.NewClient(ctx, oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token}))
	}
	client.Timeout = o.timeout

	cache, err := lru.New[string, cachedFile](etagCacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create etag cache: %w", err)
	}

	return &GitHub{
		owner:   owner,
		repo:    repo,
		baseURL: o.baseURL,
		client:  client,
		cache:   cache,
		logger:  o.logger,
	}, nil
}

// Fetch implements FileSource.
func (g *GitHub) Fetch(ctx context.Context, branch, path string) (string, error) {
	u := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		g.baseURL, url.PathEscape(g.owner), url.PathEscape(g.repo),
		escapePath(path), url.QueryEscape(branch))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", rawMediaType)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	key := branch + ":" + path
	cached, haveCached := g.cache.Get(key)
	if haveCached {
		req.Header.Set("If-None-Match", cached.etag)
	}

	resp, err := g.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to fetch %s@%s: %w", path, branch, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotModified && haveCached:
		g.logger.Printf("%s@%s not modified", path, branch)
		return cached.content, nil
	case resp.StatusCode == http.StatusNotFound:
		g.cache.Remove(key)
		return "", fmt.Errorf("%s@%s: %w", path, branch, ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return "", fmt.Errorf("failed to fetch %s@%s: %s: %s", path, branch, resp.Status, strings.TrimSpace(string(msg)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read %s@%s: %w", path, branch, err)
	}
	content := string(body)

	if etag := resp.Header.Get("ETag"); etag != "" {
		g.cache.Add(key, cachedFile{etag: etag, content: content})
	}
	return content, nil
}

func escapePath(p string) string {
	parts := strings.Split(strings.TrimLeft(p, "/"), "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
