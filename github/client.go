// Package github fetches repository file content through the GitHub
// REST API. Only the small slice of the API the documentation pipeline
// needs is implemented: file contents, repository metadata and the
// recursive tree listing.
package github

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"scribe/core"
	"scribe/metrics"

	"go.uber.org/zap"
)

var (
	// ErrInvalidURL is returned for URLs that are not GitHub blob URLs.
	ErrInvalidURL = errors.New("invalid GitHub URL")
	// ErrNotFound is returned when the file or repository does not exist.
	ErrNotFound = errors.New("file not found on GitHub")
	// ErrRateLimited is returned when GitHub rejects the request due to
	// API rate limiting.
	ErrRateLimited = errors.New("GitHub API rate limit exceeded")
)

const maxResponseBytes = 4 * 1024 * 1024

// Client is a GitHub REST API client.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.SugaredLogger
}

// NewClient creates a GitHub client. token may be empty for anonymous
// access to public repositories.
func NewClient(baseURL, token string, timeout time.Duration, logger *zap.SugaredLogger) *Client {
	if baseURL == "" {
		baseURL = "https://api.github.com"
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

// FileRef identifies a file inside a repository at a ref.
type FileRef struct {
	Owner string
	Repo  string
	Ref   string
	Path  string
}

// ParseBlobURL extracts owner, repository, ref and file path from a
// browser URL of the form
// https://github.com/{owner}/{repo}/blob/{ref}/{path}.
func ParseBlobURL(rawURL string) (FileRef, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return FileRef{}, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	if parsed.Host != "github.com" && parsed.Host != "www.github.com" {
		return FileRef{}, fmt.Errorf("%w: host %q is not github.com", ErrInvalidURL, parsed.Host)
	}

	parts := strings.Split(strings.Trim(parsed.Path, "/"), "/")
	if len(parts) < 5 || parts[2] != "blob" {
		return FileRef{}, fmt.Errorf("%w: expected /owner/repo/blob/ref/path", ErrInvalidURL)
	}

	return FileRef{
		Owner: parts[0],
		Repo:  parts[1],
		Ref:   parts[3],
		Path:  strings.Join(parts[4:], "/"),
	}, nil
}

// contentsResponse mirrors the fields of the contents API we consume.
type contentsResponse struct {
	Content  string `json:"content"`
	Encoding string `json:"encoding"`
	SHA      string `json:"sha"`
	Size     int64  `json:"size"`
	HTMLURL  string `json:"html_url"`
	Type     string `json:"type"`
}

// GetFile fetches the file referenced by a GitHub blob URL.
func (c *Client) GetFile(ctx context.Context, blobURL string) (*core.GitHubFile, error) {
	ref, err := ParseBlobURL(blobURL)
	if err != nil {
		return nil, err
	}
	return c.GetFileAt(ctx, ref)
}

// GetFileAt fetches file content through the contents API.
func (c *Client) GetFileAt(ctx context.Context, ref FileRef) (*core.GitHubFile, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/contents/%s?ref=%s",
		c.baseURL, url.PathEscape(ref.Owner), url.PathEscape(ref.Repo), escapePath(ref.Path), url.QueryEscape(ref.Ref))

	var contents contentsResponse
	if err := c.getJSON(ctx, endpoint, &contents); err != nil {
		return nil, err
	}

	if contents.Type != "" && contents.Type != "file" {
		return nil, fmt.Errorf("%w: %s is a %s, not a file", ErrInvalidURL, ref.Path, contents.Type)
	}
	if contents.Size > core.MaxSourceFileBytes {
		return nil, fmt.Errorf("file %s too large: %d bytes", ref.Path, contents.Size)
	}

	text := contents.Content
	if contents.Encoding == "base64" {
		decoded, err := base64.StdEncoding.DecodeString(strings.ReplaceAll(contents.Content, "\n", ""))
		if err != nil {
			return nil, fmt.Errorf("failed to decode file content: %w", err)
		}
		text = string(decoded)
	}

	return &core.GitHubFile{
		Owner:   ref.Owner,
		Repo:    ref.Repo,
		Ref:     ref.Ref,
		Path:    ref.Path,
		SHA:     contents.SHA,
		Size:    contents.Size,
		HTMLURL: contents.HTMLURL,
		Content: text,
	}, nil
}

// RepoInfo is repository metadata from the repos API.
type RepoInfo struct {
	FullName      string `json:"full_name"`
	DefaultBranch string `json:"default_branch"`
	Private       bool   `json:"private"`
}

// GetRepo fetches repository metadata.
func (c *Client) GetRepo(ctx context.Context, owner, repo string) (*RepoInfo, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s", c.baseURL, url.PathEscape(owner), url.PathEscape(repo))

	var info RepoInfo
	if err := c.getJSON(ctx, endpoint, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// TreeEntry is one blob in a recursive tree listing.
type TreeEntry struct {
	Path string `json:"path"`
	Type string `json:"type"`
	Size int64  `json:"size"`
	SHA  string `json:"sha"`
}

type treeResponse struct {
	Tree      []TreeEntry `json:"tree"`
	Truncated bool        `json:"truncated"`
}

// ListTree returns the blob entries of a repository tree at ref,
// recursively.
func (c *Client) ListTree(ctx context.Context, owner, repo, ref string) ([]TreeEntry, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/%s/git/trees/%s?recursive=1",
		c.baseURL, url.PathEscape(owner), url.PathEscape(repo), url.PathEscape(ref))

	var tree treeResponse
	if err := c.getJSON(ctx, endpoint, &tree); err != nil {
		return nil, err
	}
	if tree.Truncated {
		c.logger.Warnw("GitHub tree listing truncated", "repo", owner+"/"+repo, "ref", ref)
	}

	blobs := make([]TreeEntry, 0, len(tree.Tree))
	for _, entry := range tree.Tree {
		if entry.Type == "blob" {
			blobs = append(blobs, entry)
		}
	}
	return blobs, nil
}

func (c *Client) getJSON(ctx context.Context, endpoint string, dest interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/vnd.github.v3+json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.GitHubRequests.WithLabelValues("error").Inc()
		return fmt.Errorf("GitHub request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		metrics.GitHubRequests.WithLabelValues("not_found").Inc()
		return ErrNotFound
	case resp.StatusCode == http.StatusForbidden && resp.Header.Get("X-RateLimit-Remaining") == "0":
		metrics.GitHubRequests.WithLabelValues("rate_limited").Inc()
		return ErrRateLimited
	case resp.StatusCode != http.StatusOK:
		metrics.GitHubRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("GitHub API returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	metrics.GitHubRequests.WithLabelValues("ok").Inc()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(dest); err != nil {
		return fmt.Errorf("failed to decode GitHub response: %w", err)
	}
	return nil
}

// escapePath escapes each path segment while keeping separators.
func escapePath(p string) string {
	parts := strings.Split(p, "/")
	for i, part := range parts {
		parts[i] = url.PathEscape(part)
	}
	return strings.Join(parts, "/")
}
