// Package mirror pushes the sighting log to a GitHub repository as a JSON
// document via the contents API. The mirror is a convenience copy for the map
// web-app, not the system of record: every push is single-shot and failures
// are reported to the caller to log and forget.
package mirror

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"geowarn/internal/sighting"
)

const (
	defaultBaseURL = "https://api.github.com"
	pushTimeout    = 10 * time.Second
)

// Document is the mirrored file's schema.
type Document struct {
	Locations  []sighting.Sighting `json:"locations"`
	UpdatedAt  time.Time           `json:"updated_at"`
	TotalCount int                 `json:"total_count"`
}

// BuildDocument wraps a snapshot in the mirror schema. Shared with the HTTP
// surface that serves the same document live.
func BuildDocument(snap []sighting.Sighting, now time.Time) Document {
	if snap == nil {
		snap = []sighting.Sighting{}
	}
	return Document{
		Locations:  snap,
		UpdatedAt:  now,
		TotalCount: len(snap),
	}
}

// Config identifies the target file and credential.
type Config struct {
	Token string
	Repo  string // "owner/name"
	Path  string // file path within the repository
}

// Client writes the mirror document with read-modify-write on the content
// SHA so concurrent external edits are not clobbered silently.
type Client struct {
	httpClient *http.Client
	baseURL    string
	cfg        Config
	logger     *slog.Logger
	now        func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a different API host. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the client logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithClock overrides the time source. Used by tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// New creates a mirror client.
func New(cfg Config, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: pushTimeout},
		baseURL:    defaultBaseURL,
		cfg:        cfg,
		logger:     slog.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Push uploads the snapshot. It fetches the file's current SHA first; a
// missing file means create. Exactly one attempt, bounded by pushTimeout. The
// returned error is for logging only — callers must not let it gate
// ingestion.
func (c *Client) Push(ctx context.Context, snap []sighting.Sighting) error {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	sha, err := c.currentSHA(ctx)
	if err != nil {
		// Same fallback the create path takes: push without a token and let
		// the write surface any real conflict.
		c.logger.Warn("mirror sha fetch failed, pushing without version token", "error", err)
		sha = ""
	}

	doc := BuildDocument(snap, c.now())
	content, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal mirror document: %w", err)
	}

	payload := map[string]string{
		"message": fmt.Sprintf("auto-update %s", c.now().Format("15:04:05")),
		"content": base64.StdEncoding.EncodeToString(content),
	}
	if sha != "" {
		payload["sha"] = sha
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal contents payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, c.contentsURL(), bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build contents request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("put mirror document: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated:
		return nil
	case http.StatusConflict, http.StatusUnprocessableEntity:
		return fmt.Errorf("mirror version conflict: status %d", resp.StatusCode)
	default:
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("mirror push rejected: status %d: %s", resp.StatusCode, msg)
	}
}

// currentSHA fetches the file's content SHA. Absent file (404) returns "".
func (c *Client) currentSHA(ctx context.Context) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.contentsURL(), nil)
	if err != nil {
		return "", fmt.Errorf("build contents request: %w", err)
	}
	c.setHeaders(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("get mirror document: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return "", nil
	}
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("get mirror document: status %d", resp.StatusCode)
	}

	var out struct {
		SHA string `json:"sha"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode contents response: %w", err)
	}
	return out.SHA, nil
}

func (c *Client) contentsURL() string {
	return fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, c.cfg.Repo, c.cfg.Path)
}

func (c *Client) setHeaders(req *http.Request) {
	req.Header.Set("Authorization", "token "+c.cfg.Token)
	req.Header.Set("Accept", "application/vnd.github.v3+json")
}
