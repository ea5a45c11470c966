// Package jira implements issuestore.Store against the Jira REST API.
package jira

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/hochfrequenz/label-bulk/internal/domain"
	"github.com/hochfrequenz/label-bulk/internal/issuestore"
)

// maxResponseBody caps how much of a response body is read
const maxResponseBody = 16 << 20

// Config holds what is needed to build a Client
type Config struct {
	// BaseURL is the site root, e.g. https://example.atlassian.net
	BaseURL string

	// Email and APIToken select basic auth; BearerToken selects a personal
	// access token. Exactly one mode must be configured.
	Email       string
	APIToken    string
	BearerToken string

	// APIVersion is the REST API version path segment. Defaults to "3".
	APIVersion string

	// PageSize is maxResults per search request. Defaults to 100.
	PageSize int

	Timeout            time.Duration
	InsecureSkipVerify bool

	// HTTPClient overrides the client built from Timeout and
	// InsecureSkipVerify
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Client talks to one Jira site
type Client struct {
	baseURL    string
	apiVersion string
	pageSize   int
	httpClient *http.Client
	authorize  func(*http.Request)
	logger     *slog.Logger

	editMu    sync.Mutex
	editCache map[string]bool
}

var (
	_ issuestore.Store              = (*Client)(nil)
	_ issuestore.EditabilityChecker = (*Client)(nil)
)

// NewClient validates cfg and returns a Client
func NewClient(cfg Config) (*Client, error) {
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		return nil, fmt.Errorf("jira: base URL is required")
	}
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("jira: invalid base URL: %w", err)
	}

	var authorize func(*http.Request)
	switch {
	case cfg.BearerToken != "" && (cfg.Email != "" || cfg.APIToken != ""):
		return nil, fmt.Errorf("jira: cannot configure both bearer token and basic auth")
	case cfg.BearerToken != "":
		token := cfg.BearerToken
		authorize = func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+token) }
	case cfg.Email != "" && cfg.APIToken != "":
		email, token := cfg.Email, cfg.APIToken
		authorize = func(r *http.Request) { r.SetBasicAuth(email, token) }
	default:
		return nil, fmt.Errorf("jira: no credentials configured (set email and API token, or a bearer token)")
	}

	apiVersion := cfg.APIVersion
	if apiVersion == "" {
		apiVersion = "3"
	}
	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = 100
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		transport := http.DefaultTransport.(*http.Transport).Clone()
		if cfg.InsecureSkipVerify {
			transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
		}
		httpClient = &http.Client{Timeout: timeout, Transport: transport}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		baseURL:    baseURL,
		apiVersion: apiVersion,
		pageSize:   pageSize,
		httpClient: httpClient,
		authorize:  authorize,
		logger:     logger,
		editCache:  make(map[string]bool),
	}, nil
}

func (c *Client) apiURL(path string) string {
	return fmt.Sprintf("%s/rest/api/%s%s", c.baseURL, c.apiVersion, path)
}

// do sends an authenticated request and returns the body of a 2xx response.
// Everything else becomes a *issuestore.MutationError.
func (c *Client) do(ctx context.Context, method, rawURL string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("jira: encoding request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &issuestore.MutationError{Kind: domain.ErrTransient, Message: "request failed", Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, &issuestore.MutationError{Kind: domain.ErrTransient, StatusCode: resp.StatusCode, Message: "reading response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := parseAPIError(resp.StatusCode, resp.Header, data)
		c.logger.Debug("jira request failed",
			"method", method,
			"url", rawURL,
			"status", resp.StatusCode,
			"error", apiErr.Message,
		)
		return nil, apiErr
	}
	return data, nil
}
