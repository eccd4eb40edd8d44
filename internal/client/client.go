package client

import (
	"bytes"
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

	"studio/internal/analytics"
	"studio/internal/cost"
	"studio/internal/scripts"
	"studio/internal/store"
	"studio/internal/users"
)

const defaultTimeout = 90 * time.Second

// APIError is returned for any non-2xx response.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("studio api: status %d", e.Status)
	}
	return fmt.Sprintf("studio api: %s (status %d)", e.Message, e.Status)
}

// StatusCode extracts the HTTP status from err, or 0 when err is not an APIError.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return 0
}

// Health mirrors the /health payload.
type Health struct {
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`
	Service     string    `json:"service"`
	Version     string    `json:"version"`
	Uptime      string    `json:"uptime"`
	Environment string    `json:"environment"`
	Checks      struct {
		Storage   string   `json:"storage"`
		Providers []string `json:"providers"`
	} `json:"checks"`
}

// ScriptList mirrors the /api/scripts payload.
type ScriptList struct {
	Scripts []*store.Script `json:"scripts"`
	Count   int             `json:"count"`
}

// Client provides HTTP access to a studio server.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(c *Client) {
		c.token = strings.TrimSpace(token)
	}
}

// New builds a client for baseURL. A bare host:port is treated as http.
func New(baseURL string, opts ...Option) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if base == "" {
		return nil, errors.New("server address is required")
	}
	if !strings.Contains(base, "://") {
		base = "http://" + base
	}
	if _, err := url.Parse(base); err != nil {
		return nil, fmt.Errorf("parse server address: %w", err)
	}
	c := &Client{
		baseURL: base,
		http:    &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// BaseURL returns the normalized server URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Health fetches the service health report.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var resp Health
	if err := c.do(ctx, http.MethodGet, "/health", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Generate requests a new script.
func (c *Client) Generate(ctx context.Context, req scripts.Request) (*store.Script, error) {
	var resp store.Script
	if err := c.do(ctx, http.MethodPost, "/api/scripts/generate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Script fetches one script by ID.
func (c *Client) Script(ctx context.Context, id string) (*store.Script, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, errors.New("script id is required")
	}
	var resp store.Script
	if err := c.do(ctx, http.MethodGet, "/api/scripts/"+url.PathEscape(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Scripts lists the caller's scripts, newest first. A limit of zero uses the server default.
func (c *Client) Scripts(ctx context.Context, limit int) (*ScriptList, error) {
	path := "/api/scripts"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var resp ScriptList
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Dashboard fetches the analytics dashboard for the caller.
func (c *Client) Dashboard(ctx context.Context) (*analytics.Dashboard, error) {
	var resp analytics.Dashboard
	if err := c.do(ctx, http.MethodGet, "/api/analytics/dashboard", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CostAnalysis fetches the caller's spend analysis.
func (c *Client) CostAnalysis(ctx context.Context) (*cost.Analysis, error) {
	var resp cost.Analysis
	if err := c.do(ctx, http.MethodGet, "/api/cost/analysis", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns its session.
func (c *Client) Register(ctx context.Context, req users.RegisterRequest) (*users.Session, error) {
	var resp users.Session
	if err := c.do(ctx, http.MethodPost, "/api/users/register", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (*users.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var resp users.Session
	if err := c.do(ctx, http.MethodPost, "/api/users/login", body, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeAPIError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func decodeAPIError(status int, data []byte) error {
	var payload struct {
		Error string `json:"error"`
	}
	msg := ""
	if err := json.Unmarshal(data, &payload); err == nil {
		msg = payload.Error
	}
	if msg == "" {
		msg = strings.TrimSpace(string(data))
		if len(msg) > 200 {
			msg = msg[:200]
		}
	}
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}
