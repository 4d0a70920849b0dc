// Package rpc provides the typed remote procedure layer for SalesCoach.
//
// Every interaction with the backend (simulations, conversations, feedback, dashboard,
// sectors, authentication and payments) goes through this package. Procedures are identified
// by name and exchange typed inputs and outputs wrapped in a JSON envelope.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"
)

// Default client configuration
const (
	// DefaultTimeout bounds a single remote call.
	DefaultTimeout = 30 * time.Second
	// ProcedurePrefix is the path under which named procedures are served.
	ProcedurePrefix = "/trpc/"
	// RESTPrefix is the path under which the REST endpoints are served.
	RESTPrefix = "/api"
)

// ErrNullResult is returned when a procedure succeeds with a null payload.
var ErrNullResult = errors.New("procedure returned no data")

// Opts holds configuration for the remote procedure client.
type Opts struct {
	BaseURL    string
	Token      string
	Timeout    time.Duration
	HTTPClient *http.Client
	UserAgent  string
}

// Option defines a functional option for configuring the client.
type Option func(*Opts)

// WithBaseURL sets the backend base URL.
func WithBaseURL(url string) Option {
	return func(o *Opts) { o.BaseURL = url }
}

// WithToken sets the bearer token sent with every request.
func WithToken(token string) Option {
	return func(o *Opts) { o.Token = token }
}

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient sets the underlying HTTP client (mostly for tests).
func WithHTTPClient(hc *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = hc }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(o *Opts) { o.UserAgent = ua }
}

// Client calls named procedures and REST endpoints on the backend.
type Client struct {
	http    *resty.Client
	baseURL string
}

// NewClient creates a new remote procedure client.
func NewClient(opts ...Option) (*Client, error) {
	cfg := Opts{Timeout: DefaultTimeout, UserAgent: "SalesCoach/1.0"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("rpc: base URL not set")
	}

	var rc *resty.Client
	if cfg.HTTPClient != nil {
		rc = resty.NewWithClient(cfg.HTTPClient)
	} else {
		rc = resty.New()
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	rc.SetBaseURL(baseURL)
	rc.SetTimeout(cfg.Timeout)
	rc.SetHeader("Content-Type", "application/json")
	rc.SetHeader("Accept", "application/json")
	rc.SetHeader("User-Agent", cfg.UserAgent)
	if cfg.Token != "" {
		rc.SetAuthToken(cfg.Token)
	}

	slog.Debug("rpc.NewClient: client created", "base_url", baseURL, "timeout", cfg.Timeout, "token_set", cfg.Token != "")
	return &Client{http: rc, baseURL: baseURL}, nil
}

// SetToken replaces the bearer token, e.g. after login.
func (c *Client) SetToken(token string) {
	c.http.SetAuthToken(token)
}

// BaseURL returns the backend base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Call invokes the named procedure with input and decodes its output into out.
// A nil input sends an empty envelope; a nil out discards the result.
func (c *Client) Call(ctx context.Context, procedure string, input, out interface{}) error {
	return c.call(ctx, procedure, input, out, nil)
}

func (c *Client) call(ctx context.Context, procedure string, input, out interface{}, headers map[string]string) error {
	envelope := map[string]interface{}{}
	if input != nil {
		envelope["json"] = input
	}

	req := c.http.R().SetContext(ctx).SetBody(envelope)
	for k, v := range headers {
		req.SetHeader(k, v)
	}

	started := time.Now()
	resp, err := req.Post(ProcedurePrefix + procedure)
	if err != nil {
		slog.Error("rpc.Client.call: transport failure", "procedure", procedure, "error", err)
		return fmt.Errorf("rpc %s: %w", procedure, err)
	}
	slog.Debug("rpc.Client.call: response received", "procedure", procedure, "status", resp.StatusCode(), "elapsed", time.Since(started))

	raw := resp.Body()
	if resp.IsError() || gjson.GetBytes(raw, "error").Exists() {
		return decodeProcedureError(procedure, resp.StatusCode(), raw)
	}

	data := gjson.GetBytes(raw, "result.data")
	if !data.Exists() {
		return fmt.Errorf("rpc %s: malformed response: missing result.data", procedure)
	}
	if wrapped := data.Get("json"); data.IsObject() && wrapped.Exists() {
		data = wrapped
	}
	if data.Type == gjson.Null {
		return fmt.Errorf("rpc %s: %w", procedure, ErrNullResult)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal([]byte(data.Raw), out); err != nil {
		return fmt.Errorf("rpc %s: failed to decode result: %w", procedure, err)
	}
	return nil
}

// rest performs a plain JSON request against the REST endpoints.
func (c *Client) rest(ctx context.Context, method, path string, in, out interface{}) error {
	req := c.http.R().SetContext(ctx)
	if in != nil {
		req.SetBody(in)
	}

	resp, err := req.Execute(method, RESTPrefix+path)
	if err != nil {
		slog.Error("rpc.Client.rest: transport failure", "method", method, "path", path, "error", err)
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	raw := resp.Body()
	if resp.IsError() {
		return decodeRESTError(path, resp.StatusCode(), raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("%s %s: failed to decode response: %w", method, path, err)
	}
	return nil
}
