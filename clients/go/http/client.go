// Package http provides an HTTP client for the toggled feature flag service.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	toggled "github.com/togglemaster/toggled/clients/go"
)

// Config holds configuration for the HTTP client.
type Config struct {
	// BaseURL is the base URL of the toggled server, e.g. "http://localhost:8080".
	BaseURL string
	// HTTPClient is optional; defaults to http.DefaultClient.
	HTTPClient *http.Client
}

// Client implements toggled.FlagManager and toggled.Evaluator over HTTP.
type Client struct {
	cfg        Config
	httpClient *http.Client
}

// NewHTTPClient returns a new HTTP client for the toggled service.
func NewHTTPClient(cfg Config) *Client {
	hc := cfg.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, httpClient: hc}
}

// -- wire types --------------------------------------------------------------

type wireFlag struct {
	Name      string `json:"name"`
	IsEnabled bool   `json:"is_enabled"`
}

type wireCreateReq struct {
	Name      string `json:"name"`
	IsEnabled bool   `json:"is_enabled"`
}

type wireUpdateReq struct {
	IsEnabled bool `json:"is_enabled"`
}

type wireEvaluateReq struct {
	FlagName string `json:"flag_name"`
	UserID   string `json:"user_id"`
}

type wireEvaluateResp struct {
	FlagName string `json:"flag_name"`
	Result   bool   `json:"result"`
}

// APIError is returned when the server responds with an HTTP error status.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("toggled: HTTP %d: %s", e.StatusCode, e.Message)
}

// -- helpers -----------------------------------------------------------------

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("toggled: marshal request: %w", err)
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.BaseURL+path, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("toggled: create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("toggled: http: %w", err)
	}
	if resp.StatusCode >= 400 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(resp.Body)
		return nil, &APIError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(msg))}
	}
	return resp, nil
}

func decodeBody(resp *http.Response, dst any) error {
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		return fmt.Errorf("toggled: decode response: %w", err)
	}
	return nil
}

func flagPath(name string) string {
	return "/flags/" + url.PathEscape(name)
}

// -- FlagManager -------------------------------------------------------------

// CreateFlag registers a new flag. The server responds with a confirmation
// message rather than the stored record, so the returned Flag echoes the
// request.
func (c *Client) CreateFlag(ctx context.Context, name string, enabled bool) (toggled.Flag, error) {
	resp, err := c.do(ctx, http.MethodPost, "/flags", wireCreateReq{Name: name, IsEnabled: enabled})
	if err != nil {
		return toggled.Flag{}, err
	}
	resp.Body.Close()
	return toggled.Flag{Name: name, Enabled: enabled}, nil
}

// GetFlag fetches one flag by name.
func (c *Client) GetFlag(ctx context.Context, name string) (toggled.Flag, error) {
	resp, err := c.do(ctx, http.MethodGet, flagPath(name), nil)
	if err != nil {
		return toggled.Flag{}, err
	}
	var wf wireFlag
	if err := decodeBody(resp, &wf); err != nil {
		return toggled.Flag{}, err
	}
	return toggled.Flag{Name: wf.Name, Enabled: wf.IsEnabled}, nil
}

// ListFlags fetches all flags, ordered by name.
func (c *Client) ListFlags(ctx context.Context) ([]toggled.Flag, error) {
	resp, err := c.do(ctx, http.MethodGet, "/flags", nil)
	if err != nil {
		return nil, err
	}
	var wfs []wireFlag
	if err := decodeBody(resp, &wfs); err != nil {
		return nil, err
	}
	flags := make([]toggled.Flag, len(wfs))
	for i, wf := range wfs {
		flags[i] = toggled.Flag{Name: wf.Name, Enabled: wf.IsEnabled}
	}
	return flags, nil
}

// SetEnabled updates a flag's enabled value.
func (c *Client) SetEnabled(ctx context.Context, name string, enabled bool) (toggled.Flag, error) {
	resp, err := c.do(ctx, http.MethodPut, flagPath(name), wireUpdateReq{IsEnabled: enabled})
	if err != nil {
		return toggled.Flag{}, err
	}
	resp.Body.Close()
	return toggled.Flag{Name: name, Enabled: enabled}, nil
}

// -- Evaluator ---------------------------------------------------------------

// Evaluate resolves flagName for userID. The server records the evaluation
// asynchronously.
func (c *Client) Evaluate(ctx context.Context, flagName, userID string) (bool, error) {
	resp, err := c.do(ctx, http.MethodPost, "/evaluate", wireEvaluateReq{FlagName: flagName, UserID: userID})
	if err != nil {
		return false, err
	}
	var we wireEvaluateResp
	if err := decodeBody(resp, &we); err != nil {
		return false, err
	}
	return we.Result, nil
}

var (
	_ toggled.FlagManager = (*Client)(nil)
	_ toggled.Evaluator   = (*Client)(nil)
)
