package paintagent

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"time"
)

// DefaultHTTPTimeout defines the timeout used by clients created without a
// custom http.Client. It is intentionally short to avoid hanging network calls.
const DefaultHTTPTimeout = 15 * time.Second

// Client wraps the HTTP interactions with the paint agent REST API.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
}

// RunSubmission represents the payload required to create a new run.
type RunSubmission struct {
	ID            string `json:"id,omitempty"`
	Input         string `json:"input"`
	Recipient     string `json:"recipient"`
	Goal          string `json:"goal,omitempty"`
	MaxIterations int    `json:"max_iterations,omitempty"`
}

// RunResult contains the terminal summary of a finished run.
type RunResult struct {
	State   string `json:"state"`
	Summary string `json:"summary"`
	Turns   int    `json:"turns"`
}

// Run contains the server side view of a submitted run.
type Run struct {
	ID         string     `json:"id"`
	Input      string     `json:"input"`
	Recipient  string     `json:"recipient"`
	Status     string     `json:"status"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"max_retries"`
	LastError  string     `json:"last_error,omitempty"`
	ErrorCode  string     `json:"error_code,omitempty"`
	Result     *RunResult `json:"result,omitempty"`
	CreatedAt  int64      `json:"created_at"`
	UpdatedAt  int64      `json:"updated_at"`
}

// Terminal reports whether the run reached a final status.
func (r Run) Terminal() bool {
	return r.Status == "succeeded" || r.Status == "failed"
}

// APIError represents server side validation or internal errors.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	if e == nil {
		return ""
	}
	if e.Code != "" {
		return fmt.Sprintf("paintagent api error (%d): %s - %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("paintagent api error (%d): %s", e.StatusCode, e.Message)
}

// NewClient instantiates a client for the paint agent API. When httpClient is
// nil, a default client with a sensible timeout is used.
func NewClient(rawURL string, httpClient *http.Client) (*Client, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base url: %w", err)
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultHTTPTimeout}
	}
	return &Client{baseURL: parsed, httpClient: httpClient}, nil
}

// SubmitRun creates a new run.
func (c *Client) SubmitRun(ctx context.Context, submission RunSubmission) (Run, error) {
	var created Run
	if err := c.post(ctx, "/api/v1/runs", submission, &created); err != nil {
		return Run{}, err
	}
	return created, nil
}

// GetRun fetches run details by identifier.
func (c *Client) GetRun(ctx context.Context, runID string) (Run, error) {
	var detail Run
	endpoint := "/api/v1/runs/" + url.PathEscape(runID)
	if err := c.get(ctx, endpoint, &detail); err != nil {
		return Run{}, err
	}
	return detail, nil
}

// ListRuns fetches the most recently updated runs.
func (c *Client) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	endpoint := "/api/v1/runs"
	if limit > 0 {
		endpoint += fmt.Sprintf("?limit=%d", limit)
	}
	var runs []Run
	if err := c.get(ctx, endpoint, &runs); err != nil {
		return nil, err
	}
	return runs, nil
}

// WaitForCompletion polls the run until it reaches a terminal status or the
// context is cancelled.
func (c *Client) WaitForCompletion(ctx context.Context, runID string, interval time.Duration) (Run, error) {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		detail, err := c.GetRun(ctx, runID)
		if err != nil {
			return Run{}, err
		}
		if detail.Terminal() {
			return detail, nil
		}
		select {
		case <-ctx.Done():
			return Run{}, ctx.Err()
		case <-ticker.C:
		}
	}
}

func (c *Client) post(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	req, err := c.newRequest(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) get(ctx context.Context, endpoint string, out any) error {
	req, err := c.newRequest(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	parsed, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint: %w", err)
	}
	rel := &url.URL{Path: path.Join(c.baseURL.Path, parsed.Path), RawQuery: parsed.RawQuery}
	u := c.baseURL.ResolveReference(rel)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("perform request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var apiErr APIError
		apiErr.StatusCode = resp.StatusCode
		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read error response: %w", err)
		}
		if len(data) > 0 {
			_ = json.Unmarshal(data, &apiErr)
		}
		if apiErr.Message == "" {
			apiErr.Message = string(bytes.TrimSpace(data))
		}
		return &apiErr
	}

	if out == nil {
		return nil
	}
	decoder := json.NewDecoder(resp.Body)
	if err := decoder.Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
