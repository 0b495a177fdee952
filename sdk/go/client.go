package issuelinesdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// Client is a minimal issueline HTTP API client.
type Client struct {
	BaseURL  string
	BasePath string
	// Actor is sent as X-Actor on writes when set.
	Actor      string
	HTTPClient *http.Client
	Timeout    time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  10 * time.Second,
	}
}

// Issue represents the API issue model.
type Issue struct {
	ID             string         `json:"id"`
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Priority       int            `json:"priority"`
	IssueType      string         `json:"issue_type"`
	Status         string         `json:"status"`
	Assignee       string         `json:"assignee,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	DiscoveredFrom string         `json:"discovered_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
	CloseReason    string         `json:"close_reason,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
	ClosedAt       *time.Time     `json:"closed_at,omitempty"`
}

// Dependency is a blocking edge.
type Dependency struct {
	BlockedID string    `json:"blocked_id"`
	BlockerID string    `json:"blocker_id"`
	Actor     string    `json:"actor,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// BlockedIssue pairs an issue with its open blockers.
type BlockedIssue struct {
	Issue    Issue   `json:"issue"`
	Blockers []Issue `json:"blockers"`
}

// Event represents a log entry.
type Event struct {
	Seq       int64          `json:"sequence_no"`
	Timestamp time.Time      `json:"timestamp"`
	Actor     string         `json:"actor"`
	Type      string         `json:"event_type"`
	Payload   map[string]any `json:"payload"`
}

// CreateIssueRequest mirrors the create payload. Zero values are omitted.
type CreateIssueRequest struct {
	Title          string         `json:"title"`
	Description    string         `json:"description,omitempty"`
	Priority       *int           `json:"priority,omitempty"`
	IssueType      string         `json:"issue_type,omitempty"`
	Assignee       string         `json:"assignee,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	DiscoveredFrom string         `json:"discovered_from,omitempty"`
	Metadata       map[string]any `json:"metadata,omitempty"`
}

// Filter selects issues by equality; empty fields do not filter.
type Filter struct {
	Status    string
	Assignee  string
	IssueType string
	Priority  string
	ParentID  string
	Limit     int
}

func (f Filter) query(withStatus bool) string {
	q := url.Values{}
	if withStatus && f.Status != "" {
		q.Set("status", f.Status)
	}
	for k, v := range map[string]string{
		"assignee":   f.Assignee,
		"issue_type": f.IssueType,
		"priority":   f.Priority,
		"parent_id":  f.ParentID,
	} {
		if v != "" {
			q.Set(k, v)
		}
	}
	if !withStatus && f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("api error: status=%d code=%s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("api error: status=%d body=%s", e.StatusCode, e.Body)
}

// ToolResult is the response of the tool endpoint.
type ToolResult struct {
	Success bool           `json:"success"`
	Output  map[string]any `json:"output,omitempty"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// CreateIssue creates an issue.
func (c *Client) CreateIssue(ctx context.Context, req CreateIssueRequest) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPost, "issues", req, &resp)
	return resp, err
}

// GetIssue fetches an issue by id.
func (c *Client) GetIssue(ctx context.Context, id string) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id), nil, &resp)
	return resp, err
}

// ListIssues returns issues matching the filter.
func (c *Client) ListIssues(ctx context.Context, f Filter) ([]Issue, error) {
	var resp struct {
		Issues []Issue `json:"issues"`
	}
	err := c.do(ctx, http.MethodGet, "issues"+f.query(true), nil, &resp)
	return resp.Issues, err
}

// UpdateIssue applies a partial field map.
func (c *Client) UpdateIssue(ctx context.Context, id string, fields map[string]any) (Issue, error) {
	var resp Issue
	err := c.do(ctx, http.MethodPatch, "issues/"+url.PathEscape(id), fields, &resp)
	return resp, err
}

// CloseIssue closes an issue with an optional reason.
func (c *Client) CloseIssue(ctx context.Context, id, reason string) (Issue, error) {
	var resp Issue
	body := map[string]any{}
	if reason != "" {
		body["reason"] = reason
	}
	err := c.do(ctx, http.MethodPost, "issues/"+url.PathEscape(id)+"/close", body, &resp)
	return resp, err
}

// AddDependency records that blockedID waits on blockerID.
func (c *Client) AddDependency(ctx context.Context, blockedID, blockerID string) (Dependency, error) {
	var resp Dependency
	body := map[string]any{"blocked_id": blockedID, "blocker_id": blockerID}
	err := c.do(ctx, http.MethodPost, "dependencies", body, &resp)
	return resp, err
}

// Ready returns the ready work queue. Filter.Status is ignored.
func (c *Client) Ready(ctx context.Context, f Filter) ([]Issue, error) {
	var resp struct {
		ReadyIssues []Issue `json:"ready_issues"`
	}
	err := c.do(ctx, http.MethodGet, "ready"+f.query(false), nil, &resp)
	return resp.ReadyIssues, err
}

// Blocked returns open issues with their open blockers.
func (c *Client) Blocked(ctx context.Context) ([]BlockedIssue, error) {
	var resp struct {
		BlockedIssues []BlockedIssue `json:"blocked_issues"`
	}
	err := c.do(ctx, http.MethodGet, "blocked", nil, &resp)
	return resp.BlockedIssues, err
}

// Dependencies returns the issues blocking id.
func (c *Client) Dependencies(ctx context.Context, id string) ([]Issue, error) {
	var resp struct {
		Dependencies []Issue `json:"dependencies"`
	}
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id)+"/dependencies", nil, &resp)
	return resp.Dependencies, err
}

// Dependents returns the issues id blocks.
func (c *Client) Dependents(ctx context.Context, id string) ([]Issue, error) {
	var resp struct {
		Dependents []Issue `json:"dependents"`
	}
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id)+"/dependents", nil, &resp)
	return resp.Dependents, err
}

// Events returns the history of one issue.
func (c *Client) Events(ctx context.Context, id string) ([]Event, error) {
	var resp struct {
		Events []Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, "issues/"+url.PathEscape(id)+"/events", nil, &resp)
	return resp.Events, err
}

// Tool runs one issue_manager operation.
func (c *Client) Tool(ctx context.Context, operation string, params map[string]any) (ToolResult, error) {
	var resp ToolResult
	body := map[string]any{"operation": operation, "params": params}
	err := c.do(ctx, http.MethodPost, "tool", body, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
	}
	url := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, url, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.Actor != "" {
		req.Header.Set("X-Actor", c.Actor)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		apiErr := &APIError{StatusCode: resp.StatusCode, Body: string(b)}
		var env struct {
			Error struct {
				Code    string `json:"code"`
				Message string `json:"message"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code, apiErr.Message = env.Error.Code, env.Error.Message
		}
		return apiErr
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *Client) base() string {
	base := strings.TrimRight(c.BaseURL, "/")
	if p := strings.Trim(c.BasePath, "/"); p != "" {
		base += "/" + p
	}
	return base
}
