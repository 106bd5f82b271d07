package blinkworkssdk

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Client is a minimal Blinkworks HTTP API client.
type Client struct {
	BaseURL     string
	BasePath    string
	APIKey      string
	BearerToken string
	HTTPClient  *http.Client
	Timeout     time.Duration
}

// New creates a client with sane defaults.
func New(baseURL string) *Client {
	return &Client{
		BaseURL:  baseURL,
		BasePath: "/v0",
		Timeout:  30 * time.Second,
	}
}

// Artifact is one delivered file or link.
type Artifact struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Description string `json:"description,omitempty"`
	UploadedAt  string `json:"uploaded_at"`
	UploadedBy  string `json:"uploaded_by"`
}

// Deliveries is the designer's work on a task.
type Deliveries struct {
	Files          []Artifact `json:"files"`
	Links          []Artifact `json:"links"`
	Notes          string     `json:"notes,omitempty"`
	Status         string     `json:"status,omitempty"`
	ClientFeedback string     `json:"client_feedback,omitempty"`
	AdminFeedback  string     `json:"admin_feedback,omitempty"`
}

// Task represents the API task model (partial).
type Task struct {
	ID                  string      `json:"id"`
	Type                string      `json:"type"`
	Priority            string      `json:"priority"`
	UserID              string      `json:"user_id"`
	AssignedDesigner    *string     `json:"assigned_designer,omitempty"`
	Status              string      `json:"status"`
	Title               string      `json:"title"`
	PushedToMarketplace bool        `json:"pushed_to_marketplace"`
	Deadline            *time.Time  `json:"deadline,omitempty"`
	Deliveries          *Deliveries `json:"designer_deliveries,omitempty"`
	Overdue             bool        `json:"overdue"`
	InMarketplace       bool        `json:"in_marketplace"`
}

// NewTask is the brief submitted by a client.
type NewTask struct {
	Type        string     `json:"type"`
	Priority    string     `json:"priority,omitempty"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	BrandID     string     `json:"brand_id,omitempty"`
	Deadline    *time.Time `json:"deadline,omitempty"`
	Draft       bool       `json:"draft,omitempty"`
}

// Event represents a log entry.
type Event struct {
	ID         int64          `json:"id"`
	TS         string         `json:"ts"`
	Type       string         `json:"type"`
	TaskID     string         `json:"task_id,omitempty"`
	EntityKind string         `json:"entity_kind"`
	EntityID   string         `json:"entity_id"`
	ActorID    string         `json:"actor_id"`
	Payload    map[string]any `json:"payload"`
}

// DesignerWorkload is one row of the designer dashboard.
type DesignerWorkload struct {
	DesignerID string `json:"designer_id"`
	Name       string `json:"name"`
	Active     int    `json:"active"`
	Completed  int    `json:"completed"`
	Overdue    int    `json:"overdue"`
	Total      int    `json:"total"`
	Level      string `json:"level"`
}

// APIError wraps non-2xx responses.
type APIError struct {
	StatusCode int
	Code       string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("api error: status=%d code=%s body=%s", e.StatusCode, e.Code, e.Body)
}

// PaginatedEvents wraps list responses with cursors.
type PaginatedEvents struct {
	Items      []Event `json:"items"`
	NextCursor string  `json:"next_cursor"`
}

// CreateTask submits a brief as the authenticated client.
func (c *Client) CreateTask(ctx context.Context, in NewTask) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, "tasks", in, &resp)
	return resp, err
}

// Marketplace lists tasks a designer can claim.
func (c *Client) Marketplace(ctx context.Context) ([]Task, error) {
	var resp struct {
		Items []Task `json:"items"`
	}
	err := c.do(ctx, http.MethodGet, "tasks?marketplace=true", nil, &resp)
	return resp.Items, err
}

// GetTask fetches a task by id.
func (c *Client) GetTask(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodGet, taskPath(id, ""), nil, &resp)
	return resp, err
}

// SendToMarketplace publishes a reviewed task for designers.
func (c *Client) SendToMarketplace(ctx context.Context, id, adminNotes string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "marketplace"), map[string]any{"admin_notes": adminNotes}, &resp)
	return resp, err
}

// Claim takes a marketplace task for the authenticated designer.
func (c *Client) Claim(ctx context.Context, id string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(id, "claim"), nil, &resp)
	return resp, err
}

// UploadFile streams body as a delivery file.
func (c *Client) UploadFile(ctx context.Context, taskID, name, contentType string, size int64, body io.Reader) (Task, error) {
	q := url.Values{"name": {name}}
	req, err := c.newRequest(ctx, http.MethodPost, taskPath(taskID, "deliveries/files")+"?"+q.Encode(), body)
	if err != nil {
		return Task{}, err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = size
	var resp Task
	err = c.send(req, &resp)
	return resp, err
}

// AddLink attaches a link to the delivery.
func (c *Client) AddLink(ctx context.Context, taskID, name, link string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "deliveries/links"), map[string]any{"name": name, "url": link}, &resp)
	return resp, err
}

// SubmitDelivery sends the delivery for review.
func (c *Client) SubmitDelivery(ctx context.Context, taskID, notes string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "deliveries/submit"), map[string]any{"notes": notes}, &resp)
	return resp, err
}

// ReviewDelivery records APPROVED, REVISION_REQUESTED or REJECTED.
func (c *Client) ReviewDelivery(ctx context.Context, taskID, decision, feedback string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "deliveries/review"), map[string]any{"decision": decision, "feedback": feedback}, &resp)
	return resp, err
}

// ApproveWork is the admin sign-off on a submitted delivery.
func (c *Client) ApproveWork(ctx context.Context, taskID string) (Task, error) {
	var resp Task
	err := c.do(ctx, http.MethodPost, taskPath(taskID, "approve"), nil, &resp)
	return resp, err
}

// DesignerWorkload returns the admin workload dashboard.
func (c *Client) DesignerWorkload(ctx context.Context) ([]DesignerWorkload, error) {
	var resp []DesignerWorkload
	err := c.do(ctx, http.MethodGet, "overview/designers", nil, &resp)
	return resp, err
}

// EventsPage returns a paginated admin event listing.
func (c *Client) EventsPage(ctx context.Context, limit int, cursor string) (PaginatedEvents, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	endpoint := "events"
	if len(q) > 0 {
		endpoint += "?" + q.Encode()
	}
	var resp PaginatedEvents
	err := c.do(ctx, http.MethodGet, endpoint, nil, &resp)
	return resp, err
}

func (c *Client) do(ctx context.Context, method, endpoint string, body any, out any) error {
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := c.newRequest(ctx, method, endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.send(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, endpoint string, body io.Reader) (*http.Request, error) {
	u := c.base() + "/" + strings.TrimLeft(endpoint, "/")
	req, err := http.NewRequestWithContext(ctx, method, u, body)
	if err != nil {
		return nil, err
	}
	switch {
	case c.BearerToken != "":
		req.Header.Set("Authorization", "Bearer "+c.BearerToken)
	case c.APIKey != "":
		req.Header.Set("X-Api-Key", c.APIKey)
	}
	return req, nil
}

func (c *Client) send(req *http.Request, out any) error {
	if c.HTTPClient == nil {
		c.HTTPClient = &http.Client{Timeout: c.Timeout}
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
				Code string `json:"code"`
			} `json:"error"`
		}
		if json.Unmarshal(b, &env) == nil {
			apiErr.Code = env.Error.Code
		}
		return apiErr
	}
	if out != nil && resp.StatusCode != http.StatusNoContent {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func taskPath(id, action string) string {
	p := "tasks/" + url.PathEscape(id)
	if action != "" {
		p += "/" + action
	}
	return p
}

func (c *Client) base() string {
	return strings.TrimRight(c.BaseURL, "/") + "/" + strings.Trim(c.BasePath, "/")
}
