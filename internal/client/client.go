// Package client talks to the familydash daemon API.
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
	"strings"
	"time"

	"github.com/fentz26/familydash/internal/calendar"
	"github.com/fentz26/familydash/internal/controlplane"
	"github.com/fentz26/familydash/internal/models"
	"github.com/fentz26/familydash/internal/reconcile"
	"github.com/fentz26/familydash/internal/recurrence"
	"github.com/fentz26/familydash/internal/syncstate"
)

// DefaultTimeout is the default timeout for API requests.
const DefaultTimeout = 10 * time.Second

// ErrNotFound is returned when the daemon answers 404.
var ErrNotFound = errors.New("not found")

// APIError is a failed API call.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.Status, e.Message)
}

// Is lets errors.Is(err, ErrNotFound) match a 404.
func (e *APIError) Is(target error) bool {
	return target == ErrNotFound && e.Status == http.StatusNotFound
}

type envelope struct {
	OK      bool            `json:"ok"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
}

// Client wraps HTTP calls to the familydash API.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// New creates a client for the daemon at baseURL, for example
// "http://127.0.0.1:7466".
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// SetTimeout changes the per-request timeout. Non-positive values are
// ignored.
func (c *Client) SetTimeout(d time.Duration) {
	if d > 0 {
		c.httpClient.Timeout = d
	}
}

// BaseURL returns the daemon address.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/api"+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("API request failed: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		if resp.StatusCode >= 400 {
			return &APIError{Status: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
		}
		return fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 || !env.OK {
		msg := env.Message
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &APIError{Status: resp.StatusCode, Message: msg}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("decode response data: %w", err)
	}
	return nil
}

// --- Health ---

// Health returns the daemon health payload.
func (c *Client) Health(ctx context.Context) (*controlplane.HealthResponse, error) {
	var h controlplane.HealthResponse
	if err := c.do(ctx, http.MethodGet, "/health", nil, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// Ping succeeds when the daemon is reachable and healthy.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Health(ctx)
	return err
}

// --- Tasks ---

// GetTasks lists every task.
func (c *Client) GetTasks(ctx context.Context) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.do(ctx, http.MethodGet, "/tasks", nil, &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// GetTask fetches a single task.
func (c *Client) GetTask(ctx context.Context, id string) (models.Task, error) {
	var t models.Task
	err := c.do(ctx, http.MethodGet, "/tasks/"+url.PathEscape(id), nil, &t)
	return t, err
}

// CreateTask stores t and returns it as stored.
func (c *Client) CreateTask(ctx context.Context, t models.Task) (models.Task, error) {
	var out models.Task
	err := c.do(ctx, http.MethodPost, "/tasks", t, &out)
	return out, err
}

// UpdateTask replaces the task with t.ID.
func (c *Client) UpdateTask(ctx context.Context, t models.Task) (models.Task, error) {
	var out models.Task
	err := c.do(ctx, http.MethodPut, "/tasks/"+url.PathEscape(t.ID), t, &out)
	return out, err
}

// DeleteTask removes the task with id.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// --- Completions ---

type completionRequest struct {
	TaskID       string         `json:"task_id"`
	InstanceDate *calendar.Date `json:"instance_date,omitempty"`
}

// AddCompletion marks one instance of a task done.
func (c *Client) AddCompletion(ctx context.Context, taskID string, date *calendar.Date) (models.Completion, error) {
	var out models.Completion
	err := c.do(ctx, http.MethodPost, "/completions", completionRequest{TaskID: taskID, InstanceDate: date}, &out)
	return out, err
}

// RemoveCompletions clears completions of a task, optionally for one date.
func (c *Client) RemoveCompletions(ctx context.Context, taskID string, date *calendar.Date) (int64, error) {
	q := url.Values{"task_id": {taskID}}
	if date != nil {
		q.Set("instance_date", date.String())
	}
	var out struct {
		Removed int64 `json:"removed"`
	}
	err := c.do(ctx, http.MethodDelete, "/completions?"+q.Encode(), nil, &out)
	return out.Removed, err
}

// --- Week and Sync ---

// Week fetches the schedule of the seven days starting at start. A zero
// start asks for the current week.
func (c *Client) Week(ctx context.Context, start calendar.Date) (*controlplane.WeekView, error) {
	path := "/week"
	if !start.IsZero() {
		path += "?start=" + start.String()
	}
	var view controlplane.WeekView
	if err := c.do(ctx, http.MethodGet, path, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}

// SyncStatus is the daemon's sync state and resolver cache counters.
type SyncStatus struct {
	State syncstate.State       `json:"state"`
	Cache recurrence.CacheStats `json:"cache"`
}

// SyncStatus fetches the daemon's sync state.
func (c *Client) SyncStatus(ctx context.Context) (*SyncStatus, error) {
	var s SyncStatus
	if err := c.do(ctx, http.MethodGet, "/sync", nil, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// ForceSync asks the daemon to run a reconciliation pass now.
func (c *Client) ForceSync(ctx context.Context) (reconcile.Report, error) {
	var rep reconcile.Report
	err := c.do(ctx, http.MethodPost, "/sync", nil, &rep)
	return rep, err
}
