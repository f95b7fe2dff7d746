// Package client is a headless API client for the task service. It keeps a
// per-session optimistic cache so callers see a mutation's expected outcome
// immediately, reconciles against the server's response, and follows the
// service's SSE stream to stay consistent with changes made in other
// sessions.
package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"

	"github.com/Alan-crt/todo-app/domain"
	"github.com/Alan-crt/todo-app/session"
)

// Client talks to one task service on behalf of one principal.
type Client struct {
	httpClient *http.Client
	baseURL    string
	token      string
	logger     *log.Logger

	tasks    *session.Cache[domain.Task]
	coord    *session.Coordinator[domain.Task]
	degraded atomic.Bool
}

// New creates a Client for the given service base URL and bearer token.
func New(baseURL, token string, opts ...Option) *Client {
	c := &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		logger:     log.StandardLogger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.tasks = session.NewCache[domain.Task](0)
	c.coord = session.NewCoordinator(c.tasks, nil, c.logger)
	return c
}

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger replaces the logger.
func WithLogger(logger *log.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// CachedTask returns the session's current view of a task, staged or
// committed, if the cache holds one.
func (c *Client) CachedTask(id string) (domain.Task, bool) {
	return c.tasks.Get(id)
}

// FetchTasks loads tasks matching the filter from the server and commits
// them into the session cache as authoritative.
func (c *Client) FetchTasks(ctx context.Context, filter domain.TaskFilter) ([]domain.Task, error) {
	q := url.Values{}
	if filter.ListID != "" {
		q.Set("listId", filter.ListID)
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.Priority != "" {
		q.Set("priority", string(filter.Priority))
	}
	if filter.Tag != "" {
		q.Set("tag", filter.Tag)
	}
	path := "/api/tasks"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp struct {
		Tasks []domain.Task `json:"tasks"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	for _, t := range resp.Tasks {
		c.tasks.Commit(t.ID, t)
	}
	return resp.Tasks, nil
}

// CreateTask creates a task. Creation is not staged optimistically because
// the server assigns the id; the authoritative result is committed on
// success.
func (c *Client) CreateTask(ctx context.Context, input domain.TaskInput) (domain.Task, error) {
	if err := input.Validate(); err != nil {
		return domain.Task{}, err
	}
	var created domain.Task
	if err := c.do(ctx, http.MethodPost, "/api/tasks", input, &created); err != nil {
		return domain.Task{}, err
	}
	c.tasks.Commit(created.ID, created)
	return created, nil
}

// UpdateTask applies a partial update. The patched task is staged into the
// cache before the call; on failure the pre-stage value is restored and the
// error returned to the caller.
func (c *Client) UpdateTask(ctx context.Context, id string, patch domain.TaskPatch) (domain.Task, error) {
	if err := patch.Validate(); err != nil {
		return domain.Task{}, err
	}

	var optimistic *domain.Task
	if current, ok := c.tasks.Get(id); ok {
		staged := patch.Apply(current, time.Now().UTC())
		optimistic = &staged
	}

	result, err := c.coord.Execute(ctx, id, session.OpUpdate, optimistic,
		func(ctx context.Context) (*domain.Task, error) {
			var updated domain.Task
			if err := c.do(ctx, http.MethodPut, "/api/tasks/"+url.PathEscape(id), patch, &updated); err != nil {
				return nil, err
			}
			return &updated, nil
		}, nil)
	if err != nil {
		return domain.Task{}, err
	}
	return *result, nil
}

// DeleteTask removes a task. The cache entry is evicted optimistically and
// restored if the server rejects the call.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	_, err := c.coord.Execute(ctx, id, session.OpDelete, nil,
		func(ctx context.Context) (*domain.Task, error) {
			if err := c.do(ctx, http.MethodDelete, "/api/tasks/"+url.PathEscape(id), nil, nil); err != nil {
				return nil, err
			}
			return nil, nil
		}, nil)
	return err
}

// MoveTask reorders a task by drag indices over the given display sequence.
// The moved task's new position is staged optimistically; the follow-up
// refetch settles final sibling positions.
func (c *Client) MoveTask(ctx context.Context, displayed []domain.Task, srcIndex, dstIndex int) error {
	target, ok, err := domain.TargetFromIndexes(displayed, srcIndex, dstIndex)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	moved := displayed[srcIndex]
	staged := moved
	staged.Position = target

	_, err = c.coord.Execute(ctx, moved.ID, session.OpUpdate, &staged,
		func(ctx context.Context) (*domain.Task, error) {
			body := map[string]int{"newPosition": target}
			if err := c.do(ctx, http.MethodPatch, "/api/tasks/"+url.PathEscape(moved.ID)+"/position", body, nil); err != nil {
				return nil, err
			}
			return nil, nil
		}, nil)
	return err
}

// PendingState exposes the coordinator state for a task id, mainly for
// polling UIs and tests.
func (c *Client) PendingState(id string) session.State {
	return c.coord.PendingState(id)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := sonic.Marshal(body)
		if err != nil {
			return domain.Internal("encode request", err)
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return domain.Internal("build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Internal("request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return errorFromStatus(resp)
	}
	if out == nil {
		return nil
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Internal("read response", err)
	}
	if err := sonic.Unmarshal(data, out); err != nil {
		return domain.Internal("decode response", err)
	}
	return nil
}

func errorFromStatus(resp *http.Response) error {
	var payload struct {
		Error string `json:"error"`
	}
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	_ = sonic.Unmarshal(data, &payload)
	msg := payload.Error
	if msg == "" {
		msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return domain.Validation(msg)
	case http.StatusUnauthorized:
		return domain.Unauthorized(msg)
	case http.StatusForbidden:
		return domain.Forbidden(msg)
	case http.StatusNotFound:
		return domain.NotFound(msg)
	case http.StatusConflict:
		return domain.Conflict(msg)
	default:
		return domain.Internal(msg, nil)
	}
}
