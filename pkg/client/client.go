package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// Client is a session-authenticated HTTP client for the board API. It
// implements Applier, so a Queue can replay buffered mutations through it.
type Client struct {
	baseURL string
	http    *http.Client
}

// New creates a Client for the given base URL, e.g. "http://localhost:8080".
// The cookie jar carries the session across requests.
func New(baseURL string) (*Client, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, err
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Jar:     jar,
			Timeout: 10 * time.Second,
		},
	}, nil
}

// Login authenticates and stores the session cookie.
func (c *Client) Login(ctx context.Context, username, password string) error {
	body := map[string]string{"username": username, "password": password}
	return c.do(ctx, http.MethodPost, "/api/auth/login", body, nil)
}

// Apply replays one buffered mutation. Server rejections (4xx) come back
// wrapped in ErrPermanent; connection trouble and 5xx responses are
// returned as transient errors so the queue retries them.
func (c *Client) Apply(ctx context.Context, m Mutation) error {
	var payload json.RawMessage = m.Payload

	switch m.Type {
	case MutationCreateTask:
		return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/projects/%d/tasks", m.ProjectID), payload, nil)
	case MutationUpdateStatus:
		return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d/status", m.TaskID), payload, nil)
	case MutationUpdateAssignee:
		return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d/assignee", m.TaskID), payload, nil)
	case MutationUpdateFields:
		return c.do(ctx, http.MethodPatch, fmt.Sprintf("/api/tasks/%d", m.TaskID), payload, nil)
	case MutationDeleteTask:
		return c.do(ctx, http.MethodDelete, fmt.Sprintf("/api/tasks/%d", m.TaskID), nil, nil)
	case MutationAddComment:
		return c.do(ctx, http.MethodPost, fmt.Sprintf("/api/tasks/%d/comments", m.TaskID), payload, nil)
	default:
		return fmt.Errorf("%w: unknown mutation type %q", ErrPermanent, m.Type)
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrPermanent, err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPermanent, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("server error: %s", resp.Status)
	case resp.StatusCode >= 400:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%w: %s: %s", ErrPermanent, resp.Status, bytes.TrimSpace(data))
	}

	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
