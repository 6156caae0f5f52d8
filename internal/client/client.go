package client

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

	"shortvideo/internal/api"
	"shortvideo/internal/services"
)

// Client calls the shortvideo HTTP gateway.
type Client struct {
	baseURL string
	http    *http.Client
}

// New returns a client for the gateway at baseURL. A bare host:port is
// treated as http.
func New(baseURL string, timeout time.Duration) *Client {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	if baseURL != "" && !strings.Contains(baseURL, "://") {
		baseURL = "http://" + baseURL
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
	}
}

// APIError is a non-2xx gateway response. It unwraps to the services marker
// matching the status code so callers can classify it with errors.Is.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gateway returned %d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error {
	switch e.Status {
	case http.StatusNotFound:
		return services.ErrNotFound
	case http.StatusConflict:
		return services.ErrAlreadyExists
	case http.StatusBadRequest:
		return services.ErrValidation
	case http.StatusGatewayTimeout:
		return services.ErrTimeout
	case http.StatusBadGateway:
		return services.ErrCollaborator
	default:
		return services.ErrTransient
	}
}

// CreateTask registers a task.
func (c *Client) CreateTask(ctx context.Context, req api.CreateTaskRequest) (*api.Task, error) {
	var resp api.TaskResponse
	if err := c.call(ctx, http.MethodPost, "/api/tasks", req, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// ListOptions filters ListTasks.
type ListOptions struct {
	Status   string
	Platform string
	Tenant   string
	Page     int
	PageSize int
}

// ListTasks returns one page of tasks.
func (c *Client) ListTasks(ctx context.Context, opts ListOptions) (*api.TaskListResponse, error) {
	query := url.Values{}
	setIf(query, "status", opts.Status)
	setIf(query, "platform", opts.Platform)
	setIf(query, "tenant", opts.Tenant)
	if opts.Page > 0 {
		query.Set("page", strconv.Itoa(opts.Page))
	}
	if opts.PageSize > 0 {
		query.Set("pageSize", strconv.Itoa(opts.PageSize))
	}
	path := "/api/tasks"
	if encoded := query.Encode(); encoded != "" {
		path += "?" + encoded
	}
	var resp api.TaskListResponse
	if err := c.call(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// GetTask returns a task snapshot.
func (c *Client) GetTask(ctx context.Context, id string) (*api.Task, error) {
	var resp api.TaskResponse
	if err := c.call(ctx, http.MethodGet, api.TaskPath(id), nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Task, nil
}

// TriggerStep runs or queues one step. Failed step outcomes are returned as a
// response, not an error, so callers can show the reason.
func (c *Client) TriggerStep(ctx context.Context, id, step string, force bool) (*api.StepResponse, error) {
	path := api.TaskPath(id) + "/steps/" + url.PathEscape(step)
	if force {
		path += "?force=true"
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("trigger %s: %w", step, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	var out api.StepResponse
	if json.Unmarshal(body, &out) == nil && out.Outcome != "" {
		return &out, nil
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return nil, apiError(resp.StatusCode, body)
	}
	return nil, fmt.Errorf("trigger %s: unexpected response", step)
}

// RunAll starts a background full-pipeline run.
func (c *Client) RunAll(ctx context.Context, id string, force bool) (*api.RunResponse, error) {
	path := api.TaskPath(id) + "/run"
	if force {
		path += "?force=true"
	}
	var resp api.RunResponse
	if err := c.call(ctx, http.MethodPost, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Health returns the gateway health report. A not-ready gateway still
// returns its report.
func (c *Client) Health(ctx context.Context) (*api.HealthResponse, error) {
	var resp api.HealthResponse
	err := c.call(ctx, http.MethodGet, "/api/health", nil, &resp)
	if apiErr, ok := err.(*APIError); ok && apiErr.Status == http.StatusServiceUnavailable {
		return &resp, nil
	}
	if err != nil {
		return nil, err
	}
	return &resp, nil
}

// Download is an artifact stream or, for remote backends, a redirect URL.
type Download struct {
	Body        io.ReadCloser
	RedirectURL string
	Filename    string
	Size        int64
}

// Download fetches an artifact. The caller closes Body when set.
func (c *Client) Download(ctx context.Context, id, kind string) (*Download, error) {
	req, err := c.newRequest(ctx, http.MethodGet, api.TaskPath(id)+"/artifacts/"+url.PathEscape(kind), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", kind, err)
	}
	switch {
	case resp.StatusCode == http.StatusFound:
		resp.Body.Close()
		return &Download{RedirectURL: resp.Header.Get("Location")}, nil
	case resp.StatusCode >= http.StatusBadRequest:
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		return nil, apiError(resp.StatusCode, body)
	}
	return &Download{
		Body:     resp.Body,
		Filename: dispositionFilename(resp.Header.Get("Content-Disposition")),
		Size:     resp.ContentLength,
	}, nil
}

func (c *Client) call(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		body = bytes.NewReader(encoded)
	}
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		if out != nil && resp.StatusCode == http.StatusServiceUnavailable {
			_ = json.Unmarshal(data, out)
		}
		return apiError(resp.StatusCode, data)
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	if c.baseURL == "" {
		return nil, services.Wrap(services.ErrConfiguration, "", "gateway client", "server address is empty", nil)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func apiError(status int, body []byte) error {
	var payload api.ErrorResponse
	if err := json.Unmarshal(body, &payload); err != nil || payload.Error == "" {
		payload.Error = strings.TrimSpace(string(body))
	}
	if payload.Error == "" {
		payload.Error = http.StatusText(status)
	}
	return &APIError{Status: status, Message: payload.Error}
}

func dispositionFilename(header string) string {
	const marker = "filename="
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}
	name := strings.TrimSpace(header[idx+len(marker):])
	if semi := strings.Index(name, ";"); semi >= 0 {
		name = name[:semi]
	}
	return strings.Trim(name, `"`)
}

func setIf(query url.Values, key, value string) {
	if value = strings.TrimSpace(value); value != "" {
		query.Set(key, value)
	}
}
