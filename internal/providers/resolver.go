package providers

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"

	"shortvideo/internal/fileutil"
	"shortvideo/internal/services"
)

const userAgent = "shortvideo/1.0"

// HTTPResolver downloads http(s) sources.
type HTTPResolver struct {
	client *http.Client
}

// NewHTTPResolver returns a resolver using client, or a default client when nil.
// Request lifetime is bounded by the caller's context.
func NewHTTPResolver(client *http.Client) *HTTPResolver {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPResolver{client: client}
}

func (r *HTTPResolver) Name() string { return "http" }

func (r *HTTPResolver) Fetch(ctx context.Context, source string) (io.ReadCloser, error) {
	parsed, err := url.Parse(strings.TrimSpace(source))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") || parsed.Host == "" {
		return nil, services.Wrap(services.ErrValidation, "", "fetch source", fmt.Sprintf("unsupported source %q", source), nil)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, services.Wrap(services.ErrValidation, "", "fetch source", "build request", err)
	}
	req.Header.Set("User-Agent", userAgent)

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, services.Wrap(services.ErrCollaborator, "", "fetch source", parsed.Host, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_ = resp.Body.Close()
		return nil, services.Wrap(services.ErrCollaborator, "", "fetch source",
			fmt.Sprintf("%s returned %s", parsed.Host, resp.Status), nil)
	}
	return resp.Body, nil
}

// FileResolver reads sources from the local filesystem (plain paths or file:// URLs).
type FileResolver struct{}

// NewFileResolver returns a filesystem resolver.
func NewFileResolver() FileResolver { return FileResolver{} }

func (FileResolver) Name() string { return "file" }

func (FileResolver) Fetch(_ context.Context, source string) (io.ReadCloser, error) {
	path := strings.TrimSpace(source)
	if strings.HasPrefix(path, "file://") {
		parsed, err := url.Parse(path)
		if err != nil {
			return nil, services.Wrap(services.ErrValidation, "", "fetch source", "invalid file url", err)
		}
		path = parsed.Path
	}
	if err := fileutil.RequireRegularFile(path); err != nil {
		if os.IsNotExist(err) {
			return nil, services.Wrap(services.ErrValidation, "", "fetch source", fmt.Sprintf("source %q does not exist", path), nil)
		}
		return nil, services.Wrap(services.ErrValidation, "", "fetch source", path, err)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, services.Wrap(services.ErrCollaborator, "", "fetch source", path, err)
	}
	return f, nil
}
