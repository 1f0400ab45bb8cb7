package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"time"
)

// DefaultHeaders is the browser-like header set sent with every request.
var DefaultHeaders = http.Header{
	"User-Agent":      {"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"},
	"Accept":          {"text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8"},
	"Accept-Language": {"en-US,en;q=0.5"},
	"Connection":      {"keep-alive"},
}

// Response is the transport-neutral result of one GET.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       string
}

// Transport performs a single GET with no retry or delay logic.
type Transport interface {
	Get(ctx context.Context, rawURL string, header http.Header) (*Response, error)
}

// HTTPTransport is a plain net/http session with its own cookie jar, so
// cookies set by one run never leak into another.
type HTTPTransport struct {
	client *http.Client
}

// NewHTTPTransport creates a session with the given per-request timeout.
func NewHTTPTransport(timeout time.Duration) *HTTPTransport {
	jar, _ := cookiejar.New(nil)
	return &HTTPTransport{
		client: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
}

// NewHTTPTransportWithClient wraps an existing client.
func NewHTTPTransportWithClient(client *http.Client) *HTTPTransport {
	return &HTTPTransport{client: client}
}

func (t *HTTPTransport) Get(ctx context.Context, rawURL string, header http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, vals := range header {
		for _, v := range vals {
			req.Header.Add(k, v)
		}
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}

	return &Response{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       string(body),
	}, nil
}
