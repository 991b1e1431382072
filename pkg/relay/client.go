package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

const MIMEOctetStream = "application/octet-stream"

// RequestSpec describes exactly one outbound call.
type RequestSpec struct {
	Method string
	URL    string
	Header http.Header
	Body   []byte
	// Binary marks responses that must be relayed byte for byte (file exports).
	Binary bool
}

type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

func (r *Response) ContentType() string {
	return r.Header.Get("Content-Type")
}

type ClientOption func(*Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

func WithUserAgent(userAgent string) ClientOption {
	return func(c *Client) {
		c.userAgent = userAgent
	}
}

func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client performs single outbound calls and maps the outcome into a Response or an *Error.
// It holds no per-request state and is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	userAgent  string
	timeout    time.Duration
}

func NewClient(opts ...ClientOption) *Client {
	c := &Client{}
	for _, opt := range opts {
		opt(c)
	}

	if c.httpClient == nil {
		var transport http.RoundTripper = http.DefaultTransport
		if c.userAgent != "" {
			transport = AddUserAgentTransport(transport, c.userAgent)
		}
		c.httpClient = &http.Client{
			Transport: transport,
			Timeout:   c.timeout,
		}
	}

	return c
}

// HTTPClient exposes the underlying client for libraries that perform the call themselves.
func (c *Client) HTTPClient() *http.Client {
	return c.httpClient
}

// Do issues the call described by spec. Errors are always of type *Error.
func (c *Client) Do(ctx context.Context, spec *RequestSpec) (*Response, error) {
	var body io.Reader
	if spec.Body != nil {
		body = bytes.NewReader(spec.Body)
	}

	req, err := http.NewRequestWithContext(ctx, spec.Method, spec.URL, body)
	if err != nil {
		return nil, TransportError(fmt.Errorf("build request: %w", withURL(err, "REDACTED")))
	}
	for name, values := range spec.Header {
		for _, value := range values {
			req.Header.Add(name, value)
		}
	}

	slog.Debug("Calling upstream", "method", spec.Method, "url", redactURL(req), "binary", spec.Binary)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, TransportError(withURL(err, redactURL(req)))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, TransportError(fmt.Errorf("read upstream response: %w", err))
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		slog.Debug("Upstream error", "url", redactURL(req), "status", resp.StatusCode)
		return nil, UpstreamError(resp.StatusCode, respBody, resp.Header.Get("Content-Type"))
	}

	header := resp.Header.Clone()
	if spec.Binary && header.Get("Content-Type") == "" {
		header.Set("Content-Type", MIMEOctetStream)
	}

	return &Response{
		Status: resp.StatusCode,
		Header: header,
		Body:   respBody,
	}, nil
}

// withURL replaces the request URL quoted by net/http errors, which would
// otherwise hand the api keys of the relay to the caller.
func withURL(err error, redacted string) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		urlErr.URL = redacted
	}
	return err
}

// api keys travel in the query string of some upstreams
func redactURL(req *http.Request) string {
	u := *req.URL
	q := u.Query()
	for _, key := range []string{"key", "appid"} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	return u.String()
}
