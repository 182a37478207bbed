package httpx

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultTimeout bounds a single round trip when no timeout is configured.
const DefaultTimeout = 30 * time.Second

// Option configures a Client.
type Option func(*Client) error

// WithHTTPClient overrides the HTTP client used by the helper. It takes
// precedence over WithTimeout and WithTLSPolicy.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) error {
		if h != nil {
			c.httpClient = h
			c.httpClientSet = true
		}
		return nil
	}
}

// WithHeaders assigns default headers added to every request.
func WithHeaders(h http.Header) Option {
	return func(c *Client) error {
		for k, values := range h {
			for _, v := range values {
				c.headers.Add(k, v)
			}
		}
		return nil
	}
}

// WithBasicAuth attaches HTTP basic authentication to every request.
func WithBasicAuth(username, password string) Option {
	return func(c *Client) error {
		c.username = username
		c.password = password
		c.hasAuth = true
		return nil
	}
}

// WithTimeout bounds each round trip. A non-positive value keeps the default.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) error {
		if d > 0 {
			c.timeout = d
		}
		return nil
	}
}

// WithTLSPolicy installs the connection-level TLS behaviour. Ignored when a
// full HTTP client is injected via WithHTTPClient.
func WithTLSPolicy(p TLSPolicy) Option {
	return func(c *Client) error {
		transport, err := p.Transport()
		if err != nil {
			return err
		}
		c.transport = transport
		return nil
	}
}

// Client wraps http.Client with a base URL, default headers and optional
// basic authentication. A failed attempt is reported immediately; retry
// policy is left to the caller.
type Client struct {
	baseURL       *url.URL
	httpClient    *http.Client
	httpClientSet bool
	transport     *http.Transport
	headers       http.Header
	timeout       time.Duration
	username      string
	password      string
	hasAuth       bool
}

// Request describes a single outbound request. An empty Path targets the
// base URL itself.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	Body   io.Reader
}

// NewClient creates a Client for the provided base URL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	if strings.TrimSpace(baseURL) == "" {
		return nil, errors.New("httpx: base URL is required")
	}

	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("httpx: invalid base URL: %w", err)
	}

	c := &Client{
		baseURL: parsed,
		headers: make(http.Header),
		timeout: DefaultTimeout,
	}

	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}

	if !c.httpClientSet {
		c.httpClient = &http.Client{Timeout: c.timeout}
		if c.transport != nil {
			c.httpClient.Transport = c.transport
		}
	}
	return c, nil
}

// Do executes the provided request. Non-2xx responses are returned as
// *HTTPError carrying the status, body and headers; network failures are
// classified into the ErrTimeout, ErrTLS and ErrConnection sentinels.
func (c *Client) Do(ctx context.Context, req *Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("httpx: request is nil")
	}
	if req.Method == "" {
		return nil, errors.New("httpx: HTTP method is required")
	}
	if ctx == nil {
		ctx = context.Background()
	}

	fullURL, err := c.buildURL(req.Path, req.Query)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, req.Body)
	if err != nil {
		return nil, err
	}

	httpReq.Header = cloneHeader(c.headers)
	for k, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(k, v)
		}
	}
	if c.hasAuth {
		httpReq.SetBasicAuth(c.username, c.password)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, classify(err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, c.handleError(resp)
	}
	return resp, nil
}

func (c *Client) buildURL(path string, q url.Values) (string, error) {
	full := *c.baseURL
	if path != "" {
		if !strings.HasPrefix(path, "/") {
			path = "/" + path
		}
		ref, err := url.Parse(path)
		if err != nil {
			return "", err
		}
		full = *c.baseURL.ResolveReference(ref)
	}
	if len(q) > 0 {
		full.RawQuery = q.Encode()
	}
	return full.String(), nil
}

func (c *Client) handleError(resp *http.Response) error {
	defer closeBody(resp.Body)
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("httpx: read error body: %w", err)
	}
	return &HTTPError{
		StatusCode: resp.StatusCode,
		Body:       body,
		Header:     resp.Header.Clone(),
	}
}

// ReadAllAndClose drains the reader and ensures it is closed.
func ReadAllAndClose(rc io.ReadCloser) ([]byte, error) {
	defer closeBody(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return data, nil
}

func closeBody(rc io.ReadCloser) {
	if rc != nil {
		_ = rc.Close()
	}
}

func cloneHeader(src http.Header) http.Header {
	dst := make(http.Header, len(src))
	for k, values := range src {
		vCopy := make([]string, len(values))
		copy(vCopy, values)
		dst[k] = vCopy
	}
	return dst
}
