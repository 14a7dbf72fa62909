package hostfuncs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/yoktobit/wassette/domain/ports"
)

// HTTPRequest contains parameters for an outbound HTTP request.
type HTTPRequest struct {
	// Headers contains request headers.
	Headers map[string]string `json:"headers,omitempty"`

	// Method is the HTTP method. Default is GET.
	Method string `json:"method"`

	// URL is the target URL.
	URL string `json:"url"`

	// Body is the request body.
	Body []byte `json:"body,omitempty"`

	// Timeout is the request timeout in milliseconds. Default is 30000.
	Timeout int `json:"timeout_ms,omitempty"`
}

// HTTPResponse contains the result of an outbound HTTP request.
type HTTPResponse struct {
	// Headers contains response headers.
	Headers map[string][]string `json:"headers,omitempty"`

	// Error contains the structured error if the request was denied or
	// failed.
	Error *ErrorResponse `json:"error,omitempty"`

	// Body is the response body, capped at the configured limit.
	Body []byte `json:"body,omitempty"`

	// StatusCode is the HTTP status code.
	StatusCode int `json:"status_code"`

	// BodyTruncated indicates the body was cut at the size limit.
	BodyTruncated bool `json:"body_truncated,omitempty"`
}

// HTTPOption configures outbound HTTP behavior.
type HTTPOption func(*httpConfig)

type httpConfig struct {
	client      *http.Client
	timeout     time.Duration
	maxBodySize int
}

func defaultHTTPConfig() httpConfig {
	return httpConfig{
		client:      http.DefaultClient,
		timeout:     30 * time.Second,
		maxBodySize: DefaultMaxResponseBody,
	}
}

// WithHTTPClient sets the underlying client.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(c *httpConfig) {
		if client != nil {
			c.client = client
		}
	}
}

// WithHTTPRequestTimeout sets the default request timeout.
func WithHTTPRequestTimeout(d time.Duration) HTTPOption {
	return func(c *httpConfig) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithHTTPMaxBodySize sets the maximum response body size.
func WithHTTPMaxBodySize(size int) HTTPOption {
	return func(c *httpConfig) {
		if size > 0 {
			c.maxBodySize = size
		}
	}
}

// PerformHTTPRequest executes an outbound HTTP request on behalf of a
// component. The target host must pass the component's network predicate
// before any connection is made.
func PerformHTTPRequest(ctx context.Context, req HTTPRequest, binding ports.EnforcementBinding, opts ...HTTPOption) HTTPResponse {
	cfg := defaultHTTPConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	target, err := url.Parse(req.URL)
	if err != nil || target.Hostname() == "" {
		resp := NewValidationError(fmt.Sprintf("invalid url %q", req.URL))
		return HTTPResponse{Error: &resp}
	}

	port := 443
	if target.Scheme == "http" {
		port = 80
	}
	if p := target.Port(); p != "" {
		port, err = strconv.Atoi(p)
		if err != nil {
			resp := NewValidationError(fmt.Sprintf("invalid port in url %q", req.URL))
			return HTTPResponse{Error: &resp}
		}
	}

	if err := binding.CheckNetwork(target.Hostname(), port); err != nil {
		resp := ErrorToResponse(err)
		return HTTPResponse{Error: &resp}
	}

	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	timeout := cfg.timeout
	if req.Timeout > 0 {
		timeout = time.Duration(req.Timeout) * time.Millisecond
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(reqCtx, method, req.URL, bytes.NewReader(req.Body))
	if err != nil {
		resp := NewValidationError(err.Error())
		return HTTPResponse{Error: &resp}
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := cfg.client.Do(httpReq)
	if err != nil {
		resp := NewInternalError(err.Error())
		return HTTPResponse{Error: &resp}
	}
	defer httpResp.Body.Close()

	body := NewBoundedBuffer(cfg.maxBodySize)
	if _, err := io.Copy(body, httpResp.Body); err != nil {
		resp := NewInternalError(err.Error())
		return HTTPResponse{Error: &resp}
	}

	return HTTPResponse{
		StatusCode:    httpResp.StatusCode,
		Headers:       httpResp.Header,
		Body:          body.Bytes(),
		BodyTruncated: body.Truncated,
	}
}
