package frappe

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

	"go.uber.org/zap"

	"erpnext-bridge/internal/instrument"
)

const (
	MethodEndpoint   = "/api/method"
	ResourceEndpoint = "/api/resource"

	maxResponseBytes = 16 << 20
)

// RequestMiddleware runs before every outbound request.
type RequestMiddleware func(ctx context.Context, req *http.Request) error

// ResponseMiddleware runs after every response, in order. The first error
// aborts the call.
type ResponseMiddleware func(resp *Response) error

// Request describes one backend call. At most one of JSON and Form is set.
type Request struct {
	Method  string
	Path    string
	Query   url.Values
	JSON    any
	Form    url.Values
	Headers map[string]string
}

// Response is a received backend response with its body decoded.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
	// JSON is the decoded body, nil when the body is not valid JSON.
	JSON any
	URL  string

	request     *Request
	requestBody []byte
}

// Object returns the decoded body as a JSON object, or nil.
func (r *Response) Object() map[string]any {
	obj, _ := r.JSON.(map[string]any)
	return obj
}

// Client is the ERPNext / Frappe REST transport.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *zap.Logger
	before  []RequestMiddleware
	after   []ResponseMiddleware
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithTimeout sets the timeout of the default HTTP client.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// WithLogger sets the logger used by the client and its middleware.
func WithLogger(l *zap.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// NewClient creates a client for the site at baseURL with the default
// request and response middleware.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.before = []RequestMiddleware{includeBearerToken, acceptJSON}
	c.after = []ResponseMiddleware{catch500s(c.logger), catch400s(c.logger), mustBeJSON, mustBe200}
	return c
}

// URL returns the absolute URL of path with the given query.
func (c *Client) URL(path string, query url.Values) string {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}
	return u
}

// Do sends the request through the middleware chain.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	ctx, span := instrument.GetInstrumenter(ctx).StartSpan(ctx, "frappe", "client", strings.ToLower(req.Method))
	defer span.End()
	span.SetMetadata("path", req.Path)

	var body []byte
	var contentType string
	switch {
	case req.JSON != nil:
		b, err := json.Marshal(req.JSON)
		if err != nil {
			span.SetStatus("error")
			return nil, fmt.Errorf("marshal %s %s body: %w", req.Method, req.Path, err)
		}
		body, contentType = b, "application/json"
	case req.Form != nil:
		body, contentType = []byte(req.Form.Encode()), "application/x-www-form-urlencoded"
	}

	fullURL := c.URL(req.Path, req.Query)
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, fullURL, bytes.NewReader(body))
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("build request: %w", err)
	}
	if contentType != "" {
		httpReq.Header.Set("Content-Type", contentType)
	}
	for k, v := range req.Headers {
		httpReq.Header.Set(k, v)
	}
	for _, mw := range c.before {
		if err := mw(ctx, httpReq); err != nil {
			span.SetStatus("error")
			return nil, err
		}
	}

	start := time.Now()
	httpResp, err := c.http.Do(httpReq)
	if err != nil {
		span.SetStatus("error")
		span.SetMetadata("error", err.Error())
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.Path, err)
	}
	defer httpResp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, maxResponseBytes))
	if err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("read %s %s response: %w", req.Method, req.Path, err)
	}

	resp := &Response{
		Status:      httpResp.StatusCode,
		Header:      httpResp.Header,
		Body:        respBody,
		URL:         fullURL,
		request:     &req,
		requestBody: body,
	}
	if len(respBody) > 0 {
		var decoded any
		if json.Unmarshal(respBody, &decoded) == nil {
			resp.JSON = decoded
		}
	}

	span.SetMetadata("status_code", resp.Status)
	c.logger.Debug("backend call",
		zap.String("method", req.Method),
		zap.String("path", req.Path),
		zap.Int("status", resp.Status),
		zap.Duration("elapsed", time.Since(start)))

	for _, mw := range c.after {
		if err := mw(resp); err != nil {
			span.SetStatus("error")
			return nil, err
		}
	}
	span.SetStatus("ok")
	return resp, nil
}

type tokenKey struct{}

// WithAccessToken attaches the backend bearer token to ctx.
func WithAccessToken(ctx context.Context, token string) context.Context {
	return context.WithValue(ctx, tokenKey{}, token)
}

// AccessTokenFromContext returns the bearer token attached to ctx, or "".
func AccessTokenFromContext(ctx context.Context) string {
	s, _ := ctx.Value(tokenKey{}).(string)
	return s
}

// includeBearerToken sets the Authorization header when credentials are present.
func includeBearerToken(ctx context.Context, req *http.Request) error {
	if token := AccessTokenFromContext(ctx); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	return nil
}

func acceptJSON(_ context.Context, req *http.Request) error {
	req.Header.Set("Accept", "application/json")
	return nil
}

func catch500s(logger *zap.Logger) ResponseMiddleware {
	return func(resp *Response) error {
		if resp.Status == http.StatusInternalServerError {
			logger.Error("backend internal error", zap.String("url", resp.URL), zap.ByteString("body", truncate(resp.Body, 2048)))
			return &Error{Kind: KindBackendFault, Status: resp.Status, URL: resp.URL,
				Message: "ERPNext encountered an unexpected condition that prevented it from fulfilling the request."}
		}
		if resp.Status > http.StatusInternalServerError {
			return &Error{Kind: KindBackendFault, Status: resp.Status, URL: resp.URL,
				Message: "ERPNext is aware that it has erred or is incapable of performing the requested method."}
		}
		return nil
	}
}

func catch400s(logger *zap.Logger) ResponseMiddleware {
	return func(resp *Response) error {
		switch {
		case resp.Status == http.StatusExpectationFailed:
			var msgs []string
			if obj := resp.Object(); obj != nil {
				msgs = parseServerMessages(obj["_server_messages"])
			}
			return &Error{Kind: KindValidationRejected, Status: resp.Status, URL: resp.URL,
				Message: "The server did not understand your request.", ServerMessages: msgs}
		case resp.Status == http.StatusConflict:
			return &Error{Kind: KindConflict, Status: resp.Status, URL: resp.URL,
				Message: fmt.Sprintf("This document seems to exist already: %s", truncate(resp.requestBody, 512))}
		case resp.Status == http.StatusNotFound:
			return &Error{Kind: KindNotFound, Status: resp.Status, URL: resp.URL,
				Message: fmt.Sprintf("The requested resource was not found: %s", resp.URL)}
		case resp.Status == http.StatusForbidden:
			logger.Warn("backend refused authorization, credentials may be expired", zap.String("url", resp.URL))
			return &Error{Kind: KindAuthExpired, Status: resp.Status, URL: resp.URL,
				Message: "ERPNext understood the request but refuses to authorize it."}
		case resp.Status == http.StatusUnauthorized:
			logger.Warn("backend rejected credentials", zap.String("url", resp.URL))
			return &Error{Kind: KindAuthExpired, Status: resp.Status, URL: resp.URL,
				Message: "ERPNext requires valid credentials."}
		case resp.Status >= 400:
			return &Error{Kind: KindClientError, Status: resp.Status, URL: resp.URL,
				Message: "Probably you did something wrong."}
		}
		return nil
	}
}

func mustBeJSON(resp *Response) error {
	if resp.JSON == nil {
		return &Error{Kind: KindNotJSON, Status: resp.Status, URL: resp.URL,
			Message: fmt.Sprintf("Expected a JSON response. Got %q.", resp.Header.Get("Content-Type"))}
	}
	return nil
}

func mustBe200(resp *Response) error {
	if resp.Status >= 300 {
		return &Error{Kind: KindUnexpectedStatus, Status: resp.Status, URL: resp.URL,
			Message: fmt.Sprintf("The request was not answered as expected: %s", truncate(resp.Body, 512))}
	}
	return nil
}

func truncate(b []byte, n int) []byte {
	if len(b) <= n {
		return b
	}
	return b[:n]
}
