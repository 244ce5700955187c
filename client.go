package request

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

// Default client settings.
const (
	DefaultTimeout          = 30 * time.Second
	DefaultAuthScheme       = "Bearer"
	DefaultMaxResponseBytes = 64 << 20
)

// Client sends requests to the backstage API through an ordered pipeline of
// request and response steps. It deduplicates identical in-flight calls,
// refreshes expired credentials exactly once for any number of concurrent
// callers, and turns business failures into notifications. It is safe for
// concurrent use.
type Client struct {
	httpClient       *http.Client
	timeout          time.Duration
	baseURL          *url.URL
	authScheme       string
	maxResponseBytes int64

	credentials  *Credentials
	tokenStore   TokenStore
	pending      *PendingRegistry
	refreshCodes map[int]struct{}

	refresher      Refresher
	logout         LogoutFunc
	refreshTimeout time.Duration
	loginPath      string
	coordinator    *RefreshCoordinator

	classifier *Classifier
	notifier   Notifier
	navigator  Navigator

	middleware         []Middleware
	extraRequestSteps  []RequestStep
	extraResponseSteps []ResponseStep
	pipeline           *Pipeline
	rateLimiter        *RateLimiterRegistry

	metrics *MetricsCollector
	debug   *DebugConfig
	logger  Logger

	validationError error
}

// New constructs a Client using the provided functional options. A best effort
// validation is performed; call IsValid / ValidationError for errors. Do
// returns the validation error for every call on an invalid client.
func New(options ...Option) *Client {
	client := &Client{
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		timeout:          DefaultTimeout,
		authScheme:       DefaultAuthScheme,
		maxResponseBytes: DefaultMaxResponseBytes,
		refreshCodes:     map[int]struct{}{CodeUnauthorized: {}},
		refreshTimeout:   DefaultRefreshTimeout,
		loginPath:        DefaultLoginPath,
		classifier:       DefaultClassifier(),
		debug:            DefaultDebugConfig(),
		logger:           nopLogger{},
	}

	for _, option := range options {
		option(client)
	}

	if client.credentials == nil {
		client.credentials = NewCredentials(client.tokenStore)
	}
	client.pending = NewPendingRegistry()
	client.pending.metrics = client.metrics
	client.coordinator = NewRefreshCoordinator(CoordinatorConfig{
		Credentials: client.credentials,
		Refresher:   client.refresher,
		Logout:      client.logout,
		Navigator:   client.navigator,
		LoginPath:   client.loginPath,
		Timeout:     client.refreshTimeout,
		Logger:      client.logger,
		Metrics:     client.metrics,
	})
	client.pipeline = client.defaultPipeline()

	if err := client.ValidateConfiguration(); err != nil {
		client.validationError = err
	}

	return client
}

// Do sends req through the pipeline. A call that fails because its
// credential expired is suspended behind a single token refresh and replayed
// once with the new token. Every failure except a superseded duplicate is
// classified and routed to the notifier and navigator before Do returns.
func (c *Client) Do(ctx context.Context, req *Request) (*Response, error) {
	if c.validationError != nil {
		return nil, c.validationError
	}
	if req == nil {
		return nil, &ClientError{Type: ErrorTypeValidation, Message: "nil request", Timestamp: time.Now()}
	}

	prepared, err := prepareRequest(req)
	if err != nil {
		return nil, c.newError(ErrorTypeValidation, "read request body", err, &Call{Request: req})
	}

	start := time.Now()
	method, endpoint := requestLabels(prepared)
	requestID := c.newRequestID()

	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("Starting request", "requestID", requestID, "method", method, "endpoint", endpoint)
	}
	c.metrics.RecordRequestStart(method, endpoint)

	resp, err := c.execute(ctx, prepared, requestID, "", false)
	if err != nil && errorType(err) == ErrorTypeAuthExpired {
		if c.debugEnabled(c.debug.LogRefresh) {
			c.logger.Debug("Suspending call for token refresh", "requestID", requestID)
		}
		resp, err = c.coordinator.Submit(ctx, func(ctx context.Context, token string) (*Response, error) {
			c.metrics.RecordReplay()
			if c.debugEnabled(c.debug.LogRefresh) {
				c.logger.Debug("Replaying call", "requestID", requestID)
			}
			return c.execute(ctx, prepared, requestID, token, true)
		})
	}

	c.metrics.RecordRequestEnd(method, endpoint)
	c.metrics.RecordRequest(method, endpoint, outcomeLabel(err), time.Since(start))

	if err != nil {
		if !IsDuplicateCancelled(err) {
			c.metrics.RecordError(errorLabel(err), method, endpoint)
		}
		if c.debugEnabled(c.debug.LogRequests) {
			c.logger.Debug("Request failed", "requestID", requestID, "error", err.Error(), "duration", time.Since(start))
		}
		c.dispatch(ctx, c.classifier.ClassifyError(err))
		return nil, err
	}

	if c.debugEnabled(c.debug.LogRequests) {
		c.logger.Debug("Request completed", "requestID", requestID, "status", resp.StatusCode, "replayed", resp.Replayed, "duration", time.Since(start))
	}
	return resp, nil
}

// execute runs one pass through the pipeline. token overrides the stored
// access token for replays.
func (c *Client) execute(ctx context.Context, req *Request, requestID, token string, replay bool) (*Response, error) {
	call := &Call{
		Request:     req,
		RequestID:   requestID,
		Replay:      replay,
		Started:     time.Now(),
		accessToken: token,
	}

	if err := c.pipeline.runRequest(ctx, call); err != nil {
		c.pending.Resolve(call.handle)
		return nil, err
	}

	out := &Outcome{}
	if c.rateLimiter != nil {
		waited, key, err := c.rateLimiter.Wait(call.HTTPRequest.Context(), call.HTTPRequest)
		if waited {
			c.metrics.RecordRateLimited(key)
			if c.debugEnabled(c.debug.LogRateLimit) {
				c.logger.Debug("Rate limited", "requestID", requestID, "key", key)
			}
		}
		if err != nil {
			out.TransportErr = err
		}
	}

	MarkReplayIssued(ctx)
	if out.TransportErr == nil {
		httpResp, err := c.executeMiddleware(call.HTTPRequest)
		if err != nil {
			out.TransportErr = err
		} else {
			out.HTTPResponse = httpResp
			out.Body, out.TransportErr = c.readBody(httpResp)
		}
	}

	c.pipeline.runResponse(call, out)
	if !out.Settled() {
		out.Fail(c.newError(ErrorTypeTransport, "response not handled", nil, call))
	}
	return out.Result()
}

func (c *Client) executeMiddleware(req *http.Request) (*http.Response, error) {
	if len(c.middleware) == 0 {
		return c.httpClient.Do(req)
	}

	current := RoundTripperFunc(c.httpClient.Do)

	for i := len(c.middleware) - 1; i >= 0; i-- {
		middleware := c.middleware[i]
		next := current
		current = RoundTripperFunc(func(r *http.Request) (*http.Response, error) {
			return middleware(r, next)
		})
	}

	return current.RoundTrip(req)
}

func (c *Client) readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()

	if c.maxResponseBytes <= 0 {
		return io.ReadAll(resp.Body)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, c.maxResponseBytes+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > c.maxResponseBytes {
		return nil, fmt.Errorf("response body exceeds %d bytes", c.maxResponseBytes)
	}
	return body, nil
}

// dispatch performs a classified action through the notifier and navigator.
func (c *Client) dispatch(ctx context.Context, action Action) {
	switch action.Kind {
	case ActionNotify:
		c.notify(ctx, action.Message)
	case ActionNotifyAndRedirect:
		c.notify(ctx, action.Message)
		if c.navigator == nil {
			return
		}
		path := action.Path
		if path == "" {
			path = c.loginPath
		}
		c.navigator.Redirect(ctx, path)
	}
}

func (c *Client) notify(ctx context.Context, message string) {
	if c.notifier != nil && message != "" {
		c.notifier.Notify(ctx, message)
	}
}

func (c *Client) newRequestID() string {
	if c.debug != nil && c.debug.RequestIDGen != nil {
		return c.debug.RequestIDGen()
	}
	return ""
}

func (c *Client) debugEnabled(flag bool) bool {
	return c.debug != nil && c.debug.Enabled && flag
}

// Get sends a GET request for path with the given query params.
func (c *Client) Get(ctx context.Context, path string, params Params) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: path, Params: params})
}

// Post sends body as a POST request to path.
func (c *Client) Post(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPost, URL: path, Body: body})
}

// Put sends body as a PUT request to path.
func (c *Client) Put(ctx context.Context, path string, body interface{}) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodPut, URL: path, Body: body})
}

// Delete sends a DELETE request for path.
func (c *Client) Delete(ctx context.Context, path string, params Params) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodDelete, URL: path, Params: params})
}

// Download fetches path as a binary export. An empty file is reported as an
// EmptyExport error.
func (c *Client) Download(ctx context.Context, path string, params Params) (*Response, error) {
	return c.Do(ctx, &Request{Method: http.MethodGet, URL: path, Params: params, ResponseType: ResponseBlob})
}

// GetJSON sends a GET request and decodes the envelope data into out.
func (c *Client) GetJSON(ctx context.Context, path string, params Params, out interface{}) error {
	resp, err := c.Get(ctx, path, params)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// PostJSON sends body as a POST request and decodes the envelope data into out.
func (c *Client) PostJSON(ctx context.Context, path string, body, out interface{}) error {
	resp, err := c.Post(ctx, path, body)
	if err != nil {
		return err
	}
	return resp.Decode(out)
}

// Pending exposes the registry of in-flight calls.
func (c *Client) Pending() *PendingRegistry {
	return c.pending
}

// Coordinator exposes the token refresh coordinator.
func (c *Client) Coordinator() *RefreshCoordinator {
	return c.coordinator
}

// Credentials exposes the client's token holder.
func (c *Client) Credentials() *Credentials {
	return c.credentials
}

// Pipeline exposes the configured step order.
func (c *Client) Pipeline() *Pipeline {
	return c.pipeline
}

// IsValid reports whether configuration validation passed at construction.
func (c *Client) IsValid() bool {
	return c.validationError == nil
}

// ValidationError returns the configuration validation error, if any.
func (c *Client) ValidationError() error {
	return c.validationError
}

// prepareRequest copies req and buffers a streaming body so the call can be
// replayed after a refresh.
func prepareRequest(req *Request) (*Request, error) {
	prepared := *req
	if reader, ok := req.Body.(io.Reader); ok {
		data, err := io.ReadAll(reader)
		if err != nil {
			return nil, err
		}
		prepared.Body = data
	}
	return &prepared, nil
}

func requestLabels(req *Request) (string, string) {
	method := strings.ToUpper(strings.TrimSpace(req.Method))
	if method == "" {
		method = http.MethodGet
	}
	endpoint := req.URL
	if parsed, err := url.Parse(req.URL); err == nil {
		endpoint = parsed.Path
	}
	if endpoint == "" {
		endpoint = "/"
	}
	return method, endpoint
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case IsDuplicateCancelled(err):
		return "superseded"
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return "cancelled"
	default:
		return "failure"
	}
}

func errorLabel(err error) string {
	if t := errorType(err); t != "" {
		return t
	}
	return "Unknown"
}
