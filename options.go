package request

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/time/rate"
)

// WithBaseURL sets the URL relative request paths are joined to. An
// unparsable URL is reported by ValidateConfiguration.
func WithBaseURL(raw string) Option {
	return func(c *Client) {
		parsed, err := url.Parse(strings.TrimSpace(raw))
		if err != nil || !parsed.IsAbs() {
			c.baseURL = &url.URL{Opaque: raw}
			return
		}
		c.baseURL = parsed
	}
}

// WithTimeout sets the request timeout
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.timeout = d
		if c.httpClient != nil {
			c.httpClient.Timeout = d
		}
	}
}

// WithHTTPClient sets a custom HTTP client
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
		if client != nil && c.timeout != 0 && client.Timeout == 0 {
			client.Timeout = c.timeout
		}
	}
}

// WithAuthScheme sets the Authorization header scheme, "Bearer" by default.
func WithAuthScheme(scheme string) Option {
	return func(c *Client) {
		c.authScheme = scheme
	}
}

// WithMaxResponseBytes caps how much of a response body is read. Zero or
// less disables the cap.
func WithMaxResponseBytes(n int64) Option {
	return func(c *Client) {
		c.maxResponseBytes = n
	}
}

// WithCredentials shares an existing token holder with the client.
func WithCredentials(credentials *Credentials) Option {
	return func(c *Client) {
		c.credentials = credentials
	}
}

// WithTokenStore persists tokens in store. Ignored when WithCredentials is
// also given.
func WithTokenStore(store TokenStore) Option {
	return func(c *Client) {
		c.tokenStore = store
	}
}

// WithRefreshCodes replaces the business codes that mean the access token
// expired. HTTP 401 always does.
func WithRefreshCodes(codes ...int) Option {
	return func(c *Client) {
		c.refreshCodes = make(map[int]struct{}, len(codes))
		for _, code := range codes {
			c.refreshCodes[code] = struct{}{}
		}
	}
}

// WithRefresher sets how expired credentials are renewed. Without one every
// expired credential ends the session.
func WithRefresher(refresher Refresher) Option {
	return func(c *Client) {
		c.refresher = refresher
	}
}

// WithLogout sets the best-effort logout run when a refresh fails.
func WithLogout(logout LogoutFunc) Option {
	return func(c *Client) {
		c.logout = logout
	}
}

// WithHTTPRefresher wires an HTTPRefresher for both refresh and logout.
func WithHTTPRefresher(refresher *HTTPRefresher) Option {
	return func(c *Client) {
		c.refresher = refresher
		c.logout = refresher.Logout
	}
}

// WithRefreshTimeout bounds the refresh and logout calls.
func WithRefreshTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.refreshTimeout = d
	}
}

// WithLoginPath sets where the navigator is sent when the session ends.
func WithLoginPath(path string) Option {
	return func(c *Client) {
		c.loginPath = path
	}
}

// WithClassifier replaces the business code table.
func WithClassifier(classifier *Classifier) Option {
	return func(c *Client) {
		c.classifier = classifier
	}
}

// WithNotifier sets where user-facing messages go.
func WithNotifier(notifier Notifier) Option {
	return func(c *Client) {
		c.notifier = notifier
	}
}

// WithNavigator sets the redirect target for session ends.
func WithNavigator(navigator Navigator) Option {
	return func(c *Client) {
		c.navigator = navigator
	}
}

// WithMiddleware adds middleware to the client
func WithMiddleware(middleware ...Middleware) Option {
	return func(c *Client) {
		c.middleware = append(c.middleware, middleware...)
	}
}

// WithRequestSteps appends steps after the built-in request steps.
func WithRequestSteps(steps ...RequestStep) Option {
	return func(c *Client) {
		c.extraRequestSteps = append(c.extraRequestSteps, steps...)
	}
}

// WithResponseSteps inserts steps after release and before the built-in
// classification steps.
func WithResponseSteps(steps ...ResponseStep) Option {
	return func(c *Client) {
		c.extraResponseSteps = append(c.extraResponseSteps, steps...)
	}
}

// WithRateLimit limits every host to rps requests per second with the given
// burst. Calls wait for a token instead of failing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		c.rateLimiter = NewRateLimiterRegistry(DefaultHostKeyFunc, rate.NewLimiter(rate.Limit(rps), burst))
	}
}

// WithRateLimiterRegistry sets a custom per-key limiter registry.
func WithRateLimiterRegistry(registry *RateLimiterRegistry) Option {
	return func(c *Client) {
		c.rateLimiter = registry
	}
}

// WithMetrics enables Prometheus metrics collection
func WithMetrics() Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollector()
	}
}

// WithMetricsRegistry enables metrics on a dedicated registerer.
func WithMetricsRegistry(registry prometheus.Registerer) Option {
	return func(c *Client) {
		c.metrics = NewMetricsCollectorWithRegistry(registry)
	}
}

// WithMetricsCollector sets a custom metrics collector
func WithMetricsCollector(collector *MetricsCollector) Option {
	return func(c *Client) {
		c.metrics = collector
	}
}

// WithDebug enables debug logging with default configuration
func WithDebug() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
	}
}

// WithDebugConfig sets custom debug configuration
func WithDebugConfig(config *DebugConfig) Option {
	return func(c *Client) {
		c.debug = config
	}
}

// WithLogger sets a custom logger
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithSimpleLogger enables debug logging with a console logger
func WithSimpleLogger() Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.Enabled = true
		c.logger = NewSimpleLogger()
	}
}

// WithRequestIDGenerator sets a custom function for generating request IDs
func WithRequestIDGenerator(gen func() string) Option {
	return func(c *Client) {
		if c.debug == nil {
			c.debug = DefaultDebugConfig()
		}
		c.debug.RequestIDGen = gen
	}
}

// ValidateConfiguration validates the client configuration and returns an error if invalid
func (c *Client) ValidateConfiguration() error {
	var errors []string

	errors = append(errors, c.validateHTTPClientConfig()...)
	errors = append(errors, c.validateSessionConfig()...)
	errors = append(errors, c.validateDebugConfig()...)
	errors = append(errors, c.validateMiddlewareConfig()...)
	errors = append(errors, c.validateExtremeValues()...)

	if len(errors) > 0 {
		return &ClientError{
			Type:    ErrorTypeValidation,
			Message: "configuration validation failed",
			Cause:   fmt.Errorf("validation errors: %v", errors),
		}
	}

	return nil
}

func (c *Client) validateHTTPClientConfig() []string {
	var errors []string

	if c.httpClient == nil {
		errors = append(errors, "HTTP client cannot be nil")
	}
	if c.timeout <= 0 {
		errors = append(errors, "timeout must be positive")
	}
	if c.baseURL != nil && c.baseURL.Opaque != "" && c.baseURL.Scheme == "" {
		errors = append(errors, fmt.Sprintf("baseURL %q must be an absolute URL", c.baseURL.Opaque))
	}
	if strings.TrimSpace(c.authScheme) == "" {
		errors = append(errors, "authScheme cannot be empty")
	}

	return errors
}

func (c *Client) validateSessionConfig() []string {
	var errors []string

	if c.refreshTimeout <= 0 {
		errors = append(errors, "refreshTimeout must be positive")
	}
	if !strings.HasPrefix(c.loginPath, "/") {
		errors = append(errors, "loginPath must start with /")
	}
	if c.classifier == nil {
		errors = append(errors, "classifier cannot be nil")
	}
	if _, ok := c.refreshCodes[CodeSuccess]; ok {
		errors = append(errors, "refresh codes cannot include the success code")
	}

	return errors
}

func (c *Client) validateDebugConfig() []string {
	var errors []string

	if c.debug != nil && c.debug.Enabled && c.logger == nil {
		errors = append(errors, "logger must be set when debug is enabled")
	}

	return errors
}

func (c *Client) validateMiddlewareConfig() []string {
	var errors []string

	for i, middleware := range c.middleware {
		if middleware == nil {
			errors = append(errors, fmt.Sprintf("middleware[%d] cannot be nil", i))
		}
	}
	for i, step := range c.extraRequestSteps {
		if step.Apply == nil {
			errors = append(errors, fmt.Sprintf("request step[%d] %q has no Apply", i, step.Name))
		}
	}
	for i, step := range c.extraResponseSteps {
		if step.Apply == nil {
			errors = append(errors, fmt.Sprintf("response step[%d] %q has no Apply", i, step.Name))
		}
	}

	return errors
}

func (c *Client) validateExtremeValues() []string {
	var errors []string

	if c.timeout > 10*time.Minute {
		errors = append(errors, "timeout > 10m may cause requests to hang for too long")
	}
	if c.refreshTimeout > time.Minute {
		errors = append(errors, "refreshTimeout > 1m blocks every waiting call for too long")
	}

	return errors
}
