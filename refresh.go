package request

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// RefreshState is the state of the refresh coordinator.
type RefreshState int

const (
	StateIdle RefreshState = iota
	StateRefreshing
)

func (s RefreshState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRefreshing:
		return "refreshing"
	default:
		return "unknown"
	}
}

// DefaultRefreshTimeout bounds the refresh call and the best-effort logout.
const DefaultRefreshTimeout = 5 * time.Second

// Refresher exchanges a refresh token for new tokens. An empty RefreshToken
// in the result means the server did not rotate it.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (Tokens, error)
}

// RefresherFunc adapts a function to Refresher.
type RefresherFunc func(ctx context.Context, refreshToken string) (Tokens, error)

func (f RefresherFunc) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	return f(ctx, refreshToken)
}

// LogoutFunc ends the server-side session. Its error is logged and ignored.
type LogoutFunc func(ctx context.Context, accessToken string) error

// ReplayFunc re-issues a suspended call with the refreshed access token.
type ReplayFunc func(ctx context.Context, accessToken string) (*Response, error)

// CoordinatorConfig wires the collaborators of a RefreshCoordinator.
type CoordinatorConfig struct {
	Credentials *Credentials
	Refresher   Refresher
	Logout      LogoutFunc
	Navigator   Navigator
	LoginPath   string
	Timeout     time.Duration
	Logger      Logger
	Metrics     *MetricsCollector
}

// RefreshCoordinator serializes token refreshes. Calls that observe an
// expired credential are queued as waiters; exactly one refresh runs per
// Idle->Refreshing transition and its result settles every waiter in FIFO
// order.
type RefreshCoordinator struct {
	mu    sync.Mutex
	state RefreshState
	queue []*waiter

	credentials *Credentials
	refresher   Refresher
	logout      LogoutFunc
	navigator   Navigator
	loginPath   string
	timeout     time.Duration
	logger      Logger
	metrics     *MetricsCollector
}

type waiter struct {
	ctx    context.Context
	replay ReplayFunc
	once   sync.Once
	done   chan struct{}
	resp   *Response
	err    error
}

func (w *waiter) settle(resp *Response, err error) {
	w.once.Do(func() {
		w.resp = resp
		w.err = err
		close(w.done)
	})
}

type issuedKey struct{}

// MarkReplayIssued reports that the replay running under ctx has been handed
// to the transport. The coordinator starts the next queued replay once the
// current one is issued or has returned, whichever comes first.
func MarkReplayIssued(ctx context.Context) {
	if issued, ok := ctx.Value(issuedKey{}).(func()); ok {
		issued()
	}
}

// replayWith runs the waiter's replay and closes issued no later than the
// replay's return.
func (w *waiter) replayWith(token string, issued chan struct{}) {
	var once sync.Once
	markIssued := func() { once.Do(func() { close(issued) }) }
	defer markIssued()

	if err := w.ctx.Err(); err != nil {
		w.settle(nil, err)
		return
	}
	defer func() {
		if r := recover(); r != nil {
			w.settle(nil, fmt.Errorf("replay panicked: %v", r))
		}
	}()
	resp, err := w.replay(context.WithValue(w.ctx, issuedKey{}, markIssued), token)
	w.settle(resp, err)
}

// NewRefreshCoordinator creates an idle coordinator.
func NewRefreshCoordinator(config CoordinatorConfig) *RefreshCoordinator {
	if config.Credentials == nil {
		config.Credentials = NewCredentials(nil)
	}
	if config.LoginPath == "" {
		config.LoginPath = DefaultLoginPath
	}
	if config.Timeout <= 0 {
		config.Timeout = DefaultRefreshTimeout
	}
	return &RefreshCoordinator{
		state:       StateIdle,
		credentials: config.Credentials,
		refresher:   config.Refresher,
		logout:      config.Logout,
		navigator:   config.Navigator,
		loginPath:   config.LoginPath,
		timeout:     config.Timeout,
		logger:      config.Logger,
		metrics:     config.Metrics,
	}
}

// State returns the current state.
func (rc *RefreshCoordinator) State() RefreshState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

// QueueLen returns the number of waiters not yet settled by a drain.
func (rc *RefreshCoordinator) QueueLen() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.queue)
}

// Submit suspends the caller behind the current refresh, starting one if the
// coordinator is idle. It returns the replayed call's result, or the refresh
// failure. If ctx ends first the caller gets ctx.Err() and its replay is
// skipped.
func (rc *RefreshCoordinator) Submit(ctx context.Context, replay ReplayFunc) (*Response, error) {
	w := &waiter{ctx: ctx, replay: replay, done: make(chan struct{})}

	rc.mu.Lock()
	rc.queue = append(rc.queue, w)
	start := rc.state == StateIdle
	if start {
		rc.state = StateRefreshing
	}
	queued := len(rc.queue)
	rc.mu.Unlock()

	rc.metrics.RecordRefreshWaiters(queued)
	if start {
		if rc.logger != nil {
			rc.logger.Info("Access token expired, refreshing")
		}
		go rc.run(context.WithoutCancel(ctx))
	} else if rc.logger != nil {
		rc.logger.Debug("Queued behind in-flight refresh", "waiters", queued)
	}

	select {
	case <-w.done:
	case <-ctx.Done():
		w.settle(nil, ctx.Err())
	}
	return w.resp, w.err
}

func (rc *RefreshCoordinator) run(ctx context.Context) {
	start := time.Now()
	var token string
	var err error

	defer func() {
		if r := recover(); r != nil {
			token = ""
			err = &ClientError{
				Type:    ErrorTypeRefreshFailed,
				Message: "token refresh panicked",
				Cause:   fmt.Errorf("%w: %v", ErrRefreshFailed, r),
			}
			rc.metrics.RecordRefresh(false, time.Since(start))
		}
		if err != nil {
			rc.terminate(ctx, err)
		}
		rc.settle(token, err)
	}()

	token, err = rc.refresh(ctx)
	rc.metrics.RecordRefresh(err == nil, time.Since(start))
}

func (rc *RefreshCoordinator) refresh(ctx context.Context) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, rc.timeout)
	defer cancel()

	refreshToken, err := rc.credentials.RefreshToken(ctx)
	if err != nil {
		return "", refreshError("load refresh token", err)
	}
	if refreshToken == "" {
		return "", refreshError("no refresh token", ErrNoRefreshToken)
	}
	if rc.refresher == nil {
		return "", refreshError("no refresher configured", nil)
	}

	tokens, err := rc.refresher.Refresh(ctx, refreshToken)
	if err != nil {
		return "", refreshError("refresh call failed", err)
	}
	if tokens.AccessToken == "" {
		return "", refreshError("refresh returned no access token", nil)
	}

	if err := rc.credentials.rotate(ctx, tokens.AccessToken, tokens.RefreshToken); err != nil && rc.logger != nil {
		rc.logger.Warn("Refreshed token not persisted", "error", err.Error())
	}
	if rc.logger != nil {
		rc.logger.Info("Access token refreshed")
	}
	return tokens.AccessToken, nil
}

// terminate ends the session after a failed refresh. Credentials are cleared,
// the server session is logged out on a best-effort basis and the navigator is
// sent to the login path, all before any waiter is rejected.
func (rc *RefreshCoordinator) terminate(ctx context.Context, cause error) {
	if rc.logger != nil {
		rc.logger.Warn("Token refresh failed, ending session", "error", cause.Error())
	}

	previous := rc.credentials.AccessToken()
	rc.guard("clear", func() {
		if err := rc.credentials.Clear(ctx); err != nil && rc.logger != nil {
			rc.logger.Error("Clearing credentials failed", "error", err.Error())
		}
	})

	if rc.logout != nil {
		rc.guard("logout", func() {
			logoutCtx, cancel := context.WithTimeout(ctx, rc.timeout)
			defer cancel()
			if err := rc.logout(logoutCtx, previous); err != nil && rc.logger != nil {
				rc.logger.Debug("Logout after failed refresh ignored", "error", err.Error())
			}
		})
	}

	if rc.navigator != nil {
		rc.guard("redirect", func() { rc.navigator.Redirect(ctx, rc.loginPath) })
	}
}

// guard runs a user-supplied hook, logging and swallowing a panic so the
// waiters still settle.
func (rc *RefreshCoordinator) guard(hook string, fn func()) {
	defer func() {
		if r := recover(); r != nil && rc.logger != nil {
			rc.logger.Error("Session hook panicked", "hook", hook, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// settle drains the queue in FIFO order, rejecting on failure and issuing
// replays on success. Each replay runs on its own goroutine; the next one
// starts once the previous is issued, so replays leave in queue order but
// finish independently. The coordinator returns to Idle as soon as the queue
// is empty, without waiting for replays to complete.
func (rc *RefreshCoordinator) settle(token string, err error) {
	for {
		rc.mu.Lock()
		if len(rc.queue) == 0 {
			rc.state = StateIdle
			rc.mu.Unlock()
			break
		}
		w := rc.queue[0]
		rc.queue[0] = nil
		rc.queue = rc.queue[1:]
		rc.mu.Unlock()

		if err != nil {
			w.settle(nil, err)
			continue
		}
		issued := make(chan struct{})
		go w.replayWith(token, issued)
		<-issued
	}
	rc.metrics.RecordRefreshWaiters(0)
}

func refreshError(message string, cause error) *ClientError {
	wrapped := ErrRefreshFailed
	if cause != nil {
		wrapped = fmt.Errorf("%w: %w", ErrRefreshFailed, cause)
	}
	return &ClientError{
		Type:      ErrorTypeRefreshFailed,
		Message:   message,
		Cause:     wrapped,
		Timestamp: time.Now(),
	}
}

// IsRefreshFailed reports whether err is a failed token refresh.
func IsRefreshFailed(err error) bool {
	return errors.Is(err, ErrRefreshFailed)
}
