package request

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"
)

// Default session endpoints.
const (
	DefaultRefreshPath = "/auth/refresh"
	DefaultLogoutPath  = "/backstage/logout"
)

const maxSessionResponseBytes = 1 << 20

// HTTPRefresher calls the refresh and logout endpoints with its own
// *http.Client. It never goes through a Client pipeline, so a refresh can
// neither be deduplicated nor trigger another refresh.
type HTTPRefresher struct {
	baseURL     string
	refreshPath string
	logoutPath  string
	authScheme  string
	httpClient  *http.Client
}

// HTTPRefresherOption configures an HTTPRefresher.
type HTTPRefresherOption func(*HTTPRefresher)

// WithRefreshPath overrides the refresh endpoint path.
func WithRefreshPath(path string) HTTPRefresherOption {
	return func(r *HTTPRefresher) {
		r.refreshPath = path
	}
}

// WithLogoutPath overrides the logout endpoint path.
func WithLogoutPath(path string) HTTPRefresherOption {
	return func(r *HTTPRefresher) {
		r.logoutPath = path
	}
}

// WithRefresherHTTPClient replaces the dedicated session client.
func WithRefresherHTTPClient(client *http.Client) HTTPRefresherOption {
	return func(r *HTTPRefresher) {
		r.httpClient = client
	}
}

// WithRefresherAuthScheme sets the Authorization scheme used on logout.
func WithRefresherAuthScheme(scheme string) HTTPRefresherOption {
	return func(r *HTTPRefresher) {
		r.authScheme = scheme
	}
}

// NewHTTPRefresher builds a refresher for baseURL. The session client sends
// cookies (credentials mode) and uses timeout, which should be shorter than
// the main client's.
func NewHTTPRefresher(baseURL string, timeout time.Duration, opts ...HTTPRefresherOption) *HTTPRefresher {
	if timeout <= 0 {
		timeout = DefaultRefreshTimeout
	}
	jar, _ := cookiejar.New(nil)
	r := &HTTPRefresher{
		baseURL:     strings.TrimRight(baseURL, "/"),
		refreshPath: DefaultRefreshPath,
		logoutPath:  DefaultLogoutPath,
		authScheme:  DefaultAuthScheme,
		httpClient: &http.Client{
			Timeout: timeout,
			Jar:     jar,
		},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

type refreshData struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Refresh implements Refresher.
func (r *HTTPRefresher) Refresh(ctx context.Context, refreshToken string) (Tokens, error) {
	payload, err := json.Marshal(refreshRequest{RefreshToken: refreshToken})
	if err != nil {
		return Tokens{}, fmt.Errorf("encode refresh request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+r.refreshPath, bytes.NewReader(payload))
	if err != nil {
		return Tokens{}, fmt.Errorf("create refresh request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxSessionResponseBytes))
	if err != nil {
		return Tokens{}, fmt.Errorf("read refresh response: %w", err)
	}

	env, err := decodeEnvelope(body)
	if err != nil {
		return Tokens{}, fmt.Errorf("refresh response (status %d): %w", resp.StatusCode, err)
	}
	if !env.Success() {
		return Tokens{}, &ClientError{
			Type:       ErrorTypeBusiness,
			Message:    env.Message,
			Code:       env.Code,
			StatusCode: resp.StatusCode,
			Method:     http.MethodPost,
			URL:        req.URL.String(),
			Timestamp:  time.Now(),
		}
	}

	var data refreshData
	if err := env.DecodeData(&data); err != nil {
		return Tokens{}, err
	}
	return Tokens{AccessToken: data.AccessToken, RefreshToken: data.RefreshToken}, nil
}

// Logout posts to the logout endpoint. Callers treat its error as advisory.
func (r *HTTPRefresher) Logout(ctx context.Context, accessToken string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.baseURL+r.logoutPath, nil)
	if err != nil {
		return fmt.Errorf("create logout request: %w", err)
	}
	if accessToken != "" {
		req.Header.Set("Authorization", r.authScheme+" "+accessToken)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("logout request: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxSessionResponseBytes))

	if resp.StatusCode >= 400 {
		return fmt.Errorf("logout returned status %d", resp.StatusCode)
	}
	return nil
}
