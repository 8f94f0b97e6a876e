// Package client is the Go SDK for the authentication service. It keeps
// the session alive on the caller's behalf: tokens are stored through a
// TokenStore, the access token is refreshed proactively before it expires,
// a request that still hits TOKEN_EXPIRED is retried once after a refresh,
// and a configurable inactivity window tears the session down. All refresh
// paths funnel through one in-flight operation, so a timer and a retry can
// never race two rotations of the same refresh token.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/lumenlms/authcore"
)

// ErrNotAuthenticated is returned by calls that need a live session when
// there is none.
var ErrNotAuthenticated = errors.New("client: not authenticated")

// APIError is a structured error response from the service.
type APIError struct {
	Status     int
	Code       string
	Message    string
	RetryAfter int64
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (%d): %s", e.Code, e.Status, e.Message)
}

// Options configures a Client. Zero values fall back to the defaults named
// on each field.
type Options struct {
	// BaseURL is the service root, e.g. "https://api.lumen.example".
	BaseURL string
	// HTTPClient defaults to a client with a 30s timeout.
	HTTPClient *http.Client
	// Store defaults to an in-memory store.
	Store TokenStore
	// Logger defaults to slog.Default().
	Logger *slog.Logger
	// AccessTTL is the server's access token lifetime, default 15m. The
	// proactive refresh fires RefreshLead before this elapses.
	AccessTTL time.Duration
	// RefreshLead defaults to 1m.
	RefreshLead time.Duration
	// InactivityTimeout ends the session after this much idle time,
	// default 30m. Zero uses the default; negative disables the watchdog.
	InactivityTimeout time.Duration
	// OnSessionExpired fires once whenever the session ends for any reason
	// other than an explicit Logout: inactivity, a dead refresh token, or
	// the account disappearing server-side.
	OnSessionExpired func()
}

// Client is a stateful session handle. All methods are safe for concurrent
// use.
type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore
	logger  *slog.Logger

	accessTTL   time.Duration
	refreshLead time.Duration
	inactivity  time.Duration
	onExpired   func()

	sf singleflight.Group

	mu           sync.Mutex
	tokens       Tokens
	user         *authcore.AccountSnapshot
	refreshAt    time.Time
	lastActivity time.Time

	stopOnce sync.Once
	stopCh   chan struct{}
}

// New creates a client. Call [Client.Init] to resume a persisted session.
func New(opts Options) (*Client, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("client: BaseURL required")
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Store == nil {
		opts.Store = NewMemoryTokenStore()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.AccessTTL <= 0 {
		opts.AccessTTL = 15 * time.Minute
	}
	if opts.RefreshLead <= 0 {
		opts.RefreshLead = time.Minute
	}
	if opts.InactivityTimeout == 0 {
		opts.InactivityTimeout = 30 * time.Minute
	}

	c := &Client{
		baseURL:     opts.BaseURL,
		http:        opts.HTTPClient,
		store:       opts.Store,
		logger:      opts.Logger,
		accessTTL:   opts.AccessTTL,
		refreshLead: opts.RefreshLead,
		inactivity:  opts.InactivityTimeout,
		onExpired:   opts.OnSessionExpired,
		stopCh:      make(chan struct{}),
	}
	go c.keeperLoop()
	return c, nil
}

// Close stops the background keeper. It does not log out.
func (c *Client) Close() {
	c.stopOnce.Do(func() { close(c.stopCh) })
}

// Init resumes a persisted session: it loads tokens from the store and
// validates them against /auth/me. Stale tokens are refreshed once; tokens
// the server no longer recognizes are cleared. Returns the resumed account
// snapshot, or nil when there is no session to resume.
func (c *Client) Init(ctx context.Context) (*authcore.AccountSnapshot, error) {
	tokens, err := c.store.Load()
	if err != nil {
		return nil, err
	}
	if tokens.Empty() {
		return nil, nil
	}

	c.mu.Lock()
	c.tokens = tokens
	c.refreshAt = time.Now().Add(c.refreshLead) // age unknown, refresh soon
	c.lastActivity = time.Now()
	c.mu.Unlock()

	var body struct {
		User authcore.AccountSnapshot `json:"user"`
	}
	if err := c.Do(ctx, http.MethodGet, "/auth/me", nil, &body); err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			c.clearSession(false)
			return nil, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.user = &body.User
	c.mu.Unlock()
	return &body.User, nil
}

// User returns the cached account snapshot, or nil when logged out.
func (c *Client) User() *authcore.AccountSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.user == nil {
		return nil
	}
	snapshot := *c.user
	return &snapshot
}

// Touch marks user activity, pushing back the inactivity deadline. Call it
// on UI interaction; [Client.Do] touches implicitly.
func (c *Client) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// keeperLoop drives the proactive refresh and the inactivity watchdog.
func (c *Client) keeperLoop() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-c.stopCh:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		loggedIn := !c.tokens.Empty()
		refreshDue := loggedIn && !c.refreshAt.IsZero() && time.Now().After(c.refreshAt)
		idle := loggedIn && c.inactivity > 0 && time.Since(c.lastActivity) > c.inactivity
		c.mu.Unlock()

		if !loggedIn {
			continue
		}
		if idle {
			c.expireForInactivity()
			continue
		}
		if refreshDue {
			if err := c.refresh(context.Background()); err != nil {
				c.logger.Debug("background refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// expireForInactivity logs out server-side on a best-effort basis, clears
// local state, and notifies the application.
func (c *Client) expireForInactivity() {
	c.mu.Lock()
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()

	if refreshToken != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		_ = c.post(ctx, "/auth/logout", map[string]string{"refreshToken": refreshToken}, nil)
		cancel()
	}
	c.clearSession(true)
}

// clearSession drops local state. notify controls whether OnSessionExpired
// fires; explicit logout passes false.
func (c *Client) clearSession(notify bool) {
	c.mu.Lock()
	hadSession := !c.tokens.Empty()
	c.tokens = Tokens{}
	c.user = nil
	c.refreshAt = time.Time{}
	c.mu.Unlock()

	if err := c.store.Clear(); err != nil {
		c.logger.Warn("failed to clear token store", slog.String("error", err.Error()))
	}
	if notify && hadSession && c.onExpired != nil {
		c.onExpired()
	}
}

// setSession installs a fresh pair and resets the refresh deadline.
func (c *Client) setSession(access, refreshToken string, user *authcore.AccountSnapshot) {
	tokens := Tokens{AccessToken: access, RefreshToken: refreshToken}

	c.mu.Lock()
	c.tokens = tokens
	if user != nil {
		c.user = user
	}
	c.refreshAt = time.Now().Add(c.accessTTL - c.refreshLead)
	c.lastActivity = time.Now()
	c.mu.Unlock()

	if err := c.store.Save(tokens); err != nil {
		c.logger.Warn("failed to persist tokens", slog.String("error", err.Error()))
	}
}

// refresh rotates the token pair. The singleflight group guarantees that a
// proactive timer tick and a reactive 401 retry share one server round
// trip; the refresh token is single-use, so two concurrent rotations would
// kill the session.
func (c *Client) refresh(ctx context.Context) error {
	_, err, _ := c.sf.Do("refresh", func() (any, error) {
		return nil, c.doRefresh(ctx)
	})
	return err
}

func (c *Client) doRefresh(ctx context.Context) error {
	c.mu.Lock()
	refreshToken := c.tokens.RefreshToken
	c.mu.Unlock()
	if refreshToken == "" {
		return ErrNotAuthenticated
	}

	var body struct {
		User         authcore.AccountSnapshot `json:"user"`
		AccessToken  string                   `json:"accessToken"`
		RefreshToken string                   `json:"refreshToken"`
	}
	err := c.post(ctx, "/auth/refresh", map[string]string{"refreshToken": refreshToken}, &body)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized {
			// The refresh token is dead: rotated elsewhere or revoked.
			c.clearSession(true)
		}
		return err
	}

	c.setSession(body.AccessToken, body.RefreshToken, &body.User)
	return nil
}

// Do performs an authenticated request. A TOKEN_EXPIRED response triggers
// one refresh and one retry; any other 401 ends the session.
func (c *Client) Do(ctx context.Context, method, path string, reqBody, respBody any) error {
	c.Touch()

	err := c.doOnce(ctx, method, path, reqBody, respBody)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnauthorized {
		return err
	}

	if apiErr.Code != "TOKEN_EXPIRED" {
		c.clearSession(true)
		return err
	}

	if refreshErr := c.refresh(ctx); refreshErr != nil {
		return err
	}
	return c.doOnce(ctx, method, path, reqBody, respBody)
}

func (c *Client) doOnce(ctx context.Context, method, path string, reqBody, respBody any) error {
	c.mu.Lock()
	access := c.tokens.AccessToken
	c.mu.Unlock()
	if access == "" {
		return ErrNotAuthenticated
	}

	return c.roundTrip(ctx, method, path, access, reqBody, respBody)
}

// post performs an unauthenticated request.
func (c *Client) post(ctx context.Context, path string, reqBody, respBody any) error {
	return c.roundTrip(ctx, http.MethodPost, path, "", reqBody, respBody)
}

func (c *Client) roundTrip(ctx context.Context, method, path, bearer string, reqBody, respBody any) error {
	var body io.Reader
	if reqBody != nil {
		raw, err := json.Marshal(reqBody)
		if err != nil {
			return fmt.Errorf("client: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("client: build request: %w", err)
	}
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("client: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("client: read response: %w", err)
	}

	if resp.StatusCode >= 400 {
		var envelope struct {
			Error struct {
				Code       string `json:"code"`
				Message    string `json:"message"`
				RetryAfter int64  `json:"retryAfter"`
			} `json:"error"`
		}
		_ = json.Unmarshal(raw, &envelope)
		return &APIError{
			Status:     resp.StatusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
			RetryAfter: envelope.Error.RetryAfter,
		}
	}

	if respBody != nil {
		var envelope struct {
			Data json.RawMessage `json:"data"`
		}
		if err := json.Unmarshal(raw, &envelope); err != nil {
			return fmt.Errorf("client: decode envelope: %w", err)
		}
		if err := json.Unmarshal(envelope.Data, respBody); err != nil {
			return fmt.Errorf("client: decode response: %w", err)
		}
	}
	return nil
}
