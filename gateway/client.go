package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
)

const (
	DefaultRefreshPath    = "/auth/refresh"
	DefaultTimeout        = 10 * time.Second
	DefaultRefreshTimeout = 10 * time.Second
	RequestIDHeader       = "X-Request-ID"

	refreshKey = "refresh"
)

// Request describes a call against the backend API. Path is joined to the
// client base URL.
type Request struct {
	Method string
	Path   string
	Query  url.Values
	Header http.Header
	// Body is encoded as JSON unless it is already a []byte.
	Body any
	// SkipAuth sends the request without the stored access token.
	SkipAuth bool

	retried bool
}

// Response is a fully read backend response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Decode unmarshals the JSON body into v.
func (r *Response) Decode(v any) error {
	if v == nil || len(r.Body) == 0 {
		return nil
	}
	return json.Unmarshal(r.Body, v)
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client. A nil client is ignored.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.http = hc
		}
	}
}

// WithCredentialStore sets where tokens are read and written. Defaults to
// in-memory credentials.
func WithCredentialStore(store CredentialStore) Option {
	return func(c *Client) {
		if store != nil {
			c.store = store
		}
	}
}

// WithKeys renames the credential keys. Empty fields keep their defaults.
func WithKeys(keys Keys) Option {
	return func(c *Client) {
		c.keys = keys.withDefaults()
	}
}

// WithRefreshPath sets the endpoint used to renew the access token.
func WithRefreshPath(path string) Option {
	return func(c *Client) {
		if path != "" {
			c.refreshPath = path
		}
	}
}

// WithRefreshTimeout bounds the refresh call independently of the callers
// waiting on it.
func WithRefreshTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		if timeout > 0 {
			c.refreshTimeout = timeout
		}
	}
}

// WithLogger sets the logger for refresh and credential events.
func WithLogger(logger Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithUserAgent sets the User-Agent header. Empty sends none.
func WithUserAgent(agent string) Option {
	return func(c *Client) {
		c.userAgent = agent
	}
}

// Client attaches the stored access token to outgoing requests and renews
// it once on a 401. Concurrent 401s share a single refresh call.
type Client struct {
	baseURL        string
	refreshPath    string
	http           *http.Client
	store          CredentialStore
	keys           Keys
	logger         Logger
	userAgent      string
	refreshTimeout time.Duration

	mu    sync.Mutex
	group singleflight.Group
}

// NewClient creates a gateway for the API rooted at baseURL. Without options it
// keeps tokens in memory and renews them through DefaultRefreshPath.
func NewClient(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:        strings.TrimRight(baseURL, "/"),
		refreshPath:    DefaultRefreshPath,
		http:           &http.Client{Timeout: DefaultTimeout},
		store:          NewMemoryCredentials(),
		keys:           DefaultKeys,
		logger:         &defLogger{},
		refreshTimeout: DefaultRefreshTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *Client) BaseURL() string {
	return c.baseURL
}

// Credentials exposes the underlying credential store.
func (c *Client) Credentials() CredentialStore {
	return c.store
}

// SetTokens stores a fresh credential pair, usually right after login. An
// empty refresh token leaves the stored one untouched.
func (c *Client) SetTokens(ctx context.Context, access, refresh string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.store.Set(ctx, c.keys.Access, access); err != nil {
		return err
	}
	if refresh != "" {
		return c.store.Set(ctx, c.keys.Refresh, refresh)
	}
	return nil
}

// Logout removes both credentials.
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clear(ctx)
}

// Do sends req. A 401 triggers a token refresh followed by exactly one
// replay of the request. Non 2xx/3xx responses are returned together with a
// *StatusError.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	body, err := encodeBody(req.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode body: %w", ErrRequestFailed, err)
	}
	req.Body = body

	if req.Header == nil {
		req.Header = http.Header{}
	} else {
		req.Header = req.Header.Clone()
	}
	if req.Header.Get(RequestIDHeader) == "" {
		req.Header.Set(RequestIDHeader, uuid.NewString())
	}

	token := ""
	if !req.SkipAuth {
		if token, err = c.store.Get(ctx, c.keys.Access); err != nil {
			return nil, fmt.Errorf("%w: read access token: %w", ErrRequestFailed, err)
		}
	}

	resp, err := c.send(ctx, req, token)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusUnauthorized || req.SkipAuth || req.retried {
		return c.finish(req, resp)
	}

	c.logger.Debug("gateway: %s %s unauthorized, renewing token", req.Method, req.Path)
	fresh, err := c.renew(ctx, token)
	if err != nil {
		return nil, err
	}

	req.retried = true
	resp, err = c.send(ctx, req, fresh)
	if err != nil {
		return nil, err
	}
	return c.finish(req, resp)
}

func (c *Client) Get(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodGet, Path: path}, out)
}

func (c *Client) Post(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodPost, Path: path, Body: in}, out)
}

func (c *Client) Put(ctx context.Context, path string, in, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodPut, Path: path, Body: in}, out)
}

func (c *Client) Delete(ctx context.Context, path string, out any) error {
	return c.doJSON(ctx, Request{Method: http.MethodDelete, Path: path}, out)
}

func (c *Client) doJSON(ctx context.Context, req Request, out any) error {
	resp, err := c.Do(ctx, req)
	if err != nil {
		return err
	}
	if err := resp.Decode(out); err != nil {
		return fmt.Errorf("%w: decode response: %w", ErrRequestFailed, err)
	}
	return nil
}

func (c *Client) send(ctx context.Context, req Request, token string) (*Response, error) {
	target := c.baseURL + "/" + strings.TrimLeft(req.Path, "/")
	if len(req.Query) > 0 {
		target += "?" + req.Query.Encode()
	}

	var reader io.Reader
	body, _ := req.Body.([]byte)
	if len(body) > 0 {
		reader = bytes.NewReader(body)
	}

	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target, reader)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrRequestFailed, err)
	}
	for key, values := range req.Header {
		for _, v := range values {
			httpReq.Header.Add(key, v)
		}
	}
	httpReq.Header.Set("Accept", "application/json")
	if reader != nil && httpReq.Header.Get("Content-Type") == "" {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}

	return c.roundTrip(httpReq)
}

func (c *Client) roundTrip(httpReq *http.Request) (*Response, error) {
	res, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %s %s: %w", ErrRequestFailed, httpReq.Method, httpReq.URL.Path, err)
	}
	defer res.Body.Close()

	data, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %w", ErrRequestFailed, err)
	}
	return &Response{
		StatusCode: res.StatusCode,
		Header:     res.Header,
		Body:       data,
	}, nil
}

func (c *Client) finish(req Request, resp *Response) (*Response, error) {
	if resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusBadRequest {
		return resp, nil
	}
	return resp, &StatusError{
		Method:     req.Method,
		Path:       req.Path,
		StatusCode: resp.StatusCode,
		Body:       resp.Body,
	}
}

type refreshResult struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// renew returns an access token newer than stale. If another caller already
// replaced it the stored token is returned, otherwise the caller joins the
// single in-flight refresh.
func (c *Client) renew(ctx context.Context, stale string) (string, error) {
	c.mu.Lock()
	current, err := c.store.Get(ctx, c.keys.Access)
	if err != nil {
		c.mu.Unlock()
		return "", fmt.Errorf("%w: read access token: %w", ErrRequestFailed, err)
	}
	if current != "" && current != stale {
		c.mu.Unlock()
		return current, nil
	}

	refresh, err := c.store.Get(ctx, c.keys.Refresh)
	if err != nil || refresh == "" {
		c.mu.Unlock()
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrAuthExpired, err)
		}
		return "", ErrAuthExpired
	}

	// The refresh outlives any single waiter; cancelling one caller must not
	// fail the others.
	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(refreshKey, func() (any, error) {
		return c.refresh(refreshCtx, refresh)
	})
	c.mu.Unlock()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Client) refresh(ctx context.Context, refreshToken string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.refreshTimeout)
	token, rotated, err := c.callRefresh(callCtx, refreshToken)
	cancel()

	// The refresh deadline bounds the network call only. Credentials must
	// still be written or cleared once it has expired.
	ctx = context.WithoutCancel(ctx)

	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.logger.Warn("gateway: token refresh failed: %v", err)
		if cerr := c.clear(ctx); cerr != nil {
			c.logger.Error("gateway: clear credentials: %v", cerr)
		}
		return "", fmt.Errorf("%w: %w", ErrAuthExpired, err)
	}

	if err := c.store.Set(ctx, c.keys.Access, token); err != nil {
		return "", fmt.Errorf("%w: store access token: %w", ErrRequestFailed, err)
	}
	if rotated != "" {
		if err := c.store.Set(ctx, c.keys.Refresh, rotated); err != nil {
			return "", fmt.Errorf("%w: store refresh token: %w", ErrRequestFailed, err)
		}
	}
	c.logger.Debug("gateway: access token renewed")
	return token, nil
}

func (c *Client) callRefresh(ctx context.Context, refreshToken string) (string, string, error) {
	payload, err := json.Marshal(map[string]string{"refreshToken": refreshToken})
	if err != nil {
		return "", "", err
	}

	target := c.baseURL + "/" + strings.TrimLeft(c.refreshPath, "/")
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, target, bytes.NewReader(payload))
	if err != nil {
		return "", "", err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set(RequestIDHeader, uuid.NewString())
	if c.userAgent != "" {
		httpReq.Header.Set("User-Agent", c.userAgent)
	}

	resp, err := c.roundTrip(httpReq)
	if err != nil {
		return "", "", err
	}
	if resp.StatusCode != http.StatusOK {
		return "", "", &StatusError{
			Method:     http.MethodPost,
			Path:       c.refreshPath,
			StatusCode: resp.StatusCode,
			Body:       resp.Body,
		}
	}

	var result refreshResult
	if err := resp.Decode(&result); err != nil {
		return "", "", err
	}
	if result.AccessToken == "" {
		return "", "", errors.New("refresh response missing access token")
	}
	return result.AccessToken, result.RefreshToken, nil
}

// clear must be called with c.mu held.
func (c *Client) clear(ctx context.Context) error {
	return errors.Join(
		c.store.Remove(ctx, c.keys.Access),
		c.store.Remove(ctx, c.keys.Refresh),
	)
}

func encodeBody(body any) ([]byte, error) {
	switch v := body.(type) {
	case nil:
		return nil, nil
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	case io.Reader:
		return io.ReadAll(v)
	default:
		return json.Marshal(v)
	}
}
