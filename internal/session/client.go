package session

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/fritzbox/internal/logging"
)

const (
	// DefaultPort is the port of the router's web interface
	DefaultPort = 80

	// DefaultTimeout is the default HTTP request timeout
	DefaultTimeout = 10 * time.Second

	// LoginPath is the page that hands out challenges and session IDs
	LoginPath = "/login_sid.lua"

	// UserAgent is sent with every request. Some FRITZ!OS releases answer
	// differently to clients they do not recognise as a browser.
	UserAgent = "Mozilla/5.0 (U; Windows NT 5.1; rv:5.0) Gecko/20100101 Firefox/5.0"
)

// Observer receives the outcome of logins and page fetches. It is used
// to feed metrics without coupling this package to a metrics library.
type Observer interface {
	LoginCompleted(err error)
	PageFetched(path string, elapsed time.Duration, err error)
}

// Client talks to the web interface of a single router. It holds the
// current session ticket and is safe for concurrent use.
type Client struct {
	// BaseURL is the base URL for the router (e.g., "http://192.168.178.1:80")
	BaseURL string

	// Username is optional. Boxes configured for password-only login
	// ignore it.
	Username string

	// Password is the web interface password. It is never logged.
	Password string

	// HTTPClient is the underlying HTTP client
	HTTPClient *http.Client

	// Observer, when set, is told about every login and page fetch
	Observer Observer

	host string

	// loginMu serialises the challenge-response handshake
	loginMu sync.Mutex

	// mu protects sid
	mu  sync.RWMutex
	sid string
}

// NewClient creates a client for the router at ip:port.
func NewClient(ip string, port int, password string) *Client {
	c := NewClientWithURL(fmt.Sprintf("http://%s:%d", ip, port), password)
	c.host = ip
	return c
}

// NewClientWithURL creates a client with a full base URL
// baseURL: Full base URL (e.g., "http://fritz.box:80")
func NewClientWithURL(baseURL, password string) *Client {
	host := baseURL
	if u, err := url.Parse(baseURL); err == nil && u.Hostname() != "" {
		host = u.Hostname()
	}
	return &Client{
		BaseURL:    baseURL,
		Password:   password,
		HTTPClient: &http.Client{Timeout: DefaultTimeout},
		host:       host,
	}
}

// SetTimeout sets the HTTP request timeout
func (c *Client) SetTimeout(timeout time.Duration) {
	c.HTTPClient.Timeout = timeout
}

// Host returns the router address the client was created for.
func (c *Client) Host() string {
	return c.host
}

// SID returns the current session ticket, or "" before the first
// successful login.
func (c *Client) SID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.sid
}

func (c *Client) setSID(sid string) {
	c.mu.Lock()
	c.sid = sid
	c.mu.Unlock()
}

// Authenticate runs the login handshake. A router that still reports a
// valid session is accepted without answering a challenge. On failure
// the previous ticket is kept.
func (c *Client) Authenticate(ctx context.Context) error {
	c.loginMu.Lock()
	defer c.loginMu.Unlock()

	err := c.login(ctx)
	if c.Observer != nil {
		c.Observer.LoginCompleted(err)
	}
	if err != nil {
		logging.Debug("Login failed", zap.String("host", c.host), zap.Error(err))
	}
	return err
}

func (c *Client) login(ctx context.Context) error {
	info, err := c.sessionInfo(ctx, nil)
	if err != nil {
		return err
	}

	if info.authenticated() {
		c.setSID(info.SID)
		logging.Debug("Session still valid", zap.String("sid", logging.Redact(info.SID)))
		return nil
	}

	if info.Challenge == "" {
		return c.withHost(NewParseError("login response has neither a session nor a challenge", nil))
	}

	response, err := ChallengeResponse(info.Challenge, c.Password)
	if err != nil {
		return err
	}

	query := url.Values{}
	if c.Username != "" {
		query.Set("username", c.Username)
	}
	query.Set("response", response)

	info, err = c.sessionInfo(ctx, query)
	if err != nil {
		return err
	}

	if !info.authenticated() {
		msg := "router rejected the challenge response (check password)"
		if info.BlockTime > 0 {
			msg = fmt.Sprintf("%s, logins blocked for %ds", msg, info.BlockTime)
		}
		return c.withHost(NewAuthError(msg))
	}

	c.setSID(info.SID)
	logging.Debug("Authentication succeeded",
		zap.String("host", c.host),
		zap.String("sid", logging.Redact(info.SID)),
	)
	return nil
}

// sessionInfo fetches and decodes login_sid.lua with the given query.
func (c *Client) sessionInfo(ctx context.Context, query url.Values) (*sessionInfo, error) {
	body, err := c.get(ctx, LoginPath, query)
	if err != nil {
		return nil, err
	}
	info, perr := parseSessionInfo(body)
	if perr != nil {
		return nil, c.withHost(perr)
	}
	return info, nil
}

// FetchPage re-authenticates and then returns the body of path,
// requested with the current session ticket and params.
func (c *Client) FetchPage(ctx context.Context, path string, params url.Values) ([]byte, error) {
	if err := c.Authenticate(ctx); err != nil {
		return nil, err
	}

	query := url.Values{}
	for key, values := range params {
		if key == "sid" {
			continue
		}
		query[key] = append([]string(nil), values...)
	}
	query.Set("sid", c.SID())
	if _, ok := query["no_sidrenew"]; !ok {
		query.Set("no_sidrenew", "")
	}

	start := time.Now()
	body, err := c.get(ctx, path, query)
	if c.Observer != nil {
		c.Observer.PageFetched(path, time.Since(start), err)
	}
	if err != nil {
		logging.Debug("Page fetch failed",
			zap.String("path", path),
			zap.Error(err),
		)
		return nil, err
	}

	logging.Debug("Page fetched",
		zap.String("path", path),
		zap.Int("bytes", len(body)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return body, nil
}

// Logout invalidates the current session on the router and forgets the
// local ticket. Without a ticket it does nothing.
func (c *Client) Logout(ctx context.Context) error {
	sid := c.SID()
	if sid == "" || sid == InvalidSID {
		return nil
	}

	query := url.Values{}
	query.Set("logout", "1")
	query.Set("sid", sid)

	if _, err := c.get(ctx, LoginPath, query); err != nil {
		return err
	}

	c.setSID("")
	logging.Debug("Logged out", zap.String("host", c.host))
	return nil
}

// get performs a single GET with the router's fixed headers and returns
// the body of a 200 response.
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	target := c.BaseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, c.withHost(NewNetworkError("failed to create GET request", err))
	}
	req.Header.Set("Accept", "application/xml")
	req.Header.Set("Content-Type", "text/plain")
	req.Header.Set("User-Agent", UserAgent)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, c.withHost(NewNetworkError(fmt.Sprintf("GET %s failed", path), err))
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, c.withHost(NewHTTPError(resp.StatusCode,
			fmt.Sprintf("unexpected status code for %s: %d", path, resp.StatusCode)))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.withHost(NewNetworkError("failed to read response body", err))
	}
	return body, nil
}

func (c *Client) withHost(e *Error) *Error {
	if e.Host == "" {
		e.Host = c.host
	}
	return e
}
