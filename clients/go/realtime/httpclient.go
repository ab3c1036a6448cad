package realtime

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/mentorlink/realtime/internal/metrics"
	"github.com/mentorlink/realtime/internal/models"
)

// HTTPOptions configures the API client.
type HTTPOptions struct {
	// BaseURL of the API, e.g. "https://api.example.com".
	BaseURL string
	// RefreshPath is the credential refresh endpoint. Default "/auth/refresh".
	RefreshPath string
	// SkipRefresh holds path predicates for endpoints whose 401s must not
	// trigger a refresh. Defaults to DefaultSkipRefresh().
	SkipRefresh []func(path string) bool
	// OnBlocked runs after the session is cleared for a blocked account,
	// typically redirecting to a sign-in surface with an error flag.
	OnBlocked func()
	// HTTPClient is optional; when nil a client with a fresh cookie jar is
	// built. A jar is added if the given client lacks one.
	HTTPClient *http.Client
	Logger     zerolog.Logger
}

// DefaultSkipRefresh returns the stock exclusion list: auth endpoints other
// than the current-user endpoint, and the expertise namespace.
func DefaultSkipRefresh() []func(string) bool {
	return []func(string) bool{
		func(p string) bool {
			return strings.Contains(p, "/auth") && !strings.HasSuffix(p, "/auth/me")
		},
		func(p string) bool { return strings.Contains(p, "/expertise") },
	}
}

// Client is the credentialed HTTP client. A 401 on a non-excluded path
// triggers exactly one refresh-and-replay; concurrent 401s share a single
// in-flight refresh.
type Client struct {
	session *Session
	opts    HTTPOptions
	http    *http.Client
	log     zerolog.Logger
	refresh singleflight.Group
}

// NewClient creates a client around session.
func NewClient(session *Session, opts HTTPOptions) (*Client, error) {
	if opts.RefreshPath == "" {
		opts.RefreshPath = "/auth/refresh"
	}
	if opts.SkipRefresh == nil {
		opts.SkipRefresh = DefaultSkipRefresh()
	}

	hc := opts.HTTPClient
	if hc == nil {
		hc = &http.Client{Timeout: 30 * time.Second}
	}
	if hc.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, err
		}
		hc.Jar = jar
	}

	return &Client{
		session: session,
		opts:    opts,
		http:    hc,
		log:     opts.Logger.With().Str("component", "httpclient").Logger(),
	}, nil
}

// Jar exposes the cookie jar so the websocket transport can share
// credentials.
func (c *Client) Jar() http.CookieJar {
	return c.http.Jar
}

// Do performs a JSON API request and returns the response body.
func (c *Client) Do(ctx context.Context, method, path string, body []byte) ([]byte, error) {
	return c.do(ctx, method, path, body, false)
}

// do carries the retried marker explicitly through the call: a request is
// replayed after a refresh at most once, no matter how many 401s it sees.
func (c *Client) do(ctx context.Context, method, path string, body []byte, retried bool) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.opts.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized && !retried && !c.skipRefresh(path):
		if err := c.refreshCredentials(ctx); err != nil {
			c.session.Clear()
			c.log.Warn().Str("path", path).Msg("refresh failed, session cleared")
			return nil, fmt.Errorf("%s %s: %w", method, path, ErrRefreshFailed)
		}
		return c.do(ctx, method, path, body, true)

	case resp.StatusCode == http.StatusUnauthorized:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrAuthExpired)

	case resp.StatusCode == http.StatusForbidden && isBlockedResponse(respBody):
		c.session.Clear()
		if c.opts.OnBlocked != nil {
			c.opts.OnBlocked()
		}
		c.log.Warn().Str("path", path).Msg("account blocked, session cleared")
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrAccountBlocked)

	case resp.StatusCode == http.StatusForbidden:
		return nil, fmt.Errorf("%s %s: %w", method, path, ErrForbidden)

	case resp.StatusCode >= 400:
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}

	return respBody, nil
}

// refreshCredentials issues one refresh call; concurrent callers join the
// in-flight one and share its outcome.
func (c *Client) refreshCredentials(ctx context.Context) error {
	_, err, shared := c.refresh.Do("refresh", func() (interface{}, error) {
		metrics.RefreshCalls.Inc()

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.opts.BaseURL+c.opts.RefreshPath, nil)
		if err != nil {
			return nil, err
		}
		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, resp.Body)

		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("refresh returned %d", resp.StatusCode)
		}
		c.log.Debug().Msg("credentials refreshed")
		return nil, nil
	})
	if shared {
		metrics.RefreshCoalesced.Inc()
	}
	return err
}

func (c *Client) skipRefresh(path string) bool {
	for _, pred := range c.opts.SkipRefresh {
		if pred(path) {
			return true
		}
	}
	return false
}

// isBlockedResponse detects the blocked-account marker in a 403 body.
func isBlockedResponse(body []byte) bool {
	var errResp struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(body, &errResp); err != nil {
		return false
	}
	return strings.Contains(strings.ToLower(errResp.Error), "blocked")
}

// Login authenticates and populates the session on success.
func (c *Client) Login(ctx context.Context, email, password string) (User, error) {
	body, _ := json.Marshal(map[string]string{"email": email, "password": password})
	respBody, err := c.Do(ctx, http.MethodPost, "/auth/login", body)
	if err != nil {
		return User{}, err
	}
	user, err := parseUser(respBody)
	if err != nil {
		return User{}, err
	}
	c.session.SetUser(user)
	return user, nil
}

// Me fetches the current user, restoring the session after e.g. a reload.
func (c *Client) Me(ctx context.Context) (User, error) {
	respBody, err := c.Do(ctx, http.MethodGet, "/auth/me", nil)
	if err != nil {
		return User{}, err
	}
	user, err := parseUser(respBody)
	if err != nil {
		return User{}, err
	}
	c.session.SetUser(user)
	return user, nil
}

// Logout revokes the server session and clears the local one.
func (c *Client) Logout(ctx context.Context) error {
	_, err := c.Do(ctx, http.MethodPost, "/auth/logout", nil)
	c.session.Clear()
	return err
}

// ChatMessages fetches stored history for a chat, oldest first.
func (c *Client) ChatMessages(ctx context.Context, chatID string, limit int, before int64) ([]models.LiveMessage, error) {
	path := "/chats/" + chatID + "/messages?limit=" + strconv.Itoa(limit)
	if before > 0 {
		path += "&before=" + strconv.FormatInt(before, 10)
	}
	respBody, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	var resp struct {
		Messages []models.LiveMessage `json:"messages"`
	}
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, err
	}
	return resp.Messages, nil
}

func parseUser(body []byte) (User, error) {
	var resp struct {
		ID    string `json:"id"`
		Email string `json:"email"`
		Name  string `json:"name"`
		Role  string `json:"role"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return User{}, err
	}
	return User{ID: resp.ID, Email: resp.Email, Name: resp.Name, Role: resp.Role}, nil
}
