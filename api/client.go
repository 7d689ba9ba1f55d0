// Package api is the HTTP client for the Plex Addons backend. Every page
// of the dashboard goes through it; the auth subsystem additionally owns
// its bearer-token state via SetToken.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/plexaddons/dashboard-auth/session"
	"golang.org/x/oauth2"
)

var (
	// ErrUnauthorized is returned when the backend rejects the bearer token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrExchangeFailed is returned when the code exchange is rejected.
	// It deliberately carries no code or state detail.
	ErrExchangeFailed = errors.New("authentication failed")
)

// AuthChallenge is the backend's answer to an auth-url request: the
// provider URL to navigate to and the anti-CSRF state to round-trip.
type AuthChallenge struct {
	URL   string `json:"url"`
	State string `json:"state"`
}

// exchangeResponse mirrors the backend's callback payload.
type exchangeResponse struct {
	AccessToken string       `json:"access_token"`
	User        session.User `json:"user"`
}

// Client talks to the Plex Addons API. While a token is set, every
// outgoing request carries it as a bearer credential via an oauth2
// transport; when cleared, requests go out unauthenticated.
type Client struct {
	baseURL string
	base    *http.Client

	mu         sync.RWMutex
	httpClient *http.Client
}

// NewClient creates a client for the API at baseURL.
func NewClient(baseURL string) *Client {
	base := &http.Client{Timeout: 30 * time.Second}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		base:       base,
		httpClient: base,
	}
}

// SetToken installs tok as the bearer credential for all subsequent
// requests. An empty token clears the credential.
func (c *Client) SetToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if tok == "" {
		c.httpClient = c.base
		return
	}
	src := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: tok, TokenType: "Bearer"})
	c.httpClient = &http.Client{
		Timeout: c.base.Timeout,
		Transport: &oauth2.Transport{
			Source: src,
			Base:   c.base.Transport,
		},
	}
}

// HasToken reports whether a bearer credential is currently set.
func (c *Client) HasToken() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient != c.base
}

func (c *Client) client() *http.Client {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.httpClient
}

// AuthURL asks the backend for a provider authorization URL and the
// accompanying anti-CSRF state.
func (c *Client) AuthURL(ctx context.Context) (AuthChallenge, error) {
	var challenge AuthChallenge
	if err := c.getJSON(ctx, "/api/v1/auth/url", nil, &challenge); err != nil {
		return AuthChallenge{}, fmt.Errorf("failed to fetch auth URL: %w", err)
	}
	if challenge.URL == "" {
		return AuthChallenge{}, fmt.Errorf("backend returned no authorization URL")
	}
	return challenge, nil
}

// Exchange trades an authorization code (plus the echoed state) for a
// session. Backend rejections collapse into ErrExchangeFailed; the caller
// shows a generic "try again" message.
func (c *Client) Exchange(ctx context.Context, code, state string) (session.Session, error) {
	query := url.Values{"code": {code}}
	if state != "" {
		query.Set("state", state)
	}

	var resp exchangeResponse
	if err := c.getJSON(ctx, "/api/v1/auth/discord/callback/api", query, &resp); err != nil {
		return session.Session{}, fmt.Errorf("%w: %v", ErrExchangeFailed, err)
	}
	if resp.AccessToken == "" {
		return session.Session{}, fmt.Errorf("%w: backend returned no token", ErrExchangeFailed)
	}
	return session.Session{Token: resp.AccessToken, User: resp.User}, nil
}

// CurrentUser fetches the identity the current bearer token authorizes.
func (c *Client) CurrentUser(ctx context.Context) (session.User, error) {
	var user session.User
	if err := c.getJSON(ctx, "/api/v1/users/me", nil, &user); err != nil {
		return session.User{}, err
	}
	return user, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, v any) error {
	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.client().Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return ErrUnauthorized
	case resp.StatusCode != http.StatusOK:
		return fmt.Errorf("unexpected status %d from %s", resp.StatusCode, path)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}
