// Package handshake drives the authorization-code redirect flow against
// the Plex Addons backend.
//
// The browser navigates away mid-flow, so no call stack survives between
// the two halves: BeginLogin and CompleteLogin are independent operations
// connected only through the ephemeral state store.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"net/url"

	"github.com/plexaddons/dashboard-auth/api"
	"github.com/plexaddons/dashboard-auth/crypto"
	"github.com/plexaddons/dashboard-auth/log"
	"github.com/plexaddons/dashboard-auth/redirect"
	"github.com/plexaddons/dashboard-auth/session"
	"github.com/plexaddons/dashboard-auth/store"
)

var (
	// ErrStateMismatch is returned when the callback's state parameter is
	// missing, stale, or doesn't match the stored value. Hard failure:
	// the stored state is consumed, so retrying with the same parameters
	// cannot succeed.
	ErrStateMismatch = errors.New("oauth state mismatch")

	// ErrMissingCode is returned when the provider redirected back without
	// an authorization code.
	ErrMissingCode = errors.New("missing authorization code")

	// ErrProviderDenied is returned when the provider reported an explicit
	// error (e.g. the user denied access).
	ErrProviderDenied = errors.New("provider reported an error")

	// ErrUntrustedRedirect is returned when the backend handed us an
	// authorization URL outside the trusted-provider allowlist.
	ErrUntrustedRedirect = errors.New("untrusted redirect target")

	// ErrExchangeFailed is the generic outcome of a failed code exchange.
	ErrExchangeFailed = errors.New("authentication failed")
)

// Backend is the slice of the API client the handshake needs, satisfied
// by *api.Client.
type Backend interface {
	AuthURL(ctx context.Context) (api.AuthChallenge, error)
	Exchange(ctx context.Context, code, state string) (session.Session, error)
}

// Navigator abstracts sending the browser to a URL.
type Navigator interface {
	Navigate(url string) error
}

// Callback carries the query parameters the provider redirected back with.
type Callback struct {
	Code      string
	State     string
	ErrorCode string
}

// Handshake manages one authorization-code round trip. At most one state
// value is live at a time; a new BeginLogin overwrites any orphaned state
// from an abandoned attempt.
type Handshake struct {
	backend      Backend
	states       store.Store
	navigator    Navigator
	trustedHosts []string
}

// New creates a handshake. states must be the ephemeral per-tab store,
// never the durable one: its contents must not outlive the round trip.
func New(backend Backend, states store.Store, navigator Navigator, trustedHosts []string) *Handshake {
	return &Handshake{
		backend:      backend,
		states:       states,
		navigator:    navigator,
		trustedHosts: trustedHosts,
	}
}

// BeginLogin fetches an authorization URL from the backend, validates it
// against the trusted-host allowlist, stores the anti-CSRF state, and
// navigates the browser. On any failure nothing is navigated and no state
// is left behind.
func (h *Handshake) BeginLogin(ctx context.Context) error {
	challenge, err := h.backend.AuthURL(ctx)
	if err != nil {
		log.LogWarnWithFields("handshake", "Failed to fetch auth URL", map[string]any{
			"error": err.Error(),
		})
		return fmt.Errorf("failed to start login: %w", err)
	}

	if err := redirect.Allowed(challenge.URL, h.trustedHosts); err != nil {
		// Security event: the backend handed us a URL we refuse to follow.
		log.LogErrorWithFields("handshake", "Blocked untrusted redirect target", map[string]any{
			"url":   challenge.URL,
			"error": err.Error(),
		})
		_ = h.states.Delete(ctx, store.OAuthStateKey)
		return fmt.Errorf("%w: %v", ErrUntrustedRedirect, err)
	}

	// Some backend deployments issue the authorization URL without a state
	// parameter. Mint one client-side so the callback is still replay-proof.
	navURL := challenge.URL
	state := challenge.State
	if state == "" {
		state, err = crypto.GenerateSecureToken()
		if err != nil {
			return fmt.Errorf("failed to generate oauth state: %w", err)
		}
		navURL, err = withState(navURL, state)
		if err != nil {
			return fmt.Errorf("failed to start login: %w", err)
		}
		log.LogDebugWithFields("handshake", "Backend omitted state, generated locally", nil)
	}

	// Last-write-wins: a previous unfinished attempt's state is overwritten.
	if err := h.states.Set(ctx, store.OAuthStateKey, state); err != nil {
		return fmt.Errorf("failed to store oauth state: %w", err)
	}

	if err := h.navigator.Navigate(navURL); err != nil {
		_ = h.states.Delete(ctx, store.OAuthStateKey)
		return fmt.Errorf("failed to navigate to provider: %w", err)
	}

	log.LogDebugWithFields("handshake", "Login redirect issued", nil)
	return nil
}

// CompleteLogin validates the provider callback and exchanges the code
// for a session. The stored state is consumed no matter the outcome, so
// no attempt can be replayed.
func (h *Handshake) CompleteLogin(ctx context.Context, cb Callback) (session.Session, error) {
	stored, takeErr := h.states.Take(ctx, store.OAuthStateKey)

	if cb.ErrorCode != "" {
		log.LogWarnWithFields("handshake", "Provider returned an error", map[string]any{
			"provider_error": cb.ErrorCode,
		})
		return session.Session{}, fmt.Errorf("%w: %s", ErrProviderDenied, cb.ErrorCode)
	}

	if takeErr != nil || stored == "" || stored != cb.State {
		log.LogErrorWithFields("handshake", "OAuth state validation failed", map[string]any{
			"state_present": takeErr == nil,
		})
		return session.Session{}, ErrStateMismatch
	}

	if cb.Code == "" {
		return session.Session{}, ErrMissingCode
	}

	sess, err := h.backend.Exchange(ctx, cb.Code, cb.State)
	if err != nil {
		log.LogWarnWithFields("handshake", "Code exchange failed", map[string]any{
			"error": err.Error(),
		})
		return session.Session{}, fmt.Errorf("%w, try again", ErrExchangeFailed)
	}
	if !sess.Valid() {
		return session.Session{}, fmt.Errorf("%w, try again", ErrExchangeFailed)
	}

	log.LogInfoWithFields("handshake", "Login completed", map[string]any{
		"user": sess.User.DiscordUsername,
	})
	return sess, nil
}

// withState returns rawURL with its state query parameter set.
func withState(rawURL, state string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", err
	}
	q := u.Query()
	q.Set("state", state)
	u.RawQuery = q.Encode()
	return u.String(), nil
}
