// Package auth owns the dashboard's session lifecycle: restoring a
// persisted session on startup, committing a freshly exchanged login,
// logging out, and answering "who is signed in right now".
package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/plexaddons/dashboard-auth/api"
	"github.com/plexaddons/dashboard-auth/handshake"
	"github.com/plexaddons/dashboard-auth/log"
	"github.com/plexaddons/dashboard-auth/session"
	"github.com/plexaddons/dashboard-auth/store"
	"golang.org/x/sync/singleflight"
)

// DefaultRetryDelay is the pause before the single retry of a who-am-I
// call that failed with a network error.
const DefaultRetryDelay = 300 * time.Millisecond

// Status describes where the session lifecycle currently stands. Pages
// that require authentication must not render their final content while
// the status is still pending.
type Status int

const (
	// StatusPending means restoration has not resolved yet: "don't know".
	StatusPending Status = iota

	// StatusResolved means the session question is answered, one way or
	// the other.
	StatusResolved
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusResolved:
		return "resolved"
	default:
		return "unknown"
	}
}

// TokenCarrier is the token-injection contract of the shared API client:
// while a token is set every outgoing request carries it as a bearer
// credential, and an empty token clears it. Satisfied by *api.Client.
type TokenCarrier interface {
	SetToken(tok string)
}

// Identity answers who the current bearer token authorizes. Satisfied by
// *api.Client.
type Identity interface {
	CurrentUser(ctx context.Context) (session.User, error)
}

// Manager is the single source of truth for the current session.
type Manager struct {
	durable     store.Store
	carrier     TokenCarrier
	identity    Identity
	flow        *handshake.Handshake
	navigator   handshake.Navigator
	landingPath string
	retryDelay  time.Duration

	mu         sync.Mutex
	status     Status
	user       *session.User
	token      string
	generation uint64

	group singleflight.Group
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogoutNavigation makes Logout send the browser to landingPath.
func WithLogoutNavigation(nav handshake.Navigator, landingPath string) Option {
	return func(m *Manager) {
		m.navigator = nav
		m.landingPath = landingPath
	}
}

// WithRetryDelay sets the pause before the single network-error retry
// during restoration. Zero disables the retry entirely.
func WithRetryDelay(d time.Duration) Option {
	return func(m *Manager) {
		m.retryDelay = d
	}
}

// NewManager wires a session manager from its collaborators. durable is
// the store the session token survives restarts in.
func NewManager(durable store.Store, carrier TokenCarrier, identity Identity, flow *handshake.Handshake, opts ...Option) *Manager {
	m := &Manager{
		durable:    durable,
		carrier:    carrier,
		identity:   identity,
		flow:       flow,
		status:     StatusPending,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Restore attempts to bring a persisted session back to life. It always
// resolves the status, never returns an error to the caller: an invalid
// or expired token silently demotes to logged-out, matching normal
// session-expiry expectations. If ctx is cancelled before the who-am-I
// call resolves, the result is discarded rather than applied.
func (m *Manager) Restore(ctx context.Context) {
	m.mu.Lock()
	gen := m.generation
	m.mu.Unlock()

	tok, err := m.durable.Get(ctx, store.SessionTokenKey)
	if err != nil || tok == "" {
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			log.LogWarnWithFields("auth", "Failed to read durable store, dropping unreadable token", map[string]any{
				"error": err.Error(),
			})
			// An unreadable value (for instance after a sealing-key
			// rotation) would fail identically on every start. Drop it.
			_ = m.durable.Delete(ctx, store.SessionTokenKey)
		}
		// No token: resolved unauthenticated without any network call.
		m.resolveUnauthenticated(gen)
		return
	}

	m.mu.Lock()
	superseded := m.generation != gen
	m.mu.Unlock()
	if superseded {
		// A login or logout landed while we were reading the store.
		// Installing this token now would contradict the newer state.
		return
	}
	m.carrier.SetToken(tok)

	user, err := m.whoAmI(ctx)

	if ctx.Err() != nil {
		// The owner of this restore is gone; applying the result now
		// would clobber whatever superseded it.
		log.LogDebugWithFields("auth", "Restore cancelled, discarding result", nil)
		return
	}

	if err != nil {
		log.LogInfoWithFields("auth", "Session restore failed, clearing persisted token", map[string]any{
			"error": err.Error(),
		})
		m.purge(ctx, gen)
		return
	}

	m.commit(gen, tok, user)
}

// whoAmI fetches the current user, deduplicating concurrent callers and
// retrying a network failure once. A definitive unauthorized answer is
// never retried.
func (m *Manager) whoAmI(ctx context.Context) (session.User, error) {
	v, err, _ := m.group.Do("whoami", func() (any, error) {
		user, err := m.identity.CurrentUser(ctx)
		if err == nil || errors.Is(err, api.ErrUnauthorized) || m.retryDelay <= 0 {
			return user, err
		}

		log.LogDebugWithFields("auth", "who-am-I network error, retrying once", map[string]any{
			"error": err.Error(),
		})
		select {
		case <-ctx.Done():
			return session.User{}, ctx.Err()
		case <-time.After(m.retryDelay):
		}
		return m.identity.CurrentUser(ctx)
	})
	if err != nil {
		return session.User{}, err
	}
	return v.(session.User), nil
}

// Login commits an already-validated session: the OAuth callback path
// hands the exchanged token and user straight in, no network call.
func (m *Manager) Login(ctx context.Context, tok string, user session.User) error {
	m.mu.Lock()
	m.generation++
	m.status = StatusResolved
	m.token = tok
	u := user
	m.user = &u
	m.mu.Unlock()

	m.carrier.SetToken(tok)

	if err := m.durable.Set(ctx, store.SessionTokenKey, tok); err != nil {
		// The in-memory session stands; only persistence across restarts
		// is lost.
		log.LogWarnWithFields("auth", "Failed to persist session token", map[string]any{
			"error": err.Error(),
		})
		return err
	}

	log.LogInfoWithFields("auth", "Session committed", map[string]any{
		"user":  user.DiscordUsername,
		"admin": user.IsAdmin,
	})
	return nil
}

// BeginLogin starts a fresh OAuth handshake.
func (m *Manager) BeginLogin(ctx context.Context) error {
	return m.flow.BeginLogin(ctx)
}

// CompleteLogin finishes the handshake from the provider callback and,
// on success, commits the resulting session.
func (m *Manager) CompleteLogin(ctx context.Context, cb handshake.Callback) error {
	sess, err := m.flow.CompleteLogin(ctx, cb)
	if err != nil {
		return err
	}
	return m.Login(ctx, sess.Token, sess.User)
}

// Logout tears the session down everywhere it lives and sends the
// browser back to the public landing surface. Safe to call when already
// logged out.
func (m *Manager) Logout(ctx context.Context) error {
	m.mu.Lock()
	m.generation++
	m.status = StatusResolved
	m.token = ""
	m.user = nil
	m.mu.Unlock()

	m.carrier.SetToken("")

	if err := m.durable.Delete(ctx, store.SessionTokenKey); err != nil {
		log.LogWarnWithFields("auth", "Failed to clear durable store on logout", map[string]any{
			"error": err.Error(),
		})
	}

	log.LogInfoWithFields("auth", "Logged out", nil)

	if m.navigator != nil && m.landingPath != "" {
		return m.navigator.Navigate(m.landingPath)
	}
	return nil
}

// Status reports whether the session question has been resolved yet.
func (m *Manager) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// User returns the current user, if any.
func (m *Manager) User() (session.User, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.user == nil {
		return session.User{}, false
	}
	return *m.user, true
}

// Token returns the current bearer token, or "" when logged out.
func (m *Manager) Token() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.token
}

// IsAuthenticated reports whether a user is signed in.
func (m *Manager) IsAuthenticated() bool {
	_, ok := m.User()
	return ok
}

// IsAdministrator reports whether the signed-in user is an administrator.
func (m *Manager) IsAdministrator() bool {
	user, ok := m.User()
	return ok && user.IsAdmin
}

// resolveUnauthenticated marks the session resolved with no user, unless
// a login or logout superseded this restore in the meantime.
func (m *Manager) resolveUnauthenticated(gen uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	m.status = StatusResolved
	m.token = ""
	m.user = nil
}

// purge clears the rejected token from the store and the carrier, then
// resolves unauthenticated.
func (m *Manager) purge(ctx context.Context, gen uint64) {
	m.mu.Lock()
	stale := m.generation != gen
	m.mu.Unlock()
	if stale {
		return
	}

	m.carrier.SetToken("")
	if err := m.durable.Delete(ctx, store.SessionTokenKey); err != nil {
		log.LogWarnWithFields("auth", "Failed to purge rejected token", map[string]any{
			"error": err.Error(),
		})
	}
	m.resolveUnauthenticated(gen)
}

// commit applies a successful restore, unless superseded.
func (m *Manager) commit(gen uint64, tok string, user session.User) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.generation != gen {
		return
	}
	m.status = StatusResolved
	m.token = tok
	u := user
	m.user = &u

	log.LogInfoWithFields("auth", "Session restored", map[string]any{
		"user":  user.DiscordUsername,
		"admin": user.IsAdmin,
	})
}
