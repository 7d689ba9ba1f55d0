package handshake

import (
	"context"
	"errors"
	"net/url"
	"testing"

	"github.com/plexaddons/dashboard-auth/api"
	"github.com/plexaddons/dashboard-auth/session"
	"github.com/plexaddons/dashboard-auth/store"
	"github.com/plexaddons/dashboard-auth/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

var trustedHosts = []string{"discord.com", "*.discord.com"}

func newHandshake(t *testing.T) (*Handshake, *testutil.MockBackend, *testutil.MockNavigator, *store.Memory) {
	t.Helper()
	backend := new(testutil.MockBackend)
	navigator := new(testutil.MockNavigator)
	states := store.NewMemory()
	return New(backend, states, navigator, trustedHosts), backend, navigator, states
}

func TestBeginLoginStoresStateAndNavigates(t *testing.T) {
	h, backend, navigator, states := newHandshake(t)

	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{
		URL:   "https://discord.com/oauth2/authorize?client_id=x",
		State: "state-S",
	}, nil)
	navigator.On("Navigate", "https://discord.com/oauth2/authorize?client_id=x").Return(nil)

	require.NoError(t, h.BeginLogin(context.Background()))

	stored, err := states.Get(context.Background(), store.OAuthStateKey)
	require.NoError(t, err)
	assert.Equal(t, "state-S", stored)
	navigator.AssertExpectations(t)
}

func TestBeginLoginGeneratesStateWhenBackendOmitsIt(t *testing.T) {
	h, backend, navigator, states := newHandshake(t)

	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{
		URL: "https://discord.com/oauth2/authorize?client_id=x",
	}, nil)
	var navigated string
	navigator.On("Navigate", mock.Anything).Run(func(args mock.Arguments) {
		navigated = args.String(0)
	}).Return(nil)

	require.NoError(t, h.BeginLogin(context.Background()))

	stored, err := states.Get(context.Background(), store.OAuthStateKey)
	require.NoError(t, err)
	require.NotEmpty(t, stored)

	// The minted state rides along on the authorization URL so the
	// provider echoes it back.
	u, err := url.Parse(navigated)
	require.NoError(t, err)
	assert.Equal(t, stored, u.Query().Get("state"))

	// And it validates the callback exactly like a backend-issued one.
	backend.On("Exchange", mock.Anything, "code-1", stored).Return(session.Session{
		Token: "tok-1",
		User:  session.User{DiscordID: "42", DiscordUsername: "ada"},
	}, nil)
	sess, err := h.CompleteLogin(context.Background(), Callback{Code: "code-1", State: stored})
	require.NoError(t, err)
	assert.Equal(t, "tok-1", sess.Token)
}

func TestBeginLoginBlocksUntrustedRedirect(t *testing.T) {
	h, backend, navigator, states := newHandshake(t)

	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{
		URL:   "https://evil.example.com/oauth2/authorize",
		State: "state-S",
	}, nil)

	err := h.BeginLogin(context.Background())
	assert.ErrorIs(t, err, ErrUntrustedRedirect)

	// Never navigated, and no stale state left behind
	navigator.AssertNotCalled(t, "Navigate", mock.Anything)
	assert.Equal(t, 0, states.Len())
}

func TestBeginLoginBackendFailure(t *testing.T) {
	h, backend, navigator, states := newHandshake(t)

	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{}, errors.New("connection refused"))

	err := h.BeginLogin(context.Background())
	assert.Error(t, err)
	navigator.AssertNotCalled(t, "Navigate", mock.Anything)
	assert.Equal(t, 0, states.Len())
}

func TestBeginLoginNavigationFailureClearsState(t *testing.T) {
	h, backend, navigator, states := newHandshake(t)

	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{
		URL:   "https://discord.com/oauth2/authorize",
		State: "state-S",
	}, nil)
	navigator.On("Navigate", mock.Anything).Return(errors.New("window gone"))

	err := h.BeginLogin(context.Background())
	assert.Error(t, err)
	assert.Equal(t, 0, states.Len())
}

func TestBeginLoginOverwritesOrphanedState(t *testing.T) {
	h, backend, navigator, states := newHandshake(t)

	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{
		URL:   "https://discord.com/oauth2/authorize",
		State: "first",
	}, nil).Once()
	backend.On("AuthURL", mock.Anything).Return(api.AuthChallenge{
		URL:   "https://discord.com/oauth2/authorize",
		State: "second",
	}, nil).Once()
	navigator.On("Navigate", mock.Anything).Return(nil)

	require.NoError(t, h.BeginLogin(context.Background()))
	require.NoError(t, h.BeginLogin(context.Background()))

	// Last write wins; at most one state is live at a time
	assert.Equal(t, 1, states.Len())
	stored, err := states.Get(context.Background(), store.OAuthStateKey)
	require.NoError(t, err)
	assert.Equal(t, "second", stored)
}

func TestCompleteLoginSingleUse(t *testing.T) {
	h, backend, _, states := newHandshake(t)

	require.NoError(t, states.Set(context.Background(), store.OAuthStateKey, "state-S"))

	want := session.Session{Token: "jwt-1", User: session.User{DiscordID: "42", DiscordUsername: "ada"}}
	backend.On("Exchange", mock.Anything, "code-1", "state-S").Return(want, nil)

	sess, err := h.CompleteLogin(context.Background(), Callback{Code: "code-1", State: "state-S"})
	require.NoError(t, err)
	assert.Equal(t, want, sess)

	// The stored state was consumed: replaying the same callback fails
	_, err = h.CompleteLogin(context.Background(), Callback{Code: "code-1", State: "state-S"})
	assert.ErrorIs(t, err, ErrStateMismatch)
}

func TestCompleteLoginStateMismatch(t *testing.T) {
	h, backend, _, states := newHandshake(t)

	require.NoError(t, states.Set(context.Background(), store.OAuthStateKey, "state-S"))

	_, err := h.CompleteLogin(context.Background(), Callback{Code: "code-1", State: "wrong-state"})
	assert.ErrorIs(t, err, ErrStateMismatch)
	backend.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteLoginWithoutStoredState(t *testing.T) {
	h, backend, _, _ := newHandshake(t)

	_, err := h.CompleteLogin(context.Background(), Callback{Code: "code-1", State: "anything"})
	assert.ErrorIs(t, err, ErrStateMismatch)
	backend.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteLoginProviderError(t *testing.T) {
	h, backend, _, states := newHandshake(t)

	require.NoError(t, states.Set(context.Background(), store.OAuthStateKey, "state-S"))

	_, err := h.CompleteLogin(context.Background(), Callback{ErrorCode: "access_denied", State: "state-S"})
	assert.ErrorIs(t, err, ErrProviderDenied)
	backend.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything, mock.Anything)

	// The state was still consumed so it cannot leak into a later attempt
	assert.Equal(t, 0, states.Len())
}

func TestCompleteLoginMissingCode(t *testing.T) {
	h, backend, _, states := newHandshake(t)

	require.NoError(t, states.Set(context.Background(), store.OAuthStateKey, "state-S"))

	_, err := h.CompleteLogin(context.Background(), Callback{State: "state-S"})
	assert.ErrorIs(t, err, ErrMissingCode)
	backend.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything, mock.Anything)
}

func TestCompleteLoginExchangeFailureIsGeneric(t *testing.T) {
	h, backend, _, states := newHandshake(t)

	require.NoError(t, states.Set(context.Background(), store.OAuthStateKey, "state-S"))
	backend.On("Exchange", mock.Anything, "code-1", "state-S").
		Return(session.Session{}, errors.New("backend said: code invalid, state=state-S"))

	_, err := h.CompleteLogin(context.Background(), Callback{Code: "code-1", State: "state-S"})
	assert.ErrorIs(t, err, ErrExchangeFailed)
	// No code or state detail leaks to the caller
	assert.NotContains(t, err.Error(), "code-1")
	assert.NotContains(t, err.Error(), "state-S")
}
