// Package testutil provides testify mocks and fakes shared by the
// handshake and session-manager tests.
package testutil

import (
	"context"
	"sync"

	"github.com/plexaddons/dashboard-auth/api"
	"github.com/plexaddons/dashboard-auth/session"
	"github.com/stretchr/testify/mock"
)

// MockBackend mocks the API client surface used by the handshake and the
// session manager.
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) AuthURL(ctx context.Context) (api.AuthChallenge, error) {
	args := m.Called(ctx)
	return args.Get(0).(api.AuthChallenge), args.Error(1)
}

func (m *MockBackend) Exchange(ctx context.Context, code, state string) (session.Session, error) {
	args := m.Called(ctx, code, state)
	return args.Get(0).(session.Session), args.Error(1)
}

func (m *MockBackend) CurrentUser(ctx context.Context) (session.User, error) {
	args := m.Called(ctx)
	return args.Get(0).(session.User), args.Error(1)
}

// MockNavigator mocks browser navigation.
type MockNavigator struct {
	mock.Mock
}

func (m *MockNavigator) Navigate(url string) error {
	args := m.Called(url)
	return args.Error(0)
}

// RecordingCarrier is a fake AuthorizedRequestCarrier that records every
// token handed to it.
type RecordingCarrier struct {
	mu     sync.Mutex
	tokens []string
}

func (c *RecordingCarrier) SetToken(tok string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tokens = append(c.tokens, tok)
}

// Current returns the most recently set token, or "" if none was set.
func (c *RecordingCarrier) Current() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.tokens) == 0 {
		return ""
	}
	return c.tokens[len(c.tokens)-1]
}

// History returns every token set so far, in order.
func (c *RecordingCarrier) History() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.tokens))
	copy(out, c.tokens)
	return out
}
