package auth

import "context"

type contextKey string

const managerKey contextKey = "auth.manager"

// ConfigurationError marks a developer-facing wiring mistake: a consumer
// asked for the session manager in a context that never had one injected.
// This is the one auth failure that is allowed to propagate, because it
// is a contract violation, not a runtime condition.
type ConfigurationError struct {
	msg string
}

func (e *ConfigurationError) Error() string {
	return "auth configuration error: " + e.msg
}

// WithManager injects the session manager into ctx so request handlers
// and page renderers can reach it without a package-level singleton.
func WithManager(ctx context.Context, m *Manager) context.Context {
	return context.WithValue(ctx, managerKey, m)
}

// FromContext retrieves the session manager. A missing manager returns a
// *ConfigurationError so misuse fails fast instead of limping along
// unauthenticated.
func FromContext(ctx context.Context) (*Manager, error) {
	m, ok := ctx.Value(managerKey).(*Manager)
	if !ok || m == nil {
		return nil, &ConfigurationError{msg: "no session manager in context; wrap the context with auth.WithManager"}
	}
	return m, nil
}

// MustFromContext is FromContext for call sites that would rather crash
// than render without auth state.
func MustFromContext(ctx context.Context) *Manager {
	m, err := FromContext(ctx)
	if err != nil {
		panic(err)
	}
	return m
}
