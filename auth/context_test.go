package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromContextRoundTrip(t *testing.T) {
	m, _, _, _ := newManager(t)
	ctx := WithManager(context.Background(), m)

	got, err := FromContext(ctx)
	require.NoError(t, err)
	assert.Same(t, m, got)
}

func TestFromContextMissingManager(t *testing.T) {
	_, err := FromContext(context.Background())
	require.Error(t, err)

	var cfgErr *ConfigurationError
	assert.ErrorAs(t, err, &cfgErr)
	assert.Contains(t, cfgErr.Error(), "auth.WithManager")
}

func TestMustFromContextPanics(t *testing.T) {
	assert.Panics(t, func() {
		MustFromContext(context.Background())
	})

	m, _, _, _ := newManager(t)
	assert.NotPanics(t, func() {
		got := MustFromContext(WithManager(context.Background(), m))
		assert.Same(t, m, got)
	})
}
