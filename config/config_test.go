package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "https://api.plexaddons.com", cfg.APIBaseURL)
	assert.Equal(t, []string{"discord.com", "*.discord.com"}, cfg.TrustedRedirectHosts)
	assert.Equal(t, "session.db", cfg.SessionDBPath)
	assert.Equal(t, "/", cfg.LandingPath)
	assert.Empty(t, string(cfg.SessionKey))
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PLEXADDONS_API_URL", "http://localhost:8000")
	t.Setenv("PLEXADDONS_TRUSTED_HOSTS", "localhost,provider.example.com")
	t.Setenv("PLEXADDONS_SESSION_KEY", "0123456789abcdef0123456789abcdef")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8000", cfg.APIBaseURL)
	assert.Equal(t, []string{"localhost", "provider.example.com"}, cfg.TrustedRedirectHosts)
	assert.Len(t, string(cfg.SessionKey), 32)
}

func TestValidateRejectsShortKey(t *testing.T) {
	t.Setenv("PLEXADDONS_SESSION_KEY", "too-short")

	_, err := Load()
	assert.Error(t, err)
}

func TestSecretRedaction(t *testing.T) {
	s := Secret("hunter2hunter2hunter2hunter2abcd")
	assert.Equal(t, "***", s.String())
	assert.Equal(t, "", Secret("").String())

	data, err := json.Marshal(map[string]Secret{"key": s})
	require.NoError(t, err)
	assert.NotContains(t, string(data), "hunter2")
	assert.Contains(t, string(data), "***")
}
