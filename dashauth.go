// Package dashboardauth wires the Plex Addons dashboard's authentication
// subsystem: durable session storage, the OAuth handshake against the
// backend, and the session manager the rest of the dashboard consumes.
package dashboardauth

import (
	"context"
	"fmt"

	"github.com/plexaddons/dashboard-auth/api"
	"github.com/plexaddons/dashboard-auth/auth"
	"github.com/plexaddons/dashboard-auth/config"
	"github.com/plexaddons/dashboard-auth/crypto"
	"github.com/plexaddons/dashboard-auth/handshake"
	"github.com/plexaddons/dashboard-auth/log"
	"github.com/plexaddons/dashboard-auth/store"
)

// App bundles the wired auth subsystem.
type App struct {
	Client  *api.Client
	Manager *auth.Manager

	durable *store.SQLite
}

// New builds the subsystem from configuration. navigator abstracts the
// host environment's browser navigation.
func New(cfg config.Config, navigator handshake.Navigator) (*App, error) {
	log.Configure(cfg.LogLevel, cfg.LogFormat)

	log.LogInfoWithFields("dashauth", "Building auth subsystem", map[string]any{
		"api":           cfg.APIBaseURL,
		"trusted_hosts": cfg.TrustedRedirectHosts,
	})

	var sealer *crypto.Sealer
	if cfg.SessionKey != "" {
		var err error
		sealer, err = crypto.NewSealer([]byte(cfg.SessionKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create sealer: %w", err)
		}
	}

	durable, err := store.OpenSQLite(cfg.SessionDBPath, sealer)
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	client := api.NewClient(cfg.APIBaseURL)

	// The state store is deliberately in-memory: anti-CSRF state must not
	// outlive the process, let alone a restart.
	flow := handshake.New(client, store.NewMemory(), navigator, cfg.TrustedRedirectHosts)

	manager := auth.NewManager(durable, client, client, flow,
		auth.WithLogoutNavigation(navigator, cfg.LandingPath),
	)

	return &App{
		Client:  client,
		Manager: manager,
		durable: durable,
	}, nil
}

// Start restores any persisted session. Call once at application start;
// consumers should wait for the manager to leave StatusPending before
// rendering auth-dependent content.
func (a *App) Start(ctx context.Context) {
	a.Manager.Restore(ctx)
}

// Close releases the durable store.
func (a *App) Close() error {
	return a.durable.Close()
}
