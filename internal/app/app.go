// Package app wires the session engine together: settings, transport,
// dispatcher, state store, and the UI bridge.
package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyctl/internal/bridge"
	"github.com/openlobby/lobbyctl/internal/config"
	"github.com/openlobby/lobbyctl/internal/conn"
	"github.com/openlobby/lobbyctl/internal/proto"
	"github.com/openlobby/lobbyctl/internal/session"
	"github.com/openlobby/lobbyctl/internal/settings"
	"github.com/openlobby/lobbyctl/internal/state"
)

const shutdownTimeout = 5 * time.Second

// App owns one lobby session and its collaborators.
type App struct {
	cfg      config.Config
	addr     string
	settings *settings.Store
	store    *state.Store
	session  *session.Session
	bridge   *bridge.Server
	log      *zerolog.Logger
}

// New constructs the application. The lobby endpoint comes from
// cfg.Addr when set, otherwise from the settings profile named by
// cfg.Profile.
func New(cfg config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := settings.Open(cfg.SettingsPath)
	if err != nil {
		return nil, fmt.Errorf("open settings: %w", err)
	}

	addr := cfg.Addr
	if addr == "" {
		ep, err := st.Endpoint(context.Background(), cfg.Profile)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("resolve endpoint %q: %w", cfg.Profile, err)
		}
		addr = ep.Addr()
	}

	store := state.New(logger)
	transport := conn.New(cfg.DialTimeout, logger)
	sess := session.New(transport, store, cfg.LoginTimeout, logger)

	return &App{
		cfg:      cfg,
		addr:     addr,
		settings: st,
		store:    store,
		session:  sess,
		bridge:   bridge.New(cfg.BridgeAddr, store, logger),
		log:      logger,
	}, nil
}

// Session exposes the dispatcher's action surface.
func (a *App) Session() *session.Session {
	return a.session
}

// Store exposes read-only snapshot access.
func (a *App) Store() *state.Store {
	return a.store
}

// Run connects to the lobby, serves the UI bridge, and blocks until
// context cancellation or a fatal bridge error.
func (a *App) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sessionDone := make(chan struct{})
	go func() {
		a.session.Run(runCtx)
		close(sessionDone)
	}()

	bridgeErr := make(chan error, 1)
	go func() {
		if err := a.bridge.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			bridgeErr <- err
			return
		}
		bridgeErr <- nil
	}()

	a.log.Info().Str("addr", a.addr).Str("bridge", a.cfg.BridgeAddr).Msg("starting lobby session")
	a.session.Connect(a.addr)

	select {
	case err := <-bridgeErr:
		cancel()
		a.cleanup(sessionDone)
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down")
		if err := a.bridge.Shutdown(shutdownCtx); err != nil {
			a.cleanup(sessionDone)
			return err
		}

		a.cleanup(sessionDone)
		return <-bridgeErr
	}
}

// AutoLogin waits for the connection to establish, then authenticates
// and remembers the account on success.
func (a *App) AutoLogin(ctx context.Context, username, password string) error {
	if err := a.waitConnected(ctx); err != nil {
		return err
	}

	resp, err := a.session.Login(ctx, username, password)
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	if resp.ResultCode != proto.LoginOK {
		return fmt.Errorf("login refused: %s", proto.LoginMessage(resp.ResultCode))
	}

	if err := a.settings.RememberAccount(ctx, username); err != nil {
		a.log.Warn().Err(err).Msg("failed to remember account")
	}
	a.log.Info().Str("username", username).Msg("logged in")
	return nil
}

func (a *App) waitConnected(ctx context.Context) error {
	id, updates := a.store.Subscribe()
	defer a.store.Unsubscribe(id)

	if a.store.Snapshot().Connection.Status == state.StatusConnected {
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-updates:
			if snap.Connection.Status == state.StatusConnected {
				return nil
			}
		}
	}
}

func (a *App) cleanup(sessionDone chan struct{}) {
	select {
	case <-sessionDone:
	case <-time.After(shutdownTimeout):
		a.log.Warn().Msg("session loop did not stop in time")
	}
	if err := a.settings.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close settings store")
	}
}
