// Package bridge ferries lobby state to the UI process. Each UI
// subscriber gets the current snapshot on connect and the full new
// snapshot after every mutation; shipping whole snapshots instead of
// diffs removes diff-application bugs from the consumer entirely.
package bridge

import (
	"context"
	"errors"
	stdhttp "net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyctl/internal/state"
)

const writeTimeout = 5 * time.Second

// Server serves snapshots over WebSocket on /state.
type Server struct {
	store *state.Store
	log   *zerolog.Logger
	srv   *stdhttp.Server
}

// New builds a bridge server listening on addr.
func New(addr string, store *state.Store, logger *zerolog.Logger) *Server {
	s := &Server{store: store, log: logger}

	mux := stdhttp.NewServeMux()
	mux.Handle("/state", s)
	s.srv = &stdhttp.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// ListenAndServe blocks serving UI subscribers.
func (s *Server) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) ServeHTTP(w stdhttp.ResponseWriter, r *stdhttp.Request) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Error().Err(err).Msg("bridge accept error")
		return
	}
	defer conn.Close(websocket.StatusInternalError, "internal error")

	// Write-only endpoint: CloseRead drains and cancels the context
	// when the UI side goes away.
	ctx := conn.CloseRead(r.Context())

	id, updates := s.store.Subscribe()
	defer s.store.Unsubscribe(id)

	s.log.Debug().Str("subscriber", id).Msg("ui subscriber connected")

	if err := s.write(ctx, conn, s.store.Snapshot()); err != nil {
		s.log.Warn().Err(err).Str("subscriber", id).Msg("initial snapshot write failed")
		return
	}

	for {
		select {
		case <-ctx.Done():
			s.log.Debug().Str("subscriber", id).Msg("ui subscriber disconnected")
			conn.Close(websocket.StatusNormalClosure, "closing")
			return
		case snap := <-updates:
			if err := s.write(ctx, conn, snap); err != nil {
				if !errors.Is(err, context.Canceled) {
					s.log.Warn().Err(err).Str("subscriber", id).Msg("snapshot write failed, dropping subscriber")
				}
				return
			}
		}
	}
}

func (s *Server) write(ctx context.Context, conn *websocket.Conn, snap state.Snapshot) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, snap)
}
