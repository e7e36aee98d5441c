// Package session bridges framed lobby commands to application
// semantics: it correlates requests with their eventual replies,
// routes every inbound command to a typed handler, and projects the
// results into the state store.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyctl/internal/conn"
	"github.com/openlobby/lobbyctl/internal/proto"
	"github.com/openlobby/lobbyctl/internal/state"
)

var (
	// ErrLoginPending rejects a Login while another is outstanding.
	ErrLoginPending = errors.New("login already pending")
	// ErrRequestTimeout rejects a correlated request whose reply never
	// arrived. Delivered only to the awaiting caller, never broadcast.
	ErrRequestTimeout = errors.New("request timed out")
	// ErrConnectionClosed rejects pending requests when the socket that
	// would carry their reply is destroyed.
	ErrConnectionClosed = errors.New("connection closed")
)

// DefaultLoginTimeout bounds how long a Login waits for its reply.
const DefaultLoginTimeout = 10 * time.Second

// Transport is the connection surface the session drives. *conn.Conn
// implements it.
type Transport interface {
	Connect(addr string)
	Disconnect()
	Send(name string, payload any) error
	Events() <-chan conn.Event
}

type pendingResult struct {
	payload json.RawMessage
	err     error
}

// pendingRequest is one outstanding correlated request, keyed in the
// session by its expected reply command name. The result channel is
// buffered so resolution never blocks the dispatch loop.
type pendingRequest struct {
	ch    chan pendingResult
	timer *time.Timer
}

type handlerFunc func(payload json.RawMessage) error

// Session dispatches lobby traffic for one connection.
type Session struct {
	tr    Transport
	store *state.Store
	log   *zerolog.Logger

	loginTimeout time.Duration

	mu        sync.Mutex
	pending   map[string]*pendingRequest
	lastLogin string

	handlers map[string]handlerFunc

	// High-frequency environment signals other subsystems consume;
	// exempt from unhandled-command logging to keep logs quiet.
	quiet map[string]struct{}
}

// New builds a Session over tr, projecting into store. loginTimeout
// bounds correlated requests; zero or negative falls back to
// DefaultLoginTimeout.
func New(tr Transport, store *state.Store, loginTimeout time.Duration, logger *zerolog.Logger) *Session {
	if loginTimeout <= 0 {
		loginTimeout = DefaultLoginTimeout
	}
	s := &Session{
		tr:           tr,
		store:        store,
		log:          logger,
		loginTimeout: loginTimeout,
		pending:      map[string]*pendingRequest{},
		quiet: map[string]struct{}{
			proto.CmdPing:        {},
			"MatchMakerStatus":   {},
			"SiteToLobbyCommand": {},
		},
	}
	s.handlers = s.buildHandlers()
	return s
}

// Run drains connection events until ctx is cancelled, applying each
// one synchronously so state mutations happen in the exact order the
// bytes arrived.
func (s *Session) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			s.tr.Disconnect()
			s.failPending(ctx.Err())
			return
		case ev := <-s.tr.Events():
			s.handleEvent(ev)
		}
	}
}

func (s *Session) handleEvent(ev conn.Event) {
	switch ev.Kind {
	case conn.EventConnecting:
		s.store.SetConnectionStatus(state.StatusConnecting)
	case conn.EventConnected:
		s.store.SetConnectionStatus(state.StatusConnected)
	case conn.EventError:
		s.store.SetConnectionError(ev.Err.Error())
	case conn.EventDisconnected:
		s.failPending(ErrConnectionClosed)
		s.store.ResetOnDisconnect()
	case conn.EventCommand:
		s.dispatch(ev.Command)
	}
}

// dispatch routes one inbound command: first resolving a matching
// pending request, then running the named handler. Unknown commands
// are dropped; malformed payloads are logged and discarded without
// touching state.
func (s *Session) dispatch(cmd proto.Command) {
	if cmd.Name == "" {
		s.log.Debug().Msg("dropping command with empty name")
		return
	}

	s.resolvePending(cmd.Name, cmd.Payload)

	handler, ok := s.handlers[cmd.Name]
	if !ok {
		if _, exempt := s.quiet[cmd.Name]; !exempt {
			s.log.Debug().Str("command", cmd.Name).Msg("unhandled command")
		}
		return
	}
	if err := handler(cmd.Payload); err != nil {
		s.log.Warn().
			Err(err).
			Str("command", cmd.Name).
			Str("payload", string(cmd.Payload)).
			Msg("discarding malformed command")
	}
}

// Connect opens (or replaces) the lobby connection. Any pending
// requests are rejected first; the socket that would carry their reply
// is being destroyed.
func (s *Session) Connect(addr string) {
	s.failPending(ErrConnectionClosed)
	s.tr.Connect(addr)
}

// Disconnect deliberately closes the lobby connection.
func (s *Session) Disconnect() {
	s.failPending(ErrConnectionClosed)
	s.tr.Disconnect()
}

// Login authenticates. The password is hashed before it touches the
// wire. Exactly one of the reply or a timeout resolves the call; a
// second Login while one is outstanding fails fast with
// ErrLoginPending.
func (s *Session) Login(ctx context.Context, username, password string) (proto.LoginResponse, error) {
	req, err := s.addPending(proto.CmdLoginResponse, s.loginTimeout)
	if err != nil {
		return proto.LoginResponse{}, err
	}

	s.mu.Lock()
	s.lastLogin = username
	s.mu.Unlock()

	payload := proto.Login{
		Name:         username,
		PasswordHash: proto.HashPassword(password),
	}
	if err := s.tr.Send(proto.CmdLogin, payload); err != nil {
		s.removePending(proto.CmdLoginResponse, req)
		return proto.LoginResponse{}, err
	}

	select {
	case res := <-req.ch:
		if res.err != nil {
			return proto.LoginResponse{}, res.err
		}
		var resp proto.LoginResponse
		if err := json.Unmarshal(res.payload, &resp); err != nil {
			return proto.LoginResponse{}, fmt.Errorf("decode login response: %w", err)
		}
		return resp, nil
	case <-ctx.Done():
		s.removePending(proto.CmdLoginResponse, req)
		return proto.LoginResponse{}, ctx.Err()
	}
}

// Register requests account creation. Fire-and-forget: the server's
// RegisterResponse flows through the normal dispatch path.
func (s *Session) Register(username, password string) error {
	if username == "" {
		return errors.New("empty username")
	}
	return s.tr.Send(proto.CmdRegister, proto.Register{
		Name:         username,
		PasswordHash: proto.HashPassword(password),
	})
}

// JoinChannel requests channel membership. Membership authority stays
// with the server; state changes arrive via JoinChannelResponse.
func (s *Session) JoinChannel(name, password string) error {
	if name == "" {
		return errors.New("empty channel name")
	}
	return s.tr.Send(proto.CmdJoinChannel, proto.JoinChannel{
		ChannelName: name,
		Password:    password,
	})
}

// LeaveChannel drops channel membership.
func (s *Session) LeaveChannel(name string) error {
	if name == "" {
		return errors.New("empty channel name")
	}
	return s.tr.Send(proto.CmdLeaveChannel, proto.LeaveChannel{ChannelName: name})
}

// SendMessage transmits a chat line. The server is the authority on
// membership; this only builds and sends the envelope.
func (s *Session) SendMessage(target, text string, place proto.SayPlace) error {
	if target == "" {
		return errors.New("empty target")
	}
	return s.tr.Send(proto.CmdSay, proto.Say{
		Place:  place,
		Target: target,
		Text:   text,
		Time:   time.Now().Unix(),
	})
}

// SetActiveChannel selects the channel the consumer is looking at.
// Purely local; no wire traffic.
func (s *Session) SetActiveChannel(name string) {
	s.store.SetActiveChannel(name)
}

// addPending registers a correlated request keyed by its expected
// reply command. At most one pending request per key; a duplicate
// fails fast instead of silently overwriting (and leaking) the first.
func (s *Session) addPending(key string, timeout time.Duration) (*pendingRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.pending[key]; exists {
		return nil, ErrLoginPending
	}

	req := &pendingRequest{ch: make(chan pendingResult, 1)}
	req.timer = time.AfterFunc(timeout, func() {
		// Remove before rejecting: a late reply must find no entry and
		// be silently ignored.
		if s.takePending(key, req) {
			req.ch <- pendingResult{err: ErrRequestTimeout}
		}
	})
	s.pending[key] = req
	return req, nil
}

// takePending removes req from the table iff it is still the entry
// registered under key.
func (s *Session) takePending(key string, req *pendingRequest) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending[key] != req {
		return false
	}
	delete(s.pending, key)
	return true
}

func (s *Session) removePending(key string, req *pendingRequest) {
	if s.takePending(key, req) {
		req.timer.Stop()
	}
}

// resolvePending completes a pending request whose reply just arrived.
func (s *Session) resolvePending(name string, payload json.RawMessage) {
	s.mu.Lock()
	req, ok := s.pending[name]
	if ok {
		delete(s.pending, name)
	}
	s.mu.Unlock()

	if !ok {
		return
	}
	req.timer.Stop()
	req.ch <- pendingResult{payload: payload}
}

// failPending rejects every outstanding request with err.
func (s *Session) failPending(err error) {
	s.mu.Lock()
	reqs := s.pending
	s.pending = map[string]*pendingRequest{}
	s.mu.Unlock()

	for _, req := range reqs {
		req.timer.Stop()
		req.ch <- pendingResult{err: err}
	}
}
