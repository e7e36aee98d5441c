package session

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyctl/internal/conn"
	"github.com/openlobby/lobbyctl/internal/proto"
	"github.com/openlobby/lobbyctl/internal/state"
)

// fakeTransport records sends and lets tests inject connection events.
type fakeTransport struct {
	mu      sync.Mutex
	sent    []sentCommand
	sendErr error
	events  chan conn.Event
}

type sentCommand struct {
	name    string
	payload any
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{events: make(chan conn.Event, 64)}
}

func (f *fakeTransport) Connect(addr string) {}
func (f *fakeTransport) Disconnect()         {}

func (f *fakeTransport) Send(name string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return f.sendErr
	}
	f.sent = append(f.sent, sentCommand{name: name, payload: payload})
	return nil
}

func (f *fakeTransport) Events() <-chan conn.Event {
	return f.events
}

func (f *fakeTransport) sentNames() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.sent))
	for _, c := range f.sent {
		names = append(names, c.name)
	}
	return names
}

func (f *fakeTransport) command(name, payload string) {
	f.events <- conn.Event{
		Kind:    conn.EventCommand,
		Command: proto.Command{Name: name, Payload: json.RawMessage(payload)},
	}
}

func newTestSession(t *testing.T) (*Session, *fakeTransport, *state.Store, context.CancelFunc) {
	t.Helper()
	return newTestSessionTimeout(t, 0)
}

func newTestSessionTimeout(t *testing.T, loginTimeout time.Duration) (*Session, *fakeTransport, *state.Store, context.CancelFunc) {
	t.Helper()

	logger := zerolog.Nop()
	tr := newFakeTransport()
	store := state.New(&logger)
	s := New(tr, store, loginTimeout, &logger)

	ctx, cancel := context.WithCancel(context.Background())
	go s.Run(ctx)
	t.Cleanup(cancel)
	return s, tr, store, cancel
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestWelcomeUpdatesLobby(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command(proto.CmdWelcome, `{"Engine":"E1","Game":"G1","UserCount":5}`)

	waitFor(t, "lobby update", func() bool {
		l := store.Snapshot().Lobby
		return l.Engine == "E1" && l.Game == "G1" && l.UserCount == 5
	})
}

func TestLoginResolvedByReply(t *testing.T) {
	s, tr, store, _ := newTestSession(t)

	type result struct {
		resp proto.LoginResponse
		err  error
	}
	done := make(chan result, 1)
	go func() {
		resp, err := s.Login(context.Background(), "bob", "pw")
		done <- result{resp, err}
	}()

	waitFor(t, "login send", func() bool {
		return len(tr.sentNames()) == 1
	})
	tr.mu.Lock()
	login, ok := tr.sent[0].payload.(proto.Login)
	tr.mu.Unlock()
	if !ok || login.Name != "bob" {
		t.Fatalf("unexpected login payload %+v", tr.sent[0])
	}
	if login.PasswordHash == "" || login.PasswordHash == "pw" {
		t.Fatalf("password not hashed: %q", login.PasswordHash)
	}

	tr.command(proto.CmdLoginResponse, `{"ResultCode":0,"Name":"bob"}`)

	res := <-done
	if res.err != nil {
		t.Fatalf("login failed: %v", res.err)
	}
	if res.resp.ResultCode != proto.LoginOK {
		t.Fatalf("unexpected result code %d", res.resp.ResultCode)
	}

	waitFor(t, "auth update", func() bool {
		a := store.Snapshot().Auth
		return a.LoggedIn && a.Username == "bob"
	})
}

func TestNewDefaultsLoginTimeout(t *testing.T) {
	logger := zerolog.Nop()
	s := New(newFakeTransport(), state.New(&logger), 0, &logger)
	if s.loginTimeout != DefaultLoginTimeout {
		t.Fatalf("zero timeout not defaulted: %v", s.loginTimeout)
	}

	s = New(newFakeTransport(), state.New(&logger), 3*time.Second, &logger)
	if s.loginTimeout != 3*time.Second {
		t.Fatalf("configured timeout ignored: %v", s.loginTimeout)
	}
}

func TestLoginTimeout(t *testing.T) {
	s, _, store, _ := newTestSessionTimeout(t, 50*time.Millisecond)

	before := store.Snapshot().Auth

	_, err := s.Login(context.Background(), "bob", "pw")
	if !errors.Is(err, ErrRequestTimeout) {
		t.Fatalf("expected timeout error, got %v", err)
	}
	if got := store.Snapshot().Auth; got != before {
		t.Fatalf("auth mutated by timed-out login: %+v", got)
	}

	// A second login may now proceed; the table entry is gone.
	if _, err := s.addPending(proto.CmdLoginResponse, time.Minute); err != nil {
		t.Fatalf("pending entry leaked after timeout: %v", err)
	}
}

func TestSecondLoginRejectedWhilePending(t *testing.T) {
	s, tr, _, _ := newTestSession(t)

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), "bob", "pw")
		done <- err
	}()

	waitFor(t, "first login send", func() bool {
		return len(tr.sentNames()) == 1
	})

	if _, err := s.Login(context.Background(), "eve", "pw2"); !errors.Is(err, ErrLoginPending) {
		t.Fatalf("expected ErrLoginPending, got %v", err)
	}

	// The first login still resolves with its reply.
	tr.command(proto.CmdLoginResponse, `{"ResultCode":0,"Name":"bob"}`)
	if err := <-done; err != nil {
		t.Fatalf("first login broken by rejected second: %v", err)
	}
}

func TestLoginSendFailureClearsPending(t *testing.T) {
	s, tr, _, _ := newTestSession(t)
	tr.mu.Lock()
	tr.sendErr = conn.ErrNotConnected
	tr.mu.Unlock()

	if _, err := s.Login(context.Background(), "bob", "pw"); !errors.Is(err, conn.ErrNotConnected) {
		t.Fatalf("expected ErrNotConnected, got %v", err)
	}
	if _, err := s.addPending(proto.CmdLoginResponse, time.Minute); err != nil {
		t.Fatalf("pending entry leaked after send failure: %v", err)
	}
}

func TestDisconnectRejectsPendingAndResetsState(t *testing.T) {
	s, tr, store, _ := newTestSession(t)

	tr.events <- conn.Event{Kind: conn.EventConnected}
	tr.command(proto.CmdJoinChannelResponse, `{"ChannelName":"general","Success":true,"Channel":{"Users":["alice"]}}`)
	waitFor(t, "channel join", func() bool {
		_, ok := store.Snapshot().Channels["general"]
		return ok
	})

	done := make(chan error, 1)
	go func() {
		_, err := s.Login(context.Background(), "bob", "pw")
		done <- err
	}()
	waitFor(t, "login send", func() bool {
		return len(tr.sentNames()) == 1
	})

	tr.events <- conn.Event{Kind: conn.EventDisconnected}

	if err := <-done; !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
	waitFor(t, "reset", func() bool {
		snap := store.Snapshot()
		return snap.Connection.Status == state.StatusDisconnected && len(snap.Channels) == 0
	})
}

func TestJoinThenSayAppendsMessage(t *testing.T) {
	s, tr, store, _ := newTestSession(t)

	if err := s.JoinChannel("general", ""); err != nil {
		t.Fatalf("join channel: %v", err)
	}
	tr.command(proto.CmdJoinChannelResponse, `{"ChannelName":"general","Success":true,"Channel":{"Users":["alice"]}}`)
	tr.command(proto.CmdSay, `{"Place":0,"Target":"general","User":"alice","Text":"hi"}`)

	waitFor(t, "say projected", func() bool {
		ch, ok := store.Snapshot().Channels["general"]
		return ok && len(ch.Messages) == 1
	})

	msg := store.Snapshot().Channels["general"].Messages[0]
	if msg.User != "alice" || msg.Text != "hi" || msg.ID == "" {
		t.Fatalf("unexpected message %+v", msg)
	}
}

func TestNonChannelSayDropped(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command(proto.CmdJoinChannelResponse, `{"ChannelName":"general","Success":true,"Channel":{}}`)
	tr.command(proto.CmdSay, `{"Place":2,"Target":"general","User":"alice","Text":"psst"}`)
	// Ordering probe: a later command proves the Say was processed.
	tr.command(proto.CmdUser, `{"Name":"alice"}`)

	waitFor(t, "user upsert", func() bool {
		_, ok := store.Snapshot().Users["alice"]
		return ok
	})
	if got := store.Snapshot().Channels["general"].Messages; len(got) != 0 {
		t.Fatalf("non-channel say projected into history: %v", got)
	}
}

func TestMalformedPayloadDiscarded(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command(proto.CmdWelcome, `{"Engine":`)
	tr.command(proto.CmdUser, `{"Name":"alice"}`)

	waitFor(t, "dispatch continues", func() bool {
		_, ok := store.Snapshot().Users["alice"]
		return ok
	})
	if got := store.Snapshot().Lobby; got.Engine != "" {
		t.Fatalf("malformed welcome mutated state: %+v", got)
	}
}

func TestEmptyAndUnknownCommandsDropped(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command("", "")
	tr.command("NoSuchCommand", `{"Whatever":1}`)
	tr.command(proto.CmdUser, `{"Name":"alice"}`)

	waitFor(t, "dispatch continues", func() bool {
		_, ok := store.Snapshot().Users["alice"]
		return ok
	})
}

func TestChannelMembershipEvents(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command(proto.CmdJoinChannelResponse, `{"ChannelName":"general","Success":true,"Channel":{"Users":["alice"]}}`)
	tr.command(proto.CmdChannelUserAdded, `{"ChannelName":"general","UserName":"bob"}`)
	tr.command(proto.CmdChannelUserAdded, `{"ChannelName":"general","UserName":"bob"}`)
	tr.command(proto.CmdChannelUserRemoved, `{"ChannelName":"general","UserName":"alice"}`)

	waitFor(t, "membership settled", func() bool {
		ch, ok := store.Snapshot().Channels["general"]
		return ok && len(ch.Users) == 1 && ch.Users[0] == "bob"
	})
}

func TestOwnRemovalDropsChannel(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command(proto.CmdLoginResponse, `{"ResultCode":0,"Name":"alice"}`)
	tr.command(proto.CmdJoinChannelResponse, `{"ChannelName":"general","Success":true,"Channel":{"Users":["alice","bob"]}}`)
	tr.command(proto.CmdChannelUserRemoved, `{"ChannelName":"general","UserName":"alice"}`)

	waitFor(t, "channel dropped", func() bool {
		_, ok := store.Snapshot().Channels["general"]
		return !ok
	})
}

func TestBattleRoster(t *testing.T) {
	_, tr, store, _ := newTestSession(t)

	tr.command(proto.CmdBattleAdded, `{"Header":{"BattleID":7,"Title":"1v1","FounderName":"alice"}}`)
	tr.command(proto.CmdBattleUpdate, `{"Header":{"BattleID":7,"Title":"1v1","FounderName":"alice","PlayerCount":2}}`)
	tr.command(proto.CmdBattleAdded, `{"Header":{"BattleID":8,"Title":"ffa"}}`)
	tr.command(proto.CmdBattleRemoved, `{"BattleID":8}`)

	waitFor(t, "battle roster settled", func() bool {
		battles := store.Snapshot().Battles
		b, ok := battles[7]
		return ok && len(battles) == 1 && b.PlayerCount == 2
	})
}
