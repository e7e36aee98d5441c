package state

import (
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestStore() *Store {
	logger := zerolog.Nop()
	return New(&logger)
}

func mustSnapshot(t *testing.T, ch <-chan Snapshot) Snapshot {
	t.Helper()

	select {
	case snap := <-ch:
		return snap
	case <-time.After(2 * time.Second):
		t.Fatal("expected snapshot notification")
		return Snapshot{}
	}
}

func TestMutationNotifiesSubscribers(t *testing.T) {
	s := newTestStore()
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	before := s.Snapshot().LastUpdated
	s.UpdateLobby(Lobby{Engine: "E1", Game: "G1", UserCount: 5})

	snap := mustSnapshot(t, ch)
	if snap.Lobby.Engine != "E1" || snap.Lobby.Game != "G1" || snap.Lobby.UserCount != 5 {
		t.Fatalf("unexpected lobby %+v", snap.Lobby)
	}
	if !snap.LastUpdated.After(before) {
		t.Fatal("LastUpdated not refreshed")
	}
}

func TestSnapshotIsolation(t *testing.T) {
	s := newTestStore()
	s.SetChannel(Channel{Name: "general"})
	s.AddUserToChannel("general", "alice")

	old := s.Snapshot()
	s.AddUserToChannel("general", "bob")

	if got := len(old.Channels["general"].Users); got != 1 {
		t.Fatalf("earlier snapshot mutated, has %d users", got)
	}
	if got := len(s.Snapshot().Channels["general"].Users); got != 2 {
		t.Fatalf("expected 2 users, got %d", got)
	}
}

func TestMessageCap(t *testing.T) {
	s := newTestStore()
	s.SetChannel(Channel{Name: "general"})

	total := MaxChannelMessages + 17
	for i := 0; i < total; i++ {
		s.AddMessage(ChatMessage{
			ID:      fmt.Sprintf("m%d", i),
			Channel: "general",
			User:    "alice",
			Text:    fmt.Sprintf("msg %d", i),
		})
	}

	msgs := s.Snapshot().Channels["general"].Messages
	if len(msgs) != MaxChannelMessages {
		t.Fatalf("expected %d messages, got %d", MaxChannelMessages, len(msgs))
	}
	// Retained messages are the most recent, in arrival order.
	if msgs[0].ID != fmt.Sprintf("m%d", total-MaxChannelMessages) {
		t.Fatalf("unexpected oldest retained message %s", msgs[0].ID)
	}
	if msgs[len(msgs)-1].ID != fmt.Sprintf("m%d", total-1) {
		t.Fatalf("unexpected newest message %s", msgs[len(msgs)-1].ID)
	}
}

func TestMessageForUnknownChannelDropped(t *testing.T) {
	s := newTestStore()
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	s.AddMessage(ChatMessage{ID: "m1", Channel: "ghost", User: "alice", Text: "hi"})

	select {
	case snap := <-ch:
		t.Fatalf("unexpected notification %+v", snap)
	case <-time.After(50 * time.Millisecond):
	}
	if len(s.Snapshot().Channels) != 0 {
		t.Fatal("channel created for dropped message")
	}
}

func TestChannelMessagesSurviveRejoin(t *testing.T) {
	s := newTestStore()
	s.SetChannel(Channel{Name: "general"})
	s.AddMessage(ChatMessage{ID: "m1", Channel: "general", User: "alice", Text: "hi"})

	s.SetChannel(Channel{Name: "general", Topic: "new topic", Users: []string{"alice", "bob"}})

	ch := s.Snapshot().Channels["general"]
	if ch.Topic != "new topic" || len(ch.Users) != 2 {
		t.Fatalf("metadata not replaced: %+v", ch)
	}
	if len(ch.Messages) != 1 || ch.Messages[0].ID != "m1" {
		t.Fatalf("messages not preserved across rejoin: %+v", ch.Messages)
	}
}

func TestChannelMembershipIdempotent(t *testing.T) {
	s := newTestStore()
	s.SetChannel(Channel{Name: "general"})

	s.AddUserToChannel("general", "alice")
	s.AddUserToChannel("general", "alice")
	if got := s.Snapshot().Channels["general"].Users; len(got) != 1 {
		t.Fatalf("duplicate add not idempotent: %v", got)
	}

	s.RemoveUserFromChannel("general", "bob")
	s.RemoveUserFromChannel("ghost", "alice")
	if got := s.Snapshot().Channels["general"].Users; len(got) != 1 {
		t.Fatalf("no-op removals mutated membership: %v", got)
	}

	s.RemoveUserFromChannel("general", "alice")
	if got := s.Snapshot().Channels["general"].Users; len(got) != 0 {
		t.Fatalf("remove failed: %v", got)
	}
}

func TestSetActiveChannelRequiresMembership(t *testing.T) {
	s := newTestStore()

	s.SetActiveChannel("ghost")
	if got := s.Snapshot().ActiveChannel; got != "" {
		t.Fatalf("active channel set to unjoined channel %q", got)
	}

	s.SetChannel(Channel{Name: "general"})
	s.SetActiveChannel("general")
	if got := s.Snapshot().ActiveChannel; got != "general" {
		t.Fatalf("expected general, got %q", got)
	}

	s.RemoveChannel("general")
	if got := s.Snapshot().ActiveChannel; got != "" {
		t.Fatalf("active channel not cleared on removal, got %q", got)
	}
}

func TestResetOnDisconnect(t *testing.T) {
	s := newTestStore()
	s.SetConnectionStatus(StatusConnected)
	s.UpdateAuth(Auth{LoggedIn: true, Username: "alice"})
	s.SetChannel(Channel{Name: "general"})
	s.SetActiveChannel("general")
	s.AddMessage(ChatMessage{ID: "m1", Channel: "general", User: "alice", Text: "hi"})
	s.UpsertUser(UserProfile{Name: "alice"})
	s.UpsertBattle(Battle{ID: 7, Title: "1v1"})
	s.SetNews([]NewsItem{{Header: "update"}})

	s.ResetOnDisconnect()

	snap := s.Snapshot()
	if snap.Connection.Status != StatusDisconnected {
		t.Fatalf("unexpected status %q", snap.Connection.Status)
	}
	if snap.Auth.LoggedIn || snap.Auth.Username != "" {
		t.Fatalf("auth not reset: %+v", snap.Auth)
	}
	if len(snap.Channels) != 0 || len(snap.Users) != 0 || len(snap.Battles) != 0 || len(snap.News) != 0 {
		t.Fatalf("snapshot not empty after reset: %+v", snap)
	}
	if snap.ActiveChannel != "" {
		t.Fatalf("active channel survived reset: %q", snap.ActiveChannel)
	}
}

func TestSlowSubscriberSeesLatest(t *testing.T) {
	s := newTestStore()
	id, ch := s.Subscribe()
	defer s.Unsubscribe(id)

	// Subscriber never drains between mutations; the pending snapshot
	// must be the newest one.
	s.UpdateLobby(Lobby{UserCount: 1})
	s.UpdateLobby(Lobby{UserCount: 2})
	s.UpdateLobby(Lobby{UserCount: 3})

	snap := mustSnapshot(t, ch)
	if snap.Lobby.UserCount != 3 {
		t.Fatalf("expected latest snapshot, got user count %d", snap.Lobby.UserCount)
	}
}
