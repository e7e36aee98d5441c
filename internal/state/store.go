// Package state holds the canonical lobby snapshot. The store is the
// sole mutator: every mutation swaps the snapshot root atomically and
// publishes the full new snapshot to subscribers, so a concurrent
// reader observes either the pre- or post-mutation state, never a torn
// one.
package state

import (
	"maps"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Store owns the canonical snapshot and the subscriber list.
type Store struct {
	mu   sync.Mutex
	cur  Snapshot
	subs []subscriber
	log  *zerolog.Logger
}

// subscriber channels hold the latest snapshot only; a slow consumer
// sees fewer, newer snapshots rather than a growing backlog.
type subscriber struct {
	id string
	ch chan Snapshot
}

// New builds a Store with an empty, disconnected snapshot.
func New(logger *zerolog.Logger) *Store {
	return &Store{cur: emptySnapshot(), log: logger}
}

// Snapshot returns the current snapshot. The returned value must be
// treated as read-only; its maps and slices are shared with future
// reads but never mutated in place.
func (s *Store) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cur
}

// Subscribe registers a change listener and returns its id and a
// channel carrying the full snapshot after every mutation. Delivery
// follows registration order.
func (s *Store) Subscribe() (string, <-chan Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sub := subscriber{id: uuid.NewString(), ch: make(chan Snapshot, 1)}
	s.subs = append(s.subs, sub)
	return sub.id, sub.ch
}

// Unsubscribe removes a listener. Unknown ids are ignored.
func (s *Store) Unsubscribe(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.subs = slices.DeleteFunc(s.subs, func(sub subscriber) bool {
		return sub.id == id
	})
}

// commit replaces the snapshot root and notifies subscribers. Callers
// hold s.mu.
func (s *Store) commit(next Snapshot) {
	next.LastUpdated = time.Now()
	s.cur = next

	for _, sub := range s.subs {
		select {
		case sub.ch <- next:
		default:
			// Replace the stale pending snapshot with the newest one.
			select {
			case <-sub.ch:
			default:
			}
			sub.ch <- next
		}
	}
}

// SetConnectionStatus records a transport status transition.
func (s *Store) SetConnectionStatus(status Status) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Connection.Status = status
	s.commit(next)
}

// SetConnectionError records a transport error without forcing a
// status transition.
func (s *Store) SetConnectionError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Connection.LastError = msg
	s.commit(next)
}

// UpdateAuth replaces the authentication sub-record.
func (s *Store) UpdateAuth(auth Auth) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Auth = auth
	s.commit(next)
}

// UpdateLobby replaces the server-wide lobby metadata.
func (s *Store) UpdateLobby(lobby Lobby) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Lobby = lobby
	s.commit(next)
}

// SetChannel upserts a channel's metadata. Chat history survives
// repeated joins: an existing channel's messages are carried over
// regardless of what ch.Messages holds.
func (s *Store) SetChannel(ch Channel) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if prev, ok := s.cur.Channels[ch.Name]; ok {
		ch.Messages = prev.Messages
	}

	next := s.cur
	next.Channels = maps.Clone(s.cur.Channels)
	next.Channels[ch.Name] = ch
	s.commit(next)
}

// RemoveChannel drops a channel. Clears the active channel if it
// pointed at the removed one.
func (s *Store) RemoveChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cur.Channels[name]; !ok {
		return
	}

	next := s.cur
	next.Channels = maps.Clone(s.cur.Channels)
	delete(next.Channels, name)
	if next.ActiveChannel == name {
		next.ActiveChannel = ""
	}
	s.commit(next)
}

// SetActiveChannel selects the channel the consumer is looking at.
// No-op (and no notification) unless the channel is currently joined;
// an empty name clears the selection.
func (s *Store) SetActiveChannel(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if name != "" {
		if _, ok := s.cur.Channels[name]; !ok {
			s.log.Debug().Str("channel", name).Msg("active channel not joined, ignoring")
			return
		}
	}

	next := s.cur
	next.ActiveChannel = name
	s.commit(next)
}

// AddUserToChannel records channel membership. Idempotent: adding an
// already-present user is a silent no-op. Unknown channels are logged
// and ignored.
func (s *Store) AddUserToChannel(channel, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.cur.Channels[channel]
	if !ok {
		s.log.Debug().Str("channel", channel).Str("user", user).Msg("user added to unknown channel")
		return
	}
	if slices.Contains(ch.Users, user) {
		return
	}

	ch.Users = append(slices.Clone(ch.Users), user)

	next := s.cur
	next.Channels = maps.Clone(s.cur.Channels)
	next.Channels[channel] = ch
	s.commit(next)
}

// RemoveUserFromChannel drops channel membership. Removing an absent
// user, or from an unknown channel, is a silent no-op.
func (s *Store) RemoveUserFromChannel(channel, user string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.cur.Channels[channel]
	if !ok {
		s.log.Debug().Str("channel", channel).Str("user", user).Msg("user removed from unknown channel")
		return
	}
	i := slices.Index(ch.Users, user)
	if i < 0 {
		return
	}

	ch.Users = slices.Delete(slices.Clone(ch.Users), i, i+1)

	next := s.cur
	next.Channels = maps.Clone(s.cur.Channels)
	next.Channels[channel] = ch
	s.commit(next)
}

// AddMessage appends to a channel's history, evicting from the front
// past MaxChannelMessages. A message for an unknown channel is logged
// and dropped with no mutation and no notification.
func (s *Store) AddMessage(msg ChatMessage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ch, ok := s.cur.Channels[msg.Channel]
	if !ok {
		s.log.Debug().Str("channel", msg.Channel).Str("user", msg.User).Msg("message for unknown channel dropped")
		return
	}

	msgs := append(slices.Clone(ch.Messages), msg)
	if len(msgs) > MaxChannelMessages {
		msgs = msgs[len(msgs)-MaxChannelMessages:]
	}
	ch.Messages = msgs

	next := s.cur
	next.Channels = maps.Clone(s.cur.Channels)
	next.Channels[msg.Channel] = ch
	s.commit(next)
}

// UpsertUser records or refreshes a lobby user.
func (s *Store) UpsertUser(u UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Users = maps.Clone(s.cur.Users)
	next.Users[u.Name] = u
	s.commit(next)
}

// RemoveUser drops a lobby user. Unknown names are ignored.
func (s *Store) RemoveUser(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cur.Users[name]; !ok {
		return
	}

	next := s.cur
	next.Users = maps.Clone(s.cur.Users)
	delete(next.Users, name)
	s.commit(next)
}

// UpsertBattle records or refreshes a battle roster entry.
func (s *Store) UpsertBattle(b Battle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.Battles = maps.Clone(s.cur.Battles)
	next.Battles[b.ID] = b
	s.commit(next)
}

// RemoveBattle drops a battle roster entry. Unknown ids are ignored.
func (s *Store) RemoveBattle(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.cur.Battles[id]; !ok {
		return
	}

	next := s.cur
	next.Battles = maps.Clone(s.cur.Battles)
	delete(next.Battles, id)
	s.commit(next)
}

// SetNews replaces the lobby news feed.
func (s *Store) SetNews(items []NewsItem) {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := s.cur
	next.News = slices.Clone(items)
	s.commit(next)
}

// ResetOnDisconnect reinitializes the snapshot to defaults with
// connection status disconnected. This is the sole path that clears
// channels, users, battles, news, and chat history; it runs exactly
// once per disconnect event.
func (s *Store) ResetOnDisconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.commit(emptySnapshot())
}
