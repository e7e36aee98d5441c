package session

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/openlobby/lobbyctl/internal/proto"
	"github.com/openlobby/lobbyctl/internal/state"
)

// buildHandlers wires the inbound dispatch table. Each handler decodes
// its payload and projects it into exactly one store mutation; a
// decode error is returned so dispatch can log and discard it.
func (s *Session) buildHandlers() map[string]handlerFunc {
	return map[string]handlerFunc{
		proto.CmdWelcome:             s.onWelcome,
		proto.CmdLoginResponse:       s.onLoginResponse,
		proto.CmdRegisterResponse:    s.onRegisterResponse,
		proto.CmdJoinChannelResponse: s.onJoinChannelResponse,
		proto.CmdSay:                 s.onSay,
		proto.CmdUser:                s.onUser,
		proto.CmdUserDisconnected:    s.onUserDisconnected,
		proto.CmdChannelUserAdded:    s.onChannelUserAdded,
		proto.CmdChannelUserRemoved:  s.onChannelUserRemoved,
		proto.CmdBattleAdded:         s.onBattleAdded,
		proto.CmdBattleUpdate:        s.onBattleAdded,
		proto.CmdBattleRemoved:       s.onBattleRemoved,
		proto.CmdNewsList:            s.onNewsList,
	}
}

func (s *Session) onWelcome(payload json.RawMessage) error {
	var msg proto.Welcome
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode welcome: %w", err)
	}
	s.store.UpdateLobby(state.Lobby{
		Engine:         msg.Engine,
		Game:           msg.Game,
		UserCount:      msg.UserCount,
		WelcomeMessage: msg.Message,
	})
	return nil
}

// onLoginResponse updates auth unconditionally, whether or not a Login
// call is still awaiting the reply. The result code maps through a
// fixed table; unrecognized codes become a generic message, never an
// error.
func (s *Session) onLoginResponse(payload json.RawMessage) error {
	var msg proto.LoginResponse
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode login response: %w", err)
	}

	loggedIn := msg.ResultCode == proto.LoginOK
	username := msg.Name
	if username == "" {
		s.mu.Lock()
		username = s.lastLogin
		s.mu.Unlock()
	}
	if !loggedIn {
		username = ""
	}

	loginMsg := msg.Reason
	if loginMsg == "" {
		loginMsg = proto.LoginMessage(msg.ResultCode)
	}

	s.store.UpdateAuth(state.Auth{
		LoggedIn:     loggedIn,
		Username:     username,
		LoginMessage: loginMsg,
	})
	return nil
}

func (s *Session) onRegisterResponse(payload json.RawMessage) error {
	var msg proto.RegisterResponse
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode register response: %w", err)
	}
	s.log.Info().Int("result", msg.ResultCode).Str("reason", msg.Reason).Msg("register response")
	return nil
}

// onJoinChannelResponse upserts channel metadata when the join carried
// a Channel sub-object. Existing chat history is preserved by the
// store across repeated joins.
func (s *Session) onJoinChannelResponse(payload json.RawMessage) error {
	var msg proto.JoinChannelResponse
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode join channel response: %w", err)
	}
	if msg.Channel == nil {
		if !msg.Success {
			s.log.Info().Str("channel", msg.ChannelName).Str("reason", msg.Reason).Msg("channel join refused")
		}
		return nil
	}

	name := msg.ChannelName
	if name == "" {
		name = msg.Channel.ChannelName
	}
	s.store.SetChannel(state.Channel{
		Name:     name,
		Topic:    msg.Channel.Topic,
		IsDeluge: msg.Channel.IsDeluge,
		Users:    slices.Clone(msg.Channel.Users),
	})
	return nil
}

// onSay projects channel chat only; messages for other places are
// consumed by subsystems outside this layer and dropped here.
func (s *Session) onSay(payload json.RawMessage) error {
	var msg proto.Say
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode say: %w", err)
	}
	if msg.Place != proto.SayPlaceChannel {
		s.log.Debug().Int("place", int(msg.Place)).Str("target", msg.Target).Msg("non-channel say dropped")
		return nil
	}

	when := time.Now()
	if msg.Time > 0 {
		when = time.Unix(msg.Time, 0)
	}
	s.store.AddMessage(state.ChatMessage{
		ID:      messageID(when, msg.User),
		Channel: msg.Target,
		User:    msg.User,
		Text:    msg.Text,
		IsEmote: msg.IsEmote,
		Time:    when,
	})
	return nil
}

// messageID synthesizes a locally-unique chat message id.
func messageID(when time.Time, user string) string {
	return fmt.Sprintf("%d-%s-%s", when.UnixNano(), user, uuid.NewString()[:8])
}

func (s *Session) onUser(payload json.RawMessage) error {
	var msg proto.User
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode user: %w", err)
	}
	s.store.UpsertUser(state.UserProfile{
		Name:     msg.Name,
		Country:  msg.Country,
		Clan:     msg.Clan,
		Level:    msg.Level,
		IsAdmin:  msg.IsAdmin,
		IsBot:    msg.IsBot,
		IsInGame: msg.IsInGame,
		IsAway:   msg.IsAway,
		BattleID: msg.BattleID,
	})
	return nil
}

func (s *Session) onUserDisconnected(payload json.RawMessage) error {
	var msg proto.UserDisconnected
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode user disconnected: %w", err)
	}
	s.store.RemoveUser(msg.Name)
	return nil
}

func (s *Session) onChannelUserAdded(payload json.RawMessage) error {
	var msg proto.ChannelUserAdded
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode channel user added: %w", err)
	}
	s.store.AddUserToChannel(msg.ChannelName, msg.UserName)
	return nil
}

func (s *Session) onChannelUserRemoved(payload json.RawMessage) error {
	var msg proto.ChannelUserRemoved
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode channel user removed: %w", err)
	}

	// Our own removal means we left (or were kicked from) the channel.
	auth := s.store.Snapshot().Auth
	if auth.LoggedIn && auth.Username == msg.UserName {
		s.store.RemoveChannel(msg.ChannelName)
		return nil
	}
	s.store.RemoveUserFromChannel(msg.ChannelName, msg.UserName)
	return nil
}

func (s *Session) onBattleAdded(payload json.RawMessage) error {
	var msg proto.BattleAdded
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode battle header: %w", err)
	}
	h := msg.Header
	s.store.UpsertBattle(state.Battle{
		ID:             h.BattleID,
		Title:          h.Title,
		Engine:         h.Engine,
		Game:           h.Game,
		Map:            h.Map,
		Founder:        h.FounderName,
		MaxPlayers:     h.MaxPlayers,
		PlayerCount:    h.PlayerCount,
		SpectatorCount: h.SpectatorCount,
		IsRunning:      h.IsRunning,
		HasPassword:    h.Password,
	})
	return nil
}

func (s *Session) onBattleRemoved(payload json.RawMessage) error {
	var msg proto.BattleRemoved
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode battle removed: %w", err)
	}
	s.store.RemoveBattle(msg.BattleID)
	return nil
}

func (s *Session) onNewsList(payload json.RawMessage) error {
	var msg proto.NewsList
	if err := json.Unmarshal(payload, &msg); err != nil {
		return fmt.Errorf("decode news list: %w", err)
	}
	items := make([]state.NewsItem, 0, len(msg.NewsItems))
	for _, n := range msg.NewsItems {
		item := state.NewsItem{Header: n.Header, Text: n.Text, URL: n.URL}
		if n.Time > 0 {
			item.Time = time.Unix(n.Time, 0)
		}
		items = append(items, item)
	}
	s.store.SetNews(items)
	return nil
}
