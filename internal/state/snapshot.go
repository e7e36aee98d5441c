package state

import "time"

// Status is the connection-status projection of the lobby session.
type Status string

const (
	StatusDisconnected Status = "disconnected"
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
)

// MaxChannelMessages bounds per-channel chat history; the oldest
// messages are evicted first.
const MaxChannelMessages = 200

// Connection is the transport sub-record of the snapshot.
type Connection struct {
	Status    Status `json:"status"`
	LastError string `json:"last_error,omitempty"`
}

// Auth is the authentication sub-record of the snapshot.
type Auth struct {
	LoggedIn     bool   `json:"logged_in"`
	Username     string `json:"username,omitempty"`
	LoginMessage string `json:"login_message,omitempty"`
}

// Lobby holds server-wide metadata from the Welcome command.
type Lobby struct {
	Engine         string `json:"engine,omitempty"`
	Game           string `json:"game,omitempty"`
	UserCount      int    `json:"user_count"`
	WelcomeMessage string `json:"welcome_message,omitempty"`
}

// ChatMessage is one entry of a channel's bounded history.
type ChatMessage struct {
	ID      string    `json:"id"`
	Channel string    `json:"channel"`
	User    string    `json:"user"`
	Text    string    `json:"text"`
	IsEmote bool      `json:"is_emote,omitempty"`
	Time    time.Time `json:"time"`
}

// Channel is a joined chat room: topic, membership, bounded history.
type Channel struct {
	Name     string        `json:"name"`
	Topic    string        `json:"topic,omitempty"`
	IsDeluge bool          `json:"is_deluge,omitempty"`
	Users    []string      `json:"users"`
	Messages []ChatMessage `json:"messages"`
}

// UserProfile is the lobby-wide view of one user.
type UserProfile struct {
	Name     string `json:"name"`
	Country  string `json:"country,omitempty"`
	Clan     string `json:"clan,omitempty"`
	Level    int    `json:"level,omitempty"`
	IsAdmin  bool   `json:"is_admin,omitempty"`
	IsBot    bool   `json:"is_bot,omitempty"`
	IsInGame bool   `json:"is_in_game,omitempty"`
	IsAway   bool   `json:"is_away,omitempty"`
	BattleID int    `json:"battle_id,omitempty"`
}

// Battle is one entry of the hosted-battle roster.
type Battle struct {
	ID             int    `json:"id"`
	Title          string `json:"title,omitempty"`
	Engine         string `json:"engine,omitempty"`
	Game           string `json:"game,omitempty"`
	Map            string `json:"map,omitempty"`
	Founder        string `json:"founder,omitempty"`
	MaxPlayers     int    `json:"max_players,omitempty"`
	PlayerCount    int    `json:"player_count"`
	SpectatorCount int    `json:"spectator_count"`
	IsRunning      bool   `json:"is_running,omitempty"`
	HasPassword    bool   `json:"has_password,omitempty"`
}

// NewsItem is one lobby news entry.
type NewsItem struct {
	Header string    `json:"header"`
	Text   string    `json:"text,omitempty"`
	URL    string    `json:"url,omitempty"`
	Time   time.Time `json:"time,omitzero"`
}

// Snapshot is the full, versioned lobby state. Each mutation produces
// a new root; sub-records not on the touched path are structurally
// shared. Consumers must treat a returned Snapshot as read-only.
type Snapshot struct {
	Connection    Connection             `json:"connection"`
	Auth          Auth                   `json:"auth"`
	Lobby         Lobby                  `json:"lobby"`
	Channels      map[string]Channel     `json:"channels"`
	ActiveChannel string                 `json:"active_channel,omitempty"`
	Battles       map[int]Battle         `json:"battles"`
	Users         map[string]UserProfile `json:"users"`
	News          []NewsItem             `json:"news"`
	LastUpdated   time.Time              `json:"last_updated"`
}

func emptySnapshot() Snapshot {
	return Snapshot{
		Connection: Connection{Status: StatusDisconnected},
		Channels:   map[string]Channel{},
		Battles:    map[int]Battle{},
		Users:      map[string]UserProfile{},
	}
}
