package proto

// Command names exchanged with the lobby server. The wire vocabulary is
// open-ended; these are the commands the session engine handles or sends.
const (
	CmdWelcome             = "Welcome"
	CmdLogin               = "Login"
	CmdLoginResponse       = "LoginResponse"
	CmdRegister            = "Register"
	CmdRegisterResponse    = "RegisterResponse"
	CmdJoinChannel         = "JoinChannel"
	CmdJoinChannelResponse = "JoinChannelResponse"
	CmdLeaveChannel        = "LeaveChannel"
	CmdSay                 = "Say"
	CmdUser                = "User"
	CmdUserDisconnected    = "UserDisconnected"
	CmdChannelUserAdded    = "ChannelUserAdded"
	CmdChannelUserRemoved  = "ChannelUserRemoved"
	CmdBattleAdded         = "BattleAdded"
	CmdBattleUpdate        = "BattleUpdate"
	CmdBattleRemoved       = "BattleRemoved"
	CmdNewsList            = "NewsList"
	CmdPing                = "Ping"
)

// SayPlace identifies where a chat message was said.
type SayPlace int

const (
	SayPlaceChannel SayPlace = iota
	SayPlaceBattle
	SayPlaceUser
	SayPlaceBattlePrivate
	SayPlaceGame
	SayPlaceMessageBox
)

// Welcome is the first command the server sends after the socket opens.
type Welcome struct {
	Engine    string `json:"Engine"`
	Game      string `json:"Game"`
	Version   string `json:"Version,omitempty"`
	UserCount int    `json:"UserCount"`
	Message   string `json:"Message,omitempty"`
}

// Login requests authentication. PasswordHash carries the pre-hashed
// password; the cleartext never leaves the client.
type Login struct {
	Name         string `json:"Name"`
	PasswordHash string `json:"PasswordHash"`
	ClientType   int    `json:"ClientType,omitempty"`
	LobbyVersion string `json:"LobbyVersion,omitempty"`
}

// Login result codes returned by the server in LoginResponse.
const (
	LoginOK               = 0
	LoginInvalidName      = 1
	LoginInvalidPassword  = 2
	LoginBanned           = 3
	LoginAlreadyConnected = 4
)

// LoginResponse answers a Login request.
type LoginResponse struct {
	ResultCode int    `json:"ResultCode"`
	Reason     string `json:"Reason,omitempty"`
	Name       string `json:"Name,omitempty"`
}

var loginMessages = map[int]string{
	LoginOK:               "Login accepted",
	LoginInvalidName:      "Invalid user name",
	LoginInvalidPassword:  "Invalid password",
	LoginBanned:           "Account banned",
	LoginAlreadyConnected: "Already logged in from another client",
}

// LoginMessage maps a LoginResponse result code to a user-facing
// message. Unrecognized codes map to a generic message, never an error.
func LoginMessage(code int) string {
	if msg, ok := loginMessages[code]; ok {
		return msg
	}
	return "Unknown error"
}

// Register requests account creation. Fire-and-forget on the client
// side; the server answers with RegisterResponse.
type Register struct {
	Name         string `json:"Name"`
	PasswordHash string `json:"PasswordHash"`
}

// RegisterResponse answers a Register request.
type RegisterResponse struct {
	ResultCode int    `json:"ResultCode"`
	Reason     string `json:"Reason,omitempty"`
}

// JoinChannel requests channel membership.
type JoinChannel struct {
	ChannelName string `json:"ChannelName"`
	Password    string `json:"Password,omitempty"`
}

// ChannelInfo is the channel metadata carried inside JoinChannelResponse.
type ChannelInfo struct {
	ChannelName string   `json:"ChannelName"`
	Topic       string   `json:"Topic,omitempty"`
	TopicSetBy  string   `json:"TopicSetBy,omitempty"`
	IsDeluge    bool     `json:"IsDeluge,omitempty"`
	Users       []string `json:"Users,omitempty"`
}

// JoinChannelResponse answers a JoinChannel request. Channel is nil
// when the join was refused.
type JoinChannelResponse struct {
	ChannelName string       `json:"ChannelName"`
	Success     bool         `json:"Success"`
	Reason      string       `json:"Reason,omitempty"`
	Channel     *ChannelInfo `json:"Channel,omitempty"`
}

// LeaveChannel drops channel membership.
type LeaveChannel struct {
	ChannelName string `json:"ChannelName"`
}

// Say carries a chat message, inbound and outbound.
type Say struct {
	Place   SayPlace `json:"Place"`
	Target  string   `json:"Target"`
	User    string   `json:"User,omitempty"`
	Text    string   `json:"Text"`
	IsEmote bool     `json:"IsEmote,omitempty"`
	Ring    bool     `json:"Ring,omitempty"`
	Time    int64    `json:"Time,omitempty"`
}

// User announces or refreshes another user's presence and profile.
type User struct {
	Name        string `json:"Name"`
	Country     string `json:"Country,omitempty"`
	Clan        string `json:"Clan,omitempty"`
	Level       int    `json:"Level,omitempty"`
	IsAdmin     bool   `json:"IsAdmin,omitempty"`
	IsBot       bool   `json:"IsBot,omitempty"`
	IsInGame    bool   `json:"IsInGame,omitempty"`
	IsAway      bool   `json:"IsAway,omitempty"`
	BattleID    int    `json:"BattleID,omitempty"`
	LobbyClient string `json:"LobbyClient,omitempty"`
}

// UserDisconnected announces a user leaving the lobby.
type UserDisconnected struct {
	Name   string `json:"Name"`
	Reason string `json:"Reason,omitempty"`
}

// ChannelUserAdded announces a user joining a channel.
type ChannelUserAdded struct {
	ChannelName string `json:"ChannelName"`
	UserName    string `json:"UserName"`
}

// ChannelUserRemoved announces a user leaving a channel.
type ChannelUserRemoved struct {
	ChannelName string `json:"ChannelName"`
	UserName    string `json:"UserName"`
}

// BattleHeader describes one hosted battle in the lobby list.
type BattleHeader struct {
	BattleID       int    `json:"BattleID"`
	Title          string `json:"Title,omitempty"`
	Engine         string `json:"Engine,omitempty"`
	Game           string `json:"Game,omitempty"`
	Map            string `json:"Map,omitempty"`
	FounderName    string `json:"FounderName,omitempty"`
	MaxPlayers     int    `json:"MaxPlayers,omitempty"`
	PlayerCount    int    `json:"PlayerCount,omitempty"`
	SpectatorCount int    `json:"SpectatorCount,omitempty"`
	IsRunning      bool   `json:"IsRunning,omitempty"`
	Password       bool   `json:"Password,omitempty"`
}

// BattleAdded announces a newly hosted battle.
type BattleAdded struct {
	Header BattleHeader `json:"Header"`
}

// BattleUpdate refreshes an existing battle's header.
type BattleUpdate struct {
	Header BattleHeader `json:"Header"`
}

// BattleRemoved announces a battle closing.
type BattleRemoved struct {
	BattleID int `json:"BattleID"`
}

// NewsItem is one lobby news entry.
type NewsItem struct {
	Header string `json:"Header"`
	Text   string `json:"Text,omitempty"`
	URL    string `json:"Url,omitempty"`
	Time   int64  `json:"Time,omitempty"`
}

// NewsList replaces the lobby news feed.
type NewsList struct {
	NewsItems []NewsItem `json:"NewsItems"`
}
