package conn

import "github.com/openlobby/lobbyctl/internal/proto"

// EventKind is a notification the connection emits to its consumer.
type EventKind int

const (
	// EventConnecting fires when a connection attempt starts.
	EventConnecting EventKind = iota
	// EventConnected fires when the socket is established.
	EventConnected
	// EventCommand delivers one framed protocol command.
	EventCommand
	// EventError reports a transport failure. It never terminates the
	// stream by itself; a Disconnected event follows when the socket
	// actually closes.
	EventError
	// EventDisconnected fires exactly once per attempt that reached
	// Connecting or Connected.
	EventDisconnected
)

// Event describes what happened on the connection.
type Event struct {
	Kind    EventKind
	Command proto.Command
	Err     error
}
