// Package conn owns the lobby TCP socket. It isolates every other
// component from raw I/O: arriving bytes are framed into commands and
// published on an ordered event stream, outbound commands are
// serialized onto the wire.
package conn

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openlobby/lobbyctl/internal/framer"
	"github.com/openlobby/lobbyctl/internal/proto"
)

// ErrNotConnected is returned by Send when no socket is established.
// Sends are never queued or silently dropped.
var ErrNotConnected = errors.New("not connected")

const eventBuffer = 256

// Conn manages one lobby socket at a time. Connect replaces any
// existing socket; the old one is closed, never reused. All events for
// one attempt are delivered in order: Connecting, Connected, commands
// and errors, then exactly one Disconnected.
type Conn struct {
	mu  sync.Mutex
	wmu sync.Mutex
	cur *attempt

	dialTimeout time.Duration
	events      chan Event
	log         *zerolog.Logger
}

// attempt is the state of a single connection attempt. A fresh framer
// per attempt guarantees leftover bytes from a dead socket never prefix
// the next stream.
type attempt struct {
	sock       net.Conn
	cancelDial context.CancelFunc
	deliberate atomic.Bool
	done       chan struct{}
}

// New builds a Conn. Events must be drained by a single consumer.
func New(dialTimeout time.Duration, logger *zerolog.Logger) *Conn {
	return &Conn{
		dialTimeout: dialTimeout,
		events:      make(chan Event, eventBuffer),
		log:         logger,
	}
}

// Events returns the ordered event stream. The channel is never
// closed; lifecycle is tracked through Disconnected events.
func (c *Conn) Events() <-chan Event {
	return c.events
}

// Connect opens a socket to addr. Any existing socket is forcibly
// closed first (no graceful drain) and its attempt runs to its
// Disconnected event before the new attempt starts. Dial failures
// surface asynchronously as an Error event followed by Disconnected;
// Connect itself never fails.
func (c *Conn) Connect(addr string) {
	c.teardown()

	ctx, cancel := context.WithCancel(context.Background())
	at := &attempt{cancelDial: cancel, done: make(chan struct{})}

	c.mu.Lock()
	c.cur = at
	c.mu.Unlock()

	c.log.Debug().Str("addr", addr).Msg("connecting")
	c.events <- Event{Kind: EventConnecting}
	go c.run(ctx, at, addr)
}

// Disconnect deliberately closes the current socket, suppressing the
// error event the close would otherwise produce, and waits for the
// attempt's Disconnected event to be emitted. No-op when idle.
func (c *Conn) Disconnect() {
	c.teardown()
}

// Send serializes payload and writes "<name> <json>\n" to the socket.
// Returns ErrNotConnected when no socket is established; the command
// is not queued.
func (c *Conn) Send(name string, payload any) error {
	line, err := proto.EncodeLine(name, payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	var sock net.Conn
	if c.cur != nil {
		sock = c.cur.sock
	}
	c.mu.Unlock()
	if sock == nil {
		return ErrNotConnected
	}

	c.wmu.Lock()
	defer c.wmu.Unlock()
	if _, err := sock.Write(line); err != nil {
		return fmt.Errorf("send %s: %w", name, err)
	}
	return nil
}

func (c *Conn) teardown() {
	c.mu.Lock()
	at := c.cur
	c.cur = nil
	if at != nil {
		at.deliberate.Store(true)
		at.cancelDial()
		if at.sock != nil {
			at.sock.Close()
		}
	}
	c.mu.Unlock()

	if at != nil {
		<-at.done
	}
}

func (c *Conn) run(ctx context.Context, at *attempt, addr string) {
	defer close(at.done)

	dialer := net.Dialer{Timeout: c.dialTimeout}
	sock, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if !at.deliberate.Load() {
			c.log.Warn().Err(err).Str("addr", addr).Msg("dial failed")
			c.events <- Event{Kind: EventError, Err: fmt.Errorf("dial %s: %w", addr, err)}
		}
		c.events <- Event{Kind: EventDisconnected}
		return
	}

	c.mu.Lock()
	if at.deliberate.Load() {
		c.mu.Unlock()
		sock.Close()
		c.events <- Event{Kind: EventDisconnected}
		return
	}
	at.sock = sock
	c.mu.Unlock()

	c.log.Info().Str("addr", addr).Msg("connected")
	c.events <- Event{Kind: EventConnected}

	fr := framer.New(func(cmd proto.Command) {
		c.events <- Event{Kind: EventCommand, Command: cmd}
	})

	buf := make([]byte, 4096)
	for {
		n, err := sock.Read(buf)
		if n > 0 {
			fr.Push(buf[:n])
		}
		if err != nil {
			if !at.deliberate.Load() && !errors.Is(err, io.EOF) {
				c.log.Warn().Err(err).Msg("read failed")
				c.events <- Event{Kind: EventError, Err: fmt.Errorf("read: %w", err)}
			}
			break
		}
	}

	c.mu.Lock()
	if c.cur == at {
		c.cur = nil
	}
	c.mu.Unlock()

	sock.Close()
	c.log.Info().Str("addr", addr).Msg("disconnected")
	c.events <- Event{Kind: EventDisconnected}
}
