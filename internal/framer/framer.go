// Package framer reconstructs newline-delimited protocol envelopes from
// an arbitrarily chunked byte stream. TCP provides no message
// boundaries; the framer carries incomplete trailing data across reads
// so that no line is ever dispatched partially or twice.
package framer

import (
	"bytes"

	"github.com/openlobby/lobbyctl/internal/proto"
)

// Framer accumulates raw socket bytes and emits complete commands in
// arrival order. Not safe for concurrent use; a single reader goroutine
// owns it.
type Framer struct {
	buf  []byte
	emit func(proto.Command)
}

// New builds a Framer that calls emit synchronously for every complete
// line, in order, during Push.
func New(emit func(proto.Command)) *Framer {
	return &Framer{emit: emit}
}

// Push appends one chunk and dispatches every line it completes. A
// chunk that does not end in '\n' leaves its final fragment buffered
// for the next Push. Empty lines are still emitted (with an empty
// command name); the dispatch layer drops them.
func (f *Framer) Push(chunk []byte) {
	f.buf = append(f.buf, chunk...)

	for {
		i := bytes.IndexByte(f.buf, '\n')
		if i < 0 {
			return
		}
		line := string(f.buf[:i])
		f.buf = f.buf[i+1:]
		f.emit(proto.ParseLine(line))
	}
}

// Pending reports how many bytes are buffered awaiting their newline.
func (f *Framer) Pending() int {
	return len(f.buf)
}

// Reset discards any buffered fragment. Called when the underlying
// socket is replaced; leftover bytes from a dead connection must never
// prefix the next connection's stream.
func (f *Framer) Reset() {
	f.buf = nil
}
