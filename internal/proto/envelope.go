package proto

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Command is one decoded wire envelope: a command name and its raw
// JSON payload. Payload is empty (not "null") for lines that carry no
// payload at all.
type Command struct {
	Name    string
	Payload json.RawMessage
}

// ParseLine splits one complete line (without its trailing newline)
// into a Command at the first space. A line with no space is a command
// with an empty payload. An empty line yields a Command with an empty
// name; callers are expected to drop it.
func ParseLine(line string) Command {
	name, payload, found := strings.Cut(line, " ")
	if !found {
		return Command{Name: line}
	}
	return Command{Name: name, Payload: json.RawMessage(payload)}
}

// EncodeLine serializes payload to JSON and renders the outbound wire
// form "<name> <json>\n". JSON encoding guarantees the payload cannot
// contain an unescaped newline.
func EncodeLine(name string, payload any) ([]byte, error) {
	if name == "" || strings.ContainsRune(name, ' ') {
		return nil, fmt.Errorf("invalid command name %q", name)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", name, err)
	}
	buf := make([]byte, 0, len(name)+1+len(data)+1)
	buf = append(buf, name...)
	buf = append(buf, ' ')
	buf = append(buf, data...)
	buf = append(buf, '\n')
	return buf, nil
}
