// Package stomp encodes and decodes the small subset of STOMP used to carry
// room events over the streaming channel: CONNECT, SUBSCRIBE and MESSAGE
// frames, plus CONNECTED and ERROR from the server side.
//
// A frame is a command line, header lines, a blank line, a body and a NUL
// terminator. A lone newline between frames is a heart-beat.
package stomp

import (
	"bytes"
	"errors"
	"strings"
)

type Command string

const (
	CmdConnect   Command = "CONNECT"
	CmdConnected Command = "CONNECTED"
	CmdSubscribe Command = "SUBSCRIBE"
	CmdMessage   Command = "MESSAGE"
	CmdError     Command = "ERROR"
)

const terminator = 0x00

var (
	ErrMalformedFrame = errors.New("malformed frame")
	ErrNotMessage     = errors.New("not a MESSAGE frame")
	ErrEmptyFrame     = errors.New("empty frame")
)

type Header struct {
	Key   string
	Value string
}

// Frame keeps headers in wire order.
type Frame struct {
	Command Command
	Headers []Header
	Body    []byte
}

// Get returns the first value of key. STOMP says the first occurrence wins.
func (f Frame) Get(key string) (string, bool) {
	for _, h := range f.Headers {
		if h.Key == key {
			return h.Value, true
		}
	}
	return "", false
}

func Encode(f Frame) []byte {
	var b bytes.Buffer
	b.WriteString(string(f.Command))
	b.WriteByte('\n')
	for _, h := range f.Headers {
		b.WriteString(h.Key)
		b.WriteByte(':')
		b.WriteString(h.Value)
		b.WriteByte('\n')
	}
	b.WriteByte('\n')
	b.Write(f.Body)
	b.WriteByte(terminator)
	return b.Bytes()
}

// Decode parses exactly one frame. Leading heart-beat newlines and anything
// after the NUL terminator are ignored; a missing terminator is tolerated.
func Decode(data []byte) (Frame, error) {
	data = bytes.TrimLeft(data, "\r\n")
	if i := bytes.IndexByte(data, terminator); i >= 0 {
		data = data[:i]
	}
	if len(data) == 0 {
		return Frame{}, ErrEmptyFrame
	}

	head, body, ok := splitHead(data)
	if !ok {
		return Frame{}, ErrMalformedFrame
	}

	lines := strings.Split(string(head), "\n")
	cmd := strings.TrimSuffix(lines[0], "\r")
	if cmd == "" {
		return Frame{}, ErrMalformedFrame
	}

	f := Frame{Command: Command(cmd), Body: body}
	for _, line := range lines[1:] {
		line = strings.TrimSuffix(line, "\r")
		if line == "" {
			continue
		}
		k, v, ok := strings.Cut(line, ":")
		if !ok {
			return Frame{}, ErrMalformedFrame
		}
		f.Headers = append(f.Headers, Header{Key: k, Value: v})
	}
	return f, nil
}

// Split cuts a buffer holding zero or more NUL terminated frames into the
// individual frames. Heart-beats produce no output.
func Split(data []byte) [][]byte {
	var out [][]byte
	for len(data) > 0 {
		i := bytes.IndexByte(data, terminator)
		var chunk []byte
		if i < 0 {
			chunk, data = data, nil
		} else {
			chunk, data = data[:i+1], data[i+1:]
		}
		if len(bytes.Trim(chunk, "\r\n\x00")) == 0 {
			continue
		}
		out = append(out, chunk)
	}
	return out
}

// splitHead cuts at the first blank line, LF or CRLF. The body may itself
// contain blank lines, so the earliest separator wins.
func splitHead(data []byte) (head, body []byte, ok bool) {
	lf := bytes.Index(data, []byte("\n\n"))
	crlf := bytes.Index(data, []byte("\r\n\r\n"))
	switch {
	case crlf >= 0 && (lf < 0 || crlf < lf):
		return data[:crlf], data[crlf+4:], true
	case lf >= 0:
		return data[:lf], data[lf+2:], true
	}
	return nil, nil, false
}
