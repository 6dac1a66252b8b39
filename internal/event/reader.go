package event

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

const maxFrameLine = 4 << 20

// Frame is one decoded SSE frame. Data is left raw; callers unmarshal it
// into the data type matching Kind.
type Frame struct {
	Kind Kind
	Data json.RawMessage
}

// Reader decodes frames written by Encode.
type Reader struct {
	sc *bufio.Scanner
}

// NewReader returns a Reader over r.
func NewReader(r io.Reader) *Reader {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxFrameLine)
	return &Reader{sc: sc}
}

// Next returns the next frame, or io.EOF once the stream ends. A trailing
// frame without its blank line is still returned.
func (r *Reader) Next() (Frame, error) {
	var kind string
	var data []string
	for r.sc.Scan() {
		line := r.sc.Text()
		switch {
		case line == "":
			if kind != "" {
				return Frame{Kind: Kind(kind), Data: json.RawMessage(strings.Join(data, "\n"))}, nil
			}
		case strings.HasPrefix(line, ":"):
		case strings.HasPrefix(line, "event:"):
			kind = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "data:"):
			data = append(data, strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}
	if err := r.sc.Err(); err != nil {
		return Frame{}, err
	}
	if kind != "" {
		return Frame{Kind: Kind(kind), Data: json.RawMessage(strings.Join(data, "\n"))}, nil
	}
	return Frame{}, io.EOF
}
