package chat

import (
	"bufio"
	"bytes"
	"io"
	"strings"
)

// Decoder reads frames from an SSE stream. Logical frames may arrive split
// across physical chunks; the decoder buffers on the blank-line delimiter and
// only parses complete events, so chunk boundaries never surface as errors.
type Decoder struct {
	scanner *bufio.Scanner
}

// NewDecoder wraps a streaming response body.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	s.Split(splitEvents)
	return &Decoder{scanner: s}
}

// splitEvents tokenizes on the SSE event delimiter (blank line). A trailing
// partial event at EOF is surfaced as a token; ParseFrame decides whether it
// was actually complete.
func splitEvents(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if i := bytes.Index(data, []byte("\n\n")); i >= 0 {
		return i + 2, data[:i], nil
	}
	if atEOF && len(data) > 0 {
		return len(data), data, nil
	}
	return 0, nil, nil
}

// Next returns the next complete frame. It returns io.EOF when the stream
// ends; callers that have not seen a terminal frame by then treat that as a
// transport failure. Events without a data field (comments, keepalives) are
// skipped.
func (d *Decoder) Next() (Frame, error) {
	for d.scanner.Scan() {
		payload, ok := dataPayload(d.scanner.Text())
		if !ok {
			continue
		}
		return ParseFrame([]byte(payload))
	}
	if err := d.scanner.Err(); err != nil {
		return Frame{}, err
	}
	return Frame{}, io.EOF
}

// dataPayload extracts the concatenated data lines of one SSE event.
func dataPayload(event string) (string, bool) {
	var parts []string
	for _, line := range strings.Split(event, "\n") {
		line = strings.TrimRight(line, "\r")
		if rest, ok := strings.CutPrefix(line, "data:"); ok {
			parts = append(parts, strings.TrimPrefix(rest, " "))
		}
	}
	if len(parts) == 0 {
		return "", false
	}
	return strings.Join(parts, "\n"), true
}
