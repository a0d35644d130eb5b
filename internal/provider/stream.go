package provider

import (
	"bufio"
	"encoding/json"
	"io"
	"strings"
)

// Stream yields the text deltas of one streaming completion. It hides the
// upstream SSE framing: callers see only content strings and a clean EOF at
// the [DONE] sentinel.
type Stream struct {
	body    io.ReadCloser
	scanner *bufio.Scanner
	done    bool
}

func newStream(body io.ReadCloser) *Stream {
	s := bufio.NewScanner(body)
	s.Buffer(make([]byte, 0, 4096), 1<<20)
	return &Stream{body: body, scanner: s}
}

// Next returns the next non-empty text delta. It returns io.EOF after the
// [DONE] sentinel or when the upstream closes the stream.
func (s *Stream) Next() (string, error) {
	if s.done {
		return "", io.EOF
	}

	for s.scanner.Scan() {
		payload, ok := strings.CutPrefix(s.scanner.Text(), "data:")
		if !ok {
			continue
		}
		payload = strings.TrimSpace(payload)
		if payload == "" {
			continue
		}
		if payload == "[DONE]" {
			s.done = true
			return "", io.EOF
		}

		var chunk streamChunk
		if err := json.Unmarshal([]byte(payload), &chunk); err != nil {
			// Skip unparseable keepalive noise rather than kill the turn.
			continue
		}
		if len(chunk.Choices) == 0 {
			continue
		}
		if delta := chunk.Choices[0].Delta.Content; delta != "" {
			return delta, nil
		}
	}

	s.done = true
	if err := s.scanner.Err(); err != nil {
		return "", err
	}
	return "", io.EOF
}

// Close releases the underlying response body.
func (s *Stream) Close() error {
	return s.body.Close()
}
