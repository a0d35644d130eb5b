// Package chat implements the streaming turn protocol: the wire frame codec,
// the client-side turn state machine, and the scroll-follow view state.
//
// A turn's response is a sequence of server-sent events, each one frame:
//
//	data: {"text":"Hel"}
//	data: {"text":"lo"}
//	data: {"done":true,"conversationId":"c9"}
//
// terminated by exactly one done or error frame.
package chat

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrMalformedFrame marks a complete frame whose payload is not valid frame
// JSON. Unlike a partially delivered frame (which the decoder buffers), this
// is an application error and terminates the turn.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameKind discriminates the frame union.
type FrameKind int

const (
	FrameDelta FrameKind = iota
	FrameDone
	FrameError
)

// Frame is one decoded unit of the streaming protocol.
type Frame struct {
	Kind           FrameKind
	Text           string // FrameDelta
	ConversationID string // FrameDone
	Message        string // FrameError
}

// wireFrame mirrors the JSON payload of one data event.
type wireFrame struct {
	Text           *string `json:"text"`
	Done           bool    `json:"done"`
	ConversationID string  `json:"conversationId"`
	Error          *string `json:"error"`
}

// ParseFrame decodes one complete frame payload.
func ParseFrame(payload []byte) (Frame, error) {
	var w wireFrame
	if err := json.Unmarshal(payload, &w); err != nil {
		return Frame{}, fmt.Errorf("%w: %v", ErrMalformedFrame, err)
	}

	switch {
	case w.Error != nil:
		return Frame{Kind: FrameError, Message: *w.Error}, nil
	case w.Done:
		return Frame{Kind: FrameDone, ConversationID: w.ConversationID}, nil
	case w.Text != nil:
		return Frame{Kind: FrameDelta, Text: *w.Text}, nil
	default:
		return Frame{}, fmt.Errorf("%w: frame carries no text, done, or error", ErrMalformedFrame)
	}
}
