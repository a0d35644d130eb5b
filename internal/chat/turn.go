package chat

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
)

// State is the per-turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateSending
	StateStreaming
	StateCompleted
	StateErrored
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateSending:
		return "sending"
	case StateStreaming:
		return "streaming"
	case StateCompleted:
		return "completed"
	case StateErrored:
		return "errored"
	default:
		return "unknown"
	}
}

// TurnRequest is the body of one chat turn. An empty ConversationID means
// "use or create the 1:1 conversation for this highlight" — the server
// resolves conversation identity, never the client.
type TurnRequest struct {
	HighlightID    string `json:"highlightId"`
	Message        string `json:"message"`
	ConversationID string `json:"conversationId,omitempty"`
}

// Sender opens the streaming response for one turn.
type Sender interface {
	Send(ctx context.Context, req TurnRequest) (io.ReadCloser, error)
}

// Result is the outcome of a completed turn.
type Result struct {
	Assistant      string
	ConversationID string
}

// TurnError carries the message of an explicit error frame.
type TurnError struct {
	Message string
}

func (e *TurnError) Error() string {
	return e.Message
}

// Turn drives one user-message-to-assistant-response cycle:
// idle -> sending -> streaming -> completed | errored.
type Turn struct {
	state State
}

// NewTurn returns a turn in the idle state.
func NewTurn() *Turn {
	return &Turn{state: StateIdle}
}

// State returns the turn's current lifecycle state.
func (t *Turn) State() State {
	return t.state
}

// Run executes the turn against sender, invoking onDelta (if non-nil) for
// every text delta in arrival order. Deltas are appended to a single growing
// assistant message; no reordering or coalescing. The stream is read to its
// terminal frame: a done frame completes the turn with the authoritative
// conversation id, an error frame fails it with that exact message, and a
// stream that ends without either is a transport failure.
func (t *Turn) Run(ctx context.Context, sender Sender, req TurnRequest, onDelta func(string)) (Result, error) {
	if t.state != StateIdle {
		return Result{}, fmt.Errorf("turn already started (state %s)", t.state)
	}

	t.state = StateSending
	rc, err := sender.Send(ctx, req)
	if err != nil {
		t.state = StateErrored
		return Result{}, fmt.Errorf("sending turn: %w", err)
	}
	defer rc.Close()

	t.state = StateStreaming
	dec := NewDecoder(rc)
	var assistant strings.Builder

	for {
		frame, err := dec.Next()
		if err == io.EOF {
			t.state = StateErrored
			return Result{}, errors.New("stream ended before terminal frame")
		}
		if err != nil {
			t.state = StateErrored
			return Result{}, fmt.Errorf("reading stream: %w", err)
		}

		switch frame.Kind {
		case FrameDelta:
			assistant.WriteString(frame.Text)
			if onDelta != nil {
				onDelta(frame.Text)
			}
		case FrameDone:
			t.state = StateCompleted
			return Result{
				Assistant:      assistant.String(),
				ConversationID: frame.ConversationID,
			}, nil
		case FrameError:
			t.state = StateErrored
			return Result{}, &TurnError{Message: frame.Message}
		}
	}
}
