package session

import (
	"fmt"
	"sync"

	"papertalk.app/relay/common/id"
	"papertalk.app/relay/internal/model"
)

// Transcript holds the two parallel logs of one conversation: the display log
// the user sees (including the in-flight streaming placeholder) and the API
// log replayed to the model. At rest the logs have the same number of turns;
// they diverge only while a stream is in flight, when the display log carries
// a placeholder with no API counterpart yet.
//
// Every streaming update goes through an id lookup and silently skips absent
// ids. That is the contract that makes a trailing chunk arriving after a
// Reset a no-op instead of corrupting the next conversation.
type Transcript struct {
	mu      sync.Mutex
	display []model.Message
	api     []model.Turn
}

func NewTranscript() *Transcript {
	return &Transcript{}
}

// AppendMessage appends to the display log, assigning an id when absent.
// An explicit id that already exists is rejected rather than overwritten.
func (t *Transcript) AppendMessage(msg model.Message) (model.Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if msg.ID == 0 {
		msg.ID = id.New()
	} else if t.findMessage(msg.ID) >= 0 {
		return model.Message{}, fmt.Errorf("message id %d already in display log", msg.ID)
	}

	t.display = append(t.display, msg)
	return msg, nil
}

// AppendTurn appends to the API log, assigning an id when absent.
func (t *Transcript) AppendTurn(turn model.Turn) model.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()

	if turn.ID == 0 {
		turn.ID = id.New()
	}
	t.api = append(t.api, turn)
	return turn
}

// BeginStreaming registers the placeholder assistant message for an in-flight
// stream under the server-assigned id.
func (t *Transcript) BeginStreaming(streamID int64) error {
	_, err := t.AppendMessage(model.Message{
		ID:          streamID,
		Sender:      model.SenderAssistant,
		Text:        "",
		IsStreaming: true,
	})
	return err
}

// AppendStreamText appends a delta to the streaming message's display text.
// Returns false (a no-op, not an error) when the id is no longer present.
func (t *Transcript) AppendStreamText(streamID int64, delta string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.findMessage(streamID)
	if i < 0 || !t.display[i].IsStreaming {
		return false
	}
	t.display[i].Text += delta
	return true
}

// FinishStreaming finalizes the streaming message with the authoritative full
// text and commits the matching assistant turn to the API log. Returns false
// when the id is no longer present (e.g. the session was reset mid-stream).
func (t *Transcript) FinishStreaming(streamID int64, fullText string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.findMessage(streamID)
	if i < 0 {
		return false
	}
	t.display[i].Text = fullText
	t.display[i].IsStreaming = false
	t.api = append(t.api, model.Turn{
		ID:      streamID,
		Role:    model.RoleAssistant,
		Content: fullText,
	})
	return true
}

// FailStreaming removes the streaming placeholder and records an error turn
// with identical content in both logs, keeping turn counts consistent.
// Returns false when the placeholder is no longer present.
func (t *Transcript) FailStreaming(streamID int64, errorText string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.findMessage(streamID)
	if i < 0 {
		return false
	}
	t.display = append(t.display[:i], t.display[i+1:]...)
	t.appendErrorLocked(errorText)
	return true
}

// AbortStreaming removes a superseded streaming placeholder from the display
// log. Unlike FailStreaming no error turn is recorded: the caller is replacing
// the stream, not reporting a failure. Returns false when no placeholder is
// streaming under that id.
func (t *Transcript) AbortStreaming(streamID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	i := t.findMessage(streamID)
	if i < 0 || !t.display[i].IsStreaming {
		return false
	}
	t.display = append(t.display[:i], t.display[i+1:]...)
	return true
}

// AppendError records an error turn with identical content in both logs.
// Used directly when a transport failure happens before any stream opened.
func (t *Transcript) AppendError(errorText string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.appendErrorLocked(errorText)
}

func (t *Transcript) appendErrorLocked(errorText string) {
	errorID := id.New()
	t.display = append(t.display, model.Message{
		ID:      errorID,
		Sender:  model.SenderAssistant,
		Text:    errorText,
		IsError: true,
	})
	t.api = append(t.api, model.Turn{
		ID:      errorID,
		Role:    model.RoleAssistant,
		Content: errorText,
	})
}

// Reset clears both logs.
func (t *Transcript) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.display = nil
	t.api = nil
}

// DisplayLog returns a copy of the display log in append order.
func (t *Transcript) DisplayLog() []model.Message {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Message, len(t.display))
	copy(out, t.display)
	return out
}

// APILog returns a copy of the API log in append order.
func (t *Transcript) APILog() []model.Turn {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]model.Turn, len(t.api))
	copy(out, t.api)
	return out
}

// APILogLen reports the number of committed API turns.
func (t *Transcript) APILogLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.api)
}

func (t *Transcript) findMessage(msgID int64) int {
	for i := range t.display {
		if t.display[i].ID == msgID {
			return i
		}
	}
	return -1
}
