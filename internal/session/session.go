package session

import (
	"context"
	"fmt"
	"sync"

	"papertalk.app/relay/common/id"
	"papertalk.app/relay/internal/model"
)

// State is the document-load lifecycle of a session.
type State string

const (
	StateIdle    State = "idle"
	StateLoading State = "loading"
	StateReady   State = "ready"
)

// ErrNotReady is returned when a turn is submitted before any document load
// has completed.
var ErrNotReady = fmt.Errorf("session not ready: no document loaded")

// Session owns one conversation: the transcript, the one-shot context
// injector, the loaded document, and the handle to the in-flight stream.
// The active stream reference is a field here, not package state, so multiple
// independent sessions can coexist.
type Session struct {
	mu              sync.Mutex
	id              int64
	state           State
	arxivID         string
	documentContext string
	injector        Injector
	transcript      *Transcript
	activeStreamID  int64
	cancelStream    context.CancelFunc
}

func New() *Session {
	return &Session{
		id:         id.New(),
		state:      StateIdle,
		transcript: NewTranscript(),
	}
}

// BeginLoad starts a document load. It fires on every submission: a new
// identifier resets the transcript and cancels any in-flight stream; the same
// identifier leaves the conversation untouched. Returns whether a reset
// happened.
func (s *Session) BeginLoad(arxivID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	reset := arxivID != s.arxivID
	if reset {
		s.cancelActiveLocked()
		s.transcript.Reset()
		s.injector.Reset()
		s.documentContext = ""
		s.arxivID = arxivID
	}
	s.state = StateLoading
	return reset
}

// FinishLoad completes a document load. A failed fetch passes empty text,
// which leaves the session usable without context rather than blocked.
func (s *Session) FinishLoad(documentContext string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.documentContext = documentContext
	s.state = StateReady
}

// SubmitTurn records a user turn in both logs — raw text in the display log,
// possibly context-prefixed text in the API log — and returns the full API
// log to send upstream. Any stream still in flight is cancelled first so two
// streams can never interleave.
func (s *Session) SubmitTurn(userText string) ([]model.Turn, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateReady {
		return nil, ErrNotReady
	}

	s.cancelActiveLocked()

	content := s.injector.Content(s.transcript.APILogLen(), s.documentContext, userText)

	msg, err := s.transcript.AppendMessage(model.Message{
		Sender: model.SenderUser,
		Text:   userText,
	})
	if err != nil {
		return nil, err
	}
	s.transcript.AppendTurn(model.Turn{
		ID:      msg.ID,
		Role:    model.RoleUser,
		Content: content,
	})

	return s.transcript.APILog(), nil
}

// SetStreamCancel installs the cancellation handle for the relay request
// about to be opened. Closing the connection is the only cancellation
// primitive the protocol has.
func (s *Session) SetStreamCancel(cancel context.CancelFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelStream = cancel
}

// StreamOpened registers the server-assigned stream id and its display
// placeholder.
func (s *Session) StreamOpened(streamID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.transcript.BeginStreaming(streamID); err != nil {
		return err
	}
	s.activeStreamID = streamID
	return nil
}

// StreamDelta appends an incremental delta to the in-flight message.
// A delta for an id that no longer exists is dropped.
func (s *Session) StreamDelta(streamID int64, delta string) bool {
	return s.transcript.AppendStreamText(streamID, delta)
}

// StreamCompleted finalizes the in-flight message with the server's
// authoritative full text and releases the stream handle.
func (s *Session) StreamCompleted(streamID int64, fullText string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	ok := s.transcript.FinishStreaming(streamID, fullText)
	s.releaseStreamLocked(streamID)
	return ok
}

// StreamFailed cleans up after a terminal error event or a transport failure.
// With a known stream id the placeholder is replaced by an error turn; before
// any open event there is no placeholder, so the error turn is appended
// directly. Either way both logs receive identical content.
func (s *Session) StreamFailed(streamID int64, errorText string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if streamID != 0 {
		s.transcript.FailStreaming(streamID, errorText)
		s.releaseStreamLocked(streamID)
		return
	}
	s.transcript.AppendError(errorText)
}

func (s *Session) ID() int64 {
	return s.id
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) ArxivID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arxivID
}

func (s *Session) DocumentContext() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.documentContext
}

func (s *Session) ContextInjected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.injector.Injected()
}

func (s *Session) ActiveStreamID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.activeStreamID
}

func (s *Session) Transcript() *Transcript {
	return s.transcript
}

// cancelActiveLocked tears down the in-flight stream: cancel its context and
// drop its display placeholder, so no message stays marked streaming and a
// trailing chunk from the dead stream finds no id to land on.
func (s *Session) cancelActiveLocked() {
	if s.cancelStream != nil {
		s.cancelStream()
		s.cancelStream = nil
	}
	if s.activeStreamID != 0 {
		s.transcript.AbortStreaming(s.activeStreamID)
		s.activeStreamID = 0
	}
}

func (s *Session) releaseStreamLocked(streamID int64) {
	if s.activeStreamID == streamID {
		s.activeStreamID = 0
		s.cancelStream = nil
	}
}
