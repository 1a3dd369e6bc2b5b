package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"

	"papertalk.app/relay/common/logger"
	"papertalk.app/relay/internal/session"
)

// ErrorTurnText is the user-visible error turn recorded in both logs when a
// stream ends without a usable reply. Callers that fail before any stream
// opened record the same text so error turns read identically everywhere.
const ErrorTurnText = "Sorry, there was an error processing your request. Please try again."

// ErrNoTerminalEvent is returned when the stream ended without a terminal
// complete or error event (a transport-level failure).
var ErrNoTerminalEvent = errors.New("stream ended without terminal event")

// Consumer applies a decoded event stream to a session: the placeholder
// message on open, display-text deltas on chunks, and finalization or error
// cleanup on the terminal event. It is an explicit pull loop, so cancellation
// and error paths are linear.
type Consumer struct {
	session *session.Session

	// OnDelta, when set, observes each applied delta (e.g. for terminal
	// rendering). It is not called for dropped trailing chunks.
	OnDelta func(delta string)
}

func NewConsumer(s *session.Session) *Consumer {
	return &Consumer{session: s}
}

// Run consumes events until the terminal event, stream end, or context
// cancellation. Whatever the exit path, no message is left marked streaming:
// a missing terminal event triggers the same cleanup as a terminal error.
// Returns the finalized full text on success.
func (c *Consumer) Run(ctx context.Context, r io.Reader) (string, error) {
	ctx = logger.WithLogFields(ctx, logger.LogFields{
		SessionID: logger.Ptr(c.session.ID()),
		Component: "relay.stream.consumer",
	})

	decoder := NewDecoder(r)
	var streamID int64
	var accumulated strings.Builder

	for {
		if err := ctx.Err(); err != nil {
			// Cancelled by a session reset or a newer turn. The cancelling
			// path already dropped the placeholder; nothing to synthesize.
			return "", err
		}

		event, err := decoder.Next(ctx)
		if err != nil {
			c.session.StreamFailed(streamID, ErrorTurnText)
			if errors.Is(err, io.EOF) {
				slog.WarnContext(ctx, "stream ended without terminal event", "stream_id", streamID)
				return "", ErrNoTerminalEvent
			}
			slog.ErrorContext(ctx, "stream transport failure", "error", err, "stream_id", streamID)
			return "", err
		}

		switch {
		case event.IsErrorEvent():
			slog.WarnContext(ctx, "stream terminated with error event", "error", event.Error)
			c.session.StreamFailed(streamID, ErrorTurnText)
			return "", errors.New(event.Error)

		case event.IsChunk:
			accumulated.WriteString(event.Text)
			if c.session.StreamDelta(event.ID, event.Text) && c.OnDelta != nil {
				c.OnDelta(event.Text)
			}

		case event.IsComplete:
			// The server's finalized text is authoritative; the local
			// accumulator exists to drive incremental display only.
			if got, want := accumulated.Len(), len(event.Text); got != want {
				slog.DebugContext(ctx, "accumulated length differs from final text",
					"accumulated", got, "final", want)
			}
			c.session.StreamCompleted(event.ID, event.Text)
			return event.Text, nil

		default: // open
			streamID = event.ID
			if err := c.session.StreamOpened(streamID); err != nil {
				slog.WarnContext(ctx, "could not register stream", "error", err, "stream_id", streamID)
			}
		}
	}
}
