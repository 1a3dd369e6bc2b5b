package dto

import "papertalk.app/relay/internal/model"

type ChatRequest struct {
	Messages []TurnPayload `json:"messages" binding:"required,min=1,dive"`
	Stream   bool          `json:"stream"`
}

type TurnPayload struct {
	ID      int64  `json:"id,string,omitempty"`
	Role    string `json:"role" binding:"required,oneof=user assistant"`
	Content string `json:"content" binding:"required"`
}

type ChatResponse struct {
	ID     int64  `json:"id,string"`
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// StreamEvent is one framed event of a streaming chat response, written as a
// `data: <JSON>` line followed by a blank line. The same type is decoded by
// the client-side stream consumer.
//
// Exactly one of three shapes is emitted per event:
//   - open:     {id, sender, text: "", isComplete: false}
//   - chunk:    {id, sender, text: <delta>, isComplete: false, isChunk: true}
//   - terminal: {id, sender, text: <full>, isComplete: true} or {error, isComplete: true}
type StreamEvent struct {
	ID         int64  `json:"id,string,omitempty"`
	Sender     string `json:"sender,omitempty"`
	Text       string `json:"text"`
	IsComplete bool   `json:"isComplete"`
	IsChunk    bool   `json:"isChunk,omitempty"`
	Error      string `json:"error,omitempty"`
}

// IsErrorEvent reports whether the event is the terminal error marker.
func (e StreamEvent) IsErrorEvent() bool {
	return e.Error != ""
}

// IsOpen reports whether the event is the stream-opening marker that
// establishes the message id the client must track.
func (e StreamEvent) IsOpen() bool {
	return !e.IsComplete && !e.IsChunk && e.Error == ""
}

func ToTurnPayloads(turns []model.Turn) []TurnPayload {
	payloads := make([]TurnPayload, len(turns))
	for i, t := range turns {
		payloads[i] = TurnPayload{ID: t.ID, Role: t.Role, Content: t.Content}
	}
	return payloads
}
