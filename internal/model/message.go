package model

// Sender constants for display messages.
const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

// Role constants for API-log turns. No system role: client-held logs never
// carry one (see Turn).
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one entry in the display log: the transcript shown to the user,
// including the transient placeholder for an assistant reply that is still
// streaming. IDs are snowflake ids, so they are strictly increasing within a
// session.
type Message struct {
	ID          int64
	Sender      string
	Text        string
	IsStreaming bool
	IsError     bool
}

// Turn is one entry in the API log: a role/content pair as replayed to the
// upstream model. The leading system turn is prepended server-side and never
// appears in a client-held log.
type Turn struct {
	ID      int64
	Role    string
	Content string
}
