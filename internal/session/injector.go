package session

import "fmt"

const (
	documentBlockBegin = "### PAPER CONTENT (LATEX SOURCE):"
	documentBlockEnd   = "### END OF PAPER CONTENT ###"
)

// Injector decides, once per session, whether the first outgoing API turn is
// prefixed with the paper's source. A session reset re-arms it.
type Injector struct {
	injected bool
}

// Content returns the API-turn content for a new user turn: the composed
// document block on the first turn of a session with context available, the
// raw user text otherwise. The display log always carries the raw text.
func (i *Injector) Content(apiLogLen int, documentContext, userText string) string {
	if apiLogLen == 0 && documentContext != "" && !i.injected {
		i.injected = true
		return composeDocumentBlock(documentContext, userText)
	}
	return userText
}

// Injected reports whether the document block has been sent this session.
func (i *Injector) Injected() bool {
	return i.injected
}

// Reset re-arms the injector for a fresh session.
func (i *Injector) Reset() {
	i.injected = false
}

func composeDocumentBlock(documentContext, userText string) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s\n\nPlease use the above paper content to answer the following question:\n\n%s",
		documentBlockBegin, documentContext, documentBlockEnd, userText)
}
