package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"papertalk.app/relay/common/id"
	"papertalk.app/relay/common/llm"
	"papertalk.app/relay/common/logger"
	"papertalk.app/relay/internal/http/dto"
	"papertalk.app/relay/internal/model"
)

// systemPrompt is the fixed instruction turn prepended to every upstream
// call. It is never stored client-side.
const systemPrompt = `You are a helpful AI assistant that helps users understand academic papers. The user will provide the LaTeX source of a paper before their first question. When this happens, use the paper content to provide accurate and relevant answers. Format your responses using Markdown for better readability. Use headings, lists, code blocks, and other formatting as appropriate. For mathematical expressions, use LaTeX notation: inline math with single dollar signs ($...$) and block math with double dollar signs ($$...$$). Do not use other formatting such as brackets. Avoid using new commands that are defined in the paper. For example, if $\newcommand{\train}{\mathcal{D}}$, use $\mathcal{D}$ instead of $\train$.`

type ChatHandler struct {
	llm         llm.Client
	temperature float64
	maxTokens   int
}

func NewChatHandler(client llm.Client, temperature float64, maxTokens int) *ChatHandler {
	return &ChatHandler{
		llm:         client,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Chat relays one turn list to the upstream model. The handler is stateless:
// the caller supplies the full API log on every request.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req dto.ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Messages array is required"})
		return
	}

	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		Component: "relay.http.chat",
	})

	if req.Stream {
		h.streamChat(c, ctx, req)
		return
	}

	text, err := h.llm.Complete(ctx, h.buildRequest(req.Messages))
	if err != nil {
		slog.ErrorContext(ctx, "upstream completion failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get response from AI"})
		return
	}

	c.JSON(http.StatusOK, dto.ChatResponse{
		ID:     id.New(),
		Text:   text,
		Sender: model.SenderAssistant,
	})
}

// streamChat re-emits the upstream token stream as framed events. The framing
// contract: one open event, zero or more chunk events in arrival order, then
// exactly one terminal event (complete or error). A mid-stream upstream
// failure still gets a terminal error event so the client's parser is never
// left waiting.
func (h *ChatHandler) streamChat(c *gin.Context, ctx context.Context, req dto.ChatRequest) {
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}

	setSSEHeaders(c.Writer)

	messageID := id.New()
	ctx = logger.WithLogFields(ctx, logger.LogFields{StreamID: logger.Ptr(messageID)})

	writeEvent(c.Writer, dto.StreamEvent{
		ID:     messageID,
		Sender: model.SenderAssistant,
		Text:   "",
	})
	flusher.Flush()

	fullText, err := h.llm.Stream(ctx, h.buildRequest(req.Messages), func(delta string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		writeEvent(c.Writer, dto.StreamEvent{
			ID:      messageID,
			Sender:  model.SenderAssistant,
			Text:    delta,
			IsChunk: true,
		})
		flusher.Flush()
		return nil
	})
	if err != nil {
		if errors.Is(err, context.Canceled) {
			// Caller disconnected; nobody is reading the terminal event.
			slog.DebugContext(ctx, "stream abandoned by caller")
			return
		}
		slog.ErrorContext(ctx, "upstream stream failed", "error", err)
		writeEvent(c.Writer, dto.StreamEvent{
			Error:      "Failed to get streaming response from AI",
			IsComplete: true,
		})
		flusher.Flush()
		return
	}

	writeEvent(c.Writer, dto.StreamEvent{
		ID:         messageID,
		Sender:     model.SenderAssistant,
		Text:       fullText,
		IsComplete: true,
	})
	flusher.Flush()
}

func (h *ChatHandler) buildRequest(payloads []dto.TurnPayload) llm.Request {
	messages := make([]llm.Message, 0, len(payloads)+1)
	messages = append(messages, llm.Message{Role: llm.RoleSystem, Content: systemPrompt})

	for _, p := range payloads {
		role := llm.RoleAssistant
		if p.Role == model.RoleUser {
			role = llm.RoleUser
		}
		messages = append(messages, llm.Message{Role: role, Content: p.Content})
	}

	temp := h.temperature
	return llm.Request{
		Messages:    messages,
		MaxTokens:   h.maxTokens,
		Temperature: &temp,
	}
}

func setSSEHeaders(w http.ResponseWriter) {
	headers := w.Header()
	headers.Set("Content-Type", "text/event-stream")
	headers.Set("Cache-Control", "no-cache")
	headers.Set("Connection", "keep-alive")
	headers.Set("X-Accel-Buffering", "no")
}

func writeEvent(w http.ResponseWriter, event dto.StreamEvent) {
	payload, err := json.Marshal(event)
	if err != nil {
		payload = []byte(fmt.Sprintf(`{"error":%q,"isComplete":true}`, err.Error()))
	}
	// Newlines inside deltas are escaped by the JSON encoding, so the frame
	// delimiter below is the only blank line on the wire.
	_, _ = fmt.Fprintf(w, "data: %s\n\n", payload)
}
