package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"papertalk.app/relay/common/logger"
	"papertalk.app/relay/internal/source"
)

type SourceHandler struct {
	fetcher source.Fetcher
}

func NewSourceHandler(fetcher source.Fetcher) *SourceHandler {
	return &SourceHandler{fetcher: fetcher}
}

// Get returns the raw LaTeX source for a paper id as text. Clients treat any
// failure as "no context available", so the status codes here only matter for
// operators reading logs.
func (h *SourceHandler) Get(c *gin.Context) {
	arxivID := c.Query("arxivId")
	if arxivID == "" {
		c.String(http.StatusBadRequest, "ArXiv ID is required")
		return
	}

	ctx := logger.WithLogFields(c.Request.Context(), logger.LogFields{
		ArxivID:   logger.Ptr(arxivID),
		Component: "relay.http.source",
	})

	text, err := h.fetcher.Fetch(ctx, arxivID)
	if err != nil {
		slog.ErrorContext(ctx, "source fetch failed", "error", err)
		c.String(http.StatusBadGateway, "Error fetching LaTeX source")
		return
	}

	c.String(http.StatusOK, text)
}
