package router

import (
	"github.com/gin-gonic/gin"

	"papertalk.app/relay/common/llm"
	"papertalk.app/relay/internal/http/handler"
	"papertalk.app/relay/internal/source"
)

type RouterConfig struct {
	Temperature float64
	MaxTokens   int
}

func SetupRoutes(router *gin.Engine, llmClient llm.Client, fetcher source.Fetcher, cfg RouterConfig) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	api := router.Group("/api")
	{
		chatHandler := handler.NewChatHandler(llmClient, cfg.Temperature, cfg.MaxTokens)
		api.POST("/chat", chatHandler.Chat)

		sourceHandler := handler.NewSourceHandler(fetcher)
		api.GET("/source", sourceHandler.Get)
	}
}
