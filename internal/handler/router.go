package handler

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/complyq/complyq/internal/middleware"
)

type RouterDeps struct {
	Documents     *DocumentHandler
	Ask           *AskHandler
	Index         *IndexHandler
	AskRateWindow time.Duration
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/documents", deps.Documents.Upload)
	api.GET("/documents", deps.Documents.List)
	api.GET("/documents/:id", deps.Documents.Get)
	api.DELETE("/documents/:id", deps.Documents.Delete)

	api.POST("/ask", middleware.RateLimit(deps.AskRateWindow), deps.Ask.Ask)

	api.POST("/index/rebuild", deps.Index.Rebuild)
	api.GET("/index/status", deps.Index.Status)
}
