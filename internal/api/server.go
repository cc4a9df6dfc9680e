// Package api exposes the service over HTTP with gin.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"ocr-rag/internal/config"
	"ocr-rag/internal/service"
)

const maxUploadSize = 64 << 20

func NewRouter(cfg *config.Config, svc *service.Service) *gin.Engine {
	if cfg.Server.GinMode != "" {
		gin.SetMode(cfg.Server.GinMode)
	}
	router := gin.New()
	router.MaxMultipartMemory = maxUploadSize
	router.Use(requestLogger(), gin.Recovery())

	h := NewHandler(svc)
	router.GET("/", h.Root)
	router.GET("/health", h.Health)

	router.POST("/upload_pdfs/", h.UploadPDFs)
	router.POST("/upload_pdfs_base64/", h.UploadPDFsBase64)
	router.POST("/chat/", h.Chat)
	router.POST("/reset/", h.Reset)
	router.GET("/history/", h.History)
	router.GET("/performance_metrics/", h.PerformanceMetrics)
	router.GET("/performance_metrics/save/", h.SavePerformanceMetrics)

	sessions := router.Group("/sessions/:session_id")
	sessions.GET("/images/:name", h.Image)
	sessions.GET("/ocr_search", h.OCRSearch)

	return router
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		event := log.Info()
		if c.Writer.Status() >= 500 {
			event = log.Error()
		}
		event.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("HTTP request")
	}
}
