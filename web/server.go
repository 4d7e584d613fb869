// Package web is the HTTP surface: ingestion intake, the chat API and
// the document/cache management endpoints.
package web

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"documind/cache"
	"documind/chat"
	"documind/config"
	"documind/database"
	"documind/queue"
	"documind/vectorstore"
	"documind/web/handlers"
)

type Server struct {
	router *gin.Engine
	logger *zap.Logger
	config *config.Config
}

func NewServer(
	cfg *config.Config,
	chatSvc *chat.Service,
	q *queue.Queue,
	db *database.PostgresStore,
	vs *vectorstore.Store,
	responseCache *cache.Cache,
	logger *zap.Logger,
) *Server {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(func(c *gin.Context) {
		// Add logger to context
		c.Set("logger", logger)
		c.Next()
	})

	server := &Server{
		router: router,
		logger: logger,
		config: cfg,
	}

	extractHandler := handlers.NewExtractHandler(q, cfg.UploadDir, logger)
	chatHandler := handlers.NewChatHandler(chatSvc, logger)
	docsHandler := handlers.NewDocumentsHandler(db, vs, responseCache, logger)

	router.GET("/health", docsHandler.Health)

	api := router.Group("/api/v1")
	{
		api.POST("/extract", extractHandler.Extract)

		api.POST("/chat", chatHandler.Chat)
		api.POST("/chat/stream", chatHandler.ChatStream)
		api.GET("/chat/history/:session_id", chatHandler.History)
		api.DELETE("/chat/history/:session_id", chatHandler.ClearHistory)
		api.GET("/chat/sessions", chatHandler.ListSessions)

		api.GET("/documents", docsHandler.List)
		api.DELETE("/documents", docsHandler.Delete)
		api.GET("/sessions/:session_id", docsHandler.GetSession)
		api.DELETE("/sessions/:session_id", docsHandler.DeleteSession)

		api.GET("/cache/stats", docsHandler.CacheStats)
		api.DELETE("/cache", docsHandler.CacheClear)
	}

	return server
}

func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf(":%d", s.config.WebPort)
	s.logger.Info("Starting web server", zap.String("address", addr))

	srv := &http.Server{
		Addr:    addr,
		Handler: s.router,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error("Web server failed to start", zap.Error(err))
		}
	}()

	<-ctx.Done()

	s.logger.Info("Shutting down web server")
	return srv.Shutdown(context.Background())
}
