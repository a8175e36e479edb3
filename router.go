package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/event"
	"github.com/solace-ai/solace/pkg/handler"
	"github.com/solace-ai/solace/pkg/models"
	"github.com/solace-ai/solace/pkg/service"
	"github.com/solace-ai/solace/pkg/utils"
)

type Server struct {
	ginEngine *gin.Engine
	logger    *slog.Logger
	host      string
	port      int
}

// NewServer assembles the HTTP surface: REST routes for chat, conversations,
// tools, memories and models, plus the websocket event bridge.
func NewServer(
	cfg *config.AppConfig,
	chatService *service.ChatService,
	store *service.ConversationService,
	memoryService *service.MemoryService,
	modelService *service.ModelService,
	emitter *event.Emitter,
) *Server {
	ginEngine := gin.New()
	ginEngine.Use(gin.Recovery())

	// CORS middleware: the backend binds locally, so only localhost dev
	// origins are allowed. Requests without an Origin header pass through.
	ginEngine.Use(func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		if origin != "" {
			allowed := strings.HasPrefix(origin, "http://localhost") ||
				strings.HasPrefix(origin, "http://127.0.0.1") ||
				strings.HasPrefix(origin, "https://localhost") ||
				strings.HasPrefix(origin, "https://127.0.0.1")

			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
				c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
			} else {
				c.AbortWithStatus(http.StatusForbidden)
				return
			}
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	})

	server := &Server{
		ginEngine: ginEngine,
		logger:    utils.GetLogger(),
		host:      cfg.Host(),
		port:      cfg.Port(),
	}

	server.setupRoutes(chatService, store, memoryService, modelService, emitter)

	return server
}

// Start listens on the configured address and serves until ctx is cancelled,
// then shuts down gracefully. SOLACE_PORT overrides the configured port.
func (s *Server) Start(ctx context.Context) error {
	port := s.port
	if v := os.Getenv("SOLACE_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil && p > 0 && p <= 65535 {
			port = p
		} else {
			s.logger.Warn("Invalid SOLACE_PORT value, falling back to config", "value", v)
		}
	}

	addr := fmt.Sprintf("%s:%d", s.host, port)
	srv := &http.Server{Addr: addr, Handler: s.ginEngine}

	// Listen first so a busy port fails fast instead of inside Serve.
	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return err
	}
	if tcpAddr, ok := ln.Addr().(*net.TCPAddr); ok {
		s.port = tcpAddr.Port
	} else {
		s.port = port
	}

	s.logger.Info("Solace API listening", "addr", addr)

	errChan := make(chan error, 1)
	go func() {
		errChan <- srv.Serve(ln)
	}()

	select {
	case err := <-errChan:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		if err := <-errChan; err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) setupRoutes(
	chatService *service.ChatService,
	store *service.ConversationService,
	memoryService *service.MemoryService,
	modelService *service.ModelService,
	emitter *event.Emitter,
) {
	// API group
	// /api
	apiGroup := s.ginEngine.Group("/api")

	// Runtime info so clients can discover the correct base URLs.
	apiGroup.GET("/runtime", func(c *gin.Context) {
		// The backend binds locally; advertise the loopback address.
		host := "127.0.0.1"
		port := s.port
		if port == 0 {
			port = config.DefaultPort
		}

		c.JSON(http.StatusOK, models.RuntimeInfo{
			HTTPBaseURL: fmt.Sprintf("http://%s:%d", host, port),
			WSBaseURL:   fmt.Sprintf("ws://%s:%d", host, port),
			Port:        port,
		})
	})

	handler.NewChatHandler(chatService, store).RegisterRoutes(apiGroup)
	handler.NewConversationHandler(store).RegisterRoutes(apiGroup)
	handler.NewToolHandler(chatService, store).RegisterRoutes(apiGroup)
	handler.NewMemoryHandler(store, memoryService).RegisterRoutes(apiGroup)

	// Model management API routes
	// /api/models
	apiGroup.GET("/models", modelService.GetModelList)
	apiGroup.POST("/models", modelService.AddModel)
	apiGroup.PUT("/models/:id", modelService.EditModel)
	apiGroup.DELETE("/models/:id", modelService.DeleteModel)
	apiGroup.POST("/models/test", modelService.TestModelConnection)
	apiGroup.GET("/models/provider-keys", modelService.GetProviderApiKeys)
	apiGroup.GET("/models/presets", handler.GetModelPresets)

	// Event stream for UI clients
	// /ws
	wsHandler := event.NewWSHandler(emitter)
	s.ginEngine.GET("/ws", wsHandler.Handle)
}
