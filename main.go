package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/solace-ai/solace/pkg/config"
	"github.com/solace-ai/solace/pkg/db"
	"github.com/solace-ai/solace/pkg/event"
	"github.com/solace-ai/solace/pkg/models"
	"github.com/solace-ai/solace/pkg/service"
	"github.com/solace-ai/solace/pkg/utils"
)

func main() {
	// Initialize logging system
	utils.InitLogger()
	logger := utils.GetLogger()

	cfg, configFile, err := config.Load()
	if err != nil {
		logger.Warn("Failed to load config; falling back to defaults", "error", err)
		cfg = &config.AppConfig{}
	} else {
		logger.Info("Loaded config", "file", configFile)
	}
	if _, err := config.EnsureDefaultConfig(); err != nil {
		logger.Warn("Failed to write default config", "error", err)
	}
	if _, err := models.EnsureDefaultModels(); err != nil {
		logger.Warn("Failed to write default models", "error", err)
	}

	storagePath := cfg.StoragePath()
	if storagePath == "" {
		storagePath, err = config.DefaultStoragePath()
		if err != nil {
			logger.Error("Failed to resolve storage path", "error", err)
			os.Exit(1)
		}
	}
	database, err := db.Open(storagePath)
	if err != nil {
		logger.Error("Failed to open database", "path", storagePath, "error", err)
		os.Exit(1)
	}

	emitter := event.NewEmitter()

	store, err := service.NewConversationService(database, emitter)
	if err != nil {
		logger.Error("Failed to load conversation state", "error", err)
		os.Exit(1)
	}

	modelService := service.NewModelService(cfg)
	memoryService := service.NewMemoryService(store, modelService)
	extractor := service.NewMemoryExtractionService(modelService, memoryService)
	registry := service.NewToolRegistry(modelService)
	searchService := service.NewSearchService(cfg)
	agentRouter := service.NewAgentRouter(modelService, searchService.Enabled())
	prompts := service.NewPromptBuilder(cfg)

	chatService := service.NewChatService(cfg, store, modelService, registry, agentRouter, memoryService, extractor, prompts, emitter)
	chatService.SetSearchService(searchService)

	server := NewServer(cfg, chatService, store, memoryService, modelService, emitter)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := server.Start(ctx); err != nil {
		logger.Error("Server stopped with error", "error", err)
		os.Exit(1)
	}
	logger.Info("Solace shut down")
}
