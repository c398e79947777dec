package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/sashabaranov/go-openai"

	"Uncanny-Terrors/server/internal/config"
	"Uncanny-Terrors/server/internal/engine"
	"Uncanny-Terrors/server/internal/memory"
	"Uncanny-Terrors/server/internal/prompts"
	"Uncanny-Terrors/server/internal/storage"
	"Uncanny-Terrors/server/internal/web"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to config file")
	flag.Parse()

	// .env is optional; environment variables win either way.
	godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log := newLogger(cfg.Logging.Level)
	log.Info().Str("provider", cfg.AI.Provider).Str("storage", cfg.Storage.Driver).Msg("starting uncanny terrors server")

	store, err := storage.Open(cfg.Storage)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open save store")
	}
	defer store.Close()

	promptEngine := prompts.NewEngine()
	ctx := context.Background()

	var narrator engine.Narrator
	var embedClient *openai.Client
	switch cfg.AI.Provider {
	case "openai":
		n := engine.NewOpenAINarrator(cfg.AI.OpenAI, promptEngine, log)
		narrator = n
		embedClient = n.Client()
	case "gemini":
		n, err := engine.NewGeminiNarrator(ctx, cfg.AI.Gemini, promptEngine, log)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create gemini narrator")
		}
		defer n.Close()
		narrator = n
		// recall still embeds through openai when a key is configured
		if cfg.AI.OpenAI.APIKey != "" {
			embedClient = openai.NewClient(cfg.AI.OpenAI.APIKey)
		}
	default:
		log.Fatal().Str("provider", cfg.AI.Provider).Msg("unknown ai provider")
	}

	var sceneMemory engine.SceneMemory
	if cfg.Memory.Enabled {
		if embedClient == nil {
			log.Warn().Msg("memory enabled but no embedding client available, recall disabled")
		} else {
			embedder := memory.NewOpenAIEmbedder(embedClient, cfg.AI.OpenAI.EmbedModel)
			memStore, err := memory.New(ctx, cfg.Memory, embedder, log)
			if err != nil {
				log.Warn().Err(err).Msg("failed to connect scene memory, recall disabled")
			} else {
				defer memStore.Close()
				sceneMemory = memStore
			}
		}
	}

	gameEngine := engine.NewGameEngine(narrator, sceneMemory, store, promptEngine, cfg.Memory.RecallLimit, log)

	hub := web.NewEventHub(log)
	go hub.Run()

	handler := web.NewHandler(gameEngine, hub, log)
	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      web.NewRouter(handler),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		log.Info().Str("addr", server.Addr).Msg("listening")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("forced shutdown")
	}
	log.Info().Msg("server stopped")
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(os.Stdout).Level(lvl).With().Timestamp().Logger()
}
