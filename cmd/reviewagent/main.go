package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/reviewagent/reviewagent/internal/agent"
	"github.com/reviewagent/reviewagent/internal/chat"
	"github.com/reviewagent/reviewagent/internal/config"
	"github.com/reviewagent/reviewagent/internal/llm"
	"github.com/reviewagent/reviewagent/internal/logger"
	"github.com/reviewagent/reviewagent/internal/memory"
	"github.com/reviewagent/reviewagent/internal/server"
	"github.com/reviewagent/reviewagent/internal/session"
	"github.com/reviewagent/reviewagent/internal/store"
	"github.com/reviewagent/reviewagent/pkg/reviews"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger.L.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}
	logger.SetLevel(cfg.LogLevel)

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		logger.L.Error("failed to open conversation store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	llmClient := llm.NewClient(cfg.LLM)

	aggregator := reviews.NewAggregator(cfg.Providers.Timeout,
		reviews.NewGooglePlacesClient(cfg.Providers.GooglePlaces, cfg.Providers.ReviewLimit),
		reviews.NewTripAdvisorClient(cfg.Providers.TripAdvisor, cfg.Providers.ReviewLimit),
	)

	loop := agent.New(llmClient, aggregator, agent.Config{
		MaxSteps:     cfg.Agent.MaxSteps,
		ModelRetries: cfg.Agent.ModelRetries,
	})

	sessions := session.NewManager(st, cfg.LLM)
	assembler := memory.Assembler{Window: cfg.Agent.HistoryWindow}
	chatSvc := chat.NewService(sessions, st, assembler, loop, cfg.Agent.TurnTimeout)

	srv := server.New(sessions, chatSvc, st)

	go func() {
		addr := fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port)
		if err := srv.Start(addr); err != nil {
			logger.L.Error("server stopped", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.L.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.L.Error("shutdown failed", "error", err)
	}
}
