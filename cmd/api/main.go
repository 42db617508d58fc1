package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/hesabyar/hesabyar/internal/config"
	"github.com/hesabyar/hesabyar/internal/engine"
	"github.com/hesabyar/hesabyar/internal/handler"
	"github.com/hesabyar/hesabyar/internal/ingest"
	"github.com/hesabyar/hesabyar/internal/service/ai"
	"github.com/hesabyar/hesabyar/internal/store"
	"github.com/hesabyar/hesabyar/internal/tools"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
		log.Println("continuing with system environment variables only")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	// Session/data store: Redis with transparent in-memory fallback.
	st := store.New(ctx, cfg.Redis)

	// AI service is optional; everything degrades without it.
	var aiService *ai.Service
	if cfg.AI.Enabled() {
		aiService, err = ai.NewService(ctx, cfg.AI)
		if err != nil {
			log.Printf("warning: failed to initialize AI service: %v", err)
			log.Println("continuing without AI functionality - tool results will be returned verbatim")
		} else {
			log.Println("AI service initialized successfully")
		}
	} else {
		log.Println("model credentials not configured, skipping AI initialization")
	}

	// Dynamic tool registry; the static tools work without it.
	var registry *tools.Registry
	registry, err = tools.OpenRegistry(cfg.Registry.Path)
	if err != nil {
		log.Printf("warning: failed to open tool registry at %s: %v", cfg.Registry.Path, err)
		log.Println("continuing with static tools only")
		registry = nil
	} else {
		defer registry.Close()
	}

	var synth tools.Synthesizer
	if aiService.Enabled() {
		synth = aiService
	}
	dispatcher := tools.NewDispatcher(registry, synth)

	eng := engine.New(st, dispatcher, aiService)
	ingestSvc := ingest.NewService(columnMapper(aiService))

	router := handler.NewRouter(eng, ingestSvc, st)

	startServer(ctx, cfg.Server, router)
}

// columnMapper avoids handing a typed nil interface to the ingest service.
func columnMapper(aiService *ai.Service) ingest.ColumnMapper {
	if aiService.Enabled() {
		return aiService
	}
	return nil
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Printf("Hesabyar backend listening on %s", serverCfg.Addr)
	if err := runServer(ctx, srv); err != nil {
		log.Fatalf("server error: %v", err)
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
