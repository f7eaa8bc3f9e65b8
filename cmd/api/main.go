package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/omnix-labs/omnix-voice/internal/config"
	"github.com/omnix-labs/omnix-voice/internal/handler"
	"github.com/omnix-labs/omnix-voice/internal/service/ai"
	"github.com/omnix-labs/omnix-voice/internal/service/live"
	"github.com/omnix-labs/omnix-voice/internal/service/speech"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger := zerolog.New(os.Stderr).With().Timestamp().Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn().Err(err).Msg("failed to load .env file, continuing with system environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to load configuration")
	}

	var backend ai.Backend
	if cfg.AI.Enabled() {
		aiService, err := ai.NewService(ctx, cfg.AI, logger)
		if err != nil {
			logger.Fatal().Err(err).Msg("failed to initialize AI service")
		}
		backend = aiService
		logger.Info().Msg("AI service initialized")
	} else {
		backend = ai.Unavailable{}
		logger.Warn().Msg("model credentials not configured, turns will answer with a fallback message")
	}

	var transcriber speech.Transcriber
	var synthesizer speech.Synthesizer
	if cfg.Speech.Enabled {
		speechService := speech.NewService(cfg.Speech, logger)
		transcriber = speechService
		synthesizer = speechService
		logger.Info().Msg("speech service initialized")
	} else {
		logger.Warn().Msg("speech credentials not configured, audio submission disabled")
	}

	manager := live.NewManager(cfg.Live, backend, transcriber, synthesizer, logger)
	defer manager.Close()

	router := handler.NewRouter(manager, cfg.Live.HeartbeatInterval, logger)

	startServer(ctx, cfg.Server, router, logger)
}

func startServer(ctx context.Context, serverCfg config.ServerConfig, router http.Handler, logger zerolog.Logger) {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	logger.Info().Str("addr", serverCfg.Addr).Msg("voice backend listening")
	if err := runServer(ctx, srv); err != nil {
		logger.Fatal().Err(err).Msg("server error")
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
