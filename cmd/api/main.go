package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"batchedit/internal/batch"
	"batchedit/internal/http/handlers"
	httpapi "batchedit/internal/http/httpapi"
	"batchedit/internal/infra"
	"batchedit/internal/preview"
	"batchedit/internal/providers/genai"
	imageprovider "batchedit/internal/providers/image"
	"batchedit/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	// Runs started over HTTP are bound to this context, not to the request
	// that triggered them.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	storagePath := cfg.StoragePath
	if !filepath.IsAbs(storagePath) {
		if abs, err := filepath.Abs(storagePath); err == nil {
			storagePath = abs
		}
	}
	fileStore, err := storage.NewFileStore(storagePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure storage")
	}

	geminiClient, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		// No timeout on edit calls: a stuck call stalls the batch until it
		// resolves, which is the accepted trade-off for this service.
		HTTPClient: &http.Client{},
		Logger:     &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("api: failed to configure gemini client")
	}
	editor := imageprovider.NewGeminiEditor(geminiClient)

	previewer := preview.NewRenderer(fileStore, cfg.PreviewMaxDim, logger)
	store := batch.NewStore(previewer.Release)
	service := batch.NewService(ctx, store, editor.Edit, previewer, logger)

	app := handlers.NewApp(service, fileStore, logger, int64(cfg.MaxUploadMB)<<20)
	router := httpapi.NewRouter(app, cfg, logger)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Str("model", geminiClient.Model()).Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	<-ctx.Done()

	// Let an in-flight run observe the shutdown before the listener dies.
	service.RequestStop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}
