package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"call-insights-go/internal/audio"
	"call-insights-go/internal/config"
	"call-insights-go/internal/extractor"
	"call-insights-go/internal/logger"
	"call-insights-go/internal/metrics"
	"call-insights-go/internal/processor"
	"call-insights-go/internal/rubric"
	"call-insights-go/internal/server"
	"call-insights-go/internal/store"
	"call-insights-go/internal/transcription"
)

func main() {
	boot := logger.FromEnv()

	cfg, err := config.Load()
	if err != nil {
		boot.WithError(err).Fatal("failed to load config")
	}

	log := logger.New(logger.Options{Environment: cfg.Environment, Level: cfg.LogLevel})
	log.WithField("service", "call-insights-go").Info("starting service")
	if cfg.Environment != "local" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	catalog, err := loadRubrics(ctx, cfg, log)
	if err != nil {
		log.WithError(err).Fatal("failed to load rubrics")
	}

	st, err := store.Open(ctx, cfg.MongoURI, store.Options{
		Database:         cfg.MongoDatabase,
		CallsCollection:  cfg.MongoCollection,
		AgentsCollection: cfg.AgentsCollection,
		ConnectTimeout:   cfg.StoreConnectLimit,
	}, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open store")
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := st.Close(closeCtx); err != nil {
			log.WithError(err).Warn("store close failed")
		}
	}()

	norm, err := audio.NewNormalizer(cfg.FFmpegBin, cfg.FFmpegArgs)
	if err != nil {
		log.WithError(err).Fatal("invalid FFMPEG_ARGS")
	}

	providers := transcription.NewRegistry(
		transcription.NewOpenAI(transcription.Options{APIKey: cfg.OpenAIAPIKey, BaseURL: cfg.OpenAIBaseURL, Timeout: cfg.ProviderTimeout}),
		transcription.NewGroq(transcription.Options{APIKey: cfg.GroqAPIKey, BaseURL: cfg.GroqBaseURL, Timeout: cfg.ProviderTimeout}),
		transcription.NewDeepgram(transcription.Options{APIKey: cfg.DeepgramAPIKey, BaseURL: cfg.DeepgramBaseURL, Timeout: cfg.ProviderTimeout}),
	)
	analyzer := extractor.NewAnalyzer(extractor.Options{
		APIKey:  cfg.OpenAIAPIKey,
		BaseURL: cfg.OpenAIBaseURL,
		Model:   cfg.AnalysisModel,
		Timeout: cfg.ProviderTimeout,
	}, catalog, log)

	m := metrics.New()
	proc := processor.New(processor.Deps{
		Providers:  providers,
		Rubrics:    catalog,
		Normalizer: norm,
		Analyzer:   analyzer,
		Store:      st,
		Metrics:    m,
		Log:        log,
		TempDir:    cfg.TempDir,
	})
	api := server.New(server.Deps{
		Pipeline:       proc,
		Store:          st,
		Rubrics:        catalog,
		Metrics:        m,
		Log:            log,
		MaxUploadBytes: cfg.MaxUploadBytes(),
	})

	addr := fmt.Sprintf(":%s", cfg.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.Handler(),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: cfg.ProviderTimeout*2 + 30*time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("addr", addr).
			WithField("providers", providers.Names()).
			WithField("rubrics", catalog.Keys()).
			Info("listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server terminated")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("graceful shutdown failed")
	}
}

// loadRubrics uses the embedded rubrics unless RUBRIC_DIR points at a
// directory, which is then watched for edits.
func loadRubrics(ctx context.Context, cfg *config.Config, log *logger.Logger) (*rubric.Catalog, error) {
	if cfg.RubricDir == "" {
		return rubric.Default()
	}
	catalog, err := rubric.LoadDir(cfg.RubricDir)
	if err != nil {
		return nil, err
	}
	if err := catalog.Watch(ctx, cfg.RubricDir, log.Component("rubric")); err != nil {
		return nil, err
	}
	log.WithField("dir", cfg.RubricDir).Info("watching rubric directory")
	return catalog, nil
}
