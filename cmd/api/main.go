package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"server/internal/adapter/repo"
	"server/internal/generation"
	"server/internal/http/handlers"
	"server/internal/http/httpapi"
	"server/internal/infra"
	"server/internal/infra/geoip"
	"server/internal/provider/replicate"
	"server/internal/storage"
)

func main() {
	// .env is optional
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv)

	ctx := context.Background()

	if err := infra.RunMigrations(ctx, cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()

	store, err := newObjectStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize object storage")
	}

	geo, err := geoip.NewResolver(cfg.GeoIPDBPath)
	if err != nil {
		logger.Warn().Err(err).Msg("geoip resolver unavailable, country tagging disabled")
	}

	jobs := repo.NewJobRepository(dbpool)
	renders := repo.NewRenderRepository(dbpool)
	failures := repo.NewFailureRepository(dbpool)
	ledger := generation.NewLedger(repo.NewUsageRepository(dbpool))

	providerClient := replicate.NewClient(replicate.Options{
		BaseURL:  cfg.ProviderBaseURL,
		APIToken: cfg.ProviderAPIToken,
		Version:  cfg.ProviderModelVersion,
		Timeout:  cfg.ProviderSubmitTimeout,
	})
	materializer := generation.NewMaterializer(renders, store, nil, logger)
	service := generation.NewService(generation.Options{
		Jobs:          jobs,
		Failures:      failures,
		Ledger:        ledger,
		Plans:         generation.StaticPlanSource{Limit: cfg.MonthlyGenerationLimit},
		Provider:      providerClient,
		Materializer:  materializer,
		Store:         store,
		WebhookURL:    cfg.WebhookCallbackURL,
		SubmitTimeout: cfg.ProviderSubmitTimeout,
		Logger:        logger,
	})

	app := &handlers.App{
		Config:      cfg,
		Logger:      logger,
		Generations: service,
		Ledger:      ledger,
		Renders:     renders,
		Store:       store,
		Geo:         geo,
	}

	router := httpapi.NewRouter(app)
	server := infra.NewHTTPServer(cfg, router)

	go func() {
		logger.Info().Msgf("API listening on :%s", cfg.Port)
		if err := server.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("http server failed")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTPIdleTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("failed to shutdown server")
	}
	logger.Info().Msg("server stopped")
}

func newObjectStore(ctx context.Context, cfg *infra.Config) (storage.ObjectStore, error) {
	if cfg.StorageBackend == "s3" {
		return storage.NewS3Store(ctx, storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			EndpointURL:     cfg.S3EndpointURL,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretAccessKey,
			PublicBaseURL:   cfg.S3PublicBaseURL,
		})
	}
	return storage.NewFileStore(cfg.StoragePath, cfg.StorageBaseURL)
}
