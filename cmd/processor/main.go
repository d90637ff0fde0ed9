package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/russellporter/openskidata-processor/internal/config"
	"github.com/russellporter/openskidata-processor/internal/domain"
	"github.com/russellporter/openskidata-processor/internal/domain/repository"
	"github.com/russellporter/openskidata-processor/internal/infrastructure/geocoder"
	"github.com/russellporter/openskidata-processor/internal/infrastructure/geojsonio"
	"github.com/russellporter/openskidata-processor/internal/infrastructure/snowcover"
	"github.com/russellporter/openskidata-processor/internal/pkg/logger"
	"github.com/russellporter/openskidata-processor/internal/pkg/uuidgen"
	"github.com/russellporter/openskidata-processor/internal/repository/cache"
	"github.com/russellporter/openskidata-processor/internal/repository/postgres"
	"github.com/russellporter/openskidata-processor/internal/usecase"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load config: %v", err))
	}

	log, err := logger.New(cfg.Log.Level)
	if err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer log.Sync()

	log.Info("Starting openskidata clustering processor")

	db, err := postgres.New(&cfg.Database, log)
	if err != nil {
		log.Fatal("Failed to connect to PostGIS", zap.Error(err))
	}
	defer func() {
		if err := db.Close(); err != nil {
			log.Error("Failed to close PostGIS connection", zap.Error(err))
		}
	}()

	healthCtx, healthCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.Health(healthCtx); err != nil {
		log.Fatal("PostGIS health check failed", zap.Error(err))
	}
	healthCancel()
	log.Info("PostGIS connected and healthy")

	store := postgres.NewObjectStore(db, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cacheRepo *cache.Repository
	if cfg.Redis.Host != "" {
		redisConn, err := cache.NewRedis(&cfg.Redis, log)
		if err != nil {
			log.Fatal("Failed to connect to cache Redis", zap.Error(err))
		}
		defer func() {
			if err := redisConn.Close(); err != nil {
				log.Error("Failed to close cache Redis connection", zap.Error(err))
			}
		}()
		cacheRepo = cache.NewRepository(redisConn)
	}

	geo := buildGeocoder(cfg, log, cacheRepo)
	snow := buildSnowCover(cfg, log, cacheRepo)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("Received shutdown signal")
		cancel()
	}()

	counts, summary, err := runCluster(ctx, cfg, log, store, geo, snow)
	if err != nil {
		log.Fatal("Clustering run failed", zap.Error(err))
	}

	log.Info("Clustering run complete",
		zap.Int("skiAreasLoaded", counts.SkiAreasLoaded),
		zap.Int("liftsLoaded", counts.LiftsLoaded),
		zap.Int("runsLoaded", counts.RunsLoaded),
		zap.Int("skiAreasRemoved", summary.SkiAreasRemoved),
		zap.Int("skiAreasGenerated", summary.SkiAreasGenerated),
		zap.Int("skiAreasMerged", summary.SkiAreasMerged),
	)
}

// buildGeocoder wires the HTTP geocoder client, wrapped in the Redis cache
// decorator when caching is configured. A blank GEOCODER_BASE_URL disables
// geocoding entirely, since the Augmenter treats a nil Geocoder as "skip
// this step" rather than an error.
func buildGeocoder(cfg *config.Config, log *zap.Logger, cacheRepo *cache.Repository) repository.Geocoder {
	if cfg.Geocoder.BaseURL == "" {
		return nil
	}
	client := geocoder.New(&cfg.Geocoder, log)
	if cacheRepo == nil {
		return client
	}
	return cache.NewCachedGeocoder(client, cacheRepo, cfg.Cache.GeocoderCacheTTL, log)
}

// buildSnowCover mirrors buildGeocoder for the snow-cover archive client.
func buildSnowCover(cfg *config.Config, log *zap.Logger, cacheRepo *cache.Repository) repository.SnowCoverArchive {
	if cfg.SnowCover.BaseURL == "" {
		return nil
	}
	client := snowcover.New(&cfg.SnowCover, log)
	if cacheRepo == nil {
		return client
	}
	return cache.NewCachedSnowCoverArchive(client, cacheRepo, cfg.Cache.SnowCoverCacheTTL, log)
}

func runCluster(ctx context.Context, cfg *config.Config, log *zap.Logger, store repository.ObjectStore, geo repository.Geocoder, snow repository.SnowCoverArchive) (*usecase.LoadCounts, *usecase.Summary, error) {
	inputs, closeInputs, err := openInputs(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer closeInputs()

	outputs, closeOutputs, err := createOutputs(cfg)
	if err != nil {
		return nil, nil, err
	}
	defer closeOutputs()

	return usecase.ClusterSkiAreas(ctx, store, uuidgen.New(), geo, snow, inputs, outputs, cfg.Pipeline, log)
}

func openInputs(cfg *config.Config) ([]usecase.InputFeatures, func(), error) {
	var closers []func() error

	open := func(path string) (usecase.FeatureIterator, error) {
		if path == "" {
			return nil, nil
		}
		it, closeFn, err := geojsonio.OpenNDJSON(path)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closeFn)
		return it, nil
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	osmSkiAreas, err := open(cfg.IO.OpenStreetMapSkiAreasPath)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	osmLifts, err := open(cfg.IO.OpenStreetMapLiftsPath)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	osmRuns, err := open(cfg.IO.OpenStreetMapRunsPath)
	if err != nil {
		closeAll()
		return nil, nil, err
	}
	skimapSkiAreas, err := open(cfg.IO.SkimapOrgSkiAreasPath)
	if err != nil {
		closeAll()
		return nil, nil, err
	}

	inputs := []usecase.InputFeatures{
		{Source: domain.SourceOpenStreetMap, SkiAreas: osmSkiAreas, Lifts: osmLifts, Runs: osmRuns},
		{Source: domain.SourceSkimap, SkiAreas: skimapSkiAreas},
	}

	return inputs, closeAll, nil
}

func createOutputs(cfg *config.Config) (usecase.OutputWriters, func(), error) {
	var closers []func() error

	create := func(path string) (usecase.FeatureWriter, error) {
		if path == "" {
			return nil, nil
		}
		w, closeFn, err := geojsonio.CreateNDJSONWriter(path)
		if err != nil {
			return nil, err
		}
		closers = append(closers, closeFn)
		return w, nil
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	skiAreas, err := create(cfg.IO.OutputSkiAreasPath)
	if err != nil {
		closeAll()
		return usecase.OutputWriters{}, nil, err
	}
	lifts, err := create(cfg.IO.OutputLiftsPath)
	if err != nil {
		closeAll()
		return usecase.OutputWriters{}, nil, err
	}
	runs, err := create(cfg.IO.OutputRunsPath)
	if err != nil {
		closeAll()
		return usecase.OutputWriters{}, nil, err
	}

	return usecase.OutputWriters{SkiAreas: skiAreas, Lifts: lifts, Runs: runs}, closeAll, nil
}
