package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"pokequant/priceworker/config"
	"pokequant/priceworker/helpers"
	"pokequant/priceworker/internal/collector"
	"pokequant/priceworker/logger"
	"pokequant/priceworker/services/cache"
	"pokequant/priceworker/services/publisher"
	"pokequant/priceworker/services/store"
	"pokequant/priceworker/services/worker"

	"github.com/joho/godotenv"
	"golang.org/x/time/rate"
)

func main() {
	// Load environment variables
	godotenv.Load()

	// Initialize logger first
	logger.Init()
	log := logger.Default

	// Load and validate configuration
	cfg := config.LoadConfig()
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	targets, err := config.LoadTargets(cfg.TargetsFile)
	if err != nil {
		log.Fatal().Err(err).Str("file", cfg.TargetsFile).Msg("Failed to load targets")
	}

	log.Info().
		Str("environment", cfg.Environment).
		Dur("collect_interval", cfg.CollectInterval).
		Int("targets", len(targets)).
		Msg("Starting application")

	// Set up context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize services
	services, err := initializeServices(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize services")
	}
	defer services.Cleanup()

	// Create collectors and jobs
	collectors := collector.CreateCollectors(cfg, services.Cache, newThrottle(cfg))
	jobs, err := collector.BuildJobs(targets, collectors)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid target")
	}
	if len(jobs) == 0 {
		log.Fatal().Msg("No jobs were created")
	}

	opts := []worker.Option{worker.WithVerbose(!cfg.IsProduction())}
	if services.Store != nil {
		opts = append(opts, worker.WithStore(services.Store))
	}

	// Create and start worker
	w := worker.NewWorker(
		ctx,
		jobs,
		workerCollectors(collectors),
		services.Publisher,
		helpers.NewLogger(cfg.ErrorLogFile),
		cfg.CollectInterval,
		cfg.Concurrency,
		opts...,
	)

	// Start worker in a goroutine
	workerDone := make(chan error, 1)
	go func() {
		log.Info().Int("jobs", len(jobs)).Msg("Starting price worker")
		workerDone <- w.Start()
	}()

	// Wait for shutdown signal or worker exit
	select {
	case sig := <-sigChan:
		log.Info().
			Str("signal", sig.String()).
			Msg("Received shutdown signal")
		cancel()
		<-workerDone
	case err := <-workerDone:
		if err != nil {
			log.Error().Err(err).Msg("Worker exited with error")
		} else {
			log.Info().Msg("Worker exited normally")
		}
	}

	// Graceful shutdown
	log.Info().Msg("Shutting down gracefully...")
}

// Services holds all the initialized services
type Services struct {
	Cache     cache.CacheService
	Publisher publisher.Publisher
	Store     store.SeriesStore
}

// Cleanup cleans up all services
func (s *Services) Cleanup() {
	if s.Publisher != nil {
		s.Publisher.Close()
	}
	if s.Store != nil {
		s.Store.Close()
	}
}

// initializeServices initializes all required services
func initializeServices(ctx context.Context, cfg *config.Config) (*Services, error) {
	services := &Services{}

	// Block markers fall back to process memory when memcache is unavailable
	services.Cache = cache.NewMemoryService()
	if cfg.MemcacheAddr != "" {
		memcacheService := cache.NewMemcacheService(cfg.MemcacheAddr)
		if err := memcacheService.Ping(); err != nil {
			logger.ForCache().Warn().Err(err).Str("addr", cfg.MemcacheAddr).Msg("Memcache unavailable, using in-memory cache")
		} else {
			services.Cache = memcacheService
			logger.ForCache().Info().Str("addr", cfg.MemcacheAddr).Msg("Connected to Memcache")
		}
	}

	// Initialize publisher
	redisPublisher := publisher.NewRedisPublisher(
		cfg.RedisAddr,
		cfg.RedisDB,
		cfg.RedisStream,
		cfg.RedisStreamCount,
		cfg.RedisStreamMaxLength,
	)
	if err := redisPublisher.Ping(ctx); err != nil {
		redisPublisher.Close()
		return nil, err
	}
	services.Publisher = redisPublisher

	logger.ForPublisher().Info().
		Str("addr", cfg.RedisAddr).
		Int("db", cfg.RedisDB).
		Str("stream", cfg.RedisStream).
		Int("stream_count", cfg.RedisStreamCount).
		Msg("Connected to Redis")

	// Initialize the optional series store
	if cfg.DatabaseURL != "" {
		pgStore, err := store.NewPostgresStore(ctx, cfg.DatabaseURL, cfg.Concurrency)
		if err != nil {
			services.Cleanup()
			return nil, err
		}
		if err := pgStore.EnsureSchema(ctx); err != nil {
			pgStore.Close()
			services.Cleanup()
			return nil, err
		}
		services.Store = pgStore
		logger.ForStore().Info().Msg("Connected to Postgres series store")
	}

	return services, nil
}

// newThrottle returns the limiter shared by all sources, or nil when the
// global rate is unset
func newThrottle(cfg *config.Config) *rate.Limiter {
	if cfg.GlobalRate <= 0 {
		return nil
	}
	burst := cfg.GlobalBurst
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(cfg.GlobalRate), burst)
}

func workerCollectors(collectors map[string]*collector.Collector) map[string]worker.Collector {
	out := make(map[string]worker.Collector, len(collectors))
	for name, c := range collectors {
		out[name] = c
	}
	return out
}
