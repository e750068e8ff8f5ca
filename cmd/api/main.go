package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/docutag/linkscout"
	"github.com/docutag/linkscout/api"
	"github.com/docutag/linkscout/db"
	"github.com/docutag/linkscout/lock"
	"github.com/docutag/linkscout/metrics"
	"github.com/docutag/linkscout/storage"
	"github.com/docutag/linkscout/sweep"
	"github.com/docutag/linkscout/tracing"
)

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt parses an integer environment variable, falling back on absent or invalid values
func getEnvInt(logger *slog.Logger, key string, defaultValue int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		logger.Warn("invalid integer value, using default",
			"key", key,
			"provided", raw,
			"default", defaultValue,
		)
		return defaultValue
	}
	return value
}

func main() {
	_ = godotenv.Load()

	// Setup structured logging with JSON output
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("linkscout service initializing", "version", "1.0.0")

	// Initialize tracing
	tp, err := tracing.InitTracer("linkscout")
	if err != nil {
		logger.Warn("failed to initialize tracer, continuing without tracing", "error", err)
	} else {
		defer func() {
			if err := tp.Shutdown(context.Background()); err != nil {
				logger.Error("error shutting down tracer", "error", err)
			}
		}()
		logger.Info("tracing initialized successfully")
	}

	// Default values
	defaultPort := getEnv("PORT", "8080")
	defaultSchedule := getEnv("SWEEP_SCHEDULE", sweep.DefaultSchedule)
	defaultStorage := getEnv("REPORT_STORAGE", "fs")

	// Command-line flags (override environment variables)
	port := flag.String("port", defaultPort, "Server port")
	schedule := flag.String("sweep-schedule", defaultSchedule, "Cron schedule of the nightly link sweep (empty disables it)")
	maxPerBlog := flag.Int("max-per-blog", getEnvInt(logger, "MAX_PER_BLOG", linkscout.DefaultMaxPerBlog), "Maximum suggestions per blog page for on-demand runs")
	maxPerProject := flag.Int("max-per-project", getEnvInt(logger, "MAX_PER_PROJECT", linkscout.DefaultMaxPerProject), "Maximum suggestions per project for on-demand runs")
	sweepMaxPerProject := flag.Int("sweep-max-per-project", getEnvInt(logger, "SWEEP_MAX_PER_PROJECT", sweep.DefaultMaxPerProject), "Maximum suggestions per project for sweeps")
	reportStorage := flag.String("report-storage", defaultStorage, "Archive backend for sweep reports and page snapshots: fs or s3")
	disableCORS := flag.Bool("disable-cors", false, "Disable CORS")
	disableFetch := flag.Bool("disable-fetch", false, "Disable fetching page content from page URLs")
	flag.Parse()

	// PostgreSQL database configuration (required)
	dbHost := getEnv("DB_HOST", "")
	if dbHost == "" {
		logger.Error("DB_HOST environment variable is required")
		os.Exit(1)
	}

	dbPort := getEnv("DB_PORT", "5432")
	dbUser := getEnv("DB_USER", "linkscout")
	dbPassword := getEnv("DB_PASSWORD", "linkscout_dev_pass")
	dbName := getEnv("DB_NAME", "linkscout")

	database, err := db.New(db.Config{
		DSN: fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", dbHost, dbPort, dbUser, dbPassword, dbName),
	})
	if err != nil {
		logger.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer database.Close()
	logger.Info("using PostgreSQL database", "host", dbHost, "port", dbPort, "database", dbName)

	// Initialize metrics
	m := metrics.New("linkscout", prometheus.DefaultRegisterer)
	go func() {
		ticker := time.NewTicker(15 * time.Second)
		defer ticker.Stop()
		for range ticker.C {
			m.UpdateDBStats(database.DB())
		}
	}()
	logger.Info("metrics initialized")

	locker := newLocker(logger)

	archive, err := newArchive(context.Background(), *reportStorage)
	if err != nil {
		logger.Error("failed to initialize archive", "backend", *reportStorage, "error", err)
		os.Exit(1)
	}

	miner := linkscout.New(database, logger, m)

	sweeper := sweep.New(sweep.Config{
		Projects: database,
		Miner:    miner,
		Locker:   locker,
		Archive:  archive,
		Logger:   logger,
		Metrics:  m,
		Options:  linkscout.Options{MaxPerProject: *sweepMaxPerProject},
	})

	var scheduler *sweep.Scheduler
	if *schedule != "" {
		scheduler, err = sweep.NewScheduler(sweeper, *schedule, 30*time.Minute, logger)
		if err != nil {
			logger.Error("invalid sweep schedule", "schedule", *schedule, "error", err)
			os.Exit(1)
		}
		scheduler.Start()
	}

	var fetcher *linkscout.Fetcher
	if !*disableFetch {
		fetcher = linkscout.NewFetcher(linkscout.DefaultFetcherConfig())
	}

	cronToken := getEnv("CRON_JOB_TOKEN", "")
	if cronToken == "" {
		logger.Warn("CRON_JOB_TOKEN not set, cron endpoint will reject all requests")
	}

	server := api.NewServer(api.Config{
		Addr:        ":" + *port,
		CORSEnabled: !*disableCORS,
		CronToken:   cronToken,
		MineOptions: linkscout.Options{MaxPerBlog: *maxPerBlog, MaxPerProject: *maxPerProject},
	}, api.Deps{
		Store:    database,
		Sweeper:  sweeper,
		Fetcher:  fetcher,
		Archive:  archive,
		Gatherer: prometheus.DefaultGatherer,
		Logger:   logger,
	})

	// Start server in a goroutine
	go func() {
		logger.Info("linkscout service starting",
			"port", *port,
			"database_host", dbHost,
			"database_name", dbName,
			"sweep_schedule", *schedule,
			"report_storage", *reportStorage,
			"max_per_blog", *maxPerBlog,
			"max_per_project", *maxPerProject,
			"fetch_enabled", fetcher != nil,
		)

		if err := server.Start(); err != nil {
			logger.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Graceful shutdown
	logger.Info("shutting down gracefully")
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if scheduler != nil {
		if err := scheduler.Stop(ctx); err != nil {
			logger.Warn("sweep still running at shutdown", "error", err)
		}
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
		os.Exit(1)
	}

	logger.Info("server stopped")
}

// newLocker uses Redis when REDIS_ADDRESS is set so replicas share project locks
func newLocker(logger *slog.Logger) lock.Locker {
	addr := getEnv("REDIS_ADDRESS", "")
	if addr == "" {
		logger.Info("REDIS_ADDRESS not set, using in-process project locks")
		return lock.NewLocalLocker()
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       getEnvInt(logger, "REDIS_DB", 0),
	})
	logger.Info("using Redis project locks", "address", addr)
	return lock.NewRedisLocker(client, "linkscout:lock:", lock.DefaultTTL)
}

func newArchive(ctx context.Context, backend string) (storage.Archive, error) {
	switch backend {
	case "s3":
		usePathStyle, _ := strconv.ParseBool(getEnv("S3_USE_PATH_STYLE", "false"))
		return storage.NewS3Storage(ctx, storage.S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			Bucket:          getEnv("S3_BUCKET", ""),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			UsePathStyle:    usePathStyle,
		})
	case "fs", "":
		return storage.New(storage.Config{BasePath: getEnv("STORAGE_BASE_PATH", "./storage")})
	default:
		return nil, fmt.Errorf("unknown report storage %q", backend)
	}
}
