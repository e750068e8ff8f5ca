// Command suggest mines link suggestions once, for one project or for every active
// project, and exits.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/docutag/linkscout"
	"github.com/docutag/linkscout/db"
	"github.com/docutag/linkscout/lock"
	"github.com/docutag/linkscout/models"
	"github.com/docutag/linkscout/sweep"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// newLogger writes warnings and errors as JSON, keeping stdout for the per-project report
func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelWarn,
	}))
}

func main() {
	_ = godotenv.Load()

	logger := newLogger(os.Stderr)
	slog.SetDefault(logger)

	projectID := flag.String("project", "", "Project ID to mine (default: all active projects)")
	maxPerBlog := flag.Int("max-per-blog", linkscout.DefaultMaxPerBlog, "Maximum suggestions per blog page")
	maxPerProject := flag.Int("max-per-project", linkscout.DefaultMaxPerProject, "Maximum suggestions per project")
	flag.Parse()

	dsn := getEnv("DATABASE_URL", "")
	if dsn == "" {
		dsn = fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
			getEnv("DB_HOST", "localhost"),
			getEnv("DB_PORT", "5432"),
			getEnv("DB_USER", "linkscout"),
			getEnv("DB_PASSWORD", "linkscout_dev_pass"),
			getEnv("DB_NAME", "linkscout"),
		)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, dsn, *projectID, linkscout.Options{MaxPerBlog: *maxPerBlog, MaxPerProject: *maxPerProject}, logger); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, dsn, projectID string, opts linkscout.Options, logger *slog.Logger) error {
	database, err := db.New(db.Config{DSN: dsn})
	if err != nil {
		return err
	}
	defer database.Close()

	var projects []models.Project
	if projectID != "" {
		project, err := database.GetProject(ctx, projectID)
		if err != nil {
			return fmt.Errorf("failed to load project %s: %w", projectID, err)
		}
		projects = append(projects, *project)
	} else {
		projects, err = database.ListActiveProjects(ctx)
		if err != nil {
			return fmt.Errorf("failed to list active projects: %w", err)
		}
	}

	sweeper := sweep.New(sweep.Config{
		Projects: database,
		Miner:    linkscout.New(database, logger, nil),
		Locker:   newLocker(logger),
		Logger:   logger,
	})

	return mineProjects(ctx, sweeper, projects, opts, os.Stdout, os.Stderr)
}

// mineProjects mines each project under its run lock and prints one line per project.
// Projects locked by another run are reported and skipped.
func mineProjects(ctx context.Context, sweeper *sweep.Sweeper, projects []models.Project, opts linkscout.Options, out, errOut io.Writer) error {
	failed := 0
	for _, project := range projects {
		results, err := sweeper.MineProject(ctx, project.ID, opts)
		if errors.Is(err, lock.ErrLocked) {
			fmt.Fprintf(out, "Project %s: skipped, link suggestions are already being generated.\n", project.Name)
			continue
		}

		fmt.Fprintf(out, "Project %s: created %d link suggestion task(s).\n", project.Name, len(results))
		if err != nil {
			fmt.Fprintf(errOut, "Project %s: %v\n", project.Name, err)
			failed++
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d project(s) failed", failed, len(projects))
	}
	return nil
}

// newLocker shares the API server's Redis locks when REDIS_ADDRESS is set
func newLocker(logger *slog.Logger) lock.Locker {
	addr := getEnv("REDIS_ADDRESS", "")
	if addr == "" {
		logger.Warn("REDIS_ADDRESS not set, runs are not serialized with other processes")
		return lock.NewLocalLocker()
	}

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: getEnv("REDIS_PASSWORD", ""),
		DB:       redisDB,
	})
	return lock.NewRedisLocker(client, "linkscout:lock:", lock.DefaultTTL)
}
