// Package sweep mines every active project in one pass, one project at a time, and
// keeps a report of what each project produced.
package sweep

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/docutag/linkscout"
	"github.com/docutag/linkscout/lock"
	"github.com/docutag/linkscout/metrics"
	"github.com/docutag/linkscout/models"
	"github.com/docutag/linkscout/storage"
)

// DefaultMaxPerProject is the per-project cap of a scheduled sweep
const DefaultMaxPerProject = 20

// ProjectLister lists the projects a sweep visits
type ProjectLister interface {
	ListActiveProjects(ctx context.Context) ([]models.Project, error)
}

// Miner generates link suggestions for a project
type Miner interface {
	Generate(ctx context.Context, projectID string, opts linkscout.Options) ([]models.SuggestionResult, error)
}

// ProjectResult is the outcome of mining one project
type ProjectResult struct {
	ProjectID   string `json:"project_id"`
	ProjectName string `json:"project_name"`
	Created     int    `json:"created"`
	Skipped     bool   `json:"skipped,omitempty"` // Another run held the project's lock
	Error       string `json:"error,omitempty"`
}

// Report summarizes a sweep
type Report struct {
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
	Results    []ProjectResult `json:"results"`
	ArchiveKey string          `json:"archive_key,omitempty"`
}

// Created totals the tasks created across projects
func (r *Report) Created() int {
	total := 0
	for _, result := range r.Results {
		total += result.Created
	}
	return total
}

// Sweeper runs the miner under a per-project lock
type Sweeper struct {
	projects ProjectLister
	miner    Miner
	locker   lock.Locker
	archive  storage.Archive
	logger   *slog.Logger
	metrics  *metrics.Metrics
	opts     linkscout.Options
}

// Config wires a Sweeper. Archive, Logger and Metrics are optional; Locker defaults to
// an in-process lock.
type Config struct {
	Projects ProjectLister
	Miner    Miner
	Locker   lock.Locker
	Archive  storage.Archive
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Options  linkscout.Options // Sweep options; MaxPerProject defaults to DefaultMaxPerProject
}

// New creates a Sweeper
func New(cfg Config) *Sweeper {
	if cfg.Locker == nil {
		cfg.Locker = lock.NewLocalLocker()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Options.MaxPerProject <= 0 {
		cfg.Options.MaxPerProject = DefaultMaxPerProject
	}

	return &Sweeper{
		projects: cfg.Projects,
		miner:    cfg.Miner,
		locker:   cfg.Locker,
		archive:  cfg.Archive,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
		opts:     cfg.Options,
	}
}

// MineProject runs the miner for one project while holding its lock. It returns
// lock.ErrLocked when another run is mining the same project.
func (s *Sweeper) MineProject(ctx context.Context, projectID string, opts linkscout.Options) ([]models.SuggestionResult, error) {
	release, err := s.locker.TryAcquire(ctx, lock.ProjectKey(projectID))
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.logger.Warn("failed to release project lock", "project_id", projectID, "error", err)
		}
	}()

	return s.miner.Generate(ctx, projectID, opts)
}

// Run mines every active project in turn. A failing project is recorded in the report
// and does not stop the sweep; only listing the projects can fail the run. The report
// is archived when an archive is configured.
func (s *Sweeper) Run(ctx context.Context) (*Report, error) {
	report := &Report{StartedAt: time.Now().UTC(), Results: []ProjectResult{}}

	projects, err := s.projects.ListActiveProjects(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list active projects: %w", err)
	}

	s.logger.Info("link sweep started", "projects", len(projects))

	for _, project := range projects {
		if ctx.Err() != nil {
			break
		}
		report.Results = append(report.Results, s.sweepProject(ctx, project))
	}

	report.FinishedAt = time.Now().UTC()
	s.metrics.ObserveSweep(report.FinishedAt.Sub(report.StartedAt))

	if s.archive != nil {
		if key, err := s.archiveReport(ctx, report); err != nil {
			s.logger.Error("failed to archive sweep report", "error", err)
		} else {
			report.ArchiveKey = key
		}
	}

	s.logger.Info("link sweep completed",
		"projects", len(report.Results),
		"created", report.Created(),
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)

	return report, ctx.Err()
}

func (s *Sweeper) sweepProject(ctx context.Context, project models.Project) ProjectResult {
	result := ProjectResult{ProjectID: project.ID, ProjectName: project.Name}

	created, err := s.MineProject(ctx, project.ID, s.opts)
	result.Created = len(created)

	switch {
	case errors.Is(err, lock.ErrLocked):
		result.Skipped = true
		s.metrics.SweepProject("skipped")
		s.logger.Info("project already being mined, skipping", "project_id", project.ID)
	case err != nil:
		result.Error = err.Error()
		s.metrics.SweepProject("error")
		s.logger.Error("link mining failed",
			"project_id", project.ID,
			"created", result.Created,
			"error", err,
		)
	default:
		s.metrics.SweepProject("ok")
	}

	return result
}

func (s *Sweeper) archiveReport(ctx context.Context, report *Report) (string, error) {
	data, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}
	name := "link-sweep " + report.StartedAt.Format("2006-01-02 150405")
	return s.archive.Save(ctx, "reports", name, data, "application/json")
}
