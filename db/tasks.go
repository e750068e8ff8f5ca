package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/docutag/linkscout"
	"github.com/docutag/linkscout/models"
)

const taskColumns = `id, project_id, title, description, status, priority, type,
	score_current, score_potential,
	average_position, conversion_rate, intent_score, traffic_gap, effort_estimate,
	created_at, updated_at`

// ListTasks returns every task of a project, newest first
func (db *DB) ListTasks(ctx context.Context, projectID string) ([]models.Task, error) {
	query := "SELECT " + taskColumns + " FROM tasks WHERE project_id = $1 ORDER BY created_at DESC, id"

	rows, err := db.conn.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []models.Task{}
	for rows.Next() {
		var (
			t                                         models.Task
			position, conversion, intent, gap, effort sql.NullFloat64
		)
		if err := rows.Scan(
			&t.ID, &t.ProjectID, &t.Title, &t.Description, &t.Status, &t.Priority, &t.Type,
			&t.ScoreCurrent, &t.ScorePotential,
			&position, &conversion, &intent, &gap, &effort,
			&t.CreatedAt, &t.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan task: %w", err)
		}
		t.AveragePosition = nullFloat(position)
		t.ConversionRate = nullFloat(conversion)
		t.IntentScore = nullFloat(intent)
		t.TrafficGap = nullFloat(gap)
		t.EffortEstimate = nullFloat(effort)
		tasks = append(tasks, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return tasks, nil
}

// ListLinkTaskDescriptions returns the descriptions of the project's LINK tasks
func (db *DB) ListLinkTaskDescriptions(ctx context.Context, projectID string) ([]string, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT description FROM tasks WHERE project_id = $1 AND type = $2",
		projectID, models.TaskTypeLink,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query link tasks: %w", err)
	}
	defer rows.Close()

	var descriptions []string
	for rows.Next() {
		var description string
		if err := rows.Scan(&description); err != nil {
			return nil, fmt.Errorf("failed to scan task description: %w", err)
		}
		descriptions = append(descriptions, description)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return descriptions, nil
}

// ListSuggestionSignatures returns the link suggestion signatures recorded for a project
func (db *DB) ListSuggestionSignatures(ctx context.Context, projectID string) ([]linkscout.Signature, error) {
	rows, err := db.conn.QueryContext(ctx,
		"SELECT source_page_id, target_page_id, anchor_lower FROM link_suggestions WHERE project_id = $1",
		projectID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query link suggestions: %w", err)
	}
	defer rows.Close()

	var sigs []linkscout.Signature
	for rows.Next() {
		var sig linkscout.Signature
		if err := rows.Scan(&sig.SourcePageID, &sig.TargetPageID, &sig.Anchor); err != nil {
			return nil, fmt.Errorf("failed to scan link suggestion: %w", err)
		}
		sigs = append(sigs, sig)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return sigs, nil
}

// CreateLinkTask inserts task and records its signature in one transaction. When the
// signature is already recorded nothing is written and linkscout.ErrDuplicateSuggestion
// is returned. On success task.ID and the timestamps are set.
func (db *DB) CreateLinkTask(ctx context.Context, task *models.Task, sig linkscout.Signature) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	id := uuid.New().String()
	now := time.Now().UTC()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (id, project_id, title, description, status, priority, type,
			score_current, score_potential, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`,
		id,
		task.ProjectID,
		task.Title,
		task.Description,
		task.Status,
		task.Priority,
		task.Type,
		task.ScoreCurrent,
		task.ScorePotential,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert task: %w", err)
	}

	result, err := tx.ExecContext(ctx, `
		INSERT INTO link_suggestions (project_id, source_page_id, target_page_id, anchor_lower, task_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (project_id, source_page_id, target_page_id, anchor_lower) DO NOTHING
	`, task.ProjectID, sig.SourcePageID, sig.TargetPageID, sig.Anchor, id, now)
	if err != nil {
		return fmt.Errorf("failed to record link suggestion: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return linkscout.ErrDuplicateSuggestion
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	task.ID = id
	task.CreatedAt = now
	task.UpdatedAt = now
	return nil
}
