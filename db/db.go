// Package db is the PostgreSQL store behind link mining: projects, pages, keywords,
// tasks and the recorded link suggestion signatures.
package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq" // PostgreSQL driver

	"github.com/docutag/linkscout/models"
)

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// DB wraps the database connection and provides data access methods
type DB struct {
	conn *sql.DB
}

// Config contains database configuration
type Config struct {
	DSN string // PostgreSQL connection string
}

// New creates a new database connection and applies pending migrations
func New(config Config) (*DB, error) {
	conn, err := sql.Open("postgres", config.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// Configure connection pool
	conn.SetMaxOpenConns(25)
	conn.SetMaxIdleConns(5)
	conn.SetConnMaxLifetime(5 * time.Minute)

	if err := Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// NewWithConn wraps an already open connection without running migrations
func NewWithConn(conn *sql.DB) *DB {
	return &DB{conn: conn}
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.conn.Close()
}

// DB returns the underlying database connection for metrics collection
func (db *DB) DB() *sql.DB {
	return db.conn
}

// Ping verifies the database is reachable
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// GetProject retrieves a project by ID
func (db *DB) GetProject(ctx context.Context, id string) (*models.Project, error) {
	var p models.Project
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, workspace_id, name, status FROM projects WHERE id = $1", id,
	).Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query project: %w", err)
	}
	return &p, nil
}

// ListProjects returns every project, oldest first
func (db *DB) ListProjects(ctx context.Context) ([]models.Project, error) {
	return db.queryProjects(ctx, "SELECT id, workspace_id, name, status FROM projects ORDER BY created_at, id")
}

// ListActiveProjects returns the projects with status ACTIVE, oldest first
func (db *DB) ListActiveProjects(ctx context.Context) ([]models.Project, error) {
	return db.queryProjects(ctx,
		"SELECT id, workspace_id, name, status FROM projects WHERE status = $1 ORDER BY created_at, id",
		models.ProjectStatusActive,
	)
}

func (db *DB) queryProjects(ctx context.Context, query string, args ...any) ([]models.Project, error) {
	rows, err := db.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query projects: %w", err)
	}
	defer rows.Close()

	projects := []models.Project{}
	for rows.Next() {
		var p models.Project
		if err := rows.Scan(&p.ID, &p.WorkspaceID, &p.Name, &p.Status); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		projects = append(projects, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return projects, nil
}

// GetPage retrieves a page by ID
func (db *DB) GetPage(ctx context.Context, id string) (*models.Page, error) {
	var (
		p     models.Page
		title sql.NullString
	)
	err := db.conn.QueryRowContext(ctx,
		"SELECT id, project_id, url, title, page_type FROM pages WHERE id = $1", id,
	).Scan(&p.ID, &p.ProjectID, &p.URL, &title, &p.PageType)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query page: %w", err)
	}
	p.Title = nullString(title)
	return &p, nil
}

// ListPagesWithContent returns all pages of a project with their stored text, which is
// empty for pages without content
func (db *DB) ListPagesWithContent(ctx context.Context, projectID string) ([]models.PageWithContent, error) {
	query := `
		SELECT p.id, p.project_id, p.url, p.title, p.page_type, COALESCE(c.content_text, '')
		FROM pages p
		LEFT JOIN page_contents c ON c.page_id = p.id
		WHERE p.project_id = $1
		ORDER BY p.created_at, p.id
	`

	rows, err := db.conn.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query pages: %w", err)
	}
	defer rows.Close()

	var pages []models.PageWithContent
	for rows.Next() {
		var (
			p     models.PageWithContent
			title sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.ProjectID, &p.URL, &title, &p.PageType, &p.ContentText); err != nil {
			return nil, fmt.Errorf("failed to scan page: %w", err)
		}
		p.Title = nullString(title)
		pages = append(pages, p)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return pages, nil
}

// SavePageContent stores the extracted text of a page, replacing any previous text.
// A non-empty title is written to the page as well.
func (db *DB) SavePageContent(ctx context.Context, pageID, title, text string) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now()
	result, err := tx.ExecContext(ctx, `
		UPDATE pages SET title = COALESCE(NULLIF($2, ''), title), updated_at = $3
		WHERE id = $1
	`, pageID, title, now)
	if err != nil {
		return fmt.Errorf("failed to update page: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO page_contents (page_id, content_text, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (page_id) DO UPDATE SET
			content_text = excluded.content_text,
			updated_at = excluded.updated_at
	`, pageID, text, now)
	if err != nil {
		return fmt.Errorf("failed to save page content: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// ListMoneyKeywords returns the project's keywords that are mapped to a target page,
// with the page resolved
func (db *DB) ListMoneyKeywords(ctx context.Context, projectID string) ([]models.Keyword, error) {
	query := `
		SELECT k.id, k.project_id, k.phrase, k.secondary_terms,
			p.id, p.project_id, p.url, p.title, p.page_type
		FROM keywords k
		JOIN pages p ON p.id = k.target_page_id
		WHERE k.project_id = $1
		ORDER BY k.created_at, k.id
	`

	rows, err := db.conn.QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to query keywords: %w", err)
	}
	defer rows.Close()

	var keywords []models.Keyword
	for rows.Next() {
		var (
			kw    models.Keyword
			page  models.Page
			title sql.NullString
		)
		if err := rows.Scan(
			&kw.ID, &kw.ProjectID, &kw.Phrase, pq.Array(&kw.SecondaryTerms),
			&page.ID, &page.ProjectID, &page.URL, &title, &page.PageType,
		); err != nil {
			return nil, fmt.Errorf("failed to scan keyword: %w", err)
		}
		page.Title = nullString(title)
		targetID := page.ID
		kw.TargetPageID = &targetID
		kw.TargetPage = &page
		keywords = append(keywords, kw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return keywords, nil
}

func nullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	return &s.String
}

func nullFloat(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	return &f.Float64
}
