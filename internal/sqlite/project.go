package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/theo-nash/claude-slack/internal/domain/identity"
	"github.com/theo-nash/claude-slack/internal/repository"
)

// ProjectRepository implements identity.ProjectRepository for SQLite
type ProjectRepository struct {
	db *DB
}

// NewProjectRepository creates a new ProjectRepository
func NewProjectRepository(db *DB) *ProjectRepository {
	return &ProjectRepository{db: db}
}

// Create inserts a new project
func (r *ProjectRepository) Create(ctx context.Context, proj *identity.Project) error {
	query := `
		INSERT INTO projects (id, path, name, created_at)
		VALUES (?, ?, ?, ?)
	`

	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query, proj.ID, proj.Path, proj.Name, proj.CreatedAt.Unix())
		return err
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to create project: %w", err)
	}
	return nil
}

// Get retrieves a project by id
func (r *ProjectRepository) Get(ctx context.Context, id string) (*identity.Project, error) {
	query := `SELECT id, path, name, created_at FROM projects WHERE id = ?`
	return r.scanProject(r.db.QueryRowContext(ctx, query, id))
}

// GetByPath retrieves a project by its absolute path
func (r *ProjectRepository) GetByPath(ctx context.Context, path string) (*identity.Project, error) {
	query := `SELECT id, path, name, created_at FROM projects WHERE path = ?`
	return r.scanProject(r.db.QueryRowContext(ctx, query, path))
}

func (r *ProjectRepository) scanProject(row *sql.Row) (*identity.Project, error) {
	var proj identity.Project
	var createdAt int64
	err := row.Scan(&proj.ID, &proj.Path, &proj.Name, &createdAt)
	if err == sql.ErrNoRows {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get project: %w", err)
	}
	proj.CreatedAt = time.Unix(createdAt, 0)
	return &proj, nil
}

// List returns all projects ordered by creation time
func (r *ProjectRepository) List(ctx context.Context) ([]identity.Project, error) {
	query := `SELECT id, path, name, created_at FROM projects ORDER BY created_at ASC`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list projects: %w", err)
	}
	defer rows.Close()

	var projects []identity.Project
	for rows.Next() {
		var proj identity.Project
		var createdAt int64
		if err := rows.Scan(&proj.ID, &proj.Path, &proj.Name, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan project: %w", err)
		}
		proj.CreatedAt = time.Unix(createdAt, 0)
		projects = append(projects, proj)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project rows: %w", err)
	}
	return projects, nil
}

// CreateLink inserts a project link
func (r *ProjectRepository) CreateLink(ctx context.Context, link *identity.ProjectLink) error {
	query := `
		INSERT INTO project_links (project_a, project_b, direction, created_at)
		VALUES (?, ?, ?, ?)
	`

	err := r.db.WriterTxn(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx, query,
			link.ProjectA, link.ProjectB, link.Direction, link.CreatedAt.Unix())
		return err
	})
	if err != nil {
		if classified := classifyErr(err); classified != err {
			return classified
		}
		return fmt.Errorf("failed to create project link: %w", err)
	}
	return nil
}

// ListLinks returns all project links
func (r *ProjectRepository) ListLinks(ctx context.Context) ([]identity.ProjectLink, error) {
	query := `SELECT project_a, project_b, direction, created_at FROM project_links`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list project links: %w", err)
	}
	defer rows.Close()

	var links []identity.ProjectLink
	for rows.Next() {
		var link identity.ProjectLink
		var createdAt int64
		if err := rows.Scan(&link.ProjectA, &link.ProjectB, &link.Direction, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan project link: %w", err)
		}
		link.CreatedAt = time.Unix(createdAt, 0)
		links = append(links, link)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating project link rows: %w", err)
	}
	return links, nil
}
