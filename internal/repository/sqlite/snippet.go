package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/code-sandbox/internal/apperror"
	"github.com/sakif/code-sandbox/internal/model"
	"github.com/sakif/code-sandbox/internal/repository"
)

// Compile-time check that *DB implements repository.SnippetRepository.
var _ repository.SnippetRepository = (*DB)(nil)

const (
	defaultListLimit = 20
	maxListLimit     = 100

	snippetColumns = `id, title, language, code, stdin, owner,
		last_stdout, last_stderr, last_status, last_phase, last_run_at,
		created_at, updated_at`
)

// scanner is satisfied by both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

// scanSnippet reads one row selected with snippetColumns. The last_* columns
// are NULL until the snippet has been run.
func scanSnippet(row scanner) (*model.Snippet, error) {
	var (
		s      model.Snippet
		stdout string
		stderr string
		status sql.NullInt64
		phase  string
		ranAt  sql.NullTime
	)
	err := row.Scan(
		&s.ID, &s.Title, &s.Language, &s.Code, &s.Stdin, &s.Owner,
		&stdout, &stderr, &status, &phase, &ranAt,
		&s.CreatedAt, &s.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if ranAt.Valid {
		s.LastRun = &model.RunInfo{
			Stdout:     stdout,
			Stderr:     stderr,
			StatusCode: int(status.Int64),
			Phase:      phase,
			RanAt:      ranAt.Time,
		}
	}
	return &s, nil
}

// Create inserts a new snippet. The generated ID and timestamps are written
// back into snippet.
//
// xid ids are 20 URL-safe chars and sort by creation time.
func (db *DB) Create(ctx context.Context, snippet *model.Snippet) error {
	snippet.ID = xid.New().String()

	now := time.Now().UTC()
	snippet.CreatedAt = now
	snippet.UpdatedAt = now
	snippet.LastRun = nil

	// Always ? placeholders, never string building: the driver escapes values.
	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO snippets (id, title, language, code, stdin, owner, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		snippet.ID,
		snippet.Title,
		snippet.Language,
		snippet.Code,
		snippet.Stdin,
		snippet.Owner,
		snippet.CreatedAt,
		snippet.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("sqlite: creating snippet: %w", err)
	}

	return nil
}

// GetByID retrieves a single snippet. A missing row becomes apperror.NotFound
// so the handler can answer 404.
func (db *DB) GetByID(ctx context.Context, id string) (*model.Snippet, error) {
	row := db.conn.QueryRowContext(ctx,
		`SELECT `+snippetColumns+` FROM snippets WHERE id = ?`,
		id,
	)
	snippet, err := scanSnippet(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("snippet", id)
		}
		return nil, fmt.Errorf("sqlite: getting snippet %s: %w", id, err)
	}
	return snippet, nil
}

// List returns snippets newest first, optionally filtered by language.
//
// Always close rows: an open *sql.Rows holds a pool connection. rows.Err()
// after the loop reports failures that happened during iteration.
func (db *DB) List(ctx context.Context, opts repository.ListOptions) ([]model.Snippet, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}
	offset := max(opts.Offset, 0)

	var (
		query strings.Builder
		args  []any
	)
	query.WriteString(`SELECT ` + snippetColumns + ` FROM snippets`)
	if opts.Language != "" {
		query.WriteString(` WHERE language = ?`)
		args = append(args, opts.Language)
	}
	// id breaks ties between snippets created in the same instant.
	query.WriteString(` ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`)
	args = append(args, limit, offset)

	rows, err := db.conn.QueryContext(ctx, query.String(), args...)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing snippets: %w", err)
	}
	defer rows.Close()

	snippets := make([]model.Snippet, 0, limit)
	for rows.Next() {
		s, err := scanSnippet(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning snippet row: %w", err)
		}
		snippets = append(snippets, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating snippets: %w", err)
	}

	return snippets, nil
}

// Update saves the editable fields. id, owner and created_at are immutable.
// A zero RowsAffected means the snippet does not exist.
func (db *DB) Update(ctx context.Context, snippet *model.Snippet) error {
	snippet.UpdatedAt = time.Now().UTC()

	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET title = ?, language = ?, code = ?, stdin = ?, updated_at = ?
		 WHERE id = ?`,
		snippet.Title,
		snippet.Language,
		snippet.Code,
		snippet.Stdin,
		snippet.UpdatedAt,
		snippet.ID,
	)
	if err != nil {
		return fmt.Errorf("sqlite: updating snippet %s: %w", snippet.ID, err)
	}
	return checkAffected(result, snippet.ID)
}

// RecordRun stores the outcome of the latest run.
func (db *DB) RecordRun(ctx context.Context, id string, run model.RunInfo) error {
	result, err := db.conn.ExecContext(ctx,
		`UPDATE snippets
		 SET last_stdout = ?, last_stderr = ?, last_status = ?, last_phase = ?, last_run_at = ?
		 WHERE id = ?`,
		run.Stdout,
		run.Stderr,
		run.StatusCode,
		run.Phase,
		run.RanAt.UTC(),
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: recording run for snippet %s: %w", id, err)
	}
	return checkAffected(result, id)
}

// Delete removes a snippet by its ID.
func (db *DB) Delete(ctx context.Context, id string) error {
	result, err := db.conn.ExecContext(ctx,
		`DELETE FROM snippets WHERE id = ?`,
		id,
	)
	if err != nil {
		return fmt.Errorf("sqlite: deleting snippet %s: %w", id, err)
	}
	return checkAffected(result, id)
}

func checkAffected(result sql.Result, id string) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: checking rows affected: %w", err)
	}
	if n == 0 {
		return apperror.NotFound("snippet", id)
	}
	return nil
}
