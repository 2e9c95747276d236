// Package sqlite implements the store interface on a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/danielolaszy/incboard/internal/store"
	"github.com/danielolaszy/incboard/pkg/models"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// SQLiteStore implements store.Store backed by a SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ store.Store = (*SQLiteStore)(nil)

// New opens (creating if needed) the mirror database at path.
func New(path string) (*SQLiteStore, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=foreign_keys(ON)"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	return &SQLiteStore{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// UpsertTickets reconciles a batch of tickets by issue key. Duplicate
// keys within the batch resolve last-write-wins.
func (s *SQLiteStore) UpsertTickets(ctx context.Context, tickets []models.Ticket) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin ticket upsert: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO tickets (key, title, description, status, priority, assignee, service, summary, url, source, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			title = excluded.title,
			description = excluded.description,
			status = excluded.status,
			priority = excluded.priority,
			assignee = excluded.assignee,
			service = excluded.service,
			summary = excluded.summary,
			url = excluded.url,
			source = excluded.source,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare ticket upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, t := range tickets {
		if _, err := stmt.ExecContext(ctx,
			t.Key, t.Title, t.Description, t.Status, t.Priority, t.Assignee,
			t.Service, t.Summary, t.URL, t.Source, t.UpdatedAt); err != nil {
			return fmt.Errorf("upsert ticket %s: %w", t.Key, err)
		}
	}

	return tx.Commit()
}

// ReconcileComments upserts the complete incoming comment list for one
// ticket, then prunes every stored comment absent from it. The prune
// runs after the upserts inside the same transaction, so an interrupted
// run never deletes before re-inserting.
func (s *SQLiteStore) ReconcileComments(ctx context.Context, ticketKey string, comments []models.TicketComment) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin comment reconcile: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO ticket_comments (jira_comment_id, ticket_key, author, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(jira_comment_id) DO UPDATE SET
			ticket_key = excluded.ticket_key,
			author = excluded.author,
			body = excluded.body,
			created_at = excluded.created_at,
			updated_at = excluded.updated_at`)
	if err != nil {
		return fmt.Errorf("prepare comment upsert: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for _, c := range comments {
		if _, err := stmt.ExecContext(ctx,
			c.JiraCommentID, ticketKey, c.Author, c.Body, c.CreatedAt, c.UpdatedAt); err != nil {
			return fmt.Errorf("upsert comment %s: %w", c.JiraCommentID, err)
		}
	}

	// Prune: stored comments for this ticket not in the incoming set.
	if len(comments) == 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM ticket_comments WHERE ticket_key = ?`, ticketKey); err != nil {
			return fmt.Errorf("prune comments for %s: %w", ticketKey, err)
		}
	} else {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(comments)), ",")
		args := make([]any, 0, len(comments)+1)
		args = append(args, ticketKey)
		for _, c := range comments {
			args = append(args, c.JiraCommentID)
		}
		query := fmt.Sprintf(
			`DELETE FROM ticket_comments WHERE ticket_key = ? AND jira_comment_id NOT IN (%s)`,
			placeholders)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("prune comments for %s: %w", ticketKey, err)
		}
	}

	return tx.Commit()
}

const ticketColumns = `key, title, description, status, priority, assignee, service, summary, url, source, updated_at`

// ListTickets returns tickets ordered by updatedAt descending. A
// non-empty keyPrefix (e.g. "INC-") restricts the result to matching keys.
func (s *SQLiteStore) ListTickets(ctx context.Context, keyPrefix string) ([]models.Ticket, error) {
	query := `SELECT ` + ticketColumns + ` FROM tickets ORDER BY updated_at DESC`
	var args []any
	if keyPrefix != "" {
		query = `SELECT ` + ticketColumns + ` FROM tickets WHERE key LIKE ? ESCAPE '\' ORDER BY updated_at DESC`
		args = append(args, likePrefix(keyPrefix))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var tickets []models.Ticket
	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.Key, &t.Title, &t.Description, &t.Status, &t.Priority,
			&t.Assignee, &t.Service, &t.Summary, &t.URL, &t.Source, &t.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		tickets = append(tickets, t)
	}
	return tickets, rows.Err()
}

const commentColumns = `jira_comment_id, ticket_key, author, body, created_at, updated_at`

// ListComments returns one ticket's comments, most recent first.
func (s *SQLiteStore) ListComments(ctx context.Context, ticketKey string) ([]models.TicketComment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+commentColumns+` FROM ticket_comments WHERE ticket_key = ? ORDER BY updated_at DESC`,
		ticketKey)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanComments(rows)
}

// ListAllComments returns comments across all tickets, most recent
// first, optionally restricted to ticket keys with the given prefix.
func (s *SQLiteStore) ListAllComments(ctx context.Context, keyPrefix string) ([]models.TicketComment, error) {
	query := `SELECT ` + commentColumns + ` FROM ticket_comments ORDER BY updated_at DESC`
	var args []any
	if keyPrefix != "" {
		query = `SELECT ` + commentColumns + ` FROM ticket_comments WHERE ticket_key LIKE ? ESCAPE '\' ORDER BY updated_at DESC`
		args = append(args, likePrefix(keyPrefix))
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list all comments: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return scanComments(rows)
}

func scanComments(rows *sql.Rows) ([]models.TicketComment, error) {
	var comments []models.TicketComment
	for rows.Next() {
		var c models.TicketComment
		if err := rows.Scan(&c.JiraCommentID, &c.TicketKey, &c.Author, &c.Body,
			&c.CreatedAt, &c.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		comments = append(comments, c)
	}
	return comments, rows.Err()
}

// likePrefix escapes LIKE metacharacters so a key prefix matches literally.
func likePrefix(prefix string) string {
	escaped := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(prefix)
	return escaped + "%"
}
