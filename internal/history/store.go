// Package history persists placement events to a local SQLite database so
// past passes can be audited through the status API.
package history

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite" // SQLite driver

	"github.com/postersync/postersync/internal/syncer"
)

//go:embed migrations/*.sql
var embedMigrations embed.FS

// Placement is one stored placement event.
type Placement struct {
	ID         int64     `json:"id"`
	PassID     string    `json:"pass_id"`
	Action     string    `json:"action"`
	MediaType  string    `json:"media_type"`
	Title      string    `json:"title"`
	SourcePath string    `json:"source_path"`
	RemotePath string    `json:"remote_path"`
	Reason     string    `json:"reason"`
	CreatedAt  time.Time `json:"created_at"`
}

// Store is a SQLite-backed placement event log.
type Store struct {
	conn *sql.DB
}

// NewStore opens (or creates) the database at path and runs pending
// migrations.
func NewStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)", path)

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// SQLite only supports one writer.
	conn.SetMaxOpenConns(1)
	conn.SetMaxIdleConns(1)

	if err := conn.PingContext(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &Store{conn: conn}
	if err := store.migrate(); err != nil {
		conn.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) migrate() error {
	goose.SetBaseFS(embedMigrations)

	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	if err := goose.Up(s.conn, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.conn != nil {
		return s.conn.Close()
	}
	return nil
}

// Record stores one placement event.
func (s *Store) Record(e syncer.Event) error {
	_, err := s.conn.Exec(
		`INSERT INTO placements (pass_id, action, media_type, title, source_path, remote_path, reason)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.PassID, e.Action, e.MediaType, e.Title, e.SourcePath, e.RemotePath, e.Reason,
	)
	if err != nil {
		return fmt.Errorf("record placement: %w", err)
	}
	return nil
}

// Recent returns the most recent placement events, newest first.
func (s *Store) Recent(limit int) ([]Placement, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.conn.Query(
		`SELECT id, pass_id, action, media_type, title, source_path, remote_path, reason, created_at
		 FROM placements ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query placements: %w", err)
	}
	defer rows.Close()

	var result []Placement
	for rows.Next() {
		var p Placement
		if err := rows.Scan(&p.ID, &p.PassID, &p.Action, &p.MediaType, &p.Title,
			&p.SourcePath, &p.RemotePath, &p.Reason, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan placement: %w", err)
		}
		result = append(result, p)
	}
	return result, rows.Err()
}

// Prune removes events older than the retention window.
func (s *Store) Prune(olderThan time.Duration) (int64, error) {
	res, err := s.conn.Exec(`DELETE FROM placements WHERE created_at < ?`, time.Now().Add(-olderThan).UTC())
	if err != nil {
		return 0, fmt.Errorf("prune placements: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}
