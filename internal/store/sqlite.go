package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/niranjanbala/agency-10x/internal/domain"
	"github.com/niranjanbala/agency-10x/internal/shared"
	_ "modernc.org/sqlite"
)

const (
	defaultLeadLimit = 50
	maxLeadLimit     = 500
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (Repository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	// WAL mode for concurrent readers while a lead is being written.
	dsn := "file:" + dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS visitors (
		visitor_id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		first_seen_at INTEGER NOT NULL,
		last_seen_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_visitors_last_seen ON visitors(last_seen_at);

	CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		visitor_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		complexity TEXT NOT NULL,
		timeline TEXT NOT NULL,
		can_build INTEGER NOT NULL,
		reasoning TEXT NOT NULL,
		answers_json TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_leads_created ON leads(created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_leads_visitor ON leads(visitor_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetVisitor retrieves a visitor by ID.
func (s *SQLiteStore) GetVisitor(ctx context.Context, visitorID string) (*domain.Visitor, error) {
	query := `
		SELECT visitor_id, display_name, first_seen_at, last_seen_at
		FROM visitors WHERE visitor_id = ?`

	var v domain.Visitor
	var firstSeen, lastSeen int64
	err := s.db.QueryRowContext(ctx, query, visitorID).Scan(
		&v.VisitorID, &v.DisplayName, &firstSeen, &lastSeen,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan visitor row: %w", err)
	}

	v.FirstSeenAt = time.Unix(firstSeen, 0)
	v.LastSeenAt = time.Unix(lastSeen, 0)
	return &v, nil
}

// UpsertVisitor creates or updates a visitor record.
func (s *SQLiteStore) UpsertVisitor(ctx context.Context, visitor *domain.Visitor) error {
	query := `
	INSERT INTO visitors (visitor_id, display_name, first_seen_at, last_seen_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(visitor_id) DO UPDATE SET
		display_name = excluded.display_name,
		last_seen_at = excluded.last_seen_at`

	return shared.RetryOnConflict(ctx, "upsert visitor", 3, 50*time.Millisecond, func() error {
		_, err := s.db.ExecContext(ctx, query,
			visitor.VisitorID, visitor.DisplayName,
			visitor.FirstSeenAt.Unix(), visitor.LastSeenAt.Unix(),
		)
		return err
	})
}

// TouchVisitor updates last_seen_at for a visitor.
func (s *SQLiteStore) TouchVisitor(ctx context.Context, visitorID string, lastSeen time.Time) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE visitors SET last_seen_at = ? WHERE visitor_id = ?`,
		lastSeen.Unix(), visitorID)
	if err != nil {
		return fmt.Errorf("touch visitor: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		slog.Warn("TouchVisitor affected 0 rows", "visitor_id", visitorID)
	}
	return nil
}

// DeleteStaleVisitors removes visitors idle longer than ttl that have no leads.
func (s *SQLiteStore) DeleteStaleVisitors(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()
	query := `
		DELETE FROM visitors
		WHERE last_seen_at < ?
		  AND NOT EXISTS (SELECT 1 FROM leads WHERE leads.visitor_id = visitors.visitor_id)`

	var deleted int64
	err := shared.RetryOnConflict(ctx, "delete stale visitors", 3, 100*time.Millisecond, func() error {
		result, err := s.db.ExecContext(ctx, query, threshold)
		if err != nil {
			return err
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

// CreateLead records a captured lead.
func (s *SQLiteStore) CreateLead(ctx context.Context, lead *domain.Lead) error {
	if !lead.Complexity.Valid() {
		return fmt.Errorf("create lead: unknown complexity %q", lead.Complexity)
	}
	answers := lead.Answers
	if answers == nil {
		answers = []string{}
	}
	answersJSON, err := json.Marshal(answers)
	if err != nil {
		return fmt.Errorf("marshal lead answers: %w", err)
	}

	query := `
		INSERT INTO leads (
			id, visitor_id, session_id, complexity, timeline,
			can_build, reasoning, answers_json, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	return shared.RetryOnConflict(ctx, "create lead", 3, 100*time.Millisecond, func() error {
		_, err := s.db.ExecContext(ctx, query,
			lead.ID, lead.VisitorID, lead.SessionID, string(lead.Complexity), lead.Timeline,
			lead.CanBuild, lead.Reasoning, string(answersJSON), lead.CreatedAt.Unix(),
		)
		return err
	})
}

// GetLead retrieves a lead by ID.
func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*domain.Lead, error) {
	query := `
		SELECT id, visitor_id, session_id, complexity, timeline,
		       can_build, reasoning, answers_json, created_at
		FROM leads WHERE id = ?`

	lead, err := scanLead(s.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan lead row: %w", err)
	}
	return lead, nil
}

// ListLeads returns the newest leads first.
func (s *SQLiteStore) ListLeads(ctx context.Context, limit int) ([]*domain.Lead, error) {
	if limit <= 0 {
		limit = defaultLeadLimit
	}
	if limit > maxLeadLimit {
		limit = maxLeadLimit
	}

	query := `
		SELECT id, visitor_id, session_id, complexity, timeline,
		       can_build, reasoning, answers_json, created_at
		FROM leads ORDER BY created_at DESC, id LIMIT ?`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query leads: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close lead rows", "error", closeErr)
		}
	}()

	leads := make([]*domain.Lead, 0)
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("scan lead row: %w", err)
		}
		leads = append(leads, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate leads: %w", err)
	}
	return leads, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLead(row rowScanner) (*domain.Lead, error) {
	var lead domain.Lead
	var complexity, answersJSON string
	var createdAt int64

	if err := row.Scan(
		&lead.ID, &lead.VisitorID, &lead.SessionID, &complexity, &lead.Timeline,
		&lead.CanBuild, &lead.Reasoning, &answersJSON, &createdAt,
	); err != nil {
		return nil, err
	}

	lead.Complexity = domain.Complexity(complexity)
	lead.CreatedAt = time.Unix(createdAt, 0)
	if err := json.Unmarshal([]byte(answersJSON), &lead.Answers); err != nil {
		return nil, fmt.Errorf("decode lead answers: %w", err)
	}
	return &lead, nil
}
