// Package audit provides PostgreSQL-backed storage for moderation decisions.
// Every verdict is recorded with how it was reached so that rejected and
// degraded-mode decisions can be reviewed by a human.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq" // postgres driver for database/sql
)

// validStages mirrors the CHECK constraint on moderation_decisions.stage.
var validStages = map[string]bool{
	"heuristic":  true,
	"model":      true,
	"reconciled": true,
	"fallback":   true,
	"cache":      true,
	"muted":      true,
}

// Entry is one recorded decision.
type Entry struct {
	ID            uuid.UUID
	CommentID     string
	AuthorID      string
	Locale        string
	IsAppropriate bool
	Reason        string
	Stage         string
	Rule          string
	ParseLevel    string
	Model         string
	ModelCalls    int
	Degraded      bool
	FallbackCause string
	Duration      time.Duration
	CreatedAt     time.Time
}

// Store manages decision records in PostgreSQL.
type Store struct {
	db *sql.DB
}

// Open connects to PostgreSQL and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxIdleTime(5 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("audit: ping: %w", err)
	}
	return db, nil
}

// NewStore creates a new audit store backed by the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// Record inserts a decision. A zero ID is replaced with a fresh UUID.
func (s *Store) Record(ctx context.Context, e *Entry) error {
	if !validStages[e.Stage] {
		return fmt.Errorf("audit: invalid stage %q", e.Stage)
	}
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.ParseLevel == "" {
		e.ParseLevel = "none"
	}

	const query = `
		INSERT INTO moderation_decisions (
			id, comment_id, author_id, locale, is_appropriate, reason, stage, rule,
			parse_level, model, model_calls, degraded, fallback_cause, duration_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`

	_, err := s.db.ExecContext(ctx, query,
		e.ID,
		e.CommentID,
		e.AuthorID,
		e.Locale,
		e.IsAppropriate,
		e.Reason,
		e.Stage,
		e.Rule,
		e.ParseLevel,
		e.Model,
		e.ModelCalls,
		e.Degraded,
		e.FallbackCause,
		e.Duration.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("audit: insert: %w", err)
	}
	return nil
}

// CountRejected returns how many comments by author were rejected within the
// given window.
func (s *Store) CountRejected(ctx context.Context, author string, window time.Duration) (int, error) {
	const query = `
		SELECT COUNT(*)
		FROM moderation_decisions
		WHERE author_id = $1
		  AND NOT is_appropriate
		  AND created_at >= NOW() - $2::interval`

	var count int
	err := s.db.QueryRowContext(ctx, query, author, window.String()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("audit: count rejected: %w", err)
	}
	return count, nil
}

// PendingReview returns the most recent degraded or rejected decisions,
// newest first.
func (s *Store) PendingReview(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	const query = `
		SELECT id, comment_id, author_id, locale, is_appropriate, reason, stage, rule,
		       parse_level, model, model_calls, degraded, fallback_cause, duration_ms, created_at
		FROM moderation_decisions
		WHERE degraded OR NOT is_appropriate
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("audit: pending review: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			e          Entry
			durationMS int64
		)
		if err := rows.Scan(
			&e.ID, &e.CommentID, &e.AuthorID, &e.Locale, &e.IsAppropriate, &e.Reason,
			&e.Stage, &e.Rule, &e.ParseLevel, &e.Model, &e.ModelCalls, &e.Degraded,
			&e.FallbackCause, &durationMS, &e.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("audit: scan: %w", err)
		}
		e.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("audit: rows: %w", err)
	}
	return out, nil
}
