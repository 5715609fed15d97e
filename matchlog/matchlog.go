// Package matchlog persists match decisions to SQLite: every search records
// its query, winner, confidence and how the decision was reached. The log
// answers "why did the matcher click that" after the fact and feeds weight
// tuning with real query distributions.
package matchlog

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hazyhaar/domtarget/dbopen"
	"github.com/hazyhaar/domtarget/idgen"
	"github.com/hazyhaar/domtarget/match"
)

// Schema is the matchlog database schema.
const Schema = `
CREATE TABLE IF NOT EXISTS decisions (
	id           TEXT PRIMARY KEY,
	context_id   TEXT NOT NULL,
	query        TEXT NOT NULL,
	kind         TEXT NOT NULL,
	top_selector TEXT NOT NULL DEFAULT '',
	confidence   REAL NOT NULL DEFAULT 0,
	decision     TEXT NOT NULL,
	duration_ms  INTEGER NOT NULL DEFAULT 0,
	created_at   TEXT NOT NULL DEFAULT (datetime('now'))
);
CREATE INDEX IF NOT EXISTS idx_decisions_context ON decisions(context_id, created_at);
CREATE INDEX IF NOT EXISTS idx_decisions_created ON decisions(created_at);
`

// Store is the matchlog database handle. Implements match.DecisionRecorder.
type Store struct {
	DB *sql.DB
}

// Open opens (or creates) the matchlog SQLite database at path, applies
// pragmas and the schema.
func Open(path string, opts ...dbopen.Option) (*Store, error) {
	allOpts := append([]dbopen.Option{
		dbopen.WithMkdirAll(),
		dbopen.WithSchema(Schema),
	}, opts...)

	db, err := dbopen.Open(path, allOpts...)
	if err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.DB.Close()
}

// Record inserts one decision. Retries on SQLITE_BUSY.
func (s *Store) Record(ctx context.Context, rec match.DecisionRecord) error {
	_, err := dbopen.Exec(ctx, s.DB,
		`INSERT INTO decisions (id, context_id, query, kind, top_selector, confidence, decision, duration_ms)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		idgen.New(), rec.ContextID, rec.Query, rec.Kind,
		rec.TopSelector, rec.Confidence, rec.Decision, rec.DurationMS)
	if err != nil {
		return fmt.Errorf("matchlog: record: %w", err)
	}
	return nil
}

// Entry is one logged decision.
type Entry struct {
	ID          string  `json:"id"`
	ContextID   string  `json:"context_id"`
	Query       string  `json:"query"`
	Kind        string  `json:"kind"`
	TopSelector string  `json:"top_selector"`
	Confidence  float64 `json:"confidence"`
	Decision    string  `json:"decision"`
	DurationMS  int64   `json:"duration_ms"`
	CreatedAt   string  `json:"created_at"`
}

// Recent returns the newest decisions, optionally filtered by context.
func (s *Store) Recent(ctx context.Context, contextID string, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `SELECT id, context_id, query, kind, top_selector, confidence, decision, duration_ms, created_at
		FROM decisions`
	args := []any{}
	if contextID != "" {
		query += ` WHERE context_id = ?`
		args = append(args, contextID)
	}
	query += ` ORDER BY created_at DESC, id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("matchlog: recent: %w", err)
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.ContextID, &e.Query, &e.Kind,
			&e.TopSelector, &e.Confidence, &e.Decision, &e.DurationMS, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("matchlog: scan: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Stats aggregates the decision log.
type Stats struct {
	Total         int64            `json:"total"`
	ByDecision    map[string]int64 `json:"by_decision"`
	ByContext     map[string]int64 `json:"by_context"`
	AvgConfidence float64          `json:"avg_confidence"`
	AvgDurationMS float64          `json:"avg_duration_ms"`
}

// Stats returns aggregate counts and averages over all logged decisions.
func (s *Store) Stats(ctx context.Context) (*Stats, error) {
	st := &Stats{
		ByDecision: make(map[string]int64),
		ByContext:  make(map[string]int64),
	}

	err := s.DB.QueryRowContext(ctx,
		`SELECT COUNT(*), COALESCE(AVG(confidence), 0), COALESCE(AVG(duration_ms), 0) FROM decisions`,
	).Scan(&st.Total, &st.AvgConfidence, &st.AvgDurationMS)
	if err != nil {
		return nil, fmt.Errorf("matchlog: stats: %w", err)
	}

	rows, err := s.DB.QueryContext(ctx,
		`SELECT decision, COUNT(*) FROM decisions GROUP BY decision`)
	if err != nil {
		return nil, fmt.Errorf("matchlog: stats by decision: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var d string
		var n int64
		if err := rows.Scan(&d, &n); err != nil {
			return nil, fmt.Errorf("matchlog: scan: %w", err)
		}
		st.ByDecision[d] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	crows, err := s.DB.QueryContext(ctx,
		`SELECT context_id, COUNT(*) FROM decisions GROUP BY context_id`)
	if err != nil {
		return nil, fmt.Errorf("matchlog: stats by context: %w", err)
	}
	defer crows.Close()
	for crows.Next() {
		var c string
		var n int64
		if err := crows.Scan(&c, &n); err != nil {
			return nil, fmt.Errorf("matchlog: scan: %w", err)
		}
		st.ByContext[c] = n
	}
	return st, crows.Err()
}

// Prune deletes decisions older than the retention window. Returns the
// number of rows removed.
func (s *Store) Prune(ctx context.Context, retention time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention).Format("2006-01-02 15:04:05")
	res, err := dbopen.Exec(ctx, s.DB,
		`DELETE FROM decisions WHERE created_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("matchlog: prune: %w", err)
	}
	return res.RowsAffected()
}
