// Package store persists extraction runs in PostgreSQL so they can be reviewed later.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/emu-entities/internal/aggregate"
	"github.com/emu-entities/internal/debug"
)

// ErrRunNotFound is returned by LoadRun for an unknown run id
var ErrRunNotFound = errors.New("run not found")

const schema = `
CREATE TABLE IF NOT EXISTS extraction_run (
	run_id           BIGSERIAL PRIMARY KEY,
	run_label        TEXT NOT NULL DEFAULT '',
	source_file      TEXT NOT NULL,
	processor        TEXT NOT NULL,
	clustered        BOOLEAN NOT NULL DEFAULT FALSE,
	entity_count     INTEGER NOT NULL DEFAULT 0,
	occurrence_count INTEGER NOT NULL DEFAULT 0,
	created_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS entity (
	entity_id  BIGSERIAL PRIMARY KEY,
	run_id     BIGINT NOT NULL REFERENCES extraction_run(run_id) ON DELETE CASCADE,
	position   INTEGER NOT NULL,
	text       TEXT NOT NULL,
	label      TEXT NOT NULL,
	alternates TEXT[] NOT NULL DEFAULT '{}',
	UNIQUE (run_id, text)
);

CREATE TABLE IF NOT EXISTS entity_occurrence (
	entity_id BIGINT NOT NULL REFERENCES entity(entity_id) ON DELETE CASCADE,
	seq       INTEGER NOT NULL,
	text      TEXT NOT NULL,
	record_id TEXT NOT NULL,
	label     TEXT NOT NULL,
	context   TEXT NOT NULL,
	PRIMARY KEY (entity_id, seq)
);

CREATE INDEX IF NOT EXISTS idx_entity_run ON entity(run_id, position);
`

// RunInfo describes one extraction run
type RunInfo struct {
	ID          int64     `json:"id"`
	Label       string    `json:"label"`
	SourceFile  string    `json:"source_file"`
	Processor   string    `json:"processor"`
	Clustered   bool      `json:"clustered"`
	Entities    int       `json:"entities"`
	Occurrences int       `json:"occurrences"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store reads and writes runs
type Store struct {
	db *sql.DB
}

// New wraps an open database handle
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the run tables when missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}
	return nil
}

// SaveRun stores set under a new run in one transaction and returns the run id
func (s *Store) SaveRun(ctx context.Context, info RunInfo, set *aggregate.Set) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	var runID int64
	err = tx.QueryRowContext(ctx, `
		INSERT INTO extraction_run (run_label, source_file, processor, clustered, entity_count, occurrence_count)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING run_id
	`, info.Label, info.SourceFile, info.Processor, info.Clustered, set.Len(), set.Occurrences()).Scan(&runID)
	if err != nil {
		return 0, fmt.Errorf("failed to create run: %w", err)
	}

	entityStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity (run_id, position, text, label, alternates)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING entity_id
	`)
	if err != nil {
		return 0, err
	}
	defer entityStmt.Close()

	occurrenceStmt, err := tx.PrepareContext(ctx, `
		INSERT INTO entity_occurrence (entity_id, seq, text, record_id, label, context)
		VALUES ($1, $2, $3, $4, $5, $6)
	`)
	if err != nil {
		return 0, err
	}
	defer occurrenceStmt.Close()

	for position, e := range set.Entries() {
		alternates := e.Aggregate.Alternate
		if alternates == nil {
			alternates = []string{}
		}

		var entityID int64
		err := entityStmt.QueryRowContext(ctx, runID, position, e.Text, e.Aggregate.Label, pq.Array(alternates)).Scan(&entityID)
		if err != nil {
			return 0, fmt.Errorf("failed to save entity %q: %w", e.Text, err)
		}

		for seq, occ := range e.Aggregate.Occurrences {
			if _, err := occurrenceStmt.ExecContext(ctx, entityID, seq, occ.Text, occ.Record, occ.Label, occ.Context); err != nil {
				return 0, fmt.Errorf("failed to save occurrence of %q: %w", e.Text, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}

	debug.Info("saved run", "run", runID, "entities", set.Len(), "occurrences", set.Occurrences())
	return runID, nil
}

// ListRuns returns every run, newest first
func (s *Store) ListRuns(ctx context.Context) ([]RunInfo, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, run_label, source_file, processor, clustered, entity_count, occurrence_count, created_at
		FROM extraction_run
		ORDER BY run_id DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []RunInfo
	for rows.Next() {
		var r RunInfo
		if err := rows.Scan(&r.ID, &r.Label, &r.SourceFile, &r.Processor, &r.Clustered, &r.Entities, &r.Occurrences, &r.CreatedAt); err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// LoadRun rebuilds the entity set stored under runID in its original order
func (s *Store) LoadRun(ctx context.Context, runID int64) (*aggregate.Set, error) {
	var exists bool
	if err := s.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM extraction_run WHERE run_id = $1)`, runID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: %d", ErrRunNotFound, runID)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT e.text, e.label, e.alternates, o.text, o.record_id, o.label, o.context
		FROM entity e
		LEFT JOIN entity_occurrence o ON o.entity_id = e.entity_id
		WHERE e.run_id = $1
		ORDER BY e.position, o.seq
	`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	set := aggregate.NewSet()
	for rows.Next() {
		var text, label string
		var alternates []string
		var occText, occRecord, occLabel, occContext sql.NullString
		if err := rows.Scan(&text, &label, pq.Array(&alternates), &occText, &occRecord, &occLabel, &occContext); err != nil {
			return nil, err
		}

		agg, ok := set.Get(text)
		if !ok {
			agg = &aggregate.Aggregate{Label: label}
			if len(alternates) > 0 {
				agg.Alternate = alternates
			}
			set.Put(text, agg)
			agg, _ = set.Get(text)
		}
		if occRecord.Valid {
			agg.Occurrences = append(agg.Occurrences, aggregate.Occurrence{
				Text:    occText.String,
				Record:  occRecord.String,
				Label:   occLabel.String,
				Context: occContext.String,
			})
		}
	}
	return set, rows.Err()
}

// CountRuns returns the number of stored runs
func (s *Store) CountRuns(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM extraction_run`).Scan(&n)
	return n, err
}
