package audit

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/xkilldash9x/crucible-cli/api/schemas"
	"github.com/xkilldash9x/crucible-cli/internal/config"
)

// DB is the subset of pgxpool.Pool the sink needs. Narrowing the surface
// keeps the sink testable against pgxmock.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Close()
}

// PostgresSink persists audit entries to an append-only table. The table
// has no UPDATE or DELETE path by design.
type PostgresSink struct {
	db DB
}

const createAuditTable = `
	CREATE TABLE IF NOT EXISTS audit_entries (
		seq            BIGINT PRIMARY KEY,
		recorded_at    TIMESTAMPTZ NOT NULL,
		action         TEXT NOT NULL,
		actor          TEXT NOT NULL,
		correlation_id TEXT NOT NULL,
		candidate_id   TEXT,
		sandbox_id     TEXT,
		before_state   TEXT,
		after_state    TEXT,
		detail         TEXT
	);
	CREATE INDEX IF NOT EXISTS audit_entries_correlation_idx
		ON audit_entries (correlation_id, seq);
`

const insertAuditEntry = `
	INSERT INTO audit_entries
		(seq, recorded_at, action, actor, correlation_id, candidate_id, sandbox_id, before_state, after_state, detail)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10);
`

// NewPostgresSink connects to the configured database and ensures the
// audit table exists.
func NewPostgresSink(ctx context.Context, cfg config.PostgresAuditConfig) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: connecting to audit store: %v", schemas.ErrAuditPersistence, err)
	}
	sink := &PostgresSink{db: pool}
	if err := sink.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return sink, nil
}

// NewPostgresSinkWithDB wraps an existing connection, used by tests.
func NewPostgresSinkWithDB(db DB) *PostgresSink {
	return &PostgresSink{db: db}
}

func (s *PostgresSink) ensureSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, createAuditTable); err != nil {
		return fmt.Errorf("%w: creating audit schema: %v", schemas.ErrAuditPersistence, err)
	}
	return nil
}

// Write inserts one entry.
func (s *PostgresSink) Write(ctx context.Context, entry schemas.AuditEntry) error {
	_, err := s.db.Exec(ctx, insertAuditEntry,
		int64(entry.Seq),
		entry.Timestamp,
		string(entry.Action),
		string(entry.Actor),
		entry.CorrelationID,
		entry.CandidateID,
		entry.SandboxID,
		entry.Before,
		entry.After,
		entry.Detail,
	)
	if err != nil {
		return fmt.Errorf("%w: inserting entry %d: %v", schemas.ErrAuditPersistence, entry.Seq, err)
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresSink) Close() error {
	s.db.Close()
	return nil
}
