package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"github.com/xkilldash9x/quizwalk/internal/capture"
)

// DBPool abstracts pgxpool.Pool so the store can be driven by pgxmock in tests.
type DBPool interface {
	Ping(ctx context.Context) error
	Begin(ctx context.Context) (pgx.Tx, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const (
	sqlCreateSchema = `
        CREATE TABLE IF NOT EXISTS captured_payloads (
            run_id      UUID        NOT NULL,
            sequence    INTEGER     NOT NULL,
            url         TEXT        NOT NULL,
            body        BYTEA       NOT NULL,
            captured_at TIMESTAMPTZ NOT NULL,
            PRIMARY KEY (run_id, sequence)
        );
    `
	sqlInsertPayload = `
        INSERT INTO captured_payloads (run_id, sequence, url, body, captured_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (run_id, sequence) DO UPDATE SET
            url = EXCLUDED.url,
            body = EXCLUDED.body,
            captured_at = EXCLUDED.captured_at;
    `
	sqlListPayloads = `
        SELECT sequence, url, body, captured_at
        FROM captured_payloads
        WHERE run_id = $1
        ORDER BY sequence;
    `
)

// Store is a capture.Sink backed by PostgreSQL. Every payload written by one
// Store shares a run id.
type Store struct {
	pool  DBPool
	log   *zap.Logger
	runID uuid.UUID
}

// New creates a store and verifies the connection.
func New(ctx context.Context, pool DBPool, logger *zap.Logger) (*Store, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &Store{
		pool:  pool,
		log:   logger.Named("store"),
		runID: uuid.New(),
	}
	s.log.Info("Connected to payload store.", zap.String("run_id", s.runID.String()))
	return s, nil
}

// RunID identifies the payloads written through this store.
func (s *Store) RunID() uuid.UUID { return s.runID }

// EnsureSchema creates the payload table if it is missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, sqlCreateSchema); err != nil {
		return fmt.Errorf("failed to create captured_payloads: %w", err)
	}
	return nil
}

// Write implements capture.Sink.
func (s *Store) Write(ctx context.Context, p capture.Payload) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if rollbackErr := tx.Rollback(ctx); rollbackErr != nil && !errors.Is(rollbackErr, pgx.ErrTxClosed) {
			s.log.Error("Failed to rollback transaction", zap.Error(rollbackErr))
		}
	}()

	body := p.Body
	if body == nil {
		body = []byte{}
	}
	if _, err := tx.Exec(ctx, sqlInsertPayload, s.runID, p.Sequence, p.URL, body, p.CapturedAt.UTC()); err != nil {
		return fmt.Errorf("failed to insert payload %d: %w", p.Sequence, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Payloads lists the payloads of a run in sequence order.
func (s *Store) Payloads(ctx context.Context, runID uuid.UUID) ([]capture.Payload, error) {
	rows, err := s.pool.Query(ctx, sqlListPayloads, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query payloads: %w", err)
	}
	defer rows.Close()

	var out []capture.Payload
	for rows.Next() {
		var p capture.Payload
		if err := rows.Scan(&p.Sequence, &p.URL, &p.Body, &p.CapturedAt); err != nil {
			return nil, fmt.Errorf("failed to scan payload: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payloads: %w", err)
	}
	return out, nil
}

// Close is a no-op; the caller owns the pool.
func (s *Store) Close() error { return nil }
