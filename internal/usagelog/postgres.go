package usagelog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	createTableSQL = `
		CREATE TABLE IF NOT EXISTS generation_logs (
			id TEXT PRIMARY KEY,
			route TEXT NOT NULL,
			subject_kind TEXT NOT NULL,
			subject_id TEXT NOT NULL,
			provider TEXT NOT NULL,
			items INTEGER NOT NULL,
			failed INTEGER NOT NULL DEFAULT 0,
			duration_ms BIGINT NOT NULL,
			created_at TIMESTAMP WITH TIME ZONE DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_generation_logs_subject ON generation_logs(subject_id, created_at DESC);
	`

	insertSQL = `
		INSERT INTO generation_logs (id, route, subject_kind, subject_id, provider, items, failed, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	recentSQL = `
		SELECT id, route, subject_kind, subject_id, provider, items, failed, duration_ms, created_at
		FROM generation_logs
		WHERE subject_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
)

// connects to PostgreSQL and verifies the connection
func Connect(ctx context.Context, connString string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, connString)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return pool, nil
}

// implements Recorder using PostgreSQL
type PostgresRecorder struct {
	db *pgxpool.Pool
}

// creates a new PostgreSQL recorder
func NewPostgresRecorder(db *pgxpool.Pool) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// creates the required tables if they don't exist
func (r *PostgresRecorder) Initialize(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, createTableSQL); err != nil {
		return fmt.Errorf("failed to create generation_logs: %w", err)
	}

	return nil
}

func (r *PostgresRecorder) Record(ctx context.Context, entry *Entry) error {
	entry.stamp()

	_, err := r.db.Exec(ctx, insertSQL,
		entry.ID,
		entry.Route,
		string(entry.SubjectKind),
		entry.SubjectID,
		entry.Provider,
		entry.Items,
		entry.Failed,
		entry.Duration.Milliseconds(),
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert generation log: %w", err)
	}

	return nil
}

// inserts entries in one round trip
func (r *PostgresRecorder) RecordBatch(ctx context.Context, entries []Entry) error {
	batch := &pgx.Batch{}

	for i := range entries {
		e := &entries[i]
		e.stamp()
		batch.Queue(insertSQL,
			e.ID,
			e.Route,
			string(e.SubjectKind),
			e.SubjectID,
			e.Provider,
			e.Items,
			e.Failed,
			e.Duration.Milliseconds(),
			e.CreatedAt,
		)
	}

	if err := r.db.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("failed to insert generation logs: %w", err)
	}

	return nil
}

func (r *PostgresRecorder) Recent(ctx context.Context, subjectID string, limit int) ([]Entry, error) {
	rows, err := r.db.Query(ctx, recentSQL, subjectID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query generation logs: %w", err)
	}
	defer rows.Close()

	var entries []Entry

	for rows.Next() {
		var (
			e          Entry
			kind       string
			durationMs int64
		)

		if err := rows.Scan(&e.ID, &e.Route, &kind, &e.SubjectID, &e.Provider, &e.Items, &e.Failed, &durationMs, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan generation log: %w", err)
		}

		e.SubjectKind = SubjectKind(kind)
		e.Duration = time.Duration(durationMs) * time.Millisecond
		entries = append(entries, e)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read generation logs: %w", err)
	}

	return entries, nil
}

func (r *PostgresRecorder) Close() {
	r.db.Close()
}
