// Package postgres implements the transcript cache on PostgreSQL.
//
// Usage:
//
//	st, err := postgres.NewStore(ctx, dsn)
//	if err != nil { ... }
//	defer st.Close()
//
//	e, err := st.Get(ctx, store.Key{AudioSHA256: sum, Engine: "whisper"})
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/segmentscribe/internal/store"
)

var _ store.Store = (*Store)(nil)

// Store is a [store.Store] backed by a single [pgxpool.Pool]. All methods are
// safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore connects to dsn, verifies the connection and runs [Migrate].
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

const selectColumns = `audio_sha256, engine, variant, source_path, text, language, segments, audio_duration_ns, created_at`

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, key store.Key) (store.Entry, error) {
	q := `SELECT ` + selectColumns + `
		FROM   transcripts
		WHERE  audio_sha256 = $1 AND engine = $2 AND variant = $3`

	rows, err := s.pool.Query(ctx, q, key.AudioSHA256, key.Engine, key.Variant)
	if err != nil {
		return store.Entry{}, fmt.Errorf("postgres store: get: %w", err)
	}
	e, err := pgx.CollectExactlyOneRow(rows, scanEntry)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.Entry{}, fmt.Errorf("postgres store: get %s/%s: %w", key.Engine, key.AudioSHA256, store.ErrNotFound)
	}
	if err != nil {
		return store.Entry{}, fmt.Errorf("postgres store: get: %w", err)
	}
	return e, nil
}

// Put implements [store.Store]. An existing entry with the same key is
// replaced and its created_at refreshed.
func (s *Store) Put(ctx context.Context, e store.Entry) error {
	const q = `
		INSERT INTO transcripts
		    (audio_sha256, engine, variant, source_path, text, language, segments, audio_duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (audio_sha256, engine, variant) DO UPDATE SET
		    source_path       = EXCLUDED.source_path,
		    text              = EXCLUDED.text,
		    language          = EXCLUDED.language,
		    segments          = EXCLUDED.segments,
		    audio_duration_ns = EXCLUDED.audio_duration_ns,
		    created_at        = now()`

	segments := e.Segments
	if segments == nil {
		segments = []store.Segment{}
	}
	_, err := s.pool.Exec(ctx, q,
		e.AudioSHA256,
		e.Engine,
		e.Variant,
		e.SourcePath,
		e.Text,
		e.Language,
		segments,
		e.AudioDuration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("postgres store: put: %w", err)
	}
	return nil
}

// Delete implements [store.Store].
func (s *Store) Delete(ctx context.Context, key store.Key) error {
	const q = `DELETE FROM transcripts WHERE audio_sha256 = $1 AND engine = $2 AND variant = $3`
	if _, err := s.pool.Exec(ctx, q, key.AudioSHA256, key.Engine, key.Variant); err != nil {
		return fmt.Errorf("postgres store: delete: %w", err)
	}
	return nil
}

// Search implements [store.Store] with PostgreSQL full-text search. The query
// is passed to plainto_tsquery so no operator syntax is needed.
func (s *Store) Search(ctx context.Context, query string, limit int) ([]store.Entry, error) {
	args := []any{query}
	q := `SELECT ` + selectColumns + `
		FROM   transcripts
		WHERE  to_tsvector('simple', text) @@ plainto_tsquery('simple', $1)
		ORDER  BY created_at DESC`
	if limit > 0 {
		args = append(args, limit)
		q += "\nLIMIT $2"
	}

	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: search: %w", err)
	}
	entries, err := pgx.CollectRows(rows, scanEntry)
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan rows: %w", err)
	}
	if entries == nil {
		entries = []store.Entry{}
	}
	return entries, nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}

func scanEntry(row pgx.CollectableRow) (store.Entry, error) {
	var (
		e          store.Entry
		durationNS int64
	)
	if err := row.Scan(
		&e.AudioSHA256,
		&e.Engine,
		&e.Variant,
		&e.SourcePath,
		&e.Text,
		&e.Language,
		&e.Segments,
		&durationNS,
		&e.CreatedAt,
	); err != nil {
		return store.Entry{}, err
	}
	e.AudioDuration = time.Duration(durationNS)
	return e, nil
}
