package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlTranscripts = `
CREATE TABLE IF NOT EXISTS transcripts (
    audio_sha256      TEXT         NOT NULL,
    engine            TEXT         NOT NULL,
    variant           TEXT         NOT NULL DEFAULT '',
    source_path       TEXT         NOT NULL DEFAULT '',
    text              TEXT         NOT NULL,
    language          TEXT         NOT NULL DEFAULT '',
    segments          JSONB        NOT NULL DEFAULT '[]'::jsonb,
    audio_duration_ns BIGINT       NOT NULL DEFAULT 0,
    created_at        TIMESTAMPTZ  NOT NULL DEFAULT now(),
    PRIMARY KEY (audio_sha256, engine, variant)
);

CREATE INDEX IF NOT EXISTS idx_transcripts_created_at
    ON transcripts (created_at);

CREATE INDEX IF NOT EXISTS idx_transcripts_fts
    ON transcripts USING GIN (to_tsvector('simple', text));
`

// Migrate creates the transcripts table and its indexes. It is idempotent and
// safe to call on every start.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlTranscripts); err != nil {
		return fmt.Errorf("postgres migrate: %w", err)
	}
	return nil
}
