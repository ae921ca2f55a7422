package failure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/example/multichannel/internal/messaging"
)

const insertFailure = `
INSERT INTO delivery_failures (
channel,
message_id,
recipient_id,
media_type,
attempts,
last_error,
first_failed_at,
failed_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (channel, message_id) DO NOTHING
`

const selectFailure = `
SELECT channel, message_id, recipient_id, media_type, attempts, last_error, first_failed_at, failed_at
FROM delivery_failures
WHERE channel = $1 AND message_id = $2
`

var ErrNotConfigured = errors.New("postgres pool not configured")

// querier is the part of *pgxpool.Pool the sink runs statements on.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSink keeps a durable ledger of permanently failed deliveries.
type PostgresSink struct {
	db     querier
	logger zerolog.Logger
}

func NewPostgresSink(pool *pgxpool.Pool, logger zerolog.Logger) (*PostgresSink, error) {
	if pool == nil {
		return nil, ErrNotConfigured
	}
	return &PostgresSink{db: pool, logger: logger}, nil
}

func (s *PostgresSink) RecordFailure(ctx context.Context, rec messaging.FailureRecord) {
	if _, err := s.Insert(ctx, rec); err != nil {
		s.logger.Error().Err(err).Str("message_id", rec.MessageID).Msg("failed to persist delivery failure")
	}
}

// Insert stores rec and reports whether it was new. A record already present
// for the same (channel, message_id) is left unchanged.
func (s *PostgresSink) Insert(ctx context.Context, rec messaging.FailureRecord) (bool, error) {
	tag, err := s.db.Exec(ctx, insertFailure,
		string(rec.Variant),
		rec.MessageID,
		rec.RecipientID,
		string(rec.MediaType),
		rec.Attempts,
		rec.LastError,
		rec.FirstFailed,
		rec.FailedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert failure: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

// Get returns the ledger entry for (v, messageID). A missing entry wraps
// pgx.ErrNoRows.
func (s *PostgresSink) Get(ctx context.Context, v messaging.Variant, messageID string) (messaging.FailureRecord, error) {
	var (
		channel     string
		rec         messaging.FailureRecord
		mediaType   string
		firstFailed time.Time
		failedAt    time.Time
	)
	row := s.db.QueryRow(ctx, selectFailure, string(v), messageID)
	if err := row.Scan(&channel, &rec.MessageID, &rec.RecipientID, &mediaType, &rec.Attempts, &rec.LastError, &firstFailed, &failedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return messaging.FailureRecord{}, fmt.Errorf("failure %s/%s: %w", v, messageID, err)
		}
		return messaging.FailureRecord{}, fmt.Errorf("fetch failure: %w", err)
	}
	rec.Variant = messaging.Variant(channel)
	rec.MediaType = messaging.MediaType(mediaType)
	rec.FirstFailed = firstFailed
	rec.FailedAt = failedAt
	return rec, nil
}
