package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
)

const pgEventColumns = `id, merchant_id, phone_e164, event_type, channel, source, metadata, created_at`

type PostgresRepository struct {
	db db.DBTX
}

// NewPostgresRepository returns a compliance event repository on db, which may be a *sql.DB or a *sql.Tx.
func NewPostgresRepository(conn db.DBTX) *PostgresRepository {
	return &PostgresRepository{db: conn}
}

// Create inserts the event. The event must have ID and CreatedAt set.
func (r *PostgresRepository) Create(ctx context.Context, e *domain.ComplianceEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO compliance_events (`+pgEventColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb, $8)`,
		e.ID, e.MerchantID, e.PhoneE164, string(e.EventType), e.Channel, e.Source,
		metadataOrEmpty(e.Metadata), e.CreatedAt.UTC(),
	)
	return err
}

// ListByPhone returns events for (merchantID, phoneE164) after the cursor, ordered by created_at, id.
// Returns (nil, error) only on database errors.
func (r *PostgresRepository) ListByPhone(ctx context.Context, merchantID, phoneE164 string, after *domain.Cursor, limit int32) ([]*domain.ComplianceEvent, error) {
	afterAt, afterID := pgCursor(after)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgEventColumns+` FROM compliance_events
		 WHERE merchant_id = $1 AND phone_e164 = $2
		   AND (created_at, id) > ($3::timestamptz, $4::text)
		 ORDER BY created_at, id LIMIT $5`,
		merchantID, phoneE164, afterAt, afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanPostgresEvents(rows)
}

// ListByRange returns a merchant's events in [from, to) after the cursor, ordered by created_at, id.
func (r *PostgresRepository) ListByRange(ctx context.Context, merchantID string, from, to time.Time, after *domain.Cursor, limit int32) ([]*domain.ComplianceEvent, error) {
	afterAt, afterID := pgCursor(after)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+pgEventColumns+` FROM compliance_events
		 WHERE merchant_id = $1 AND created_at >= $2 AND created_at < $3
		   AND (created_at, id) > ($4::timestamptz, $5::text)
		 ORDER BY created_at, id LIMIT $6`,
		merchantID, from.UTC(), to.UTC(), afterAt, afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanPostgresEvents(rows)
}

// pgCursor returns bind values for the row comparison. A nil cursor sorts before every row.
func pgCursor(c *domain.Cursor) (time.Time, string) {
	if c == nil {
		return time.Unix(0, 0).UTC(), ""
	}
	return c.CreatedAt.UTC(), c.ID
}

func scanPostgresEvents(rows *sql.Rows) ([]*domain.ComplianceEvent, error) {
	defer rows.Close()
	var out []*domain.ComplianceEvent
	for rows.Next() {
		var (
			e         domain.ComplianceEvent
			eventType string
			meta      []byte
			createdAt time.Time
		)
		if err := rows.Scan(&e.ID, &e.MerchantID, &e.PhoneE164, &eventType, &e.Channel, &e.Source, &meta, &createdAt); err != nil {
			return nil, err
		}
		e.EventType = domain.EventType(eventType)
		e.Metadata = json.RawMessage(meta)
		e.CreatedAt = createdAt.UTC()
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
