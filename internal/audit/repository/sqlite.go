package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"math"
	"time"

	"github.com/itsfredrick/vayva-platform-sub007/internal/audit/domain"
	"github.com/itsfredrick/vayva-platform-sub007/internal/db"
)

const sqliteEventColumns = `id, merchant_id, phone_e164, event_type, channel, source, metadata, created_at`

// SQLiteRepository stores compliance events in SQLite. Timestamps are Unix milliseconds.
type SQLiteRepository struct {
	db db.DBTX
}

// NewSQLiteRepository returns a compliance event repository on db, which may be a *sql.DB or a *sql.Tx.
func NewSQLiteRepository(conn db.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: conn}
}

func (r *SQLiteRepository) Create(ctx context.Context, e *domain.ComplianceEvent) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO compliance_events (`+sqliteEventColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.MerchantID, e.PhoneE164, string(e.EventType), e.Channel, e.Source,
		metadataOrEmpty(e.Metadata), db.ToMillis(e.CreatedAt),
	)
	return err
}

func (r *SQLiteRepository) ListByPhone(ctx context.Context, merchantID, phoneE164 string, after *domain.Cursor, limit int32) ([]*domain.ComplianceEvent, error) {
	afterMillis, afterID := sqliteCursor(after)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM compliance_events
		 WHERE merchant_id = ? AND phone_e164 = ?
		   AND (created_at > ? OR (created_at = ? AND id > ?))
		 ORDER BY created_at, id LIMIT ?`,
		merchantID, phoneE164, afterMillis, afterMillis, afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSQLiteEvents(rows)
}

func (r *SQLiteRepository) ListByRange(ctx context.Context, merchantID string, from, to time.Time, after *domain.Cursor, limit int32) ([]*domain.ComplianceEvent, error) {
	afterMillis, afterID := sqliteCursor(after)
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+sqliteEventColumns+` FROM compliance_events
		 WHERE merchant_id = ? AND created_at >= ? AND created_at < ?
		   AND (created_at > ? OR (created_at = ? AND id > ?))
		 ORDER BY created_at, id LIMIT ?`,
		merchantID, db.ToMillis(from), db.ToMillis(to), afterMillis, afterMillis, afterID, limit,
	)
	if err != nil {
		return nil, err
	}
	return scanSQLiteEvents(rows)
}

// sqliteCursor returns bind values for the keyset condition. A nil cursor matches every row.
func sqliteCursor(c *domain.Cursor) (int64, string) {
	if c == nil {
		return math.MinInt64, ""
	}
	return db.ToMillis(c.CreatedAt), c.ID
}

func scanSQLiteEvents(rows *sql.Rows) ([]*domain.ComplianceEvent, error) {
	defer rows.Close()
	var out []*domain.ComplianceEvent
	for rows.Next() {
		var (
			e         domain.ComplianceEvent
			eventType string
			meta      string
			createdAt int64
		)
		if err := rows.Scan(&e.ID, &e.MerchantID, &e.PhoneE164, &eventType, &e.Channel, &e.Source, &meta, &createdAt); err != nil {
			return nil, err
		}
		e.EventType = domain.EventType(eventType)
		e.Metadata = json.RawMessage(meta)
		e.CreatedAt = db.FromMillis(createdAt)
		out = append(out, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
