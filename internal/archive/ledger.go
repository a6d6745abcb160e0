package archive

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// LedgerEntry is one uploaded object.
type LedgerEntry struct {
	ObjectKey   string
	DeviceID    string
	Day         string
	Size        int64
	Fingerprint string
	Action      string // create or update
	UploadedAt  time.Time
}

// LedgerRepository stores upload history in Postgres.
type LedgerRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewLedgerRepository creates a ledger repository.
func NewLedgerRepository(db *sql.DB, logger *zap.Logger) *LedgerRepository {
	return &LedgerRepository{
		db:     db,
		logger: logger,
	}
}

// EnsureSchema creates the archive_uploads table if it is missing.
func (r *LedgerRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS archive_uploads (
			object_key   TEXT PRIMARY KEY,
			device_id    TEXT NOT NULL,
			day          DATE NOT NULL,
			size_bytes   BIGINT NOT NULL,
			fingerprint  TEXT NOT NULL,
			action       TEXT NOT NULL,
			uploaded_at  TIMESTAMPTZ NOT NULL,
			upload_count INTEGER NOT NULL DEFAULT 1
		)`)
	if err != nil {
		return fmt.Errorf("failed to create archive_uploads: %w", err)
	}
	return nil
}

// Record upserts e by object key.
func (r *LedgerRepository) Record(ctx context.Context, e LedgerEntry) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO archive_uploads
			(object_key, device_id, day, size_bytes, fingerprint, action, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (object_key) DO UPDATE SET
			size_bytes = EXCLUDED.size_bytes,
			fingerprint = EXCLUDED.fingerprint,
			action = EXCLUDED.action,
			uploaded_at = EXCLUDED.uploaded_at,
			upload_count = archive_uploads.upload_count + 1`,
		e.ObjectKey, e.DeviceID, e.Day, e.Size, e.Fingerprint, e.Action, e.UploadedAt,
	)
	if err != nil {
		r.logger.Error("Failed to record upload",
			zap.String("object_key", e.ObjectKey),
			zap.Error(err),
		)
		return fmt.Errorf("failed to record upload %s: %w", e.ObjectKey, err)
	}
	return nil
}

// ListByDevice returns the uploads for deviceID, newest day first.
func (r *LedgerRepository) ListByDevice(ctx context.Context, deviceID string) ([]LedgerEntry, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT object_key, device_id, to_char(day, 'YYYY-MM-DD'), size_bytes, fingerprint, action, uploaded_at
		FROM archive_uploads
		WHERE device_id = $1
		ORDER BY day DESC`,
		deviceID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query uploads: %w", err)
	}
	defer rows.Close()

	var entries []LedgerEntry
	for rows.Next() {
		var e LedgerEntry
		if err := rows.Scan(&e.ObjectKey, &e.DeviceID, &e.Day, &e.Size, &e.Fingerprint, &e.Action, &e.UploadedAt); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate uploads: %w", err)
	}
	return entries, nil
}
