package archive

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func setupMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock, *LedgerRepository) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	logger := zap.NewNop()
	repo := NewLedgerRepository(db, logger)

	return db, mock, repo
}

func TestEnsureSchema(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`CREATE TABLE IF NOT EXISTS archive_uploads`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.EnsureSchema(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_Upsert(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	uploaded := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	entry := LedgerEntry{
		ObjectKey:   "telemetry/A/2024-01-01.csv",
		DeviceID:    "A",
		Day:         "2024-01-01",
		Size:        128,
		Fingerprint: "128:1",
		Action:      ActionCreate,
		UploadedAt:  uploaded,
	}

	mock.ExpectExec(`INSERT INTO archive_uploads`).
		WithArgs(entry.ObjectKey, "A", "2024-01-01", int64(128), "128:1", ActionCreate, uploaded).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Record(context.Background(), entry))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRecord_Error(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	mock.ExpectExec(`INSERT INTO archive_uploads`).
		WillReturnError(errors.New("connection reset"))

	err := repo.Record(context.Background(), LedgerEntry{ObjectKey: "k"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "connection reset")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestListByDevice(t *testing.T) {
	db, mock, repo := setupMockDB(t)
	defer db.Close()

	uploaded := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	rows := sqlmock.NewRows([]string{"object_key", "device_id", "day", "size_bytes", "fingerprint", "action", "uploaded_at"}).
		AddRow("telemetry/A/2024-01-02.csv", "A", "2024-01-02", 10, "10:1", ActionUpdate, uploaded).
		AddRow("telemetry/A/2024-01-01.csv", "A", "2024-01-01", 20, "20:1", ActionCreate, uploaded)

	mock.ExpectQuery(`SELECT object_key`).
		WithArgs("A").
		WillReturnRows(rows)

	entries, err := repo.ListByDevice(context.Background(), "A")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "2024-01-02", entries[0].Day)
	assert.Equal(t, int64(20), entries[1].Size)
	assert.Equal(t, ActionCreate, entries[1].Action)
	assert.NoError(t, mock.ExpectationsWereMet())
}
