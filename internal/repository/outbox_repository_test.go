package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"
	"github.com/teamboard/teamboard-api/internal/models"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// mockDB wires a sqlmock connection behind a GORM handle so the SQL the
// repository emits can be asserted without a running server.
func mockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{})
	require.NoError(t, err)

	return db, mock
}

func TestOutboxRepository_ListPendingFiltersByStatus(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewOutboxRepository(db)

	rows := sqlmock.NewRows([]string{"id", "event_type", "project_id", "payload", "status", "retry_count"}).
		AddRow(1, "TaskCreated", 42, `{"id":1}`, string(models.OutboxPending), 0).
		AddRow(2, "TaskStatusChanged", 42, `{"id":1}`, string(models.OutboxPending), 1)

	mock.ExpectQuery("SELECT \\* FROM `outbox_events` WHERE status = \\?").
		WillReturnRows(rows)

	events, err := repo.ListPending(context.Background(), 10)

	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, "TaskCreated", events[0].EventType)
	require.Equal(t, uint64(42), events[0].ProjectID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOutboxRepository_MarkSentUpdatesStatus(t *testing.T) {
	db, mock := mockDB(t)
	repo := NewOutboxRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE `outbox_events` SET").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.MarkSent(context.Background(), 7))
	require.NoError(t, mock.ExpectationsWereMet())
}
