package services

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/internhub/backend/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditService_Record(t *testing.T) {
	db, mock := newMockDB(t)
	log := logrus.New()
	log.SetOutput(io.Discard)
	svc := NewAuditService(db, log)

	mock.ExpectQuery(`INSERT INTO "audit_logs"`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(uuid.New().String()))

	ctx := WithRequestMeta(context.Background(), "203.0.113.7", "curl/8.0")
	userID := uuid.New()
	svc.Record(ctx, AuditEntry{
		UserID:  &userID,
		Action:  models.AuditRecoveryCodeMismatch,
		Phone:   "********3210",
		Details: map[string]interface{}{"remaining_attempts": 2},
	})

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditService_RecordFailureIsLogged(t *testing.T) {
	db, mock := newMockDB(t)
	log, hook := test.NewNullLogger()
	svc := NewAuditService(db, log)

	mock.ExpectQuery(`INSERT INTO "audit_logs"`).WillReturnError(errors.New("disk full"))

	svc.Record(context.Background(), AuditEntry{Action: models.AuditRecoveryRequested})

	require.NotNil(t, hook.LastEntry())
	assert.Equal(t, logrus.WarnLevel, hook.LastEntry().Level)
	assert.Equal(t, models.AuditRecoveryRequested, hook.LastEntry().Data["action"])
}

func TestRequestMeta(t *testing.T) {
	meta := requestMetaFrom(context.Background())
	assert.Empty(t, meta.ip)

	meta = requestMetaFrom(WithRequestMeta(context.Background(), "10.0.0.1", "Mozilla"))
	assert.Equal(t, "10.0.0.1", meta.ip)
	assert.Equal(t, "Mozilla", meta.userAgent)
}

func TestAuditService_GetRecentActions(t *testing.T) {
	db, mock := newMockDB(t)
	svc := NewAuditService(db, logrus.New())

	mock.ExpectQuery(`SELECT count\(\*\) FROM "audit_logs" WHERE action = \$1`).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery(`SELECT \* FROM "audit_logs" WHERE action = \$1 ORDER BY created_at DESC`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "action", "phone"}).
			AddRow(uuid.New().String(), models.AuditRecoveryCompleted, "********3210"))

	logs, total, err := svc.GetRecentActions(context.Background(), 1, 20, nil, models.AuditRecoveryCompleted)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	require.Len(t, logs, 1)
	assert.Equal(t, "********3210", logs[0].Phone)
}
