package services

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/learnhub/learnhub/internal/database/testutil"
	"github.com/learnhub/learnhub/internal/models"
)

func TestAuditServiceLogAndList(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	userID := "4b8d2f3e-0a51-4d4c-9f5e-6f1c2b7a9e10"
	ctx := context.Background()
	require.NoError(t, svc.Log(ctx, AuditEntry{
		UserID:    &userID,
		Username:  "priya",
		Action:    "session.created",
		Result:    "success",
		IPAddress: " 10.0.0.7 ",
		Metadata:  map[string]any{"role": "student"},
	}))
	require.NoError(t, svc.Log(ctx, AuditEntry{
		Username: "priya",
		Action:   "login.failed",
		Result:   "failure",
	}))

	logs, total, err := svc.List(ctx, AuditListOptions{Page: 1, PageSize: 10})
	require.NoError(t, err)
	require.EqualValues(t, 2, total)
	require.Len(t, logs, 2)

	filtered, total, err := svc.List(ctx, AuditListOptions{Filters: AuditFilters{Action: "session.created"}})
	require.NoError(t, err)
	require.EqualValues(t, 1, total)
	require.Equal(t, "10.0.0.7", filtered[0].IPAddress)
	require.NotNil(t, filtered[0].UserID)
	require.Equal(t, userID, *filtered[0].UserID)

	var metadata map[string]any
	require.NoError(t, json.Unmarshal(filtered[0].Metadata, &metadata))
	require.Equal(t, "student", metadata["role"])
}

func TestAuditServiceLogRequiresActionAndResult(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	svc, err := NewAuditService(db)
	require.NoError(t, err)

	require.Error(t, svc.Log(context.Background(), AuditEntry{Result: "success"}))
	require.Error(t, svc.Log(context.Background(), AuditEntry{Action: "session.ended"}))
}

func TestAuditServiceCleanupOlderThan(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	now := time.Date(2024, 6, 1, 3, 0, 0, 0, time.UTC)
	svc, err := NewAuditServiceWithClock(db, func() time.Time { return now })
	require.NoError(t, err)

	require.NoError(t, db.Create(&models.AuditLog{
		Action:    "session.ended",
		Result:    "success",
		CreatedAt: now.AddDate(0, 0, -10),
	}).Error)
	require.NoError(t, db.Create(&models.AuditLog{
		Action:    "session.created",
		Result:    "success",
		CreatedAt: now.AddDate(0, 0, -1),
	}).Error)

	rows, err := svc.CleanupOlderThan(context.Background(), 5)
	require.NoError(t, err)
	require.EqualValues(t, 1, rows)

	_, err = svc.CleanupOlderThan(context.Background(), 0)
	require.Error(t, err)
}
