package database

import (
	"context"
	"testing"
	"time"

	"tripdesk/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationQueue(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	task := &models.NotificationTask{
		TaskType:  models.TaskNotifyCaptured,
		Kind:      string(models.KindHotel),
		PaymentID: "chg_1",
		Payload:   `{"payment_id":"chg_1"}`,
	}
	require.NoError(t, db.CreateNotificationTask(ctx, task))
	assert.NotZero(t, task.ID)
	assert.Equal(t, models.TaskStatusPending, task.Status)

	future := time.Now().Add(time.Hour)
	later := &models.NotificationTask{TaskType: models.TaskNotifyFailed, Kind: "tour", PaymentID: "chg_2", NextRetryAt: &future}
	require.NoError(t, db.CreateNotificationTask(ctx, later))

	tasks, err := db.GetPendingNotificationTasks(ctx, 10)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, task.ID, tasks[0].ID)

	t.Run("Retry", func(t *testing.T) {
		next := time.Now().Add(-time.Second)
		require.NoError(t, db.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusRetry, "telegram down", &next))

		got, err := db.GetNotificationTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusRetry, got.Status)
		assert.Equal(t, 1, got.RetryCount)
		require.NotNil(t, got.LastError)
		assert.Equal(t, "telegram down", *got.LastError)
	})

	t.Run("Completed", func(t *testing.T) {
		require.NoError(t, db.UpdateNotificationTaskStatus(ctx, task.ID, models.TaskStatusCompleted, "", nil))
		got, err := db.GetNotificationTask(ctx, task.ID)
		require.NoError(t, err)
		assert.Equal(t, models.TaskStatusCompleted, got.Status)
		assert.NotNil(t, got.ProcessedAt)
		assert.Nil(t, got.LastError)
	})

	t.Run("Failed", func(t *testing.T) {
		require.NoError(t, db.UpdateNotificationTaskStatus(ctx, later.ID, models.TaskStatusFailed, "gave up", nil))
		failed, err := db.GetFailedNotificationTasks(ctx)
		require.NoError(t, err)
		require.Len(t, failed, 1)
		assert.Equal(t, later.ID, failed[0].ID)
	})

	_, err = db.GetNotificationTask(ctx, 9999)
	assert.ErrorIs(t, err, ErrNotFound)
}
