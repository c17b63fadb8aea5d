package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/models"
	"github.com/franpass87/FP-Social-Auto-Publisher-sub000/internal/retry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleRetryItem(now time.Time) *models.RetryItem {
	return &models.RetryItem{
		ID:        "r-1",
		Operation: models.OperationPublishChannel,
		Context: models.RetryContext{
			ContentItemID: 42,
			Channel:       models.ChannelInstagram,
			ClientID:      7,
			RetryCount:    1,
		},
		ErrorCode:   "timeout",
		Severity:    "medium",
		RetryCount:  1,
		Strategy:    "linear",
		NextAttempt: now.Add(2 * time.Second),
		CreatedAt:   now,
	}
}

func TestRetryItemInsertTrimsOverCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").
		WithArgs(int64(retryQueueLockKey)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO retry_items").
		WithArgs("r-1", models.OperationPublishChannel, sqlmock.AnyArg(), "timeout", "", "medium",
			1, "linear", now.Add(2*time.Second), now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM retry_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1001))
	mock.ExpectExec("DELETE FROM retry_items\\s+WHERE id IN").
		WithArgs(900).
		WillReturnResult(sqlmock.NewResult(0, 101))
	mock.ExpectCommit()

	err = NewRetryItemRepository(db).Insert(context.Background(), sampleRetryItem(now), 1000, 900)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryItemInsertUnderCapacity(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()

	mock.ExpectBegin()
	mock.ExpectExec("SELECT pg_advisory_xact_lock").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("INSERT INTO retry_items").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery("SELECT COUNT\\(\\*\\) FROM retry_items").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectCommit()

	err = NewRetryItemRepository(db).Insert(context.Background(), sampleRetryItem(now), 1000, 900)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func retryRows(now time.Time) *sqlmock.Rows {
	return sqlmock.NewRows([]string{
		"id", "operation", "context", "error_code", "error_message", "severity", "retry_count",
		"strategy", "next_attempt", "created_at", "last_attempt", "claimed_at",
	})
}

func TestRetryItemClaimDue(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC)
	lease := 10 * time.Minute

	mock.ExpectQuery("UPDATE retry_items ri\\s+SET claimed_at = \\$1").
		WithArgs(now, now.Add(-lease), 100).
		WillReturnRows(retryRows(now).AddRow(
			"r-1", "publish_channel", []byte(`{"content_item_id":42,"channel":"facebook","client_id":7,"retry_count":2}`),
			"server_error", "502", "medium", 2, "linear", now.Add(-time.Second), now.Add(-time.Hour), nil, now,
		))

	items, err := NewRetryItemRepository(db).ClaimDue(context.Background(), now, lease, 100)
	require.NoError(t, err)
	require.Len(t, items, 1)

	assert.Equal(t, int64(42), items[0].Context.ContentItemID)
	assert.Equal(t, models.ChannelFacebook, items[0].Context.Channel)
	assert.Equal(t, 2, items[0].RetryCount)
	assert.Nil(t, items[0].LastAttempt)
	require.NotNil(t, items[0].ClaimedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryItemClaimMissingOrBusy(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	now := time.Now().UTC()
	repo := NewRetryItemRepository(db)

	mock.ExpectQuery("UPDATE retry_items\\s+SET claimed_at = \\$2").
		WithArgs("gone", now, now.Add(-time.Minute)).
		WillReturnRows(retryRows(now))
	mock.ExpectQuery("SELECT 1 FROM retry_items WHERE id = \\$1").
		WithArgs("gone").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}))

	_, err = repo.Claim(context.Background(), "gone", now, time.Minute)
	assert.ErrorIs(t, err, retry.ErrItemNotFound)

	mock.ExpectQuery("UPDATE retry_items\\s+SET claimed_at = \\$2").
		WithArgs("busy", now, now.Add(-time.Minute)).
		WillReturnRows(retryRows(now))
	mock.ExpectQuery("SELECT 1 FROM retry_items WHERE id = \\$1").
		WithArgs("busy").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(1))

	_, err = repo.Claim(context.Background(), "busy", now, time.Minute)
	assert.ErrorIs(t, err, retry.ErrItemBusy)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRetryItemDeleteByContentItemID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("DELETE FROM retry_items\\s+WHERE operation = \\$1\\s+AND \\(context->>'content_item_id'\\)::bigint = \\$2").
		WithArgs(models.OperationPublishChannel, int64(42)).
		WillReturnResult(sqlmock.NewResult(0, 2))

	n, err := NewRetryItemRepository(db).DeleteByContentItemID(context.Background(), nil, 42)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}
