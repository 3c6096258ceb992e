// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_attempt

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
	gorm_postgres "gorm.io/driver/postgres"
	gorm_sqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newSqliteStore backs the store with an in-memory database. The table
// is created by hand because the model's column defaults are Postgres
// expressions.
func newSqliteStore(t *testing.T) Store {
	t.Helper()
	db, err := gorm.Open(gorm_sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	require.NoError(t, db.Exec(`CREATE TABLE interview_attempts (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		attempt_id TEXT NOT NULL UNIQUE,
		status TEXT NOT NULL DEFAULT 'pending',
		user_id TEXT NOT NULL,
		email TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT '',
		session_id TEXT NOT NULL DEFAULT '',
		reset_count INTEGER NOT NULL DEFAULT 0,
		video_url TEXT NOT NULL DEFAULT '',
		tab_switches INTEGER NOT NULL DEFAULT 0,
		window_focus_loss INTEGER NOT NULL DEFAULT 0,
		dev_tools_attempts INTEGER NOT NULL DEFAULT 0,
		created_date TIMESTAMP,
		updated_date TIMESTAMP
	)`).Error)

	appLogger, _ := commons.NewApplicationLogger()
	return NewStore(connectors.NewPostgresConnectorFromDB(db, appLogger), appLogger)
}

func TestStore_SaveAndGet(t *testing.T) {
	store := newSqliteStore(t)

	attemptID, err := store.Save(context.Background(), &Attempt{
		UserID: "cand-1",
		Email:  "cand@example.com",
		Role:   "backend engineer",
	})
	require.NoError(t, err)
	require.NotEmpty(t, attemptID)

	attempt, err := store.Get(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, "cand-1", attempt.UserID)
	assert.Equal(t, StatusPending, attempt.Status)
	assert.True(t, attempt.IsPending())
	assert.False(t, attempt.CreatedDate.IsZero())
}

func TestStore_ClaimOnceOnly(t *testing.T) {
	store := newSqliteStore(t)

	attemptID, err := store.Save(context.Background(), &Attempt{UserID: "cand-1"})
	require.NoError(t, err)

	claimed, err := store.Claim(context.Background(), attemptID)
	require.NoError(t, err)
	assert.True(t, claimed.IsLive())

	_, err = store.Claim(context.Background(), attemptID)
	assert.ErrorContains(t, err, "already claimed", "second media connection loses the claim")
}

func TestStore_ClaimUnknownAttempt(t *testing.T) {
	store := newSqliteStore(t)

	_, err := store.Claim(context.Background(), "no-such-attempt")
	assert.Error(t, err)
}

func TestStore_CompleteRecordsVideoURL(t *testing.T) {
	store := newSqliteStore(t)

	attemptID, _ := store.Save(context.Background(), &Attempt{UserID: "cand-1"})
	_, err := store.Claim(context.Background(), attemptID)
	require.NoError(t, err)

	require.NoError(t, store.Complete(context.Background(), attemptID,
		"https://store.example/cand-1/recording-0.webm"))

	attempt, err := store.Get(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, attempt.Status)
	assert.Equal(t, "https://store.example/cand-1/recording-0.webm", attempt.VideoURL)
}

func TestStore_FailKeepsRowReadable(t *testing.T) {
	store := newSqliteStore(t)

	attemptID, _ := store.Save(context.Background(), &Attempt{UserID: "cand-1"})
	require.NoError(t, store.Fail(context.Background(), attemptID, "finalize timeout"))

	attempt, err := store.Get(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, attempt.Status)
}

func TestStore_RecordViolations(t *testing.T) {
	store := newSqliteStore(t)

	attemptID, _ := store.Save(context.Background(), &Attempt{UserID: "cand-1"})
	require.NoError(t, store.RecordViolations(context.Background(), attemptID, 4, 2, 1))

	attempt, err := store.Get(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, 4, attempt.TabSwitches)
	assert.Equal(t, 2, attempt.WindowFocusLoss)
	assert.Equal(t, 1, attempt.DevToolsAttempts)
}

func TestStore_UpdateFieldAllowlist(t *testing.T) {
	store := newSqliteStore(t)

	attemptID, _ := store.Save(context.Background(), &Attempt{UserID: "cand-1"})

	require.NoError(t, store.UpdateField(context.Background(), attemptID, "session_id", "sess-42"))
	attempt, err := store.Get(context.Background(), attemptID)
	require.NoError(t, err)
	assert.Equal(t, "sess-42", attempt.SessionID)

	err = store.UpdateField(context.Background(), attemptID, "user_id", "someone-else")
	assert.ErrorContains(t, err, "not updatable")
}

// The claim must be a single conditional UPDATE, not read-then-write.
func TestStore_ClaimIsAtomicUpdate(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()

	db, err := gorm.Open(gorm_postgres.New(gorm_postgres.Config{
		Conn:                 sqlDB,
		PreferSimpleProtocol: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	appLogger, _ := commons.NewApplicationLogger()
	store := NewStore(connectors.NewPostgresConnectorFromDB(db, appLogger), appLogger)

	mock.ExpectExec(`UPDATE "interview_attempts" SET`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	_, err = store.Claim(context.Background(), "attempt-1")
	assert.ErrorContains(t, err, "already claimed")
	assert.NoError(t, mock.ExpectationsWereMet())
}
