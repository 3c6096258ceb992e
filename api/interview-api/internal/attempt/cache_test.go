// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_attempt

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/go-redis/redismock/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
)

func newMockCache(t *testing.T) (Cache, redismock.ClientMock) {
	t.Helper()
	client, mock := redismock.NewClientMock()
	logger, _ := commons.NewApplicationLogger()
	return NewCache(connectors.NewRedisConnectorFromClient(client, logger), logger), mock
}

func TestCache_PutAndGet(t *testing.T) {
	cache, mock := newMockCache(t)

	session := &LiveSession{
		AttemptID:     "attempt-1",
		UserID:        "cand-1",
		SessionID:     "sess-42",
		QuestionIndex: 2,
	}
	payload, err := json.Marshal(session)
	require.NoError(t, err)

	mock.ExpectSet("interview:session:sess-42", payload, liveSessionTTL).SetVal("OK")
	require.NoError(t, cache.Put(context.Background(), session))

	mock.ExpectGet("interview:session:sess-42").SetVal(string(payload))
	got, err := cache.Get(context.Background(), "sess-42")
	require.NoError(t, err)
	assert.Equal(t, session, got)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_GetMissing(t *testing.T) {
	cache, mock := newMockCache(t)

	mock.ExpectGet("interview:session:unknown").RedisNil()
	_, err := cache.Get(context.Background(), "unknown")
	assert.ErrorContains(t, err, "live session not found")
}

func TestCache_Delete(t *testing.T) {
	cache, mock := newMockCache(t)

	mock.ExpectDel("interview:session:sess-42").SetVal(1)
	require.NoError(t, cache.Delete(context.Background(), "sess-42"))
	assert.NoError(t, mock.ExpectationsWereMet())
}
