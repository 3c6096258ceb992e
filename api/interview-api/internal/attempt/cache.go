// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_attempt

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
)

// Live sessions outlive any single websocket reconnect but never a
// workday.
const liveSessionTTL = 2 * time.Hour

// LiveSession is the hot state a reconnecting media connection needs
// to resume an interview without a Postgres round trip.
type LiveSession struct {
	AttemptID     string `json:"attemptId"`
	UserID        string `json:"userId"`
	SessionID     string `json:"sessionId"`
	QuestionIndex int    `json:"questionIndex"`
}

// Cache is the redis-backed live-session lookup keyed by the
// backend-assigned session id.
type Cache interface {
	Put(ctx context.Context, session *LiveSession) error
	Get(ctx context.Context, sessionID string) (*LiveSession, error)
	Delete(ctx context.Context, sessionID string) error
}

type redisCache struct {
	redis  connectors.RedisConnector
	logger commons.Logger
}

func NewCache(redis connectors.RedisConnector, logger commons.Logger) Cache {
	return &redisCache{
		redis:  redis,
		logger: logger,
	}
}

func sessionKey(sessionID string) string {
	return fmt.Sprintf("interview:session:%s", sessionID)
}

func (c *redisCache) Put(ctx context.Context, session *LiveSession) error {
	payload, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("marshal live session %s: %w", session.SessionID, err)
	}
	if err := c.redis.Client().Set(ctx, sessionKey(session.SessionID), payload, liveSessionTTL).Err(); err != nil {
		return fmt.Errorf("cache live session %s: %w", session.SessionID, err)
	}
	c.logger.Debugf("cached live session: sessionId=%s, attemptId=%s", session.SessionID, session.AttemptID)
	return nil
}

func (c *redisCache) Get(ctx context.Context, sessionID string) (*LiveSession, error) {
	payload, err := c.redis.Client().Get(ctx, sessionKey(sessionID)).Bytes()
	if err != nil {
		return nil, fmt.Errorf("live session not found: %s: %w", sessionID, err)
	}
	var session LiveSession
	if err := json.Unmarshal(payload, &session); err != nil {
		return nil, fmt.Errorf("unmarshal live session %s: %w", sessionID, err)
	}
	return &session, nil
}

func (c *redisCache) Delete(ctx context.Context, sessionID string) error {
	if err := c.redis.Client().Del(ctx, sessionKey(sessionID)).Err(); err != nil {
		return fmt.Errorf("drop live session %s: %w", sessionID, err)
	}
	return nil
}
