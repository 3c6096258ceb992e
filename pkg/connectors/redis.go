// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package connectors

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
)

// RedisConnector hands out the shared redis client.
type RedisConnector interface {
	Client() redis.UniversalClient
	Close() error
}

type redisConnector struct {
	client redis.UniversalClient
	logger commons.Logger
}

// NewRedisConnector opens and pings the redis instance described by cfg.
func NewRedisConnector(ctx context.Context, cfg *configs.RedisConfig, logger commons.Logger) (RedisConnector, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Password: cfg.Password,
		DB:       cfg.Db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	logger.Infof("redis connected: host=%s db=%d", cfg.Host, cfg.Db)
	return &redisConnector{client: client, logger: logger}, nil
}

// NewRedisConnectorFromClient wraps an existing client. Used by tests
// to inject redismock.
func NewRedisConnectorFromClient(client redis.UniversalClient, logger commons.Logger) RedisConnector {
	return &redisConnector{client: client, logger: logger}
}

func (c *redisConnector) Client() redis.UniversalClient {
	return c.client
}

func (c *redisConnector) Close() error {
	return c.client.Close()
}
