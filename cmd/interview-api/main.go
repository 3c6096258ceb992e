// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	interview_routers "github.com/vettaai/api/interview-api/router"
	"github.com/vettaai/config"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
	"golang.org/x/sync/errgroup"
)

func main() {
	vConfig, err := config.InitConfig()
	if err != nil {
		log.Fatalf("failed to read configuration: %v", err)
	}
	cfg, err := config.GetApplicationConfig(vConfig)
	if err != nil {
		log.Fatalf("invalid configuration: %v", err)
	}

	logger, err := commons.NewApplicationLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		log.Fatalf("failed to build logger: %v", err)
	}
	logger.Infof("starting %s %s", cfg.Name, cfg.Version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	postgres, err := connectors.NewPostgresConnector(&cfg.PostgresConfig, logger)
	if err != nil {
		logger.Errorf("failed to connect postgres: %v", err)
		os.Exit(1)
	}
	defer postgres.Close()

	redis, err := connectors.NewRedisConnector(ctx, &cfg.RedisConfig, logger)
	if err != nil {
		logger.Errorf("failed to connect redis: %v", err)
		os.Exit(1)
	}
	defer redis.Close()

	engine := gin.New()
	engine.Use(gin.Recovery())
	engine.Use(cors.New(cors.Config{
		AllowOrigins:     []string{"*"},
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	interview_routers.HealthCheckRoutes(cfg, engine, logger, postgres)
	interview_routers.InterviewApiRoute(cfg, engine, logger, postgres, redis)

	server := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: engine,
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.Go(func() error {
		logger.Infof("listening on %s", server.Addr)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	group.Go(func() error {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-sigChan:
			logger.Info("shutdown signal received")
		case <-groupCtx.Done():
		}

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer shutdownCancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := group.Wait(); err != nil {
		logger.Errorf("server exited with error: %v", err)
		os.Exit(1)
	}
}
