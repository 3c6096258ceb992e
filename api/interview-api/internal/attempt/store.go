// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_attempt

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/connectors"
)

// Store provides operations to save and transition interview attempts
// in Postgres.
//
// Attempt rows live past the interview itself: recruiters read the
// recording URL and violation counters after the candidate is gone, so
// rows are never deleted by the session flow, only transitioned
// through statuses: pending -> live -> completed/failed.
type Store interface {
	// Save stores an attempt with a generated attemptId (UUID) and
	// returns it.
	Save(ctx context.Context, attempt *Attempt) (string, error)

	// Get retrieves an attempt by attemptId regardless of status.
	Get(ctx context.Context, attemptID string) (*Attempt, error)

	// Claim atomically transitions an attempt from "pending" to "live".
	// Only one concurrent media connection can win the claim.
	Claim(ctx context.Context, attemptID string) (*Attempt, error)

	// Complete marks an attempt as completed and records the sealed
	// recording URL.
	Complete(ctx context.Context, attemptID string, videoURL string) error

	// Fail marks an attempt as failed. The row stays readable for the
	// retry flow, which creates a fresh attempt with an incremented
	// reset count.
	Fail(ctx context.Context, attemptID string, reason string) error

	// RecordViolations patches the proctoring counters onto the row at
	// finalization.
	RecordViolations(ctx context.Context, attemptID string, tabSwitches, focusLoss, devTools int) error

	// UpdateField sets a single column on an existing attempt.
	UpdateField(ctx context.Context, attemptID, field, value string) error
}

type postgresStore struct {
	postgres connectors.PostgresConnector
	logger   commons.Logger
}

// NewStore creates an attempt store backed by Postgres.
func NewStore(postgres connectors.PostgresConnector, logger commons.Logger) Store {
	return &postgresStore{
		postgres: postgres,
		logger:   logger,
	}
}

func (s *postgresStore) Save(ctx context.Context, attempt *Attempt) (string, error) {
	if attempt.AttemptID == "" {
		attempt.AttemptID = uuid.New().String()
	}
	if attempt.Status == "" {
		attempt.Status = StatusPending
	}

	db := s.postgres.DB(ctx)
	if err := db.Create(attempt).Error; err != nil {
		return "", fmt.Errorf("failed to save attempt %s: %w", attempt.AttemptID, err)
	}

	s.logger.Infof("saved interview attempt: attemptId=%s, user=%s, role=%s",
		attempt.AttemptID, attempt.UserID, attempt.Role)

	return attempt.AttemptID, nil
}

func (s *postgresStore) Get(ctx context.Context, attemptID string) (*Attempt, error) {
	db := s.postgres.DB(ctx)
	var attempt Attempt
	if err := db.Where("attempt_id = ?", attemptID).First(&attempt).Error; err != nil {
		return nil, fmt.Errorf("attempt not found: %s: %w", attemptID, err)
	}

	s.logger.Debugf("resolved attempt: attemptId=%s, user=%s, status=%s",
		attempt.AttemptID, attempt.UserID, attempt.Status)

	return &attempt, nil
}

// Claim uses an atomic UPDATE ... WHERE status = 'pending' so that only
// one media connection wins; the loser gets an error because the row is
// no longer claimable.
func (s *postgresStore) Claim(ctx context.Context, attemptID string) (*Attempt, error) {
	db := s.postgres.DB(ctx)

	result := db.Model(&Attempt{}).
		Where("attempt_id = ? AND status = ?", attemptID, StatusPending).
		Updates(map[string]interface{}{
			"status":       StatusLive,
			"updated_date": time.Now(),
		})

	if result.Error != nil {
		return nil, fmt.Errorf("failed to claim attempt %s: %w", attemptID, result.Error)
	}
	if result.RowsAffected == 0 {
		return nil, fmt.Errorf("attempt %s not found or already claimed", attemptID)
	}

	var attempt Attempt
	if err := db.Where("attempt_id = ?", attemptID).First(&attempt).Error; err != nil {
		return nil, fmt.Errorf("failed to fetch claimed attempt %s: %w", attemptID, err)
	}

	s.logger.Debugf("claimed attempt: attemptId=%s, user=%s", attempt.AttemptID, attempt.UserID)

	return &attempt, nil
}

func (s *postgresStore) Complete(ctx context.Context, attemptID string, videoURL string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&Attempt{}).
		Where("attempt_id = ?", attemptID).
		Updates(map[string]interface{}{
			"status":       StatusCompleted,
			"video_url":    videoURL,
			"updated_date": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete attempt %s: %w", attemptID, result.Error)
	}

	s.logger.Debugf("completed attempt: attemptId=%s, videoUrl=%s", attemptID, videoURL)
	return nil
}

func (s *postgresStore) Fail(ctx context.Context, attemptID string, reason string) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&Attempt{}).
		Where("attempt_id = ?", attemptID).
		Updates(map[string]interface{}{
			"status":       StatusFailed,
			"updated_date": time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to mark attempt %s failed: %w", attemptID, result.Error)
	}

	s.logger.Warnw("attempt failed", "attemptId", attemptID, "reason", reason)
	return nil
}

func (s *postgresStore) RecordViolations(ctx context.Context, attemptID string, tabSwitches, focusLoss, devTools int) error {
	db := s.postgres.DB(ctx)
	result := db.Model(&Attempt{}).
		Where("attempt_id = ?", attemptID).
		Updates(map[string]interface{}{
			"tab_switches":       tabSwitches,
			"window_focus_loss":  focusLoss,
			"dev_tools_attempts": devTools,
			"updated_date":       time.Now(),
		})

	if result.Error != nil {
		return fmt.Errorf("failed to record violations on attempt %s: %w", attemptID, result.Error)
	}

	s.logger.Debugf("recorded violations: attemptId=%s, tabSwitches=%d", attemptID, tabSwitches)
	return nil
}

func (s *postgresStore) UpdateField(ctx context.Context, attemptID, field, value string) error {
	db := s.postgres.DB(ctx)

	// Allowlist of updatable fields to prevent SQL injection
	allowed := map[string]bool{
		"session_id": true,
		"status":     true,
		"video_url":  true,
	}
	if !allowed[field] {
		return fmt.Errorf("field %q is not updatable on attempt", field)
	}

	result := db.Model(&Attempt{}).
		Where("attempt_id = ?", attemptID).
		Update(field, value)

	if result.Error != nil {
		return fmt.Errorf("failed to update field %s on attempt %s: %w", field, attemptID, result.Error)
	}

	s.logger.Debugf("updated attempt field: attemptId=%s, %s=%s", attemptID, field, value)
	return nil
}
