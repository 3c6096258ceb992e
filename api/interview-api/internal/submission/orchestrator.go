// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_submission

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_backend "github.com/vettaai/api/interview-api/internal/backend"
	internal_events "github.com/vettaai/api/interview-api/internal/events"
	internal_recording "github.com/vettaai/api/interview-api/internal/recording"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

// Upload finalize time is unbounded; the guard is the liveness
// guarantee that a submission never hangs forever.
const defaultHardTimeout = 15 * time.Minute

// Recorder is the recording session surface the orchestrator drives.
type Recorder interface {
	Stop(ctx context.Context) (*internal_recording.Result, error)
	Teardown()
}

// SnapshotFunc supplies the externally computed violation counters at
// finalization time.
type SnapshotFunc func() internal_events.ViolationSnapshot

// Outcome is the terminal result surfaced to the candidate.
type Outcome struct {
	VideoURL    string
	SubmittedAt time.Time
}

// Orchestrator runs the terminal sequence of an interview: stop the
// recording, assemble the proctoring summary, persist both in one
// backend call. The whole sequence runs under a hard timeout; when the
// guard fires, resources are force-released and a timeout error is
// surfaced instead of hanging.
type Orchestrator struct {
	logger   commons.Logger
	recorder Recorder
	backend  internal_backend.InterviewClient
	events   *internal_events.Log
	snapshot SnapshotFunc
	timeout  time.Duration
	clock    func() time.Time

	startedAt time.Time
	userID    string
	email     string

	// cleanupOnce guarantees device and upload resources are released
	// exactly once across success, failure and timeout paths.
	cleanupOnce sync.Once
}

type Option func(*Orchestrator)

func WithHardTimeout(d time.Duration) Option {
	return func(o *Orchestrator) { o.timeout = d }
}

func WithClock(clock func() time.Time) Option {
	return func(o *Orchestrator) { o.clock = clock }
}

func NewOrchestrator(
	logger commons.Logger,
	recorder Recorder,
	backend internal_backend.InterviewClient,
	events *internal_events.Log,
	snapshot SnapshotFunc,
	userID string,
	email string,
	startedAt time.Time,
	opts ...Option,
) *Orchestrator {
	o := &Orchestrator{
		logger:    logger,
		recorder:  recorder,
		backend:   backend,
		events:    events,
		snapshot:  snapshot,
		timeout:   defaultHardTimeout,
		clock:     time.Now,
		startedAt: startedAt,
		userID:    userID,
		email:     email,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Finalize implements the dialogue machine's completion hook.
func (o *Orchestrator) Finalize(ctx context.Context) error {
	_, err := o.Submit(ctx)
	return err
}

// Submit runs stop -> summarize -> persist under the hard timeout
// guard and returns the terminal outcome.
func (o *Orchestrator) Submit(ctx context.Context) (*Outcome, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type submitResult struct {
		outcome *Outcome
		err     error
	}
	resultCh := make(chan submitResult, 1)
	go func() {
		outcome, err := o.run(ctx)
		resultCh <- submitResult{outcome: outcome, err: err}
	}()

	select {
	case result := <-resultCh:
		if result.err != nil {
			o.release()
			return nil, result.err
		}
		return result.outcome, nil
	case <-ctx.Done():
		o.logger.Errorw("submission exceeded hard timeout, force-releasing resources",
			"userId", o.userID, "timeout", o.timeout)
		o.release()
		return nil, fmt.Errorf("submission took longer than %s: %w", o.timeout, internal_type.ErrSessionTimeout)
	}
}

func (o *Orchestrator) run(ctx context.Context) (*Outcome, error) {
	result, err := o.recorder.Stop(ctx)
	if err != nil {
		return nil, fmt.Errorf("stop recording: %w", err)
	}
	o.logger.Infow("recording sealed", "blobUrl", result.BlobURL, "mimeType", result.MimeType)

	submittedAt := o.clock()
	summary := internal_events.BuildSummary(
		o.email, o.events, o.snapshot(), submittedAt.Sub(o.startedAt), submittedAt)

	err = o.backend.UploadVideoProctoringLogs(ctx, &internal_backend.UploadProctoringRequest{
		UserID:              o.userID,
		VideoURL:            result.BlobURL,
		VideoProctoringLogs: summary,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", internal_type.ErrFinalizeFailure, err)
	}

	o.logger.Infow("interview submitted", "userId", o.userID, "videoUrl", result.BlobURL)
	return &Outcome{VideoURL: result.BlobURL, SubmittedAt: submittedAt}, nil
}

// release force-closes recording and proctoring resources. Safe to
// reach from multiple failure paths; only the first call acts.
func (o *Orchestrator) release() {
	o.cleanupOnce.Do(func() {
		o.recorder.Teardown()
	})
}
