// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_upload

import (
	"context"
	"encoding/base64"
	"fmt"
	"sync"
	"time"

	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

type engineState string

const (
	stateActive    engineState = "active"
	stateDraining  engineState = "draining"
	stateFinalized engineState = "finalized"
	stateAborted   engineState = "aborted"
)

const (
	defaultQueueSize   = 256
	defaultMaxAttempts = 3
	defaultBackoffBase = 500 * time.Millisecond
	defaultBackoffCap  = 2 * time.Second
)

type queuedChunk struct {
	seq  int
	data []byte
}

// ProgressFunc receives cumulative committed bytes and a fraction in
// (0, 1). The fraction is a rolling estimate: total size is unknown
// until recording stops, so it is capped below 1 until Finalize
// confirms completion.
type ProgressFunc func(bytesUploaded int64, fraction float64)

// ErrorFunc receives per-chunk failures. A chunk failure never aborts
// the session - losing one block must not lose the interview.
type ErrorFunc func(err error)

// Engine is one chunked upload session. Recorder segments are enqueued
// as they are emitted and shipped to the block store by a single
// worker, strictly in sequence order - blocks are never staged out of
// order or concurrently within a session.
//
// Lifecycle: active -> (Finalize | Abort). Finalize is valid exactly
// once and only after the last Enqueue for the session has been issued
// (the recorder's stop path guarantees that ordering).
type Engine struct {
	logger commons.Logger
	store  BlockStore

	key         string
	contentType string

	ctx    context.Context
	cancel context.CancelFunc

	queue     chan queuedChunk
	drainReq  chan struct{}
	drainOnce sync.Once
	drained   chan struct{}

	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration

	onProgress ProgressFunc
	onError    ErrorFunc

	mu             sync.Mutex
	state          engineState
	nextSeq        int
	committed      []string
	committedBytes int64
}

type Option func(*Engine)

func WithQueueSize(n int) Option {
	return func(e *Engine) { e.queue = make(chan queuedChunk, n) }
}

func WithRetryPolicy(maxAttempts int, base, cap time.Duration) Option {
	return func(e *Engine) {
		e.maxAttempts = maxAttempts
		e.backoffBase = base
		e.backoffCap = cap
	}
}

func WithProgress(fn ProgressFunc) Option {
	return func(e *Engine) { e.onProgress = fn }
}

func WithError(fn ErrorFunc) Option {
	return func(e *Engine) { e.onError = fn }
}

// DestinationKey derives the blob key for one recording attempt.
// resetCount distinguishes re-recordings by the same candidate so an
// abandoned attempt never collides with its successor.
func DestinationKey(userID string, fileExtension string, resetCount int) string {
	return fmt.Sprintf("%s/recording-%d%s", userID, resetCount, fileExtension)
}

// NewEngine starts an upload session bound to one destination key and
// content type. The worker goroutine runs until Finalize or Abort.
func NewEngine(logger commons.Logger, store BlockStore, key string, contentType string, opts ...Option) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		logger:      logger,
		store:       store,
		key:         key,
		contentType: contentType,
		ctx:         ctx,
		cancel:      cancel,
		drainReq:    make(chan struct{}),
		drained:     make(chan struct{}),
		maxAttempts: defaultMaxAttempts,
		backoffBase: defaultBackoffBase,
		backoffCap:  defaultBackoffCap,
		state:       stateActive,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.queue == nil {
		e.queue = make(chan queuedChunk, defaultQueueSize)
	}
	go e.run()
	return e
}

// Enqueue appends one recorder segment to the upload queue. Returns an
// error once the session has left the active state.
func (e *Engine) Enqueue(data []byte) error {
	if len(data) == 0 {
		return nil
	}
	e.mu.Lock()
	if e.state != stateActive {
		e.mu.Unlock()
		return fmt.Errorf("upload session is %s, cannot enqueue", e.state)
	}
	chunk := queuedChunk{seq: e.nextSeq, data: data}
	e.nextSeq++
	e.mu.Unlock()

	select {
	case e.queue <- chunk:
		return nil
	case <-e.ctx.Done():
		return fmt.Errorf("upload session closed, cannot enqueue")
	}
}

// run is the single upload worker. FIFO channel + one consumer gives
// the strict block ordering the committed list depends on. A drain
// request (from Finalize) flushes whatever remains queued and exits;
// context cancellation (from Abort) exits immediately.
func (e *Engine) run() {
	for {
		select {
		case chunk := <-e.queue:
			e.process(chunk)
		case <-e.drainReq:
			for {
				select {
				case chunk := <-e.queue:
					e.process(chunk)
				default:
					close(e.drained)
					return
				}
			}
		case <-e.ctx.Done():
			return
		}
	}
}

func (e *Engine) process(chunk queuedChunk) {
	if e.ctx.Err() != nil {
		return
	}
	blockID := blockID(chunk.seq)
	if err := e.putWithRetry(blockID, chunk.data); err != nil {
		e.logger.Errorw("chunk upload failed, continuing recording",
			"seq", chunk.seq, "error", err)
		e.reportError(fmt.Errorf("%w: block %d: %v", internal_type.ErrNetworkChunkFailure, chunk.seq, err))
		return
	}

	e.mu.Lock()
	e.committed = append(e.committed, blockID)
	e.committedBytes += int64(len(chunk.data))
	bytes := e.committedBytes
	blocks := len(e.committed)
	e.mu.Unlock()

	e.reportProgress(bytes, estimateFraction(blocks))
}

func (e *Engine) putWithRetry(blockID string, data []byte) error {
	backoff := e.backoffBase
	var lastErr error
	for attempt := 1; attempt <= e.maxAttempts; attempt++ {
		if err := e.store.PutBlock(e.ctx, e.key, blockID, data); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == e.maxAttempts {
			break
		}
		select {
		case <-time.After(backoff):
		case <-e.ctx.Done():
			return e.ctx.Err()
		}
		backoff *= 2
		if backoff > e.backoffCap {
			backoff = e.backoffCap
		}
	}
	return lastErr
}

// Finalize drains the queue, commits the accumulated block list and
// returns the durable object URL. Valid exactly once, from active only.
// Fails with ErrFinalizeFailure when no block was ever committed.
func (e *Engine) Finalize(ctx context.Context) (string, error) {
	e.mu.Lock()
	if e.state != stateActive {
		state := e.state
		e.mu.Unlock()
		return "", fmt.Errorf("%w: finalize from state %s", internal_type.ErrFinalizeFailure, state)
	}
	e.state = stateDraining
	e.mu.Unlock()
	e.drainOnce.Do(func() { close(e.drainReq) })

	select {
	case <-e.drained:
	case <-ctx.Done():
		e.Abort()
		return "", fmt.Errorf("%w: drain interrupted: %v", internal_type.ErrFinalizeFailure, ctx.Err())
	}

	e.mu.Lock()
	blockIDs := make([]string, len(e.committed))
	copy(blockIDs, e.committed)
	bytes := e.committedBytes
	e.mu.Unlock()

	if len(blockIDs) == 0 {
		e.setState(stateAborted)
		return "", fmt.Errorf("%w: no blocks were committed", internal_type.ErrFinalizeFailure)
	}

	url, err := e.store.CommitBlockList(ctx, e.key, blockIDs, e.contentType)
	if err != nil {
		e.setState(stateAborted)
		return "", fmt.Errorf("%w: %v", internal_type.ErrFinalizeFailure, err)
	}

	e.setState(stateFinalized)
	e.reportProgress(bytes, 1.0)
	e.logger.Infof("upload finalized: key=%s blocks=%d bytes=%d", e.key, len(blockIDs), bytes)
	return url, nil
}

// Abort cancels any in-flight upload and discards uncommitted state.
// Used on every cleanup path; idempotent.
func (e *Engine) Abort() {
	e.mu.Lock()
	if e.state == stateFinalized || e.state == stateAborted {
		e.mu.Unlock()
		return
	}
	e.state = stateAborted
	e.mu.Unlock()
	e.cancel()
}

// BytesUploaded reports cumulative committed bytes.
func (e *Engine) BytesUploaded() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.committedBytes
}

// CommittedBlocks reports the ordered committed block IDs.
func (e *Engine) CommittedBlocks() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.committed))
	copy(out, e.committed)
	return out
}

func (e *Engine) setState(state engineState) {
	e.mu.Lock()
	e.state = state
	e.mu.Unlock()
}

func (e *Engine) reportProgress(bytes int64, fraction float64) {
	if e.onProgress != nil {
		e.onProgress(bytes, fraction)
	}
}

func (e *Engine) reportError(err error) {
	if e.onError != nil {
		e.onError(err)
	}
}

// blockID encodes the sequence number as fixed-width base64. The store
// requires all block IDs of a blob to have equal encoded length, and
// fixed width keeps lexical order aligned with sequence order.
func blockID(seq int) string {
	return base64.StdEncoding.EncodeToString([]byte(fmt.Sprintf("%08d", seq)))
}

// estimateFraction maps committed block count onto a monotonically
// increasing fraction capped below 1. The true total is unknown until
// recording stops, so n/(n+1) is used: strictly increasing, never
// reaching 1 until Finalize reports completion explicitly.
func estimateFraction(blocks int) float64 {
	f := float64(blocks) / float64(blocks+1)
	if f > 0.95 {
		return 0.95
	}
	return f
}
