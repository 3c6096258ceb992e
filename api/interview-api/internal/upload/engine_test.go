// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_upload

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

// ============================================================================
// Test helpers
// ============================================================================

// fakeBlockStore records every store interaction and can fail selected
// sequence numbers a configurable number of times.
type fakeBlockStore struct {
	mu           sync.Mutex
	putOrder     []string
	committed    []string
	commitCalls  int
	failSeq      map[int]int // blockID index -> remaining failures
	commitErr    error
	putDelay     time.Duration
	committedKey string
}

func newFakeBlockStore() *fakeBlockStore {
	return &fakeBlockStore{failSeq: map[int]int{}}
}

func (f *fakeBlockStore) PutBlock(ctx context.Context, key string, blockID string, data []byte) error {
	if f.putDelay > 0 {
		select {
		case <-time.After(f.putDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	seq := len(f.putOrder)
	_ = seq
	for i, remaining := range f.failSeq {
		if blockID == blockID2(i) && remaining > 0 {
			f.failSeq[i] = remaining - 1
			return fmt.Errorf("injected failure for block %d", i)
		}
	}
	f.putOrder = append(f.putOrder, blockID)
	return nil
}

func (f *fakeBlockStore) CommitBlockList(ctx context.Context, key string, blockIDs []string, contentType string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.commitCalls++
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.committed = append([]string{}, blockIDs...)
	f.committedKey = key
	return "https://store.example/" + key, nil
}

func (f *fakeBlockStore) puts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string{}, f.putOrder...)
}

// blockID2 mirrors the engine's fixed-width block ID encoding.
func blockID2(seq int) string {
	return blockID(seq)
}

func newTestEngine(t *testing.T, store BlockStore, opts ...Option) *Engine {
	t.Helper()
	logger, _ := commons.NewApplicationLogger()
	e := NewEngine(logger, store, "user-1/recording-0.webm", "video/webm",
		append([]Option{WithRetryPolicy(3, time.Millisecond, 4*time.Millisecond)}, opts...)...)
	t.Cleanup(e.Abort)
	return e
}

// ============================================================================
// Ordering
// ============================================================================

func TestEngine_BlocksCommittedInStrictSequenceOrder(t *testing.T) {
	store := newFakeBlockStore()
	e := newTestEngine(t, store)

	for i := 0; i < 20; i++ {
		require.NoError(t, e.Enqueue([]byte{byte(i)}))
	}
	url, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://store.example/user-1/recording-0.webm", url)

	puts := store.puts()
	require.Len(t, puts, 20)
	for i, id := range puts {
		assert.Equal(t, blockID(i), id, "block %d staged out of order", i)
	}
	assert.Equal(t, puts, store.committed, "committed list must preserve staging order")
}

func TestEngine_DestinationKey(t *testing.T) {
	assert.Equal(t, "cand-42/recording-0.webm", DestinationKey("cand-42", ".webm", 0))
	assert.Equal(t, "cand-42/recording-3.mp4", DestinationKey("cand-42", ".mp4", 3))
}

// ============================================================================
// Failure semantics
// ============================================================================

// Scenario D: one chunk fails mid-recording; recording continues,
// following chunks still upload in order.
func TestEngine_ChunkFailureDoesNotAbortSession(t *testing.T) {
	store := newFakeBlockStore()
	store.failSeq[1] = 99 // block 1 fails all attempts

	var errMu sync.Mutex
	var chunkErrs []error
	e := newTestEngine(t, store, WithError(func(err error) {
		errMu.Lock()
		chunkErrs = append(chunkErrs, err)
		errMu.Unlock()
	}))

	require.NoError(t, e.Enqueue([]byte("a")))
	require.NoError(t, e.Enqueue([]byte("b"))) // fails
	require.NoError(t, e.Enqueue([]byte("c")))

	_, err := e.Finalize(context.Background())
	require.NoError(t, err, "finalize must succeed despite a lost chunk")

	errMu.Lock()
	require.Len(t, chunkErrs, 1, "OnError fires exactly once per lost chunk")
	assert.ErrorIs(t, chunkErrs[0], internal_type.ErrNetworkChunkFailure)
	errMu.Unlock()

	assert.Equal(t, []string{blockID(0), blockID(2)}, store.puts())
}

func TestEngine_RetriesTransientFailures(t *testing.T) {
	store := newFakeBlockStore()
	store.failSeq[0] = 2 // fails twice, succeeds on third attempt

	e := newTestEngine(t, store)
	require.NoError(t, e.Enqueue([]byte("a")))

	_, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{blockID(0)}, store.puts())
}

// ============================================================================
// Finalize contract
// ============================================================================

func TestEngine_FinalizeExactlyOnce(t *testing.T) {
	store := newFakeBlockStore()
	e := newTestEngine(t, store)

	require.NoError(t, e.Enqueue([]byte("a")))
	_, err := e.Finalize(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, store.commitCalls)

	_, err = e.Finalize(context.Background())
	assert.ErrorIs(t, err, internal_type.ErrFinalizeFailure, "second finalize must fail")
	assert.Equal(t, 1, store.commitCalls)
}

func TestEngine_FinalizeWithoutCommittedBlocks(t *testing.T) {
	store := newFakeBlockStore()
	e := newTestEngine(t, store)

	_, err := e.Finalize(context.Background())
	assert.ErrorIs(t, err, internal_type.ErrFinalizeFailure)
	assert.Equal(t, 0, store.commitCalls)
}

func TestEngine_EnqueueAfterFinalizeRejected(t *testing.T) {
	store := newFakeBlockStore()
	e := newTestEngine(t, store)

	require.NoError(t, e.Enqueue([]byte("a")))
	_, err := e.Finalize(context.Background())
	require.NoError(t, err)

	assert.Error(t, e.Enqueue([]byte("b")))
}

func TestEngine_AbortDiscardsSession(t *testing.T) {
	store := newFakeBlockStore()
	e := newTestEngine(t, store)

	require.NoError(t, e.Enqueue([]byte("a")))
	e.Abort()
	e.Abort() // idempotent

	assert.Error(t, e.Enqueue([]byte("b")))
	_, err := e.Finalize(context.Background())
	assert.ErrorIs(t, err, internal_type.ErrFinalizeFailure)
	assert.Equal(t, 0, store.commitCalls)
}

// ============================================================================
// Progress estimation
// ============================================================================

func TestEngine_ProgressMonotonicCappedUntilFinalize(t *testing.T) {
	store := newFakeBlockStore()

	var mu sync.Mutex
	var fractions []float64
	var bytes []int64
	e := newTestEngine(t, store, WithProgress(func(b int64, f float64) {
		mu.Lock()
		fractions = append(fractions, f)
		bytes = append(bytes, b)
		mu.Unlock()
	}))

	for i := 0; i < 30; i++ {
		require.NoError(t, e.Enqueue(make([]byte, 100)))
	}
	_, err := e.Finalize(context.Background())
	require.NoError(t, err)

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, fractions)
	for i := 1; i < len(fractions); i++ {
		assert.GreaterOrEqual(t, fractions[i], fractions[i-1], "progress must be monotonic")
	}
	for _, f := range fractions[:len(fractions)-1] {
		assert.Less(t, f, 1.0, "progress must stay below 1 until finalize")
	}
	assert.Equal(t, 1.0, fractions[len(fractions)-1], "finalize reports completion")
	assert.Equal(t, int64(3000), bytes[len(bytes)-1])
}
