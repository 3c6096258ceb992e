// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_recording

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	internal_media "github.com/vettaai/api/interview-api/internal/media"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	internal_upload "github.com/vettaai/api/interview-api/internal/upload"
	"github.com/vettaai/pkg/commons"
)

// ============================================================================
// Test fakes
// ============================================================================

type memoryBlockStore struct {
	mu          sync.Mutex
	blocks      []string
	commitCalls int
}

func (m *memoryBlockStore) PutBlock(ctx context.Context, key string, blockID string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.blocks = append(m.blocks, blockID)
	return nil
}

func (m *memoryBlockStore) CommitBlockList(ctx context.Context, key string, blockIDs []string, contentType string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commitCalls++
	return "https://store.example/" + key, nil
}

func (m *memoryBlockStore) commits() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.commitCalls
}

// fakeMuxer emits one synthetic segment per written frame.
type fakeMuxer struct {
	mu      sync.Mutex
	pending []byte
	audio   int
	video   int
	closed  bool
}

func (f *fakeMuxer) WriteVideo(frame internal_type.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.video++
	f.pending = append(f.pending, frame.Data...)
	return nil
}

func (f *fakeMuxer) WriteAudio(frame internal_type.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.audio++
	f.pending = append(f.pending, frame.Data...)
	return nil
}

func (f *fakeMuxer) Segment() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := f.pending
	f.pending = nil
	return out
}

func (f *fakeMuxer) Close() ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return []byte("trailer"), nil
}

// sessionProvider serves camera/mic/display streams whose tracks the
// test can drive.
type sessionProvider struct {
	cam        *internal_media.Track
	mic        *internal_media.Track
	displayErr error
	withAudio  bool
	sysAudio   *internal_media.Track
	displayVid *internal_media.Track
}

func (p *sessionProvider) AcquireCamera(ctx context.Context) (*internal_type.MediaStream, error) {
	p.cam = internal_media.NewTrack("cam", internal_type.TrackKindVideo, "vp8")
	return internal_type.NewMediaStream(p.cam), nil
}

func (p *sessionProvider) AcquireMicrophone(ctx context.Context) (*internal_type.MediaStream, error) {
	p.mic = internal_media.NewTrack("mic", internal_type.TrackKindAudio, "pcm16")
	return internal_type.NewMediaStream(p.mic), nil
}

func (p *sessionProvider) AcquireDisplayWithAudio(ctx context.Context) (*internal_type.MediaStream, error) {
	if p.displayErr != nil {
		return nil, p.displayErr
	}
	p.displayVid = internal_media.NewTrack("display-video", internal_type.TrackKindVideo, "vp8")
	tracks := []internal_type.MediaTrack{p.displayVid}
	if p.withAudio {
		p.sysAudio = internal_media.NewTrack("display-audio", internal_type.TrackKindAudio, "pcm16")
		tracks = append(tracks, p.sysAudio)
	}
	return internal_type.NewMediaStream(tracks...), nil
}

func newTestSession(t *testing.T, provider *sessionProvider) (*Session, *memoryBlockStore, *fakeMuxer, *internal_media.Acquisition) {
	t.Helper()
	logger, _ := commons.NewApplicationLogger()
	acq := internal_media.NewAcquisition(logger, provider)

	store := &memoryBlockStore{}
	muxer := &fakeMuxer{}

	session := NewSession(
		logger,
		acq,
		func(mime string) bool { return mime == "video/webm;codecs=vp8,opus" },
		func(format RecordingFormat) *internal_upload.Engine {
			return internal_upload.NewEngine(logger, store,
				internal_upload.DestinationKey("cand-1", format.FileExtension, 0), format.MimeType)
		},
		func(format RecordingFormat) (Muxer, error) { return muxer, nil },
		WithSegmentInterval(10*time.Millisecond),
	)
	t.Cleanup(session.Teardown)
	return session, store, muxer, acq
}

// ============================================================================
// Lifecycle
// ============================================================================

func TestSession_StartStop(t *testing.T) {
	provider := &sessionProvider{withAudio: true}
	session, store, muxer, acq := newTestSession(t, provider)

	require.NoError(t, acq.EnsureDisplay(context.Background()))
	require.NoError(t, session.Start(context.Background()))
	assert.Equal(t, StateRecording, session.State())
	assert.Equal(t, "video/webm;codecs=vp8,opus", session.Format().MimeType)

	// Drive some media through the combined stream.
	provider.cam.Push(internal_type.Frame{Data: []byte("video-frame"), Keyframe: true})
	provider.mic.Push(internal_type.Frame{Data: make([]byte, 640)})

	require.Eventually(t, func() bool {
		muxer.mu.Lock()
		defer muxer.mu.Unlock()
		return muxer.video >= 1 && muxer.audio >= 1
	}, 2*time.Second, 5*time.Millisecond, "frames should reach the muxer")

	result, err := session.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "https://store.example/cand-1/recording-0.webm", result.BlobURL)
	assert.Equal(t, ".webm", result.FileExtension)
	assert.Equal(t, "video/webm;codecs=vp8,opus", result.MimeType)

	assert.Equal(t, 1, store.commits(), "exactly one finalize per session")
	assert.Equal(t, StateIdle, session.State(), "session resets to idle after cleanup")
	assert.True(t, muxer.closed)
	assert.False(t, provider.cam.Live(), "all constituent tracks stop together")
	assert.False(t, provider.mic.Live())
}

func TestSession_CombinedStreamShape(t *testing.T) {
	provider := &sessionProvider{withAudio: true}
	session, _, _, acq := newTestSession(t, provider)

	require.NoError(t, acq.EnsureDisplay(context.Background()))
	require.NoError(t, session.Start(context.Background()))

	session.mu.Lock()
	combined := session.combined
	session.mu.Unlock()
	require.NotNil(t, combined)
	assert.Len(t, combined.VideoTracks(), 1, "exactly one video track")
	assert.Len(t, combined.AudioTracks(), 1, "exactly one audio track")
}

// Scenario C: display audio declined - session proceeds mic-only and the
// combined stream still has exactly one video + one audio track.
func TestSession_MicOnlyDegrade(t *testing.T) {
	provider := &sessionProvider{withAudio: false}
	session, _, _, acq := newTestSession(t, provider)

	err := acq.EnsureDisplay(context.Background())
	assert.ErrorIs(t, err, internal_type.ErrDisplayAudioMissing)
	assert.True(t, acq.DisplayHint(), "corrective hint surfaced")

	require.NoError(t, session.Start(context.Background()))

	session.mu.Lock()
	combined := session.combined
	session.mu.Unlock()
	assert.Len(t, combined.VideoTracks(), 1)
	assert.Len(t, combined.AudioTracks(), 1)
	assert.Same(t, internal_type.MediaTrack(provider.mic), combined.AudioTracks()[0],
		"degraded combined stream carries the raw mic track")
}

func TestSession_StopWithoutStart(t *testing.T) {
	session, _, _, _ := newTestSession(t, &sessionProvider{withAudio: true})
	_, err := session.Stop(context.Background())
	assert.ErrorContains(t, err, "no active recording")
}

func TestSession_DoubleStartRejected(t *testing.T) {
	provider := &sessionProvider{withAudio: true}
	session, _, _, acq := newTestSession(t, provider)

	require.NoError(t, acq.EnsureDisplay(context.Background()))
	require.NoError(t, session.Start(context.Background()))
	assert.Error(t, session.Start(context.Background()), "one recording session per attempt")
}

// slowCommitStore stretches the finalize window so teardown can land
// while Stop is still inside it.
type slowCommitStore struct {
	memoryBlockStore
	delay time.Duration
}

func (s *slowCommitStore) CommitBlockList(ctx context.Context, key string, blockIDs []string, contentType string) (string, error) {
	time.Sleep(s.delay)
	return s.memoryBlockStore.CommitBlockList(ctx, key, blockIDs, contentType)
}

// Scenario E: the finalization guard fires and tears the session down
// while Stop is still finalizing. Teardown must work from a snapshot of
// the session fields; Stop's cleanup nils them concurrently.
func TestSession_TeardownDuringStop(t *testing.T) {
	provider := &sessionProvider{withAudio: true}
	logger, _ := commons.NewApplicationLogger()
	acq := internal_media.NewAcquisition(logger, provider)

	store := &slowCommitStore{delay: 50 * time.Millisecond}
	muxer := &fakeMuxer{}
	session := NewSession(
		logger,
		acq,
		func(mime string) bool { return mime == "video/webm;codecs=vp8,opus" },
		func(format RecordingFormat) *internal_upload.Engine {
			return internal_upload.NewEngine(logger, store,
				internal_upload.DestinationKey("cand-1", format.FileExtension, 0), format.MimeType)
		},
		func(format RecordingFormat) (Muxer, error) { return muxer, nil },
		WithSegmentInterval(10*time.Millisecond),
	)

	require.NoError(t, acq.EnsureDisplay(context.Background()))
	require.NoError(t, session.Start(context.Background()))

	provider.cam.Push(internal_type.Frame{Data: []byte("video-frame"), Keyframe: true})
	require.Eventually(t, func() bool {
		muxer.mu.Lock()
		defer muxer.mu.Unlock()
		return muxer.video >= 1
	}, 2*time.Second, 5*time.Millisecond)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = session.Stop(context.Background())
	}()
	time.Sleep(20 * time.Millisecond)
	session.Teardown()
	wg.Wait()

	assert.Equal(t, StateIdle, session.State())
	assert.False(t, provider.cam.Live())
	assert.False(t, provider.mic.Live())
}

func TestSession_TeardownAbortsWithoutFinalize(t *testing.T) {
	provider := &sessionProvider{withAudio: true}
	session, store, _, acq := newTestSession(t, provider)

	require.NoError(t, acq.EnsureDisplay(context.Background()))
	require.NoError(t, session.Start(context.Background()))

	session.Teardown()
	session.Teardown() // idempotent

	assert.Equal(t, 0, store.commits(), "teardown must abort, not finalize")
	assert.Equal(t, StateIdle, session.State())
	assert.False(t, provider.cam.Live())
	assert.False(t, provider.mic.Live())
}
