// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_recording

import (
	"context"
	"fmt"
	"sync"
	"time"

	internal_media "github.com/vettaai/api/interview-api/internal/media"
	internal_mixer "github.com/vettaai/api/interview-api/internal/media/mixer"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	internal_upload "github.com/vettaai/api/interview-api/internal/upload"
	"github.com/vettaai/pkg/commons"
)

type State string

const (
	StateIdle      State = "idle"
	StateRecording State = "recording"
	StateStopped   State = "stopped"
)

const defaultSegmentInterval = time.Second

// Result is what Stop resolves with once the recorder has flushed its
// last segment and the upload engine has finalized.
type Result struct {
	BlobURL       string
	FileExtension string
	MimeType      string
}

// EngineFactory builds the upload engine bound to the chosen format.
// Called once per Start; the engine is exclusively owned by this
// session afterwards.
type EngineFactory func(format RecordingFormat) *internal_upload.Engine

// Session owns the combined stream for one recording attempt: exactly
// one camera video track plus the mixer's single audio output. Segments
// are handed to the upload engine the moment they are emitted - the
// engine's queue is the only buffer on the primary path.
//
// State machine: idle -> recording -> stopped, resetting to idle after
// cleanup. Every exit path (Stop success, Stop failure, Teardown)
// releases the stream tracks, the mixer graph and the upload session.
type Session struct {
	logger     commons.Logger
	acq        *internal_media.Acquisition
	support    SupportPredicate
	candidates []RecordingFormat
	fallback   RecordingFormat
	engineFor  EngineFactory
	muxerFor   MuxerFactory
	interval   time.Duration

	mu       sync.Mutex
	state    State
	format   RecordingFormat
	combined *internal_type.MediaStream
	owned    []*internal_type.MediaStream
	mixer    *internal_mixer.Mixer
	engine   *internal_upload.Engine
	muxer    Muxer

	done chan struct{}
	wg   sync.WaitGroup
}

type SessionOption func(*Session)

func WithSegmentInterval(d time.Duration) SessionOption {
	return func(s *Session) { s.interval = d }
}

func WithFormatCandidates(candidates []RecordingFormat, fallback RecordingFormat) SessionOption {
	return func(s *Session) {
		s.candidates = candidates
		s.fallback = fallback
	}
}

func NewSession(
	logger commons.Logger,
	acq *internal_media.Acquisition,
	support SupportPredicate,
	engineFor EngineFactory,
	muxerFor MuxerFactory,
	opts ...SessionOption,
) *Session {
	s := &Session{
		logger:     logger,
		acq:        acq,
		support:    support,
		candidates: DefaultFormatCandidates,
		fallback:   FallbackFormat,
		engineFor:  engineFor,
		muxerFor:   muxerFor,
		interval:   defaultSegmentInterval,
		state:      StateIdle,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Session) Format() RecordingFormat {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.format
}

// Start acquires the combined stream, picks the recording format,
// builds the upload engine and begins timed segment emission. On any
// failure every partially acquired resource is released before the
// error returns.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		state := s.state
		s.mu.Unlock()
		return fmt.Errorf("recording session is %s, cannot start", state)
	}
	s.state = StateRecording
	s.mu.Unlock()

	camStream, err := s.acq.AcquireCamera(ctx)
	if err != nil {
		s.resetLocked(nil)
		return fmt.Errorf("acquire camera: %w", err)
	}
	micStream, err := s.acq.AcquireMicrophone(ctx)
	if err != nil {
		s.resetLocked([]*internal_type.MediaStream{camStream})
		return fmt.Errorf("acquire microphone: %w", err)
	}
	owned := []*internal_type.MediaStream{camStream, micStream}

	camVideo := camStream.VideoTracks()
	if len(camVideo) == 0 {
		s.resetLocked(owned)
		return fmt.Errorf("camera stream has no video track")
	}

	mixer, err := internal_mixer.NewMixer(s.logger, micStream, s.acq.DisplayStream())
	if err != nil {
		s.resetLocked(owned)
		return fmt.Errorf("build audio mixer: %w", err)
	}

	format := ChooseFormat(s.support, s.candidates, s.fallback)

	muxer, err := s.muxerFor(format)
	if err != nil {
		mixer.Close()
		s.resetLocked(owned)
		return fmt.Errorf("build muxer for %s: %w", format.MimeType, err)
	}

	combined := internal_type.NewMediaStream(camVideo[0], mixer.Output())

	s.mu.Lock()
	s.format = format
	s.combined = combined
	s.owned = owned
	s.mixer = mixer
	s.muxer = muxer
	s.engine = s.engineFor(format)
	s.done = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(3)
	go s.pump(camVideo[0], s.muxer.WriteVideo)
	go s.pump(mixer.Output(), s.muxer.WriteAudio)
	go s.emitSegments()

	s.logger.Infow("recording started", "mimeType", format.MimeType, "extension", format.FileExtension)
	return nil
}

// pump moves one track's frames into the muxer until the track closes
// or the session stops.
func (s *Session) pump(track internal_type.MediaTrack, write func(internal_type.Frame) error) {
	defer s.wg.Done()
	for {
		select {
		case <-s.done:
			return
		case frame, ok := <-track.Frames():
			if !ok {
				return
			}
			if err := write(frame); err != nil {
				s.logger.Warnw("muxer write failed, dropping frame", "error", err)
			}
		}
	}
}

// emitSegments drains the muxer on the segment interval and hands each
// segment straight to the upload engine.
func (s *Session) emitSegments() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			if segment := s.muxer.Segment(); len(segment) > 0 {
				if err := s.engine.Enqueue(segment); err != nil {
					s.logger.Warnw("segment enqueue failed", "error", err)
				}
			}
		}
	}
}

// Stop halts segment emission, flushes the muxer trailer, finalizes the
// upload session and releases every resource. It errors when no active
// recording exists. Cleanup runs regardless of finalize outcome.
func (s *Session) Stop(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.state != StateRecording {
		state := s.state
		s.mu.Unlock()
		return nil, fmt.Errorf("no active recording (state %s)", state)
	}
	s.state = StateStopped
	done := s.done
	s.mu.Unlock()

	close(done)
	s.wg.Wait()

	// Final flush happens after the pumps stop, so every frame already
	// written is in the container and finalize never races an enqueue.
	if segment := s.muxer.Segment(); len(segment) > 0 {
		if err := s.engine.Enqueue(segment); err != nil {
			s.logger.Warnw("final segment enqueue failed", "error", err)
		}
	}
	if tail, err := s.muxer.Close(); err != nil {
		s.logger.Warnw("muxer close failed", "error", err)
	} else if len(tail) > 0 {
		if err := s.engine.Enqueue(tail); err != nil {
			s.logger.Warnw("container trailer enqueue failed", "error", err)
		}
	}

	url, ferr := s.engine.Finalize(ctx)

	format := s.Format()
	s.release()

	if ferr != nil {
		return nil, ferr
	}
	return &Result{
		BlobURL:       url,
		FileExtension: format.FileExtension,
		MimeType:      format.MimeType,
	}, nil
}

// Teardown is the unconditional cleanup path (page unmount, fatal
// error): it aborts the upload session and releases all media without
// finalizing. Idempotent.
func (s *Session) Teardown() {
	s.mu.Lock()
	if s.state == StateIdle {
		s.mu.Unlock()
		return
	}
	recording := s.state == StateRecording
	done := s.done
	// Snapshot under the lock: a concurrent Stop runs release() which
	// nils these fields, and a double-read would panic mid-teardown.
	muxer := s.muxer
	engine := s.engine
	s.mu.Unlock()

	if recording && done != nil {
		close(done)
		s.wg.Wait()
	}
	if muxer != nil {
		_, _ = muxer.Close()
	}
	if engine != nil {
		engine.Abort()
	}
	s.release()
}

// release stops all stream tracks, closes the audio graph and resets
// the session to idle. Runs on every exit path.
func (s *Session) release() {
	s.mu.Lock()
	combined := s.combined
	owned := s.owned
	mixer := s.mixer
	s.combined = nil
	s.owned = nil
	s.mixer = nil
	s.muxer = nil
	s.engine = nil
	s.done = nil
	s.state = StateIdle
	s.mu.Unlock()

	if combined != nil {
		combined.Teardown()
	}
	for _, stream := range owned {
		stream.Teardown()
	}
	if mixer != nil {
		mixer.Close()
	}
	s.acq.Teardown()
}

// resetLocked releases partially acquired streams after a failed Start.
func (s *Session) resetLocked(streams []*internal_type.MediaStream) {
	for _, stream := range streams {
		stream.Teardown()
	}
	s.mu.Lock()
	s.state = StateIdle
	s.mu.Unlock()
}
