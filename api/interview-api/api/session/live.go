// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package interview_session_api

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	internal_attempt "github.com/vettaai/api/interview-api/internal/attempt"
	channel_webrtc "github.com/vettaai/api/interview-api/internal/channel/webrtc"
	internal_dialogue "github.com/vettaai/api/interview-api/internal/dialogue"
	internal_events "github.com/vettaai/api/interview-api/internal/events"
	internal_media "github.com/vettaai/api/interview-api/internal/media"
	internal_recording "github.com/vettaai/api/interview-api/internal/recording"
	internal_speech "github.com/vettaai/api/interview-api/internal/speech"
	speech_azure "github.com/vettaai/api/interview-api/internal/speech/azure"
	internal_submission "github.com/vettaai/api/interview-api/internal/submission"
	internal_upload "github.com/vettaai/api/interview-api/internal/upload"
	"github.com/vettaai/pkg/commons"
)

// liveSession is the per-connection wiring of one claimed attempt:
// media channel, permission flow, recording session, dialogue machine
// and the terminal submission. It lives until the channel closes.
type liveSession struct {
	api     *SessionApi
	logger  commons.Logger
	attempt *internal_attempt.Attempt
	channel *channel_webrtc.Channel

	stt         internal_speech.SpeechToText
	tts         internal_speech.TextToSpeech
	speaker     internal_dialogue.Speaker
	recognizer  internal_dialogue.Recognizer
	acquisition *internal_media.Acquisition
	recorder    *internal_recording.Session
	events      *internal_events.Log

	mu           sync.Mutex
	machine      *internal_dialogue.Machine
	orchestrator *internal_submission.Orchestrator
	violations   internal_events.ViolationSnapshot
	started      bool
	sessionID    string

	cleanupOnce sync.Once
}

func newLiveSession(api *SessionApi, attempt *internal_attempt.Attempt, channel *channel_webrtc.Channel) (*liveSession, error) {
	stt, err := speech_azure.NewAzureSpeechToText(api.logger, &api.cfg.SpeechConfig)
	if err != nil {
		return nil, err
	}
	if err := stt.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize recognition: %w", err)
	}
	tts, err := speech_azure.NewAzureTextToSpeech(api.logger, &api.cfg.SpeechConfig)
	if err != nil {
		return nil, err
	}
	if err := tts.Initialize(); err != nil {
		return nil, fmt.Errorf("failed to initialize synthesis: %w", err)
	}

	acquisition := internal_media.NewAcquisition(api.logger, channel)

	// The channel negotiates VP8 video and Opus audio; recordings land
	// in WebM regardless of what the candidate's browser would prefer.
	support := func(mimeType string) bool {
		return mimeType == "video/webm;codecs=vp8,opus" || mimeType == "video/webm"
	}
	engineFor := func(format internal_recording.RecordingFormat) *internal_upload.Engine {
		key := internal_upload.DestinationKey(attempt.UserID, format.FileExtension, attempt.ResetCount)
		return internal_upload.NewEngine(api.logger, api.blobStore, key, format.MimeType)
	}
	recorder := internal_recording.NewSession(api.logger, acquisition, support, engineFor, internal_recording.NewWebmMuxer)

	s := &liveSession{
		api:         api,
		logger:      api.logger,
		attempt:     attempt,
		channel:     channel,
		stt:         stt,
		tts:         tts,
		speaker:     channel_webrtc.NewSpeaker(api.logger, tts, channel),
		recognizer:  channel_webrtc.NewRecognizer(api.logger, stt, channel),
		acquisition: acquisition,
		recorder:    recorder,
		events:      internal_events.NewLog(),
	}

	channel.SetControlHandler(s.handleControl)
	channel.SetEventHandler(s.handleEvent)
	return s, nil
}

// run blocks until the channel closes, then settles the attempt: a
// completed interview was already persisted by the finalizer; anything
// else is marked failed.
func (s *liveSession) run() {
	<-s.channel.Done()

	s.mu.Lock()
	machine := s.machine
	s.mu.Unlock()

	ctx := context.Background()
	switch {
	case machine == nil:
		s.api.store.Fail(ctx, s.attempt.AttemptID, "candidate left before the interview started")
	case machine.State() != internal_dialogue.StateCompleted:
		machine.Abort()
		s.api.store.Fail(ctx, s.attempt.AttemptID, "candidate left before submission")
	}
	s.teardown()
}

// ============================================================================
// Control actions
// ============================================================================

// handleControl runs on the signaling reader goroutine; dialogue
// actions are dispatched to their own goroutine so a slow backend or a
// long question playback never stalls ICE and proctoring traffic.
func (s *liveSession) handleControl(sig channel_webrtc.ControlSignal) {
	go func() {
		ctx := context.Background()
		var err error

		switch sig.Action {
		case channel_webrtc.ActionCheckCamera:
			err = s.acquisition.CheckCamera(ctx)
			if s.acquisition.DisplayHint() {
				s.channel.SendNotice("share tab audio so the interviewer voice is part of your recording")
			}
		case channel_webrtc.ActionCheckMicrophone:
			err = s.acquisition.CheckMicrophone(ctx)
		case channel_webrtc.ActionRetryDisplay:
			err = s.acquisition.RetryDisplay(ctx)
			if s.acquisition.DisplayHint() {
				s.channel.SendNotice("share tab audio so the interviewer voice is part of your recording")
			}
		case channel_webrtc.ActionStartInterview:
			err = s.startInterview(ctx)
		case channel_webrtc.ActionStopListening:
			err = s.withMachine(func(m *internal_dialogue.Machine) error { return m.StopListening() })
		case channel_webrtc.ActionResumeListening:
			err = s.withMachine(func(m *internal_dialogue.Machine) error { return m.ResumeListening(ctx) })
		case channel_webrtc.ActionRetake:
			err = s.withMachine(func(m *internal_dialogue.Machine) error { return m.Retake(ctx) })
		case channel_webrtc.ActionSubmitAnswer:
			err = s.withMachine(func(m *internal_dialogue.Machine) error { return m.SubmitAnswer(ctx) })
		default:
			s.logger.Warnw("unknown control action", "action", sig.Action)
			return
		}

		if err != nil {
			s.logger.Warnw("control action failed", "action", sig.Action, "error", err)
			s.channel.SendNotice(err.Error())
		}
		s.pushState()
	}()
}

func (s *liveSession) withMachine(fn func(*internal_dialogue.Machine) error) error {
	s.mu.Lock()
	machine := s.machine
	s.mu.Unlock()
	if machine == nil {
		return fmt.Errorf("interview has not started")
	}
	return fn(machine)
}

// startInterview is the point of no return: recording starts first so
// no question is ever asked off-camera, then the dialogue machine takes
// over until the final answer is submitted.
func (s *liveSession) startInterview(ctx context.Context) error {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return fmt.Errorf("interview already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.recorder.Start(ctx); err != nil {
		// Clear the gate: a denied device is recovered with a retry
		// from the check screen, not by burning the attempt.
		s.mu.Lock()
		s.started = false
		s.mu.Unlock()
		return fmt.Errorf("failed to start recording: %w", err)
	}
	startedAt := time.Now()

	orchestrator := internal_submission.NewOrchestrator(
		s.logger,
		s.recorder,
		s.api.backend,
		s.events,
		s.snapshot,
		s.attempt.UserID,
		s.attempt.Email,
		startedAt,
	)
	machine := internal_dialogue.NewMachine(
		s.logger,
		s.api.backend,
		s.speaker,
		s.recognizer,
		s.events,
		internal_dialogue.WithFinalizer(s),
		internal_dialogue.WithTeardown(s.teardown),
		internal_dialogue.WithErrorHandler(func(err error) {
			s.channel.SendNotice(err.Error())
		}),
	)

	s.mu.Lock()
	s.orchestrator = orchestrator
	s.machine = machine
	s.mu.Unlock()

	if err := machine.Start(ctx, s.attempt.Role, s.attempt.UserID); err != nil {
		s.recorder.Teardown()
		s.mu.Lock()
		s.started = false
		s.machine = nil
		s.orchestrator = nil
		s.mu.Unlock()
		return err
	}

	session := machine.Session()
	if session != nil {
		s.mu.Lock()
		s.sessionID = session.ID
		s.mu.Unlock()
		s.api.store.UpdateField(ctx, s.attempt.AttemptID, "session_id", session.ID)
		s.api.cache.Put(ctx, &internal_attempt.LiveSession{
			AttemptID: s.attempt.AttemptID,
			UserID:    s.attempt.UserID,
			SessionID: session.ID,
		})
	}
	return nil
}

// Finalize implements the dialogue finalizer: it runs the submission
// orchestrator and persists the outcome on the attempt.
func (s *liveSession) Finalize(ctx context.Context) error {
	s.mu.Lock()
	orchestrator := s.orchestrator
	s.mu.Unlock()
	if orchestrator == nil {
		return fmt.Errorf("no active interview to finalize")
	}

	outcome, err := orchestrator.Submit(ctx)
	if err != nil {
		s.api.store.Fail(context.Background(), s.attempt.AttemptID, err.Error())
		return err
	}

	s.api.store.Complete(context.Background(), s.attempt.AttemptID, outcome.VideoURL)
	s.channel.SendState(channel_webrtc.StateSignal{
		State:    string(internal_dialogue.StateCompleted),
		VideoURL: outcome.VideoURL,
	})
	return nil
}

// ============================================================================
// Proctoring events
// ============================================================================

// handleEvent appends the client observation to the interview event
// log and folds it into the violation counters server-side.
func (s *liveSession) handleEvent(sig channel_webrtc.EventSignal) {
	details := ""
	if len(sig.Details) > 0 {
		if raw, err := json.Marshal(sig.Details); err == nil {
			details = string(raw)
		}
	}
	s.events.Append(sig.Name, details)

	s.mu.Lock()
	counted := true
	switch sig.Name {
	case "tab_switch":
		s.violations.TabSwitches++
	case "window_blur":
		s.violations.WindowFocusLoss++
	case "right_click":
		s.violations.RightClicks++
	case "devtools_open":
		s.violations.DevToolsAttempts++
	case "multi_touch":
		s.violations.MultiTouchGestures++
	case "swipe":
		s.violations.SwipeGestures++
	case "orientation_change":
		s.violations.OrientationChanges++
	default:
		counted = false
	}
	snapshot := s.violations
	s.mu.Unlock()

	if counted {
		s.api.store.RecordViolations(context.Background(), s.attempt.AttemptID,
			snapshot.TabSwitches, snapshot.WindowFocusLoss, snapshot.DevToolsAttempts)
	}
}

func (s *liveSession) snapshot() internal_events.ViolationSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.violations
}

// ============================================================================
// State and cleanup
// ============================================================================

func (s *liveSession) pushState() {
	s.mu.Lock()
	machine := s.machine
	s.mu.Unlock()

	if machine == nil {
		s.channel.SendState(channel_webrtc.StateSignal{State: string(internal_dialogue.StateNotStarted)})
		return
	}

	state := channel_webrtc.StateSignal{State: string(machine.State())}
	if session := machine.Session(); session != nil {
		state.Question = session.CurrentQuestion
		state.QuestionIndex = session.QuestionIndex
		state.FinalQuestion = session.FinalQuestion
	}
	s.channel.SendState(state)
}

// teardown releases every session resource exactly once. Reached from
// the finalizer path, the abort path and the connection-close path.
func (s *liveSession) teardown() {
	s.cleanupOnce.Do(func() {
		ctx := context.Background()
		s.recorder.Teardown()
		s.acquisition.Teardown()
		s.stt.Close(ctx)
		s.tts.Close(ctx)
		s.mu.Lock()
		sessionID := s.sessionID
		s.mu.Unlock()
		if sessionID != "" {
			s.api.cache.Delete(ctx, sessionID)
		}
		s.channel.Close()
	})
}
