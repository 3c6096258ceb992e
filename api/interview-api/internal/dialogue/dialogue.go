// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_dialogue

import (
	"context"
	"fmt"
	"strings"
	"sync"

	internal_backend "github.com/vettaai/api/interview-api/internal/backend"
	internal_events "github.com/vettaai/api/interview-api/internal/events"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

// State of the turn cycle. The machine only ever moves forward;
// aborted and completed are terminal.
type State string

const (
	StateNotStarted             State = "not-started"
	StateAwaitingQuestionSpeech State = "awaiting-question-speech"
	StateListening              State = "listening"
	StateSubmitting             State = "submitting"
	StateCompleted              State = "completed"
	StateAborted                State = "aborted"
)

// Speaker plays a question to the candidate via text-to-speech.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Utterance is one recognizer result. Err carries a recoverable
// recognition failure instead of text.
type Utterance struct {
	Text string
	Err  error
}

// Recognizer is the continuous speech-to-text source. Results stays
// open across Start/Stop cycles for the life of the session.
type Recognizer interface {
	Start(ctx context.Context) error
	Stop() error
	Results() <-chan Utterance
}

// Finalizer runs the submission sequence once the backend signals
// completion.
type Finalizer interface {
	Finalize(ctx context.Context) error
}

// ============================================================================
// Machine
// ============================================================================

// Machine owns the ask -> listen -> submit turn cycle for one
// interview attempt, layered on top of an already-started recording.
// Methods are driven by one session goroutine; the mutex exists for
// the recognizer drain goroutine and snapshot accessors.
type Machine struct {
	logger     commons.Logger
	backend    internal_backend.InterviewClient
	speaker    Speaker
	recognizer Recognizer
	events     *internal_events.Log
	finalizer  Finalizer
	teardown   func()
	onError    func(error)

	mu         sync.Mutex
	state      State
	session    *InterviewSession
	messages   []Message
	recognized []string
	micOn      bool

	drainOnce sync.Once
	done      chan struct{}
}

type Option func(*Machine)

// WithFinalizer installs the submission orchestrator invoked on
// completion.
func WithFinalizer(f Finalizer) Option {
	return func(m *Machine) { m.finalizer = f }
}

// WithTeardown installs the cleanup hook invoked when a backend
// failure aborts the session.
func WithTeardown(fn func()) Option {
	return func(m *Machine) { m.teardown = fn }
}

// WithErrorHandler installs the hook surfacing recoverable recognition
// errors.
func WithErrorHandler(fn func(error)) Option {
	return func(m *Machine) { m.onError = fn }
}

func NewMachine(
	logger commons.Logger,
	backend internal_backend.InterviewClient,
	speaker Speaker,
	recognizer Recognizer,
	events *internal_events.Log,
	opts ...Option,
) *Machine {
	m := &Machine{
		logger:     logger,
		backend:    backend,
		speaker:    speaker,
		recognizer: recognizer,
		events:     events,
		teardown:   func() {},
		onError:    func(error) {},
		state:      StateNotStarted,
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Session returns a copy of the conversation state, nil before Start.
func (m *Machine) Session() *InterviewSession {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.session == nil {
		return nil
	}
	out := *m.session
	out.Turns = append([]Turn(nil), m.session.Turns...)
	return &out
}

// Messages returns the dialogue log in append order.
func (m *Machine) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// RecognizedText is the space-joined accumulation of utterances since
// listening began.
func (m *Machine) RecognizedText() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return strings.Join(m.recognized, " ")
}

// Start requests the first question, speaks it and opens the
// microphone. The recording session must already be live so no spoken
// content is missed.
func (m *Machine) Start(ctx context.Context, role string, userID string) error {
	m.mu.Lock()
	if m.state != StateNotStarted {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("interview is %s, cannot start", state)
	}
	m.state = StateAwaitingQuestionSpeech
	m.mu.Unlock()

	opened, err := m.backend.StartInterview(ctx, role, userID)
	if err != nil {
		m.abort("start_failed")
		return fmt.Errorf("open interview session: %w", err)
	}

	m.mu.Lock()
	m.session = &InterviewSession{
		ID:              opened.SessionID,
		CurrentQuestion: opened.Question,
	}
	m.messages = append(m.messages, Message{Text: opened.Question})
	m.mu.Unlock()

	m.events.Append("interview_started", fmt.Sprintf("session=%s", opened.SessionID))
	m.events.Append("question_asked", "index=0")

	m.drainOnce.Do(func() { go m.drainRecognizer() })
	return m.askAndListen(ctx, opened.Question)
}

// askAndListen speaks the current question and transitions into the
// listening state with recognition running.
func (m *Machine) askAndListen(ctx context.Context, question string) error {
	if err := m.speaker.Speak(ctx, question); err != nil {
		// Playback failure does not cost the candidate the interview;
		// the question text is still visible in the dialogue log.
		m.logger.Warnw("question playback failed", "error", err)
	}

	if err := m.recognizer.Start(ctx); err != nil {
		m.mu.Lock()
		m.state = StateListening
		m.micOn = false
		m.mu.Unlock()
		m.onError(fmt.Errorf("%w: %v", internal_type.ErrRecognition, err))
		return nil
	}

	m.mu.Lock()
	m.state = StateListening
	m.micOn = true
	m.mu.Unlock()
	return nil
}

// drainRecognizer accumulates recognized utterances while the
// microphone is open. Recognition errors stop listening but leave the
// turn recoverable via ResumeListening.
func (m *Machine) drainRecognizer() {
	for {
		select {
		case <-m.done:
			return
		case utterance, ok := <-m.recognizer.Results():
			if !ok {
				return
			}
			if utterance.Err != nil {
				m.mu.Lock()
				m.micOn = false
				m.mu.Unlock()
				_ = m.recognizer.Stop()
				m.logger.Warnw("speech recognition failed", "error", utterance.Err)
				m.events.Append("recognition_error", utterance.Err.Error())
				m.onError(fmt.Errorf("%w: %v", internal_type.ErrRecognition, utterance.Err))
				continue
			}
			m.mu.Lock()
			if m.state == StateListening && m.micOn && utterance.Text != "" {
				m.recognized = append(m.recognized, utterance.Text)
			}
			m.mu.Unlock()
		}
	}
}

// ResumeListening reopens the microphone after a recognition error.
func (m *Machine) ResumeListening(ctx context.Context) error {
	m.mu.Lock()
	if m.state != StateListening {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("interview is %s, cannot resume listening", state)
	}
	m.mu.Unlock()

	if err := m.recognizer.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", internal_type.ErrRecognition, err)
	}
	m.mu.Lock()
	m.micOn = true
	m.mu.Unlock()
	return nil
}

// StopListening closes the microphone and moves the accumulated text
// into a pending answer entry in the dialogue log.
func (m *Machine) StopListening() error {
	m.mu.Lock()
	if m.state != StateListening {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("interview is %s, nothing to stop", state)
	}
	m.micOn = false
	answer := strings.Join(m.recognized, " ")
	m.recognized = nil
	m.messages = append(m.messages, Message{IsOwn: true, Text: answer})
	m.mu.Unlock()

	if err := m.recognizer.Stop(); err != nil {
		m.logger.Warnw("recognizer stop failed", "error", err)
	}
	return nil
}

// Retake discards the pending answer and reopens the microphone with
// the prior text restored as the starting accumulation. Exactly one
// retake is permitted per question index; further attempts are
// rejected without touching state.
func (m *Machine) Retake(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil || m.state != StateListening {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("interview is %s, cannot retake", state)
	}
	index := m.session.QuestionIndex
	if m.session.retakesUsed(index) >= 1 {
		m.mu.Unlock()
		return fmt.Errorf("retake already used for question %d", index+1)
	}
	pending := m.lastPendingAnswerLocked()
	if pending < 0 {
		m.mu.Unlock()
		return fmt.Errorf("no answer to retake")
	}
	m.session.markRetake(index)
	m.messages[pending].Status = StatusRetaken
	m.recognized = []string{m.messages[pending].Text}
	m.mu.Unlock()

	m.events.Append("retake_used", fmt.Sprintf("index=%d", index))

	if err := m.recognizer.Start(ctx); err != nil {
		return fmt.Errorf("%w: %v", internal_type.ErrRecognition, err)
	}
	m.mu.Lock()
	m.micOn = true
	m.mu.Unlock()
	return nil
}

// SubmitAnswer sends the pending answer and advances the cycle. The
// backend's step field decides between the next question and
// completion; backend failure aborts the whole session.
func (m *Machine) SubmitAnswer(ctx context.Context) error {
	m.mu.Lock()
	if m.session == nil || m.state != StateListening {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("interview is %s, cannot submit", state)
	}
	pending := m.lastPendingAnswerLocked()
	if pending < 0 || m.messages[pending].Text == "" {
		m.mu.Unlock()
		return fmt.Errorf("cannot submit an empty answer")
	}
	answer := m.messages[pending].Text
	question := m.session.CurrentQuestion
	index := m.session.QuestionIndex
	sessionID := m.session.ID
	m.state = StateSubmitting

	// The just-asked question and its answer complete together.
	if asked := m.lastQuestionLocked(); asked >= 0 {
		m.messages[asked].Status = StatusCompleted
	}
	m.messages[pending].Status = StatusCompleted
	m.mu.Unlock()

	m.events.Append("answer_submitted", fmt.Sprintf("index=%d", index))

	resp, err := m.backend.ContinueInterview(ctx, sessionID, answer)
	if err != nil {
		m.abort("submit_failed")
		return fmt.Errorf("submit answer %d: %w", index+1, err)
	}

	m.mu.Lock()
	m.session.Turns = append(m.session.Turns, Turn{Question: question, Answer: answer})
	m.mu.Unlock()

	if resp.Step == internal_backend.StepCompleted {
		return m.complete(ctx)
	}

	m.mu.Lock()
	m.session.CurrentQuestion = resp.Question
	m.session.QuestionIndex++
	m.session.FinalQuestion = resp.Step == internal_backend.StepDone
	nextIndex := m.session.QuestionIndex
	m.messages = append(m.messages, Message{Text: resp.Question})
	m.state = StateAwaitingQuestionSpeech
	m.mu.Unlock()

	m.events.Append("question_asked", fmt.Sprintf("index=%d", nextIndex))
	return m.askAndListen(ctx, resp.Question)
}

func (m *Machine) complete(ctx context.Context) error {
	m.mu.Lock()
	m.state = StateCompleted
	m.mu.Unlock()
	close(m.done)

	m.events.Append("interview_completed", "")
	m.logger.Infow("interview completed", "turns", len(m.Session().Turns))

	if m.finalizer == nil {
		return nil
	}
	if err := m.finalizer.Finalize(ctx); err != nil {
		return fmt.Errorf("finalize interview: %w", err)
	}
	return nil
}

func (m *Machine) abort(reason string) {
	m.mu.Lock()
	if m.state == StateAborted {
		m.mu.Unlock()
		return
	}
	m.state = StateAborted
	m.mu.Unlock()

	select {
	case <-m.done:
	default:
		close(m.done)
	}
	_ = m.recognizer.Stop()
	m.events.Append("interview_aborted", reason)
	m.teardown()
}

// Abort tears down an in-flight session, used on early leave.
func (m *Machine) Abort() {
	m.abort("early_leave")
}

// lastPendingAnswerLocked finds the newest candidate answer still
// awaiting submission.
func (m *Machine) lastPendingAnswerLocked() int {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if m.messages[i].IsOwn && m.messages[i].Status == StatusUndefined {
			return i
		}
		if !m.messages[i].IsOwn {
			return -1
		}
	}
	return -1
}

// lastQuestionLocked finds the newest interviewer message.
func (m *Machine) lastQuestionLocked() int {
	for i := len(m.messages) - 1; i >= 0; i-- {
		if !m.messages[i].IsOwn {
			return i
		}
	}
	return -1
}
