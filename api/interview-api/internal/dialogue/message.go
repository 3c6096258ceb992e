// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_dialogue

// MessageStatus tracks the lifecycle of a dialogue log entry.
type MessageStatus string

const (
	// StatusUndefined is the initial status of every appended entry.
	StatusUndefined MessageStatus = ""
	// StatusCompleted marks a question as answered or an answer as
	// submitted.
	StatusCompleted MessageStatus = "completed"
	// StatusRetaken marks an answer the candidate discarded via the
	// one-shot retake.
	StatusRetaken MessageStatus = "retaken"
)

// Message is one entry in the append-only dialogue log mirroring the
// question/answer turns. IsOwn distinguishes candidate answers from
// interviewer questions.
type Message struct {
	IsOwn  bool
	Text   string
	Status MessageStatus
}

// Turn is one completed question-then-answer cycle.
type Turn struct {
	Question string
	Answer   string
}

// InterviewSession is the server-assigned conversation state for one
// attempt. Created on interview start and discarded on completion or
// abandonment.
type InterviewSession struct {
	ID              string
	CurrentQuestion string
	QuestionIndex   int
	Turns           []Turn
	// retakes counts retake uses per question index, capped at one.
	retakes map[int]int
	// FinalQuestion is set when the backend signals the current
	// question is the last one.
	FinalQuestion bool
}

func (s *InterviewSession) retakesUsed(index int) int {
	if s.retakes == nil {
		return 0
	}
	return s.retakes[index]
}

func (s *InterviewSession) markRetake(index int) {
	if s.retakes == nil {
		s.retakes = map[int]int{}
	}
	s.retakes[index]++
}
