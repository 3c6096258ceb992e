// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_AppendOrder(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	log := NewLogWithClock(func() time.Time { return now })

	log.Append("interview_started", "")
	log.Append("question_asked", "index=0")
	log.Append("answer_submitted", "index=0")

	entries := log.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "interview_started", entries[0].Name)
	assert.Equal(t, "question_asked", entries[1].Name)
	assert.Equal(t, "answer_submitted", entries[2].Name)
	assert.Equal(t, "index=0", entries[1].Details)
	assert.Equal(t, now, entries[0].Timestamp)
}

func TestLog_EntriesReturnsSnapshot(t *testing.T) {
	log := NewLog()
	log.Append("a", "")

	snapshot := log.Entries()
	log.Append("b", "")

	assert.Len(t, snapshot, 1, "earlier snapshot unaffected by later appends")
	assert.Equal(t, 2, log.Len())
}

func TestBuildSummary(t *testing.T) {
	now := time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC)
	log := NewLogWithClock(func() time.Time { return now })
	log.Append("interview_started", "")
	log.Append("interview_completed", "")

	summary := BuildSummary("cand@example.com", log, ViolationSnapshot{
		TabSwitches:      5,
		WindowFocusLoss:  1,
		RightClicks:      2,
		DevToolsAttempts: 1,
	}, 9*time.Minute+30*time.Second, now.Add(10*time.Minute))

	assert.Equal(t, "cand@example.com", summary.Email)
	assert.Equal(t, "570", summary.ScreenTime, "screen time is seconds as string")
	assert.Equal(t, 5, summary.TabSwitches)
	assert.Equal(t, 1, summary.WindowFocusLoss)
	assert.Len(t, summary.InterviewEvents, 2)
	assert.Equal(t, "9m30s", summary.InterviewDuration)
	assert.Equal(t, "2026-03-14T10:10:00Z", summary.SubmissionTimestamp)

	require.Len(t, summary.Flags, 2)
	assert.Contains(t, summary.Flags[0], "tab switching")
	assert.Contains(t, summary.Flags[1], "developer tools")
}

func TestBuildSummary_CleanSessionHasNoFlags(t *testing.T) {
	summary := BuildSummary("cand@example.com", NewLog(), ViolationSnapshot{
		TabSwitches:     1,
		WindowFocusLoss: 2,
	}, time.Minute, time.Now())

	assert.NotNil(t, summary.Flags)
	assert.Empty(t, summary.Flags)
	assert.Empty(t, summary.InterviewEvents)
}
