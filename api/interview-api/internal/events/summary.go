// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_events

import (
	"fmt"
	"time"
)

// ViolationSnapshot holds the externally computed proctoring counters.
// Detection lives outside this service; the snapshot is consumed
// read-only at finalization.
type ViolationSnapshot struct {
	TabSwitches        int `json:"tab_switches"`
	WindowFocusLoss    int `json:"window_focus_loss"`
	RightClicks        int `json:"right_clicks"`
	DevToolsAttempts   int `json:"dev_tools_attempts"`
	MultiTouchGestures int `json:"multi_touch_gestures"`
	SwipeGestures      int `json:"swipe_gestures"`
	OrientationChanges int `json:"orientation_changes"`
}

// ProctoringSummary is the payload persisted with the recording URL at
// finalization.
type ProctoringSummary struct {
	Email               string  `json:"email"`
	ScreenTime          string  `json:"screen time"`
	Flags               []string `json:"flags"`
	TabSwitches         int     `json:"tab_switches"`
	WindowFocusLoss     int     `json:"window_focus_loss"`
	RightClicks         int     `json:"right_clicks"`
	DevToolsAttempts    int     `json:"dev_tools_attempts"`
	MultiTouchGestures  int     `json:"multi_touch_gestures"`
	SwipeGestures       int     `json:"swipe_gestures"`
	OrientationChanges  int     `json:"orientation_changes"`
	InterviewEvents     []Event `json:"interview_events"`
	InterviewDuration   string  `json:"interview_duration"`
	SubmissionTimestamp string  `json:"submission_timestamp"`
}

// Counter thresholds above which a human-readable flag is raised.
const (
	tabSwitchFlagThreshold = 2
	focusLossFlagThreshold = 3
	devToolsFlagThreshold  = 0
)

// BuildSummary assembles the proctoring payload from the event log, the
// violation snapshot and the session duration. Flags are derived from
// counters crossing their thresholds.
func BuildSummary(email string, log *Log, snapshot ViolationSnapshot, duration time.Duration, submittedAt time.Time) *ProctoringSummary {
	var flags []string
	if snapshot.TabSwitches > tabSwitchFlagThreshold {
		flags = append(flags, fmt.Sprintf("excessive tab switching (%d)", snapshot.TabSwitches))
	}
	if snapshot.WindowFocusLoss > focusLossFlagThreshold {
		flags = append(flags, fmt.Sprintf("repeated focus loss (%d)", snapshot.WindowFocusLoss))
	}
	if snapshot.DevToolsAttempts > devToolsFlagThreshold {
		flags = append(flags, fmt.Sprintf("developer tools attempted (%d)", snapshot.DevToolsAttempts))
	}
	if flags == nil {
		flags = []string{}
	}

	return &ProctoringSummary{
		Email:               email,
		ScreenTime:          fmt.Sprintf("%d", int(duration.Seconds())),
		Flags:               flags,
		TabSwitches:         snapshot.TabSwitches,
		WindowFocusLoss:     snapshot.WindowFocusLoss,
		RightClicks:         snapshot.RightClicks,
		DevToolsAttempts:    snapshot.DevToolsAttempts,
		MultiTouchGestures:  snapshot.MultiTouchGestures,
		SwipeGestures:       snapshot.SwipeGestures,
		OrientationChanges:  snapshot.OrientationChanges,
		InterviewEvents:     log.Entries(),
		InterviewDuration:   duration.String(),
		SubmissionTimestamp: submittedAt.UTC().Format(time.RFC3339),
	}
}
