// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_attempt

import (
	"time"

	"gorm.io/gorm"
)

// Attempt status constants.
const (
	StatusPending   = "pending"   // Created, waiting for the media connection
	StatusLive      = "live"      // Media connection established, interview running
	StatusCompleted = "completed" // Submitted with a sealed recording
	StatusFailed    = "failed"    // Setup failure, abort or finalize timeout
)

// Attempt is one interview attempt row. It bridges the HTTP setup
// request and the media connection that follows, and carries the
// terminal artifacts (recording URL, violation counters) written at
// finalization.
//
// Stored in Postgres (interview_attempts table). The status field
// provides atomic claiming: only one media connection can transition
// pending -> live.
type Attempt struct {
	Id        uint64 `json:"id" gorm:"type:bigint;primaryKey;autoIncrement;<-:create"`
	AttemptID string `json:"attemptId" gorm:"column:attempt_id;type:varchar(36);not null;uniqueIndex"`
	Status    string `json:"status" gorm:"column:status;type:varchar(20);not null;default:pending"`
	UserID    string `json:"userId" gorm:"column:user_id;type:varchar(100);not null"`
	Email     string `json:"email" gorm:"column:email;type:varchar(200);not null;default:''"`
	Role      string `json:"role" gorm:"column:role;type:varchar(200);not null;default:''"`

	// SessionID is the backend-assigned conversation identifier, patched
	// in once the first question is issued.
	SessionID string `json:"sessionId" gorm:"column:session_id;type:varchar(100);not null;default:''"`

	// ResetCount feeds the upload destination key so a restarted attempt
	// never overwrites an earlier recording.
	ResetCount int `json:"resetCount" gorm:"column:reset_count;type:int;not null;default:0"`

	VideoURL         string `json:"videoUrl" gorm:"column:video_url;type:text;not null;default:''"`
	TabSwitches      int    `json:"tabSwitches" gorm:"column:tab_switches;type:int;not null;default:0"`
	WindowFocusLoss  int    `json:"windowFocusLoss" gorm:"column:window_focus_loss;type:int;not null;default:0"`
	DevToolsAttempts int    `json:"devToolsAttempts" gorm:"column:dev_tools_attempts;type:int;not null;default:0"`

	CreatedDate time.Time `json:"createdDate" gorm:"type:timestamp;not null;default:NOW();<-:create"`
	UpdatedDate time.Time `json:"updatedDate" gorm:"type:timestamp;default:null"`
}

func (Attempt) TableName() string {
	return "interview_attempts"
}

func (a *Attempt) BeforeCreate(tx *gorm.DB) (err error) {
	if a.CreatedDate.IsZero() {
		a.CreatedDate = time.Now()
	}
	return nil
}

// IsPending returns true if no media connection has claimed the
// attempt yet.
func (a *Attempt) IsPending() bool {
	return a.Status == StatusPending
}

// IsLive returns true if a media connection owns the attempt.
func (a *Attempt) IsLive() bool {
	return a.Status == StatusLive
}
