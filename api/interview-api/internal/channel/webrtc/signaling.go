// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package channel_webrtc

// SignalType discriminates the JSON signaling envelope exchanged with
// the candidate's browser over the session WebSocket.
type SignalType string

const (
	// server -> client
	SignalConfig SignalType = "config" // ICE servers and codec parameters
	SignalOffer  SignalType = "offer"  // SDP offer
	SignalReady  SignalType = "ready"  // peer connection established

	SignalState  SignalType = "state"  // interview state update
	SignalNotice SignalType = "notice" // non-fatal hint or error text

	// client -> server
	SignalAnswer     SignalType = "answer"     // SDP answer
	SignalPermission SignalType = "permission" // device permission report
	SignalControl    SignalType = "control"    // interview control action
	SignalEvent      SignalType = "event"      // proctoring event report
	SignalBye        SignalType = "bye"        // candidate left the page

	// both directions
	SignalICE SignalType = "ice" // trickled ICE candidate
)

// SignalMessage is the envelope on the wire. Exactly one payload field
// is populated per type.
type SignalMessage struct {
	Type      SignalType `json:"type"`
	SessionID string     `json:"session_id,omitempty"`

	SDP        string            `json:"sdp,omitempty"`
	Candidate  *CandidateSignal  `json:"candidate,omitempty"`
	Config     *ConfigSignal     `json:"config,omitempty"`
	Permission *PermissionSignal `json:"permission,omitempty"`
	Control    *ControlSignal    `json:"control,omitempty"`
	Event      *EventSignal      `json:"event,omitempty"`
	State      *StateSignal      `json:"state,omitempty"`
	Notice     string            `json:"notice,omitempty"`
}

// ConfigSignal carries the WebRTC bootstrap parameters to the client.
type ConfigSignal struct {
	ICEServers []ICEServerSignal `json:"ice_servers"`
	AudioCodec string            `json:"audio_codec"`
	VideoCodec string            `json:"video_codec"`
	SampleRate int               `json:"sample_rate"`
}

type ICEServerSignal struct {
	URLs       []string `json:"urls"`
	Username   string   `json:"username,omitempty"`
	Credential string   `json:"credential,omitempty"`
}

// CandidateSignal is one trickled ICE candidate.
type CandidateSignal struct {
	Candidate        string `json:"candidate"`
	SDPMid           string `json:"sdp_mid,omitempty"`
	SDPMLineIndex    int    `json:"sdp_mline_index,omitempty"`
	UsernameFragment string `json:"username_fragment,omitempty"`
}

// PermissionSignal reports the outcome of one getUserMedia /
// getDisplayMedia prompt on the client. TrackIDs lets the server bind
// arriving remote tracks to the capability that produced them; a
// display grant without a reported audio track id is how mic-only
// degradation enters the pipeline.
type PermissionSignal struct {
	Capability string `json:"capability"` // camera | microphone | display
	Outcome    string `json:"outcome"`    // granted | denied | not-found | busy | unsupported

	VideoTrackID string `json:"video_track_id,omitempty"`
	AudioTrackID string `json:"audio_track_id,omitempty"`
}

// ControlSignal is one candidate-driven interview action.
type ControlSignal struct {
	Action string `json:"action"`
}

// Control actions the session layer understands.
const (
	ActionCheckCamera     = "check_camera"
	ActionCheckMicrophone = "check_microphone"
	ActionRetryDisplay    = "retry_display"
	ActionStartInterview  = "start_interview"
	ActionStopListening   = "stop_listening"
	ActionResumeListening = "resume_listening"
	ActionRetake          = "retake"
	ActionSubmitAnswer    = "submit_answer"
)

// EventSignal is one proctoring observation reported by the client.
// Violation counting happens server-side from the event names; the
// client only describes what it saw.
type EventSignal struct {
	Name    string         `json:"name"`
	Details map[string]any `json:"details,omitempty"`
}

// StateSignal pushes the interview progression to the client.
type StateSignal struct {
	State         string `json:"state"`
	Question      string `json:"question,omitempty"`
	QuestionIndex int    `json:"question_index"`
	FinalQuestion bool   `json:"final_question,omitempty"`
	VideoURL      string `json:"video_url,omitempty"`
}

// Permission outcomes as the client reports them.
const (
	OutcomeGranted     = "granted"
	OutcomeDenied      = "denied"
	OutcomeNotFound    = "not-found"
	OutcomeBusy        = "busy"
	OutcomeUnsupported = "unsupported"
)

// Capability names as the client reports them.
const (
	CapabilityCamera     = "camera"
	CapabilityMicrophone = "microphone"
	CapabilityDisplay    = "display"
)
