// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package webrtc_internal

// DisconnectReason describes why a media channel was torn down.
type DisconnectReason string

const (
	DisconnectReasonNormal           DisconnectReason = "normal"            // interview submitted, clean teardown
	DisconnectReasonClientDisconnect DisconnectReason = "client_disconnect" // candidate sent a bye signal
	DisconnectReasonConnectionFailed DisconnectReason = "connection_failed" // ICE/DTLS failure
	DisconnectReasonPeerDisconnected DisconnectReason = "peer_disconnected" // transient network loss (not recovered)
	DisconnectReasonSocketClosed     DisconnectReason = "socket_closed"     // signaling WebSocket closed
	DisconnectReasonContextCancelled DisconnectReason = "context_cancelled" // parent context cancelled
	DisconnectReasonUnknown          DisconnectReason = "unknown"
)

// Opus audio constants (WebRTC standard: 48kHz)
const (
	OpusSampleRate    = 48000
	OpusFrameDuration = 20  // milliseconds
	OpusChannels      = 2   // Opus RTP always signals 2 encoding channels (opus/48000/2) per RFC 7587, even for mono voice
	OpusPayloadType   = 111 // Standard dynamic payload type for Opus
	OpusSDPFmtpLine   = "minptime=10;useinbandfec=1;stereo=0;sprop-stereo=0"
)

// VP8 video constants
const (
	VP8ClockRate   = 90000
	VP8PayloadType = 96
)

// Channel and buffer sizes
const (
	SignalChannelSize    = 64   // Buffered channel for outbound signaling messages
	RTPBufferSize        = 1500 // Max RTP packet size (MTU)
	MaxConsecutiveErrors = 50   // Max read errors before stopping a track reader
	InputBufferThreshold = 3200 // 100ms at 16kHz (32 bytes/ms * 100ms)

	// PlaybackFrameBytes is one 20ms LINEAR16 frame at the internal
	// 16kHz mono rate (320 samples * 2 bytes). The playback writer
	// Opus-encodes exactly one of these per pace tick.
	PlaybackFrameBytes = 640

	// PlaybackPaceInterval is the real-time interval between sending
	// consecutive audio frames to the local track. Matches the Opus
	// frame duration so synthesis bursts are smoothed to playback rate
	// rather than flooding the client.
	PlaybackPaceInterval = OpusFrameDuration // milliseconds

	// VideoMaxLate is how many RTP packets the VP8 sample builder keeps
	// before it gives up on a hole and drops the partial frame.
	VideoMaxLate = 64
)

// Config holds WebRTC configuration
type Config struct {
	ICEServers         []ICEServer
	ICETransportPolicy string // "all" or "relay"
}

// ICEServer represents a STUN/TURN server
type ICEServer struct {
	URLs       []string
	Username   string
	Credential string
}

// DefaultConfig returns default WebRTC configuration
func DefaultConfig() *Config {
	return &Config{
		ICEServers: []ICEServer{
			{URLs: []string{"stun:stun.l.google.com:19302"}},
			{URLs: []string{"stun:stun1.l.google.com:19302"}},
		},
		ICETransportPolicy: "all",
	}
}

// ICECandidate represents an ICE candidate for signaling
type ICECandidate struct {
	Candidate        string
	SDPMid           string
	SDPMLineIndex    int
	UsernameFragment string
}
