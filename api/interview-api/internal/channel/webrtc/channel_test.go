// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package channel_webrtc

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	webrtc_internal "github.com/vettaai/api/interview-api/internal/channel/webrtc/internal"
	internal_media "github.com/vettaai/api/interview-api/internal/media"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

func newBareChannel(t *testing.T) *Channel {
	t.Helper()
	logger, _ := commons.NewApplicationLogger()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return &Channel{
		logger:       logger,
		config:       webrtc_internal.DefaultConfig(),
		ctx:          ctx,
		cancel:       cancel,
		sessionID:    "test-session",
		devices:      make(map[string]*device),
		remoteTracks: make(map[string]*pionwebrtc.TrackRemote),
	}
}

func TestOutcomeError_Taxonomy(t *testing.T) {
	tests := []struct {
		outcome string
		want    error
	}{
		{OutcomeDenied, internal_type.ErrPermissionDenied},
		{OutcomeNotFound, internal_type.ErrDeviceNotFound},
		{OutcomeBusy, internal_type.ErrDeviceBusy},
		{OutcomeUnsupported, internal_type.ErrUnsupported},
		{"garbage", internal_type.ErrPermissionDenied},
	}
	for _, tt := range tests {
		assert.ErrorIs(t, outcomeError(tt.outcome), tt.want, tt.outcome)
	}
}

func TestHandlePermission_DeniedResolvesAwaiters(t *testing.T) {
	c := newBareChannel(t)

	c.handlePermission(&PermissionSignal{
		Capability: CapabilityCamera,
		Outcome:    OutcomeDenied,
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.AcquireCamera(ctx)
	assert.ErrorIs(t, err, internal_type.ErrPermissionDenied)
}

func TestHandlePermission_DuplicateReportIgnored(t *testing.T) {
	c := newBareChannel(t)

	c.handlePermission(&PermissionSignal{Capability: CapabilityMicrophone, Outcome: OutcomeDenied})
	// A second report for the same capability must not close ready again.
	c.handlePermission(&PermissionSignal{Capability: CapabilityMicrophone, Outcome: OutcomeGranted, AudioTrackID: "a1"})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err := c.AcquireMicrophone(ctx)
	assert.ErrorIs(t, err, internal_type.ErrPermissionDenied)
}

func TestAwaitDevice_CallerContextExpires(t *testing.T) {
	c := newBareChannel(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := c.awaitDevice(ctx, CapabilityDisplay)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTrackSlot_SwapRedirectsFrames(t *testing.T) {
	slot := &trackSlot{}

	// No sink swapped in yet: frames are dropped, not panicking.
	slot.push(internal_type.Frame{Data: []byte{1}})

	first := internal_media.NewTrack("first", internal_type.TrackKindAudio, "pcm16")
	slot.swap(first)
	slot.push(internal_type.Frame{Data: []byte{2}})

	second := internal_media.NewTrack("second", internal_type.TrackKindAudio, "pcm16")
	slot.swap(second)
	slot.push(internal_type.Frame{Data: []byte{3}})

	frame := <-first.Frames()
	assert.Equal(t, []byte{2}, frame.Data)
	frame = <-second.Frames()
	assert.Equal(t, []byte{3}, frame.Data)
}

func TestVP8Keyframe(t *testing.T) {
	assert.True(t, vp8Keyframe([]byte{0x10, 0x00}))
	assert.False(t, vp8Keyframe([]byte{0x11, 0x00}))
	assert.False(t, vp8Keyframe(nil))
}

func TestPlaybackPending(t *testing.T) {
	c := newBareChannel(t)
	assert.Equal(t, time.Duration(0), c.PlaybackPending())

	// One second of 16kHz mono LINEAR16.
	c.PlayAudio(make([]byte, 32000))
	assert.Equal(t, time.Second, c.PlaybackPending())
}

func TestSignalMessage_WireShape(t *testing.T) {
	msg := SignalMessage{
		Type:      SignalPermission,
		SessionID: "s1",
		Permission: &PermissionSignal{
			Capability:   CapabilityDisplay,
			Outcome:      OutcomeGranted,
			VideoTrackID: "v1",
		},
	}
	raw, err := json.Marshal(msg)
	require.NoError(t, err)

	var decoded map[string]any
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "permission", decoded["type"])
	assert.NotContains(t, decoded, "sdp")
	assert.NotContains(t, decoded, "candidate")

	permission := decoded["permission"].(map[string]any)
	assert.Equal(t, "display", permission["capability"])
	assert.Equal(t, "v1", permission["video_track_id"])
	assert.NotContains(t, permission, "audio_track_id")
}
