// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_media

import (
	"context"
	"errors"
	"sync"

	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

type Capability string

const (
	CapabilityCamera      Capability = "camera"
	CapabilityMicrophone  Capability = "microphone"
	CapabilityScreenShare Capability = "screen-share"
	CapabilityScreenAudio Capability = "screen-audio"
)

type PermissionState string

const (
	PermissionNotRequested PermissionState = "not-requested"
	PermissionChecking     PermissionState = "checking"
	PermissionGranted      PermissionState = "granted"
	PermissionDenied       PermissionState = "denied"
)

// DeviceProvider abstracts where capture streams come from. In
// production the WebRTC media channel implements it (the candidate's
// browser is the device); tests inject fakes.
//
// AcquireDisplayWithAudio must tolerate a grant without audio: it
// returns the video-bearing stream together with ErrDisplayAudioMissing
// when the candidate declined "share audio". Every other failure maps
// to one of ErrPermissionDenied, ErrDeviceNotFound, ErrDeviceBusy,
// ErrUnsupported.
type DeviceProvider interface {
	AcquireCamera(ctx context.Context) (*internal_type.MediaStream, error)
	AcquireMicrophone(ctx context.Context) (*internal_type.MediaStream, error)
	AcquireDisplayWithAudio(ctx context.Context) (*internal_type.MediaStream, error)
}

// Acquisition owns per-capability permission state for one interview
// attempt. Checks are idempotent: a granted capability never re-prompts.
// Display capture is attempted early (at camera-check time) and the
// stream is cached so recording start reuses it instead of prompting
// the candidate a second time.
type Acquisition struct {
	logger   commons.Logger
	provider DeviceProvider

	mu     sync.Mutex
	states map[Capability]PermissionState

	displayStream    *internal_type.MediaStream
	displayAttempted bool
	// displayHint is set when display capture succeeded without audio;
	// the UI surfaces a corrective "share tab audio" hint once.
	displayHint bool
}

func NewAcquisition(logger commons.Logger, provider DeviceProvider) *Acquisition {
	return &Acquisition{
		logger:   logger,
		provider: provider,
		states: map[Capability]PermissionState{
			CapabilityCamera:      PermissionNotRequested,
			CapabilityMicrophone:  PermissionNotRequested,
			CapabilityScreenShare: PermissionNotRequested,
			CapabilityScreenAudio: PermissionNotRequested,
		},
	}
}

func (a *Acquisition) State(cap Capability) PermissionState {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.states[cap]
}

// AllGranted is the conjunction of the four capability states.
func (a *Acquisition) AllGranted() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, cap := range []Capability{CapabilityCamera, CapabilityMicrophone, CapabilityScreenShare, CapabilityScreenAudio} {
		if a.states[cap] != PermissionGranted {
			return false
		}
	}
	return true
}

// DisplayHint reports and clears the pending "share tab audio" hint.
func (a *Acquisition) DisplayHint() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	hint := a.displayHint
	a.displayHint = false
	return hint
}

// CheckCamera runs a camera permission probe. The probe stream is
// stopped immediately so the device lock is not held between the check
// screen and recording start. A successful camera check also kicks off
// the early display-audio acquisition.
func (a *Acquisition) CheckCamera(ctx context.Context) error {
	if err := a.probe(ctx, CapabilityCamera, a.provider.AcquireCamera); err != nil {
		return err
	}
	// Early display acquisition piggybacks on the camera check so the
	// candidate sees the picker once, not again at recording start.
	if err := a.EnsureDisplay(ctx); err != nil && !errors.Is(err, internal_type.ErrDisplayAudioMissing) {
		return err
	}
	return nil
}

// CheckMicrophone runs a microphone permission probe.
func (a *Acquisition) CheckMicrophone(ctx context.Context) error {
	return a.probe(ctx, CapabilityMicrophone, a.provider.AcquireMicrophone)
}

func (a *Acquisition) probe(ctx context.Context, cap Capability, acquire func(context.Context) (*internal_type.MediaStream, error)) error {
	a.mu.Lock()
	if a.states[cap] == PermissionGranted {
		a.mu.Unlock()
		return nil
	}
	a.states[cap] = PermissionChecking
	a.mu.Unlock()

	stream, err := acquire(ctx)
	if err != nil {
		a.setState(cap, PermissionDenied)
		a.logger.Warnw("permission probe failed", "capability", cap, "error", err)
		return err
	}
	// Probe only: release the device immediately.
	stream.Teardown()
	a.setState(cap, PermissionGranted)
	return nil
}

// EnsureDisplay acquires display capture once and caches the stream.
// Repeat calls while the attempted flag is set return the cached
// outcome without re-prompting. When the stream carries no audio track
// the screen-share capability is still granted, screen-audio is marked
// denied, and ErrDisplayAudioMissing is returned alongside the cached
// video stream for mic-only degradation.
func (a *Acquisition) EnsureDisplay(ctx context.Context) error {
	a.mu.Lock()
	if a.displayAttempted {
		defer a.mu.Unlock()
		if a.states[CapabilityScreenAudio] == PermissionGranted {
			return nil
		}
		if a.states[CapabilityScreenShare] == PermissionGranted {
			return internal_type.ErrDisplayAudioMissing
		}
		return internal_type.ErrPermissionDenied
	}
	a.displayAttempted = true
	a.states[CapabilityScreenShare] = PermissionChecking
	a.states[CapabilityScreenAudio] = PermissionChecking
	a.mu.Unlock()

	stream, err := a.provider.AcquireDisplayWithAudio(ctx)
	if err != nil && !errors.Is(err, internal_type.ErrDisplayAudioMissing) {
		a.setState(CapabilityScreenShare, PermissionDenied)
		a.setState(CapabilityScreenAudio, PermissionDenied)
		a.logger.Warnw("display acquisition failed", "error", err)
		return err
	}

	a.mu.Lock()
	a.displayStream = stream
	a.states[CapabilityScreenShare] = PermissionGranted
	if len(stream.AudioTracks()) == 0 {
		a.states[CapabilityScreenAudio] = PermissionDenied
		a.displayHint = true
		a.mu.Unlock()
		a.logger.Warnw("display capture granted without audio, degrading to mic-only")
		return internal_type.ErrDisplayAudioMissing
	}
	a.states[CapabilityScreenAudio] = PermissionGranted
	a.mu.Unlock()
	return nil
}

// RetryDisplay clears the one-shot attempted flag after an explicit
// user retry and reruns the acquisition. Denial stays terminal until
// this is called.
func (a *Acquisition) RetryDisplay(ctx context.Context) error {
	a.mu.Lock()
	if a.displayStream != nil {
		a.displayStream.Teardown()
		a.displayStream = nil
	}
	a.displayAttempted = false
	a.mu.Unlock()
	return a.EnsureDisplay(ctx)
}

// DisplayStream returns the cached display stream, nil before
// EnsureDisplay succeeds.
func (a *Acquisition) DisplayStream() *internal_type.MediaStream {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.displayStream
}

// AcquireCamera acquires the camera stream for recording (not a probe;
// the caller owns the stream).
func (a *Acquisition) AcquireCamera(ctx context.Context) (*internal_type.MediaStream, error) {
	return a.acquireOwned(ctx, CapabilityCamera, a.provider.AcquireCamera)
}

// AcquireMicrophone acquires the microphone stream for recording.
func (a *Acquisition) AcquireMicrophone(ctx context.Context) (*internal_type.MediaStream, error) {
	return a.acquireOwned(ctx, CapabilityMicrophone, a.provider.AcquireMicrophone)
}

func (a *Acquisition) acquireOwned(ctx context.Context, cap Capability, acquire func(context.Context) (*internal_type.MediaStream, error)) (*internal_type.MediaStream, error) {
	stream, err := acquire(ctx)
	if err != nil {
		a.setState(cap, PermissionDenied)
		return nil, err
	}
	a.setState(cap, PermissionGranted)
	return stream, nil
}

// Teardown releases the cached display stream. Part of the
// unconditional session cleanup contract.
func (a *Acquisition) Teardown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.displayStream != nil {
		a.displayStream.Teardown()
		a.displayStream = nil
	}
}

func (a *Acquisition) setState(cap Capability, state PermissionState) {
	a.mu.Lock()
	a.states[cap] = state
	a.mu.Unlock()
}
