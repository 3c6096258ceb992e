// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_type

import "errors"

// Session error taxonomy. Media acquisition failures block progression
// into recording and are retryable per capability; chunk failures are
// reported but never abort a live recording.
var (
	// ErrPermissionDenied - the candidate rejected the device prompt.
	// Terminal for the capability until an explicit manual retry.
	ErrPermissionDenied = errors.New("media permission denied")

	// ErrDeviceNotFound - no matching capture device exists.
	ErrDeviceNotFound = errors.New("capture device not found")

	// ErrDeviceBusy - the device is locked by another consumer.
	ErrDeviceBusy = errors.New("capture device busy")

	// ErrUnsupported - the runtime cannot provide this capability at all.
	ErrUnsupported = errors.New("capability not supported")

	// ErrDisplayAudioMissing - display capture was granted but carries
	// zero audio tracks (candidate declined "share audio"). Distinct from
	// ErrPermissionDenied: the session degrades to mic-only audio and
	// surfaces a corrective hint instead of failing.
	ErrDisplayAudioMissing = errors.New("display capture has no audio track")

	// ErrRecognition - continuous speech recognition failed. Recoverable:
	// listening stops, the candidate may start it again.
	ErrRecognition = errors.New("speech recognition failed")

	// ErrNetworkChunkFailure - one upload block failed after retries.
	// Reported, never fatal to the recording.
	ErrNetworkChunkFailure = errors.New("chunk upload failed")

	// ErrFinalizeFailure - the block list could not be committed. Fatal
	// to the submission attempt.
	ErrFinalizeFailure = errors.New("upload finalize failed")

	// ErrSessionTimeout - the submission guard fired before finalization
	// completed. Resources are force-released.
	ErrSessionTimeout = errors.New("submission timed out")

	// ErrBackendRejection - the interview backend rejected a request.
	ErrBackendRejection = errors.New("interview backend rejected request")
)
