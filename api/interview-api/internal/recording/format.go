// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_recording

// RecordingFormat is the immutable container/codec tuple selected once
// at recording start. It never changes mid-recording.
type RecordingFormat struct {
	MimeType      string
	FileExtension string
}

// SupportPredicate reports whether the session can produce the given
// mime type. In production it is derived from the codecs negotiated on
// the media channel; tests inject fixed predicates.
type SupportPredicate func(mimeType string) bool

// DefaultFormatCandidates is the ranked preference list. First
// supported entry wins.
var DefaultFormatCandidates = []RecordingFormat{
	{MimeType: "video/webm;codecs=vp9,opus", FileExtension: ".webm"},
	{MimeType: "video/webm;codecs=vp8,opus", FileExtension: ".webm"},
	{MimeType: "video/webm;codecs=h264,opus", FileExtension: ".webm"},
	{MimeType: "video/mp4", FileExtension: ".mp4"},
}

// FallbackFormat is the guaranteed-supported default used when no
// candidate matches.
var FallbackFormat = RecordingFormat{MimeType: "video/webm", FileExtension: ".webm"}

// ChooseFormat picks the first candidate the predicate accepts,
// falling back to fallback when none match. Pure decision function -
// no device access, deterministic for a fixed predicate.
func ChooseFormat(supported SupportPredicate, candidates []RecordingFormat, fallback RecordingFormat) RecordingFormat {
	for _, c := range candidates {
		if supported != nil && supported(c.MimeType) {
			return c
		}
	}
	return fallback
}
