// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_recording

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChooseFormat_FirstSupportedWins(t *testing.T) {
	tests := []struct {
		name      string
		supported map[string]bool
		expected  RecordingFormat
	}{
		{
			name:      "all supported picks ranked first",
			supported: map[string]bool{"video/webm;codecs=vp9,opus": true, "video/webm;codecs=vp8,opus": true},
			expected:  DefaultFormatCandidates[0],
		},
		{
			name:      "vp9 unsupported falls through to vp8",
			supported: map[string]bool{"video/webm;codecs=vp8,opus": true, "video/mp4": true},
			expected:  DefaultFormatCandidates[1],
		},
		{
			name:      "only mp4 supported",
			supported: map[string]bool{"video/mp4": true},
			expected:  DefaultFormatCandidates[3],
		},
		{
			name:      "none supported falls back to default",
			supported: map[string]bool{},
			expected:  FallbackFormat,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ChooseFormat(func(mime string) bool { return tt.supported[mime] }, DefaultFormatCandidates, FallbackFormat)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestChooseFormat_Deterministic(t *testing.T) {
	pred := func(mime string) bool { return mime == "video/webm;codecs=vp8,opus" }
	first := ChooseFormat(pred, DefaultFormatCandidates, FallbackFormat)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, ChooseFormat(pred, DefaultFormatCandidates, FallbackFormat))
	}
}

func TestChooseFormat_NilPredicateFallsBack(t *testing.T) {
	assert.Equal(t, FallbackFormat, ChooseFormat(nil, DefaultFormatCandidates, FallbackFormat))
}
