// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package channel_webrtc

import (
	"context"
	"fmt"
	"time"

	internal_audio "github.com/vettaai/api/interview-api/internal/audio"
	internal_dialogue "github.com/vettaai/api/interview-api/internal/dialogue"
	internal_speech "github.com/vettaai/api/interview-api/internal/speech"
	"github.com/vettaai/pkg/commons"
)

// ============================================================================
// Speech adapters - bind the media channel to the dialogue layer
// ============================================================================

// NewSpeaker adapts a text-to-speech provider and the channel playback
// lane into the dialogue Speaker. Speak returns after the synthesized
// audio has had its real-time duration to drain through the paced
// playback writer.
func NewSpeaker(logger commons.Logger, tts internal_speech.TextToSpeech, channel *Channel) internal_dialogue.Speaker {
	return &ttsSpeaker{logger: logger, tts: tts, channel: channel}
}

type ttsSpeaker struct {
	logger  commons.Logger
	tts     internal_speech.TextToSpeech
	channel *Channel
}

func (s *ttsSpeaker) Speak(ctx context.Context, text string) error {
	audio, err := s.tts.Synthesize(ctx, text)
	if err != nil {
		return fmt.Errorf("speech synthesis failed: %w", err)
	}
	s.channel.PlayAudio(audio)

	bytesPerMS := internal_audio.BytesPerSecond(internal_audio.VETTA_INTERNAL_AUDIO_CONFIG) / 1000
	spoken := time.Duration(len(audio)/bytesPerMS) * time.Millisecond

	timer := time.NewTimer(spoken)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.channel.Done():
		return fmt.Errorf("media channel closed during playback")
	}
}

// NewRecognizer adapts a speech-to-text provider into the dialogue
// Recognizer, fed by the channel's microphone tap. The tap stays
// registered across Start/Stop cycles; the recognizer only transcribes
// between them.
func NewRecognizer(logger commons.Logger, stt internal_speech.SpeechToText, channel *Channel) internal_dialogue.Recognizer {
	r := &sttRecognizer{
		logger:  logger,
		stt:     stt,
		channel: channel,
		out:     make(chan internal_dialogue.Utterance, 16),
	}
	channel.SetMicrophoneTap(func(pcm []byte) {
		if err := stt.WriteAudio(context.Background(), pcm); err != nil {
			logger.Debugw("failed to feed recognizer audio", "error", err)
		}
	})
	go r.pump()
	return r
}

type sttRecognizer struct {
	logger  commons.Logger
	stt     internal_speech.SpeechToText
	channel *Channel
	out     chan internal_dialogue.Utterance
}

func (r *sttRecognizer) Start(ctx context.Context) error {
	return r.stt.Start(ctx)
}

func (r *sttRecognizer) Stop() error {
	return r.stt.Stop()
}

func (r *sttRecognizer) Results() <-chan internal_dialogue.Utterance {
	return r.out
}

// pump converts provider transcripts into dialogue utterances. Interim
// hypotheses are dropped; the dialogue layer accumulates finals only.
func (r *sttRecognizer) pump() {
	defer close(r.out)
	for transcript := range r.stt.Results() {
		if transcript.Err != nil {
			r.out <- internal_dialogue.Utterance{Err: transcript.Err}
			continue
		}
		if !transcript.IsFinal || transcript.Text == "" {
			continue
		}
		r.out <- internal_dialogue.Utterance{Text: transcript.Text}
	}
}
