// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_speech_azure

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	internal_speech "github.com/vettaai/api/interview-api/internal/speech"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
)

type azureTextToSpeech struct {
	*azureOption
	mu          sync.Mutex
	logger      commons.Logger
	synthesizer *speech.SpeechSynthesizer
}

// Name implements internal_speech.TextToSpeech.
func (*azureTextToSpeech) Name() string {
	return "azure-text-to-speech"
}

func NewAzureTextToSpeech(logger commons.Logger, cfg *configs.SpeechConfig) (internal_speech.TextToSpeech, error) {
	opt, err := NewAzureOption(logger, cfg)
	if err != nil {
		logger.Errorf("azure-tts: initializing azure failed %+v", err)
		return nil, err
	}
	return &azureTextToSpeech{
		azureOption: opt,
		logger:      logger,
	}, nil
}

func (att *azureTextToSpeech) Initialize() error {
	att.mu.Lock()
	defer att.mu.Unlock()

	speechConfig, err := speech.NewSpeechConfigFromSubscription(att.subscriptionKey, att.region)
	if err != nil {
		return fmt.Errorf("azure-tts: speech config: %w", err)
	}
	defer speechConfig.Close()

	if err := speechConfig.SetSpeechSynthesisVoiceName(att.voice); err != nil {
		return fmt.Errorf("azure-tts: set voice %s: %w", att.voice, err)
	}
	if err := speechConfig.SetSpeechSynthesisOutputFormat(att.GetSpeechSynthesisOutputFormat()); err != nil {
		return fmt.Errorf("azure-tts: set output format: %w", err)
	}

	// No audio output device: synthesis stays in memory for the
	// playback track and the recording's system lane.
	synthesizer, err := speech.NewSpeechSynthesizerFromConfig(speechConfig, nil)
	if err != nil {
		return fmt.Errorf("azure-tts: synthesizer: %w", err)
	}
	att.synthesizer = synthesizer
	return nil
}

func (att *azureTextToSpeech) Synthesize(ctx context.Context, text string) ([]byte, error) {
	att.mu.Lock()
	synthesizer := att.synthesizer
	att.mu.Unlock()

	if synthesizer == nil {
		return nil, fmt.Errorf("azure-tts: synthesizer is not initialized")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("azure-tts: nothing to synthesize")
	}

	select {
	case outcome := <-synthesizer.SpeakTextAsync(text):
		defer outcome.Close()
		if outcome.Error != nil {
			return nil, fmt.Errorf("azure-tts: synthesis failed: %w", outcome.Error)
		}
		att.logger.Debugw("azure-tts: synthesized", "chars", len(text), "bytes", len(outcome.Result.AudioData))
		return outcome.Result.AudioData, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (att *azureTextToSpeech) Close(ctx context.Context) error {
	att.mu.Lock()
	defer att.mu.Unlock()

	if att.synthesizer != nil {
		att.synthesizer.Close()
		att.synthesizer = nil
	}
	att.logger.Info("azure-tts: synthesizer closed")
	return nil
}
