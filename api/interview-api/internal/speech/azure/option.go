// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_speech_azure

import (
	"fmt"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/common"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
)

const (
	defaultLanguage = "en-US"
	defaultVoice    = "en-US-JennyNeural"
)

// azureOption holds the validated Azure Cognitive Services settings
// shared by the recognizer and the synthesizer.
type azureOption struct {
	logger          commons.Logger
	subscriptionKey string
	region          string
	language        string
	voice           string
}

func NewAzureOption(logger commons.Logger, cfg *configs.SpeechConfig) (*azureOption, error) {
	if cfg.Key == "" {
		return nil, fmt.Errorf("azure-speech: missing subscription key")
	}
	if cfg.Region == "" {
		return nil, fmt.Errorf("azure-speech: missing region")
	}
	opt := &azureOption{
		logger:          logger,
		subscriptionKey: cfg.Key,
		region:          cfg.Region,
		language:        cfg.Language,
		voice:           cfg.Voice,
	}
	if opt.language == "" {
		opt.language = defaultLanguage
	}
	if opt.voice == "" {
		opt.voice = defaultVoice
	}
	return opt, nil
}

// GetAudioStreamFormat is the push-stream input format: 16kHz 16-bit
// mono PCM, the pipeline's internal audio format.
func (o *azureOption) GetAudioStreamFormat() (*audio.AudioStreamFormat, error) {
	return audio.GetWaveFormatPCM(16000, 16, 1)
}

// GetSpeechSynthesisOutputFormat matches the input format so synthesis
// output can feed the mixer's system lane without conversion.
func (o *azureOption) GetSpeechSynthesisOutputFormat() common.SpeechSynthesisOutputFormat {
	return common.Raw16Khz16BitMonoPcm
}
