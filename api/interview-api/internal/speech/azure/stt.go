// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package internal_speech_azure

import (
	"context"
	"fmt"
	"sync"

	"github.com/Microsoft/cognitive-services-speech-sdk-go/audio"
	"github.com/Microsoft/cognitive-services-speech-sdk-go/speech"
	internal_speech "github.com/vettaai/api/interview-api/internal/speech"
	"github.com/vettaai/pkg/commons"
	"github.com/vettaai/pkg/configs"
)

type azureSpeechToText struct {
	*azureOption
	mu         sync.Mutex
	logger     commons.Logger
	pushStream *audio.PushAudioInputStream
	recognizer *speech.SpeechRecognizer
	running    bool

	// resultsMu orders push against Close; a callback can still be in
	// flight on the SDK thread when the recognizer is closed.
	resultsMu sync.Mutex
	results   chan internal_speech.Transcript
	closed    bool
}

// Name implements internal_speech.SpeechToText.
func (*azureSpeechToText) Name() string {
	return "azure-speech-to-text"
}

func NewAzureSpeechToText(logger commons.Logger, cfg *configs.SpeechConfig) (internal_speech.SpeechToText, error) {
	opt, err := NewAzureOption(logger, cfg)
	if err != nil {
		logger.Errorf("azure-stt: initializing azure failed %+v", err)
		return nil, err
	}
	return &azureSpeechToText{
		azureOption: opt,
		logger:      logger,
		results:     make(chan internal_speech.Transcript, 32),
	}, nil
}

func (ast *azureSpeechToText) Initialize() error {
	ast.mu.Lock()
	defer ast.mu.Unlock()

	format, err := ast.GetAudioStreamFormat()
	if err != nil {
		return fmt.Errorf("azure-stt: audio stream format: %w", err)
	}
	defer format.Close()

	pushStream, err := audio.CreatePushAudioInputStreamFromFormat(format)
	if err != nil {
		return fmt.Errorf("azure-stt: push stream: %w", err)
	}

	audioConfig, err := audio.NewAudioConfigFromStreamInput(pushStream)
	if err != nil {
		pushStream.Close()
		return fmt.Errorf("azure-stt: audio config: %w", err)
	}
	defer audioConfig.Close()

	speechConfig, err := speech.NewSpeechConfigFromSubscription(ast.subscriptionKey, ast.region)
	if err != nil {
		pushStream.Close()
		return fmt.Errorf("azure-stt: speech config: %w", err)
	}
	defer speechConfig.Close()

	if err := speechConfig.SetSpeechRecognitionLanguage(ast.language); err != nil {
		pushStream.Close()
		return fmt.Errorf("azure-stt: set language %s: %w", ast.language, err)
	}

	recognizer, err := speech.NewSpeechRecognizerFromConfig(speechConfig, audioConfig)
	if err != nil {
		pushStream.Close()
		return fmt.Errorf("azure-stt: recognizer: %w", err)
	}

	recognizer.Recognized(func(event speech.SpeechRecognitionEventArgs) {
		defer event.Close()
		text := event.Result.Text
		if text == "" {
			return
		}
		ast.logger.Debugw("azure-stt: recognized", "text", text)
		ast.push(internal_speech.Transcript{Text: text, Confidence: 0.9, IsFinal: true})
	})

	recognizer.Canceled(func(event speech.SpeechRecognitionCanceledEventArgs) {
		defer event.Close()
		if event.ErrorDetails == "" {
			return
		}
		ast.logger.Errorw("azure-stt: recognition canceled", "details", event.ErrorDetails)
		ast.push(internal_speech.Transcript{Err: fmt.Errorf("azure-stt: %s", event.ErrorDetails)})
	})

	ast.pushStream = pushStream
	ast.recognizer = recognizer
	return nil
}

// push delivers a transcript without blocking the SDK callback thread.
// Late callbacks arriving after Close are dropped.
func (ast *azureSpeechToText) push(t internal_speech.Transcript) {
	ast.resultsMu.Lock()
	defer ast.resultsMu.Unlock()
	if ast.closed {
		return
	}
	select {
	case ast.results <- t:
	default:
		ast.logger.Warnw("azure-stt: dropping transcript, consumer is behind")
	}
}

func (ast *azureSpeechToText) Start(ctx context.Context) error {
	ast.mu.Lock()
	defer ast.mu.Unlock()

	if ast.recognizer == nil {
		return fmt.Errorf("azure-stt: recognizer is not initialized")
	}
	if ast.running {
		return nil
	}
	select {
	case err := <-ast.recognizer.StartContinuousRecognitionAsync():
		if err != nil {
			return fmt.Errorf("azure-stt: start continuous recognition: %w", err)
		}
	case <-ctx.Done():
		return ctx.Err()
	}
	ast.running = true
	return nil
}

func (ast *azureSpeechToText) Stop() error {
	ast.mu.Lock()
	defer ast.mu.Unlock()

	if ast.recognizer == nil || !ast.running {
		return nil
	}
	if err := <-ast.recognizer.StopContinuousRecognitionAsync(); err != nil {
		return fmt.Errorf("azure-stt: stop continuous recognition: %w", err)
	}
	ast.running = false
	return nil
}

func (ast *azureSpeechToText) WriteAudio(ctx context.Context, pcm []byte) error {
	ast.mu.Lock()
	defer ast.mu.Unlock()

	if ast.pushStream == nil {
		return fmt.Errorf("azure-stt: push stream is not initialized")
	}
	if err := ast.pushStream.Write(pcm); err != nil {
		return fmt.Errorf("azure-stt: write audio: %w", err)
	}
	return nil
}

func (ast *azureSpeechToText) Results() <-chan internal_speech.Transcript {
	return ast.results
}

func (ast *azureSpeechToText) Close(ctx context.Context) error {
	ast.mu.Lock()
	defer ast.mu.Unlock()

	if ast.pushStream != nil {
		ast.pushStream.CloseStream()
		ast.pushStream = nil
	}
	if ast.recognizer != nil {
		ast.recognizer.Close()
		ast.recognizer = nil
	}

	ast.resultsMu.Lock()
	if !ast.closed {
		ast.closed = true
		close(ast.results)
	}
	ast.resultsMu.Unlock()

	ast.logger.Info("azure-stt: recognizer closed")
	return nil
}
