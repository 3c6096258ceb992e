// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package webrtc_internal

import (
	"encoding/binary"
	"fmt"

	"gopkg.in/hraban/opus.v2"
)

const (
	// codecSampleRate is the PCM rate on the application side of the
	// codec. Opus decodes and encodes natively at 16kHz, so no separate
	// resample stage sits between the wire and the pipeline.
	codecSampleRate = 16000
	codecChannels   = 1

	// maxOpusFrameSamples is the largest legal Opus frame (120ms) at
	// the codec rate.
	maxOpusFrameSamples = codecSampleRate * 120 / 1000

	// encodeFrameSamples is one 20ms frame at the codec rate.
	encodeFrameSamples = codecSampleRate * OpusFrameDuration / 1000

	maxEncodedBytes = 1275 // largest possible Opus packet
)

// OpusCodec converts between Opus packets on the wire and LINEAR16
// mono 16kHz PCM in the pipeline. Not safe for concurrent use; each
// track reader owns its own instance.
type OpusCodec struct {
	decoder *opus.Decoder
	encoder *opus.Encoder

	decodePCM []int16
	encodePCM []int16
	encodeBuf []byte
}

func NewOpusCodec() (*OpusCodec, error) {
	decoder, err := opus.NewDecoder(codecSampleRate, codecChannels)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus decoder: %w", err)
	}
	encoder, err := opus.NewEncoder(codecSampleRate, codecChannels, opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("failed to create opus encoder: %w", err)
	}
	return &OpusCodec{
		decoder:   decoder,
		encoder:   encoder,
		decodePCM: make([]int16, maxOpusFrameSamples),
		encodePCM: make([]int16, encodeFrameSamples),
		encodeBuf: make([]byte, maxEncodedBytes),
	}, nil
}

// Decode converts one Opus packet into little-endian LINEAR16 PCM.
func (c *OpusCodec) Decode(packet []byte) ([]byte, error) {
	n, err := c.decoder.Decode(packet, c.decodePCM)
	if err != nil {
		return nil, fmt.Errorf("opus decode failed: %w", err)
	}
	out := make([]byte, n*2)
	for i := 0; i < n; i++ {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(c.decodePCM[i]))
	}
	return out, nil
}

// Encode converts one 20ms LINEAR16 PCM frame (PlaybackFrameBytes
// bytes) into a single Opus packet.
func (c *OpusCodec) Encode(pcm []byte) ([]byte, error) {
	if len(pcm) != PlaybackFrameBytes {
		return nil, fmt.Errorf("expected %d byte frame, got %d", PlaybackFrameBytes, len(pcm))
	}
	for i := range c.encodePCM {
		c.encodePCM[i] = int16(binary.LittleEndian.Uint16(pcm[i*2:]))
	}
	n, err := c.encoder.Encode(c.encodePCM, c.encodeBuf)
	if err != nil {
		return nil, fmt.Errorf("opus encode failed: %w", err)
	}
	out := make([]byte, n)
	copy(out, c.encodeBuf[:n])
	return out, nil
}
