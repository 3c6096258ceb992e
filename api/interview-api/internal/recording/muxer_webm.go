// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_recording

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/at-wat/ebml-go/webm"
	internal_audio "github.com/vettaai/api/interview-api/internal/audio"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	opus "gopkg.in/hraban/opus.v2"
)

const (
	// opusFrameMS is the packet duration fed to the audio lane.
	opusFrameMS      = 20
	maxOpusPacketLen = 1275
)

// segmentBuffer is the io.WriteCloser handed to the webm block writer.
// The muxer drains it on the session's segment interval.
type segmentBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (s *segmentBuffer) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buf.Write(p)
}

func (s *segmentBuffer) Close() error { return nil }

func (s *segmentBuffer) drain() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.buf.Len() == 0 {
		return nil
	}
	out := make([]byte, s.buf.Len())
	s.buf.Read(out)
	return out
}

// webmMuxer produces streamable WebM: mixed-audio PCM is Opus-encoded
// into the audio lane, encoded camera frames pass through into the
// video lane. Concatenating the drained segments in order reproduces
// the full container, which is what the commit step does store-side.
type webmMuxer struct {
	mu     sync.Mutex
	buf    *segmentBuffer
	audio  webm.BlockWriteCloser
	video  webm.BlockWriteCloser
	enc    *opus.Encoder
	pcm    []byte
	ts     int64
	closed bool
}

// NewWebmMuxer builds the production muxer for a webm-family format.
func NewWebmMuxer(format RecordingFormat) (Muxer, error) {
	cfg := internal_audio.VETTA_INTERNAL_AUDIO_CONFIG

	enc, err := opus.NewEncoder(int(cfg.SampleRate), int(cfg.Channels), opus.AppVoIP)
	if err != nil {
		return nil, fmt.Errorf("create opus encoder: %w", err)
	}

	buf := &segmentBuffer{}
	writers, err := webm.NewSimpleBlockWriter(buf, []webm.TrackEntry{
		{
			Name:        "Audio",
			TrackNumber: 1,
			TrackUID:    1,
			CodecID:     "A_OPUS",
			TrackType:   2,
			Audio: &webm.Audio{
				SamplingFrequency: float64(cfg.SampleRate),
				Channels:          uint64(cfg.Channels),
			},
		},
		{
			Name:        "Video",
			TrackNumber: 2,
			TrackUID:    2,
			CodecID:     videoCodecID(format.MimeType),
			TrackType:   1,
			Video: &webm.Video{
				PixelWidth:  1280,
				PixelHeight: 720,
			},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("create webm writer: %w", err)
	}

	return &webmMuxer{
		buf:   buf,
		audio: writers[0],
		video: writers[1],
		enc:   enc,
	}, nil
}

func videoCodecID(mimeType string) string {
	switch {
	case strings.Contains(mimeType, "vp9"):
		return "V_VP9"
	case strings.Contains(mimeType, "h264"):
		return "V_MPEG4/ISO/AVC"
	default:
		return "V_VP8"
	}
}

func (m *webmMuxer) WriteVideo(frame internal_type.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	_, err := m.video.Write(frame.Keyframe, frame.TimestampMS, frame.Data)
	return err
}

// WriteAudio accumulates PCM and emits fixed 20ms Opus packets. The
// residue below one packet stays buffered for the next call.
func (m *webmMuxer) WriteAudio(frame internal_type.Frame) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}

	m.pcm = append(m.pcm, frame.Data...)
	frameBytes := internal_audio.BytesPerSecond(internal_audio.VETTA_INTERNAL_AUDIO_CONFIG) * opusFrameMS / 1000

	packet := make([]byte, maxOpusPacketLen)
	for len(m.pcm) >= frameBytes {
		samples := bytesToInt16(m.pcm[:frameBytes])
		m.pcm = m.pcm[frameBytes:]

		n, err := m.enc.Encode(samples, packet)
		if err != nil {
			return fmt.Errorf("opus encode: %w", err)
		}
		if _, err := m.audio.Write(true, m.ts, packet[:n]); err != nil {
			return err
		}
		m.ts += opusFrameMS
	}
	return nil
}

func (m *webmMuxer) Segment() []byte {
	return m.buf.drain()
}

func (m *webmMuxer) Close() ([]byte, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, nil
	}
	m.closed = true
	m.mu.Unlock()

	// Closing both lanes finalizes the container trailer into buf.
	if err := m.audio.Close(); err != nil {
		return nil, err
	}
	if err := m.video.Close(); err != nil {
		return nil, err
	}
	return m.buf.drain(), nil
}

func bytesToInt16(b []byte) []int16 {
	out := make([]int16, len(b)/2)
	for i := range out {
		out[i] = int16(b[2*i]) | int16(b[2*i+1])<<8
	}
	return out
}
