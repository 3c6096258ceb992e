// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.
package internal_mixer

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	internal_audio "github.com/vettaai/api/interview-api/internal/audio"
	internal_media "github.com/vettaai/api/interview-api/internal/media"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

var audioConfig = internal_audio.VETTA_INTERNAL_AUDIO_CONFIG

const (
	// mixFrameMS is the mixing window. 20ms at 16kHz mono LINEAR16.
	mixFrameMS = 20

	trackMic    = 0
	trackSystem = 1
)

func mixFrameBytes() int {
	return internal_audio.BytesPerSecond(audioConfig) * mixFrameMS / 1000
}

// Mixer combines the microphone track and the system (display) audio
// track into a single PCM output track. When the system source is
// absent or carries no live audio, the mixer degrades to passing the
// microphone track through unchanged.
//
// The mixer is owned by the recording session and must be closed on
// teardown - the mixing goroutines hold the source tracks open and
// leak across interview attempts otherwise.
type Mixer struct {
	logger commons.Logger

	mic    internal_type.MediaTrack
	system internal_type.MediaTrack
	out    *internal_media.Track

	// passthrough is set when system audio is unavailable; Output()
	// then returns the raw microphone track.
	passthrough bool

	interval time.Duration
	bufs     [2]bytes.Buffer
	bufMu    [2]sync.Mutex

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMixer wires micStream and displayStream into one combined audio
// lane. displayStream may be nil. Display video tracks are disabled,
// never stopped: stopping them would kill the display capture and the
// audio track with it.
func NewMixer(logger commons.Logger, micStream, displayStream *internal_type.MediaStream) (*Mixer, error) {
	micTracks := micStream.AudioTracks()
	if len(micTracks) == 0 {
		return nil, fmt.Errorf("microphone stream has no audio track")
	}
	mic := micTracks[0]

	m := &Mixer{
		logger:   logger,
		mic:      mic,
		interval: mixFrameMS * time.Millisecond,
		done:     make(chan struct{}),
	}

	var system internal_type.MediaTrack
	if displayStream != nil {
		for _, v := range displayStream.VideoTracks() {
			v.SetEnabled(false)
		}
		if audio := displayStream.AudioTracks(); len(audio) > 0 && audio[0].Live() {
			system = audio[0]
		}
	}

	if system == nil {
		m.passthrough = true
		logger.Infow("system audio unavailable, mixer degrading to mic-only")
		return m, nil
	}

	m.system = system
	m.out = internal_media.NewTrack("mixed-audio", internal_type.TrackKindAudio, "pcm16")

	m.wg.Add(3)
	go m.drain(mic, trackMic)
	go m.drain(system, trackSystem)
	go m.run()
	return m, nil
}

// Output returns the single combined audio track (the raw mic track in
// passthrough mode).
func (m *Mixer) Output() internal_type.MediaTrack {
	if m.passthrough {
		return m.mic
	}
	return m.out
}

// drain moves source frames into the per-lane accumulation buffer.
func (m *Mixer) drain(track internal_type.MediaTrack, lane int) {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case frame, ok := <-track.Frames():
			if !ok {
				return
			}
			m.bufMu[lane].Lock()
			m.bufs[lane].Write(frame.Data)
			m.bufMu[lane].Unlock()
		}
	}
}

// run emits one mixed frame per tick. A lane with less than a full
// window contributes what it has, padded with silence, so a quiet
// system lane never stalls microphone audio.
func (m *Mixer) run() {
	defer m.wg.Done()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	var ts int64
	for {
		select {
		case <-m.done:
			return
		case <-ticker.C:
			frame := m.mixFrame()
			if frame == nil {
				continue
			}
			m.out.Push(internal_type.Frame{Data: frame, TimestampMS: ts})
			ts += mixFrameMS
		}
	}
}

func (m *Mixer) mixFrame() []byte {
	want := mixFrameBytes()

	lanes := [2][]byte{}
	total := 0
	for lane := 0; lane < 2; lane++ {
		m.bufMu[lane].Lock()
		n := m.bufs[lane].Len()
		if n > want {
			n = want
		}
		// Next returns a slice aliasing the buffer's internal array;
		// copy it out before releasing the lane lock or the drain
		// goroutine's next Write invalidates it mid-mix.
		lanes[lane] = append(lanes[lane], m.bufs[lane].Next(n)...)
		m.bufMu[lane].Unlock()
		total += n
	}
	if total == 0 {
		return nil
	}

	out := make([]byte, want)
	for i := 0; i < want; i += internal_audio.BytesPerSample {
		var sum int32
		for lane := 0; lane < 2; lane++ {
			if i+1 < len(lanes[lane]) {
				sum += int32(int16(binary.LittleEndian.Uint16(lanes[lane][i:])))
			}
		}
		// Saturate instead of wrapping; clipped speech beats garbage.
		if sum > 32767 {
			sum = 32767
		} else if sum < -32768 {
			sum = -32768
		}
		binary.LittleEndian.PutUint16(out[i:], uint16(int16(sum)))
	}
	return out
}

// Close tears the mixing graph down and closes the output track. Safe
// to call more than once. Source tracks are left for their owner (the
// combined stream teardown) to stop.
func (m *Mixer) Close() {
	m.closeOnce.Do(func() {
		if m.passthrough {
			return
		}
		close(m.done)
		m.wg.Wait()
		m.out.Stop()
	})
}
