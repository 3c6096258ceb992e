// Copyright (c) 2024-2026 VettaAI
// Author: Arjun Mehta <arjun@vetta.ai>
//
// Licensed under GPL-2.0 with Vetta Additional Terms.
// See LICENSE.md or contact sales@vetta.ai for commercial usage.

package channel_webrtc

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/pion/interceptor"
	"github.com/pion/rtp"
	"github.com/pion/rtp/codecs"
	pionwebrtc "github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/samplebuilder"
	internal_audio "github.com/vettaai/api/interview-api/internal/audio"
	webrtc_internal "github.com/vettaai/api/interview-api/internal/channel/webrtc/internal"
	internal_media "github.com/vettaai/api/interview-api/internal/media"
	internal_type "github.com/vettaai/api/interview-api/internal/type"
	"github.com/vettaai/pkg/commons"
)

// ============================================================================
// Channel - WebRTC media with WebSocket signaling
// ============================================================================

// Channel owns one candidate's media plane: a Pion peer connection
// carrying the camera, microphone and display tracks upstream and the
// interviewer voice downstream, with JSON signaling over the session
// WebSocket. It implements internal_media.DeviceProvider: the
// candidate's browser is the capture device, and device acquisition
// resolves against permission reports plus arrived remote tracks.
type Channel struct {
	mu sync.Mutex

	logger commons.Logger
	config *webrtc_internal.Config
	conn   *websocket.Conn

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc

	sessionID string
	closed    bool // true once closeWithReason has run

	// Pion WebRTC
	pc         *pionwebrtc.PeerConnection
	localTrack *pionwebrtc.TrackLocalStaticSample
	opusCodec  *webrtc_internal.OpusCodec

	// signalCh: all outbound signaling funnelled here so the WebSocket
	// has exactly one writer goroutine.
	signalCh chan SignalMessage

	// playbackBuffer accumulates synthesized 16kHz PCM; the playback
	// writer drains it one paced 20ms Opus frame at a time.
	playbackBuffer bytes.Buffer
	playbackLock   sync.Mutex

	devices      map[string]*device
	remoteTracks map[string]*pionwebrtc.TrackRemote

	// micTap fans decoded microphone audio out to the recognizer in
	// addition to the acquired track.
	micTap func(pcm []byte)

	// Session-layer hooks for non-media signaling.
	onControl func(ControlSignal)
	onEvent   func(EventSignal)

	readerWg sync.WaitGroup
}

// device tracks resolution state for one client capability. ready is
// closed exactly once: either with a terminal err, or with all tracks
// named by the permission report arrived and their readers running.
type device struct {
	capability string
	ready      chan struct{}
	resolved   bool
	err        error

	report *PermissionSignal
	video  *trackSlot
	audio  *trackSlot

	// audioMissing marks a display grant whose report named no audio
	// track. The acquired stream then degrades to video-only.
	audioMissing bool
}

// trackSlot is the replaceable sink a remote-track reader pushes into.
// Permission probes tear their streams down immediately; the next
// acquisition swaps a fresh track in without re-reading the remote.
type trackSlot struct {
	mu  sync.Mutex
	out *internal_media.Track
}

func (s *trackSlot) current() *internal_media.Track {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.out
}

func (s *trackSlot) swap(t *internal_media.Track) {
	s.mu.Lock()
	s.out = t
	s.mu.Unlock()
}

func (s *trackSlot) push(frame internal_type.Frame) {
	if t := s.current(); t != nil {
		t.Push(frame)
	}
}

// NewChannel wires the peer connection over an accepted WebSocket and
// initiates the handshake (config -> offer -> answer -> ICE). The
// channel owns its own context (derived from context.Background) so
// cleanup is never short-circuited by the caller's context being
// cancelled first; a watcher goroutine propagates caller cancellation
// as a graceful close.
func NewChannel(ctx context.Context, logger commons.Logger, conn *websocket.Conn) (*Channel, error) {
	channelCtx, cancel := context.WithCancel(context.Background())

	opusCodec, err := webrtc_internal.NewOpusCodec()
	if err != nil {
		cancel()
		return nil, fmt.Errorf("failed to create Opus codec: %w", err)
	}

	c := &Channel{
		logger:       logger,
		config:       webrtc_internal.DefaultConfig(),
		conn:         conn,
		ctx:          channelCtx,
		cancel:       cancel,
		sessionID:    uuid.New().String(),
		opusCodec:    opusCodec,
		signalCh:     make(chan SignalMessage, webrtc_internal.SignalChannelSize),
		devices:      make(map[string]*device),
		remoteTracks: make(map[string]*pionwebrtc.TrackRemote),
	}

	if err := c.createPeerConnection(); err != nil {
		cancel()
		return nil, err
	}

	go c.runSocketReader()
	go c.runSocketWriter()
	go c.runPlaybackWriter()
	go c.watchCallerContext(ctx)

	if err := c.initiateHandshake(); err != nil {
		c.closeWithReason(webrtc_internal.DisconnectReasonUnknown)
		return nil, err
	}
	return c, nil
}

func (c *Channel) SessionID() string { return c.sessionID }

// Done is closed when the channel has shut down for any reason.
func (c *Channel) Done() <-chan struct{} { return c.ctx.Done() }

// SetMicrophoneTap registers a sink for decoded microphone PCM. One
// tap at a time; pass nil to remove.
func (c *Channel) SetMicrophoneTap(fn func(pcm []byte)) {
	c.mu.Lock()
	c.micTap = fn
	c.mu.Unlock()
}

// SetControlHandler registers the sink for interview control actions.
func (c *Channel) SetControlHandler(fn func(ControlSignal)) {
	c.mu.Lock()
	c.onControl = fn
	c.mu.Unlock()
}

// SetEventHandler registers the sink for proctoring event reports.
func (c *Channel) SetEventHandler(fn func(EventSignal)) {
	c.mu.Lock()
	c.onEvent = fn
	c.mu.Unlock()
}

// SendState pushes an interview state update to the client.
func (c *Channel) SendState(state StateSignal) {
	c.pushSignal(SignalMessage{Type: SignalState, SessionID: c.sessionID, State: &state})
}

// SendNotice pushes a non-fatal hint or error text to the client.
func (c *Channel) SendNotice(text string) {
	c.pushSignal(SignalMessage{Type: SignalNotice, SessionID: c.sessionID, Notice: text})
}

// ============================================================================
// Peer Connection Setup
// ============================================================================

func (c *Channel) createPeerConnection() error {
	mediaEngine := &pionwebrtc.MediaEngine{}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:    pionwebrtc.MimeTypeOpus,
			ClockRate:   webrtc_internal.OpusSampleRate,
			Channels:    webrtc_internal.OpusChannels,
			SDPFmtpLine: webrtc_internal.OpusSDPFmtpLine,
		},
		PayloadType: webrtc_internal.OpusPayloadType,
	}, pionwebrtc.RTPCodecTypeAudio); err != nil {
		return fmt.Errorf("failed to register Opus codec: %w", err)
	}
	if err := mediaEngine.RegisterCodec(pionwebrtc.RTPCodecParameters{
		RTPCodecCapability: pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeVP8,
			ClockRate: webrtc_internal.VP8ClockRate,
		},
		PayloadType: webrtc_internal.VP8PayloadType,
	}, pionwebrtc.RTPCodecTypeVideo); err != nil {
		return fmt.Errorf("failed to register VP8 codec: %w", err)
	}

	// Interceptors (default includes NACK for audio packet recovery)
	registry := &interceptor.Registry{}
	if err := pionwebrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return fmt.Errorf("failed to register interceptors: %w", err)
	}

	api := pionwebrtc.NewAPI(
		pionwebrtc.WithMediaEngine(mediaEngine),
		pionwebrtc.WithInterceptorRegistry(registry),
	)

	iceServers := make([]pionwebrtc.ICEServer, len(c.config.ICEServers))
	for i, srv := range c.config.ICEServers {
		iceServers[i] = pionwebrtc.ICEServer{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}

	pcConfig := pionwebrtc.Configuration{ICEServers: iceServers}
	if c.config.ICETransportPolicy == "relay" {
		pcConfig.ICETransportPolicy = pionwebrtc.ICETransportPolicyRelay
	}

	pc, err := api.NewPeerConnection(pcConfig)
	if err != nil {
		return fmt.Errorf("failed to create peer connection: %w", err)
	}

	// Two upstream audio lanes (microphone, display audio) and two
	// upstream video lanes (camera, display).
	recvonly := pionwebrtc.RTPTransceiverInit{Direction: pionwebrtc.RTPTransceiverDirectionRecvonly}
	for i := 0; i < 2; i++ {
		if _, err := pc.AddTransceiverFromKind(pionwebrtc.RTPCodecTypeAudio, recvonly); err != nil {
			pc.Close()
			return fmt.Errorf("failed to add audio transceiver: %w", err)
		}
		if _, err := pc.AddTransceiverFromKind(pionwebrtc.RTPCodecTypeVideo, recvonly); err != nil {
			pc.Close()
			return fmt.Errorf("failed to add video transceiver: %w", err)
		}
	}

	c.mu.Lock()
	c.pc = pc
	c.mu.Unlock()

	c.setupPeerEventHandlers()
	return c.createLocalTrack()
}

func (c *Channel) setupPeerEventHandlers() {
	c.pc.OnICECandidate(func(candidate *pionwebrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		cJSON := candidate.ToJSON()
		sig := &CandidateSignal{Candidate: cJSON.Candidate}
		if cJSON.SDPMid != nil {
			sig.SDPMid = *cJSON.SDPMid
		}
		if cJSON.SDPMLineIndex != nil {
			sig.SDPMLineIndex = int(*cJSON.SDPMLineIndex)
		}
		if cJSON.UsernameFragment != nil {
			sig.UsernameFragment = *cJSON.UsernameFragment
		}
		c.pushSignal(SignalMessage{Type: SignalICE, SessionID: c.sessionID, Candidate: sig})
	})

	c.pc.OnConnectionStateChange(func(state pionwebrtc.PeerConnectionState) {
		c.logger.Infow("media connection state changed", "state", state, "session", c.sessionID)
		switch state {
		case pionwebrtc.PeerConnectionStateConnected:
			c.pushSignal(SignalMessage{Type: SignalReady, SessionID: c.sessionID})
		case pionwebrtc.PeerConnectionStateFailed:
			c.logger.Errorw("media connection failed, closing channel", "session", c.sessionID)
			c.closeWithReason(webrtc_internal.DisconnectReasonConnectionFailed)
		case pionwebrtc.PeerConnectionStateDisconnected:
			// Transient state. ICE may recover; the track readers ride
			// it out and the recording keeps its already decoded frames.
			c.logger.Warnw("media peer disconnected, waiting for recovery", "session", c.sessionID)
		}
	})

	c.pc.OnTrack(func(track *pionwebrtc.TrackRemote, _ *pionwebrtc.RTPReceiver) {
		c.logger.Infow("remote track received",
			"id", track.ID(), "kind", track.Kind().String(), "codec", track.Codec().MimeType)
		c.mu.Lock()
		c.remoteTracks[track.ID()] = track
		for _, d := range c.devices {
			c.tryResolveLocked(d)
		}
		c.mu.Unlock()
	})
}

func (c *Channel) createLocalTrack() error {
	track, err := pionwebrtc.NewTrackLocalStaticSample(
		pionwebrtc.RTPCodecCapability{
			MimeType:  pionwebrtc.MimeTypeOpus,
			ClockRate: webrtc_internal.OpusSampleRate,
			Channels:  webrtc_internal.OpusChannels,
		},
		"audio",
		"vetta-interviewer",
	)
	if err != nil {
		return fmt.Errorf("failed to create local audio track: %w", err)
	}

	if _, err := c.pc.AddTrack(track); err != nil {
		return fmt.Errorf("failed to add track: %w", err)
	}

	c.mu.Lock()
	c.localTrack = track
	c.mu.Unlock()
	return nil
}

// initiateHandshake sends config and creates/sends the SDP offer.
func (c *Channel) initiateHandshake() error {
	iceServers := make([]ICEServerSignal, len(c.config.ICEServers))
	for i, srv := range c.config.ICEServers {
		iceServers[i] = ICEServerSignal{
			URLs:       srv.URLs,
			Username:   srv.Username,
			Credential: srv.Credential,
		}
	}
	c.pushSignal(SignalMessage{
		Type:      SignalConfig,
		SessionID: c.sessionID,
		Config: &ConfigSignal{
			ICEServers: iceServers,
			AudioCodec: "opus",
			VideoCodec: "vp8",
			SampleRate: webrtc_internal.OpusSampleRate,
		},
	})

	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("failed to create offer: %w", err)
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("failed to set local description: %w", err)
	}

	c.pushSignal(SignalMessage{Type: SignalOffer, SessionID: c.sessionID, SDP: offer.SDP})
	return nil
}

// ============================================================================
// Signaling loops
// ============================================================================

// runSocketReader reads signaling messages from the WebSocket until it
// closes or the channel shuts down.
func (c *Channel) runSocketReader() {
	for {
		var msg SignalMessage
		if err := c.conn.ReadJSON(&msg); err != nil {
			select {
			case <-c.ctx.Done():
			default:
				c.logger.Warnw("signaling socket closed", "error", err, "session", c.sessionID)
			}
			c.closeWithReason(webrtc_internal.DisconnectReasonSocketClosed)
			return
		}
		c.handleClientSignal(msg)
	}
}

// runSocketWriter is the single WebSocket writer: all outbound
// signaling flows through signalCh to preserve ordering.
func (c *Channel) runSocketWriter() {
	for {
		select {
		case <-c.ctx.Done():
			return
		case msg := <-c.signalCh:
			if err := c.conn.WriteJSON(msg); err != nil {
				c.logger.Errorw("failed to write signaling message", "error", err, "type", msg.Type)
			}
		}
	}
}

// pushSignal queues an outbound signaling message (non-blocking).
func (c *Channel) pushSignal(msg SignalMessage) {
	select {
	case c.signalCh <- msg:
	default:
		c.logger.Warnw("signal channel full, dropping message", "type", msg.Type)
	}
}

func (c *Channel) handleClientSignal(msg SignalMessage) {
	c.mu.Lock()
	pc := c.pc
	c.mu.Unlock()

	switch msg.Type {
	case SignalAnswer:
		if pc == nil {
			c.logger.Warnw("received SDP answer but peer connection is nil, ignoring")
			return
		}
		if err := pc.SetRemoteDescription(pionwebrtc.SessionDescription{
			Type: pionwebrtc.SDPTypeAnswer,
			SDP:  msg.SDP,
		}); err != nil {
			c.logger.Errorw("failed to set remote description", "error", err)
		}

	case SignalICE:
		if pc == nil || msg.Candidate == nil {
			return
		}
		idx := uint16(msg.Candidate.SDPMLineIndex)
		sdpMid := msg.Candidate.SDPMid
		usernameFragment := msg.Candidate.UsernameFragment
		if err := pc.AddICECandidate(pionwebrtc.ICECandidateInit{
			Candidate:        msg.Candidate.Candidate,
			SDPMid:           &sdpMid,
			SDPMLineIndex:    &idx,
			UsernameFragment: &usernameFragment,
		}); err != nil {
			c.logger.Errorw("failed to add ICE candidate", "error", err)
		}

	case SignalPermission:
		if msg.Permission == nil {
			return
		}
		c.handlePermission(msg.Permission)

	case SignalControl:
		c.mu.Lock()
		fn := c.onControl
		c.mu.Unlock()
		if fn != nil && msg.Control != nil {
			fn(*msg.Control)
		}

	case SignalEvent:
		c.mu.Lock()
		fn := c.onEvent
		c.mu.Unlock()
		if fn != nil && msg.Event != nil {
			fn(*msg.Event)
		}

	case SignalBye:
		c.closeWithReason(webrtc_internal.DisconnectReasonClientDisconnect)

	default:
		c.logger.Warnw("unknown signaling message", "type", msg.Type)
	}
}

// ============================================================================
// Device resolution
// ============================================================================

func (c *Channel) deviceFor(capability string) *device {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceForLocked(capability)
}

func (c *Channel) deviceForLocked(capability string) *device {
	if d, ok := c.devices[capability]; ok {
		return d
	}
	d := &device{capability: capability, ready: make(chan struct{})}
	c.devices[capability] = d
	return d
}

func (c *Channel) handlePermission(sig *PermissionSignal) {
	c.logger.Infow("permission report received",
		"capability", sig.Capability, "outcome", sig.Outcome, "session", c.sessionID)

	c.mu.Lock()
	defer c.mu.Unlock()

	d := c.deviceForLocked(sig.Capability)
	if d.resolved {
		return
	}
	if sig.Outcome != OutcomeGranted {
		d.err = outcomeError(sig.Outcome)
		d.resolved = true
		close(d.ready)
		return
	}
	d.report = sig
	c.tryResolveLocked(d)
}

// tryResolveLocked starts readers and closes the ready channel once
// every track the report named has arrived. Caller holds c.mu.
func (c *Channel) tryResolveLocked(d *device) {
	if d.resolved || d.report == nil {
		return
	}

	var video, audio *pionwebrtc.TrackRemote
	if d.report.VideoTrackID != "" {
		if video = c.remoteTracks[d.report.VideoTrackID]; video == nil {
			return
		}
	}
	if d.report.AudioTrackID != "" {
		if audio = c.remoteTracks[d.report.AudioTrackID]; audio == nil {
			return
		}
	}

	if video != nil {
		d.video = &trackSlot{}
		c.readerWg.Add(1)
		go c.readRemoteVideo(video, d.video)
	}
	if audio != nil {
		d.audio = &trackSlot{}
		tap := d.capability == CapabilityMicrophone
		c.readerWg.Add(1)
		go c.readRemoteAudio(audio, d.audio, tap)
	}
	if d.capability == CapabilityDisplay && audio == nil {
		d.audioMissing = true
	}

	d.resolved = true
	close(d.ready)
}

func outcomeError(outcome string) error {
	switch outcome {
	case OutcomeNotFound:
		return internal_type.ErrDeviceNotFound
	case OutcomeBusy:
		return internal_type.ErrDeviceBusy
	case OutcomeUnsupported:
		return internal_type.ErrUnsupported
	default:
		return internal_type.ErrPermissionDenied
	}
}

// awaitDevice blocks until the capability resolves or ctx expires.
func (c *Channel) awaitDevice(ctx context.Context, capability string) (*device, error) {
	d := c.deviceFor(capability)
	select {
	case <-d.ready:
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.ctx.Done():
		return nil, internal_type.ErrDeviceNotFound
	}
	if d.err != nil {
		return nil, d.err
	}
	return d, nil
}

// ============================================================================
// DeviceProvider implementation
// ============================================================================

// AcquireCamera resolves the camera capability into a fresh stream.
// Each acquisition swaps a new track into the reader slot, so a
// permission probe tearing its stream down does not kill the remote
// reader for the later recording acquisition.
func (c *Channel) AcquireCamera(ctx context.Context) (*internal_type.MediaStream, error) {
	d, err := c.awaitDevice(ctx, CapabilityCamera)
	if err != nil {
		return nil, err
	}
	track := internal_media.NewTrack("camera-video", internal_type.TrackKindVideo, "vp8")
	d.video.swap(track)
	return internal_type.NewMediaStream(track), nil
}

func (c *Channel) AcquireMicrophone(ctx context.Context) (*internal_type.MediaStream, error) {
	d, err := c.awaitDevice(ctx, CapabilityMicrophone)
	if err != nil {
		return nil, err
	}
	track := internal_media.NewTrack("mic-audio", internal_type.TrackKindAudio, "pcm16")
	d.audio.swap(track)
	return internal_type.NewMediaStream(track), nil
}

// AcquireDisplayWithAudio resolves display capture. A grant whose
// report named no audio track returns the video stream together with
// ErrDisplayAudioMissing for mic-only degradation.
func (c *Channel) AcquireDisplayWithAudio(ctx context.Context) (*internal_type.MediaStream, error) {
	d, err := c.awaitDevice(ctx, CapabilityDisplay)
	if err != nil {
		return nil, err
	}

	video := internal_media.NewTrack("display-video", internal_type.TrackKindVideo, "vp8")
	d.video.swap(video)
	stream := internal_type.NewMediaStream(video)

	if d.audioMissing {
		return stream, internal_type.ErrDisplayAudioMissing
	}
	audio := internal_media.NewTrack("display-audio", internal_type.TrackKindAudio, "pcm16")
	d.audio.swap(audio)
	stream.AddTrack(audio)
	return stream, nil
}

// ============================================================================
// Input: remote tracks -> decode -> pipeline frames
// ============================================================================

// readRemoteAudio reads RTP from a remote audio track, decodes Opus to
// 16kHz LINEAR16 and pushes threshold-sized chunks into the slot. The
// microphone reader additionally fans each chunk out to the tap.
func (c *Channel) readRemoteAudio(track *pionwebrtc.TrackRemote, slot *trackSlot, tap bool) {
	defer c.readerWg.Done()

	codec, err := webrtc_internal.NewOpusCodec()
	if err != nil {
		c.logger.Errorw("failed to create Opus decoder", "error", err)
		return
	}

	var pending bytes.Buffer
	var ts int64
	bytesPerMS := internal_audio.BytesPerSecond(internal_audio.VETTA_INTERNAL_AUDIO_CONFIG) / 1000

	buf := make([]byte, webrtc_internal.RTPBufferSize)
	consecutiveErrors := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= webrtc_internal.MaxConsecutiveErrors {
				c.logger.Errorw("too many consecutive read errors, stopping audio reader", "lastError", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			c.logger.Debugw("failed to unmarshal RTP packet", "error", err)
			continue
		}
		if len(pkt.Payload) == 0 {
			continue
		}

		pcm, err := codec.Decode(pkt.Payload)
		if err != nil {
			c.logger.Debugw("opus decode failed", "error", err, "payloadSize", len(pkt.Payload))
			continue
		}

		pending.Write(pcm)
		if pending.Len() < webrtc_internal.InputBufferThreshold {
			continue
		}

		chunk := make([]byte, pending.Len())
		pending.Read(chunk)

		slot.push(internal_type.Frame{Data: chunk, TimestampMS: ts})
		ts += int64(len(chunk) / bytesPerMS)

		if tap {
			c.mu.Lock()
			fn := c.micTap
			c.mu.Unlock()
			if fn != nil {
				fn(chunk)
			}
		}
	}
}

// readRemoteVideo assembles VP8 frames from RTP and pushes them into
// the slot. Keyframe detection reads the inverse P bit of the VP8
// payload header.
func (c *Channel) readRemoteVideo(track *pionwebrtc.TrackRemote, slot *trackSlot) {
	defer c.readerWg.Done()

	builder := samplebuilder.New(webrtc_internal.VideoMaxLate, &codecs.VP8Packet{}, webrtc_internal.VP8ClockRate)

	var elapsed time.Duration
	buf := make([]byte, webrtc_internal.RTPBufferSize)
	consecutiveErrors := 0

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		n, _, err := track.Read(buf)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return
			}
			consecutiveErrors++
			if consecutiveErrors >= webrtc_internal.MaxConsecutiveErrors {
				c.logger.Errorw("too many consecutive read errors, stopping video reader", "lastError", err)
				return
			}
			continue
		}
		consecutiveErrors = 0

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(buf[:n]); err != nil {
			c.logger.Debugw("failed to unmarshal RTP packet", "error", err)
			continue
		}

		builder.Push(pkt)
		for sample := builder.Pop(); sample != nil; sample = builder.Pop() {
			if len(sample.Data) == 0 {
				continue
			}
			slot.push(internal_type.Frame{
				Data:        sample.Data,
				TimestampMS: elapsed.Milliseconds(),
				Keyframe:    vp8Keyframe(sample.Data),
			})
			elapsed += sample.Duration
		}
	}
}

func vp8Keyframe(frame []byte) bool {
	return len(frame) > 0 && frame[0]&0x01 == 0
}

// ============================================================================
// Output: interviewer voice -> paced Opus -> local track
// ============================================================================

// PlayAudio queues synthesized 16kHz LINEAR16 PCM for playback. Frames
// are paced at real time, so a synthesis burst drains over its spoken
// duration rather than flooding the client.
func (c *Channel) PlayAudio(pcm []byte) {
	c.playbackLock.Lock()
	c.playbackBuffer.Write(pcm)
	c.playbackLock.Unlock()
}

// PlaybackPending reports the queued playback duration.
func (c *Channel) PlaybackPending() time.Duration {
	c.playbackLock.Lock()
	n := c.playbackBuffer.Len()
	c.playbackLock.Unlock()
	bytesPerMS := internal_audio.BytesPerSecond(internal_audio.VETTA_INTERNAL_AUDIO_CONFIG) / 1000
	return time.Duration(n/bytesPerMS) * time.Millisecond
}

// runPlaybackWriter encodes and writes one 20ms frame per tick.
func (c *Channel) runPlaybackWriter() {
	ticker := time.NewTicker(webrtc_internal.PlaybackPaceInterval * time.Millisecond)
	defer ticker.Stop()

	frame := make([]byte, webrtc_internal.PlaybackFrameBytes)
	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.playbackLock.Lock()
			if c.playbackBuffer.Len() < webrtc_internal.PlaybackFrameBytes {
				c.playbackLock.Unlock()
				continue
			}
			c.playbackBuffer.Read(frame)
			c.playbackLock.Unlock()

			encoded, err := c.opusCodec.Encode(frame)
			if err != nil {
				c.logger.Debugw("opus encode failed", "error", err)
				continue
			}
			c.writeAudioFrame(encoded)
		}
	}
}

// writeAudioFrame writes an encoded Opus frame to the local track.
func (c *Channel) writeAudioFrame(data []byte) {
	c.mu.Lock()
	track := c.localTrack
	c.mu.Unlock()

	if track == nil {
		return
	}
	if err := track.WriteSample(media.Sample{
		Data:     data,
		Duration: webrtc_internal.OpusFrameDuration * time.Millisecond,
	}); err != nil {
		c.logger.Debugw("failed to write sample to track", "error", err)
	}
}

// ============================================================================
// Lifecycle
// ============================================================================

// watchCallerContext monitors the caller's context and triggers a
// graceful close when it is cancelled, ensuring cleanup is never
// short-circuited.
func (c *Channel) watchCallerContext(callerCtx context.Context) {
	select {
	case <-callerCtx.Done():
		c.logger.Infow("caller context cancelled, closing media channel", "session", c.sessionID)
		c.closeWithReason(webrtc_internal.DisconnectReasonContextCancelled)
	case <-c.ctx.Done():
		// Channel already closed on its own, nothing to do.
	}
}

// Close shuts the channel down. Idempotent - safe to call from
// multiple goroutines or multiple times.
func (c *Channel) Close() error {
	c.closeWithReason(webrtc_internal.DisconnectReasonNormal)
	return nil
}

func (c *Channel) closeWithReason(reason webrtc_internal.DisconnectReason) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	pc := c.pc
	c.pc = nil
	c.localTrack = nil
	c.mu.Unlock()

	c.logger.Infow("closing media channel", "reason", reason, "session", c.sessionID)

	// Unblock track readers and pending acquisitions first, then close
	// the transports underneath them.
	c.cancel()
	if pc != nil {
		pc.Close()
	}
	c.conn.Close()
	c.readerWg.Wait()

	// Stop whatever tracks are still swapped in so downstream consumers
	// observe closed frame channels.
	c.mu.Lock()
	for _, d := range c.devices {
		for _, slot := range []*trackSlot{d.video, d.audio} {
			if slot == nil {
				continue
			}
			if t := slot.current(); t != nil {
				t.Stop()
			}
		}
	}
	c.mu.Unlock()
}
