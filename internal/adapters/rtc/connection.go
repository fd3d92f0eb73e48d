package rtc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/peer"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// WebRTCConnection is a pion PeerConnection toward one remote participant.
// It implements peer.Transport.
type WebRTCConnection struct {
	pc     *webrtc.PeerConnection
	remote domain.Handle
	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	onICE    func(protocol.Candidate)
	onState  func(peer.TransportState)
	onTrack  func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	onPacket func(kind webrtc.RTPCodecType, pkt *rtp.Packet)
	closed   bool
	closeErr error
}

func DefaultWebRTCConfig() webrtc.Configuration {
	return ConfigWithICEServers([]string{"stun:stun.l.google.com:19302"})
}

func ConfigWithICEServers(urls []string) webrtc.Configuration {
	if len(urls) == 0 {
		return webrtc.Configuration{}
	}
	return webrtc.Configuration{
		ICEServers: []webrtc.ICEServer{{URLs: urls}},
	}
}

// MediaOptions picks what the connection sends and receives.
type MediaOptions struct {
	// Tracks are local tracks to publish; without them the connection is receive-only.
	Tracks []webrtc.TrackLocal
	// OnTrack takes over a remote track entirely.
	OnTrack func(ctx context.Context, remote domain.Handle, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)
	// OnPacket sees every RTP packet of tracks not claimed by OnTrack.
	OnPacket func(remote domain.Handle, kind webrtc.RTPCodecType, pkt *rtp.Packet)
}

// NewTransportFactory returns a peer.TransportFactory building pion connections.
func NewTransportFactory(cfg webrtc.Configuration, media MediaOptions) peer.TransportFactory {
	return func(ctx context.Context, remote domain.Handle) (peer.Transport, error) {
		c, err := NewWebRTCConnection(ctx, cfg, remote)
		if err != nil {
			return nil, err
		}
		if err := c.attachMedia(media); err != nil {
			_ = c.Close()
			return nil, err
		}
		if media.OnTrack != nil {
			c.OnTrack(func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
				media.OnTrack(ctx, remote, track, receiver)
			})
		}
		if media.OnPacket != nil {
			c.mu.Lock()
			c.onPacket = func(kind webrtc.RTPCodecType, pkt *rtp.Packet) { media.OnPacket(remote, kind, pkt) }
			c.mu.Unlock()
		}
		return c, nil
	}
}

func NewWebRTCConnection(ctx context.Context, cfg webrtc.Configuration, remote domain.Handle) (*WebRTCConnection, error) {
	pc, err := webrtc.NewPeerConnection(cfg)
	if err != nil {
		return nil, fmt.Errorf("new peer connection: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	c := &WebRTCConnection{pc: pc, remote: remote, ctx: ctx, cancel: cancel}
	c.start()
	return c, nil
}

func (c *WebRTCConnection) attachMedia(media MediaOptions) error {
	if len(media.Tracks) == 0 {
		for _, kind := range []webrtc.RTPCodecType{webrtc.RTPCodecTypeAudio, webrtc.RTPCodecTypeVideo} {
			if _, err := c.pc.AddTransceiverFromKind(kind, webrtc.RTPTransceiverInit{Direction: webrtc.RTPTransceiverDirectionRecvonly}); err != nil {
				return fmt.Errorf("add %s transceiver: %w", kind, err)
			}
		}
		return nil
	}
	for _, t := range media.Tracks {
		sender, err := c.pc.AddTrack(t)
		if err != nil {
			return fmt.Errorf("add track %s: %w", t.ID(), err)
		}
		go drainRTCP(sender)
	}
	return nil
}

// drainRTCP keeps interceptors running for a sender.
func drainRTCP(sender *webrtc.RTPSender) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := sender.Read(buf); err != nil {
			return
		}
	}
}

func (c *WebRTCConnection) start() {
	c.pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Str("peer_connection_state", s.String()).Msg("Peer state")
		c.mu.Lock()
		fn := c.onState
		c.mu.Unlock()
		if fn != nil {
			fn(mapState(s))
		}
	})

	c.pc.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return
		}
		c.mu.Lock()
		fn := c.onICE
		c.mu.Unlock()
		if fn != nil {
			fn(fromInit(cand.ToJSON()))
		}
	})

	c.pc.OnTrack(func(track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver) {
		log.Info().
			Str("module", "webrtc").
			Str("remote", string(c.remote)).
			Str("kind", track.Kind().String()).
			Str("track_id", track.ID()).
			Str("stream_id", track.StreamID()).
			Msg("OnTrack received")
		c.mu.Lock()
		fn, sink := c.onTrack, c.onPacket
		c.mu.Unlock()
		if fn != nil {
			fn(c.ctx, track, receiver)
			return
		}
		go c.receive(track, sink)
	})
}

// receive reads RTP from a remote track until the connection closes.
// Packets go to sink when set and are dropped otherwise.
func (c *WebRTCConnection) receive(track *webrtc.TrackRemote, sink func(webrtc.RTPCodecType, *rtp.Packet)) {
	logger := log.With().Str("module", "webrtc").Str("remote", string(c.remote)).Str("track_id", track.ID()).Logger()
	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}
		pkt, _, err := track.ReadRTP()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				logger.Debug().Err(err).Msg("track read stopped")
			}
			return
		}
		if sink != nil {
			sink(track.Kind(), pkt)
		}
	}
}

func mapState(s webrtc.PeerConnectionState) peer.TransportState {
	switch s {
	case webrtc.PeerConnectionStateConnecting:
		return peer.TransportConnecting
	case webrtc.PeerConnectionStateConnected:
		return peer.TransportConnected
	case webrtc.PeerConnectionStateDisconnected:
		return peer.TransportDisconnected
	case webrtc.PeerConnectionStateFailed:
		return peer.TransportFailed
	case webrtc.PeerConnectionStateClosed:
		return peer.TransportClosed
	default:
		return peer.TransportNew
	}
}

func (c *WebRTCConnection) CreateOffer(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer, err := c.pc.CreateOffer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(offer); err != nil {
		return "", err
	}
	return offer.SDP, nil
}

func (c *WebRTCConnection) AcceptOffer(ctx context.Context, sdp string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	offer := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: sdp}
	if err := c.pc.SetRemoteDescription(offer); err != nil {
		return "", err
	}
	answer, err := c.pc.CreateAnswer(nil)
	if err != nil {
		return "", err
	}
	if err := c.pc.SetLocalDescription(answer); err != nil {
		return "", err
	}
	return answer.SDP, nil
}

func (c *WebRTCConnection) AcceptAnswer(sdp string) error {
	return c.pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: sdp})
}

func (c *WebRTCConnection) AddICECandidate(cand protocol.Candidate) error {
	return c.pc.AddICECandidate(toInit(cand))
}

func (c *WebRTCConnection) OnICECandidate(fn func(protocol.Candidate)) {
	c.mu.Lock()
	c.onICE = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) OnStateChange(fn func(peer.TransportState)) {
	c.mu.Lock()
	c.onState = fn
	c.mu.Unlock()
}

// OnTrack sets application-level callback for remote tracks.
func (c *WebRTCConnection) OnTrack(fn func(ctx context.Context, track *webrtc.TrackRemote, receiver *webrtc.RTPReceiver)) {
	c.mu.Lock()
	c.onTrack = fn
	c.mu.Unlock()
}

func (c *WebRTCConnection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return c.closeErr
	}
	c.closed = true
	c.mu.Unlock()

	c.cancel()
	err := c.pc.Close()
	if err != nil {
		log.Error().Err(err).Str("module", "webrtc").Str("remote", string(c.remote)).Msg("close error")
	} else {
		log.Info().Str("module", "webrtc").Str("remote", string(c.remote)).Msg("closed")
	}
	c.mu.Lock()
	c.closeErr = err
	c.mu.Unlock()
	return err
}

func toInit(c protocol.Candidate) webrtc.ICECandidateInit {
	return webrtc.ICECandidateInit{
		Candidate:        c.Candidate,
		SDPMid:           c.SDPMid,
		SDPMLineIndex:    c.SDPMLineIndex,
		UsernameFragment: c.UsernameFragment,
	}
}

func fromInit(ci webrtc.ICECandidateInit) protocol.Candidate {
	return protocol.Candidate{
		Candidate:        ci.Candidate,
		SDPMid:           ci.SDPMid,
		SDPMLineIndex:    ci.SDPMLineIndex,
		UsernameFragment: ci.UsernameFragment,
	}
}
