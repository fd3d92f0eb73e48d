package rtc

import (
	"context"
	"strings"
	"testing"

	"github.com/dkeye/meshroom/internal/peer"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

func TestTransportFactory_ReceiveOnly(t *testing.T) {
	req := require.New(t)
	ctx := context.Background()
	factory := NewTransportFactory(webrtc.Configuration{}, MediaOptions{})

	offerer, err := factory(ctx, "B")
	req.NoError(err)
	defer offerer.Close()
	answerer, err := factory(ctx, "A")
	req.NoError(err)
	defer answerer.Close()

	offer, err := offerer.CreateOffer(ctx)
	req.NoError(err)
	req.Contains(offer, "m=audio")
	req.Contains(offer, "m=video")
	req.Contains(offer, "a=recvonly")

	answer, err := answerer.AcceptOffer(ctx, offer)
	req.NoError(err)
	req.True(strings.HasPrefix(answer, "v=0"))
	req.NoError(offerer.AcceptAnswer(answer))
}

func TestWebRTCConnection_Close(t *testing.T) {
	req := require.New(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	c, err := NewWebRTCConnection(ctx, webrtc.Configuration{}, "B")
	req.NoError(err)
	req.NoError(c.Close())
	req.NoError(c.Close())
	req.Error(c.ctx.Err())

	_, err = c.CreateOffer(ctx)
	req.Error(err)
}

func TestCandidateMapping(t *testing.T) {
	req := require.New(t)
	mid := "0"
	idx := uint16(1)
	ufrag := "abcd"
	in := protocol.Candidate{Candidate: "candidate:1 1 udp 2130706431 10.0.0.1 5000 typ host", SDPMid: &mid, SDPMLineIndex: &idx, UsernameFragment: &ufrag}

	ci := toInit(in)
	req.Equal(in.Candidate, ci.Candidate)
	req.Equal(&mid, ci.SDPMid)
	req.Equal(in, fromInit(ci))
}

func TestMapState(t *testing.T) {
	req := require.New(t)
	req.Equal(peer.TransportNew, mapState(webrtc.PeerConnectionStateNew))
	req.Equal(peer.TransportConnecting, mapState(webrtc.PeerConnectionStateConnecting))
	req.Equal(peer.TransportConnected, mapState(webrtc.PeerConnectionStateConnected))
	req.Equal(peer.TransportDisconnected, mapState(webrtc.PeerConnectionStateDisconnected))
	req.Equal(peer.TransportFailed, mapState(webrtc.PeerConnectionStateFailed))
	req.Equal(peer.TransportClosed, mapState(webrtc.PeerConnectionStateClosed))
}
