package main

import (
	"sync"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"
)

// packetMeter counts received RTP per remote and kind.
type packetMeter struct {
	mu   sync.Mutex
	seen map[string]uint64
}

func newPacketMeter() *packetMeter {
	return &packetMeter{seen: make(map[string]uint64)}
}

func (pm *packetMeter) observe(remote domain.Handle, kind webrtc.RTPCodecType, pkt *rtp.Packet) {
	key := string(remote) + "/" + kind.String()
	pm.mu.Lock()
	pm.seen[key]++
	n := pm.seen[key]
	pm.mu.Unlock()

	if n == 1 {
		log.Info().Str("module", "cmd.peer").Str("remote", string(remote)).Str("kind", kind.String()).
			Uint32("ssrc", pkt.SSRC).Uint8("payload_type", pkt.PayloadType).Msg("media flowing")
	}
}
