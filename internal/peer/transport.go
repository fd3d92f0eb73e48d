//go:generate go run go.uber.org/mock/mockgen -source=transport.go -destination=../mocks/mock_peer.go -package=mocks
package peer

import (
	"context"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
)

// TransportState is the connectivity reported by the media transport.
type TransportState int

const (
	TransportNew TransportState = iota
	TransportConnecting
	TransportConnected
	TransportDisconnected
	TransportFailed
	TransportClosed
)

func (s TransportState) String() string {
	switch s {
	case TransportNew:
		return "new"
	case TransportConnecting:
		return "connecting"
	case TransportConnected:
		return "connected"
	case TransportDisconnected:
		return "disconnected"
	case TransportFailed:
		return "failed"
	case TransportClosed:
		return "closed"
	}
	return "unknown"
}

// Transport is one negotiated media connection to a single remote participant.
// Callbacks may fire from any goroutine.
type Transport interface {
	CreateOffer(ctx context.Context) (string, error)
	// AcceptOffer applies a remote offer and returns the local answer.
	AcceptOffer(ctx context.Context, sdp string) (string, error)
	AcceptAnswer(sdp string) error
	AddICECandidate(c protocol.Candidate) error
	OnICECandidate(fn func(protocol.Candidate))
	OnStateChange(fn func(TransportState))
	Close() error
}

// TransportFactory builds a fresh transport for each link generation.
type TransportFactory func(ctx context.Context, remote domain.Handle) (Transport, error)

// Signaler sends negotiation messages through the relay.
type Signaler interface {
	SendOffer(target domain.Handle, sdp string) error
	SendAnswer(target domain.Handle, sdp string) error
	SendCandidate(target domain.Handle, c protocol.Candidate) error
}
