package peer

import (
	"sync"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
)

type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

type State int

const (
	StateNew State = iota
	StateNegotiating
	StateConnected
	StateDisconnected
	StateFailed
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateNegotiating:
		return "negotiating"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	case StateFailed:
		return "failed"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// terminal states never leave except by recreation.
func (s State) terminal() bool {
	return s == StateDisconnected || s == StateFailed || s == StateClosed
}

// LinkInfo is a read-only snapshot of a link.
type LinkInfo struct {
	Remote     domain.Handle
	Identity   domain.Identity
	Role       Role
	State      State
	Generation int
}

// link owns one negotiation round with one remote participant.
type link struct {
	remote     domain.Handle
	identity   domain.Identity
	role       Role
	generation int
	transport  Transport
	created    time.Time
	expiry     *time.Timer

	mu        sync.Mutex
	state     State
	remoteSet bool
	pending   []protocol.Candidate
	localSent bool
	outgoing  []protocol.Candidate
}

func (l *link) info() LinkInfo {
	l.mu.Lock()
	defer l.mu.Unlock()
	return LinkInfo{
		Remote:     l.remote,
		Identity:   l.identity,
		Role:       l.role,
		State:      l.state,
		Generation: l.generation,
	}
}

func (l *link) getState() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// setState only moves forward and never leaves a terminal state.
// It reports whether the state changed.
func (l *link) setState(s State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.terminal() || s <= l.state {
		return false
	}
	l.state = s
	return true
}

// end forces a terminal state. It reports false if the link had already ended.
func (l *link) end(s State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.terminal() {
		return false
	}
	l.state = s
	return true
}

// markRemoteSet flushes candidates that arrived before the remote description.
func (l *link) markRemoteSet() []protocol.Candidate {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.remoteSet = true
	out := l.pending
	l.pending = nil
	return out
}

// queueCandidate buffers c until the remote description is applied.
// It reports false when c can be applied now.
func (l *link) queueCandidate(c protocol.Candidate) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.remoteSet {
		return false
	}
	l.pending = append(l.pending, c)
	return true
}

// queueOutgoing holds local candidates until our description went out.
func (l *link) queueOutgoing(c protocol.Candidate) (queued, ended bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.terminal() {
		return false, true
	}
	if l.localSent {
		return false, false
	}
	l.outgoing = append(l.outgoing, c)
	return true, false
}

func (l *link) markLocalSent() []protocol.Candidate {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.localSent = true
	out := l.outgoing
	l.outgoing = nil
	return out
}
