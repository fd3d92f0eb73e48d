package peer_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/peer"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/stretchr/testify/require"
)

// bus delivers signaling between managers in order on one goroutine, like the relay does.
type bus struct {
	mu       sync.Mutex
	managers map[domain.Handle]*peer.Manager
	queue    chan func()
	answers  atomic.Int32
}

func newBus() *bus {
	return &bus{managers: make(map[domain.Handle]*peer.Manager), queue: make(chan func(), 256)}
}

// start begins delivery; messages sent before are held in order.
func (b *bus) start(t *testing.T) {
	t.Helper()
	done := make(chan struct{})
	go func() {
		for {
			select {
			case deliver := <-b.queue:
				deliver()
			case <-done:
				return
			}
		}
	}()
	t.Cleanup(func() { close(done) })
}

func (b *bus) join(t *testing.T, h domain.Handle, f *pairFactory) *peer.Manager {
	t.Helper()
	m := peer.NewManager(context.Background(), h, busSignaler{b: b, from: h}, f.build, peer.Options{
		RecreateDelay:    testDelay,
		NegotiateTimeout: 10 * time.Second,
	})
	t.Cleanup(m.Close)
	b.mu.Lock()
	b.managers[h] = m
	b.mu.Unlock()
	return m
}

func (b *bus) send(to domain.Handle, fn func(*peer.Manager)) {
	b.queue <- func() {
		b.mu.Lock()
		m := b.managers[to]
		b.mu.Unlock()
		if m != nil {
			fn(m)
		}
	}
}

type busSignaler struct {
	b    *bus
	from domain.Handle
}

func (s busSignaler) SendOffer(target domain.Handle, sdp string) error {
	s.b.send(target, func(m *peer.Manager) { _ = m.HandleOffer(s.from, domain.Identity(s.from), sdp) })
	return nil
}

func (s busSignaler) SendAnswer(target domain.Handle, sdp string) error {
	s.b.answers.Add(1)
	s.b.send(target, func(m *peer.Manager) { _ = m.HandleAnswer(s.from, sdp) })
	return nil
}

func (s busSignaler) SendCandidate(target domain.Handle, c protocol.Candidate) error {
	s.b.send(target, func(m *peer.Manager) { _ = m.HandleCandidate(s.from, c) })
	return nil
}

// pairTransport connects once its side of the description exchange is done.
type pairTransport struct {
	reject *atomic.Int32

	mu      sync.Mutex
	onState func(peer.TransportState)
}

func (p *pairTransport) CreateOffer(context.Context) (string, error) { return "offer", nil }

func (p *pairTransport) AcceptOffer(context.Context, string) (string, error) {
	if p.reject.Add(-1) >= 0 {
		return "", errors.New("malformed sdp")
	}
	p.connectSoon()
	return "answer", nil
}

func (p *pairTransport) AcceptAnswer(string) error {
	p.connectSoon()
	return nil
}

func (p *pairTransport) AddICECandidate(protocol.Candidate) error { return nil }
func (p *pairTransport) OnICECandidate(func(protocol.Candidate))  {}

func (p *pairTransport) OnStateChange(fn func(peer.TransportState)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onState = fn
}

func (p *pairTransport) Close() error { return nil }

func (p *pairTransport) connectSoon() {
	p.mu.Lock()
	fn := p.onState
	p.mu.Unlock()
	go fn(peer.TransportConnected)
}

type pairFactory struct {
	fail   atomic.Int32
	reject atomic.Int32
}

func (f *pairFactory) build(context.Context, domain.Handle) (peer.Transport, error) {
	if f.fail.Add(-1) >= 0 {
		return nil, errors.New("no ice agent")
	}
	return &pairTransport{reject: &f.reject}, nil
}

func connected(m *peer.Manager, remote domain.Handle) bool {
	li, ok := m.Link(remote)
	return ok && li.State == peer.StateConnected
}

func TestManager_Pair(t *testing.T) {
	t.Run("should connect after the responder fails to accept the first offer", func(t *testing.T) {
		req := require.New(t)
		b := newBus()
		b.start(t)
		zf, af := &pairFactory{}, &pairFactory{}
		af.reject.Store(1)

		z := b.join(t, "z", zf)
		a := b.join(t, "a", af)
		a.OnExistingMembers([]domain.Participant{{Handle: "z", Identity: "z"}})
		req.NoError(z.OnMemberJoined(domain.Participant{Handle: "a", Identity: "a"}))

		req.Eventually(func() bool { return connected(z, "a") && connected(a, "z") }, 2*time.Second, 5*time.Millisecond)
		za, _ := z.Link("a")
		az, _ := a.Link("z")
		req.Equal(peer.RoleResponder, za.Role)
		req.Equal(2, za.Generation)
		req.Equal(peer.RoleInitiator, az.Role)
		req.Equal(2, az.Generation)
		req.Equal(int32(1), b.answers.Load())
	})

	t.Run("should connect after the responder cannot build a transport", func(t *testing.T) {
		req := require.New(t)
		b := newBus()
		b.start(t)
		af, zf := &pairFactory{}, &pairFactory{}
		zf.fail.Store(1)

		a := b.join(t, "a", af)
		z := b.join(t, "z", zf)
		z.OnExistingMembers([]domain.Participant{{Handle: "a", Identity: "a"}})
		req.NoError(a.OnMemberJoined(domain.Participant{Handle: "z", Identity: "z"}))

		req.Eventually(func() bool { return connected(z, "a") && connected(a, "z") }, 2*time.Second, 5*time.Millisecond)
		za, _ := z.Link("a")
		az, _ := a.Link("z")
		req.Equal(peer.RoleInitiator, za.Role)
		req.Equal(peer.RoleResponder, az.Role)
		req.Equal(2, az.Generation)
		req.Equal(int32(1), b.answers.Load())
	})

	t.Run("should settle on one initiator when both sides offer at once", func(t *testing.T) {
		req := require.New(t)
		b := newBus()

		a := b.join(t, "a", &pairFactory{})
		z := b.join(t, "z", &pairFactory{})
		req.NoError(a.OnMemberJoined(domain.Participant{Handle: "z", Identity: "z"}))
		req.NoError(z.OnMemberJoined(domain.Participant{Handle: "a", Identity: "a"}))
		b.start(t)

		req.Eventually(func() bool { return connected(z, "a") && connected(a, "z") }, 2*time.Second, 5*time.Millisecond)
		za, _ := z.Link("a")
		az, _ := a.Link("z")
		req.Equal(peer.RoleInitiator, za.Role)
		req.Equal(peer.RoleResponder, az.Role)
		req.Equal(int32(1), b.answers.Load())
	})
}
