// Package peer manages one negotiated media link per remote participant.
//
// Roles are explicit: a member already in the room initiates toward a newcomer
// it learns about from member-joined, while the newcomer only answers offers.
// A link whose transport drops is torn down and recreated as initiator after a
// fixed delay for as long as the manager is open and the remote is still known.
package peer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

const DefaultRecreateDelay = 2 * time.Second

// offerAttempts bounds how often an inbound offer races a link created concurrently.
const offerAttempts = 3

// Hooks observe link lifecycle; they are called without locks held.
type Hooks struct {
	OnState   func(LinkInfo)
	OnRemoved func(remote domain.Handle)
}

type Options struct {
	RecreateDelay time.Duration
	// NegotiateTimeout fails a link that is not connected in time.
	// Defaults to five recreate delays.
	NegotiateTimeout time.Duration
	Hooks            Hooks
}

type Manager struct {
	local    domain.Handle
	signaler Signaler
	factory  TransportFactory
	delay    time.Duration
	deadline time.Duration
	hooks    Hooks

	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	closed bool
	known  map[domain.Handle]domain.Identity
	links  map[domain.Handle]*link
	timers map[domain.Handle]*time.Timer
	gens   map[domain.Handle]int
}

// NewManager scopes every link to ctx; cancelling it has the same effect as Close.
func NewManager(ctx context.Context, local domain.Handle, s Signaler, f TransportFactory, opts Options) *Manager {
	if opts.RecreateDelay <= 0 {
		opts.RecreateDelay = DefaultRecreateDelay
	}
	if opts.NegotiateTimeout <= 0 {
		opts.NegotiateTimeout = 5 * opts.RecreateDelay
	}
	ctx, cancel := context.WithCancel(ctx)
	m := &Manager{
		local:    local,
		signaler: s,
		factory:  f,
		delay:    opts.RecreateDelay,
		deadline: opts.NegotiateTimeout,
		hooks:    opts.Hooks,
		ctx:      ctx,
		cancel:   cancel,
		known:    make(map[domain.Handle]domain.Identity),
		links:    make(map[domain.Handle]*link),
		timers:   make(map[domain.Handle]*time.Timer),
		gens:     make(map[domain.Handle]int),
	}
	context.AfterFunc(ctx, m.Close)
	return m
}

func (m *Manager) Local() domain.Handle { return m.local }

// OnExistingMembers records the members present at join. The newcomer never
// offers to them; they initiate toward it.
func (m *Manager) OnExistingMembers(members []domain.Participant) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range members {
		if p.Handle != m.local {
			m.known[p.Handle] = p.Identity
		}
	}
}

// OnMemberJoined makes the local side the initiator toward the newcomer.
func (m *Manager) OnMemberJoined(p domain.Participant) error {
	if p.Handle == m.local {
		return nil
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	m.known[p.Handle] = p.Identity
	m.mu.Unlock()
	return m.initiate(p.Handle)
}

// OnMemberLeft closes the link without recreation.
func (m *Manager) OnMemberLeft(remote domain.Handle) {
	m.mu.Lock()
	delete(m.known, remote)
	m.stopTimerLocked(remote)
	l := m.links[remote]
	delete(m.links, remote)
	m.mu.Unlock()
	if l != nil {
		m.closeLink(l)
	}
}

// HandleOffer answers an inbound offer, creating a responder link if needed.
// A colliding offer is ignored only while our own offer is fresh and our
// handle is the greater one; an older offer of ours went unanswered and yields.
func (m *Manager) HandleOffer(from domain.Handle, identity domain.Identity, sdp string) error {
	for attempt := 1; ; attempt++ {
		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			return ErrClosed
		}
		if identity != "" || m.known[from] == "" {
			m.known[from] = identity
		}
		existing := m.links[from]
		m.mu.Unlock()

		if existing != nil {
			if m.keepOurOffer(existing) {
				log.Debug().Str("module", "peer").Str("remote", string(from)).Msg("glare: keeping our offer")
				return nil
			}
			m.mu.Lock()
			if m.links[from] == existing {
				delete(m.links, from)
			}
			m.mu.Unlock()
			m.closeLink(existing)
		}

		l, err := m.newLink(from, RoleResponder)
		if errors.Is(err, errLinkExists) && attempt < offerAttempts {
			continue
		}
		if err != nil {
			if !errors.Is(err, ErrClosed) {
				m.scheduleRecreate(from)
			}
			return err
		}
		return m.answer(l, sdp)
	}
}

func (m *Manager) keepOurOffer(l *link) bool {
	return l.role == RoleInitiator &&
		l.getState() <= StateNegotiating &&
		m.local > l.remote &&
		time.Since(l.created) < m.delay
}

func (m *Manager) answer(l *link, sdp string) error {
	answer, err := l.transport.AcceptOffer(m.ctx, sdp)
	if err != nil {
		lerr := linkErr("accept offer", l.remote, err)
		m.fail(l, StateFailed, lerr)
		return lerr
	}
	m.flushRemote(l)
	if err := m.signaler.SendAnswer(l.remote, answer); err != nil {
		lerr := linkErr("send answer", l.remote, err)
		m.fail(l, StateFailed, lerr)
		return lerr
	}
	m.transition(l, StateNegotiating)
	m.flushLocal(l)
	return nil
}

func (m *Manager) HandleAnswer(from domain.Handle, sdp string) error {
	l := m.lookup(from)
	if l == nil {
		return linkErr("answer", from, ErrLinkNotFound)
	}
	if l.role != RoleInitiator {
		return linkErr("answer", from, ErrUnexpected)
	}
	if err := l.transport.AcceptAnswer(sdp); err != nil {
		lerr := linkErr("accept answer", from, err)
		m.fail(l, StateFailed, lerr)
		return lerr
	}
	m.flushRemote(l)
	return nil
}

// HandleCandidate applies or buffers a remote candidate. A candidate the
// transport rejects is logged and never fails the link.
func (m *Manager) HandleCandidate(from domain.Handle, c protocol.Candidate) error {
	l := m.lookup(from)
	if l == nil {
		return linkErr("candidate", from, ErrLinkNotFound)
	}
	if l.queueCandidate(c) {
		return nil
	}
	if err := l.transport.AddICECandidate(c); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(from)).Msg("add ice candidate")
	}
	return nil
}

// Close tears down every link and cancels pending recreations.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	for remote := range m.timers {
		m.stopTimerLocked(remote)
	}
	links := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	clear(m.links)
	clear(m.known)
	m.mu.Unlock()

	m.cancel()
	for _, l := range links {
		m.closeLink(l)
	}
	log.Info().Str("module", "peer").Str("local", string(m.local)).Int("links", len(links)).Msg("manager closed")
}

func (m *Manager) Link(remote domain.Handle) (LinkInfo, bool) {
	l := m.lookup(remote)
	if l == nil {
		return LinkInfo{}, false
	}
	return l.info(), true
}

func (m *Manager) Links() []LinkInfo {
	m.mu.Lock()
	links := make([]*link, 0, len(m.links))
	for _, l := range m.links {
		links = append(links, l)
	}
	m.mu.Unlock()
	out := make([]LinkInfo, 0, len(links))
	for _, l := range links {
		out = append(out, l.info())
	}
	return out
}

func (m *Manager) lookup(remote domain.Handle) *link {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.links[remote]
}

func (m *Manager) initiate(remote domain.Handle) error {
	l, err := m.newLink(remote, RoleInitiator)
	if err != nil {
		if !errors.Is(err, ErrClosed) && !errors.Is(err, ErrUnexpected) {
			m.scheduleRecreate(remote)
		}
		return err
	}
	m.transition(l, StateNegotiating)
	offer, err := l.transport.CreateOffer(m.ctx)
	if err != nil {
		lerr := linkErr("create offer", remote, err)
		m.fail(l, StateFailed, lerr)
		return lerr
	}
	if err := m.signaler.SendOffer(remote, offer); err != nil {
		lerr := linkErr("send offer", remote, err)
		m.fail(l, StateFailed, lerr)
		return lerr
	}
	m.flushLocal(l)
	return nil
}

// newLink builds a transport and registers the link as current for remote.
func (m *Manager) newLink(remote domain.Handle, role Role) (*link, error) {
	tr, err := m.factory(m.ctx, remote)
	if err != nil {
		return nil, linkErr("new transport", remote, err)
	}
	l := &link{remote: remote, role: role, transport: tr, state: StateNew, created: time.Now()}
	tr.OnICECandidate(func(c protocol.Candidate) { m.onLocalCandidate(l, c) })
	tr.OnStateChange(func(s TransportState) { m.onTransportState(l, s) })

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		_ = tr.Close()
		return nil, ErrClosed
	}
	if _, ok := m.links[remote]; ok {
		m.mu.Unlock()
		_ = tr.Close()
		return nil, linkErr("new link", remote, errLinkExists)
	}
	m.stopTimerLocked(remote)
	m.gens[remote]++
	l.generation = m.gens[remote]
	l.identity = m.known[remote]
	m.links[remote] = l
	l.expiry = time.AfterFunc(m.deadline, func() { m.expire(l) })
	m.mu.Unlock()

	log.Info().Str("module", "peer").Str("remote", string(remote)).Str("role", role.String()).Int("generation", l.generation).Msg("link created")
	m.emit(l)
	return l, nil
}

func (m *Manager) transition(l *link, s State) {
	if l.setState(s) {
		log.Debug().Str("module", "peer").Str("remote", string(l.remote)).Str("state", s.String()).Msg("link state")
		m.emit(l)
	}
}

func (m *Manager) emit(l *link) {
	if m.hooks.OnState != nil {
		m.hooks.OnState(l.info())
	}
}

func (m *Manager) onTransportState(l *link, s TransportState) {
	switch s {
	case TransportConnected:
		m.transition(l, StateConnected)
	case TransportDisconnected:
		m.fail(l, StateDisconnected, linkErr("transport", l.remote, ErrTransportDown))
	case TransportFailed, TransportClosed:
		m.fail(l, StateFailed, linkErr("transport", l.remote, fmt.Errorf("%w: %s", ErrTransportDown, s)))
	case TransportNew, TransportConnecting:
	}
}

func (m *Manager) onLocalCandidate(l *link, c protocol.Candidate) {
	queued, ended := l.queueOutgoing(c)
	if queued || ended {
		return
	}
	if err := m.signaler.SendCandidate(l.remote, c); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(l.remote)).Msg("send candidate")
	}
}

func (m *Manager) flushLocal(l *link) {
	for _, c := range l.markLocalSent() {
		if err := m.signaler.SendCandidate(l.remote, c); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(l.remote)).Msg("send candidate")
		}
	}
}

func (m *Manager) flushRemote(l *link) {
	for _, c := range l.markRemoteSet() {
		if err := l.transport.AddICECandidate(c); err != nil {
			log.Warn().Err(err).Str("module", "peer").Str("remote", string(l.remote)).Msg("add buffered candidate")
		}
	}
}

// fail tears the link down and schedules its recreation. Only the current
// link of a remote can fail; stale links are ignored.
func (m *Manager) fail(l *link, to State, cause error) {
	m.mu.Lock()
	current := m.links[l.remote] == l
	if current {
		delete(m.links, l.remote)
	}
	m.mu.Unlock()
	if !current || !l.end(to) {
		return
	}
	log.Warn().Err(cause).Str("module", "peer").Str("remote", string(l.remote)).Str("state", to.String()).Msg("link down")
	m.emit(l)
	m.release(l)
	m.scheduleRecreate(l.remote)
}

// closeLink ends a link for good.
func (m *Manager) closeLink(l *link) {
	if !l.end(StateClosed) {
		return
	}
	log.Info().Str("module", "peer").Str("remote", string(l.remote)).Msg("link closed")
	m.emit(l)
	m.release(l)
}

// expire fails a link that never reached connected.
func (m *Manager) expire(l *link) {
	if l.getState() >= StateConnected {
		return
	}
	m.fail(l, StateFailed, linkErr("negotiate", l.remote, ErrNegotiationTimeout))
}

func (m *Manager) release(l *link) {
	l.expiry.Stop()
	if err := l.transport.Close(); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(l.remote)).Msg("close transport")
	}
	if m.hooks.OnRemoved != nil {
		m.hooks.OnRemoved(l.remote)
	}
}

func (m *Manager) scheduleRecreate(remote domain.Handle) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.known[remote]; !ok {
		return
	}
	m.stopTimerLocked(remote)
	var t *time.Timer
	t = time.AfterFunc(m.delay, func() {
		m.mu.Lock()
		if m.timers[remote] != t {
			m.mu.Unlock()
			return
		}
		delete(m.timers, remote)
		m.mu.Unlock()
		m.recreate(remote)
	})
	m.timers[remote] = t
	log.Info().Str("module", "peer").Str("remote", string(remote)).Dur("delay", m.delay).Msg("link recreation scheduled")
}

// recreate re-enters new as initiator, as if remote had just joined.
func (m *Manager) recreate(remote domain.Handle) {
	m.mu.Lock()
	_, known := m.known[remote]
	_, linked := m.links[remote]
	closed := m.closed
	m.mu.Unlock()
	if closed || !known || linked {
		return
	}
	if err := m.initiate(remote); err != nil {
		log.Warn().Err(err).Str("module", "peer").Str("remote", string(remote)).Msg("recreate link")
	}
}

func (m *Manager) stopTimerLocked(remote domain.Handle) {
	if t, ok := m.timers[remote]; ok {
		t.Stop()
		delete(m.timers, remote)
	}
}
