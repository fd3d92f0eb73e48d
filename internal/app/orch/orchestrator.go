// Package orch runs the signaling relay: one goroutine owns the registry and
// processes every connect, message and disconnect event to completion in order.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/dkeye/meshroom/internal/app"
	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

var ErrStopped = errors.New("relay stopped")

const defaultFetchTimeout = 5 * time.Second

type Options struct {
	History      core.History
	Writer       *app.HistoryWriter
	Policy       app.Policy
	ChatMaxLen   int
	FetchTimeout time.Duration
	QueueSize    int
	Now          func() time.Time
}

type event struct {
	handle domain.Handle
	sess   core.MemberSession
	msg    protocol.Message
	fn     func()
	kind   eventKind
}

type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evMessage
	evExec
)

type Orchestrator struct {
	Registry *app.Registry
	History  core.History
	Writer   *app.HistoryWriter
	Policy   app.Policy

	chatMaxLen   int
	fetchTimeout time.Duration
	now          func() time.Time

	// conns holds every connected session, joined or not. Loop-owned.
	conns  map[domain.Handle]core.MemberSession
	events chan event
	done   chan struct{}
	ctx    context.Context
}

func New(reg *app.Registry, opts Options) *Orchestrator {
	if opts.Policy == nil {
		opts.Policy = app.KickPolicy{}
	}
	if opts.ChatMaxLen <= 0 {
		opts.ChatMaxLen = domain.DefaultMaxMessageLen
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = defaultFetchTimeout
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		Registry:     reg,
		History:      opts.History,
		Writer:       opts.Writer,
		Policy:       opts.Policy,
		chatMaxLen:   opts.ChatMaxLen,
		fetchTimeout: opts.FetchTimeout,
		now:          opts.Now,
		conns:        make(map[domain.Handle]core.MemberSession),
		events:       make(chan event, opts.QueueSize),
		done:         make(chan struct{}),
		ctx:          context.Background(),
	}
}

// Run is the single goroutine that owns all relay state. It returns when ctx
// is done, after closing every connection it still holds.
func (o *Orchestrator) Run(ctx context.Context) {
	o.ctx = ctx
	defer close(o.done)
	log.Info().Str("module", "app.orch").Msg("relay loop started")
	for {
		select {
		case <-ctx.Done():
			for h, sess := range o.conns {
				sess.Signal().Close()
				delete(o.conns, h)
			}
			log.Info().Str("module", "app.orch").Msg("relay loop stopped")
			return
		case ev := <-o.events:
			o.process(ev)
		}
	}
}

func (o *Orchestrator) process(ev event) {
	switch ev.kind {
	case evConnect:
		o.onConnect(ev.sess)
	case evDisconnect:
		o.onDisconnect(ev.handle)
	case evMessage:
		o.onMessage(ev.handle, ev.msg)
	case evExec:
		ev.fn()
	}
}

// Connect registers a signaling connection that may later join a room.
func (o *Orchestrator) Connect(sess core.MemberSession) error {
	return o.submit(event{kind: evConnect, sess: sess, handle: sess.Meta().Handle})
}

// Disconnect runs the implicit leave for a lost connection.
func (o *Orchestrator) Disconnect(h domain.Handle) error {
	return o.submit(event{kind: evDisconnect, handle: h})
}

// Dispatch queues one decoded message from the connection h.
func (o *Orchestrator) Dispatch(h domain.Handle, msg protocol.Message) error {
	return o.submit(event{kind: evMessage, handle: h, msg: msg})
}

// RoomExists reports whether the room is live or has any stored history.
func (o *Orchestrator) RoomExists(ctx context.Context, id domain.RoomID) (bool, error) {
	var live bool
	if err := o.exec(ctx, func() { live = o.Registry.Exists(id) }); err != nil {
		return false, err
	}
	if live || o.History == nil {
		return live, nil
	}
	return o.History.RoomHasAnyHistory(ctx, id)
}

func (o *Orchestrator) Rooms(ctx context.Context) ([]core.RoomInfo, error) {
	var out []core.RoomInfo
	err := o.exec(ctx, func() { out = o.Registry.List() })
	return out, err
}

func (o *Orchestrator) MembersOf(ctx context.Context, id domain.RoomID) ([]domain.Participant, error) {
	var out []domain.Participant
	err := o.exec(ctx, func() { out = o.Registry.MembersOf(id) })
	return out, err
}

// exec runs fn on the loop and waits for it.
func (o *Orchestrator) exec(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	ev := event{kind: evExec, fn: func() {
		fn()
		close(finished)
	}}
	if o.stopped() {
		return ErrStopped
	}
	select {
	case o.events <- ev:
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-finished:
		return nil
	case <-o.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (o *Orchestrator) submit(ev event) error {
	if o.stopped() {
		return ErrStopped
	}
	select {
	case o.events <- ev:
		return nil
	case <-o.done:
		return ErrStopped
	}
}

func (o *Orchestrator) stopped() bool {
	select {
	case <-o.done:
		return true
	default:
		return false
	}
}

func (o *Orchestrator) onConnect(sess core.MemberSession) {
	meta := sess.Meta()
	o.conns[meta.Handle] = sess
	log.Info().Str("module", "app.orch").Str("handle", string(meta.Handle)).Str("identity", string(meta.Identity)).Msg("connected")
	o.send(sess, protocol.Welcome{Handle: meta.Handle, Identity: meta.Identity})
}

func (o *Orchestrator) onMessage(h domain.Handle, msg protocol.Message) {
	sess, ok := o.conns[h]
	if !ok {
		log.Warn().Str("module", "app.orch").Str("handle", string(h)).Str("type", string(msg.Kind())).Msg("message from unknown connection")
		return
	}
	log.Debug().Str("module", "app.orch").Str("handle", string(h)).Str("type", string(msg.Kind())).Msg("message")

	switch m := msg.(type) {
	case protocol.Join:
		o.handleJoin(sess, m)
	case protocol.Leave:
		o.handleLeave(sess, m)
	case protocol.Offer:
		o.handleOffer(sess, m)
	case protocol.Answer:
		o.handleAnswer(sess, m)
	case protocol.ICECandidate:
		o.handleCandidate(sess, m)
	case protocol.ChatMessage:
		o.handleChat(sess, m)
	case protocol.Ping:
		o.send(sess, protocol.Pong{})
	case protocol.WhoAmI:
		o.handleWhoAmI(sess)
	case protocol.Welcome, protocol.ExistingMembers, protocol.MemberJoined, protocol.MemberLeft,
		protocol.History, protocol.RoomClosed, protocol.Pong, protocol.Error:
		o.replyError(sess, protocol.CodeUnknownType, string(msg.Kind())+" is server-only")
	}
}

func (o *Orchestrator) replyError(sess core.MemberSession, code protocol.ErrorCode, text string) {
	o.send(sess, protocol.Error{Code: code, Message: text})
}

// send delivers to one connection, applying the backpressure policy on failure.
func (o *Orchestrator) send(sess core.MemberSession, msg protocol.Message) {
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode")
		return
	}
	if err := sess.Signal().TrySend(frame); err != nil {
		room, _ := o.Registry.RoomOf(sess.Meta().Handle)
		o.onBackPressure(room, sess)
	}
}

// broadcast delivers to every member of the room except from.
func (o *Orchestrator) broadcast(id domain.RoomID, from domain.Handle, msg protocol.Message) {
	room, ok := o.Registry.Room(id)
	if !ok {
		return
	}
	frame, err := protocol.Encode(msg)
	if err != nil {
		log.Error().Err(err).Str("module", "app.orch").Msg("encode")
		return
	}
	res := room.Broadcast(from, core.Frame(frame))
	for _, slow := range res.Dropped {
		o.onBackPressure(id, slow)
	}
}

func (o *Orchestrator) onBackPressure(room domain.RoomID, sess core.MemberSession) {
	h := sess.Meta().Handle
	switch o.Policy.OnBackPressure(room, sess) {
	case app.KickMember:
		log.Warn().Str("module", "app.orch").Str("handle", string(h)).Str("room", string(room)).Msg("kicking slow member")
		sess.Signal().Close()
		o.onDisconnect(h)
	case app.DropFrame, app.NoAction:
		log.Debug().Str("module", "app.orch").Str("handle", string(h)).Msg("frame dropped")
	}
}
