package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/peer"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

var (
	ErrRoomClosed   = errors.New("room closed")
	ErrDisconnected = errors.New("signaling connection lost")
)

// Conn is the signaling side a participant needs.
type Conn interface {
	peer.Signaler
	Send(msg protocol.Message) error
	Incoming() <-chan protocol.Message
	Close()
}

// Participant joins one room and keeps a mesh of links to everyone in it.
type Participant struct {
	conn      Conn
	room      domain.RoomID
	factory   peer.TransportFactory
	peerOpts  peer.Options
	OnChat    func(protocol.ChatMessage)
	OnHistory func([]domain.ChatMessage)
	OnMembers func([]domain.Participant)

	handle  domain.Handle
	manager *peer.Manager
	ready   chan struct{}
}

func NewParticipant(conn Conn, room domain.RoomID, factory peer.TransportFactory, opts peer.Options) *Participant {
	return &Participant{
		conn:     conn,
		room:     room,
		factory:  factory,
		peerOpts: opts,
		ready:    make(chan struct{}),
	}
}

// Manager is nil until the join reply arrived.
func (p *Participant) Manager() *peer.Manager { return p.manager }

// Handle is the relay-assigned address of this participant.
func (p *Participant) Handle() domain.Handle { return p.handle }

// Joined is closed once existing-members has been processed.
func (p *Participant) Joined() <-chan struct{} { return p.ready }

// Chat sends a chat message to the room.
func (p *Participant) Chat(text string) error {
	return p.conn.Send(protocol.ChatMessage{RoomID: p.room, Text: text})
}

// Run processes relay events until ctx ends, the room closes or the
// connection drops. Every link is closed before Run returns.
func (p *Participant) Run(ctx context.Context) (err error) {
	defer func() {
		if p.manager != nil {
			p.manager.Close()
		}
		if !errors.Is(err, ErrDisconnected) {
			_ = p.conn.Send(protocol.Leave{RoomID: p.room})
		}
		p.conn.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-p.conn.Incoming():
			if !ok {
				return ErrDisconnected
			}
			if err := p.dispatch(ctx, msg); err != nil {
				return err
			}
		}
	}
}

func (p *Participant) dispatch(ctx context.Context, msg protocol.Message) error {
	switch m := msg.(type) {
	case protocol.Welcome:
		p.handle = m.Handle
		log.Info().Str("module", "client").Str("handle", string(m.Handle)).Str("identity", string(m.Identity)).Msg("connected to relay")
		return p.conn.Send(protocol.Join{RoomID: p.room})
	case protocol.ExistingMembers:
		if p.manager == nil {
			p.manager = peer.NewManager(ctx, p.handle, p.conn, p.factory, p.peerOpts)
			close(p.ready)
		}
		p.manager.OnExistingMembers(m.Members)
		if p.OnMembers != nil {
			p.OnMembers(m.Members)
		}
	case protocol.MemberJoined:
		if p.manager != nil {
			logLinkErr(p.manager.OnMemberJoined(m.Participant))
		}
	case protocol.MemberLeft:
		if p.manager != nil {
			p.manager.OnMemberLeft(m.Handle)
		}
	case protocol.Offer:
		if p.manager != nil {
			logLinkErr(p.manager.HandleOffer(m.From, m.Identity, m.SDP))
		}
	case protocol.Answer:
		if p.manager != nil {
			logLinkErr(p.manager.HandleAnswer(m.From, m.SDP))
		}
	case protocol.ICECandidate:
		if p.manager != nil {
			logLinkErr(p.manager.HandleCandidate(m.From, m.Candidate))
		}
	case protocol.ChatMessage:
		if p.OnChat != nil {
			p.OnChat(m)
		}
	case protocol.History:
		if p.OnHistory != nil {
			p.OnHistory(m.Messages)
		}
	case protocol.RoomClosed:
		return fmt.Errorf("%w: %s", ErrRoomClosed, m.RoomID)
	case protocol.Error:
		if m.Code == protocol.CodeIdentityRequired {
			return fmt.Errorf("join %s: %s", p.room, m.Message)
		}
		log.Warn().Str("module", "client").Str("code", string(m.Code)).Str("error", m.Message).Msg("relay error")
	case protocol.Pong, protocol.WhoAmI:
		log.Debug().Str("module", "client").Str("type", string(m.Kind())).Msg("relay reply")
	case protocol.Join, protocol.Leave, protocol.Ping:
		log.Warn().Str("module", "client").Str("type", string(m.Kind())).Msg("unexpected client-only message")
	}
	return nil
}

// logLinkErr keeps link failures local to the link.
func logLinkErr(err error) {
	if err == nil {
		return
	}
	var le *peer.LinkError
	if errors.As(err, &le) {
		log.Warn().Err(le.Err).Str("module", "client").Str("op", le.Op).Str("remote", string(le.Remote)).Msg("link error")
		return
	}
	log.Warn().Err(err).Str("module", "client").Msg("link error")
}
