package orch

import (
	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

// Negotiation messages are routed point-to-point and never interpreted.

func (o *Orchestrator) handleOffer(sess core.MemberSession, m protocol.Offer) {
	target, ok := o.peerOf(sess, m.Target)
	if !ok {
		return
	}
	meta := sess.Meta()
	o.send(target, protocol.Offer{From: meta.Handle, Identity: meta.Identity, SDP: m.SDP})
}

func (o *Orchestrator) handleAnswer(sess core.MemberSession, m protocol.Answer) {
	target, ok := o.peerOf(sess, m.Target)
	if !ok {
		return
	}
	meta := sess.Meta()
	o.send(target, protocol.Answer{From: meta.Handle, Identity: meta.Identity, SDP: m.SDP})
}

func (o *Orchestrator) handleCandidate(sess core.MemberSession, m protocol.ICECandidate) {
	target, ok := o.peerOf(sess, m.Target)
	if !ok {
		return
	}
	o.send(target, protocol.ICECandidate{From: sess.Meta().Handle, Candidate: m.Candidate})
}

// peerOf resolves a target handle that shares the sender's room.
func (o *Orchestrator) peerOf(sess core.MemberSession, target domain.Handle) (core.MemberSession, bool) {
	from := sess.Meta().Handle
	room, ok := o.Registry.RoomOf(from)
	if !ok {
		o.replyError(sess, protocol.CodeNotInRoom, "join a room first")
		return nil, false
	}
	if target == "" || target == from {
		o.replyError(sess, protocol.CodeBadPayload, "missing target")
		return nil, false
	}
	if troom, ok := o.Registry.RoomOf(target); !ok || troom != room {
		log.Debug().Str("module", "app.orch").Str("from", string(from)).Str("target", string(target)).Msg("target not in room")
		o.replyError(sess, protocol.CodeNotInRoom, "target is not in your room")
		return nil, false
	}
	peer, ok := o.conns[target]
	return peer, ok
}
