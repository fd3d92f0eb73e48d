package orch

import (
	"context"
	"errors"

	"github.com/dkeye/meshroom/internal/app"
	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (o *Orchestrator) handleJoin(sess core.MemberSession, m protocol.Join) {
	meta := sess.Meta()
	id, err := domain.ParseRoomID(string(m.RoomID))
	if err != nil {
		o.replyError(sess, protocol.CodeBadPayload, err.Error())
		return
	}
	if meta.Identity == "" {
		log.Warn().Str("module", "app.orch").Str("handle", string(meta.Handle)).Msg("join without identity")
		o.replyError(sess, protocol.CodeIdentityRequired, "sign in before joining a room")
		return
	}

	cur, inRoom := o.Registry.RoomOf(meta.Handle)
	if inRoom && cur != id {
		o.leave(meta.Handle, cur)
	}
	alreadyMember := inRoom && cur == id

	others, err := o.Registry.Join(sess, id)
	if err != nil {
		code := protocol.CodeBadPayload
		if errors.Is(err, app.ErrIdentityRequired) {
			code = protocol.CodeIdentityRequired
		}
		o.replyError(sess, code, err.Error())
		return
	}

	// The member list goes out before any other event can reach the joiner.
	o.send(sess, protocol.ExistingMembers{RoomID: id, Members: others})
	if !alreadyMember {
		o.broadcast(id, meta.Handle, protocol.MemberJoined{Participant: meta})
	}
	o.sendHistory(sess, id)
}

func (o *Orchestrator) handleLeave(sess core.MemberSession, m protocol.Leave) {
	h := sess.Meta().Handle
	if !o.requireMembership(sess, m.RoomID) {
		return
	}
	o.leave(h, m.RoomID)
}

// requireMembership answers room-closed for a room with no live members and
// not_in_room when the sender is elsewhere.
func (o *Orchestrator) requireMembership(sess core.MemberSession, id domain.RoomID) bool {
	if !o.Registry.Exists(id) {
		o.send(sess, protocol.RoomClosed{RoomID: id})
		return false
	}
	if cur, ok := o.Registry.RoomOf(sess.Meta().Handle); !ok || cur != id {
		o.replyError(sess, protocol.CodeNotInRoom, "not a member of "+string(id))
		return false
	}
	return true
}

func (o *Orchestrator) leave(h domain.Handle, id domain.RoomID) {
	sess, ok := o.Registry.Leave(h, id)
	if !ok {
		return
	}
	o.broadcast(id, h, protocol.MemberLeft{Participant: sess.Meta()})
}

func (o *Orchestrator) onDisconnect(h domain.Handle) {
	if _, ok := o.conns[h]; !ok {
		return
	}
	delete(o.conns, h)
	o.Policy.Forget(h)
	if id, sess, ok := o.Registry.Disconnect(h); ok {
		o.broadcast(id, h, protocol.MemberLeft{Participant: sess.Meta()})
	}
	log.Info().Str("module", "app.orch").Str("handle", string(h)).Msg("disconnected")
}

func (o *Orchestrator) handleWhoAmI(sess core.MemberSession) {
	meta := sess.Meta()
	resp := protocol.WhoAmI{Handle: meta.Handle, Identity: meta.Identity}
	if id, ok := o.Registry.RoomOf(meta.Handle); ok {
		resp.RoomID = id
	}
	o.send(sess, resp)
}

// sendHistory fetches off the loop so storage latency never delays room state.
func (o *Orchestrator) sendHistory(sess core.MemberSession, id domain.RoomID) {
	if o.History == nil {
		return
	}
	parent := o.ctx
	go func() {
		ctx, cancel := context.WithTimeout(parent, o.fetchTimeout)
		defer cancel()
		msgs, err := o.History.FetchHistory(ctx, id)
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Str("room", string(id)).Msg("fetch history")
			return
		}
		if len(msgs) == 0 {
			return
		}
		frame, err := protocol.Encode(protocol.History{RoomID: id, Messages: msgs})
		if err != nil {
			log.Error().Err(err).Str("module", "app.orch").Msg("encode history")
			return
		}
		if err := sess.Signal().TrySend(frame); err != nil {
			log.Warn().Err(err).Str("module", "app.orch").Str("handle", string(sess.Meta().Handle)).Msg("history not delivered")
		}
	}()
}
