package orch

import (
	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/dkeye/meshroom/internal/protocol"
)

func (o *Orchestrator) handleChat(sess core.MemberSession, m protocol.ChatMessage) {
	if !o.requireMembership(sess, m.RoomID) {
		return
	}
	meta := sess.Meta()
	msg, err := domain.NewChatMessage(m.RoomID, meta.Identity, m.Text, o.chatMaxLen, o.now())
	if err != nil {
		o.replyError(sess, protocol.CodeInvalidMessage, err.Error())
		return
	}
	o.broadcast(msg.RoomID, meta.Handle, protocol.ChatMessage{
		RoomID:    msg.RoomID,
		Sender:    msg.Sender,
		Text:      msg.Text,
		Timestamp: msg.Timestamp,
	})
	if o.Writer != nil {
		o.Writer.Submit(msg)
	}
}
