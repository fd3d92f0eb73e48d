package app

import (
	"errors"
	"sort"

	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var (
	ErrIdentityRequired = errors.New("identity required")
	ErrInOtherRoom      = errors.New("handle already in another room")
)

// Registry is the process-lifetime map from room to its live members.
// byHandle is the reverse index used by Disconnect; a handle is in at most one room.
// Registry is not safe for concurrent use: the relay loop owns it.
type Registry struct {
	rooms    map[domain.RoomID]core.RoomService
	byHandle map[domain.Handle]domain.RoomID
}

func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[domain.RoomID]core.RoomService),
		byHandle: make(map[domain.Handle]domain.RoomID),
	}
}

// Join adds the session to the room, creating the room on first join, and
// returns the other members in join order. Re-joining the same room is a no-op.
func (r *Registry) Join(sess core.MemberSession, id domain.RoomID) ([]domain.Participant, error) {
	meta := sess.Meta()
	if meta.Identity == "" {
		return nil, ErrIdentityRequired
	}
	if cur, ok := r.byHandle[meta.Handle]; ok && cur != id {
		return nil, ErrInOtherRoom
	}

	room, ok := r.rooms[id]
	if !ok {
		room = core.NewRoomService(id)
		r.rooms[id] = room
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room created")
	}
	if room.AddMember(sess) {
		r.byHandle[meta.Handle] = id
		log.Info().Str("module", "app.registry").Str("handle", string(meta.Handle)).Str("room", string(id)).Msg("joined")
	}
	return othersThan(room.MembersSnapshot(), meta.Handle), nil
}

// Leave removes the handle from the room and drops the room once empty.
func (r *Registry) Leave(h domain.Handle, id domain.RoomID) (core.MemberSession, bool) {
	room, ok := r.rooms[id]
	if !ok {
		return nil, false
	}
	sess, ok := room.RemoveMember(h)
	if !ok {
		return nil, false
	}
	delete(r.byHandle, h)
	log.Info().Str("module", "app.registry").Str("handle", string(h)).Str("room", string(id)).Msg("left")
	if room.MemberCount() == 0 {
		delete(r.rooms, id)
		log.Info().Str("module", "app.registry").Str("room", string(id)).Msg("room removed")
	}
	return sess, true
}

// Disconnect is an implicit Leave from whatever room the handle occupies.
func (r *Registry) Disconnect(h domain.Handle) (domain.RoomID, core.MemberSession, bool) {
	id, ok := r.byHandle[h]
	if !ok {
		return "", nil, false
	}
	sess, ok := r.Leave(h, id)
	return id, sess, ok
}

func (r *Registry) MembersOf(id domain.RoomID) []domain.Participant {
	room, ok := r.rooms[id]
	if !ok {
		return nil
	}
	return room.MembersSnapshot()
}

func (r *Registry) RoomOf(h domain.Handle) (domain.RoomID, bool) {
	id, ok := r.byHandle[h]
	return id, ok
}

func (r *Registry) Room(id domain.RoomID) (core.RoomService, bool) {
	room, ok := r.rooms[id]
	return room, ok
}

// Exists reports live membership only; history is consulted by the caller.
func (r *Registry) Exists(id domain.RoomID) bool {
	_, ok := r.rooms[id]
	return ok
}

func (r *Registry) List() []core.RoomInfo {
	out := make([]core.RoomInfo, 0, len(r.rooms))
	for id, room := range r.rooms {
		out = append(out, core.RoomInfo{ID: id, MemberCount: room.MemberCount()})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func othersThan(members []domain.Participant, h domain.Handle) []domain.Participant {
	return lo.Filter(members, func(m domain.Participant, _ int) bool { return m.Handle != h })
}
