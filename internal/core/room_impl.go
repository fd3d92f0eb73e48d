package core

import (
	"slices"

	"github.com/dkeye/meshroom/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// roomImpl is an in-memory room keeping join order.
// It is not safe for concurrent use: the relay loop owns it.
// It never closes adapter-owned resources.
type roomImpl struct {
	id       domain.RoomID
	order    []domain.Handle
	byHandle map[domain.Handle]MemberSession
}

func NewRoomService(id domain.RoomID) RoomService {
	return &roomImpl{
		id:       id,
		byHandle: make(map[domain.Handle]MemberSession),
	}
}

func (r *roomImpl) ID() domain.RoomID { return r.id }

func (r *roomImpl) MemberCount() int { return len(r.order) }

func (r *roomImpl) Has(h domain.Handle) bool {
	_, ok := r.byHandle[h]
	return ok
}

func (r *roomImpl) AddMember(ms MemberSession) bool {
	h := ms.Meta().Handle
	if _, ok := r.byHandle[h]; ok {
		return false
	}
	r.byHandle[h] = ms
	r.order = append(r.order, h)
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("handle", string(h)).Msg("member added")
	return true
}

func (r *roomImpl) RemoveMember(h domain.Handle) (MemberSession, bool) {
	ms, ok := r.byHandle[h]
	if !ok {
		return nil, false
	}
	delete(r.byHandle, h)
	r.order = slices.DeleteFunc(r.order, func(x domain.Handle) bool { return x == h })
	log.Debug().Str("module", "core.room").Str("room", string(r.id)).Str("handle", string(h)).Msg("member removed")
	return ms, true
}

func (r *roomImpl) Broadcast(from domain.Handle, data Frame) PublishResult {
	res := PublishResult{}
	for _, h := range r.order {
		if h == from {
			continue
		}
		m := r.byHandle[h]
		if err := m.Signal().TrySend(data); err != nil {
			res.Dropped = append(res.Dropped, m)
			continue
		}
		res.SendTo++
	}
	log.Debug().Str("module", "core.room").Str("from", string(from)).Int("sent_to", res.SendTo).Int("dropped", len(res.Dropped)).Msg("broadcast result")
	return res
}

func (r *roomImpl) MembersSnapshot() []domain.Participant {
	return lo.Map(r.order, func(h domain.Handle, _ int) domain.Participant {
		return r.byHandle[h].Meta()
	})
}
