package app

import (
	"github.com/dkeye/meshroom/internal/core"
	"github.com/dkeye/meshroom/internal/domain"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropFrame
	KickMember
)

// Policy decides what happens to a member whose send buffer is full.
// It is called from the relay loop only.
type Policy interface {
	OnBackPressure(room domain.RoomID, member core.MemberSession) BackpressureAction
	Forget(h domain.Handle)
}

// KickPolicy disconnects a slow member on the first dropped frame.
type KickPolicy struct{}

func (KickPolicy) OnBackPressure(domain.RoomID, core.MemberSession) BackpressureAction {
	return KickMember
}

func (KickPolicy) Forget(domain.Handle) {}

// ThresholdPolicy tolerates MaxDrops dropped frames before kicking.
type ThresholdPolicy struct {
	MaxDrops int
	drops    map[domain.Handle]int
}

func NewThresholdPolicy(maxDrops int) *ThresholdPolicy {
	return &ThresholdPolicy{MaxDrops: maxDrops, drops: make(map[domain.Handle]int)}
}

func (p *ThresholdPolicy) OnBackPressure(_ domain.RoomID, member core.MemberSession) BackpressureAction {
	h := member.Meta().Handle
	p.drops[h]++
	if p.drops[h] >= p.MaxDrops {
		delete(p.drops, h)
		return KickMember
	}
	return DropFrame
}

func (p *ThresholdPolicy) Forget(h domain.Handle) { delete(p.drops, h) }
