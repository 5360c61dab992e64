package app

import "github.com/dkeye/chatrelay/internal/core"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	KickMember
	DropFrame
)

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(conn core.Connection) BackpressureAction
}

type SimplePolicy struct {
	Action BackpressureAction
}

func (p SimplePolicy) OnBackPressure(core.Connection) BackpressureAction {
	return p.Action
}

// PolicyFor maps the ws.backpressure setting to a policy.
func PolicyFor(name string) Policy {
	if name == "kick" {
		return SimplePolicy{Action: KickMember}
	}
	return SimplePolicy{Action: DropFrame}
}
