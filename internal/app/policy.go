package app

import "github.com/piljoong/moyim/internal/domain"

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickClient
	DropFrame
)

// Policy decides what happens to a connection that could not keep up
// with broadcast delivery.
type Policy interface {
	OnBackPressure(dept domain.DepartmentName, clientID domain.ClientID) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(dept domain.DepartmentName, clientID domain.ClientID) BackpressureAction {
	return KickClient
}
