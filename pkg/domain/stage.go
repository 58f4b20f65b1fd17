package domain

import "fmt"

// Stage is a discrete step in an item's lifecycle.
type Stage string

// Canonical item stages in lifecycle order. Delivered is terminal.
const (
	StageCreated   Stage = "created"
	StagePaid      Stage = "paid"
	StageShipped   Stage = "shipped"
	StageDelivered Stage = "delivered"
)

var stageOrder = []Stage{StageCreated, StagePaid, StageShipped, StageDelivered}

// Stages returns the lifecycle in order.
func Stages() []Stage {
	return append([]Stage(nil), stageOrder...)
}

// Index returns the position of s in the lifecycle, or -1 if s is unknown.
func (s Stage) Index() int {
	for i, candidate := range stageOrder {
		if candidate == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known stage.
func (s Stage) Valid() bool { return s.Index() >= 0 }

// Terminal reports whether no transition leaves s.
func (s Stage) Terminal() bool { return s == StageDelivered }

// Next returns the stage that follows s.
func (s Stage) Next() (Stage, bool) {
	i := s.Index()
	if i < 0 || i+1 >= len(stageOrder) {
		return "", false
	}
	return stageOrder[i+1], true
}

// Role is a capability an account can hold in a registry.
type Role string

// Registry roles.
const (
	RoleAdmin    Role = "admin"
	RoleProducer Role = "producer"
	RoleBuyer    Role = "buyer"
	RoleShipper  Role = "shipper"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleProducer, RoleBuyer, RoleShipper:
		return true
	default:
		return false
	}
}

// ParseRole validates a role name.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown role %q", ErrInvalidArgument, s)
	}
	return r, nil
}

// transitionRoles maps the stage an item leaves to the role allowed to move it on.
var transitionRoles = map[Stage]Role{
	StageCreated: RoleBuyer,
	StagePaid:    RoleShipper,
	StageShipped: RoleBuyer,
}

// RequiredRole returns the role needed to advance an item out of from.
func RequiredRole(from Stage) (Role, bool) {
	r, ok := transitionRoles[from]
	return r, ok
}

// RoleChecker answers capability questions against a role table.
type RoleChecker interface {
	HasRole(account Address, role Role) bool
}

// CheckCapability fails with ErrUnauthorized unless actor holds required.
func CheckCapability(roles RoleChecker, actor Address, required Role) error {
	if actor.IsZero() || roles == nil || !roles.HasRole(actor, required) {
		return fmt.Errorf("%w: %s lacks role %s", ErrUnauthorized, actor, required)
	}
	return nil
}
