package domain

import (
	"errors"
	"testing"
)

func TestStageProgression(t *testing.T) {
	stage := StageCreated
	var visited []Stage
	for {
		visited = append(visited, stage)
		next, ok := stage.Next()
		if !ok {
			break
		}
		if next.Index() != stage.Index()+1 {
			t.Fatalf("stages must advance one step: %s -> %s", stage, next)
		}
		stage = next
	}
	if len(visited) != len(Stages()) || stage != StageDelivered || !stage.Terminal() {
		t.Fatalf("unexpected progression %v", visited)
	}
	if Stage("lost").Valid() || Stage("lost").Index() != -1 {
		t.Fatalf("unknown stage reported valid")
	}
	if _, ok := Stage("lost").Next(); ok {
		t.Fatalf("unknown stage has no successor")
	}
}

func TestRequiredRole(t *testing.T) {
	cases := map[Stage]Role{
		StageCreated: RoleBuyer,
		StagePaid:    RoleShipper,
		StageShipped: RoleBuyer,
	}
	for from, want := range cases {
		got, ok := RequiredRole(from)
		if !ok || got != want {
			t.Fatalf("%s: want %s got %s (%v)", from, want, got, ok)
		}
	}
	if _, ok := RequiredRole(StageDelivered); ok {
		t.Fatalf("terminal stage must not require a role")
	}
}

func TestParseRole(t *testing.T) {
	for _, r := range []string{"admin", "producer", "buyer", "shipper"} {
		if _, err := ParseRole(r); err != nil {
			t.Fatalf("parse %s: %v", r, err)
		}
	}
	if _, err := ParseRole("auditor"); !errors.Is(err, ErrInvalidArgument) {
		t.Fatalf("expected ErrInvalidArgument, got %v", err)
	}
}

type roleTable map[string]bool

func (r roleTable) HasRole(account Address, role Role) bool { return r[RoleKey(account, role)] }

func TestCheckCapability(t *testing.T) {
	buyer := MustParseAddress("0x00000000000000000000000000000000000000b1")
	roles := roleTable{RoleKey(buyer, RoleBuyer): true}
	if err := CheckCapability(roles, buyer, RoleBuyer); err != nil {
		t.Fatalf("expected buyer capability: %v", err)
	}
	if err := CheckCapability(roles, buyer, RoleShipper); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected unauthorized, got %v", err)
	}
	if err := CheckCapability(roles, ZeroAddress, RoleBuyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("zero actor must be unauthorized, got %v", err)
	}
	if err := CheckCapability(nil, buyer, RoleBuyer); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("nil roles must be unauthorized, got %v", err)
	}
}

func TestNotFoundErrorIs(t *testing.T) {
	err := error(NotFoundError{Entity: EntityItem, ID: "missing"})
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected NotFoundError to match ErrNotFound")
	}
	if err.Error() == "" {
		t.Fatalf("expected message")
	}
}
