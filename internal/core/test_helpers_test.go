package core

import (
	"context"
	"testing"
	"time"

	"supplyledger/pkg/domain"
)

var (
	deployer = domain.MustParseAddress("0x00000000000000000000000000000000000000d1")
	alice    = domain.MustParseAddress("0x00000000000000000000000000000000000000a1")
	bob      = domain.MustParseAddress("0x00000000000000000000000000000000000000b2")
	carol    = domain.MustParseAddress("0x00000000000000000000000000000000000000c3")
)

func amt(n uint64) domain.Amount { return domain.NewAmount(n) }

func fixedClock() ClockFunc {
	at := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	return ClockFunc(func() time.Time { return at })
}

func newTestLedger(t *testing.T, opts ...ServiceOption) *Ledger {
	t.Helper()
	ledger := NewInMemoryLedger(nil, opts...)
	if _, _, err := ledger.Initialize(context.Background(), deployer, DefaultTokenParams()); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return ledger
}

func mustBalance(t *testing.T, ledger *Ledger, addr domain.Address) string {
	t.Helper()
	bal, err := ledger.BalanceOf(context.Background(), addr)
	if err != nil {
		t.Fatalf("balance of %s: %v", addr, err)
	}
	return bal.String()
}

// newTestRegistry returns an initialized registry where alice produces,
// bob buys and carol ships.
func newTestRegistry(t *testing.T, opts ...ServiceOption) *Registry {
	t.Helper()
	ctx := context.Background()
	reg := NewInMemoryRegistry(nil, opts...)
	if _, _, err := reg.Initialize(ctx, deployer); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	grants := []struct {
		account domain.Address
		role    domain.Role
	}{
		{alice, domain.RoleProducer},
		{bob, domain.RoleBuyer},
		{carol, domain.RoleShipper},
	}
	for _, g := range grants {
		if _, _, err := reg.GrantRole(ctx, deployer, g.account, g.role); err != nil {
			t.Fatalf("grant %s to %s: %v", g.role, g.account, err)
		}
	}
	return reg
}
