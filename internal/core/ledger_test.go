package core

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"supplyledger/internal/infra/persistence/memory"
	"supplyledger/pkg/domain"
)

func TestLedgerInitializeMintsToDeployer(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger(nil, WithClock(fixedClock()))
	meta, _, err := ledger.Initialize(ctx, deployer, DefaultTokenParams())
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	if meta.Name != "TotalSem Token" || meta.Symbol != "TotalSem" || meta.Decimals != 18 || meta.Owner != deployer {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if !meta.InitializedAt.Equal(fixedClock().Now()) {
		t.Fatalf("expected clock-stamped metadata, got %s", meta.InitializedAt)
	}
	if got := mustBalance(t, ledger, deployer); got != "10000" {
		t.Fatalf("deployer balance: want 10000 got %s", got)
	}
	supply, err := ledger.TotalSupply(ctx)
	if err != nil || supply.String() != "10000" {
		t.Fatalf("total supply: %s %v", supply, err)
	}
	events, _ := ledger.Events(ctx)
	if len(events) != 2 || events[0].Kind != domain.EventInitialized || events[1].Kind != domain.EventTransfer || events[1].From != domain.ZeroAddress {
		t.Fatalf("unexpected journal %+v", events)
	}
}

func TestLedgerInitializeOnce(t *testing.T) {
	ledger := newTestLedger(t)
	if _, _, err := ledger.Initialize(context.Background(), alice, DefaultTokenParams()); !errors.Is(err, domain.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
	if got := mustBalance(t, ledger, alice); got != "0" {
		t.Fatalf("second initialize must not mint, alice has %s", got)
	}
}

func TestLedgerInitializeRejectsNullDeployer(t *testing.T) {
	ledger := NewInMemoryLedger(nil)
	if _, _, err := ledger.Initialize(context.Background(), domain.ZeroAddress, DefaultTokenParams()); !errors.Is(err, domain.ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
}

func TestLedgerRequiresInitialization(t *testing.T) {
	ctx := context.Background()
	ledger := NewInMemoryLedger(nil)
	checks := map[string]error{}
	_, _, checks["transfer"] = ledger.Transfer(ctx, alice, bob, amt(1))
	_, _, checks["approve"] = ledger.Approve(ctx, alice, bob, amt(1))
	_, _, checks["transfer_from"] = ledger.TransferFrom(ctx, bob, alice, carol, amt(1))
	_, checks["balance"] = ledger.BalanceOf(ctx, alice)
	_, checks["allowance"] = ledger.Allowance(ctx, alice, bob)
	_, checks["metadata"] = ledger.Metadata(ctx)
	_, checks["accounts"] = ledger.Accounts(ctx)
	for name, err := range checks {
		if !errors.Is(err, domain.ErrNotInitialized) {
			t.Fatalf("%s: expected ErrNotInitialized, got %v", name, err)
		}
	}
}

func TestLedgerTransfer(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	event, _, err := ledger.Transfer(ctx, deployer, bob, amt(3000))
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if event.Kind != domain.EventTransfer || event.From != deployer || event.To != bob || event.Amount.String() != "3000" {
		t.Fatalf("unexpected event %+v", event)
	}
	if a, b := mustBalance(t, ledger, deployer), mustBalance(t, ledger, bob); a != "7000" || b != "3000" {
		t.Fatalf("want 7000/3000 got %s/%s", a, b)
	}
}

func TestLedgerTransferInsufficientBalanceLeavesState(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	store := ledger.Store().(*memory.Store)
	before := store.ExportState()
	if _, _, err := ledger.Transfer(ctx, deployer, bob, amt(10001)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if !reflect.DeepEqual(before, store.ExportState()) {
		t.Fatalf("failed transfer changed state")
	}
}

func TestLedgerTransferToNullAddress(t *testing.T) {
	ledger := newTestLedger(t)
	if _, _, err := ledger.Transfer(context.Background(), deployer, domain.ZeroAddress, amt(1)); !errors.Is(err, domain.ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient, got %v", err)
	}
	if got := mustBalance(t, ledger, deployer); got != "10000" {
		t.Fatalf("balance changed to %s", got)
	}
}

func TestLedgerZeroAndSelfTransfers(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	if _, _, err := ledger.Transfer(ctx, deployer, deployer, amt(500)); err != nil {
		t.Fatalf("self transfer: %v", err)
	}
	if got := mustBalance(t, ledger, deployer); got != "10000" {
		t.Fatalf("self transfer changed balance to %s", got)
	}
	if _, _, err := ledger.Transfer(ctx, alice, bob, amt(0)); err != nil {
		t.Fatalf("zero transfer from empty account: %v", err)
	}
	events, _ := ledger.Events(ctx)
	if len(events) != 4 {
		t.Fatalf("expected both transfers journaled, got %d events", len(events))
	}
}

func TestLedgerReadsDoNotCreateAccounts(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	if got := mustBalance(t, ledger, carol); got != "0" {
		t.Fatalf("unknown account must read zero, got %s", got)
	}
	accounts, _ := ledger.Accounts(ctx)
	if len(accounts) != 1 {
		t.Fatalf("reads created records: %+v", accounts)
	}
}

func TestLedgerApproveLastWriterWins(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	if _, _, err := ledger.Approve(ctx, deployer, bob, amt(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	allowance, _, err := ledger.Approve(ctx, deployer, bob, amt(200))
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if allowance.Amount.String() != "200" {
		t.Fatalf("want 200 got %s", allowance.Amount)
	}
	got, _ := ledger.Allowance(ctx, deployer, bob)
	if got.String() != "200" {
		t.Fatalf("want 200 got %s", got)
	}
	if _, _, err := ledger.Approve(ctx, deployer, domain.ZeroAddress, amt(1)); !errors.Is(err, domain.ErrInvalidRecipient) {
		t.Fatalf("expected ErrInvalidRecipient approving null spender, got %v", err)
	}
}

func TestLedgerTransferFrom(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	if _, _, err := ledger.Approve(ctx, deployer, bob, amt(500)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := ledger.TransferFrom(ctx, bob, deployer, carol, amt(300)); err != nil {
		t.Fatalf("transfer from: %v", err)
	}
	remaining, _ := ledger.Allowance(ctx, deployer, bob)
	if remaining.String() != "200" {
		t.Fatalf("allowance want 200 got %s", remaining)
	}
	if d, c := mustBalance(t, ledger, deployer), mustBalance(t, ledger, carol); d != "9700" || c != "300" {
		t.Fatalf("want 9700/300 got %s/%s", d, c)
	}
	if _, _, err := ledger.TransferFrom(ctx, bob, deployer, carol, amt(201)); !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
}

func TestLedgerTransferFromCheckOrder(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	// alice has no balance and bob has no allowance over her.
	if _, _, err := ledger.TransferFrom(ctx, bob, alice, domain.ZeroAddress, amt(5)); !errors.Is(err, domain.ErrInvalidRecipient) {
		t.Fatalf("recipient is checked first, got %v", err)
	}
	if _, _, err := ledger.TransferFrom(ctx, bob, alice, carol, amt(5)); !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Fatalf("allowance is checked before balance, got %v", err)
	}
	if _, _, err := ledger.Approve(ctx, alice, bob, amt(5)); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if _, _, err := ledger.TransferFrom(ctx, bob, alice, carol, amt(5)); !errors.Is(err, domain.ErrInsufficientBalance) {
		t.Fatalf("expected ErrInsufficientBalance, got %v", err)
	}
	if got, _ := ledger.Allowance(ctx, alice, bob); got.String() != "5" {
		t.Fatalf("failed transfer from consumed allowance: %s", got)
	}
}

func TestLedgerIncreaseDecreaseAllowance(t *testing.T) {
	ctx := context.Background()
	ledger := newTestLedger(t)
	if _, _, err := ledger.IncreaseAllowance(ctx, deployer, bob, amt(40)); err != nil {
		t.Fatalf("increase: %v", err)
	}
	a, _, err := ledger.IncreaseAllowance(ctx, deployer, bob, amt(2))
	if err != nil || a.Amount.String() != "42" {
		t.Fatalf("increase: %s %v", a.Amount, err)
	}
	a, _, err = ledger.DecreaseAllowance(ctx, deployer, bob, amt(12))
	if err != nil || a.Amount.String() != "30" {
		t.Fatalf("decrease: %s %v", a.Amount, err)
	}
	if _, _, err := ledger.DecreaseAllowance(ctx, deployer, bob, amt(31)); !errors.Is(err, domain.ErrInsufficientAllowance) {
		t.Fatalf("expected ErrInsufficientAllowance, got %v", err)
	}
	ceiling := domain.MustParseAmount("115792089237316195423570985008687907853269984665640564039457584007913129639935")
	if _, _, err := ledger.IncreaseAllowance(ctx, deployer, bob, ceiling); !errors.Is(err, domain.ErrInvalidArgument) {
		t.Fatalf("expected overflow to fail with ErrInvalidArgument, got %v", err)
	}
	if got, _ := ledger.Allowance(ctx, deployer, bob); got.String() != "30" {
		t.Fatalf("failed adjustments changed allowance: %s", got)
	}
}
