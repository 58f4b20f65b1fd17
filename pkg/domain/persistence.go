package domain

import (
	"context"
	"time"
)

// Transaction exposes the state operations a persistence implementation must
// support within an atomic scope. Every mutation is recorded as a Change and
// only becomes visible once the whole transaction commits.
type Transaction interface {
	Snapshot() TransactionView
	Now() time.Time

	Token() (TokenMetadata, bool)
	InitializeToken(TokenMetadata) (TokenMetadata, error)
	FindAccount(addr Address) (Account, bool)
	// UpdateAccount applies mutator to the account, creating a zero-balance
	// record first when none exists.
	UpdateAccount(addr Address, mutator func(*Account) error) (Account, error)
	FindAllowance(owner, spender Address) (Allowance, bool)
	UpdateAllowance(owner, spender Address, mutator func(*Allowance) error) (Allowance, error)

	Registry() (RegistryMetadata, bool)
	InitializeRegistry(RegistryMetadata) (RegistryMetadata, error)
	HasRole(account Address, role Role) bool
	GrantRole(RoleGrant) (RoleGrant, error)
	RevokeRole(account Address, role Role) error
	FindItem(id string) (Item, bool)
	CreateItem(Item) (Item, error)
	UpdateItem(id string, mutator func(*Item) error) (Item, error)

	Emit(Event) Event
}

// TransactionView provides read-only access to snapshot data for rules and queries.
type TransactionView interface {
	Token() (TokenMetadata, bool)
	ListAccounts() []Account
	FindAccount(addr Address) (Account, bool)
	ListAllowances() []Allowance
	FindAllowance(owner, spender Address) (Allowance, bool)
	Registry() (RegistryMetadata, bool)
	ListRoleGrants() []RoleGrant
	HasRole(account Address, role Role) bool
	ListItems() []Item
	FindItem(id string) (Item, bool)
	ListEvents() []Event
}

// PersistentStore is a minimal abstraction over durable backends.
type PersistentStore interface {
	RunInTransaction(ctx context.Context, fn func(Transaction) error) (Result, error)
	View(ctx context.Context, fn func(TransactionView) error) error
}
