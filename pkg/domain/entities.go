// Package domain defines the persistent entities, value types, and rule
// evaluation primitives shared by the token ledger and the supply chain
// registry.
package domain

import "time"

// EntityType identifies the type of record stored in a component's state.
type EntityType string

// Supported entity type identifiers used in Change records and persistence buckets.
const (
	// EntityToken identifies the token metadata singleton.
	EntityToken EntityType = "token"
	// EntityAccount identifies a balance record.
	EntityAccount EntityType = "account"
	// EntityAllowance identifies an (owner, spender) spending limit.
	EntityAllowance EntityType = "allowance"
	// EntityRegistry identifies the registry metadata singleton.
	EntityRegistry EntityType = "registry"
	// EntityItem identifies a tracked supply chain item.
	EntityItem EntityType = "item"
	// EntityRole identifies a role grant.
	EntityRole EntityType = "role"
)

// Severity captures rule outcomes.
type Severity string

// Rule evaluation severities determine commit behavior and logging.
const (
	// SeverityBlock blocks transaction commit.
	SeverityBlock Severity = "block"
	// SeverityWarn logs a warning but allows commit.
	SeverityWarn Severity = "warn"
	SeverityLog  Severity = "log"
)

// TokenMetadata describes the fungible asset held by a ledger. It is written
// once, at initialization.
type TokenMetadata struct {
	Name          string    `json:"name"`
	Symbol        string    `json:"symbol"`
	Decimals      uint8     `json:"decimals"`
	TotalSupply   Amount    `json:"total_supply"`
	Owner         Address   `json:"owner"`
	InitializedAt time.Time `json:"initialized_at"`
}

// Account is a balance record. Accounts are created on first credit and are
// never removed, even when the balance returns to zero.
type Account struct {
	Address   Address   `json:"address"`
	Balance   Amount    `json:"balance"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Allowance is the amount Spender may still move out of Owner's account.
type Allowance struct {
	Owner     Address   `json:"owner"`
	Spender   Address   `json:"spender"`
	Amount    Amount    `json:"amount"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AllowanceKey returns the storage key for an (owner, spender) pair.
func AllowanceKey(owner, spender Address) string {
	return string(owner) + "/" + string(spender)
}

// RegistryMetadata records who deployed a supply chain registry.
type RegistryMetadata struct {
	Admin         Address   `json:"admin"`
	InitializedAt time.Time `json:"initialized_at"`
}

// Item is a tracked good moving through the supply chain stages.
type Item struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	Price     Amount            `json:"price"`
	Stage     Stage             `json:"stage"`
	Producer  Address           `json:"producer"`
	Buyer     Address           `json:"buyer,omitempty"`
	Shipper   Address           `json:"shipper,omitempty"`
	History   []StageTransition `json:"history"`
	CreatedAt time.Time         `json:"created_at"`
	UpdatedAt time.Time         `json:"updated_at"`
}

// StageTransition records who moved an item into a stage and when.
type StageTransition struct {
	Stage Stage     `json:"stage"`
	Actor Address   `json:"actor"`
	At    time.Time `json:"at"`
}

// Custodian returns the identity that performed the most recent transition.
func (i Item) Custodian() Address {
	if len(i.History) == 0 {
		return i.Producer
	}
	return i.History[len(i.History)-1].Actor
}

// RoleGrant records a capability held by an account.
type RoleGrant struct {
	Account   Address   `json:"account"`
	Role      Role      `json:"role"`
	GrantedBy Address   `json:"granted_by"`
	GrantedAt time.Time `json:"granted_at"`
}

// RoleKey returns the storage key for an (account, role) pair.
func RoleKey(account Address, role Role) string {
	return string(account) + "/" + string(role)
}

// Change describes a mutation applied to an entity during a transaction.
type Change struct {
	Entity   EntityType
	Action   Action
	EntityID string
	Before   ChangePayload
	After    ChangePayload
}

// Action indicates the type of modification performed.
type Action string

// Change actions enumerate supported mutations captured in the change set.
const (
	// ActionCreate indicates an entity was created.
	ActionCreate Action = "create"
	// ActionUpdate indicates an entity was updated.
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// Violation reports a failed rule evaluation.
type Violation struct {
	Rule     string
	Severity Severity
	Message  string
	Entity   EntityType
	EntityID string
}

// Result aggregates violations from the rules engine.
type Result struct {
	Violations []Violation
}

// Merge appends violations from another result.
func (r *Result) Merge(other Result) {
	if len(other.Violations) == 0 {
		return
	}
	r.Violations = append(r.Violations, other.Violations...)
}

// HasBlocking returns true if the result contains blocking violations.
func (r Result) HasBlocking() bool {
	for _, v := range r.Violations {
		if v.Severity == SeverityBlock {
			return true
		}
	}
	return false
}

// RuleViolationError is returned when blocking violations are present.
type RuleViolationError struct {
	Result Result
}

func (e RuleViolationError) Error() string {
	for _, v := range e.Result.Violations {
		if v.Severity == SeverityBlock {
			return "transaction blocked by rules: " + v.Rule + ": " + v.Message
		}
	}
	return "transaction blocked by rules"
}
