package domain

import "time"

// EventKind names an entry in a component's event journal.
type EventKind string

// Journal entries emitted by successful mutations.
const (
	EventInitialized         EventKind = "initialized"
	EventTransfer            EventKind = "transfer"
	EventApproval            EventKind = "approval"
	EventRegistryInitialized EventKind = "registry_initialized"
	EventRoleGranted         EventKind = "role_granted"
	EventRoleRevoked         EventKind = "role_revoked"
	EventItemCreated         EventKind = "item_created"
	EventStageAdvanced       EventKind = "stage_advanced"
)

// Event is an append-only journal entry. Fields not relevant to Kind are empty.
// Seq is assigned by the store and increases by one per event.
type Event struct {
	ID     string    `json:"id"`
	Seq    uint64    `json:"seq"`
	Kind   EventKind `json:"kind"`
	From   Address   `json:"from,omitempty"`
	To     Address   `json:"to,omitempty"`
	Amount *Amount   `json:"amount,omitempty"`
	ItemID string    `json:"item_id,omitempty"`
	Stage  Stage     `json:"stage,omitempty"`
	Role   Role      `json:"role,omitempty"`
	At     time.Time `json:"at"`
}

// TransferEvent builds a transfer journal entry. Mints use ZeroAddress as from.
func TransferEvent(from, to Address, amount Amount) Event {
	return Event{Kind: EventTransfer, From: from, To: to, Amount: &amount}
}

// ApprovalEvent builds an approval journal entry carrying the new allowance.
func ApprovalEvent(owner, spender Address, amount Amount) Event {
	return Event{Kind: EventApproval, From: owner, To: spender, Amount: &amount}
}
