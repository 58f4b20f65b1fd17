package core

import "supplyledger/pkg/domain"

type (
	EntityType         = domain.EntityType
	Severity           = domain.Severity
	Address            = domain.Address
	Amount             = domain.Amount
	Account            = domain.Account
	Allowance          = domain.Allowance
	Item               = domain.Item
	Stage              = domain.Stage
	Role               = domain.Role
	RoleGrant          = domain.RoleGrant
	Event              = domain.Event
	Change             = domain.Change
	Action             = domain.Action
	Violation          = domain.Violation
	Result             = domain.Result
	RuleViolationError = domain.RuleViolationError
	Transaction        = domain.Transaction
	TransactionView    = domain.TransactionView
	PersistentStore    = domain.PersistentStore
)

const (
	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog
)
