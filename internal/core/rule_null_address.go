package core

import (
	"context"

	"supplyledger/pkg/domain"
)

const nullAddressRuleName = "null_address"

// NullAddressRule keeps the null identity out of balances, allowances and the role table.
func NullAddressRule() domain.Rule {
	return nullAddressRule{}
}

type nullAddressRule struct{}

func (nullAddressRule) Name() string { return nullAddressRuleName }

func (nullAddressRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		switch change.Entity {
		case domain.EntityAccount:
			if acct, ok := domain.DecodePayload[domain.Account](change.After); ok && acct.Address.IsZero() {
				res.Merge(blocked(nullAddressRuleName, change.Entity, change.EntityID, "null address cannot hold a balance"))
			}
		case domain.EntityAllowance:
			if a, ok := domain.DecodePayload[domain.Allowance](change.After); ok && (a.Owner.IsZero() || a.Spender.IsZero()) {
				res.Merge(blocked(nullAddressRuleName, change.Entity, change.EntityID, "null address cannot be party to an allowance"))
			}
		case domain.EntityRole:
			if g, ok := domain.DecodePayload[domain.RoleGrant](change.After); ok && g.Account.IsZero() {
				res.Merge(blocked(nullAddressRuleName, change.Entity, change.EntityID, "null address cannot hold a role"))
			}
		}
	}
	return res, nil
}
