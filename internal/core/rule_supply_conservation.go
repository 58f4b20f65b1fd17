package core

import (
	"context"
	"fmt"

	"supplyledger/pkg/domain"
)

const supplyConservationRuleName = "supply_conservation"

// SupplyConservationRule blocks any commit after which the sum of all
// balances differs from the minted total supply.
func SupplyConservationRule() domain.Rule {
	return supplyConservationRule{}
}

type supplyConservationRule struct{}

func (supplyConservationRule) Name() string { return supplyConservationRuleName }

func (supplyConservationRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	if !touches(changes, domain.EntityAccount, domain.EntityToken) {
		return domain.Result{}, nil
	}
	token, ok := view.Token()
	if !ok {
		if len(view.ListAccounts()) > 0 {
			return blocked(supplyConservationRuleName, domain.EntityAccount, "", "balances exist before the token is initialized"), nil
		}
		return domain.Result{}, nil
	}
	var total domain.Amount
	for _, acct := range view.ListAccounts() {
		var overflow bool
		total, overflow = total.Add(acct.Balance)
		if overflow {
			return blocked(supplyConservationRuleName, domain.EntityAccount, string(acct.Address), "sum of balances overflows"), nil
		}
	}
	if !total.Eq(token.TotalSupply) {
		msg := fmt.Sprintf("sum of balances %s differs from total supply %s", total, token.TotalSupply)
		return blocked(supplyConservationRuleName, domain.EntityToken, token.Symbol, msg), nil
	}
	return domain.Result{}, nil
}

func touches(changes []domain.Change, entities ...domain.EntityType) bool {
	for _, c := range changes {
		for _, e := range entities {
			if c.Entity == e {
				return true
			}
		}
	}
	return false
}

func blocked(rule string, entity domain.EntityType, id, msg string) domain.Result {
	return domain.Result{Violations: []domain.Violation{{
		Rule:     rule,
		Severity: domain.SeverityBlock,
		Message:  msg,
		Entity:   entity,
		EntityID: id,
	}}}
}
