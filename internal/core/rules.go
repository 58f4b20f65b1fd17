package core

import "supplyledger/pkg/domain"

type (
	// Rule aliases domain.Rule.
	Rule = domain.Rule
	// RulesEngine aliases domain.RulesEngine.
	RulesEngine = domain.RulesEngine
)

// NewRulesEngine constructs an empty engine instance.
func NewRulesEngine() *RulesEngine {
	return domain.NewRulesEngine()
}

// NewDefaultRulesEngine builds a rules engine with the built-in policy set.
// The rules only inspect the entities they own, so the same set is safe for
// both ledger and registry stores.
func NewDefaultRulesEngine() *RulesEngine {
	engine := NewRulesEngine()
	engine.Register(SupplyConservationRule())
	engine.Register(StageProgressionRule())
	engine.Register(NullAddressRule())
	return engine
}
