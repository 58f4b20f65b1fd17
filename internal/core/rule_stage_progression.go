package core

import (
	"context"
	"fmt"

	"supplyledger/pkg/domain"
)

const stageProgressionRuleName = "stage_progression"

// StageProgressionRule blocks item updates that skip a stage, move
// backwards, leave the terminal stage, or lose history.
func StageProgressionRule() domain.Rule {
	return stageProgressionRule{}
}

type stageProgressionRule struct{}

func (stageProgressionRule) Name() string { return stageProgressionRuleName }

func (stageProgressionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		if change.Entity != domain.EntityItem {
			continue
		}
		after, ok := domain.DecodePayload[domain.Item](change.After)
		if !ok {
			continue
		}
		if !after.Stage.Valid() {
			res.Merge(blocked(stageProgressionRuleName, domain.EntityItem, after.ID,
				fmt.Sprintf("item %s is set to invalid stage %s", after.ID, after.Stage)))
			continue
		}
		if len(after.History) != after.Stage.Index()+1 {
			res.Merge(blocked(stageProgressionRuleName, domain.EntityItem, after.ID,
				fmt.Sprintf("item %s at %s carries %d history entries", after.ID, after.Stage, len(after.History))))
			continue
		}
		for i, h := range after.History {
			if h.Stage.Index() != i {
				res.Merge(blocked(stageProgressionRuleName, domain.EntityItem, after.ID,
					fmt.Sprintf("item %s history entry %d is %s", after.ID, i, h.Stage)))
				break
			}
		}

		before, ok := domain.DecodePayload[domain.Item](change.Before)
		if !ok {
			if after.Stage != domain.StageCreated {
				res.Merge(blocked(stageProgressionRuleName, domain.EntityItem, after.ID,
					fmt.Sprintf("item %s must be created in stage %s", after.ID, domain.StageCreated)))
			}
			continue
		}
		if before.Stage == after.Stage {
			continue
		}
		if before.Stage.Terminal() {
			res.Merge(blocked(stageProgressionRuleName, domain.EntityItem, after.ID,
				fmt.Sprintf("cannot move item %s from terminal stage %s to %s", after.ID, before.Stage, after.Stage)))
			continue
		}
		if next, _ := before.Stage.Next(); next != after.Stage {
			res.Merge(blocked(stageProgressionRuleName, domain.EntityItem, after.ID,
				fmt.Sprintf("item %s cannot move from %s to %s", after.ID, before.Stage, after.Stage)))
		}
	}
	return res, nil
}
