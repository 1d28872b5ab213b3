package core

import (
	"context"
	"fmt"

	"silatcore/pkg/domain"
)

// NewDanglingReferencesRule returns the log-severity rule surfacing members
// whose denormalized strings no longer resolve against the catalogs or branch
// directory. Orphaned values are tolerated by design; the rule only makes the
// drift visible.
func NewDanglingReferencesRule() domain.Rule {
	return danglingReferencesRule{}
}

type danglingReferencesRule struct{}

func (danglingReferencesRule) Name() string { return "dangling_references" }

func (danglingReferencesRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	positions := make(map[string]struct{})
	for _, p := range view.ListPositions() {
		positions[p] = struct{}{}
	}
	ranks := make(map[string]struct{})
	for _, l := range view.ListRankLevels() {
		ranks[l.Name] = struct{}{}
	}
	branches := make(map[string]struct{})
	for _, b := range view.ListBranches() {
		branches[b.Name] = struct{}{}
	}

	res := domain.Result{}
	report := func(member domain.Member, what, value string) {
		res.Violations = append(res.Violations, domain.Violation{
			Rule:     "dangling_references",
			Severity: domain.SeverityLog,
			Message:  fmt.Sprintf("member %s references unknown %s %q", member.ID, what, value),
			Entity:   domain.EntityMember,
			EntityID: member.ID,
		})
	}
	for _, m := range view.ListMembers() {
		if m.Position != "" {
			if _, ok := positions[m.Position]; !ok {
				report(m, "position", m.Position)
			}
		}
		if m.RankName != "" {
			if _, ok := ranks[m.RankName]; !ok {
				report(m, "rank level", m.RankName)
			}
		}
		if m.BranchName != "" {
			if _, ok := branches[m.BranchName]; !ok {
				report(m, "branch", m.BranchName)
			}
		}
	}
	return res, nil
}

// NewDefaultRulesEngine wires the standard invariant set.
func NewDefaultRulesEngine() *RulesEngine {
	engine := domain.NewRulesEngine()
	engine.Register(NewMemberIdentityRule())
	engine.Register(NewBranchCodesRule())
	engine.Register(NewCatalogDuplicatesRule())
	engine.Register(NewDanglingReferencesRule())
	return engine
}
