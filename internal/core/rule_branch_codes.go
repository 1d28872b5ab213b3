package core

import (
	"context"
	"fmt"

	"silatcore/pkg/domain"
)

// NewBranchCodesRule returns the in-transaction rule over branch identity:
// duplicate branch IDs and duplicate sub-branch IDs within one branch block
// the commit; a branch code that is not exactly two digits only warns, since
// legacy imports carry free-form codes.
func NewBranchCodesRule() domain.Rule {
	return branchCodesRule{}
}

type branchCodesRule struct{}

func (branchCodesRule) Name() string { return "branch_codes" }

func (branchCodesRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	seen := make(map[string]int)
	for _, branch := range view.ListBranches() {
		seen[branch.ID]++
		if !isTwoDigitCode(branch.Code) {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "branch_codes",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("branch %s code %q is not a two-digit code", branch.Name, branch.Code),
				Entity:   domain.EntityBranch,
				EntityID: branch.ID,
			})
		}
		subSeen := make(map[string]int)
		for _, sub := range branch.SubBranches {
			subSeen[sub.ID]++
		}
		for id, count := range subSeen {
			if count > 1 {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "branch_codes",
					Severity: domain.SeverityBlock,
					Message:  fmt.Sprintf("sub-branch id %s duplicated %d times within branch %s", id, count, branch.ID),
					Entity:   domain.EntityBranch,
					EntityID: branch.ID,
				})
			}
		}
	}
	for id, count := range seen {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "branch_codes",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("branch id %s duplicated %d times", id, count),
				Entity:   domain.EntityBranch,
				EntityID: id,
			})
		}
	}
	return res, nil
}

func isTwoDigitCode(code string) bool {
	if len(code) != 2 {
		return false
	}
	for _, r := range code {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
