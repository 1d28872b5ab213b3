package core

import (
	"context"
	"fmt"

	"silatcore/pkg/domain"
)

// NewMemberIdentityRule returns the in-transaction rule blocking duplicate
// registration numbers.
func NewMemberIdentityRule() domain.Rule {
	return memberIdentityRule{}
}

type memberIdentityRule struct{}

func (memberIdentityRule) Name() string { return "member_identity" }

func (memberIdentityRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	seen := make(map[string]int)
	for _, member := range view.ListMembers() {
		seen[member.ID]++
	}

	res := domain.Result{}
	for id, count := range seen {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "member_identity",
				Severity: domain.SeverityBlock,
				Message:  fmt.Sprintf("registration number %s held by %d members", id, count),
				Entity:   domain.EntityMember,
				EntityID: id,
			})
		}
	}
	return res, nil
}
