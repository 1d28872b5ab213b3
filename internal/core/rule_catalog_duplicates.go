package core

import (
	"context"
	"fmt"

	"silatcore/pkg/domain"
)

// NewCatalogDuplicatesRule returns the warn-only rule reporting duplicate
// names in the position and rank level catalogs. Duplicates are legal, but a
// later rename of the shared name cascades to every member holding it.
func NewCatalogDuplicatesRule() domain.Rule {
	return catalogDuplicatesRule{}
}

type catalogDuplicatesRule struct{}

func (catalogDuplicatesRule) Name() string { return "catalog_duplicates" }

func (catalogDuplicatesRule) Evaluate(_ context.Context, view domain.RuleView, _ []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	positions := make(map[string]int)
	for _, p := range view.ListPositions() {
		positions[p]++
	}
	for name, count := range positions {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "catalog_duplicates",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("position %q appears %d times; renames will affect all holders", name, count),
				Entity:   domain.EntityPosition,
			})
		}
	}

	ranks := make(map[string]int)
	for _, l := range view.ListRankLevels() {
		ranks[l.Name]++
	}
	for name, count := range ranks {
		if count > 1 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "catalog_duplicates",
				Severity: domain.SeverityWarn,
				Message:  fmt.Sprintf("rank level %q appears %d times; renames will affect all holders", name, count),
				Entity:   domain.EntityRankLevel,
			})
		}
	}
	return res, nil
}
