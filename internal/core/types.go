// Package core implements the directory service: member and branch
// repositories, catalog management with rename cascades, seed resolution,
// backup import/export, and storage driver selection.
package core

import "silatcore/pkg/domain"

// Aliases re-export the domain vocabulary so service callers only import core.
type (
	Base       = domain.Base
	Member     = domain.Member
	Branch     = domain.Branch
	SubBranch  = domain.SubBranch
	RankLevel  = domain.RankLevel
	Role       = domain.Role
	Status     = domain.Status
	Gender     = domain.Gender
	EntityType = domain.EntityType
	Change     = domain.Change
	Action     = domain.Action
	Violation  = domain.Violation
	Result     = domain.Result
	Severity   = domain.Severity
	Rule       = domain.Rule
	RuleView   = domain.RuleView

	RulesEngine = domain.RulesEngine
)

const (
	RoleAdmin    = domain.RoleAdmin
	RolePengurus = domain.RolePengurus
	RoleAnggota  = domain.RoleAnggota

	GenderMale   = domain.GenderMale
	GenderFemale = domain.GenderFemale

	SeverityBlock = domain.SeverityBlock
	SeverityWarn  = domain.SeverityWarn
	SeverityLog   = domain.SeverityLog

	EntityMember    = domain.EntityMember
	EntityBranch    = domain.EntityBranch
	EntityPosition  = domain.EntityPosition
	EntityRankLevel = domain.EntityRankLevel
)

// NewRulesEngine mirrors the domain constructor for callers wiring custom rules.
func NewRulesEngine() *domain.RulesEngine {
	return domain.NewRulesEngine()
}
