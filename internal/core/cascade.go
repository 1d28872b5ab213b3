package core

import "silatcore/pkg/domain"

// The cascade sweeps below keep denormalized member strings consistent with
// their catalog sources. Each sweep runs inside the caller's transaction, so
// a partially rewritten directory is never observable.

// cascadePositionRename rewrites every member whose position equals oldName.
// Matching is exact and case-sensitive.
func cascadePositionRename(tx domain.Transaction, oldName, newName string) error {
	for _, m := range tx.Snapshot().ListMembers() {
		if m.Position != oldName {
			continue
		}
		if _, err := tx.UpdateMember(m.ID, func(member *domain.Member) error {
			member.Position = newName
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// cascadeRankRename rewrites both the rank name and predicate of every member
// holding oldName.
func cascadeRankRename(tx domain.Transaction, oldName string, level domain.RankLevel) error {
	for _, m := range tx.Snapshot().ListMembers() {
		if m.RankName != oldName {
			continue
		}
		if _, err := tx.UpdateMember(m.ID, func(member *domain.Member) error {
			member.RankName = level.Name
			member.RankPredicate = level.Predicate
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// cascadeBranchRename rewrites the denormalized branch name on every member
// assigned to it.
func cascadeBranchRename(tx domain.Transaction, oldName, newName string) error {
	for _, m := range tx.Snapshot().ListMembers() {
		if m.BranchName != oldName {
			continue
		}
		if _, err := tx.UpdateMember(m.ID, func(member *domain.Member) error {
			member.BranchName = newName
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}

// cascadeSubBranchRename rewrites the sub-branch name on members of the given
// branch. The branch name scopes the match so homonymous sub-branches in
// other branches are untouched.
func cascadeSubBranchRename(tx domain.Transaction, branchName, oldName, newName string) error {
	for _, m := range tx.Snapshot().ListMembers() {
		if m.BranchName != branchName || m.SubBranchName != oldName {
			continue
		}
		if _, err := tx.UpdateMember(m.ID, func(member *domain.Member) error {
			member.SubBranchName = newName
			return nil
		}); err != nil {
			return err
		}
	}
	return nil
}
