package core

import (
	"context"
	"fmt"

	"silatcore/pkg/domain"
)

// ListBranches returns all branches with their sub-branches.
func (s *Service) ListBranches() []Branch {
	return s.store.ListBranches()
}

// GetBranch returns the branch with the given ID.
func (s *Service) GetBranch(id string) (Branch, error) {
	branch, ok := s.store.GetBranch(id)
	if !ok {
		return Branch{}, ErrNotFound{Entity: EntityBranch, ID: id}
	}
	return branch, nil
}

// UpsertBranch replaces the stored branch in place when the ID matches an
// existing record, otherwise assigns a fresh ID and appends.
func (s *Service) UpsertBranch(ctx context.Context, branch Branch) (Branch, Result, error) {
	var saved Branch
	res, err := s.run(ctx, "upsert_branch", func() string { return saved.ID }, func(tx Transaction) error {
		var err error
		saved, err = tx.UpsertBranch(branch)
		return err
	})
	return saved, res, err
}

// DeleteBranch removes the branch and its sub-branches. Members referencing
// the branch keep their denormalized names (soft orphaning).
func (s *Service) DeleteBranch(ctx context.Context, id string) (Result, error) {
	return s.run(ctx, "delete_branch", func() string { return id }, func(tx Transaction) error {
		return tx.DeleteBranch(id)
	})
}

// RenameBranch updates the branch record and rewrites the branch name on
// every member assigned to it, in one transaction.
func (s *Service) RenameBranch(ctx context.Context, id, newName string) (Branch, Result, error) {
	var renamed Branch
	res, err := s.run(ctx, "rename_branch", func() string { return renamed.ID }, func(tx Transaction) error {
		branch, ok := tx.FindBranch(id)
		if !ok {
			return ErrNotFound{Entity: EntityBranch, ID: id}
		}
		oldName := branch.Name
		var err error
		renamed, err = tx.UpdateBranch(id, func(b *domain.Branch) error {
			b.Name = newName
			return nil
		})
		if err != nil {
			return err
		}
		return cascadeBranchRename(tx, oldName, newName)
	})
	return renamed, res, err
}

// UpsertSubBranch adds or replaces a sub-branch within its owning branch. A
// blank sub-branch ID gets a generated one.
func (s *Service) UpsertSubBranch(ctx context.Context, branchID string, sub SubBranch) (Branch, Result, error) {
	var saved Branch
	res, err := s.run(ctx, "upsert_sub_branch", func() string { return saved.ID }, func(tx Transaction) error {
		branch, ok := tx.FindBranch(branchID)
		if !ok {
			return ErrNotFound{Entity: EntityBranch, ID: branchID}
		}
		replaced := false
		for i := range branch.SubBranches {
			if branch.SubBranches[i].ID == sub.ID {
				branch.SubBranches[i] = sub
				replaced = true
				break
			}
		}
		if !replaced {
			branch.SubBranches = append(branch.SubBranches, sub)
		}
		var err error
		saved, err = tx.UpsertBranch(branch)
		return err
	})
	return saved, res, err
}

// RenameSubBranch updates the sub-branch record and rewrites the sub-branch
// name on members of the owning branch, in one transaction.
func (s *Service) RenameSubBranch(ctx context.Context, branchID, subID, newName string) (Branch, Result, error) {
	var renamed Branch
	res, err := s.run(ctx, "rename_sub_branch", func() string { return renamed.ID }, func(tx Transaction) error {
		branch, ok := tx.FindBranch(branchID)
		if !ok {
			return ErrNotFound{Entity: EntityBranch, ID: branchID}
		}
		oldName := ""
		found := false
		for i := range branch.SubBranches {
			if branch.SubBranches[i].ID == subID {
				oldName = branch.SubBranches[i].Name
				branch.SubBranches[i].Name = newName
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("sub-branch %q not found in branch %q", subID, branchID)
		}
		var err error
		renamed, err = tx.UpsertBranch(branch)
		if err != nil {
			return err
		}
		return cascadeSubBranchRename(tx, branch.Name, oldName, newName)
	})
	return renamed, res, err
}

// DeleteSubBranch removes the sub-branch from its owning branch. Member
// sub-branch names are left as orphaned strings.
func (s *Service) DeleteSubBranch(ctx context.Context, branchID, subID string) (Branch, Result, error) {
	var saved Branch
	res, err := s.run(ctx, "delete_sub_branch", func() string { return saved.ID }, func(tx Transaction) error {
		branch, ok := tx.FindBranch(branchID)
		if !ok {
			return ErrNotFound{Entity: EntityBranch, ID: branchID}
		}
		next := branch.SubBranches[:0:0]
		found := false
		for _, sb := range branch.SubBranches {
			if sb.ID == subID {
				found = true
				continue
			}
			next = append(next, sb)
		}
		if !found {
			return fmt.Errorf("sub-branch %q not found in branch %q", subID, branchID)
		}
		branch.SubBranches = next
		var err error
		saved, err = tx.UpsertBranch(branch)
		return err
	})
	return saved, res, err
}
