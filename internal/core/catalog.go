package core

import (
	"context"
	"fmt"
)

// ListPositions returns the ordered position catalog.
func (s *Service) ListPositions() []string {
	return s.store.ListPositions()
}

// SavePositions overwrites the position catalog. Order is preserved as given.
func (s *Service) SavePositions(ctx context.Context, positions []string) (Result, error) {
	return s.run(ctx, "save_positions", nil, func(tx Transaction) error {
		return tx.SavePositions(positions)
	})
}

// ListRankLevels returns the ordered rank level catalog.
func (s *Service) ListRankLevels() []RankLevel {
	return s.store.ListRankLevels()
}

// SaveRankLevels overwrites the rank level catalog.
func (s *Service) SaveRankLevels(ctx context.Context, levels []RankLevel) (Result, error) {
	return s.run(ctx, "save_rank_levels", nil, func(tx Transaction) error {
		return tx.SaveRankLevels(levels)
	})
}

// RenamePosition rewrites the catalog entry and, in the same transaction,
// every member whose position matches old exactly (case-sensitive). The
// catalog keeps its order.
func (s *Service) RenamePosition(ctx context.Context, oldName, newName string) (Result, error) {
	return s.run(ctx, "rename_position", nil, func(tx Transaction) error {
		positions := tx.Snapshot().ListPositions()
		found := false
		next := make([]string, len(positions))
		for i, p := range positions {
			if p == oldName {
				next[i] = newName
				found = true
			} else {
				next[i] = p
			}
		}
		if !found {
			return fmt.Errorf("position %q not found", oldName)
		}
		if err := tx.SavePositions(next); err != nil {
			return err
		}
		return cascadePositionRename(tx, oldName, newName)
	})
}

// DeletePosition removes the entry from the catalog. Members holding the
// position keep it as an orphaned string value.
func (s *Service) DeletePosition(ctx context.Context, name string) (Result, error) {
	return s.run(ctx, "delete_position", nil, func(tx Transaction) error {
		positions := tx.Snapshot().ListPositions()
		next := make([]string, 0, len(positions))
		found := false
		for _, p := range positions {
			if p == name {
				found = true
				continue
			}
			next = append(next, p)
		}
		if !found {
			return fmt.Errorf("position %q not found", name)
		}
		return tx.SavePositions(next)
	})
}

// RenameRankLevel replaces the catalog entry named oldName with level and
// rewrites both the rank name and predicate of every member holding oldName,
// all in one transaction.
func (s *Service) RenameRankLevel(ctx context.Context, oldName string, level RankLevel) (Result, error) {
	return s.run(ctx, "rename_rank_level", nil, func(tx Transaction) error {
		levels := tx.Snapshot().ListRankLevels()
		found := false
		next := make([]RankLevel, len(levels))
		for i, l := range levels {
			if l.Name == oldName {
				next[i] = level
				found = true
			} else {
				next[i] = l
			}
		}
		if !found {
			return fmt.Errorf("rank level %q not found", oldName)
		}
		if err := tx.SaveRankLevels(next); err != nil {
			return err
		}
		return cascadeRankRename(tx, oldName, level)
	})
}

// DeleteRankLevel removes the entry from the catalog; member rank fields are
// left untouched.
func (s *Service) DeleteRankLevel(ctx context.Context, name string) (Result, error) {
	return s.run(ctx, "delete_rank_level", nil, func(tx Transaction) error {
		levels := tx.Snapshot().ListRankLevels()
		next := make([]RankLevel, 0, len(levels))
		found := false
		for _, l := range levels {
			if l.Name == name {
				found = true
				continue
			}
			next = append(next, l)
		}
		if !found {
			return fmt.Errorf("rank level %q not found", name)
		}
		return tx.SaveRankLevels(next)
	})
}
