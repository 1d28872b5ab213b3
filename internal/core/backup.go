package core

import (
	"context"
	"time"
)

// BackupPayload is the full-directory interchange document. Keys absent from
// an imported payload leave the corresponding bucket untouched.
type BackupPayload struct {
	Users      []Member    `json:"users,omitempty"`
	Branches   []Branch    `json:"branches,omitempty"`
	Positions  []string    `json:"positions,omitempty"`
	Belts      []RankLevel `json:"belts,omitempty"`
	ExportDate time.Time   `json:"exportDate"`
}

// ExportBackup captures all four buckets under a single consistent view.
func (s *Service) ExportBackup(ctx context.Context) (BackupPayload, error) {
	payload := BackupPayload{ExportDate: s.clock.Now()}
	err := s.store.View(ctx, func(view TransactionView) error {
		payload.Users = view.ListMembers()
		payload.Branches = view.ListBranches()
		payload.Positions = view.ListPositions()
		payload.Belts = view.ListRankLevels()
		return nil
	})
	if err != nil {
		return BackupPayload{}, err
	}
	return payload, nil
}

// ImportBackup restores buckets present in the payload, each as a full
// overwrite, inside one transaction. A payload carrying only positions
// leaves members, branches, and belts unchanged.
func (s *Service) ImportBackup(ctx context.Context, payload BackupPayload) (Result, error) {
	return s.run(ctx, "import_backup", nil, func(tx Transaction) error {
		if payload.Users != nil {
			existing := tx.Snapshot().ListMembers()
			for _, m := range existing {
				if err := tx.DeleteMember(m.ID); err != nil {
					return err
				}
			}
			for _, m := range payload.Users {
				if _, err := tx.UpsertMember(m, ""); err != nil {
					return err
				}
			}
		}
		if payload.Branches != nil {
			existing := tx.Snapshot().ListBranches()
			for _, b := range existing {
				if err := tx.DeleteBranch(b.ID); err != nil {
					return err
				}
			}
			for _, b := range payload.Branches {
				if _, err := tx.UpsertBranch(b); err != nil {
					return err
				}
			}
		}
		if payload.Positions != nil {
			if err := tx.SavePositions(payload.Positions); err != nil {
				return err
			}
		}
		if payload.Belts != nil {
			if err := tx.SaveRankLevels(payload.Belts); err != nil {
				return err
			}
		}
		return nil
	})
}
