package tabular

import (
	"context"
	"fmt"
	"io"
	"time"

	"silatcore/internal/core"
	"silatcore/pkg/domain"
)

// Reconciler applies spreadsheet content to the directory and renders the
// directory back out as sheets.
type Reconciler struct {
	store domain.PersistentStore
	now   func() time.Time
}

// ReconcilerOption customizes reconciler construction.
type ReconcilerOption func(*Reconciler)

// WithNow overrides the time source used for registration numbers.
func WithNow(now func() time.Time) ReconcilerOption {
	return func(r *Reconciler) {
		if now != nil {
			r.now = now
		}
	}
}

// NewReconciler builds a reconciler over the given store.
func NewReconciler(store domain.PersistentStore, opts ...ReconcilerOption) *Reconciler {
	r := &Reconciler{
		store: store,
		now:   func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// ImportMembers upserts member rows in sheet order, one transaction per row.
// Rows without a registration number receive a generated one, missing roles
// default to anggota, and gender is normalized. Duplicate registration
// numbers within one sheet resolve last-write-wins, so re-importing the same
// sheet is idempotent. A failure partway through leaves earlier rows
// committed; the returned count is the number of rows applied.
func (r *Reconciler) ImportMembers(ctx context.Context, input io.Reader) (int, error) {
	rows, err := ReadMemberRows(input)
	if err != nil {
		return 0, err
	}
	for i, row := range rows {
		member := domain.Member{
			Base:          domain.Base{ID: row.NIA},
			Name:          row.Name,
			Username:      row.Username,
			Email:         row.Email,
			Role:          domain.Role(row.Role),
			Position:      row.Position,
			RankName:      row.RankName,
			Gender:        NormalizeGender(row.Gender),
			BranchName:    row.BranchName,
			SubBranchName: row.SubBranchName,
			District:      row.District,
		}
		if member.Role == "" {
			member.Role = domain.RoleAnggota
		}
		_, err := r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
			if member.ID == "" {
				id, err := core.ReserveRegistrationNumber(tx, r.now())
				if err != nil {
					return err
				}
				member.ID = id
			}
			_, err := tx.UpsertMember(member, "")
			return err
		})
		if err != nil {
			return i, fmt.Errorf("import members: %w", err)
		}
	}
	return len(rows), nil
}

// branchGroup accumulates the rows sharing one branch code, in sheet order.
type branchGroup struct {
	code string
	rows []BranchRow
}

// ImportBranches groups rows by branch code and reconciles each group against
// the stored directory: codes already present merge onto the existing record,
// unknown codes create a branch. Sub-branches match by code when the row has
// one, otherwise by name; unmatched rows append a sub-branch with a fresh ID.
// The whole sheet applies in a single transaction, so a blocked import leaves
// the directory untouched. Returns the number of branches reconciled.
func (r *Reconciler) ImportBranches(ctx context.Context, input io.Reader) (int, error) {
	rows, err := ReadBranchRows(input)
	if err != nil {
		return 0, err
	}
	groups, err := groupBranchRows(rows)
	if err != nil {
		return 0, err
	}
	_, err = r.store.RunInTransaction(ctx, func(tx domain.Transaction) error {
		for _, group := range groups {
			branch, ok := tx.Snapshot().FindBranchByCode(group.code)
			if !ok {
				branch = domain.Branch{Code: group.code}
			}
			for _, row := range group.rows {
				if err := applyBranchRow(&branch, row); err != nil {
					return err
				}
			}
			if _, err := tx.UpsertBranch(branch); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("import branches: %w", err)
	}
	return len(groups), nil
}

func groupBranchRows(rows []BranchRow) ([]branchGroup, error) {
	var groups []branchGroup
	byCode := map[string]int{}
	for _, row := range rows {
		if row.BranchCode == "" {
			return nil, &FormatError{Sheet: SheetBranches, Err: fmt.Errorf("row missing Kode Cabang")}
		}
		i, ok := byCode[row.BranchCode]
		if !ok {
			i = len(groups)
			byCode[row.BranchCode] = i
			groups = append(groups, branchGroup{code: row.BranchCode})
		}
		groups[i].rows = append(groups[i].rows, row)
	}
	return groups, nil
}

// applyBranchRow folds one sheet row into the branch under construction.
// Non-empty branch columns win over previous values; a row without a
// sub-branch name contributes branch columns only.
func applyBranchRow(branch *domain.Branch, row BranchRow) error {
	if row.BranchName != "" {
		branch.Name = row.BranchName
	}
	if row.BranchLeader != "" {
		branch.Leader = row.BranchLeader
	}
	if row.SubBranchName == "" {
		return nil
	}
	lat, err := parseCoordinate(row.Latitude)
	if err != nil {
		return &FormatError{Sheet: SheetBranches, Err: fmt.Errorf("sub-branch %q: bad latitude %q", row.SubBranchName, row.Latitude)}
	}
	long, err := parseCoordinate(row.Longitude)
	if err != nil {
		return &FormatError{Sheet: SheetBranches, Err: fmt.Errorf("sub-branch %q: bad longitude %q", row.SubBranchName, row.Longitude)}
	}
	sub := domain.SubBranch{
		Code:      row.SubBranchCode,
		Name:      row.SubBranchName,
		Leader:    row.SubBranchLeader,
		Latitude:  lat,
		Longitude: long,
	}
	for i, existing := range branch.SubBranches {
		if matchSubBranch(existing, row) {
			sub.ID = existing.ID
			branch.SubBranches[i] = sub
			return nil
		}
	}
	branch.SubBranches = append(branch.SubBranches, sub)
	return nil
}

func matchSubBranch(existing domain.SubBranch, row BranchRow) bool {
	if row.SubBranchCode != "" {
		return existing.Code == row.SubBranchCode
	}
	return existing.Name == row.SubBranchName
}

// MemberRows projects members into sheet rows in listing order.
func MemberRows(members []domain.Member) []MemberRow {
	rows := make([]MemberRow, 0, len(members))
	for _, m := range members {
		rows = append(rows, MemberRow{
			NIA:           m.ID,
			Name:          m.Name,
			Username:      m.Username,
			Email:         m.Email,
			Position:      m.Position,
			RankName:      m.RankName,
			BranchName:    m.BranchName,
			SubBranchName: m.SubBranchName,
			District:      m.District,
			Role:          string(m.Role),
			Gender:        string(m.Gender),
		})
	}
	return rows
}

// BranchRows projects branches into sheet rows: one row per sub-branch, and a
// single row with blank sub-branch columns for a branch without any.
func BranchRows(branches []domain.Branch) []BranchRow {
	var rows []BranchRow
	for _, b := range branches {
		if len(b.SubBranches) == 0 {
			rows = append(rows, BranchRow{
				BranchCode:   b.Code,
				BranchName:   b.Name,
				BranchLeader: b.Leader,
			})
			continue
		}
		for _, sb := range b.SubBranches {
			rows = append(rows, BranchRow{
				BranchCode:      b.Code,
				BranchName:      b.Name,
				BranchLeader:    b.Leader,
				SubBranchCode:   sb.Code,
				SubBranchName:   sb.Name,
				SubBranchLeader: sb.Leader,
				Latitude:        formatCoordinate(sb.Latitude),
				Longitude:       formatCoordinate(sb.Longitude),
			})
		}
	}
	return rows
}

// ExportMembers writes the member sheet for the current directory contents.
// Exported sheets re-import cleanly: the columns are the import columns.
func (r *Reconciler) ExportMembers(ctx context.Context, w io.Writer) error {
	var rows []MemberRow
	err := r.store.View(ctx, func(view domain.TransactionView) error {
		rows = MemberRows(view.ListMembers())
		return nil
	})
	if err != nil {
		return err
	}
	return WriteMemberRows(w, rows)
}

// ExportBranches writes the branch sheet for the current directory contents.
func (r *Reconciler) ExportBranches(ctx context.Context, w io.Writer) error {
	var rows []BranchRow
	err := r.store.View(ctx, func(view domain.TransactionView) error {
		rows = BranchRows(view.ListBranches())
		return nil
	})
	if err != nil {
		return err
	}
	return WriteBranchRows(w, rows)
}
