package core

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func seedBranchFixture(t *testing.T, svc *Service) (Branch, Branch) {
	t.Helper()
	ctx := context.Background()

	madiun, _, err := svc.UpsertBranch(ctx, Branch{
		Code: "01",
		Name: "Madiun",
		SubBranches: []SubBranch{
			{Code: "01", Name: "Taman"},
			{Code: "02", Name: "Kartoharjo"},
		},
	})
	if err != nil {
		t.Fatalf("upsert madiun: %v", err)
	}
	ponorogo, _, err := svc.UpsertBranch(ctx, Branch{
		Code: "02",
		Name: "Ponorogo",
		SubBranches: []SubBranch{
			{Code: "01", Name: "Taman"}, // homonymous with Madiun's
		},
	})
	if err != nil {
		t.Fatalf("upsert ponorogo: %v", err)
	}

	members := []Member{
		{Base: Base{ID: "M-1"}, Name: "Budi", BranchName: "Madiun", SubBranchName: "Taman"},
		{Base: Base{ID: "M-2"}, Name: "Siti", BranchName: "Ponorogo", SubBranchName: "Taman"},
		{Base: Base{ID: "M-3"}, Name: "Andi", BranchName: "Madiun", SubBranchName: "Kartoharjo"},
	}
	for _, m := range members {
		if _, _, err := svc.RegisterMember(ctx, m); err != nil {
			t.Fatalf("register %s: %v", m.ID, err)
		}
	}
	return madiun, ponorogo
}

func TestUpsertBranchAssignsIdentity(t *testing.T) {
	svc := newTestService()
	madiun, _ := seedBranchFixture(t, svc)

	if madiun.ID == "" {
		t.Fatal("branch must receive a generated ID")
	}
	for _, sb := range madiun.SubBranches {
		if sb.ID == "" {
			t.Fatalf("sub-branch %s must receive a generated ID", sb.Name)
		}
	}
}

func TestRenameBranchCascades(t *testing.T) {
	svc := newTestService()
	madiun, _ := seedBranchFixture(t, svc)

	renamed, _, err := svc.RenameBranch(context.Background(), madiun.ID, "Madiun Kota")
	if err != nil {
		t.Fatalf("rename branch: %v", err)
	}
	if renamed.Name != "Madiun Kota" {
		t.Fatalf("branch record not renamed, got %q", renamed.Name)
	}

	for id, want := range map[string]string{
		"M-1": "Madiun Kota",
		"M-2": "Ponorogo",
		"M-3": "Madiun Kota",
	} {
		m, _ := svc.store.GetMember(id)
		if m.BranchName != want {
			t.Fatalf("%s branch name %q, want %q", id, m.BranchName, want)
		}
	}
}

func TestRenameBranchUnknown(t *testing.T) {
	svc := newTestService()

	_, _, err := svc.RenameBranch(context.Background(), "missing", "X")
	var notFound ErrNotFound
	if !errors.As(err, &notFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if notFound.Entity != EntityBranch {
		t.Fatalf("unexpected entity %q", notFound.Entity)
	}
}

func TestRenameSubBranchScopedToOwningBranch(t *testing.T) {
	svc := newTestService()
	madiun, _ := seedBranchFixture(t, svc)

	subID := madiun.SubBranches[0].ID // Taman
	renamed, _, err := svc.RenameSubBranch(context.Background(), madiun.ID, subID, "Taman Baru")
	if err != nil {
		t.Fatalf("rename sub-branch: %v", err)
	}
	if sb, ok := renamed.FindSubBranch(subID); !ok || sb.Name != "Taman Baru" {
		t.Fatalf("sub-branch record not renamed: %+v", renamed.SubBranches)
	}

	m1, _ := svc.store.GetMember("M-1")
	if m1.SubBranchName != "Taman Baru" {
		t.Fatalf("Madiun member not rewritten, got %q", m1.SubBranchName)
	}
	m2, _ := svc.store.GetMember("M-2")
	if m2.SubBranchName != "Taman" {
		t.Fatalf("homonymous sub-branch in another branch must stay, got %q", m2.SubBranchName)
	}
}

func TestUpsertSubBranchReplaceAndAppend(t *testing.T) {
	svc := newTestService()
	madiun, _ := seedBranchFixture(t, svc)
	ctx := context.Background()

	existing := madiun.SubBranches[0]
	existing.Leader = "Bu Rina"
	updated, _, err := svc.UpsertSubBranch(ctx, madiun.ID, existing)
	if err != nil {
		t.Fatalf("replace sub-branch: %v", err)
	}
	if len(updated.SubBranches) != 2 {
		t.Fatalf("replace must not grow the list, got %d", len(updated.SubBranches))
	}
	if sb, _ := updated.FindSubBranch(existing.ID); sb.Leader != "Bu Rina" {
		t.Fatalf("leader not updated, got %q", sb.Leader)
	}

	grown, _, err := svc.UpsertSubBranch(ctx, madiun.ID, SubBranch{Code: "03", Name: "Manguharjo"})
	if err != nil {
		t.Fatalf("append sub-branch: %v", err)
	}
	if len(grown.SubBranches) != 3 {
		t.Fatalf("append must grow the list, got %d", len(grown.SubBranches))
	}
	if grown.SubBranches[2].ID == "" {
		t.Fatal("appended sub-branch must receive a generated ID")
	}
}

func TestDeleteSubBranchOrphansMembers(t *testing.T) {
	svc := newTestService()
	madiun, _ := seedBranchFixture(t, svc)

	subID := madiun.SubBranches[1].ID // Kartoharjo
	saved, _, err := svc.DeleteSubBranch(context.Background(), madiun.ID, subID)
	if err != nil {
		t.Fatalf("delete sub-branch: %v", err)
	}
	if len(saved.SubBranches) != 1 {
		t.Fatalf("expected 1 remaining sub-branch, got %d", len(saved.SubBranches))
	}
	if m, _ := svc.store.GetMember("M-3"); m.SubBranchName != "Kartoharjo" {
		t.Fatalf("member keeps the orphaned name, got %q", m.SubBranchName)
	}

	_, _, err = svc.DeleteSubBranch(context.Background(), madiun.ID, subID)
	if err == nil || !strings.Contains(err.Error(), "not found") {
		t.Fatalf("expected not-found on second delete, got %v", err)
	}
}

func TestDeleteBranchLeavesMembersOrphaned(t *testing.T) {
	svc := newTestService()
	madiun, _ := seedBranchFixture(t, svc)

	if _, err := svc.DeleteBranch(context.Background(), madiun.ID); err != nil {
		t.Fatalf("delete branch: %v", err)
	}
	if _, err := svc.GetBranch(madiun.ID); err == nil {
		t.Fatal("deleted branch must not resolve")
	}
	if m, _ := svc.store.GetMember("M-1"); m.BranchName != "Madiun" {
		t.Fatalf("member keeps the orphaned branch name, got %q", m.BranchName)
	}
}
