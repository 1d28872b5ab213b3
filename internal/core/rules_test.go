package core

import (
	"context"
	"errors"
	"testing"

	"silatcore/pkg/domain"
)

type stubRuleView struct {
	members   []Member
	branches  []Branch
	positions []string
	levels    []RankLevel
}

func (v stubRuleView) ListMembers() []Member       { return v.members }
func (v stubRuleView) ListBranches() []Branch      { return v.branches }
func (v stubRuleView) ListPositions() []string     { return v.positions }
func (v stubRuleView) ListRankLevels() []RankLevel { return v.levels }
func (v stubRuleView) FindMember(id string) (Member, bool) {
	for _, m := range v.members {
		if m.ID == id {
			return m, true
		}
	}
	return Member{}, false
}
func (v stubRuleView) FindBranch(id string) (Branch, bool) {
	for _, b := range v.branches {
		if b.ID == id {
			return b, true
		}
	}
	return Branch{}, false
}

func evaluate(t *testing.T, rule Rule, view stubRuleView) Result {
	t.Helper()
	res, err := rule.Evaluate(context.Background(), view, nil)
	if err != nil {
		t.Fatalf("evaluate %s: %v", rule.Name(), err)
	}
	return res
}

func severities(res Result) map[Severity]int {
	out := make(map[Severity]int)
	for _, v := range res.Violations {
		out[v.Severity]++
	}
	return out
}

func TestMemberIdentityRuleBlocksDuplicates(t *testing.T) {
	rule := NewMemberIdentityRule()

	clean := evaluate(t, rule, stubRuleView{members: []Member{
		{Base: Base{ID: "M-1"}},
		{Base: Base{ID: "M-2"}},
	}})
	if len(clean.Violations) != 0 {
		t.Fatalf("unique IDs must pass, got %+v", clean.Violations)
	}

	dup := evaluate(t, rule, stubRuleView{members: []Member{
		{Base: Base{ID: "M-1"}},
		{Base: Base{ID: "M-1"}},
	}})
	if !dup.HasBlocking() {
		t.Fatalf("duplicate registration numbers must block, got %+v", dup.Violations)
	}
}

func TestBranchCodesRule(t *testing.T) {
	rule := NewBranchCodesRule()

	warn := evaluate(t, rule, stubRuleView{branches: []Branch{
		{Base: Base{ID: "B-1"}, Code: "ABC", Name: "Madiun"},
	}})
	sev := severities(warn)
	if sev[SeverityWarn] != 1 || sev[SeverityBlock] != 0 {
		t.Fatalf("free-form code must warn only, got %+v", warn.Violations)
	}

	dupBranch := evaluate(t, rule, stubRuleView{branches: []Branch{
		{Base: Base{ID: "B-1"}, Code: "01"},
		{Base: Base{ID: "B-1"}, Code: "02"},
	}})
	if !dupBranch.HasBlocking() {
		t.Fatal("duplicate branch IDs must block")
	}

	dupSub := evaluate(t, rule, stubRuleView{branches: []Branch{
		{Base: Base{ID: "B-1"}, Code: "01", SubBranches: []SubBranch{
			{ID: "S-1"}, {ID: "S-1"},
		}},
	}})
	if !dupSub.HasBlocking() {
		t.Fatal("duplicate sub-branch IDs within one branch must block")
	}
}

func TestCatalogDuplicatesRuleWarns(t *testing.T) {
	rule := NewCatalogDuplicatesRule()

	res := evaluate(t, rule, stubRuleView{
		positions: []string{"Ketua", "Ketua"},
		levels:    []RankLevel{{Name: "Polos"}, {Name: "Polos"}},
	})
	sev := severities(res)
	if sev[SeverityWarn] != 2 {
		t.Fatalf("expected 2 warnings, got %+v", res.Violations)
	}
	if res.HasBlocking() {
		t.Fatal("duplicates are legal and must not block")
	}
}

func TestDanglingReferencesRuleReports(t *testing.T) {
	rule := NewDanglingReferencesRule()

	res := evaluate(t, rule, stubRuleView{
		members: []Member{
			{Base: Base{ID: "M-1"}, Position: "Ketua", RankName: "Polos", BranchName: "Madiun"},
			{Base: Base{ID: "M-2"}, Position: "Bendahara", RankName: "Ungu", BranchName: "Ngawi"},
			{Base: Base{ID: "M-3"}}, // blank fields are never dangling
		},
		positions: []string{"Ketua"},
		levels:    []RankLevel{{Name: "Polos"}},
		branches:  []Branch{{Base: Base{ID: "B-1"}, Name: "Madiun"}},
	})
	sev := severities(res)
	if sev[SeverityLog] != 3 {
		t.Fatalf("expected 3 log reports for M-2, got %+v", res.Violations)
	}
	if res.HasBlocking() {
		t.Fatal("dangling references are tolerated and must not block")
	}
	for _, v := range res.Violations {
		if v.EntityID != "M-2" {
			t.Fatalf("unexpected violation target %+v", v)
		}
	}
}

func TestDefaultRulesEngineBlocksThroughTransactions(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	branch, _, err := svc.UpsertBranch(ctx, Branch{Code: "01", Name: "Madiun", SubBranches: []SubBranch{{Name: "Taman"}}})
	if err != nil {
		t.Fatalf("seed branch: %v", err)
	}
	subID := branch.SubBranches[0].ID

	branch.SubBranches = append(branch.SubBranches, SubBranch{ID: subID, Name: "Duplikat"})
	_, _, err = svc.UpsertBranch(ctx, branch)
	var ruleErr domain.RuleViolationError
	if !errors.As(err, &ruleErr) {
		t.Fatalf("expected rule violation error, got %v", err)
	}

	stored, err := svc.GetBranch(branch.ID)
	if err != nil {
		t.Fatalf("get branch: %v", err)
	}
	if len(stored.SubBranches) != 1 {
		t.Fatalf("blocked commit must not apply, got %d sub-branches", len(stored.SubBranches))
	}
}
