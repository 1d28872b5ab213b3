package tabular

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"silatcore/internal/core"
	"silatcore/internal/infra/persistence/memory"
	"silatcore/pkg/domain"
)

func newTestReconciler(t *testing.T) (*Reconciler, *memory.Store) {
	t.Helper()
	store := memory.NewStore(core.NewDefaultRulesEngine())
	rec := NewReconciler(store, WithNow(func() time.Time {
		return time.Date(2024, 3, 1, 10, 0, 0, 0, time.UTC)
	}))
	return rec, store
}

const memberSheet = `NIA,Nama,Username,Email,Jabatan,Tingkat Sabuk,Cabang,Ranting,Kecamatan,Role,Gender
PSHT-2024-0100,Budi Santoso,budi,budi@example.com,Ketua,Polos,Madiun,Taman,Taman,pengurus,Laki-laki
,Siti Rahma,siti,siti@example.com,,Jambon,Madiun,Kartoharjo,Kartoharjo,,Perempuan
`

func TestImportMembersDefaultsMissingFields(t *testing.T) {
	rec, store := newTestReconciler(t)

	count, err := rec.ImportMembers(context.Background(), strings.NewReader(memberSheet))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	members := store.ListMembers()
	require.Len(t, members, 2)

	budi, ok := store.GetMember("PSHT-2024-0100")
	require.True(t, ok)
	assert.Equal(t, domain.RolePengurus, budi.Role)
	assert.Equal(t, domain.GenderMale, budi.Gender)

	siti := members[1]
	assert.Equal(t, "PSHT-2024-0001", siti.ID, "blank NIA draws from the year counter")
	assert.Equal(t, domain.RoleAnggota, siti.Role, "blank role defaults to anggota")
	assert.Equal(t, domain.GenderFemale, siti.Gender)
}

func TestImportMembersGenderNormalization(t *testing.T) {
	rec, store := newTestReconciler(t)

	sheet := strings.Join([]string{
		strings.Join(memberHeader, ","),
		"M-1,A,a,a@x.id,,,,,,anggota,perempuan", // not exactly Perempuan
		"M-2,B,b,b@x.id,,,,,,anggota,wanita",
		"M-3,C,c,c@x.id,,,,,,anggota,Perempuan",
	}, "\n")

	_, err := rec.ImportMembers(context.Background(), strings.NewReader(sheet))
	require.NoError(t, err)

	for id, want := range map[string]domain.Gender{
		"M-1": domain.GenderMale,
		"M-2": domain.GenderMale,
		"M-3": domain.GenderFemale,
	} {
		m, ok := store.GetMember(id)
		require.True(t, ok, id)
		assert.Equal(t, want, m.Gender, id)
	}
}

func TestImportMembersIdempotent(t *testing.T) {
	rec, store := newTestReconciler(t)

	_, err := rec.ImportMembers(context.Background(), strings.NewReader(memberSheet))
	require.NoError(t, err)

	// Second import of the fixed-NIA row must not duplicate the record, and
	// its field values win.
	second := `NIA,Nama,Username,Email,Jabatan,Tingkat Sabuk,Cabang,Ranting,Kecamatan,Role,Gender
PSHT-2024-0100,Budi S.,budi,budi@example.com,Sekretaris,Jambon,Madiun,Taman,Taman,pengurus,Laki-laki
`
	_, err = rec.ImportMembers(context.Background(), strings.NewReader(second))
	require.NoError(t, err)

	var matches int
	for _, m := range store.ListMembers() {
		if m.ID == "PSHT-2024-0100" {
			matches++
			assert.Equal(t, "Budi S.", m.Name)
			assert.Equal(t, "Sekretaris", m.Position)
		}
	}
	assert.Equal(t, 1, matches)
}

func TestImportMembersLastWriteWinsWithinSheet(t *testing.T) {
	rec, store := newTestReconciler(t)

	sheet := strings.Join([]string{
		strings.Join(memberHeader, ","),
		"M-9,First,first,f@x.id,Ketua,,,,,anggota,Laki-laki",
		"M-9,Second,second,s@x.id,Bendahara,,,,,anggota,Laki-laki",
	}, "\n")

	count, err := rec.ImportMembers(context.Background(), strings.NewReader(sheet))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	require.Len(t, store.ListMembers(), 1)
	m, _ := store.GetMember("M-9")
	assert.Equal(t, "Second", m.Name)
	assert.Equal(t, "Bendahara", m.Position)
}

func TestImportMembersReorderedColumns(t *testing.T) {
	rec, store := newTestReconciler(t)

	sheet := "Nama,NIA,Gender,Role,Username,Email,Jabatan,Tingkat Sabuk,Cabang,Ranting,Kecamatan\n" +
		"Budi,M-7,Perempuan,admin,budi,b@x.id,Ketua,Polos,Madiun,Taman,Taman\n"
	_, err := rec.ImportMembers(context.Background(), strings.NewReader(sheet))
	require.NoError(t, err)

	m, ok := store.GetMember("M-7")
	require.True(t, ok)
	assert.Equal(t, "Budi", m.Name)
	assert.Equal(t, domain.RoleAdmin, m.Role)
}

func TestImportMembersMissingColumn(t *testing.T) {
	rec, _ := newTestReconciler(t)

	_, err := rec.ImportMembers(context.Background(), strings.NewReader("NIA,Nama\nM-1,Budi\n"))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Contains(t, formatErr.Error(), "Username")
}

func TestImportMembersMalformedCSV(t *testing.T) {
	rec, store := newTestReconciler(t)

	sheet := strings.Join(memberHeader, ",") + "\n" + `M-1,"unterminated,x,x,x,x,x,x,x,x,x`
	_, err := rec.ImportMembers(context.Background(), strings.NewReader(sheet))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Empty(t, store.ListMembers(), "a malformed sheet rejects wholesale")
}

const branchSheet = `Kode Cabang,Nama Cabang,Pimpinan Cabang,Kode Ranting,Nama Ranting,PIC Ranting,Lat Ranting,Long Ranting
01,Madiun,Pak Harto,01,Taman,Bu Rina,-7.6298,111.5239
01,Madiun,Pak Harto,02,Kartoharjo,Pak Joko,,
02,Ponorogo,Bu Sri,,,,,
`

func TestImportBranchesGroupsByCode(t *testing.T) {
	rec, store := newTestReconciler(t)

	count, err := rec.ImportBranches(context.Background(), strings.NewReader(branchSheet))
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	branches := store.ListBranches()
	require.Len(t, branches, 2)

	madiun := branches[0]
	assert.Equal(t, "01", madiun.Code)
	assert.Equal(t, "Pak Harto", madiun.Leader)
	require.Len(t, madiun.SubBranches, 2)
	assert.NotEmpty(t, madiun.SubBranches[0].ID)
	require.NotNil(t, madiun.SubBranches[0].Latitude)
	assert.InDelta(t, -7.6298, *madiun.SubBranches[0].Latitude, 1e-9)
	assert.Nil(t, madiun.SubBranches[1].Latitude)

	ponorogo := branches[1]
	assert.Equal(t, "Ponorogo", ponorogo.Name)
	assert.Empty(t, ponorogo.SubBranches, "code without sub-branch rows yields an empty shell")
}

func TestImportBranchesMergesByCode(t *testing.T) {
	rec, store := newTestReconciler(t)

	_, err := rec.ImportBranches(context.Background(), strings.NewReader(branchSheet))
	require.NoError(t, err)

	first := store.ListBranches()[0]
	firstSubID := first.SubBranches[0].ID

	updated := `Kode Cabang,Nama Cabang,Pimpinan Cabang,Kode Ranting,Nama Ranting,PIC Ranting,Lat Ranting,Long Ranting
01,Madiun Kota,Bu Endang,01,Taman,Bu Rina Baru,-7.63,111.52
01,Madiun Kota,Bu Endang,03,Manguharjo,Pak Agus,,
`
	count, err := rec.ImportBranches(context.Background(), strings.NewReader(updated))
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	branches := store.ListBranches()
	require.Len(t, branches, 2, "re-import merges onto the existing branch instead of appending")

	madiun := branches[0]
	assert.Equal(t, first.ID, madiun.ID, "identity survives re-import")
	assert.Equal(t, "Madiun Kota", madiun.Name)
	assert.Equal(t, "Bu Endang", madiun.Leader)
	require.Len(t, madiun.SubBranches, 3)
	assert.Equal(t, firstSubID, madiun.SubBranches[0].ID, "sub-branch matched by code keeps its ID")
	assert.Equal(t, "Bu Rina Baru", madiun.SubBranches[0].Leader)
	assert.Equal(t, "Manguharjo", madiun.SubBranches[2].Name)
}

func TestImportBranchesIdempotent(t *testing.T) {
	rec, store := newTestReconciler(t)

	for i := 0; i < 2; i++ {
		_, err := rec.ImportBranches(context.Background(), strings.NewReader(branchSheet))
		require.NoError(t, err)
	}

	branches := store.ListBranches()
	require.Len(t, branches, 2)
	assert.Len(t, branches[0].SubBranches, 2)
}

func TestImportBranchesMissingCode(t *testing.T) {
	rec, _ := newTestReconciler(t)

	sheet := strings.Join(branchHeader, ",") + "\n,Madiun,Pak Harto,,,,,\n"
	_, err := rec.ImportBranches(context.Background(), strings.NewReader(sheet))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
}

func TestImportBranchesBadCoordinateLeavesStoreUntouched(t *testing.T) {
	rec, store := newTestReconciler(t)

	sheet := strings.Join(branchHeader, ",") + "\n01,Madiun,Pak Harto,01,Taman,Bu Rina,north,111.5\n"
	_, err := rec.ImportBranches(context.Background(), strings.NewReader(sheet))
	var formatErr *FormatError
	require.ErrorAs(t, err, &formatErr)
	assert.Empty(t, store.ListBranches())
}

func TestMemberSheetRoundTrip(t *testing.T) {
	rec, _ := newTestReconciler(t)

	_, err := rec.ImportMembers(context.Background(), strings.NewReader(memberSheet))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, rec.ExportMembers(context.Background(), &out))

	// Re-import the export into a fresh directory and compare projections.
	rec2, store2 := newTestReconciler(t)
	_, err = rec2.ImportMembers(context.Background(), bytes.NewReader(out.Bytes()))
	require.NoError(t, err)

	first := MemberRows(mustListMembers(t, rec))
	second := MemberRows(store2.ListMembers())
	assert.Equal(t, first, second)
}

func TestBranchSheetRoundTrip(t *testing.T) {
	rec, _ := newTestReconciler(t)

	_, err := rec.ImportBranches(context.Background(), strings.NewReader(branchSheet))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, rec.ExportBranches(context.Background(), &out))
	assert.Contains(t, out.String(), "02,Ponorogo,Bu Sri,,,,,", "zero-sub-branch branch exports one blank-sub row")

	rec2, store2 := newTestReconciler(t)
	_, err = rec2.ImportBranches(context.Background(), bytes.NewReader(out.Bytes()))
	require.NoError(t, err)

	first := BranchRows(mustListBranches(t, rec))
	second := BranchRows(store2.ListBranches())
	assert.Equal(t, first, second)
}

func mustListMembers(t *testing.T, rec *Reconciler) []domain.Member {
	t.Helper()
	var members []domain.Member
	require.NoError(t, rec.store.View(context.Background(), func(view domain.TransactionView) error {
		members = view.ListMembers()
		return nil
	}))
	return members
}

func mustListBranches(t *testing.T, rec *Reconciler) []domain.Branch {
	t.Helper()
	var branches []domain.Branch
	require.NoError(t, rec.store.View(context.Background(), func(view domain.TransactionView) error {
		branches = view.ListBranches()
		return nil
	}))
	return branches
}

// blockNameRule rejects any change creating or updating a member with the
// configured name. Used to force a mid-sheet import failure.
type blockNameRule struct{ name string }

func (r blockNameRule) Name() string { return "test_block_name" }

func (r blockNameRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	var res domain.Result
	for _, change := range changes {
		member, ok := change.After.(domain.Member)
		if ok && member.Name == r.name {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     r.Name(),
				Severity: domain.SeverityBlock,
				Message:  "blocked by test rule",
				EntityID: member.ID,
			})
		}
	}
	return res, nil
}

func TestImportMembersPartialFailureKeepsEarlierRows(t *testing.T) {
	engine := domain.NewRulesEngine()
	engine.Register(blockNameRule{name: "Blocked"})
	store := memory.NewStore(engine)
	rec := NewReconciler(store)

	sheet := strings.Join([]string{
		strings.Join(memberHeader, ","),
		"M-1,First,first,f@x.id,,,,,,anggota,Laki-laki",
		"M-2,Blocked,blocked,bl@x.id,,,,,,anggota,Laki-laki",
		"M-3,Third,third,t@x.id,,,,,,anggota,Laki-laki",
	}, "\n")

	count, err := rec.ImportMembers(context.Background(), strings.NewReader(sheet))
	var ruleErr domain.RuleViolationError
	require.ErrorAs(t, err, &ruleErr)
	assert.Equal(t, 1, count, "rows before the failure stay committed")

	assert.Len(t, store.ListMembers(), 1)
	_, ok := store.GetMember("M-1")
	assert.True(t, ok)
	_, ok = store.GetMember("M-3")
	assert.False(t, ok, "rows after the failure are not applied")
}
