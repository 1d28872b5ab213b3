// Package tabular implements spreadsheet interchange for the directory:
// CSV import with row defaulting, merge-by-code branch reconciliation,
// round-trippable exports, and an asynchronous export worker that renders
// sheets into blob storage.
package tabular

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"

	"silatcore/pkg/domain"
)

// Sheet names accepted by readers, exporters, and the export worker.
const (
	SheetMembers  = "members"
	SheetBranches = "branches"
)

// Column headers. The Indonesian labels are the interchange contract; they
// round-trip through exports unchanged.
var (
	memberHeader = []string{
		"NIA", "Nama", "Username", "Email", "Jabatan", "Tingkat Sabuk",
		"Cabang", "Ranting", "Kecamatan", "Role", "Gender",
	}
	branchHeader = []string{
		"Kode Cabang", "Nama Cabang", "Pimpinan Cabang",
		"Kode Ranting", "Nama Ranting", "PIC Ranting",
		"Lat Ranting", "Long Ranting",
	}
)

// FormatError reports malformed interchange input. The whole sheet is
// rejected with a single error; there are no partial-row diagnostics.
type FormatError struct {
	Sheet string
	Err   error
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("malformed %s sheet: %v", e.Sheet, e.Err)
}

func (e *FormatError) Unwrap() error { return e.Err }

// MemberRow is one line of the member sheet, still in string form.
type MemberRow struct {
	NIA           string `json:"NIA"`
	Name          string `json:"Nama"`
	Username      string `json:"Username"`
	Email         string `json:"Email"`
	Position      string `json:"Jabatan"`
	RankName      string `json:"Tingkat Sabuk"`
	BranchName    string `json:"Cabang"`
	SubBranchName string `json:"Ranting"`
	District      string `json:"Kecamatan"`
	Role          string `json:"Role"`
	Gender        string `json:"Gender"`
}

// BranchRow is one line of the branch sheet. Each row carries the owning
// branch columns plus at most one sub-branch; coordinates stay textual until
// reconciliation.
type BranchRow struct {
	BranchCode      string `json:"Kode Cabang"`
	BranchName      string `json:"Nama Cabang"`
	BranchLeader    string `json:"Pimpinan Cabang"`
	SubBranchCode   string `json:"Kode Ranting"`
	SubBranchName   string `json:"Nama Ranting"`
	SubBranchLeader string `json:"PIC Ranting"`
	Latitude        string `json:"Lat Ranting"`
	Longitude       string `json:"Long Ranting"`
}

// headerIndex maps expected column names to their position in the sheet's
// header row, tolerating reordered columns and surrounding whitespace.
func headerIndex(sheet string, header, expected []string) (map[string]int, error) {
	index := make(map[string]int, len(expected))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range expected {
		if _, ok := index[name]; !ok {
			return nil, &FormatError{Sheet: sheet, Err: fmt.Errorf("missing column %q", name)}
		}
	}
	return index, nil
}

// ReadMemberRows parses a member sheet. Column order is free as long as every
// expected header is present.
func ReadMemberRows(r io.Reader) ([]MemberRow, error) {
	records, index, err := readSheet(SheetMembers, r, memberHeader)
	if err != nil {
		return nil, err
	}
	rows := make([]MemberRow, 0, len(records))
	for _, rec := range records {
		cell := cellReader(rec, index)
		rows = append(rows, MemberRow{
			NIA:           cell("NIA"),
			Name:          cell("Nama"),
			Username:      cell("Username"),
			Email:         cell("Email"),
			Position:      cell("Jabatan"),
			RankName:      cell("Tingkat Sabuk"),
			BranchName:    cell("Cabang"),
			SubBranchName: cell("Ranting"),
			District:      cell("Kecamatan"),
			Role:          cell("Role"),
			Gender:        cell("Gender"),
		})
	}
	return rows, nil
}

// ReadBranchRows parses a branch sheet.
func ReadBranchRows(r io.Reader) ([]BranchRow, error) {
	records, index, err := readSheet(SheetBranches, r, branchHeader)
	if err != nil {
		return nil, err
	}
	rows := make([]BranchRow, 0, len(records))
	for _, rec := range records {
		cell := cellReader(rec, index)
		rows = append(rows, BranchRow{
			BranchCode:      cell("Kode Cabang"),
			BranchName:      cell("Nama Cabang"),
			BranchLeader:    cell("Pimpinan Cabang"),
			SubBranchCode:   cell("Kode Ranting"),
			SubBranchName:   cell("Nama Ranting"),
			SubBranchLeader: cell("PIC Ranting"),
			Latitude:        cell("Lat Ranting"),
			Longitude:       cell("Long Ranting"),
		})
	}
	return rows, nil
}

func readSheet(sheet string, r io.Reader, expected []string) ([][]string, map[string]int, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, nil, &FormatError{Sheet: sheet, Err: err}
	}
	if len(records) == 0 {
		return nil, nil, &FormatError{Sheet: sheet, Err: fmt.Errorf("missing header row")}
	}
	index, err := headerIndex(sheet, records[0], expected)
	if err != nil {
		return nil, nil, err
	}
	return records[1:], index, nil
}

func cellReader(record []string, index map[string]int) func(string) string {
	return func(column string) string {
		i := index[column]
		if i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}
}

// WriteMemberRows renders rows as CSV in canonical column order.
func WriteMemberRows(w io.Writer, rows []MemberRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(memberHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.NIA, row.Name, row.Username, row.Email, row.Position,
			row.RankName, row.BranchName, row.SubBranchName, row.District,
			row.Role, row.Gender,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteBranchRows renders rows as CSV in canonical column order.
func WriteBranchRows(w io.Writer, rows []BranchRow) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(branchHeader); err != nil {
		return err
	}
	for _, row := range rows {
		record := []string{
			row.BranchCode, row.BranchName, row.BranchLeader,
			row.SubBranchCode, row.SubBranchName, row.SubBranchLeader,
			row.Latitude, row.Longitude,
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// NormalizeGender maps free-form sheet input onto the canonical labels:
// exactly Perempuan stays female, everything else becomes Laki-laki.
func NormalizeGender(value string) domain.Gender {
	if strings.TrimSpace(value) == string(domain.GenderFemale) {
		return domain.GenderFemale
	}
	return domain.GenderMale
}

func parseCoordinate(value string) (*float64, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

func formatCoordinate(value *float64) string {
	if value == nil {
		return ""
	}
	return strconv.FormatFloat(*value, 'f', -1, 64)
}
