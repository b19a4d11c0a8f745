// Package override imports operator-supplied tiers from CSV or XLSX files
// and writes them as calculations without running the calculators.
package override

import (
	"bytes"
	"encoding/csv"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/sells-group/tier-cli/internal/model"
)

// Row is one parsed override. Scores are optional and default to zero.
type Row struct {
	Line         int        `json:"line"`
	CRN          string     `json:"crn"`
	Tier         model.Tier `json:"tier"`
	ProtectScore int        `json:"protect_score"`
	ChangeScore  int        `json:"change_score"`
}

// RowError is a line that could not be parsed. Parsing continues past it.
type RowError struct {
	Line int    `json:"line"`
	Err  string `json:"error"`
}

// Parsed is the result of reading an override file.
type Parsed struct {
	Rows   []Row      `json:"rows"`
	Errors []RowError `json:"errors,omitempty"`
}

// Parse reads data as XLSX when name ends in .xlsx and as CSV otherwise.
func Parse(name string, data []byte) (*Parsed, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ParseXLSX(data)
	}
	return ParseCSV(bytes.NewReader(data))
}

// ParseCSV reads crn,tier[,protect_score,change_score] records. A leading
// byte order mark and a header row are skipped.
func ParseCSV(r io.Reader) (*Parsed, error) {
	reader := csv.NewReader(transform.NewReader(r, unicode.BOMOverride(transform.Nop)))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	var records []record
	for {
		fields, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "override: read csv")
		}
		line, _ := reader.FieldPos(0)
		records = append(records, record{line: line, fields: fields})
	}
	return parseRecords(records), nil
}

// ParseXLSX reads the first sheet of an XLSX workbook.
func ParseXLSX(data []byte) (*Parsed, error) {
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "override: open xlsx")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("override: workbook has no sheets")
	}

	sheet := f.Sheets[0]
	records := make([]record, 0, len(sheet.Rows))
	for i, row := range sheet.Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, record{line: i + 1, fields: cells})
	}
	return parseRecords(records), nil
}

// record is a row of fields and its 1-based line in the source file.
type record struct {
	line   int
	fields []string
}

func parseRecords(records []record) *Parsed {
	out := &Parsed{}
	for i, rec := range records {
		if blank(rec.fields) {
			continue
		}
		if i == 0 && isHeader(rec.fields) {
			continue
		}
		row, err := parseRow(rec.line, rec.fields)
		if err != nil {
			out.Errors = append(out.Errors, RowError{Line: rec.line, Err: err.Error()})
			continue
		}
		out.Rows = append(out.Rows, row)
	}
	return out
}

func parseRow(line int, rec []string) (Row, error) {
	if len(rec) < 2 {
		return Row{}, eris.Errorf("override: expected crn and tier, got %d columns", len(rec))
	}
	crn := strings.TrimSpace(rec[0])
	if crn == "" {
		return Row{}, eris.New("override: crn is empty")
	}
	t, err := model.ParseTier(rec[1])
	if err != nil {
		return Row{}, err
	}

	row := Row{Line: line, CRN: crn, Tier: t}
	if row.ProtectScore, err = score(rec, 2); err != nil {
		return Row{}, eris.Wrap(err, "override: protect score")
	}
	if row.ChangeScore, err = score(rec, 3); err != nil {
		return Row{}, eris.Wrap(err, "override: change score")
	}
	return row, nil
}

func score(rec []string, col int) (int, error) {
	if col >= len(rec) || strings.TrimSpace(rec[col]) == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(rec[col]))
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, eris.Errorf("negative score %d", n)
	}
	return n, nil
}

func isHeader(rec []string) bool {
	if len(rec) < 2 {
		return false
	}
	_, err := model.ParseTier(rec[1])
	return err != nil && strings.EqualFold(strings.TrimSpace(rec[0]), "crn")
}

func blank(rec []string) bool {
	for _, f := range rec {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
