package override

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/tier-cli/internal/model"
)

func TestParseCSV_Basic(t *testing.T) {
	in := "crn,tier\nX100001,A1\nX100002, b2\n"

	parsed, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 2)
	assert.Empty(t, parsed.Errors)

	assert.Equal(t, "X100001", parsed.Rows[0].CRN)
	assert.Equal(t, model.Tier{Protect: model.ProtectA, Change: model.ChangeOne}, parsed.Rows[0].Tier)
	assert.Equal(t, 2, parsed.Rows[0].Line)
	assert.Equal(t, "B2", parsed.Rows[1].Tier.String())
}

func TestParseCSV_ByteOrderMark(t *testing.T) {
	in := "\ufeffcrn,tier\r\nX1,D0\r\n"

	parsed, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, "X1", parsed.Rows[0].CRN)
	assert.Equal(t, model.ChangeZero, parsed.Rows[0].Tier.Change)
}

func TestParseCSV_NoHeader(t *testing.T) {
	parsed, err := ParseCSV(strings.NewReader("X1,C3\n"))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, 1, parsed.Rows[0].Line)
}

func TestParseCSV_Scores(t *testing.T) {
	parsed, err := ParseCSV(strings.NewReader("X1,A3,34,21\nX2,B1,,\n"))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 2)
	assert.Equal(t, 34, parsed.Rows[0].ProtectScore)
	assert.Equal(t, 21, parsed.Rows[0].ChangeScore)
	assert.Zero(t, parsed.Rows[1].ProtectScore)
}

func TestParseCSV_InvalidRowsAreReported(t *testing.T) {
	in := strings.Join([]string{
		"crn,tier",
		"X1,A1",
		"X2,E1",
		",B2",
		"X4",
		"X5,B2,-3",
		"",
		"X6,C2",
	}, "\n")

	parsed, err := ParseCSV(strings.NewReader(in))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 2)
	assert.Equal(t, "X6", parsed.Rows[1].CRN)
	assert.Equal(t, 8, parsed.Rows[1].Line)

	require.Len(t, parsed.Errors, 4)
	assert.Equal(t, 3, parsed.Errors[0].Line)
	assert.Contains(t, parsed.Errors[0].Err, "invalid protect level")
	assert.Contains(t, parsed.Errors[1].Err, "crn is empty")
	assert.Contains(t, parsed.Errors[2].Err, "expected crn and tier")
	assert.Contains(t, parsed.Errors[3].Err, "protect score")
}

func TestParseCSV_Malformed(t *testing.T) {
	_, err := ParseCSV(strings.NewReader("X1,\"A1\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override: read csv")
}

func xlsxBytes(t *testing.T, rows [][]string) []byte {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Overrides")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, v := range rowData {
			row.AddCell().SetString(v)
		}
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	return buf.Bytes()
}

func TestParseXLSX(t *testing.T) {
	data := xlsxBytes(t, [][]string{
		{"CRN", "Tier"},
		{"X1", "A2"},
		{"X2", "Z9"},
	})

	parsed, err := Parse("overrides.XLSX", data)
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)
	assert.Equal(t, "A2", parsed.Rows[0].Tier.String())
	require.Len(t, parsed.Errors, 1)
	assert.Equal(t, 3, parsed.Errors[0].Line)
}

func TestParseXLSX_Corrupt(t *testing.T) {
	_, err := ParseXLSX([]byte("not a workbook"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "override: open xlsx")
}

func TestParse_DefaultsToCSV(t *testing.T) {
	parsed, err := Parse("overrides.txt", []byte("X1,B3\n"))
	require.NoError(t, err)
	require.Len(t, parsed.Rows, 1)
}
