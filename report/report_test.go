package report_test

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/prabandh/leave-engine/generic"
	"github.com/prabandh/leave-engine/leave"
	"github.com/prabandh/leave-engine/report"
)

var generatedAt = time.Date(2025, time.September, 1, 8, 30, 0, 0, time.UTC)

func fixtures(t *testing.T) ([]*leave.Balance, map[string]leave.Faculty) {
	t.Helper()
	zoya := leave.NewBalance("fac-1", 2025, leave.DefaultAllocations())
	require.NoError(t, zoya.DeductSlot(leave.Slot1, generic.MustParseDecimal("2.5")))
	zoya.LapseSlot(leave.Slot2)

	asha := leave.NewBalance("fac-2", 2025, leave.DefaultAllocations())
	_, err := asha.Deduct(leave.Medical, generic.MustParseDecimal("3"), nil)
	require.NoError(t, err)

	faculty := map[string]leave.Faculty{
		"fac-1": {ID: "fac-1", Name: "Zoya Khan", Department: "Physics"},
		"fac-2": {ID: "fac-2", Name: "Asha Verma", Department: "CSE"},
	}
	return []*leave.Balance{zoya, asha}, faculty
}

func TestFilename(t *testing.T) {
	assert.Equal(t, "leave-balances-2025-09-01.xlsx", report.Filename(generatedAt))
}

// =============================================================================
// WORKBOOK
// =============================================================================

func TestWriteBalances_Layout(t *testing.T) {
	// GIVEN: Two balances, Zoya (fac-1) and Asha (fac-2)
	// WHEN: The workbook is written and read back
	// THEN: One "Balances" sheet with a title row, two header rows, and
	//       the balances ordered by name
	balances, faculty := fixtures(t)

	buf, err := report.WriteBalances(balances, faculty, generatedAt)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{"Balances"}, f.GetSheetList())

	get := func(ref string) string {
		t.Helper()
		v, err := f.GetCellValue("Balances", ref)
		require.NoError(t, err)
		return v
	}

	assert.Equal(t, "Leave balances as of 2025-09-01", get("A1"))
	assert.Equal(t, "Faculty ID", get("A2"))
	assert.Equal(t, "Cycle", get("D2"))
	assert.Equal(t, "Casual (slot 1)", get("E2"))
	assert.Equal(t, "Allocated", get("E3"))
	assert.Equal(t, "Remaining", get("G3"))
	assert.Equal(t, "Casual (slot 2)", get("H2"))
	assert.Equal(t, "Medical", get("K2"))

	// Asha sorts first.
	assert.Equal(t, "fac-2", get("A4"))
	assert.Equal(t, "Asha Verma", get("B4"))
	assert.Equal(t, "CSE", get("C4"))
	assert.Equal(t, "2025", get("D4"))
	assert.Equal(t, "3", get("L4"), "medical used")
	assert.Equal(t, "9", get("M4"), "medical remaining")

	assert.Equal(t, "fac-1", get("A5"))
	assert.Equal(t, "2.5", get("F5"), "slot 1 used")
	assert.Equal(t, "4.5", get("G5"), "slot 1 remaining")
	assert.Equal(t, "0", get("J5"), "lapsed slot 2 remaining")
}

func TestWriteBalances_HighlightsLapsedSlots(t *testing.T) {
	balances, faculty := fixtures(t)

	buf, err := report.WriteBalances(balances, faculty, generatedAt)
	require.NoError(t, err)
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	lapsed, err := f.GetCellStyle("Balances", "H5")
	require.NoError(t, err)
	plain, err := f.GetCellStyle("Balances", "E5")
	require.NoError(t, err)
	assert.NotEqual(t, plain, lapsed)
}

func TestWriteBalances_UnknownFacultyShowsID(t *testing.T) {
	b := leave.NewBalance("ghost", 2025, leave.DefaultAllocations())

	buf, err := report.WriteBalances([]*leave.Balance{b}, nil, generatedAt)
	require.NoError(t, err)
	f, err := excelize.OpenReader(buf)
	require.NoError(t, err)
	defer f.Close()

	id, _ := f.GetCellValue("Balances", "A4")
	name, _ := f.GetCellValue("Balances", "B4")
	assert.Equal(t, "ghost", id)
	assert.Empty(t, name)
}

// =============================================================================
// SUMMARY
// =============================================================================

func TestWriteSummary(t *testing.T) {
	balances, faculty := fixtures(t)
	member := faculty["fac-1"]

	var out strings.Builder
	require.NoError(t, report.WriteSummary(&out, balances[0], &member))

	text := out.String()
	assert.True(t, strings.HasPrefix(text, "Leave balance for Zoya Khan (fac-1), cycle 2025\n"))
	assert.Contains(t, text, "BUCKET")
	assert.Contains(t, text, "Casual (slot 2) (lapsed)")
	assert.Contains(t, text, "Half pay")
	assert.Contains(t, text, "HPL")

	var slot1 string
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(line, "Casual (slot 1)") {
			slot1 = line
		}
	}
	assert.Equal(t, []string{"Casual", "(slot", "1)", "7.0", "2.5", "4.5"}, strings.Fields(slot1))
}

func TestWriteSummary_WithoutDirectoryEntry(t *testing.T) {
	b := leave.NewBalance("fac-9", 2026, leave.DefaultAllocations())

	var out strings.Builder
	require.NoError(t, report.WriteSummary(&out, b, nil))

	assert.True(t, strings.HasPrefix(out.String(), "Leave balance for fac-9, cycle 2026\n"))
}
