/*
Package report renders leave balances for people rather than programs.

PURPOSE:
  Two renderings of the same data:
  - WriteBalances: an .xlsx workbook, one row per faculty member, one column
    group per bucket (served by GET /api/reports/balances.xlsx and
    leavectl export).
  - WriteSummary: a plain-text card for one balance (leavectl check-balance).

WORKBOOK LAYOUT:
  Row 1     title, merged across every column
  Row 2     bucket names (casual slot 1, casual slot 2, then each flat type)
  Row 3     per-bucket sub-headers (allocated, used, remaining)
  Row 4..   one balance per row, ordered by faculty name then id

SEE ALSO:
  - leave/balance.go: Balance.Summary, the source of every cell
*/
package report

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/prabandh/leave-engine/leave"
)

const sheetName = "Balances"

var ErrExportFailed = errors.New("failed to generate balance report")

// Filename is the suggested download name for a report generated at t.
func Filename(t time.Time) string {
	return fmt.Sprintf("leave-balances-%s.xlsx", t.Format("2006-01-02"))
}

// WriteBalances renders balances as a workbook. faculty supplies display
// names; balances without a directory entry show the id only.
func WriteBalances(balances []*leave.Balance, faculty map[string]leave.Faculty, generatedAt time.Time) (*bytes.Buffer, error) {
	f := excelize.NewFile()
	defer f.Close()

	idx, err := f.NewSheet(sheetName)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	f.SetActiveSheet(idx)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "#FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	lapsedStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Italic: true, Color: "#9C0006"},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#FFC7CE"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	// Fixed columns: faculty id, name, department, cycle year.
	const fixed = 4
	buckets := bucketLabels()
	lastCol := fixed + len(buckets)*3

	title := fmt.Sprintf("Leave balances as of %s", generatedAt.Format("2006-01-02"))
	f.SetCellValue(sheetName, cell(1, 1), title)
	if err := f.MergeCell(sheetName, cell(1, 1), cell(lastCol, 1)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	f.SetCellStyle(sheetName, cell(1, 1), cell(1, 1), headerStyle)

	for i, name := range []string{"Faculty ID", "Name", "Department", "Cycle"} {
		col := i + 1
		f.SetCellValue(sheetName, cell(col, 2), name)
		f.MergeCell(sheetName, cell(col, 2), cell(col, 3))
	}
	for i, label := range buckets {
		first := fixed + i*3 + 1
		f.SetCellValue(sheetName, cell(first, 2), label)
		f.MergeCell(sheetName, cell(first, 2), cell(first+2, 2))
		f.SetCellValue(sheetName, cell(first, 3), "Allocated")
		f.SetCellValue(sheetName, cell(first+1, 3), "Used")
		f.SetCellValue(sheetName, cell(first+2, 3), "Remaining")
	}
	f.SetCellStyle(sheetName, cell(1, 2), cell(lastCol, 3), headerStyle)

	f.SetColWidth(sheetName, colName(1), colName(1), 16)
	f.SetColWidth(sheetName, colName(2), colName(2), 24)
	f.SetColWidth(sheetName, colName(3), colName(3), 18)
	f.SetColWidth(sheetName, colName(4), colName(4), 8)
	f.SetColWidth(sheetName, colName(fixed+1), colName(lastCol), 11)

	row := 4
	for _, b := range sortBalances(balances, faculty) {
		member := faculty[b.FacultyID]
		f.SetCellValue(sheetName, cell(1, row), b.FacultyID)
		f.SetCellValue(sheetName, cell(2, row), member.Name)
		f.SetCellValue(sheetName, cell(3, row), member.Department)
		f.SetCellValue(sheetName, cell(4, row), b.CycleYear)

		for i, line := range b.Summary() {
			first := fixed + i*3 + 1
			f.SetCellValue(sheetName, cell(first, row), line.Allocated.InexactFloat64())
			f.SetCellValue(sheetName, cell(first+1, row), line.Used.InexactFloat64())
			f.SetCellValue(sheetName, cell(first+2, row), line.Remaining.InexactFloat64())
			if line.Lapsed {
				f.SetCellStyle(sheetName, cell(first, row), cell(first+2, row), lapsedStyle)
			}
		}
		row++
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      2,
		YSplit:      3,
		TopLeftCell: cell(3, 4),
		ActivePane:  "bottomRight",
	}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}

	buf := new(bytes.Buffer)
	if err := f.Write(buf); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExportFailed, err)
	}
	return buf, nil
}

// WriteSummary prints one balance as an aligned table.
func WriteSummary(w io.Writer, b *leave.Balance, member *leave.Faculty) error {
	name := b.FacultyID
	if member != nil && member.Name != "" {
		name = fmt.Sprintf("%s (%s)", member.Name, b.FacultyID)
	}
	if _, err := fmt.Fprintf(w, "Leave balance for %s, cycle %d\n\n", name, b.CycleYear); err != nil {
		return err
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BUCKET\tALLOCATED\tUSED\tREMAINING\t")
	for _, line := range b.Summary() {
		label := bucketLabel(line)
		if line.Lapsed {
			label += " (lapsed)"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t\n", label,
			line.Allocated.StringFixed(1), line.Used.StringFixed(1), line.Remaining.StringFixed(1))
	}
	return tw.Flush()
}

func bucketLabels() []string {
	labels := make([]string, 0, len(leave.FlatTypes)+len(leave.Slots))
	for _, s := range leave.Slots {
		labels = append(labels, fmt.Sprintf("Casual (slot %d)", s.Number()))
	}
	for _, t := range leave.FlatTypes {
		labels = append(labels, typeLabel(t))
	}
	return labels
}

func bucketLabel(line leave.BucketSummary) string {
	if line.Type == leave.Casual {
		return fmt.Sprintf("Casual (slot %d)", line.Slot.Number())
	}
	return typeLabel(line.Type)
}

// typeLabel turns half_pay into "Half pay".
func typeLabel(t leave.Type) string {
	s := strings.ReplaceAll(string(t), "_", " ")
	if len(t) <= 3 {
		return strings.ToUpper(s)
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

func sortBalances(balances []*leave.Balance, faculty map[string]leave.Faculty) []*leave.Balance {
	out := make([]*leave.Balance, len(balances))
	copy(out, balances)
	sort.SliceStable(out, func(i, j int) bool {
		ni, nj := faculty[out[i].FacultyID].Name, faculty[out[j].FacultyID].Name
		if ni != nj {
			return ni < nj
		}
		return out[i].FacultyID < out[j].FacultyID
	})
	return out
}

func colName(idx int) string {
	name, _ := excelize.ColumnNumberToName(idx)
	return name
}

func cell(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}
