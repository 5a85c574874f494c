package export

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"github.com/nholding/cycle-book/internal/period/domain"
)

// PeriodsSheet is the name of the single sheet written by PeriodsWorkbook.
const PeriodsSheet = "Periods"

var periodsHeader = []string{"ID", "Start", "End", "Status", "Days"}

// PeriodsWorkbook writes one row per period. Days counts open periods up to today.
func PeriodsWorkbook(periods []*domain.Period, today domain.Date) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", PeriodsSheet); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	for col, h := range periodsHeader {
		cell := fmt.Sprintf("%s1", colName(col+1))
		if err := f.SetCellStr(PeriodsSheet, cell, h); err != nil {
			return nil, fmt.Errorf("set cell %s: %w", cell, err)
		}
	}

	for i, p := range periods {
		row := i + 2
		end := ""
		if p.EndDate != nil {
			end = p.EndDate.String()
		}
		values := []any{p.ID, p.StartDate.String(), end, string(p.Status()), p.Length(today)}
		for c, v := range values {
			cell := fmt.Sprintf("%s%d", colName(c+1), row)
			if err := f.SetCellValue(PeriodsSheet, cell, v); err != nil {
				return nil, fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	if err := ApplyDefaultExcelFormatting(f, PeriodsSheet); err != nil {
		return nil, fmt.Errorf("format sheet: %w", err)
	}
	return f, nil
}

// ApplyDefaultExcelFormatting applies:
// - bold header (row 1),
// - auto-filter on row 1,
// - approximate auto-width for all populated columns.
func ApplyDefaultExcelFormatting(f *excelize.File, sheet string) error {
	rows, err := f.GetRows(sheet)
	if err != nil {
		return err
	}
	cols := 0
	for _, r := range rows {
		if len(r) > cols {
			cols = len(r)
		}
	}
	if cols == 0 {
		return nil
	}
	last := colName(cols)

	if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
		_ = f.SetCellStyle(sheet, "A1", last+"1", style)
	}
	if err := f.AutoFilter(sheet, "A1:"+last+"1", nil); err != nil {
		return err
	}

	for c := 0; c < cols; c++ {
		w := 10.0
		for rIdx, row := range rows {
			if c >= len(row) {
				continue
			}
			l := float64(len([]rune(row[c]))) * 1.1
			if rIdx == 0 {
				l += 1.5
			}
			if l > w {
				w = min(l, 60)
			}
		}
		col := colName(c + 1)
		_ = f.SetColWidth(sheet, col, col, w)
	}
	return nil
}

func colName(n int) string {
	// 1 -> A; 27 -> AA
	s := ""
	for n > 0 {
		n--
		s = string(rune('A'+(n%26))) + s
		n /= 26
	}
	return s
}
