package extract

import (
	"fmt"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// sheetPrefix introduces each worksheet in spreadsheet output
const sheetPrefix = "Лист: "

// XLSXExtractor extracts text from .xlsx workbooks
type XLSXExtractor struct{}

// ExtractText implements the Extractor interface for XLSX files
func (e *XLSXExtractor) ExtractText(path string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			text = Diagnostic("XLSX", fmt.Errorf("panic: %v", r))
		}
	}()

	f, err := excelize.OpenFile(path)
	if err != nil {
		return Diagnostic("XLSX", err)
	}
	defer f.Close()

	var b strings.Builder
	for _, name := range f.GetSheetList() {
		rows, err := f.GetRows(name)
		if err != nil {
			continue
		}
		writeSheet(&b, name, rows)
	}
	return strings.TrimSpace(b.String())
}

// XLSExtractor extracts text from legacy .xls workbooks when enabled
type XLSExtractor struct {
	Enabled bool
}

// ExtractText implements the Extractor interface for XLS files
func (e *XLSExtractor) ExtractText(path string) (text string) {
	if !e.Enabled {
		return MsgXLSUnsupported
	}
	defer func() {
		if r := recover(); r != nil {
			text = Diagnostic("XLS", fmt.Errorf("panic: %v", r))
		}
	}()

	wb, err := xls.Open(path, "utf-8")
	if err != nil {
		return Diagnostic("XLS", err)
	}

	var b strings.Builder
	for i := 0; i < wb.NumSheets(); i++ {
		sheet := wb.GetSheet(i)
		if sheet == nil {
			continue
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			row := sheet.Row(r)
			if row == nil {
				continue
			}
			cells := make([]string, 0, max(0, row.LastCol()-row.FirstCol()+1))
			for c := row.FirstCol(); c <= row.LastCol(); c++ {
				cells = append(cells, row.Col(c))
			}
			rows = append(rows, cells)
		}
		writeSheet(&b, sheet.Name, rows)
	}
	return strings.TrimSpace(b.String())
}

// writeSheet emits a sheet header and one line per row with non-empty cells
func writeSheet(b *strings.Builder, name string, rows [][]string) {
	b.WriteString(sheetPrefix)
	b.WriteString(name)
	b.WriteByte('\n')
	for _, row := range rows {
		cells := make([]string, 0, len(row))
		for _, c := range row {
			if c = strings.TrimSpace(c); c != "" {
				cells = append(cells, c)
			}
		}
		if len(cells) == 0 {
			continue
		}
		b.WriteString(strings.Join(cells, cellSeparator))
		b.WriteByte('\n')
	}
}
