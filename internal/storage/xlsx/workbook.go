// Package xlsx stores result tables in a single spreadsheet workbook per
// namespace, one sheet per table.
package xlsx

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

const defaultSheet = "Sheet1"

// PathFor returns the workbook path of a namespace inside dir.
func PathFor(dir, namespace string) string {
	return filepath.Join(dir, "tradingview_backtest_results_"+strings.ToLower(namespace)+".xlsx")
}

// sheet is one table ready to be written: a header and rendered cells.
type sheet struct {
	name   string
	header []string
	rows   [][]any
}

// readSheets opens path and returns every sheet as text rows, in workbook order.
// A missing file yields no sheets and no error.
func readSheets(path string) ([]string, map[string][][]string, error) {
	f, err := excelize.OpenFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, map[string][][]string{}, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("open workbook %s: %w", path, err)
	}
	defer f.Close()

	names := f.GetSheetList()
	out := make(map[string][][]string, len(names))
	for _, name := range names {
		rows, err := f.GetRows(name, excelize.Options{RawCellValue: true})
		if err != nil {
			return nil, nil, fmt.Errorf("read sheet %s: %w", name, err)
		}
		out[name] = rows
	}
	return names, out, nil
}

// writeWorkbook renders sheets into a new workbook and atomically replaces path.
func writeWorkbook(path string, sheets []sheet) error {
	if len(sheets) == 0 {
		return fmt.Errorf("write workbook %s: no sheets", path)
	}

	f := excelize.NewFile()
	defer f.Close()

	for _, sh := range sheets {
		if sh.name != defaultSheet {
			if _, err := f.NewSheet(sh.name); err != nil {
				return fmt.Errorf("create sheet %s: %w", sh.name, err)
			}
		}
		if err := streamSheet(f, sh); err != nil {
			return err
		}
	}
	if !hasSheet(sheets, defaultSheet) {
		if err := f.DeleteSheet(defaultSheet); err != nil {
			return fmt.Errorf("drop default sheet: %w", err)
		}
	}
	if idx, err := f.GetSheetIndex(sheets[0].name); err == nil && idx >= 0 {
		f.SetActiveSheet(idx)
	}

	return saveAtomic(f, path)
}

func streamSheet(f *excelize.File, sh sheet) error {
	sw, err := f.NewStreamWriter(sh.name)
	if err != nil {
		return fmt.Errorf("stream sheet %s: %w", sh.name, err)
	}
	header := make([]any, len(sh.header))
	for i, h := range sh.header {
		header[i] = h
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("write header %s: %w", sh.name, err)
	}
	for i, row := range sh.rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(cell, row); err != nil {
			return fmt.Errorf("write row %d of %s: %w", i+2, sh.name, err)
		}
	}
	if err := sw.Flush(); err != nil {
		return fmt.Errorf("flush sheet %s: %w", sh.name, err)
	}
	return nil
}

func saveAtomic(f *excelize.File, path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".sweep-*.xlsx")
	if err != nil {
		return fmt.Errorf("create temp workbook: %w", err)
	}
	tmpName := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpName) }

	if _, err := f.WriteTo(tmp); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("write workbook: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		cleanup()
		return fmt.Errorf("sync workbook: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("close workbook: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		cleanup()
		return fmt.Errorf("replace workbook %s: %w", path, err)
	}
	return nil
}

func hasSheet(sheets []sheet, name string) bool {
	for _, sh := range sheets {
		if sh.name == name {
			return true
		}
	}
	return false
}

// textCells converts stored text back into typed cells so numbers stay numeric
// when a sheet is rewritten untouched.
func textCells(rows [][]string) [][]any {
	out := make([][]any, len(rows))
	for i, r := range rows {
		cells := make([]any, len(r))
		for j, s := range r {
			if v, err := strconv.ParseFloat(s, 64); err == nil && s != "" {
				cells[j] = v
			} else if s == "" {
				cells[j] = nil
			} else {
				cells[j] = s
			}
		}
		out[i] = cells
	}
	return out
}
