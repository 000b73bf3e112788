package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// WriteXLSX writes one sheet per table.
func WriteXLSX(w io.Writer, tables []Table) error {
	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}

	for i, t := range tables {
		if i == 0 {
			if err := f.SetSheetName(f.GetSheetName(0), t.Name); err != nil {
				return err
			}
		} else if _, err := f.NewSheet(t.Name); err != nil {
			return err
		}

		header := make([]any, len(t.Header))
		for j, h := range t.Header {
			header[j] = h
		}
		if err := f.SetSheetRow(t.Name, "A1", &header); err != nil {
			return fmt.Errorf("sheet %s header: %w", t.Name, err)
		}
		if len(t.Header) > 0 {
			last, _ := excelize.CoordinatesToCellName(len(t.Header), 1)
			if err := f.SetCellStyle(t.Name, "A1", last, bold); err != nil {
				return err
			}
		}

		for r, row := range t.Rows {
			cell, _ := excelize.CoordinatesToCellName(1, r+2)
			values := row
			if err := f.SetSheetRow(t.Name, cell, &values); err != nil {
				return fmt.Errorf("sheet %s row %d: %w", t.Name, r+1, err)
			}
		}
	}

	_, err = f.WriteTo(w)
	return err
}

// WriteCSV writes a single table.
func WriteCSV(w io.Writer, t Table) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(t.Header); err != nil {
		return err
	}
	record := make([]string, 0, len(t.Header))
	for _, row := range t.Rows {
		record = record[:0]
		for _, v := range row {
			record = append(record, cellString(v))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// SaveXLSX writes the workbook to path, creating parent directories.
func SaveXLSX(path string, tables []Table) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteXLSX(f, tables); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// SaveCSV writes every table to <dir>/<name>.csv and returns the file paths.
func SaveCSV(dir string, tables []Table) ([]string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}
	var paths []string
	for _, t := range tables {
		path := filepath.Join(dir, strings.ToLower(t.Name)+".csv")
		f, err := os.Create(path)
		if err != nil {
			return paths, err
		}
		if err := WriteCSV(f, t); err != nil {
			f.Close()
			return paths, err
		}
		if err := f.Close(); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

// Find returns the table with the given name, ignoring case.
func Find(tables []Table, name string) (Table, bool) {
	for _, t := range tables {
		if strings.EqualFold(t.Name, name) {
			return t, true
		}
	}
	return Table{}, false
}
