package reconcile

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"cellar-backend/internal/domain"

	"github.com/xuri/excelize/v2"
)

// ReadRows parses an .xlsx or .csv upload into raw rows keyed by normalized header.
// The first sheet of a workbook is used.
func ReadRows(filename string, r io.Reader) ([]RawRow, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".xlsx":
		return readXLSX(r)
	case ".csv":
		return readCSV(r)
	default:
		return nil, domain.NewValidationError("file", "Only .xlsx and .csv files are supported")
	}
}

func readXLSX(r io.Reader) ([]RawRow, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, domain.NewValidationError("file", fmt.Sprintf("failed to open Excel file: %v", err))
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, domain.NewValidationError("file", "Workbook has no sheets")
	}
	// Raw values keep date cells as serial numbers instead of locale-formatted text.
	rows, err := f.GetRows(sheets[0], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, domain.NewValidationError("file", fmt.Sprintf("failed to read sheet: %v", err))
	}
	return toRawRows(rows)
}

func readCSV(r io.Reader) ([]RawRow, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, domain.NewValidationError("file", fmt.Sprintf("invalid CSV: %v", err))
		}
		rows = append(rows, rec)
	}
	if len(rows) > 0 && len(rows[0]) > 0 {
		rows[0][0] = strings.TrimPrefix(rows[0][0], "\ufeff")
	}
	return toRawRows(rows)
}

func toRawRows(rows [][]string) ([]RawRow, error) {
	if len(rows) == 0 {
		return nil, domain.NewValidationError("file", "File is empty")
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		header[i] = NormalizeHeader(h)
	}
	if !contains(header, colProducer) || !contains(header, colStockQty) {
		return nil, domain.NewValidationError("file", "Missing required columns producer and stock_qty")
	}

	out := make([]RawRow, 0, len(rows)-1)
	for i, rec := range rows[1:] {
		if isBlank(rec) {
			continue
		}
		values := make(map[string]string, len(header))
		for j, h := range header {
			if h != "" && j < len(rec) {
				values[h] = rec[j]
			}
		}
		out = append(out, RawRow{Line: i + 2, Values: values})
	}
	return out, nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func isBlank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
