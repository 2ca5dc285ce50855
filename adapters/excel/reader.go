// Package excel reads the experiment's tabular inputs from CSV files or xlsx workbooks and
// writes result workbooks.
package excel

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"perchmp/domain/core"
	"perchmp/internal"

	"github.com/xuri/excelize/v2"
)

// DataReader handles reading Excel and CSV files
type DataReader struct {
	filePath string
	fileType string // "xlsx" or "csv"
	config   ReaderConfig
	logger   *internal.Logger
}

// NewDataReader creates a new data reader that handles both Excel and CSV files
func NewDataReader(filePath string, config ReaderConfig) *DataReader {
	ext := strings.ToLower(filepath.Ext(filePath))
	fileType := "csv"
	if ext == ".xlsx" || ext == ".xlsm" {
		fileType = "xlsx"
	}
	return &DataReader{
		filePath: filePath,
		fileType: fileType,
		config:   config,
		logger:   internal.DefaultLogger.With("excel"),
	}
}

// ReadData reads the header row and all data rows as trimmed text
func (r *DataReader) ReadData() (*ExcelData, error) {
	r.logger.Debug("reading %s file %s", r.fileType, r.filePath)

	if _, err := os.Stat(r.filePath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", core.ErrFileNotFound, r.filePath)
		}
		return nil, fmt.Errorf("%w: %s: %v", core.ErrLoadFailed, r.filePath, err)
	}

	var rows [][]string
	var err error
	switch r.fileType {
	case "xlsx":
		rows, err = r.readExcelRows()
	default:
		rows, err = r.readCSVRows()
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", core.ErrLoadFailed, r.filePath, err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%w: %s must have a header row and at least one data row", core.ErrLoadFailed, r.filePath)
	}
	return r.processRows(rows)
}

// readExcelRows reads the configured sheet, or the first one
func (r *DataReader) readExcelRows() ([][]string, error) {
	start := time.Now()
	f, err := excelize.OpenFile(r.filePath)
	if err != nil {
		return nil, fmt.Errorf("open workbook: %w", err)
	}
	defer f.Close()

	sheet := r.config.Sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, fmt.Errorf("workbook has no sheets")
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	r.logger.Step(start, "sheet %s: %d rows read", sheet, len(rows))
	return rows, nil
}

// readCSVRows reads every record of a delimited file
func (r *DataReader) readCSVRows() ([][]string, error) {
	file, err := os.Open(r.filePath)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	start := time.Now()
	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1
	rows, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	r.logger.Step(start, "CSV: %d rows read", len(rows))
	return rows, nil
}

// processRows converts raw string rows into ExcelData. Short rows are padded with empty
// cells; cells beyond the header are an error.
func (r *DataReader) processRows(rows [][]string) (*ExcelData, error) {
	headers := make([]string, len(rows[0]))
	seen := make(map[string]bool, len(headers))
	for i, header := range rows[0] {
		h := strings.TrimSpace(strings.TrimPrefix(header, "\ufeff"))
		// R's write.csv leaves the row-name column header empty
		if h == "" {
			h = fmt.Sprintf("column%d", i+1)
		}
		if seen[h] {
			return nil, fmt.Errorf("%w: %s: duplicate header %q", core.ErrLoadFailed, r.filePath, h)
		}
		seen[h] = true
		headers[i] = h
	}

	data := &ExcelData{Headers: headers, Rows: make([]RawRowData, 0, len(rows)-1)}
	for i := 1; i < len(rows); i++ {
		row := rows[i]
		if len(row) > len(headers) {
			return nil, fmt.Errorf("%w: %s %s: %d cells for %d headers",
				core.ErrMalformedValue, r.filePath, r.position(i, len(headers)), len(row), len(headers))
		}
		if blank(row) {
			continue
		}
		rowData := make(RawRowData, len(headers))
		for j, h := range headers {
			if j < len(row) {
				rowData[h] = strings.TrimSpace(row[j])
			} else {
				rowData[h] = ""
			}
		}
		data.Rows = append(data.Rows, rowData)
		data.Lines = append(data.Lines, i+1)
	}

	r.logger.Debug("%s processed (%d columns, %d rows)", r.filePath, len(headers), len(data.Rows))
	return data, nil
}

// position names a data row the way a user finds it: a line for CSV, a cell for xlsx
func (r *DataReader) position(rowIdx, colIdx int) string {
	if r.fileType == "xlsx" {
		return fmt.Sprintf("cell %s%d", columnIndexToLetter(colIdx), rowIdx+1)
	}
	return fmt.Sprintf("line %d", rowIdx+1)
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// columnIndexToLetter converts 0-based column index to Excel column letter (A, B, ..., Z, AA, AB, ...)
func columnIndexToLetter(colIdx int) string {
	result := ""
	colIdx++ // Excel is 1-indexed internally
	for colIdx > 0 {
		colIdx--
		result = string(rune('A'+(colIdx%26))) + result
		colIdx /= 26
	}
	return result
}
