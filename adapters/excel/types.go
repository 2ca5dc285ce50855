package excel

// RawRowData represents a row of raw cell text keyed by header
type RawRowData map[string]string

// ExcelData represents one sheet or CSV file as read, before typing
type ExcelData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
	Lines   []int        // 1-based source row of each data row
}

// HasColumn reports whether a header is present
func (d *ExcelData) HasColumn(name string) bool {
	for _, h := range d.Headers {
		if h == name {
			return true
		}
	}
	return false
}
