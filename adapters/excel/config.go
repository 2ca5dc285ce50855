package excel

import "strings"

// ReaderConfig holds the parsing conventions for input files
type ReaderConfig struct {
	// Sheet to read from xlsx workbooks; empty means the first sheet
	Sheet string `json:"sheet" yaml:"sheet"`
	// MissingTokens are cell values read as missing, compared case-insensitively
	MissingTokens []string `json:"missing_tokens" yaml:"missing_tokens"`
}

// DefaultReaderConfig returns the conventions of the R data exports: empty cells, NA and
// NaN are missing
func DefaultReaderConfig() ReaderConfig {
	return ReaderConfig{
		MissingTokens: []string{"", "NA", "NaN", "."},
	}
}

// IsMissing reports whether a cell is one of the missing tokens
func (c ReaderConfig) IsMissing(cell string) bool {
	for _, tok := range c.MissingTokens {
		if strings.EqualFold(cell, tok) {
			return true
		}
	}
	return false
}
