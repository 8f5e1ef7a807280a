package parsers

import (
	"fmt"
	"strings"
)

// Encoding selects how CSV bytes are decoded
type Encoding string

const (
	// EncodingAuto decodes valid UTF-8 as is and anything else as Windows-1252
	EncodingAuto        Encoding = "auto"
	EncodingUTF8        Encoding = "utf-8"
	EncodingWindows1252 Encoding = "windows-1252"
	EncodingLatin1      Encoding = "iso-8859-1"
)

// ParseEncoding converts a user supplied name into an Encoding
func ParseEncoding(s string) (Encoding, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return EncodingAuto, nil
	case "utf-8", "utf8":
		return EncodingUTF8, nil
	case "windows-1252", "cp1252":
		return EncodingWindows1252, nil
	case "iso-8859-1", "latin1", "latin-1":
		return EncodingLatin1, nil
	default:
		return "", fmt.Errorf("unsupported encoding %q", s)
	}
}

// candidateDelimiters are tried, in order, when the delimiter is sniffed
var candidateDelimiters = []rune{',', ';', '\t', '|'}

// ParseConfig holds configuration for reading tables
type ParseConfig struct {
	// Delimiter of CSV files; zero means sniff it from the header line
	Delimiter rune `json:"delimiter,omitempty"`

	// Encoding of CSV files
	Encoding Encoding `json:"encoding"`

	// KeepBlankRows keeps blank CSV lines as empty rows so that row numbers
	// match line numbers
	KeepBlankRows bool `json:"keep_blank_rows"`

	// MaxFieldSize rejects CSV fields longer than this many bytes; zero disables the check
	MaxFieldSize int `json:"max_field_size,omitempty"`
}

// DefaultParseConfig returns a configuration with sensible defaults
func DefaultParseConfig() *ParseConfig {
	return &ParseConfig{
		Encoding:      EncodingAuto,
		KeepBlankRows: true,
		MaxFieldSize:  1 << 20,
	}
}

// Validate checks the configuration
func (c *ParseConfig) Validate() error {
	if c.Delimiter != 0 {
		valid := false
		for _, d := range candidateDelimiters {
			if c.Delimiter == d {
				valid = true
				break
			}
		}
		if !valid {
			return fmt.Errorf("unsupported delimiter %q", c.Delimiter)
		}
	}

	if _, err := ParseEncoding(string(c.Encoding)); err != nil {
		return err
	}

	if c.MaxFieldSize < 0 {
		return fmt.Errorf("max field size must not be negative, got %d", c.MaxFieldSize)
	}

	return nil
}
