package detector

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"
)

//go:embed synonyms.yaml
var defaultSynonymsYAML []byte

// Field is one of the logical fields of a normalized record
type Field string

// Logical fields
const (
	FieldDate        Field = "date"
	FieldAmount      Field = "amount"
	FieldReference   Field = "reference"
	FieldDescription Field = "description"
)

// Fields lists the logical fields in detection priority order
var Fields = []Field{FieldDate, FieldAmount, FieldReference, FieldDescription}

// ParseField converts a field name into a Field
func ParseField(s string) (Field, error) {
	f := Field(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range Fields {
		if f == known {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown field %q (expected date, amount, reference or description)", s)
}

// SynonymTable holds, per field, the ordered column names that identify it.
// Earlier entries win over later ones.
type SynonymTable struct {
	Date        []string `yaml:"date" json:"date"`
	Amount      []string `yaml:"amount" json:"amount"`
	Reference   []string `yaml:"reference" json:"reference"`
	Description []string `yaml:"description" json:"description"`
}

// synonymFile is the on-disk layout. Mode "extend" (the default) appends
// the listed names to the built-in table; "replace" swaps out every field
// the file lists.
type synonymFile struct {
	Mode string `yaml:"mode"`
	SynonymTable `yaml:",inline"`
}

// For returns the synonyms of one field
func (s *SynonymTable) For(field Field) []string {
	switch field {
	case FieldDate:
		return s.Date
	case FieldAmount:
		return s.Amount
	case FieldReference:
		return s.Reference
	case FieldDescription:
		return s.Description
	default:
		return nil
	}
}

func (s *SynonymTable) set(field Field, values []string) {
	switch field {
	case FieldDate:
		s.Date = values
	case FieldAmount:
		s.Amount = values
	case FieldReference:
		s.Reference = values
	case FieldDescription:
		s.Description = values
	}
}

// Clone returns a deep copy of the table
func (s *SynonymTable) Clone() *SynonymTable {
	clone := &SynonymTable{}
	for _, f := range Fields {
		clone.set(f, append([]string(nil), s.For(f)...))
	}
	return clone
}

// Validate checks that the mandatory fields have at least one synonym
func (s *SynonymTable) Validate() error {
	if len(s.Date) == 0 {
		return fmt.Errorf("synonym table has no date synonyms")
	}
	if len(s.Amount) == 0 {
		return fmt.Errorf("synonym table has no amount synonyms")
	}
	return nil
}

var builtinSynonyms = mustParseDefault()

func mustParseDefault() *SynonymTable {
	var table SynonymTable
	if err := yaml.Unmarshal(defaultSynonymsYAML, &table); err != nil {
		panic(fmt.Sprintf("detector: invalid built-in synonym table: %v", err))
	}
	table.normalize()
	return &table
}

// DefaultSynonymTable returns a copy of the built-in synonym table
func DefaultSynonymTable() *SynonymTable {
	return builtinSynonyms.Clone()
}

// LoadSynonymTable reads a YAML synonym file and merges it with the
// built-in table according to its mode.
func LoadSynonymTable(r io.Reader) (*SynonymTable, error) {
	var file synonymFile
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&file); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode synonym table: %w", err)
	}
	file.normalize()

	table := DefaultSynonymTable()
	switch strings.ToLower(file.Mode) {
	case "", "extend":
		for _, f := range Fields {
			table.set(f, dedupe(append(table.For(f), file.For(f)...)))
		}
	case "replace":
		for _, f := range Fields {
			if values := file.For(f); len(values) > 0 {
				table.set(f, values)
			}
		}
	default:
		return nil, fmt.Errorf("unknown synonym table mode %q (expected extend or replace)", file.Mode)
	}

	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// LoadSynonymFile reads a synonym table from a YAML file
func LoadSynonymFile(path string) (*SynonymTable, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return LoadSynonymTable(bytes.NewReader(data))
}

func (s *SynonymTable) normalize() {
	for _, f := range Fields {
		values := s.For(f)
		out := make([]string, 0, len(values))
		for _, v := range values {
			if n := NormalizeColumnName(v); n != "" {
				out = append(out, n)
			}
		}
		s.set(f, dedupe(out))
	}
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0:0]
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}

var separatorPattern = regexp.MustCompile(`[_\s\-./]`)

// NormalizeColumnName lowercases a column name, folds accents and removes
// spaces, underscores, dashes, dots and slashes: "Fecha de Operación"
// becomes "fechadeoperacion".
func NormalizeColumnName(name string) string {
	folded, _, err := transform.String(accentFolder(), name)
	if err != nil {
		folded = name
	}
	folded = strings.ToLower(strings.TrimSpace(folded))
	return separatorPattern.ReplaceAllString(folded, "")
}

// transform.Transformer values keep state, so each call gets a fresh chain.
func accentFolder() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}
