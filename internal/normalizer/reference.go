package normalizer

import (
	"regexp"
	"strings"

	"golang-pv-reconciliation/internal/models"
)

// ReferencePrefix is the prefix of every canonical reference code
const ReferencePrefix = "PV"

const referenceDigits = 3

var (
	logCodePattern    = regexp.MustCompile(`LOG\s*0*(\d+)`)
	pvCodePattern     = regexp.MustCompile(`PV\s*0*(\d+)`)
	bareNumberPattern = regexp.MustCompile(`^0*(\d+)$`)
	multiDigitPattern = regexp.MustCompile(`\d{2,}`)
	digitsPattern     = regexp.MustCompile(`\d+`)
	nonAlnumPattern   = regexp.MustCompile(`[^A-Z0-9]`)
)

// ExtractReferenceCode returns the cell's point-of-sale code in canonical
// PV### form, or "" when the cell holds no digits.
func ExtractReferenceCode(cell models.Cell) string {
	if cell.IsEmpty() {
		return ""
	}
	return ExtractReferenceCodeString(cell.String())
}

// ExtractReferenceCodeString applies the extraction rules to free text.
// Rules are tried in order and the first that yields digits wins:
// LOG<n>, PV<n>, a bare number, the last run of two or more digits, the
// first digit run, and finally the digits of the alphanumeric residue.
func ExtractReferenceCodeString(s string) string {
	text := strings.ToUpper(strings.TrimSpace(s))
	if text == "" {
		return ""
	}

	if m := logCodePattern.FindStringSubmatch(text); m != nil {
		return canonicalCode(m[1])
	}
	if m := pvCodePattern.FindStringSubmatch(text); m != nil {
		return canonicalCode(m[1])
	}
	if m := bareNumberPattern.FindStringSubmatch(text); m != nil {
		return canonicalCode(m[1])
	}
	if runs := multiDigitPattern.FindAllString(text, -1); len(runs) > 0 {
		return canonicalCode(runs[len(runs)-1])
	}
	if run := digitsPattern.FindString(text); run != "" {
		return canonicalCode(run)
	}

	cleaned := nonAlnumPattern.ReplaceAllString(text, "")
	if len(cleaned) >= 2 {
		if run := digitsPattern.FindString(cleaned); run != "" {
			return canonicalCode(run)
		}
	}

	return ""
}

func canonicalCode(digits string) string {
	if n := referenceDigits - len(digits); n > 0 {
		digits = strings.Repeat("0", n) + digits
	}
	return ReferencePrefix + digits
}
