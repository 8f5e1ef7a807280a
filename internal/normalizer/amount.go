package normalizer

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"golang-pv-reconciliation/internal/models"
)

// AmountPlaces is the number of fractional digits kept on record amounts
const AmountPlaces = 2

var (
	currencyPattern     = regexp.MustCompile(`[$€£¥₱₹¢\s]`)
	decimalCommaPattern = regexp.MustCompile(`,\d{1,2}$`)
	nonNumericPattern   = regexp.MustCompile(`[^0-9.\-]`)
)

// NormalizeAmount returns the magnitude of the cell as a decimal, or zero
// when the cell holds no readable number.
func NormalizeAmount(cell models.Cell) decimal.Decimal {
	switch cell.Kind() {
	case models.CellNumber:
		n, _ := cell.Number()
		return decimal.NewFromFloat(math.Abs(n))
	case models.CellText:
		s, _ := cell.Text()
		return NormalizeAmountString(s)
	default:
		return decimal.Zero
	}
}

// NormalizeAmountString parses a formatted amount. When both ',' and '.'
// occur the one appearing last is the decimal separator. A lone ',' is a
// decimal separator only when one or two digits follow it at the end.
func NormalizeAmountString(s string) decimal.Decimal {
	text := currencyPattern.ReplaceAllString(s, "")
	if text == "" {
		return decimal.Zero
	}

	hasComma := strings.Contains(text, ",")
	hasDot := strings.Contains(text, ".")

	switch {
	case hasComma && hasDot:
		if strings.LastIndex(text, ",") > strings.LastIndex(text, ".") {
			text = strings.ReplaceAll(text, ".", "")
			text = strings.ReplaceAll(text, ",", ".")
		} else {
			text = strings.ReplaceAll(text, ",", "")
		}
	case hasComma:
		if decimalCommaPattern.MatchString(text) {
			text = strings.ReplaceAll(text, ",", ".")
		} else {
			text = strings.ReplaceAll(text, ",", "")
		}
	}

	text = nonNumericPattern.ReplaceAllString(text, "")
	f, err := strconv.ParseFloat(text, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return decimal.Zero
	}

	return decimal.NewFromFloat(math.Abs(f))
}

// RoundAmount rounds an amount to AmountPlaces fractional digits
func RoundAmount(d decimal.Decimal) decimal.Decimal {
	return d.Round(AmountPlaces)
}

// AmountKey renders an amount for use in lookup keys: two decimals with
// trailing zeros and a trailing dot removed, so 100.50 becomes "100.5" and
// 100.00 becomes "100".
func AmountKey(d decimal.Decimal) string {
	s := d.StringFixed(AmountPlaces)
	s = strings.TrimRight(s, "0")
	s = strings.TrimRight(s, ".")
	if s == "" || s == "-" {
		return "0"
	}
	return s
}
