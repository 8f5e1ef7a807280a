package normalizer

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"golang-pv-reconciliation/internal/models"
)

func TestNormalizeDate(t *testing.T) {
	tests := []struct {
		name string
		cell models.Cell
		want string
	}{
		{"native date", models.DateCell(time.Date(2024, 1, 5, 13, 45, 0, 0, time.UTC)), "2024-01-05"},
		{"iso passthrough", models.TextCell("2024-01-05"), "2024-01-05"},
		{"iso with spaces", models.TextCell("  2024-01-05 "), "2024-01-05"},
		{"day first slash", models.TextCell("5/1/2024"), "2024-01-05"},
		{"day first dash", models.TextCell("05-01-2024"), "2024-01-05"},
		{"day first dot", models.TextCell("5.1.2024"), "2024-01-05"},
		{"year first slash", models.TextCell("2024/1/5"), "2024-01-05"},
		{"year first dot", models.TextCell("2024.01.05"), "2024-01-05"},
		{"invalid month", models.TextCell("13/13/2024"), ""},
		{"invalid day", models.TextCell("32/01/2024"), ""},
		{"year too old", models.TextCell("01/01/1899"), ""},
		{"year too new", models.TextCell("2101/01/01"), ""},
		{"datetime", models.TextCell("2024-01-05 10:30:00"), "2024-01-05"},
		{"rfc3339", models.TextCell("2024-01-05T10:30:00Z"), "2024-01-05"},
		{"day first datetime", models.TextCell("05/01/2024 10:30"), "2024-01-05"},
		{"two digit year", models.TextCell("05/01/24"), "2024-01-05"},
		{"month name", models.TextCell("15 Jan 2024"), "2024-01-15"},
		{"month first words", models.TextCell("Jan 15, 2024"), "2024-01-15"},
		{"compact", models.TextCell("20240105"), "2024-01-05"},
		{"garbage", models.TextCell("not a date"), ""},
		{"blank text", models.TextCell("   "), ""},
		{"serial", models.NumberCell(45296), "2024-01-05"},
		{"serial with time", models.NumberCell(45296.75), "2024-01-05"},
		{"serial lower bound", models.NumberCell(1), ""},
		{"serial upper bound", models.NumberCell(1_000_000), ""},
		{"negative", models.NumberCell(-3), ""},
		{"empty", models.EmptyCell(), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NormalizeDate(tt.cell); got != tt.want {
				t.Errorf("NormalizeDate(%q) = %q, want %q", tt.cell.String(), got, tt.want)
			}
		})
	}
}

func TestNormalizeDateWithTime(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"2024/01/05 10:30", "2024-01-05"},
		{"2024/01/05 10:30:00", "2024-01-05"},
		{"2024/1/5 9:05", "2024-01-05"},
		{"2024.01.05 10:30:00", "2024-01-05"},
		{"2024-01-05 10:30", "2024-01-05"},
		{"2024-01-05T10:30:00", "2024-01-05"},
		{"2024-01-05T10:30:00.000", "2024-01-05"},
		{"05/01/2024 10:30:00", "2024-01-05"},
		{"5/1/2024 9:05", "2024-01-05"},
		{"05-01-2024 10:30", "2024-01-05"},
		{"05-01-2024 10:30:00", "2024-01-05"},
		{"5-1-2024 10:30", "2024-01-05"},
		{"05.01.2024 10:30", "2024-01-05"},
		{"05.01.2024 10:30:00", "2024-01-05"},
		{"5.1.2024 23:59:59", "2024-01-05"},
		{"05/01/2024 24:00", ""},
		{"05/01/2024 10:61", ""},
		{"2024/01/05 10:30:75", ""},
		{"32/01/2024 10:30", ""},
		{"05/01/2024 10", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			if got := NormalizeDateString(tt.in); got != tt.want {
				t.Errorf("NormalizeDateString(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeDateIdempotent(t *testing.T) {
	inputs := []string{
		"2024-01-05", "5/1/2024", "31-12-2023", "2024.2.29", "1.3.2000",
		"15 Jan 2024", "2024-01-05T10:30:00Z", "05/01/24", "garbage", "",
	}

	for _, in := range inputs {
		once := NormalizeDateString(in)
		twice := NormalizeDateString(once)
		if once != twice {
			t.Errorf("NormalizeDateString not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestExtractReferenceCode(t *testing.T) {
	tests := []struct {
		name string
		cell models.Cell
		want string
	}{
		{"log prefix", models.TextCell("LOG81"), "PV081"},
		{"log lowercase spaced", models.TextCell("log 0081"), "PV081"},
		{"pv prefix", models.TextCell("PV7"), "PV007"},
		{"pv spaced", models.TextCell("pv  12"), "PV012"},
		{"pv long", models.TextCell("PV1234"), "PV1234"},
		{"log wins over pv", models.TextCell("PV5 LOG9"), "PV009"},
		{"bare number", models.TextCell("81"), "PV081"},
		{"leading zeros", models.TextCell("0007"), "PV007"},
		{"only zeros", models.TextCell("000"), "PV000"},
		{"last multi digit run", models.TextCell("Tienda 5 sucursal 123"), "PV123"},
		{"multi digit run keeps zeros", models.TextCell("Deposito 0081"), "PV0081"},
		{"single digits", models.TextCell("A1B2"), "PV001"},
		{"pv with dash", models.TextCell("PV-12"), "PV012"},
		{"no digits", models.TextCell("ABC"), ""},
		{"empty string", models.TextCell(""), ""},
		{"empty cell", models.EmptyCell(), ""},
		{"numeric cell", models.NumberCell(81), "PV081"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExtractReferenceCode(tt.cell); got != tt.want {
				t.Errorf("ExtractReferenceCode(%q) = %q, want %q", tt.cell.String(), got, tt.want)
			}
		})
	}
}

func TestNormalizeAmount(t *testing.T) {
	tests := []struct {
		name string
		cell models.Cell
		want string
	}{
		{"european", models.TextCell("1.234,56"), "1234.56"},
		{"american", models.TextCell("1,234.56"), "1234.56"},
		{"negative", models.TextCell("-50"), "50"},
		{"currency and spaces", models.TextCell("$ 1,234.56"), "1234.56"},
		{"euro european", models.TextCell("€1.234,56"), "1234.56"},
		{"decimal comma", models.TextCell("12,5"), "12.5"},
		{"decimal comma two digits", models.TextCell("-12,50"), "12.5"},
		{"thousands comma", models.TextCell("1,234"), "1234"},
		{"multiple thousands commas", models.TextCell("1,234,567"), "1234567"},
		{"ambiguous dots", models.TextCell("1.234.567"), "0"},
		{"parenthesised", models.TextCell("(100)"), "100"},
		{"padded", models.TextCell(" 100 "), "100"},
		{"letters", models.TextCell("abc"), "0"},
		{"number", models.NumberCell(-50.25), "50.25"},
		{"empty", models.EmptyCell(), "0"},
		{"date cell", models.DateCell(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)), "0"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := decimal.RequireFromString(tt.want)
			if got := NormalizeAmount(tt.cell); !got.Equal(want) {
				t.Errorf("NormalizeAmount(%q) = %s, want %s", tt.cell.String(), got, want)
			}
		})
	}
}

func TestNormalizeAmountNeverNegative(t *testing.T) {
	inputs := []string{"-1", "--1", "-0,5", "1-", "-1.234,56", "- 7"}
	for _, in := range inputs {
		if got := NormalizeAmountString(in); got.IsNegative() {
			t.Errorf("NormalizeAmountString(%q) = %s, want non-negative", in, got)
		}
	}
}

func TestAmountKey(t *testing.T) {
	tests := []struct {
		amount string
		want   string
	}{
		{"100", "100"},
		{"100.5", "100.5"},
		{"100.50", "100.5"},
		{"100.05", "100.05"},
		{"0", "0"},
		{"10.004", "10"},
		{"1234.567", "1234.57"},
	}

	for _, tt := range tests {
		t.Run(tt.amount, func(t *testing.T) {
			if got := AmountKey(decimal.RequireFromString(tt.amount)); got != tt.want {
				t.Errorf("AmountKey(%s) = %q, want %q", tt.amount, got, tt.want)
			}
		})
	}
}

func TestRoundAmount(t *testing.T) {
	got := RoundAmount(decimal.RequireFromString("10.456"))
	if !got.Equal(decimal.RequireFromString("10.46")) {
		t.Errorf("RoundAmount(10.456) = %s, want 10.46", got)
	}
}
