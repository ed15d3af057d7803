package importer

import (
	"math"
	"strconv"
	"strings"
)

// ParseMoney coerces a currency-formatted cell into a float. Every character
// other than digits, the decimal point, and the minus sign is stripped before
// parsing, so "$1,234.50" yields 1234.5. Empty or unparseable input yields 0;
// malformed cells contribute no value rather than failing the import.
func ParseMoney(raw string) float64 {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0
	}

	var b strings.Builder
	for _, r := range s {
		if (r >= '0' && r <= '9') || r == '.' || r == '-' {
			b.WriteRune(r)
		}
	}

	v, err := strconv.ParseFloat(b.String(), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}

// ParseNumber coerces a plain numeric cell into a float, yielding 0 for
// empty, missing, or unparseable input.
func ParseNumber(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
