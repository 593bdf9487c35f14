package normalize

import (
	"math"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

var amountNoise = strings.NewReplacer("\u00a0", "", "\u202f", "", "'", "", "\u2019", "", "`", "", "\u00b4", "")

// ParseAmount converts a raw amount into a decimal. Unparseable input yields
// zero so a bad cell never fails a whole statement.
func ParseAmount(raw any) decimal.Decimal {
	switch v := raw.(type) {
	case nil:
		return decimal.Zero
	case decimal.Decimal:
		return v
	case float64:
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return decimal.Zero
		}
		return decimal.NewFromFloat(v)
	case string:
		return parseAmountString(v)
	}
	if s, ok := stringify(raw); ok {
		return parseAmountString(s)
	}
	return decimal.Zero
}

func parseAmountString(s string) decimal.Decimal {
	n := SanitizeNumber(s)
	if n == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(n)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// SanitizeNumber rewrites a locale-formatted number into plain "-1234.56"
// form, or returns "" when nothing numeric is left.
//
// With both ',' and '.' present the right-most one is the decimal mark.
// With one kind of separator, a trailing group of 1-2 digits is a fraction
// when the separator occurs once or is ','; otherwise it groups thousands.
func SanitizeNumber(s string) string {
	s = amountNoise.Replace(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
	if s == "" {
		return ""
	}

	negative := false
	switch s[0] {
	case '-':
		negative = true
		s = s[1:]
	case '+':
		s = s[1:]
	}

	numeric := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == ',' || r == '.' || r == '-' {
			return r
		}
		return -1
	}, s)
	if numeric == "" {
		return ""
	}
	if numeric[0] == '-' {
		negative = true
	}
	numeric = strings.ReplaceAll(numeric, "-", "")

	sign := ""
	if negative {
		sign = "-"
	}

	lastComma := strings.LastIndex(numeric, ",")
	lastDot := strings.LastIndex(numeric, ".")

	if lastComma >= 0 && lastDot >= 0 {
		if lastComma > lastDot {
			numeric = strings.ReplaceAll(numeric, ".", "")
			numeric = strings.Replace(numeric, ",", ".", 1)
		} else {
			numeric = strings.ReplaceAll(numeric, ",", "")
		}
		return digitsOrEmpty(sign, numeric)
	}

	idx := lastComma
	if lastDot > idx {
		idx = lastDot
	}
	if idx < 0 {
		return digitsOrEmpty(sign, numeric)
	}

	sep := numeric[idx : idx+1]
	fraction := len(numeric) - idx - 1
	count := strings.Count(numeric, sep)

	if fraction > 0 && fraction <= 2 && (count == 1 || sep == ",") {
		intPart := strings.ReplaceAll(numeric[:idx], sep, "")
		intPart = strings.NewReplacer(",", "", ".", "").Replace(intPart)
		if intPart == "" {
			intPart = "0"
		}
		return digitsOrEmpty(sign, intPart+"."+numeric[idx+1:])
	}

	return digitsOrEmpty(sign, strings.ReplaceAll(numeric, sep, ""))
}

func digitsOrEmpty(sign, n string) string {
	if strings.Trim(n, ".") == "" {
		return ""
	}
	return sign + n
}
