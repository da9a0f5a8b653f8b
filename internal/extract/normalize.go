package extract

import (
	"math"
	"strconv"
	"strings"
)

// NormalizeNumber keeps digits, dots and a leading minus sign, then parses
// the remainder. It returns nil when nothing numeric is left.
func NormalizeNumber(s string) *float64 {
	var b strings.Builder
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9', r == '.':
			b.WriteRune(r)
		case r == '-' && b.Len() == 0:
			b.WriteRune(r)
		}
	}
	cleaned := b.String()
	if cleaned == "" || cleaned == "-" {
		return nil
	}
	if strings.Contains(cleaned, ".") {
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return nil
		}
		return &f
	}
	n, err := strconv.ParseInt(cleaned, 10, 64)
	if err != nil {
		// Beyond int64; FormatNumber can emit these for large floats.
		f, ferr := strconv.ParseFloat(cleaned, 64)
		if ferr != nil || math.IsInf(f, 0) {
			return nil
		}
		return &f
	}
	f := float64(n)
	return &f
}

// FormatNumber renders a normalized number in its shortest exact form.
func FormatNumber(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// NormalizeText trims s and collapses whitespace runs to a single space.
func NormalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
