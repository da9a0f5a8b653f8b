package extract

import (
	"regexp"
	"strings"
)

var (
	currencyRe  = regexp.MustCompile(`[$€£]\s*[0-9,]+(\.[0-9]+)?`)
	thousandsRe = regexp.MustCompile(`\b[0-9]{1,3}(,[0-9]{3})*(\.[0-9]+)?\b`)
)

// Heuristic returns the first currency amount in s, or failing that the
// first bare number with optional thousands grouping.
func Heuristic(s string) (string, bool) {
	if m := currencyRe.FindString(s); m != "" {
		return strings.TrimSpace(m), true
	}
	if m := thousandsRe.FindString(s); m != "" {
		return m, true
	}
	return "", false
}
