package judge

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ErrNoRecord is returned when a response carries no JSON object.
var ErrNoRecord = errors.New("judge response has no JSON object")

var (
	fenceRe  = regexp.MustCompile("(?s)```([A-Za-z0-9_+-]*)[ \t]*\r?\n?(.*?)(?:```|$)")
	digitsRe = regexp.MustCompile(`\d+`)
)

// StripFences returns the body of the first fenced code block in s, or s
// trimmed when it has no fence.
func StripFences(s string) string {
	t := strings.TrimSpace(s)
	m := fenceRe.FindStringSubmatch(t)
	if m == nil {
		return t
	}
	body := strings.TrimSpace(m[2])
	if body == "" {
		// ```true``` parses the answer as the language tag.
		return strings.TrimSpace(m[1])
	}
	return body
}

// DecodeRecord unmarshals the outermost JSON object in raw into v.
func DecodeRecord(raw string, v any) error {
	body := StripFences(raw)
	start := strings.IndexByte(body, '{')
	end := strings.LastIndexByte(body, '}')
	if start < 0 || end <= start {
		return ErrNoRecord
	}
	if err := json.Unmarshal([]byte(body[start:end+1]), v); err != nil {
		return fmt.Errorf("decode judge record: %w", err)
	}
	return nil
}

// Extraction is the {value, normalized, confidence} record. Fields the
// judge omitted, nulled, or typed unusably are nil.
type Extraction struct {
	Value      *string
	Normalized *float64
	Confidence *float64
}

// DecodeExtraction reads an extraction record, accepting numbers or
// strings for every field.
func DecodeExtraction(raw string) (Extraction, error) {
	var rec struct {
		Value      any `json:"value"`
		Normalized any `json:"normalized"`
		Confidence any `json:"confidence"`
	}
	if err := DecodeRecord(raw, &rec); err != nil {
		return Extraction{}, err
	}
	return Extraction{
		Value:      scalarString(rec.Value),
		Normalized: scalarFloat(rec.Normalized),
		Confidence: scalarFloat(rec.Confidence),
	}, nil
}

// Text returns the unfenced, trimmed response.
func Text(raw string) string {
	return StripFences(raw)
}

// FirstLine returns the first non-empty line of the unfenced response.
func FirstLine(raw string) string {
	for _, line := range strings.Split(StripFences(raw), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

// DecodeExpression returns a single-line answer with wrapping quotes and
// backticks removed.
func DecodeExpression(raw string) string {
	return strings.Trim(FirstLine(raw), "`'\" ")
}

// DecodeInt returns the first integer in the response.
func DecodeInt(raw string) (int, error) {
	digits := digitsRe.FindString(StripFences(raw))
	if digits == "" {
		return 0, fmt.Errorf("no integer in judge response %q", truncate(raw, 64))
	}
	n, err := strconv.Atoi(digits)
	if err != nil {
		return 0, fmt.Errorf("parse judge integer: %w", err)
	}
	return n, nil
}

// DecodeVerdict reports whether the response contains "true", ignoring case.
func DecodeVerdict(raw string) bool {
	return strings.Contains(strings.ToLower(raw), "true")
}

func scalarString(v any) *string {
	var s string
	switch t := v.(type) {
	case string:
		s = strings.TrimSpace(t)
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		s = strconv.FormatBool(t)
	default:
		return nil
	}
	if s == "" {
		return nil
	}
	return &s
}

// scalarFloat accepts finite numbers only; "NaN" and "Inf" parse but are
// not values.
func scalarFloat(v any) *float64 {
	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return nil
		}
		f = parsed
	default:
		return nil
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
