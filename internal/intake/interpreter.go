// Package intake turns a free-text monitoring request into a stored,
// scheduled monitor.
package intake

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/judge"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

const interpretPrompt = `You are a structured data extractor. Analyze the following request to identify the specific parameter being monitored, the mandatory notification frequency, the trigger condition, and any provided URL. Format the output as a JSON object with the keys 'description', 'interval', 'condition', and 'url'.
Formatting Rules:
'description': A brief, noun-based phrase identifying what is being checked (e.g., 'price of item', 'stock level', 'web page content').
'interval': The required notification frequency (e.g., '3 hours', 'daily', 'none' if only a condition is set).
'condition': The trigger for notification (e.g., 'less than $100', 'equal to 'Out of Stock'', 'any change').
'url': The full URL if provided in the text; otherwise, use the value 'none'.

Request: %s`

const intervalPrompt = `Extract a monitoring interval in seconds from this short description. If no interval specified, return %d.

Description: "%s"

Return only the number.`

var intervalRe = regexp.MustCompile(`every\s+(\d+)\s*(minute|hour|second|day)s?`)

// Per-unit floors, in seconds.
const (
	minSeconds = 10
	minMinutes = 30
	minHours   = 3600
	minDays    = 86400
)

// Request is the structured form of a monitoring request.
type Request struct {
	Description string
	Interval    string
	Condition   string
	URL         string
}

// Interpreter asks the judge to structure free-text requests.
type Interpreter struct {
	judge           judge.Judge
	defaultInterval int
	logger          *zap.Logger
}

// NewInterpreter builds an Interpreter. defaultInterval <= 0 uses
// watch.DefaultIntervalSeconds.
func NewInterpreter(j judge.Judge, defaultInterval int, logger *zap.Logger) *Interpreter {
	if defaultInterval <= 0 {
		defaultInterval = watch.DefaultIntervalSeconds
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Interpreter{judge: j, defaultInterval: defaultInterval, logger: logger.Named("intake")}
}

// Parse structures text with one judge call. When the judge fails or answers
// with something that is not a record, the raw text becomes the description
// and fallbackURL the URL.
func (i *Interpreter) Parse(ctx context.Context, text, fallbackURL string) Request {
	fallback := Request{Description: text, URL: fallbackURL}
	raw, err := i.judge.Complete(ctx, judge.Prompt{
		Purpose: judge.PurposeInterpret,
		Text:    fmt.Sprintf(interpretPrompt, text),
	})
	if err != nil {
		i.logger.Warn("interpret request failed", zap.Error(err))
		return fallback
	}
	var rec struct {
		Description any `json:"description"`
		Interval    any `json:"interval"`
		Condition   any `json:"condition"`
		URL         any `json:"url"`
	}
	if err := judge.DecodeRecord(raw, &rec); err != nil {
		i.logger.Warn("interpret response not a record", zap.Error(err))
		return fallback
	}
	req := Request{
		Description: field(rec.Description),
		Interval:    field(rec.Interval),
		Condition:   field(rec.Condition),
		URL:         field(rec.URL),
	}
	if req.Description == "" {
		req.Description = text
	}
	if strings.EqualFold(req.URL, "none") || req.URL == "" {
		req.URL = fallbackURL
	}
	if strings.EqualFold(req.Interval, "none") {
		req.Interval = ""
	}
	return req
}

// ParseInterval converts an interval phrase to seconds. "every N <unit>" is
// read directly with per-unit minimums; anything else is asked of the judge,
// and the default is used when that fails too.
func (i *Interpreter) ParseInterval(ctx context.Context, text string) int {
	if seconds, ok := matchInterval(text); ok {
		return seconds
	}
	raw, err := i.judge.Complete(ctx, judge.Prompt{
		Purpose: judge.PurposeInterval,
		Text:    fmt.Sprintf(intervalPrompt, i.defaultInterval, text),
	})
	if err != nil {
		i.logger.Debug("interval judge failed", zap.Error(err))
		return i.defaultInterval
	}
	n, err := judge.DecodeInt(raw)
	if err != nil || n <= 0 {
		return i.defaultInterval
	}
	return max(minSeconds, n)
}

func matchInterval(text string) (int, bool) {
	m := intervalRe.FindStringSubmatch(strings.ToLower(text))
	if m == nil {
		return 0, false
	}
	value, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	switch m[2] {
	case "second":
		return max(minSeconds, value), true
	case "minute":
		return max(minMinutes, value*60), true
	case "hour":
		return max(minHours, value*3600), true
	default:
		return max(minDays, value*86400), true
	}
}

func field(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}
