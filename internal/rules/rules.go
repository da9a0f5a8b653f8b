// Package rules caches a structural XPath locator per monitor so repeat
// checks can read the value straight out of the DOM without a judge call.
package rules

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/antchfx/htmlquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/judge"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// MaxLearnHTMLChars caps the HTML sent to the judge when learning a rule.
const MaxLearnHTMLChars = 350_000

// ErrNoRule is returned when the judge does not produce an expression.
var ErrNoRule = errors.New("judge returned no extraction rule")

const learnPromptTemplate = `You are an assistant that finds reliable XPaths in HTML. Given the HTML and a human description of the element to extract, return the single best full XPath expression and nothing else.

Description: %s

HTML:
%s

Return only the full XPath expression on one line, no explanation.`

// TryStructural evaluates rule against doc and returns the normalized text
// of the first match. Invalid rules, misses and empty text all report false.
func TryStructural(doc, rule string) (value string, ok bool) {
	rule = strings.TrimSpace(rule)
	if rule == "" {
		return "", false
	}
	defer func() {
		if r := recover(); r != nil {
			value, ok = "", false
		}
	}()

	root, err := html.Parse(strings.NewReader(doc))
	if err != nil {
		return "", false
	}
	node, err := htmlquery.Query(root, rule)
	if err != nil || node == nil {
		return "", false
	}
	text := extract.NormalizeText(htmlquery.InnerText(node))
	if text == "" {
		return "", false
	}
	return text, true
}

// RuleWriter persists a learned rule onto its monitor.
type RuleWriter interface {
	UpdateExtractionRule(ctx context.Context, id string, rule string) error
}

// Cache resolves values through a monitor's stored rule, learning a new one
// from the judge on a miss.
type Cache struct {
	judge  judge.Judge
	store  RuleWriter
	logger *zap.Logger
}

// NewCache builds a rule cache.
func NewCache(j judge.Judge, store RuleWriter, logger *zap.Logger) *Cache {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Cache{judge: j, store: store, logger: logger}
}

// Learn asks the judge for an XPath locating description in doc.
func (c *Cache) Learn(ctx context.Context, doc, description string) (string, error) {
	if len(doc) > MaxLearnHTMLChars {
		doc = doc[:MaxLearnHTMLChars]
	}
	raw, err := c.judge.Complete(ctx, judge.Prompt{
		Purpose: judge.PurposeLocate,
		Text:    fmt.Sprintf(learnPromptTemplate, description, doc),
	})
	if err != nil {
		return "", fmt.Errorf("learn extraction rule: %w", err)
	}
	rule := judge.DecodeExpression(raw)
	if rule == "" {
		return "", ErrNoRule
	}
	return rule, nil
}

// Resolve returns the monitor's value from doc using the cached rule, or a
// freshly learned one. A learned rule is persisted only when it yields a value.
func (c *Cache) Resolve(ctx context.Context, m watch.Monitor, doc string) (string, watch.ExtractionTier, bool) {
	logger := c.logger.With(zap.String("monitor_id", m.ID))
	if m.ExtractionRule != nil {
		if v, ok := TryStructural(doc, *m.ExtractionRule); ok {
			return v, watch.TierCachedRule, true
		}
		logger.Debug("cached extraction rule missed", zap.String("rule", *m.ExtractionRule))
	}

	rule, err := c.Learn(ctx, doc, m.Description)
	if err != nil {
		logger.Warn("could not learn extraction rule", zap.Error(err))
		return "", watch.TierNone, false
	}
	v, ok := TryStructural(doc, rule)
	if !ok {
		logger.Debug("learned extraction rule yielded nothing", zap.String("rule", rule))
		return "", watch.TierNone, false
	}
	if c.store != nil {
		if err := c.store.UpdateExtractionRule(ctx, m.ID, rule); err != nil {
			logger.Warn("persist extraction rule", zap.Error(err))
		}
	}
	return v, watch.TierLearnedRule, true
}
