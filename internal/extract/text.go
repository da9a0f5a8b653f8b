package extract

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"
	"golang.org/x/net/html"

	"github.com/JakeFAU/pagewatch/internal/judge"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

const (
	// MaxTextChars caps the visible text sent to the judge.
	MaxTextChars = 100_000

	defaultConfidence   = 0.8
	salvageConfidence   = 0.6
	fallbackConfidence  = 0.4
	firstLineConfidence = 0.2
)

const textSystemPrompt = "You are a precise information extraction assistant. " +
	"You read web page text and return the single value the user asks for."

const textPromptTemplate = `Find the following in the page text below: %s

Return a JSON object with keys:
- "value": the value exactly as it appears on the page, or null if it is not present
- "normalized": the value as a plain number when it is numeric, otherwise null
- "confidence": a number between 0 and 1

Return ONLY valid JSON.

Page text:
%s`

// Extractor turns page content into an extraction result.
type Extractor struct {
	judge  judge.Judge
	logger *zap.Logger
}

// New builds an Extractor backed by j.
func New(j judge.Judge, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{judge: j, logger: logger}
}

// FromText extracts description from an HTML document.
func (e *Extractor) FromText(ctx context.Context, page, description string) (result watch.ExtractionResult) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("text extraction panicked", zap.Any("panic", r))
			result = watch.EmptyResult()
		}
	}()

	raw, err := e.judge.Complete(ctx, judge.Prompt{
		Purpose: judge.PurposeExtractText,
		System:  textSystemPrompt,
		Text:    fmt.Sprintf(textPromptTemplate, description, VisibleText(page)),
	})
	// Heuristic fallbacks scan the raw document, not the reduced text.
	content := truncateRunes(page, MaxTextChars)
	if err != nil {
		e.logger.Warn("text extraction judge failed, using heuristics", zap.Error(err))
		if v, ok := Heuristic(content); ok {
			return salvaged(v, fallbackConfidence, watch.TierHeuristic)
		}
		return watch.EmptyResult()
	}
	return decodeText(raw, content)
}

func decodeText(raw, content string) watch.ExtractionResult {
	rec, err := judge.DecodeExtraction(raw)
	if err == nil {
		if rec.Value == nil {
			return watch.EmptyResult()
		}
		normalized := rec.Normalized
		if normalized == nil {
			normalized = NormalizeNumber(*rec.Value)
		}
		confidence := defaultConfidence
		if rec.Confidence != nil {
			confidence = clamp(*rec.Confidence)
		}
		return watch.ExtractionResult{
			Value:      rec.Value,
			Normalized: normalized,
			Confidence: confidence,
			Tier:       watch.TierText,
		}
	}

	text := judge.Text(raw)
	if v, ok := Heuristic(text); ok {
		return salvaged(v, salvageConfidence, watch.TierHeuristic)
	}
	if v, ok := Heuristic(content); ok {
		return salvaged(v, salvageConfidence, watch.TierHeuristic)
	}
	if line := judge.FirstLine(raw); line != "" {
		return salvaged(line, firstLineConfidence, watch.TierText)
	}
	return watch.EmptyResult()
}

func salvaged(value string, confidence float64, tier watch.ExtractionTier) watch.ExtractionResult {
	return watch.ExtractionResult{
		Value:      &value,
		Normalized: NormalizeNumber(value),
		Confidence: confidence,
		Tier:       tier,
	}
}

// VisibleText reduces an HTML document to its rendered text, one text node
// per line so adjacent inline elements stay apart. Documents that fail to
// parse are used as-is. The result is capped at MaxTextChars.
func VisibleText(page string) string {
	text := page
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(page))
	if err == nil {
		doc.Find("script, style, noscript, template, svg").Remove()
		var b strings.Builder
		for _, n := range doc.Nodes {
			writeText(&b, n)
		}
		var lines []string
		for _, line := range strings.Split(b.String(), "\n") {
			if line = NormalizeText(line); line != "" {
				lines = append(lines, line)
			}
		}
		text = strings.Join(lines, "\n")
	}
	return truncateRunes(text, MaxTextChars)
}

func writeText(b *strings.Builder, n *html.Node) {
	if n.Type == html.TextNode {
		b.WriteString(n.Data)
		b.WriteByte('\n')
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		writeText(b, c)
	}
}

func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func clamp(f float64) float64 {
	switch {
	case math.IsNaN(f), f < 0:
		return 0
	case f > 1:
		return 1
	default:
		return f
	}
}
