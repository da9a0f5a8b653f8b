// Package watch defines core types shared across subsystems.
package watch

import (
	"net/http"
	"time"
)

// Status is the terminal state of one check.
type Status string

// Check status values returned by the orchestrator.
const (
	StatusChecked         Status = "checked"
	StatusMonitorNotFound Status = "monitor_not_found"
	StatusError           Status = "error"
)

// DefaultIntervalSeconds is used when a monitor cannot supply its own interval.
const DefaultIntervalSeconds = 7200

// Monitor is a persistent watch on one URL, field, and condition.
type Monitor struct {
	ID              string     `json:"id"`
	URL             string     `json:"url"`
	Description     string     `json:"description"`
	Condition       string     `json:"condition"`
	IntervalSeconds int        `json:"interval_seconds"`
	LastValue       *string    `json:"last_value,omitempty"`
	LastConfidence  *float64   `json:"last_confidence,omitempty"`
	LastCheckedAt   *time.Time `json:"last_checked_at,omitempty"`
	ExtractionRule  *string    `json:"extraction_rule,omitempty"`
	ConditionMet    bool       `json:"condition_met"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Interval returns the monitor's check period, falling back to the default.
func (m Monitor) Interval() time.Duration {
	if m.IntervalSeconds <= 0 {
		return DefaultIntervalSeconds * time.Second
	}
	return time.Duration(m.IntervalSeconds) * time.Second
}

// Observation is what one check writes back onto its monitor.
type Observation struct {
	Value        *string
	Confidence   float64
	ConditionMet bool
	CheckedAt    time.Time
}

// ExtractionTier names the strategy that produced an extraction result.
type ExtractionTier string

// Extraction tiers in the order they are attempted.
const (
	TierCachedRule  ExtractionTier = "cached_rule"
	TierLearnedRule ExtractionTier = "learned_rule"
	TierText        ExtractionTier = "text"
	TierHeuristic   ExtractionTier = "heuristic"
	TierVision      ExtractionTier = "vision"
	TierNone        ExtractionTier = "none"
)

// ExtractionResult is the value the extractor found plus how sure it is.
// Confidence is 0.0 whenever Value is nil.
type ExtractionResult struct {
	Value      *string        `json:"value"`
	Normalized *float64       `json:"normalized"`
	Confidence float64        `json:"confidence"`
	Tier       ExtractionTier `json:"tier"`
}

// HasValue reports whether a non-empty value was extracted.
func (r ExtractionResult) HasValue() bool {
	return r.Value != nil && *r.Value != ""
}

// EmptyResult is the degraded result every extraction failure collapses to.
func EmptyResult() ExtractionResult {
	return ExtractionResult{Tier: TierNone}
}

// CheckOutcome is returned to the scheduler after each check.
type CheckOutcome struct {
	IntervalSeconds int    `json:"intervalSeconds"`
	Status          Status `json:"status"`
}

// CheckRequest identifies the monitor to check. URL, Description and
// Condition override the stored monitor fields when non-empty.
type CheckRequest struct {
	MonitorID   string `json:"monitor_id"`
	URL         string `json:"url,omitempty"`
	Description string `json:"description,omitempty"`
	Condition   string `json:"condition,omitempty"`
}

// AcquireTier names the content acquisition tier that produced a page.
type AcquireTier string

// Acquisition tiers, cheapest first.
const (
	AcquireLight      AcquireTier = "light"
	AcquireRendered   AcquireTier = "rendered"
	AcquireScreenshot AcquireTier = "screenshot"
)

// PageContent is either serialized HTML or a full-page PNG.
type PageContent struct {
	URL        string
	Tier       AcquireTier
	StatusCode int
	HTML       string
	Image      []byte
	Duration   time.Duration
}

// IsImage reports whether the content is a screenshot.
func (p PageContent) IsImage() bool {
	return len(p.Image) > 0
}

// FetchRequest captures everything needed to fetch a URL.
type FetchRequest struct {
	URL     string
	Headers http.Header
}

// FetchResponse is the raw result of one fetch tier.
type FetchResponse struct {
	URL          string
	StatusCode   int
	Headers      http.Header
	Body         []byte
	Duration     time.Duration
	UsedHeadless bool
}

// Notification is the payload published when a condition is satisfied.
type Notification struct {
	Subject     string    `json:"subject"`
	Body        string    `json:"body"`
	MonitorID   string    `json:"monitor_id"`
	URL         string    `json:"url"`
	Description string    `json:"description"`
	OldValue    *string   `json:"old_value"`
	NewValue    *string   `json:"new_value"`
	Confidence  float64   `json:"confidence"`
	EvidenceURI string    `json:"evidence_uri,omitempty"`
	SentAt      time.Time `json:"sent_at"`
}

// QueueItem wraps a check ready to run.
type QueueItem struct {
	Request   CheckRequest
	Submitted time.Time
}
