// Package check runs one monitor check: acquire content, extract the value,
// evaluate the condition, then notify and persist. Every failure inside the
// pipeline is converted into a CheckOutcome; nothing escapes Check.
package check

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/extract"
	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Policy selects how content is acquired and which extractors run.
type Policy string

// Acquisition policies.
const (
	// PolicyEscalate reads HTML first and falls back to a screenshot when
	// the text result is missing or weak.
	PolicyEscalate Policy = "escalate"
	// PolicyVision always reads the value off a screenshot.
	PolicyVision Policy = "vision"
)

// NotifyMode decides which satisfying checks publish a notification.
type NotifyMode string

// Notify modes.
const (
	NotifyEveryMatch NotifyMode = "every_match"
	NotifyTransition NotifyMode = "transition"
)

// Acquirer is the content acquisition surface the orchestrator needs.
type Acquirer interface {
	AcquireHTML(ctx context.Context, url string) (watch.PageContent, error)
	CaptureScreenshot(ctx context.Context, url string) (watch.PageContent, error)
}

// Extractor reads a value out of HTML or a screenshot.
type Extractor interface {
	FromText(ctx context.Context, html, description string) watch.ExtractionResult
	FromImage(ctx context.Context, png []byte, description string) watch.ExtractionResult
}

// RuleResolver reads a value through a cached structural rule.
type RuleResolver interface {
	Resolve(ctx context.Context, m watch.Monitor, html string) (string, watch.ExtractionTier, bool)
}

// Evaluator decides whether a value satisfies a condition.
type Evaluator interface {
	Evaluate(ctx context.Context, value, condition string) bool
}

// Config tunes the orchestrator.
type Config struct {
	Policy                 Policy
	LowConfidence          float64
	VisionConfidence       float64
	RuleConfidence         float64
	DefaultIntervalSeconds int
	NotifyMode             NotifyMode
	Topic                  string
	Subject                string
	ArtifactPrefix         string
}

// Deps are the orchestrator's collaborators. Rules, Blobs, Hasher, Clock
// and Tracer are optional.
type Deps struct {
	Store     watch.MonitorStore
	Acquirer  Acquirer
	Extractor Extractor
	Rules     RuleResolver
	Evaluator Evaluator
	Publisher watch.Publisher
	Blobs     watch.BlobStore
	Hasher    watch.Hasher
	Clock     watch.Clock
	Tracer    trace.Tracer
}

// Orchestrator runs checks.
type Orchestrator struct {
	deps   Deps
	cfg    Config
	logger *zap.Logger
}

// New builds an Orchestrator, filling config defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) *Orchestrator {
	if cfg.Policy == "" {
		cfg.Policy = PolicyEscalate
	}
	if cfg.LowConfidence <= 0 {
		cfg.LowConfidence = 0.45
	}
	if cfg.VisionConfidence <= 0 {
		cfg.VisionConfidence = 0.5
	}
	if cfg.RuleConfidence <= 0 {
		cfg.RuleConfidence = 0.9
	}
	if cfg.DefaultIntervalSeconds <= 0 {
		cfg.DefaultIntervalSeconds = watch.DefaultIntervalSeconds
	}
	if cfg.NotifyMode == "" {
		cfg.NotifyMode = NotifyEveryMatch
	}
	if cfg.ArtifactPrefix == "" {
		cfg.ArtifactPrefix = "evidence"
	}
	if deps.Tracer == nil {
		deps.Tracer = otel.Tracer("github.com/JakeFAU/pagewatch/internal/check")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Orchestrator{deps: deps, cfg: cfg, logger: logger.Named("check")}
}

// extraction is what the acquire+extract stage hands to the decision stage.
type extraction struct {
	result     watch.ExtractionResult
	screenshot []byte
}

// Check runs the pipeline for one monitor.
func (o *Orchestrator) Check(ctx context.Context, req watch.CheckRequest) (outcome watch.CheckOutcome) {
	start := time.Now()
	ctx, span := o.deps.Tracer.Start(ctx, "check.run",
		trace.WithAttributes(attribute.String("monitor.id", req.MonitorID)))
	logger := o.logger.With(zap.String("monitor_id", req.MonitorID))

	defer func() {
		if r := recover(); r != nil {
			logger.Error("check panicked", zap.Any("panic", r), zap.Stack("stack"))
			span.SetStatus(codes.Error, "panic")
			outcome = o.outcome(watch.StatusError, 0)
		}
		span.SetAttributes(attribute.String("check.status", string(outcome.Status)))
		span.End()
		metrics.ObserveCheck(string(outcome.Status), time.Since(start))
	}()

	m, err := o.deps.Store.GetByID(ctx, req.MonitorID)
	if errors.Is(err, watch.ErrNotFound) {
		logger.Info("monitor not found")
		return o.outcome(watch.StatusMonitorNotFound, 0)
	}
	if err != nil {
		logger.Error("load monitor", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "load monitor")
		return o.outcome(watch.StatusError, 0)
	}
	m = applyOverrides(m, req)
	logger = logger.With(zap.String("url", m.URL))

	ext, err := o.acquireAndExtract(ctx, m, logger)
	if err != nil {
		logger.Error("no content acquired", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "acquire")
		return o.outcome(watch.StatusError, 0)
	}
	metrics.ObserveExtraction(string(ext.result.Tier))
	span.SetAttributes(
		attribute.String("extract.tier", string(ext.result.Tier)),
		attribute.Float64("extract.confidence", ext.result.Confidence),
	)

	if err := o.decide(ctx, m, ext, logger); err != nil {
		logger.Error("persist observation", zap.Error(err))
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist")
		return o.outcome(watch.StatusError, 0)
	}
	return o.outcome(watch.StatusChecked, m.IntervalSeconds)
}

func (o *Orchestrator) outcome(status watch.Status, interval int) watch.CheckOutcome {
	if interval <= 0 {
		interval = o.cfg.DefaultIntervalSeconds
	}
	return watch.CheckOutcome{IntervalSeconds: interval, Status: status}
}

func (o *Orchestrator) acquireAndExtract(ctx context.Context, m watch.Monitor, logger *zap.Logger) (extraction, error) {
	if o.cfg.Policy == PolicyVision {
		shot, err := o.deps.Acquirer.CaptureScreenshot(ctx, m.URL)
		if err != nil {
			return extraction{}, fmt.Errorf("%w: %w", watch.ErrNoContent, err)
		}
		res := o.deps.Extractor.FromImage(ctx, shot.Image, m.Description)
		if res.HasValue() {
			res.Confidence = o.cfg.VisionConfidence
		}
		return extraction{result: res, screenshot: shot.Image}, nil
	}

	best := watch.EmptyResult()
	page, htmlErr := o.deps.Acquirer.AcquireHTML(ctx, m.URL)
	if htmlErr == nil {
		best = o.extractHTML(ctx, m, page.HTML)
		if best.HasValue() && best.Confidence >= o.cfg.LowConfidence {
			return extraction{result: best}, nil
		}
		logger.Info("text extraction weak, escalating to screenshot",
			zap.String("tier", string(best.Tier)),
			zap.Float64("confidence", best.Confidence),
		)
	} else {
		logger.Warn("html acquisition failed, trying screenshot", zap.Error(htmlErr))
	}

	shot, shotErr := o.deps.Acquirer.CaptureScreenshot(ctx, m.URL)
	if shotErr != nil {
		if htmlErr != nil {
			return extraction{}, errors.Join(htmlErr, shotErr)
		}
		logger.Warn("screenshot failed, keeping text result", zap.Error(shotErr))
		return extraction{result: best}, nil
	}
	vision := o.deps.Extractor.FromImage(ctx, shot.Image, m.Description)
	if vision.HasValue() {
		vision.Confidence = o.cfg.VisionConfidence
		if !best.HasValue() || best.Confidence < vision.Confidence {
			best = vision
		}
	}
	return extraction{result: best, screenshot: shot.Image}, nil
}

func (o *Orchestrator) extractHTML(ctx context.Context, m watch.Monitor, html string) watch.ExtractionResult {
	if o.deps.Rules != nil {
		if v, tier, ok := o.deps.Rules.Resolve(ctx, m, html); ok {
			return watch.ExtractionResult{
				Value:      &v,
				Normalized: extract.NormalizeNumber(v),
				Confidence: o.cfg.RuleConfidence,
				Tier:       tier,
			}
		}
	}
	return o.deps.Extractor.FromText(ctx, html, m.Description)
}

// decide evaluates the condition, publishes when it holds and persists the
// observation. Only the persist error is returned.
func (o *Orchestrator) decide(ctx context.Context, m watch.Monitor, ext extraction, logger *zap.Logger) error {
	now := o.now()
	res := ext.result
	if !res.HasValue() {
		// An empty value never satisfies a condition.
		logger.Info("no value extracted")
		return o.deps.Store.UpdateObservedValue(ctx, m.ID, watch.Observation{CheckedAt: now})
	}

	normalized := extract.NormalizeText(*res.Value)
	met := normalized != "" && o.deps.Evaluator.Evaluate(ctx, normalized, m.Condition)
	logger.Info("condition evaluated",
		zap.String("value", normalized),
		zap.String("tier", string(res.Tier)),
		zap.Float64("confidence", res.Confidence),
		zap.Bool("met", met),
	)

	if met && o.shouldNotify(m) {
		o.notify(ctx, m, res, ext.screenshot, now, logger)
	}

	stored := persistedValue(res, normalized)
	return o.deps.Store.UpdateObservedValue(ctx, m.ID, watch.Observation{
		Value:        &stored,
		Confidence:   res.Confidence,
		ConditionMet: met,
		CheckedAt:    now,
	})
}

func (o *Orchestrator) shouldNotify(m watch.Monitor) bool {
	if o.cfg.NotifyMode == NotifyTransition {
		return !m.ConditionMet
	}
	return true
}

func (o *Orchestrator) notify(
	ctx context.Context,
	m watch.Monitor,
	res watch.ExtractionResult,
	screenshot []byte,
	at time.Time,
	logger *zap.Logger,
) {
	if o.deps.Publisher == nil {
		return
	}
	evidence := o.storeEvidence(ctx, m.ID, screenshot, logger)
	msg := BuildNotification(o.cfg.Subject, m, m.LastValue, res.Value, res.Confidence, evidence, at)
	id, err := o.deps.Publisher.Publish(ctx, o.cfg.Topic, msg)
	if err != nil {
		metrics.ObserveNotification("error")
		logger.Error("publish notification", zap.Error(err))
		return
	}
	metrics.ObserveNotification("ok")
	logger.Info("notification published", zap.String("message_id", id))
}

func (o *Orchestrator) storeEvidence(ctx context.Context, monitorID string, png []byte, logger *zap.Logger) string {
	if len(png) == 0 || o.deps.Blobs == nil || o.deps.Hasher == nil {
		return ""
	}
	sum, err := o.deps.Hasher.Hash(png)
	if err != nil {
		logger.Warn("hash screenshot", zap.Error(err))
		return ""
	}
	uri, err := o.deps.Blobs.PutObject(ctx, o.evidencePath(monitorID, sum), "image/png", bytes.NewReader(png))
	if err != nil {
		logger.Warn("store screenshot evidence", zap.Error(err))
		return ""
	}
	return uri
}

func (o *Orchestrator) evidencePath(monitorID, sum string) string {
	prefix := strings.Trim(o.cfg.ArtifactPrefix, "/")
	return path.Join(prefix, monitorID, sum+".png")
}

func (o *Orchestrator) now() time.Time {
	if o.deps.Clock != nil {
		return o.deps.Clock.Now()
	}
	return time.Now().UTC()
}

// persistedValue is the canonical number when one was found ("$250" is
// stored as "250"), otherwise the normalized text.
func persistedValue(res watch.ExtractionResult, normalized string) string {
	if res.Normalized != nil {
		return extract.FormatNumber(*res.Normalized)
	}
	return normalized
}

func applyOverrides(m watch.Monitor, req watch.CheckRequest) watch.Monitor {
	if req.URL != "" {
		m.URL = req.URL
	}
	if req.Description != "" {
		m.Description = req.Description
	}
	if req.Condition != "" {
		m.Condition = req.Condition
	}
	return m
}
