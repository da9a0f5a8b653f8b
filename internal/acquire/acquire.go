// Package acquire turns a URL into page content, escalating from a plain
// HTTP fetch to a rendered browser fetch, and captures screenshots for the
// image extraction path. Tiers run one at a time and are never retried.
package acquire

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/metrics"
	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Acquirer fetches page content through the configured tiers.
type Acquirer struct {
	light    watch.Fetcher
	rendered watch.Fetcher
	shooter  watch.Screenshotter
	detector watch.HeadlessDetector
	limiter  watch.Limiter
	logger   *zap.Logger
}

// Deps bundles the tier implementations. Detector and Limiter are optional.
type Deps struct {
	Light    watch.Fetcher
	Rendered watch.Fetcher
	Shooter  watch.Screenshotter
	Detector watch.HeadlessDetector
	Limiter  watch.Limiter
}

// New builds an Acquirer.
func New(deps Deps, logger *zap.Logger) *Acquirer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Acquirer{
		light:    deps.Light,
		rendered: deps.Rendered,
		shooter:  deps.Shooter,
		detector: deps.Detector,
		limiter:  deps.Limiter,
		logger:   logger.Named("acquire"),
	}
}

// FetchLight performs a plain HTTP GET.
func (a *Acquirer) FetchLight(ctx context.Context, url string) (watch.PageContent, error) {
	resp, err := a.fetch(ctx, a.light, watch.AcquireLight, url)
	if err != nil {
		return watch.PageContent{}, err
	}
	return pageFromResponse(resp, watch.AcquireLight, url), nil
}

// FetchRendered loads the page in a headless browser and returns the DOM.
func (a *Acquirer) FetchRendered(ctx context.Context, url string) (watch.PageContent, error) {
	resp, err := a.fetch(ctx, a.rendered, watch.AcquireRendered, url)
	if err != nil {
		return watch.PageContent{}, err
	}
	return pageFromResponse(resp, watch.AcquireRendered, url), nil
}

// CaptureScreenshot returns a full-page PNG of url.
func (a *Acquirer) CaptureScreenshot(ctx context.Context, url string) (watch.PageContent, error) {
	if a.shooter == nil {
		return watch.PageContent{}, tierMissing(watch.AcquireScreenshot, url)
	}
	if err := a.wait(ctx, watch.AcquireScreenshot, url); err != nil {
		return watch.PageContent{}, err
	}
	png, err := a.shooter.Screenshot(ctx, watch.FetchRequest{URL: url})
	if err == nil && len(png) == 0 {
		err = &watch.FetchError{Tier: watch.AcquireScreenshot, URL: url, Err: errors.New("empty screenshot")}
	}
	if err != nil {
		metrics.ObserveAcquire(string(watch.AcquireScreenshot), "error")
		return watch.PageContent{}, asFetchError(err, watch.AcquireScreenshot, url)
	}
	metrics.ObserveAcquire(string(watch.AcquireScreenshot), "ok")
	return watch.PageContent{URL: url, Tier: watch.AcquireScreenshot, Image: png}, nil
}

// AcquireHTML tries the light tier first and escalates to the rendered tier
// when it fails or the response looks like a client-side shell. A shell
// page is still returned when the rendered tier fails afterwards.
func (a *Acquirer) AcquireHTML(ctx context.Context, url string) (watch.PageContent, error) {
	resp, lightErr := a.fetch(ctx, a.light, watch.AcquireLight, url)
	if lightErr == nil {
		if a.detector == nil || a.rendered == nil {
			return pageFromResponse(resp, watch.AcquireLight, url), nil
		}
		reason, promote := a.detector.Promote(resp)
		if !promote {
			return pageFromResponse(resp, watch.AcquireLight, url), nil
		}
		metrics.ObserveAcquire(string(watch.AcquireLight), "promoted")
		a.logger.Debug("light response looks client-rendered, escalating",
			zap.String("url", url), zap.String("reason", reason))
		rendered, err := a.FetchRendered(ctx, url)
		if err != nil {
			a.logger.Info("rendered fetch failed, keeping light response", zap.String("url", url), zap.Error(err))
			return pageFromResponse(resp, watch.AcquireLight, url), nil
		}
		return rendered, nil
	}

	a.logger.Info("light fetch failed, escalating", zap.String("url", url), zap.Error(lightErr))
	rendered, renderedErr := a.FetchRendered(ctx, url)
	if renderedErr != nil {
		return watch.PageContent{}, fmt.Errorf("%w: %w", watch.ErrNoContent, errors.Join(lightErr, renderedErr))
	}
	return rendered, nil
}

func (a *Acquirer) fetch(ctx context.Context, f watch.Fetcher, tier watch.AcquireTier, url string) (watch.FetchResponse, error) {
	if f == nil {
		return watch.FetchResponse{}, tierMissing(tier, url)
	}
	if err := a.wait(ctx, tier, url); err != nil {
		return watch.FetchResponse{}, err
	}
	resp, err := f.Fetch(ctx, watch.FetchRequest{URL: url})
	if err != nil {
		metrics.ObserveAcquire(string(tier), "error")
		return watch.FetchResponse{}, asFetchError(err, tier, url)
	}
	metrics.ObserveAcquire(string(tier), "ok")
	return resp, nil
}

func (a *Acquirer) wait(ctx context.Context, tier watch.AcquireTier, url string) error {
	if a.limiter == nil {
		return nil
	}
	if err := a.limiter.Wait(ctx, url); err != nil {
		return &watch.FetchError{Tier: tier, URL: url, Err: err}
	}
	return nil
}

func pageFromResponse(resp watch.FetchResponse, tier watch.AcquireTier, requested string) watch.PageContent {
	url := resp.URL
	if url == "" {
		url = requested
	}
	return watch.PageContent{
		URL:        url,
		Tier:       tier,
		StatusCode: resp.StatusCode,
		HTML:       string(resp.Body),
		Duration:   resp.Duration,
	}
}

func asFetchError(err error, tier watch.AcquireTier, url string) error {
	var fe *watch.FetchError
	if errors.As(err, &fe) {
		return err
	}
	return &watch.FetchError{Tier: tier, URL: url, Err: err}
}

func tierMissing(tier watch.AcquireTier, url string) error {
	return &watch.FetchError{Tier: tier, URL: url, Err: errors.New("tier not configured")}
}
