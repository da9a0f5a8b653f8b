// Package headless contains the browser-backed acquisition tiers: a rendered
// DOM fetch and a full-page screenshot. Every call launches and tears down
// its own browser process.
package headless

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

const (
	defaultNavigationTimeout = 30 * time.Second
	defaultViewportWidth     = 1366
	defaultViewportHeight    = 900
	// Tall pages are clipped to keep screenshots within judge image limits.
	maxScreenshotHeight = 16384
)

// Config controls the behavior of the headless browser.
type Config struct {
	MaxParallel       int
	UserAgent         string
	NavigationTimeout time.Duration
	ExecPath          string
	ViewportWidth     int
}

// Browser implements watch.Fetcher and watch.Screenshotter with chromedp.
type Browser struct {
	cfg     Config
	limiter chan struct{}
}

// NewChromedp creates a headless browser backed by chromedp.
func NewChromedp(cfg Config) (*Browser, error) {
	if cfg.MaxParallel < 0 {
		return nil, fmt.Errorf("max parallel must be >= 0")
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = defaultNavigationTimeout
	}
	if cfg.ViewportWidth <= 0 {
		cfg.ViewportWidth = defaultViewportWidth
	}
	var limiter chan struct{}
	if cfg.MaxParallel > 0 {
		limiter = make(chan struct{}, cfg.MaxParallel)
	}
	return &Browser{cfg: cfg, limiter: limiter}, nil
}

// Fetch navigates with a headless browser and returns the rendered DOM.
func (b *Browser) Fetch(ctx context.Context, request watch.FetchRequest) (watch.FetchResponse, error) {
	if err := b.acquire(ctx); err != nil {
		return watch.FetchResponse{}, &watch.FetchError{Tier: watch.AcquireRendered, URL: request.URL, Err: err}
	}
	defer b.release()

	taskCtx, cancel := b.newTab(ctx)
	defer cancel()

	meta := newResponseMeta()
	chromedp.ListenTarget(taskCtx, meta.captureEvent)

	start := time.Now()
	var html, finalURL string
	err := chromedp.Run(taskCtx,
		b.networkSetupAction(request.Headers),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.Location(&finalURL),
		chromedp.OuterHTML("html", &html, chromedp.ByQuery),
	)
	if err != nil {
		return watch.FetchResponse{}, &watch.FetchError{
			Tier: watch.AcquireRendered,
			URL:  request.URL,
			Err:  fmt.Errorf("chromedp run: %w", err),
		}
	}

	status, headers, responseURL := meta.snapshotWithFallbacks(request.URL, finalURL)
	if headers == nil {
		headers = http.Header{}
	}
	if status < 200 || status > 299 {
		return watch.FetchResponse{}, &watch.FetchError{Tier: watch.AcquireRendered, URL: request.URL, StatusCode: status}
	}
	return watch.FetchResponse{
		URL:          responseURL,
		StatusCode:   status,
		Headers:      headers,
		Body:         []byte(html),
		Duration:     time.Since(start),
		UsedHeadless: true,
	}, nil
}

// Screenshot scrolls to the bottom of the page so lazy content loads,
// resizes the viewport to the full scroll height and captures a PNG.
func (b *Browser) Screenshot(ctx context.Context, request watch.FetchRequest) ([]byte, error) {
	if err := b.acquire(ctx); err != nil {
		return nil, &watch.FetchError{Tier: watch.AcquireScreenshot, URL: request.URL, Err: err}
	}
	defer b.release()

	taskCtx, cancel := b.newTab(ctx)
	defer cancel()

	var (
		height float64
		buf    []byte
	)
	err := chromedp.Run(taskCtx,
		b.networkSetupAction(request.Headers),
		emulation.SetDeviceMetricsOverride(int64(b.cfg.ViewportWidth), defaultViewportHeight, 1, false),
		chromedp.Navigate(request.URL),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight)`, nil),
		chromedp.Sleep(time.Second),
		chromedp.Evaluate(`Math.max(document.body.scrollHeight, document.documentElement.scrollHeight)`, &height),
		chromedp.ActionFunc(func(ctx context.Context) error {
			return emulation.SetDeviceMetricsOverride(int64(b.cfg.ViewportWidth), clampHeight(height), 1, false).Do(ctx)
		}),
		chromedp.Evaluate(`window.scrollTo(0, 0)`, nil),
		chromedp.FullScreenshot(&buf, 100),
	)
	if err != nil {
		return nil, &watch.FetchError{
			Tier: watch.AcquireScreenshot,
			URL:  request.URL,
			Err:  fmt.Errorf("chromedp screenshot: %w", err),
		}
	}
	return buf, nil
}

// newTab starts a dedicated browser process for one call. The returned
// cancel tears down the tab, the navigation deadline and the process.
func (b *Browser) newTab(ctx context.Context) (context.Context, context.CancelFunc) {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", "new"),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("hide-scrollbars", true),
		chromedp.Flag("enable-automation", false),
	)
	if b.cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(b.cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, tabCancel := chromedp.NewContext(allocCtx)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, b.navTimeout())
	return timeoutCtx, func() {
		timeoutCancel()
		tabCancel()
		allocCancel()
	}
}

func (b *Browser) networkSetupAction(headers http.Header) chromedp.Action {
	return chromedp.ActionFunc(func(ctx context.Context) error {
		if err := network.Enable().Do(ctx); err != nil {
			return fmt.Errorf("enable network domain: %w", err)
		}
		if b.cfg.UserAgent != "" {
			if err := emulation.SetUserAgentOverride(b.cfg.UserAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
		}
		if len(headers) > 0 {
			if err := network.SetExtraHTTPHeaders(toNetworkHeaders(headers)).Do(ctx); err != nil {
				return fmt.Errorf("set extra headers: %w", err)
			}
		}
		return nil
	})
}

func (b *Browser) acquire(ctx context.Context) error {
	if b.limiter == nil {
		return nil
	}
	select {
	case b.limiter <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("headless slot wait canceled: %w", ctx.Err())
	}
}

func (b *Browser) release() {
	if b.limiter == nil {
		return
	}
	select {
	case <-b.limiter:
	default:
	}
}

func (b *Browser) navTimeout() time.Duration {
	if b.cfg.NavigationTimeout > 0 {
		return b.cfg.NavigationTimeout
	}
	return defaultNavigationTimeout
}

func clampHeight(h float64) int64 {
	switch {
	case h < defaultViewportHeight:
		return defaultViewportHeight
	case h > maxScreenshotHeight:
		return maxScreenshotHeight
	default:
		return int64(h)
	}
}

type responseMeta struct {
	mu      sync.RWMutex
	status  int
	headers http.Header
	url     string
}

func newResponseMeta() *responseMeta {
	return &responseMeta{
		headers: http.Header{},
	}
}

func (m *responseMeta) capture(event *network.EventResponseReceived) {
	if event.Type != network.ResourceTypeDocument || event.Response == nil {
		return
	}
	headers := http.Header{}
	for key, value := range event.Response.Headers {
		switch v := value.(type) {
		case string:
			headers.Add(key, v)
		case []any:
			for _, entry := range v {
				headers.Add(key, fmt.Sprint(entry))
			}
		default:
			headers.Add(key, fmt.Sprint(v))
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	// Only the first document response is the page itself; later ones are frames.
	if m.status != 0 {
		return
	}
	m.status = int(event.Response.Status)
	m.headers = headers
	m.url = event.Response.URL
}

func (m *responseMeta) captureEvent(ev any) {
	if resp, ok := ev.(*network.EventResponseReceived); ok {
		m.capture(resp)
	}
}

func (m *responseMeta) snapshotWithFallbacks(requestURL, finalURL string) (int, http.Header, string) {
	m.mu.RLock()
	status, headers, url := m.status, m.headers.Clone(), m.url
	m.mu.RUnlock()

	switch {
	case url != "":
	case finalURL != "":
		url = finalURL
	default:
		url = requestURL
	}
	if status == 0 {
		status = http.StatusOK
	}
	return status, headers, url
}

func toNetworkHeaders(h http.Header) network.Headers {
	headers := network.Headers{}
	for key, values := range h {
		switch len(values) {
		case 0:
		case 1:
			headers[key] = values[0]
		default:
			headers[key] = append([]string(nil), values...)
		}
	}
	return headers
}
