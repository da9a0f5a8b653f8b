package headless

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func TestNewChromedpDefaults(t *testing.T) {
	t.Parallel()

	_, err := NewChromedp(Config{MaxParallel: -1})
	require.Error(t, err)

	b, err := NewChromedp(Config{MaxParallel: 2})
	require.NoError(t, err)
	require.Equal(t, 2, cap(b.limiter))
	require.Equal(t, 30*time.Second, b.navTimeout())
	require.Equal(t, defaultViewportWidth, b.cfg.ViewportWidth)
}

func TestAcquireRespectsContext(t *testing.T) {
	t.Parallel()

	b, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	require.NoError(t, b.acquire(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	require.Error(t, b.acquire(ctx))

	b.release()
	require.NoError(t, b.acquire(context.Background()))
	b.release()
}

func TestFetchWaitsForBrowserSlot(t *testing.T) {
	t.Parallel()

	b, err := NewChromedp(Config{MaxParallel: 1})
	require.NoError(t, err)
	require.NoError(t, b.acquire(context.Background()))
	defer b.release()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = b.Fetch(ctx, watch.FetchRequest{URL: "https://example.com"})
	var fe *watch.FetchError
	require.ErrorAs(t, err, &fe)
	require.Equal(t, watch.AcquireRendered, fe.Tier)

	_, err = b.Screenshot(ctx, watch.FetchRequest{URL: "https://example.com"})
	require.ErrorAs(t, err, &fe)
	require.Equal(t, watch.AcquireScreenshot, fe.Tier)
}

func TestClampHeight(t *testing.T) {
	t.Parallel()

	require.EqualValues(t, defaultViewportHeight, clampHeight(0))
	require.EqualValues(t, 2400, clampHeight(2400.7))
	require.EqualValues(t, maxScreenshotHeight, clampHeight(1e6))
}

func TestToNetworkHeaders(t *testing.T) {
	t.Parallel()

	src := http.Header{"X-Test": {"a", "b"}, "X-One": {"1"}, "X-None": {}}
	netHeaders := toNetworkHeaders(src)
	require.Equal(t, []string{"a", "b"}, netHeaders["X-Test"])
	require.Equal(t, "1", netHeaders["X-One"])
	require.NotContains(t, netHeaders, "X-None")
}

func TestResponseMetaCaptureAndFallbacks(t *testing.T) {
	t.Parallel()

	meta := newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{
		Type: network.ResourceTypeDocument,
		Response: &network.Response{
			Status:  404,
			URL:     "https://example.com/rendered",
			Headers: network.Headers{"X-Request-ID": "abc"},
		},
	})
	meta.captureEvent(&network.EventResponseReceived{
		Type:     network.ResourceTypeDocument,
		Response: &network.Response{Status: 200, URL: "https://ads.example.com/frame"},
	})
	status, headers, url := meta.snapshotWithFallbacks("https://req", "")
	require.Equal(t, 404, status)
	require.Equal(t, "abc", headers.Get("X-Request-ID"))
	require.Equal(t, "https://example.com/rendered", url)

	meta = newResponseMeta()
	meta.captureEvent(&network.EventResponseReceived{Type: network.ResourceTypeImage, Response: &network.Response{Status: 500}})
	status, _, url = meta.snapshotWithFallbacks("https://req", "https://final")
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, "https://final", url)
}

func TestNoop(t *testing.T) {
	t.Parallel()

	n := NewNoop()
	_, err := n.Fetch(context.Background(), watch.FetchRequest{URL: "u"})
	require.True(t, errors.Is(err, ErrDisabled))
	_, err = n.Screenshot(context.Background(), watch.FetchRequest{URL: "u"})
	require.True(t, errors.Is(err, ErrDisabled))
}
