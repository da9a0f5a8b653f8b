package detector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

func TestDetectorPromote(t *testing.T) {
	t.Parallel()

	product := "<html><body><h1>Grinder</h1><span id=\"price\">$45</span><p>" +
		strings.Repeat("Burr grinder with 40 settings. ", 200) + "</p></body></html>"
	noscriptProduct := strings.Replace(product, "<h1>", "<noscript>Please enable JavaScript for reviews</noscript><h1>", 1) +
		strings.Repeat("<p>more copy</p>", 3000)

	tests := []struct {
		name   string
		resp   watch.FetchResponse
		reason string
	}{
		{name: "empty body", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(" \n ")}, reason: ReasonEmptyBody},
		{name: "next.js mount", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(`<div id="__next"></div>` + product)}, reason: ReasonAppShell},
		{name: "empty react root", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(`<body><div id="root"></div>` + product)}, reason: ReasonAppShell},
		{name: "angular", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(`<app-root ng-version="17.0.0"></app-root>` + product)}, reason: ReasonAppShell},
		{name: "script heavy", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(`<html><script>var a=1;</script><p>t</p></html>`)}, reason: ReasonScriptHeavy},
		{name: "js notice", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(product + "<p>This store requires JavaScript.</p>")}, reason: ReasonJSRequired},
		{name: "server rendered", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(product)}},
		{name: "notice on large page", resp: watch.FetchResponse{StatusCode: 200, Body: []byte(noscriptProduct)}},
		{name: "non 2xx", resp: watch.FetchResponse{StatusCode: 404}},
	}
	d := New(0)
	for _, tt := range tests {
		reason, promote := d.Promote(tt.resp)
		require.Equal(t, tt.reason, reason, tt.name)
		require.Equal(t, tt.reason != "", promote, tt.name)
	}
}

func TestDetectorThreshold(t *testing.T) {
	t.Parallel()

	page := []byte("<p>" + strings.Repeat("x", 600) + "</p><script>" + strings.Repeat("y", 400) + "</script>")
	_, promote := New(0).Promote(watch.FetchResponse{StatusCode: 200, Body: page})
	require.True(t, promote)

	_, promote = New(512).Promote(watch.FetchResponse{StatusCode: 200, Body: page})
	require.False(t, promote)
}

func TestScriptShare(t *testing.T) {
	t.Parallel()

	require.Equal(t, 100, scriptShare([]byte("<script>x</script>")))
	require.Positive(t, scriptShare([]byte("<p>x</p><script src=x")))
	require.Positive(t, scriptShare([]byte("<p>x</p><script>never closed")))
	require.Zero(t, scriptShare([]byte("<p>no scripts at all</p>")))
	require.Zero(t, scriptShare(nil))
}
