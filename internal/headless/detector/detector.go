// Package detector spots light responses that cannot hold a watched value
// because the page only builds its content in the browser.
package detector

import (
	"bytes"
	"strings"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// Promotion reasons, used as log fields.
const (
	ReasonEmptyBody   = "empty_body"
	ReasonScriptHeavy = "script_heavy"
	ReasonAppShell    = "app_shell"
	ReasonJSRequired  = "js_required"
)

// DefaultMinBodyBytes is the size under which a script-heavy page is
// treated as a shell.
const DefaultMinBodyBytes = 2048

// noticeMaxBytes bounds the pages where a "JavaScript required" notice is
// trusted. Large server-rendered pages often carry the same notice in a
// noscript block.
const noticeMaxBytes = 32 << 10

var appShellMarkers = [][]byte{
	[]byte(`id="__next"`),
	[]byte(`id="__nuxt"`),
	[]byte(`id="root"></div>`),
	[]byte(`id="app"></div>`),
	[]byte("ng-version"),
	[]byte("data-server-rendered"),
}

var jsRequiredNotices = []string{
	"enable javascript",
	"javascript is required",
	"javascript is disabled",
	"requires javascript",
}

// Detector classifies light responses.
type Detector struct {
	MinBodyBytes int
}

// New builds a Detector. A non-positive minBodyBytes uses DefaultMinBodyBytes.
func New(minBodyBytes int) *Detector {
	if minBodyBytes <= 0 {
		minBodyBytes = DefaultMinBodyBytes
	}
	return &Detector{MinBodyBytes: minBodyBytes}
}

// Promote reports whether the response should be fetched again in a browser,
// and why. Non-2xx responses are never promoted; the light tier already
// reported them as failures.
func (d *Detector) Promote(resp watch.FetchResponse) (string, bool) {
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", false
	}
	body := resp.Body
	if len(bytes.TrimSpace(body)) == 0 {
		return ReasonEmptyBody, true
	}
	if len(body) < d.MinBodyBytes && scriptShare(body) >= 25 {
		return ReasonScriptHeavy, true
	}
	for _, marker := range appShellMarkers {
		if bytes.Contains(body, marker) {
			return ReasonAppShell, true
		}
	}
	if len(body) < noticeMaxBytes {
		lower := strings.ToLower(string(body))
		for _, notice := range jsRequiredNotices {
			if strings.Contains(lower, notice) {
				return ReasonJSRequired, true
			}
		}
	}
	return "", false
}

// scriptShare is the percentage of the body taken by <script> elements.
// An unterminated script counts to the end of the document.
func scriptShare(body []byte) int {
	lower := strings.ToLower(string(body))
	if lower == "" {
		return 0
	}
	covered, pos := 0, 0
	for {
		i := strings.Index(lower[pos:], "<script")
		if i < 0 {
			break
		}
		start := pos + i
		end := len(lower)
		if gt := strings.IndexByte(lower[start:], '>'); gt >= 0 {
			if j := strings.Index(lower[start+gt+1:], "</script>"); j >= 0 {
				end = start + gt + 1 + j + len("</script>")
			}
		}
		covered += end - start
		pos = end
	}
	return covered * 100 / len(lower)
}
