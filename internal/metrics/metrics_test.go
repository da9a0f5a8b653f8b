package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestSanitizeSite(t *testing.T) {
	testCases := []struct {
		name     string
		input    string
		expected string
	}{
		{"standard http", "http://example.com/path", "example.com"},
		{"standard https", "https://Example.com/path", "example.com"},
		{"no scheme", "example.com/path", "example.com"},
		{"host with port", "example.com:8080", "example.com"},
		{"invalid url", "http://%", "unknown"},
		{"empty string", "", "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := SanitizeSite(tc.input); got != tc.expected {
				t.Errorf("SanitizeSite(%q) = %q; want %q", tc.input, got, tc.expected)
			}
		})
	}
}

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	if checksTotal == nil || extractionTierTotal == nil || judgeRequestsTotal == nil {
		t.Fatal("Init() did not initialize metrics collectors")
	}
}

func TestObserveCheckAndExtraction(t *testing.T) {
	Init()
	beforeChecked := testutil.ToFloat64(checksTotal.WithLabelValues("checked"))
	beforeVision := testutil.ToFloat64(extractionTierTotal.WithLabelValues("vision"))

	ObserveCheck("checked", 2*time.Second)
	ObserveExtraction("vision")

	if got := testutil.ToFloat64(checksTotal.WithLabelValues("checked")) - beforeChecked; got != 1 {
		t.Errorf("expected one checked outcome, got %f", got)
	}
	if got := testutil.ToFloat64(extractionTierTotal.WithLabelValues("vision")) - beforeVision; got != 1 {
		t.Errorf("expected one vision extraction, got %f", got)
	}
}

func TestObserveJudgeAndNotification(t *testing.T) {
	Init()
	beforeJudge := testutil.ToFloat64(judgeRequestsTotal.WithLabelValues("evaluate", "error"))
	beforeNotify := testutil.ToFloat64(notificationsTotal.WithLabelValues("published"))

	ObserveJudge("evaluate", "error", 150*time.Millisecond)
	ObserveNotification("published")

	if got := testutil.ToFloat64(judgeRequestsTotal.WithLabelValues("evaluate", "error")) - beforeJudge; got != 1 {
		t.Errorf("expected one failed evaluate call, got %f", got)
	}
	if got := testutil.ToFloat64(notificationsTotal.WithLabelValues("published")) - beforeNotify; got != 1 {
		t.Errorf("expected one published notification, got %f", got)
	}
}

func TestScheduledJobsGauge(t *testing.T) {
	SetScheduledJobs(3)
	if got := testutil.ToFloat64(scheduledJobs); got != 3 {
		t.Errorf("expected 3 scheduled jobs, got %f", got)
	}
}

// Fuzz test for SanitizeSite.
func FuzzSanitizeSite(f *testing.F) {
	testcases := []string{"http://example.com", "https://google.com", "ftp://example.com"}
	for _, tc := range testcases {
		f.Add(tc)
	}
	f.Fuzz(func(t *testing.T, orig string) {
		sanitized := SanitizeSite(orig)
		if sanitized == "" {
			t.Errorf("SanitizeSite(%q) returned an empty string", orig)
		}
	})
}
