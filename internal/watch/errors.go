package watch

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by stores when a monitor does not exist.
	ErrNotFound = errors.New("monitor not found")
	// ErrNoContent means every acquisition tier failed for a check.
	ErrNoContent = errors.New("no content acquired")
	// ErrExtractionFailed marks an extractor that produced nothing usable.
	ErrExtractionFailed = errors.New("extraction failed")
	// ErrEvaluationFailed marks a condition judge call that did not answer.
	ErrEvaluationFailed = errors.New("evaluation failed")
	// ErrQueueFull is returned when a check cannot be queued without waiting.
	ErrQueueFull = errors.New("check queue full")
)

// FetchError reports a failed acquisition tier.
type FetchError struct {
	Tier       AcquireTier
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Err != nil:
		return fmt.Sprintf("%s fetch %s: status %d: %v", e.Tier, e.URL, e.StatusCode, e.Err)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s fetch %s: status %d", e.Tier, e.URL, e.StatusCode)
	default:
		return fmt.Sprintf("%s fetch %s: %v", e.Tier, e.URL, e.Err)
	}
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
