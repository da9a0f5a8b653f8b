package headless

import (
	"context"
	"errors"

	"github.com/JakeFAU/pagewatch/internal/watch"
)

// ErrDisabled is returned by Noop for every call.
var ErrDisabled = errors.New("headless browser disabled")

// Noop stands in for the browser when headless tiers are turned off.
type Noop struct{}

// NewNoop creates a new Noop browser.
func NewNoop() *Noop {
	return &Noop{}
}

// Fetch always fails.
func (Noop) Fetch(_ context.Context, request watch.FetchRequest) (watch.FetchResponse, error) {
	return watch.FetchResponse{}, &watch.FetchError{Tier: watch.AcquireRendered, URL: request.URL, Err: ErrDisabled}
}

// Screenshot always fails.
func (Noop) Screenshot(_ context.Context, request watch.FetchRequest) ([]byte, error) {
	return nil, &watch.FetchError{Tier: watch.AcquireScreenshot, URL: request.URL, Err: ErrDisabled}
}
