package watch

import (
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMonitorIntervalFallsBackToDefault(t *testing.T) {
	t.Parallel()

	require.Equal(t, 2*time.Hour, Monitor{}.Interval())
	require.Equal(t, 30*time.Second, Monitor{IntervalSeconds: 30}.Interval())
}

func TestExtractionResultHasValue(t *testing.T) {
	t.Parallel()

	empty := ""
	price := "$10"
	require.False(t, EmptyResult().HasValue())
	require.False(t, ExtractionResult{Value: &empty}.HasValue())
	require.True(t, ExtractionResult{Value: &price}.HasValue())
	require.Equal(t, TierNone, EmptyResult().Tier)
}

func TestFetchErrorMessagesAndUnwrap(t *testing.T) {
	t.Parallel()

	cause := errors.New("dial tcp: refused")
	err := error(&FetchError{Tier: AcquireLight, URL: "https://example.com", Err: cause})
	require.ErrorIs(t, err, cause)
	require.Equal(t, "light fetch https://example.com: dial tcp: refused", err.Error())

	statusErr := &FetchError{Tier: AcquireLight, URL: "https://example.com", StatusCode: http.StatusForbidden}
	require.Equal(t, "light fetch https://example.com: status 403", statusErr.Error())

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	require.Equal(t, AcquireLight, fe.Tier)
}
