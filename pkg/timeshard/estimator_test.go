package timeshard

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snscraper/pkg/errors"
)

// fakeCountFetcher returns queued errors before succeeding with count
type fakeCountFetcher struct {
	count int
	errs  []error
	calls int
}

func (f *fakeCountFetcher) CountResults(_ context.Context, _, _ time.Time, _ string) (int, error) {
	f.calls++
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return 0, err
	}
	return f.count, nil
}

func TestLinearEstimator(t *testing.T) {
	est := LinearEstimator{PerHour: 50}

	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	n, err := est.Estimate(context.Background(), start, start.Add(24*time.Hour), "golang")
	require.NoError(t, err)
	assert.Equal(t, 1200, n)

	n, err = est.Estimate(context.Background(), start, start.Add(time.Hour), "golang")
	require.NoError(t, err)
	assert.Equal(t, 50, n)
}

func TestProbeEstimator(t *testing.T) {
	start := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)

	t.Run("ReturnsProbedCount", func(t *testing.T) {
		fetcher := &fakeCountFetcher{count: 420}
		est := NewProbeEstimator(fetcher, nil, nil)

		n, err := est.Estimate(context.Background(), start, end, "golang")
		require.NoError(t, err)
		assert.Equal(t, 420, n)
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("RetriesTransientFailures", func(t *testing.T) {
		fetcher := &fakeCountFetcher{
			count: 77,
			errs:  []error{errors.New(errors.ErrorTypeNetwork, "probe", "connection reset")},
		}
		est := NewProbeEstimator(fetcher, nil, nil)
		est.retry.BaseDelay = time.Millisecond
		est.retry.MaxDelay = time.Millisecond

		n, err := est.Estimate(context.Background(), start, end, "golang")
		require.NoError(t, err)
		assert.Equal(t, 77, n)
		assert.Equal(t, 2, fetcher.calls)
	})

	t.Run("DoesNotRetryCaptcha", func(t *testing.T) {
		fetcher := &fakeCountFetcher{
			errs: []error{errors.New(errors.ErrorTypeCaptcha, "probe", "captcha challenge")},
		}
		est := NewProbeEstimator(fetcher, nil, nil)
		est.retry.BaseDelay = time.Millisecond

		_, err := est.Estimate(context.Background(), start, end, "golang")
		require.Error(t, err)
		assert.True(t, errors.IsType(err, errors.ErrorTypeCaptcha))
		assert.Equal(t, 1, fetcher.calls)
	})

	t.Run("CancelledContext", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		fetcher := &fakeCountFetcher{count: 1}
		est := NewProbeEstimator(fetcher, nil, nil)

		_, err := est.Estimate(ctx, start, end, "golang")
		// Without a limiter the fetch itself still runs; the retry layer
		// must not loop on a dead context.
		if err != nil {
			assert.ErrorIs(t, err, context.Canceled)
		}
	})
}
