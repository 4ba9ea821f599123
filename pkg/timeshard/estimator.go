package timeshard

import (
	"context"
	"time"

	"snscraper/pkg/logger"
	"snscraper/pkg/ratelimit"
	"snscraper/pkg/retry"
)

// LinearEstimator predicts a fixed number of results per hour. Deterministic,
// used in tests and dry runs.
type LinearEstimator struct {
	PerHour int
}

// Estimate returns PerHour multiplied by the range length in hours
func (e LinearEstimator) Estimate(_ context.Context, start, end time.Time, _ string) (int, error) {
	hours := float64(end.Sub(start)) / float64(time.Hour)
	return int(float64(e.PerHour) * hours), nil
}

// CountFetcher probes the live platform for the result count a range/keyword
// pair would produce. Implemented by the automation bridge; the first page of
// live results carries the total.
type CountFetcher interface {
	CountResults(ctx context.Context, start, end time.Time, keyword string) (int, error)
}

// ProbeEstimator asks the live platform through a CountFetcher, gated by the
// rate limiter and retried on transient failures.
type ProbeEstimator struct {
	fetcher CountFetcher
	limiter ratelimit.Limiter
	retry   *retry.Config
	logger  logger.Logger
}

// NewProbeEstimator creates a live-probe estimator
func NewProbeEstimator(fetcher CountFetcher, limiter ratelimit.Limiter, log logger.Logger) *ProbeEstimator {
	if log == nil {
		log = logger.GetLogger()
	}
	cfg := retry.DefaultConfig()
	cfg.Logger = log
	return &ProbeEstimator{
		fetcher: fetcher,
		limiter: limiter,
		retry:   cfg,
		logger:  log,
	}
}

// Estimate probes the first page of live results for the range
func (e *ProbeEstimator) Estimate(ctx context.Context, start, end time.Time, keyword string) (int, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return 0, err
		}
	}

	var count int
	err := retry.Do(ctx, func() error {
		var probeErr error
		count, probeErr = e.fetcher.CountResults(ctx, start, end, keyword)
		return probeErr
	}, e.retry)
	if err != nil {
		return 0, err
	}

	e.logger.DebugWithFields("probed result count", map[string]interface{}{
		"keyword": keyword,
		"start":   start,
		"end":     end,
		"count":   count,
	})

	return count, nil
}
