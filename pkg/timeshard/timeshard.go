package timeshard

import (
	"context"
	"fmt"
	"time"

	"snscraper/pkg/logger"
)

// Shard is a bounded, hour-aligned time sub-interval expected to stay under
// the platform's result-count cap. Partial marks a shard that could not be
// split further even though the estimate still exceeds the cap; results past
// the cap inside it are unreachable.
type Shard struct {
	Start   time.Time `json:"start"`
	End     time.Time `json:"end"`
	Partial bool      `json:"partial,omitempty"`
}

func (s Shard) String() string {
	return fmt.Sprintf("[%s, %s)", s.Start.Format(time.RFC3339), s.End.Format(time.RFC3339))
}

// Hours returns the shard length in whole hours
func (s Shard) Hours() int {
	return int(s.End.Sub(s.Start) / time.Hour)
}

// Estimator predicts the result count for a time range/keyword pair. It is
// used to decide whether further splitting is needed.
type Estimator interface {
	Estimate(ctx context.Context, start, end time.Time, keyword string) (int, error)
}

// FloorToHour aligns t down to the enclosing hour boundary. Idempotent.
func FloorToHour(t time.Time) time.Time {
	return t.Truncate(time.Hour)
}

// CeilToHour aligns t up to the enclosing hour boundary. An already-aligned
// instant is left unchanged.
func CeilToHour(t time.Time) time.Time {
	floored := t.Truncate(time.Hour)
	if floored.Equal(t) {
		return t
	}
	return floored.Add(time.Hour)
}

// Planner splits a time interval into shards each estimated to stay under
// the result-count cap, bisecting on hour boundaries.
type Planner struct {
	estimator  Estimator
	maxResults int
	minShard   time.Duration
	logger     logger.Logger
}

// NewPlanner creates a planner with the given cap and minimum shard size
func NewPlanner(estimator Estimator, maxResults, minShardHours int, log logger.Logger) *Planner {
	if log == nil {
		log = logger.GetLogger()
	}
	if maxResults <= 0 {
		maxResults = 1000
	}
	if minShardHours <= 0 {
		minShardHours = 1
	}
	return &Planner{
		estimator:  estimator,
		maxResults: maxResults,
		minShard:   time.Duration(minShardHours) * time.Hour,
		logger:     log,
	}
}

// Plan returns a chronologically ordered, contiguous list of shards whose
// union exactly equals the hour-aligned input range. It uses an explicit
// work stack instead of recursion so multi-year ranges stay cheap.
func (p *Planner) Plan(ctx context.Context, start, end time.Time, keyword string) ([]Shard, error) {
	start = FloorToHour(start)
	end = CeilToHour(end)
	if !start.Before(end) {
		return nil, fmt.Errorf("invalid range: start %s is not before end %s", start, end)
	}

	type interval struct {
		start, end time.Time
	}

	var shards []Shard
	stack := []interval{{start, end}}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		iv := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		n, err := p.estimator.Estimate(ctx, iv.start, iv.end, keyword)
		if err != nil {
			return nil, fmt.Errorf("estimating range %s..%s: %w", iv.start, iv.end, err)
		}

		if n <= p.maxResults {
			shards = append(shards, Shard{Start: iv.start, End: iv.end})
			continue
		}

		mid := FloorToHour(iv.start.Add(iv.end.Sub(iv.start) / 2))
		if iv.end.Sub(iv.start) <= p.minShard || !mid.After(iv.start) {
			// Can't split further. The cap will be exceeded and results past
			// it are lost; the shard is flagged so callers see the gap.
			p.logger.WarnWithFields("minimal shard exceeds result cap, accepting partial coverage", map[string]interface{}{
				"keyword":  keyword,
				"start":    iv.start,
				"end":      iv.end,
				"estimate": n,
				"cap":      p.maxResults,
			})
			shards = append(shards, Shard{Start: iv.start, End: iv.end, Partial: true})
			continue
		}

		p.logger.DebugWithFields("splitting range", map[string]interface{}{
			"keyword":  keyword,
			"start":    iv.start,
			"end":      iv.end,
			"mid":      mid,
			"estimate": n,
		})

		// Push the later half first so the earlier half is processed next,
		// keeping the output chronological.
		stack = append(stack, interval{mid, iv.end})
		stack = append(stack, interval{iv.start, mid})
	}

	return shards, nil
}
