package crawler

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"snscraper/pkg/checkpoint"
	"snscraper/pkg/errors"
	"snscraper/pkg/events"
	"snscraper/pkg/logger"
	"snscraper/pkg/ratelimit"
	"snscraper/pkg/timeshard"
)

// Task describes one keyword crawl
type Task struct {
	ID        string
	Keyword   string
	Since     time.Time
	Until     time.Time
	Direction checkpoint.Direction
}

// PageResult is what one fetched page contributed
type PageResult struct {
	// Count is the number of results the page carried
	Count int
	// HasMore tells whether the shard has further pages
	HasMore bool
}

// PageFetcher is the automation boundary that fetches one page of search
// results for a shard. Fetch failures must be typed (captcha, network,
// storage) so the orchestrator can classify them.
type PageFetcher interface {
	FetchPage(ctx context.Context, keyword string, shard timeshard.Shard, page int) (PageResult, error)
}

// Orchestrator walks a crawl task shard by shard, page by page, persisting
// the checkpoint after every mutation and emitting progress events. Pages
// within a task are fetched sequentially in increasing order; shards in
// chronological order. Concurrency across tasks is the runner's business.
type Orchestrator struct {
	fetcher PageFetcher
	planner *timeshard.Planner
	store   checkpoint.Store
	limiter ratelimit.Limiter
	sink    events.Sink
	guard   *Guard
	logger  logger.Logger
}

// New creates a crawl orchestrator
func New(fetcher PageFetcher, planner *timeshard.Planner, store checkpoint.Store, limiter ratelimit.Limiter, sink events.Sink, guard *Guard, log logger.Logger) *Orchestrator {
	if log == nil {
		log = logger.GetLogger()
	}
	if sink == nil {
		sink = events.NopSink{}
	}
	if guard == nil {
		guard = NewGuard()
	}
	return &Orchestrator{
		fetcher: fetcher,
		planner: planner,
		store:   store,
		limiter: limiter,
		sink:    sink,
		guard:   guard,
		logger:  log,
	}
}

// Run executes the crawl task until completion or an unrecoverable failure.
// A persisted checkpoint from an earlier run is resumed: completed shards
// are skipped and the current shard continues at its saved page. On failure
// the checkpoint stays behind so the caller can resume later.
func (o *Orchestrator) Run(ctx context.Context, task Task) error {
	if !o.guard.TryAcquire(task.ID) {
		return fmt.Errorf("task %s: %w", task.ID, ErrTaskActive)
	}
	defer o.guard.Release(task.ID)

	started := time.Now()
	log := o.logger.WithFields(map[string]interface{}{
		"task_id": task.ID,
		"keyword": task.Keyword,
	})
	log.Info("crawl started")

	rangeStart, rangeEnd := task.Since, task.Until
	if task.Direction == checkpoint.DirectionForward && rangeEnd.IsZero() {
		rangeEnd = time.Now()
	}

	shards, err := o.planner.Plan(ctx, rangeStart, rangeEnd, task.Keyword)
	if err != nil {
		o.fail(task, err)
		return err
	}
	if task.Direction == checkpoint.DirectionBackward {
		// Backward crawls walk history newest-first, so resuming always
		// continues from where fresh data left off.
		for l, r := 0, len(shards)-1; l < r; l, r = l+1, r-1 {
			shards[l], shards[r] = shards[r], shards[l]
		}
	}
	log.WithField("shards", len(shards)).Info("crawl plan ready")

	cp, found, err := o.store.Load(ctx, task.ID)
	if err != nil {
		o.fail(task, err)
		return err
	}

	startIdx := 0
	if !found {
		cp = checkpoint.NewBackward(task.ID, shards[0].Start, shards[0].End)
		cp.Direction = task.Direction
		if err := o.store.Save(ctx, cp); err != nil {
			o.fail(task, err)
			return err
		}
	} else {
		for startIdx < len(shards) && cp.HasCompleted(shards[startIdx].Start, shards[startIdx].End) {
			startIdx++
		}
		if startIdx == len(shards) {
			log.Info("all shards already completed")
			o.complete(task, 0, started)
			return nil
		}
		if !shards[startIdx].Start.Equal(cp.ShardStart) || !shards[startIdx].End.Equal(cp.ShardEnd) {
			// The shard plan changed since the checkpoint was written
			// (different estimator output). Restart the shard from page 1.
			log.WarnWithFields("checkpoint shard does not match plan, restarting shard", map[string]interface{}{
				"checkpoint_start": cp.ShardStart,
				"plan_start":       shards[startIdx].Start,
			})
			cp.ShardStart = shards[startIdx].Start
			cp.ShardEnd = shards[startIdx].End
			cp.CurrentPage = 1
		} else {
			log.WithField("page", cp.CurrentPage).Info("resuming from checkpoint")
		}
	}

	total := 0
	for i := startIdx; i < len(shards); i++ {
		shard := shards[i]
		if shard.Partial {
			log.WarnWithFields("shard has partial coverage, results past the cap are unreachable", map[string]interface{}{
				"shard_start": shard.Start,
				"shard_end":   shard.End,
			})
		}

		for {
			if o.limiter != nil {
				if err := o.limiter.Wait(ctx); err != nil {
					log.WithError(err).Warn("crawl cancelled while rate limited")
					return err
				}
			}

			page := cp.CurrentPage
			result, err := o.fetcher.FetchPage(ctx, task.Keyword, shard, page)
			if err != nil {
				o.fail(task, err)
				return err
			}
			total += result.Count

			cp.AdvancePage()
			if err := o.store.Save(ctx, cp); err != nil {
				o.fail(task, err)
				return err
			}

			o.sink.Progress(events.ProgressEvent{
				TaskID:          task.ID,
				Status:          "crawling",
				RangeStart:      shard.Start,
				RangeEnd:        shard.End,
				CurrentPage:     page,
				CumulativeCount: total,
				Timestamp:       time.Now(),
			})

			if !result.HasMore {
				break
			}
		}

		if i+1 < len(shards) {
			next := shards[i+1]
			cp.CompleteCurrentShard(next.Start, next.End)
			if err := o.store.Save(ctx, cp); err != nil {
				o.fail(task, err)
				return err
			}
			log.DebugWithFields("shard completed", map[string]interface{}{
				"completed": len(cp.CompletedShards),
				"remaining": len(shards) - i - 1,
			})
		}
	}

	o.complete(task, total, started)
	log.WithField("total", total).Info("crawl completed")
	return nil
}

// complete emits the terminal completion event
func (o *Orchestrator) complete(task Task, total int, started time.Time) {
	o.sink.Completed(events.CompletedEvent{
		TaskID:      task.ID,
		FinalStatus: "completed",
		TotalCount:  total,
		Duration:    time.Since(started),
		Timestamp:   time.Now(),
	})
}

// fail emits an ErrorEvent classified from the failure, unless the failure
// is a plain cancellation
func (o *Orchestrator) fail(task Task, err error) {
	if stderrors.Is(err, context.Canceled) || stderrors.Is(err, context.DeadlineExceeded) {
		return
	}

	var code events.ErrorCode
	switch errors.TypeOf(err) {
	case errors.ErrorTypeCaptcha:
		code = events.CaptchaDetected
	case errors.ErrorTypeStorage:
		code = events.StorageError
	default:
		code = events.NetworkError
	}

	o.sink.Error(events.ErrorEvent{
		TaskID:    task.ID,
		Message:   err.Error(),
		Code:      code,
		Timestamp: time.Now(),
	})
}
