package runner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"snscraper/pkg/crawler"
	"snscraper/pkg/logger"
)

// TaskResult reports the outcome of one crawl task run
type TaskResult struct {
	Task     crawler.Task
	Err      error
	Duration time.Duration
}

// Runner executes crawl tasks concurrently, each task as its own
// independently cancellable unit. The orchestrator's per-task guard keeps
// two submissions of the same task from running at once; the runner only
// bounds how many distinct tasks run in parallel.
type Runner struct {
	numWorkers   int
	orchestrator *crawler.Orchestrator
	jobQueue     chan crawler.Task
	resultQueue  chan TaskResult
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
	logger       logger.Logger
}

// New creates a runner with the given worker count
func New(numWorkers int, orchestrator *crawler.Orchestrator, log logger.Logger) *Runner {
	if log == nil {
		log = logger.GetLogger()
	}
	if numWorkers <= 0 {
		numWorkers = 1
	}
	ctx, cancel := context.WithCancel(context.Background())

	return &Runner{
		numWorkers:   numWorkers,
		orchestrator: orchestrator,
		jobQueue:     make(chan crawler.Task, numWorkers*2),
		resultQueue:  make(chan TaskResult, numWorkers),
		ctx:          ctx,
		cancel:       cancel,
		logger:       log,
	}
}

// Start launches the workers
func (r *Runner) Start() {
	r.logger.InfoWithFields("starting crawl runner", map[string]interface{}{
		"num_workers": r.numWorkers,
	})

	for i := 0; i < r.numWorkers; i++ {
		r.wg.Add(1)
		go r.worker(i)
	}
}

// Stop drains the queue, waits for in-flight tasks and shuts down
func (r *Runner) Stop() {
	r.logger.Info("stopping crawl runner")

	close(r.jobQueue)
	r.wg.Wait()
	close(r.resultQueue)
	r.cancel()

	r.logger.Info("crawl runner stopped")
}

// Abort cancels in-flight tasks; their checkpoints keep them resumable
func (r *Runner) Abort() {
	r.cancel()
}

// Submit queues a crawl task
func (r *Runner) Submit(task crawler.Task) error {
	if r.ctx.Err() != nil {
		return fmt.Errorf("runner is shutting down")
	}

	select {
	case r.jobQueue <- task:
		r.logger.DebugWithFields("task queued", map[string]interface{}{
			"task_id": task.ID,
			"keyword": task.Keyword,
		})
		return nil
	case <-r.ctx.Done():
		return fmt.Errorf("runner is shutting down")
	}
}

// Results returns the channel of finished task outcomes
func (r *Runner) Results() <-chan TaskResult {
	return r.resultQueue
}

// worker is the main worker routine
func (r *Runner) worker(id int) {
	defer r.wg.Done()

	for task := range r.jobQueue {
		select {
		case <-r.ctx.Done():
			return
		default:
		}

		started := time.Now()
		err := r.orchestrator.Run(r.ctx, task)
		result := TaskResult{
			Task:     task,
			Err:      err,
			Duration: time.Since(started),
		}

		if err != nil {
			r.logger.WithError(err).WithFields(map[string]interface{}{
				"worker_id": id,
				"task_id":   task.ID,
			}).Error("crawl task failed")
		}

		select {
		case r.resultQueue <- result:
		case <-r.ctx.Done():
			return
		}
	}
}
