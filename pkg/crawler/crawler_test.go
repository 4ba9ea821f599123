package crawler

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snscraper/pkg/checkpoint"
	"snscraper/pkg/errors"
	"snscraper/pkg/events"
	"snscraper/pkg/timeshard"
)

type fetchCall struct {
	shard timeshard.Shard
	page  int
}

// fakeFetcher serves a fixed number of pages per shard and records every call
type fakeFetcher struct {
	mu            sync.Mutex
	pagesPerShard int
	perPage       int
	calls         []fetchCall
	failOn        func(shard timeshard.Shard, page int) error
	block         chan struct{} // when set, FetchPage waits on it
}

func (f *fakeFetcher) FetchPage(ctx context.Context, _ string, shard timeshard.Shard, page int) (PageResult, error) {
	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return PageResult{}, ctx.Err()
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, fetchCall{shard: shard, page: page})
	f.mu.Unlock()

	if f.failOn != nil {
		if err := f.failOn(shard, page); err != nil {
			return PageResult{}, err
		}
	}
	return PageResult{Count: f.perPage, HasMore: page < f.pagesPerShard}, nil
}

func (f *fakeFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// memStore is an in-memory checkpoint store with save-error injection
type memStore struct {
	mu      sync.Mutex
	data    map[string]checkpoint.Checkpoint
	saves   int
	saveErr error
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string]checkpoint.Checkpoint)}
}

func (s *memStore) Save(_ context.Context, cp *checkpoint.Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.saves++
	copied := *cp
	copied.CompletedShards = append([]checkpoint.ShardRange(nil), cp.CompletedShards...)
	s.data[cp.TaskID] = copied
	return nil
}

func (s *memStore) Load(_ context.Context, taskID string) (*checkpoint.Checkpoint, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.data[taskID]
	if !ok {
		return nil, false, nil
	}
	copied := cp
	copied.CompletedShards = append([]checkpoint.ShardRange(nil), cp.CompletedShards...)
	return &copied, true, nil
}

func (s *memStore) Delete(_ context.Context, taskID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, taskID)
	return nil
}

// captureSink records all events
type captureSink struct {
	mu        sync.Mutex
	progress  []events.ProgressEvent
	completed []events.CompletedEvent
	errs      []events.ErrorEvent
}

func (s *captureSink) Progress(e events.ProgressEvent)       { s.mu.Lock(); s.progress = append(s.progress, e); s.mu.Unlock() }
func (s *captureSink) Completed(e events.CompletedEvent)     { s.mu.Lock(); s.completed = append(s.completed, e); s.mu.Unlock() }
func (s *captureSink) Error(e events.ErrorEvent)             { s.mu.Lock(); s.errs = append(s.errs, e); s.mu.Unlock() }
func (s *captureSink) LoginOutcome(events.LoginOutcomeEvent) {}

// twoShardPlanner yields exactly two 2h shards for a 4h range
func twoShardPlanner() *timeshard.Planner {
	return timeshard.NewPlanner(timeshard.LinearEstimator{PerHour: 300}, 1000, 1, nil)
}

func testTask(direction checkpoint.Direction) Task {
	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	return Task{
		ID:        "task-1",
		Keyword:   "golang",
		Since:     since,
		Until:     since.Add(4 * time.Hour),
		Direction: direction,
	}
}

func TestRunCrawlsAllShards(t *testing.T) {
	fetcher := &fakeFetcher{pagesPerShard: 2, perPage: 20}
	store := newMemStore()
	sink := &captureSink{}

	o := New(fetcher, twoShardPlanner(), store, nil, sink, NewGuard(), nil)

	err := o.Run(context.Background(), testTask(checkpoint.DirectionForward))
	require.NoError(t, err)

	// 2 shards of 2 pages each.
	assert.Equal(t, 4, fetcher.callCount())

	require.Len(t, sink.completed, 1)
	assert.Equal(t, "task-1", sink.completed[0].TaskID)
	assert.Equal(t, 80, sink.completed[0].TotalCount)
	assert.Len(t, sink.progress, 4)
	assert.Empty(t, sink.errs)

	// Cumulative count grows monotonically.
	for i := 1; i < len(sink.progress); i++ {
		assert.GreaterOrEqual(t, sink.progress[i].CumulativeCount, sink.progress[i-1].CumulativeCount)
	}

	// The persisted checkpoint ends on the last shard with one completed.
	cp, found, err := store.Load(context.Background(), "task-1")
	require.NoError(t, err)
	require.True(t, found)
	assert.Len(t, cp.CompletedShards, 1)
}

func TestRunBackwardVisitsNewestFirst(t *testing.T) {
	fetcher := &fakeFetcher{pagesPerShard: 1, perPage: 5}
	store := newMemStore()

	o := New(fetcher, twoShardPlanner(), store, nil, nil, NewGuard(), nil)

	task := testTask(checkpoint.DirectionBackward)
	require.NoError(t, o.Run(context.Background(), task))

	require.Len(t, fetcher.calls, 2)
	assert.True(t, fetcher.calls[0].shard.Start.After(fetcher.calls[1].shard.Start),
		"backward crawl must visit the newest shard first")
}

func TestRunSavesCheckpointAfterEveryPage(t *testing.T) {
	fetcher := &fakeFetcher{pagesPerShard: 3, perPage: 10}
	store := newMemStore()

	o := New(fetcher, twoShardPlanner(), store, nil, nil, NewGuard(), nil)

	require.NoError(t, o.Run(context.Background(), testTask(checkpoint.DirectionForward)))

	// Initial save, one per page (6), one per shard hand-off (1).
	assert.Equal(t, 1+6+1, store.saves)
}

func TestRunResumesFromCheckpoint(t *testing.T) {
	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	store := newMemStore()

	// Seed state as if the first shard finished and the second stopped at
	// page 3: pages 1 and 2 were already fetched.
	cp := checkpoint.NewBackward("task-1", since, since.Add(2*time.Hour))
	cp.Direction = checkpoint.DirectionForward
	cp.CompleteCurrentShard(since.Add(2*time.Hour), since.Add(4*time.Hour))
	cp.AdvancePage()
	cp.AdvancePage()
	require.NoError(t, store.Save(context.Background(), cp))

	fetcher := &fakeFetcher{pagesPerShard: 4, perPage: 10}
	sink := &captureSink{}
	o := New(fetcher, twoShardPlanner(), store, nil, sink, NewGuard(), nil)

	require.NoError(t, o.Run(context.Background(), testTask(checkpoint.DirectionForward)))

	// Only pages 3 and 4 of the second shard are fetched.
	require.Len(t, fetcher.calls, 2)
	assert.Equal(t, 3, fetcher.calls[0].page)
	assert.Equal(t, 4, fetcher.calls[1].page)
	for _, call := range fetcher.calls {
		assert.True(t, call.shard.Start.Equal(since.Add(2*time.Hour)))
	}
	require.Len(t, sink.completed, 1)
}

func TestRunAllShardsAlreadyCompleted(t *testing.T) {
	since := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	store := newMemStore()

	cp := checkpoint.NewBackward("task-1", since, since.Add(2*time.Hour))
	cp.Direction = checkpoint.DirectionForward
	cp.CompleteCurrentShard(since.Add(2*time.Hour), since.Add(4*time.Hour))
	cp.CompleteCurrentShard(since.Add(4*time.Hour), since.Add(6*time.Hour))
	require.NoError(t, store.Save(context.Background(), cp))

	fetcher := &fakeFetcher{pagesPerShard: 1, perPage: 1}
	sink := &captureSink{}
	o := New(fetcher, twoShardPlanner(), store, nil, sink, NewGuard(), nil)

	require.NoError(t, o.Run(context.Background(), testTask(checkpoint.DirectionForward)))

	assert.Equal(t, 0, fetcher.callCount())
	require.Len(t, sink.completed, 1)
	assert.Equal(t, 0, sink.completed[0].TotalCount)
}

func TestRunRejectsConcurrentDuplicate(t *testing.T) {
	block := make(chan struct{})
	fetcher := &fakeFetcher{pagesPerShard: 1, perPage: 1, block: block}
	store := newMemStore()
	guard := NewGuard()

	o := New(fetcher, twoShardPlanner(), store, nil, nil, guard, nil)

	task := testTask(checkpoint.DirectionForward)
	firstDone := make(chan error, 1)
	go func() {
		firstDone <- o.Run(context.Background(), task)
	}()

	// Wait for the first run to hold the guard.
	require.Eventually(t, func() bool { return guard.Active(task.ID) },
		time.Second, time.Millisecond)

	err := o.Run(context.Background(), task)
	assert.ErrorIs(t, err, ErrTaskActive)

	close(block)
	require.NoError(t, <-firstDone)

	// Released after completion; a later run may start again.
	assert.False(t, guard.Active(task.ID))
}

func TestRunCaptchaEmitsTypedError(t *testing.T) {
	fetcher := &fakeFetcher{
		pagesPerShard: 2,
		perPage:       10,
		failOn: func(_ timeshard.Shard, page int) error {
			if page == 2 {
				return errors.New(errors.ErrorTypeCaptcha, "fetch", "captcha challenge")
			}
			return nil
		},
	}
	store := newMemStore()
	sink := &captureSink{}

	o := New(fetcher, twoShardPlanner(), store, nil, sink, NewGuard(), nil)

	err := o.Run(context.Background(), testTask(checkpoint.DirectionForward))
	require.Error(t, err)

	require.Len(t, sink.errs, 1)
	assert.Equal(t, events.CaptchaDetected, sink.errs[0].Code)
	assert.Empty(t, sink.completed)

	// The checkpoint survives for a later resume.
	_, found, loadErr := store.Load(context.Background(), "task-1")
	require.NoError(t, loadErr)
	assert.True(t, found)
}

func TestRunStorageFailureEmitsTypedError(t *testing.T) {
	fetcher := &fakeFetcher{pagesPerShard: 2, perPage: 10}
	store := newMemStore()
	store.saveErr = errors.New(errors.ErrorTypeStorage, "checkpoint.save", "disk full")
	sink := &captureSink{}

	o := New(fetcher, twoShardPlanner(), store, nil, sink, NewGuard(), nil)

	err := o.Run(context.Background(), testTask(checkpoint.DirectionForward))
	require.Error(t, err)

	require.Len(t, sink.errs, 1)
	assert.Equal(t, events.StorageError, sink.errs[0].Code)
}

func TestRunNetworkFailureEmitsTypedError(t *testing.T) {
	fetcher := &fakeFetcher{
		pagesPerShard: 1,
		perPage:       1,
		failOn: func(timeshard.Shard, int) error {
			return errors.New(errors.ErrorTypeNetwork, "fetch", "connection reset")
		},
	}
	sink := &captureSink{}

	o := New(fetcher, twoShardPlanner(), newMemStore(), nil, sink, NewGuard(), nil)

	require.Error(t, o.Run(context.Background(), testTask(checkpoint.DirectionForward)))
	require.Len(t, sink.errs, 1)
	assert.Equal(t, events.NetworkError, sink.errs[0].Code)
}

func TestRunCancellationEmitsNoErrorEvent(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fetcher := &fakeFetcher{
		pagesPerShard: 5,
		perPage:       1,
		failOn: func(_ timeshard.Shard, page int) error {
			if page == 2 {
				cancel()
				return ctx.Err()
			}
			return nil
		},
	}
	sink := &captureSink{}

	o := New(fetcher, twoShardPlanner(), newMemStore(), nil, sink, NewGuard(), nil)

	err := o.Run(ctx, testTask(checkpoint.DirectionForward))
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, sink.errs, "cancellation is not a failure")
	assert.Empty(t, sink.completed)
}
