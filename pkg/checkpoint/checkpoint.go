package checkpoint

import (
	"time"
)

// Direction tells which way a crawl walks time
type Direction string

const (
	// DirectionBackward is historical backfill from now toward an event's
	// start time
	DirectionBackward Direction = "backward"
	// DirectionForward is an incremental update from the last known post
	// time to now
	DirectionForward Direction = "forward"
)

// ShardRange is one completed (start, end) time shard
type ShardRange struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Checkpoint is the resumable position of one crawl task: the current shard,
// the in-shard page, and the history of completed shards in completion
// order. It is persisted after every mutation so a crashed crawl resumes
// where it stopped.
type Checkpoint struct {
	TaskID          string       `json:"task_id"`
	ShardStart      time.Time    `json:"shard_start"`
	ShardEnd        time.Time    `json:"shard_end"`
	CurrentPage     int          `json:"current_page"`
	Direction       Direction    `json:"direction"`
	CompletedShards []ShardRange `json:"completed_shards"`
	SavedAt         time.Time    `json:"saved_at"`
}

// NewBackward creates a checkpoint for historical backfill over
// [shardStart, shardEnd)
func NewBackward(taskID string, shardStart, shardEnd time.Time) *Checkpoint {
	return &Checkpoint{
		TaskID:      taskID,
		ShardStart:  shardStart,
		ShardEnd:    shardEnd,
		CurrentPage: 1,
		Direction:   DirectionBackward,
		SavedAt:     time.Now(),
	}
}

// NewForward creates a checkpoint for an incremental crawl from shardStart
// up to now
func NewForward(taskID string, shardStart time.Time) *Checkpoint {
	return &Checkpoint{
		TaskID:      taskID,
		ShardStart:  shardStart,
		ShardEnd:    time.Now(),
		CurrentPage: 1,
		Direction:   DirectionForward,
		SavedAt:     time.Now(),
	}
}

// AdvancePage records one successfully fetched page within the current shard
func (c *Checkpoint) AdvancePage() {
	c.CurrentPage++
	c.SavedAt = time.Now()
}

// CompleteCurrentShard records the current shard as done and moves to the
// next one, resetting the page counter
func (c *Checkpoint) CompleteCurrentShard(nextStart, nextEnd time.Time) {
	c.CompletedShards = append(c.CompletedShards, ShardRange{Start: c.ShardStart, End: c.ShardEnd})
	c.ShardStart = nextStart
	c.ShardEnd = nextEnd
	c.CurrentPage = 1
	c.SavedAt = time.Now()
}

// HasCompleted reports whether the given shard bounds are already in the
// completed history
func (c *Checkpoint) HasCompleted(start, end time.Time) bool {
	for _, r := range c.CompletedShards {
		if r.Start.Equal(start) && r.End.Equal(end) {
			return true
		}
	}
	return false
}
