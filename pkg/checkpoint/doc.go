// Package checkpoint tracks the resumable position of a crawl task.
//
// A checkpoint records the current time shard, the 1-based page within it,
// the crawl direction, and the history of completed shards in completion
// order. The orchestrator persists the checkpoint after every page and
// shard transition, so a multi-hour crawl survives a crash and resumes
// where it stopped.
//
// Two store backends are provided: a file store writing one JSON file per
// task atomically (tmp file + rename), and a Redis store keyed as
// <namespace>:checkpoint:<task_id>.
package checkpoint
