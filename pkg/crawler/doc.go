// Package crawler drives a keyword crawl across planner-produced time
// shards, persisting a checkpoint after every page and shard transition so
// the crawl survives crashes and cancellation.
//
// One task is always crawled by at most one orchestrator run; the Guard
// rejects a second concurrent crawl of the same task id. Within a run,
// shards are walked chronologically and pages sequentially; failures halt
// the task with a typed ErrorEvent and leave the checkpoint behind for a
// later resume.
package crawler
