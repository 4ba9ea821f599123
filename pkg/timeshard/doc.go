// Package timeshard splits a search time range into hour-aligned shards that
// each stay under the platform's result-count cap.
//
// The platform only serves a bounded number of results per query, so a long
// range must be walked as a series of smaller sub-ranges. The planner asks an
// Estimator how many results a range would produce and bisects on hour
// boundaries until every shard fits under the cap, down to a configurable
// minimum shard size (default one hour).
//
// When even the minimal shard exceeds the cap the shard is emitted anyway
// with Partial set, signalling that results past the cap inside it are
// unreachable.
//
// Two estimators are provided:
//   - LinearEstimator: deterministic per-hour rate, for tests and dry runs
//   - ProbeEstimator: probes the first page of live results through the
//     automation bridge
package timeshard
