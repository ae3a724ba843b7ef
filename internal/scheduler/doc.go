// Package scheduler pages sub-queries through a fetch capability with a
// bounded pool of workers.
//
// A producer goroutine drains the partitioner's sequence into a bounded
// queue; when the queue is full the producer blocks, and because the
// sequence is lazy that also pauses discovery. Each worker takes one
// sub-query at a time and pages through it in order, so a page's cursor is
// always known before the next page is requested. Pages of different
// sub-queries interleave freely.
//
// Every fetch waits on a run-scoped Throttle. Rate-limited responses halve
// the throttle's rate and lengthen its inter-request delay for the rest of
// the run. Transient failures are retried with exponential backoff and
// full jitter; permanent failures are recorded without retry; an
// unavailable upstream aborts the run. Normalized records are handed to the
// sink from a single goroutine.
package scheduler
