// Package queue implements the durable job queues that back asynchronous
// file ingestion, URL scraping and chat completion.
//
// Jobs live in the shared Redis store so that any number of worker processes
// can consume the same queue. Every state transition runs as a single Lua
// script, which makes claiming a job a true cross-process compare-and-swap:
// exactly one caller wins each job, and only the holder of the current lease
// token may report progress or resolve it.
//
// Per queue the store keeps a job hash plus five sorted sets:
//
//	waiting    score = priority, member = zero-padded sequence + ":" + id
//	delayed    score = ready-at (unix ms)
//	active     score = lease expiry (unix ms)
//	completed  score = finished-at (unix ms), trimmed to the retention count
//	failed     score = finished-at (unix ms), trimmed to the retention count
//
// Equal priorities fall back to lexicographic member order, which is the
// enqueue sequence, so ordering within a priority is FIFO.
package queue
