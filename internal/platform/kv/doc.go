// Package kv is the shared key-value store every process of the system talks
// to. It backs the job queues, the cache-aside layer and the fixed-window rate
// limiter, and exposes only the primitives those need: get/set with TTL,
// delete (including by glob pattern) and an atomic windowed increment.
package kv
