// Package store defines the durable-store contracts the job handlers and
// HTTP layer depend on. The durable store is the source of truth; every
// write a job handler performs goes through an upsert or an idempotent
// status update so that re-running a job is safe.
package store
