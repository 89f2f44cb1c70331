// Package events is the best-effort side channel for job lifecycle events.
//
// Producers emit an event after their primary durable write has succeeded.
// Handlers run asynchronously, at most once per event, and their failures
// are logged rather than returned: nothing on the critical path of a job may
// depend on an event being delivered. Work that must happen belongs in the
// job queue instead.
//
// The primary components are:
// - JobEvent: a job reached a terminal state or was reaped
// - EventHandler: interface for components that react to events
// - AsyncEmitter: dispatches events to registered handlers in the background
package events
