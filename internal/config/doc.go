// Package config loads, parses and validates application settings from
// environment variables (KBASE_ prefix) and an optional config.yaml. It covers
// the HTTP server, the durable database, the shared Redis store, per-queue job
// policies, cache TTLs and rate-limit budgets.
package config
