// Package postgres implements the durable stores declared in internal/store
// on PostgreSQL through the pgx stdlib driver, and carries the embedded goose
// migrations that create their tables.
package postgres
