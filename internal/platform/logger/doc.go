// Package logger configures the process-wide slog JSON logger and carries
// request- and job-scoped loggers through a context.
package logger
