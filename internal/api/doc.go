// Package api handles incoming HTTP requests, request validation and
// response formatting. Handlers translate HTTP requests into queue
// submissions and cache-aside reads; long-running work is always handed to
// the job queue and answered with a job id.
package api
