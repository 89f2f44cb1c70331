// Package task runs the queue workers. A WorkerPool claims jobs from one
// queue, runs the registered Handler with a progress callback and records
// the outcome; a Runner supervises one pool per queue together with the
// lease reaper. The handlers for knowledge files, web pages and chat
// messages live here too.
package task
