// Package task runs lightweight periodic maintenance work (heartbeats, buffer
// flushes, stat rollups) on a single background loop without blocking the
// host application.
//
// A Task is a named, interval-driven unit of work with an optional shutdown
// hook. A Scheduler owns the loop goroutine and the task registry: each tick
// it runs every due task in registration order, under the host gate.
// Failures and panics in task bodies are logged and never reach the loop.
//
// Stop joins the loop and then runs every shutdown hook once, in
// registration order. Close (and the finalizer of an unreachable running
// Scheduler) joins the loop without running shutdown hooks, since the host
// may already be finalizing.
package task
