// Package api exposes a read-only HTTP view of the running agent: a liveness
// probe and a snapshot of the scheduler's tasks and the hub's listener tables.
package api
