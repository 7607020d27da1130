// Package gate models the embedding host's execution-serialization constraint:
// only one goroutine at a time may run host-supplied logic (listener bodies,
// task bodies, shutdown hooks). Every call into host logic goes through a Gate.
//
// Hosts without such a constraint use Noop.
package gate
