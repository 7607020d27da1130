// Package events provides the in-process event hub used to broadcast
// lifecycle notifications ("flush started", "shutdown requested", ...)
// between independent components.
//
// The primary components are:
// - Listener: a registered callable; its pointer is its identity
// - Hub: named-event listener registry plus a global (all-events) list
// - Default: a lazily constructed process-wide Hub for host integrations
//
// Dispatch is synchronous on the calling goroutine. Listeners registered under
// an event name run most-recently-registered first, followed by every global
// listener. Listener bodies run under the hub's gate.Gate and never while the
// registry lock is held, so a listener may register, remove or dispatch.
package events
