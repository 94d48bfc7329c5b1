// Package bootstrap implements the attach and bootstrap state machine of a
// Thread node: parent discovery and selection, the Child-ID exchange,
// synchronization with a remembered parent after a reset, the steady-state
// MLE dispatcher, partition reconciliation and the child update keep-alive.
//
// # Interfaces
//
// An Engine owns one context per radio interface. Every operation resolves
// its interface explicitly from an mle.InterfaceID; interfaces share no
// state. Collaborators (message service, neighbor table, routing, network
// data, blacklist, key manager and supervisor) are injected per interface
// through Deps.
//
// # Concurrency
//
// The engine is not safe for concurrent use. It implements mle.Receiver and
// expects the message service to deliver messages and retransmission
// timeouts one at a time from a single event loop, and callers to invoke
// the remaining operations from that same loop.
//
// # Failure handling
//
// Malformed or unexpected messages are dropped and logged at Debug level;
// the retransmission machinery of the message service drives recovery.
// Partition and connectivity faults are reported to the Supervisor through
// ConnectionError, after which the affected handler returns without further
// changes. The supervisor decides how and when to restart with StartAttach.
//
// # Attach flow
//
//	StartAttach -> MLE_SCAN --(candidate)--> ATTACH_READY -> CHILD_ID_REQ -> CONNECTED
//	                   \--(no candidate, retries left)--> MLE_SCAN (REEDs included)
//	                   \--(exhausted)--> previous state, or NETWORK_ATTACH_FAIL
package bootstrap
