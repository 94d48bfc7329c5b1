// Package simnet is an in-memory MLE transport for tests and the
// simulator.
//
// Service implements mle.MessageService on a virtual clock: sent messages
// are recorded, retransmission timers fire only when the clock is advanced,
// and allocation failures can be injected. Network attaches scripted
// parent routers to a Service and answers the requests of the node under
// test with encoded MLE payloads.
//
// Nothing here is safe for concurrent use. Timer callbacks and message
// deliveries run on the goroutine that advances the clock, which matches
// the single event loop the bootstrap engine expects.
package simnet
