// Package log provides structured protocol capture for MLE attach and
// bootstrap activity.
//
// It is separate from operational logging (slog): protocol capture is a
// complete, machine-readable trace of every MLE message sent or received,
// every retransmission timeout and every attach state change, suitable for
// offline analysis with mlectl.
//
// # Basic Usage
//
//	// Development: events to the console
//	cfg.ProtocolLogger = log.NewSlogAdapter(slog.Default())
//
//	// Production: binary capture file
//	fl, _ := log.NewFileLogger("/var/log/mle/node.mlog")
//	cfg.ProtocolLogger = fl
//
//	// Both
//	cfg.ProtocolLogger = log.NewMultiLogger(log.NewSlogAdapter(slog.Default()), fl)
//
// # Event Types
//
// Every event names its interface and, while an attach cycle is in
// progress, the attempt id of that cycle. One payload is set per event:
//   - MessageEvent: an MLE message, inbound or outbound
//   - TimeoutEvent: a retransmission timeout and the decision taken
//   - StateChangeEvent: attach state, role, parent or partition changes
//   - ErrorEventData: dropped messages and escalated connection errors
//
// # File Format
//
// Capture files are a stream of CBOR-encoded events with integer keys,
// conventionally using the .mlog extension.
package log
