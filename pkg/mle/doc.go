// Package mle defines the Mesh Link Establishment vocabulary shared by the
// bootstrap core and its collaborators: command and TLV type codes, a small
// TLV codec, structured TLV layouts, address helpers and the contract of the
// message service that builds, secures and retransmits MLE messages.
//
// # TLV codec
//
// Payloads are sequences of one-byte type, one-byte length, value. Writers
// follow the append convention of encoding/binary:
//
//	p := mle.AppendUint16(nil, mle.TLVSourceAddress, 0x0400)
//	p = mle.AppendUint32(p, mle.TLVLinkFrameCounter, fc)
//
// Readers return the decoded value and whether the TLV was present and well
// formed:
//
//	short, ok := mle.ReadUint16(p, mle.TLVSourceAddress)
//
// # Message service
//
// The service owns outbound buffers, security and retransmission. The
// bootstrap engine allocates an Outbound, fills in payload, destination and
// timeout parameters, and sends it. When a retransmission timer fires the
// service calls Receiver.HandleTimeout with usedAllRetries set once the
// retry budget is exhausted; the returned RetryDecision tells the service
// whether to send again or release the buffer.
package mle
