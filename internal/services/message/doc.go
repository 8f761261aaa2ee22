// Package message moves application messages through the session layer.
//
// Dispatcher persists an outbound message, echoes it to local subscribers,
// resolves every device of the recipient and the sender's other devices,
// and hands one encrypted wire item per device to the transport. Device
// legs run in parallel and fail independently.
//
// Pipeline decrypts inbound wire items. The decrypted cache is consulted
// first under a per-item lock, so a retransmitted item is answered without
// running the ratchet again.
package message
