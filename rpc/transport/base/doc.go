// Package base implements the protocol independent part of the transport layer. The
// tcp and unix packages extend it with protocol-specific connectors.
//
// Framing:
//
//	Every frame is flags(1) | length(uint32, big endian) | payload. Bit 0 of flags
//	marks that another frame of the same message follows, so the end of a message is
//	the first frame without it. Messages are written with net.Buffers to combine the
//	headers and payloads of all frames into a single write.
//
// Server:
//
//   - One reader goroutine per connection decodes complete messages and pushes them to
//     the shared inbound queue. One writer goroutine per connection drains a bounded
//     outbox.
//   - StopIntake closes the listener, stops the readers and closes the inbound queue.
//     Connections stay open until Close flushed the outboxes.
//   - A connection that fails or is closed by the client runs the disconnect
//     callbacks exactly once.
//
// Client:
//
//   - Connection Pooling: up to ConnectionsPerEndpoint connections per endpoint, used
//     round robin. A pooled connection carries one request at a time.
//   - Retries: failed round trips discard the connection and retry with exponential
//     backoff and jitter.
//   - Streams: dedicated connections that are closed instead of pooled.
//
// Thread Safety:
//
//	All public methods are thread-safe.
package base
