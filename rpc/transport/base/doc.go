// Package base provides the protocol-agnostic part of the framed transport:
// message framing, the connection pool and the request/response exchange.
// Network specific code (dialing, socket options) is plugged in through
// connectors.
//
// Frame layout (all integers little endian):
//
//	offset 0   8 bytes  magic "AHNLICH;"
//	offset 8   1 byte   version major
//	offset 9   2 bytes  version minor
//	offset 11  2 bytes  version patch
//	offset 13  8 bytes  payload length
//	offset 21  N bytes  payload
//
// Key Components:
//
//   - IClientConnector/IServerConnector: Interfaces for protocol-specific operations
//     that allow extending the base transport with different network protocols.
//
//   - ConnPool: Per-endpoint pool with a shared ceiling. A leased connection is
//     owned by exactly one exchange. Idle connections are checked for expiry and
//     peeked for liveness before reuse: a connection the peer closed, or one
//     with unsolicited bytes waiting, is closed instead of handed out. An
//     optional reaper closes expired idle connections in the background and
//     keeps MinIdle connections open.
//
//   - clientTransport: Leases a connection, writes one frame, reads one frame
//     and returns the connection. Any I/O, timeout or framing failure discards
//     the connection. Only checkout failures are retried (exponential backoff
//     with jitter), a request that was written is never sent twice.
//
//   - serverTransport: Accepts connections and answers frames in order, one
//     goroutine per connection. Used by the in-process test server.
//
// Thread Safety:
//
//	All public methods are thread-safe. Metrics are kept per transport in a
//	VictoriaMetrics set and can be exported with WritePrometheus.
package base
