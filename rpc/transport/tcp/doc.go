// Package tcp implements the TCP socket based transport for the ahnlich RPC
// system. It provides concrete implementations of the base package's connector
// interfaces.
//
// This package builds on the base package's transport functionality and
// inherits its connection pool, framing and liveness checks. See the base
// package documentation for details.
//
// Key Components:
//
//   - clientConnector: TCP-specific implementation of base.IClientConnector.
//     Dials with the context of the pool checkout, so the connect timeout and
//     the acquire timeout both apply.
//
//   - serverConnector: TCP-specific implementation of base.IServerConnector,
//     used by the in-process test server.
//
// Socket options (TCP_NODELAY, buffer sizes, keep-alive, linger) are applied
// to every new connection from common.TCPConf and common.SocketConf.
package tcp
