// Package unix implements the framed transport over Unix domain sockets. It is
// meant for a client and server running on the same machine, e.g. a local
// server behind a socket file.
//
// This package extends the base transport layer with Unix socket-specific connectors
// while inheriting the connection pool, framing and liveness checks from the base
// package. Endpoints are socket paths.
//
// Key Components:
//
//   - clientConnector: Establishes connections using Unix domain sockets
//
//   - serverConnector: Creates Unix socket listeners, replacing a stale socket file
package unix
