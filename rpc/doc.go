// Package rpc provides the client side of the ahnlich DB protocol. It turns
// typed queries into framed binary requests, sends them over pooled
// connections and turns the replies back into typed results.
//
// The package is organized into several subpackages:
//
//   - common: Core data structures used across the RPC system, including the
//     query and result unions, predicates, configuration, errors and logging.
//
//   - serializer: The tagged-union codec (fixint or varint integers) that maps
//     query batches and result batches to bytes.
//
//   - transport: Network communication abstractions with pluggable implementations
//     (TCP, Unix sockets, gRPC) on top of a shared framer and connection pool.
//
//   - client: The typed DB client and the pipeline for sending several queries
//     in one round trip.
package rpc
