// Package transport defines the interfaces for moving ahnlich requests between
// client and server. A transport only sees opaque payloads; encoding is left to
// the serializer package.
//
// The package focuses on:
//   - Defining clear interfaces for client and server transport layers
//   - Enabling multiple transport implementations (TCP, Unix sockets, gRPC)
//
// Key Components:
//
//   - IRPCClientTransport: Interface for client-side transport implementations that
//     handles connection management and request sending.
//
//   - IRPCServerTransport: Interface for server-side transport implementations that
//     receives requests and passes them to the registered handler.
//
//   - IMetricsWriter: Optional interface for transports that export metrics.
//
//   - ServerHandleFunc: Function type for request handling callbacks.
package transport
