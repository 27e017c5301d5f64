// Package grpc implements the structured-RPC transport. Each encoded batch is
// sent as the body of one unary call to PipelineMethod, the response body is
// the encoded result batch. Framing, multiplexing and reconnects are handled
// by HTTP/2 and grpc-go, the payload bytes are identical to the framed
// transport's.
//
// A raw codec is forced on both sides so grpc-go does not try to interpret
// the payload as protobuf. NewGRPCServer exposes a handler as the matching
// service, it is used by tests and the CLI's local server.
//
// Errors are mapped from gRPC status codes: DeadlineExceeded becomes a
// connection error wrapping common.ErrTimeout, Unavailable and Canceled are
// connection errors, everything else is a protocol error.
package grpc
