package transport

import (
	"context"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"io"
	"net"
)

// --------------------------------------------------------------------------
// Client Transport
// --------------------------------------------------------------------------

// IRPCClientTransport is the interface for the RPC client transport.
// A transport moves one encoded batch to the server and returns the encoded
// answer. It knows nothing about the payload itself.
type IRPCClientTransport interface {
	// Connect initializes the transport with the given configuration
	Connect(config common.ClientConfig) error
	// Send sends a request payload to the server and returns the response payload.
	// The returned error is always a *common.Error of kind connection or protocol.
	Send(ctx context.Context, req []byte) (resp []byte, err error)
	// Close releases all connections. Pending and later calls to Send fail.
	Close() error
}

// IMetricsWriter is implemented by transports that collect metrics
type IMetricsWriter interface {
	// WritePrometheus writes all metrics in the Prometheus text format to w
	WritePrometheus(w io.Writer)
}

// --------------------------------------------------------------------------
// Server Transport
// --------------------------------------------------------------------------

// ServerHandleFunc handles one request payload and returns the response payload.
// peer is the remote address of the connection the request arrived on.
type ServerHandleFunc func(peer string, req []byte) []byte

// IRPCServerTransport is the interface for the RPC server transport
type IRPCServerTransport interface {
	// RegisterHandler registers the handler for incoming requests
	RegisterHandler(handler ServerHandleFunc)
	// RegisterDisconnectHandler registers a callback that runs once for every
	// connection that ends, after its last request was answered
	RegisterDisconnectHandler(handler func(peer string))
	// Listen binds the listener, requests are only handled after Serve is called
	Listen(config common.ServerConfig) error
	// Serve accepts connections until Close is called
	Serve() error
	// Addr returns the address of the bound listener
	Addr() net.Addr
	// DropConnections closes all open connections but keeps listening.
	// It returns the number of closed connections.
	DropConnections() int
	// Close stops listening and closes all open connections
	Close() error
}
