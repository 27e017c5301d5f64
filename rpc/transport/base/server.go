package base

import (
	"errors"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/puzpuzpuz/xsync/v3"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

// -----------------------------------------------------------
// Interface Definitions for dependency injection
// -----------------------------------------------------------

// IServerConnector defines the interface for transport-specific server operations
type IServerConnector interface {
	// Listen creates a listener and returns it
	Listen(config common.ServerConfig) (net.Listener, error)

	// GetName returns the name of the transport type (e.g., "tcp")
	GetName() string

	// UpgradeConnection applies protocol-specific settings to an accepted connection
	UpgradeConnection(conn net.Conn, config common.ServerConfig) error
}

// -----------------------------------------------------------
// Helper Types
// -----------------------------------------------------------

// serverTransport implements the core server transport functionality.
// Each connection is served by one goroutine that answers frames strictly in
// order, there is at most one request in flight per connection.
type serverTransport struct {
	connector IServerConnector
	handler   transport.ServerHandleFunc
	onClose   func(peer string)
	config    common.ServerConfig
	listener  net.Listener
	conns     *xsync.MapOf[net.Conn, struct{}]
	closed    atomic.Bool
	wg        sync.WaitGroup
}

// -----------------------------------------------------------
// Transport Factory Method
// -----------------------------------------------------------

// NewBaseServerTransport creates a new base server transport with the specified connector
func NewBaseServerTransport(connector IServerConnector) transport.IRPCServerTransport {
	return &serverTransport{
		connector: connector,
		conns:     xsync.NewMapOf[net.Conn, struct{}](),
	}
}

// --------------------------------------------------------------------------
// Interface Methods (docu see transport.IRPCServerTransport)
// --------------------------------------------------------------------------

func (t *serverTransport) RegisterHandler(handler transport.ServerHandleFunc) {
	t.handler = handler
}

func (t *serverTransport) RegisterDisconnectHandler(handler func(peer string)) {
	t.onClose = handler
}

func (t *serverTransport) Listen(config common.ServerConfig) error {
	if config.Version == (common.Version{}) {
		config.Version = common.ProtocolVersion
	}
	t.config = config

	// Create listener using the connector
	listener, err := t.connector.Listen(config)
	if err != nil {
		return fmt.Errorf("failed to create listener: %v", err)
	}
	t.listener = listener

	Logger.Infof("Listening for %s connections on %s", t.connector.GetName(), listener.Addr())
	return nil
}

func (t *serverTransport) Serve() error {
	if t.listener == nil {
		return fmt.Errorf("server is not listening")
	}
	if t.handler == nil {
		return fmt.Errorf("no handler registered")
	}

	// Accept connections
	for {
		conn, err := t.listener.Accept()
		if err != nil {
			if t.closed.Load() || errors.Is(err, net.ErrClosed) {
				return nil
			}
			Logger.Errorf("Accept error: %v", err)
			continue
		}
		if t.closed.Load() {
			_ = conn.Close()
			return nil
		}

		if err := t.connector.UpgradeConnection(conn, t.config); err != nil {
			Logger.Warningf("Failed to upgrade connection from %s: %v", conn.RemoteAddr(), err)
			_ = conn.Close()
			continue
		}

		// Handle the connection in a goroutine
		t.conns.Store(conn, struct{}{})
		t.wg.Add(1)
		go t.handleConnection(conn)
	}
}

func (t *serverTransport) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *serverTransport) DropConnections() int {
	dropped := 0
	t.conns.Range(func(conn net.Conn, _ struct{}) bool {
		_ = conn.Close()
		dropped++
		return true
	})
	return dropped
}

func (t *serverTransport) Close() error {
	if !t.closed.CompareAndSwap(false, true) {
		return nil
	}

	var err error
	if t.listener != nil {
		err = t.listener.Close()
	}
	t.DropConnections()
	t.wg.Wait()
	return err
}

// --------------------------------------------------------------------------
// Helper Methods
// --------------------------------------------------------------------------

// handleConnection answers frames on one connection until it is closed
func (t *serverTransport) handleConnection(conn net.Conn) {
	peer := conn.RemoteAddr().String()

	defer t.wg.Done()
	defer func() {
		if t.onClose != nil {
			t.onClose(peer)
		}
	}()
	defer t.conns.Delete(conn)
	defer conn.Close()

	for {
		if t.config.ReadTimeout > 0 {
			if err := conn.SetReadDeadline(time.Now().Add(t.config.ReadTimeout)); err != nil {
				Logger.Errorf("Failed to set read deadline: %v", err)
				return
			}
		}

		_, req, err := ReadFrame(conn, t.config.MaxMessageSize)
		if err != nil {
			if IsExpectedCloseError(err) || t.closed.Load() {
				Logger.Debugf("Connection from %s closed", conn.RemoteAddr())
			} else {
				Logger.Errorf("Error reading request from %s: %v", conn.RemoteAddr(), err)
			}
			return
		}

		// Process the request
		start := time.Now()
		resp := t.handler(peer, req)
		Logger.Debugf("Processed request of %d bytes in %s", len(req), time.Since(start))

		if t.config.WriteTimeout > 0 {
			if err := conn.SetWriteDeadline(time.Now().Add(t.config.WriteTimeout)); err != nil {
				Logger.Errorf("Failed to set write deadline: %v", err)
				return
			}
		}

		if err := WriteFrame(conn, t.config.Version, resp); err != nil {
			if !IsExpectedCloseError(err) {
				Logger.Errorf("Failed to write response: %v", err)
			}
			return
		}
	}
}
