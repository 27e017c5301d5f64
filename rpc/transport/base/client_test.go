package base

import (
	"bytes"
	"context"
	"errors"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"io"
	"net"
	"strings"
	"testing"
	"time"
)

// --------------------------------------------------------------------------
// Test Connectors
// --------------------------------------------------------------------------

type testClientConnector struct {
	dialer net.Dialer
}

func (c *testClientConnector) Connect(ctx context.Context, endpoint string) (net.Conn, error) {
	return c.dialer.DialContext(ctx, "tcp", endpoint)
}
func (c *testClientConnector) GetName() string                                       { return "test" }
func (c *testClientConnector) UpgradeConnection(net.Conn, common.ClientConfig) error { return nil }

type testServerConnector struct{}

func (c *testServerConnector) Listen(config common.ServerConfig) (net.Listener, error) {
	return net.Listen("tcp", config.Endpoint)
}
func (c *testServerConnector) GetName() string                                       { return "test" }
func (c *testServerConnector) UpgradeConnection(net.Conn, common.ServerConfig) error { return nil }

// startServer runs a framed server with the given handler on a loopback port
func startServer(t *testing.T, version common.Version, handler transport.ServerHandleFunc) transport.IRPCServerTransport {
	t.Helper()
	srv := NewBaseServerTransport(&testServerConnector{})
	srv.RegisterHandler(handler)
	if err := srv.Listen(common.ServerConfig{Endpoint: "127.0.0.1:0", Version: version}); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go func() { _ = srv.Serve() }()
	t.Cleanup(func() { _ = srv.Close() })
	return srv
}

// startRawServer runs handle for every accepted connection
func startRawServer(t *testing.T, handle func(conn net.Conn)) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func() {
				defer conn.Close()
				handle(conn)
			}()
		}
	}()
	t.Cleanup(func() { _ = ln.Close() })
	return ln.Addr().String()
}

func newTestTransport(t *testing.T, config common.ClientConfig) *clientTransport {
	t.Helper()
	tr := NewBaseClientTransport(&testClientConnector{})
	if err := tr.Connect(config); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	t.Cleanup(func() { _ = tr.Close() })
	return tr.(*clientTransport)
}

func reverse(_ string, b []byte) []byte {
	out := make([]byte, len(b))
	for i := range b {
		out[len(b)-1-i] = b[i]
	}
	return out
}

// --------------------------------------------------------------------------
// Tests
// --------------------------------------------------------------------------

func TestTransportExchange(t *testing.T) {
	srv := startServer(t, common.ProtocolVersion, reverse)
	tr := newTestTransport(t, common.DefaultClientConfig(srv.Addr().String()))

	for _, msg := range []string{"hello", "", "ahnlich"} {
		resp, err := tr.Send(context.Background(), []byte(msg))
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		if string(resp) != string(reverse("", []byte(msg))) {
			t.Errorf("Expected %q, got %q", reverse("", []byte(msg)), resp)
		}
	}

	// sequential requests share one connection
	if s := tr.Stats(); s.Open != 1 || s.Idle != 1 {
		t.Errorf("Unexpected stats %+v", s)
	}

	var buf bytes.Buffer
	tr.WritePrometheus(&buf)
	for _, want := range []string{"ahnlich_requests_total 3", "ahnlich_pool_dials_total 1", "ahnlich_pool_reuses_total 2"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Metrics do not contain %q:\n%s", want, buf.String())
		}
	}
}

func TestTransportConcurrentSends(t *testing.T) {
	srv := startServer(t, common.ProtocolVersion, func(_ string, req []byte) []byte {
		time.Sleep(5 * time.Millisecond)
		return req
	})
	config := common.DefaultClientConfig(srv.Addr().String())
	config.Transport.Pool.MaxPerEndpoint = 3
	tr := newTestTransport(t, config)

	errCh := make(chan error, 20)
	for i := 0; i < 20; i++ {
		go func(i int) {
			msg := []byte{byte(i), byte(i + 1)}
			resp, err := tr.Send(context.Background(), msg)
			if err == nil && !bytes.Equal(resp, msg) {
				err = errors.New("response belongs to another request")
			}
			errCh <- err
		}(i)
	}
	for i := 0; i < 20; i++ {
		if err := <-errCh; err != nil {
			t.Errorf("Send failed: %v", err)
		}
	}

	if s := tr.Stats(); s.Open > 3 {
		t.Errorf("More connections than allowed: %+v", s)
	}
}

func TestTransportPeerErrors(t *testing.T) {
	testCases := []struct {
		name     string
		handle   func(conn net.Conn)
		sentinel error
		contains string
	}{
		{
			name: "Closed before answering",
			handle: func(conn net.Conn) {
				_, _, _ = ReadFrame(conn, 0)
			},
			sentinel: common.ErrProtocol,
			contains: "socket connection broken",
		},
		{
			name: "Not an ahnlich server",
			handle: func(conn net.Conn) {
				_, _ = conn.Write([]byte("HTTP/1.1 400 Bad Request\r\n\r\n"))
				_, _ = io.Copy(io.Discard, conn)
			},
			sentinel: common.ErrProtocol,
			contains: "unexpected peer",
		},
		{
			name: "Truncated response",
			handle: func(conn net.Conn) {
				_, _, _ = ReadFrame(conn, 0)
				frame := AppendFrame(nil, common.ProtocolVersion, []byte("complete"))
				_, _ = conn.Write(frame[:len(frame)-3])
			},
			sentinel: common.ErrProtocol,
			contains: "mid-frame",
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			addr := startRawServer(t, tc.handle)
			tr := newTestTransport(t, common.DefaultClientConfig(addr))

			_, err := tr.Send(context.Background(), []byte("ping"))
			if !errors.Is(err, tc.sentinel) {
				t.Fatalf("Expected %v, got %v", tc.sentinel, err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("Expected error to contain %q, got %q", tc.contains, err)
			}
			if s := tr.Stats(); s.Open != 0 {
				t.Errorf("Broken connection was kept: %+v", s)
			}
		})
	}
}

func TestTransportReadTimeout(t *testing.T) {
	addr := startRawServer(t, func(conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	})
	config := common.DefaultClientConfig(addr)
	config.ReadTimeout = 100 * time.Millisecond
	tr := newTestTransport(t, config)

	_, err := tr.Send(context.Background(), []byte("ping"))
	if !errors.Is(err, common.ErrTimeout) || !errors.Is(err, common.ErrConnection) {
		t.Fatalf("Expected timeout, got %v", err)
	}
	if s := tr.Stats(); s.Open != 0 {
		t.Errorf("Timed out connection was kept: %+v", s)
	}
}

func TestTransportContextCancel(t *testing.T) {
	addr := startRawServer(t, func(conn net.Conn) {
		_, _ = io.Copy(io.Discard, conn)
	})
	tr := newTestTransport(t, common.DefaultClientConfig(addr))

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(50*time.Millisecond, cancel)

	start := time.Now()
	_, err := tr.Send(ctx, []byte("ping"))
	if !errors.Is(err, context.Canceled) || !errors.Is(err, common.ErrConnection) {
		t.Fatalf("Expected canceled, got %v", err)
	}
	if time.Since(start) > 5*time.Second {
		t.Errorf("Cancellation did not interrupt the read")
	}

	// context deadlines are reported as timeouts
	ctx, cancel = context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := tr.Send(ctx, []byte("ping")); !errors.Is(err, common.ErrTimeout) {
		t.Errorf("Expected timeout, got %v", err)
	}
}

func TestTransportStrictVersion(t *testing.T) {
	srv := startServer(t, common.Version{Major: 1, Minor: 0, Patch: 0}, reverse)

	config := common.DefaultClientConfig(srv.Addr().String())
	tr := newTestTransport(t, config)
	if _, err := tr.Send(context.Background(), []byte("ab")); err != nil {
		t.Errorf("Version mismatch must be tolerated by default: %v", err)
	}

	config.Protocol.StrictVersion = true
	strict := newTestTransport(t, config)
	if _, err := strict.Send(context.Background(), []byte("ab")); !errors.Is(err, common.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestTransportMaxMessageSize(t *testing.T) {
	srv := startServer(t, common.ProtocolVersion, func(_ string, req []byte) []byte {
		return make([]byte, 1024)
	})
	config := common.DefaultClientConfig(srv.Addr().String())
	config.Transport.MaxMessageSize = 512
	tr := newTestTransport(t, config)

	if _, err := tr.Send(context.Background(), []byte("x")); !errors.Is(err, common.ErrProtocol) {
		t.Errorf("Expected protocol error, got %v", err)
	}
}

func TestTransportDialRetry(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	config := common.DefaultClientConfig(addr)
	config.Transport.RetryCount = 3
	tr := newTestTransport(t, config)

	_, err = tr.Send(context.Background(), []byte("ping"))
	if !errors.Is(err, common.ErrConnection) || !common.IsRetryable(err) {
		t.Fatalf("Expected connection error, got %v", err)
	}

	var buf bytes.Buffer
	tr.WritePrometheus(&buf)
	for _, want := range []string{"ahnlich_request_retries_total 2", "ahnlich_pool_dial_errors_total 3"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("Metrics do not contain %q:\n%s", want, buf.String())
		}
	}
}

func TestTransportClose(t *testing.T) {
	srv := startServer(t, common.ProtocolVersion, reverse)
	tr := newTestTransport(t, common.DefaultClientConfig(srv.Addr().String()))

	if _, err := tr.Send(context.Background(), []byte("ab")); err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if err := tr.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	if _, err := tr.Send(context.Background(), []byte("ab")); !errors.Is(err, common.ErrPoolClosed) {
		t.Errorf("Expected pool closed, got %v", err)
	}

	unconnected := NewBaseClientTransport(&testClientConnector{})
	if _, err := unconnected.Send(context.Background(), nil); !errors.Is(err, common.ErrConnection) {
		t.Errorf("Expected connection error, got %v", err)
	}
}
