package unix

import (
	"context"
	"errors"
	"github.com/ValentinKolb/ahnlich-go/internal/fakeserver"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestUnixTransport(t *testing.T) {
	socketPath := filepath.Join(t.TempDir(), "ahnlich.sock")

	// a stale file at the socket path is replaced
	if err := os.WriteFile(socketPath, nil, 0o600); err != nil {
		t.Fatalf("Failed to create stale file: %v", err)
	}

	srv := fakeserver.New(common.IntEncodingVarint)
	st := NewUnixServerTransport()
	st.RegisterHandler(srv.Handle)
	if err := st.Listen(common.ServerConfig{Endpoint: socketPath}); err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go func() { _ = st.Serve() }()
	defer st.Close()

	config := common.DefaultClientConfig(socketPath)
	config.Transport.SocketConf = common.SocketConf{WriteBufferSize: 32 * 1024, ReadBufferSize: 32 * 1024}
	ct := NewUnixClientTransport()
	if err := ct.Connect(config); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}

	ser := serializer.NewVarintSerializer()
	req, err := ser.SerializeQuery(common.ServerQuery{Queries: []common.Query{common.QueryPing{}, common.QueryListStores{}}})
	if err != nil {
		t.Fatalf("Failed to serialize query: %v", err)
	}

	for i := 0; i < 3; i++ {
		resp, err := ct.Send(context.Background(), req)
		if err != nil {
			t.Fatalf("Send failed: %v", err)
		}
		var res common.ServerResult
		if err := ser.DeserializeResult(resp, &res); err != nil {
			t.Fatalf("Failed to deserialize result: %v", err)
		}
		want := []common.Result{
			common.ResultOk{Response: common.RespPong{}},
			common.ResultOk{Response: common.RespStoreList{}},
		}
		if !reflect.DeepEqual(res.Results, want) {
			t.Errorf("Expected %v, got %v", want, res.Results)
		}
	}

	if err := ct.Close(); err != nil {
		t.Errorf("Failed to close transport: %v", err)
	}
	if _, err := ct.Send(context.Background(), req); !errors.Is(err, common.ErrConnection) {
		t.Errorf("Expected connection error after close, got %v", err)
	}
}

func TestUnixDialError(t *testing.T) {
	config := common.DefaultClientConfig(filepath.Join(t.TempDir(), "missing.sock"))
	ct := NewUnixClientTransport()
	if err := ct.Connect(config); err != nil {
		t.Fatalf("Failed to connect: %v", err)
	}
	defer ct.Close()

	if _, err := ct.Send(context.Background(), []byte{1}); !errors.Is(err, common.ErrConnection) {
		t.Errorf("Expected connection error, got %v", err)
	}
}
