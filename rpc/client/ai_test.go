package client

import (
	"context"
	"errors"
	"github.com/ValentinKolb/ahnlich-go/internal/fakeserver"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport/grpc"
	"net"
	"reflect"
	"strings"
	"testing"
)

// aiPongs answers every query of an AI request with a pong
func aiPongs(req []byte) ([]byte, error) {
	ser := serializer.NewBinarySerializer(common.IntEncodingVarint)
	var q common.AIServerQuery
	if err := ser.DeserializeAIQuery(req, &q); err != nil {
		return nil, err
	}
	res := common.ServerResult{}
	for range q.Queries {
		res.Results = append(res.Results, common.ResultOk{Response: common.RespPong{}})
	}
	return ser.SerializeAIResult(res)
}

func newRecordingAIClient(t *testing.T, respond func(req []byte) ([]byte, error)) (*AIClient, *recordingTransport) {
	t.Helper()
	rt := &recordingTransport{respond: respond}
	ai, err := NewAIClient(common.DefaultClientConfig("127.0.0.1:1"), rt, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	return ai, rt
}

func newAIClient(t *testing.T, config common.ClientConfig) *AIClient {
	t.Helper()
	ai, err := NewAIClient(config, nil, nil)
	if err != nil {
		t.Fatalf("Failed to create client: %v", err)
	}
	t.Cleanup(func() { _ = ai.Close() })
	return ai
}

// --------------------------------------------------------------------------
// Local Behaviour
// --------------------------------------------------------------------------

func TestAIValidationBeforeIO(t *testing.T) {
	ai, rt := newRecordingAIClient(t, aiPongs)
	ctx := context.Background()

	testCases := []struct {
		name string
		call func() error
	}{
		{"Closest N zero", func() error {
			_, err := ai.GetSimN(ctx, common.AIQueryGetSimN{Store: "s", SearchInput: common.InputRawString("a")})
			return err
		}},
		{"Nil search input", func() error {
			_, err := ai.GetSimN(ctx, common.AIQueryGetSimN{Store: "s", ClosestN: 1})
			return err
		}},
		{"Unknown preprocess action", func() error {
			_, err := ai.Set(ctx, "s", common.PreprocessAction(5), common.AIStoreEntry{Input: common.InputRawString("a")})
			return err
		}},
		{"Nil set input", func() error {
			_, err := ai.Set(ctx, "s", common.NoPreprocessing, common.AIStoreEntry{Value: common.StoreValue{"k": common.RawString("v")}})
			return err
		}},
		{"Model size mismatch", func() error {
			_, err := ai.CreateStore(ctx, common.AIQueryCreateStore{Store: "s", QueryModel: common.AllMiniLML6V2, IndexModel: common.Resnet50})
			return err
		}},
		{"Unknown model", func() error {
			_, err := ai.CreateStore(ctx, common.AIQueryCreateStore{Store: "s", QueryModel: common.AIModel(99)})
			return err
		}},
		{"Empty store name", func() error {
			_, err := ai.GetKey(ctx, "", common.InputRawString("a"))
			return err
		}},
		{"Nil key", func() error {
			_, err := ai.DelKey(ctx, "s", nil)
			return err
		}},
		{"Nil query", func() error {
			_, err := ai.Exec(ctx, common.AIQueryPing{}, nil)
			return err
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.call()
			if !errors.Is(err, common.ErrValidation) {
				t.Errorf("Expected validation error, got %v", err)
			}
		})
	}

	if n := rt.count(); n != 0 {
		t.Errorf("Expected no request to be sent, got %d", n)
	}
}

func TestAIPipelineConsumed(t *testing.T) {
	ai, rt := newRecordingAIClient(t, aiPongs)
	ctx := context.Background()

	if _, err := ai.Pipeline().Exec(ctx); !errors.Is(err, common.ErrEmptyBatch) {
		t.Errorf("Expected empty batch error, got %v", err)
	}

	p := ai.Pipeline().WithTraceID("trace-ai").Ping().ListStores()
	clone := p.Clone()
	if p.Len() != 2 || clone.Len() != 2 {
		t.Errorf("Expected 2 queued queries, got %d and %d", p.Len(), clone.Len())
	}

	results, err := p.Exec(ctx)
	if err != nil || len(results) != 2 {
		t.Fatalf("Unexpected result %v (%v)", results, err)
	}
	if _, err := p.Exec(ctx); !errors.Is(err, common.ErrBatchConsumed) {
		t.Errorf("Expected consumed error, got %v", err)
	}

	// the clone is not consumed and sends the same bytes
	results, err = clone.Go(ctx).Wait(ctx)
	if err != nil || len(results) != 2 {
		t.Fatalf("Unexpected result %v (%v)", results, err)
	}
	if n := rt.count(); n != 2 {
		t.Fatalf("Expected 2 requests, got %d", n)
	}
	if !reflect.DeepEqual(rt.sends[0], rt.sends[1]) {
		t.Errorf("Clone sent different bytes:\n% x\n% x", rt.sends[0], rt.sends[1])
	}

	var sent common.AIServerQuery
	if err := serializer.NewVarintSerializer().DeserializeAIQuery(rt.sends[0], &sent); err != nil {
		t.Fatalf("Failed to decode request: %v", err)
	}
	if sent.TraceID == nil || *sent.TraceID != "trace-ai" {
		t.Errorf("Expected trace id to be sent, got %v", sent.TraceID)
	}
}

func TestAIClientRejectsDBAnswer(t *testing.T) {
	// a DB server answers a store list with its own payload
	ai, _ := newRecordingAIClient(t, func(req []byte) ([]byte, error) {
		return serializer.NewVarintSerializer().SerializeResult(common.ServerResult{Results: []common.Result{
			ok(common.RespStoreList{Stores: []common.StoreInfo{{Name: "s", Len: 1, SizeInBytes: 1}}}),
		}})
	})

	if _, err := ai.ListStores(context.Background()); !errors.Is(err, common.ErrDeserialization) {
		t.Errorf("Expected deserialization error, got %v", err)
	}
}

func TestNewAIClientConfig(t *testing.T) {
	if _, err := NewAIClient(common.ClientConfig{}, &recordingTransport{}, nil); !errors.Is(err, common.ErrValidation) {
		t.Errorf("Expected validation error for a config without endpoints, got %v", err)
	}

	ai, _ := newRecordingAIClient(t, aiPongs)
	if ai.Config().Transport.RetryCount != 1 {
		t.Errorf("Expected defaults to be applied, got %+v", ai.Config())
	}
	if !strings.HasPrefix(ai.String(), "AIClient") {
		t.Errorf("Unexpected string representation %q", ai.String())
	}
}

// --------------------------------------------------------------------------
// End to End
// --------------------------------------------------------------------------

func TestAIClientOperations(t *testing.T) {
	for _, encoding := range []common.IntEncoding{common.IntEncodingVarint, common.IntEncodingFixint} {
		t.Run(string(encoding), func(t *testing.T) {
			srv := fakeserver.NewAI(encoding)
			if err := srv.Start("127.0.0.1:0"); err != nil {
				t.Fatalf("Failed to start server: %v", err)
			}
			t.Cleanup(func() { _ = srv.Close() })

			config := common.DefaultClientConfig(srv.Addr())
			config.Protocol.IntEncoding = encoding
			runAIOperations(t, newAIClient(t, config))
		})
	}
}

func TestAIClientOperationsGRPC(t *testing.T) {
	srv := fakeserver.NewAI(common.IntEncodingVarint)
	gs := grpc.NewGRPCServer(srv.Handle)
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}
	go func() { _ = gs.Serve(ln) }()
	t.Cleanup(gs.Stop)

	config := common.DefaultClientConfig(ln.Addr().String())
	config.Transport.WireFormat = common.WireFormatGRPC
	runAIOperations(t, newAIClient(t, config))
}

// runAIOperations calls every method of the AI client once against an empty fake proxy
func runAIOperations(t *testing.T, ai *AIClient) {
	t.Helper()
	ctx := context.Background()
	red := common.MetadataFromStrings(map[string]string{"color": "red"})
	shoe := common.InputRawString("shoe")
	jacket := common.InputRawString("jacket")

	must := func(r common.Result, err error) common.Result {
		t.Helper()
		if err != nil {
			t.Fatalf("Request failed: %v", err)
		}
		return r
	}
	expect := func(name string, got, want common.Result) {
		t.Helper()
		if !reflect.DeepEqual(got, want) {
			t.Errorf("%s: expected %#v, got %#v", name, want, got)
		}
	}

	expect("Ping", must(ai.Ping(ctx)), ok(common.RespPong{}))
	expect("CreateStore", must(ai.CreateStore(ctx, common.AIQueryCreateStore{
		Store:         "s",
		QueryModel:    common.AllMiniLML6V2,
		IndexModel:    common.AllMiniLML6V2,
		StoreOriginal: true,
	})), ok(common.RespUnit{}))
	expect("Set", must(ai.Set(ctx, "s", common.ModelPreprocessing, common.AIStoreEntry{Input: shoe, Value: red}, common.AIStoreEntry{Input: jacket})),
		ok(common.RespSet{Upsert: common.StoreUpsert{Inserted: 2}}))
	expect("GetKey", must(ai.GetKey(ctx, "s", shoe)), ok(common.RespAIGet{Entries: []common.AIStoreEntry{{Input: shoe, Value: red}}}))
	expect("CreatePredIndex", must(ai.CreatePredIndex(ctx, "s", "color")), ok(common.RespCreateIndex{Created: 1}))
	expect("GetPred", must(ai.GetPred(ctx, "s", common.Where(common.Equals{Key: "color", Value: common.RawString("red")}))),
		ok(common.RespAIGet{Entries: []common.AIStoreEntry{{Input: shoe, Value: red}}}))
	expect("CreateNonLinearAlgorithmIndex", must(ai.CreateNonLinearAlgorithmIndex(ctx, "s", common.NonLinearKdTree)),
		ok(common.RespCreateIndex{Created: 1}))
	expect("GetSimN", must(ai.GetSimN(ctx, common.AIQueryGetSimN{
		Store:       "s",
		SearchInput: common.InputRawString("blazer"),
		ClosestN:    1,
		Algorithm:   common.EuclideanDistance,
		Preprocess:  common.ModelPreprocessing,
	})), ok(common.RespAIGetSimN{Entries: []common.AISimilarEntry{{Input: jacket, Similarity: 0}}}))
	expect("DropNonLinearAlgorithmIndex", must(ai.DropNonLinearAlgorithmIndex(ctx, common.AIQueryDropNonLinearAlgorithmIndex{
		Store:            "s",
		NonLinearIndices: []common.NonLinearAlgorithm{common.NonLinearKdTree},
	})), ok(common.RespDel{Deleted: 1}))
	expect("DropPredIndex", must(ai.DropPredIndex(ctx, common.AIQueryDropPredIndex{Store: "s", Predicates: []string{"color"}})),
		ok(common.RespDel{Deleted: 1}))
	expect("DelKey", must(ai.DelKey(ctx, "s", jacket)), ok(common.RespDel{Deleted: 1}))

	stores, err := common.ResponseAs[common.RespAIStoreList](must(ai.ListStores(ctx)))
	want := []common.AIStoreInfo{{Name: "s", QueryModel: common.AllMiniLML6V2, IndexModel: common.AllMiniLML6V2, EmbeddingSize: 384}}
	if err != nil || !reflect.DeepEqual(stores.Stores, want) {
		t.Errorf("Unexpected store list %+v (%v)", stores, err)
	}
	clients, err := common.ResponseAs[common.RespClientList](must(ai.ListClients(ctx)))
	if err != nil || len(clients.Clients) == 0 {
		t.Errorf("Unexpected client list %+v (%v)", clients, err)
	}
	info, err := common.ResponseAs[common.RespInfoServer](must(ai.InfoServer(ctx)))
	if err != nil || info.Info.Type != common.ServerTypeAI {
		t.Errorf("Unexpected server info %+v (%v)", info, err)
	}

	results, err := ai.Pipeline().
		GetKey("s", shoe, jacket).
		DropStore("s", true).
		DropStore("s", true).
		Exec(ctx)
	if err != nil {
		t.Fatalf("Exec failed: %v", err)
	}
	expect("Pipeline GetKey", results[0], ok(common.RespAIGet{Entries: []common.AIStoreEntry{{Input: shoe, Value: red}}}))
	expect("Pipeline DropStore", results[1], ok(common.RespDel{Deleted: 1}))
	expect("Pipeline DropStore missing", results[2], common.ResultErr{Message: "Store s not found"})

	must(ai.CreateStore(ctx, common.AIQueryCreateStore{Store: "t", QueryModel: common.Resnet50, IndexModel: common.Resnet50}))
	expect("PurgeStores", must(ai.PurgeStores(ctx)), ok(common.RespDel{Deleted: 1}))
}
