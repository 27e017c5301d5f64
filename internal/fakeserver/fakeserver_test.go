package fakeserver

import (
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport/base"
	"net"
	"reflect"
	"strings"
	"testing"
	"time"
)

// roundTrip encodes queries, lets the server answer them and decodes the results
func roundTrip(t *testing.T, s *Server, queries ...common.Query) []common.Result {
	t.Helper()
	ser := serializer.NewBinarySerializer(common.IntEncodingVarint)

	req, err := ser.SerializeQuery(common.ServerQuery{Queries: queries})
	if err != nil {
		t.Fatalf("Failed to serialize query: %v", err)
	}
	var res common.ServerResult
	if err := ser.DeserializeResult(s.Handle("127.0.0.1:50000", req), &res); err != nil {
		t.Fatalf("Failed to deserialize result: %v", err)
	}
	if len(res.Results) != len(queries) {
		t.Fatalf("Expected %d results, got %d", len(queries), len(res.Results))
	}
	return res.Results
}

func ok(r common.ServerResponse) common.Result { return common.ResultOk{Response: r} }

func TestStoreLifecycle(t *testing.T) {
	s := New(common.IntEncodingVarint)

	a := common.StoreKey{1, 0}
	b := common.StoreKey{0, 1}
	c := common.StoreKey{0.9, 0.1}
	red := common.StoreValue{"color": common.RawString("red")}
	blue := common.StoreValue{"color": common.RawString("blue")}

	testCases := []struct {
		name  string
		query common.Query
		want  common.Result
	}{
		{"Create", common.QueryCreateStore{Store: "main", Dimension: 2, CreatePredicates: []string{"color"}}, ok(common.RespUnit{})},
		{"Create again", common.QueryCreateStore{Store: "main", Dimension: 2}, ok(common.RespUnit{})},
		{"Create exists", common.QueryCreateStore{Store: "main", Dimension: 2, ErrorIfExists: true}, common.ResultErr{Message: "Store main already exists"}},
		{"Set", common.QuerySet{Store: "main", Inputs: []common.StoreEntry{{Key: a, Value: red}, {Key: b, Value: blue}}},
			ok(common.RespSet{Upsert: common.StoreUpsert{Inserted: 2}})},
		{"Upsert", common.QuerySet{Store: "main", Inputs: []common.StoreEntry{{Key: a, Value: blue}, {Key: c, Value: red}}},
			ok(common.RespSet{Upsert: common.StoreUpsert{Inserted: 1, Updated: 1}})},
		{"Wrong dimension", common.QuerySet{Store: "main", Inputs: []common.StoreEntry{{Key: common.StoreKey{1}}}},
			common.ResultErr{Message: "Store dimension is [2], input dimension of [1] was specified"}},
		{"Get key", common.QueryGetKey{Store: "main", Keys: []common.StoreKey{b, {5, 5}}},
			ok(common.RespGet{Entries: []common.StoreEntry{{Key: b, Value: blue}}})},
		{"Get pred", common.QueryGetPred{Store: "main", Condition: common.Where(common.Equals{Key: "color", Value: common.RawString("red")})},
			ok(common.RespGet{Entries: []common.StoreEntry{{Key: c, Value: red}}})},
		{"Get pred without index", common.QueryGetPred{Store: "main", Condition: common.Where(common.Equals{Key: "size", Value: common.RawString("xl")})},
			common.ResultErr{Message: "Predicate size not found in store, attempt CREATEPREDINDEX with predicate"}},
		{"Sim N", common.QueryGetSimN{Store: "main", SearchInput: common.StoreKey{1, 0}, ClosestN: 1, Algorithm: common.CosineSimilarity},
			ok(common.RespGetSimN{Entries: []common.SimilarEntry{{Key: a, Value: blue, Similarity: 1}}})},
		{"Sim N kd tree", common.QueryGetSimN{Store: "main", SearchInput: a, ClosestN: 1, Algorithm: common.KdTree},
			common.ResultErr{Message: "Non linear algorithm kdtree not found in store, create store with support"}},
		{"Create index", common.QueryCreatePredIndex{Store: "main", Predicates: []string{"color", "size"}}, ok(common.RespCreateIndex{Created: 1})},
		{"Create nonlinear", common.QueryCreateNonLinearAlgorithmIndex{Store: "main", NonLinearIndices: []common.NonLinearAlgorithm{common.NonLinearKdTree}},
			ok(common.RespCreateIndex{Created: 1})},
		{"Drop nonlinear", common.QueryDropNonLinearAlgorithmIndex{Store: "main", NonLinearIndices: []common.NonLinearAlgorithm{common.NonLinearKdTree}},
			ok(common.RespDel{Deleted: 1})},
		{"Drop index", common.QueryDropPredIndex{Store: "main", Predicates: []string{"size"}}, ok(common.RespDel{Deleted: 1})},
		{"Drop missing index", common.QueryDropPredIndex{Store: "main", Predicates: []string{"size"}, ErrorIfNotExists: true},
			common.ResultErr{Message: "Predicate size not found in store, attempt CREATEPREDINDEX with predicate"}},
		{"Del pred", common.QueryDelPred{Store: "main", Condition: common.Where(common.In{Key: "color", Values: []common.MetadataValue{common.RawString("red")}})},
			ok(common.RespDel{Deleted: 1})},
		{"Del key", common.QueryDelKey{Store: "main", Keys: []common.StoreKey{a, c}}, ok(common.RespDel{Deleted: 1})},
		{"Missing store", common.QueryGetKey{Store: "other", Keys: []common.StoreKey{a}}, common.ResultErr{Message: "Store other not found"}},
		{"Drop store", common.QueryDropStore{Store: "main"}, ok(common.RespDel{Deleted: 1})},
		{"Drop missing store", common.QueryDropStore{Store: "main"}, ok(common.RespDel{Deleted: 0})},
		{"Drop missing store strict", common.QueryDropStore{Store: "main", ErrorIfNotExists: true}, common.ResultErr{Message: "Store main not found"}},
		{"Ping", common.QueryPing{}, ok(common.RespPong{})},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got := roundTrip(t, s, tc.query)[0]
			if !reflect.DeepEqual(got, tc.want) {
				t.Errorf("Expected %#v, got %#v", tc.want, got)
			}
		})
	}
}

func TestServerLevelQueries(t *testing.T) {
	s := New(common.IntEncodingVarint)

	results := roundTrip(t, s,
		common.QueryCreateStore{Store: "b", Dimension: 1},
		common.QueryCreateStore{Store: "a", Dimension: 1},
		common.QueryListStores{},
		common.QueryListClients{},
		common.QueryInfoServer{},
		common.QueryPurgeStores{},
		common.QueryListStores{},
	)

	stores, err := common.ResponseAs[common.RespStoreList](results[2])
	if err != nil || len(stores.Stores) != 2 || stores.Stores[0].Name != "a" || stores.Stores[1].Name != "b" {
		t.Errorf("Unexpected store list %+v (%v)", stores, err)
	}

	clients, err := common.ResponseAs[common.RespClientList](results[3])
	if err != nil || len(clients.Clients) != 1 || clients.Clients[0].Address != "127.0.0.1:50000" {
		t.Errorf("Unexpected client list %+v (%v)", clients, err)
	}

	info, err := common.ResponseAs[common.RespInfoServer](results[4])
	if err != nil || info.Info.Type != common.ServerTypeDatabase || info.Info.Version != common.ProtocolVersion {
		t.Errorf("Unexpected server info %+v (%v)", info, err)
	}

	if !reflect.DeepEqual(results[5], ok(common.RespDel{Deleted: 2})) {
		t.Errorf("Expected 2 purged stores, got %#v", results[5])
	}
	if !reflect.DeepEqual(results[6], ok(common.RespStoreList{})) {
		t.Errorf("Expected no stores, got %#v", results[6])
	}
	if s.Requests() != 1 {
		t.Errorf("Expected 1 handled batch, got %d", s.Requests())
	}
}

func TestMalformedRequest(t *testing.T) {
	s := New(common.IntEncodingVarint)
	ser := serializer.NewBinarySerializer(common.IntEncodingVarint)

	var res common.ServerResult
	if err := ser.DeserializeResult(s.Handle("", []byte{0x05, 0xFF}), &res); err != nil {
		t.Fatalf("Failed to deserialize result: %v", err)
	}
	if len(res.Results) != 1 {
		t.Fatalf("Expected a single error result, got %d", len(res.Results))
	}
	e, isErr := res.Results[0].(common.ResultErr)
	if !isErr || !strings.Contains(e.Message, "Could not deserialize query") {
		t.Errorf("Unexpected result %#v", res.Results[0])
	}
}

func TestServeOverTCP(t *testing.T) {
	s := New(common.IntEncodingFixint)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer s.Close()

	ser := serializer.NewBinarySerializer(common.IntEncodingFixint)
	req, err := ser.SerializeQuery(common.ServerQuery{Queries: []common.Query{common.QueryPing{}}})
	if err != nil {
		t.Fatalf("Failed to serialize query: %v", err)
	}

	conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
	if err != nil {
		t.Fatalf("Failed to dial: %v", err)
	}
	defer conn.Close()
	_ = conn.SetDeadline(time.Now().Add(5 * time.Second))

	if err := base.WriteFrame(conn, common.ProtocolVersion, req); err != nil {
		t.Fatalf("Failed to write frame: %v", err)
	}
	version, payload, err := base.ReadFrame(conn, 0)
	if err != nil {
		t.Fatalf("Failed to read frame: %v", err)
	}
	if version != common.ProtocolVersion {
		t.Errorf("Unexpected version %s", version)
	}

	var res common.ServerResult
	if err := ser.DeserializeResult(payload, &res); err != nil {
		t.Fatalf("Failed to deserialize result: %v", err)
	}
	if !reflect.DeepEqual(res.Results, []common.Result{ok(common.RespPong{})}) {
		t.Errorf("Unexpected results %#v", res.Results)
	}

	if n := s.DropConnections(); n != 1 {
		t.Errorf("Expected 1 dropped connection, got %d", n)
	}
	if _, _, err := base.ReadFrame(conn, 0); err == nil {
		t.Errorf("Expected the connection to be closed")
	}
}

func TestClientListFollowsConnections(t *testing.T) {
	s := New(common.IntEncodingVarint)
	if err := s.Start("127.0.0.1:0"); err != nil {
		t.Fatalf("Failed to start server: %v", err)
	}
	defer s.Close()

	ser := serializer.NewVarintSerializer()
	req, err := ser.SerializeQuery(common.ServerQuery{Queries: []common.Query{common.QueryPing{}}})
	if err != nil {
		t.Fatalf("Failed to serialize query: %v", err)
	}

	dial := func() net.Conn {
		conn, err := net.DialTimeout("tcp", s.Addr(), time.Second)
		if err != nil {
			t.Fatalf("Failed to dial: %v", err)
		}
		_ = conn.SetDeadline(time.Now().Add(5 * time.Second))
		if err := base.WriteFrame(conn, common.ProtocolVersion, req); err != nil {
			t.Fatalf("Failed to write frame: %v", err)
		}
		if _, _, err := base.ReadFrame(conn, 0); err != nil {
			t.Fatalf("Failed to read frame: %v", err)
		}
		return conn
	}

	addresses := func() []string {
		var out []string
		for _, c := range s.listClients() {
			out = append(out, c.Address)
		}
		return out
	}

	first := dial()
	second := dial()
	defer second.Close()

	if got := addresses(); len(got) != 2 {
		t.Fatalf("Expected 2 clients, got %v", got)
	}

	// the entry of a closed connection is removed once the server notices
	_ = first.Close()
	want := []string{second.LocalAddr().String()}
	deadline := time.Now().Add(5 * time.Second)
	for !reflect.DeepEqual(addresses(), want) {
		if time.Now().After(deadline) {
			t.Fatalf("Expected clients %v, got %v", want, addresses())
		}
		time.Sleep(10 * time.Millisecond)
	}
}
