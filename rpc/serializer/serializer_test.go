package serializer

import (
	"bytes"
	"encoding/binary"
	"errors"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"math"
	"reflect"
	"testing"
)

// testSerializers is a map of serializer name to factory function
var testSerializers = map[string]func() IRPCSerializer{
	"Varint": NewVarintSerializer,
	"Fixint": NewFixintSerializer,
}

func strPtr(s string) *string { return &s }

// testQueries creates one batch per query variant and a few mixed batches
func testQueries() []common.ServerQuery {
	cond := common.And(
		common.Where(common.Equals{Key: "brand", Value: common.RawString("nike")}),
		common.Or(
			common.Where(common.In{Key: "size", Values: []common.MetadataValue{common.RawString("m"), common.RawString("l")}}),
			common.Where(common.NotEquals{Key: "img", Value: common.Binary{0xde, 0xad}}),
		),
	)

	return []common.ServerQuery{
		{Queries: []common.Query{common.QueryCreateStore{Store: "Diretnan Station", Dimension: 5, ErrorIfExists: true}}},
		{Queries: []common.Query{common.QueryCreateStore{
			Store:            "main",
			Dimension:        3,
			CreatePredicates: []string{"brand", "size"},
			NonLinearIndices: []common.NonLinearAlgorithm{common.NonLinearKdTree},
		}}},
		{Queries: []common.Query{common.QueryGetKey{Store: "main", Keys: []common.StoreKey{{1, 2, 3}, {-1.5, 0, 42}}}}},
		{Queries: []common.Query{common.QueryGetPred{Store: "main", Condition: cond}}},
		{Queries: []common.Query{common.QueryGetSimN{
			Store:       "main",
			SearchInput: common.StoreKey{0.25, 0.5, 0.75},
			ClosestN:    3,
			Algorithm:   common.CosineSimilarity,
		}}},
		{Queries: []common.Query{common.QueryGetSimN{
			Store:       "main",
			SearchInput: common.StoreKey{1, 1, 1},
			ClosestN:    1,
			Algorithm:   common.KdTree,
			Condition:   common.Where(common.NotIn{Key: "size", Values: []common.MetadataValue{common.RawString("s")}}),
		}}},
		{Queries: []common.Query{common.QueryCreatePredIndex{Store: "main", Predicates: []string{"color"}}}},
		{Queries: []common.Query{common.QueryCreateNonLinearAlgorithmIndex{Store: "main", NonLinearIndices: []common.NonLinearAlgorithm{common.NonLinearKdTree}}}},
		{Queries: []common.Query{common.QueryDropPredIndex{Store: "main", Predicates: []string{"color"}, ErrorIfNotExists: true}}},
		{Queries: []common.Query{common.QueryDropNonLinearAlgorithmIndex{Store: "main", NonLinearIndices: []common.NonLinearAlgorithm{common.NonLinearKdTree}}}},
		{Queries: []common.Query{common.QuerySet{Store: "main", Inputs: []common.StoreEntry{
			{Key: common.StoreKey{1, 2, 3}, Value: common.StoreValue{"brand": common.RawString("nike"), "img": common.Binary{1, 2, 3}}},
			{Key: common.StoreKey{4, 5, 6}},
		}}}},
		{Queries: []common.Query{common.QueryDelKey{Store: "main", Keys: []common.StoreKey{{1, 2, 3}}}}},
		{Queries: []common.Query{common.QueryDelPred{Store: "main", Condition: cond}}},
		{Queries: []common.Query{common.QueryDropStore{Store: "main", ErrorIfNotExists: true}}},
		{Queries: []common.Query{common.QueryInfoServer{}}},
		{Queries: []common.Query{common.QueryListStores{}}},
		{Queries: []common.Query{common.QueryListClients{}}},
		{Queries: []common.Query{common.QueryPing{}}},
		{Queries: []common.Query{common.QueryPurgeStores{}}},

		// empty batch with trace id
		{TraceID: strPtr("00-80e1afed08e019fc1110464cfa66635c-7a085853722dc6d2-01")},

		// mixed batch
		{
			Queries: []common.Query{
				common.QueryPing{},
				common.QueryCreateStore{Store: "a", Dimension: 2},
				common.QueryListStores{},
			},
			TraceID: strPtr("trace"),
		},
	}
}

// testResults creates results for every response variant
func testResults() []common.ServerResult {
	return []common.ServerResult{
		{},
		{Results: []common.Result{common.ResultOk{Response: common.RespUnit{}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespPong{}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespClientList{Clients: []common.ConnectedClient{
			{Address: "127.0.0.1:43210", TimeConnected: common.SystemTime{Secs: 1700000000, Nanos: 42}},
		}}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespStoreList{Stores: []common.StoreInfo{
			{Name: "main", Len: 3, SizeInBytes: 1024},
			{Name: "other", Len: 0, SizeInBytes: 0},
		}}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespInfoServer{Info: common.ServerInfo{
			Address:   "127.0.0.1:1369",
			Version:   common.Version{Major: 0, Minor: 1, Patch: 0},
			Type:      common.ServerTypeDatabase,
			Limit:     1 << 30,
			Remaining: 1 << 29,
		}}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespSet{Upsert: common.StoreUpsert{Inserted: 2, Updated: 1}}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespGet{Entries: []common.StoreEntry{
			{Key: common.StoreKey{1, 2}, Value: common.StoreValue{"k": common.RawString("v")}},
		}}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespGetSimN{Entries: []common.SimilarEntry{
			{Key: common.StoreKey{1, 2}, Value: common.StoreValue{"k": common.Binary{9}}, Similarity: 0.99},
			{Key: common.StoreKey{3, 4}, Similarity: -0.5},
		}}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespDel{Deleted: 7}}}},
		{Results: []common.Result{common.ResultOk{Response: common.RespCreateIndex{Created: 2}}}},
		{Results: []common.Result{
			common.ResultOk{Response: common.RespUnit{}},
			common.ResultErr{Message: "store already exists"},
			common.ResultOk{Response: common.RespPong{}},
		}},
	}
}

// TestSerializerRoundTrip tests that queries and results survive an encode/decode cycle
func TestSerializerRoundTrip(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			for i, q := range testQueries() {
				data, err := serializer.SerializeQuery(q)
				if err != nil {
					t.Errorf("Failed to serialize query %d: %v", i, err)
					continue
				}

				var result common.ServerQuery
				if err := serializer.DeserializeQuery(data, &result); err != nil {
					t.Errorf("Failed to deserialize query %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(q, result) {
					t.Errorf("Query %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, q, result)
				}
			}

			for i, r := range testResults() {
				data, err := serializer.SerializeResult(r)
				if err != nil {
					t.Errorf("Failed to serialize result %d: %v", i, err)
					continue
				}

				var result common.ServerResult
				if err := serializer.DeserializeResult(data, &result); err != nil {
					t.Errorf("Failed to deserialize result %d: %v", i, err)
					continue
				}

				if !reflect.DeepEqual(r, result) {
					t.Errorf("Result %d doesn't match after round trip:\nOriginal: %+v\nResult: %+v", i, r, result)
				}
			}
		})
	}
}

// TestCreateStoreLayout checks the exact bytes of a create-store request
func TestCreateStoreLayout(t *testing.T) {
	q := common.ServerQuery{Queries: []common.Query{
		common.QueryCreateStore{Store: "Diretnan Station", Dimension: 5, ErrorIfExists: true},
	}}

	// varint: count, discriminant, string length and sequence counts are single bytes
	varint := []byte{
		0x01, // one query
		0x00, // create store
		0x10, // store name length
	}
	varint = append(varint, "Diretnan Station"...)
	varint = append(varint, 5, 0, 0, 0, 0, 0, 0, 0) // dimension
	varint = append(varint,
		0x00, // no predicates
		0x00, // no non linear indices
		0x01, // error if exists
		0x00, // no trace id
	)

	// fixint: u64 lengths and u32 discriminants
	var fixint []byte
	fixint = binary.LittleEndian.AppendUint64(fixint, 1)
	fixint = binary.LittleEndian.AppendUint32(fixint, 0)
	fixint = binary.LittleEndian.AppendUint64(fixint, 16)
	fixint = append(fixint, "Diretnan Station"...)
	fixint = binary.LittleEndian.AppendUint64(fixint, 5)
	fixint = binary.LittleEndian.AppendUint64(fixint, 0)
	fixint = binary.LittleEndian.AppendUint64(fixint, 0)
	fixint = append(fixint, 0x01, 0x00)

	testCases := []struct {
		name       string
		serializer IRPCSerializer
		expected   []byte
	}{
		{"Varint", NewVarintSerializer(), varint},
		{"Fixint", NewFixintSerializer(), fixint},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			data, err := tc.serializer.SerializeQuery(q)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			if !bytes.Equal(data, tc.expected) {
				t.Errorf("Unexpected layout:\nexpected % x\ngot      % x", tc.expected, data)
			}
		})
	}
}

// TestMetadataOrderIsStable checks that equal maps always produce equal bytes
func TestMetadataOrderIsStable(t *testing.T) {
	serializer := NewVarintSerializer()

	a := common.StoreValue{}
	b := common.StoreValue{}
	keys := []string{"z", "a", "m", "b", "y", "c", "x", "d"}
	for _, k := range keys {
		a[k] = common.RawString(k)
	}
	for i := len(keys) - 1; i >= 0; i-- {
		b[keys[i]] = common.RawString(keys[i])
	}

	encode := func(v common.StoreValue) []byte {
		data, err := serializer.SerializeQuery(common.ServerQuery{Queries: []common.Query{
			common.QuerySet{Store: "s", Inputs: []common.StoreEntry{{Key: common.StoreKey{1}, Value: v}}},
		}})
		if err != nil {
			t.Fatalf("Failed to serialize: %v", err)
		}
		return data
	}

	first := encode(a)
	for i := 0; i < 10; i++ {
		if !bytes.Equal(first, encode(a)) || !bytes.Equal(first, encode(b)) {
			t.Fatalf("Encoding of equal maps differs")
		}
	}
}

// TestDeepCondition tests that deeply nested predicate trees round trip
func TestDeepCondition(t *testing.T) {
	serializer := NewVarintSerializer()

	var cond common.PredicateCondition = common.Where(common.Equals{Key: "k", Value: common.RawString("v")})
	for i := 0; i < 5000; i++ {
		if i%2 == 0 {
			cond = common.And(cond, common.Where(common.Equals{Key: "k", Value: common.RawString("v")}))
		} else {
			cond = common.Or(common.Where(common.NotEquals{Key: "k", Value: common.RawString("w")}), cond)
		}
	}

	q := common.ServerQuery{Queries: []common.Query{common.QueryGetPred{Store: "s", Condition: cond}}}
	data, err := serializer.SerializeQuery(q)
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}

	var result common.ServerQuery
	if err := serializer.DeserializeQuery(data, &result); err != nil {
		t.Fatalf("Failed to deserialize: %v", err)
	}
	if !reflect.DeepEqual(q, result) {
		t.Errorf("Deep condition doesn't match after round trip")
	}
}

// TestEncodeErrors tests values that can not be put on the wire
func TestEncodeErrors(t *testing.T) {
	serializer := NewVarintSerializer()

	testCases := []struct {
		name  string
		query common.Query
	}{
		{"Nil query", nil},
		{"Nil condition", common.QueryGetPred{Store: "s"}},
		{"Nil predicate", common.QueryDelPred{Store: "s", Condition: common.CondValue{}}},
		{"Nil metadata value", common.QuerySet{Store: "s", Inputs: []common.StoreEntry{
			{Key: common.StoreKey{1}, Value: common.StoreValue{"k": nil}},
		}}},
		{"Unknown algorithm", common.QueryGetSimN{Store: "s", SearchInput: common.StoreKey{1}, ClosestN: 1, Algorithm: 99}},
		{"Unknown non linear algorithm", common.QueryCreateNonLinearAlgorithmIndex{Store: "s", NonLinearIndices: []common.NonLinearAlgorithm{7}}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := serializer.SerializeQuery(common.ServerQuery{Queries: []common.Query{common.QueryPing{}, tc.query}})
			if err == nil {
				t.Fatalf("Expected error but got none")
			}
			if !errors.Is(err, common.ErrEncode) {
				t.Errorf("Expected encode error, got %v", err)
			}
		})
	}

	_, err := serializer.SerializeResult(common.ServerResult{Results: []common.Result{common.ResultOk{}}})
	if !errors.Is(err, common.ErrEncode) {
		t.Errorf("Expected encode error for missing response, got %v", err)
	}
}

// TestInvalidResultData tests how the serializer handles corrupt or hostile result payloads
func TestInvalidResultData(t *testing.T) {
	serializer := NewVarintSerializer()

	f32 := func(v float32) []byte {
		return binary.LittleEndian.AppendUint32(nil, math.Float32bits(v))
	}
	concat := func(parts ...[]byte) []byte {
		var out []byte
		for _, p := range parts {
			out = append(out, p...)
		}
		return out
	}

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{name: "Empty data", data: []byte{}, expectError: true},
		{name: "Empty batch", data: []byte{0x00}, expectError: false},
		{name: "Trailing bytes", data: []byte{0x00, 0x00}, expectError: true},
		{name: "Trailing bytes after pong", data: []byte{0x01, 0x00, 0x01, 0x00}, expectError: true},
		{name: "Unknown result variant", data: []byte{0x01, 0x02}, expectError: true},
		{name: "Unknown response variant", data: []byte{0x01, 0x00, 0x0a}, expectError: true},
		{name: "Invalid utf-8", data: []byte{0x01, 0x01, 0x02, 0xff, 0xfe}, expectError: true},
		{name: "Valid error message", data: []byte{0x01, 0x01, 0x02, 'o', 'k'}, expectError: false},
		{name: "Length past end", data: []byte{0x01, 0x01, 0x05, 'a', 'b'}, expectError: true},
		{name: "Huge count", data: []byte{0xff, 0xff, 0xff, 0xff, 0x0f}, expectError: true},
		{name: "Varint overflow", data: []byte{0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x01}, expectError: true},
		{name: "Truncated u64", data: []byte{0x01, 0x00, 0x08, 0x01, 0x02}, expectError: true},
		{
			name:        "Store key version",
			data:        []byte{0x01, 0x00, 0x06, 0x01, 0x02, 0x00, 0x00, 0x00},
			expectError: true,
		},
		{
			name:        "Store key dimension mismatch",
			data:        concat([]byte{0x01, 0x00, 0x06, 0x01, 0x01, 0x01, 0x02}, f32(1), f32(2), []byte{0x00}),
			expectError: true,
		},
		{
			name:        "Valid store key",
			data:        concat([]byte{0x01, 0x00, 0x06, 0x01, 0x01, 0x02, 0x02}, f32(1), f32(2), []byte{0x00}),
			expectError: false,
		},
		{
			name: "Duplicate metadata key",
			data: []byte{0x01, 0x00, 0x06, 0x01, 0x01, 0x00, 0x00,
				0x02, 0x01, 'a', 0x00, 0x00, 0x01, 'a', 0x00, 0x00},
			expectError: true,
		},
		{name: "Non-canonical zero count", data: []byte{0x80, 0x00}, expectError: true},
		{name: "Non-canonical count", data: []byte{0x81, 0x00, 0x00, 0x01}, expectError: true},
		{name: "Canonical count", data: []byte{0x01, 0x00, 0x01}, expectError: false},
		{name: "Non-canonical string length", data: []byte{0x01, 0x01, 0x82, 0x00, 'o', 'k'}, expectError: true},
		{name: "Canonical two byte count", data: append([]byte{0x80, 0x01}, bytes.Repeat([]byte{0x01, 0x01, 0x00}, 128)...), expectError: false},
		{name: "Unknown server type", data: concat([]byte{0x01, 0x00, 0x04, 0x00, 0x00, 0, 0, 0, 0, 0x05}, make([]byte, 16)), expectError: true},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var res common.ServerResult
			err := serializer.DeserializeResult(tc.data, &res)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
			if err != nil && !errors.Is(err, common.ErrDeserialization) {
				t.Errorf("Expected deserialization error, got %v", err)
			}
		})
	}
}

// TestInvalidQueryData tests how the serializer handles corrupt query payloads
func TestInvalidQueryData(t *testing.T) {
	serializer := NewVarintSerializer()

	getSimN := []byte{0x01, 0x03, 0x01, 's', 0x01, 0x00, 0x00}
	getSimN = binary.LittleEndian.AppendUint64(getSimN, 1)

	testCases := []struct {
		name        string
		data        []byte
		expectError bool
	}{
		{name: "Unknown query variant", data: []byte{0x01, 0x11}, expectError: true},
		{name: "Invalid bool", data: []byte{0x01, 0x0b, 0x01, 's', 0x02, 0x00}, expectError: true},
		{name: "Valid drop store", data: []byte{0x01, 0x0b, 0x01, 's', 0x01, 0x00}, expectError: false},
		{name: "Invalid option tag", data: []byte{0x00, 0x02}, expectError: true},
		{name: "Unknown algorithm", data: append(append([]byte{}, getSimN...), 0x07, 0x00, 0x00), expectError: true},
		{name: "Known algorithm", data: append(append([]byte{}, getSimN...), 0x02, 0x00, 0x00), expectError: false},
		{name: "Missing trace option", data: []byte{0x01, 0x0f}, expectError: true},
		{name: "Non-canonical discriminant", data: []byte{0x01, 0x8f, 0x00, 0x00}, expectError: true},
		{name: "Non-canonical batch length", data: []byte{0x81, 0x00, 0x0f, 0x00}, expectError: true},
		{name: "Canonical ping", data: []byte{0x01, 0x0f, 0x00}, expectError: false},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			var q common.ServerQuery
			err := serializer.DeserializeQuery(tc.data, &q)

			if tc.expectError && err == nil {
				t.Errorf("Expected error but got none")
			} else if !tc.expectError && err != nil {
				t.Errorf("Did not expect error but got: %v", err)
			}
			if err != nil && !errors.Is(err, common.ErrDeserialization) {
				t.Errorf("Expected deserialization error, got %v", err)
			}
		})
	}
}

// TestFixintTrailingBytes checks that the fixint mode is just as strict
func TestFixintTrailingBytes(t *testing.T) {
	serializer := NewFixintSerializer()

	data, err := serializer.SerializeResult(common.ServerResult{Results: []common.Result{common.ResultOk{Response: common.RespPong{}}}})
	if err != nil {
		t.Fatalf("Failed to serialize: %v", err)
	}
	if len(data) != 8+4+4 {
		t.Errorf("Unexpected length %d", len(data))
	}

	var res common.ServerResult
	if err := serializer.DeserializeResult(append(data, 0x00), &res); !errors.Is(err, common.ErrDeserialization) {
		t.Errorf("Expected deserialization error, got %v", err)
	}

	// a varint payload is not a valid fixint payload
	varint, _ := NewVarintSerializer().SerializeResult(common.ServerResult{Results: []common.Result{common.ResultOk{Response: common.RespPong{}}}})
	if err := serializer.DeserializeResult(varint, &res); err == nil {
		t.Errorf("Expected error decoding varint payload as fixint")
	}
}

// TestNilAndEmptyAreEqual checks that nil and empty collections share one
// encoding and decode to nil
func TestNilAndEmptyAreEqual(t *testing.T) {
	for name, factory := range testSerializers {
		t.Run(name, func(t *testing.T) {
			serializer := factory()

			empty := common.ServerQuery{Queries: []common.Query{
				common.QueryCreateStore{Store: "s", Dimension: 1, CreatePredicates: []string{}, NonLinearIndices: []common.NonLinearAlgorithm{}},
				common.QuerySet{Store: "s", Inputs: []common.StoreEntry{{Key: common.StoreKey{1}, Value: common.StoreValue{}}}},
			}}
			null := common.ServerQuery{Queries: []common.Query{
				common.QueryCreateStore{Store: "s", Dimension: 1},
				common.QuerySet{Store: "s", Inputs: []common.StoreEntry{{Key: common.StoreKey{1}}}},
			}}

			a, err := serializer.SerializeQuery(empty)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			b, err := serializer.SerializeQuery(null)
			if err != nil {
				t.Fatalf("Failed to serialize: %v", err)
			}
			if !bytes.Equal(a, b) {
				t.Fatalf("Expected equal encodings, got % x and % x", a, b)
			}

			var decoded common.ServerQuery
			if err := serializer.DeserializeQuery(a, &decoded); err != nil {
				t.Fatalf("Failed to deserialize: %v", err)
			}
			if !reflect.DeepEqual(decoded, null) {
				t.Errorf("Expected %#v, got %#v", null, decoded)
			}
		})
	}
}
