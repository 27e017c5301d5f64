package serializer

import "github.com/ValentinKolb/ahnlich-go/rpc/common"

// IRPCSerializer is the interface for all payload serializers.
// The client uses SerializeQuery and DeserializeResult, a server (or a test
// peer) uses the reverse pair.
//
// The wire format has no notion of nil: a nil and an empty slice, map or byte
// string encode to the same bytes, and every empty collection decodes to nil.
// Callers must not rely on the difference between the two.
type IRPCSerializer interface {
	// SerializeQuery encodes a batch of queries into a payload
	// It returns an encode error if any query can not be represented on the wire
	SerializeQuery(q common.ServerQuery) ([]byte, error)
	// DeserializeQuery decodes a payload into a batch of queries
	// The whole input must be consumed, trailing bytes are an error
	DeserializeQuery(b []byte, q *common.ServerQuery) error
	// SerializeResult encodes the results of a batch into a payload
	SerializeResult(r common.ServerResult) ([]byte, error)
	// DeserializeResult decodes a payload into the results of a batch
	// The whole input must be consumed, trailing bytes are an error
	DeserializeResult(b []byte, r *common.ServerResult) error

	// SerializeAIQuery encodes a batch of AI proxy queries into a payload
	SerializeAIQuery(q common.AIServerQuery) ([]byte, error)
	// DeserializeAIQuery decodes a payload into a batch of AI proxy queries
	DeserializeAIQuery(b []byte, q *common.AIServerQuery) error
	// SerializeAIResult encodes the results of an AI batch. Store lists, get
	// and similarity answers must use the RespAI variants.
	SerializeAIResult(r common.ServerResult) ([]byte, error)
	// DeserializeAIResult decodes the results of an AI batch
	DeserializeAIResult(b []byte, r *common.ServerResult) error

	// Encoding returns the integer encoding used for lengths and discriminants
	Encoding() common.IntEncoding
}
