package serializer

import (
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
)

// NewBinarySerializer creates a new serializer for the tagged-union binary
// format. An empty mode selects common.IntEncodingVarint.
func NewBinarySerializer(mode common.IntEncoding) IRPCSerializer {
	if mode == "" {
		mode = common.IntEncodingVarint
	}
	return &binarySerializerImpl{mode: mode}
}

// NewFixintSerializer creates a binary serializer with fixed width lengths and
// discriminants (the layout of bincode's default configuration)
func NewFixintSerializer() IRPCSerializer {
	return NewBinarySerializer(common.IntEncodingFixint)
}

// NewVarintSerializer creates a binary serializer with LEB128 lengths and
// discriminants
func NewVarintSerializer() IRPCSerializer {
	return NewBinarySerializer(common.IntEncodingVarint)
}

// binarySerializerImpl implements IRPCSerializer, it is stateless apart from the mode
type binarySerializerImpl struct {
	mode common.IntEncoding
}

// --------------------------------------------------------------------------
// Interface Methods (docu see serializer.IRPCSerializer)
// --------------------------------------------------------------------------

func (b *binarySerializerImpl) Encoding() common.IntEncoding {
	return b.mode
}

func (b *binarySerializerImpl) SerializeQuery(q common.ServerQuery) ([]byte, error) {
	e := getEncoder(b.mode)
	defer putEncoder(e)

	e.writeServerQuery(q)
	if e.err != nil {
		return nil, common.NewError(common.KindEncode, "serialize query", e.err)
	}
	return e.bytes(), nil
}

func (b *binarySerializerImpl) DeserializeQuery(data []byte, q *common.ServerQuery) error {
	d := newDecoder(data, b.mode)
	res := d.readServerQuery()
	if err := d.finish(); err != nil {
		return common.NewError(common.KindDeserialization, "deserialize query", err)
	}
	*q = res
	return nil
}

func (b *binarySerializerImpl) SerializeResult(r common.ServerResult) ([]byte, error) {
	e := getEncoder(b.mode)
	defer putEncoder(e)

	e.writeServerResult(r)
	if e.err != nil {
		return nil, common.NewError(common.KindEncode, "serialize result", e.err)
	}
	return e.bytes(), nil
}

func (b *binarySerializerImpl) DeserializeResult(data []byte, r *common.ServerResult) error {
	d := newDecoder(data, b.mode)
	res := d.readServerResult()
	if err := d.finish(); err != nil {
		return common.NewError(common.KindDeserialization, "deserialize result", err)
	}
	*r = res
	return nil
}

func (b *binarySerializerImpl) SerializeAIQuery(q common.AIServerQuery) ([]byte, error) {
	e := getEncoder(b.mode)
	defer putEncoder(e)

	e.writeAIServerQuery(q)
	if e.err != nil {
		return nil, common.NewError(common.KindEncode, "serialize ai query", e.err)
	}
	return e.bytes(), nil
}

func (b *binarySerializerImpl) DeserializeAIQuery(data []byte, q *common.AIServerQuery) error {
	d := newDecoder(data, b.mode)
	res := d.readAIServerQuery()
	if err := d.finish(); err != nil {
		return common.NewError(common.KindDeserialization, "deserialize ai query", err)
	}
	*q = res
	return nil
}

func (b *binarySerializerImpl) SerializeAIResult(r common.ServerResult) ([]byte, error) {
	e := getEncoder(b.mode)
	defer putEncoder(e)

	e.ai = true
	e.writeServerResult(r)
	if e.err != nil {
		return nil, common.NewError(common.KindEncode, "serialize ai result", e.err)
	}
	return e.bytes(), nil
}

func (b *binarySerializerImpl) DeserializeAIResult(data []byte, r *common.ServerResult) error {
	d := newDecoder(data, b.mode)
	d.ai = true
	res := d.readServerResult()
	if err := d.finish(); err != nil {
		return common.NewError(common.KindDeserialization, "deserialize ai result", err)
	}
	*r = res
	return nil
}
