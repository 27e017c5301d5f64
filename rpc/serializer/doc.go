// Package serializer implements the tagged-union binary codec used to put
// ahnlich requests and responses on the wire.
//
// Every union (Query, ServerResponse, Result, Predicate, ...) is written as
// its variant discriminant followed by the fields of the variant in
// declaration order. Scalars are fixed width little endian, strings and byte
// strings carry a length prefix, optionals a one byte presence flag and maps
// are written with their keys in sorted order, so equal values always encode
// to equal bytes.
//
// Two integer encodings are supported for lengths, counts and discriminants:
//
//   - common.IntEncodingVarint: unsigned LEB128 (the default)
//   - common.IntEncodingFixint: u64 lengths and u32 discriminants, which is the
//     layout of bincode's default configuration spoken by the ahnlich server
//
// Decoding is closed world: unknown discriminants, truncated input, invalid
// UTF-8, bool bytes other than 0/1 and trailing bytes after the outermost
// value are reported as common.ErrDeserialization. Values that can not be
// represented (nil variants, unknown enum values) fail with common.ErrEncode.
//
// Thread Safety:
//
//	Serializers are stateless and safe for concurrent use. Encoders are
//	pooled internally.
//
// Usage:
//
//	s := serializer.NewBinarySerializer(common.IntEncodingFixint)
//	payload, err := s.SerializeQuery(common.ServerQuery{Queries: []common.Query{common.QueryPing{}}})
//	// ... exchange payload ...
//	var res common.ServerResult
//	err = s.DeserializeResult(responsePayload, &res)
package serializer
