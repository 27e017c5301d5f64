package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"math"
	"unicode/utf8"
)

// decoder reads values from data starting at pos.
// The first error is kept, all later reads return zero values.
// Empty sequences, maps and byte strings decode to nil.
type decoder struct {
	data []byte
	pos  int
	mode common.IntEncoding
	err  error
	// ai selects the AI proxy payloads for store lists and get answers
	ai bool
}

func newDecoder(data []byte, mode common.IntEncoding) *decoder {
	return &decoder{data: data, mode: mode}
}

func (d *decoder) fail(format string, args ...any) {
	if d.err == nil {
		d.err = fmt.Errorf(format, args...)
	}
}

func (d *decoder) remaining() int {
	return len(d.data) - d.pos
}

// finish reports trailing bytes after the outermost value
func (d *decoder) finish() error {
	if d.err != nil {
		return d.err
	}
	if d.remaining() != 0 {
		return fmt.Errorf("%d trailing bytes after payload", d.remaining())
	}
	return nil
}

// take returns the next n bytes
func (d *decoder) take(n int, what string) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || n > d.remaining() {
		d.fail("data too short for %s: need %d bytes at offset %d, have %d", what, n, d.pos, d.remaining())
		return nil
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b
}

// --------------------------------------------------------------------------
// Fixed width scalars
// --------------------------------------------------------------------------

func (d *decoder) readU8(what string) uint8 {
	b := d.take(1, what)
	if b == nil {
		return 0
	}
	return b[0]
}

func (d *decoder) readU16(what string) uint16 {
	b := d.take(2, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint16(b)
}

func (d *decoder) readU32(what string) uint32 {
	b := d.take(4, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint32(b)
}

func (d *decoder) readU64(what string) uint64 {
	b := d.take(8, what)
	if b == nil {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}

func (d *decoder) readF32(what string) float32 {
	return math.Float32frombits(d.readU32(what))
}

func (d *decoder) readBool(what string) bool {
	switch v := d.readU8(what); v {
	case 0:
		return false
	case 1:
		return true
	default:
		d.fail("invalid bool byte 0x%02x for %s", v, what)
		return false
	}
}

// --------------------------------------------------------------------------
// Mode dependent integers
// --------------------------------------------------------------------------

func (d *decoder) readUvarint(what string) uint64 {
	if d.err != nil {
		return 0
	}
	v, n := binary.Uvarint(d.data[d.pos:])
	if n == 0 {
		d.fail("data too short for %s", what)
		return 0
	}
	if n < 0 {
		d.fail("varint overflow for %s", what)
		return 0
	}
	// an overlong encoding (trailing zero group) would not survive a re-encode
	if n > 1 && d.data[d.pos+n-1] == 0 {
		d.fail("non-canonical varint for %s", what)
		return 0
	}
	d.pos += n
	return v
}

// readLen reads a length and checks that at least minElem bytes per element
// are left, so a hostile count can not trigger a huge allocation
func (d *decoder) readLen(what string, minElem int) int {
	var n uint64
	if d.mode == common.IntEncodingFixint {
		n = d.readU64(what)
	} else {
		n = d.readUvarint(what)
	}
	if d.err != nil {
		return 0
	}
	if minElem < 1 {
		minElem = 1
	}
	if n > uint64(d.remaining()/minElem) {
		d.fail("length %d of %s exceeds remaining %d bytes", n, what, d.remaining())
		return 0
	}
	return int(n)
}

func (d *decoder) readVariant(what string) uint32 {
	if d.mode == common.IntEncodingFixint {
		return d.readU32(what)
	}
	v := d.readUvarint(what)
	if v > math.MaxUint32 {
		d.fail("discriminant %d of %s out of range", v, what)
		return 0
	}
	return uint32(v)
}

// --------------------------------------------------------------------------
// Composite values
// --------------------------------------------------------------------------

func (d *decoder) readString(what string) string {
	n := d.readLen(what, 1)
	b := d.take(n, what)
	if d.err != nil {
		return ""
	}
	if !utf8.Valid(b) {
		d.fail("invalid utf-8 in %s", what)
		return ""
	}
	return string(b)
}

func (d *decoder) readBytes(what string) []byte {
	n := d.readLen(what, 1)
	b := d.take(n, what)
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]byte, n)
	copy(out, b)
	return out
}

func (d *decoder) readStrings(what string) []string {
	n := d.readLen(what, 1)
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]string, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		out = append(out, d.readString(what))
	}
	return out
}

func (d *decoder) readOptionalString(what string) *string {
	switch tag := d.readU8(what); tag {
	case 0:
		return nil
	case 1:
		s := d.readString(what)
		return &s
	default:
		d.fail("invalid option tag 0x%02x for %s", tag, what)
		return nil
	}
}

func (d *decoder) readStoreKey() common.StoreKey {
	if v := d.readU8("store key version"); d.err == nil && v != common.StoreKeyVersion {
		d.fail("unsupported store key version %d", v)
	}
	dim := d.readLen("store key dimension", 4)
	n := d.readLen("store key", 4)
	if d.err != nil {
		return nil
	}
	if dim != n {
		d.fail("store key dimension %d does not match %d elements", dim, n)
		return nil
	}
	if n == 0 {
		return nil
	}
	key := make(common.StoreKey, n)
	for i := range key {
		key[i] = d.readF32("store key element")
	}
	return key
}

func (d *decoder) readStoreKeys() []common.StoreKey {
	n := d.readLen("store keys", 1)
	if d.err != nil || n == 0 {
		return nil
	}
	keys := make([]common.StoreKey, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		keys = append(keys, d.readStoreKey())
	}
	return keys
}

func (d *decoder) readMetadataValue() common.MetadataValue {
	switch t := common.MetadataValueType(d.readVariant("metadata value")); t {
	case common.MetaTRawString:
		return common.RawString(d.readString("raw string"))
	case common.MetaTBinary:
		return common.Binary(d.readBytes("binary"))
	default:
		d.fail("unknown metadata value variant %d", t)
		return nil
	}
}

func (d *decoder) readMetadataValues() []common.MetadataValue {
	n := d.readLen("metadata values", 1)
	if d.err != nil || n == 0 {
		return nil
	}
	vals := make([]common.MetadataValue, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		vals = append(vals, d.readMetadataValue())
	}
	return vals
}

func (d *decoder) readStoreValue() common.StoreValue {
	n := d.readLen("store value", 2)
	if d.err != nil || n == 0 {
		return nil
	}
	v := make(common.StoreValue, n)
	for i := 0; i < n && d.err == nil; i++ {
		key := d.readString("metadata key")
		val := d.readMetadataValue()
		if d.err != nil {
			break
		}
		if _, dup := v[key]; dup {
			d.fail("duplicate metadata key %q", key)
			break
		}
		v[key] = val
	}
	return v
}

func (d *decoder) readPredicate() common.Predicate {
	switch t := common.PredicateType(d.readVariant("predicate")); t {
	case common.PredTEquals:
		return common.Equals{Key: d.readString("predicate key"), Value: d.readMetadataValue()}
	case common.PredTNotEquals:
		return common.NotEquals{Key: d.readString("predicate key"), Value: d.readMetadataValue()}
	case common.PredTIn:
		return common.In{Key: d.readString("predicate key"), Values: d.readMetadataValues()}
	case common.PredTNotIn:
		return common.NotIn{Key: d.readString("predicate key"), Values: d.readMetadataValues()}
	default:
		d.fail("unknown predicate variant %d", t)
		return nil
	}
}

func (d *decoder) readCondition() common.PredicateCondition {
	switch t := common.ConditionType(d.readVariant("predicate condition")); t {
	case common.CondTValue:
		return common.CondValue{Predicate: d.readPredicate()}
	case common.CondTAnd:
		left := d.readCondition()
		return common.CondAnd{Left: left, Right: d.readCondition()}
	case common.CondTOr:
		left := d.readCondition()
		return common.CondOr{Left: left, Right: d.readCondition()}
	default:
		d.fail("unknown predicate condition variant %d", t)
		return nil
	}
}

func (d *decoder) readOptionalCondition() common.PredicateCondition {
	switch tag := d.readU8("condition option"); tag {
	case 0:
		return nil
	case 1:
		return d.readCondition()
	default:
		d.fail("invalid option tag 0x%02x for condition", tag)
		return nil
	}
}

func (d *decoder) readAlgorithm() common.Algorithm {
	a := common.Algorithm(d.readVariant("algorithm"))
	if d.err == nil && !a.Valid() {
		d.fail("unknown algorithm variant %d", uint32(a))
	}
	return a
}

func (d *decoder) readNonLinearAlgorithms() []common.NonLinearAlgorithm {
	n := d.readLen("non linear indices", 1)
	if d.err != nil || n == 0 {
		return nil
	}
	out := make([]common.NonLinearAlgorithm, 0, n)
	for i := 0; i < n && d.err == nil; i++ {
		a := common.NonLinearAlgorithm(d.readVariant("non linear algorithm"))
		if d.err == nil && !a.Valid() {
			d.fail("unknown non linear algorithm variant %d", uint32(a))
		}
		out = append(out, a)
	}
	return out
}

func (d *decoder) readStoreEntry() common.StoreEntry {
	return common.StoreEntry{Key: d.readStoreKey(), Value: d.readStoreValue()}
}

func (d *decoder) readVersion() common.Version {
	return common.Version{
		Major: d.readU8("version major"),
		Minor: d.readU16("version minor"),
		Patch: d.readU16("version patch"),
	}
}

func (d *decoder) readSystemTime() common.SystemTime {
	return common.SystemTime{Secs: d.readU64("system time secs"), Nanos: d.readU32("system time nanos")}
}
