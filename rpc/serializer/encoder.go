package serializer

import (
	"encoding/binary"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"math"
	"sort"
	"sync"
)

// encoder appends the wire representation of values to buf.
// The first error is kept and all later writes are ignored.
type encoder struct {
	buf  []byte
	mode common.IntEncoding
	err  error
	// ai selects the AI proxy payloads for store lists and get answers
	ai bool
}

var encoderPool = sync.Pool{
	New: func() any { return &encoder{buf: make([]byte, 0, 256)} },
}

// getEncoder returns a reset encoder from the pool
func getEncoder(mode common.IntEncoding) *encoder {
	e := encoderPool.Get().(*encoder)
	e.buf = e.buf[:0]
	e.mode = mode
	e.err = nil
	e.ai = false
	return e
}

// putEncoder returns e to the pool, very large buffers are dropped
func putEncoder(e *encoder) {
	if cap(e.buf) > 1<<20 {
		return
	}
	encoderPool.Put(e)
}

// bytes returns a copy of the encoded data, the encoder buffer is reused
func (e *encoder) bytes() []byte {
	out := make([]byte, len(e.buf))
	copy(out, e.buf)
	return out
}

func (e *encoder) fail(format string, args ...any) {
	if e.err == nil {
		e.err = fmt.Errorf(format, args...)
	}
}

// --------------------------------------------------------------------------
// Fixed width scalars (always little endian)
// --------------------------------------------------------------------------

func (e *encoder) writeU8(v uint8) {
	e.buf = append(e.buf, v)
}

func (e *encoder) writeU16(v uint16) {
	e.buf = binary.LittleEndian.AppendUint16(e.buf, v)
}

func (e *encoder) writeU32(v uint32) {
	e.buf = binary.LittleEndian.AppendUint32(e.buf, v)
}

func (e *encoder) writeU64(v uint64) {
	e.buf = binary.LittleEndian.AppendUint64(e.buf, v)
}

func (e *encoder) writeF32(v float32) {
	e.writeU32(math.Float32bits(v))
}

func (e *encoder) writeBool(v bool) {
	if v {
		e.writeU8(1)
	} else {
		e.writeU8(0)
	}
}

// --------------------------------------------------------------------------
// Mode dependent integers
// --------------------------------------------------------------------------

// writeLen writes a length or element count
func (e *encoder) writeLen(n int) {
	if e.mode == common.IntEncodingFixint {
		e.writeU64(uint64(n))
		return
	}
	e.buf = binary.AppendUvarint(e.buf, uint64(n))
}

// writeVariant writes the discriminant of a tagged union
func (e *encoder) writeVariant(d uint32) {
	if e.mode == common.IntEncodingFixint {
		e.writeU32(d)
		return
	}
	e.buf = binary.AppendUvarint(e.buf, uint64(d))
}

// --------------------------------------------------------------------------
// Composite values
// --------------------------------------------------------------------------

func (e *encoder) writeString(s string) {
	e.writeLen(len(s))
	e.buf = append(e.buf, s...)
}

func (e *encoder) writeBytes(b []byte) {
	e.writeLen(len(b))
	e.buf = append(e.buf, b...)
}

func (e *encoder) writeStrings(s []string) {
	e.writeLen(len(s))
	for _, v := range s {
		e.writeString(v)
	}
}

// writeOptionalString writes a presence flag followed by the value
func (e *encoder) writeOptionalString(s *string) {
	if s == nil {
		e.writeU8(0)
		return
	}
	e.writeU8(1)
	e.writeString(*s)
}

// writeStoreKey writes a key in array layout: version, dimension, elements
func (e *encoder) writeStoreKey(k common.StoreKey) {
	e.writeU8(common.StoreKeyVersion)
	e.writeLen(len(k))
	e.writeLen(len(k))
	for _, f := range k {
		e.writeF32(f)
	}
}

func (e *encoder) writeStoreKeys(keys []common.StoreKey) {
	e.writeLen(len(keys))
	for _, k := range keys {
		e.writeStoreKey(k)
	}
}

func (e *encoder) writeMetadataValue(v common.MetadataValue) {
	switch m := v.(type) {
	case common.RawString:
		e.writeVariant(uint32(common.MetaTRawString))
		e.writeString(string(m))
	case common.Binary:
		e.writeVariant(uint32(common.MetaTBinary))
		e.writeBytes(m)
	case nil:
		e.fail("metadata value is not set")
	default:
		e.fail("unsupported metadata value %T", v)
	}
}

// writeStoreValue writes the metadata map with keys in sorted order so equal
// maps always produce equal bytes
func (e *encoder) writeStoreValue(v common.StoreValue) {
	keys := make([]string, 0, len(v))
	for k := range v {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	e.writeLen(len(keys))
	for _, k := range keys {
		e.writeString(k)
		e.writeMetadataValue(v[k])
	}
}

func (e *encoder) writePredicate(p common.Predicate) {
	switch pr := p.(type) {
	case common.Equals:
		e.writeVariant(uint32(common.PredTEquals))
		e.writeString(pr.Key)
		e.writeMetadataValue(pr.Value)
	case common.NotEquals:
		e.writeVariant(uint32(common.PredTNotEquals))
		e.writeString(pr.Key)
		e.writeMetadataValue(pr.Value)
	case common.In:
		e.writeVariant(uint32(common.PredTIn))
		e.writeString(pr.Key)
		e.writeMetadataValues(pr.Values)
	case common.NotIn:
		e.writeVariant(uint32(common.PredTNotIn))
		e.writeString(pr.Key)
		e.writeMetadataValues(pr.Values)
	case nil:
		e.fail("predicate is not set")
	default:
		e.fail("unsupported predicate %T", p)
	}
}

func (e *encoder) writeMetadataValues(vals []common.MetadataValue) {
	e.writeLen(len(vals))
	for _, v := range vals {
		e.writeMetadataValue(v)
	}
}

func (e *encoder) writeCondition(c common.PredicateCondition) {
	switch cond := c.(type) {
	case common.CondValue:
		e.writeVariant(uint32(common.CondTValue))
		e.writePredicate(cond.Predicate)
	case common.CondAnd:
		e.writeVariant(uint32(common.CondTAnd))
		e.writeCondition(cond.Left)
		e.writeCondition(cond.Right)
	case common.CondOr:
		e.writeVariant(uint32(common.CondTOr))
		e.writeCondition(cond.Left)
		e.writeCondition(cond.Right)
	case nil:
		e.fail("predicate condition is not set")
	default:
		e.fail("unsupported predicate condition %T", c)
	}
}

func (e *encoder) writeOptionalCondition(c common.PredicateCondition) {
	if c == nil {
		e.writeU8(0)
		return
	}
	e.writeU8(1)
	e.writeCondition(c)
}

func (e *encoder) writeAlgorithm(a common.Algorithm) {
	if !a.Valid() {
		e.fail("unknown algorithm %d", uint32(a))
		return
	}
	e.writeVariant(uint32(a))
}

func (e *encoder) writeNonLinearAlgorithms(algs []common.NonLinearAlgorithm) {
	e.writeLen(len(algs))
	for _, a := range algs {
		if !a.Valid() {
			e.fail("unknown non linear algorithm %d", uint32(a))
			return
		}
		e.writeVariant(uint32(a))
	}
}

func (e *encoder) writeStoreEntry(entry common.StoreEntry) {
	e.writeStoreKey(entry.Key)
	e.writeStoreValue(entry.Value)
}

func (e *encoder) writeVersion(v common.Version) {
	e.writeU8(v.Major)
	e.writeU16(v.Minor)
	e.writeU16(v.Patch)
}

func (e *encoder) writeSystemTime(t common.SystemTime) {
	e.writeU64(t.Secs)
	e.writeU32(t.Nanos)
}
