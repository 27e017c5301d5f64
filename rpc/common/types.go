package common

import (
	"fmt"
	"time"
)

// --------------------------------------------------------------------------
// Protocol Version
// --------------------------------------------------------------------------

// Version is the three part version tag sent in every frame header.
// On the wire it is exactly 5 bytes: major (u8), minor (u16 LE), patch (u16 LE).
type Version struct {
	Major uint8
	Minor uint16
	Patch uint16
}

// ProtocolVersion is the version advertised by this client.
// Variant discriminants must never be renumbered without bumping it.
var ProtocolVersion = Version{Major: 0, Minor: 1, Patch: 0}

// IsCompatible reports whether two versions can talk to each other.
// Only the major version has to match.
func (v Version) IsCompatible(other Version) bool {
	return v.Major == other.Major
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// --------------------------------------------------------------------------
// Store Keys and Values
// --------------------------------------------------------------------------

// StoreKey is the embedding vector that identifies an entry in a store.
type StoreKey []float32

// StoreKeyVersion is the array layout version written in front of every key.
const StoreKeyVersion uint8 = 1

// StoreValue holds the metadata attached to a store key.
type StoreValue map[string]MetadataValue

// StoreEntry is a single (key, value) pair of a store.
type StoreEntry struct {
	Key   StoreKey
	Value StoreValue
}

// SimilarEntry is a store entry together with its similarity to the search input.
type SimilarEntry struct {
	Key        StoreKey
	Value      StoreValue
	Similarity float32
}

// MetadataValueType is the discriminant of a MetadataValue
type MetadataValueType uint32

const (
	MetaTRawString MetadataValueType = iota
	MetaTBinary
)

// MetadataValue is a tagged union of all metadata value kinds.
type MetadataValue interface {
	Type() MetadataValueType
	isMetadataValue()
}

// RawString is a textual metadata value
type RawString string

// Binary is an opaque binary metadata value (e.g. an image)
type Binary []byte

func (RawString) Type() MetadataValueType { return MetaTRawString }
func (Binary) Type() MetadataValueType    { return MetaTBinary }
func (RawString) isMetadataValue()        {}
func (Binary) isMetadataValue()           {}

// MetadataFromStrings converts a plain string map into a StoreValue.
func MetadataFromStrings(m map[string]string) StoreValue {
	v := make(StoreValue, len(m))
	for key, val := range m {
		v[key] = RawString(val)
	}
	return v
}

// --------------------------------------------------------------------------
// Unit-only unions
// --------------------------------------------------------------------------

// Algorithm selects the similarity function used by GetSimN.
type Algorithm uint32

const (
	EuclideanDistance Algorithm = iota
	DotProductSimilarity
	CosineSimilarity
	KdTree
)

// algorithmCount is the number of known Algorithm variants
const algorithmCount = 4

// Valid reports whether a is a known variant
func (a Algorithm) Valid() bool { return a < algorithmCount }

func (a Algorithm) String() string {
	switch a {
	case EuclideanDistance:
		return "euclidean"
	case DotProductSimilarity:
		return "dot-product"
	case CosineSimilarity:
		return "cosine"
	case KdTree:
		return "kdtree"
	default:
		return "unknown"
	}
}

// ParseAlgorithm parses the string representation produced by Algorithm.String.
func ParseAlgorithm(s string) (Algorithm, error) {
	for a := Algorithm(0); a < algorithmCount; a++ {
		if a.String() == s {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown algorithm %q", s)
}

// NonLinearAlgorithm is an index type maintained by the server.
type NonLinearAlgorithm uint32

const (
	NonLinearKdTree NonLinearAlgorithm = iota
)

const nonLinearAlgorithmCount = 1

// Valid reports whether a is a known variant
func (a NonLinearAlgorithm) Valid() bool { return a < nonLinearAlgorithmCount }

func (a NonLinearAlgorithm) String() string {
	if a == NonLinearKdTree {
		return "kdtree"
	}
	return "unknown"
}

// ServerType tells which kind of server answered an InfoServer request.
type ServerType uint32

const (
	ServerTypeDatabase ServerType = iota
	ServerTypeAI
)

const serverTypeCount = 2

// Valid reports whether t is a known variant
func (t ServerType) Valid() bool { return t < serverTypeCount }

func (t ServerType) String() string {
	switch t {
	case ServerTypeDatabase:
		return "database"
	case ServerTypeAI:
		return "ai"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Response structs
// --------------------------------------------------------------------------

// SystemTime is a point in time as seconds and nanoseconds since the unix epoch.
type SystemTime struct {
	Secs  uint64
	Nanos uint32
}

// NewSystemTime converts a time.Time into a SystemTime
func NewSystemTime(t time.Time) SystemTime {
	return SystemTime{Secs: uint64(t.Unix()), Nanos: uint32(t.Nanosecond())}
}

// Time converts the SystemTime into a time.Time in UTC
func (s SystemTime) Time() time.Time {
	return time.Unix(int64(s.Secs), int64(s.Nanos)).UTC()
}

// ConnectedClient describes one client connected to the server.
type ConnectedClient struct {
	Address       string
	TimeConnected SystemTime
}

// StoreInfo shows store name, number of entries and size.
type StoreInfo struct {
	Name        string
	Len         uint64
	SizeInBytes uint64
}

// ServerInfo is returned by the InfoServer request.
type ServerInfo struct {
	Address   string
	Version   Version
	Type      ServerType
	Limit     uint64
	Remaining uint64
}

// StoreUpsert shows how many entries were inserted and updated by a Set request.
type StoreUpsert struct {
	Inserted uint64
	Updated  uint64
}

// Modified reports whether the upsert changed anything
func (s StoreUpsert) Modified() bool {
	return s.Inserted+s.Updated > 0
}
