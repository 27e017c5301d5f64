package common

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Models
// --------------------------------------------------------------------------

// AIModel selects the embedding model an AI store uses for indexing or
// querying. The numeric values are part of the wire format.
type AIModel uint32

const (
	AllMiniLML6V2 AIModel = iota
	AllMiniLML12V2
	BGEBaseEnV15
	BGELargeEnV15
	Resnet50
	ClipVitB32Image
	ClipVitB32Text
)

const aiModelCount = 7

// Valid reports whether m is a known variant
func (m AIModel) Valid() bool { return m < aiModelCount }

func (m AIModel) String() string {
	switch m {
	case AllMiniLML6V2:
		return "all-minilm-l6-v2"
	case AllMiniLML12V2:
		return "all-minilm-l12-v2"
	case BGEBaseEnV15:
		return "bge-base-en-v1.5"
	case BGELargeEnV15:
		return "bge-large-en-v1.5"
	case Resnet50:
		return "resnet-50"
	case ClipVitB32Image:
		return "clip-vit-b32-image"
	case ClipVitB32Text:
		return "clip-vit-b32-text"
	default:
		return "unknown"
	}
}

// ParseAIModel parses the string representation produced by AIModel.String.
func ParseAIModel(s string) (AIModel, error) {
	for m := AIModel(0); m < aiModelCount; m++ {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("unknown ai model %q", s)
}

// EmbeddingSize returns the length of the vectors the model produces
func (m AIModel) EmbeddingSize() uint64 {
	switch m {
	case AllMiniLML6V2, AllMiniLML12V2:
		return 384
	case BGEBaseEnV15:
		return 768
	case BGELargeEnV15:
		return 1024
	case Resnet50:
		return 2048
	case ClipVitB32Image, ClipVitB32Text:
		return 512
	default:
		return 0
	}
}

// InputType returns the kind of input the model accepts
func (m AIModel) InputType() StoreInputType {
	switch m {
	case Resnet50, ClipVitB32Image:
		return InputTImage
	default:
		return InputTRawString
	}
}

// PreprocessAction tells the proxy whether to run the model preprocessing
// (tokenizing, resizing) on an input before embedding it.
type PreprocessAction uint32

const (
	NoPreprocessing PreprocessAction = iota
	ModelPreprocessing
)

// Valid reports whether a is a known variant
func (a PreprocessAction) Valid() bool { return a <= ModelPreprocessing }

func (a PreprocessAction) String() string {
	switch a {
	case NoPreprocessing:
		return "none"
	case ModelPreprocessing:
		return "model"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Store Inputs
// --------------------------------------------------------------------------

// StoreInputType is the discriminant of a StoreInput
type StoreInputType uint32

const (
	InputTRawString StoreInputType = iota
	InputTImage
)

func (t StoreInputType) String() string {
	switch t {
	case InputTRawString:
		return "raw string"
	case InputTImage:
		return "image"
	default:
		return "unknown"
	}
}

// StoreInput is the raw value an AI store turns into an embedding.
type StoreInput interface {
	Type() StoreInputType
	isStoreInput()
}

// InputRawString is a text input
type InputRawString string

// InputImage holds the encoded bytes of an image
type InputImage []byte

func (InputRawString) Type() StoreInputType { return InputTRawString }
func (InputImage) Type() StoreInputType     { return InputTImage }
func (InputRawString) isStoreInput()        {}
func (InputImage) isStoreInput()            {}

// AIStoreEntry is an input together with its metadata. Input is nil in
// answers of stores that do not keep the original inputs.
type AIStoreEntry struct {
	Input StoreInput
	Value StoreValue
}

// AISimilarEntry is an AI store entry together with its similarity to the
// search input.
type AISimilarEntry struct {
	Input      StoreInput
	Value      StoreValue
	Similarity float32
}

// AIStoreInfo shows store name, models and embedding size.
type AIStoreInfo struct {
	Name          string
	QueryModel    AIModel
	IndexModel    AIModel
	EmbeddingSize uint64
}

// --------------------------------------------------------------------------
// AI Query Type Definition
// --------------------------------------------------------------------------

// AIQueryType is the discriminant of an AIQuery. The order differs from
// QueryType.
type AIQueryType uint32

const (
	AIQueryTCreateStore AIQueryType = iota
	AIQueryTGetPred
	AIQueryTGetSimN
	AIQueryTCreatePredIndex
	AIQueryTCreateNonLinearAlgorithmIndex
	AIQueryTDropPredIndex
	AIQueryTDropNonLinearAlgorithmIndex
	AIQueryTSet
	AIQueryTDelKey
	AIQueryTDropStore
	AIQueryTGetKey
	AIQueryTInfoServer
	AIQueryTListClients
	AIQueryTListStores
	AIQueryTPurgeStores
	AIQueryTPing

	aiQueryTypeCount
)

// Valid reports whether t is a known variant
func (t AIQueryType) Valid() bool { return t < aiQueryTypeCount }

func (t AIQueryType) String() string {
	switch t {
	case AIQueryTCreateStore:
		return "createStore"
	case AIQueryTGetPred:
		return "getPred"
	case AIQueryTGetSimN:
		return "getSimN"
	case AIQueryTCreatePredIndex:
		return "createPredIndex"
	case AIQueryTCreateNonLinearAlgorithmIndex:
		return "createNonLinearAlgorithmIndex"
	case AIQueryTDropPredIndex:
		return "dropPredIndex"
	case AIQueryTDropNonLinearAlgorithmIndex:
		return "dropNonLinearAlgorithmIndex"
	case AIQueryTSet:
		return "set"
	case AIQueryTDelKey:
		return "delKey"
	case AIQueryTDropStore:
		return "dropStore"
	case AIQueryTGetKey:
		return "getKey"
	case AIQueryTInfoServer:
		return "infoServer"
	case AIQueryTListClients:
		return "listClients"
	case AIQueryTListStores:
		return "listStores"
	case AIQueryTPurgeStores:
		return "purgeStores"
	case AIQueryTPing:
		return "ping"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// AI Query Variants
// --------------------------------------------------------------------------

// AIQuery is a tagged union of all requests the AI proxy understands. The
// proxy embeds inputs with the store models and forwards them to a DB server.
type AIQuery interface {
	Type() AIQueryType
	isAIQuery()
}

type AIQueryCreateStore struct {
	Store            string
	QueryModel       AIModel
	IndexModel       AIModel
	Predicates       []string
	NonLinearIndices []NonLinearAlgorithm
	ErrorIfExists    bool
	// StoreOriginal keeps the raw inputs so Get answers can return them
	StoreOriginal bool
}

type AIQueryGetPred struct {
	Store     string
	Condition PredicateCondition
}

type AIQueryGetSimN struct {
	Store       string
	SearchInput StoreInput
	Condition   PredicateCondition // optional, nil if unset
	ClosestN    uint64
	Algorithm   Algorithm
	Preprocess  PreprocessAction
}

type AIQueryCreatePredIndex struct {
	Store      string
	Predicates []string
}

type AIQueryCreateNonLinearAlgorithmIndex struct {
	Store            string
	NonLinearIndices []NonLinearAlgorithm
}

type AIQueryDropPredIndex struct {
	Store            string
	Predicates       []string
	ErrorIfNotExists bool
}

type AIQueryDropNonLinearAlgorithmIndex struct {
	Store            string
	NonLinearIndices []NonLinearAlgorithm
	ErrorIfNotExists bool
}

type AIQuerySet struct {
	Store      string
	Inputs     []AIStoreEntry
	Preprocess PreprocessAction
}

type AIQueryDelKey struct {
	Store string
	Key   StoreInput
}

type AIQueryDropStore struct {
	Store            string
	ErrorIfNotExists bool
}

type AIQueryGetKey struct {
	Store string
	Keys  []StoreInput
}

type AIQueryInfoServer struct{}
type AIQueryListClients struct{}
type AIQueryListStores struct{}
type AIQueryPurgeStores struct{}
type AIQueryPing struct{}

func (AIQueryCreateStore) Type() AIQueryType     { return AIQueryTCreateStore }
func (AIQueryGetPred) Type() AIQueryType         { return AIQueryTGetPred }
func (AIQueryGetSimN) Type() AIQueryType         { return AIQueryTGetSimN }
func (AIQueryCreatePredIndex) Type() AIQueryType { return AIQueryTCreatePredIndex }
func (AIQueryDropPredIndex) Type() AIQueryType   { return AIQueryTDropPredIndex }
func (AIQuerySet) Type() AIQueryType             { return AIQueryTSet }
func (AIQueryDelKey) Type() AIQueryType          { return AIQueryTDelKey }
func (AIQueryDropStore) Type() AIQueryType       { return AIQueryTDropStore }
func (AIQueryGetKey) Type() AIQueryType          { return AIQueryTGetKey }
func (AIQueryInfoServer) Type() AIQueryType      { return AIQueryTInfoServer }
func (AIQueryListClients) Type() AIQueryType     { return AIQueryTListClients }
func (AIQueryListStores) Type() AIQueryType      { return AIQueryTListStores }
func (AIQueryPurgeStores) Type() AIQueryType     { return AIQueryTPurgeStores }
func (AIQueryPing) Type() AIQueryType            { return AIQueryTPing }

func (AIQueryCreateNonLinearAlgorithmIndex) Type() AIQueryType {
	return AIQueryTCreateNonLinearAlgorithmIndex
}

func (AIQueryDropNonLinearAlgorithmIndex) Type() AIQueryType {
	return AIQueryTDropNonLinearAlgorithmIndex
}

func (AIQueryCreateStore) isAIQuery()                   {}
func (AIQueryGetPred) isAIQuery()                       {}
func (AIQueryGetSimN) isAIQuery()                       {}
func (AIQueryCreatePredIndex) isAIQuery()               {}
func (AIQueryCreateNonLinearAlgorithmIndex) isAIQuery() {}
func (AIQueryDropPredIndex) isAIQuery()                 {}
func (AIQueryDropNonLinearAlgorithmIndex) isAIQuery()   {}
func (AIQuerySet) isAIQuery()                           {}
func (AIQueryDelKey) isAIQuery()                        {}
func (AIQueryDropStore) isAIQuery()                     {}
func (AIQueryGetKey) isAIQuery()                        {}
func (AIQueryInfoServer) isAIQuery()                    {}
func (AIQueryListClients) isAIQuery()                   {}
func (AIQueryListStores) isAIQuery()                    {}
func (AIQueryPurgeStores) isAIQuery()                   {}
func (AIQueryPing) isAIQuery()                          {}

// AIServerQuery is the batch envelope of the AI proxy. It is answered with a
// ServerResult holding one Result per query, like ServerQuery.
type AIServerQuery struct {
	Queries []AIQuery
	TraceID *string
}

// --------------------------------------------------------------------------
// AI Responses
// --------------------------------------------------------------------------

// The AI proxy answers with the response numbering of the DB server. Only the
// three variants below carry AI specific payloads, all other answers use the
// DB response structs.

type RespAIStoreList struct {
	Stores []AIStoreInfo
}

type RespAIGet struct {
	Entries []AIStoreEntry
}

type RespAIGetSimN struct {
	Entries []AISimilarEntry
}

func (RespAIStoreList) Type() ResponseType { return RespTStoreList }
func (RespAIGet) Type() ResponseType       { return RespTGet }
func (RespAIGetSimN) Type() ResponseType   { return RespTGetSimN }
func (RespAIStoreList) isResponse()        {}
func (RespAIGet) isResponse()              {}
func (RespAIGetSimN) isResponse()          {}
