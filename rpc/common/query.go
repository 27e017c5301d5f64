package common

// --------------------------------------------------------------------------
// Query Type Definition
// --------------------------------------------------------------------------

// QueryType is the discriminant of a Query. The numeric values are part of
// the wire format.
type QueryType uint32

const (
	QueryTCreateStore QueryType = iota
	QueryTGetKey
	QueryTGetPred
	QueryTGetSimN
	QueryTCreatePredIndex
	QueryTCreateNonLinearAlgorithmIndex
	QueryTDropPredIndex
	QueryTDropNonLinearAlgorithmIndex
	QueryTSet
	QueryTDelKey
	QueryTDelPred
	QueryTDropStore
	QueryTInfoServer
	QueryTListStores
	QueryTListClients
	QueryTPing
	QueryTPurgeStores

	// queryTypeCount must stay the last entry
	queryTypeCount
)

// Valid reports whether t is a known variant
func (t QueryType) Valid() bool { return t < queryTypeCount }

// String returns the string representation of a QueryType.
func (t QueryType) String() string {
	switch t {
	case QueryTCreateStore:
		return "createStore"
	case QueryTGetKey:
		return "getKey"
	case QueryTGetPred:
		return "getPred"
	case QueryTGetSimN:
		return "getSimN"
	case QueryTCreatePredIndex:
		return "createPredIndex"
	case QueryTCreateNonLinearAlgorithmIndex:
		return "createNonLinearAlgorithmIndex"
	case QueryTDropPredIndex:
		return "dropPredIndex"
	case QueryTDropNonLinearAlgorithmIndex:
		return "dropNonLinearAlgorithmIndex"
	case QueryTSet:
		return "set"
	case QueryTDelKey:
		return "delKey"
	case QueryTDelPred:
		return "delPred"
	case QueryTDropStore:
		return "dropStore"
	case QueryTInfoServer:
		return "infoServer"
	case QueryTListStores:
		return "listStores"
	case QueryTListClients:
		return "listClients"
	case QueryTPing:
		return "ping"
	case QueryTPurgeStores:
		return "purgeStores"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Query Variants
// --------------------------------------------------------------------------

// Query is a tagged union of all requests the DB server understands.
type Query interface {
	Type() QueryType
	isQuery()
}

type QueryCreateStore struct {
	Store            string
	Dimension        uint64
	CreatePredicates []string
	NonLinearIndices []NonLinearAlgorithm
	ErrorIfExists    bool
}

type QueryGetKey struct {
	Store string
	Keys  []StoreKey
}

type QueryGetPred struct {
	Store     string
	Condition PredicateCondition
}

type QueryGetSimN struct {
	Store       string
	SearchInput StoreKey
	ClosestN    uint64
	Algorithm   Algorithm
	Condition   PredicateCondition // optional, nil if unset
}

type QueryCreatePredIndex struct {
	Store      string
	Predicates []string
}

type QueryCreateNonLinearAlgorithmIndex struct {
	Store            string
	NonLinearIndices []NonLinearAlgorithm
}

type QueryDropPredIndex struct {
	Store            string
	Predicates       []string
	ErrorIfNotExists bool
}

type QueryDropNonLinearAlgorithmIndex struct {
	Store            string
	NonLinearIndices []NonLinearAlgorithm
	ErrorIfNotExists bool
}

type QuerySet struct {
	Store  string
	Inputs []StoreEntry
}

type QueryDelKey struct {
	Store string
	Keys  []StoreKey
}

type QueryDelPred struct {
	Store     string
	Condition PredicateCondition
}

type QueryDropStore struct {
	Store            string
	ErrorIfNotExists bool
}

type QueryInfoServer struct{}
type QueryListStores struct{}
type QueryListClients struct{}
type QueryPing struct{}
type QueryPurgeStores struct{}

func (QueryCreateStore) Type() QueryType     { return QueryTCreateStore }
func (QueryGetKey) Type() QueryType          { return QueryTGetKey }
func (QueryGetPred) Type() QueryType         { return QueryTGetPred }
func (QueryGetSimN) Type() QueryType         { return QueryTGetSimN }
func (QueryCreatePredIndex) Type() QueryType { return QueryTCreatePredIndex }
func (QueryCreateNonLinearAlgorithmIndex) Type() QueryType {
	return QueryTCreateNonLinearAlgorithmIndex
}
func (QueryDropPredIndex) Type() QueryType               { return QueryTDropPredIndex }
func (QueryDropNonLinearAlgorithmIndex) Type() QueryType { return QueryTDropNonLinearAlgorithmIndex }
func (QuerySet) Type() QueryType                         { return QueryTSet }
func (QueryDelKey) Type() QueryType                      { return QueryTDelKey }
func (QueryDelPred) Type() QueryType                     { return QueryTDelPred }
func (QueryDropStore) Type() QueryType                   { return QueryTDropStore }
func (QueryInfoServer) Type() QueryType                  { return QueryTInfoServer }
func (QueryListStores) Type() QueryType                  { return QueryTListStores }
func (QueryListClients) Type() QueryType                 { return QueryTListClients }
func (QueryPing) Type() QueryType                        { return QueryTPing }
func (QueryPurgeStores) Type() QueryType                 { return QueryTPurgeStores }

func (QueryCreateStore) isQuery()                   {}
func (QueryGetKey) isQuery()                        {}
func (QueryGetPred) isQuery()                       {}
func (QueryGetSimN) isQuery()                       {}
func (QueryCreatePredIndex) isQuery()               {}
func (QueryCreateNonLinearAlgorithmIndex) isQuery() {}
func (QueryDropPredIndex) isQuery()                 {}
func (QueryDropNonLinearAlgorithmIndex) isQuery()   {}
func (QuerySet) isQuery()                           {}
func (QueryDelKey) isQuery()                        {}
func (QueryDelPred) isQuery()                       {}
func (QueryDropStore) isQuery()                     {}
func (QueryInfoServer) isQuery()                    {}
func (QueryListStores) isQuery()                    {}
func (QueryListClients) isQuery()                   {}
func (QueryPing) isQuery()                          {}
func (QueryPurgeStores) isQuery()                   {}

// --------------------------------------------------------------------------
// Batch Envelope
// --------------------------------------------------------------------------

// ServerQuery is the unit placed on the wire: an ordered list of queries and
// an optional trace id. The server answers with a ServerResult holding exactly
// one Result per query, in the same order.
type ServerQuery struct {
	Queries []Query
	TraceID *string
}
