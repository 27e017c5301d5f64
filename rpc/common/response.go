package common

import (
	"fmt"
)

// --------------------------------------------------------------------------
// Response Type Definition
// --------------------------------------------------------------------------

// ResponseType is the discriminant of a ServerResponse
type ResponseType uint32

const (
	RespTUnit ResponseType = iota
	RespTPong
	RespTClientList
	RespTStoreList
	RespTInfoServer
	RespTSet
	RespTGet
	RespTGetSimN
	RespTDel
	RespTCreateIndex

	responseTypeCount
)

// Valid reports whether t is a known variant
func (t ResponseType) Valid() bool { return t < responseTypeCount }

// String returns the string representation of a ResponseType.
func (t ResponseType) String() string {
	switch t {
	case RespTUnit:
		return "unit"
	case RespTPong:
		return "pong"
	case RespTClientList:
		return "clientList"
	case RespTStoreList:
		return "storeList"
	case RespTInfoServer:
		return "infoServer"
	case RespTSet:
		return "set"
	case RespTGet:
		return "get"
	case RespTGetSimN:
		return "getSimN"
	case RespTDel:
		return "del"
	case RespTCreateIndex:
		return "createIndex"
	default:
		return "unknown"
	}
}

// --------------------------------------------------------------------------
// Response Variants
// --------------------------------------------------------------------------

// ServerResponse is a tagged union of all successful answers.
type ServerResponse interface {
	Type() ResponseType
	isResponse()
}

// RespUnit acknowledges a request without payload
type RespUnit struct{}

// RespPong answers a Ping
type RespPong struct{}

type RespClientList struct {
	Clients []ConnectedClient
}

type RespStoreList struct {
	Stores []StoreInfo
}

type RespInfoServer struct {
	Info ServerInfo
}

type RespSet struct {
	Upsert StoreUpsert
}

type RespGet struct {
	Entries []StoreEntry
}

type RespGetSimN struct {
	Entries []SimilarEntry
}

// RespDel holds the number of deleted entries
type RespDel struct {
	Deleted uint64
}

// RespCreateIndex holds the number of created indices
type RespCreateIndex struct {
	Created uint64
}

func (RespUnit) Type() ResponseType        { return RespTUnit }
func (RespPong) Type() ResponseType        { return RespTPong }
func (RespClientList) Type() ResponseType  { return RespTClientList }
func (RespStoreList) Type() ResponseType   { return RespTStoreList }
func (RespInfoServer) Type() ResponseType  { return RespTInfoServer }
func (RespSet) Type() ResponseType         { return RespTSet }
func (RespGet) Type() ResponseType         { return RespTGet }
func (RespGetSimN) Type() ResponseType     { return RespTGetSimN }
func (RespDel) Type() ResponseType         { return RespTDel }
func (RespCreateIndex) Type() ResponseType { return RespTCreateIndex }

func (RespUnit) isResponse()        {}
func (RespPong) isResponse()        {}
func (RespClientList) isResponse()  {}
func (RespStoreList) isResponse()   {}
func (RespInfoServer) isResponse()  {}
func (RespSet) isResponse()         {}
func (RespGet) isResponse()         {}
func (RespGetSimN) isResponse()     {}
func (RespDel) isResponse()         {}
func (RespCreateIndex) isResponse() {}

// --------------------------------------------------------------------------
// Per-request Result
// --------------------------------------------------------------------------

// ResultType is the discriminant of a Result
type ResultType uint32

const (
	ResultTOk ResultType = iota
	ResultTErr
)

// Result is the outcome of one query of a batch. A failed query never aborts
// the other queries of the same batch.
type Result interface {
	Type() ResultType
	isResult()
}

// ResultOk carries the response of a successful query
type ResultOk struct {
	Response ServerResponse
}

// ResultErr carries the error message the server reported for a query
type ResultErr struct {
	Message string
}

func (ResultOk) Type() ResultType  { return ResultTOk }
func (ResultErr) Type() ResultType { return ResultTErr }
func (ResultOk) isResult()         {}
func (ResultErr) isResult()        {}

// ServerResult is the decoded response frame: exactly one Result per query,
// aligned with the order of ServerQuery.Queries.
type ServerResult struct {
	Results []Result
}

// RemoteError is returned by ResponseAs if the server answered with an error.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("server error: %s", e.Message)
}

// ResponseAs unwraps r into the concrete response type T. It returns a
// *RemoteError if r is a ResultErr and a deserialization error if the
// server answered with a different variant than expected.
func ResponseAs[T ServerResponse](r Result) (T, error) {
	var zero T
	switch res := r.(type) {
	case ResultOk:
		v, ok := res.Response.(T)
		if !ok {
			got := "nil"
			if res.Response != nil {
				got = res.Response.Type().String()
			}
			return zero, NewError(KindDeserialization, "unwrap response",
				fmt.Errorf("expected %T, got %s", zero, got))
		}
		return v, nil
	case ResultErr:
		return zero, &RemoteError{Message: res.Message}
	default:
		return zero, NewError(KindDeserialization, "unwrap response", fmt.Errorf("missing result"))
	}
}
