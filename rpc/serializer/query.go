package serializer

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
)

// --------------------------------------------------------------------------
// Query encoding
// --------------------------------------------------------------------------

func (e *encoder) writeServerQuery(q common.ServerQuery) {
	e.writeLen(len(q.Queries))
	for i, query := range q.Queries {
		e.writeQuery(query)
		if e.err != nil {
			e.err = fmt.Errorf("query %d: %w", i, e.err)
			return
		}
	}
	e.writeOptionalString(q.TraceID)
}

func (e *encoder) writeQuery(q common.Query) {
	if q == nil {
		e.fail("query is not set")
		return
	}
	e.writeVariant(uint32(q.Type()))

	switch query := q.(type) {
	case common.QueryCreateStore:
		e.writeString(query.Store)
		e.writeU64(query.Dimension)
		e.writeStrings(query.CreatePredicates)
		e.writeNonLinearAlgorithms(query.NonLinearIndices)
		e.writeBool(query.ErrorIfExists)
	case common.QueryGetKey:
		e.writeString(query.Store)
		e.writeStoreKeys(query.Keys)
	case common.QueryGetPred:
		e.writeString(query.Store)
		e.writeCondition(query.Condition)
	case common.QueryGetSimN:
		e.writeString(query.Store)
		e.writeStoreKey(query.SearchInput)
		e.writeU64(query.ClosestN)
		e.writeAlgorithm(query.Algorithm)
		e.writeOptionalCondition(query.Condition)
	case common.QueryCreatePredIndex:
		e.writeString(query.Store)
		e.writeStrings(query.Predicates)
	case common.QueryCreateNonLinearAlgorithmIndex:
		e.writeString(query.Store)
		e.writeNonLinearAlgorithms(query.NonLinearIndices)
	case common.QueryDropPredIndex:
		e.writeString(query.Store)
		e.writeStrings(query.Predicates)
		e.writeBool(query.ErrorIfNotExists)
	case common.QueryDropNonLinearAlgorithmIndex:
		e.writeString(query.Store)
		e.writeNonLinearAlgorithms(query.NonLinearIndices)
		e.writeBool(query.ErrorIfNotExists)
	case common.QuerySet:
		e.writeString(query.Store)
		e.writeLen(len(query.Inputs))
		for _, entry := range query.Inputs {
			e.writeStoreEntry(entry)
		}
	case common.QueryDelKey:
		e.writeString(query.Store)
		e.writeStoreKeys(query.Keys)
	case common.QueryDelPred:
		e.writeString(query.Store)
		e.writeCondition(query.Condition)
	case common.QueryDropStore:
		e.writeString(query.Store)
		e.writeBool(query.ErrorIfNotExists)
	case common.QueryInfoServer, common.QueryListStores, common.QueryListClients,
		common.QueryPing, common.QueryPurgeStores:
		// no fields
	default:
		e.fail("unsupported query %T", q)
	}
}

// --------------------------------------------------------------------------
// Query decoding
// --------------------------------------------------------------------------

func (d *decoder) readServerQuery() common.ServerQuery {
	n := d.readLen("queries", 1)
	var q common.ServerQuery
	if n > 0 {
		q.Queries = make([]common.Query, 0, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		q.Queries = append(q.Queries, d.readQuery())
	}
	q.TraceID = d.readOptionalString("trace id")
	return q
}

func (d *decoder) readQuery() common.Query {
	t := common.QueryType(d.readVariant("query"))
	if d.err != nil {
		return nil
	}

	switch t {
	case common.QueryTCreateStore:
		return common.QueryCreateStore{
			Store:            d.readString("store"),
			Dimension:        d.readU64("dimension"),
			CreatePredicates: d.readStrings("create predicates"),
			NonLinearIndices: d.readNonLinearAlgorithms(),
			ErrorIfExists:    d.readBool("error if exists"),
		}
	case common.QueryTGetKey:
		return common.QueryGetKey{Store: d.readString("store"), Keys: d.readStoreKeys()}
	case common.QueryTGetPred:
		return common.QueryGetPred{Store: d.readString("store"), Condition: d.readCondition()}
	case common.QueryTGetSimN:
		return common.QueryGetSimN{
			Store:       d.readString("store"),
			SearchInput: d.readStoreKey(),
			ClosestN:    d.readU64("closest n"),
			Algorithm:   d.readAlgorithm(),
			Condition:   d.readOptionalCondition(),
		}
	case common.QueryTCreatePredIndex:
		return common.QueryCreatePredIndex{Store: d.readString("store"), Predicates: d.readStrings("predicates")}
	case common.QueryTCreateNonLinearAlgorithmIndex:
		return common.QueryCreateNonLinearAlgorithmIndex{Store: d.readString("store"), NonLinearIndices: d.readNonLinearAlgorithms()}
	case common.QueryTDropPredIndex:
		return common.QueryDropPredIndex{
			Store:            d.readString("store"),
			Predicates:       d.readStrings("predicates"),
			ErrorIfNotExists: d.readBool("error if not exists"),
		}
	case common.QueryTDropNonLinearAlgorithmIndex:
		return common.QueryDropNonLinearAlgorithmIndex{
			Store:            d.readString("store"),
			NonLinearIndices: d.readNonLinearAlgorithms(),
			ErrorIfNotExists: d.readBool("error if not exists"),
		}
	case common.QueryTSet:
		store := d.readString("store")
		n := d.readLen("inputs", 2)
		var inputs []common.StoreEntry
		if n > 0 {
			inputs = make([]common.StoreEntry, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			inputs = append(inputs, d.readStoreEntry())
		}
		return common.QuerySet{Store: store, Inputs: inputs}
	case common.QueryTDelKey:
		return common.QueryDelKey{Store: d.readString("store"), Keys: d.readStoreKeys()}
	case common.QueryTDelPred:
		return common.QueryDelPred{Store: d.readString("store"), Condition: d.readCondition()}
	case common.QueryTDropStore:
		return common.QueryDropStore{Store: d.readString("store"), ErrorIfNotExists: d.readBool("error if not exists")}
	case common.QueryTInfoServer:
		return common.QueryInfoServer{}
	case common.QueryTListStores:
		return common.QueryListStores{}
	case common.QueryTListClients:
		return common.QueryListClients{}
	case common.QueryTPing:
		return common.QueryPing{}
	case common.QueryTPurgeStores:
		return common.QueryPurgeStores{}
	default:
		d.fail("unknown query variant %d", uint32(t))
		return nil
	}
}
