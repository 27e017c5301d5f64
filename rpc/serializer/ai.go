package serializer

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
)

// --------------------------------------------------------------------------
// AI query encoding
// --------------------------------------------------------------------------

func (e *encoder) writeAIServerQuery(q common.AIServerQuery) {
	e.writeLen(len(q.Queries))
	for i, query := range q.Queries {
		e.writeAIQuery(query)
		if e.err != nil {
			e.err = fmt.Errorf("query %d: %w", i, e.err)
			return
		}
	}
	e.writeOptionalString(q.TraceID)
}

func (e *encoder) writeAIQuery(q common.AIQuery) {
	if q == nil {
		e.fail("query is not set")
		return
	}
	e.writeVariant(uint32(q.Type()))

	switch query := q.(type) {
	case common.AIQueryCreateStore:
		e.writeString(query.Store)
		e.writeAIModel(query.QueryModel)
		e.writeAIModel(query.IndexModel)
		e.writeStrings(query.Predicates)
		e.writeNonLinearAlgorithms(query.NonLinearIndices)
		e.writeBool(query.ErrorIfExists)
		e.writeBool(query.StoreOriginal)
	case common.AIQueryGetPred:
		e.writeString(query.Store)
		e.writeCondition(query.Condition)
	case common.AIQueryGetSimN:
		// the condition comes before closest_n, unlike the DB query
		e.writeString(query.Store)
		e.writeStoreInput(query.SearchInput)
		e.writeOptionalCondition(query.Condition)
		e.writeU64(query.ClosestN)
		e.writeAlgorithm(query.Algorithm)
		e.writePreprocessAction(query.Preprocess)
	case common.AIQueryCreatePredIndex:
		e.writeString(query.Store)
		e.writeStrings(query.Predicates)
	case common.AIQueryCreateNonLinearAlgorithmIndex:
		e.writeString(query.Store)
		e.writeNonLinearAlgorithms(query.NonLinearIndices)
	case common.AIQueryDropPredIndex:
		e.writeString(query.Store)
		e.writeStrings(query.Predicates)
		e.writeBool(query.ErrorIfNotExists)
	case common.AIQueryDropNonLinearAlgorithmIndex:
		e.writeString(query.Store)
		e.writeNonLinearAlgorithms(query.NonLinearIndices)
		e.writeBool(query.ErrorIfNotExists)
	case common.AIQuerySet:
		e.writeString(query.Store)
		e.writeLen(len(query.Inputs))
		for _, entry := range query.Inputs {
			e.writeStoreInput(entry.Input)
			e.writeStoreValue(entry.Value)
		}
		e.writePreprocessAction(query.Preprocess)
	case common.AIQueryDelKey:
		e.writeString(query.Store)
		e.writeStoreInput(query.Key)
	case common.AIQueryDropStore:
		e.writeString(query.Store)
		e.writeBool(query.ErrorIfNotExists)
	case common.AIQueryGetKey:
		e.writeString(query.Store)
		e.writeLen(len(query.Keys))
		for _, k := range query.Keys {
			e.writeStoreInput(k)
		}
	case common.AIQueryInfoServer, common.AIQueryListClients, common.AIQueryListStores,
		common.AIQueryPurgeStores, common.AIQueryPing:
		// no fields
	default:
		e.fail("unsupported ai query %T", q)
	}
}

func (e *encoder) writeStoreInput(in common.StoreInput) {
	switch v := in.(type) {
	case common.InputRawString:
		e.writeVariant(uint32(common.InputTRawString))
		e.writeString(string(v))
	case common.InputImage:
		e.writeVariant(uint32(common.InputTImage))
		e.writeBytes(v)
	case nil:
		e.fail("store input is not set")
	default:
		e.fail("unsupported store input %T", in)
	}
}

func (e *encoder) writeOptionalStoreInput(in common.StoreInput) {
	if in == nil {
		e.writeU8(0)
		return
	}
	e.writeU8(1)
	e.writeStoreInput(in)
}

func (e *encoder) writeAIModel(m common.AIModel) {
	if !m.Valid() {
		e.fail("unknown ai model %d", uint32(m))
		return
	}
	e.writeVariant(uint32(m))
}

func (e *encoder) writePreprocessAction(a common.PreprocessAction) {
	if !a.Valid() {
		e.fail("unknown preprocess action %d", uint32(a))
		return
	}
	e.writeVariant(uint32(a))
}

// --------------------------------------------------------------------------
// AI response encoding
// --------------------------------------------------------------------------

// checkDialect rejects responses that share a discriminant with a response
// of the other server kind
func (e *encoder) checkDialect(r common.ServerResponse) bool {
	switch r.(type) {
	case common.RespStoreList, common.RespGet, common.RespGetSimN:
		if e.ai {
			e.fail("%T can not be sent by the ai proxy", r)
			return false
		}
	case common.RespAIStoreList, common.RespAIGet, common.RespAIGetSimN:
		if !e.ai {
			e.fail("%T can only be sent by the ai proxy", r)
			return false
		}
	}
	return true
}

func (e *encoder) writeAIResponse(r common.ServerResponse) {
	switch resp := r.(type) {
	case common.RespAIStoreList:
		e.writeLen(len(resp.Stores))
		for _, s := range resp.Stores {
			e.writeString(s.Name)
			e.writeAIModel(s.QueryModel)
			e.writeAIModel(s.IndexModel)
			e.writeU64(s.EmbeddingSize)
		}
	case common.RespAIGet:
		e.writeLen(len(resp.Entries))
		for _, entry := range resp.Entries {
			e.writeOptionalStoreInput(entry.Input)
			e.writeStoreValue(entry.Value)
		}
	case common.RespAIGetSimN:
		e.writeLen(len(resp.Entries))
		for _, entry := range resp.Entries {
			e.writeOptionalStoreInput(entry.Input)
			e.writeStoreValue(entry.Value)
			e.writeF32(entry.Similarity)
		}
	}
}

// --------------------------------------------------------------------------
// AI query decoding
// --------------------------------------------------------------------------

func (d *decoder) readAIServerQuery() common.AIServerQuery {
	n := d.readLen("queries", 1)
	var q common.AIServerQuery
	if n > 0 {
		q.Queries = make([]common.AIQuery, 0, n)
	}
	for i := 0; i < n && d.err == nil; i++ {
		q.Queries = append(q.Queries, d.readAIQuery())
	}
	q.TraceID = d.readOptionalString("trace id")
	return q
}

func (d *decoder) readAIQuery() common.AIQuery {
	t := common.AIQueryType(d.readVariant("ai query"))
	if d.err != nil {
		return nil
	}

	switch t {
	case common.AIQueryTCreateStore:
		return common.AIQueryCreateStore{
			Store:            d.readString("store"),
			QueryModel:       d.readAIModel("query model"),
			IndexModel:       d.readAIModel("index model"),
			Predicates:       d.readStrings("predicates"),
			NonLinearIndices: d.readNonLinearAlgorithms(),
			ErrorIfExists:    d.readBool("error if exists"),
			StoreOriginal:    d.readBool("store original"),
		}
	case common.AIQueryTGetPred:
		return common.AIQueryGetPred{Store: d.readString("store"), Condition: d.readCondition()}
	case common.AIQueryTGetSimN:
		return common.AIQueryGetSimN{
			Store:       d.readString("store"),
			SearchInput: d.readStoreInput(),
			Condition:   d.readOptionalCondition(),
			ClosestN:    d.readU64("closest n"),
			Algorithm:   d.readAlgorithm(),
			Preprocess:  d.readPreprocessAction(),
		}
	case common.AIQueryTCreatePredIndex:
		return common.AIQueryCreatePredIndex{Store: d.readString("store"), Predicates: d.readStrings("predicates")}
	case common.AIQueryTCreateNonLinearAlgorithmIndex:
		return common.AIQueryCreateNonLinearAlgorithmIndex{Store: d.readString("store"), NonLinearIndices: d.readNonLinearAlgorithms()}
	case common.AIQueryTDropPredIndex:
		return common.AIQueryDropPredIndex{
			Store:            d.readString("store"),
			Predicates:       d.readStrings("predicates"),
			ErrorIfNotExists: d.readBool("error if not exists"),
		}
	case common.AIQueryTDropNonLinearAlgorithmIndex:
		return common.AIQueryDropNonLinearAlgorithmIndex{
			Store:            d.readString("store"),
			NonLinearIndices: d.readNonLinearAlgorithms(),
			ErrorIfNotExists: d.readBool("error if not exists"),
		}
	case common.AIQueryTSet:
		store := d.readString("store")
		// input (variant + length) and an empty metadata map
		n := d.readLen("inputs", 3)
		var inputs []common.AIStoreEntry
		if n > 0 {
			inputs = make([]common.AIStoreEntry, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			inputs = append(inputs, common.AIStoreEntry{Input: d.readStoreInput(), Value: d.readStoreValue()})
		}
		return common.AIQuerySet{Store: store, Inputs: inputs, Preprocess: d.readPreprocessAction()}
	case common.AIQueryTDelKey:
		return common.AIQueryDelKey{Store: d.readString("store"), Key: d.readStoreInput()}
	case common.AIQueryTDropStore:
		return common.AIQueryDropStore{Store: d.readString("store"), ErrorIfNotExists: d.readBool("error if not exists")}
	case common.AIQueryTGetKey:
		store := d.readString("store")
		n := d.readLen("keys", 2)
		var keys []common.StoreInput
		if n > 0 {
			keys = make([]common.StoreInput, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			keys = append(keys, d.readStoreInput())
		}
		return common.AIQueryGetKey{Store: store, Keys: keys}
	case common.AIQueryTInfoServer:
		return common.AIQueryInfoServer{}
	case common.AIQueryTListClients:
		return common.AIQueryListClients{}
	case common.AIQueryTListStores:
		return common.AIQueryListStores{}
	case common.AIQueryTPurgeStores:
		return common.AIQueryPurgeStores{}
	case common.AIQueryTPing:
		return common.AIQueryPing{}
	default:
		d.fail("unknown ai query variant %d", uint32(t))
		return nil
	}
}

func (d *decoder) readStoreInput() common.StoreInput {
	switch t := common.StoreInputType(d.readVariant("store input")); {
	case d.err != nil:
		return nil
	case t == common.InputTRawString:
		return common.InputRawString(d.readString("raw string input"))
	case t == common.InputTImage:
		return common.InputImage(d.readBytes("image input"))
	default:
		d.fail("unknown store input variant %d", uint32(t))
		return nil
	}
}

func (d *decoder) readOptionalStoreInput() common.StoreInput {
	switch tag := d.readU8("store input option"); tag {
	case 0:
		return nil
	case 1:
		return d.readStoreInput()
	default:
		d.fail("invalid option tag 0x%02x for store input", tag)
		return nil
	}
}

func (d *decoder) readAIModel(what string) common.AIModel {
	m := common.AIModel(d.readVariant(what))
	if d.err == nil && !m.Valid() {
		d.fail("unknown ai model variant %d for %s", uint32(m), what)
	}
	return m
}

func (d *decoder) readPreprocessAction() common.PreprocessAction {
	a := common.PreprocessAction(d.readVariant("preprocess action"))
	if d.err == nil && !a.Valid() {
		d.fail("unknown preprocess action variant %d", uint32(a))
	}
	return a
}

// --------------------------------------------------------------------------
// AI response decoding
// --------------------------------------------------------------------------

// aiPayload reports whether the AI proxy uses its own payload for t
func aiPayload(t common.ResponseType) bool {
	return t == common.RespTStoreList || t == common.RespTGet || t == common.RespTGetSimN
}

func (d *decoder) readAIResponse(t common.ResponseType) common.ServerResponse {
	switch t {
	case common.RespTStoreList:
		// name (>= 1 byte) + two models + embedding size (8 bytes)
		n := d.readLen("ai store list", 11)
		var stores []common.AIStoreInfo
		if n > 0 {
			stores = make([]common.AIStoreInfo, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			stores = append(stores, common.AIStoreInfo{
				Name:          d.readString("store name"),
				QueryModel:    d.readAIModel("query model"),
				IndexModel:    d.readAIModel("index model"),
				EmbeddingSize: d.readU64("embedding size"),
			})
		}
		return common.RespAIStoreList{Stores: stores}
	case common.RespTGet:
		n := d.readLen("entries", 2)
		var entries []common.AIStoreEntry
		if n > 0 {
			entries = make([]common.AIStoreEntry, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			entries = append(entries, common.AIStoreEntry{
				Input: d.readOptionalStoreInput(),
				Value: d.readStoreValue(),
			})
		}
		return common.RespAIGet{Entries: entries}
	default:
		n := d.readLen("similar entries", 6)
		var entries []common.AISimilarEntry
		if n > 0 {
			entries = make([]common.AISimilarEntry, 0, n)
		}
		for i := 0; i < n && d.err == nil; i++ {
			entries = append(entries, common.AISimilarEntry{
				Input:      d.readOptionalStoreInput(),
				Value:      d.readStoreValue(),
				Similarity: d.readF32("similarity"),
			})
		}
		return common.RespAIGetSimN{Entries: entries}
	}
}
