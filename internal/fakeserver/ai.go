package fakeserver

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
)

// reservedKey holds the original input in the metadata of AI store entries
const reservedKey = "_ahnlich_input_key"

// NewAI creates a server that answers AI proxy queries. Inputs are not run
// through a model: the embedding of an input is the vector
// [0, n, 2n, ...] sized for the index model, where n is the input length.
// Inputs of equal length therefore share one entry.
func NewAI(encoding common.IntEncoding) *Server {
	s := New(encoding)
	s.ai = true
	s.aiStores = xsync.NewMapOf[string, *aiStore]()
	return s
}

// aiStore is a vector store together with the models that feed it
type aiStore struct {
	*store
	queryModel    common.AIModel
	indexModel    common.AIModel
	storeOriginal bool
}

// embed turns an input into a store key of the model's embedding size
func embed(model common.AIModel, in common.StoreInput) common.StoreKey {
	n := float32(inputLen(in))
	key := make(common.StoreKey, model.EmbeddingSize())
	for i := range key {
		key[i] = float32(i) * n
	}
	return key
}

func inputLen(in common.StoreInput) int {
	switch v := in.(type) {
	case common.InputRawString:
		return len(v)
	case common.InputImage:
		return len(v)
	default:
		return 0
	}
}

func checkInputType(model common.AIModel, in common.StoreInput) error {
	if in == nil {
		return fmt.Errorf("Store input is not set")
	}
	if in.Type() != model.InputType() {
		return fmt.Errorf("Cannot use %s input with model %s, it expects %s input", in.Type(), model, model.InputType())
	}
	return nil
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

func (s *Server) handleAI(req []byte) []byte {
	var q common.AIServerQuery
	if err := s.serializer.DeserializeAIQuery(req, &q); err != nil {
		Logger.Warningf("Could not deserialize ai query: %v", err)
		return s.encode(common.ServerResult{Results: []common.Result{
			common.ResultErr{Message: fmt.Sprintf("Could not deserialize query, error is %v", err)},
		}})
	}

	results := make([]common.Result, 0, len(q.Queries))
	for _, query := range q.Queries {
		resp, err := s.answerAI(query)
		if err != nil {
			results = append(results, common.ResultErr{Message: err.Error()})
			continue
		}
		results = append(results, common.ResultOk{Response: resp})
	}
	return s.encode(common.ServerResult{Results: results})
}

func (s *Server) answerAI(query common.AIQuery) (common.ServerResponse, error) {
	switch q := query.(type) {
	case common.AIQueryPing:
		return common.RespPong{}, nil

	case common.AIQueryInfoServer:
		return common.RespInfoServer{Info: s.info()}, nil

	case common.AIQueryListClients:
		return common.RespClientList{Clients: s.listClients()}, nil

	case common.AIQueryListStores:
		return common.RespAIStoreList{Stores: s.listAIStores()}, nil

	case common.AIQueryPurgeStores:
		deleted := uint64(0)
		s.aiStores.Range(func(name string, _ *aiStore) bool {
			if _, ok := s.aiStores.LoadAndDelete(name); ok {
				deleted++
			}
			return true
		})
		return common.RespDel{Deleted: deleted}, nil

	case common.AIQueryCreateStore:
		if q.QueryModel.EmbeddingSize() != q.IndexModel.EmbeddingSize() {
			return nil, fmt.Errorf("Dimensions mismatch between index model [%d] and query model [%d]",
				q.IndexModel.EmbeddingSize(), q.QueryModel.EmbeddingSize())
		}
		st := &aiStore{
			store: newStore(common.QueryCreateStore{
				Store:            q.Store,
				Dimension:        q.IndexModel.EmbeddingSize(),
				CreatePredicates: q.Predicates,
				NonLinearIndices: q.NonLinearIndices,
			}),
			queryModel:    q.QueryModel,
			indexModel:    q.IndexModel,
			storeOriginal: q.StoreOriginal,
		}
		_, loaded := s.aiStores.LoadOrStore(q.Store, st)
		if loaded && q.ErrorIfExists {
			return nil, fmt.Errorf("Store %s already exists", q.Store)
		}
		return common.RespUnit{}, nil

	case common.AIQueryDropStore:
		if _, ok := s.aiStores.LoadAndDelete(q.Store); ok {
			return common.RespDel{Deleted: 1}, nil
		}
		if q.ErrorIfNotExists {
			return nil, fmt.Errorf("Store %s not found", q.Store)
		}
		return common.RespDel{Deleted: 0}, nil
	}

	name, err := aiStoreName(query)
	if err != nil {
		return nil, err
	}
	st, ok := s.aiStores.Load(name)
	if !ok {
		return nil, fmt.Errorf("Store %s not found", name)
	}
	return st.answer(query)
}

func aiStoreName(query common.AIQuery) (string, error) {
	switch q := query.(type) {
	case common.AIQueryGetPred:
		return q.Store, nil
	case common.AIQueryGetSimN:
		return q.Store, nil
	case common.AIQueryCreatePredIndex:
		return q.Store, nil
	case common.AIQueryCreateNonLinearAlgorithmIndex:
		return q.Store, nil
	case common.AIQueryDropPredIndex:
		return q.Store, nil
	case common.AIQueryDropNonLinearAlgorithmIndex:
		return q.Store, nil
	case common.AIQuerySet:
		return q.Store, nil
	case common.AIQueryDelKey:
		return q.Store, nil
	case common.AIQueryGetKey:
		return q.Store, nil
	default:
		return "", fmt.Errorf("unsupported ai query %T", query)
	}
}

func (s *Server) listAIStores() []common.AIStoreInfo {
	var stores []common.AIStoreInfo
	s.aiStores.Range(func(name string, st *aiStore) bool {
		stores = append(stores, common.AIStoreInfo{
			Name:          name,
			QueryModel:    st.queryModel,
			IndexModel:    st.indexModel,
			EmbeddingSize: st.indexModel.EmbeddingSize(),
		})
		return true
	})
	sort.Slice(stores, func(i, j int) bool { return stores[i].Name < stores[j].Name })
	return stores
}

// --------------------------------------------------------------------------
// Store level queries
// --------------------------------------------------------------------------

// answer embeds the inputs of query and runs it against the vector store
func (s *aiStore) answer(query common.AIQuery) (common.ServerResponse, error) {
	switch q := query.(type) {
	case common.AIQueryGetPred:
		return s.convert(s.getPred(common.QueryGetPred{Store: q.Store, Condition: q.Condition}))
	case common.AIQueryGetSimN:
		if err := checkInputType(s.queryModel, q.SearchInput); err != nil {
			return nil, err
		}
		return s.convert(s.getSimN(common.QueryGetSimN{
			Store:       q.Store,
			SearchInput: embed(s.queryModel, q.SearchInput),
			ClosestN:    q.ClosestN,
			Algorithm:   q.Algorithm,
			Condition:   q.Condition,
		}))
	case common.AIQueryCreatePredIndex:
		return s.createPredIndex(common.QueryCreatePredIndex{Store: q.Store, Predicates: q.Predicates}), nil
	case common.AIQueryCreateNonLinearAlgorithmIndex:
		return s.createNonLinearIndex(common.QueryCreateNonLinearAlgorithmIndex{Store: q.Store, NonLinearIndices: q.NonLinearIndices}), nil
	case common.AIQueryDropPredIndex:
		return s.dropPredIndex(common.QueryDropPredIndex{Store: q.Store, Predicates: q.Predicates, ErrorIfNotExists: q.ErrorIfNotExists})
	case common.AIQueryDropNonLinearAlgorithmIndex:
		return s.dropNonLinearIndex(common.QueryDropNonLinearAlgorithmIndex{
			Store:            q.Store,
			NonLinearIndices: q.NonLinearIndices,
			ErrorIfNotExists: q.ErrorIfNotExists,
		})
	case common.AIQuerySet:
		return s.setInputs(q)
	case common.AIQueryDelKey:
		if err := checkInputType(s.indexModel, q.Key); err != nil {
			return nil, err
		}
		return s.delKey(common.QueryDelKey{Store: q.Store, Keys: []common.StoreKey{embed(s.indexModel, q.Key)}})
	case common.AIQueryGetKey:
		keys := make([]common.StoreKey, 0, len(q.Keys))
		for _, in := range q.Keys {
			if err := checkInputType(s.indexModel, in); err != nil {
				return nil, err
			}
			keys = append(keys, embed(s.indexModel, in))
		}
		return s.convert(s.getKey(common.QueryGetKey{Store: q.Store, Keys: keys}))
	default:
		return nil, fmt.Errorf("unsupported ai query %T", query)
	}
}

func (s *aiStore) setInputs(q common.AIQuerySet) (common.ServerResponse, error) {
	entries := make([]common.StoreEntry, 0, len(q.Inputs))
	for _, in := range q.Inputs {
		if err := checkInputType(s.indexModel, in.Input); err != nil {
			return nil, err
		}

		value := make(common.StoreValue, len(in.Value)+1)
		for k, v := range in.Value {
			value[k] = v
		}
		if s.storeOriginal {
			if _, taken := value[reservedKey]; taken {
				return nil, fmt.Errorf("Reserved key %s used", reservedKey)
			}
			switch v := in.Input.(type) {
			case common.InputRawString:
				value[reservedKey] = common.RawString(v)
			case common.InputImage:
				value[reservedKey] = common.Binary(v)
			}
		}
		entries = append(entries, common.StoreEntry{Key: embed(s.indexModel, in.Input), Value: value})
	}
	return s.set(common.QuerySet{Store: q.Store, Inputs: entries})
}

// convert turns a DB answer into its AI counterpart. The original input is
// taken out of the metadata again.
func (s *aiStore) convert(resp common.ServerResponse, err error) (common.ServerResponse, error) {
	if err != nil {
		return nil, err
	}
	switch r := resp.(type) {
	case common.RespGet:
		var entries []common.AIStoreEntry
		for _, e := range r.Entries {
			in, value := splitInput(e.Value)
			entries = append(entries, common.AIStoreEntry{Input: in, Value: value})
		}
		return common.RespAIGet{Entries: entries}, nil
	case common.RespGetSimN:
		var entries []common.AISimilarEntry
		for _, e := range r.Entries {
			in, value := splitInput(e.Value)
			entries = append(entries, common.AISimilarEntry{Input: in, Value: value, Similarity: e.Similarity})
		}
		return common.RespAIGetSimN{Entries: entries}, nil
	default:
		return resp, nil
	}
}

// splitInput returns the original input stored in v and the remaining
// metadata, nil if nothing is left
func splitInput(v common.StoreValue) (common.StoreInput, common.StoreValue) {
	var in common.StoreInput
	var rest common.StoreValue
	for k, mv := range v {
		if k == reservedKey {
			switch orig := mv.(type) {
			case common.RawString:
				in = common.InputRawString(orig)
			case common.Binary:
				in = common.InputImage(orig)
			}
			continue
		}
		if rest == nil {
			rest = make(common.StoreValue, len(v))
		}
		rest[k] = mv
	}
	return in, rest
}
