package client

import (
	"context"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
)

// Pipeline collects queries and sends them in one round trip. The results of
// Exec are aligned with the order in which the queries were added.
//
// A pipeline is consumed when it is executed: its queries are handed to the
// wire and the pipeline is cleared. Executing it again without adding new
// queries fails with common.ErrBatchConsumed. Use Clone to send the same
// batch twice.
//
// A Pipeline must not be mutated from several goroutines at once.
type Pipeline struct {
	client *DBClient
	batch[common.Query]
}

// Add validates q and appends it. A failed validation is kept and returned by
// Build and Exec, so builder chains need no error checks.
func (p *Pipeline) Add(q common.Query) *Pipeline {
	p.add(q, validateQuery)
	return p
}

// WithTraceID sets the trace id sent along with the batch
func (p *Pipeline) WithTraceID(id string) *Pipeline {
	p.traceID = &id
	return p
}

// Clone returns an unconsumed copy of the pipeline with the same queries
func (p *Pipeline) Clone() *Pipeline {
	return &Pipeline{client: p.client, batch: p.clone()}
}

// Build consumes the pipeline into a batch envelope. It fails if a query was
// invalid, if the pipeline is empty or if it was already consumed.
func (p *Pipeline) Build() (common.ServerQuery, error) {
	queries, traceID, err := p.take()
	if err != nil {
		return common.ServerQuery{}, err
	}
	return common.ServerQuery{Queries: queries, TraceID: traceID}, nil
}

// Exec sends the batch and blocks until all results arrived
func (p *Pipeline) Exec(ctx context.Context) ([]common.Result, error) {
	q, err := p.Build()
	if err != nil {
		return nil, err
	}
	return p.client.exec(ctx, q)
}

// Go sends the batch in the background. The pipeline is consumed before Go
// returns, so it can be refilled right away.
func (p *Pipeline) Go(ctx context.Context) *Call {
	q, err := p.Build()
	return startCall(err, func() ([]common.Result, error) {
		return p.client.exec(ctx, q)
	})
}

// --------------------------------------------------------------------------
// Store Builders
// --------------------------------------------------------------------------

func (p *Pipeline) CreateStore(q common.QueryCreateStore) *Pipeline {
	return p.Add(q)
}

func (p *Pipeline) GetKey(store string, keys ...common.StoreKey) *Pipeline {
	return p.Add(common.QueryGetKey{Store: store, Keys: keys})
}

func (p *Pipeline) GetPred(store string, condition common.PredicateCondition) *Pipeline {
	return p.Add(common.QueryGetPred{Store: store, Condition: condition})
}

func (p *Pipeline) GetSimN(q common.QueryGetSimN) *Pipeline {
	return p.Add(q)
}

func (p *Pipeline) CreatePredIndex(store string, predicates ...string) *Pipeline {
	return p.Add(common.QueryCreatePredIndex{Store: store, Predicates: predicates})
}

func (p *Pipeline) CreateNonLinearAlgorithmIndex(store string, indices ...common.NonLinearAlgorithm) *Pipeline {
	return p.Add(common.QueryCreateNonLinearAlgorithmIndex{Store: store, NonLinearIndices: indices})
}

func (p *Pipeline) DropPredIndex(q common.QueryDropPredIndex) *Pipeline {
	return p.Add(q)
}

func (p *Pipeline) DropNonLinearAlgorithmIndex(q common.QueryDropNonLinearAlgorithmIndex) *Pipeline {
	return p.Add(q)
}

func (p *Pipeline) Set(store string, entries ...common.StoreEntry) *Pipeline {
	return p.Add(common.QuerySet{Store: store, Inputs: entries})
}

func (p *Pipeline) DelKey(store string, keys ...common.StoreKey) *Pipeline {
	return p.Add(common.QueryDelKey{Store: store, Keys: keys})
}

func (p *Pipeline) DelPred(store string, condition common.PredicateCondition) *Pipeline {
	return p.Add(common.QueryDelPred{Store: store, Condition: condition})
}

func (p *Pipeline) DropStore(store string, errorIfNotExists bool) *Pipeline {
	return p.Add(common.QueryDropStore{Store: store, ErrorIfNotExists: errorIfNotExists})
}

// --------------------------------------------------------------------------
// Server Builders
// --------------------------------------------------------------------------

func (p *Pipeline) PurgeStores() *Pipeline { return p.Add(common.QueryPurgeStores{}) }
func (p *Pipeline) ListStores() *Pipeline  { return p.Add(common.QueryListStores{}) }
func (p *Pipeline) ListClients() *Pipeline { return p.Add(common.QueryListClients{}) }
func (p *Pipeline) InfoServer() *Pipeline  { return p.Add(common.QueryInfoServer{}) }
func (p *Pipeline) Ping() *Pipeline        { return p.Add(common.QueryPing{}) }
