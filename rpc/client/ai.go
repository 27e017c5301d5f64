package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"io"
)

// AIClient is the typed client of the ahnlich AI proxy. It speaks the same
// framing as DBClient and shares its transports, pool and error handling,
// only the query and answer payloads differ.
//
// Store lists, get and similarity answers arrive as common.RespAIStoreList,
// common.RespAIGet and common.RespAIGetSimN. All other answers use the DB
// response structs.
type AIClient struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// NewAIClient creates a new AI proxy client and connects the transport.
// Transport and serializer are chosen like in NewDBClient.
func NewAIClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*AIClient, error) {

	config, transport, serializer, err := connect(config, transport, serializer)
	if err != nil {
		return nil, err
	}

	return &AIClient{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// Config returns the effective configuration of the client
func (c *AIClient) Config() common.ClientConfig {
	return c.config
}

// Close closes the transport and all its connections
func (c *AIClient) Close() error {
	return c.transport.Close()
}

// WritePrometheus writes the transport metrics to w, if the transport collects any
func (c *AIClient) WritePrometheus(w io.Writer) {
	if m, ok := c.transport.(transport.IMetricsWriter); ok {
		m.WritePrometheus(w)
	}
}

// Pipeline returns a new, empty pipeline bound to this client
func (c *AIClient) Pipeline() *AIPipeline {
	return &AIPipeline{client: c}
}

// Exec sends all queries in one batch and returns one Result per query,
// in the same order
func (c *AIClient) Exec(ctx context.Context, queries ...common.AIQuery) ([]common.Result, error) {
	p := c.Pipeline()
	for _, q := range queries {
		p.Add(q)
	}
	return p.Exec(ctx)
}

func (c *AIClient) run(ctx context.Context, q common.AIQuery) (common.Result, error) {
	if err := validateAIQuery(q); err != nil {
		return nil, err
	}
	results, err := c.exec(ctx, common.AIServerQuery{Queries: []common.AIQuery{q}})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (c *AIClient) exec(ctx context.Context, q common.AIServerQuery) ([]common.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	reqBytes, err := c.serializer.SerializeAIQuery(q)
	if err != nil {
		return nil, err
	}
	results, err := exchange(ctx, reqBytes, len(q.Queries), c.transport, c.serializer.DeserializeAIResult)
	if err != nil {
		Logger.Debugf("AI batch of %d queries failed: %v", len(q.Queries), err)
		return nil, err
	}
	return results, nil
}

// --------------------------------------------------------------------------
// Store Methods
// --------------------------------------------------------------------------

// CreateStore creates a store that embeds inputs with q.IndexModel and
// search inputs with q.QueryModel. Both models must produce embeddings of
// the same size.
func (c *AIClient) CreateStore(ctx context.Context, q common.AIQueryCreateStore) (common.Result, error) {
	return c.run(ctx, q)
}

func (c *AIClient) GetPred(ctx context.Context, store string, condition common.PredicateCondition) (common.Result, error) {
	return c.run(ctx, common.AIQueryGetPred{Store: store, Condition: condition})
}

// GetSimN returns the q.ClosestN entries most similar to q.SearchInput.
func (c *AIClient) GetSimN(ctx context.Context, q common.AIQueryGetSimN) (common.Result, error) {
	return c.run(ctx, q)
}

func (c *AIClient) CreatePredIndex(ctx context.Context, store string, predicates ...string) (common.Result, error) {
	return c.run(ctx, common.AIQueryCreatePredIndex{Store: store, Predicates: predicates})
}

func (c *AIClient) CreateNonLinearAlgorithmIndex(ctx context.Context, store string, indices ...common.NonLinearAlgorithm) (common.Result, error) {
	return c.run(ctx, common.AIQueryCreateNonLinearAlgorithmIndex{Store: store, NonLinearIndices: indices})
}

func (c *AIClient) DropPredIndex(ctx context.Context, q common.AIQueryDropPredIndex) (common.Result, error) {
	return c.run(ctx, q)
}

func (c *AIClient) DropNonLinearAlgorithmIndex(ctx context.Context, q common.AIQueryDropNonLinearAlgorithmIndex) (common.Result, error) {
	return c.run(ctx, q)
}

// Set embeds and stores the inputs, the answer is a common.RespSet
func (c *AIClient) Set(ctx context.Context, store string, preprocess common.PreprocessAction, entries ...common.AIStoreEntry) (common.Result, error) {
	return c.run(ctx, common.AIQuerySet{Store: store, Inputs: entries, Preprocess: preprocess})
}

func (c *AIClient) DelKey(ctx context.Context, store string, key common.StoreInput) (common.Result, error) {
	return c.run(ctx, common.AIQueryDelKey{Store: store, Key: key})
}

func (c *AIClient) GetKey(ctx context.Context, store string, keys ...common.StoreInput) (common.Result, error) {
	return c.run(ctx, common.AIQueryGetKey{Store: store, Keys: keys})
}

func (c *AIClient) DropStore(ctx context.Context, store string, errorIfNotExists bool) (common.Result, error) {
	return c.run(ctx, common.AIQueryDropStore{Store: store, ErrorIfNotExists: errorIfNotExists})
}

// --------------------------------------------------------------------------
// Server Methods
// --------------------------------------------------------------------------

func (c *AIClient) PurgeStores(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.AIQueryPurgeStores{})
}

func (c *AIClient) ListStores(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.AIQueryListStores{})
}

func (c *AIClient) ListClients(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.AIQueryListClients{})
}

func (c *AIClient) InfoServer(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.AIQueryInfoServer{})
}

func (c *AIClient) Ping(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.AIQueryPing{})
}

// String returns the configuration of the client
func (c *AIClient) String() string {
	return fmt.Sprintf("AIClient%s", c.config.String())
}

// --------------------------------------------------------------------------
// AI Pipeline
// --------------------------------------------------------------------------

// AIPipeline collects AI proxy queries and sends them in one round trip. It
// is consumed by Exec and Go exactly like Pipeline.
//
// An AIPipeline must not be mutated from several goroutines at once.
type AIPipeline struct {
	client *AIClient
	batch[common.AIQuery]
}

// Add validates q and appends it. A failed validation is returned by Build
// and Exec.
func (p *AIPipeline) Add(q common.AIQuery) *AIPipeline {
	p.add(q, validateAIQuery)
	return p
}

// WithTraceID sets the trace id sent along with the batch
func (p *AIPipeline) WithTraceID(id string) *AIPipeline {
	p.traceID = &id
	return p
}

// Clone returns an unconsumed copy of the pipeline with the same queries
func (p *AIPipeline) Clone() *AIPipeline {
	return &AIPipeline{client: p.client, batch: p.clone()}
}

// Build consumes the pipeline into a batch envelope
func (p *AIPipeline) Build() (common.AIServerQuery, error) {
	queries, traceID, err := p.take()
	if err != nil {
		return common.AIServerQuery{}, err
	}
	return common.AIServerQuery{Queries: queries, TraceID: traceID}, nil
}

// Exec sends the batch and blocks until all results arrived
func (p *AIPipeline) Exec(ctx context.Context) ([]common.Result, error) {
	q, err := p.Build()
	if err != nil {
		return nil, err
	}
	return p.client.exec(ctx, q)
}

// Go sends the batch in the background
func (p *AIPipeline) Go(ctx context.Context) *Call {
	q, err := p.Build()
	return startCall(err, func() ([]common.Result, error) {
		return p.client.exec(ctx, q)
	})
}

func (p *AIPipeline) CreateStore(q common.AIQueryCreateStore) *AIPipeline {
	return p.Add(q)
}

func (p *AIPipeline) GetPred(store string, condition common.PredicateCondition) *AIPipeline {
	return p.Add(common.AIQueryGetPred{Store: store, Condition: condition})
}

func (p *AIPipeline) GetSimN(q common.AIQueryGetSimN) *AIPipeline {
	return p.Add(q)
}

func (p *AIPipeline) CreatePredIndex(store string, predicates ...string) *AIPipeline {
	return p.Add(common.AIQueryCreatePredIndex{Store: store, Predicates: predicates})
}

func (p *AIPipeline) CreateNonLinearAlgorithmIndex(store string, indices ...common.NonLinearAlgorithm) *AIPipeline {
	return p.Add(common.AIQueryCreateNonLinearAlgorithmIndex{Store: store, NonLinearIndices: indices})
}

func (p *AIPipeline) DropPredIndex(q common.AIQueryDropPredIndex) *AIPipeline {
	return p.Add(q)
}

func (p *AIPipeline) DropNonLinearAlgorithmIndex(q common.AIQueryDropNonLinearAlgorithmIndex) *AIPipeline {
	return p.Add(q)
}

func (p *AIPipeline) Set(store string, preprocess common.PreprocessAction, entries ...common.AIStoreEntry) *AIPipeline {
	return p.Add(common.AIQuerySet{Store: store, Inputs: entries, Preprocess: preprocess})
}

func (p *AIPipeline) DelKey(store string, key common.StoreInput) *AIPipeline {
	return p.Add(common.AIQueryDelKey{Store: store, Key: key})
}

func (p *AIPipeline) GetKey(store string, keys ...common.StoreInput) *AIPipeline {
	return p.Add(common.AIQueryGetKey{Store: store, Keys: keys})
}

func (p *AIPipeline) DropStore(store string, errorIfNotExists bool) *AIPipeline {
	return p.Add(common.AIQueryDropStore{Store: store, ErrorIfNotExists: errorIfNotExists})
}

func (p *AIPipeline) PurgeStores() *AIPipeline { return p.Add(common.AIQueryPurgeStores{}) }
func (p *AIPipeline) ListStores() *AIPipeline  { return p.Add(common.AIQueryListStores{}) }
func (p *AIPipeline) ListClients() *AIPipeline { return p.Add(common.AIQueryListClients{}) }
func (p *AIPipeline) InfoServer() *AIPipeline  { return p.Add(common.AIQueryInfoServer{}) }
func (p *AIPipeline) Ping() *AIPipeline        { return p.Add(common.AIQueryPing{}) }
