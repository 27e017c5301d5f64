package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport/grpc"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport/tcp"
	"io"
)

// DBClient is the typed client of the ahnlich DB server. Every method sends
// one request and returns its Result. Use Pipeline to send several requests
// in one round trip.
//
// Errors returned by the methods are local failures (validation, encoding,
// connection, protocol or deserialization). A request the server rejected is
// returned as a common.ResultErr, use common.ResponseAs to unwrap it.
type DBClient struct {
	config     common.ClientConfig
	transport  transport.IRPCClientTransport
	serializer serializer.IRPCSerializer
}

// NewDBClient creates a new client and connects the transport.
// A nil transport is chosen from config.Transport.WireFormat and a nil
// serializer from config.Protocol.IntEncoding.
func NewDBClient(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (*DBClient, error) {

	config, transport, serializer, err := connect(config, transport, serializer)
	if err != nil {
		return nil, err
	}

	return &DBClient{
		config:     config,
		transport:  transport,
		serializer: serializer,
	}, nil
}

// NewTransport returns an unconnected client transport for the wire format
func NewTransport(format common.WireFormat) transport.IRPCClientTransport {
	if format == common.WireFormatGRPC {
		return grpc.NewGRPCClientTransport()
	}
	return tcp.NewTCPClientTransport()
}

func newSerializer(encoding common.IntEncoding) serializer.IRPCSerializer {
	return serializer.NewBinarySerializer(encoding)
}

// Config returns the effective configuration of the client
func (c *DBClient) Config() common.ClientConfig {
	return c.config
}

// Close closes the transport and all its connections
func (c *DBClient) Close() error {
	return c.transport.Close()
}

// WritePrometheus writes the transport metrics to w, if the transport collects any
func (c *DBClient) WritePrometheus(w io.Writer) {
	if m, ok := c.transport.(transport.IMetricsWriter); ok {
		m.WritePrometheus(w)
	}
}

// Pipeline returns a new, empty pipeline bound to this client
func (c *DBClient) Pipeline() *Pipeline {
	return &Pipeline{client: c}
}

// Exec sends all queries in one batch and returns one Result per query,
// in the same order
func (c *DBClient) Exec(ctx context.Context, queries ...common.Query) ([]common.Result, error) {
	p := c.Pipeline()
	for _, q := range queries {
		p.Add(q)
	}
	return p.Exec(ctx)
}

// run validates and sends a single query
func (c *DBClient) run(ctx context.Context, q common.Query) (common.Result, error) {
	if err := validateQuery(q); err != nil {
		return nil, err
	}
	results, err := c.exec(ctx, common.ServerQuery{Queries: []common.Query{q}})
	if err != nil {
		return nil, err
	}
	return results[0], nil
}

func (c *DBClient) exec(ctx context.Context, q common.ServerQuery) ([]common.Result, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	// Serialize the request, an encode error never touches the network
	reqBytes, err := c.serializer.SerializeQuery(q)
	if err != nil {
		return nil, err
	}
	results, err := exchange(ctx, reqBytes, len(q.Queries), c.transport, c.serializer.DeserializeResult)
	if err != nil {
		Logger.Debugf("Batch of %d queries failed: %v", len(q.Queries), err)
		return nil, err
	}
	return results, nil
}

// --------------------------------------------------------------------------
// Store Methods
// --------------------------------------------------------------------------

func (c *DBClient) CreateStore(ctx context.Context, q common.QueryCreateStore) (common.Result, error) {
	return c.run(ctx, q)
}

func (c *DBClient) GetKey(ctx context.Context, store string, keys ...common.StoreKey) (common.Result, error) {
	return c.run(ctx, common.QueryGetKey{Store: store, Keys: keys})
}

func (c *DBClient) GetPred(ctx context.Context, store string, condition common.PredicateCondition) (common.Result, error) {
	return c.run(ctx, common.QueryGetPred{Store: store, Condition: condition})
}

// GetSimN returns the q.ClosestN entries most similar to q.SearchInput.
// ClosestN must be at least 1.
func (c *DBClient) GetSimN(ctx context.Context, q common.QueryGetSimN) (common.Result, error) {
	return c.run(ctx, q)
}

func (c *DBClient) CreatePredIndex(ctx context.Context, store string, predicates ...string) (common.Result, error) {
	return c.run(ctx, common.QueryCreatePredIndex{Store: store, Predicates: predicates})
}

func (c *DBClient) CreateNonLinearAlgorithmIndex(ctx context.Context, store string, indices ...common.NonLinearAlgorithm) (common.Result, error) {
	return c.run(ctx, common.QueryCreateNonLinearAlgorithmIndex{Store: store, NonLinearIndices: indices})
}

func (c *DBClient) DropPredIndex(ctx context.Context, q common.QueryDropPredIndex) (common.Result, error) {
	return c.run(ctx, q)
}

func (c *DBClient) DropNonLinearAlgorithmIndex(ctx context.Context, q common.QueryDropNonLinearAlgorithmIndex) (common.Result, error) {
	return c.run(ctx, q)
}

// Set inserts or updates entries, the answer is a common.RespSet
func (c *DBClient) Set(ctx context.Context, store string, entries ...common.StoreEntry) (common.Result, error) {
	return c.run(ctx, common.QuerySet{Store: store, Inputs: entries})
}

func (c *DBClient) DelKey(ctx context.Context, store string, keys ...common.StoreKey) (common.Result, error) {
	return c.run(ctx, common.QueryDelKey{Store: store, Keys: keys})
}

func (c *DBClient) DelPred(ctx context.Context, store string, condition common.PredicateCondition) (common.Result, error) {
	return c.run(ctx, common.QueryDelPred{Store: store, Condition: condition})
}

func (c *DBClient) DropStore(ctx context.Context, store string, errorIfNotExists bool) (common.Result, error) {
	return c.run(ctx, common.QueryDropStore{Store: store, ErrorIfNotExists: errorIfNotExists})
}

// --------------------------------------------------------------------------
// Server Methods
// --------------------------------------------------------------------------

func (c *DBClient) PurgeStores(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.QueryPurgeStores{})
}

func (c *DBClient) ListStores(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.QueryListStores{})
}

func (c *DBClient) ListClients(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.QueryListClients{})
}

func (c *DBClient) InfoServer(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.QueryInfoServer{})
}

func (c *DBClient) Ping(ctx context.Context) (common.Result, error) {
	return c.run(ctx, common.QueryPing{})
}

// String returns the configuration of the client
func (c *DBClient) String() string {
	return fmt.Sprintf("DBClient%s", c.config.String())
}
