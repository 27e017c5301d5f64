package fakeserver

import (
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport/tcp"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/puzpuzpuz/xsync/v3"
	"sort"
	"sync/atomic"
	"time"
)

var Logger = logger.GetLogger("fakeserver")

// Server is an in-memory peer that speaks the framed protocol. It answers
// every query variant with plausible results but is not a search engine.
type Server struct {
	serializer serializer.IRPCSerializer
	transport  transport.IRPCServerTransport
	version    common.Version
	limit      uint64

	stores   *xsync.MapOf[string, *store]
	clients  *xsync.MapOf[string, common.SystemTime]
	requests atomic.Uint64

	// ai switches the server to the AI proxy dialect
	ai       bool
	aiStores *xsync.MapOf[string, *aiStore]

	// Hook, if set, sees every decoded batch before it is answered
	Hook func(q common.ServerQuery)
}

// New creates a server that decodes and encodes with the given integer mode
func New(encoding common.IntEncoding) *Server {
	return &Server{
		serializer: serializer.NewBinarySerializer(encoding),
		version:    common.ProtocolVersion,
		limit:      1 << 30,
		stores:     xsync.NewMapOf[string, *store](),
		clients:    xsync.NewMapOf[string, common.SystemTime](),
	}
}

// --------------------------------------------------------------------------
// Lifecycle
// --------------------------------------------------------------------------

// Start listens on endpoint (use "127.0.0.1:0" for a random port) and serves
// connections in the background
func (s *Server) Start(endpoint string) error {
	s.transport = tcp.NewTCPServerTransport()
	s.transport.RegisterHandler(s.Handle)
	s.transport.RegisterDisconnectHandler(s.Disconnect)
	if err := s.transport.Listen(common.ServerConfig{
		Endpoint: endpoint,
		Version:  s.version,
		TCPConf:  common.TCPConf{TCPNoDelay: true},
	}); err != nil {
		return err
	}

	go func() {
		if err := s.transport.Serve(); err != nil {
			Logger.Errorf("Server stopped: %v", err)
		}
	}()
	return nil
}

// Addr returns the address the server listens on
func (s *Server) Addr() string {
	if s.transport == nil || s.transport.Addr() == nil {
		return ""
	}
	return s.transport.Addr().String()
}

// DropConnections closes all client connections, the server keeps listening
func (s *Server) DropConnections() int {
	if s.transport == nil {
		return 0
	}
	n := s.transport.DropConnections()
	s.clients.Range(func(addr string, _ common.SystemTime) bool {
		s.clients.Delete(addr)
		return true
	})
	return n
}

// Disconnect removes peer from the client list. It is registered as the
// disconnect handler of the server transport.
func (s *Server) Disconnect(peer string) {
	s.clients.Delete(peer)
}

// Close stops the server
func (s *Server) Close() error {
	if s.transport == nil {
		return nil
	}
	return s.transport.Close()
}

// Requests returns the number of batches handled so far
func (s *Server) Requests() uint64 {
	return s.requests.Load()
}

// --------------------------------------------------------------------------
// Request handling
// --------------------------------------------------------------------------

// Handle decodes one batch, answers every query and encodes the results.
// It can be registered with any server transport.
func (s *Server) Handle(peer string, req []byte) []byte {
	s.requests.Add(1)
	if peer != "" {
		s.clients.LoadOrStore(peer, common.NewSystemTime(time.Now()))
	}
	if s.ai {
		return s.handleAI(req)
	}

	var q common.ServerQuery
	if err := s.serializer.DeserializeQuery(req, &q); err != nil {
		Logger.Warningf("Could not deserialize query: %v", err)
		return s.encode(common.ServerResult{Results: []common.Result{
			common.ResultErr{Message: fmt.Sprintf("Could not deserialize query, error is %v", err)},
		}})
	}
	if s.Hook != nil {
		s.Hook(q)
	}

	results := make([]common.Result, 0, len(q.Queries))
	for _, query := range q.Queries {
		resp, err := s.answer(query)
		if err != nil {
			results = append(results, common.ResultErr{Message: err.Error()})
			continue
		}
		results = append(results, common.ResultOk{Response: resp})
	}
	return s.encode(common.ServerResult{Results: results})
}

func (s *Server) encode(r common.ServerResult) []byte {
	serialize := s.serializer.SerializeResult
	if s.ai {
		serialize = s.serializer.SerializeAIResult
	}
	data, err := serialize(r)
	if err != nil {
		// every answer is built from valid values
		Logger.Panicf("Failed to encode result: %v", err)
	}
	return data
}

func (s *Server) getStore(name string) (*store, error) {
	st, ok := s.stores.Load(name)
	if !ok {
		return nil, fmt.Errorf("Store %s not found", name)
	}
	return st, nil
}

// answer runs one query against the in-memory state
func (s *Server) answer(query common.Query) (common.ServerResponse, error) {
	switch q := query.(type) {
	case common.QueryPing:
		return common.RespPong{}, nil

	case common.QueryInfoServer:
		return common.RespInfoServer{Info: s.info()}, nil

	case common.QueryListClients:
		return common.RespClientList{Clients: s.listClients()}, nil

	case common.QueryListStores:
		return common.RespStoreList{Stores: s.listStores()}, nil

	case common.QueryPurgeStores:
		deleted := uint64(0)
		s.stores.Range(func(name string, _ *store) bool {
			if _, ok := s.stores.LoadAndDelete(name); ok {
				deleted++
			}
			return true
		})
		return common.RespDel{Deleted: deleted}, nil

	case common.QueryCreateStore:
		_, loaded := s.stores.LoadOrStore(q.Store, newStore(q))
		if loaded && q.ErrorIfExists {
			return nil, fmt.Errorf("Store %s already exists", q.Store)
		}
		return common.RespUnit{}, nil

	case common.QueryDropStore:
		if _, ok := s.stores.LoadAndDelete(q.Store); ok {
			return common.RespDel{Deleted: 1}, nil
		}
		if q.ErrorIfNotExists {
			return nil, fmt.Errorf("Store %s not found", q.Store)
		}
		return common.RespDel{Deleted: 0}, nil
	}

	// everything else works on one store
	name, err := storeName(query)
	if err != nil {
		return nil, err
	}
	st, err := s.getStore(name)
	if err != nil {
		return nil, err
	}
	return st.answer(query)
}

func storeName(query common.Query) (string, error) {
	switch q := query.(type) {
	case common.QueryGetKey:
		return q.Store, nil
	case common.QueryGetPred:
		return q.Store, nil
	case common.QueryGetSimN:
		return q.Store, nil
	case common.QueryCreatePredIndex:
		return q.Store, nil
	case common.QueryCreateNonLinearAlgorithmIndex:
		return q.Store, nil
	case common.QueryDropPredIndex:
		return q.Store, nil
	case common.QueryDropNonLinearAlgorithmIndex:
		return q.Store, nil
	case common.QuerySet:
		return q.Store, nil
	case common.QueryDelKey:
		return q.Store, nil
	case common.QueryDelPred:
		return q.Store, nil
	default:
		return "", fmt.Errorf("unsupported query %T", query)
	}
}

func (s *Server) info() common.ServerInfo {
	used := uint64(0)
	s.stores.Range(func(_ string, st *store) bool {
		st.mu.RLock()
		used += st.sizeInBytes()
		st.mu.RUnlock()
		return true
	})
	serverType := common.ServerTypeDatabase
	if s.ai {
		serverType = common.ServerTypeAI
		s.aiStores.Range(func(_ string, st *aiStore) bool {
			st.mu.RLock()
			used += st.sizeInBytes()
			st.mu.RUnlock()
			return true
		})
	}
	remaining := uint64(0)
	if used < s.limit {
		remaining = s.limit - used
	}
	return common.ServerInfo{
		Address:   s.Addr(),
		Version:   s.version,
		Type:      serverType,
		Limit:     s.limit,
		Remaining: remaining,
	}
}

func (s *Server) listStores() []common.StoreInfo {
	var stores []common.StoreInfo
	s.stores.Range(func(name string, st *store) bool {
		st.mu.RLock()
		stores = append(stores, common.StoreInfo{
			Name:        name,
			Len:         uint64(len(st.entries)),
			SizeInBytes: st.sizeInBytes(),
		})
		st.mu.RUnlock()
		return true
	})
	sort.Slice(stores, func(i, j int) bool { return stores[i].Name < stores[j].Name })
	return stores
}

func (s *Server) listClients() []common.ConnectedClient {
	var clients []common.ConnectedClient
	s.clients.Range(func(addr string, since common.SystemTime) bool {
		clients = append(clients, common.ConnectedClient{Address: addr, TimeConnected: since})
		return true
	})
	sort.Slice(clients, func(i, j int) bool { return clients[i].Address < clients[j].Address })
	return clients
}
