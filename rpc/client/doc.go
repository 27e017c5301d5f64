// Package client implements the typed client of the ahnlich DB server.
// It turns typed queries into one encoded batch, hands the batch to a
// transport and returns the decoded results in request order.
//
// The package focuses on:
//   - One method per server operation (DBClient)
//   - Batching several queries into one round trip (Pipeline)
//   - Asynchronous execution with the same code path as blocking calls (Pipeline.Go)
//   - Local validation before any I/O
//
// Key Components:
//
//   - NewDBClient: Factory function that creates a client for the given configuration.
//     The transport is chosen from the configured wire format (framed TCP or gRPC) unless
//     one is passed explicitly.
//
//   - Pipeline: Collects queries and sends them as one batch. The i-th result always
//     belongs to the i-th query. An executed pipeline is consumed and has to be refilled
//     (or cloned before execution) to be sent again.
//
//   - Call: Handle of a batch sent in the background. Results and Err are valid once
//     Done is closed.
//
// Usage Example:
//
//	config := common.DefaultClientConfig("localhost:1369")
//	db, err := client.NewDBClient(config, nil, nil)
//	if err != nil {
//	  return err
//	}
//	defer db.Close()
//
//	// single request
//	res, err := db.Ping(ctx)
//
//	// several requests, one round trip
//	results, err := db.Pipeline().
//	  CreateStore(common.QueryCreateStore{Store: "main", Dimension: 3}).
//	  Set("main", common.StoreEntry{Key: common.StoreKey{1, 2, 3}}).
//	  GetSimN(common.QueryGetSimN{Store: "main", SearchInput: common.StoreKey{1, 2, 3}, ClosestN: 1}).
//	  Exec(ctx)
//
//	// unwrap a result
//	sim, err := common.ResponseAs[common.RespGetSimN](results[2])
//
// Error Handling:
//
//	Methods return an error only for local failures (validation, encoding, connection,
//	protocol, deserialization), see common.Error. A query the server rejected is a
//	common.ResultErr in the results and never affects the other queries of the batch.
//
// Thread Safety:
//
//	A DBClient is safe for concurrent use, every call leases its own connection.
//	A Pipeline is not, build it in one goroutine.
package client
