// Package common provides the data model and the shared utilities of the
// ahnlich client. It defines the request and response unions, the protocol
// version, the configuration structs, the error taxonomy and the logger factory
// used by all other packages.
//
// The package focuses on:
//   - Tagged unions as sealed interfaces (Query, ServerResponse, Result,
//     Predicate, PredicateCondition, MetadataValue) with constant discriminants
//   - Batch envelopes (ServerQuery, ServerResult)
//   - Configuration structures for the client and its transports
//   - Typed errors that separate local, transport and remote failures
//   - Custom logging implementation integrated with the dragonboat logger
//
// Key Components:
//
//   - Query: one request of a batch. Every variant is a struct named QueryX
//     returning the constant QueryTX from Type(). The discriminants are part
//     of the wire format and are never renumbered.
//
//   - ServerResponse / Result: the successful answer of one query and the
//     two-alternative outcome (ResultOk / ResultErr) the server sends per query.
//     ResponseAs unwraps a Result into a concrete response type.
//
//   - ClientConfig: timeouts, endpoints, wire format, pool limits and protocol
//     options. Use DefaultClientConfig or WithDefaults to fill unset values.
//
//   - Error: error type carrying an ErrorKind. Use errors.Is with the kind
//     sentinels (ErrConnection, ErrProtocol, ...) to classify failures and
//     IsRetryable to decide whether a retry on a fresh connection makes sense.
//
//   - Logger: Custom logging implementation that integrates with Dragonboat's
//     logging system while providing consistent formatting across the application.
package common
