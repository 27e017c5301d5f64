package client

import (
	"context"
	"fmt"
	"github.com/ValentinKolb/ahnlich-go/rpc/common"
	"github.com/ValentinKolb/ahnlich-go/rpc/serializer"
	"github.com/ValentinKolb/ahnlich-go/rpc/transport"
	"github.com/lni/dragonboat/v4/logger"
)

var (
	Logger = logger.GetLogger("rpc")
)

// decodeFunc decodes the answer of a batch
type decodeFunc func(b []byte, r *common.ServerResult) error

// exchange is the helper used by both clients and all pipelines to run one batch.
// It sends the encoded batch with the transport and decodes the answer.
// The returned results are aligned with the batch: results[i] belongs to query i.
// Callers encode before calling it, so an encode error never touches the network.
func exchange(ctx context.Context, reqBytes []byte, queries int, transport transport.IRPCClientTransport, decode decodeFunc) ([]common.Result, error) {
	// Send the request
	respBytes, err := transport.Send(ctx, reqBytes)
	if err != nil {
		return nil, err
	}

	// Deserialize the response
	resp := common.ServerResult{}
	if err := decode(respBytes, &resp); err != nil {
		return nil, err
	}

	// Check that every query got exactly one result
	if len(resp.Results) != queries {
		return nil, common.NewError(common.KindProtocol, "exchange",
			fmt.Errorf("sent %d queries but received %d results", queries, len(resp.Results)))
	}

	Logger.Debugf("Exchanged batch of %d queries (%d bytes out, %d bytes in)", queries, len(reqBytes), len(respBytes))
	return resp.Results, nil
}

// connect applies the config defaults, validates the config and connects the
// transport. A nil transport is chosen from config.Transport.WireFormat and a
// nil serializer from config.Protocol.IntEncoding.
func connect(
	config common.ClientConfig,
	transport transport.IRPCClientTransport,
	serializer serializer.IRPCSerializer,
) (common.ClientConfig, transport.IRPCClientTransport, serializer.IRPCSerializer, error) {

	config = config.WithDefaults()
	if err := config.Validate(); err != nil {
		return config, nil, nil, common.NewError(common.KindValidation, "validate config", err)
	}

	if transport == nil {
		transport = NewTransport(config.Transport.WireFormat)
	}
	if serializer == nil {
		serializer = newSerializer(config.Protocol.IntEncoding)
	}

	// Connect the transport
	if err := transport.Connect(config); err != nil {
		return config, nil, nil, err
	}
	return config, transport, serializer, nil
}

// --------------------------------------------------------------------------
// Batches
// --------------------------------------------------------------------------

// batch holds the queued queries of a pipeline until it is consumed
type batch[Q any] struct {
	queries  []Q
	traceID  *string
	err      error
	consumed bool
}

// Len returns the number of queries waiting to be sent
func (b *batch[Q]) Len() int {
	return len(b.queries)
}

func (b *batch[Q]) add(q Q, validate func(Q) error) {
	if b.err != nil {
		return
	}
	if err := validate(q); err != nil {
		b.err = err
		return
	}
	b.queries = append(b.queries, q)
	b.consumed = false
}

// clone returns an unconsumed copy with the same queries
func (b *batch[Q]) clone() batch[Q] {
	c := batch[Q]{
		queries: append([]Q(nil), b.queries...),
		err:     b.err,
	}
	if b.traceID != nil {
		id := *b.traceID
		c.traceID = &id
	}
	return c
}

// take consumes the queued queries
func (b *batch[Q]) take() ([]Q, *string, error) {
	if b.err != nil {
		return nil, nil, b.err
	}
	if len(b.queries) == 0 {
		if b.consumed {
			return nil, nil, common.NewError(common.KindValidation, "build pipeline", common.ErrBatchConsumed)
		}
		return nil, nil, common.NewError(common.KindValidation, "build pipeline", common.ErrEmptyBatch)
	}

	queries := b.queries
	b.queries = nil
	b.consumed = true
	return queries, b.traceID, nil
}

// --------------------------------------------------------------------------
// Asynchronous Calls
// --------------------------------------------------------------------------

// Call is a batch sent with Pipeline.Go or AIPipeline.Go. Results and Err are
// set before Done is closed.
type Call struct {
	Results []common.Result
	Err     error
	Done    chan struct{}
}

// startCall runs exec in the background, a build error finishes the call
// right away
func startCall(buildErr error, exec func() ([]common.Result, error)) *Call {
	call := &Call{Done: make(chan struct{})}
	if buildErr != nil {
		call.Err = buildErr
		close(call.Done)
		return call
	}

	go func() {
		defer close(call.Done)
		call.Results, call.Err = exec()
	}()
	return call
}

// Wait blocks until the call finished or ctx is done
func (c *Call) Wait(ctx context.Context) ([]common.Result, error) {
	select {
	case <-c.Done:
		return c.Results, c.Err
	case <-ctx.Done():
		return nil, common.NewError(common.KindConnection, "wait for call", ctx.Err())
	}
}
