package grpc

import (
	"fmt"
)

const (
	// ServiceName is the gRPC service carrying encoded batches
	ServiceName = "ahnlich.db.RawService"
	// PipelineMethod is the full method name of the unary batch call
	PipelineMethod = "/" + ServiceName + "/Pipeline"
)

// rawCodec passes the already encoded batch through unchanged, the payload
// is the same byte sequence the framed transport sends after its header
type rawCodec struct{}

func (rawCodec) Marshal(v any) ([]byte, error) {
	switch b := v.(type) {
	case []byte:
		return b, nil
	case *[]byte:
		return *b, nil
	default:
		return nil, fmt.Errorf("raw codec cannot marshal %T", v)
	}
}

func (rawCodec) Unmarshal(data []byte, v any) error {
	b, ok := v.(*[]byte)
	if !ok {
		return fmt.Errorf("raw codec cannot unmarshal into %T", v)
	}
	*b = append((*b)[:0], data...)
	return nil
}

func (rawCodec) Name() string { return "ahnlich-raw" }
