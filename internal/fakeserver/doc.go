/*
Package fakeserver implements an in-memory peer for the ahnlich DB protocol.

It decodes every request batch with the binary serializer, answers each query
against plain maps and encodes one result per query. Store level failures are
reported as error results in the batch, exactly like the real server does, so
a failing query never affects the other queries of the same batch.

The server is meant for tests and local experiments:

	srv := fakeserver.New(common.IntEncodingVarint)
	if err := srv.Start("127.0.0.1:0"); err != nil {
		return err
	}
	defer srv.Close()

Handle can also be registered with any other server transport, e.g. the gRPC
server of the grpc transport package. Similarity search is a linear scan, the
kd-tree index is only tracked for bookkeeping.
*/
package fakeserver
