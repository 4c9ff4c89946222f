// Package reportwire defines the stream contract between a reader bridge and
// the tracker: the connect procedure, the batch message and the per-batch
// response. Messages are google.protobuf.Struct values so that loosely typed
// tag report records travel without a generated schema.
package reportwire

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"google.golang.org/protobuf/types/known/structpb"
)

const (
	// IngestServiceName is the fully-qualified name of the ingest service.
	IngestServiceName = "tagmatrix.v1.IngestService"

	// StreamReportsProcedure is the bidirectional stream carrying report
	// batches to the tracker and error responses back to the bridge.
	StreamReportsProcedure = "/" + IngestServiceName + "/StreamReports"
)

// IngestStream is the server side of the report stream.
type IngestStream = connect.BidiStream[structpb.Struct, structpb.Struct]

// IngestClientStream is the client side of the report stream.
type IngestClientStream = connect.BidiStreamForClient[structpb.Struct, structpb.Struct]

// IngestHandler is implemented by the tracker's stream consumer.
type IngestHandler interface {
	StreamReports(ctx context.Context, stream *IngestStream) error
}

// NewIngestHandler builds an HTTP handler serving StreamReportsProcedure.
// It returns the path the handler must be mounted on.
func NewIngestHandler(svc IngestHandler, opts ...connect.HandlerOption) (string, http.Handler) {
	return StreamReportsProcedure, connect.NewBidiStreamHandler(
		StreamReportsProcedure,
		svc.StreamReports,
		opts...,
	)
}

// IngestClient opens report streams against a tracker.
type IngestClient interface {
	StreamReports(ctx context.Context) *IngestClientStream
}

type ingestClient struct {
	streamReports *connect.Client[structpb.Struct, structpb.Struct]
}

// StreamReports opens a new bidirectional report stream.
func (c *ingestClient) StreamReports(ctx context.Context) *IngestClientStream {
	return c.streamReports.CallBidiStream(ctx)
}

// NewIngestClient creates a client for the ingest service hosted at baseURL
// (e.g. http://127.0.0.1:8081).
func NewIngestClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) IngestClient {
	return &ingestClient{
		streamReports: connect.NewClient[structpb.Struct, structpb.Struct](
			httpClient,
			baseURL+StreamReportsProcedure,
			opts...,
		),
	}
}
