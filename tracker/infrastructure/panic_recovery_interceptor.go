package infrastructure

import (
	"context"
	"errors"
	"sync/atomic"

	"connectrpc.com/connect"
	trackerDomain "github.com/samoilenko/tagmatrix/tracker/domain"
)

// PanicRecoveryInterceptor turns panics in connect handlers into internal
// errors so a single broken stream cannot crash the tracker.
type PanicRecoveryInterceptor struct {
	logger    trackerDomain.Logger
	recovered atomic.Uint64
}

// Recovered returns the number of panics turned into errors.
func (i *PanicRecoveryInterceptor) Recovered() uint64 {
	return i.recovered.Load()
}

// WrapUnary recovers panics in unary handlers.
func (i *PanicRecoveryInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return connect.UnaryFunc(func(
		ctx context.Context,
		req connect.AnyRequest,
	) (resp connect.AnyResponse, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				i.recovered.Add(1)
				i.logger.Error("panic in unary handler %s: %v", req.Spec().Procedure, rec)

				resp = nil
				err = connect.NewError(connect.CodeInternal, errors.New("internal server error"))
			}
		}()

		return next(ctx, req)
	})
}

// WrapStreamingClient is a no-op; the tracker does not open client streams.
func (i *PanicRecoveryInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

// WrapStreamingHandler recovers panics in the report stream handler.
func (i *PanicRecoveryInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return connect.StreamingHandlerFunc(func(
		ctx context.Context,
		conn connect.StreamingHandlerConn,
	) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				i.recovered.Add(1)
				i.logger.Error("panic in streaming handler %s: %v", conn.Spec().Procedure, rec)

				err = connect.NewError(connect.CodeInternal, errors.New("internal server error"))
			}
		}()

		return next(ctx, conn)
	})
}

// NewPanicRecoveryInterceptor creates a PanicRecoveryInterceptor.
func NewPanicRecoveryInterceptor(logger trackerDomain.Logger) *PanicRecoveryInterceptor {
	return &PanicRecoveryInterceptor{
		logger: logger,
	}
}
