package observability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"fish-assistant/internal/observability/logging"
	"fish-assistant/internal/observability/metrics"
)

type grpcObserver struct {
	m      *metrics.Metrics
	logger zerolog.Logger
}

func newGRPCObserver(m *metrics.Metrics) grpcObserver {
	return grpcObserver{m: m, logger: logging.WithComponent("grpc")}
}

func (o grpcObserver) done(method, kind string, started time.Time, err error) {
	code := status.Code(err).String()
	o.m.RecordGRPCCall(method, code)

	ev := o.logger.Debug()
	if err != nil {
		ev = o.logger.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("kind", kind).
		Str("code", code).
		Dur("duration", time.Since(started)).
		Msg("gRPC call finished")
}

// UnaryServerInterceptor counts and logs unary calls (health Check, reflection).
func UnaryServerInterceptor(m *metrics.Metrics) grpc.UnaryServerInterceptor {
	o := newGRPCObserver(m)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		started := time.Now()
		resp, err := handler(ctx, req)
		o.done(info.FullMethod, "unary", started, err)
		return resp, err
	}
}

// StreamServerInterceptor counts and logs streams. Health Watch and the
// reflection stream are the only ones served.
func StreamServerInterceptor(m *metrics.Metrics) grpc.StreamServerInterceptor {
	o := newGRPCObserver(m)
	return func(srv any, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		started := time.Now()
		err := handler(srv, ss)
		o.done(info.FullMethod, "stream", started, err)
		return err
	}
}
