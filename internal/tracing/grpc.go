package tracing

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
)

// MetadataKey is the binary gRPC metadata key of the encoded span context.
const MetadataKey = "puma-trace-bin"

// Outgoing adds the span context of ctx, if any, to the outgoing gRPC
// metadata.
func Outgoing(ctx context.Context) context.Context {
	sc, ok := FromContext(ctx)
	if !ok {
		return ctx
	}

	data, err := Encode(sc)
	if err != nil {
		return ctx
	}

	return metadata.AppendToOutgoingContext(ctx, MetadataKey, string(data))
}

// Incoming loads the span context sent by the client, if any.
func Incoming(ctx context.Context) context.Context {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ctx
	}

	vals := md.Get(MetadataKey)
	if len(vals) == 0 {
		return ctx
	}

	return WithRemote(ctx, []byte(vals[0]))
}

// UnaryClientInterceptor propagates the caller's span to relay servers.
func UnaryClientInterceptor() grpc.UnaryClientInterceptor {
	return func(ctx context.Context, method string, req, reply any,
		cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption,
	) error {
		return invoker(Outgoing(ctx), method, req, reply, cc, opts...)
	}
}

// UnaryServerInterceptor loads the client's span into the handler context.
func UnaryServerInterceptor() grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		return handler(Incoming(ctx), req)
	}
}
