package server

import (
	"context"
	"log/slog"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/joseph-ayodele/docrouter/internal/common"
)

// PipeServiceName is the fully-qualified gRPC service name.
const PipeServiceName = "docrouter.v1.PipeService"

// PipeServiceServer is the server API for docrouter.v1.PipeService. Messages
// are google.protobuf.Struct so the service needs no generated code.
type PipeServiceServer interface {
	Pipe(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Submit(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Runs(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Export(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type unaryMethod func(PipeServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call unaryMethod) grpc.MethodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(PipeServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + PipeServiceName + "/" + name}
		return interceptor(ctx, in, info, func(ctx context.Context, req any) (any, error) {
			return call(srv.(PipeServiceServer), ctx, req.(*structpb.Struct))
		})
	}
}

// PipeServiceDesc describes docrouter.v1.PipeService for grpc.Server.RegisterService.
var PipeServiceDesc = grpc.ServiceDesc{
	ServiceName: PipeServiceName,
	HandlerType: (*PipeServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Pipe", Handler: unaryHandler("Pipe", PipeServiceServer.Pipe)},
		{MethodName: "Submit", Handler: unaryHandler("Submit", PipeServiceServer.Submit)},
		{MethodName: "Runs", Handler: unaryHandler("Runs", PipeServiceServer.Runs)},
		{MethodName: "Export", Handler: unaryHandler("Export", PipeServiceServer.Export)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "docrouter/v1/pipe.proto",
}

func RegisterPipeServiceServer(s grpc.ServiceRegistrar, srv PipeServiceServer) {
	s.RegisterService(&PipeServiceDesc, srv)
}

// PipeServiceClient calls docrouter.v1.PipeService.
type PipeServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewPipeServiceClient(cc grpc.ClientConnInterface) *PipeServiceClient {
	return &PipeServiceClient{cc: cc}
}

func (c *PipeServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+PipeServiceName+"/"+method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *PipeServiceClient) Pipe(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Pipe", in, opts...)
}

func (c *PipeServiceClient) Submit(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Submit", in, opts...)
}

func (c *PipeServiceClient) Runs(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Runs", in, opts...)
}

func (c *PipeServiceClient) Export(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, "Export", in, opts...)
}

// RequestIDKey is the incoming metadata key carrying a caller's request ID.
const RequestIDKey = "x-request-id"

// LoggingInterceptor tags each call with a request ID and logs its outcome.
func LoggingInterceptor(logger *slog.Logger) grpc.UnaryServerInterceptor {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			if ids := md.Get(RequestIDKey); len(ids) > 0 && ids[0] != "" {
				ctx = common.WithRequestID(ctx, ids[0])
			}
		}
		ctx, requestID := common.EnsureRequestID(ctx)

		start := time.Now()
		resp, err := handler(ctx, req)
		attrs := []any{
			"method", info.FullMethod,
			"request_id", requestID,
			"elapsed_ms", time.Since(start).Milliseconds(),
		}
		if err != nil {
			logger.Warn("grpc call failed", append(attrs, "code", status.Code(err).String(), "error", err)...)
			return resp, err
		}
		logger.Info("grpc call ok", attrs...)
		return resp, nil
	}
}
