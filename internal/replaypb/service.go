package replaypb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	ServiceName = "replay.v1.Replay"

	StoreTransitionMethod  = "/replay.v1.Replay/StoreTransition"
	StoreBatchMethod       = "/replay.v1.Replay/StoreBatch"
	SampleMethod           = "/replay.v1.Replay/Sample"
	UpdatePrioritiesMethod = "/replay.v1.Replay/UpdatePriorities"
	GetStatsMethod         = "/replay.v1.Replay/GetStats"
)

// ReplayServer is the server API for the Replay service
type ReplayServer interface {
	StoreTransition(context.Context, *StoreTransitionRequest) (*StoreTransitionResponse, error)
	StoreBatch(context.Context, *StoreBatchRequest) (*StoreBatchResponse, error)
	Sample(context.Context, *SampleRequest) (*SampleResponse, error)
	UpdatePriorities(context.Context, *UpdatePrioritiesRequest) (*UpdatePrioritiesResponse, error)
	GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error)
}

// UnimplementedReplayServer can be embedded to have forward compatible implementations
type UnimplementedReplayServer struct{}

func (UnimplementedReplayServer) StoreTransition(context.Context, *StoreTransitionRequest) (*StoreTransitionResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StoreTransition not implemented")
}

func (UnimplementedReplayServer) StoreBatch(context.Context, *StoreBatchRequest) (*StoreBatchResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method StoreBatch not implemented")
}

func (UnimplementedReplayServer) Sample(context.Context, *SampleRequest) (*SampleResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method Sample not implemented")
}

func (UnimplementedReplayServer) UpdatePriorities(context.Context, *UpdatePrioritiesRequest) (*UpdatePrioritiesResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method UpdatePriorities not implemented")
}

func (UnimplementedReplayServer) GetStats(context.Context, *GetStatsRequest) (*StatsResponse, error) {
	return nil, status.Error(codes.Unimplemented, "method GetStats not implemented")
}

// RegisterReplayServer registers srv on s
func RegisterReplayServer(s grpc.ServiceRegistrar, srv ReplayServer) {
	s.RegisterService(&Replay_ServiceDesc, srv)
}

func unaryHandler[Req any, Resp any](method string, call func(ReplayServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ReplayServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{
			Server:     srv,
			FullMethod: method,
		}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(ReplayServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Replay_ServiceDesc is the grpc.ServiceDesc for the Replay service
var Replay_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ReplayServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "StoreTransition",
			Handler:    unaryHandler(StoreTransitionMethod, ReplayServer.StoreTransition),
		},
		{
			MethodName: "StoreBatch",
			Handler:    unaryHandler(StoreBatchMethod, ReplayServer.StoreBatch),
		},
		{
			MethodName: "Sample",
			Handler:    unaryHandler(SampleMethod, ReplayServer.Sample),
		},
		{
			MethodName: "UpdatePriorities",
			Handler:    unaryHandler(UpdatePrioritiesMethod, ReplayServer.UpdatePriorities),
		},
		{
			MethodName: "GetStats",
			Handler:    unaryHandler(GetStatsMethod, ReplayServer.GetStats),
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "replay/v1/replay.proto",
}

// ReplayClient is the client API for the Replay service
type ReplayClient interface {
	StoreTransition(ctx context.Context, in *StoreTransitionRequest, opts ...grpc.CallOption) (*StoreTransitionResponse, error)
	StoreBatch(ctx context.Context, in *StoreBatchRequest, opts ...grpc.CallOption) (*StoreBatchResponse, error)
	Sample(ctx context.Context, in *SampleRequest, opts ...grpc.CallOption) (*SampleResponse, error)
	UpdatePriorities(ctx context.Context, in *UpdatePrioritiesRequest, opts ...grpc.CallOption) (*UpdatePrioritiesResponse, error)
	GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error)
}

type replayClient struct {
	cc grpc.ClientConnInterface
}

// NewReplayClient returns a client that sends JSON-encoded requests over cc
func NewReplayClient(cc grpc.ClientConnInterface) ReplayClient {
	return &replayClient{cc}
}

func invoke[Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in any, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(CodecName)}, opts...)
	if err := cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *replayClient) StoreTransition(ctx context.Context, in *StoreTransitionRequest, opts ...grpc.CallOption) (*StoreTransitionResponse, error) {
	return invoke[StoreTransitionResponse](ctx, c.cc, StoreTransitionMethod, in, opts)
}

func (c *replayClient) StoreBatch(ctx context.Context, in *StoreBatchRequest, opts ...grpc.CallOption) (*StoreBatchResponse, error) {
	return invoke[StoreBatchResponse](ctx, c.cc, StoreBatchMethod, in, opts)
}

func (c *replayClient) Sample(ctx context.Context, in *SampleRequest, opts ...grpc.CallOption) (*SampleResponse, error) {
	return invoke[SampleResponse](ctx, c.cc, SampleMethod, in, opts)
}

func (c *replayClient) UpdatePriorities(ctx context.Context, in *UpdatePrioritiesRequest, opts ...grpc.CallOption) (*UpdatePrioritiesResponse, error) {
	return invoke[UpdatePrioritiesResponse](ctx, c.cc, UpdatePrioritiesMethod, in, opts)
}

func (c *replayClient) GetStats(ctx context.Context, in *GetStatsRequest, opts ...grpc.CallOption) (*StatsResponse, error) {
	return invoke[StatsResponse](ctx, c.cc, GetStatsMethod, in, opts)
}
