package grpcserver

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully qualified gRPC service name. Requests and
// responses are google.protobuf.Struct values shaped like the HTTP API.
const ServiceName = "mtgdata.v1.CardService"

const (
	MethodGetMetadata    = "GetMetadata"
	MethodListSets       = "ListSets"
	MethodGetSet         = "GetSet"
	MethodListCardsBySet = "ListCardsBySet"
	MethodGetCardsByUUID = "GetCardsByUUID"
	MethodSearchCards    = "SearchCards"
)

type CardServiceServer interface {
	GetMetadata(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListSets(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetSet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	ListCardsBySet(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	GetCardsByUUID(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
	SearchCards(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

type unaryCall func(CardServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unary(name string, call unaryCall) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(CardServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + ServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(CardServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

var CardServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CardServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unary(MethodGetMetadata, CardServiceServer.GetMetadata),
		unary(MethodListSets, CardServiceServer.ListSets),
		unary(MethodGetSet, CardServiceServer.GetSet),
		unary(MethodListCardsBySet, CardServiceServer.ListCardsBySet),
		unary(MethodGetCardsByUUID, CardServiceServer.GetCardsByUUID),
		unary(MethodSearchCards, CardServiceServer.SearchCards),
	},
	Streams: []grpc.StreamDesc{},
}

func RegisterCardServiceServer(s grpc.ServiceRegistrar, srv CardServiceServer) {
	s.RegisterService(&CardServiceDesc, srv)
}

type CardServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewCardServiceClient(cc grpc.ClientConnInterface) *CardServiceClient {
	return &CardServiceClient{cc: cc}
}

func (c *CardServiceClient) Call(ctx context.Context, method string, req *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	if req == nil {
		req = &structpb.Struct{}
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
