// Package rpcapi describes the imobix.chat.v1.ChatService gRPC service. Requests and
// responses are google.protobuf.Struct values, so no generated stubs are needed.
package rpcapi

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

const ServiceName = "imobix.chat.v1.ChatService"

const (
	FullMethodListConversations       = "/" + ServiceName + "/ListConversations"
	FullMethodGetOrCreateConversation = "/" + ServiceName + "/GetOrCreateConversation"
	FullMethodListMessages            = "/" + ServiceName + "/ListMessages"
	FullMethodSendMessage             = "/" + ServiceName + "/SendMessage"
	FullMethodMarkAsRead              = "/" + ServiceName + "/MarkAsRead"
	FullMethodLive                    = "/" + ServiceName + "/Live"
)

// LiveServer is the server side of the Live stream.
type LiveServer = grpc.BidiStreamingServer[structpb.Struct, structpb.Struct]

// LiveClient is the client side of the Live stream.
type LiveClient = grpc.BidiStreamingClient[structpb.Struct, structpb.Struct]

// ChatServiceServer is implemented by the service handlers.
type ChatServiceServer interface {
	ListConversations(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetOrCreateConversation(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListMessages(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SendMessage(context.Context, *structpb.Struct) (*structpb.Struct, error)
	MarkAsRead(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Live(LiveServer) error
}

func RegisterChatServiceServer(s grpc.ServiceRegistrar, srv ChatServiceServer) {
	s.RegisterService(&ChatServiceDesc, srv)
}

type unaryCall func(srv ChatServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error)

// unaryHandler mirrors what protoc-gen-go-grpc emits for a unary method.
func unaryHandler(fullMethod string, call unaryCall) grpc.MethodHandler {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(structpb.Struct)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(ChatServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(ChatServiceServer), ctx, req.(*structpb.Struct))
		}
		return interceptor(ctx, in, info, handler)
	}
}

func liveHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ChatServiceServer).Live(&grpc.GenericServerStream[structpb.Struct, structpb.Struct]{ServerStream: stream})
}

var ChatServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ChatServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "ListConversations",
			Handler: unaryHandler(FullMethodListConversations, func(srv ChatServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.ListConversations(ctx, in)
			}),
		},
		{
			MethodName: "GetOrCreateConversation",
			Handler: unaryHandler(FullMethodGetOrCreateConversation, func(srv ChatServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.GetOrCreateConversation(ctx, in)
			}),
		},
		{
			MethodName: "ListMessages",
			Handler: unaryHandler(FullMethodListMessages, func(srv ChatServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.ListMessages(ctx, in)
			}),
		},
		{
			MethodName: "SendMessage",
			Handler: unaryHandler(FullMethodSendMessage, func(srv ChatServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.SendMessage(ctx, in)
			}),
		},
		{
			MethodName: "MarkAsRead",
			Handler: unaryHandler(FullMethodMarkAsRead, func(srv ChatServiceServer, ctx context.Context, in *structpb.Struct) (*structpb.Struct, error) {
				return srv.MarkAsRead(ctx, in)
			}),
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "Live",
			Handler:       liveHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "imobix/chat/v1/chat.proto",
}

// ChatServiceClient calls the service over any client connection.
type ChatServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewChatServiceClient(cc grpc.ClientConnInterface) *ChatServiceClient {
	return &ChatServiceClient{cc: cc}
}

func (c *ChatServiceClient) invoke(ctx context.Context, method string, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *ChatServiceClient) ListConversations(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodListConversations, in, opts...)
}

func (c *ChatServiceClient) GetOrCreateConversation(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodGetOrCreateConversation, in, opts...)
}

func (c *ChatServiceClient) ListMessages(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodListMessages, in, opts...)
}

func (c *ChatServiceClient) SendMessage(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodSendMessage, in, opts...)
}

func (c *ChatServiceClient) MarkAsRead(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	return c.invoke(ctx, FullMethodMarkAsRead, in, opts...)
}

func (c *ChatServiceClient) Live(ctx context.Context, opts ...grpc.CallOption) (LiveClient, error) {
	stream, err := c.cc.NewStream(ctx, &ChatServiceDesc.Streams[0], FullMethodLive, opts...)
	if err != nil {
		return nil, err
	}
	return &grpc.GenericClientStream[structpb.Struct, structpb.Struct]{ClientStream: stream}, nil
}
