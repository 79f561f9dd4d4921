package api

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified name of the control service.
const ServiceName = "calladmin.v1.CallAdmin"

// CallAdminServer is the control surface exposed by a running client. Payloads are
// protobuf well-known types so no generated code is needed on either side.
type CallAdminServer interface {
	GetStatus(context.Context, *emptypb.Empty) (*structpb.Struct, error)
	MarkHandled(context.Context, *wrapperspb.Int32Value) (*emptypb.Empty, error)
	Reconnect(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	RefreshTrackers(context.Context, *emptypb.Empty) (*emptypb.Empty, error)
	ListHistory(context.Context, *wrapperspb.Int32Value) (*structpb.Struct, error)
}

// ServiceDesc describes CallAdminServer for grpc.Server.RegisterService.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*CallAdminServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetStatus", Handler: unary("GetStatus", CallAdminServer.GetStatus)},
		{MethodName: "MarkHandled", Handler: unary("MarkHandled", CallAdminServer.MarkHandled)},
		{MethodName: "Reconnect", Handler: unary("Reconnect", CallAdminServer.Reconnect)},
		{MethodName: "RefreshTrackers", Handler: unary("RefreshTrackers", CallAdminServer.RefreshTrackers)},
		{MethodName: "ListHistory", Handler: unary("ListHistory", CallAdminServer.ListHistory)},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "calladmin/v1/calladmin.proto",
}

// RegisterCallAdminServer attaches srv to s.
func RegisterCallAdminServer(s grpc.ServiceRegistrar, srv CallAdminServer) {
	s.RegisterService(&ServiceDesc, srv)
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

// methodHandler matches grpc.MethodDesc.Handler, whose named type is unexported.
type methodHandler = func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error)

func unary[Req, Resp any](method string, call func(CallAdminServer, context.Context, *Req) (*Resp, error)) methodHandler {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(CallAdminServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(CallAdminServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// Client calls a CallAdminServer over an established connection.
type Client struct {
	cc grpc.ClientConnInterface
}

// NewClient wraps cc.
func NewClient(cc grpc.ClientConnInterface) *Client {
	return &Client{cc: cc}
}

func (c *Client) GetStatus(ctx context.Context, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("GetStatus"), &emptypb.Empty{}, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) MarkHandled(ctx context.Context, position int32, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("MarkHandled"), wrapperspb.Int32(position), new(emptypb.Empty), opts...)
}

func (c *Client) Reconnect(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("Reconnect"), &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *Client) RefreshTrackers(ctx context.Context, opts ...grpc.CallOption) error {
	return c.cc.Invoke(ctx, fullMethod("RefreshTrackers"), &emptypb.Empty{}, new(emptypb.Empty), opts...)
}

func (c *Client) ListHistory(ctx context.Context, limit int32, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, fullMethod("ListHistory"), wrapperspb.Int32(limit), out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
