// Package pb holds the wire message and service definitions for the
// reduce UDF protocol. In a production numaflow-go repository these types
// and the gRPC service boilerplate below would be emitted by
// protoc-gen-go and protoc-gen-go-grpc from a .proto schema; here the same
// shapes are hand-written, wired to a JSON wire codec (jsonCodec, in
// codec.go) instead of the default protobuf codec so that these plain
// structs need not implement proto.Message.
package pb

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// WindowOperationEvent mirrors the wire "event" enum. It is unused by the
// core but is carried for wire fidelity.
type WindowOperationEvent int32

const (
	WindowOperationEvent_OPEN   WindowOperationEvent = 0
	WindowOperationEvent_CLOSE  WindowOperationEvent = 1
	WindowOperationEvent_APPEND WindowOperationEvent = 2
)

// Window is the wire shape of a window boundary.
type Window struct {
	Start *timestamppb.Timestamp
	End   *timestamppb.Timestamp
	Slot  string
}

// Payload is the wire shape of one record's data.
type Payload struct {
	Keys      []string
	Value     []byte
	Watermark *timestamppb.Timestamp
	EventTime *timestamppb.Timestamp
	Headers   map[string]string
}

// WindowOperation is the wire shape of a record's operation descriptor.
type WindowOperation struct {
	Event   WindowOperationEvent
	Windows []*Window
}

// ReduceRequest is the wire shape of one inbound item.
type ReduceRequest struct {
	Payload   *Payload
	Operation *WindowOperation
}

// Result is the wire shape of an OutMessage's fields.
type Result struct {
	Keys  []string
	Value []byte
	Tags  []string
}

// ReduceResponse is the wire shape of one outbound item.
type ReduceResponse struct {
	Result *Result
	Window *Window
	EOF    bool
}

// ReadyResponse is the wire shape of the liveness probe's reply.
type ReadyResponse struct {
	Ready bool
}

// ReduceServiceServer is the service interface a reduce UDF server
// implements; it stands in for what protoc-gen-go-grpc would generate
// from a "Reduce" service with a ReduceFn bidirectional stream and an
// IsReady unary RPC.
type ReduceServiceServer interface {
	ReduceFn(ReduceService_ReduceFnServer) error
	IsReady(context.Context, *struct{}) (*ReadyResponse, error)
}

// ReduceService_ReduceFnServer is the bidirectional stream handed to
// ReduceServiceServer.ReduceFn, modelled on the grpc.ServerStream wrapper
// pattern protoc-gen-go-grpc emits (compare pf.Shuffler_ShuffleServer in
// the estuary-flow example pack).
type ReduceService_ReduceFnServer interface {
	Send(*ReduceResponse) error
	Recv() (*ReduceRequest, error)
	grpc.ServerStream
}

type reduceServiceReduceFnServer struct {
	grpc.ServerStream
}

func (x *reduceServiceReduceFnServer) Send(m *ReduceResponse) error {
	return x.ServerStream.SendMsg(m)
}

func (x *reduceServiceReduceFnServer) Recv() (*ReduceRequest, error) {
	m := new(ReduceRequest)
	if err := x.ServerStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}

// ServiceDesc is the grpc.ServiceDesc for the reduce UDF service.
var ServiceDesc = grpc.ServiceDesc{
	ServiceName: "reduce.v1.Reduce",
	HandlerType: (*ReduceServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "IsReady",
			Handler:    isReadyHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "ReduceFn",
			Handler:       reduceFnHandler,
			ServerStreams: true,
			ClientStreams: true,
		},
	},
	Metadata: "reduce.proto",
}

func reduceFnHandler(srv interface{}, stream grpc.ServerStream) error {
	return srv.(ReduceServiceServer).ReduceFn(&reduceServiceReduceFnServer{stream})
}

func isReadyHandler(
	srv interface{},
	ctx context.Context,
	dec func(interface{}) error,
	interceptor grpc.UnaryServerInterceptor,
) (interface{}, error) {
	in := new(struct{})
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ReduceServiceServer).IsReady(ctx, in)
	}

	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/reduce.v1.Reduce/IsReady"}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ReduceServiceServer).IsReady(ctx, req.(*struct{}))
	}

	return interceptor(ctx, in, info, handler)
}

// RegisterReduceServiceServer registers srv with s.
func RegisterReduceServiceServer(s grpc.ServiceRegistrar, srv ReduceServiceServer) {
	s.RegisterService(&ServiceDesc, srv)
}

// ReduceServiceClient is the client side of the reduce UDF service, used
// by tests to drive a server over a real transport (a Unix domain socket).
type ReduceServiceClient interface {
	ReduceFn(ctx context.Context, opts ...grpc.CallOption) (ReduceService_ReduceFnClient, error)
	IsReady(ctx context.Context, in *struct{}, opts ...grpc.CallOption) (*ReadyResponse, error)
}

// ReduceService_ReduceFnClient is the client-side stream handle.
type ReduceService_ReduceFnClient interface {
	Send(*ReduceRequest) error
	Recv() (*ReduceResponse, error)
	grpc.ClientStream
}

type reduceServiceClient struct {
	cc grpc.ClientConnInterface
}

// NewReduceServiceClient builds a ReduceServiceClient over cc.
func NewReduceServiceClient(cc grpc.ClientConnInterface) ReduceServiceClient {
	return &reduceServiceClient{cc}
}

func (c *reduceServiceClient) ReduceFn(
	ctx context.Context, opts ...grpc.CallOption,
) (ReduceService_ReduceFnClient, error) {
	stream, err := c.cc.NewStream(ctx, &ServiceDesc.Streams[0], "/reduce.v1.Reduce/ReduceFn", opts...)
	if err != nil {
		return nil, err
	}

	return &reduceServiceReduceFnClient{stream}, nil
}

func (c *reduceServiceClient) IsReady(
	ctx context.Context, in *struct{}, opts ...grpc.CallOption,
) (*ReadyResponse, error) {
	out := new(ReadyResponse)
	if err := c.cc.Invoke(ctx, "/reduce.v1.Reduce/IsReady", in, out, opts...); err != nil {
		return nil, err
	}

	return out, nil
}

type reduceServiceReduceFnClient struct {
	grpc.ClientStream
}

func (x *reduceServiceReduceFnClient) Send(m *ReduceRequest) error {
	return x.ClientStream.SendMsg(m)
}

func (x *reduceServiceReduceFnClient) Recv() (*ReduceResponse, error) {
	m := new(ReduceResponse)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}

	return m, nil
}
