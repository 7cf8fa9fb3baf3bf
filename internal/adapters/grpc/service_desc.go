package grpc

import (
	"context"

	grpcpkg "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/structpb"
)

// ServiceName is the fully-qualified gRPC service exposing the saga steps.
const ServiceName = "booksaga.v1.SagaSteps"

// Method names of the SagaSteps service.
const (
	MethodCheckInventory      = "CheckInventory"
	MethodCalculateTotal      = "CalculateTotal"
	MethodRedeemPoints        = "RedeemPoints"
	MethodBillCustomer        = "BillCustomer"
	MethodRestoreRedeemPoints = "RestoreRedeemPoints"
	MethodRestoreQuantity     = "RestoreQuantity"
	MethodRefundBilling       = "RefundBilling"
)

// SagaStepsServer is the server API for the SagaSteps service. Every method
// takes and returns a google.protobuf.Struct of named fields.
type SagaStepsServer interface {
	CheckInventory(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CalculateTotal(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RedeemPoints(context.Context, *structpb.Struct) (*structpb.Struct, error)
	BillCustomer(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RestoreRedeemPoints(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RestoreQuantity(context.Context, *structpb.Struct) (*structpb.Struct, error)
	RefundBilling(context.Context, *structpb.Struct) (*structpb.Struct, error)
}

type stepMethod func(SagaStepsServer, context.Context, *structpb.Struct) (*structpb.Struct, error)

func unaryHandler(name string, call stepMethod) grpcpkg.MethodDesc {
	fullMethod := "/" + ServiceName + "/" + name
	return grpcpkg.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpcpkg.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(SagaStepsServer), ctx, in)
			}
			info := &grpcpkg.UnaryServerInfo{Server: srv, FullMethod: fullMethod}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(SagaStepsServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// SagaStepsServiceDesc describes the SagaSteps service for registration.
var SagaStepsServiceDesc = grpcpkg.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*SagaStepsServer)(nil),
	Methods: []grpcpkg.MethodDesc{
		unaryHandler(MethodCheckInventory, SagaStepsServer.CheckInventory),
		unaryHandler(MethodCalculateTotal, SagaStepsServer.CalculateTotal),
		unaryHandler(MethodRedeemPoints, SagaStepsServer.RedeemPoints),
		unaryHandler(MethodBillCustomer, SagaStepsServer.BillCustomer),
		unaryHandler(MethodRestoreRedeemPoints, SagaStepsServer.RestoreRedeemPoints),
		unaryHandler(MethodRestoreQuantity, SagaStepsServer.RestoreQuantity),
		unaryHandler(MethodRefundBilling, SagaStepsServer.RefundBilling),
	},
	Streams:  []grpcpkg.StreamDesc{},
	Metadata: "booksaga/v1/saga_steps.proto",
}

// RegisterSagaStepsServer registers srv on s.
func RegisterSagaStepsServer(s grpcpkg.ServiceRegistrar, srv SagaStepsServer) {
	s.RegisterService(&SagaStepsServiceDesc, srv)
}

// SagaStepsClient invokes SagaSteps methods on a connection.
type SagaStepsClient struct {
	cc grpcpkg.ClientConnInterface
}

func NewSagaStepsClient(cc grpcpkg.ClientConnInterface) *SagaStepsClient {
	return &SagaStepsClient{cc: cc}
}

// Invoke calls method with the named input fields.
func (c *SagaStepsClient) Invoke(ctx context.Context, method string, in map[string]any, opts ...grpcpkg.CallOption) (map[string]any, error) {
	req, err := structpb.NewStruct(in)
	if err != nil {
		return nil, err
	}
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, "/"+ServiceName+"/"+method, req, out, opts...); err != nil {
		return nil, err
	}
	return out.AsMap(), nil
}
