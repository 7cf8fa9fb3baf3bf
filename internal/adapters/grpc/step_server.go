package grpc

import (
	"context"
	"encoding/json"
	"fmt"

	"booksaga/internal/orders/saga"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

// SagaIDHeader is the request metadata key carrying the saga instance ID.
const SagaIDHeader = "saga-id"

// Steps is the step behavior the gRPC adapter exposes.
type Steps interface {
	CheckInventory(ctx context.Context, bookID string, quantity int64) (saga.Book, error)
	CalculateTotal(book saga.Book, quantity int64) saga.OrderTotal
	RedeemPoints(ctx context.Context, userID string, orderTotal saga.OrderTotal) (saga.OrderTotal, error)
	BillCustomer(ctx context.Context, info saga.ChargeInfo) (saga.BillingConfirmation, error)
	RestoreRedeemPoints(ctx context.Context, userID string, orderTotal saga.OrderTotal) error
	RestoreQuantity(ctx context.Context, bookID string, quantity int64) error
	RefundBilling(ctx context.Context, sagaID string) error
}

// StepServer adapts Steps to the SagaSteps gRPC service.
type StepServer struct {
	steps Steps
}

// NewStepServer constructs a StepServer.
func NewStepServer(steps Steps) *StepServer {
	return &StepServer{steps: steps}
}

type bookLine struct {
	BookID   string `json:"bookId"`
	Quantity int64  `json:"quantity"`
}

type pricingInput struct {
	Book     saga.Book `json:"book"`
	Quantity int64     `json:"quantity"`
}

type redemptionInput struct {
	UserID     string          `json:"userId"`
	OrderTotal saga.OrderTotal `json:"orderTotal"`
}

type billingInput struct {
	SagaID     string          `json:"sagaId"`
	UserID     string          `json:"userId"`
	OrderTotal saga.OrderTotal `json:"orderTotal"`
}

type refundInput struct {
	SagaID string `json:"sagaId"`
}

func (s *StepServer) CheckInventory(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in bookLine
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.BookID == "" {
		return nil, status.Error(codes.InvalidArgument, "bookId is required")
	}
	ctx = withSagaID(ctx, "")
	book, err := s.steps.CheckInventory(ctx, in.BookID, in.Quantity)
	if err != nil {
		return nil, mapStepError(ctx, err)
	}
	return encode(book)
}

func (s *StepServer) CalculateTotal(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in pricingInput
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	return encode(s.steps.CalculateTotal(in.Book, in.Quantity))
}

func (s *StepServer) RedeemPoints(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in redemptionInput
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.UserID == "" {
		return nil, status.Error(codes.InvalidArgument, "userId is required")
	}
	ctx = withSagaID(ctx, "")
	out, err := s.steps.RedeemPoints(ctx, in.UserID, in.OrderTotal)
	if err != nil {
		return nil, mapStepError(ctx, err)
	}
	return encode(out)
}

func (s *StepServer) BillCustomer(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in billingInput
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	ctx = withSagaID(ctx, in.SagaID)
	confirmation, err := s.steps.BillCustomer(ctx, saga.ChargeInfo{
		SagaID: in.SagaID,
		UserID: in.UserID,
		Total:  in.OrderTotal,
	})
	if err != nil {
		return nil, mapStepError(ctx, err)
	}
	return encode(confirmation)
}

func (s *StepServer) RestoreRedeemPoints(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in redemptionInput
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	ctx = withSagaID(ctx, "")
	if err := s.steps.RestoreRedeemPoints(ctx, in.UserID, in.OrderTotal); err != nil {
		return nil, mapStepError(ctx, err)
	}
	return encode(map[string]any{"message": "Points restored"})
}

func (s *StepServer) RestoreQuantity(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in bookLine
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	if in.BookID == "" {
		return nil, status.Error(codes.InvalidArgument, "bookId is required")
	}
	ctx = withSagaID(ctx, "")
	if err := s.steps.RestoreQuantity(ctx, in.BookID, in.Quantity); err != nil {
		return nil, mapStepError(ctx, err)
	}
	return encode(map[string]any{"message": "Quantity restored"})
}

func (s *StepServer) RefundBilling(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	var in refundInput
	if err := decode(req, &in); err != nil {
		return nil, err
	}
	ctx = withSagaID(ctx, in.SagaID)
	if err := s.steps.RefundBilling(ctx, in.SagaID); err != nil {
		return nil, mapStepError(ctx, err)
	}
	return encode(map[string]any{"message": "Billing refunded"})
}

// withSagaID prefers an explicit saga ID over the request header.
func withSagaID(ctx context.Context, explicit string) context.Context {
	if explicit != "" {
		return saga.WithSagaID(ctx, explicit)
	}
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		if values := md.Get(SagaIDHeader); len(values) > 0 {
			return saga.WithSagaID(ctx, values[0])
		}
	}
	return ctx
}

func decode(req *structpb.Struct, v any) error {
	raw, err := req.MarshalJSON()
	if err != nil {
		return status.Errorf(codes.InvalidArgument, "encode input: %v", err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return status.Errorf(codes.InvalidArgument, "invalid input: %v", err)
	}
	return nil
}

func encode(v any) (*structpb.Struct, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "encode output: %v", err)
	}
	out := new(structpb.Struct)
	if err := out.UnmarshalJSON(raw); err != nil {
		return nil, status.Error(codes.Internal, fmt.Sprintf("encode output: %v", err))
	}
	return out, nil
}
