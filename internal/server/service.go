package server

import (
	"context"

	"google.golang.org/grpc"
)

// ServiceName is the fully-qualified gRPC service name.
const ServiceName = "tokenledger.v1.TokenService"

// TokenServiceServer is the server API for tokenledger.v1.TokenService.
type TokenServiceServer interface {
	Metadata(context.Context, *MetadataRequest) (*MetadataResponse, error)
	TotalSupply(context.Context, *TotalSupplyRequest) (*AmountResponse, error)
	BalanceOf(context.Context, *BalanceOfRequest) (*AmountResponse, error)
	Allowance(context.Context, *AllowanceRequest) (*AmountResponse, error)
	Transfer(context.Context, *TransferRequest) (*Receipt, error)
	TransferFrom(context.Context, *TransferFromRequest) (*Receipt, error)
	Approve(context.Context, *ApproveRequest) (*Receipt, error)
	Mint(context.Context, *MintRequest) (*Receipt, error)
	Burn(context.Context, *BurnRequest) (*Receipt, error)
	Status(context.Context, *StatusRequest) (*StatusResponse, error)
}

// RegisterTokenServiceServer registers srv on s.
func RegisterTokenServiceServer(s grpc.ServiceRegistrar, srv TokenServiceServer) {
	s.RegisterService(&TokenServiceDesc, srv)
}

// TokenServiceDesc is the grpc.ServiceDesc for TokenService.
var TokenServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TokenServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Metadata", Handler: unaryHandler("Metadata", TokenServiceServer.Metadata)},
		{MethodName: "TotalSupply", Handler: unaryHandler("TotalSupply", TokenServiceServer.TotalSupply)},
		{MethodName: "BalanceOf", Handler: unaryHandler("BalanceOf", TokenServiceServer.BalanceOf)},
		{MethodName: "Allowance", Handler: unaryHandler("Allowance", TokenServiceServer.Allowance)},
		{MethodName: "Transfer", Handler: unaryHandler("Transfer", TokenServiceServer.Transfer)},
		{MethodName: "TransferFrom", Handler: unaryHandler("TransferFrom", TokenServiceServer.TransferFrom)},
		{MethodName: "Approve", Handler: unaryHandler("Approve", TokenServiceServer.Approve)},
		{MethodName: "Mint", Handler: unaryHandler("Mint", TokenServiceServer.Mint)},
		{MethodName: "Burn", Handler: unaryHandler("Burn", TokenServiceServer.Burn)},
		{MethodName: "Status", Handler: unaryHandler("Status", TokenServiceServer.Status)},
	},
	Streams: []grpc.StreamDesc{},
}

func fullMethod(method string) string {
	return "/" + ServiceName + "/" + method
}

func unaryHandler[Req, Resp any](method string, call func(TokenServiceServer, context.Context, *Req) (*Resp, error)) func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
		in := new(Req)
		if err := dec(in); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(TokenServiceServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(method)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(TokenServiceServer), ctx, req.(*Req))
		}
		return interceptor(ctx, in, info, handler)
	}
}

// TokenServiceClient is the client API for TokenService.
type TokenServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTokenServiceClient(cc grpc.ClientConnInterface) *TokenServiceClient {
	return &TokenServiceClient{cc: cc}
}

func invoke[Req, Resp any](ctx context.Context, cc grpc.ClientConnInterface, method string, in *Req, opts []grpc.CallOption) (*Resp, error) {
	out := new(Resp)
	opts = append([]grpc.CallOption{grpc.CallContentSubtype(codecName)}, opts...)
	if err := cc.Invoke(ctx, fullMethod(method), in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *TokenServiceClient) Metadata(ctx context.Context, in *MetadataRequest, opts ...grpc.CallOption) (*MetadataResponse, error) {
	return invoke[MetadataRequest, MetadataResponse](ctx, c.cc, "Metadata", in, opts)
}

func (c *TokenServiceClient) TotalSupply(ctx context.Context, in *TotalSupplyRequest, opts ...grpc.CallOption) (*AmountResponse, error) {
	return invoke[TotalSupplyRequest, AmountResponse](ctx, c.cc, "TotalSupply", in, opts)
}

func (c *TokenServiceClient) BalanceOf(ctx context.Context, in *BalanceOfRequest, opts ...grpc.CallOption) (*AmountResponse, error) {
	return invoke[BalanceOfRequest, AmountResponse](ctx, c.cc, "BalanceOf", in, opts)
}

func (c *TokenServiceClient) Allowance(ctx context.Context, in *AllowanceRequest, opts ...grpc.CallOption) (*AmountResponse, error) {
	return invoke[AllowanceRequest, AmountResponse](ctx, c.cc, "Allowance", in, opts)
}

func (c *TokenServiceClient) Transfer(ctx context.Context, in *TransferRequest, opts ...grpc.CallOption) (*Receipt, error) {
	return invoke[TransferRequest, Receipt](ctx, c.cc, "Transfer", in, opts)
}

func (c *TokenServiceClient) TransferFrom(ctx context.Context, in *TransferFromRequest, opts ...grpc.CallOption) (*Receipt, error) {
	return invoke[TransferFromRequest, Receipt](ctx, c.cc, "TransferFrom", in, opts)
}

func (c *TokenServiceClient) Approve(ctx context.Context, in *ApproveRequest, opts ...grpc.CallOption) (*Receipt, error) {
	return invoke[ApproveRequest, Receipt](ctx, c.cc, "Approve", in, opts)
}

func (c *TokenServiceClient) Mint(ctx context.Context, in *MintRequest, opts ...grpc.CallOption) (*Receipt, error) {
	return invoke[MintRequest, Receipt](ctx, c.cc, "Mint", in, opts)
}

func (c *TokenServiceClient) Burn(ctx context.Context, in *BurnRequest, opts ...grpc.CallOption) (*Receipt, error) {
	return invoke[BurnRequest, Receipt](ctx, c.cc, "Burn", in, opts)
}

func (c *TokenServiceClient) Status(ctx context.Context, in *StatusRequest, opts ...grpc.CallOption) (*StatusResponse, error) {
	return invoke[StatusRequest, StatusResponse](ctx, c.cc, "Status", in, opts)
}
