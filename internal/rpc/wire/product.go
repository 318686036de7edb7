package wire

import (
	"context"

	"google.golang.org/grpc"
)

const (
	ProductServiceName = "catalog.v1.ProductService"

	productGetInfoMethod      = "/catalog.v1.ProductService/GetProductInfo"
	productAvailabilityMethod = "/catalog.v1.ProductService/CheckAvailability"
)

// ProductServiceServer is implemented by the Catalog.
type ProductServiceServer interface {
	GetProductInfo(ctx context.Context, req *GetProductInfoRequest) (*GetProductInfoResponse, error)
	CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error)
}

// RegisterProductServiceServer registers srv on s.
func RegisterProductServiceServer(s *grpc.Server, srv ProductServiceServer) {
	s.RegisterService(&productServiceDesc, srv)
}

func getProductInfoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(GetProductInfoRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProductServiceServer).GetProductInfo(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: productGetInfoMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProductServiceServer).GetProductInfo(ctx, req.(*GetProductInfoRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func checkAvailabilityHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CheckAvailabilityRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ProductServiceServer).CheckAvailability(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: productAvailabilityMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(ProductServiceServer).CheckAvailability(ctx, req.(*CheckAvailabilityRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var productServiceDesc = grpc.ServiceDesc{
	ServiceName: ProductServiceName,
	HandlerType: (*ProductServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "GetProductInfo", Handler: getProductInfoHandler},
		{MethodName: "CheckAvailability", Handler: checkAvailabilityHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// ProductServiceClient is the client stub used by the Orchestrator.
type ProductServiceClient struct {
	cc *grpc.ClientConn
}

// NewProductServiceClient wraps an established connection.
func NewProductServiceClient(cc *grpc.ClientConn) *ProductServiceClient {
	return &ProductServiceClient{cc: cc}
}

// GetProductInfo invokes ProductService.GetProductInfo.
func (c *ProductServiceClient) GetProductInfo(ctx context.Context, req *GetProductInfoRequest, opts ...grpc.CallOption) (*GetProductInfoResponse, error) {
	out := new(GetProductInfoResponse)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := c.cc.Invoke(ctx, productGetInfoMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

// CheckAvailability invokes ProductService.CheckAvailability.
func (c *ProductServiceClient) CheckAvailability(ctx context.Context, req *CheckAvailabilityRequest, opts ...grpc.CallOption) (*CheckAvailabilityResponse, error) {
	out := new(CheckAvailabilityResponse)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := c.cc.Invoke(ctx, productAvailabilityMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
