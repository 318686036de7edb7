package wire

import (
	"context"

	"google.golang.org/grpc"
)

const (
	UserServiceName = "idp.v1.UserService"

	userValidateUserMethod = "/idp.v1.UserService/ValidateUser"
)

// UserServiceServer is implemented by the IdP.
type UserServiceServer interface {
	ValidateUser(ctx context.Context, req *ValidateUserRequest) (*ValidateUserResponse, error)
}

// RegisterUserServiceServer registers srv on s.
func RegisterUserServiceServer(s *grpc.Server, srv UserServiceServer) {
	s.RegisterService(&userServiceDesc, srv)
}

func validateUserHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(ValidateUserRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(UserServiceServer).ValidateUser(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: userValidateUserMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(UserServiceServer).ValidateUser(ctx, req.(*ValidateUserRequest))
	}
	return interceptor(ctx, in, info, handler)
}

var userServiceDesc = grpc.ServiceDesc{
	ServiceName: UserServiceName,
	HandlerType: (*UserServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "ValidateUser", Handler: validateUserHandler},
	},
	Streams: []grpc.StreamDesc{},
}

// UserServiceClient is the client stub used by the Orchestrator.
type UserServiceClient struct {
	cc *grpc.ClientConn
}

// NewUserServiceClient wraps an established connection.
func NewUserServiceClient(cc *grpc.ClientConn) *UserServiceClient {
	return &UserServiceClient{cc: cc}
}

// ValidateUser invokes UserService.ValidateUser.
func (c *UserServiceClient) ValidateUser(ctx context.Context, req *ValidateUserRequest, opts ...grpc.CallOption) (*ValidateUserResponse, error) {
	out := new(ValidateUserResponse)
	opts = append([]grpc.CallOption{CallOption()}, opts...)
	if err := c.cc.Invoke(ctx, userValidateUserMethod, req, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}
