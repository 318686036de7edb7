package idp

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc/wire"
)

// RPCServer implements the internal UserService contract.
type RPCServer struct {
	svc *Service
}

// NewRPCServer wraps the service for gRPC registration.
func NewRPCServer(svc *Service) *RPCServer {
	return &RPCServer{svc: svc}
}

// ValidateUser answers whether an account exists and is active. Logical
// failures travel inside the response body; only infrastructure failures
// become transport errors, so the caller's retry policy never replays a
// "not found".
func (s *RPCServer) ValidateUser(ctx context.Context, req *wire.ValidateUserRequest) (*wire.ValidateUserResponse, error) {
	account, err := s.svc.ValidateUser(ctx, req.UserID)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return &wire.ValidateUserResponse{
				Valid:        false,
				ErrorMessage: err.Error(),
			}, nil
		}
		log := obs.Logger()
		log.Error().Err(err).Int64("user_id", req.UserID).
			Str("requesting_service", req.RequestingService).Msg("validate user failed")
		return nil, status.Error(codes.Internal, "internal error")
	}
	if !account.IsActive {
		return &wire.ValidateUserResponse{
			Valid:        false,
			UserID:       account.ID,
			Username:     account.Username,
			ErrorMessage: "account is inactive",
		}, nil
	}
	return &wire.ValidateUserResponse{
		Valid:    true,
		UserID:   account.ID,
		Username: account.Username,
		IsActive: account.IsActive,
	}, nil
}
