package catalog

import (
	"context"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Iradukunda-Fils/microservices-demo/internal/apierr"
	"github.com/Iradukunda-Fils/microservices-demo/internal/obs"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc/wire"
)

// RPCServer implements the internal ProductService contract.
type RPCServer struct {
	svc *Service
}

// NewRPCServer wraps the service for gRPC registration.
func NewRPCServer(svc *Service) *RPCServer {
	return &RPCServer{svc: svc}
}

// GetProductInfo returns the purchase-relevant snapshot of one product.
// Missing products are a logical outcome, not a transport error.
func (s *RPCServer) GetProductInfo(ctx context.Context, req *wire.GetProductInfoRequest) (*wire.GetProductInfoResponse, error) {
	p, err := s.svc.Get(ctx, req.ProductID)
	if err != nil {
		if apierr.KindOf(err) == apierr.KindNotFound {
			return &wire.GetProductInfoResponse{
				Found:        false,
				ErrorMessage: err.Error(),
			}, nil
		}
		log := obs.Logger()
		log.Error().Err(err).Int64("product_id", req.ProductID).Msg("get product info failed")
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &wire.GetProductInfoResponse{
		Found:          true,
		ID:             p.ID,
		Name:           p.Name,
		Description:    p.Description,
		Price:          p.Price.StringFixed(2),
		InventoryCount: p.InventoryCount,
		IsActive:       p.IsActive,
	}, nil
}

// CheckAvailability reports whether the requested quantity is in stock.
func (s *RPCServer) CheckAvailability(ctx context.Context, req *wire.CheckAvailabilityRequest) (*wire.CheckAvailabilityResponse, error) {
	avail, err := s.svc.CheckAvailability(ctx, req.ProductID, req.Quantity)
	if err != nil {
		switch apierr.KindOf(err) {
		case apierr.KindNotFound, apierr.KindInputInvalid:
			return &wire.CheckAvailabilityResponse{
				Available:    false,
				ErrorMessage: err.Error(),
			}, nil
		}
		log := obs.Logger()
		log.Error().Err(err).Int64("product_id", req.ProductID).Msg("check availability failed")
		return nil, status.Error(codes.Internal, "internal error")
	}
	return &wire.CheckAvailabilityResponse{
		Available:        avail.Available,
		CurrentInventory: avail.CurrentInventory,
	}, nil
}
