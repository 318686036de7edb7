package orders

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/Iradukunda-Fils/microservices-demo/internal/resilience"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc"
	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc/wire"
)

// requestingService identifies this component on internal calls.
const requestingService = "order-orchestrator"

// UserClient is the slice of the IdP the orchestrator depends on.
type UserClient interface {
	ValidateUser(ctx context.Context, userID int64) (*wire.ValidateUserResponse, error)
}

// ProductClient is the slice of the Catalog the orchestrator depends on.
type ProductClient interface {
	GetProductInfo(ctx context.Context, productID int64) (*wire.GetProductInfoResponse, error)
	CheckAvailability(ctx context.Context, productID int64, quantity int32) (*wire.CheckAvailabilityResponse, error)
}

// IdPClient reaches the IdP through the retry/breaker stack.
type IdPClient struct {
	conn   *grpc.ClientConn
	stub   *wire.UserServiceClient
	caller *resilience.Caller
	secret string
}

// DialIdP connects to the IdP's internal RPC port (insecure transport; the
// bearer secret on metadata is the development identity check).
func DialIdP(ctx context.Context, target, secret string, caller *resilience.Caller) (*IdPClient, error) {
	conn, err := grpc.DialContext(ctx, target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &IdPClient{
		conn:   conn,
		stub:   wire.NewUserServiceClient(conn),
		caller: caller,
		secret: secret,
	}, nil
}

// Close closes the underlying connection.
func (c *IdPClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// ValidateUser implements UserClient.
func (c *IdPClient) ValidateUser(ctx context.Context, userID int64) (*wire.ValidateUserResponse, error) {
	var resp *wire.ValidateUserResponse
	err := c.caller.Do(ctx, "ValidateUser", func(ctx context.Context) error {
		out, err := c.stub.ValidateUser(rpc.WithBearer(ctx, c.secret), &wire.ValidateUserRequest{
			UserID:            userID,
			RequestingService: requestingService,
		})
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CatalogClient reaches the Catalog through the retry/breaker stack.
type CatalogClient struct {
	conn   *grpc.ClientConn
	stub   *wire.ProductServiceClient
	caller *resilience.Caller
	secret string
}

// DialCatalog connects to the Catalog's internal RPC port.
func DialCatalog(ctx context.Context, target, secret string, caller *resilience.Caller) (*CatalogClient, error) {
	conn, err := grpc.DialContext(ctx, target, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, err
	}
	return &CatalogClient{
		conn:   conn,
		stub:   wire.NewProductServiceClient(conn),
		caller: caller,
		secret: secret,
	}, nil
}

// Close closes the underlying connection.
func (c *CatalogClient) Close() error {
	if c == nil || c.conn == nil {
		return nil
	}
	return c.conn.Close()
}

// GetProductInfo implements ProductClient.
func (c *CatalogClient) GetProductInfo(ctx context.Context, productID int64) (*wire.GetProductInfoResponse, error) {
	var resp *wire.GetProductInfoResponse
	err := c.caller.Do(ctx, "GetProductInfo", func(ctx context.Context) error {
		out, err := c.stub.GetProductInfo(rpc.WithBearer(ctx, c.secret), &wire.GetProductInfoRequest{ProductID: productID})
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// CheckAvailability implements ProductClient.
func (c *CatalogClient) CheckAvailability(ctx context.Context, productID int64, quantity int32) (*wire.CheckAvailabilityResponse, error) {
	var resp *wire.CheckAvailabilityResponse
	err := c.caller.Do(ctx, "CheckAvailability", func(ctx context.Context) error {
		out, err := c.stub.CheckAvailability(rpc.WithBearer(ctx, c.secret), &wire.CheckAvailabilityRequest{
			ProductID: productID,
			Quantity:  quantity,
		})
		if err != nil {
			return err
		}
		resp = out
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}
