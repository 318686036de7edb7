package wire

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/Iradukunda-Fils/microservices-demo/internal/rpc"
)

const bufSize = 1024 * 1024

type stubUserServer struct{}

func (stubUserServer) ValidateUser(_ context.Context, req *ValidateUserRequest) (*ValidateUserResponse, error) {
	if req.UserID == 42 {
		return &ValidateUserResponse{Valid: true, UserID: 42, Username: "alice", IsActive: true}, nil
	}
	return &ValidateUserResponse{Valid: false, ErrorMessage: "user not found"}, nil
}

type stubProductServer struct{}

func (stubProductServer) GetProductInfo(_ context.Context, req *GetProductInfoRequest) (*GetProductInfoResponse, error) {
	return &GetProductInfoResponse{
		Found: true, ID: req.ProductID, Name: "widget", Price: "10.00",
		InventoryCount: 5, IsActive: true,
	}, nil
}

func (stubProductServer) CheckAvailability(_ context.Context, req *CheckAvailabilityRequest) (*CheckAvailabilityResponse, error) {
	return &CheckAvailabilityResponse{Available: req.Quantity <= 5, CurrentInventory: 5}, nil
}

func startBufGRPC(t *testing.T, secret string) *grpc.ClientConn {
	t.Helper()

	listener := bufconn.Listen(bufSize)
	server := grpc.NewServer(grpc.UnaryInterceptor(rpc.UnaryAuthInterceptor(secret)))
	RegisterUserServiceServer(server, stubUserServer{})
	RegisterProductServiceServer(server, stubProductServer{})

	go func() {
		if err := server.Serve(listener); err != nil {
			t.Logf("serve: %v", err)
		}
	}()
	t.Cleanup(server.Stop)

	conn, err := grpc.DialContext(context.Background(), "bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return listener.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestUserServiceOverJSONCodec(t *testing.T) {
	conn := startBufGRPC(t, "s3cret")
	client := NewUserServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = rpc.WithBearer(ctx, "s3cret")

	resp, err := client.ValidateUser(ctx, &ValidateUserRequest{UserID: 42, RequestingService: "test"})
	if err != nil {
		t.Fatalf("ValidateUser: %v", err)
	}
	if !resp.Valid || resp.Username != "alice" {
		t.Fatalf("unexpected response %+v", resp)
	}

	missing, err := client.ValidateUser(ctx, &ValidateUserRequest{UserID: 7})
	if err != nil {
		t.Fatalf("ValidateUser: %v", err)
	}
	if missing.Valid || missing.ErrorMessage == "" {
		t.Fatalf("logical miss must travel in the response body: %+v", missing)
	}
}

func TestProductServiceOverJSONCodec(t *testing.T) {
	conn := startBufGRPC(t, "s3cret")
	client := NewProductServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	ctx = rpc.WithBearer(ctx, "s3cret")

	info, err := client.GetProductInfo(ctx, &GetProductInfoRequest{ProductID: 1})
	if err != nil {
		t.Fatalf("GetProductInfo: %v", err)
	}
	if !info.Found || info.Price != "10.00" || info.InventoryCount != 5 {
		t.Fatalf("unexpected response %+v", info)
	}

	avail, err := client.CheckAvailability(ctx, &CheckAvailabilityRequest{ProductID: 1, Quantity: 9})
	if err != nil {
		t.Fatalf("CheckAvailability: %v", err)
	}
	if avail.Available || avail.CurrentInventory != 5 {
		t.Fatalf("unexpected response %+v", avail)
	}
}

func TestUnauthenticatedCallRejected(t *testing.T) {
	conn := startBufGRPC(t, "s3cret")
	client := NewUserServiceClient(conn)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	// No credential at all.
	if _, err := client.ValidateUser(ctx, &ValidateUserRequest{UserID: 42}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated, got %v", err)
	}
	// Wrong credential.
	wrong := rpc.WithBearer(ctx, "wrong")
	if _, err := client.ValidateUser(wrong, &ValidateUserRequest{UserID: 42}); status.Code(err) != codes.Unauthenticated {
		t.Fatalf("expected Unauthenticated for a bad secret, got %v", err)
	}
}

func TestCodecRoundTrip(t *testing.T) {
	c := jsonCodec{}
	in := &GetProductInfoResponse{Found: true, ID: 3, Price: "7.50", InventoryCount: 2, IsActive: true}
	data, err := c.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	out := &GetProductInfoResponse{}
	if err := c.Unmarshal(data, out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if *out != *in {
		t.Fatalf("round trip mismatch: %+v != %+v", out, in)
	}
}
