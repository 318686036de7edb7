// Package rpc carries the credential plumbing shared by internal RPC
// servers and clients. In development the identity check is a bearer shared
// secret on call metadata; production replaces it with mutual TLS.
package rpc

import (
	"context"
	"crypto/subtle"
	"strings"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

const authorizationKey = "authorization"

// UnaryAuthInterceptor rejects calls whose metadata does not carry the
// shared bearer credential. An empty secret disables the check (mTLS-only
// deployments).
func UnaryAuthInterceptor(secret string) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req any, _ *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		if secret != "" {
			md, ok := metadata.FromIncomingContext(ctx)
			if !ok {
				return nil, status.Error(codes.Unauthenticated, "missing call credentials")
			}
			if !bearerMatches(md.Get(authorizationKey), secret) {
				return nil, status.Error(codes.Unauthenticated, "invalid service credentials")
			}
		}
		return handler(ctx, req)
	}
}

func bearerMatches(values []string, secret string) bool {
	for _, v := range values {
		if !strings.HasPrefix(v, "Bearer ") {
			continue
		}
		presented := strings.TrimPrefix(v, "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(secret)) == 1 {
			return true
		}
	}
	return false
}

// WithBearer attaches the shared secret to an outgoing call context.
func WithBearer(ctx context.Context, secret string) context.Context {
	if secret == "" {
		return ctx
	}
	return metadata.AppendToOutgoingContext(ctx, authorizationKey, "Bearer "+secret)
}
