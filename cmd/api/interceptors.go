package main

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/auth"
)

// tokenVerifier is the part of auth.JWTManager the interceptors need.
type tokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

// bearerFromMetadata returns the token from the authorization header, or "".
func bearerFromMetadata(ctx context.Context) string {
	md, ok := metadata.FromIncomingContext(ctx)
	if !ok {
		return ""
	}
	values := md.Get("authorization")
	if len(values) == 0 {
		return ""
	}
	return auth.BearerToken(values[0])
}

func authenticate(ctx context.Context, j tokenVerifier) (context.Context, error) {
	token := bearerFromMetadata(ctx)
	if token == "" {
		return nil, status.Errorf(codes.Unauthenticated, "missing authorization header")
	}
	claims, err := j.VerifyToken(token)
	if err != nil {
		return nil, status.Errorf(codes.Unauthenticated, "invalid token")
	}
	return auth.WithClaims(ctx, claims), nil
}

// authUnaryInterceptor enforces JWT authentication on every unary method and puts
// the claims in the handler context.
func authUnaryInterceptor(j tokenVerifier) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		ctx, err := authenticate(ctx, j)
		if err != nil {
			return nil, err
		}
		return handler(ctx, req)
	}
}

// authStreamInterceptor is the stream equivalent of authUnaryInterceptor.
func authStreamInterceptor(j tokenVerifier) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		ctx, err := authenticate(ss.Context(), j)
		if err != nil {
			return err
		}
		return handler(srv, wrappedStream{ServerStream: ss, ctx: ctx})
	}
}

// wrappedStream overrides Context so handlers see the claims.
type wrappedStream struct {
	grpc.ServerStream
	ctx context.Context
}

func (w wrappedStream) Context() context.Context { return w.ctx }
