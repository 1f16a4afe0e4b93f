package main

import (
	"github.com/rs/zerolog"
	"google.golang.org/grpc"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/realtime"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/rpcapi"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/usecase"
)

// Server implements the chat service on top of the use cases and the live gateway.
type Server struct {
	svc     usecase.ConversationServiceContract
	gateway *realtime.Gateway
	log     zerolog.Logger
}

var _ rpcapi.ChatServiceServer = (*Server)(nil)

func newServer(svc usecase.ConversationServiceContract, gw *realtime.Gateway, logger zerolog.Logger) *Server {
	return &Server{svc: svc, gateway: gw, log: logger.With().Str("component", "grpc").Logger()}
}

// registerService registers the ChatService on the given gRPC server.
func registerService(s *grpc.Server, srv *Server) {
	rpcapi.RegisterChatServiceServer(s, srv)
}
