package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"

	"github.com/jonatanmachado35/back-imobix-sub001/internal/auth"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/config"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/middleware"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/presence"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/realtime"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/rpcapi"
	"github.com/jonatanmachado35/back-imobix-sub001/internal/usecase"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	setupLogger(cfg)

	st, err := openStores(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open stores")
	}
	defer st.Close(context.Background())

	jwtMgr, err := newJWTManager(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("invalid JWT configuration")
	}

	svc := usecase.NewConversationService(st.conversations, st.messages, st.owners, log.Logger)

	eventLimiter := middleware.NewLimiterStore(cfg.RateLimit.EventsPerMinute, cfg.RateLimit.EventBurst, time.Minute)
	defer eventLimiter.Stop()
	gateway := realtime.NewGateway(svc, jwtMgr, presence.NewRegistry(), eventLimiter, log.Logger)

	rpcLimiter := middleware.NewLimiterStore(cfg.RateLimit.RPM, cfg.RateLimit.Burst, time.Minute)
	defer rpcLimiter.Stop()

	grpcServer, err := newGRPCServer(cfg, jwtMgr, rpcLimiter)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gRPC server")
	}
	registerService(grpcServer, newServer(svc, gateway, log.Logger))

	lis, err := net.Listen("tcp", ":"+cfg.GRPC.Port)
	if err != nil {
		log.Fatal().Err(err).Str("port", cfg.GRPC.Port).Msg("failed to listen")
	}
	go func() {
		log.Info().Str("addr", lis.Addr().String()).Msg("gRPC server listening")
		if err := grpcServer.Serve(lis); err != nil {
			log.Error().Err(err).Msg("gRPC server exit")
			stop()
		}
	}()

	httpServer := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           newRouter(gateway, log.Logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.Info().Str("addr", httpServer.Addr).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("HTTP server exit")
			stop()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("HTTP shutdown failed")
	}

	// GracefulStop waits for Live streams, which only end when clients leave
	done := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-shutdownCtx.Done():
		grpcServer.Stop()
	}
}

func setupLogger(cfg *config.Config) {
	zerolog.TimeFieldFormat = time.RFC3339Nano
	if cfg.IsDevelopment() {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
	log.Logger = log.With().Str("service", cfg.App.Name).Logger()
}

// newJWTManager prefers jwt.keys (kid:secret pairs, for rotation) over jwt.secret.
func newJWTManager(cfg *config.Config) (*auth.JWTManager, error) {
	if cfg.JWT.Keys != "" {
		keys, err := auth.ParseKeys(cfg.JWT.Keys)
		if err != nil {
			return nil, err
		}
		if _, ok := keys[cfg.JWT.ActiveKid]; !ok {
			return nil, errors.New("jwt.active_kid must name one of jwt.keys")
		}
		return auth.NewJWTManagerFromKeys(keys, cfg.JWT.ActiveKid, cfg.JWT.Duration), nil
	}
	return auth.NewJWTManager(cfg.JWT.Secret, cfg.JWT.Duration), nil
}

func newGRPCServer(cfg *config.Config, jwtMgr *auth.JWTManager, limiter *middleware.LimiterStore) (*grpc.Server, error) {
	var opts []grpc.ServerOption

	if cfg.GRPC.TLSCert != "" && cfg.GRPC.TLSKey != "" {
		creds, err := credentials.NewServerTLSFromFile(cfg.GRPC.TLSCert, cfg.GRPC.TLSKey)
		if err != nil {
			return nil, err
		}
		opts = append(opts, grpc.Creds(creds))
	}

	// auth runs first so the limiter keys requests by user
	opts = append(opts,
		grpc.ChainUnaryInterceptor(
			authUnaryInterceptor(jwtMgr),
			middleware.RateLimitUnaryInterceptor(limiter, map[string]bool{rpcapi.FullMethodSendMessage: true}),
		),
		grpc.ChainStreamInterceptor(authStreamInterceptor(jwtMgr)),
	)
	return grpc.NewServer(opts...), nil
}
