package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"mtgdata/internal/archive"
	"mtgdata/internal/cards"
	"mtgdata/internal/catalog"
	"mtgdata/internal/grpcserver"
	"mtgdata/internal/loader"
	"mtgdata/internal/logger"
	"mtgdata/internal/metrics"
	"mtgdata/pkg/database"
	"mtgdata/pkg/utils"
)

func main() {
	cfg, err := utils.LoadConfig()
	if err != nil {
		l := logger.New(logger.Config{})
		l.Fatal().Err(err).Msg("config load failed")
	}
	log := logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty})

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("grpc server failed")
		os.Exit(1)
	}
	log.Info().Msg("grpc server stopped")
}

// run serves until a shutdown signal; deferred cleanup runs before main exits.
func run(cfg utils.Config, log zerolog.Logger) error {
	m := metrics.New(prometheus.DefaultRegisterer)

	sources := database.NewManager(database.ConfigFrom(cfg), logger.Component(log, "database"))
	defer sources.Close()

	ld := loader.New(sources, logger.Component(log, "loader"), m)
	store := catalog.New(ld, logger.Component(log, "catalog"), m)

	healthSrv := health.NewServer()
	healthSrv.SetServingStatus(grpcserver.ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)
	store.OnLoad(grpcserver.HealthHook(healthSrv))

	listener, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return fmt.Errorf("grpc listen on %s: %w", cfg.GRPCAddr, err)
	}

	grpcLog := logger.Component(log, "grpc")
	svc := grpcserver.NewServer(cards.NewService(store, ld), grpcLog)

	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(grpcserver.UnaryInterceptor(grpcLog, m)))
	grpcserver.RegisterCardServiceServer(grpcServer, svc)
	healthpb.RegisterHealthServer(grpcServer, healthSrv)
	reflection.Register(grpcServer)

	if cfg.LoadOnStart {
		ctx := context.Background()
		if err := store.Initialize(ctx); err != nil {
			log.Warn().Err(err).Msg("catalog not loaded at startup")
		}
		a := archive.NewClient(archive.ConfigFrom(cfg), logger.Component(log, "archive"))
		if symbols, err := a.LoadSymbols(ctx); err != nil {
			log.Warn().Err(err).Msg("symbols not loaded at startup")
		} else {
			store.SetSymbols(symbols)
		}
	}

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		log.Info().Str("signal", sig.String()).Msg("shutdown signal received")
		healthSrv.Shutdown()
		grpcServer.GracefulStop()
	}()

	log.Info().Str("addr", cfg.GRPCAddr).Msg("gRPC server listening")
	if err := grpcServer.Serve(listener); err != nil {
		return fmt.Errorf("grpc serve: %w", err)
	}
	return nil
}
