package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"time"

	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"github.com/joseph-ayodele/docrouter/internal/async"
	"github.com/joseph-ayodele/docrouter/internal/common"
	"github.com/joseph-ayodele/docrouter/internal/ingest"
	"github.com/joseph-ayodele/docrouter/internal/pipeline"
	"github.com/joseph-ayodele/docrouter/internal/repository"
)

// Options are the daemon settings that do not come from the environment.
type Options struct {
	// WatchRoots are directories whose new documents are queued automatically.
	WatchRoots []string
	WatchMode  string
	Debounce   time.Duration
}

// Run wires the ledger, processor, queue and gRPC server and blocks until
// ctx is done or the server fails.
func Run(ctx context.Context, cfg *common.Config, opts Options, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	db, err := ConnectDB(ctx, cfg.Database, logger)
	if err != nil {
		return err
	}
	defer CloseDB(db, logger)
	if err := PingDB(ctx, db, logger, 5*time.Second); err != nil {
		return err
	}

	runs := repository.NewRunRepository(db, logger)
	proc := pipeline.NewProcessor(logger, nil, runs, pipeline.ConfigFrom(cfg, logger))
	queue := async.NewProcessorQueue(proc, logger,
		async.WithWorkers(cfg.Pipeline.Workers),
		async.WithQueueSize(cfg.Pipeline.QueueSize),
		async.WithProcessTimeout(cfg.Pipeline.Timeout),
	)
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Pipeline.Timeout)
		defer cancel()
		queue.Shutdown(shutdownCtx)
	}()

	lis, err := net.Listen("tcp", cfg.Server.GRPCAddr)
	if err != nil {
		logger.Error("failed to listen on address", "addr", cfg.Server.GRPCAddr, "error", err)
		return err
	}
	grpcServer := grpc.NewServer(grpc.UnaryInterceptor(LoggingInterceptor(logger)))
	RegisterPipeServiceServer(grpcServer, NewPipeService(proc, queue, runs, logger))

	// Register gRPC health service
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(PipeServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	// Reflection for grpcurl list
	reflection.Register(grpcServer)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("docrouter listening", "addr", lis.Addr().String(), "version", cfg.Version)
		if err := grpcServer.Serve(lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Error("gRPC serve error", "error", err)
			return err
		}
		return nil
	})
	if len(opts.WatchRoots) > 0 {
		g.Go(func() error {
			return watch(gctx, queue, opts, logger)
		})
	}
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		healthServer.Shutdown()
		grpcServer.GracefulStop()
		return nil
	})
	return g.Wait()
}

func watch(ctx context.Context, queue async.Queue, opts Options, logger *slog.Logger) error {
	events, errs, err := ingest.StartWatcher(ctx, ingest.WatchConfig{
		Roots:       opts.WatchRoots,
		InitialScan: true,
		Debounce:    opts.Debounce,
	}, logger)
	if err != nil {
		return err
	}
	go func() {
		for err := range errs {
			logger.Warn("watch error", "error", err)
		}
	}()
	n, err := async.Feed(ctx, queue, events, pipeline.Request{Mode: opts.WatchMode}, logger)
	logger.Info("watcher stopped", "queued", n)
	return err
}
