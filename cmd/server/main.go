package main

import (
	"chat-relay/infrastructure/ws"
	"chat-relay/internal"
	"chat-relay/observability"
	"chat-relay/repositories"
	"chat-relay/runtime"
	"chat-relay/runtime/workers"
	"chat-relay/services"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"
	"golang.org/x/sync/errgroup"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

// Exit codes to provide meaningful status to the operating system or service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

const (
	serviceName     = "chat-relay"
	shutdownTimeout = 5 * time.Second
)

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Relay terminated with error: %v\n", err)
	}
	os.Exit(code)
}

// run wires every component, serves until a signal arrives, then shuts down in reverse order.
// Deferred cleanups run before the exit code reaches main.
func run() (int, error) {
	// 1. Configuration & Logger
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	if err := config.Validate(); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	debug := log.Enabled(ctx, slog.LevelDebug)

	// 2. Conversation store
	store, err := repositories.Open(repositories.Options{
		Backend:        repositories.Backend(config.StoreBackend),
		BadgerFilepath: config.BadgerFilepath,
		SQLiteFilepath: config.SQLiteFilepath,
		Debug:          debug,
	}, log)
	if err != nil {
		return exitConfig, err
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("Failed to close conversation store", "error", err)
		}
	}()

	// 3. Supervision & Orchestration
	monitor := observability.NewMonitor(log)
	defer monitor.Report()
	registry := runtime.NewRegistry(log, monitor, config.DeliveryTimeout)
	sup := workers.NewSupervisor(log, config.RestartInterval)
	if config.ReportInterval > 0 {
		sup.Add(workers.NewReporterWorker(log, monitor, config.ReportInterval))
	}
	orchestrator := runtime.NewOrchestrator(log, sup, registry, store, monitor,
		config.BufferSize, config.IdleTimeout, config.SendAckEnabled)
	chatService := services.NewChatService(orchestrator)

	// 4. Websocket listener
	wsServer := ws.NewServer(log, chatService, config.Origins(), config.ConnectionBufferSize)
	mux := http.NewServeMux()
	mux.Handle("/ws", wsServer)
	if debug {
		lister, _ := store.(internal.ConversationLister)
		internal.MountDebug(mux, monitor.Snapshot, lister)
		log.Info("Debug endpoint available", "path", internal.DebugEndpoint)
	}
	address := net.JoinHostPort(config.Host, fmt.Sprint(config.Port))
	httpServer := &http.Server{Addr: address, Handler: mux, ReadHeaderTimeout: 10 * time.Second}

	// 5. Health listener
	healthAddress := net.JoinHostPort(config.Host, fmt.Sprint(config.HealthPort))
	healthListener, err := net.Listen("tcp", healthAddress)
	if err != nil {
		return exitRuntime, fmt.Errorf("failed to listen on %s: %w", healthAddress, err)
	}
	grpcServer := grpc.NewServer()
	healthServer := health.NewServer()
	healthpb.RegisterHealthServer(grpcServer, healthServer)

	// 6. Run everything until a signal or the first failure
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("Starting orchestrator...")
		return orchestrator.Start(gctx)
	})
	g.Go(func() error {
		log.Info("Starting websocket server", "address", address, "at", time.Now().UTC())
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("websocket server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		log.Info("Starting gRPC health server", "address", healthAddress)
		healthServer.SetServingStatus(serviceName, healthpb.HealthCheckResponse_SERVING)
		if err := grpcServer.Serve(healthListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			return fmt.Errorf("gRPC health server error: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down gracefully...")
		healthServer.Shutdown()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			log.Warn("Websocket server shutdown incomplete", "error", err)
		}
		wsServer.Shutdown()
		orchestrator.Stop()
		grpcServer.GracefulStop()
		return nil
	})

	if err := g.Wait(); err != nil {
		return exitRuntime, err
	}
	log.Info("Program stopped cleanly")
	return exitOK, nil
}
