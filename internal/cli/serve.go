package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-hclog"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"

	"github.com/heysubinoy/asyncstore/internal/api"
	"github.com/heysubinoy/asyncstore/internal/store"
	"github.com/heysubinoy/asyncstore/pkg/config"
	"github.com/heysubinoy/asyncstore/pkg/kv"
)

const (
	leaderWaitTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	ConfigPath string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the storage server",
		Long: `Run the storage server with HTTP and gRPC listeners.

Configuration comes from the --config YAML file, overridden by ASYNCSTORE_*
environment variables.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig(opts.ConfigPath)
			if err != nil {
				formatter := &OutputFormatter{Format: rootOpts.Format, Writer: cmd.OutOrStdout()}
				_ = formatter.Error(ErrCodeConfig, err.Error(), nil)
				return WrapExitError(ExitCommandError, "load config", err)
			}
			if rootOpts.Verbose {
				cfg.LogLevel = "debug"
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg, newLogger(cfg, cmd.ErrOrStderr()))
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigPath, "config", "c", "", "path to YAML config file")

	return cmd
}

func newLogger(cfg *config.Config, w io.Writer) hclog.Logger {
	return hclog.New(&hclog.LoggerOptions{
		Name:       "asyncstore",
		Level:      hclog.LevelFromString(cfg.LogLevel),
		JSONFormat: cfg.LogJSON,
		Output:     w,
	})
}

// serve runs both listeners until ctx is cancelled or one of them fails.
func serve(ctx context.Context, cfg *config.Config, logger hclog.Logger) error {
	backend, err := store.Open(ctx, cfg, logger)
	if err != nil {
		return WrapExitError(ExitFailure, "open backend", err)
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Error("failed to close backend", "error", err)
		}
	}()

	if backend.Raft != nil && cfg.Raft.Leader {
		rs := backend.Store.Unwrap().(*store.RaftStore)
		if err := rs.WaitForLeader(leaderWaitTimeout); err != nil {
			return WrapExitError(ExitFailure, "wait for leader", err)
		}
		logger.Info("raft leader elected")
	}

	storage := kv.New(backend.Store, kv.WithLogger(logger.Named("kv")))

	httpSrv := api.NewServer(storage, backend.Raft, logger.Named("http"))
	httpSrv.HTTPPort = portOf(cfg.HTTPAddr)
	httpServer := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpSrv.Handler(api.RegisterMetrics(backend.Store)),
	}

	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		return WrapExitError(ExitFailure, "listen on "+cfg.GRPCAddr, err)
	}
	grpcServer := grpc.NewServer()
	api.RegisterStorageServer(grpcServer, api.NewGRPCServer(storage, logger.Named("grpc")))

	errCh := make(chan error, 2)
	go func() {
		logger.Info("gRPC server listening", "addr", cfg.GRPCAddr)
		if err := grpcServer.Serve(lis); err != nil {
			errCh <- fmt.Errorf("serve gRPC: %w", err)
		}
	}()
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr, "backend", cfg.Backend)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("serve HTTP: %w", err)
		}
	}()

	var serveErr error
	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case serveErr = <-errCh:
		logger.Error("server failed", "error", serveErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("HTTP shutdown", "error", err)
	}
	grpcServer.GracefulStop()

	if serveErr != nil {
		return WrapExitError(ExitFailure, "server failed", serveErr)
	}
	return nil
}

// portOf returns the ":port" part of addr.
func portOf(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return ":" + port
}
