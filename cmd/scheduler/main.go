// Command scheduler runs the fleet coordinator: it listens for fire
// events and drone status on its UDP port, dispatches drones to fires and
// exposes Prometheus metrics.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firedrone/internal/config"
	"firedrone/internal/logging"
	"firedrone/internal/metrics"
	"firedrone/internal/scheduler"
	"firedrone/internal/tracing"
	"firedrone/internal/udpconn"
	"firedrone/internal/zonefile"
)

// configError and bindError distinguish the two fatal startup failures the
// process reports with a dedicated exit code; any other error exits 1.
type configError struct{ err error }

func (e *configError) Error() string { return e.err.Error() }
func (e *configError) Unwrap() error { return e.err }

type bindError struct{ err error }

func (e *bindError) Error() string { return e.err.Error() }
func (e *bindError) Unwrap() error { return e.err }

func main() {
	cmd := newCommand()
	if err := cmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

// exitCode maps a fatal startup error to its process exit code: 2 for a
// configuration error, 3 for a UDP bind failure, 1 for anything else.
func exitCode(err error) int {
	var cfgErr *configError
	var bErr *bindError
	switch {
	case errors.As(err, &cfgErr):
		return 2
	case errors.As(err, &bErr):
		return 3
	default:
		return 1
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scheduler",
		Short: "Run the fire-response fleet scheduler",
		RunE:  run,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return &configError{fmt.Errorf("load config: %w", err)}
	}

	logger, err := logging.New("scheduler")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck
	logger.Info("starting scheduler", zap.String("config", cfg.String()))

	zones, err := zonefile.Load(cfg.ZonesFile)
	if err != nil {
		return fmt.Errorf("load zones: %w", err)
	}

	tp := tracing.NewProvider("firedrone-scheduler")
	defer tp.Shutdown(context.Background()) //nolint:errcheck

	sink := metrics.NewSink()
	go serveMetrics(cfg.MetricsAddr, sink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := udpconn.Listen(ctx, cfg.SchedulerPort, cfg.SocketTimeout)
	if err != nil {
		return &bindError{fmt.Errorf("listen udp: %w", err)}
	}
	defer conn.Close()

	sched := scheduler.NewScheduler(cfg, zones, logger, sink, tracing.Tracer("firedrone/scheduler"), nil)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := sched.Run(ctx, conn); err != nil && ctx.Err() == nil {
		return fmt.Errorf("scheduler run: %w", err)
	}
	return nil
}

func serveMetrics(addr string, sink *metrics.Sink, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
