// Command firesource replays a recorded fire-event timeline against the
// scheduler over UDP, retrying unacknowledged events.
package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firedrone/internal/config"
	"firedrone/internal/eventfile"
	"firedrone/internal/firesource"
	"firedrone/internal/logging"
	"firedrone/internal/metrics"
	"firedrone/internal/udpconn"
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
		Use:   "firesource [fire-events-file]",
		Short: "Replay a recorded fire-event timeline against the scheduler",
		Args:  cobra.MaximumNArgs(1),
		RunE:  run,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return &configError{fmt.Errorf("load config: %w", err)}
	}
	if len(args) == 1 {
		cfg.FireEventsFile = args[0]
	}

	logger, err := logging.New("firesource")
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	lines, err := eventfile.Load(cfg.FireEventsFile, rand.New(rand.NewSource(1)))
	if err != nil {
		return fmt.Errorf("load fire events: %w", err)
	}
	logger.Info("loaded fire event timeline", zap.Int("events", len(lines)))

	schedulerAddr, err := udpconn.ResolveAddr(cfg.SchedulerAddr())
	if err != nil {
		return fmt.Errorf("resolve scheduler address: %w", err)
	}

	sink := metrics.NewSink()
	go serveMetrics(cfg.MetricsAddr, sink, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := udpconn.Listen(ctx, cfg.FireSourcePort, cfg.SocketTimeout)
	if err != nil {
		return &bindError{fmt.Errorf("listen udp: %w", err)}
	}
	defer conn.Close()

	src := firesource.New(cfg, logger, sink, nil, schedulerAddr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := src.Replay(ctx, conn, lines); err != nil && ctx.Err() == nil {
		return fmt.Errorf("replay: %w", err)
	}
	logger.Info("fire event timeline replay complete")
	return nil
}

func serveMetrics(addr string, sink *metrics.Sink, logger *zap.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", sink.Handler())
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Warn("metrics server stopped", zap.Error(err))
	}
}
