// Command drone runs a single simulated drone agent that listens for
// assignments from the scheduler and reports its status.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"firedrone/internal/config"
	"firedrone/internal/droneagent"
	"firedrone/internal/logging"
	"firedrone/internal/model"
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
		Use:   "drone <droneId> <baseX> <baseY>",
		Short: "Run a single simulated fire-response drone",
		Args:  cobra.ExactArgs(3),
		RunE:  run,
	}
	config.RegisterFlags(cmd.Flags())
	return cmd
}

func run(cmd *cobra.Command, args []string) error {
	droneID, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("invalid droneId %q: %w", args[0], err)
	}
	baseX, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid baseX %q: %w", args[1], err)
	}
	baseY, err := strconv.Atoi(args[2])
	if err != nil {
		return fmt.Errorf("invalid baseY %q: %w", args[2], err)
	}

	cfg, err := config.Load(cmd.Flags())
	if err != nil {
		return &configError{fmt.Errorf("load config: %w", err)}
	}

	logger, err := logging.New(fmt.Sprintf("drone%d", droneID))
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer logger.Sync() //nolint:errcheck

	schedulerAddr, err := udpconn.ResolveAddr(cfg.SchedulerAddr())
	if err != nil {
		return fmt.Errorf("resolve scheduler address: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	conn, err := udpconn.Listen(ctx, cfg.DronePort(droneID), cfg.SocketTimeout)
	if err != nil {
		return &bindError{fmt.Errorf("listen udp: %w", err)}
	}
	defer conn.Close()
	logger.Info("drone listening", zap.Int("port", conn.LocalPort()))

	base := model.Location{X: baseX, Y: baseY}
	agent := droneagent.New(droneID, base, model.DefaultDroneSpec, cfg, logger, nil, schedulerAddr)

	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigc
		logger.Info("shutdown signal received")
		cancel()
	}()

	if err := agent.Run(ctx, conn); err != nil && ctx.Err() == nil {
		return fmt.Errorf("drone run: %w", err)
	}
	return nil
}
