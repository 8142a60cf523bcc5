// Package firesource replays a recorded fire-event timeline against the
// scheduler over UDP, honoring each line's HH:MM:SS offset and retrying
// unacknowledged sends up to a fixed resend count.
package firesource

import (
	"context"
	"net"
	"time"

	"go.uber.org/zap"

	"firedrone/internal/clock"
	"firedrone/internal/config"
	"firedrone/internal/eventfile"
	"firedrone/internal/logging"
	"firedrone/internal/metrics"
	"firedrone/internal/udpconn"
	"firedrone/internal/wire"
)

// Source replays a parsed event timeline against the scheduler.
type Source struct {
	cfg           *config.Config
	logger        *zap.Logger
	sink          *metrics.Sink
	clock         clock.Clock
	schedulerAddr *net.UDPAddr
	sleep         func(time.Duration)
}

// New builds a Source targeting schedulerAddr.
func New(cfg *config.Config, logger *zap.Logger, sink *metrics.Sink, clk clock.Clock, schedulerAddr *net.UDPAddr) *Source {
	if sink == nil {
		sink = metrics.NewSink()
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Source{
		cfg:           cfg,
		logger:        logging.OrNop(logger),
		sink:          sink,
		clock:         clk,
		schedulerAddr: schedulerAddr,
		sleep:         time.Sleep,
	}
}

// Replay sends every well-formed line in lines to the scheduler, in file
// order, waiting for each line's HH:MM:SS offset relative to the first
// line before sending it.
func (s *Source) Replay(ctx context.Context, conn *udpconn.Conn, lines []eventfile.Line) error {
	var t0 time.Time
	haveT0 := false
	start := s.clock.Now()

	for _, line := range lines {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if line.Err != nil {
			s.logger.Warn("skipping malformed fire event line", zap.String("raw", line.Raw), zap.Error(line.Err))
			continue
		}
		t, err := time.Parse("15:04:05", line.Message.Time)
		if err != nil {
			s.logger.Warn("skipping fire event with unparseable time", zap.String("raw", line.Raw), zap.Error(err))
			continue
		}
		if !haveT0 {
			t0, haveT0 = t, true
		}
		s.waitUntil(ctx, start.Add(t.Sub(t0)))
		if ctx.Err() != nil {
			return ctx.Err()
		}
		s.sendWithRetry(ctx, conn, line.Message)
	}
	return nil
}

func (s *Source) waitUntil(ctx context.Context, when time.Time) {
	for {
		d := when.Sub(s.clock.Now())
		if d <= 0 {
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.sleep(d)
	}
}

// sendWithRetry sends msg and waits up to AckTimeout for an echoed
// acknowledgement, resending up to ResendCount times before giving up and
// logging the fire as unfulfilled.
func (s *Source) sendWithRetry(ctx context.Context, conn *udpconn.Conn, msg wire.FireEventMessage) {
	raw := wire.FormatFireEvent(msg)
	for attempt := 0; attempt <= s.cfg.ResendCount; attempt++ {
		if err := conn.SendString(raw, s.schedulerAddr); err != nil {
			s.logger.Warn("send fire event failed", zap.Error(err))
			continue
		}
		if s.awaitAck(ctx, conn, raw) {
			return
		}
		s.logger.Info("no ack for fire event, retrying",
			zap.Int("zone_id", msg.ZoneID), zap.Int("attempt", attempt+1))
	}
	s.logger.Warn("fire event unfulfilled after retries", zap.Int("zone_id", msg.ZoneID))
	s.sink.FiresUnfulfilled.Inc()
}

func (s *Source) awaitAck(ctx context.Context, conn *udpconn.Conn, expect string) bool {
	timer := time.NewTimer(s.cfg.AckTimeout)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return false
		case dg := <-conn.Inbound():
			if string(dg.Data) == expect {
				return true
			}
		case <-timer.C:
			return false
		}
	}
}
