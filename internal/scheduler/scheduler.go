// Package scheduler implements the fleet coordinator: a single owner task
// holds the authoritative drone table, zone table and pending-fire queue,
// and all mutations go through its job mailbox. External callers that
// need a synchronous read (Snapshot) submit a closure and block on its
// result instead of taking a lock.
package scheduler

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"firedrone/internal/clock"
	"firedrone/internal/config"
	"firedrone/internal/logging"
	"firedrone/internal/metrics"
	"firedrone/internal/model"
	"firedrone/internal/udpconn"
	"firedrone/internal/wire"
)

// FleetSnapshot is a read-only copy of the scheduler's fleet state, safe to
// inspect outside the owner goroutine.
type FleetSnapshot struct {
	Drones []model.DroneStatus
	Fires  []model.FireEvent
}

// Scheduler is the fleet coordinator. All of its fields below are mutated
// exclusively from the goroutine running Run; external callers only ever
// reach them via the jobs mailbox.
type Scheduler struct {
	cfg    *config.Config
	logger *zap.Logger
	sink   *metrics.Sink
	tracer trace.Tracer
	clock  clock.Clock

	jobs chan func()

	drones    map[int]*model.DroneStatus
	droneAddr map[int]*net.UDPAddr
	lastRaw   map[int]string

	zones map[int]*model.Zone
	fires map[int]*model.FireEvent
	order []int

	admittedAt   map[int]time.Time
	dispatchedAt map[int]time.Time

	fireSourceAddr *net.UDPAddr
}

// NewScheduler builds a Scheduler seeded with the given zone table.
func NewScheduler(cfg *config.Config, zones []model.Zone, logger *zap.Logger, sink *metrics.Sink, tracer trace.Tracer, clk clock.Clock) *Scheduler {
	zm := make(map[int]*model.Zone, len(zones))
	for i := range zones {
		z := zones[i]
		zm[z.ID] = &z
	}
	if sink == nil {
		sink = metrics.NewSink()
	}
	if tracer == nil {
		tracer = otel.Tracer("firedrone/scheduler")
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Scheduler{
		cfg:          cfg,
		logger:       logging.OrNop(logger),
		sink:         sink,
		tracer:       tracer,
		clock:        clk,
		jobs:         make(chan func(), 32),
		drones:       make(map[int]*model.DroneStatus),
		droneAddr:    make(map[int]*net.UDPAddr),
		lastRaw:      make(map[int]string),
		zones:        zm,
		fires:        make(map[int]*model.FireEvent),
		admittedAt:   make(map[int]time.Time),
		dispatchedAt: make(map[int]time.Time),
	}
}

// Run drives the tick loop until ctx is cancelled: drain inbound
// datagrams, attempt assignments for pending fires, detect stalled
// drones, and log a fleet summary, once per TickInterval (spec §4.1).
func (s *Scheduler) Run(ctx context.Context, conn *udpconn.Conn) error {
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case job := <-s.jobs:
			job()
		case <-ticker.C:
			s.tick(conn)
		}
	}
}

// Snapshot returns a copy of the current fleet and fire state, safe to use
// from any goroutine (it round-trips through the owner's job mailbox).
func (s *Scheduler) Snapshot() FleetSnapshot {
	reply := make(chan FleetSnapshot, 1)
	s.jobs <- func() {
		snap := FleetSnapshot{}
		for _, d := range s.drones {
			snap.Drones = append(snap.Drones, *d)
		}
		for _, f := range s.fires {
			snap.Fires = append(snap.Fires, *f)
		}
		reply <- snap
	}
	return <-reply
}

func (s *Scheduler) tick(conn *udpconn.Conn) {
	now := s.clock.Now()
	s.drainInbound(conn, now)
	s.dispatchPending(conn, now)
	s.detectStalls(now)
	s.logSummary()
}

func (s *Scheduler) drainInbound(conn *udpconn.Conn, now time.Time) {
	for {
		select {
		case dg := <-conn.Inbound():
			s.handleDatagram(dg, conn, now)
		default:
			return
		}
	}
}

func (s *Scheduler) handleDatagram(dg udpconn.Datagram, conn *udpconn.Conn, now time.Time) {
	line := strings.TrimSpace(string(dg.Data))
	if line == "" {
		return
	}
	switch {
	case strings.HasPrefix(line, wire.ZoneInfoRequestPrefix):
		s.handleZoneInfoRequest(line, dg.Addr, conn)
	case wire.IsDroneStatus(line):
		msg, err := wire.ParseDroneStatus(line)
		if err != nil {
			s.logger.Warn("malformed drone status", zap.String("line", line), zap.Error(err))
			return
		}
		s.handleDroneStatus(line, msg, dg.Addr, conn, now)
	default:
		msg, err := wire.ParseFireEvent(line, nil)
		if err != nil {
			s.logger.Warn("malformed fire event", zap.String("line", line), zap.Error(err))
			return
		}
		s.handleFireEvent(msg, dg.Addr, conn, now)
	}
}

func (s *Scheduler) handleZoneInfoRequest(line string, addr *net.UDPAddr, conn *udpconn.Conn) {
	zoneID, err := wire.ParseZoneInfoRequest(line)
	if err != nil {
		return
	}
	center := s.zoneFor(zoneID).Center()
	_ = conn.SendString(wire.FormatZoneInfo(wire.ZoneInfo{ZoneID: zoneID, Center: center}), addr)
}

func (s *Scheduler) handleFireEvent(msg wire.FireEventMessage, addr *net.UDPAddr, conn *udpconn.Conn, now time.Time) {
	s.fireSourceAddr = addr
	if existing, ok := s.fires[msg.ZoneID]; ok && existing != nil {
		// Duplicate admission for an already-active fire: ack and ignore,
		// matching the retry tolerance of §7.
		_ = conn.SendString(wire.FormatFireEvent(msg), addr)
		return
	}

	fire := &model.FireEvent{
		Time:      msg.Time,
		ZoneID:    msg.ZoneID,
		Kind:      msg.Kind,
		Severity:  msg.Severity,
		Error:     msg.Error,
		MissionID: uuid.NewString(),
	}
	s.fires[msg.ZoneID] = fire
	s.order = append(s.order, msg.ZoneID)
	s.admittedAt[msg.ZoneID] = now

	zone := s.zoneFor(msg.ZoneID)
	zone.HasFire = true
	zone.Severity = msg.Severity

	s.sink.FiresAdmitted.Inc()
	_, span := s.tracer.Start(context.Background(), "fire.admit",
		trace.WithAttributes(
			attribute.Int("zone_id", msg.ZoneID),
			attribute.String("severity", string(msg.Severity)),
			attribute.String("mission_id", fire.MissionID),
		))
	span.End()
	s.logger.Info("fire admitted",
		zap.Int("zone_id", msg.ZoneID),
		zap.String("severity", string(msg.Severity)),
		zap.String("mission_id", fire.MissionID))

	_ = conn.SendString(wire.FormatFireEvent(msg), addr)
}

func (s *Scheduler) handleDroneStatus(raw string, msg wire.DroneStatusMessage, addr *net.UDPAddr, conn *udpconn.Conn, now time.Time) {
	d, ok := s.drones[msg.DroneID]
	if !ok {
		d = &model.DroneStatus{
			ID:                msg.DroneID,
			State:             model.StateIdle,
			CapacityRemaining: model.DefaultDroneSpec.TankCapacity,
		}
		s.drones[msg.DroneID] = d
	}
	s.droneAddr[msg.DroneID] = addr

	// Idempotence: an identical re-delivery of a prior datagram (network
	// duplication) only refreshes the last-seen timestamp.
	if s.lastRaw[msg.DroneID] == raw {
		d.LastSeenAt = now.UnixNano()
		return
	}
	s.lastRaw[msg.DroneID] = raw

	if msg.State != d.State {
		d.LastProgressAt = now.UnixNano()
	}
	priorTask := d.CurrentTask
	d.State = msg.State
	d.CurrentLocation = model.Location{X: msg.X, Y: msg.Y}
	d.LastSeenAt = now.UnixNano()
	if msg.HasCapacity {
		d.CapacityRemaining = msg.CapacityLiters
	}

	switch msg.State {
	case model.StateArrivedAtBase:
		if priorTask != nil {
			d.ZonesServiced++
		}
		d.CurrentTask = nil
	case model.StateIdle:
		d.CurrentTask = nil
	case model.StateFault:
		// Soft hardware fault: recall the mission immediately rather than
		// waiting for stall detection; the drone reports itself back to
		// Idle once recovered and becomes eligible for reassignment.
		s.recallTask(d)
	case model.StateHardShutdown:
		if !d.HardFault {
			d.HardFault = true
			s.sink.HardFaults.Inc()
			s.recallTask(d)
		}
	}

	if msg.HasFireOut {
		s.recordDrop(msg.FireOutZoneID, now, conn)
	}
}

func (s *Scheduler) recordDrop(zoneID int, now time.Time, conn *udpconn.Conn) {
	fire, ok := s.fires[zoneID]
	if !ok {
		return
	}
	fire.DropsCompleted++
	if !fire.Cleared() {
		return
	}
	zone := s.zoneFor(zoneID)
	zone.HasFire = false
	s.sink.FiresCleared.Inc()
	if started, ok := s.dispatchedAt[zoneID]; ok {
		s.sink.DispatchToExtinguish.Observe(now.Sub(started).Seconds())
		delete(s.dispatchedAt, zoneID)
	}
	delete(s.fires, zoneID)
	delete(s.admittedAt, zoneID)
	if s.fireSourceAddr != nil && conn != nil {
		_ = conn.SendString(fmt.Sprintf("CLEARED:%d", zoneID), s.fireSourceAddr)
	}
}

// dispatchPending attempts one more assignment per under-staffed pending
// fire, in admission order, redirecting the chosen drone to a higher
// priority under-staffed fire when one exists (spec §4.1 priority
// redirection).
func (s *Scheduler) dispatchPending(conn *udpconn.Conn, now time.Time) {
	for _, zoneID := range s.order {
		fire, ok := s.fires[zoneID]
		if !ok {
			continue
		}
		required := fire.Severity.RequiredDrones()
		if len(fire.AssignedDrones) >= required {
			continue
		}
		candidates := s.availableDrones(fire)
		if len(candidates) == 0 {
			continue
		}
		chosen := selectBest(candidates, s.zoneFor(zoneID).Center())

		targetZoneID, targetFire := zoneID, fire
		if redirectZoneID, redirectFire, ok := s.higherPriorityUnderstaffed(zoneID, fire.Severity); ok {
			targetZoneID, targetFire = redirectZoneID, redirectFire
		}
		s.assign(chosen, targetZoneID, targetFire, conn, now)
	}
}

func (s *Scheduler) availableDrones(fire *model.FireEvent) []*model.DroneStatus {
	var out []*model.DroneStatus
	for _, d := range s.drones {
		if d.IsAvailable() && !fire.HasDrone(d.ID) {
			out = append(out, d)
		}
	}
	return out
}

// higherPriorityUnderstaffed finds the highest-weight active fire, other
// than excludeZoneID, that still needs more drones than it has assigned.
func (s *Scheduler) higherPriorityUnderstaffed(excludeZoneID int, base model.Severity) (int, *model.FireEvent, bool) {
	bestZoneID := 0
	var bestFire *model.FireEvent
	for _, zoneID := range s.order {
		if zoneID == excludeZoneID {
			continue
		}
		fire, ok := s.fires[zoneID]
		if !ok {
			continue
		}
		if fire.Severity.Weight() <= base.Weight() {
			continue
		}
		if len(fire.AssignedDrones) >= fire.Severity.RequiredDrones() {
			continue
		}
		if bestFire == nil || fire.Severity.Weight() > bestFire.Severity.Weight() || (fire.Severity.Weight() == bestFire.Severity.Weight() && zoneID < bestZoneID) {
			bestZoneID, bestFire = zoneID, fire
		}
	}
	return bestZoneID, bestFire, bestFire != nil
}

func (s *Scheduler) assign(d *model.DroneStatus, zoneID int, fire *model.FireEvent, conn *udpconn.Conn, now time.Time) {
	fire.AssignedDrones = append(fire.AssignedDrones, d.ID)
	d.State = model.StateEnRoute
	d.CurrentTask = fire
	d.TargetLocation = s.zoneFor(zoneID).Center()
	d.LastProgressAt = now.UnixNano()

	if len(fire.AssignedDrones) == 1 {
		if admitted, ok := s.admittedAt[zoneID]; ok {
			s.sink.DetectToDispatch.Observe(now.Sub(admitted).Seconds())
		}
		s.dispatchedAt[zoneID] = now
	}

	s.sink.AssignmentsMade.Inc()
	_, span := s.tracer.Start(context.Background(), "scheduler.assign",
		trace.WithAttributes(
			attribute.Int("drone_id", d.ID),
			attribute.Int("zone_id", zoneID),
			attribute.String("mission_id", fire.MissionID),
		))
	span.End()

	addr := s.droneAddr[d.ID]
	if addr == nil {
		s.logger.Warn("assigned drone with no known address yet", zap.Int("drone_id", d.ID))
		return
	}
	droneID := d.ID
	msg := wire.FireEventMessage{
		Time:     fire.Time,
		ZoneID:   zoneID,
		Kind:     fire.Kind,
		Severity: fire.Severity,
		Error:    fire.Error,
		DroneID:  &droneID,
	}
	_ = conn.SendString(wire.FormatFireEvent(msg), addr)
}

// detectStalls marks any non-idle, non-faulted drone that has not changed
// state within StallTimeout as faulted and recalls its task so it can be
// reassigned (spec §4.1 "stall detection").
func (s *Scheduler) detectStalls(now time.Time) {
	for _, d := range s.drones {
		if d.HardFault || d.State == model.StateIdle || d.State == model.StateFault || d.State == model.StateHardShutdown {
			continue
		}
		elapsed := now.Sub(time.Unix(0, d.LastProgressAt))
		if elapsed <= s.cfg.StallTimeout {
			continue
		}
		d.State = model.StateFault
		d.LastProgressAt = now.UnixNano()
		s.sink.StallsDetected.Inc()
		s.recallTask(d)
		s.logger.Info("drone stalled, task recalled", zap.Int("drone_id", d.ID))
	}
}

func (s *Scheduler) recallTask(d *model.DroneStatus) {
	if d.CurrentTask == nil {
		return
	}
	fire := d.CurrentTask
	fire.AssignedDrones = removeInt(fire.AssignedDrones, d.ID)
	d.CurrentTask = nil
}

func removeInt(ids []int, target int) []int {
	out := ids[:0]
	for _, id := range ids {
		if id != target {
			out = append(out, id)
		}
	}
	return out
}

func (s *Scheduler) zoneFor(zoneID int) *model.Zone {
	if z, ok := s.zones[zoneID]; ok {
		return z
	}
	z := &model.Zone{
		ID:          zoneID,
		TopLeft:     model.GridFallbackCenter(zoneID),
		BottomRight: model.GridFallbackCenter(zoneID),
	}
	s.zones[zoneID] = z
	return z
}

func (s *Scheduler) logSummary() {
	pending := 0
	for _, zoneID := range s.order {
		if _, ok := s.fires[zoneID]; ok {
			pending++
		}
	}
	s.logger.Debug("fleet tick",
		zap.Int("drones", len(s.drones)),
		zap.Int("pending_fires", pending),
	)
}
