// Package droneagent simulates a single drone: its lifecycle state
// machine, motion model, tank economics and fault injection, driven by a
// single goroutine reading UDP datagrams and a fixed-tick simulation loop.
package droneagent

import (
	"context"
	"math"
	"net"
	"strings"
	"time"

	"go.uber.org/zap"

	"firedrone/internal/clock"
	"firedrone/internal/config"
	"firedrone/internal/geo"
	"firedrone/internal/logging"
	"firedrone/internal/model"
	"firedrone/internal/udpconn"
	"firedrone/internal/wire"
)

// simTick is the physics/logic granularity of the drone's simulation loop.
// It is independent of the scheduler's TickInterval and the status
// emission cadence (T_status).
const simTick = 100 * time.Millisecond

// Agent simulates one drone's full mission lifecycle.
type Agent struct {
	id     int
	base   model.Location
	spec   model.DroneSpec
	cfg    *config.Config
	logger *zap.Logger
	clock  clock.Clock

	schedulerAddr *net.UDPAddr

	state model.DroneState
	posX  float64
	posY  float64
	target model.Location
	velocity float64

	currentZoneID   int
	currentSeverity model.Severity
	awaitingZoneID  *int

	pendingFault   model.FaultKind
	faultTriggered bool
	faultDeadline  time.Time
	returningFrom  model.Location

	extinguishUsed    float64
	capacityRemaining float64
	hasFireOut        bool
	fireOutZoneID     int

	zonesServiced int
	stateChanged  bool
}

// New builds an Agent for droneID, starting Idle at base with the given
// drone spec (§4.1's constant profile).
func New(droneID int, base model.Location, spec model.DroneSpec, cfg *config.Config, logger *zap.Logger, clk clock.Clock, schedulerAddr *net.UDPAddr) *Agent {
	if clk == nil {
		clk = clock.Real{}
	}
	return &Agent{
		id:                droneID,
		base:              base,
		spec:              spec,
		cfg:               cfg,
		logger:            logging.OrNop(logger),
		clock:             clk,
		schedulerAddr:     schedulerAddr,
		state:             model.StateIdle,
		posX:              float64(base.X),
		posY:              float64(base.Y),
		target:            base,
		capacityRemaining: spec.TankCapacity,
	}
}

// Run drives the agent's simulation loop until ctx is cancelled.
func (a *Agent) Run(ctx context.Context, conn *udpconn.Conn) error {
	simTicker := time.NewTicker(simTick)
	defer simTicker.Stop()
	statusTicker := time.NewTicker(a.cfg.StatusInterval)
	defer statusTicker.Stop()

	a.emitStatus(conn)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case dg := <-conn.Inbound():
			a.handleDatagram(dg, conn)
		case <-simTicker.C:
			a.advance(simTick)
			if a.stateChanged {
				a.emitStatus(conn)
				a.stateChanged = false
			}
		case <-statusTicker.C:
			a.emitStatus(conn)
		}
	}
}

func (a *Agent) handleDatagram(dg udpconn.Datagram, conn *udpconn.Conn) {
	line := strings.TrimSpace(string(dg.Data))
	if line == "" {
		return
	}
	switch {
	case strings.HasPrefix(line, wire.ZoneInfoPrefix):
		info, err := wire.ParseZoneInfo(line)
		if err != nil || a.awaitingZoneID == nil || *a.awaitingZoneID != info.ZoneID {
			return
		}
		a.target = info.Center
		a.state = model.StateEnRoute
		a.awaitingZoneID = nil
		a.stateChanged = true
	case wire.IsDroneStatus(line):
		// Drones never receive other drones' statuses on their own
		// socket in this topology; ignore defensively.
	default:
		msg, err := wire.ParseFireEvent(line, nil)
		if err != nil || msg.DroneID == nil || *msg.DroneID != a.id {
			return
		}
		a.acceptAssignment(msg, conn)
	}
}

func (a *Agent) acceptAssignment(msg wire.FireEventMessage, conn *udpconn.Conn) {
	if a.state != model.StateIdle {
		return
	}
	a.currentZoneID = msg.ZoneID
	a.currentSeverity = msg.Severity
	a.pendingFault = msg.Error
	a.faultTriggered = false
	zoneID := msg.ZoneID
	a.awaitingZoneID = &zoneID
	_ = conn.SendString(wire.FormatZoneInfoRequest(zoneID), a.schedulerAddr)
}

// advance steps the simulation by dt according to the current state.
func (a *Agent) advance(dt time.Duration) {
	switch a.state {
	case model.StateEnRoute:
		if a.moveToward(a.target, dt) {
			a.state = model.StateAtLocation
			a.extinguishUsed = 0
			a.stateChanged = true
			return
		}
		if a.dueToFault(model.FaultDroneStuck, model.FaultArrivalSensorFailed) && a.pastHalfway(a.base, a.target) {
			a.triggerFault()
		}
	case model.StateAtLocation:
		dropNeeded := math.Min(a.spec.TankCapacity, model.DropLiters)
		a.extinguishUsed += a.spec.FlowRate * dt.Seconds()
		if a.dueToFault(model.FaultNozzleJam) && a.extinguishUsed/dropNeeded >= 0.5 {
			a.triggerFault()
			return
		}
		if a.extinguishUsed >= dropNeeded {
			a.capacityRemaining -= dropNeeded
			a.hasFireOut = true
			a.fireOutZoneID = a.currentZoneID
			a.returningFrom = a.positionInt()
			a.state = model.StateReturning
			a.target = a.base
			a.stateChanged = true
		}
	case model.StateReturning:
		if a.moveToward(a.base, dt) {
			a.state = model.StateArrivedAtBase
			a.stateChanged = true
			return
		}
		if a.dueToFault(model.FaultDoorStuck) && a.pastHalfway(a.returningFrom, a.base) {
			a.triggerFault()
		}
	case model.StateArrivedAtBase:
		a.capacityRemaining = a.spec.TankCapacity
		a.currentZoneID = 0
		a.zonesServiced++
		a.state = model.StateIdle
		a.stateChanged = true
	case model.StateFault:
		if !a.clock.Now().Before(a.faultDeadline) {
			a.state = model.StateIdle
			a.currentZoneID = 0
			a.stateChanged = true
		}
	case model.StateIdle, model.StateHardShutdown:
		// terminal/steady states: nothing to do until external input.
	}
}

// dueToFault reports whether the mission's scheduled fault is one of kinds
// and has not yet fired, per §4.2's state-specific fault mapping
// (EnRoute→DroneStuck/ArrivalSensorFailed, AtLocation→NozzleJam,
// ReturningToBase→DoorStuck).
func (a *Agent) dueToFault(kinds ...model.FaultKind) bool {
	if a.faultTriggered || a.pendingFault == model.FaultNone {
		return false
	}
	for _, k := range kinds {
		if a.pendingFault == k {
			return true
		}
	}
	return false
}

func (a *Agent) pastHalfway(from, to model.Location) bool {
	total := geo.Distance(from, to)
	if total == 0 {
		return true
	}
	remaining := geo.Distance(a.positionInt(), to)
	return float64(total-remaining)/float64(total) >= 0.5
}

// triggerFault fires the scheduled mid-mission fault: hard faults
// (NozzleJam, DoorStuck) terminate the drone in HardShutdown; soft faults
// (DroneStuck, ArrivalSensorFailed) enter the recoverable Fault state and
// reset to Idle on recovery. The mission itself is not resumed; the
// scheduler recalls it on observing the Fault status and may reassign a
// (possibly different) free drone.
func (a *Agent) triggerFault() {
	a.faultTriggered = true
	if a.pendingFault.IsHard() {
		a.state = model.StateHardShutdown
		a.stateChanged = true
		a.logger.Warn("hard fault", zap.Int("drone_id", a.id), zap.String("fault", string(a.pendingFault)))
		return
	}
	a.state = model.StateFault
	a.faultDeadline = a.clock.Now().Add(a.cfg.SoftFaultRecovery)
	a.stateChanged = true
	a.logger.Info("soft fault", zap.Int("drone_id", a.id), zap.String("fault", string(a.pendingFault)))
}

// moveToward steps position toward target at the acceleration-ramped
// speed, along an axis-aligned (Manhattan) path: x first, then y. Returns
// true once the drone has arrived.
func (a *Agent) moveToward(target model.Location, dt time.Duration) bool {
	a.velocity = math.Min(a.spec.MaxSpeed, a.velocity+a.spec.Acceleration*dt.Seconds())
	remaining := a.velocity * dt.Seconds()

	if dx := float64(target.X) - a.posX; math.Abs(dx) > 1e-9 && remaining > 0 {
		step := math.Min(remaining, math.Abs(dx))
		if dx > 0 {
			a.posX += step
		} else {
			a.posX -= step
		}
		remaining -= step
	}
	if dy := float64(target.Y) - a.posY; math.Abs(dy) > 1e-9 && remaining > 0 {
		step := math.Min(remaining, math.Abs(dy))
		if dy > 0 {
			a.posY += step
		} else {
			a.posY -= step
		}
	}

	arrived := math.Abs(a.posX-float64(target.X)) < 0.5 && math.Abs(a.posY-float64(target.Y)) < 0.5
	if arrived {
		a.posX, a.posY = float64(target.X), float64(target.Y)
		a.velocity = 0
	}
	return arrived
}

func (a *Agent) positionInt() model.Location {
	return model.Location{X: int(math.Round(a.posX)), Y: int(math.Round(a.posY))}
}

func (a *Agent) emitStatus(conn *udpconn.Conn) {
	msg := wire.DroneStatusMessage{
		DroneID:        a.id,
		State:          a.state,
		X:              int(math.Round(a.posX)),
		Y:              int(math.Round(a.posY)),
		HasCapacity:    true,
		CapacityLiters: a.capacityRemaining,
	}
	if a.currentZoneID != 0 && a.state != model.StateIdle && a.state != model.StateArrivedAtBase && a.state != model.StateHardShutdown {
		msg.HasTask = true
		msg.TaskZoneID = a.currentZoneID
		msg.TaskSeverity = a.currentSeverity
	}
	if a.hasFireOut {
		msg.HasFireOut = true
		msg.FireOutZoneID = a.fireOutZoneID
		a.hasFireOut = false
	}
	_ = conn.SendString(wire.FormatDroneStatus(msg), a.schedulerAddr)
}

// State returns the agent's current lifecycle state (test/introspection use).
func (a *Agent) State() model.DroneState { return a.state }

// ZonesServiced returns the number of completed round trips.
func (a *Agent) ZonesServiced() int { return a.zonesServiced }
