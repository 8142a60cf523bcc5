package droneagent

import (
	"context"
	"fmt"
	"net"
	"testing"
	"time"

	"firedrone/internal/config"
	"firedrone/internal/model"
	"firedrone/internal/testutil"
	"firedrone/internal/udpconn"
	"firedrone/internal/wire"
)

func resolveSelf(t *testing.T, port int) (*net.UDPAddr, error) {
	t.Helper()
	return udpconn.ResolveAddr(fmt.Sprintf("127.0.0.1:%d", port))
}

func testConfig() *config.Config {
	return &config.Config{
		StatusInterval:    time.Second,
		SoftFaultRecovery: 5 * time.Second,
	}
}

func newTestAgent(t *testing.T) (*Agent, *testutil.FakeClock) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	conn := testutil.ListenLoopback(t, ctx)
	schedAddr, resolveErr := resolveSelf(t, conn.LocalPort())
	if resolveErr != nil {
		t.Fatalf("resolve: %v", resolveErr)
	}
	clk := testutil.NewFakeClock()
	a := New(1, model.Location{X: 0, Y: 0}, model.DefaultDroneSpec, testConfig(), nil, clk, schedAddr)
	return a, clk
}

func TestAgent_MissionWithoutFaultReturnsHomeAndResetsCapacity(t *testing.T) {
	a, clk := newTestAgent(t)
	a.target = model.Location{X: 20, Y: 0}
	a.currentZoneID = 7
	a.currentSeverity = model.SeverityLow
	a.state = model.StateEnRoute

	for i := 0; i < 2000 && a.State() != model.StateIdle; i++ {
		a.advance(simTick)
		clk.Advance(simTick)
	}
	if a.State() != model.StateIdle {
		t.Fatalf("expected mission to complete and return to idle, stuck at %s", a.State())
	}
	if a.ZonesServiced() != 1 {
		t.Fatalf("expected 1 zone serviced, got %d", a.ZonesServiced())
	}
	if a.capacityRemaining != a.spec.TankCapacity {
		t.Fatalf("expected capacity reset to tank capacity, got %f", a.capacityRemaining)
	}
}

func TestAgent_SoftFaultPausesThenRecoversToIdle(t *testing.T) {
	a, clk := newTestAgent(t)
	a.target = model.Location{X: 40, Y: 0}
	a.currentZoneID = 3
	a.currentSeverity = model.SeverityModerate
	a.pendingFault = model.FaultDroneStuck
	a.state = model.StateEnRoute

	for i := 0; i < 2000 && a.State() != model.StateFault; i++ {
		a.advance(simTick)
		clk.Advance(simTick)
	}
	if a.State() != model.StateFault {
		t.Fatalf("expected fault to trigger mid-mission, state=%s", a.State())
	}

	clk.Advance(a.cfg.SoftFaultRecovery + time.Second)
	a.advance(simTick)
	if a.State() != model.StateIdle {
		t.Fatalf("expected soft fault recovery to leave the drone Idle (mission not resumed), got %s", a.State())
	}
}

func TestAgent_DoorStuckFaultTriggersWhileReturning(t *testing.T) {
	a, clk := newTestAgent(t)
	a.currentZoneID = 4
	a.currentSeverity = model.SeverityModerate
	a.pendingFault = model.FaultDoorStuck
	a.state = model.StateReturning
	a.target = a.base
	a.returningFrom = model.Location{X: 40, Y: 0}
	a.posX, a.posY = 40, 0

	for i := 0; i < 2000 && a.State() != model.StateHardShutdown; i++ {
		a.advance(simTick)
		clk.Advance(simTick)
	}
	if a.State() != model.StateHardShutdown {
		t.Fatalf("expected DoorStuck to trigger a hard shutdown while returning, got %s", a.State())
	}
}

func TestAgent_HardFaultIsPermanent(t *testing.T) {
	a, clk := newTestAgent(t)
	a.currentZoneID = 3
	a.currentSeverity = model.SeverityModerate
	a.pendingFault = model.FaultNozzleJam
	a.state = model.StateAtLocation
	a.extinguishUsed = 0

	for i := 0; i < 2000 && a.State() != model.StateHardShutdown; i++ {
		a.advance(simTick)
		clk.Advance(simTick)
	}
	if a.State() != model.StateHardShutdown {
		t.Fatalf("expected hard shutdown, got %s", a.State())
	}
	for i := 0; i < 100; i++ {
		a.advance(simTick)
	}
	if a.State() != model.StateHardShutdown {
		t.Fatalf("hard shutdown must be terminal, got %s", a.State())
	}
}

func TestAgent_AcceptAssignment_SendsZoneInfoRequest(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	schedConn := testutil.ListenLoopback(t, ctx)
	droneSideConn := testutil.ListenLoopback(t, ctx)
	schedAddr, err := resolveSelf(t, schedConn.LocalPort())
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}

	a := New(2, model.Location{X: 0, Y: 0}, model.DefaultDroneSpec, testConfig(), nil, testutil.NewFakeClock(), schedAddr)

	droneID := 2
	assign := wire.FireEventMessage{Time: "14:00:00", ZoneID: 9, Kind: "FIRE_DETECTED", Severity: model.SeverityLow, DroneID: &droneID}
	a.acceptAssignment(assign, droneSideConn)

	line := testutil.RecvLine(t, schedConn, time.Second)
	zoneID, err := wire.ParseZoneInfoRequest(line)
	if err != nil || zoneID != 9 {
		t.Fatalf("expected zone info request for zone 9, got %q (err=%v)", line, err)
	}
}
