package scheduler

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

func testConfig() *config.Config {
	return &config.Config{
		TickInterval:   500 * time.Millisecond,
		StallTimeout:   30 * time.Second,
		StatusInterval: time.Second,
		SocketTimeout:  50 * time.Millisecond,
	}
}

func droneAddr(t *testing.T, conn *udpconn.Conn) *net.UDPAddr {
	t.Helper()
	addr, err := udpconn.ResolveAddr(fmt.Sprintf("127.0.0.1:%d", conn.LocalPort()))
	if err != nil {
		t.Fatalf("resolve loopback addr: %v", err)
	}
	return addr
}

func TestSelectBest_DeterministicTiebreak(t *testing.T) {
	target := model.Location{X: 0, Y: 0}
	candidates := []*model.DroneStatus{
		{ID: 12, ZonesServiced: 0, CurrentLocation: model.Location{X: 10, Y: 0}},
		{ID: 2, ZonesServiced: 0, CurrentLocation: model.Location{X: 10, Y: 0}},
		{ID: 1, ZonesServiced: 1, CurrentLocation: model.Location{X: 0, Y: 0}},
	}
	best := selectBest(candidates, target)
	if best.ID != 12 {
		t.Fatalf("expected drone 12 (fewer zones serviced tied, nearer tied, lexicographically first id: \"12\" < \"2\"), got %d", best.ID)
	}
}

func TestSelectBest_EmptyReturnsNil(t *testing.T) {
	if selectBest(nil, model.Location{}) != nil {
		t.Fatalf("expected nil for no candidates")
	}
}

func TestDispatch_AssignsAvailableDroneToPendingFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	zones := []model.Zone{{ID: 1, TopLeft: model.Location{X: 0, Y: 0}, BottomRight: model.Location{X: 10, Y: 10}}}
	s := NewScheduler(testConfig(), zones, nil, nil, nil, testutil.NewFakeClock())

	droneConn := testutil.ListenLoopback(t, ctx)
	schedConn := testutil.ListenLoopback(t, ctx)
	srcConn := testutil.ListenLoopback(t, ctx)
	addr := droneAddr(t, droneConn)
	srcAddr := droneAddr(t, srcConn)

	now := time.Now()
	statusMsg := wire.DroneStatusMessage{DroneID: 1, State: model.StateIdle, X: 0, Y: 0}
	s.handleDroneStatus(wire.FormatDroneStatus(statusMsg), statusMsg, addr, schedConn, now)

	// The fire source has its own address, so its admission ack does not
	// land on the drone's socket ahead of the assignment.
	fireMsg := wire.FireEventMessage{Time: "14:00:00", ZoneID: 1, Kind: "FIRE_DETECTED", Severity: model.SeverityLow}
	s.handleFireEvent(fireMsg, srcAddr, schedConn, now)

	s.dispatchPending(schedConn, now)

	fire := s.fires[1]
	if fire == nil || len(fire.AssignedDrones) != 1 || fire.AssignedDrones[0] != 1 {
		t.Fatalf("expected drone 1 assigned to zone 1, got %+v", fire)
	}
	d := s.drones[1]
	if d.State != model.StateEnRoute || d.CurrentTask == nil {
		t.Fatalf("expected drone to be en route with a task, got %+v", d)
	}

	line := testutil.RecvLine(t, droneConn, time.Second)
	assignment, err := wire.ParseFireEvent(line, nil)
	if err != nil {
		t.Fatalf("parse assignment datagram: %v", err)
	}
	if assignment.DroneID == nil || *assignment.DroneID != 1 || assignment.ZoneID != 1 {
		t.Fatalf("unexpected assignment datagram: %+v", assignment)
	}
}

func TestHandleDroneStatus_IdempotentDuplicateLeavesProgressUnchanged(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(testConfig(), nil, nil, nil, nil, testutil.NewFakeClock())
	conn := testutil.ListenLoopback(t, ctx)
	addr := droneAddr(t, conn)

	t0 := time.Now()
	msg := wire.DroneStatusMessage{DroneID: 7, State: model.StateEnRoute, X: 1, Y: 1}
	raw := wire.FormatDroneStatus(msg)
	s.handleDroneStatus(raw, msg, addr, conn, t0)
	progressAfterFirst := s.drones[7].LastProgressAt

	t1 := t0.Add(5 * time.Second)
	s.handleDroneStatus(raw, msg, addr, conn, t1)
	d := s.drones[7]
	if d.LastProgressAt != progressAfterFirst {
		t.Fatalf("duplicate datagram must not move last progress time")
	}
	if d.LastSeenAt != t1.UnixNano() {
		t.Fatalf("duplicate datagram should still refresh last seen time")
	}
}

func TestDetectStalls_RecallsTaskAndFaultsDrone(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s := NewScheduler(testConfig(), nil, nil, nil, nil, testutil.NewFakeClock())
	conn := testutil.ListenLoopback(t, ctx)
	addr := droneAddr(t, conn)

	now := time.Now()
	fireMsg := wire.FireEventMessage{Time: "14:00:00", ZoneID: 5, Kind: "FIRE_DETECTED", Severity: model.SeverityLow}
	s.handleFireEvent(fireMsg, addr, conn, now)
	statusMsg := wire.DroneStatusMessage{DroneID: 3, State: model.StateIdle, X: 0, Y: 0}
	s.handleDroneStatus(wire.FormatDroneStatus(statusMsg), statusMsg, addr, conn, now)
	s.dispatchPending(conn, now)

	if s.drones[3].State != model.StateEnRoute {
		t.Fatalf("setup failed: expected drone 3 en route")
	}

	later := now.Add(s.cfg.StallTimeout + time.Second)
	s.detectStalls(later)

	d := s.drones[3]
	if d.State != model.StateFault || d.CurrentTask != nil {
		t.Fatalf("expected stalled drone to be faulted with task recalled, got %+v", d)
	}
	if fire := s.fires[5]; fire == nil || len(fire.AssignedDrones) != 0 {
		t.Fatalf("expected recalled task to drop drone from assignment list, got %+v", fire)
	}
}

func TestHandleDroneStatus_FaultReportRecallsTaskImmediately(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	zones := []model.Zone{{ID: 5, TopLeft: model.Location{X: 0, Y: 0}, BottomRight: model.Location{X: 10, Y: 10}}}
	s := NewScheduler(testConfig(), zones, nil, nil, nil, testutil.NewFakeClock())
	conn := testutil.ListenLoopback(t, ctx)
	addr := droneAddr(t, conn)

	now := time.Now()
	fireMsg := wire.FireEventMessage{Time: "14:00:00", ZoneID: 5, Kind: "FIRE_DETECTED", Severity: model.SeverityLow}
	s.handleFireEvent(fireMsg, addr, conn, now)
	statusMsg := wire.DroneStatusMessage{DroneID: 4, State: model.StateIdle, X: 0, Y: 0}
	s.handleDroneStatus(wire.FormatDroneStatus(statusMsg), statusMsg, addr, conn, now)
	s.dispatchPending(conn, now)

	if s.drones[4].CurrentTask == nil {
		t.Fatalf("setup failed: expected drone 4 to hold a task before faulting")
	}

	faultMsg := wire.DroneStatusMessage{DroneID: 4, State: model.StateFault, X: 1, Y: 1}
	s.handleDroneStatus(wire.FormatDroneStatus(faultMsg), faultMsg, addr, conn, now.Add(time.Second))

	d := s.drones[4]
	if d.CurrentTask != nil {
		t.Fatalf("expected reported Fault status to recall the task immediately, got %+v", d)
	}
	if fire := s.fires[5]; fire == nil || len(fire.AssignedDrones) != 0 {
		t.Fatalf("expected recalled task to drop drone from assignment list, got %+v", fire)
	}
}

func TestPriorityRedirection_SendsDroneToHigherSeverityFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	zones := []model.Zone{
		{ID: 1, TopLeft: model.Location{X: 0, Y: 0}, BottomRight: model.Location{X: 10, Y: 10}},
		{ID: 2, TopLeft: model.Location{X: 100, Y: 100}, BottomRight: model.Location{X: 110, Y: 110}},
	}
	s := NewScheduler(testConfig(), zones, nil, nil, nil, testutil.NewFakeClock())
	conn := testutil.ListenLoopback(t, ctx)
	addr := droneAddr(t, conn)
	now := time.Now()

	lowMsg := wire.FireEventMessage{Time: "14:00:00", ZoneID: 1, Kind: "FIRE_DETECTED", Severity: model.SeverityLow}
	s.handleFireEvent(lowMsg, addr, conn, now)
	highMsg := wire.FireEventMessage{Time: "14:00:05", ZoneID: 2, Kind: "FIRE_DETECTED", Severity: model.SeverityHigh}
	s.handleFireEvent(highMsg, addr, conn, now)

	statusMsg := wire.DroneStatusMessage{DroneID: 9, State: model.StateIdle, X: 0, Y: 0}
	s.handleDroneStatus(wire.FormatDroneStatus(statusMsg), statusMsg, addr, conn, now)

	s.dispatchPending(conn, now)

	if fire := s.fires[1]; fire != nil && len(fire.AssignedDrones) != 0 {
		t.Fatalf("expected zone 1 (low severity) to remain unassigned, got %+v", fire)
	}
	if fire := s.fires[2]; fire == nil || len(fire.AssignedDrones) != 1 || fire.AssignedDrones[0] != 9 {
		t.Fatalf("expected zone 2 (high severity) to receive the drone, got %+v", fire)
	}
}
