// Package wire implements the ASCII-over-UDP datagram formats of §6:
// fire events, assignments, drone status, zone info request/response.
// Parsing never panics; malformed input is returned as an error so the
// caller can log and discard (spec §7 "Malformed message").
package wire

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"

	"firedrone/internal/model"
)

// FireEventMessage is the Source->Scheduler (and, with DroneID set,
// Scheduler->Drone assignment) datagram: "HH:MM:SS Z KIND SEV [ERR] [droneId]".
type FireEventMessage struct {
	Time     string
	ZoneID   int
	Kind     string
	Severity model.Severity
	Error    model.FaultKind
	DroneID  *int // present only on assignment messages
}

// FormatFireEvent renders a fire event datagram. If msg.DroneID is non-nil
// the trailing droneId token is appended, turning it into an assignment.
func FormatFireEvent(msg FireEventMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %d %s %s", msg.Time, msg.ZoneID, msg.Kind, msg.Severity)
	if msg.Error != "" && msg.Error != model.FaultNone {
		fmt.Fprintf(&b, " %s", msg.Error)
	}
	if msg.DroneID != nil {
		fmt.Fprintf(&b, " %d", *msg.DroneID)
	}
	return b.String()
}

// ParseFireEvent parses a fire-event/assignment datagram. The ERROR
// sentinel ("choose one uniformly at random, excluding NONE") is resolved
// using rnd (pass rand.Float64-backed rand.Rand for production, a fixed
// source for deterministic tests).
func ParseFireEvent(line string, rnd *rand.Rand) (FireEventMessage, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return FireEventMessage{}, fmt.Errorf("wire: fire event needs at least 4 fields, got %d: %q", len(fields), line)
	}
	zoneID, err := strconv.Atoi(fields[1])
	if err != nil {
		return FireEventMessage{}, fmt.Errorf("wire: bad zone id %q: %w", fields[1], err)
	}
	sev, err := model.ParseSeverity(fields[3])
	if err != nil {
		return FireEventMessage{}, err
	}

	msg := FireEventMessage{
		Time:     fields[0],
		ZoneID:   zoneID,
		Kind:     fields[2],
		Severity: sev,
		Error:    model.FaultNone,
	}

	rest := fields[4:]
	if len(rest) > 0 {
		if fault, err := model.ParseFaultKind(rest[0]); err == nil {
			if fault.IsRandomSentinel() {
				fault = randomFault(rnd)
			}
			msg.Error = fault
			rest = rest[1:]
		}
	}
	if len(rest) > 0 {
		id, err := strconv.Atoi(rest[0])
		if err != nil {
			return FireEventMessage{}, fmt.Errorf("wire: bad drone id %q: %w", rest[0], err)
		}
		msg.DroneID = &id
	}
	return msg, nil
}

func randomFault(rnd *rand.Rand) model.FaultKind {
	choices := model.AllInjectableFaults
	if rnd == nil {
		return choices[rand.Intn(len(choices))]
	}
	return choices[rnd.Intn(len(choices))]
}

// DroneStatusMessage is the Drone->Scheduler status datagram:
// "droneId STATE x y [TASK:zone:sev] [FIRE_OUT:zone] [CAPACITY:liters]".
type DroneStatusMessage struct {
	DroneID        int
	State          model.DroneState
	X, Y           int
	TaskZoneID     int
	TaskSeverity   model.Severity
	HasTask        bool
	FireOutZoneID  int
	HasFireOut     bool
	CapacityLiters float64
	HasCapacity    bool
}

// IsDroneStatus reports whether a raw datagram looks like a drone status
// message: token 0 begins with "drone" and the x and y tokens (tokens 2
// and 3, ahead of any optional TASK/FIRE_OUT/CAPACITY tokens) parse as
// integers.
func IsDroneStatus(line string) bool {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return false
	}
	if !strings.HasPrefix(strings.ToLower(fields[0]), "drone") {
		return false
	}
	_, err1 := strconv.Atoi(fields[2])
	_, err2 := strconv.Atoi(fields[3])
	return err1 == nil && err2 == nil
}

// FormatDroneStatus renders a drone status datagram.
func FormatDroneStatus(msg DroneStatusMessage) string {
	var b strings.Builder
	fmt.Fprintf(&b, "drone%d %s %d %d", msg.DroneID, msg.State, msg.X, msg.Y)
	if msg.HasTask {
		fmt.Fprintf(&b, " TASK:%d:%s", msg.TaskZoneID, msg.TaskSeverity)
	}
	if msg.HasFireOut {
		fmt.Fprintf(&b, " FIRE_OUT:%d", msg.FireOutZoneID)
	}
	if msg.HasCapacity {
		fmt.Fprintf(&b, " CAPACITY:%s", strconv.FormatFloat(msg.CapacityLiters, 'f', -1, 64))
	}
	return b.String()
}

// ParseDroneStatus parses a drone status datagram.
func ParseDroneStatus(line string) (DroneStatusMessage, error) {
	fields := strings.Fields(line)
	if len(fields) < 4 {
		return DroneStatusMessage{}, fmt.Errorf("wire: drone status needs at least 4 fields: %q", line)
	}
	idStr := strings.TrimPrefix(strings.ToLower(fields[0]), "drone")
	id, err := strconv.Atoi(idStr)
	if err != nil {
		return DroneStatusMessage{}, fmt.Errorf("wire: bad drone id token %q: %w", fields[0], err)
	}
	x, err := strconv.Atoi(fields[2])
	if err != nil {
		return DroneStatusMessage{}, fmt.Errorf("wire: bad x %q: %w", fields[2], err)
	}
	y, err := strconv.Atoi(fields[3])
	if err != nil {
		return DroneStatusMessage{}, fmt.Errorf("wire: bad y %q: %w", fields[3], err)
	}

	msg := DroneStatusMessage{
		DroneID: id,
		State:   model.DroneState(strings.ToUpper(fields[1])),
		X:       x,
		Y:       y,
	}

	for _, tok := range fields[4:] {
		switch {
		case strings.HasPrefix(tok, "TASK:"):
			parts := strings.Split(tok, ":")
			if len(parts) != 3 {
				return DroneStatusMessage{}, fmt.Errorf("wire: bad TASK token %q", tok)
			}
			zid, err := strconv.Atoi(parts[1])
			if err != nil {
				return DroneStatusMessage{}, fmt.Errorf("wire: bad TASK zone %q: %w", tok, err)
			}
			sev, err := model.ParseSeverity(parts[2])
			if err != nil {
				return DroneStatusMessage{}, err
			}
			msg.HasTask = true
			msg.TaskZoneID = zid
			msg.TaskSeverity = sev
		case strings.HasPrefix(tok, "FIRE_OUT:"):
			parts := strings.Split(tok, ":")
			if len(parts) != 2 {
				return DroneStatusMessage{}, fmt.Errorf("wire: bad FIRE_OUT token %q", tok)
			}
			zid, err := strconv.Atoi(parts[1])
			if err != nil {
				return DroneStatusMessage{}, fmt.Errorf("wire: bad FIRE_OUT zone %q: %w", tok, err)
			}
			msg.HasFireOut = true
			msg.FireOutZoneID = zid
		case strings.HasPrefix(tok, "CAPACITY:"):
			parts := strings.Split(tok, ":")
			if len(parts) != 2 {
				return DroneStatusMessage{}, fmt.Errorf("wire: bad CAPACITY token %q", tok)
			}
			liters, err := strconv.ParseFloat(parts[1], 64)
			if err != nil {
				return DroneStatusMessage{}, fmt.Errorf("wire: bad CAPACITY value %q: %w", tok, err)
			}
			msg.HasCapacity = true
			msg.CapacityLiters = liters
		default:
			return DroneStatusMessage{}, fmt.Errorf("wire: unrecognized status token %q", tok)
		}
	}
	return msg, nil
}

// ZoneInfoRequestPrefix and ZoneInfoPrefix are the literal prefixes of the
// zone-info request/response datagrams.
const (
	ZoneInfoRequestPrefix = "ZONE_INFO_REQUEST:"
	ZoneInfoPrefix        = "ZONE_INFO:"
)

// FormatZoneInfoRequest renders a "ZONE_INFO_REQUEST:zoneId" datagram.
func FormatZoneInfoRequest(zoneID int) string {
	return fmt.Sprintf("%s%d", ZoneInfoRequestPrefix, zoneID)
}

// ParseZoneInfoRequest parses a "ZONE_INFO_REQUEST:zoneId" datagram.
func ParseZoneInfoRequest(line string) (int, error) {
	if !strings.HasPrefix(line, ZoneInfoRequestPrefix) {
		return 0, fmt.Errorf("wire: not a zone info request: %q", line)
	}
	return strconv.Atoi(strings.TrimPrefix(line, ZoneInfoRequestPrefix))
}

// ZoneInfo is the "ZONE_INFO:zoneId:cx:cy" response.
type ZoneInfo struct {
	ZoneID int
	Center model.Location
}

// FormatZoneInfo renders a "ZONE_INFO:zoneId:cx:cy" datagram.
func FormatZoneInfo(info ZoneInfo) string {
	return fmt.Sprintf("%s%d:%d:%d", ZoneInfoPrefix, info.ZoneID, info.Center.X, info.Center.Y)
}

// ParseZoneInfo parses a "ZONE_INFO:zoneId:cx:cy" datagram.
func ParseZoneInfo(line string) (ZoneInfo, error) {
	if !strings.HasPrefix(line, ZoneInfoPrefix) {
		return ZoneInfo{}, fmt.Errorf("wire: not a zone info response: %q", line)
	}
	parts := strings.Split(strings.TrimPrefix(line, ZoneInfoPrefix), ":")
	if len(parts) != 3 {
		return ZoneInfo{}, fmt.Errorf("wire: malformed zone info: %q", line)
	}
	zid, err := strconv.Atoi(parts[0])
	if err != nil {
		return ZoneInfo{}, fmt.Errorf("wire: bad zone id %q: %w", parts[0], err)
	}
	cx, err := strconv.Atoi(parts[1])
	if err != nil {
		return ZoneInfo{}, fmt.Errorf("wire: bad cx %q: %w", parts[1], err)
	}
	cy, err := strconv.Atoi(parts[2])
	if err != nil {
		return ZoneInfo{}, fmt.Errorf("wire: bad cy %q: %w", parts[2], err)
	}
	return ZoneInfo{ZoneID: zid, Center: model.Location{X: cx, Y: cy}}, nil
}
