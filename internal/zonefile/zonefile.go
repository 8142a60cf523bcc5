// Package zonefile reads the zone definition file (§6 "zones.txt"):
// "zoneId x1 y1 x2 y2" per line, origin top-left. The reader itself is an
// external-collaborator contract per spec §1; this package is the
// minimal, line-oriented parser the scheduler needs to load it.
package zonefile

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"firedrone/internal/model"
)

// Load reads zones from path, skipping blank and "#"-prefixed lines, and
// returning a parse error (never panicking) for any malformed line.
func Load(path string) ([]model.Zone, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("zonefile: open %s: %w", path, err)
	}
	defer f.Close()

	var zones []model.Zone
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		zone, err := parseLine(line)
		if err != nil {
			return nil, fmt.Errorf("zonefile: %s:%d: %w", path, lineNo, err)
		}
		zones = append(zones, zone)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("zonefile: scan %s: %w", path, err)
	}
	return zones, nil
}

func parseLine(line string) (model.Zone, error) {
	fields := strings.Fields(line)
	if len(fields) != 5 {
		return model.Zone{}, fmt.Errorf("expected 5 fields, got %d: %q", len(fields), line)
	}
	nums := make([]int, 5)
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return model.Zone{}, fmt.Errorf("field %d (%q) is not an integer: %w", i, f, err)
		}
		nums[i] = n
	}
	return model.Zone{
		ID:          nums[0],
		TopLeft:     model.Location{X: nums[1], Y: nums[2]},
		BottomRight: model.Location{X: nums[3], Y: nums[4]},
	}, nil
}

// ToMap indexes zones by id for the scheduler's lookup table.
func ToMap(zones []model.Zone) map[int]model.Zone {
	out := make(map[int]model.Zone, len(zones))
	for _, z := range zones {
		out[z.ID] = z
	}
	return out
}
